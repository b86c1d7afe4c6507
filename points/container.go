package points

import (
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/pointtree/geom"
)

// Error types returned by point containers.
const (
	ErrTypeInvalidInput = "invalid_input"
)

// Container is an owned, growable sequence of points kept in insertion
// order until a removal swaps elements around.
type Container struct {
	points []geom.Point
}

// New returns a container holding a copy of the given points.
func New(ps ...geom.Point) *Container {
	c := &Container{points: make([]geom.Point, len(ps))}
	copy(c.points, ps)
	return c
}

// Append adds p at the end of the container.
func (c *Container) Append(p geom.Point) error {
	if c == nil {
		return errors.New("nil point container").
			WithType(ErrTypeInvalidInput)
	}
	if !p.IsValid() {
		return invalidPointErr(p)
	}

	c.points = append(c.points, p)
	return nil
}

// AppendAll adds every given point. Nothing is appended when one of them
// is invalid.
func (c *Container) AppendAll(ps []geom.Point) error {
	if c == nil {
		return errors.New("nil point container").
			WithType(ErrTypeInvalidInput)
	}
	for _, p := range ps {
		if !p.IsValid() {
			return invalidPointErr(p)
		}
	}

	c.points = append(c.points, ps...)
	return nil
}

// RemoveAllEqual removes every point equal to p and returns how many were
// removed. Removal swaps the last live point into the freed slot, so
// ordering is not preserved.
func (c *Container) RemoveAllEqual(p geom.Point) (int, error) {
	if c == nil {
		return 0, errors.New("nil point container").
			WithType(ErrTypeInvalidInput)
	}
	if !p.IsValid() {
		return 0, invalidPointErr(p)
	}

	removed := 0
	for i := 0; i < len(c.points); {
		if !c.points[i].Equal(p) {
			i++
			continue
		}

		// The swapped-in point lands on i and is tested on the next pass.
		last := len(c.points) - 1
		c.points[i] = c.points[last]
		c.points = c.points[:last]
		removed++
	}
	return removed, nil
}

// Merge returns a new container holding the points of a followed by the
// points of b. Neither input is modified or shared.
func Merge(a, b *Container) (*Container, error) {
	if a == nil || b == nil {
		return nil, errors.New("nil point container").
			WithType(ErrTypeInvalidInput)
	}

	merged := &Container{points: make([]geom.Point, 0, len(a.points)+len(b.points))}
	merged.points = append(merged.points, a.points...)
	merged.points = append(merged.points, b.points...)
	return merged, nil
}

func (c *Container) Len() int {
	if c == nil {
		return 0
	}
	return len(c.points)
}

// At returns the i-th point. It panics when i is out of range, like a
// slice index.
func (c *Container) At(i int) geom.Point {
	return c.points[i]
}

// Points returns a copy of the stored points.
func (c *Container) Points() []geom.Point {
	if c == nil {
		return nil
	}
	ps := make([]geom.Point, len(c.points))
	copy(ps, c.points)
	return ps
}

// Bounds returns the tightest box around the stored points.
func (c *Container) Bounds() geom.Rect {
	if c == nil {
		return geom.EmptyRect()
	}
	return geom.BoundingRect(c.points...)
}

// Format renders one line per point with the given function.
func (c *Container) Format(format func(geom.Point) string) string {
	if c == nil {
		return ""
	}

	var b strings.Builder
	for i, p := range c.points {
		if i != 0 {
			b.WriteByte('\n')
		}
		b.WriteString(format(p))
	}
	return b.String()
}

func (c *Container) String() string {
	return c.Format(geom.Point.String)
}

func invalidPointErr(p geom.Point) error {
	return errors.New("point has non-finite coordinates").
		WithType(ErrTypeInvalidInput).
		WithTag("point", p.String())
}
