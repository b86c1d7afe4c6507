package geom

import (
	"math"

	"github.com/segmentio/encoding/json"
)

// Rect is an axis-aligned box. A Rect built with NewRect always has
// Min <= Max on every axis. The zero value is the degenerate box at the
// origin; use EmptyRect for a box that contains nothing.
type Rect struct {
	Min Point `json:"min"`
	Max Point `json:"max"`
}

// NewRect returns the box spanned by two opposite corners, in any order.
func NewRect(p1, p2 Point) Rect {
	return Rect{Min: Min(p1, p2), Max: Max(p1, p2)}
}

// PointRect returns the degenerate box holding only p.
func PointRect(p Point) Rect {
	return Rect{Min: p, Max: p}
}

// EmptyRect returns the identity element of Union and Extend.
func EmptyRect() Rect {
	inf := math.Inf(1)
	return Rect{
		Min: Point{inf, inf, inf},
		Max: Point{-inf, -inf, -inf},
	}
}

// BoundingRect returns the tightest box around the given points, or an
// empty box when there are none.
func BoundingRect(points ...Point) Rect {
	r := EmptyRect()
	for _, p := range points {
		r = r.Extend(p)
	}
	return r
}

func (r Rect) IsEmpty() bool {
	return r.Min.X > r.Max.X || r.Min.Y > r.Max.Y || r.Min.Z > r.Max.Z
}

// IsValid reports whether both corners are finite.
func (r Rect) IsValid() bool {
	return r.Min.IsValid() && r.Max.IsValid()
}

// Contains reports whether p lies inside r or on its boundary.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.Min.X && p.X <= r.Max.X &&
		p.Y >= r.Min.Y && p.Y <= r.Max.Y &&
		p.Z >= r.Min.Z && p.Z <= r.Max.Z
}

// ContainsRect reports whether o lies entirely inside r.
func (r Rect) ContainsRect(o Rect) bool {
	if o.IsEmpty() {
		return true
	}
	return r.Contains(o.Min) && r.Contains(o.Max)
}

// Overlaps reports whether r and o share at least one point. Touching
// faces count as overlap.
func (r Rect) Overlaps(o Rect) bool {
	if r.IsEmpty() || o.IsEmpty() {
		return false
	}
	return r.Min.X <= o.Max.X && r.Max.X >= o.Min.X &&
		r.Min.Y <= o.Max.Y && r.Max.Y >= o.Min.Y &&
		r.Min.Z <= o.Max.Z && r.Max.Z >= o.Min.Z
}

// Extend returns the smallest box covering r and p.
func (r Rect) Extend(p Point) Rect {
	return Rect{Min: Min(r.Min, p), Max: Max(r.Max, p)}
}

// Union returns the smallest box covering r and o.
func (r Rect) Union(o Rect) Rect {
	return Rect{Min: Min(r.Min, o.Min), Max: Max(r.Max, o.Max)}
}

func (r Rect) Size() Point {
	if r.IsEmpty() {
		return Point{}
	}
	return Point{r.Max.X - r.Min.X, r.Max.Y - r.Min.Y, r.Max.Z - r.Min.Z}
}

func (r Rect) Volume() float64 {
	s := r.Size()
	return s.X * s.Y * s.Z
}

// Margin returns the sum of the box edge lengths along each axis.
func (r Rect) Margin() float64 {
	s := r.Size()
	return s.X + s.Y + s.Z
}

// Enlargement returns how much volume r has to gain to cover p.
func (r Rect) Enlargement(p Point) float64 {
	return r.Extend(p).Volume() - r.Volume()
}

// MarginEnlargement returns how much margin r has to gain to cover p. It
// separates candidates whose volume enlargement is equal, which happens
// whenever boxes are flat on some axis.
func (r Rect) MarginEnlargement(p Point) float64 {
	return r.Extend(p).Margin() - r.Margin()
}

func (r Rect) String() string {
	if r.IsEmpty() {
		return "[empty]"
	}
	return "[" + r.Min.String() + " - " + r.Max.String() + "]"
}

// MarshalJSON encodes an empty box as null since its corners are infinite.
func (r Rect) MarshalJSON() ([]byte, error) {
	if r.IsEmpty() {
		return []byte("null"), nil
	}

	type rect Rect
	return json.Marshal(rect(r))
}
