package rtree

import (
	"math"

	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/pointtree/geom"
	"github.com/aukilabs/pointtree/points"
)

// Subdivide splits every leaf whose vertical dispersion exceeds the tree
// threshold, cascading into the new children. It reports whether at least
// one leaf was split.
func (t *Tree) Subdivide() bool {
	return t.subdivide(t.root, 0)
}

func (t *Tree) subdivide(n *Node, depth int) bool {
	if !n.IsLeaf() {
		split1 := t.subdivide(n.sub1, depth+1)
		split2 := t.subdivide(n.sub2, depth+1)
		return split1 || split2
	}

	d := dispersion(n.points, geom.AxisZ)
	if d.stddev <= t.maxDispersion {
		return false
	}

	old := n.points
	n.sub1 = newLeaf(geom.PointRect(d.max))
	n.sub2 = newLeaf(geom.PointRect(d.min))
	n.points = nil

	for i := 0; i < old.Len(); i++ {
		insert(n, old.At(i))
	}

	if n.sub1.points.Len() == 0 || n.sub2.points.Len() == 0 {
		// Every point went to one side: splitting again would loop forever.
		n.sub1 = nil
		n.sub2 = nil
		n.points = old

		logs.WithTag("points", old.Len()).
			WithTag("dispersion", d.stddev).
			WithTag("depth", depth).
			Debug("leaf split rolled back")
		return false
	}

	logs.WithTag("points", old.Len()).
		WithTag("dispersion", d.stddev).
		WithTag("depth", depth).
		WithTag("sub1_points", n.sub1.points.Len()).
		WithTag("sub2_points", n.sub2.points.Len()).
		Debug("leaf split")

	t.subdivide(n.sub1, depth+1)
	t.subdivide(n.sub2, depth+1)
	return true
}

type axisDispersion struct {
	mean   float64
	stddev float64
	max    geom.Point
	min    geom.Point
}

// dispersion returns the mean and sample standard deviation of the points
// along the given axis, with the first points holding the extreme values.
// The deviation is 0 for fewer than two points.
func dispersion(c *points.Container, axis geom.Axis) axisDispersion {
	var d axisDispersion

	count := c.Len()
	if count <= 1 {
		if count == 1 {
			d.max = c.At(0)
			d.min = c.At(0)
			d.mean = c.At(0).Coord(axis)
		}
		return d
	}

	d.max = c.At(0)
	d.min = c.At(0)

	var total float64
	for i := 0; i < count; i++ {
		p := c.At(i)
		v := p.Coord(axis)
		total += v

		if v > d.max.Coord(axis) {
			d.max = p
		}
		if v < d.min.Coord(axis) {
			d.min = p
		}
	}
	d.mean = total / float64(count)

	var sumSquares float64
	for i := 0; i < count; i++ {
		diff := c.At(i).Coord(axis) - d.mean
		sumSquares += diff * diff
	}
	d.stddev = math.Sqrt(sumSquares / float64(count-1))
	return d
}
