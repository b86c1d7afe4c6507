package rtree

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/pointtree/geom"
)

// Find returns the first leaf holding a point equal to p, searching sub1
// before sub2. An error typed ErrTypeNotFound is returned when no leaf
// holds it.
func (t *Tree) Find(p geom.Point) (*Node, error) {
	if err := validatePoint(t, p); err != nil {
		return nil, err
	}

	if leaf := t.find(t.root, p); leaf != nil {
		return leaf, nil
	}
	return nil, errors.New("point not found").
		WithType(ErrTypeNotFound).
		WithTag("point", p.String())
}

// Contains reports whether a point equal to p is stored in the tree.
func (t *Tree) Contains(p geom.Point) bool {
	leaf, err := t.Find(p)
	return err == nil && leaf != nil
}

func (t *Tree) find(n *Node, p geom.Point) *Node {
	if t.findPruning && !n.mbr.Contains(p) {
		return nil
	}

	if n.IsLeaf() {
		for i := 0; i < n.points.Len(); i++ {
			if n.points.At(i).Equal(p) {
				return n
			}
		}
		return nil
	}

	if leaf := t.find(n.sub1, p); leaf != nil {
		return leaf
	}
	return t.find(n.sub2, p)
}

// PointsInRect returns every stored point lying inside box, boundaries
// included. Subtrees whose MBR does not overlap box are skipped. The
// result is never nil.
func (t *Tree) PointsInRect(box geom.Rect) ([]geom.Point, error) {
	if t == nil {
		return nil, errors.New("nil tree").WithType(ErrTypeInvalidInput)
	}
	if !box.IsValid() {
		return nil, errors.New("query box has non-finite coordinates").
			WithType(ErrTypeInvalidInput).
			WithTag("box", box.String())
	}

	return pointsInRect(t.root, box, []geom.Point{}), nil
}

func pointsInRect(n *Node, box geom.Rect, dst []geom.Point) []geom.Point {
	if n.IsLeaf() {
		for i := 0; i < n.points.Len(); i++ {
			if p := n.points.At(i); box.Contains(p) {
				dst = append(dst, p)
			}
		}
		return dst
	}

	if n.sub1.mbr.Overlaps(box) {
		dst = pointsInRect(n.sub1, box, dst)
	}
	if n.sub2.mbr.Overlaps(box) {
		dst = pointsInRect(n.sub2, box, dst)
	}
	return dst
}
