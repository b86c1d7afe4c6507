package rtree

import (
	"github.com/aukilabs/pointtree/geom"
	"github.com/aukilabs/pointtree/points"
)

// Node is either a leaf holding points or a branch owning exactly two
// children. A node without children is a leaf, whatever it held before.
type Node struct {
	mbr    geom.Rect
	points *points.Container
	sub1   *Node
	sub2   *Node
}

func newLeaf(mbr geom.Rect) *Node {
	return &Node{
		mbr:    mbr,
		points: points.New(),
	}
}

func (n *Node) IsLeaf() bool {
	return n.sub1 == nil && n.sub2 == nil
}

// MBR returns the bounding box of the node. Between two resizes it may be
// larger than the points below it but never smaller.
func (n *Node) MBR() geom.Rect {
	return n.mbr
}

// Children returns the two children of a branch, or nils for a leaf.
func (n *Node) Children() (*Node, *Node) {
	return n.sub1, n.sub2
}

// Points returns a copy of the points held by a leaf. Branches hold no
// points directly.
func (n *Node) Points() []geom.Point {
	if !n.IsLeaf() {
		return nil
	}
	return n.points.Points()
}

// Len returns the number of points stored in the subtree.
func (n *Node) Len() int {
	if n.IsLeaf() {
		return n.points.Len()
	}
	return n.sub1.Len() + n.sub2.Len()
}

// Format lists the points of a leaf, one per line.
func (n *Node) Format(format func(geom.Point) string) string {
	if !n.IsLeaf() {
		return ""
	}
	return n.points.Format(format)
}

func (n *Node) String() string {
	return n.Format(geom.Point.String)
}

func (n *Node) walk(depth int, fn func(*Node, int)) {
	fn(n, depth)
	if n.IsLeaf() {
		return
	}
	n.sub1.walk(depth+1, fn)
	n.sub2.walk(depth+1, fn)
}

func (n *Node) collect(dst []geom.Point) []geom.Point {
	if n.IsLeaf() {
		for i := 0; i < n.points.Len(); i++ {
			dst = append(dst, n.points.At(i))
		}
		return dst
	}
	dst = n.sub1.collect(dst)
	return n.sub2.collect(dst)
}
