package rtree

import (
	"github.com/aukilabs/pointtree/geom"
	"github.com/cznic/mathutil"
)

// Resize recomputes every MBR bottom-up: a leaf gets the tightest box
// around its points and a branch the union of its children. It returns
// true when some branch has a child holding more than RebuildRatio times
// the points of its sibling, in which case Rebuild is worth calling.
func (t *Tree) Resize() (rebuildRecommended bool) {
	_, rebuildRecommended = t.resize(t.root)
	return rebuildRecommended
}

func (t *Tree) resize(n *Node) (count int, unbalanced bool) {
	if n.IsLeaf() {
		n.mbr = n.points.Bounds()
		return n.points.Len(), false
	}

	count1, unbalanced1 := t.resize(n.sub1)
	count2, unbalanced2 := t.resize(n.sub2)
	n.mbr = n.sub1.mbr.Union(n.sub2.mbr)

	larger := mathutil.Max(count1, count2)
	smaller := mathutil.Min(count1, count2)
	unbalanced = unbalanced1 || unbalanced2 ||
		float64(larger) > t.rebuildRatio*float64(smaller)

	return count1 + count2, unbalanced
}

// Stats summarizes the shape of a tree.
type Stats struct {
	Points   int       `json:"points"`
	Leaves   int       `json:"leaves"`
	Branches int       `json:"branches"`
	Depth    int       `json:"depth"`
	MBR      geom.Rect `json:"mbr"`
}

func (t *Tree) Stats() Stats {
	s := Stats{MBR: t.root.mbr}

	t.Walk(func(n *Node, depth int) {
		s.Depth = mathutil.Max(s.Depth, depth)

		if n.IsLeaf() {
			s.Leaves++
			s.Points += n.points.Len()
		} else {
			s.Branches++
		}
	})
	return s
}
