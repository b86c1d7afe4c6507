// Package rtree implements a binary bounding-volume tree over 3D points.
//
// Leaves hold points and are split in two when the spread of their points
// along the vertical axis grows past a threshold. Every node keeps a
// minimum bounding rectangle (MBR) that is extended on each insertion, so
// lookups and range queries can skip subtrees that cannot match.
//
// A Tree is not safe for concurrent use.
package rtree

import (
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/pointtree/geom"
	"github.com/aukilabs/pointtree/points"
)

// Error types returned by trees.
const (
	ErrTypeInvalidInput         = points.ErrTypeInvalidInput
	ErrTypeUnsupportedOperation = "unsupported_operation"
	ErrTypeNotFound             = "not_found"
)

const (
	// DefaultMaxDispersion is the vertical standard deviation above which a
	// leaf gets split.
	DefaultMaxDispersion = 30

	// DefaultRebuildRatio is how many times larger a subtree may be than
	// its sibling before Resize recommends a rebuild.
	DefaultRebuildRatio = 4
)

// Option configures a Tree.
type Option func(*Tree)

func WithMaxDispersion(v float64) Option {
	return func(t *Tree) {
		if v > 0 {
			t.maxDispersion = v
		}
	}
}

func WithRebuildRatio(v float64) Option {
	return func(t *Tree) {
		if v >= 1 {
			t.rebuildRatio = v
		}
	}
}

// WithFindPruning sets whether Find skips subtrees whose MBR cannot contain
// the searched point. Enabled by default.
func WithFindPruning(v bool) Option {
	return func(t *Tree) {
		t.findPruning = v
	}
}

// Tree is a spatial index over 3D points.
type Tree struct {
	root          *Node
	maxDispersion float64
	rebuildRatio  float64
	findPruning   bool
}

// New returns an empty tree whose root is an empty leaf.
func New(opts ...Option) *Tree {
	t := &Tree{
		root:          newLeaf(geom.EmptyRect()),
		maxDispersion: DefaultMaxDispersion,
		rebuildRatio:  DefaultRebuildRatio,
		findPruning:   true,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tree) Root() *Node {
	return t.root
}

func (t *Tree) MaxDispersion() float64 {
	return t.maxDispersion
}

func (t *Tree) RebuildRatio() float64 {
	return t.rebuildRatio
}

// Len returns the number of points stored in the tree.
func (t *Tree) Len() int {
	return t.root.Len()
}

// Insert adds p to the leaf whose MBR needs the least enlargement to
// cover it. Insertion never splits a leaf; see Subdivide.
func (t *Tree) Insert(p geom.Point) error {
	if err := validatePoint(t, p); err != nil {
		return err
	}

	insert(t.root, p)
	return nil
}

func insert(n *Node, p geom.Point) {
	n.mbr = n.mbr.Extend(p)

	if n.IsLeaf() {
		// p is validated by the caller and n.points is never nil on a leaf.
		n.points.Append(p)
		return
	}

	insert(chooseSubtree(n, p), p)
}

// chooseSubtree picks the child needing the least volume enlargement to
// cover p. Equal volume costs are common when boxes are flat on an axis, so
// they are broken by the least margin enlargement before falling back to
// sub1. Volumes overflow once box sides pass about 5e102; the margin is
// compared instead when either volume cost is not finite.
func chooseSubtree(n *Node, p geom.Point) *Node {
	cost1 := n.sub1.mbr.Enlargement(p)
	cost2 := n.sub2.mbr.Enlargement(p)
	if isFinite(cost1) && isFinite(cost2) && cost1 != cost2 {
		if cost2 < cost1 {
			return n.sub2
		}
		return n.sub1
	}

	if n.sub2.mbr.MarginEnlargement(p) < n.sub1.mbr.MarginEnlargement(p) {
		return n.sub2
	}
	return n.sub1
}

// BulkInsert appends all the given points to the root leaf at once, then
// subdivides and resizes the tree. It fails without changing anything
// when the root already is a branch or when a point is invalid.
func (t *Tree) BulkInsert(ps []geom.Point) error {
	if t == nil {
		return errors.New("nil tree").WithType(ErrTypeInvalidInput)
	}

	if !t.root.IsLeaf() {
		err := errors.New("bulk insert is only supported on a leaf").
			WithType(ErrTypeUnsupportedOperation).
			WithTag("points", len(ps))
		logs.Warn(err)
		return err
	}

	if err := t.root.points.AppendAll(ps); err != nil {
		return err
	}
	for _, p := range ps {
		t.root.mbr = t.root.mbr.Extend(p)
	}

	t.Subdivide()
	t.Resize()
	return nil
}

// Delete removes every point equal to p and returns how many were
// removed. Nodes are neither shrunk nor merged afterwards.
func (t *Tree) Delete(p geom.Point) (int, error) {
	if err := validatePoint(t, p); err != nil {
		return 0, err
	}
	return remove(t.root, p), nil
}

func remove(n *Node, p geom.Point) int {
	if n.IsLeaf() {
		removed, _ := n.points.RemoveAllEqual(p)
		return removed
	}
	// MBRs are not shrunk on delete, so both sides are searched.
	return remove(n.sub1, p) + remove(n.sub2, p)
}

// Walk calls fn on every node in pre-order, sub1 before sub2.
func (t *Tree) Walk(fn func(n *Node, depth int)) {
	t.root.walk(0, fn)
}

// Points returns every point of the tree in traversal order.
func (t *Tree) Points() []geom.Point {
	return t.root.collect(make([]geom.Point, 0, t.Len()))
}

// Rebuild discards the structure of the tree and bulk loads all its
// points into a fresh root.
func (t *Tree) Rebuild() {
	ps := t.Points()
	t.root = newLeaf(geom.EmptyRect())

	// ps comes from the tree itself so every point is already valid.
	t.BulkInsert(ps)
}

func validatePoint(t *Tree, p geom.Point) error {
	if t == nil {
		return errors.New("nil tree").WithType(ErrTypeInvalidInput)
	}
	if !p.IsValid() {
		return errors.New("point has non-finite coordinates").
			WithType(ErrTypeInvalidInput).
			WithTag("point", p.String())
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}
