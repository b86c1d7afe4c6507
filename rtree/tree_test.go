package rtree

import (
	"math"
	"math/rand"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/pointtree/geom"
	"github.com/stretchr/testify/require"
)

func newScenarioTree(t *testing.T) *Tree {
	tree := New(WithMaxDispersion(30))
	for _, p := range []geom.Point{
		{X: 0, Y: 0, Z: 0},
		{X: 1, Y: 1, Z: 1},
		{X: 2, Y: 2, Z: 2},
		{X: 100, Y: 100, Z: 100},
	} {
		require.NoError(t, tree.Insert(p))
	}
	return tree
}

func randomPoints(r *rand.Rand, n int, spread float64) []geom.Point {
	ps := make([]geom.Point, n)
	for i := range ps {
		ps[i] = geom.Point{
			X: r.Float64() * spread,
			Y: r.Float64() * spread,
			Z: r.Float64() * spread,
		}
	}
	return ps
}

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		tree := New()
		require.True(t, tree.Root().IsLeaf())
		require.Zero(t, tree.Len())
		require.Equal(t, float64(DefaultMaxDispersion), tree.MaxDispersion())
		require.Equal(t, float64(DefaultRebuildRatio), tree.RebuildRatio())
		require.True(t, tree.Root().MBR().IsEmpty())
	})

	t.Run("options", func(t *testing.T) {
		tree := New(WithMaxDispersion(5), WithRebuildRatio(2))
		require.Equal(t, 5.0, tree.MaxDispersion())
		require.Equal(t, 2.0, tree.RebuildRatio())
	})

	t.Run("invalid options are ignored", func(t *testing.T) {
		tree := New(WithMaxDispersion(-1), WithRebuildRatio(0.5))
		require.Equal(t, float64(DefaultMaxDispersion), tree.MaxDispersion())
		require.Equal(t, float64(DefaultRebuildRatio), tree.RebuildRatio())
	})
}

func TestTreeInsert(t *testing.T) {
	t.Run("leaf receives the point and extends its mbr", func(t *testing.T) {
		tree := New()
		require.NoError(t, tree.Insert(geom.Point{X: 1, Y: 2, Z: 3}))
		require.NoError(t, tree.Insert(geom.Point{X: -1, Y: 0, Z: 5}))

		require.Equal(t, 2, tree.Len())
		require.Equal(t, geom.NewRect(geom.Point{X: -1, Y: 0, Z: 3}, geom.Point{X: 1, Y: 2, Z: 5}), tree.Root().MBR())
	})

	t.Run("insertion does not subdivide", func(t *testing.T) {
		tree := newScenarioTree(t)
		require.True(t, tree.Root().IsLeaf())
	})

	t.Run("invalid point returns an error", func(t *testing.T) {
		tree := New()
		err := tree.Insert(geom.Point{X: math.NaN(), Y: 0, Z: 0})
		require.Error(t, err)
		require.Equal(t, ErrTypeInvalidInput, errors.Type(err))
		require.Zero(t, tree.Len())
	})

	t.Run("nil tree returns an error", func(t *testing.T) {
		var tree *Tree
		err := tree.Insert(geom.Point{})
		require.Equal(t, ErrTypeInvalidInput, errors.Type(err))
	})

	t.Run("branch routes to the child needing less enlargement", func(t *testing.T) {
		tree := newScenarioTree(t)
		require.True(t, tree.Subdivide())

		require.NoError(t, tree.Insert(geom.Point{X: 99, Y: 99, Z: 99}))
		sub1, sub2 := tree.Root().Children()
		require.Contains(t, sub1.Points(), geom.Point{X: 99, Y: 99, Z: 99})
		require.NotContains(t, sub2.Points(), geom.Point{X: 99, Y: 99, Z: 99})

		require.NoError(t, tree.Insert(geom.Point{X: 1, Y: 0, Z: 1}))
		require.Contains(t, sub2.Points(), geom.Point{X: 1, Y: 0, Z: 1})
	})

	t.Run("ties go to the first child", func(t *testing.T) {
		n := &Node{
			mbr:  geom.NewRect(geom.Point{X: 0, Y: 0, Z: 0}, geom.Point{X: 2, Y: 2, Z: 2}),
			sub1: newLeaf(geom.NewRect(geom.Point{X: 0, Y: 0, Z: 0}, geom.Point{X: 2, Y: 2, Z: 2})),
			sub2: newLeaf(geom.NewRect(geom.Point{X: 0, Y: 0, Z: 0}, geom.Point{X: 2, Y: 2, Z: 2})),
		}
		require.Same(t, n.sub1, chooseSubtree(n, geom.Point{X: 1, Y: 1, Z: 1}))
	})

	t.Run("flat boxes are separated by margin", func(t *testing.T) {
		n := &Node{
			sub1: newLeaf(geom.PointRect(geom.Point{X: 0, Y: 0, Z: 0})),
			sub2: newLeaf(geom.PointRect(geom.Point{X: 0, Y: 0, Z: 10})),
		}
		require.Same(t, n.sub2, chooseSubtree(n, geom.Point{X: 0, Y: 0, Z: 8}))
		require.Same(t, n.sub1, chooseSubtree(n, geom.Point{X: 0, Y: 0, Z: 2}))
	})
}

func TestTreeBulkInsert(t *testing.T) {
	t.Run("appends, subdivides and resizes", func(t *testing.T) {
		tree := New()
		err := tree.BulkInsert([]geom.Point{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 1, Z: 1}, {X: 2, Y: 2, Z: 2}, {X: 100, Y: 100, Z: 100}})
		require.NoError(t, err)

		require.Equal(t, 4, tree.Len())
		require.False(t, tree.Root().IsLeaf())
		requireTightMBRs(t, tree.Root())
	})

	t.Run("branch root returns an error without mutation", func(t *testing.T) {
		tree := newScenarioTree(t)
		require.True(t, tree.Subdivide())

		err := tree.BulkInsert([]geom.Point{{X: 5, Y: 5, Z: 5}})
		require.Error(t, err)
		require.Equal(t, ErrTypeUnsupportedOperation, errors.Type(err))
		require.Equal(t, 4, tree.Len())
	})

	t.Run("invalid point returns an error without mutation", func(t *testing.T) {
		tree := New()
		err := tree.BulkInsert([]geom.Point{{X: 1, Y: 1, Z: 1}, {X: math.Inf(1), Y: 0, Z: 0}})
		require.Equal(t, ErrTypeInvalidInput, errors.Type(err))
		require.Zero(t, tree.Len())
	})
}

func TestTreeDelete(t *testing.T) {
	t.Run("removes all equal points from a leaf", func(t *testing.T) {
		tree := New()
		for i := 0; i < 3; i++ {
			require.NoError(t, tree.Insert(geom.Point{X: 5, Y: 5, Z: 5}))
		}
		require.NoError(t, tree.Insert(geom.Point{X: 1, Y: 1, Z: 1}))

		n, err := tree.Delete(geom.Point{X: 5, Y: 5, Z: 5})
		require.NoError(t, err)
		require.Equal(t, 3, n)
		require.Equal(t, 1, tree.Len())
	})

	t.Run("searches both children of a branch", func(t *testing.T) {
		tree := newScenarioTree(t)
		require.True(t, tree.Subdivide())

		// Force the same point into both subtrees.
		sub1, sub2 := tree.Root().Children()
		require.NoError(t, sub1.points.Append(geom.Point{X: 50, Y: 50, Z: 50}))
		require.NoError(t, sub2.points.Append(geom.Point{X: 50, Y: 50, Z: 50}))

		n, err := tree.Delete(geom.Point{X: 50, Y: 50, Z: 50})
		require.NoError(t, err)
		require.Equal(t, 2, n)
	})

	t.Run("empty leaves stay leaves", func(t *testing.T) {
		tree := newScenarioTree(t)
		require.True(t, tree.Subdivide())

		n, err := tree.Delete(geom.Point{X: 100, Y: 100, Z: 100})
		require.NoError(t, err)
		require.Equal(t, 1, n)

		sub1, _ := tree.Root().Children()
		require.True(t, sub1.IsLeaf())
		require.Zero(t, sub1.Len())
		require.False(t, tree.Root().IsLeaf())
	})

	t.Run("invalid point returns an error", func(t *testing.T) {
		_, err := New().Delete(geom.Point{X: 0, Y: math.NaN(), Z: 0})
		require.Equal(t, ErrTypeInvalidInput, errors.Type(err))
	})
}

func TestTreeInsertDeleteRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	tree := New(WithMaxDispersion(10))
	require.NoError(t, tree.BulkInsert(randomPoints(r, 200, 100)))

	before := tree.Len()
	p := geom.Point{X: 12.5, Y: 33.25, Z: 71.125}
	require.NoError(t, tree.Insert(p))
	require.True(t, tree.Contains(p))

	n, err := tree.Delete(p)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, before, tree.Len())
}

func TestTreeSubdivide(t *testing.T) {
	t.Run("splits the scenario root around its vertical extremes", func(t *testing.T) {
		tree := newScenarioTree(t)
		require.True(t, tree.Subdivide())

		root := tree.Root()
		require.False(t, root.IsLeaf())

		sub1, sub2 := root.Children()
		require.True(t, sub1.IsLeaf())
		require.True(t, sub2.IsLeaf())
		require.Equal(t, []geom.Point{{X: 100, Y: 100, Z: 100}}, sub1.Points())
		require.ElementsMatch(t, []geom.Point{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 1, Z: 1}, {X: 2, Y: 2, Z: 2}}, sub2.Points())
		require.Nil(t, root.points)
	})

	t.Run("low dispersion is left alone", func(t *testing.T) {
		tree := New()
		for i := 0; i < 10; i++ {
			require.NoError(t, tree.Insert(geom.Point{X: float64(i), Y: 0, Z: float64(i)}))
		}
		require.False(t, tree.Subdivide())
		require.True(t, tree.Root().IsLeaf())
	})

	t.Run("single point and empty leaves have no dispersion", func(t *testing.T) {
		tree := New(WithMaxDispersion(0.0001))
		require.False(t, tree.Subdivide())

		require.NoError(t, tree.Insert(geom.Point{X: 0, Y: 0, Z: 1000}))
		require.False(t, tree.Subdivide())
	})

	t.Run("splits cascade and conserve points", func(t *testing.T) {
		r := rand.New(rand.NewSource(7))
		ps := randomPoints(r, 500, 1000)

		tree := New(WithMaxDispersion(30))
		for _, p := range ps {
			require.NoError(t, tree.Insert(p))
		}
		require.True(t, tree.Subdivide())

		stats := tree.Stats()
		require.Greater(t, stats.Depth, 1)
		require.Equal(t, stats.Leaves, stats.Branches+1)
		require.Equal(t, len(ps), tree.Len())
		require.ElementsMatch(t, ps, tree.Points())

		tree.Walk(func(n *Node, _ int) {
			if n.IsLeaf() {
				require.LessOrEqual(t, dispersion(n.points, geom.AxisZ).stddev, 30.0)
			}
		})
	})

	t.Run("branches only recurse", func(t *testing.T) {
		tree := newScenarioTree(t)
		require.True(t, tree.Subdivide())
		require.False(t, tree.Subdivide())
	})

	t.Run("split sending every point to one side is rolled back", func(t *testing.T) {
		// Sides this long overflow every volume and margin cost, so all
		// the points fall back to sub1.
		ps := []geom.Point{
			{X: 0, Y: 0, Z: 1e308},
			{X: -1e308, Y: 0, Z: 0},
			{X: 0, Y: 0, Z: -1e308},
		}

		tree := New(WithMaxDispersion(30))
		for _, p := range ps {
			require.NoError(t, tree.Insert(p))
		}
		require.True(t, math.IsInf(dispersion(tree.Root().points, geom.AxisZ).stddev, 1))

		require.False(t, tree.Subdivide())
		require.True(t, tree.Root().IsLeaf())
		require.Equal(t, ps, tree.Root().Points())
		require.Equal(t, len(ps), tree.Len())

		require.False(t, tree.Subdivide())
		require.True(t, tree.Root().IsLeaf())
	})
}

func TestChooseSubtree(t *testing.T) {
	t.Run("least volume enlargement wins", func(t *testing.T) {
		n := &Node{
			sub1: newLeaf(geom.NewRect(geom.Point{X: 0, Y: 0, Z: 0}, geom.Point{X: 1, Y: 1, Z: 1})),
			sub2: newLeaf(geom.NewRect(geom.Point{X: 5, Y: 5, Z: 5}, geom.Point{X: 6, Y: 6, Z: 6})),
		}
		require.Same(t, n.sub2, chooseSubtree(n, geom.Point{X: 7, Y: 7, Z: 7}))
		require.Same(t, n.sub1, chooseSubtree(n, geom.Point{X: -1, Y: -1, Z: -1}))
	})

	t.Run("flat boxes are separated by margin", func(t *testing.T) {
		n := &Node{
			sub1: newLeaf(geom.PointRect(geom.Point{X: 0, Y: 0, Z: 100})),
			sub2: newLeaf(geom.PointRect(geom.Point{X: 0, Y: 0, Z: 0})),
		}
		require.Same(t, n.sub2, chooseSubtree(n, geom.Point{X: 0, Y: 0, Z: 1}))
		require.Same(t, n.sub1, chooseSubtree(n, geom.Point{X: 0, Y: 0, Z: 99}))
	})

	t.Run("remaining ties go to sub1", func(t *testing.T) {
		n := &Node{
			sub1: newLeaf(geom.PointRect(geom.Point{X: 0, Y: 0, Z: 0})),
			sub2: newLeaf(geom.PointRect(geom.Point{X: 0, Y: 0, Z: 2})),
		}
		require.Same(t, n.sub1, chooseSubtree(n, geom.Point{X: 0, Y: 0, Z: 1}))
	})

	t.Run("overflowing volumes fall back to margin", func(t *testing.T) {
		n := &Node{
			sub1: newLeaf(geom.NewRect(geom.Point{X: 0, Y: 0, Z: 0}, geom.Point{X: 1e110, Y: 1e110, Z: 1e110})),
			sub2: newLeaf(geom.NewRect(geom.Point{X: 2e110, Y: 2e110, Z: 2e110}, geom.Point{X: 3e110, Y: 3e110, Z: 3e110})),
		}
		require.True(t, math.IsInf(n.sub1.mbr.Volume(), 1))
		require.True(t, math.IsInf(n.sub2.mbr.Volume(), 1))

		require.Same(t, n.sub2, chooseSubtree(n, geom.Point{X: 3.5e110, Y: 3.5e110, Z: 3.5e110}))
		require.Same(t, n.sub1, chooseSubtree(n, geom.Point{X: -0.5e110, Y: -0.5e110, Z: -0.5e110}))
	})
}

func TestDispersion(t *testing.T) {
	tree := newScenarioTree(t)
	d := dispersion(tree.Root().points, geom.AxisZ)

	require.Equal(t, 25.75, d.mean)
	require.InDelta(t, 49.5067, d.stddev, 0.001)
	require.Equal(t, geom.Point{X: 100, Y: 100, Z: 100}, d.max)
	require.Equal(t, geom.Point{X: 0, Y: 0, Z: 0}, d.min)
}

func TestTreeResize(t *testing.T) {
	t.Run("tightens every mbr", func(t *testing.T) {
		r := rand.New(rand.NewSource(3))
		tree := New(WithMaxDispersion(20))
		for _, p := range randomPoints(r, 300, 200) {
			require.NoError(t, tree.Insert(p))
		}
		tree.Subdivide()

		for _, p := range tree.Points()[:50] {
			_, err := tree.Delete(p)
			require.NoError(t, err)
		}

		tree.Resize()
		requireTightMBRs(t, tree.Root())
	})

	t.Run("empty leaves get an empty mbr", func(t *testing.T) {
		tree := newScenarioTree(t)
		tree.Subdivide()
		_, err := tree.Delete(geom.Point{X: 100, Y: 100, Z: 100})
		require.NoError(t, err)

		tree.Resize()
		sub1, sub2 := tree.Root().Children()
		require.True(t, sub1.MBR().IsEmpty())
		require.Equal(t, sub2.MBR(), tree.Root().MBR())
	})

	t.Run("recommends a rebuild when unbalanced", func(t *testing.T) {
		tree := newScenarioTree(t)
		tree.Subdivide()
		require.False(t, tree.Resize())

		for i := 0; i < 10; i++ {
			require.NoError(t, tree.Insert(geom.Point{X: 0, Y: 0, Z: float64(i) / 10}))
		}
		require.True(t, tree.Resize())
	})
}

func TestTreeRebuild(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	tree := New(WithMaxDispersion(15))
	ps := randomPoints(r, 250, 300)
	for _, p := range ps {
		require.NoError(t, tree.Insert(p))
	}

	tree.Rebuild()
	require.Equal(t, len(ps), tree.Len())
	require.ElementsMatch(t, ps, tree.Points())
	require.False(t, tree.Root().IsLeaf())
	requireTightMBRs(t, tree.Root())
}

func TestTreeFind(t *testing.T) {
	t.Run("finds the leaf holding the point", func(t *testing.T) {
		tree := newScenarioTree(t)
		tree.Subdivide()

		leaf, err := tree.Find(geom.Point{X: 1, Y: 1, Z: 1})
		require.NoError(t, err)
		require.True(t, leaf.IsLeaf())
		require.Contains(t, leaf.Points(), geom.Point{X: 1, Y: 1, Z: 1})

		_, sub2 := tree.Root().Children()
		require.Same(t, sub2, leaf)
	})

	t.Run("missing point returns a not found error", func(t *testing.T) {
		tree := newScenarioTree(t)
		_, err := tree.Find(geom.Point{X: 3, Y: 3, Z: 3})
		require.Error(t, err)
		require.True(t, errors.IsType(err, ErrTypeNotFound))
		require.False(t, tree.Contains(geom.Point{X: 3, Y: 3, Z: 3}))
	})

	t.Run("empty tree", func(t *testing.T) {
		require.False(t, New().Contains(geom.Point{}))
	})

	t.Run("found right after insertion with and without pruning", func(t *testing.T) {
		for _, pruning := range []bool{true, false} {
			r := rand.New(rand.NewSource(5))
			tree := New(WithMaxDispersion(10), WithFindPruning(pruning))
			require.NoError(t, tree.BulkInsert(randomPoints(r, 100, 100)))

			for _, p := range randomPoints(r, 50, 150) {
				require.NoError(t, tree.Insert(p))
				require.True(t, tree.Contains(p))
			}
		}
	})

	t.Run("invalid point returns an error", func(t *testing.T) {
		_, err := New().Find(geom.Point{X: math.Inf(-1), Y: 0, Z: 0})
		require.Equal(t, ErrTypeInvalidInput, errors.Type(err))
	})
}

func TestTreePointsInRect(t *testing.T) {
	t.Run("scenario query", func(t *testing.T) {
		tree := newScenarioTree(t)
		tree.Subdivide()

		ps, err := tree.PointsInRect(geom.NewRect(geom.Point{X: 0, Y: 0, Z: 0}, geom.Point{X: 1, Y: 1, Z: 1}))
		require.NoError(t, err)
		require.ElementsMatch(t, []geom.Point{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 1, Z: 1}}, ps)
	})

	t.Run("no match returns an empty slice", func(t *testing.T) {
		tree := newScenarioTree(t)
		tree.Subdivide()

		ps, err := tree.PointsInRect(geom.NewRect(geom.Point{X: 40, Y: 40, Z: 40}, geom.Point{X: 50, Y: 50, Z: 50}))
		require.NoError(t, err)
		require.NotNil(t, ps)
		require.Empty(t, ps)

		ps, err = New().PointsInRect(geom.NewRect(geom.Point{}, geom.Point{X: 1, Y: 1, Z: 1}))
		require.NoError(t, err)
		require.NotNil(t, ps)
		require.Empty(t, ps)
	})

	t.Run("matches a brute force scan", func(t *testing.T) {
		r := rand.New(rand.NewSource(99))
		ps := randomPoints(r, 1000, 500)

		tree := New(WithMaxDispersion(25))
		require.NoError(t, tree.BulkInsert(ps[:600]))
		for _, p := range ps[600:] {
			require.NoError(t, tree.Insert(p))
		}
		tree.Subdivide()

		for i := 0; i < 50; i++ {
			box := geom.NewRect(randomPoints(r, 1, 500)[0], randomPoints(r, 1, 500)[0])

			var expected []geom.Point
			for _, p := range ps {
				if box.Contains(p) {
					expected = append(expected, p)
				}
			}

			got, err := tree.PointsInRect(box)
			require.NoError(t, err)
			require.ElementsMatch(t, expected, got)
		}
	})

	t.Run("invalid box returns an error", func(t *testing.T) {
		_, err := New().PointsInRect(geom.Rect{Min: geom.Point{X: math.NaN(), Y: 0, Z: 0}})
		require.Equal(t, ErrTypeInvalidInput, errors.Type(err))
	})
}

func TestScenarioDelete(t *testing.T) {
	tree := newScenarioTree(t)
	tree.Subdivide()

	n, err := tree.Delete(geom.Point{X: 2, Y: 2, Z: 2})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 3, tree.Len())

	_, err = tree.Find(geom.Point{X: 2, Y: 2, Z: 2})
	require.True(t, errors.IsType(err, ErrTypeNotFound))
}

func TestTreeStats(t *testing.T) {
	tree := newScenarioTree(t)
	tree.Subdivide()

	stats := tree.Stats()
	require.Equal(t, Stats{
		Points:   4,
		Leaves:   2,
		Branches: 1,
		Depth:    1,
		MBR:      geom.NewRect(geom.Point{X: 0, Y: 0, Z: 0}, geom.Point{X: 100, Y: 100, Z: 100}),
	}, stats)
}

func TestNodeFormat(t *testing.T) {
	tree := newScenarioTree(t)
	require.Equal(t, "(0.00, 0.00, 0.00)\n(1.00, 1.00, 1.00)\n(2.00, 2.00, 2.00)\n(100.00, 100.00, 100.00)", tree.Root().String())

	tree.Subdivide()
	require.Empty(t, tree.Root().String())
	require.Nil(t, tree.Root().Points())
}

func requireTightMBRs(t *testing.T, n *Node) {
	t.Helper()

	if n.IsLeaf() {
		require.Equal(t, geom.BoundingRect(n.Points()...), n.MBR())
		return
	}

	requireTightMBRs(t, n.sub1)
	requireTightMBRs(t, n.sub2)
	require.Equal(t, n.sub1.MBR().Union(n.sub2.MBR()), n.MBR())
}
