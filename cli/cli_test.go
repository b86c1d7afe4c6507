package cli

import (
	"bufio"
	"strings"
	"testing"

	"github.com/aukilabs/pointtree/geom"
	"github.com/aukilabs/pointtree/rtree"
	"github.com/fatih/color"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, tree *rtree.Tree, input string) string {
	color.NoColor = true

	var out strings.Builder
	c := NewCli(bufio.NewScanner(strings.NewReader(input)), &out, tree)
	c.Start()
	return out.String()
}

func TestCliScenario(t *testing.T) {
	tree := rtree.New()

	out := run(t, tree, strings.Join([]string{
		"INSERT 0 0 0",
		"insert 1 1 1",
		"INSERT 2 2 2",
		"INSERT 100 100 100",
		"SUB",
		"RESIZE",
		"QUERY 0 0 0 1 1 1",
		"FIND 100 100 100",
		"DEL 2 2 2",
		"FIND 2 2 2",
		"STATS",
		"EXIT",
		"INSERT 5 5 5",
	}, "\n"))

	require.Contains(t, out, "Point Tree CLI")
	require.Contains(t, out, "Inserted (100.00, 100.00, 100.00)")
	require.Contains(t, out, "Split")
	require.Contains(t, out, "2 point(s)")
	require.Contains(t, out, "Found (100.00, 100.00, 100.00) in leaf")
	require.Contains(t, out, "Removed 1 point(s)")
	require.Contains(t, out, "Point not found.")
	require.Contains(t, out, "points=3 leaves=2 branches=1 depth=1")

	// Commands after EXIT are ignored.
	require.Equal(t, 3, tree.Len())
}

func TestCliBulk(t *testing.T) {
	tree := rtree.New()

	out := run(t, tree, "BULK 200\nBULK 50\nDUMP\n")
	require.Contains(t, out, "Inserted 200 random points")
	require.Contains(t, out, "Inserted 50 random points")
	require.Contains(t, out, "leaf")
	require.Equal(t, 250, tree.Len())
}

func TestCliSeedUsesRandomPoint(t *testing.T) {
	color.NoColor = true

	var out strings.Builder
	tree := rtree.New()
	c := NewCli(bufio.NewScanner(strings.NewReader("")), &out, tree)

	var i int
	c.RandomPoint = func() geom.Point {
		i++
		return geom.NewPoint(float64(i), 0, float64(i))
	}

	err := c.Seed(10)
	require.NoError(t, err)
	require.Equal(t, 10, tree.Len())
	require.True(t, tree.Contains(geom.NewPoint(7, 0, 7)))
}

func TestCliUsage(t *testing.T) {
	tree := rtree.New()

	out := run(t, tree, strings.Join([]string{
		"INSERT 1 2",
		"INSERT a b c",
		"BULK",
		"BULK -1",
		"DEL",
		"FIND 1",
		"QUERY 1 2 3",
		"TELEPORT",
		"",
		"REBUILD",
		"HELP",
	}, "\n"))

	require.Contains(t, out, "Usage: INSERT <x> <y> <z>")
	require.Contains(t, out, "Usage: BULK <n>")
	require.Contains(t, out, "Usage: DEL <x> <y> <z>")
	require.Contains(t, out, "Usage: FIND <x> <y> <z>")
	require.Contains(t, out, "Usage: QUERY")
	require.Contains(t, out, `unknown command "teleport"`)
	require.Contains(t, out, "Rebuilt")
	require.Zero(t, tree.Len())
}
