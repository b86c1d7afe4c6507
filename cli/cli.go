// Package cli is an interactive shell over a single point tree.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/pointtree/geom"
	"github.com/aukilabs/pointtree/rtree"
	"github.com/fatih/color"
	"github.com/go-faker/faker/v4"
)

var (
	success = color.New(color.FgGreen).SprintFunc()
	failure = color.New(color.FgRed).SprintFunc()
	warning = color.New(color.FgYellow).SprintFunc()
	heading = color.New(color.FgCyan, color.Bold).SprintFunc()
	faint   = color.New(color.Faint).SprintFunc()
)

type Cli struct {
	scanner *bufio.Scanner
	out     io.Writer
	tree    *rtree.Tree

	// Generates the points added by BULK.
	RandomPoint func() geom.Point
}

func NewCli(s *bufio.Scanner, out io.Writer, t *rtree.Tree) *Cli {
	return &Cli{
		scanner:     s,
		out:         out,
		tree:        t,
		RandomPoint: RandomPoint,
	}
}

// RandomPoint returns a point with a random longitude as X and random
// latitudes as Y and Z.
func RandomPoint() geom.Point {
	return geom.NewPoint(faker.Longitude(), faker.Latitude(), faker.Latitude())
}

// Start reads commands until EXIT or the end of the input.
func (c *Cli) Start() {
	c.printHelp()
	c.printPrompt()
	for c.scanner.Scan() {
		if !c.ProcessInput(c.scanner.Text()) {
			return
		}
		c.printPrompt()
	}
}

// Seed adds n random points to the tree.
func (c *Cli) Seed(n int) error {
	ps := make([]geom.Point, n)
	for i := range ps {
		ps[i] = c.RandomPoint()
	}

	if c.tree.Root().IsLeaf() {
		return c.tree.BulkInsert(ps)
	}

	for _, p := range ps {
		if err := c.tree.Insert(p); err != nil {
			return err
		}
	}
	c.tree.Subdivide()
	c.tree.Resize()
	return nil
}

func (c *Cli) printHelp() {
	fmt.Fprintln(c.out, heading("\nPoint Tree CLI"))
	fmt.Fprintln(c.out, `
Available Commands:
  INSERT <x> <y> <z>                Insert a point
  BULK <n>                          Insert n random points
  DEL <x> <y> <z>                   Remove every copy of a point
  FIND <x> <y> <z>                  Show the leaf holding a point
  QUERY <x1> <y1> <z1> <x2> <y2> <z2> List the points inside a box
  SUB                               Split the leaves that are too dispersed
  RESIZE                            Tighten the bounding boxes
  REBUILD                           Reload all the points into a fresh tree
  STATS                             Show the shape of the tree
  DUMP                              Print the tree
  HELP                              Show this message
  EXIT                              Terminate this session`)
}

func (c *Cli) printPrompt() {
	fmt.Fprint(c.out, "> ")
}

// ProcessInput runs a command line and reports whether the session goes
// on.
func (c *Cli) ProcessInput(line string) bool {
	fields := strings.Fields(line)
	if len(fields) < 1 {
		return true
	}

	command := strings.ToLower(fields[0])
	args := fields[1:]

	switch command {
	default:
		c.printError(errors.Newf("unknown command %q", command))
	case "insert":
		c.processInsertCommand(args)
	case "bulk":
		c.processBulkCommand(args)
	case "del":
		c.processDeleteCommand(args)
	case "find":
		c.processFindCommand(args)
	case "query":
		c.processQueryCommand(args)
	case "sub":
		c.processSubdivideCommand()
	case "resize":
		c.processResizeCommand()
	case "rebuild":
		c.processRebuildCommand()
	case "stats":
		c.printStats()
	case "dump":
		c.processDumpCommand()
	case "help":
		c.printHelp()
	case "exit":
		return false
	}
	return true
}

func (c *Cli) processInsertCommand(args []string) {
	p, err := parsePoint(args)
	if err != nil {
		fmt.Fprintln(c.out, "Usage: INSERT <x> <y> <z>")
		return
	}

	if err := c.tree.Insert(p); err != nil {
		c.printError(err)
		return
	}
	fmt.Fprintln(c.out, success("Inserted"), p)
}

func (c *Cli) processBulkCommand(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: BULK <n>")
		return
	}

	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		fmt.Fprintln(c.out, "Usage: BULK <n>")
		return
	}

	if err := c.Seed(n); err != nil {
		c.printError(err)
		return
	}
	fmt.Fprintln(c.out, success(fmt.Sprintf("Inserted %d random points", n)))
	c.printStats()
}

func (c *Cli) processDeleteCommand(args []string) {
	p, err := parsePoint(args)
	if err != nil {
		fmt.Fprintln(c.out, "Usage: DEL <x> <y> <z>")
		return
	}

	removed, err := c.tree.Delete(p)
	if err != nil {
		c.printError(err)
		return
	}
	if removed == 0 {
		fmt.Fprintln(c.out, warning("Point not found."))
		return
	}
	fmt.Fprintln(c.out, success(fmt.Sprintf("Removed %d point(s)", removed)))
}

func (c *Cli) processFindCommand(args []string) {
	p, err := parsePoint(args)
	if err != nil {
		fmt.Fprintln(c.out, "Usage: FIND <x> <y> <z>")
		return
	}

	leaf, err := c.tree.Find(p)
	if errors.IsType(err, rtree.ErrTypeNotFound) {
		fmt.Fprintln(c.out, warning("Point not found."))
		return
	}
	if err != nil {
		c.printError(err)
		return
	}

	fmt.Fprintln(c.out, success("Found"), p, "in leaf", leaf.MBR(), faint(fmt.Sprintf("(%d points)", leaf.Len())))
	fmt.Fprintln(c.out, leaf)
}

func (c *Cli) processQueryCommand(args []string) {
	if len(args) != 6 {
		fmt.Fprintln(c.out, "Usage: QUERY <x1> <y1> <z1> <x2> <y2> <z2>")
		return
	}

	p1, err1 := parsePoint(args[:3])
	p2, err2 := parsePoint(args[3:])
	if err1 != nil || err2 != nil {
		fmt.Fprintln(c.out, "Usage: QUERY <x1> <y1> <z1> <x2> <y2> <z2>")
		return
	}

	points, err := c.tree.PointsInRect(geom.NewRect(p1, p2))
	if err != nil {
		c.printError(err)
		return
	}

	for _, p := range points {
		fmt.Fprintln(c.out, p)
	}
	fmt.Fprintln(c.out, success(fmt.Sprintf("%d point(s)", len(points))))
}

func (c *Cli) processSubdivideCommand() {
	if c.tree.Subdivide() {
		fmt.Fprintln(c.out, success("Split"))
	} else {
		fmt.Fprintln(c.out, faint("Nothing to split"))
	}
}

func (c *Cli) processResizeCommand() {
	if c.tree.Resize() {
		fmt.Fprintln(c.out, warning("Resized, rebuild recommended"))
	} else {
		fmt.Fprintln(c.out, success("Resized"))
	}
}

func (c *Cli) processRebuildCommand() {
	c.tree.Rebuild()
	fmt.Fprintln(c.out, success("Rebuilt"))
	c.printStats()
}

func (c *Cli) processDumpCommand() {
	c.tree.Walk(func(n *rtree.Node, depth int) {
		indent := strings.Repeat("  ", depth)

		if !n.IsLeaf() {
			fmt.Fprintln(c.out, indent+heading("branch"), n.MBR(), faint(fmt.Sprintf("(%d points)", n.Len())))
			return
		}

		fmt.Fprintln(c.out, indent+success("leaf"), n.MBR(), faint(fmt.Sprintf("(%d points)", n.Len())))
		for _, p := range n.Points() {
			fmt.Fprintln(c.out, indent+"  "+p.String())
		}
	})
}

func (c *Cli) printStats() {
	s := c.tree.Stats()
	fmt.Fprintf(c.out, "points=%d leaves=%d branches=%d depth=%d mbr=%s\n",
		s.Points,
		s.Leaves,
		s.Branches,
		s.Depth,
		s.MBR,
	)
}

func (c *Cli) printError(err error) {
	fmt.Fprintln(c.out, failure("Error:"), err)
}

func parsePoint(args []string) (geom.Point, error) {
	if len(args) != 3 {
		return geom.Point{}, errors.New("a point needs 3 coordinates")
	}

	var coords [3]float64
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return geom.Point{}, errors.New("invalid coordinate").
				WithTag("value", a).
				Wrap(err)
		}
		coords[i] = v
	}
	return geom.NewPoint(coords[0], coords[1], coords[2]), nil
}
