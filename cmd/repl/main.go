package main

import (
	"bufio"
	"fmt"
	"os"
	"reflect"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	pointcli "github.com/aukilabs/pointtree/cli"
	"github.com/aukilabs/pointtree/rtree"
	"github.com/segmentio/encoding/json"
)

var _ = reflect.TypeOf(config{})

type config struct {
	MaxDispersion float64 `cli:"" env:"POINTTREE_MAX_DISPERSION" help:"The vertical standard deviation above which a leaf is split."`
	RebuildRatio  float64 `cli:"" env:"POINTTREE_REBUILD_RATIO"  help:"How many times larger than its sibling a subtree may grow before a rebuild is recommended."`
	Seed          int     `cli:"" env:"POINTTREE_REPL_SEED"      help:"The number of random points inserted at startup."`
	LogLevel      string  `cli:"" env:"POINTTREE_LOG_LEVEL"      help:"Log level (debug|info|warning|error)."`
	Help          bool    `cli:"" env:"-"                        help:"Show help."`
}

func main() {
	conf := config{
		MaxDispersion: rtree.DefaultMaxDispersion,
		RebuildRatio:  rtree.DefaultRebuildRatio,
		LogLevel:      "warning",
	}

	cli.Register().
		Help("Starts an interactive shell over a point tree.").
		Options(&conf)
	cli.Load()

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.SetInlineEncoder()
	errors.Encoder = json.Marshal

	tree := rtree.New(
		rtree.WithMaxDispersion(conf.MaxDispersion),
		rtree.WithRebuildRatio(conf.RebuildRatio),
	)

	shell := pointcli.NewCli(bufio.NewScanner(os.Stdin), os.Stdout, tree)
	if conf.Seed > 0 {
		if err := shell.Seed(conf.Seed); err != nil {
			logs.Fatal(errors.New("seeding tree failed").Wrap(err))
		}
		fmt.Printf("Seeded %d random points\n", conf.Seed)
	}

	shell.Start()
}
