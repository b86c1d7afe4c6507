// Package smoketest checks that a point index behaves as expected by
// running a known scenario against a throwaway index.
package smoketest

import (
	"context"
	"net/http"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/pointtree/geom"
	"github.com/aukilabs/pointtree/models"
	"github.com/aukilabs/pointtree/rtree"
	"github.com/segmentio/encoding/json"
)

const ErrTypeSmokeTestFailed = "smoke_test_failed"

// The dispersion threshold of the throwaway index. The scenario points
// spread about 49.5 along z, so they are split whatever threshold the
// served indexes use.
const maxDispersion = 30

type Options struct {
	// Called with the results of each run when set.
	SendResult func(context.Context, Results) error
}

// Results reports a smoke test run.
type Results struct {
	Success  bool          `json:"success"`
	Duration time.Duration `json:"duration"`
	Steps    []StepResult  `json:"steps"`
}

// StepResult reports a step of a smoke test run.
type StepResult struct {
	Name     string        `json:"name"`
	Success  bool          `json:"success"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

type step struct {
	name string
	run  func(*models.Index) error
}

var (
	origin = geom.NewPoint(0, 0, 0)
	one    = geom.NewPoint(1, 1, 1)
	two    = geom.NewPoint(2, 2, 2)
	far    = geom.NewPoint(100, 100, 100)
)

var steps = []step{
	{name: "insert", run: runInsert},
	{name: "subdivide", run: runSubdivide},
	{name: "query", run: runQuery},
	{name: "delete", run: runDelete},
}

func HandleSmokeTest(ctx context.Context, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := RunSmokeTest(r.Context(), opts)
		if err != nil {
			logs.Warn(err)
		}

		if opts.SendResult != nil {
			if err := opts.SendResult(ctx, res); err != nil {
				logs.Warn(errors.New("sending smoke test result failed").Wrap(err))
			}
		}

		status := http.StatusOK
		if !res.Success {
			status = http.StatusInternalServerError
		}

		b, _ := json.Marshal(res)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write(b)
	}
}

// RunSmokeTest runs the scenario and stops at the first failing step.
func RunSmokeTest(ctx context.Context, opts Options) (Results, error) {
	start := time.Now()
	index := models.NewIndex(0, "smoke-test", rtree.WithMaxDispersion(maxDispersion))
	index.AutoSubdivide = false
	index.AutoResize = false

	res := Results{Success: true}

	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			res.Success = false
			res.Duration = time.Since(start)
			return res, errors.New("smoke test canceled").
				WithType(ErrTypeSmokeTestFailed).
				WithTag("step", s.name).
				Wrap(err)
		}

		stepStart := time.Now()
		err := s.run(index)

		sr := StepResult{
			Name:     s.name,
			Success:  err == nil,
			Duration: time.Since(stepStart),
		}
		if err != nil {
			sr.Error = err.Error()
		}
		res.Steps = append(res.Steps, sr)

		if err != nil {
			res.Success = false
			res.Duration = time.Since(start)
			return res, errors.New("smoke test failed").
				WithType(ErrTypeSmokeTestFailed).
				WithTag("step", s.name).
				Wrap(err)
		}
	}

	res.Duration = time.Since(start)
	logs.WithTag("duration", res.Duration).Debug("smoke test succeeded")
	return res, nil
}

func runInsert(index *models.Index) error {
	if _, err := index.Insert([]geom.Point{origin, one, two, far}); err != nil {
		return err
	}
	if n := index.Len(); n != 4 {
		return errors.Newf("index has %d points instead of 4", n)
	}
	return nil
}

func runSubdivide(index *models.Index) error {
	if !index.Subdivide() {
		return errors.New("leaf was not split")
	}
	index.Resize()

	if stats := index.Stats(); stats.Leaves != 2 {
		return errors.Newf("index has %d leaves instead of 2", stats.Leaves)
	}

	for p, size := range map[geom.Point]int{far: 1, origin: 3} {
		res, err := index.Find(p)
		if err != nil {
			return err
		}
		if !res.Found || res.LeafSize != size {
			return errors.New("unexpected leaf").
				WithTag("point", p.String()).
				WithTag("found", res.Found).
				WithTag("leaf_size", res.LeafSize)
		}
	}
	return nil
}

func runQuery(index *models.Index) error {
	points, err := index.Query(geom.NewRect(origin, one))
	if err != nil {
		return err
	}

	if len(points) != 2 || !containsPoint(points, origin) || !containsPoint(points, one) {
		return errors.New("unexpected query result").
			WithTag("points", points)
	}
	return nil
}

func runDelete(index *models.Index) error {
	removed, err := index.Delete(two)
	if err != nil {
		return err
	}
	if removed != 1 || index.Len() != 3 {
		return errors.New("unexpected delete result").
			WithTag("removed", removed).
			WithTag("points", index.Len())
	}

	res, err := index.Find(two)
	if err != nil {
		return err
	}
	if res.Found {
		return errors.New("deleted point is still found")
	}
	return nil
}

func containsPoint(points []geom.Point, p geom.Point) bool {
	for _, q := range points {
		if q.Equal(p) {
			return true
		}
	}
	return false
}
