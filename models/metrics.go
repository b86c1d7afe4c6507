package models

import (
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	indexLabel   = "index"
	opLabel      = "op"
	errTypeLabel = "error_type"
)

var (
	indexCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pointtree_index_count",
		Help: "The number of indexes.",
	})

	indexCountTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pointtree_index_count_total",
		Help: "The total number of indexes created.",
	})

	indexPoints = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pointtree_index_points",
		Help: "The number of points stored in an index.",
	}, []string{indexLabel})

	indexOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pointtree_index_ops_total",
		Help: "The number of operations run on an index.",
	}, []string{indexLabel, opLabel})

	indexOpErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pointtree_index_op_errors",
		Help: "The errors that occured while running an index operation.",
	}, []string{indexLabel, opLabel, errTypeLabel})

	indexOpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "pointtree_index_op_latency",
		Help: "The time to run an index operation.",
	}, []string{opLabel})

	indexSplits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pointtree_index_splits_total",
		Help: "The number of subdivisions that split at least one leaf.",
	}, []string{indexLabel})
)

func instrumentAddIndex() {
	indexCount.Inc()
	indexCountTotal.Inc()
}

func instrumentRemoveIndex(name string) {
	indexCount.Dec()
	indexPoints.DeleteLabelValues(name)
}

func instrumentIndexPoints(name string, count int) {
	indexPoints.
		With(prometheus.Labels{indexLabel: name}).
		Set(float64(count))
}

func instrumentSplit(name string) {
	indexSplits.
		With(prometheus.Labels{indexLabel: name}).
		Inc()
}

func instrumentOp(name, op string, f func() error) error {
	start := time.Now()
	err := f()

	indexOps.
		With(prometheus.Labels{indexLabel: name, opLabel: op}).
		Inc()
	indexOpLatency.
		With(prometheus.Labels{opLabel: op}).
		Observe(time.Since(start).Seconds())

	if err != nil {
		indexOpErrors.
			With(prometheus.Labels{
				indexLabel:   name,
				opLabel:      op,
				errTypeLabel: errors.Type(err),
			}).
			Inc()
	}
	return err
}
