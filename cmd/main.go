package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"reflect"
	"syscall"
	"time"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/events"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/aukilabs/pointtree/featureflag"
	pointhttp "github.com/aukilabs/pointtree/http"
	"github.com/aukilabs/pointtree/models"
	"github.com/aukilabs/pointtree/rtree"
	"github.com/aukilabs/pointtree/smoketest"
	pwebsocket "github.com/aukilabs/pointtree/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

var (
	// The pointtree version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "pointtree_info",
		Help:        "Pointtree information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(config{})

type config struct {
	Addr               string        `cli:""        env:"POINTTREE_ADDR"                 help:"Listening address for client connections."`
	AdminAddr          string        `cli:""        env:"POINTTREE_ADMIN_ADDR"           help:"Admin listening address."`
	LogLevel           string        `cli:""        env:"POINTTREE_LOG_LEVEL"            help:"Log level (debug|info|warning|error)."`
	LogIndent          bool          `cli:""        env:"POINTTREE_LOG_INDENT"           help:"Indent logs."`
	ClientIdleTimeout  time.Duration `cli:",hidden" env:"POINTTREE_CLIENT_IDLE_TIMEOUT"  help:"Time until an idle client will be disconnected"`
	LogSummaryInterval time.Duration `cli:",hidden" env:"POINTTREE_LOG_SUMMARY_INTERVAL" help:"The duration between each log summary by connection."`
	ShutdownTimeout    time.Duration `cli:",hidden" env:"POINTTREE_SHUTDOWN_TIMEOUT"     help:"The time given to in-flight requests to complete on shutdown."`
	MaxDispersion      float64       `cli:""        env:"POINTTREE_MAX_DISPERSION"       help:"The vertical standard deviation above which a leaf is split."`
	RebuildRatio       float64       `cli:""        env:"POINTTREE_REBUILD_RATIO"        help:"How many times larger than its sibling a subtree may grow before a rebuild is recommended."`
	Events             eventsConfig  `cli:",hidden" env:"-"                              help:"Event pusher configuration."`
	FeatureFlags       []string      `cli:",hidden" env:"POINTTREE_FEATURE_FLAGS"        help:"Comma separated feature flags"`
	Version            bool          `cli:""        env:"-"                              help:"Show version."`
	Help               bool          `cli:""        env:"-"                              help:"Show help."`
}

type eventsConfig struct {
	Endpoint      string        `cli:",hidden" env:"POINTTREE_EVENTS_ENDPOINT"       help:"Endpoint to where events are pushed."`
	FlushInterval time.Duration `cli:",hidden" env:"POINTTREE_EVENTS_FLUSH_INTERVAL" help:"The duration between each event flush."`
	BatchSize     int           `cli:",hidden" env:"POINTTREE_EVENTS_BATCH_SIZE"     help:"The maximum number of events sent at once."`
	QueueSize     int           `cli:",hidden" env:"POINTTREE_EVENTS_QUEUE_SIZE"     help:"The size of the queue where events are stored."`
}

func main() {
	conf := config{
		Addr:               ":4000",
		AdminAddr:          ":18190",
		LogLevel:           logs.InfoLevel.String(),
		ClientIdleTimeout:  time.Minute * 5,
		LogSummaryInterval: time.Minute,
		ShutdownTimeout:    time.Second * 10,
		MaxDispersion:      rtree.DefaultMaxDispersion,
		RebuildRatio:       rtree.DefaultRebuildRatio,
		Events: eventsConfig{
			FlushInterval: events.DefaultFlushInterval,
			BatchSize:     events.DefaultBatchSize,
			QueueSize:     events.DefaultQueueSize,
		},
	}

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Starts the pointtree server.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := validateConfig(conf); err != nil {
		logs.Fatal(err)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	if conf.Events.Endpoint != "" {
		eventsPusher := events.Pusher{
			Endpoint:      conf.Events.Endpoint,
			FlushInterval: conf.Events.FlushInterval,
			BatchSize:     conf.Events.BatchSize,
			QueueSize:     conf.Events.QueueSize,
			Transport:     metrics.HTTPTransport(http.DefaultTransport),
		}
		go eventsPusher.Start()
		defer eventsPusher.Close()

		eventsLogger := events.Logger{
			Pusher:           &eventsPusher,
			SDKType:          "pointtree",
			SDKVersionFamily: version,
		}
		logs.SetLogger(eventsLogger.Log)
	}

	featureFlags := featureflag.New(conf.FeatureFlags)

	indexes := models.IndexStore{
		MaxDispersion: conf.MaxDispersion,
		RebuildRatio:  conf.RebuildRatio,
		FeatureFlags:  featureFlags,
	}

	featureFlags.IfNotSet(featureflag.FlagDisableDefaultIndex, func() {
		if _, err := indexes.New(models.DefaultIndexName); err != nil {
			logs.Fatal(errors.New("creating default index failed").Wrap(err))
		}
	})

	readinessCheck := func() bool {
		return ctx.Err() == nil
	}

	var service http.ServeMux

	api := pointhttp.IndexAPI{Store: &indexes}
	api.Register(&service)

	service.Handle("/health", pointhttp.HandleWithCORS(http.HandlerFunc(pointhttp.HandleHealthCheck)))
	service.Handle("/ready", pointhttp.HandleWithCORS(pointhttp.HandleReadyCheck(readinessCheck)))
	service.Handle("/version", pointhttp.HandleWithCORS(pointhttp.HandleVersion(version)))
	service.Handle("/smoke-test", smoketest.HandleSmokeTest(ctx, smoketest.Options{
		SendResult: func(ctx context.Context, res smoketest.Results) error {
			logs.WithTag("success", res.Success).
				WithTag("duration", res.Duration).
				Info("smoke test ran")
			return nil
		},
	}))

	service.Handle("/ws", pointhttp.HandleWithCORS(websocket.Server{
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			var h pwebsocket.Handler = &pwebsocket.IndexHandler{
				ClientIdleTimeout: conf.ClientIdleTimeout,
				Indexes:           &indexes,
			}
			h = pwebsocket.HandlerWithLogs(h, conf.LogSummaryInterval)
			h = pwebsocket.HandlerWithMetrics(h, conf.Addr)
			defer h.Close()

			pwebsocket.Handle(ctx, conn, h)
		},
	}))

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", pointhttp.HandleHealthCheck)
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))
	admin.HandleFunc("/ready", pointhttp.HandleReadyCheck(readinessCheck))

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("max_dispersion", conf.MaxDispersion).
		WithTag("rebuild_ratio", conf.RebuildRatio).
		WithTag("feature_flags", conf.FeatureFlags).
		Info("starting pointtree server")

	pointhttp.ListenAndServe(ctx, conf.ShutdownTimeout,
		&http.Server{Addr: conf.Addr, Handler: metrics.HTTPHandler(&service,
			pointhttp.MetricsPathFormatter)},
		&http.Server{Addr: conf.AdminAddr, Handler: &admin},
	)
}

func validateConfig(conf config) error {
	if conf.MaxDispersion <= 0 {
		return errors.New("max dispersion must be positive").
			WithTag("max_dispersion", conf.MaxDispersion)
	}

	if conf.RebuildRatio < 1 {
		return errors.New("rebuild ratio must be at least 1").
			WithTag("rebuild_ratio", conf.RebuildRatio)
	}

	if conf.ClientIdleTimeout <= 0 {
		return errors.New("client idle timeout must be positive").
			WithTag("client_idle_timeout", conf.ClientIdleTimeout)
	}

	if conf.LogSummaryInterval <= 0 {
		return errors.New("log summary interval must be positive").
			WithTag("log_summary_interval", conf.LogSummaryInterval)
	}

	if conf.ShutdownTimeout < 0 {
		return errors.New("shutdown timeout must not be negative").
			WithTag("shutdown_timeout", conf.ShutdownTimeout)
	}

	if conf.Addr == conf.AdminAddr {
		return errors.New("client and admin addresses must differ").
			WithTag("addr", conf.Addr)
	}

	return nil
}
