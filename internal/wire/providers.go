package wire

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sevigo/revision-warden/internal/app"
	"github.com/sevigo/revision-warden/internal/checkpoint"
	"github.com/sevigo/revision-warden/internal/config"
	"github.com/sevigo/revision-warden/internal/core"
	"github.com/sevigo/revision-warden/internal/crawler"
	"github.com/sevigo/revision-warden/internal/db"
	"github.com/sevigo/revision-warden/internal/feed"
	"github.com/sevigo/revision-warden/internal/hooks"
	"github.com/sevigo/revision-warden/internal/jobs"
	"github.com/sevigo/revision-warden/internal/judgement"
	"github.com/sevigo/revision-warden/internal/logger"
	"github.com/sevigo/revision-warden/internal/metrics"
	"github.com/sevigo/revision-warden/internal/revert"
	"github.com/sevigo/revision-warden/internal/server"
	"github.com/sevigo/revision-warden/internal/storage"
	"github.com/sevigo/revision-warden/internal/stream"
	"github.com/sevigo/revision-warden/internal/wiki"
)

var AppSet = wire.NewSet(
	app.NewApp,
	server.NewServer,
	config.LoadConfig,
	judgement.NewService,
	hooks.NewRegistryFromConfig,
	provideLogWriter,
	provideSlogLogger,
	provideRegistry,
	provideMetrics,
	provideStore,
	provideWikiClient,
	provideCrawler,
	provideCheckpoints,
	provideTransport,
	provideIngestor,
	provideEngine,
	provideDispatcher,
	provideReverter,
	provideScheduler,
	provideRouter,
	wire.Bind(new(prometheus.Gatherer), new(*prometheus.Registry)),
	wire.Bind(new(storage.InteractionStore), new(storage.Store)),
	wire.Bind(new(core.HookDispatcher), new(jobs.Dispatcher)),
)

func provideLogWriter(cfg *config.Config) io.Writer {
	return logger.OutputFor(cfg.Logging)
}

func provideSlogLogger(cfg *config.Config, writer io.Writer) *slog.Logger {
	l := logger.NewLogger(cfg.Logging, writer)
	slog.SetDefault(l)
	return l
}

func provideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func provideMetrics(reg *prometheus.Registry) *metrics.Metrics {
	return metrics.New(reg)
}

// provideStore opens the backend selected by database.driver. Postgres also
// applies pending migrations.
func provideStore(cfg *config.Config, logger *slog.Logger) (storage.Store, func(), error) {
	policy := storage.EvictionPolicy{
		MaxEntries: cfg.FeedStore.MaxEntries,
		MaxAge:     cfg.FeedStore.MaxAge,
	}
	switch cfg.Database.Driver {
	case "memory":
		logger.Warn("using in-memory store, judgements are lost on restart")
		return storage.NewMemoryStore(policy), func() {}, nil
	case "postgres":
		conn, cleanup, err := db.NewDatabase(&cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewStore(conn.DB, policy), cleanup, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}
}

func provideWikiClient(cfg *config.Config, logger *slog.Logger) wiki.Client {
	return wiki.NewClient(cfg.Wiki, logger)
}

func provideCrawler(client wiki.Client, cfg *config.Config, logger *slog.Logger) *crawler.Crawler {
	return crawler.New(client, cfg.Crawler, logger)
}

func provideCheckpoints(cfg *config.Config, logger *slog.Logger) (checkpoint.Store, func(), error) {
	store, err := checkpoint.Open(cfg.Stream.CheckpointPath, logger)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close checkpoint store", "error", err)
		}
	}, nil
}

func provideTransport(cfg *config.Config) (stream.Transport, error) {
	return stream.NewTransport(cfg.Stream, cfg.Wiki.UserAgent)
}

func provideIngestor(transport stream.Transport, checkpoints checkpoint.Store, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) *stream.Ingestor {
	return stream.NewIngestor(transport, checkpoints, cfg.Stream, m, logger)
}

func provideEngine(c *crawler.Crawler, ingestor *stream.Ingestor, store storage.Store, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) *feed.Engine {
	return feed.NewEngine(c, ingestor, store, cfg.Feeds, m, logger)
}

// provideDispatcher starts the hook workers. The cleanup drains the queue.
func provideDispatcher(registry *hooks.Registry, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (jobs.Dispatcher, func()) {
	d := jobs.NewDispatcher(registry, cfg.Hooks.Workers, cfg.Hooks.QueueSize, cfg.Hooks.Timeout, m, logger)
	return d, d.Stop
}

func provideReverter(client wiki.Client, store storage.Store, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) *revert.Actuator {
	return revert.NewActuator(client, store, cfg.Revert, cfg.Server.PublicHost, m, logger)
}

func provideScheduler(engine *feed.Engine, cfg *config.Config, logger *slog.Logger) *jobs.Scheduler {
	return jobs.NewScheduler(engine, cfg.Feeds, cfg.Schedule.TraverseInterval, cfg.Schedule.PopulateInterval, logger)
}

func provideRouter(judgements *judgement.Service, reverter *revert.Actuator, store storage.Store, reg *prometheus.Registry, logger *slog.Logger) http.Handler {
	return server.NewRouter(server.Dependencies{
		Judgements: judgements,
		Reverter:   reverter,
		Feeds:      store,
		Gatherer:   reg,
	}, logger)
}
