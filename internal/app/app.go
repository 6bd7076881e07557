// Package app initializes and orchestrates the main components of Revision Warden.
// It wires together the configuration, stores, background jobs and the HTTP server.
package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/sevigo/revision-warden/internal/config"
	"github.com/sevigo/revision-warden/internal/feed"
	"github.com/sevigo/revision-warden/internal/jobs"
	"github.com/sevigo/revision-warden/internal/judgement"
	"github.com/sevigo/revision-warden/internal/revert"
	"github.com/sevigo/revision-warden/internal/server"
	"github.com/sevigo/revision-warden/internal/storage"
	"github.com/sevigo/revision-warden/internal/stream"
)

// App holds the main application components. The exported fields are used by
// the CLI to drive single operations without starting the server.
type App struct {
	Cfg        *config.Config
	Store      storage.Store
	Engine     *feed.Engine
	Ingestor   *stream.Ingestor
	Judgements *judgement.Service
	Reverter   *revert.Actuator
	Dispatcher jobs.Dispatcher
	Scheduler  *jobs.Scheduler

	server *server.Server
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewApp assembles the application from its already constructed parts.
func NewApp(
	cfg *config.Config,
	store storage.Store,
	engine *feed.Engine,
	ingestor *stream.Ingestor,
	judgements *judgement.Service,
	reverter *revert.Actuator,
	dispatcher jobs.Dispatcher,
	scheduler *jobs.Scheduler,
	srv *server.Server,
	logger *slog.Logger,
) *App {
	return &App{
		Cfg:        cfg,
		Store:      store,
		Engine:     engine,
		Ingestor:   ingestor,
		Judgements: judgements,
		Reverter:   reverter,
		Dispatcher: dispatcher,
		Scheduler:  scheduler,
		server:     srv,
		logger:     logger,
	}
}

// Start runs the stream ingestor (when enabled), the feed scheduler and the
// HTTP server. It blocks until the server stops.
func (a *App) Start(ctx context.Context) error {
	a.logger.Info("starting Revision Warden",
		"server_port", a.Cfg.Server.Port,
		"database", a.Cfg.Database.Driver,
		"feeds", len(a.Cfg.Feeds),
		"stream_enabled", a.Cfg.Stream.Enabled,
		"hook_workers", a.Cfg.Hooks.Workers)

	a.mu.Lock()
	ctx, a.cancel = context.WithCancel(ctx)
	a.mu.Unlock()

	if a.Cfg.Stream.Enabled {
		wikis := a.Cfg.StreamWikis()
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.Ingestor.Run(ctx, wikis); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("stream ingestor stopped", "error", err)
			}
		}()
	}
	a.Scheduler.Start(ctx)

	if err := a.server.Start(); err != nil {
		a.logger.Error("failed to start HTTP server", "error", err)
		return err
	}
	return nil
}

// Stop shuts down the application cleanly.
func (a *App) Stop() error {
	a.logger.Info("shutting down Revision Warden services")

	// Stop the HTTP server first to prevent new judgements.
	serverErr := a.server.Stop()
	if serverErr != nil {
		a.logger.Error("error during HTTP server shutdown", "error", serverErr)
	}

	a.Scheduler.Stop()
	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
	}
	a.mu.Unlock()
	a.wg.Wait()

	// Let queued hooks finish.
	a.Dispatcher.Stop()

	if serverErr != nil {
		a.logger.Error("Revision Warden stopped with errors", "error", serverErr)
		return serverErr
	}
	a.logger.Info("Revision Warden stopped successfully")
	return nil
}
