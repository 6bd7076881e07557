package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sevigo/revision-warden/internal/core"
)

// FeedEngine is the part of the feed engine driven by the scheduler.
type FeedEngine interface {
	TraverseCategoryTree(ctx context.Context, feedName, wiki, rootCategory string) error
	PopulateFeedRevisions(ctx context.Context, feedName, wiki string) (int, error)
}

// Scheduler periodically refreshes feed scopes and populates feeds. Feeds are
// processed one after another, as two tickers on independent goroutines.
type Scheduler struct {
	engine           FeedEngine
	feeds            []core.FeedDefinition
	traverseInterval time.Duration
	populateInterval time.Duration
	logger           *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(engine FeedEngine, feeds []core.FeedDefinition, traverseInterval, populateInterval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		engine:           engine,
		feeds:            feeds,
		traverseInterval: traverseInterval,
		populateInterval: populateInterval,
		logger:           logger.With("component", "scheduler"),
	}
}

// Start runs both jobs once immediately and then on their intervals. A
// non-positive interval disables that job. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)

	s.every(ctx, "traverse", s.traverseInterval, s.TraverseAll)
	s.every(ctx, "populate", s.populateInterval, s.PopulateAll)
}

func (s *Scheduler) every(ctx context.Context, name string, interval time.Duration, job func(context.Context)) {
	if interval <= 0 {
		s.logger.Info("scheduled job disabled", "job", name)
		return
	}
	s.logger.Info("scheduling job", "job", name, "interval", interval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		job(ctx)
		for {
			select {
			case <-ticker.C:
				job(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// TraverseAll refreshes the scope of every feed. Failures are logged; the
// previous scope of a failed feed stays in effect.
func (s *Scheduler) TraverseAll(ctx context.Context) {
	s.logger.Info("start traversing category trees")
	for _, f := range s.feeds {
		if ctx.Err() != nil {
			return
		}
		if err := s.engine.TraverseCategoryTree(ctx, f.Name, f.Wiki, f.RootCategory); err != nil {
			s.logger.Warn("category traversal failed", "feed", f.Name, "wiki", f.Wiki, "error", err)
		}
	}
	s.logger.Info("done traversing category trees")
}

// PopulateAll populates every feed from the buffered stream candidates.
func (s *Scheduler) PopulateAll(ctx context.Context) {
	for _, f := range s.feeds {
		if ctx.Err() != nil {
			return
		}
		n, err := s.engine.PopulateFeedRevisions(ctx, f.Name, f.Wiki)
		if err != nil {
			s.logger.Warn("feed population failed", "feed", f.Name, "wiki", f.Wiki, "error", err)
			continue
		}
		if n > 0 {
			s.logger.Info("feed populated", "feed", f.Name, "wiki", f.Wiki, "inserted", n)
		}
	}
}

// Stop cancels the tickers and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
}
