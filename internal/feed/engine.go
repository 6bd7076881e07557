// Package feed keeps topic feeds populated from the scoring stream and scoped
// by their category trees.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sevigo/revision-warden/internal/core"
	"github.com/sevigo/revision-warden/internal/metrics"
	"github.com/sevigo/revision-warden/internal/storage"
)

// Crawler discovers the pages of a category tree.
type Crawler interface {
	Crawl(ctx context.Context, wiki, rootCategory string, maxDepth, maxPages int) (map[string]struct{}, error)
}

// CandidateSource exposes buffered stream candidates through a cursor.
type CandidateSource interface {
	Since(wiki string, cursor uint64) ([]core.RevisionCandidate, uint64)
}

type feedKey struct {
	feed string
	wiki string
}

// Engine refreshes feed scopes and moves qualifying candidates into the feed store.
// Operations on the same (feed, wiki) pair run one at a time.
type Engine struct {
	crawler Crawler
	source  CandidateSource
	store   storage.FeedStore
	feeds   map[string]core.FeedDefinition
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	locksMu sync.Mutex
	locks   map[feedKey]*sync.Mutex

	cursorsMu sync.Mutex
	cursors   map[feedKey]uint64
}

func NewEngine(crawler Crawler, source CandidateSource, store storage.FeedStore, feeds []core.FeedDefinition, m *metrics.Metrics, logger *slog.Logger) *Engine {
	defs := make(map[string]core.FeedDefinition, len(feeds))
	for _, f := range feeds {
		defs[f.Name] = f
	}
	return &Engine{
		crawler: crawler,
		source:  source,
		store:   store,
		feeds:   defs,
		metrics: m,
		logger:  logger.With("component", "feed_engine"),
		now:     time.Now,
		locks:   make(map[feedKey]*sync.Mutex),
		cursors: make(map[feedKey]uint64),
	}
}

// Feed returns the definition of a configured feed.
func (e *Engine) Feed(name string) (core.FeedDefinition, error) {
	def, ok := e.feeds[name]
	if !ok {
		return core.FeedDefinition{}, fmt.Errorf("feed %q: %w", name, core.ErrNotFound)
	}
	return def, nil
}

func (e *Engine) lock(k feedKey) func() {
	e.locksMu.Lock()
	mu, ok := e.locks[k]
	if !ok {
		mu = &sync.Mutex{}
		e.locks[k] = mu
	}
	e.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// TraverseCategoryTree crawls rootCategory and, only if the crawl completes,
// replaces the feed's scope. A failed crawl leaves the previous scope in place
// and returns an error wrapping core.ErrPartialCrawl.
func (e *Engine) TraverseCategoryTree(ctx context.Context, feedName, wiki, rootCategory string) error {
	def, err := e.Feed(feedName)
	if err != nil {
		return err
	}
	unlock := e.lock(feedKey{feed: feedName, wiki: wiki})
	defer unlock()

	log := e.logger.With("feed", feedName, "wiki", wiki, "root", rootCategory)
	start := e.now()
	titles, err := e.crawler.Crawl(ctx, wiki, rootCategory, def.MaxDepth, def.MaxPages)
	e.metrics.CrawlDuration.WithLabelValues(feedName).Observe(time.Since(start).Seconds())
	if err != nil {
		e.metrics.CrawlRuns.WithLabelValues(feedName, "failed").Inc()
		log.Error("category crawl failed, keeping previous scope", "error", err)
		return fmt.Errorf("%w: %w", core.ErrPartialCrawl, err)
	}

	scope := core.FeedScope{
		FeedName:        feedName,
		Wiki:            wiki,
		RootCategory:    rootCategory,
		MemberTitles:    titles,
		LastRefreshedAt: e.now(),
	}
	if err := e.store.ReplaceScope(ctx, scope); err != nil {
		e.metrics.CrawlRuns.WithLabelValues(feedName, "failed").Inc()
		return fmt.Errorf("failed to store scope for %s: %w", feedName, err)
	}
	e.metrics.CrawlRuns.WithLabelValues(feedName, "success").Inc()
	log.Info("feed scope refreshed", "pages", len(titles))
	return nil
}

// PopulateFeedRevisions drains the candidates buffered for wiki since the last
// run and inserts those in scope whose score exceeds the feed threshold. It
// returns the number of newly inserted candidates. The cursor only advances
// after a successful insert, so a failed run is retried by the next one.
func (e *Engine) PopulateFeedRevisions(ctx context.Context, feedName, wiki string) (int, error) {
	def, err := e.Feed(feedName)
	if err != nil {
		return 0, err
	}
	key := feedKey{feed: feedName, wiki: wiki}
	unlock := e.lock(key)
	defer unlock()

	log := e.logger.With("feed", feedName, "wiki", wiki)
	scope, err := e.store.Scope(ctx, feedName)
	if errors.Is(err, core.ErrNotFound) {
		log.Info("feed has no scope yet, skipping population")
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	e.cursorsMu.Lock()
	cursor := e.cursors[key]
	e.cursorsMu.Unlock()

	candidates, next := e.source.Since(wiki, cursor)
	var qualifying []core.RevisionCandidate
	for _, c := range candidates {
		if c.Wiki != wiki || c.Score <= def.ScoreThreshold || !scope.Contains(c.Title) {
			continue
		}
		qualifying = append(qualifying, c)
	}

	inserted := 0
	if len(qualifying) > 0 {
		inserted, err = e.store.InsertCandidates(ctx, feedName, qualifying)
		if err != nil {
			log.Error("failed to insert feed candidates", "error", err)
			return 0, err
		}
	}

	e.cursorsMu.Lock()
	e.cursors[key] = next
	e.cursorsMu.Unlock()

	e.metrics.FeedInserted.WithLabelValues(feedName).Add(float64(inserted))
	log.Debug("feed populated", "drained", len(candidates), "qualifying", len(qualifying), "inserted", inserted)
	return inserted, nil
}
