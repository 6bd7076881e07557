package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/revision-warden/internal/core"
	"github.com/sevigo/revision-warden/internal/metrics"
	"github.com/sevigo/revision-warden/internal/storage"
	"github.com/sevigo/revision-warden/internal/stream"
)

type crawlFunc func(ctx context.Context, wiki, root string, maxDepth, maxPages int) (map[string]struct{}, error)

func (f crawlFunc) Crawl(ctx context.Context, wiki, root string, maxDepth, maxPages int) (map[string]struct{}, error) {
	return f(ctx, wiki, root, maxDepth, maxPages)
}

type bufferSource map[string]*stream.Buffer

func (s bufferSource) Since(wiki string, cursor uint64) ([]core.RevisionCandidate, uint64) {
	b, ok := s[wiki]
	if !ok {
		return nil, cursor
	}
	return b.Since(cursor)
}

func titles(ts ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(ts))
	for _, t := range ts {
		m[t] = struct{}{}
	}
	return m
}

var covid = core.FeedDefinition{
	Name:           "covid19",
	Wiki:           "enwiki",
	RootCategory:   "Category:COVID-19",
	MaxDepth:       5,
	MaxPages:       100,
	ScoreThreshold: 0.5,
}

func newEngine(c Crawler, src CandidateSource, store storage.FeedStore, m *metrics.Metrics) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(c, src, store, []core.FeedDefinition{covid}, m, logger)
}

func TestTraverseCategoryTree_FailedRefreshKeepsPreviousScope(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore(storage.EvictionPolicy{})
	m := metrics.Nop()

	s1 := titles("COVID-19 pandemic", "SARS-CoV-2")
	var fail atomic.Bool
	crawler := crawlFunc(func(_ context.Context, wiki, root string, maxDepth, maxPages int) (map[string]struct{}, error) {
		assert.Equal(t, "enwiki", wiki)
		assert.Equal(t, "Category:COVID-19", root)
		assert.Equal(t, 5, maxDepth)
		assert.Equal(t, 100, maxPages)
		if fail.Load() {
			return nil, core.ErrUpstreamUnavailable
		}
		return s1, nil
	})
	e := newEngine(crawler, bufferSource{}, store, m)

	require.NoError(t, e.TraverseCategoryTree(ctx, "covid19", "enwiki", "Category:COVID-19"))

	fail.Store(true)
	err := e.TraverseCategoryTree(ctx, "covid19", "enwiki", "Category:COVID-19")
	require.ErrorIs(t, err, core.ErrPartialCrawl)
	require.ErrorIs(t, err, core.ErrUpstreamUnavailable)

	scope, err := store.Scope(ctx, "covid19")
	require.NoError(t, err)
	assert.Equal(t, s1, scope.MemberTitles)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CrawlRuns.WithLabelValues("covid19", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CrawlRuns.WithLabelValues("covid19", "failed")))
}

func TestTraverseCategoryTree_UnknownFeed(t *testing.T) {
	e := newEngine(crawlFunc(nil), bufferSource{}, storage.NewMemoryStore(storage.EvictionPolicy{}), metrics.Nop())
	err := e.TraverseCategoryTree(context.Background(), "nope", "enwiki", "Category:X")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestPopulateFeedRevisions(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore(storage.EvictionPolicy{})
	buf := stream.NewBuffer(100)
	crawler := crawlFunc(func(context.Context, string, string, int, int) (map[string]struct{}, error) {
		return titles("COVID-19 pandemic"), nil
	})
	e := newEngine(crawler, bufferSource{"enwiki": buf}, store, metrics.Nop())

	now := time.Now()
	buf.Append(core.RevisionCandidate{Wiki: "enwiki", RevisionID: 1, Title: "COVID-19 pandemic", Score: 0.9, Timestamp: now})

	n, err := e.PopulateFeedRevisions(ctx, "covid19", "enwiki")
	require.NoError(t, err)
	assert.Zero(t, n, "no scope yet")

	require.NoError(t, e.TraverseCategoryTree(ctx, "covid19", "enwiki", "Category:COVID-19"))

	buf.Append(core.RevisionCandidate{Wiki: "enwiki", RevisionID: 2, Title: "Unrelated", Score: 0.9, Timestamp: now})
	buf.Append(core.RevisionCandidate{Wiki: "enwiki", RevisionID: 3, Title: "COVID-19 pandemic", Score: 0.5, Timestamp: now})
	buf.Append(core.RevisionCandidate{Wiki: "enwiki", RevisionID: 4, Title: "COVID-19 pandemic", Score: 0.7, Timestamp: now})
	buf.Append(core.RevisionCandidate{Wiki: "enwiki", RevisionID: 1, Title: "COVID-19 pandemic", Score: 0.9, Timestamp: now})

	n, err = e.PopulateFeedRevisions(ctx, "covid19", "enwiki")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = e.PopulateFeedRevisions(ctx, "covid19", "enwiki")
	require.NoError(t, err)
	assert.Zero(t, n, "second run without new candidates changes nothing")

	got, err := store.ListCandidates(ctx, "covid19", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].RevisionID)
	assert.Equal(t, int64(4), got[1].RevisionID)
}

type failingStore struct {
	storage.FeedStore
	fail atomic.Bool
}

func (s *failingStore) InsertCandidates(ctx context.Context, feed string, cs []core.RevisionCandidate) (int, error) {
	if s.fail.Load() {
		return 0, core.ErrPersistenceUnavailable
	}
	return s.FeedStore.InsertCandidates(ctx, feed, cs)
}

func TestPopulateFeedRevisions_RetriesAfterInsertFailure(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{FeedStore: storage.NewMemoryStore(storage.EvictionPolicy{})}
	buf := stream.NewBuffer(10)
	crawler := crawlFunc(func(context.Context, string, string, int, int) (map[string]struct{}, error) {
		return titles("COVID-19 pandemic"), nil
	})
	e := newEngine(crawler, bufferSource{"enwiki": buf}, store, metrics.Nop())
	require.NoError(t, e.TraverseCategoryTree(ctx, "covid19", "enwiki", "Category:COVID-19"))

	buf.Append(core.RevisionCandidate{Wiki: "enwiki", RevisionID: 9, Title: "COVID-19 pandemic", Score: 0.9, Timestamp: time.Now()})

	store.fail.Store(true)
	_, err := e.PopulateFeedRevisions(ctx, "covid19", "enwiki")
	require.True(t, errors.Is(err, core.ErrPersistenceUnavailable))

	store.fail.Store(false)
	n, err := e.PopulateFeedRevisions(ctx, "covid19", "enwiki")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEngine_SerializesSameFeed(t *testing.T) {
	ctx := context.Background()
	var inFlight, maxInFlight atomic.Int32
	crawler := crawlFunc(func(context.Context, string, string, int, int) (map[string]struct{}, error) {
		n := inFlight.Add(1)
		for {
			cur := maxInFlight.Load()
			if n <= cur || maxInFlight.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return titles("A"), nil
	})
	e := newEngine(crawler, bufferSource{}, storage.NewMemoryStore(storage.EvictionPolicy{}), metrics.Nop())

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, e.TraverseCategoryTree(ctx, "covid19", "enwiki", "Category:COVID-19"))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInFlight.Load())
}
