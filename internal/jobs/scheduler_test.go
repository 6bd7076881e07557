package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sevigo/revision-warden/internal/core"
)

type fakeEngine struct {
	mu        sync.Mutex
	traversed []string
	populated []string
	failFeed  string
}

func (f *fakeEngine) TraverseCategoryTree(_ context.Context, feed, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.traversed = append(f.traversed, feed)
	if feed == f.failFeed {
		return core.ErrPartialCrawl
	}
	return nil
}

func (f *fakeEngine) PopulateFeedRevisions(_ context.Context, feed, _ string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.populated = append(f.populated, feed)
	if feed == f.failFeed {
		return 0, errors.New("store down")
	}
	return 1, nil
}

var testFeeds = []core.FeedDefinition{
	{Name: "us2020", Wiki: "enwiki", RootCategory: "Category:2020 United States presidential election"},
	{Name: "covid19", Wiki: "enwiki", RootCategory: "Category:COVID-19"},
}

func TestScheduler_FailureDoesNotStopOtherFeeds(t *testing.T) {
	engine := &fakeEngine{failFeed: "us2020"}
	s := NewScheduler(engine, testFeeds, time.Hour, time.Hour, discardLogger())

	s.TraverseAll(context.Background())
	s.PopulateAll(context.Background())

	assert.Equal(t, []string{"us2020", "covid19"}, engine.traversed)
	assert.Equal(t, []string{"us2020", "covid19"}, engine.populated)
}

func TestScheduler_StartRunsImmediatelyAndStops(t *testing.T) {
	engine := &fakeEngine{}
	s := NewScheduler(engine, testFeeds, time.Hour, 0, discardLogger())

	s.Start(context.Background())
	assert.Eventually(t, func() bool {
		engine.mu.Lock()
		defer engine.mu.Unlock()
		return len(engine.traversed) == 2
	}, time.Second, 5*time.Millisecond)
	s.Stop()

	engine.mu.Lock()
	defer engine.mu.Unlock()
	assert.Empty(t, engine.populated, "populate interval 0 disables the job")
}
