package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/revision-warden/internal/core"
)

func newTestMemoryStore(policy EvictionPolicy, now time.Time) *memoryStore {
	s := NewMemoryStore(policy).(*memoryStore)
	s.now = func() time.Time { return now }
	return s
}

func interaction(reviewer string, j core.Judgement, feed string, at time.Time) core.Interaction {
	return core.Interaction{
		Wiki:             "enwiki",
		RevisionID:       989699374,
		ReviewerIdentity: "user:" + reviewer,
		WikiUserName:     reviewer,
		Judgement:        j,
		Feed:             feed,
		Title:            "COVID-19 pandemic",
		Timestamp:        at,
	}
}

func TestMemoryStore_UpsertJudgement(t *testing.T) {
	ctx := context.Background()
	s := newTestMemoryStore(EvictionPolicy{}, time.Now())
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := s.UpsertJudgement(ctx, interaction("Alice", core.ShouldRevert, "covid19", t0))
	require.NoError(t, err)

	t.Run("overwrites judgement and keeps feed when new feed is empty", func(t *testing.T) {
		stored, err := s.UpsertJudgement(ctx, interaction("Alice", core.LooksGood, "", t0.Add(time.Minute)))
		require.NoError(t, err)
		assert.Equal(t, core.LooksGood, stored.Judgement)
		assert.Equal(t, "covid19", stored.Feed)
		assert.Equal(t, t0.Add(time.Minute), stored.Timestamp)
	})

	t.Run("different reviewer creates a new record", func(t *testing.T) {
		_, err := s.UpsertJudgement(ctx, interaction("Bob", core.NotSure, "us2020", t0.Add(2*time.Minute)))
		require.NoError(t, err)

		var got []core.Interaction
		for i, err := range s.ListByRevision(ctx, core.RevisionKey{Wiki: "enwiki", RevisionID: 989699374}) {
			require.NoError(t, err)
			got = append(got, i)
		}
		require.Len(t, got, 2)
		assert.Equal(t, "Bob", got[0].WikiUserName, "newest first")
		assert.Equal(t, "Alice", got[1].WikiUserName)
	})
}

func TestMemoryStore_ConcurrentUpsertKeepsOneRecord(t *testing.T) {
	ctx := context.Background()
	s := newTestMemoryStore(EvictionPolicy{}, time.Now())
	t0 := time.Now()

	var wg sync.WaitGroup
	for n := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j := core.LooksGood
			if n%2 == 0 {
				j = core.ShouldRevert
			}
			_, err := s.UpsertJudgement(ctx, interaction("Alice", j, "", t0.Add(time.Duration(n)*time.Second)))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.ListInteractions(ctx, InteractionFilter{Wiki: "enwiki"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestMemoryStore_ListInteractionsFilter(t *testing.T) {
	ctx := context.Background()
	s := newTestMemoryStore(EvictionPolicy{}, time.Now())
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for n, name := range []string{"Alice", "Bob", "Carol"} {
		j := core.ShouldRevert
		if name == "Bob" {
			j = core.LooksGood
		}
		_, err := s.UpsertJudgement(ctx, interaction(name, j, "covid19", t0.Add(time.Duration(n)*time.Hour)))
		require.NoError(t, err)
	}

	tests := []struct {
		name   string
		filter InteractionFilter
		want   []string
	}{
		{name: "all", filter: InteractionFilter{}, want: []string{"Carol", "Bob", "Alice"}},
		{name: "by user", filter: InteractionFilter{WikiUserName: "Bob"}, want: []string{"Bob"}},
		{name: "by judgement", filter: InteractionFilter{Judgement: core.ShouldRevert}, want: []string{"Carol", "Alice"}},
		{name: "since", filter: InteractionFilter{Since: t0.Add(time.Hour)}, want: []string{"Carol", "Bob"}},
		{name: "limit", filter: InteractionFilter{Limit: 1}, want: []string{"Carol"}},
		{name: "other feed", filter: InteractionFilter{Feed: "us2020"}, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListInteractions(ctx, tt.filter)
			require.NoError(t, err)
			var names []string
			for _, i := range got {
				names = append(names, i.WikiUserName)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestMemoryStore_BackfillDefaults(t *testing.T) {
	ctx := context.Background()
	s := newTestMemoryStore(EvictionPolicy{}, time.Now())

	legacy := interaction("Alice", core.NotSure, "", time.Now())
	legacy.Wiki = ""
	_, err := s.UpsertJudgement(ctx, legacy)
	require.NoError(t, err)
	_, err = s.UpsertJudgement(ctx, interaction("Bob", core.NotSure, "covid19", time.Now()))
	require.NoError(t, err)

	res, err := s.BackfillDefaults(ctx, "index", "enwiki")
	require.NoError(t, err)
	assert.Equal(t, BackfillResult{FeedFixed: 1, WikiFixed: 1}, res)

	got, err := s.ListInteractions(ctx, InteractionFilter{Feed: "index", Wiki: "enwiki"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Alice", got[0].WikiUserName)
}

func TestMemoryStore_BackfillDefaultsCollision(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		legacyAt  time.Time
		currentAt time.Time
		want      core.Judgement
	}{
		{name: "existing row is newer", legacyAt: t0, currentAt: t0.Add(time.Hour), want: core.ShouldRevert},
		{name: "legacy row is newer", legacyAt: t0.Add(time.Hour), currentAt: t0, want: core.LooksGood},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestMemoryStore(EvictionPolicy{}, t0)
			legacy := interaction("Alice", core.LooksGood, "", tt.legacyAt)
			legacy.Wiki = ""
			_, err := s.UpsertJudgement(ctx, legacy)
			require.NoError(t, err)
			_, err = s.UpsertJudgement(ctx, interaction("Alice", core.ShouldRevert, "covid19", tt.currentAt))
			require.NoError(t, err)

			_, err = s.BackfillDefaults(ctx, "index", "enwiki")
			require.NoError(t, err)

			got, err := s.ListInteractions(ctx, InteractionFilter{})
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "enwiki", got[0].Wiki)
			assert.Equal(t, tt.want, got[0].Judgement)
		})
	}
}

func candidate(rev int64, at time.Time) core.RevisionCandidate {
	return core.RevisionCandidate{
		Wiki:       "enwiki",
		RevisionID: rev,
		Title:      fmt.Sprintf("Page %d", rev),
		Timestamp:  at,
		Score:      0.9,
	}
}

func TestMemoryStore_InsertCandidates(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("deduplicates by revision key", func(t *testing.T) {
		s := newTestMemoryStore(EvictionPolicy{}, now)
		n, err := s.InsertCandidates(ctx, "covid19", []core.RevisionCandidate{candidate(1, now), candidate(2, now), candidate(1, now)})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = s.InsertCandidates(ctx, "covid19", []core.RevisionCandidate{candidate(2, now), candidate(3, now)})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		got, err := s.ListCandidates(ctx, "covid19", 0)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, []int64{1, 2, 3}, []int64{got[0].RevisionID, got[1].RevisionID, got[2].RevisionID})
	})

	t.Run("feeds are independent", func(t *testing.T) {
		s := newTestMemoryStore(EvictionPolicy{}, now)
		_, err := s.InsertCandidates(ctx, "covid19", []core.RevisionCandidate{candidate(1, now)})
		require.NoError(t, err)
		n, err := s.InsertCandidates(ctx, "us2020", []core.RevisionCandidate{candidate(1, now)})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("evicts oldest beyond max entries", func(t *testing.T) {
		s := newTestMemoryStore(EvictionPolicy{MaxEntries: 2}, now)
		_, err := s.InsertCandidates(ctx, "covid19", []core.RevisionCandidate{candidate(1, now), candidate(2, now), candidate(3, now)})
		require.NoError(t, err)

		got, err := s.ListCandidates(ctx, "covid19", 0)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, int64(2), got[0].RevisionID)
		assert.Equal(t, int64(3), got[1].RevisionID)
	})

	t.Run("drops candidates older than max age", func(t *testing.T) {
		s := newTestMemoryStore(EvictionPolicy{MaxAge: time.Hour}, now)
		n, err := s.InsertCandidates(ctx, "covid19", []core.RevisionCandidate{candidate(1, now.Add(-2*time.Hour)), candidate(2, now)})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		s.now = func() time.Time { return now.Add(90 * time.Minute) }
		_, err = s.InsertCandidates(ctx, "covid19", []core.RevisionCandidate{candidate(3, now.Add(80*time.Minute))})
		require.NoError(t, err)

		got, err := s.ListCandidates(ctx, "covid19", 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, int64(3), got[0].RevisionID)
	})

	t.Run("limit returns newest tail", func(t *testing.T) {
		s := newTestMemoryStore(EvictionPolicy{}, now)
		_, err := s.InsertCandidates(ctx, "covid19", []core.RevisionCandidate{candidate(1, now), candidate(2, now), candidate(3, now)})
		require.NoError(t, err)
		got, err := s.ListCandidates(ctx, "covid19", 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, int64(2), got[0].RevisionID)
	})
}

func TestMemoryStore_Scope(t *testing.T) {
	ctx := context.Background()
	s := newTestMemoryStore(EvictionPolicy{}, time.Now())

	_, err := s.Scope(ctx, "covid19")
	require.ErrorIs(t, err, core.ErrNotFound)

	members := map[string]struct{}{"COVID-19 pandemic": {}}
	require.NoError(t, s.ReplaceScope(ctx, core.FeedScope{
		FeedName:     "covid19",
		Wiki:         "enwiki",
		RootCategory: "Category:COVID-19",
		MemberTitles: members,
	}))
	members["Injected"] = struct{}{}

	scope, err := s.Scope(ctx, "covid19")
	require.NoError(t, err)
	assert.True(t, scope.Contains("COVID-19_pandemic"))
	assert.False(t, scope.Contains("Injected"), "stored scope must not alias caller map")
}

func TestMemoryStore_Audit(t *testing.T) {
	ctx := context.Background()
	s := newTestMemoryStore(EvictionPolicy{}, time.Now())
	key := core.RevisionKey{Wiki: "enwiki", RevisionID: 42}

	require.NoError(t, s.RecordRevert(ctx, core.RevertAuditEntry{ID: "a", Wiki: "enwiki", RevisionID: 42, State: core.RevertRequested}))
	require.NoError(t, s.RecordRevert(ctx, core.RevertAuditEntry{ID: "b", Wiki: "enwiki", RevisionID: 42, State: core.RevertSucceeded}))
	require.NoError(t, s.RecordRevert(ctx, core.RevertAuditEntry{ID: "c", Wiki: "frwiki", RevisionID: 42, State: core.RevertFailed}))

	got, err := s.ListReverts(ctx, key)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, core.RevertSucceeded, got[1].State)
}
