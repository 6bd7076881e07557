package storage

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/sevigo/revision-warden/internal/core"
)

type interactionKey struct {
	wiki     string
	revision int64
	reviewer string
}

type feedBucket struct {
	mu    sync.RWMutex
	scope *core.FeedScope
	order []core.RevisionCandidate
	index map[core.RevisionKey]struct{}
}

type memoryStore struct {
	mu           sync.RWMutex
	interactions map[interactionKey]core.Interaction

	feedsMu sync.Mutex
	feeds   map[string]*feedBucket

	auditMu sync.Mutex
	audit   []core.RevertAuditEntry

	policy EvictionPolicy
	now    func() time.Time
}

// NewMemoryStore creates a process-local Store used for development and tests.
func NewMemoryStore(policy EvictionPolicy) Store {
	return &memoryStore{
		interactions: make(map[interactionKey]core.Interaction),
		feeds:        make(map[string]*feedBucket),
		policy:       policy,
		now:          time.Now,
	}
}

func (s *memoryStore) UpsertJudgement(_ context.Context, i core.Interaction) (*core.Interaction, error) {
	k := interactionKey{wiki: i.Wiki, revision: i.RevisionID, reviewer: i.ReviewerIdentity}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.interactions[k]; ok {
		existing.Judgement = i.Judgement
		existing.Timestamp = i.Timestamp
		if i.Feed != "" {
			existing.Feed = i.Feed
		}
		if i.Title != "" {
			existing.Title = i.Title
		}
		s.interactions[k] = existing
		return &existing, nil
	}
	s.interactions[k] = i
	return &i, nil
}

func (s *memoryStore) ListByRevision(_ context.Context, key core.RevisionKey) iter.Seq2[core.Interaction, error] {
	s.mu.RLock()
	var matched []core.Interaction
	for k, v := range s.interactions {
		if k.wiki == key.Wiki && k.revision == key.RevisionID {
			matched = append(matched, v)
		}
	}
	s.mu.RUnlock()
	sortNewestFirst(matched)

	return func(yield func(core.Interaction, error) bool) {
		for _, i := range matched {
			if !yield(i, nil) {
				return
			}
		}
	}
}

func (s *memoryStore) ListInteractions(_ context.Context, f InteractionFilter) ([]core.Interaction, error) {
	s.mu.RLock()
	var out []core.Interaction
	for _, i := range s.interactions {
		if f.Wiki != "" && i.Wiki != f.Wiki {
			continue
		}
		if f.Feed != "" && i.Feed != f.Feed {
			continue
		}
		if f.WikiUserName != "" && i.WikiUserName != f.WikiUserName {
			continue
		}
		if f.Judgement != "" && i.Judgement != f.Judgement {
			continue
		}
		if !f.Since.IsZero() && i.Timestamp.Before(f.Since) {
			continue
		}
		out = append(out, i)
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// BackfillDefaults fills missing feed and wiki. A legacy row whose new key
// collides with an existing row is merged; the later judgement wins.
func (s *memoryStore) BackfillDefaults(_ context.Context, feed, wiki string) (BackfillResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res BackfillResult
	for _, k := range slices.Collect(maps.Keys(s.interactions)) {
		i, ok := s.interactions[k]
		if !ok {
			continue
		}
		if i.Feed == "" {
			i.Feed = feed
			res.FeedFixed++
		}
		s.interactions[k] = i
		if i.Wiki != "" {
			continue
		}

		res.WikiFixed++
		delete(s.interactions, k)
		i.Wiki = wiki
		k.wiki = wiki
		if existing, ok := s.interactions[k]; ok && !i.Timestamp.After(existing.Timestamp) {
			continue
		}
		s.interactions[k] = i
	}
	return res, nil
}

func (s *memoryStore) bucket(feed string) *feedBucket {
	s.feedsMu.Lock()
	defer s.feedsMu.Unlock()
	b, ok := s.feeds[feed]
	if !ok {
		b = &feedBucket{index: make(map[core.RevisionKey]struct{})}
		s.feeds[feed] = b
	}
	return b
}

// ReplaceScope stores a private copy so later mutation by the caller cannot
// leak into concurrent readers.
func (s *memoryStore) ReplaceScope(_ context.Context, scope core.FeedScope) error {
	snapshot := scope
	snapshot.MemberTitles = maps.Clone(scope.MemberTitles)
	if snapshot.MemberTitles == nil {
		snapshot.MemberTitles = map[string]struct{}{}
	}

	b := s.bucket(scope.FeedName)
	b.mu.Lock()
	b.scope = &snapshot
	b.mu.Unlock()
	return nil
}

// Scope returns the shared snapshot. Callers must treat it as read-only.
func (s *memoryStore) Scope(_ context.Context, feed string) (*core.FeedScope, error) {
	b := s.bucket(feed)
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.scope == nil {
		return nil, fmt.Errorf("scope for feed %s: %w", feed, core.ErrNotFound)
	}
	return b.scope, nil
}

func (s *memoryStore) InsertCandidates(_ context.Context, feed string, candidates []core.RevisionCandidate) (int, error) {
	b := s.bucket(feed)
	b.mu.Lock()
	defer b.mu.Unlock()

	var cutoff time.Time
	if s.policy.MaxAge > 0 {
		cutoff = s.now().Add(-s.policy.MaxAge)
	}

	inserted := 0
	for _, c := range candidates {
		if !cutoff.IsZero() && c.Timestamp.Before(cutoff) {
			continue
		}
		k := c.Key()
		if _, dup := b.index[k]; dup {
			continue
		}
		b.index[k] = struct{}{}
		b.order = append(b.order, c)
		inserted++
	}
	b.evict(cutoff, s.policy.MaxEntries)
	return inserted, nil
}

func (b *feedBucket) evict(cutoff time.Time, maxEntries int) {
	kept := b.order[:0]
	for _, c := range b.order {
		if !cutoff.IsZero() && c.Timestamp.Before(cutoff) {
			delete(b.index, c.Key())
			continue
		}
		kept = append(kept, c)
	}
	b.order = kept

	if maxEntries > 0 && len(b.order) > maxEntries {
		drop := len(b.order) - maxEntries
		for _, c := range b.order[:drop] {
			delete(b.index, c.Key())
		}
		b.order = slices.Clone(b.order[drop:])
	}
}

func (s *memoryStore) ListCandidates(_ context.Context, feed string, limit int) ([]core.RevisionCandidate, error) {
	b := s.bucket(feed)
	b.mu.RLock()
	defer b.mu.RUnlock()

	start := 0
	if limit > 0 && len(b.order) > limit {
		start = len(b.order) - limit
	}
	return slices.Clone(b.order[start:]), nil
}

func (s *memoryStore) RecordRevert(_ context.Context, e core.RevertAuditEntry) error {
	s.auditMu.Lock()
	s.audit = append(s.audit, e)
	s.auditMu.Unlock()
	return nil
}

func (s *memoryStore) ListReverts(_ context.Context, key core.RevisionKey) ([]core.RevertAuditEntry, error) {
	s.auditMu.Lock()
	defer s.auditMu.Unlock()
	var out []core.RevertAuditEntry
	for _, e := range s.audit {
		if e.Wiki == key.Wiki && e.RevisionID == key.RevisionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func sortNewestFirst(in []core.Interaction) {
	slices.SortFunc(in, func(a, b core.Interaction) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
}
