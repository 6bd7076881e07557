// Package storage persists interactions, feed membership and the revert audit log.
package storage

import (
	"context"
	"iter"
	"time"

	"github.com/sevigo/revision-warden/internal/core"
)

// InteractionStore is the idempotent-upsert log of judgements.
type InteractionStore interface {
	// UpsertJudgement inserts the interaction or, when one already exists for
	// (wiki, revision, reviewer identity), overwrites its judgement and
	// timestamp. Feed and title are kept unless the new value is non-empty.
	// The write is a single atomic statement; concurrent writers for the same
	// key resolve last-writer-wins by commit order.
	UpsertJudgement(ctx context.Context, interaction core.Interaction) (*core.Interaction, error)
	// ListByRevision lazily yields every interaction recorded for a revision,
	// newest first.
	ListByRevision(ctx context.Context, key core.RevisionKey) iter.Seq2[core.Interaction, error]
	// ListInteractions returns interactions matching the filter, newest first.
	ListInteractions(ctx context.Context, filter InteractionFilter) ([]core.Interaction, error)
	// BackfillDefaults fills interactions recorded without a feed or wiki.
	BackfillDefaults(ctx context.Context, feed, wiki string) (BackfillResult, error)
}

// InteractionFilter narrows ListInteractions. Zero fields are ignored.
type InteractionFilter struct {
	Wiki         string
	Feed         string
	WikiUserName string
	Judgement    core.Judgement
	Since        time.Time
	Limit        int
}

// BackfillResult reports how many rows each backfill touched.
type BackfillResult struct {
	FeedFixed int64
	WikiFixed int64
}

// FeedStore holds per-feed candidate membership and the scope defining eligibility.
type FeedStore interface {
	// ReplaceScope atomically swaps the feed's scope for a new snapshot.
	ReplaceScope(ctx context.Context, scope core.FeedScope) error
	// Scope returns the current scope or core.ErrNotFound.
	Scope(ctx context.Context, feed string) (*core.FeedScope, error)
	// InsertCandidates adds candidates not yet present (by wiki and revision id),
	// applies the eviction policy and returns the number of new entries.
	InsertCandidates(ctx context.Context, feed string, candidates []core.RevisionCandidate) (int, error)
	// ListCandidates returns up to limit candidates in insertion order, newest last.
	// A non-positive limit returns all.
	ListCandidates(ctx context.Context, feed string, limit int) ([]core.RevisionCandidate, error)
}

// EvictionPolicy bounds how many candidates a feed retains and for how long.
type EvictionPolicy struct {
	MaxEntries int
	MaxAge     time.Duration
}

// AuditLog records every revert attempt.
type AuditLog interface {
	RecordRevert(ctx context.Context, entry core.RevertAuditEntry) error
	ListReverts(ctx context.Context, key core.RevisionKey) ([]core.RevertAuditEntry, error)
}

// Store aggregates every persistence concern of the service.
type Store interface {
	InteractionStore
	FeedStore
	AuditLog
}
