package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sevigo/revision-warden/internal/core"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var interactionColumns = []string{
	"wiki", "revision_id", "reviewer_identity", "wiki_user_name",
	"anonymous_id", "judgement", "feed", "title", "judged_at",
}

type postgresStore struct {
	db     *sqlx.DB
	policy EvictionPolicy
	now    func() time.Time
}

// NewStore creates a Postgres backed Store.
func NewStore(db *sqlx.DB, policy EvictionPolicy) Store {
	return &postgresStore{db: db, policy: policy, now: time.Now}
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", core.ErrPersistenceUnavailable, err)
}

// UpsertJudgement relies on ON CONFLICT so the row lock taken by Postgres is the
// single serialization point per key.
func (s *postgresStore) UpsertJudgement(ctx context.Context, i core.Interaction) (*core.Interaction, error) {
	query := `
		INSERT INTO interactions (wiki, revision_id, reviewer_identity, wiki_user_name, anonymous_id, judgement, feed, title, judged_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (wiki, revision_id, reviewer_identity) DO UPDATE SET
			judgement = EXCLUDED.judgement,
			judged_at = EXCLUDED.judged_at,
			feed  = CASE WHEN EXCLUDED.feed  <> '' THEN EXCLUDED.feed  ELSE interactions.feed  END,
			title = CASE WHEN EXCLUDED.title <> '' THEN EXCLUDED.title ELSE interactions.title END
		RETURNING wiki, revision_id, reviewer_identity, wiki_user_name, anonymous_id, judgement, feed, title, judged_at`

	var stored core.Interaction
	err := s.db.GetContext(ctx, &stored, query,
		i.Wiki, i.RevisionID, i.ReviewerIdentity, i.WikiUserName, i.AnonymousID,
		i.Judgement, i.Feed, i.Title, i.Timestamp.UTC())
	if err != nil {
		return nil, unavailable(err)
	}
	return &stored, nil
}

func (s *postgresStore) ListByRevision(ctx context.Context, key core.RevisionKey) iter.Seq2[core.Interaction, error] {
	return func(yield func(core.Interaction, error) bool) {
		query, args, err := psql.Select(interactionColumns...).
			From("interactions").
			Where(sq.Eq{"wiki": key.Wiki, "revision_id": key.RevisionID}).
			OrderBy("judged_at DESC").
			ToSql()
		if err != nil {
			yield(core.Interaction{}, fmt.Errorf("build query: %w", err))
			return
		}

		rows, err := s.db.QueryxContext(ctx, query, args...)
		if err != nil {
			yield(core.Interaction{}, unavailable(err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var i core.Interaction
			if err := rows.StructScan(&i); err != nil {
				yield(core.Interaction{}, fmt.Errorf("scan interaction: %w", err))
				return
			}
			if !yield(i, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(core.Interaction{}, unavailable(err))
		}
	}
}

func (s *postgresStore) ListInteractions(ctx context.Context, f InteractionFilter) ([]core.Interaction, error) {
	builder := psql.Select(interactionColumns...).From("interactions").OrderBy("judged_at DESC")
	if f.Wiki != "" {
		builder = builder.Where(sq.Eq{"wiki": f.Wiki})
	}
	if f.Feed != "" {
		builder = builder.Where(sq.Eq{"feed": f.Feed})
	}
	if f.WikiUserName != "" {
		builder = builder.Where(sq.Eq{"wiki_user_name": f.WikiUserName})
	}
	if f.Judgement != "" {
		builder = builder.Where(sq.Eq{"judgement": string(f.Judgement)})
	}
	if !f.Since.IsZero() {
		builder = builder.Where(sq.GtOrEq{"judged_at": f.Since.UTC()})
	}
	if f.Limit > 0 {
		builder = builder.Limit(uint64(f.Limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var out []core.Interaction
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

// BackfillDefaults fills missing feed and wiki in one transaction. A legacy
// row whose new key collides with an existing row is merged; the later
// judgement wins.
func (s *postgresStore) BackfillDefaults(ctx context.Context, feed, wiki string) (BackfillResult, error) {
	var res BackfillResult

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return res, unavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	feedQuery, feedArgs, err := psql.Update("interactions").Set("feed", feed).Where(sq.Eq{"feed": ""}).ToSql()
	if err != nil {
		return res, fmt.Errorf("build query: %w", err)
	}
	r, err := tx.ExecContext(ctx, feedQuery, feedArgs...)
	if err != nil {
		return res, unavailable(err)
	}
	res.FeedFixed, _ = r.RowsAffected()

	if err := tx.GetContext(ctx, &res.WikiFixed, `SELECT count(*) FROM interactions WHERE wiki = ''`); err != nil {
		return res, unavailable(err)
	}

	// Of each colliding pair the older row goes.
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM interactions l
		WHERE l.wiki = '' AND EXISTS (
			SELECT 1 FROM interactions j
			WHERE j.wiki = $1 AND j.revision_id = l.revision_id
				AND j.reviewer_identity = l.reviewer_identity AND j.judged_at >= l.judged_at)`, wiki); err != nil {
		return res, unavailable(err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM interactions j
		WHERE j.wiki = $1 AND EXISTS (
			SELECT 1 FROM interactions l
			WHERE l.wiki = '' AND l.revision_id = j.revision_id
				AND l.reviewer_identity = j.reviewer_identity AND l.judged_at > j.judged_at)`, wiki); err != nil {
		return res, unavailable(err)
	}

	wikiQuery, wikiArgs, err := psql.Update("interactions").Set("wiki", wiki).Where(sq.Eq{"wiki": ""}).ToSql()
	if err != nil {
		return res, fmt.Errorf("build query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, wikiQuery, wikiArgs...); err != nil {
		return res, unavailable(err)
	}
	if err := tx.Commit(); err != nil {
		return res, unavailable(err)
	}
	return res, nil
}

// ReplaceScope is a single upsert statement, so readers see either the old or
// the new title set.
func (s *postgresStore) ReplaceScope(ctx context.Context, scope core.FeedScope) error {
	titles := make([]string, 0, len(scope.MemberTitles))
	for t := range scope.MemberTitles {
		titles = append(titles, t)
	}
	query := `
		INSERT INTO feed_scopes (feed, wiki, root_category, member_titles, last_refreshed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (feed) DO UPDATE SET
			wiki = EXCLUDED.wiki,
			root_category = EXCLUDED.root_category,
			member_titles = EXCLUDED.member_titles,
			last_refreshed_at = EXCLUDED.last_refreshed_at`
	_, err := s.db.ExecContext(ctx, query, scope.FeedName, scope.Wiki, scope.RootCategory,
		pq.StringArray(titles), scope.LastRefreshedAt.UTC())
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *postgresStore) Scope(ctx context.Context, feed string) (*core.FeedScope, error) {
	var row struct {
		Feed            string         `db:"feed"`
		Wiki            string         `db:"wiki"`
		RootCategory    string         `db:"root_category"`
		MemberTitles    pq.StringArray `db:"member_titles"`
		LastRefreshedAt time.Time      `db:"last_refreshed_at"`
	}
	err := s.db.GetContext(ctx, &row,
		`SELECT feed, wiki, root_category, member_titles, last_refreshed_at FROM feed_scopes WHERE feed = $1`, feed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("scope for feed %s: %w", feed, core.ErrNotFound)
		}
		return nil, unavailable(err)
	}

	members := make(map[string]struct{}, len(row.MemberTitles))
	for _, t := range row.MemberTitles {
		members[t] = struct{}{}
	}
	return &core.FeedScope{
		FeedName:        row.Feed,
		Wiki:            row.Wiki,
		RootCategory:    row.RootCategory,
		MemberTitles:    members,
		LastRefreshedAt: row.LastRefreshedAt,
	}, nil
}

func (s *postgresStore) InsertCandidates(ctx context.Context, feed string, candidates []core.RevisionCandidate) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, unavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	cutoff := s.cutoff()
	inserted := 0
	for _, c := range candidates {
		if !cutoff.IsZero() && c.Timestamp.Before(cutoff) {
			continue
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO feed_candidates (feed, wiki, revision_id, title, author, score, summary, revised_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (feed, wiki, revision_id) DO NOTHING`,
			feed, c.Wiki, c.RevisionID, c.Title, c.Author, c.Score, c.Summary, c.Timestamp.UTC())
		if err != nil {
			return 0, unavailable(err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if !cutoff.IsZero() {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM feed_candidates WHERE feed = $1 AND revised_at < $2`, feed, cutoff.UTC()); err != nil {
			return 0, unavailable(err)
		}
	}
	if s.policy.MaxEntries > 0 {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM feed_candidates WHERE feed = $1 AND seq NOT IN (
				SELECT seq FROM feed_candidates WHERE feed = $1 ORDER BY seq DESC LIMIT $2
			)`, feed, s.policy.MaxEntries); err != nil {
			return 0, unavailable(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, unavailable(err)
	}
	return inserted, nil
}

func (s *postgresStore) ListCandidates(ctx context.Context, feed string, limit int) ([]core.RevisionCandidate, error) {
	// Newest rows are selected first, then flipped back into insertion order.
	builder := psql.Select("wiki", "revision_id", "title", "author", "score", "summary", "revised_at").
		From("feed_candidates").
		Where(sq.Eq{"feed": feed}).
		OrderBy("seq DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var out []core.RevisionCandidate
	for rows.Next() {
		var c core.RevisionCandidate
		if err := rows.Scan(&c.Wiki, &c.RevisionID, &c.Title, &c.Author, &c.Score, &c.Summary, &c.Timestamp); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return out, nil
}

func (s *postgresStore) RecordRevert(ctx context.Context, e core.RevertAuditEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO revert_audit (id, wiki, revision_id, acting_user, state, detail) VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.Wiki, e.RevisionID, e.ActingUser, string(e.State), e.Detail)
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *postgresStore) ListReverts(ctx context.Context, key core.RevisionKey) ([]core.RevertAuditEntry, error) {
	query, args, err := psql.Select("id", "wiki", "revision_id", "acting_user", "state", "detail").
		From("revert_audit").
		Where(sq.Eq{"wiki": key.Wiki, "revision_id": key.RevisionID}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var out []core.RevertAuditEntry
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

func (s *postgresStore) cutoff() time.Time {
	if s.policy.MaxAge <= 0 {
		return time.Time{}
	}
	return s.now().Add(-s.policy.MaxAge)
}
