// Package judgement records reviewer judgements and hands them to the hooks.
package judgement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sevigo/revision-warden/internal/core"
	"github.com/sevigo/revision-warden/internal/metrics"
	"github.com/sevigo/revision-warden/internal/storage"
)

// Submission is a judgement as received from a client. Exactly one of
// WikiUserName and AnonymousID identifies the reviewer.
type Submission struct {
	Wiki         string `json:"wiki" validate:"required"`
	RevisionID   int64  `json:"revision_id" validate:"required,gt=0"`
	WikiUserName string `json:"wiki_user_name" validate:"required_without=AnonymousID,excluded_with=AnonymousID"`
	AnonymousID  string `json:"anonymous_id" validate:"required_without=WikiUserName,excluded_with=WikiUserName"`
	Judgement    string `json:"judgement" validate:"required,oneof=LooksGood NotSure ShouldRevert"`
	Feed         string `json:"feed"`
	Title        string `json:"title"`
}

// Result reports the stored interaction and, separately, whether hook
// delivery could be scheduled. A hook problem never turns a stored
// judgement into a failed submission.
type Result struct {
	Interaction core.Interaction `json:"interaction"`
	HooksQueued bool             `json:"hooks_queued"`
	HookError   string           `json:"hook_error,omitempty"`
}

type Service struct {
	store      storage.InteractionStore
	dispatcher core.HookDispatcher
	validate   *validator.Validate
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(store storage.InteractionStore, dispatcher core.HookDispatcher, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		store:      store,
		dispatcher: dispatcher,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		metrics:    m,
		logger:     logger.With("component", "judgement"),
		now:        time.Now,
	}
}

// Submit validates and upserts the judgement, then queues hook delivery.
// Hooks run only after the write committed and Submit does not wait for them.
func (s *Service) Submit(ctx context.Context, sub Submission) (*Result, error) {
	if err := s.validate.Struct(sub); err != nil {
		// Raw input must not become a label value.
		s.metrics.Judgements.WithLabelValues("unknown", "invalid").Inc()
		return nil, fmt.Errorf("%w: %w", core.ErrMalformedInput, err)
	}
	identity, err := core.ReviewerIdentityFor(sub.WikiUserName, sub.AnonymousID)
	if err != nil {
		s.metrics.Judgements.WithLabelValues(sub.Judgement, "invalid").Inc()
		return nil, err
	}

	stored, err := s.store.UpsertJudgement(ctx, core.Interaction{
		Wiki:             sub.Wiki,
		RevisionID:       sub.RevisionID,
		ReviewerIdentity: identity,
		WikiUserName:     sub.WikiUserName,
		AnonymousID:      sub.AnonymousID,
		Judgement:        core.Judgement(sub.Judgement),
		Feed:             sub.Feed,
		Title:            core.NormalizeTitle(sub.Title),
		Timestamp:        s.now().UTC(),
	})
	if err != nil {
		s.metrics.Judgements.WithLabelValues(sub.Judgement, "failed").Inc()
		s.logger.Error("failed to store judgement", "wiki", sub.Wiki, "rev_id", sub.RevisionID, "error", err)
		return nil, err
	}
	s.metrics.Judgements.WithLabelValues(sub.Judgement, "stored").Inc()

	res := &Result{Interaction: *stored, HooksQueued: true}
	if err := s.dispatcher.Dispatch(context.WithoutCancel(ctx), *stored); err != nil {
		res.HooksQueued = false
		res.HookError = fmt.Errorf("%w: %w", core.ErrHookFailure, err).Error()
		s.logger.Warn("judgement stored but hooks not queued", "wiki", stored.Wiki, "rev_id", stored.RevisionID, "error", err)
	}
	return res, nil
}

// ListByRevision collects the interactions recorded for a revision.
func (s *Service) ListByRevision(ctx context.Context, key core.RevisionKey) ([]core.Interaction, error) {
	var out []core.Interaction
	for i, err := range s.store.ListByRevision(ctx, key) {
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, nil
}

// ValidationMessages flattens validator errors into field messages for clients.
func ValidationMessages(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}
