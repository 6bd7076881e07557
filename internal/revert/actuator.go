// Package revert undoes revisions on behalf of authorized reviewers.
package revert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/sevigo/revision-warden/internal/config"
	"github.com/sevigo/revision-warden/internal/core"
	"github.com/sevigo/revision-warden/internal/metrics"
	"github.com/sevigo/revision-warden/internal/storage"
	"github.com/sevigo/revision-warden/internal/wiki"
)

// rollbackRight is the user right that authorizes a revert without allow-listing.
const rollbackRight = "rollback"

// Actuator runs the revert pipeline:
// Requested -> AuthorizationChecked -> Rejected | Authorized -> TokenAcquired
// -> EditSubmitted -> Succeeded | Failed.
// The three authenticated wiki calls are strictly sequential and none is retried.
type Actuator struct {
	wiki       wiki.Client
	audit      storage.AuditLog
	limiter    *SlidingWindow
	allowList  map[string]struct{}
	tags       map[string]string
	toolName   string
	version    string
	publicHost string
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewActuator(client wiki.Client, audit storage.AuditLog, cfg config.RevertConfig, publicHost string, m *metrics.Metrics, logger *slog.Logger) *Actuator {
	allow := make(map[string]struct{}, len(cfg.AllowList))
	for _, u := range cfg.AllowList {
		allow[u] = struct{}{}
	}
	return &Actuator{
		wiki:       client,
		audit:      audit,
		limiter:    NewSlidingWindow(cfg.Window, cfg.MaxActions),
		allowList:  allow,
		tags:       cfg.Tags,
		toolName:   cfg.ToolName,
		version:    cfg.Version,
		publicHost: publicHost,
		metrics:    m,
		logger:     logger.With("component", "revert"),
	}
}

// attempt carries the state of one revert through the pipeline.
type attempt struct {
	req    core.RevertRequest
	state  core.RevertState
	detail string
}

// Revert undoes req's revision. Errors match core.ErrRateLimited,
// core.ErrNotFound, core.ErrForbidden or core.ErrUpstreamRejected; other
// errors are failures to reach the wiki before authorization completed.
// Every call leaves one audit entry.
func (a *Actuator) Revert(ctx context.Context, req core.RevertRequest) (*core.RevertResult, error) {
	at := &attempt{req: req, state: core.RevertRequested}
	defer a.record(ctx, at)

	if ok, retryAfter := a.limiter.Allow(); !ok {
		at.state = core.RevertRejected
		at.detail = "global revert rate limit exceeded"
		return nil, &core.RateLimitError{RetryAfter: retryAfter}
	}

	revisions, err := a.wiki.LookupRevisions(ctx, []core.RevisionKey{req.Key()})
	if err != nil {
		at.state = core.RevertFailed
		at.detail = "revision lookup: " + err.Error()
		return nil, fmt.Errorf("failed to look up %s: %w", req.Key(), err)
	}
	rev, ok := revisions[req.Key()]
	if !ok {
		at.state = core.RevertFailed
		at.detail = "revision not found"
		return nil, fmt.Errorf("revision %s: %w", req.Key(), core.ErrNotFound)
	}

	if err := a.authorize(ctx, at); err != nil {
		return nil, err
	}

	token, err := a.wiki.CSRFToken(ctx, req.Wiki, req.Credential)
	if err != nil {
		return nil, a.rejected(at, core.RevertTokenAcquired, err)
	}
	at.state = core.RevertTokenAcquired

	edit, err := a.wiki.Undo(ctx, req.Wiki, req.Credential, wiki.UndoRequest{
		Title:      rev.Title,
		RevisionID: req.RevisionID,
		Summary:    a.summary(req, rev),
		Tags:       a.tags[req.Wiki],
		Token:      token,
	})
	if err != nil {
		return nil, a.rejected(at, core.RevertEditSubmitted, err)
	}

	at.state = core.RevertSucceeded
	a.logger.Info("revision reverted", "wiki", req.Wiki, "rev_id", req.RevisionID, "user", at.req.ActingUser, "new_rev_id", edit.NewRevID)
	return &core.RevertResult{
		Wiki:       req.Wiki,
		RevisionID: req.RevisionID,
		Title:      rev.Title,
		ActingUser: at.req.ActingUser,
		State:      core.RevertSucceeded,
		Upstream:   edit.Raw,
	}, nil
}

// authorize passes when the user is allow-listed OR holds the rollback right.
func (a *Actuator) authorize(ctx context.Context, at *attempt) error {
	info, err := a.wiki.UserInfo(ctx, at.req.Wiki, at.req.Credential)
	if err != nil {
		at.state = core.RevertFailed
		at.detail = "user info: " + err.Error()
		return fmt.Errorf("failed to query user rights: %w", err)
	}
	at.state = core.RevertAuthorizationChecked
	// Only the name the wiki reports for the credential is trusted.
	if info.Name == "" {
		at.state = core.RevertRejected
		at.detail = "wiki did not report a user name"
		return fmt.Errorf("%w: wiki did not report a user name", core.ErrForbidden)
	}
	at.req.ActingUser = info.Name

	_, allowListed := a.allowList[at.req.ActingUser]
	if !allowListed && !slices.Contains(info.Rights, rollbackRight) {
		at.state = core.RevertRejected
		at.detail = "no rollback right and not allow-listed"
		a.logger.Warn("revert attempted without rights", "wiki", at.req.Wiki, "rev_id", at.req.RevisionID, "user", at.req.ActingUser)
		return fmt.Errorf("%w: %s has no rollback right and is not allow-listed", core.ErrForbidden, at.req.ActingUser)
	}
	at.state = core.RevertAuthorized
	return nil
}

func (a *Actuator) rejected(at *attempt, stage core.RevertState, err error) error {
	at.state = core.RevertFailed
	at.detail = fmt.Sprintf("%s: %v", stage, err)

	var payload []byte
	var apiErr *wiki.APIError
	if errors.As(err, &apiErr) {
		payload = apiErr.Payload
	}
	a.logger.Error("wiki rejected revert", "wiki", at.req.Wiki, "rev_id", at.req.RevisionID, "stage", stage, "error", err)
	return &core.UpstreamRejectedError{Stage: stage, Payload: payload, Err: err}
}

func (a *Actuator) summary(req core.RevertRequest, rev core.RevisionInfo) string {
	return fmt.Sprintf("Identified as test/vandalism and undid revision %d by [[User:%s]] with %s(v%s). "+
		"See it or provide your opinion at http://%s/revision/%s/%d",
		req.RevisionID, rev.User, a.toolName, a.version, a.publicHost, req.Wiki, req.RevisionID)
}

func (a *Actuator) record(ctx context.Context, at *attempt) {
	a.metrics.RevertRequests.WithLabelValues(string(at.state)).Inc()
	entry := core.RevertAuditEntry{
		ID:         uuid.NewString(),
		Wiki:       at.req.Wiki,
		RevisionID: at.req.RevisionID,
		ActingUser: at.req.ActingUser,
		State:      at.state,
		Detail:     at.detail,
	}
	if err := a.audit.RecordRevert(context.WithoutCancel(ctx), entry); err != nil {
		a.logger.Error("failed to write revert audit entry", "wiki", entry.Wiki, "rev_id", entry.RevisionID, "error", err)
	}
}
