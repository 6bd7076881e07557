package handler

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sevigo/revision-warden/internal/core"
)

// Reverter undoes revisions.
type Reverter interface {
	Revert(ctx context.Context, req core.RevertRequest) (*core.RevertResult, error)
}

// RevertHandler maps revert outcomes to HTTP statuses.
type RevertHandler struct {
	reverter Reverter
	logger   *slog.Logger
}

func NewRevertHandler(reverter Reverter, logger *slog.Logger) *RevertHandler {
	return &RevertHandler{reverter: reverter, logger: logger}
}

// Handle reverts {wikiRevId} with the caller's wiki OAuth token, passed as a
// bearer token. On success the body is the wiki's edit response.
func (h *RevertHandler) Handle(w http.ResponseWriter, r *http.Request) {
	key, err := core.ParseRevisionKey(chi.URLParam(r, "wikiRevId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		writeError(w, http.StatusUnauthorized, "wiki OAuth bearer token required")
		return
	}

	h.logger.Info("received revert request", "wiki", key.Wiki, "rev_id", key.RevisionID)
	res, err := h.reverter.Revert(r.Context(), core.RevertRequest{
		Wiki:       key.Wiki,
		RevisionID: key.RevisionID,
		ActingUser: r.Header.Get("X-Wiki-User"),
		Credential: token,
	})

	var (
		rateLimited *core.RateLimitError
		rejected    *core.UpstreamRejectedError
	)
	switch {
	case err == nil:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(res.Upstream)
	case errors.As(err, &rateLimited):
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(rateLimited.RetryAfter.Seconds()))))
		writeError(w, http.StatusTooManyRequests, "too many reverts, retry later")
	case errors.Is(err, core.ErrForbidden):
		writeError(w, http.StatusForbidden, "lack of permission: no rollback right and not allow-listed")
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, "revision not found")
	case errors.As(err, &rejected):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		if len(rejected.Payload) > 0 {
			_, _ = w.Write(rejected.Payload)
			return
		}
		_, _ = w.Write([]byte(`{"error":` + strconv.Quote(rejected.Error()) + `}`))
	default:
		h.logger.Error("revert failed", "wiki", key.Wiki, "rev_id", key.RevisionID, "error", err)
		writeError(w, http.StatusInternalServerError, "wiki unavailable")
	}
}
