package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sevigo/revision-warden/internal/core"
	"github.com/sevigo/revision-warden/internal/judgement"
)

// JudgementService records and lists judgements.
type JudgementService interface {
	Submit(ctx context.Context, sub judgement.Submission) (*judgement.Result, error)
	ListByRevision(ctx context.Context, key core.RevisionKey) ([]core.Interaction, error)
}

// InteractionHandler serves judgement submission and lookup.
type InteractionHandler struct {
	svc    JudgementService
	logger *slog.Logger
}

func NewInteractionHandler(svc JudgementService, logger *slog.Logger) *InteractionHandler {
	return &InteractionHandler{svc: svc, logger: logger}
}

// Submit stores a judgement. The response reports hook scheduling separately,
// so a client learns its judgement was recorded even if notifications fail.
func (h *InteractionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var sub judgement.Submission
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := h.svc.Submit(r.Context(), sub)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, core.ErrMalformedInput):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid judgement", Fields: judgement.ValidationMessages(err)})
	case errors.Is(err, core.ErrPersistenceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "judgement could not be stored, retry later")
	default:
		h.logger.Error("judgement submission failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// List returns every judgement recorded for {wikiRevId}.
func (h *InteractionHandler) List(w http.ResponseWriter, r *http.Request) {
	key, err := core.ParseRevisionKey(chi.URLParam(r, "wikiRevId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	interactions, err := h.svc.ListByRevision(r.Context(), key)
	if err != nil {
		h.logger.Error("failed to list interactions", "wiki", key.Wiki, "rev_id", key.RevisionID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "interactions unavailable")
		return
	}
	if interactions == nil {
		interactions = []core.Interaction{}
	}
	writeJSON(w, http.StatusOK, interactions)
}
