package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sevigo/revision-warden/internal/core"
	"github.com/sevigo/revision-warden/internal/storage"
)

const defaultFeedLimit = 50

// FeedHandler exposes feed membership to the review UI.
type FeedHandler struct {
	store  storage.FeedStore
	logger *slog.Logger
}

func NewFeedHandler(store storage.FeedStore, logger *slog.Logger) *FeedHandler {
	return &FeedHandler{store: store, logger: logger}
}

// Revisions lists the newest candidates of {feed}, up to ?limit=.
func (h *FeedHandler) Revisions(w http.ResponseWriter, r *http.Request) {
	feed := chi.URLParam(r, "feed")
	limit := defaultFeedLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	candidates, err := h.store.ListCandidates(r.Context(), feed, limit)
	if err != nil {
		h.logger.Error("failed to list feed candidates", "feed", feed, "error", err)
		writeError(w, http.StatusServiceUnavailable, "feed unavailable")
		return
	}
	if candidates == nil {
		candidates = []core.RevisionCandidate{}
	}
	writeJSON(w, http.StatusOK, candidates)
}

type scopeSummary struct {
	Feed            string    `json:"feed"`
	Wiki            string    `json:"wiki"`
	RootCategory    string    `json:"root_category"`
	Pages           int       `json:"pages"`
	LastRefreshedAt time.Time `json:"last_refreshed_at"`
}

// Scope summarizes the current scope of {feed}.
func (h *FeedHandler) Scope(w http.ResponseWriter, r *http.Request) {
	feed := chi.URLParam(r, "feed")
	scope, err := h.store.Scope(r.Context(), feed)
	if errors.Is(err, core.ErrNotFound) {
		writeError(w, http.StatusNotFound, "feed has no scope yet")
		return
	}
	if err != nil {
		h.logger.Error("failed to load feed scope", "feed", feed, "error", err)
		writeError(w, http.StatusServiceUnavailable, "feed unavailable")
		return
	}
	writeJSON(w, http.StatusOK, scopeSummary{
		Feed:            scope.FeedName,
		Wiki:            scope.Wiki,
		RootCategory:    scope.RootCategory,
		Pages:           scope.Size(),
		LastRefreshedAt: scope.LastRefreshedAt,
	})
}
