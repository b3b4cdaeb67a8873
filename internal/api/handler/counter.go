package handler

import (
	"net/http"

	"github.com/kunledawodu/counterex/internal/service"
)

type CounterHandler struct {
	counters *service.CounterService
}

func NewCounterHandler(counters *service.CounterService) *CounterHandler {
	return &CounterHandler{counters: counters}
}

// List returns the authenticated user's ladder, one row per tier.
func (h *CounterHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(w, r)
	if !ok {
		return
	}
	counters, err := h.counters.ListForUser(r.Context(), userID)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"counters": counters})
}

// Sync backfills any missing tier rows for the authenticated user. New
// tiers added to the catalog appear for existing accounts this way.
func (h *CounterHandler) Sync(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(w, r)
	if !ok {
		return
	}
	if err := h.counters.Sync(r.Context(), userID); err != nil {
		RespondError(w, r, err)
		return
	}
	counters, err := h.counters.ListForUser(r.Context(), userID)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"counters": counters})
}

// Catalog returns the static tier configuration.
func (h *CounterHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]any{"tiers": h.counters.Catalog()})
}
