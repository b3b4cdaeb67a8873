package handler

import (
	"net/http"

	"github.com/kunledawodu/counterex/internal/service"
)

type PairHandler struct {
	rates *service.RateService
}

func NewPairHandler(rates *service.RateService) *PairHandler {
	return &PairHandler{rates: rates}
}

// List returns currency pairs. Pass all=true to include inactive ones.
func (h *PairHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") != "true"
	pairs, err := h.rates.ListPairs(r.Context(), activeOnly)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"pairs": pairs})
}
