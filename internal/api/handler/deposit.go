package handler

import (
	"net/http"

	"github.com/kunledawodu/counterex/internal/api/problem"
	"github.com/kunledawodu/counterex/internal/service"
)

type DepositHandler struct {
	deposits *service.DepositService
}

func NewDepositHandler(deposits *service.DepositService) *DepositHandler {
	return &DepositHandler{deposits: deposits}
}

type depositRequest struct {
	TierID       int    `json:"tier_id"`
	AmountMicros int64  `json:"amount_micros"`
	ReferenceID  string `json:"reference_id"`
}

// Request records a pending deposit against a tier counter.
func (h *DepositHandler) Request(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(w, r)
	if !ok {
		return
	}
	var req depositRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ReferenceID == "" {
		problem.Write(w, r, http.StatusBadRequest, problem.Type("request/missing-fields"), "", "reference_id is required")
		return
	}
	if req.AmountMicros <= 0 {
		problem.Write(w, r, http.StatusBadRequest, problem.Type("request/invalid-amount"), "", "amount_micros must be greater than zero")
		return
	}

	tx, err := h.deposits.Request(r.Context(), service.DepositCmd{
		UserID:       userID,
		TierID:       req.TierID,
		AmountMicros: req.AmountMicros,
		ReferenceID:  req.ReferenceID,
	})
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, tx)
}
