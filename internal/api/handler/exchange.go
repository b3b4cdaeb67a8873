package handler

import (
	"net/http"
	"strconv"

	"github.com/kunledawodu/counterex/internal/api/problem"
	"github.com/kunledawodu/counterex/internal/models"
	"github.com/kunledawodu/counterex/internal/service"
)

type ExchangeHandler struct {
	exchanges *service.ExchangeService
	rates     *service.RateService
}

func NewExchangeHandler(exchanges *service.ExchangeService, rates *service.RateService) *ExchangeHandler {
	return &ExchangeHandler{exchanges: exchanges, rates: rates}
}

type completeTaskRequest struct {
	TierID       int    `json:"tier_id"`
	AmountMicros int64  `json:"amount_micros"`
	Pair         string `json:"pair"`
	ReferenceID  string `json:"reference_id"`
}

type taskResponse struct {
	Transaction       models.Transaction `json:"transaction"`
	Counter           models.Counter     `json:"counter"`
	CommissionMicros  int64              `json:"commission_micros"`
	TransferredToTier int                `json:"transferred_to_tier,omitempty"`
	Replayed          bool               `json:"replayed,omitempty"`
}

// CompleteTask runs one task through the quota state machine.
func (h *ExchangeHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(w, r)
	if !ok {
		return
	}
	var req completeTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ReferenceID == "" {
		problem.Write(w, r, http.StatusBadRequest, problem.Type("request/missing-fields"), "", "reference_id is required")
		return
	}
	if req.AmountMicros < 0 {
		problem.Write(w, r, http.StatusBadRequest, problem.Type("request/invalid-amount"), "", "amount_micros cannot be negative")
		return
	}

	result, err := h.exchanges.CompleteTask(r.Context(), service.CompleteTaskCmd{
		UserID:       userID,
		TierID:       req.TierID,
		AmountMicros: req.AmountMicros,
		Pair:         req.Pair,
		ReferenceID:  req.ReferenceID,
	})
	if err != nil {
		RespondError(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	RespondJSON(w, status, taskResponse{
		Transaction:       result.Transaction,
		Counter:           result.Counter,
		CommissionMicros:  result.CommissionMicros,
		TransferredToTier: result.TransferredToTier,
		Replayed:          result.Replayed,
	})
}

// Quote draws a candidate task amount without committing anything.
func (h *ExchangeHandler) Quote(w http.ResponseWriter, r *http.Request) {
	tierID, err := strconv.Atoi(r.URL.Query().Get("tier_id"))
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.Type("request/invalid-tier"), "", "tier_id query parameter is required")
		return
	}
	quote, err := h.rates.QuoteTask(r.Context(), tierID, r.URL.Query().Get("pair"))
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, quote)
}
