package handler

import (
	"net/http"
	"strconv"

	"github.com/kunledawodu/counterex/internal/api/problem"
	"github.com/kunledawodu/counterex/internal/service"
)

type WithdrawalHandler struct {
	withdrawals  *service.WithdrawalService
	transactions *service.TransactionService
}

func NewWithdrawalHandler(withdrawals *service.WithdrawalService, transactions *service.TransactionService) *WithdrawalHandler {
	return &WithdrawalHandler{withdrawals: withdrawals, transactions: transactions}
}

type withdrawRequest struct {
	TierID       int    `json:"tier_id"`
	AmountMicros int64  `json:"amount_micros"`
	Commission   bool   `json:"commission"`
	ReferenceID  string `json:"reference_id"`
}

// Request records a pending withdrawal. Funds move at settlement time.
func (h *WithdrawalHandler) Request(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(w, r)
	if !ok {
		return
	}
	var req withdrawRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ReferenceID == "" {
		problem.Write(w, r, http.StatusBadRequest, problem.Type("request/missing-fields"), "", "reference_id is required")
		return
	}

	tx, err := h.withdrawals.Request(r.Context(), service.WithdrawCmd{
		UserID:       userID,
		TierID:       req.TierID,
		AmountMicros: req.AmountMicros,
		Commission:   req.Commission,
		ReferenceID:  req.ReferenceID,
	})
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, tx)
}

type withdrawAllRequest struct {
	ReferenceID string `json:"reference_id"`
}

// RequestAll drains every tier whose withdrawal is unlocked.
func (h *WithdrawalHandler) RequestAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(w, r)
	if !ok {
		return
	}
	var req withdrawAllRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ReferenceID == "" {
		problem.Write(w, r, http.StatusBadRequest, problem.Type("request/missing-fields"), "", "reference_id is required")
		return
	}

	txs, err := h.withdrawals.RequestAll(r.Context(), userID, req.ReferenceID, requestActor(r))
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, map[string]any{"withdrawals": txs})
}

// ListTransactions returns the authenticated user's transaction history.
func (h *WithdrawalHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(w, r)
	if !ok {
		return
	}
	limit, offset := paginationParams(r)
	txs, err := h.transactions.ListForUser(r.Context(), userID, limit, offset)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

func paginationParams(r *http.Request) (int32, int32) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	return int32(limit), int32(offset)
}
