package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kunledawodu/counterex/internal/api/problem"
	"github.com/kunledawodu/counterex/internal/models"
	"github.com/kunledawodu/counterex/internal/service"
)

// AdminHandler bundles the operator surface: settlement decisions, grouped
// review queues, counter resets and pair management.
type AdminHandler struct {
	withdrawals  *service.WithdrawalService
	deposits     *service.DepositService
	grouping     *service.GroupingService
	counters     *service.CounterService
	rates        *service.RateService
	integrity    *service.IntegrityService
	reset        *service.ResetService
	transactions *service.TransactionService
}

func NewAdminHandler(
	withdrawals *service.WithdrawalService,
	deposits *service.DepositService,
	grouping *service.GroupingService,
	counters *service.CounterService,
	rates *service.RateService,
	integrity *service.IntegrityService,
	reset *service.ResetService,
	transactions *service.TransactionService,
) *AdminHandler {
	return &AdminHandler{
		withdrawals:  withdrawals,
		deposits:     deposits,
		grouping:     grouping,
		counters:     counters,
		rates:        rates,
		integrity:    integrity,
		reset:        reset,
		transactions: transactions,
	}
}

// PendingWithdrawals returns the review queue grouped by user.
func (h *AdminHandler) PendingWithdrawals(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationParams(r)
	groups, err := h.grouping.PendingWithdrawals(r.Context(), limit, offset)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

// WithdrawalHistory returns settled withdrawals grouped by user and
// five-minute submission window.
func (h *AdminHandler) WithdrawalHistory(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationParams(r)
	groups, err := h.grouping.WithdrawalHistory(r.Context(), limit, offset)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

// ApproveWithdrawal settles a pending withdrawal, debiting holdings
// balance-first under row locks.
func (h *AdminHandler) ApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	txID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	tx, err := h.withdrawals.Settle(r.Context(), txID, requestActor(r))
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, tx)
}

func (h *AdminHandler) DenyWithdrawal(w http.ResponseWriter, r *http.Request) {
	txID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	tx, err := h.withdrawals.Deny(r.Context(), txID, requestActor(r))
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, tx)
}

func (h *AdminHandler) FreezeWithdrawal(w http.ResponseWriter, r *http.Request) {
	txID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	tx, err := h.withdrawals.Freeze(r.Context(), txID, requestActor(r))
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, tx)
}

// ReverseWithdrawal credits a settled withdrawal back to its tier.
func (h *AdminHandler) ReverseWithdrawal(w http.ResponseWriter, r *http.Request) {
	txID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	tx, err := h.withdrawals.Reverse(r.Context(), txID, requestActor(r))
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, tx)
}

type editAmountRequest struct {
	AmountMicros int64 `json:"amount_micros"`
}

// EditWithdrawal changes the requested amount. Settled withdrawals are
// re-settled against the corrected amount in the same transaction.
func (h *AdminHandler) EditWithdrawal(w http.ResponseWriter, r *http.Request) {
	txID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req editAmountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tx, err := h.withdrawals.EditAmount(r.Context(), txID, req.AmountMicros, requestActor(r))
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, tx)
}

// DeleteWithdrawal removes a withdrawal record, restoring holdings first
// when it had already been settled.
func (h *AdminHandler) DeleteWithdrawal(w http.ResponseWriter, r *http.Request) {
	txID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.withdrawals.Delete(r.Context(), txID, requestActor(r)); err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusNoContent, nil)
}

func (h *AdminHandler) GetWithdrawal(w http.ResponseWriter, r *http.Request) {
	txID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	tx, err := h.withdrawals.Get(r.Context(), txID)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, tx)
}

// ApproveDeposit funds the tier counter and activates it.
func (h *AdminHandler) ApproveDeposit(w http.ResponseWriter, r *http.Request) {
	txID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	tx, err := h.deposits.Approve(r.Context(), txID, requestActor(r))
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, tx)
}

func (h *AdminHandler) DenyDeposit(w http.ResponseWriter, r *http.Request) {
	txID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	tx, err := h.deposits.Deny(r.Context(), txID, requestActor(r))
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, tx)
}

// ResetUserCounters zeroes the entire ladder for one user.
func (h *AdminHandler) ResetUserCounters(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.counters.ResetUser(r.Context(), userID, requestActor(r)); err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusNoContent, nil)
}

// TriggerRollover sweeps stale daily counts across all users.
func (h *AdminHandler) TriggerRollover(w http.ResponseWriter, r *http.Request) {
	rows, err := h.reset.RolloverAll(r.Context())
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"rolled_over": rows})
}

// IntegrityCheck reports negative holdings and mirror drift without repairing.
func (h *AdminHandler) IntegrityCheck(w http.ResponseWriter, r *http.Request) {
	report, err := h.integrity.Check(r.Context())
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{
		"clean":  report.Clean(),
		"report": report,
	})
}

type batchDecisionRequest struct {
	Action string      `json:"action"`
	IDs    []uuid.UUID `json:"ids"`
}

type batchDecisionResult struct {
	ID     uuid.UUID `json:"id"`
	Status string    `json:"status,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// DecideWithdrawals applies one decision to a batch of withdrawals. Each row
// settles in its own transaction; failures are reported per row and do not
// roll back the others.
func (h *AdminHandler) DecideWithdrawals(w http.ResponseWriter, r *http.Request) {
	var req batchDecisionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.IDs) == 0 {
		problem.Write(w, r, http.StatusBadRequest, problem.Type("request/missing-fields"), "", "ids is required")
		return
	}

	var decide func(ctx context.Context, txID uuid.UUID, actorID *uuid.UUID) (models.Transaction, error)
	switch req.Action {
	case "approve":
		decide = h.withdrawals.Settle
	case "deny":
		decide = h.withdrawals.Deny
	case "freeze":
		decide = h.withdrawals.Freeze
	default:
		problem.Write(w, r, http.StatusBadRequest, problem.Type("request/invalid-action"), "", "action must be approve, deny or freeze")
		return
	}

	actor := requestActor(r)
	results := make([]batchDecisionResult, 0, len(req.IDs))
	for _, id := range req.IDs {
		tx, err := decide(r.Context(), id, actor)
		if err != nil {
			results = append(results, batchDecisionResult{ID: id, Error: err.Error()})
			continue
		}
		results = append(results, batchDecisionResult{ID: id, Status: tx.Status})
	}
	RespondJSON(w, http.StatusOK, map[string]any{"results": results})
}

// UserTransactions lists one user's transactions for review.
func (h *AdminHandler) UserTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "id")
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

type pairRequest struct {
	Base     string `json:"base"`
	Quote    string `json:"quote"`
	Rate     string `json:"rate"`
	IsActive *bool  `json:"is_active"`
}

func (h *AdminHandler) CreatePair(w http.ResponseWriter, r *http.Request) {
	var req pairRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rate, err := decimal.NewFromString(req.Rate)
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.Type("pairs/invalid-rate"), "", "rate must be a decimal string")
		return
	}
	pair, err := h.rates.CreatePair(r.Context(), service.PairCmd{Base: req.Base, Quote: req.Quote, Rate: rate})
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, pair)
}

func (h *AdminHandler) UpdatePair(w http.ResponseWriter, r *http.Request) {
	pairID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req pairRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rate, err := decimal.NewFromString(req.Rate)
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.Type("pairs/invalid-rate"), "", "rate must be a decimal string")
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	pair, err := h.rates.UpdatePair(r.Context(), pairID, rate, active)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, pair)
}

func (h *AdminHandler) DeletePair(w http.ResponseWriter, r *http.Request) {
	pairID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.rates.DeletePair(r.Context(), pairID); err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusNoContent, nil)
}
