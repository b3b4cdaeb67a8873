package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/kunledawodu/counterex/internal/api/middleware"
	"github.com/kunledawodu/counterex/internal/api/problem"
	"github.com/kunledawodu/counterex/internal/domain"
	"github.com/kunledawodu/counterex/internal/service"
)

// RespondJSON writes a JSON payload with the given status code.
func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("failed to encode response", zap.Error(err))
	}
}

// RespondError maps service and storage errors onto RFC 7807 responses.
func RespondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		problem.Write(w, r, http.StatusUnauthorized, problem.Type("auth/invalid-credentials"), "", "invalid username or password")
	case errors.Is(err, service.ErrUserNotFound):
		problem.Write(w, r, http.StatusNotFound, problem.Type("users/not-found"), "", "user not found")
	case errors.Is(err, service.ErrTierNotFound):
		problem.Write(w, r, http.StatusNotFound, problem.Type("tiers/not-found"), "", "unknown tier")
	case errors.Is(err, service.ErrPairNotFound):
		problem.Write(w, r, http.StatusNotFound, problem.Type("pairs/not-found"), "", "currency pair not found or inactive")
	case errors.Is(err, service.ErrTransactionNotFound), errors.Is(err, pgx.ErrNoRows):
		problem.Write(w, r, http.StatusNotFound, problem.Type("transactions/not-found"), "", "transaction not found")
	case errors.Is(err, service.ErrNotAWithdrawal):
		problem.Write(w, r, http.StatusConflict, problem.Type("withdrawals/wrong-type"), "", "transaction is not a withdrawal")
	case errors.Is(err, service.ErrInvalidStateTransition):
		problem.Write(w, r, http.StatusConflict, problem.Type("transactions/invalid-transition"), "", err.Error())
	case errors.Is(err, service.ErrNothingToWithdraw):
		problem.Write(w, r, http.StatusUnprocessableEntity, problem.Type("withdrawals/nothing-eligible"), "", "no tier is eligible for withdrawal")
	case errors.Is(err, service.ErrDepositBelowMinimum):
		problem.Write(w, r, http.StatusUnprocessableEntity, problem.Type("deposits/below-minimum"), "", "deposit is below the tier's funding floor")
	case errors.Is(err, domain.ErrCounterNotActive):
		problem.Write(w, r, http.StatusUnprocessableEntity, problem.Type("exchanges/counter-not-active"), "", "counter has not been funded")
	case errors.Is(err, domain.ErrTierQuotaSatisfied):
		problem.Write(w, r, http.StatusUnprocessableEntity, problem.Type("exchanges/quota-satisfied"), "", "tier quota already satisfied")
	case errors.Is(err, domain.ErrDailyCapReached):
		problem.Write(w, r, http.StatusUnprocessableEntity, problem.Type("exchanges/daily-cap-reached"), "", "daily order cap reached for this tier")
	case errors.Is(err, domain.ErrDailyBudgetExhausted):
		problem.Write(w, r, http.StatusUnprocessableEntity, problem.Type("exchanges/daily-budget-exhausted"), "", "daily task budget exhausted")
	case errors.Is(err, domain.ErrAmountOutOfBounds):
		problem.Write(w, r, http.StatusUnprocessableEntity, problem.Type("exchanges/amount-out-of-bounds"), "", "amount outside tier bounds")
	case errors.Is(err, domain.ErrInsufficientFunds):
		problem.Write(w, r, http.StatusUnprocessableEntity, problem.Type("withdrawals/insufficient-funds"), "", "insufficient total balance")
	case errors.Is(err, domain.ErrInsufficientEarnings):
		problem.Write(w, r, http.StatusUnprocessableEntity, problem.Type("withdrawals/insufficient-earnings"), "", "insufficient commission earnings")
	case errors.Is(err, domain.ErrWithdrawalLocked):
		problem.Write(w, r, http.StatusUnprocessableEntity, problem.Type("withdrawals/locked"), "", "withdrawal not unlocked for this tier")
	case errors.Is(err, domain.ErrNonPositiveAmount):
		problem.Write(w, r, http.StatusBadRequest, problem.Type("request/invalid-amount"), "", "amount must be greater than zero")
	default:
		if status, slug, detail, ok := mapDBError(err); ok {
			problem.Write(w, r, status, problem.Type(slug), "", detail)
			return
		}
		zap.L().Error("unhandled request error", zap.Error(err), zap.String("path", r.URL.Path))
		problem.Write(w, r, http.StatusInternalServerError, problem.Type("internal-server-error"), "", "unexpected server error")
	}
}

func mapDBError(err error) (int, string, string, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return 0, "", "", false
	}
	switch pgErr.Code {
	case "23505":
		return http.StatusConflict, "storage/duplicate", "a record with these values already exists", true
	case "23503":
		return http.StatusUnprocessableEntity, "storage/missing-reference", "referenced record does not exist", true
	case "23514", "23502":
		return http.StatusUnprocessableEntity, "storage/constraint-violation", "record violates a storage constraint", true
	}
	return 0, "", "", false
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.Type("request/invalid-body"), "", "invalid JSON body")
		return false
	}
	return true
}

// requestActor returns the authenticated user's ID, or nil when absent.
func requestActor(r *http.Request) *uuid.UUID {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}

func requestUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	actor := requestActor(r)
	if actor == nil {
		problem.Write(w, r, http.StatusUnauthorized, problem.Type("auth/missing-identity"), "", "authenticated user id missing")
		return uuid.Nil, false
	}
	return *actor, true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.Type("request/invalid-id"), "", "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
