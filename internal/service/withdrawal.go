package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/kunledawodu/counterex/internal/domain"
	"github.com/kunledawodu/counterex/internal/models"
	"github.com/kunledawodu/counterex/internal/notify"
	"github.com/kunledawodu/counterex/internal/observability"
	"github.com/kunledawodu/counterex/internal/repository"
)

var (
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrNotAWithdrawal       = errors.New("transaction is not a withdrawal")
	ErrNothingToWithdraw    = errors.New("no tier is eligible for withdrawal")
	ErrMissingSettlementMap = errors.New("settled withdrawal carries no settlement split")
)

// withdrawalMetadata is stored on the transaction row. The plan recorded at
// request time is advisory; settlement recomputes it under lock and overwrites.
type withdrawalMetadata struct {
	Plan domain.WithdrawalPlan `json:"plan"`
}

// WithdrawalService runs the withdrawal lifecycle: request, settle, deny,
// freeze, reverse.
type WithdrawalService struct {
	store   QueryStore
	catalog domain.Catalog
	audit   *AuditService
	broker  notify.Broker
}

func NewWithdrawalService(store QueryStore, catalog domain.Catalog, audit *AuditService, broker notify.Broker) *WithdrawalService {
	return &WithdrawalService{store: store, catalog: catalog, audit: audit, broker: broker}
}

type WithdrawCmd struct {
	UserID       uuid.UUID
	TierID       int
	AmountMicros int64
	// Commission restricts the debit to accumulated earnings.
	Commission  bool
	ReferenceID string
}

// Request records a PENDING withdrawal. Funds are validated now but only
// debited when an administrator settles the request.
func (s *WithdrawalService) Request(ctx context.Context, cmd WithdrawCmd) (models.Transaction, error) {
	if cmd.ReferenceID == "" {
		return models.Transaction{}, errors.New("reference_id is required")
	}
	tier, ok := s.catalog.Tier(cmd.TierID)
	if !ok {
		return models.Transaction{}, ErrTierNotFound
	}

	if existing, err := s.store.Queries().CheckTransactionIdempotency(ctx, cmd.ReferenceID); err == nil {
		return transactionModel(existing)
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return models.Transaction{}, fmt.Errorf("check idempotency: %w", err)
	}

	var out models.Transaction
	err := s.store.RunInTx(ctx, func(q *repository.Queries) error {
		p, err := lockTierProgress(ctx, q, cmd.UserID, tier.ID)
		if err != nil {
			return err
		}

		txType := domain.TxTypeWithdrawal
		var plan domain.WithdrawalPlan
		if cmd.Commission {
			txType = domain.TxTypeCommissionWithdrawal
			plan, err = domain.PlanCommissionWithdrawal(p, cmd.AmountMicros)
		} else {
			if !p.CanWithdraw {
				return domain.ErrWithdrawalLocked
			}
			plan, err = domain.PlanWithdrawal(p, cmd.AmountMicros)
		}
		if err != nil {
			return err
		}

		row, err := s.insertRequest(ctx, q, cmd.UserID, tier.ID, txType, plan, cmd.ReferenceID, nil)
		if err != nil {
			return err
		}
		out, err = transactionModel(row)
		return err
	})
	return out, err
}

// RequestAll drains every eligible tier into one PENDING withdrawal per tier.
func (s *WithdrawalService) RequestAll(ctx context.Context, userID uuid.UUID, referenceID string, actorID *uuid.UUID) ([]models.Transaction, error) {
	if referenceID == "" {
		return nil, errors.New("reference_id is required")
	}

	var out []models.Transaction
	err := s.store.RunInTx(ctx, func(q *repository.Queries) error {
		rows, err := q.GetCountersForUserForUpdate(ctx, repository.ToPgUUID(userID))
		if err != nil {
			return fmt.Errorf("lock counters: %w", err)
		}
		for _, row := range rows {
			p := counterFromRow(row)
			if !p.CanWithdraw || p.HoldingsMicros() <= 0 {
				continue
			}
			plan, err := domain.PlanWithdrawal(p, p.HoldingsMicros())
			if err != nil {
				return err
			}
			ref := fmt.Sprintf("%s:tier:%d", referenceID, p.TierID)
			txRow, err := s.insertRequest(ctx, q, userID, p.TierID, domain.TxTypeWithdrawal, plan, ref, actorID)
			if err != nil {
				return err
			}
			tx, err := transactionModel(txRow)
			if err != nil {
				return err
			}
			out = append(out, tx)
		}
		if len(out) == 0 {
			return ErrNothingToWithdraw
		}
		return nil
	})
	return out, err
}

func (s *WithdrawalService) insertRequest(ctx context.Context, q *repository.Queries, userID uuid.UUID, tierID int, txType string, plan domain.WithdrawalPlan, referenceID string, actorID *uuid.UUID) (repository.Transaction, error) {
	meta, _ := json.Marshal(withdrawalMetadata{Plan: plan})
	row, err := q.CreateTransaction(ctx, repository.CreateTransactionParams{
		ID:           repository.ToPgUUID(uuid.New()),
		UserID:       repository.ToPgUUID(userID),
		TierID:       int32(tierID),
		Type:         txType,
		AmountMicros: plan.AmountMicros(),
		Status:       domain.TxStatusPending,
		Description:  fmt.Sprintf("%s request for tier %d", txType, tierID),
		Metadata:     meta,
		ReferenceID:  referenceID,
	})
	if err != nil {
		return repository.Transaction{}, fmt.Errorf("create withdrawal request: %w", err)
	}
	if err := s.audit.Write(ctx, q, "transaction", repository.FromPgUUID(row.ID), actorID, "withdrawal.requested", "", domain.TxStatusPending, meta); err != nil {
		return repository.Transaction{}, err
	}
	return row, nil
}

// Settle approves a pending or frozen withdrawal and debits the tier. The
// split between principal and earnings is recomputed against the locked row,
// never trusted from request time.
func (s *WithdrawalService) Settle(ctx context.Context, txID uuid.UUID, actorID *uuid.UUID) (models.Transaction, error) {
	var out models.Transaction
	err := s.store.RunInTx(ctx, func(q *repository.Queries) error {
		row, err := s.lockWithdrawal(ctx, q, txID)
		if err != nil {
			return err
		}
		if row.Status != domain.TxStatusPending && row.Status != domain.TxStatusFrozen {
			return fmt.Errorf("%w: %s to %s", ErrInvalidStateTransition, row.Status, domain.TxStatusApproved)
		}
		userID := repository.FromPgUUID(row.UserID)

		if _, err := q.GetUserForUpdate(ctx, row.UserID); err != nil {
			return fmt.Errorf("lock user: %w", err)
		}
		p, err := lockTierProgress(ctx, q, userID, int(row.TierID))
		if err != nil {
			return err
		}

		var plan domain.WithdrawalPlan
		if row.Type == domain.TxTypeCommissionWithdrawal {
			plan, err = domain.PlanCommissionWithdrawal(p, row.AmountMicros)
		} else {
			plan, err = domain.PlanWithdrawal(p, row.AmountMicros)
		}
		if err != nil {
			return err
		}

		updated := domain.ApplyWithdrawal(p, plan)
		if updated.BalanceMicros < 0 || updated.TotalEarningsMicros < 0 {
			observability.IncrementIntegrityViolation("negative_after_settlement")
			zap.L().Error("settlement produced negative holdings",
				zap.String("transaction_id", txID.String()),
				zap.Int64("balance_micros", updated.BalanceMicros),
				zap.Int64("earnings_micros", updated.TotalEarningsMicros))
		}
		affected, err := q.UpdateCounter(ctx, counterUpdateParams(updated))
		if err != nil {
			return fmt.Errorf("debit counter: %w", err)
		}
		if err := requireExactlyOne(affected, "debit counter"); err != nil {
			return err
		}

		if plan.FromBalanceMicros != 0 {
			affected, err := q.AdjustUserTotalBalance(ctx, repository.AdjustUserTotalBalanceParams{
				DeltaMicros: -plan.FromBalanceMicros,
				ID:          row.UserID,
			})
			if err != nil {
				return fmt.Errorf("debit balance mirror: %w", err)
			}
			if err := requireExactlyOne(affected, "debit balance mirror"); err != nil {
				return err
			}
		}

		meta, _ := json.Marshal(withdrawalMetadata{Plan: plan})
		if _, err := q.UpdateTransactionMetadata(ctx, repository.UpdateTransactionMetadataParams{
			Metadata: meta,
			ID:       row.ID,
		}); err != nil {
			return fmt.Errorf("record settlement split: %w", err)
		}

		if err := transitionTransactionState(ctx, q, s.audit, txID, domain.TxStatusApproved, actorID, "withdrawal.approve", meta); err != nil {
			return err
		}

		row.Status = domain.TxStatusApproved
		row.Metadata = meta
		out, err = transactionModel(row)
		return err
	})
	if err != nil {
		return models.Transaction{}, err
	}

	observability.IncrementSettlement("approve")
	s.publish(ctx, notify.KindWithdrawalSettled, out)
	return out, nil
}

// Deny rejects a pending or frozen withdrawal without touching holdings.
func (s *WithdrawalService) Deny(ctx context.Context, txID uuid.UUID, actorID *uuid.UUID) (models.Transaction, error) {
	out, err := s.transition(ctx, txID, domain.TxStatusDenied, actorID, "withdrawal.deny")
	if err != nil {
		return models.Transaction{}, err
	}
	observability.IncrementSettlement("deny")
	s.publish(ctx, notify.KindWithdrawalDenied, out)
	return out, nil
}

// Freeze parks a pending withdrawal for manual review.
func (s *WithdrawalService) Freeze(ctx context.Context, txID uuid.UUID, actorID *uuid.UUID) (models.Transaction, error) {
	out, err := s.transition(ctx, txID, domain.TxStatusFrozen, actorID, "withdrawal.freeze")
	if err != nil {
		return models.Transaction{}, err
	}
	observability.IncrementSettlement("freeze")
	s.publish(ctx, notify.KindWithdrawalFrozen, out)
	return out, nil
}

func (s *WithdrawalService) transition(ctx context.Context, txID uuid.UUID, nextState string, actorID *uuid.UUID, action string) (models.Transaction, error) {
	var out models.Transaction
	err := s.store.RunInTx(ctx, func(q *repository.Queries) error {
		row, err := s.lockWithdrawal(ctx, q, txID)
		if err != nil {
			return err
		}
		if err := transitionTransactionState(ctx, q, s.audit, txID, nextState, actorID, action, nil); err != nil {
			return err
		}
		row.Status = nextState
		out, err = transactionModel(row)
		return err
	})
	return out, err
}

// Reverse undoes a settled withdrawal, re-crediting the exact split recorded
// at settlement.
func (s *WithdrawalService) Reverse(ctx context.Context, txID uuid.UUID, actorID *uuid.UUID) (models.Transaction, error) {
	var out models.Transaction
	err := s.store.RunInTx(ctx, func(q *repository.Queries) error {
		row, err := s.lockWithdrawal(ctx, q, txID)
		if err != nil {
			return err
		}
		if row.Status != domain.TxStatusApproved {
			return fmt.Errorf("%w: %s to %s", ErrInvalidStateTransition, row.Status, domain.TxStatusReversed)
		}
		if err := s.creditBack(ctx, q, row); err != nil {
			return err
		}
		if err := transitionTransactionState(ctx, q, s.audit, txID, domain.TxStatusReversed, actorID, "withdrawal.reverse", row.Metadata); err != nil {
			return err
		}
		row.Status = domain.TxStatusReversed
		out, err = transactionModel(row)
		return err
	})
	if err != nil {
		return models.Transaction{}, err
	}
	observability.IncrementSettlement("reverse")
	return out, nil
}

// Delete removes a withdrawal record entirely. A settled withdrawal is
// reversed first so holdings stay consistent.
func (s *WithdrawalService) Delete(ctx context.Context, txID uuid.UUID, actorID *uuid.UUID) error {
	err := s.store.RunInTx(ctx, func(q *repository.Queries) error {
		row, err := s.lockWithdrawal(ctx, q, txID)
		if err != nil {
			return err
		}
		if row.Status == domain.TxStatusApproved {
			if err := s.creditBack(ctx, q, row); err != nil {
				return err
			}
		}
		if err := s.audit.Write(ctx, q, "transaction", txID, actorID, "withdrawal.delete", row.Status, "", row.Metadata); err != nil {
			return err
		}
		affected, err := q.DeleteTransaction(ctx, row.ID)
		if err != nil {
			return fmt.Errorf("delete withdrawal: %w", err)
		}
		return requireExactlyOne(affected, "delete withdrawal")
	})
	if err != nil {
		return err
	}
	observability.IncrementSettlement("delete")
	return nil
}

// EditAmount changes the amount of a withdrawal. A settled withdrawal is
// re-settled: the old split is reversed and the new amount debited in the
// same transaction.
func (s *WithdrawalService) EditAmount(ctx context.Context, txID uuid.UUID, amountMicros int64, actorID *uuid.UUID) (models.Transaction, error) {
	if amountMicros <= 0 {
		return models.Transaction{}, domain.ErrNonPositiveAmount
	}

	var out models.Transaction
	err := s.store.RunInTx(ctx, func(q *repository.Queries) error {
		row, err := s.lockWithdrawal(ctx, q, txID)
		if err != nil {
			return err
		}
		userID := repository.FromPgUUID(row.UserID)
		tier, ok := s.catalog.Tier(int(row.TierID))
		if !ok {
			return ErrTierNotFound
		}

		var plan domain.WithdrawalPlan
		switch row.Status {
		case domain.TxStatusPending, domain.TxStatusFrozen:
			p, err := lockTierProgress(ctx, q, userID, tier.ID)
			if err != nil {
				return err
			}
			plan, err = s.planFor(row.Type, p, amountMicros)
			if err != nil {
				return err
			}
		case domain.TxStatusApproved:
			if _, err := q.GetUserForUpdate(ctx, row.UserID); err != nil {
				return fmt.Errorf("lock user: %w", err)
			}
			p, err := lockTierProgress(ctx, q, userID, tier.ID)
			if err != nil {
				return err
			}
			oldPlan, err := settlementPlan(row)
			if err != nil {
				return err
			}
			p = domain.ReverseWithdrawal(p, oldPlan, tier.DailyOrderQuota)
			plan, err = s.planFor(row.Type, p, amountMicros)
			if err != nil {
				return err
			}
			updated := domain.ApplyWithdrawal(p, plan)
			affected, err := q.UpdateCounter(ctx, counterUpdateParams(updated))
			if err != nil {
				return fmt.Errorf("re-settle counter: %w", err)
			}
			if err := requireExactlyOne(affected, "re-settle counter"); err != nil {
				return err
			}
			if delta := oldPlan.FromBalanceMicros - plan.FromBalanceMicros; delta != 0 {
				affected, err := q.AdjustUserTotalBalance(ctx, repository.AdjustUserTotalBalanceParams{
					DeltaMicros: delta,
					ID:          row.UserID,
				})
				if err != nil {
					return fmt.Errorf("adjust balance mirror: %w", err)
				}
				if err := requireExactlyOne(affected, "adjust balance mirror"); err != nil {
					return err
				}
			}
		default:
			return fmt.Errorf("cannot edit a %s withdrawal", row.Status)
		}

		meta, _ := json.Marshal(withdrawalMetadata{Plan: plan})
		affected, err := q.UpdateTransactionAmount(ctx, repository.UpdateTransactionAmountParams{
			AmountMicros: plan.AmountMicros(),
			Metadata:     meta,
			Description:  fmt.Sprintf("%s request for tier %d (amended)", row.Type, tier.ID),
			ID:           row.ID,
		})
		if err != nil {
			return fmt.Errorf("update withdrawal amount: %w", err)
		}
		if err := requireExactlyOne(affected, "update withdrawal amount"); err != nil {
			return err
		}
		if err := s.audit.Write(ctx, q, "transaction", txID, actorID, "withdrawal.edit", row.Status, row.Status, meta); err != nil {
			return err
		}

		row.AmountMicros = plan.AmountMicros()
		row.Metadata = meta
		out, err = transactionModel(row)
		return err
	})
	if err != nil {
		return models.Transaction{}, err
	}
	observability.IncrementSettlement("edit")
	return out, nil
}

// Get returns one withdrawal by ID.
func (s *WithdrawalService) Get(ctx context.Context, txID uuid.UUID) (models.Transaction, error) {
	row, err := s.store.Queries().GetTransaction(ctx, repository.ToPgUUID(txID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Transaction{}, ErrTransactionNotFound
		}
		return models.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	if !slices.Contains(domain.WithdrawalTypes, row.Type) {
		return models.Transaction{}, ErrNotAWithdrawal
	}
	return transactionModel(row)
}

func (s *WithdrawalService) creditBack(ctx context.Context, q *repository.Queries, row repository.Transaction) error {
	tier, ok := s.catalog.Tier(int(row.TierID))
	if !ok {
		return ErrTierNotFound
	}
	plan, err := settlementPlan(row)
	if err != nil {
		return err
	}

	if _, err := q.GetUserForUpdate(ctx, row.UserID); err != nil {
		return fmt.Errorf("lock user: %w", err)
	}
	p, err := lockTierProgress(ctx, q, repository.FromPgUUID(row.UserID), tier.ID)
	if err != nil {
		return err
	}

	updated := domain.ReverseWithdrawal(p, plan, tier.DailyOrderQuota)
	affected, err := q.UpdateCounter(ctx, counterUpdateParams(updated))
	if err != nil {
		return fmt.Errorf("re-credit counter: %w", err)
	}
	if err := requireExactlyOne(affected, "re-credit counter"); err != nil {
		return err
	}

	if plan.FromBalanceMicros != 0 {
		affected, err := q.AdjustUserTotalBalance(ctx, repository.AdjustUserTotalBalanceParams{
			DeltaMicros: plan.FromBalanceMicros,
			ID:          row.UserID,
		})
		if err != nil {
			return fmt.Errorf("re-credit balance mirror: %w", err)
		}
		if err := requireExactlyOne(affected, "re-credit balance mirror"); err != nil {
			return err
		}
	}
	return nil
}

func (s *WithdrawalService) lockWithdrawal(ctx context.Context, q *repository.Queries, txID uuid.UUID) (repository.Transaction, error) {
	row, err := q.GetTransactionForUpdate(ctx, repository.ToPgUUID(txID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.Transaction{}, ErrTransactionNotFound
		}
		return repository.Transaction{}, fmt.Errorf("lock transaction: %w", err)
	}
	if !slices.Contains(domain.WithdrawalTypes, row.Type) {
		return repository.Transaction{}, ErrNotAWithdrawal
	}
	return row, nil
}

func (s *WithdrawalService) planFor(txType string, p domain.CounterProgress, amountMicros int64) (domain.WithdrawalPlan, error) {
	if txType == domain.TxTypeCommissionWithdrawal {
		return domain.PlanCommissionWithdrawal(p, amountMicros)
	}
	return domain.PlanWithdrawal(p, amountMicros)
}

func (s *WithdrawalService) publish(ctx context.Context, kind string, tx models.Transaction) {
	ev := notify.NewEvent(kind, tx.UserID, map[string]any{
		"transaction_id": tx.ID,
		"tier_id":        tx.TierID,
		"amount_micros":  tx.AmountMicros,
	})
	if err := s.broker.Publish(ctx, ev); err != nil {
		zap.L().Warn("publish withdrawal event", zap.Error(err), zap.String("kind", kind))
	}
}

func settlementPlan(row repository.Transaction) (domain.WithdrawalPlan, error) {
	if len(row.Metadata) == 0 {
		return domain.WithdrawalPlan{}, ErrMissingSettlementMap
	}
	var meta withdrawalMetadata
	if err := json.Unmarshal(row.Metadata, &meta); err != nil {
		return domain.WithdrawalPlan{}, fmt.Errorf("decode settlement split: %w", err)
	}
	if meta.Plan.AmountMicros() == 0 {
		return domain.WithdrawalPlan{}, ErrMissingSettlementMap
	}
	return meta.Plan, nil
}

func lockTierProgress(ctx context.Context, q *repository.Queries, userID uuid.UUID, tierID int) (domain.CounterProgress, error) {
	rows, err := q.GetCountersForUserForUpdate(ctx, repository.ToPgUUID(userID))
	if err != nil {
		return domain.CounterProgress{}, fmt.Errorf("lock counters: %w", err)
	}
	for _, row := range rows {
		if int(row.TierID) == tierID {
			return counterFromRow(row), nil
		}
	}
	return domain.CounterProgress{}, fmt.Errorf("tier %d has no progress row", tierID)
}
