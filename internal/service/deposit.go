package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/kunledawodu/counterex/internal/domain"
	"github.com/kunledawodu/counterex/internal/models"
	"github.com/kunledawodu/counterex/internal/notify"
	"github.com/kunledawodu/counterex/internal/repository"
)

var ErrDepositBelowMinimum = errors.New("deposit below tier minimum")

// DepositService funds counter tiers. Deposits are requested by users and
// credited only once an administrator approves them.
type DepositService struct {
	store   QueryStore
	catalog domain.Catalog
	audit   *AuditService
	broker  notify.Broker
}

func NewDepositService(store QueryStore, catalog domain.Catalog, audit *AuditService, broker notify.Broker) *DepositService {
	return &DepositService{store: store, catalog: catalog, audit: audit, broker: broker}
}

type DepositCmd struct {
	UserID       uuid.UUID
	TierID       int
	AmountMicros int64
	ReferenceID  string
}

// Request records a PENDING deposit after checking the tier's funding floor.
func (s *DepositService) Request(ctx context.Context, cmd DepositCmd) (models.Transaction, error) {
	if cmd.ReferenceID == "" {
		return models.Transaction{}, errors.New("reference_id is required")
	}
	tier, ok := s.catalog.Tier(cmd.TierID)
	if !ok {
		return models.Transaction{}, ErrTierNotFound
	}
	if cmd.AmountMicros < tier.MinDepositMicros {
		return models.Transaction{}, ErrDepositBelowMinimum
	}

	if existing, err := s.store.Queries().CheckTransactionIdempotency(ctx, cmd.ReferenceID); err == nil {
		return transactionModel(existing)
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return models.Transaction{}, fmt.Errorf("check idempotency: %w", err)
	}

	var out models.Transaction
	err := s.store.RunInTx(ctx, func(q *repository.Queries) error {
		row, err := q.CreateTransaction(ctx, repository.CreateTransactionParams{
			ID:           repository.ToPgUUID(uuid.New()),
			UserID:       repository.ToPgUUID(cmd.UserID),
			TierID:       int32(tier.ID),
			Type:         domain.TxTypeDeposit,
			AmountMicros: cmd.AmountMicros,
			Status:       domain.TxStatusPending,
			Description:  fmt.Sprintf("deposit into tier %d", tier.ID),
			ReferenceID:  cmd.ReferenceID,
		})
		if err != nil {
			return fmt.Errorf("create deposit request: %w", err)
		}
		if err := s.audit.Write(ctx, q, "transaction", repository.FromPgUUID(row.ID), nil, "deposit.requested", "", domain.TxStatusPending, nil); err != nil {
			return err
		}
		out, err = transactionModel(row)
		return err
	})
	return out, err
}

// Approve credits a pending deposit into the tier's principal and activates
// the counter.
func (s *DepositService) Approve(ctx context.Context, txID uuid.UUID, actorID *uuid.UUID) (models.Transaction, error) {
	var out models.Transaction
	err := s.store.RunInTx(ctx, func(q *repository.Queries) error {
		row, err := s.lockDeposit(ctx, q, txID)
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

		p.BalanceMicros += row.AmountMicros
		p.IsActive = true
		affected, err := q.UpdateCounter(ctx, counterUpdateParams(p))
		if err != nil {
			return fmt.Errorf("credit counter: %w", err)
		}
		if err := requireExactlyOne(affected, "credit counter"); err != nil {
			return err
		}

		affected, err = q.AdjustUserTotalBalance(ctx, repository.AdjustUserTotalBalanceParams{
			DeltaMicros: row.AmountMicros,
			ID:          row.UserID,
		})
		if err != nil {
			return fmt.Errorf("credit balance mirror: %w", err)
		}
		if err := requireExactlyOne(affected, "credit balance mirror"); err != nil {
			return err
		}

		meta, _ := json.Marshal(map[string]any{"credited_micros": row.AmountMicros})
		if err := transitionTransactionState(ctx, q, s.audit, txID, domain.TxStatusApproved, actorID, "deposit.approve", meta); err != nil {
			return err
		}

		row.Status = domain.TxStatusApproved
		out, err = transactionModel(row)
		return err
	})
	if err != nil {
		return models.Transaction{}, err
	}

	s.publish(ctx, notify.KindDepositApproved, out)
	return out, nil
}

// Deny rejects a pending deposit.
func (s *DepositService) Deny(ctx context.Context, txID uuid.UUID, actorID *uuid.UUID) (models.Transaction, error) {
	var out models.Transaction
	err := s.store.RunInTx(ctx, func(q *repository.Queries) error {
		row, err := s.lockDeposit(ctx, q, txID)
		if err != nil {
			return err
		}
		if err := transitionTransactionState(ctx, q, s.audit, txID, domain.TxStatusDenied, actorID, "deposit.deny", nil); err != nil {
			return err
		}
		row.Status = domain.TxStatusDenied
		out, err = transactionModel(row)
		return err
	})
	if err != nil {
		return models.Transaction{}, err
	}

	s.publish(ctx, notify.KindDepositDenied, out)
	return out, nil
}

func (s *DepositService) lockDeposit(ctx context.Context, q *repository.Queries, txID uuid.UUID) (repository.Transaction, error) {
	row, err := q.GetTransactionForUpdate(ctx, repository.ToPgUUID(txID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.Transaction{}, ErrTransactionNotFound
		}
		return repository.Transaction{}, fmt.Errorf("lock transaction: %w", err)
	}
	if row.Type != domain.TxTypeDeposit {
		return repository.Transaction{}, fmt.Errorf("transaction %s is not a deposit", txID)
	}
	return row, nil
}

func (s *DepositService) publish(ctx context.Context, kind string, tx models.Transaction) {
	ev := notify.NewEvent(kind, tx.UserID, map[string]any{
		"transaction_id": tx.ID,
		"tier_id":        tx.TierID,
		"amount_micros":  tx.AmountMicros,
	})
	if err := s.broker.Publish(ctx, ev); err != nil {
		zap.L().Warn("publish deposit event", zap.Error(err), zap.String("kind", kind))
	}
}
