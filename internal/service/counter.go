package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kunledawodu/counterex/internal/domain"
	"github.com/kunledawodu/counterex/internal/models"
	"github.com/kunledawodu/counterex/internal/notify"
	"github.com/kunledawodu/counterex/internal/repository"
)

// CounterService manages the per-tier progress ladder of a user.
type CounterService struct {
	store   QueryStore
	catalog domain.Catalog
	audit   *AuditService
	broker  notify.Broker
}

func NewCounterService(store QueryStore, catalog domain.Catalog, audit *AuditService, broker notify.Broker) *CounterService {
	return &CounterService{store: store, catalog: catalog, audit: audit, broker: broker}
}

// Catalog exposes the compiled-in tier ladder.
func (s *CounterService) Catalog() domain.Catalog {
	return s.catalog
}

func (s *CounterService) ensureAll(ctx context.Context, q *repository.Queries, userID uuid.UUID) error {
	for _, t := range s.catalog {
		if _, err := q.EnsureCounter(ctx, repository.EnsureCounterParams{
			UserID: repository.ToPgUUID(userID),
			TierID: int32(t.ID),
		}); err != nil {
			return fmt.Errorf("ensure counter tier %d: %w", t.ID, err)
		}
	}
	return nil
}

// Sync makes sure every tier has a progress row for the user.
func (s *CounterService) Sync(ctx context.Context, userID uuid.UUID) error {
	return s.ensureAll(ctx, s.store.Queries(), userID)
}

// ListForUser returns the user's ladder ordered by tier. Daily counters left
// over from a previous calendar day read as zero; the stored row is repaired
// on the next write path.
func (s *CounterService) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Counter, error) {
	if err := s.Sync(ctx, userID); err != nil {
		return nil, err
	}
	rows, err := s.store.Queries().GetCountersForUser(ctx, repository.ToPgUUID(userID))
	if err != nil {
		return nil, fmt.Errorf("list counters: %w", err)
	}

	today := domain.Today()
	out := make([]models.Counter, 0, len(rows))
	for _, row := range rows {
		c := counterModel(row)
		if c.LastOrderResetDate != today.String() {
			c.DailyCompletedOrders = 0
		}
		out = append(out, c)
	}
	return out, nil
}

// ResetUser zeroes every tier of a user, cumulative progress included, and
// rebases the aggregate balance mirror. Administrative operation.
func (s *CounterService) ResetUser(ctx context.Context, userID uuid.UUID, actorID *uuid.UUID) error {
	err := s.store.RunInTx(ctx, func(q *repository.Queries) error {
		if _, err := q.GetUserForUpdate(ctx, repository.ToPgUUID(userID)); err != nil {
			return fmt.Errorf("lock user: %w", err)
		}
		rows, err := q.GetCountersForUserForUpdate(ctx, repository.ToPgUUID(userID))
		if err != nil {
			return fmt.Errorf("lock counters: %w", err)
		}

		var balanceSum int64
		for _, row := range rows {
			balanceSum += row.BalanceMicros
		}

		if _, err := q.ResetCountersForUser(ctx, repository.ToPgUUID(userID)); err != nil {
			return fmt.Errorf("reset counters: %w", err)
		}
		if balanceSum != 0 {
			affected, err := q.AdjustUserTotalBalance(ctx, repository.AdjustUserTotalBalanceParams{
				DeltaMicros: -balanceSum,
				ID:          repository.ToPgUUID(userID),
			})
			if err != nil {
				return fmt.Errorf("rebase balance mirror: %w", err)
			}
			if err := requireExactlyOne(affected, "rebase balance mirror"); err != nil {
				return err
			}
		}

		meta, _ := json.Marshal(map[string]any{"released_balance_micros": balanceSum})
		return s.audit.Write(ctx, q, "counter", userID, actorID, "counter.reset_all", "", "", meta)
	})
	if err != nil {
		return err
	}

	if err := s.broker.Publish(ctx, notify.NewEvent(notify.KindCountersReset, userID, nil)); err != nil {
		zap.L().Warn("publish counters reset", zap.Error(err), zap.String("user_id", userID.String()))
	}
	return nil
}
