package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kunledawodu/counterex/internal/domain"
	"github.com/kunledawodu/counterex/internal/models"
	"github.com/kunledawodu/counterex/internal/notify"
	"github.com/kunledawodu/counterex/internal/observability"
	"github.com/kunledawodu/counterex/internal/repository"
)

var (
	ErrTierNotFound = errors.New("unknown tier")
	ErrPairNotFound = errors.New("currency pair not found")
)

// ExchangeService credits simulated exchange tasks against the counter ladder.
type ExchangeService struct {
	store   QueryStore
	catalog domain.Catalog
	audit   *AuditService
	broker  notify.Broker
}

func NewExchangeService(store QueryStore, catalog domain.Catalog, audit *AuditService, broker notify.Broker) *ExchangeService {
	return &ExchangeService{store: store, catalog: catalog, audit: audit, broker: broker}
}

type CompleteTaskCmd struct {
	UserID uuid.UUID
	TierID int
	// AmountMicros zero means the service draws an amount within tier bounds.
	AmountMicros int64
	// Pair is an optional "BASE/QUOTE" code. Empty uses a unit rate.
	Pair        string
	ReferenceID string
}

type TaskResult struct {
	Transaction       models.Transaction
	Counter           models.Counter
	CommissionMicros  int64
	TransferredToTier int
	Replayed          bool
}

// CompleteTask runs one simulated exchange through the quota state machine.
// The whole decision, including day rollover and the automatic principal
// transfer on tier completion, commits atomically under row locks.
func (s *ExchangeService) CompleteTask(ctx context.Context, cmd CompleteTaskCmd) (TaskResult, error) {
	if cmd.ReferenceID == "" {
		return TaskResult{}, errors.New("reference_id is required")
	}
	tier, ok := s.catalog.Tier(cmd.TierID)
	if !ok {
		return TaskResult{}, ErrTierNotFound
	}

	if existing, err := s.store.Queries().CheckTransactionIdempotency(ctx, cmd.ReferenceID); err == nil {
		return s.replayResult(ctx, existing)
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return TaskResult{}, fmt.Errorf("check idempotency: %w", err)
	}

	rate, pairCode, err := s.resolveRate(ctx, cmd.Pair)
	if err != nil {
		return TaskResult{}, err
	}

	amount := cmd.AmountMicros
	if amount == 0 {
		amount = drawAmount(tier)
	}

	var result TaskResult
	err = s.store.RunInTx(ctx, func(q *repository.Queries) error {
		rows, err := q.GetCountersForUserForUpdate(ctx, repository.ToPgUUID(cmd.UserID))
		if err != nil {
			return fmt.Errorf("lock counters: %w", err)
		}

		today := domain.Today()
		var tierProgress *domain.CounterProgress
		completedToday := 0
		for i := range rows {
			p := counterFromRow(rows[i])
			if p.Rollover(today) && p.TierID != tier.ID {
				affected, err := q.UpdateCounter(ctx, counterUpdateParams(p))
				if err != nil {
					return fmt.Errorf("roll over tier %d: %w", p.TierID, err)
				}
				if err := requireExactlyOne(affected, "roll over counter"); err != nil {
					return err
				}
			}
			completedToday += p.DailyCompletedOrders
			if p.TierID == tier.ID {
				tierProgress = &p
			}
		}
		if tierProgress == nil {
			return domain.ErrCounterNotActive
		}

		outcome, err := domain.CompleteTask(*tierProgress, domain.TaskInput{
			Tier:           tier,
			Today:          today,
			AmountMicros:   amount,
			Rate:           rate,
			CompletedToday: completedToday,
			DailyBudget:    s.catalog.DailyTaskBudget(),
		})
		if err != nil {
			return err
		}

		affected, err := q.UpdateCounter(ctx, counterUpdateParams(outcome.Progress))
		if err != nil {
			return fmt.Errorf("update counter: %w", err)
		}
		if err := requireExactlyOne(affected, "update counter"); err != nil {
			return err
		}

		meta, _ := json.Marshal(map[string]any{
			"commission_micros": outcome.CommissionMicros,
			"amount_micros":     amount,
		})
		txRow, err := q.CreateTransaction(ctx, repository.CreateTransactionParams{
			ID:           repository.ToPgUUID(uuid.New()),
			UserID:       repository.ToPgUUID(cmd.UserID),
			TierID:       int32(tier.ID),
			Type:         domain.TxTypeExchange,
			AmountMicros: amount,
			FxRate:       rate.String(),
			Pair:         pairCode,
			Status:       domain.TxStatusCompleted,
			Description:  fmt.Sprintf("simulated exchange on tier %d", tier.ID),
			Metadata:     meta,
			ReferenceID:  cmd.ReferenceID,
		})
		if err != nil {
			return fmt.Errorf("create exchange transaction: %w", err)
		}

		if _, err := q.CreateTransaction(ctx, repository.CreateTransactionParams{
			ID:           repository.ToPgUUID(uuid.New()),
			UserID:       repository.ToPgUUID(cmd.UserID),
			TierID:       int32(tier.ID),
			Type:         domain.TxTypeCommission,
			AmountMicros: outcome.CommissionMicros,
			FxRate:       rate.String(),
			Pair:         pairCode,
			Status:       domain.TxStatusCompleted,
			Description:  fmt.Sprintf("commission for tier %d exchange", tier.ID),
			ReferenceID:  cmd.ReferenceID + ":commission",
		}); err != nil {
			return fmt.Errorf("create commission transaction: %w", err)
		}

		finalProgress := outcome.Progress
		transferredTo := 0
		if outcome.TransferDue && outcome.Progress.BalanceMicros > 0 {
			if next, ok := s.catalog.NextTier(tier.ID); ok {
				var nextRow *repository.CounterProgress
				for i := range rows {
					if int(rows[i].TierID) == next.ID {
						nextRow = &rows[i]
						break
					}
				}
				if nextRow == nil {
					return fmt.Errorf("tier %d has no progress row", next.ID)
				}
				movedMicros := outcome.Progress.BalanceMicros
				src, dst := domain.TransferPrincipal(outcome.Progress, counterFromRow(*nextRow))
				dst.Rollover(today)
				for _, p := range []domain.CounterProgress{src, dst} {
					affected, err := q.UpdateCounter(ctx, counterUpdateParams(p))
					if err != nil {
						return fmt.Errorf("transfer principal to tier %d: %w", next.ID, err)
					}
					if err := requireExactlyOne(affected, "transfer principal"); err != nil {
						return err
					}
				}
				transferMeta, _ := json.Marshal(map[string]any{
					"from_tier":     tier.ID,
					"to_tier":       next.ID,
					"amount_micros": movedMicros,
				})
				if err := s.audit.Write(ctx, q, "counter", cmd.UserID, nil, "counter.tier_transfer", "", "", transferMeta); err != nil {
					return err
				}
				finalProgress = src
				transferredTo = next.ID
			}
		}

		if err := s.audit.Write(ctx, q, "transaction", repository.FromPgUUID(txRow.ID), nil, "exchange.task_completed", "", domain.TxStatusCompleted, meta); err != nil {
			return err
		}

		tx, err := transactionModel(txRow)
		if err != nil {
			return err
		}
		result = TaskResult{
			Transaction:       tx,
			Counter:           counterModelFromDomain(finalProgress),
			CommissionMicros:  outcome.CommissionMicros,
			TransferredToTier: transferredTo,
		}
		return nil
	})
	if err != nil {
		if isTaskRuleRejection(err) {
			observability.IncrementTaskCompletion(tier.ID, "rejected")
		}
		return TaskResult{}, err
	}

	observability.IncrementTaskCompletion(tier.ID, "granted")
	s.publishTaskEvents(ctx, cmd.UserID, tier.ID, result)
	return result, nil
}

func (s *ExchangeService) publishTaskEvents(ctx context.Context, userID uuid.UUID, tierID int, result TaskResult) {
	ev := notify.NewEvent(notify.KindTaskCompleted, userID, map[string]any{
		"tier_id":           tierID,
		"commission_micros": result.CommissionMicros,
		"transaction_id":    result.Transaction.ID,
	})
	if err := s.broker.Publish(ctx, ev); err != nil {
		zap.L().Warn("publish task completion", zap.Error(err), zap.String("user_id", userID.String()))
	}
	if result.TransferredToTier != 0 {
		observability.IncrementTierTransfer(tierID)
		ev := notify.NewEvent(notify.KindTierTransferred, userID, map[string]any{
			"from_tier": tierID,
			"to_tier":   result.TransferredToTier,
		})
		if err := s.broker.Publish(ctx, ev); err != nil {
			zap.L().Warn("publish tier transfer", zap.Error(err), zap.String("user_id", userID.String()))
		}
	}
}

func (s *ExchangeService) replayResult(ctx context.Context, row repository.Transaction) (TaskResult, error) {
	tx, err := transactionModel(row)
	if err != nil {
		return TaskResult{}, err
	}
	result := TaskResult{Transaction: tx, Replayed: true}
	rows, err := s.store.Queries().GetCountersForUser(ctx, row.UserID)
	if err != nil {
		return TaskResult{}, fmt.Errorf("fetch counters for replay: %w", err)
	}
	for _, r := range rows {
		if r.TierID == row.TierID {
			result.Counter = counterModel(r)
			break
		}
	}
	return result, nil
}

func (s *ExchangeService) resolveRate(ctx context.Context, pair string) (decimal.Decimal, string, error) {
	if pair == "" {
		return decimal.NewFromInt(1), "", nil
	}
	base, quote, ok := strings.Cut(strings.ToUpper(pair), "/")
	if !ok {
		return decimal.Decimal{}, "", fmt.Errorf("malformed pair code %q", pair)
	}
	row, err := s.store.Queries().GetCurrencyPairByCode(ctx, repository.GetCurrencyPairByCodeParams{Base: base, Quote: quote})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Decimal{}, "", ErrPairNotFound
		}
		return decimal.Decimal{}, "", fmt.Errorf("get currency pair: %w", err)
	}
	if !row.IsActive {
		return decimal.Decimal{}, "", ErrPairNotFound
	}
	rate, err := decimal.NewFromString(row.Rate)
	if err != nil {
		return decimal.Decimal{}, "", fmt.Errorf("parse pair rate %q: %w", row.Rate, err)
	}
	return rate, base + "/" + quote, nil
}

func drawAmount(t domain.TierConfig) int64 {
	span := t.ExchangeMaxMicros - t.ExchangeMinMicros
	if span <= 0 {
		return t.ExchangeMinMicros
	}
	return t.ExchangeMinMicros + rand.Int63n(span+1)
}

func isTaskRuleRejection(err error) bool {
	for _, rule := range []error{
		domain.ErrCounterNotActive,
		domain.ErrTierQuotaSatisfied,
		domain.ErrDailyCapReached,
		domain.ErrDailyBudgetExhausted,
		domain.ErrAmountOutOfBounds,
	} {
		if errors.Is(err, rule) {
			return true
		}
	}
	return false
}
