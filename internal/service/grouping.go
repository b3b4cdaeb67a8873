package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kunledawodu/counterex/internal/domain"
	"github.com/kunledawodu/counterex/internal/models"
	"github.com/kunledawodu/counterex/internal/repository"
)

// HistoryWindow is the default bucketing window for settled-withdrawal
// history: requests the same user filed within five minutes of the first one
// collapse into a single group.
const HistoryWindow = 5 * time.Minute

// PendingGroup bundles one user's open withdrawal requests. CreatedAt is the
// submission time of the oldest request in the group.
type PendingGroup struct {
	UserID       uuid.UUID            `json:"user_id"`
	CreatedAt    time.Time            `json:"created_at"`
	Count        int                  `json:"count"`
	TotalMicros  int64                `json:"total_micros"`
	Transactions []models.Transaction `json:"transactions"`
}

// HistoryGroup is one user's settled withdrawals within a single time window.
type HistoryGroup struct {
	UserID      uuid.UUID            `json:"user_id"`
	WindowStart time.Time            `json:"window_start"`
	Count       int                  `json:"count"`
	TotalMicros int64                `json:"total_micros"`
	// HasMultipleStatuses flags mixed outcomes inside the window, which
	// usually means a partially frozen batch worth a second look.
	HasMultipleStatuses bool                 `json:"has_multiple_statuses"`
	Transactions        []models.Transaction `json:"transactions"`
}

// GroupPendingWithdrawals folds the rows per user. Input must be ordered by
// user then creation time, which is how the store returns them.
func GroupPendingWithdrawals(txs []models.Transaction) []PendingGroup {
	var groups []PendingGroup
	for _, tx := range txs {
		if len(groups) == 0 || groups[len(groups)-1].UserID != tx.UserID {
			groups = append(groups, PendingGroup{UserID: tx.UserID, CreatedAt: tx.CreatedAt})
		}
		g := &groups[len(groups)-1]
		g.Count++
		g.TotalMicros += tx.AmountMicros
		g.Transactions = append(g.Transactions, tx)
	}
	return groups
}

// GroupWithdrawalHistory buckets rows per user into windows anchored at the
// first transaction of each bucket. Input must be ordered by user then
// creation time.
func GroupWithdrawalHistory(txs []models.Transaction, window time.Duration) []HistoryGroup {
	var groups []HistoryGroup
	for _, tx := range txs {
		startNew := len(groups) == 0
		if !startNew {
			last := &groups[len(groups)-1]
			startNew = last.UserID != tx.UserID || tx.CreatedAt.Sub(last.WindowStart) >= window
		}
		if startNew {
			groups = append(groups, HistoryGroup{UserID: tx.UserID, WindowStart: tx.CreatedAt})
		}
		g := &groups[len(groups)-1]
		if g.Count > 0 && g.Transactions[len(g.Transactions)-1].Status != tx.Status {
			g.HasMultipleStatuses = true
		}
		g.Count++
		g.TotalMicros += tx.AmountMicros
		g.Transactions = append(g.Transactions, tx)
	}
	return groups
}

// GroupingService serves the administrative settlement queues.
type GroupingService struct {
	store QueryStore
}

func NewGroupingService(store QueryStore) *GroupingService {
	return &GroupingService{store: store}
}

// PendingWithdrawals returns open withdrawal requests grouped per user.
func (s *GroupingService) PendingWithdrawals(ctx context.Context, limit, offset int32) ([]PendingGroup, error) {
	txs, err := s.listWithdrawals(ctx, []string{domain.TxStatusPending, domain.TxStatusFrozen}, limit, offset)
	if err != nil {
		return nil, err
	}
	return GroupPendingWithdrawals(txs), nil
}

// WithdrawalHistory returns settled withdrawals grouped per user into
// five-minute windows.
func (s *GroupingService) WithdrawalHistory(ctx context.Context, limit, offset int32) ([]HistoryGroup, error) {
	txs, err := s.listWithdrawals(ctx, []string{domain.TxStatusApproved, domain.TxStatusDenied, domain.TxStatusReversed}, limit, offset)
	if err != nil {
		return nil, err
	}
	return GroupWithdrawalHistory(txs, HistoryWindow), nil
}

func (s *GroupingService) listWithdrawals(ctx context.Context, statuses []string, limit, offset int32) ([]models.Transaction, error) {
	rows, err := s.store.Queries().ListTransactionsByTypeAndStatus(ctx, repository.ListTransactionsByTypeAndStatusParams{
		Types:    domain.WithdrawalTypes,
		Statuses: statuses,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list withdrawals: %w", err)
	}
	out := make([]models.Transaction, 0, len(rows))
	for _, row := range rows {
		tx, err := transactionModel(row)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}
