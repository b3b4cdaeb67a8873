package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kunledawodu/counterex/internal/domain"
	"github.com/kunledawodu/counterex/internal/models"
)

func withdrawalAt(userID uuid.UUID, amount int64, status string, at time.Time) models.Transaction {
	return models.Transaction{
		ID:           uuid.New(),
		UserID:       userID,
		Type:         domain.TxTypeWithdrawal,
		AmountMicros: amount,
		Status:       status,
		CreatedAt:    at,
	}
}

func TestGroupPendingWithdrawalsByUser(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	alice := uuid.New()
	bob := uuid.New()

	groups := GroupPendingWithdrawals([]models.Transaction{
		withdrawalAt(alice, 100, domain.TxStatusPending, base),
		withdrawalAt(alice, 250, domain.TxStatusPending, base.Add(time.Minute)),
		withdrawalAt(bob, 400, domain.TxStatusPending, base.Add(2*time.Minute)),
	})

	require.Len(t, groups, 2)
	assert.Equal(t, alice, groups[0].UserID)
	assert.Equal(t, 2, groups[0].Count)
	assert.Equal(t, int64(350), groups[0].TotalMicros)
	assert.Equal(t, base, groups[0].CreatedAt, "anchored at the oldest request")
	assert.Equal(t, bob, groups[1].UserID)
	assert.Equal(t, int64(400), groups[1].TotalMicros)
	assert.Equal(t, base.Add(2*time.Minute), groups[1].CreatedAt)
}

func TestGroupPendingWithdrawalsEmpty(t *testing.T) {
	assert.Empty(t, GroupPendingWithdrawals(nil))
}

func TestGroupWithdrawalHistoryWindows(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	alice := uuid.New()

	groups := GroupWithdrawalHistory([]models.Transaction{
		withdrawalAt(alice, 100, domain.TxStatusApproved, base),
		withdrawalAt(alice, 200, domain.TxStatusApproved, base.Add(4*time.Minute)),
		withdrawalAt(alice, 300, domain.TxStatusApproved, base.Add(6*time.Minute)),
	}, HistoryWindow)

	require.Len(t, groups, 2)
	assert.Equal(t, 2, groups[0].Count)
	assert.Equal(t, int64(300), groups[0].TotalMicros)
	assert.Equal(t, base, groups[0].WindowStart)
	assert.Equal(t, 1, groups[1].Count)
	assert.Equal(t, base.Add(6*time.Minute), groups[1].WindowStart)
}

func TestGroupWithdrawalHistoryWindowAnchorsAtFirst(t *testing.T) {
	// Windows anchor at the first row of the bucket, they do not slide.
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	alice := uuid.New()

	groups := GroupWithdrawalHistory([]models.Transaction{
		withdrawalAt(alice, 1, domain.TxStatusApproved, base),
		withdrawalAt(alice, 1, domain.TxStatusApproved, base.Add(3*time.Minute)),
		withdrawalAt(alice, 1, domain.TxStatusApproved, base.Add(5*time.Minute)),
		withdrawalAt(alice, 1, domain.TxStatusApproved, base.Add(7*time.Minute)),
	}, HistoryWindow)

	require.Len(t, groups, 2)
	assert.Equal(t, 2, groups[0].Count)
	assert.Equal(t, 2, groups[1].Count)
	assert.Equal(t, base.Add(5*time.Minute), groups[1].WindowStart)
}

func TestGroupWithdrawalHistorySplitsUsers(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	alice := uuid.New()
	bob := uuid.New()

	groups := GroupWithdrawalHistory([]models.Transaction{
		withdrawalAt(alice, 100, domain.TxStatusApproved, base),
		withdrawalAt(bob, 200, domain.TxStatusApproved, base.Add(time.Minute)),
	}, HistoryWindow)

	require.Len(t, groups, 2)
	assert.Equal(t, alice, groups[0].UserID)
	assert.Equal(t, bob, groups[1].UserID)
}

func TestGroupWithdrawalHistoryFlagsMixedStatuses(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	alice := uuid.New()

	groups := GroupWithdrawalHistory([]models.Transaction{
		withdrawalAt(alice, 100, domain.TxStatusApproved, base),
		withdrawalAt(alice, 200, domain.TxStatusDenied, base.Add(time.Minute)),
	}, HistoryWindow)

	require.Len(t, groups, 1)
	assert.True(t, groups[0].HasMultipleStatuses)

	uniform := GroupWithdrawalHistory([]models.Transaction{
		withdrawalAt(alice, 100, domain.TxStatusApproved, base),
		withdrawalAt(alice, 200, domain.TxStatusApproved, base.Add(time.Minute)),
	}, HistoryWindow)

	require.Len(t, uniform, 1)
	assert.False(t, uniform[0].HasMultipleStatuses)
}
