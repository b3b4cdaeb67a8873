package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kunledawodu/counterex/internal/domain"
)

func TestDepositApprovalFundsTier(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "funder")

	env.fund(t, user.ID, 1, 100_000_000)

	c := env.counter(t, user.ID, 1)
	assert.Equal(t, int64(100_000_000), c.BalanceMicros)
	assert.True(t, c.IsActive)
	assert.False(t, c.CanWithdraw)
	assert.Equal(t, int64(100_000_000), env.mirror(t, user.ID))
}

func TestDepositBelowTierMinimum(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "cheapskate")

	_, err := env.deposits.Request(context.Background(), DepositCmd{
		UserID:       user.ID,
		TierID:       2,
		AmountMicros: 100_000_000,
		ReferenceID:  "dep-low",
	})
	assert.ErrorIs(t, err, ErrDepositBelowMinimum)
}

func TestDepositDenyLeavesCounterUntouched(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "denied")

	tx, err := env.deposits.Request(context.Background(), DepositCmd{
		UserID:       user.ID,
		TierID:       1,
		AmountMicros: 100_000_000,
		ReferenceID:  "dep-deny",
	})
	require.NoError(t, err)

	out, err := env.deposits.Deny(context.Background(), tx.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusDenied, out.Status)

	c := env.counter(t, user.ID, 1)
	assert.Zero(t, c.BalanceMicros)
	assert.False(t, c.IsActive)
	assert.Zero(t, env.mirror(t, user.ID))
}

func TestCompleteTaskCreditsCommission(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "worker")
	env.fund(t, user.ID, 1, 100_000_000)

	result, err := env.exchanges.CompleteTask(context.Background(), CompleteTaskCmd{
		UserID:       user.ID,
		TierID:       1,
		AmountMicros: 100_000_000,
		ReferenceID:  "task-1",
	})
	require.NoError(t, err)

	// 0.4% of 100 units.
	assert.Equal(t, int64(400_000), result.CommissionMicros)
	assert.Equal(t, domain.TxStatusCompleted, result.Transaction.Status)
	assert.Equal(t, domain.TxTypeExchange, result.Transaction.Type)
	assert.False(t, result.Replayed)

	c := env.counter(t, user.ID, 1)
	assert.Equal(t, int64(400_000), c.TotalEarningsMicros)
	assert.Equal(t, 1, c.DailyCompletedOrders)
	assert.Equal(t, 1, c.CumulativeCompletedTasks)
	assert.Equal(t, domain.Today(), c.LastOrderResetDate)

	// Principal never changes on a task, only earnings do.
	assert.Equal(t, int64(100_000_000), c.BalanceMicros)
	assert.Equal(t, int64(100_000_000), env.mirror(t, user.ID))
}

func TestCompleteTaskReplaysOnDuplicateReference(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "replayer")
	env.fund(t, user.ID, 1, 100_000_000)

	first, err := env.exchanges.CompleteTask(context.Background(), CompleteTaskCmd{
		UserID:       user.ID,
		TierID:       1,
		AmountMicros: 100_000_000,
		ReferenceID:  "task-dup",
	})
	require.NoError(t, err)

	second, err := env.exchanges.CompleteTask(context.Background(), CompleteTaskCmd{
		UserID:       user.ID,
		TierID:       1,
		AmountMicros: 100_000_000,
		ReferenceID:  "task-dup",
	})
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Transaction.ID, second.Transaction.ID)

	c := env.counter(t, user.ID, 1)
	assert.Equal(t, 1, c.CumulativeCompletedTasks)
}

func TestCompleteTaskRequiresFunding(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "unfunded")

	_, err := env.exchanges.CompleteTask(context.Background(), CompleteTaskCmd{
		UserID:       user.ID,
		TierID:       1,
		AmountMicros: 100_000_000,
		ReferenceID:  "task-unfunded",
	})
	assert.ErrorIs(t, err, domain.ErrCounterNotActive)
}

func TestCompleteTaskRejectsOutOfBoundsAmount(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "bounds")
	env.fund(t, user.ID, 1, 100_000_000)

	_, err := env.exchanges.CompleteTask(context.Background(), CompleteTaskCmd{
		UserID:       user.ID,
		TierID:       1,
		AmountMicros: 1,
		ReferenceID:  "task-tiny",
	})
	assert.ErrorIs(t, err, domain.ErrAmountOutOfBounds)
}

func TestCompleteTaskUnknownTier(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "ghost-tier")

	_, err := env.exchanges.CompleteTask(context.Background(), CompleteTaskCmd{
		UserID:      user.ID,
		TierID:      99,
		ReferenceID: "task-ghost",
	})
	assert.ErrorIs(t, err, ErrTierNotFound)
}

func TestTierCompletionTransfersPrincipal(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "climber")
	env.fund(t, user.ID, 1, 100_000_000)

	tier, _ := env.catalog.Tier(1)
	var last TaskResult
	for i := 0; i < tier.DailyOrderQuota; i++ {
		var err error
		last, err = env.exchanges.CompleteTask(context.Background(), CompleteTaskCmd{
			UserID:       user.ID,
			TierID:       1,
			AmountMicros: 100_000_000,
			ReferenceID:  fmt.Sprintf("task-climb-%d", i),
		})
		require.NoError(t, err, "task %d", i)
	}

	assert.Equal(t, 2, last.TransferredToTier)

	t1 := env.counter(t, user.ID, 1)
	assert.Zero(t, t1.BalanceMicros)
	assert.Equal(t, int64(20*400_000), t1.TotalEarningsMicros)
	assert.True(t, t1.CanWithdraw)
	assert.False(t, t1.IsActive)
	assert.Equal(t, tier.DailyOrderQuota, t1.CumulativeCompletedTasks)

	t2 := env.counter(t, user.ID, 2)
	assert.Equal(t, int64(100_000_000), t2.BalanceMicros)
	assert.True(t, t2.IsActive)

	// Principal moved between tiers, the aggregate did not change.
	assert.Equal(t, int64(100_000_000), env.mirror(t, user.ID))

	// The completed tier no longer accepts tasks.
	_, err := env.exchanges.CompleteTask(context.Background(), CompleteTaskCmd{
		UserID:       user.ID,
		TierID:       1,
		AmountMicros: 100_000_000,
		ReferenceID:  "task-after-climb",
	})
	assert.ErrorIs(t, err, domain.ErrCounterNotActive)
}

func TestTierTransferAuditRecordsMovedAmount(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "auditee")
	env.fund(t, user.ID, 1, 100_000_000)
	// Tier 2 already holds its own deposit before the transfer arrives.
	env.fund(t, user.ID, 2, 500_000_000)

	tier, _ := env.catalog.Tier(1)
	for i := 0; i < tier.DailyOrderQuota; i++ {
		_, err := env.exchanges.CompleteTask(context.Background(), CompleteTaskCmd{
			UserID:       user.ID,
			TierID:       1,
			AmountMicros: 100_000_000,
			ReferenceID:  fmt.Sprintf("task-audit-%d", i),
		})
		require.NoError(t, err, "task %d", i)
	}

	t2 := env.counter(t, user.ID, 2)
	assert.Equal(t, int64(600_000_000), t2.BalanceMicros)

	var raw []byte
	err := env.db.QueryRow(context.Background(),
		"SELECT metadata FROM audit_log WHERE action = 'counter.tier_transfer' AND entity_id = $1",
		user.ID).Scan(&raw)
	require.NoError(t, err)

	var meta struct {
		FromTier     int   `json:"from_tier"`
		ToTier       int   `json:"to_tier"`
		AmountMicros int64 `json:"amount_micros"`
	}
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, 1, meta.FromTier)
	assert.Equal(t, 2, meta.ToTier)
	assert.Equal(t, int64(100_000_000), meta.AmountMicros, "audit records the amount moved, not the destination total")
}

func TestCompleteTaskConcurrentSameUser(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "racer")
	env.fund(t, user.ID, 1, 100_000_000)

	n := 10
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			_, err := env.exchanges.CompleteTask(context.Background(), CompleteTaskCmd{
				UserID:       user.ID,
				TierID:       1,
				AmountMicros: 100_000_000,
				ReferenceID:  fmt.Sprintf("task-race-%d-%s", i, uuid.NewString()),
			})
			errs <- err
		}(i)
	}
	for i := 0; i < n; i++ {
		assert.NoError(t, <-errs)
	}

	c := env.counter(t, user.ID, 1)
	assert.Equal(t, n, c.CumulativeCompletedTasks)
	assert.Equal(t, int64(n)*400_000, c.TotalEarningsMicros)

	report, err := env.integrity.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Clean())
}
