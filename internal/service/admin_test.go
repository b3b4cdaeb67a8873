package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kunledawodu/counterex/internal/domain"
)

func TestResetUserZeroesLadderAndMirror(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "resettee")
	env.seedCounter(t, domain.CounterProgress{
		UserID: user.ID, TierID: 1,
		BalanceMicros: 100_000_000, TotalEarningsMicros: 4_000_000,
		CompletedTasks: 10, CumulativeCompletedTasks: 10,
		DailyCompletedOrders: 3, LastOrderResetDate: domain.Today(),
		IsActive: true,
	})
	env.seedCounter(t, domain.CounterProgress{
		UserID: user.ID, TierID: 2,
		BalanceMicros: 500_000_000, IsActive: true,
	})

	require.NoError(t, env.counters.ResetUser(context.Background(), user.ID, nil))

	for tier := 1; tier <= len(env.catalog); tier++ {
		c := env.counter(t, user.ID, tier)
		assert.Zero(t, c.BalanceMicros, "tier %d", tier)
		assert.Zero(t, c.TotalEarningsMicros, "tier %d", tier)
		assert.Zero(t, c.CumulativeCompletedTasks, "tier %d", tier)
		assert.False(t, c.IsActive, "tier %d", tier)
	}
	assert.Zero(t, env.mirror(t, user.ID))

	report, err := env.integrity.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Clean())
}

func TestRolloverSweepRepairsStaleCounters(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "stale")
	yesterday := domain.DayOf(time.Now().AddDate(0, 0, -1))
	env.seedCounter(t, domain.CounterProgress{
		UserID: user.ID, TierID: 1,
		BalanceMicros: 100_000_000, IsActive: true,
		DailyCompletedOrders: 7, CompletedTasks: 7, CumulativeCompletedTasks: 7,
		LastOrderResetDate: yesterday,
	})

	rows, err := env.reset.RolloverAll(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, rows)

	c := env.counter(t, user.ID, 1)
	assert.Zero(t, c.DailyCompletedOrders)
	assert.Equal(t, domain.Today(), c.LastOrderResetDate)
	// Lifetime progress is untouched by the daily sweep.
	assert.Equal(t, 7, c.CumulativeCompletedTasks)

	// A second sweep finds nothing to repair.
	rows, err = env.reset.RolloverAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, rows)
}

func TestIntegrityDetectsMirrorDrift(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "drifter")
	env.fund(t, user.ID, 1, 100_000_000)

	report, err := env.integrity.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Clean())

	_, err = env.db.Exec(context.Background(),
		"UPDATE users SET total_balance_micros = total_balance_micros + 999 WHERE id = $1", user.ID)
	require.NoError(t, err)

	report, err = env.integrity.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.DriftedUsers)
	assert.False(t, report.Clean())
}

func TestIntegrityDetectsNegativeHoldings(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "negative")

	_, err := env.db.Exec(context.Background(),
		"UPDATE counter_progress SET balance_micros = -1 WHERE user_id = $1 AND tier_id = 1", user.ID)
	require.NoError(t, err)

	report, err := env.integrity.Check(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, report.NegativeCounters)
}

func TestPendingGroupingFromStore(t *testing.T) {
	env := newTestEnv(t)
	alice := eligibleTier(env, t, "alice-grouping", 50_000_000, 0)
	bob := eligibleTier(env, t, "bob-grouping", 50_000_000, 0)

	for i, u := range []struct {
		user string
		id   int
	}{{"a", 1}, {"a", 2}, {"b", 3}} {
		userID := alice.ID
		if u.user == "b" {
			userID = bob.ID
		}
		_, err := env.withdrawals.Request(context.Background(), WithdrawCmd{
			UserID:       userID,
			TierID:       1,
			AmountMicros: 10_000_000,
			ReferenceID:  "wd-group-" + string(rune('0'+i)),
		})
		require.NoError(t, err)
	}

	groups, err := env.grouping.PendingWithdrawals(context.Background(), 100, 0)
	require.NoError(t, err)
	require.Len(t, groups, 2)

	total := 0
	for _, g := range groups {
		total += g.Count
	}
	assert.Equal(t, 3, total)
}

func TestAuthenticate(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "login-user")

	u, err := env.users.Authenticate(context.Background(), "login-user", "hunter2hunter2")
	require.NoError(t, err)
	assert.Equal(t, "login-user", u.Username)

	_, err = env.users.Authenticate(context.Background(), "login-user", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.users.Authenticate(context.Background(), "no-such-user", "hunter2hunter2")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
