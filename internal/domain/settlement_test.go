package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func holdings(balance, earnings int64) CounterProgress {
	p := NewCounterProgress(uuid.New(), 1)
	p.BalanceMicros = balance
	p.TotalEarningsMicros = earnings
	p.CompletedTasks = 20
	p.CumulativeCompletedTasks = 20
	p.DailyCompletedOrders = 20
	p.IsActive = true
	p.CanWithdraw = true
	return p
}

func TestPlanWithdrawal_BalanceFirst(t *testing.T) {
	p := holdings(50_000_000, 30_000_000)

	pl, err := PlanWithdrawal(p, 70_000_000)
	require.NoError(t, err)

	assert.Equal(t, int64(50_000_000), pl.FromBalanceMicros)
	assert.Equal(t, int64(20_000_000), pl.FromEarningsMicros)
	assert.Equal(t, int64(70_000_000), pl.AmountMicros())
}

func TestPlanWithdrawal_EarningsUntouchedWhenBalanceCovers(t *testing.T) {
	p := holdings(50_000_000, 30_000_000)

	pl, err := PlanWithdrawal(p, 40_000_000)
	require.NoError(t, err)

	assert.Equal(t, int64(40_000_000), pl.FromBalanceMicros)
	assert.Equal(t, int64(0), pl.FromEarningsMicros)
}

func TestPlanWithdrawal_InsufficientTotal(t *testing.T) {
	p := holdings(50_000_000, 30_000_000)

	_, err := PlanWithdrawal(p, 90_000_000)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestPlanWithdrawal_RejectsNonPositive(t *testing.T) {
	p := holdings(50_000_000, 30_000_000)

	_, err := PlanWithdrawal(p, 0)
	assert.ErrorIs(t, err, ErrNonPositiveAmount)

	_, err = PlanWithdrawal(p, -5)
	assert.ErrorIs(t, err, ErrNonPositiveAmount)
}

func TestPlanCommissionWithdrawal(t *testing.T) {
	p := holdings(50_000_000, 30_000_000)

	pl, err := PlanCommissionWithdrawal(p, 30_000_000)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pl.FromBalanceMicros)
	assert.Equal(t, int64(30_000_000), pl.FromEarningsMicros)

	_, err = PlanCommissionWithdrawal(p, 30_000_001)
	assert.ErrorIs(t, err, ErrInsufficientEarnings)
}

func TestApplyWithdrawal_PartialLeavesFlags(t *testing.T) {
	p := holdings(50_000_000, 30_000_000)
	pl, err := PlanWithdrawal(p, 70_000_000)
	require.NoError(t, err)

	after := ApplyWithdrawal(p, pl)

	assert.Equal(t, int64(0), after.BalanceMicros)
	assert.Equal(t, int64(10_000_000), after.TotalEarningsMicros)
	assert.True(t, after.IsActive, "tier still holds earnings")
	assert.True(t, after.CanWithdraw)
	assert.Equal(t, 20, after.CumulativeCompletedTasks)
	require.NoError(t, after.CheckInvariants(20))
}

func TestApplyWithdrawal_FullDepletionResetsTier(t *testing.T) {
	p := holdings(50_000_000, 30_000_000)
	pl, err := PlanWithdrawal(p, p.HoldingsMicros())
	require.NoError(t, err)

	after := ApplyWithdrawal(p, pl)

	assert.True(t, after.Depleted())
	assert.Equal(t, 0, after.CompletedTasks)
	assert.Equal(t, 0, after.DailyCompletedOrders)
	assert.False(t, after.IsActive)
	assert.False(t, after.CanWithdraw)
	assert.Equal(t, 20, after.CumulativeCompletedTasks, "cumulative count survives withdrawal")
}

func TestReverseWithdrawal_RestoresHoldingsAndFlags(t *testing.T) {
	p := holdings(50_000_000, 30_000_000)
	pl, err := PlanWithdrawal(p, p.HoldingsMicros())
	require.NoError(t, err)

	depleted := ApplyWithdrawal(p, pl)
	restored := ReverseWithdrawal(depleted, pl, 20)

	assert.Equal(t, int64(50_000_000), restored.BalanceMicros)
	assert.Equal(t, int64(30_000_000), restored.TotalEarningsMicros)
	assert.True(t, restored.IsActive)
	assert.True(t, restored.CanWithdraw)
}

func TestReverseWithdrawal_PartialDelta(t *testing.T) {
	// Reversing only the earnings leg, as a commission_withdrawal delete would.
	p := holdings(0, 10_000_000)
	pl := WithdrawalPlan{FromEarningsMicros: 5_000_000}

	restored := ReverseWithdrawal(p, pl, 20)

	assert.Equal(t, int64(0), restored.BalanceMicros)
	assert.Equal(t, int64(15_000_000), restored.TotalEarningsMicros)
	assert.True(t, restored.IsActive, "restored earnings keep the tier active")
}

func TestReverseWithdrawal_ReactivatesDepletedTier(t *testing.T) {
	p := holdings(0, 5_000_000)
	pl := WithdrawalPlan{FromEarningsMicros: 5_000_000}
	depleted := ApplyWithdrawal(p, pl)
	require.False(t, depleted.IsActive)

	restored := ReverseWithdrawal(depleted, pl, 20)

	assert.Equal(t, int64(5_000_000), restored.TotalEarningsMicros)
	assert.True(t, restored.IsActive, "same activity rule as a partial settlement")
}

func TestSettlementSequence_NeverNegative(t *testing.T) {
	p := holdings(50_000_000, 30_000_000)

	for _, amount := range []int64{10_000_000, 45_000_000, 25_000_000} {
		pl, err := PlanWithdrawal(p, amount)
		require.NoError(t, err)
		p = ApplyWithdrawal(p, pl)
		require.NoError(t, p.CheckInvariants(20))
	}
	assert.True(t, p.Depleted())

	_, err := PlanWithdrawal(p, 1)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}
