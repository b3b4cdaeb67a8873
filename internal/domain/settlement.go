package domain

import "errors"

var (
	ErrInsufficientFunds    = errors.New("insufficient total balance")
	ErrInsufficientEarnings = errors.New("insufficient commission earnings")
	ErrNonPositiveAmount    = errors.New("amount must be greater than zero")
	ErrWithdrawalLocked     = errors.New("withdrawal not unlocked for this tier")
)

// WithdrawalPlan records how a requested amount splits across the two
// holdings buckets. Principal is always consumed before earnings.
type WithdrawalPlan struct {
	FromBalanceMicros  int64 `json:"from_balance_micros"`
	FromEarningsMicros int64 `json:"from_earnings_micros"`
}

// AmountMicros is the total the plan debits.
func (pl WithdrawalPlan) AmountMicros() int64 {
	return pl.FromBalanceMicros + pl.FromEarningsMicros
}

// PlanWithdrawal splits a withdrawal: deduct from balance first, then from
// accumulated commission.
func PlanWithdrawal(p CounterProgress, amountMicros int64) (WithdrawalPlan, error) {
	if amountMicros <= 0 {
		return WithdrawalPlan{}, ErrNonPositiveAmount
	}
	if p.HoldingsMicros() < amountMicros {
		return WithdrawalPlan{}, ErrInsufficientFunds
	}
	fromBalance := min(p.BalanceMicros, amountMicros)
	return WithdrawalPlan{
		FromBalanceMicros:  fromBalance,
		FromEarningsMicros: amountMicros - fromBalance,
	}, nil
}

// PlanCommissionWithdrawal debits earnings only, leaving principal parked.
func PlanCommissionWithdrawal(p CounterProgress, amountMicros int64) (WithdrawalPlan, error) {
	if amountMicros <= 0 {
		return WithdrawalPlan{}, ErrNonPositiveAmount
	}
	if p.TotalEarningsMicros < amountMicros {
		return WithdrawalPlan{}, ErrInsufficientEarnings
	}
	return WithdrawalPlan{FromEarningsMicros: amountMicros}, nil
}

// ApplyWithdrawal debits the record per the plan. When the settlement
// depletes the tier entirely, the per-tier task counters and flags reset;
// CumulativeCompletedTasks is preserved across withdrawals.
func ApplyWithdrawal(p CounterProgress, pl WithdrawalPlan) CounterProgress {
	p.BalanceMicros -= pl.FromBalanceMicros
	p.TotalEarningsMicros -= pl.FromEarningsMicros
	if p.Depleted() {
		p.CompletedTasks = 0
		p.DailyCompletedOrders = 0
		p.IsActive = false
		p.CanWithdraw = false
	}
	return p
}

// ReverseWithdrawal re-credits a previously applied plan, restoring the
// activity and withdrawal flags the depletion reset may have cleared.
func ReverseWithdrawal(p CounterProgress, pl WithdrawalPlan, quota int) CounterProgress {
	p.BalanceMicros += pl.FromBalanceMicros
	p.TotalEarningsMicros += pl.FromEarningsMicros
	p.IsActive = p.HoldingsMicros() > 0
	p.CanWithdraw = p.CumulativeCompletedTasks >= quota
	return p
}
