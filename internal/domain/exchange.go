package domain

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Rule rejections for task completion. These are expected control-flow
// outcomes of the quota state machine, not system errors.
var (
	ErrCounterNotActive     = errors.New("counter has not been funded")
	ErrTierQuotaSatisfied   = errors.New("tier quota already satisfied")
	ErrDailyCapReached      = errors.New("daily order cap reached for this tier")
	ErrDailyBudgetExhausted = errors.New("daily task budget exhausted across all tiers")
	ErrAmountOutOfBounds    = errors.New("exchange amount outside tier bounds")
)

// TaskInput carries everything the completion state machine needs for one
// simulated exchange. CompletedToday is the user's completion count across
// all tiers for the current day, taken after any rollover.
type TaskInput struct {
	Tier           TierConfig
	Today          Day
	AmountMicros   int64
	Rate           decimal.Decimal
	CompletedToday int
	DailyBudget    int
}

// TaskOutcome is the result of a granted task credit.
type TaskOutcome struct {
	Progress         CounterProgress
	CommissionMicros int64
	RolledOver       bool
	// TransferDue is set when this credit completed the tier: the daily
	// counter reached the quota and withdrawal is unlocked. The caller moves
	// the tier's principal to the next bracket, if one exists.
	TransferDue bool
}

// CompleteTask decides whether one simulated exchange may be credited to the
// tier now and returns the updated record. Rules are evaluated in order and
// each rejection leaves the input untouched from the caller's perspective.
func CompleteTask(p CounterProgress, in TaskInput) (TaskOutcome, error) {
	if !p.IsActive {
		return TaskOutcome{}, ErrCounterNotActive
	}
	if in.AmountMicros < in.Tier.ExchangeMinMicros || in.AmountMicros > in.Tier.ExchangeMaxMicros {
		return TaskOutcome{}, ErrAmountOutOfBounds
	}

	rolled := p.Rollover(in.Today)

	quota := in.Tier.DailyOrderQuota
	remaining := quota - p.CumulativeCompletedTasks
	if remaining <= 0 {
		return TaskOutcome{}, ErrTierQuotaSatisfied
	}
	if p.DailyCompletedOrders >= quota {
		return TaskOutcome{}, ErrDailyCapReached
	}
	if in.DailyBudget-in.CompletedToday <= 0 {
		return TaskOutcome{}, ErrDailyBudgetExhausted
	}

	commission := in.Tier.Commission(in.AmountMicros)
	p.TotalEarningsMicros += commission
	p.CompletedTasks++
	p.CumulativeCompletedTasks++
	p.DailyCompletedOrders++
	p.LastOrderResetDate = in.Today
	p.CanWithdraw = p.CumulativeCompletedTasks >= quota

	return TaskOutcome{
		Progress:         p,
		CommissionMicros: commission,
		RolledOver:       rolled,
		TransferDue:      p.DailyCompletedOrders == quota && p.CanWithdraw,
	}, nil
}

// TransferPrincipal moves the entirety of src's balance into dst and
// deactivates src. Earnings never move between tiers.
func TransferPrincipal(src, dst CounterProgress) (CounterProgress, CounterProgress) {
	dst.BalanceMicros += src.BalanceMicros
	dst.IsActive = true
	src.BalanceMicros = 0
	src.IsActive = false
	return src, dst
}
