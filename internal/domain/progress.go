package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// CounterProgress is the per-user, per-tier mutable record. Rows are created
// lazily (zeroed) for every tier when a user is first synchronized and are
// only ever zeroed, never deleted.
type CounterProgress struct {
	UserID                   uuid.UUID
	TierID                   int
	BalanceMicros            int64
	TotalEarningsMicros      int64
	CompletedTasks           int
	CumulativeCompletedTasks int
	DailyCompletedOrders     int
	LastOrderResetDate       Day
	IsActive                 bool
	CanWithdraw              bool
}

// NewCounterProgress returns a zeroed record for one tier.
func NewCounterProgress(userID uuid.UUID, tierID int) CounterProgress {
	return CounterProgress{UserID: userID, TierID: tierID}
}

// Rollover resets the daily order counter when the stored marker day differs
// from today. Reports whether anything changed. Lifetime counters are never
// touched by a rollover.
func (p *CounterProgress) Rollover(today Day) bool {
	if p.LastOrderResetDate == today {
		return false
	}
	changed := p.DailyCompletedOrders != 0 || !p.LastOrderResetDate.IsZero()
	p.DailyCompletedOrders = 0
	p.LastOrderResetDate = today
	return changed
}

// Depleted reports whether the tier holds no principal and no earnings.
func (p CounterProgress) Depleted() bool {
	return p.BalanceMicros == 0 && p.TotalEarningsMicros == 0
}

// HoldingsMicros is the total withdrawable value: principal plus earnings.
func (p CounterProgress) HoldingsMicros() int64 {
	return p.BalanceMicros + p.TotalEarningsMicros
}

// CheckInvariants verifies the record against its tier quota. A violation
// here means a settlement or completion ran outside the locking discipline.
func (p CounterProgress) CheckInvariants(quota int) error {
	if p.BalanceMicros < 0 {
		return fmt.Errorf("tier %d: negative balance %d", p.TierID, p.BalanceMicros)
	}
	if p.TotalEarningsMicros < 0 {
		return fmt.Errorf("tier %d: negative earnings %d", p.TierID, p.TotalEarningsMicros)
	}
	if p.DailyCompletedOrders > quota {
		return fmt.Errorf("tier %d: daily orders %d above quota %d", p.TierID, p.DailyCompletedOrders, quota)
	}
	if p.CumulativeCompletedTasks < 0 || p.CompletedTasks < 0 || p.DailyCompletedOrders < 0 {
		return fmt.Errorf("tier %d: negative task counter", p.TierID)
	}
	return nil
}
