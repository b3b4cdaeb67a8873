package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TierConfig is one bracket in the counter ladder. The same DailyOrderQuota
// value serves both as the per-calendar-day cap and as the lifetime
// progressive threshold that unlocks withdrawal (cumulative completions).
type TierConfig struct {
	ID                int
	MinDepositMicros  int64
	DailyOrderQuota   int
	CommissionRate    decimal.Decimal
	ExchangeMinMicros int64
	ExchangeMaxMicros int64
}

// Commission computes the commission earned for one exchange of the given size.
func (t TierConfig) Commission(amountMicros int64) int64 {
	return NewMoney(amountMicros, "").Multiply(t.CommissionRate).Amount
}

// Catalog is the fixed, compiled-in counter ladder ordered by tier ID.
type Catalog []TierConfig

// DefaultCatalog returns the six-tier production ladder.
func DefaultCatalog() Catalog {
	return Catalog{
		{ID: 1, MinDepositMicros: 100_000_000, DailyOrderQuota: 20, CommissionRate: decimal.NewFromFloat(0.004), ExchangeMinMicros: 100_000_000, ExchangeMaxMicros: 1_000_000_000},
		{ID: 2, MinDepositMicros: 500_000_000, DailyOrderQuota: 25, CommissionRate: decimal.NewFromFloat(0.006), ExchangeMinMicros: 500_000_000, ExchangeMaxMicros: 5_000_000_000},
		{ID: 3, MinDepositMicros: 2_000_000_000, DailyOrderQuota: 30, CommissionRate: decimal.NewFromFloat(0.009), ExchangeMinMicros: 2_000_000_000, ExchangeMaxMicros: 20_000_000_000},
		{ID: 4, MinDepositMicros: 5_000_000_000, DailyOrderQuota: 35, CommissionRate: decimal.NewFromFloat(0.012), ExchangeMinMicros: 5_000_000_000, ExchangeMaxMicros: 50_000_000_000},
		{ID: 5, MinDepositMicros: 20_000_000_000, DailyOrderQuota: 40, CommissionRate: decimal.NewFromFloat(0.018), ExchangeMinMicros: 20_000_000_000, ExchangeMaxMicros: 100_000_000_000},
		{ID: 6, MinDepositMicros: 50_000_000_000, DailyOrderQuota: 45, CommissionRate: decimal.NewFromFloat(0.025), ExchangeMinMicros: 50_000_000_000, ExchangeMaxMicros: 500_000_000_000},
	}
}

// Tier looks up a tier by ID.
func (c Catalog) Tier(id int) (TierConfig, bool) {
	for _, t := range c {
		if t.ID == id {
			return t, true
		}
	}
	return TierConfig{}, false
}

// NextTier returns the tier one bracket above the given ID, if any.
func (c Catalog) NextTier(id int) (TierConfig, bool) {
	return c.Tier(id + 1)
}

// DailyTaskBudget is the cross-tier daily completion cap: the sum of every
// tier's daily order quota.
func (c Catalog) DailyTaskBudget() int {
	total := 0
	for _, t := range c {
		total += t.DailyOrderQuota
	}
	return total
}

// Validate checks the ladder is non-empty, contiguous from 1, and strictly
// ascending in deposit, quota and commission.
func (c Catalog) Validate() error {
	if len(c) == 0 {
		return fmt.Errorf("catalog is empty")
	}
	for i, t := range c {
		if t.ID != i+1 {
			return fmt.Errorf("tier %d: expected ID %d", t.ID, i+1)
		}
		if t.MinDepositMicros <= 0 || t.DailyOrderQuota <= 0 {
			return fmt.Errorf("tier %d: non-positive deposit or quota", t.ID)
		}
		if t.CommissionRate.Sign() <= 0 {
			return fmt.Errorf("tier %d: non-positive commission rate", t.ID)
		}
		if t.ExchangeMinMicros <= 0 || t.ExchangeMaxMicros < t.ExchangeMinMicros {
			return fmt.Errorf("tier %d: invalid exchange bounds", t.ID)
		}
		if i == 0 {
			continue
		}
		prev := c[i-1]
		if t.MinDepositMicros <= prev.MinDepositMicros {
			return fmt.Errorf("tier %d: min deposit not above tier %d", t.ID, prev.ID)
		}
		if t.DailyOrderQuota <= prev.DailyOrderQuota {
			return fmt.Errorf("tier %d: quota not above tier %d", t.ID, prev.ID)
		}
		if t.CommissionRate.Cmp(prev.CommissionRate) <= 0 {
			return fmt.Errorf("tier %d: commission not above tier %d", t.ID, prev.ID)
		}
	}
	return nil
}
