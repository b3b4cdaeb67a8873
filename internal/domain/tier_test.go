package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog_Valid(t *testing.T) {
	c := DefaultCatalog()
	require.NoError(t, c.Validate())
	assert.Len(t, c, 6)
}

func TestCatalog_TierLookup(t *testing.T) {
	c := DefaultCatalog()

	tier, ok := c.Tier(1)
	require.True(t, ok)
	assert.Equal(t, 20, tier.DailyOrderQuota)
	assert.Equal(t, int64(100_000_000), tier.MinDepositMicros)

	next, ok := c.NextTier(1)
	require.True(t, ok)
	assert.Equal(t, 2, next.ID)

	_, ok = c.NextTier(6)
	assert.False(t, ok, "top tier has no successor")

	_, ok = c.Tier(0)
	assert.False(t, ok)
}

func TestCatalog_DailyTaskBudget(t *testing.T) {
	// 20+25+30+35+40+45
	assert.Equal(t, 195, DefaultCatalog().DailyTaskBudget())
}

func TestTierConfig_Commission(t *testing.T) {
	tier, ok := DefaultCatalog().Tier(1)
	require.True(t, ok)

	// 100 units at 0.4% -> 0.40 units
	assert.Equal(t, int64(400_000), tier.Commission(100_000_000))
}

func TestCatalog_Validate_RejectsNonAscending(t *testing.T) {
	c := Catalog{
		{ID: 1, MinDepositMicros: 100, DailyOrderQuota: 20, CommissionRate: decimal.NewFromFloat(0.004), ExchangeMinMicros: 1, ExchangeMaxMicros: 10},
		{ID: 2, MinDepositMicros: 100, DailyOrderQuota: 25, CommissionRate: decimal.NewFromFloat(0.006), ExchangeMinMicros: 1, ExchangeMaxMicros: 10},
	}
	assert.Error(t, c.Validate())
}

func TestCatalog_Validate_RejectsGapInIDs(t *testing.T) {
	c := Catalog{
		{ID: 1, MinDepositMicros: 100, DailyOrderQuota: 20, CommissionRate: decimal.NewFromFloat(0.004), ExchangeMinMicros: 1, ExchangeMaxMicros: 10},
		{ID: 3, MinDepositMicros: 200, DailyOrderQuota: 25, CommissionRate: decimal.NewFromFloat(0.006), ExchangeMinMicros: 1, ExchangeMaxMicros: 10},
	}
	assert.Error(t, c.Validate())
}
