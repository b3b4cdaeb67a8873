package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type User struct {
	ID                 uuid.UUID `json:"id"`
	Username           string    `json:"username"`
	Email              string    `json:"email"`
	Password           string    `json:"-"`
	Role               string    `json:"role"`
	TotalBalanceMicros int64     `json:"total_balance_micros"`
	CreatedAt          time.Time `json:"created_at"`
}

// Counter is the API-facing view of one tier's progress record.
type Counter struct {
	UserID                   uuid.UUID `json:"user_id"`
	TierID                   int       `json:"tier_id"`
	BalanceMicros            int64     `json:"balance_micros"`
	TotalEarningsMicros      int64     `json:"total_earnings_micros"`
	CompletedTasks           int       `json:"completed_tasks"`
	CumulativeCompletedTasks int       `json:"cumulative_completed_tasks"`
	DailyCompletedOrders     int       `json:"daily_completed_orders"`
	LastOrderResetDate       string    `json:"last_order_reset_date,omitempty"`
	IsActive                 bool      `json:"is_active"`
	CanWithdraw              bool      `json:"can_withdraw"`
	UpdatedAt                time.Time `json:"updated_at"`
}

type Transaction struct {
	ID           uuid.UUID       `json:"id"`
	UserID       uuid.UUID       `json:"user_id"`
	TierID       int             `json:"tier_id"`
	Type         string          `json:"type"`
	AmountMicros int64           `json:"amount_micros"`
	FxRate       decimal.Decimal `json:"fx_rate"`
	Pair         string          `json:"pair,omitempty"`
	Status       string          `json:"status"`
	Description  string          `json:"description,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	ReferenceID  string          `json:"reference_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type CurrencyPair struct {
	ID        uuid.UUID       `json:"id"`
	Base      string          `json:"base"`
	Quote     string          `json:"quote"`
	Rate      decimal.Decimal `json:"rate"`
	IsActive  bool            `json:"is_active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Code renders the pair as BASE/QUOTE.
func (p CurrencyPair) Code() string {
	return p.Base + "/" + p.Quote
}
