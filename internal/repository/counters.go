package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

type CounterProgress struct {
	UserID                   pgtype.UUID
	TierID                   int32
	BalanceMicros            int64
	TotalEarningsMicros      int64
	CompletedTasks           int32
	CumulativeCompletedTasks int32
	DailyCompletedOrders     int32
	LastOrderResetDate       pgtype.Date
	IsActive                 bool
	CanWithdraw              bool
	UpdatedAt                pgtype.Timestamptz
}

const counterColumns = `user_id, tier_id, balance_micros, total_earnings_micros, completed_tasks,
cumulative_completed_tasks, daily_completed_orders, last_order_reset_date, is_active, can_withdraw, updated_at`

// scanner is the scan surface shared by pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanCounter(row scanner, c *CounterProgress) error {
	return row.Scan(&c.UserID, &c.TierID, &c.BalanceMicros, &c.TotalEarningsMicros, &c.CompletedTasks,
		&c.CumulativeCompletedTasks, &c.DailyCompletedOrders, &c.LastOrderResetDate, &c.IsActive, &c.CanWithdraw, &c.UpdatedAt)
}

const ensureCounter = `
INSERT INTO counter_progress (user_id, tier_id, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (user_id, tier_id) DO NOTHING
`

type EnsureCounterParams struct {
	UserID pgtype.UUID
	TierID int32
}

// EnsureCounter lazily creates a zeroed progress row for one tier.
func (q *Queries) EnsureCounter(ctx context.Context, arg EnsureCounterParams) (int64, error) {
	tag, err := q.db.Exec(ctx, ensureCounter, arg.UserID, arg.TierID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const getCountersForUser = `
SELECT ` + counterColumns + `
FROM counter_progress WHERE user_id = $1
ORDER BY tier_id
`

func (q *Queries) GetCountersForUser(ctx context.Context, userID pgtype.UUID) ([]CounterProgress, error) {
	rows, err := q.db.Query(ctx, getCountersForUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CounterProgress
	for rows.Next() {
		var c CounterProgress
		if err := scanCounter(rows, &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const getCountersForUserForUpdate = `
SELECT ` + counterColumns + `
FROM counter_progress WHERE user_id = $1
ORDER BY tier_id
FOR UPDATE
`

// GetCountersForUserForUpdate locks every tier row for the user for the
// duration of the enclosing transaction. Settlement and task-completion
// paths must go through this.
func (q *Queries) GetCountersForUserForUpdate(ctx context.Context, userID pgtype.UUID) ([]CounterProgress, error) {
	rows, err := q.db.Query(ctx, getCountersForUserForUpdate, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CounterProgress
	for rows.Next() {
		var c CounterProgress
		if err := scanCounter(rows, &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const updateCounter = `
UPDATE counter_progress SET
	balance_micros = $1,
	total_earnings_micros = $2,
	completed_tasks = $3,
	cumulative_completed_tasks = $4,
	daily_completed_orders = $5,
	last_order_reset_date = $6,
	is_active = $7,
	can_withdraw = $8,
	updated_at = NOW()
WHERE user_id = $9 AND tier_id = $10
`

type UpdateCounterParams struct {
	BalanceMicros            int64
	TotalEarningsMicros      int64
	CompletedTasks           int32
	CumulativeCompletedTasks int32
	DailyCompletedOrders     int32
	LastOrderResetDate       pgtype.Date
	IsActive                 bool
	CanWithdraw              bool
	UserID                   pgtype.UUID
	TierID                   int32
}

func (q *Queries) UpdateCounter(ctx context.Context, arg UpdateCounterParams) (int64, error) {
	tag, err := q.db.Exec(ctx, updateCounter,
		arg.BalanceMicros, arg.TotalEarningsMicros, arg.CompletedTasks, arg.CumulativeCompletedTasks,
		arg.DailyCompletedOrders, arg.LastOrderResetDate, arg.IsActive, arg.CanWithdraw,
		arg.UserID, arg.TierID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const resetCountersForUser = `
UPDATE counter_progress SET
	balance_micros = 0,
	total_earnings_micros = 0,
	completed_tasks = 0,
	cumulative_completed_tasks = 0,
	daily_completed_orders = 0,
	last_order_reset_date = NULL,
	is_active = FALSE,
	can_withdraw = FALSE,
	updated_at = NOW()
WHERE user_id = $1
`

// ResetCountersForUser zeroes every tier of a user, cumulative counters
// included. This is the administrative full reset, not the withdrawal reset.
func (q *Queries) ResetCountersForUser(ctx context.Context, userID pgtype.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, resetCountersForUser, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const rolloverStaleCounters = `
UPDATE counter_progress SET
	daily_completed_orders = 0,
	last_order_reset_date = $1,
	updated_at = NOW()
WHERE last_order_reset_date IS DISTINCT FROM $1
  AND daily_completed_orders > 0
`

// RolloverStaleCounters resets daily order counters left over from earlier
// calendar days. Lifetime counters are untouched.
func (q *Queries) RolloverStaleCounters(ctx context.Context, today pgtype.Date) (int64, error) {
	tag, err := q.db.Exec(ctx, rolloverStaleCounters, today)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const countNegativeCounters = `
SELECT COUNT(*) FROM counter_progress
WHERE balance_micros < 0 OR total_earnings_micros < 0
`

func (q *Queries) CountNegativeCounters(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countNegativeCounters).Scan(&n)
	return n, err
}

const getAggregateDrift = `
SELECT u.id, u.total_balance_micros, COALESCE(SUM(cp.balance_micros), 0) AS counter_sum
FROM users u
LEFT JOIN counter_progress cp ON cp.user_id = u.id
GROUP BY u.id, u.total_balance_micros
HAVING u.total_balance_micros <> COALESCE(SUM(cp.balance_micros), 0)
`

type AggregateDriftRow struct {
	UserID             pgtype.UUID
	TotalBalanceMicros int64
	CounterSumMicros   int64
}

// GetAggregateDrift reports users whose aggregate balance mirror diverged
// from the sum of their per-tier balances.
func (q *Queries) GetAggregateDrift(ctx context.Context) ([]AggregateDriftRow, error) {
	rows, err := q.db.Query(ctx, getAggregateDrift)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AggregateDriftRow
	for rows.Next() {
		var r AggregateDriftRow
		if err := rows.Scan(&r.UserID, &r.TotalBalanceMicros, &r.CounterSumMicros); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
