package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

type Transaction struct {
	ID           pgtype.UUID
	UserID       pgtype.UUID
	TierID       int32
	Type         string
	AmountMicros int64
	FxRate       string
	Pair         string
	Status       string
	Description  string
	Metadata     []byte
	ReferenceID  string
	CreatedAt    pgtype.Timestamptz
	UpdatedAt    pgtype.Timestamptz
}

const transactionColumns = `id, user_id, tier_id, type, amount_micros, fx_rate, pair, status,
description, metadata, reference_id, created_at, updated_at`

func scanTransaction(row scanner, t *Transaction) error {
	return row.Scan(&t.ID, &t.UserID, &t.TierID, &t.Type, &t.AmountMicros, &t.FxRate, &t.Pair,
		&t.Status, &t.Description, &t.Metadata, &t.ReferenceID, &t.CreatedAt, &t.UpdatedAt)
}

const createTransaction = `
INSERT INTO transactions (id, user_id, tier_id, type, amount_micros, fx_rate, pair, status, description, metadata, reference_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
RETURNING ` + transactionColumns

type CreateTransactionParams struct {
	ID           pgtype.UUID
	UserID       pgtype.UUID
	TierID       int32
	Type         string
	AmountMicros int64
	FxRate       string
	Pair         string
	Status       string
	Description  string
	Metadata     []byte
	ReferenceID  string
}

func (q *Queries) CreateTransaction(ctx context.Context, arg CreateTransactionParams) (Transaction, error) {
	row := q.db.QueryRow(ctx, createTransaction,
		arg.ID, arg.UserID, arg.TierID, arg.Type, arg.AmountMicros, arg.FxRate, arg.Pair,
		arg.Status, arg.Description, arg.Metadata, arg.ReferenceID)
	var t Transaction
	err := scanTransaction(row, &t)
	return t, err
}

const getTransaction = `
SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1
`

func (q *Queries) GetTransaction(ctx context.Context, id pgtype.UUID) (Transaction, error) {
	var t Transaction
	err := scanTransaction(q.db.QueryRow(ctx, getTransaction, id), &t)
	return t, err
}

const getTransactionForUpdate = `
SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1
FOR UPDATE
`

func (q *Queries) GetTransactionForUpdate(ctx context.Context, id pgtype.UUID) (Transaction, error) {
	var t Transaction
	err := scanTransaction(q.db.QueryRow(ctx, getTransactionForUpdate, id), &t)
	return t, err
}

const getTransactionStatusForUpdate = `
SELECT status FROM transactions WHERE id = $1 FOR UPDATE
`

func (q *Queries) GetTransactionStatusForUpdate(ctx context.Context, id pgtype.UUID) (string, error) {
	var status string
	err := q.db.QueryRow(ctx, getTransactionStatusForUpdate, id).Scan(&status)
	return status, err
}

const checkTransactionIdempotency = `
SELECT ` + transactionColumns + ` FROM transactions WHERE reference_id = $1
`

func (q *Queries) CheckTransactionIdempotency(ctx context.Context, referenceID string) (Transaction, error) {
	var t Transaction
	err := scanTransaction(q.db.QueryRow(ctx, checkTransactionIdempotency, referenceID), &t)
	return t, err
}

const updateTransactionStatus = `
UPDATE transactions SET status = $1, updated_at = NOW() WHERE id = $2
`

type UpdateTransactionStatusParams struct {
	Status string
	ID     pgtype.UUID
}

func (q *Queries) UpdateTransactionStatus(ctx context.Context, arg UpdateTransactionStatusParams) (int64, error) {
	tag, err := q.db.Exec(ctx, updateTransactionStatus, arg.Status, arg.ID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const updateTransactionMetadata = `
UPDATE transactions SET metadata = $1, updated_at = NOW() WHERE id = $2
`

type UpdateTransactionMetadataParams struct {
	Metadata []byte
	ID       pgtype.UUID
}

func (q *Queries) UpdateTransactionMetadata(ctx context.Context, arg UpdateTransactionMetadataParams) (int64, error) {
	tag, err := q.db.Exec(ctx, updateTransactionMetadata, arg.Metadata, arg.ID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const updateTransactionAmount = `
UPDATE transactions SET amount_micros = $1, metadata = $2, description = $3, updated_at = NOW() WHERE id = $4
`

type UpdateTransactionAmountParams struct {
	AmountMicros int64
	Metadata     []byte
	Description  string
	ID           pgtype.UUID
}

func (q *Queries) UpdateTransactionAmount(ctx context.Context, arg UpdateTransactionAmountParams) (int64, error) {
	tag, err := q.db.Exec(ctx, updateTransactionAmount, arg.AmountMicros, arg.Metadata, arg.Description, arg.ID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const deleteTransaction = `
DELETE FROM transactions WHERE id = $1
`

func (q *Queries) DeleteTransaction(ctx context.Context, id pgtype.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteTransaction, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const listUserTransactions = `
SELECT ` + transactionColumns + ` FROM transactions
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3
`

type ListUserTransactionsParams struct {
	UserID pgtype.UUID
	Limit  int32
	Offset int32
}

func (q *Queries) ListUserTransactions(ctx context.Context, arg ListUserTransactionsParams) ([]Transaction, error) {
	rows, err := q.db.Query(ctx, listUserTransactions, arg.UserID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

const listTransactionsByTypeAndStatus = `
SELECT ` + transactionColumns + ` FROM transactions
WHERE type = ANY($1) AND status = ANY($2)
ORDER BY user_id, created_at
LIMIT $3 OFFSET $4
`

type ListTransactionsByTypeAndStatusParams struct {
	Types    []string
	Statuses []string
	Limit    int32
	Offset   int32
}

// ListTransactionsByTypeAndStatus feeds the administrative grouping views.
// Rows come back ordered by user then time, the order grouping expects.
func (q *Queries) ListTransactionsByTypeAndStatus(ctx context.Context, arg ListTransactionsByTypeAndStatusParams) ([]Transaction, error) {
	rows, err := q.db.Query(ctx, listTransactionsByTypeAndStatus, arg.Types, arg.Statuses, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func collectTransactions(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]Transaction, error) {
	var out []Transaction
	for rows.Next() {
		var t Transaction
		if err := scanTransaction(rows, &t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
