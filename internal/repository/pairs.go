package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

type CurrencyPair struct {
	ID        pgtype.UUID
	Base      string
	Quote     string
	Rate      string
	IsActive  bool
	CreatedAt pgtype.Timestamptz
	UpdatedAt pgtype.Timestamptz
}

const pairColumns = `id, base, quote, rate, is_active, created_at, updated_at`

func scanPair(row scanner, p *CurrencyPair) error {
	return row.Scan(&p.ID, &p.Base, &p.Quote, &p.Rate, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
}

const createCurrencyPair = `
INSERT INTO currency_pairs (id, base, quote, rate, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, TRUE, NOW(), NOW())
RETURNING ` + pairColumns

type CreateCurrencyPairParams struct {
	ID    pgtype.UUID
	Base  string
	Quote string
	Rate  string
}

func (q *Queries) CreateCurrencyPair(ctx context.Context, arg CreateCurrencyPairParams) (CurrencyPair, error) {
	row := q.db.QueryRow(ctx, createCurrencyPair, arg.ID, arg.Base, arg.Quote, arg.Rate)
	var p CurrencyPair
	err := scanPair(row, &p)
	return p, err
}

const getCurrencyPair = `
SELECT ` + pairColumns + ` FROM currency_pairs WHERE id = $1
`

func (q *Queries) GetCurrencyPair(ctx context.Context, id pgtype.UUID) (CurrencyPair, error) {
	var p CurrencyPair
	err := scanPair(q.db.QueryRow(ctx, getCurrencyPair, id), &p)
	return p, err
}

const getCurrencyPairByCode = `
SELECT ` + pairColumns + ` FROM currency_pairs WHERE base = $1 AND quote = $2
`

type GetCurrencyPairByCodeParams struct {
	Base  string
	Quote string
}

func (q *Queries) GetCurrencyPairByCode(ctx context.Context, arg GetCurrencyPairByCodeParams) (CurrencyPair, error) {
	var p CurrencyPair
	err := scanPair(q.db.QueryRow(ctx, getCurrencyPairByCode, arg.Base, arg.Quote), &p)
	return p, err
}

const listCurrencyPairs = `
SELECT ` + pairColumns + ` FROM currency_pairs
WHERE is_active OR NOT $1
ORDER BY base, quote
`

// ListCurrencyPairs returns active pairs when activeOnly is set, otherwise all.
func (q *Queries) ListCurrencyPairs(ctx context.Context, activeOnly bool) ([]CurrencyPair, error) {
	rows, err := q.db.Query(ctx, listCurrencyPairs, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CurrencyPair
	for rows.Next() {
		var p CurrencyPair
		if err := scanPair(rows, &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const updateCurrencyPair = `
UPDATE currency_pairs SET rate = $1, is_active = $2, updated_at = NOW() WHERE id = $3
`

type UpdateCurrencyPairParams struct {
	Rate     string
	IsActive bool
	ID       pgtype.UUID
}

func (q *Queries) UpdateCurrencyPair(ctx context.Context, arg UpdateCurrencyPairParams) (int64, error) {
	tag, err := q.db.Exec(ctx, updateCurrencyPair, arg.Rate, arg.IsActive, arg.ID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const deleteCurrencyPair = `
DELETE FROM currency_pairs WHERE id = $1
`

func (q *Queries) DeleteCurrencyPair(ctx context.Context, id pgtype.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteCurrencyPair, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
