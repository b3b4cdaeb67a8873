package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

type IdempotencyKey struct {
	IdempotencyKey string
	RequestHash    string
	Method         string
	Path           string
	InProgress     bool
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
	CreatedAt      pgtype.Timestamptz
	UpdatedAt      pgtype.Timestamptz
}

const idempotencyColumns = `idempotency_key, request_hash, method, path, in_progress,
response_status, response_body, content_type, created_at, updated_at`

func scanIdempotencyKey(row scanner, k *IdempotencyKey) error {
	return row.Scan(&k.IdempotencyKey, &k.RequestHash, &k.Method, &k.Path, &k.InProgress,
		&k.ResponseStatus, &k.ResponseBody, &k.ContentType, &k.CreatedAt, &k.UpdatedAt)
}

const reserveIdempotencyKey = `
INSERT INTO idempotency_keys (idempotency_key, request_hash, method, path, in_progress, created_at, updated_at)
VALUES ($1, $2, $3, $4, TRUE, NOW(), NOW())
ON CONFLICT (idempotency_key) DO NOTHING
RETURNING ` + idempotencyColumns

type ReserveIdempotencyKeyParams struct {
	IdempotencyKey string
	RequestHash    string
	Method         string
	Path           string
}

// ReserveIdempotencyKey claims a key. Returns pgx.ErrNoRows when the key is
// already held, letting the caller replay or wait.
func (q *Queries) ReserveIdempotencyKey(ctx context.Context, arg ReserveIdempotencyKeyParams) (IdempotencyKey, error) {
	row := q.db.QueryRow(ctx, reserveIdempotencyKey, arg.IdempotencyKey, arg.RequestHash, arg.Method, arg.Path)
	var k IdempotencyKey
	err := scanIdempotencyKey(row, &k)
	return k, err
}

const getIdempotencyKey = `
SELECT ` + idempotencyColumns + ` FROM idempotency_keys WHERE idempotency_key = $1
`

func (q *Queries) GetIdempotencyKey(ctx context.Context, key string) (IdempotencyKey, error) {
	var k IdempotencyKey
	err := scanIdempotencyKey(q.db.QueryRow(ctx, getIdempotencyKey, key), &k)
	return k, err
}

const finalizeIdempotencyKey = `
UPDATE idempotency_keys
SET in_progress = FALSE, response_status = $1, response_body = $2, content_type = $3, updated_at = NOW()
WHERE idempotency_key = $4 AND request_hash = $5
RETURNING ` + idempotencyColumns

type FinalizeIdempotencyKeyParams struct {
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
	IdempotencyKey string
	RequestHash    string
}

func (q *Queries) FinalizeIdempotencyKey(ctx context.Context, arg FinalizeIdempotencyKeyParams) (IdempotencyKey, error) {
	row := q.db.QueryRow(ctx, finalizeIdempotencyKey,
		arg.ResponseStatus, arg.ResponseBody, arg.ContentType, arg.IdempotencyKey, arg.RequestHash)
	var k IdempotencyKey
	err := scanIdempotencyKey(row, &k)
	return k, err
}

const purgeExpiredIdempotencyKeys = `
DELETE FROM idempotency_keys WHERE created_at < NOW() - $1::interval
`

func (q *Queries) PurgeExpiredIdempotencyKeys(ctx context.Context, olderThan string) (int64, error) {
	tag, err := q.db.Exec(ctx, purgeExpiredIdempotencyKeys, olderThan)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
