package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

type User struct {
	ID                 pgtype.UUID
	Username           string
	Email              string
	Password           string
	Role               string
	TotalBalanceMicros int64
	CreatedAt          pgtype.Timestamptz
}

const createUser = `
INSERT INTO users (id, username, email, password, role, total_balance_micros, created_at)
VALUES ($1, $2, $3, $4, $5, 0, NOW())
RETURNING id, username, email, password, role, total_balance_micros, created_at
`

type CreateUserParams struct {
	ID       pgtype.UUID
	Username string
	Email    string
	Password string
	Role     string
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRow(ctx, createUser, arg.ID, arg.Username, arg.Email, arg.Password, arg.Role)
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Password, &u.Role, &u.TotalBalanceMicros, &u.CreatedAt)
	return u, err
}

const getUser = `
SELECT id, username, email, password, role, total_balance_micros, created_at
FROM users WHERE id = $1
`

func (q *Queries) GetUser(ctx context.Context, id pgtype.UUID) (User, error) {
	row := q.db.QueryRow(ctx, getUser, id)
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Password, &u.Role, &u.TotalBalanceMicros, &u.CreatedAt)
	return u, err
}

const getUserByUsername = `
SELECT id, username, email, password, role, total_balance_micros, created_at
FROM users WHERE username = $1
`

func (q *Queries) GetUserByUsername(ctx context.Context, username string) (User, error) {
	row := q.db.QueryRow(ctx, getUserByUsername, username)
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Password, &u.Role, &u.TotalBalanceMicros, &u.CreatedAt)
	return u, err
}

const getUserForUpdate = `
SELECT id, username, email, password, role, total_balance_micros, created_at
FROM users WHERE id = $1
FOR UPDATE
`

func (q *Queries) GetUserForUpdate(ctx context.Context, id pgtype.UUID) (User, error) {
	row := q.db.QueryRow(ctx, getUserForUpdate, id)
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Password, &u.Role, &u.TotalBalanceMicros, &u.CreatedAt)
	return u, err
}

const adjustUserTotalBalance = `
UPDATE users SET total_balance_micros = total_balance_micros + $1 WHERE id = $2
`

type AdjustUserTotalBalanceParams struct {
	DeltaMicros int64
	ID          pgtype.UUID
}

func (q *Queries) AdjustUserTotalBalance(ctx context.Context, arg AdjustUserTotalBalanceParams) (int64, error) {
	tag, err := q.db.Exec(ctx, adjustUserTotalBalance, arg.DeltaMicros, arg.ID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const listUsers = `
SELECT id, username, email, password, role, total_balance_micros, created_at
FROM users ORDER BY created_at DESC
LIMIT $1 OFFSET $2
`

type ListUsersParams struct {
	Limit  int32
	Offset int32
}

func (q *Queries) ListUsers(ctx context.Context, arg ListUsersParams) ([]User, error) {
	rows, err := q.db.Query(ctx, listUsers, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.Password, &u.Role, &u.TotalBalanceMicros, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
