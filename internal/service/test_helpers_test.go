package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/kunledawodu/counterex/internal/domain"
	"github.com/kunledawodu/counterex/internal/models"
	"github.com/kunledawodu/counterex/internal/notify"
	"github.com/kunledawodu/counterex/internal/repository"
)

type testEnv struct {
	db          *pgxpool.Pool
	store       *repository.Store
	catalog     domain.Catalog
	broker      *notify.MemoryBroker
	users       *UserService
	counters    *CounterService
	deposits    *DepositService
	exchanges   *ExchangeService
	withdrawals *WithdrawalService
	grouping    *GroupingService
	integrity   *IntegrityService
	reset       *ResetService
}

// setupTestDB connects to the local Postgres instance, applies the schema and
// truncates all tables.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	connString := os.Getenv("DATABASE_URL")
	if connString == "" {
		t.Skip("Skipping integration test: DATABASE_URL not set")
	}
	db, err := pgxpool.New(context.Background(), connString)
	if err != nil {
		t.Fatalf("Failed to connect to DB: %v", err)
	}

	schema, err := os.ReadFile(filepath.Join("..", "..", "migrations", "0001_init.sql"))
	if err != nil {
		t.Fatalf("Failed to read schema: %v", err)
	}
	if _, err := db.Exec(context.Background(), string(schema)); err != nil {
		t.Fatalf("Failed to apply schema: %v", err)
	}

	for _, table := range []string{"audit_log", "idempotency_keys", "transactions", "counter_progress", "currency_pairs", "users"} {
		if _, err := db.Exec(context.Background(), fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			t.Fatalf("Failed to truncate %s: %v", table, err)
		}
	}

	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := setupTestDB(t)
	t.Cleanup(func() { db.Close() })

	store := repository.NewStore(db)
	catalog := domain.DefaultCatalog()
	broker := notify.NewMemoryBroker()
	t.Cleanup(func() { broker.Close() })

	audit := NewAuditService(store)
	counters := NewCounterService(store, catalog, audit, broker)

	return &testEnv{
		db:          db,
		store:       store,
		catalog:     catalog,
		broker:      broker,
		users:       NewUserService(store, counters),
		counters:    counters,
		deposits:    NewDepositService(store, catalog, audit, broker),
		exchanges:   NewExchangeService(store, catalog, audit, broker),
		withdrawals: NewWithdrawalService(store, catalog, audit, broker),
		grouping:    NewGroupingService(store),
		integrity:   NewIntegrityService(store),
		reset:       NewResetService(store),
	}
}

func (e *testEnv) register(t *testing.T, username string) models.User {
	t.Helper()
	u, err := e.users.Register(context.Background(), RegisterCmd{
		Username: username,
		Email:    username + "@example.com",
		Password: "hunter2hunter2",
	})
	require.NoError(t, err)
	return u
}

// fund runs a deposit through request and approval.
func (e *testEnv) fund(t *testing.T, userID uuid.UUID, tierID int, amountMicros int64) {
	t.Helper()
	tx, err := e.deposits.Request(context.Background(), DepositCmd{
		UserID:       userID,
		TierID:       tierID,
		AmountMicros: amountMicros,
		ReferenceID:  "dep-" + uuid.NewString(),
	})
	require.NoError(t, err)
	_, err = e.deposits.Approve(context.Background(), tx.ID, nil)
	require.NoError(t, err)
}

// seedCounter force-writes one progress row, bypassing the services. The
// aggregate mirror is adjusted to match.
func (e *testEnv) seedCounter(t *testing.T, p domain.CounterProgress) {
	t.Helper()
	q := e.store.Queries()
	affected, err := q.UpdateCounter(context.Background(), counterUpdateParams(p))
	require.NoError(t, err)
	require.EqualValues(t, 1, affected)
	if p.BalanceMicros != 0 {
		_, err = q.AdjustUserTotalBalance(context.Background(), repository.AdjustUserTotalBalanceParams{
			DeltaMicros: p.BalanceMicros,
			ID:          repository.ToPgUUID(p.UserID),
		})
		require.NoError(t, err)
	}
}

func (e *testEnv) counter(t *testing.T, userID uuid.UUID, tierID int) domain.CounterProgress {
	t.Helper()
	rows, err := e.store.Queries().GetCountersForUser(context.Background(), repository.ToPgUUID(userID))
	require.NoError(t, err)
	for _, row := range rows {
		if int(row.TierID) == tierID {
			return counterFromRow(row)
		}
	}
	t.Fatalf("no counter row for tier %d", tierID)
	return domain.CounterProgress{}
}

func (e *testEnv) mirror(t *testing.T, userID uuid.UUID) int64 {
	t.Helper()
	var v int64
	err := e.db.QueryRow(context.Background(), "SELECT total_balance_micros FROM users WHERE id = $1", userID).Scan(&v)
	require.NoError(t, err)
	return v
}
