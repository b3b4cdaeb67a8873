package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kunledawodu/counterex/internal/api"
	"github.com/kunledawodu/counterex/internal/api/middleware"
	"github.com/kunledawodu/counterex/internal/config"
	"github.com/kunledawodu/counterex/internal/domain"
	"github.com/kunledawodu/counterex/internal/idempotency"
	"github.com/kunledawodu/counterex/internal/models"
	"github.com/kunledawodu/counterex/internal/notify"
	"github.com/kunledawodu/counterex/internal/repository"
	"github.com/kunledawodu/counterex/internal/testutil/dblock"
)

var testDB *pgxpool.Pool

const (
	testJWTSecret   = "test-secret-0123456789-test-secret"
	testJWTIssuer   = "counterex-test"
	testJWTAudience = "counterex-api-test"
	testPassword    = "hunter2hunter2"
)

func TestMain(m *testing.M) {
	connStr := os.Getenv("DATABASE_URL")
	if connStr == "" {
		os.Exit(m.Run())
	}

	release := dblock.Acquire()

	var err error
	testDB, err = pgxpool.New(context.Background(), connStr)
	if err != nil {
		release()
		fmt.Printf("Unable to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer testDB.Close()

	ctx := context.Background()
	if err := testDB.Ping(ctx); err != nil {
		release()
		fmt.Printf("Unable to ping database: %v\n", err)
		os.Exit(1)
	}

	schema, err := os.ReadFile(filepath.Join("..", "..", "migrations", "0001_init.sql"))
	if err != nil {
		release()
		fmt.Printf("Unable to read schema: %v\n", err)
		os.Exit(1)
	}
	if _, err := testDB.Exec(ctx, string(schema)); err != nil {
		release()
		fmt.Printf("Unable to apply schema: %v\n", err)
		os.Exit(1)
	}

	middleware.SetJWTSecret(testJWTSecret)
	middleware.SetJWTValidation(testJWTIssuer, testJWTAudience)

	code := m.Run()
	release()
	os.Exit(code)
}

func requireDB(t *testing.T) {
	t.Helper()
	if testDB == nil {
		t.Skip("Skipping integration test: DATABASE_URL not set")
	}
}

func cleanupDB(t *testing.T) {
	t.Helper()
	requireDB(t)
	_, err := testDB.Exec(context.Background(), "TRUNCATE TABLE audit_log, idempotency_keys, transactions, counter_progress, currency_pairs, users CASCADE")
	require.NoError(t, err)
}

func setupAPI(t *testing.T) http.Handler {
	t.Helper()
	store := repository.NewStore(testDB)
	idemStore := idempotency.NewStore(nil, testDB, time.Hour)
	broker := notify.NewMemoryBroker()
	t.Cleanup(func() { broker.Close() })

	cfg := &config.Config{
		HTTPPort:           "0",
		JWTSecret:          testJWTSecret,
		JWTIssuer:          testJWTIssuer,
		JWTAudience:        testJWTAudience,
		PublicRateLimitRPS: 1000,
		AuthRateLimitRPS:   1000,
		IdempotencyTTL:     time.Hour,
	}
	router := api.NewRouter(cfg, zap.NewNop(), testDB, store, idemStore, nil, broker, domain.DefaultCatalog())
	return router.Routes()
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, payload any, idemKey string) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func registerUser(t *testing.T, router http.Handler, username string) models.User {
	t.Helper()
	w := doJSON(t, router, "POST", "/v1/users", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": testPassword,
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var user models.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &user))
	return user
}

func loginUser(t *testing.T, router http.Handler, username string) string {
	t.Helper()
	w := doJSON(t, router, "POST", "/v1/auth/login", "", map[string]string{
		"username": username,
		"password": testPassword,
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func promoteToAdmin(t *testing.T, userID uuid.UUID) {
	t.Helper()
	_, err := testDB.Exec(context.Background(), "UPDATE users SET role = 'admin' WHERE id = $1", userID)
	require.NoError(t, err)
}

func fundTier(t *testing.T, router http.Handler, userToken, adminToken string, tierID int, amountMicros int64) {
	t.Helper()
	w := doJSON(t, router, "POST", "/v1/deposits", userToken, map[string]any{
		"tier_id":       tierID,
		"amount_micros": amountMicros,
		"reference_id":  uuid.NewString(),
	}, uuid.NewString())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var tx models.Transaction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tx))

	aw := doJSON(t, router, "POST", "/v1/admin/deposits/"+tx.ID.String()+"/approve", adminToken, nil, uuid.NewString())
	require.Equal(t, http.StatusOK, aw.Code, aw.Body.String())
}

func TestRFC7807ProblemDetails(t *testing.T) {
	cleanupDB(t)
	router := setupAPI(t)

	req := httptest.NewRequest("GET", "/v1/counters", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Header().Get("Content-Type"), "application/problem+json")

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body["type"])
	assert.Equal(t, float64(http.StatusUnauthorized), body["status"])
	assert.NotEmpty(t, body["title"])
	assert.NotEmpty(t, body["detail"])
	assert.Equal(t, "/v1/counters", body["instance"])
}

func TestRegisterCreatesFullLadder(t *testing.T) {
	cleanupDB(t)
	router := setupAPI(t)

	user := registerUser(t, router, "maria")
	assert.Equal(t, "user", user.Role)
	assert.Zero(t, user.TotalBalanceMicros)

	token := loginUser(t, router, "maria")
	w := doJSON(t, router, "GET", "/v1/counters", token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Counters []models.Counter `json:"counters"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Counters, len(domain.DefaultCatalog()))
	for _, c := range resp.Counters {
		assert.False(t, c.IsActive)
		assert.Zero(t, c.BalanceMicros)
	}
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	cleanupDB(t)
	router := setupAPI(t)

	w := doJSON(t, router, "POST", "/v1/users", "", map[string]string{
		"username": "shorty",
		"password": "short",
	}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	cleanupDB(t)
	router := setupAPI(t)
	registerUser(t, router, "victor")

	w := doJSON(t, router, "POST", "/v1/auth/login", "", map[string]string{
		"username": "victor",
		"password": "not-the-password",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginTokenCarriesRoleClaims(t *testing.T) {
	cleanupDB(t)
	router := setupAPI(t)
	registerUser(t, router, "claimcheck")
	token := loginUser(t, router, "claimcheck")

	parsed, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
		return middleware.JWTSecret(), nil
	}, jwt.WithIssuer(testJWTIssuer), jwt.WithAudience(testJWTAudience))
	require.NoError(t, err)
	claims, ok := parsed.Claims.(jwt.MapClaims)
	require.True(t, ok)
	assert.Equal(t, "user", claims["role"])
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	cleanupDB(t)
	router := setupAPI(t)
	registerUser(t, router, "plain")
	token := loginUser(t, router, "plain")

	w := doJSON(t, router, "GET", "/v1/admin/integrity", token, nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestMutatingRoutesRequireIdempotencyKey(t *testing.T) {
	cleanupDB(t)
	router := setupAPI(t)
	registerUser(t, router, "nokey")
	token := loginUser(t, router, "nokey")

	w := doJSON(t, router, "POST", "/v1/deposits", token, map[string]any{
		"tier_id":       1,
		"amount_micros": int64(200_000_000),
		"reference_id":  uuid.NewString(),
	}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIdempotentDepositReplay(t *testing.T) {
	cleanupDB(t)
	router := setupAPI(t)
	registerUser(t, router, "replayer")
	token := loginUser(t, router, "replayer")

	payload := map[string]any{
		"tier_id":       1,
		"amount_micros": int64(200_000_000),
		"reference_id":  uuid.NewString(),
	}
	key := uuid.NewString()

	first := doJSON(t, router, "POST", "/v1/deposits", token, payload, key)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	second := doJSON(t, router, "POST", "/v1/deposits", token, payload, key)
	require.Equal(t, http.StatusCreated, second.Code)
	assert.NotEmpty(t, second.Header().Get("X-Idempotent-Replay"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
}

func TestDepositAndExchangeFlow(t *testing.T) {
	cleanupDB(t)
	router := setupAPI(t)

	admin := registerUser(t, router, "boss")
	promoteToAdmin(t, admin.ID)
	adminToken := loginUser(t, router, "boss")

	registerUser(t, router, "worker")
	userToken := loginUser(t, router, "worker")

	fundTier(t, router, userToken, adminToken, 1, 1_000_000_000)

	w := doJSON(t, router, "POST", "/v1/exchanges", userToken, map[string]any{
		"tier_id":       1,
		"amount_micros": int64(500_000_000),
		"reference_id":  uuid.NewString(),
	}, uuid.NewString())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Transaction      models.Transaction `json:"transaction"`
		Counter          models.Counter     `json:"counter"`
		CommissionMicros int64              `json:"commission_micros"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, domain.TxTypeExchange, resp.Transaction.Type)
	assert.Equal(t, domain.TxStatusCompleted, resp.Transaction.Status)
	assert.Equal(t, int64(2_000_000), resp.CommissionMicros)
	assert.Equal(t, 1, resp.Counter.CompletedTasks)
	assert.Equal(t, int64(2_000_000), resp.Counter.TotalEarningsMicros)
}

func TestExchangeRejectsUnfundedTier(t *testing.T) {
	cleanupDB(t)
	router := setupAPI(t)
	registerUser(t, router, "broke")
	token := loginUser(t, router, "broke")

	w := doJSON(t, router, "POST", "/v1/exchanges", token, map[string]any{
		"tier_id":       1,
		"amount_micros": int64(500_000_000),
		"reference_id":  uuid.NewString(),
	}, uuid.NewString())
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestWithdrawalLifecycle(t *testing.T) {
	cleanupDB(t)
	router := setupAPI(t)

	admin := registerUser(t, router, "settler")
	promoteToAdmin(t, admin.ID)
	adminToken := loginUser(t, router, "settler")

	user := registerUser(t, router, "saver")
	userToken := loginUser(t, router, "saver")

	// Seed an unlocked tier directly: quota satisfied, holdings split
	// between principal and earnings.
	ctx := context.Background()
	_, err := testDB.Exec(ctx, `
		UPDATE counter_progress
		SET balance_micros = 50000000, total_earnings_micros = 30000000,
		    completed_tasks = 20, cumulative_completed_tasks = 20,
		    is_active = TRUE, can_withdraw = TRUE
		WHERE user_id = $1 AND tier_id = 1`, user.ID)
	require.NoError(t, err)
	_, err = testDB.Exec(ctx, "UPDATE users SET total_balance_micros = 50000000 WHERE id = $1", user.ID)
	require.NoError(t, err)

	w := doJSON(t, router, "POST", "/v1/withdrawals", userToken, map[string]any{
		"tier_id":       1,
		"amount_micros": int64(70_000_000),
		"reference_id":  uuid.NewString(),
	}, uuid.NewString())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var tx models.Transaction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tx))
	assert.Equal(t, domain.TxStatusPending, tx.Status)

	// The pending queue groups by user.
	pw := doJSON(t, router, "GET", "/v1/admin/withdrawals/pending", adminToken, nil, "")
	require.Equal(t, http.StatusOK, pw.Code)
	var pending struct {
		Groups []struct {
			UserID      uuid.UUID `json:"user_id"`
			CreatedAt   time.Time `json:"created_at"`
			Count       int       `json:"count"`
			TotalMicros int64     `json:"total_micros"`
		} `json:"groups"`
	}
	require.NoError(t, json.Unmarshal(pw.Body.Bytes(), &pending))
	require.Len(t, pending.Groups, 1)
	assert.Equal(t, user.ID, pending.Groups[0].UserID)
	assert.Equal(t, 1, pending.Groups[0].Count)
	assert.Equal(t, int64(70_000_000), pending.Groups[0].TotalMicros)
	assert.False(t, pending.Groups[0].CreatedAt.IsZero())

	aw := doJSON(t, router, "POST", "/v1/admin/withdrawals/"+tx.ID.String()+"/approve", adminToken, nil, uuid.NewString())
	require.Equal(t, http.StatusOK, aw.Code, aw.Body.String())
	var settled models.Transaction
	require.NoError(t, json.Unmarshal(aw.Body.Bytes(), &settled))
	assert.Equal(t, domain.TxStatusApproved, settled.Status)

	// Balance drains first, the remainder comes from earnings.
	cw := doJSON(t, router, "GET", "/v1/counters", userToken, nil, "")
	require.Equal(t, http.StatusOK, cw.Code)
	var counters struct {
		Counters []models.Counter `json:"counters"`
	}
	require.NoError(t, json.Unmarshal(cw.Body.Bytes(), &counters))
	for _, c := range counters.Counters {
		if c.TierID == 1 {
			assert.Zero(t, c.BalanceMicros)
			assert.Equal(t, int64(10_000_000), c.TotalEarningsMicros)
		}
	}

	hw := doJSON(t, router, "GET", "/v1/admin/withdrawals/history", adminToken, nil, "")
	require.Equal(t, http.StatusOK, hw.Code)
	var history struct {
		Groups []struct {
			UserID uuid.UUID `json:"user_id"`
			Count  int       `json:"count"`
		} `json:"groups"`
	}
	require.NoError(t, json.Unmarshal(hw.Body.Bytes(), &history))
	require.Len(t, history.Groups, 1)
	assert.Equal(t, 1, history.Groups[0].Count)

	// Settling twice is an invalid transition.
	again := doJSON(t, router, "POST", "/v1/admin/withdrawals/"+tx.ID.String()+"/approve", adminToken, nil, uuid.NewString())
	assert.Equal(t, http.StatusConflict, again.Code)
}

func TestPairManagementAndQuote(t *testing.T) {
	cleanupDB(t)
	router := setupAPI(t)

	admin := registerUser(t, router, "ratesetter")
	promoteToAdmin(t, admin.ID)
	adminToken := loginUser(t, router, "ratesetter")

	w := doJSON(t, router, "POST", "/v1/admin/pairs", adminToken, map[string]string{
		"base":  "eur",
		"quote": "usd",
		"rate":  "1.0842",
	}, uuid.NewString())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var pair models.CurrencyPair
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pair))
	assert.Equal(t, "EUR", pair.Base)
	assert.Equal(t, "USD", pair.Quote)

	qw := doJSON(t, router, "GET", "/v1/exchanges/quote?tier_id=1&pair=EUR/USD", adminToken, nil, "")
	require.Equal(t, http.StatusOK, qw.Code, qw.Body.String())
	var quote struct {
		TierID       int    `json:"tier_id"`
		Rate         string `json:"rate"`
		AmountMicros int64  `json:"amount_micros"`
	}
	require.NoError(t, json.Unmarshal(qw.Body.Bytes(), &quote))
	assert.Equal(t, 1, quote.TierID)
	assert.Equal(t, "1.0842", quote.Rate)
	assert.GreaterOrEqual(t, quote.AmountMicros, int64(100_000_000))
	assert.LessOrEqual(t, quote.AmountMicros, int64(1_000_000_000))
}

func TestHealthLive(t *testing.T) {
	requireDB(t)
	router := setupAPI(t)

	req := httptest.NewRequest("GET", "/v1/health/live", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
