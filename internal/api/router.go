package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"

	"github.com/kunledawodu/counterex/internal/api/handler"
	"github.com/kunledawodu/counterex/internal/api/middleware"
	"github.com/kunledawodu/counterex/internal/api/spec"
	"github.com/kunledawodu/counterex/internal/config"
	"github.com/kunledawodu/counterex/internal/domain"
	"github.com/kunledawodu/counterex/internal/idempotency"
	"github.com/kunledawodu/counterex/internal/notify"
	"github.com/kunledawodu/counterex/internal/repository"
	"github.com/kunledawodu/counterex/internal/service"
)

type Router struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        *pgxpool.Pool
	store     *repository.Store
	idemStore *idempotency.Store
	redis     *redis.Client
	broker    notify.Broker
	catalog   domain.Catalog
}

func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	db *pgxpool.Pool,
	store *repository.Store,
	idemStore *idempotency.Store,
	redisClient *redis.Client,
	broker notify.Broker,
	catalog domain.Catalog,
) *Router {
	return &Router{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		store:     store,
		idemStore: idemStore,
		redis:     redisClient,
		broker:    broker,
		catalog:   catalog,
	}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	// Services
	auditSvc := service.NewAuditService(api.store)
	counterSvc := service.NewCounterService(api.store, api.catalog, auditSvc, api.broker)
	userSvc := service.NewUserService(api.store, counterSvc)
	exchangeSvc := service.NewExchangeService(api.store, api.catalog, auditSvc, api.broker)
	depositSvc := service.NewDepositService(api.store, api.catalog, auditSvc, api.broker)
	withdrawalSvc := service.NewWithdrawalService(api.store, api.catalog, auditSvc, api.broker)
	groupingSvc := service.NewGroupingService(api.store)
	rateSvc := service.NewRateService(api.store, api.catalog)
	transactionSvc := service.NewTransactionService(api.store)
	integritySvc := service.NewIntegrityService(api.store)
	resetSvc := service.NewResetService(api.store)

	// Handlers
	authHandler := handler.NewAuthHandler(userSvc)
	userHandler := handler.NewUserHandler(userSvc)
	counterHandler := handler.NewCounterHandler(counterSvc)
	exchangeHandler := handler.NewExchangeHandler(exchangeSvc, rateSvc)
	depositHandler := handler.NewDepositHandler(depositSvc)
	withdrawalHandler := handler.NewWithdrawalHandler(withdrawalSvc, transactionSvc)
	pairHandler := handler.NewPairHandler(rateSvc)
	eventsHandler := handler.NewEventsHandler(api.broker)
	healthHandler := handler.NewHealthHandler(api.db, api.redis)
	adminHandler := handler.NewAdminHandler(withdrawalSvc, depositSvc, groupingSvc, counterSvc, rateSvc, integritySvc, resetSvc, transactionSvc)

	// Public routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))

		r.Post("/v1/auth/login", authHandler.Login)
		r.Post("/v1/users", userHandler.Register)
		r.Get("/v1/health/live", healthHandler.Live)
		r.Get("/v1/health/ready", healthHandler.Ready)
		r.Get("/v1/openapi.yaml", spec.OpenAPIHandler())
		r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/v1/openapi.yaml")))
	})

	r.Handle("/metrics", promhttp.Handler())

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		r.Get("/v1/me", userHandler.Me)
		r.Get("/v1/counters", counterHandler.List)
		r.Post("/v1/counters/sync", counterHandler.Sync)
		r.Get("/v1/tiers", counterHandler.Catalog)
		r.Get("/v1/pairs", pairHandler.List)
		r.Get("/v1/exchanges/quote", exchangeHandler.Quote)
		r.Get("/v1/transactions", withdrawalHandler.ListTransactions)
		r.Get("/v1/events", eventsHandler.Stream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.IdempotencyMiddleware(api.idemStore, api.logger))

			r.Post("/v1/exchanges", exchangeHandler.CompleteTask)
			r.Post("/v1/deposits", depositHandler.Request)
			r.Post("/v1/withdrawals", withdrawalHandler.Request)
			r.Post("/v1/withdrawals/all", withdrawalHandler.RequestAll)
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole("admin"))

			r.Get("/v1/admin/withdrawals/pending", adminHandler.PendingWithdrawals)
			r.Get("/v1/admin/withdrawals/history", adminHandler.WithdrawalHistory)
			r.Get("/v1/admin/withdrawals/{id}", adminHandler.GetWithdrawal)
			r.Post("/v1/admin/withdrawals/decisions", adminHandler.DecideWithdrawals)
			r.Get("/v1/admin/users/{id}/transactions", adminHandler.UserTransactions)
			r.Post("/v1/admin/withdrawals/{id}/approve", adminHandler.ApproveWithdrawal)
			r.Post("/v1/admin/withdrawals/{id}/deny", adminHandler.DenyWithdrawal)
			r.Post("/v1/admin/withdrawals/{id}/freeze", adminHandler.FreezeWithdrawal)
			r.Post("/v1/admin/withdrawals/{id}/reverse", adminHandler.ReverseWithdrawal)
			r.Patch("/v1/admin/withdrawals/{id}", adminHandler.EditWithdrawal)
			r.Delete("/v1/admin/withdrawals/{id}", adminHandler.DeleteWithdrawal)
			r.Post("/v1/admin/deposits/{id}/approve", adminHandler.ApproveDeposit)
			r.Post("/v1/admin/deposits/{id}/deny", adminHandler.DenyDeposit)
			r.Post("/v1/admin/users/{id}/counters/reset", adminHandler.ResetUserCounters)
			r.Post("/v1/admin/maintenance/rollover", adminHandler.TriggerRollover)
			r.Get("/v1/admin/integrity", adminHandler.IntegrityCheck)
			r.Post("/v1/admin/pairs", adminHandler.CreatePair)
			r.Patch("/v1/admin/pairs/{id}", adminHandler.UpdatePair)
			r.Delete("/v1/admin/pairs/{id}", adminHandler.DeletePair)
		})
	})

	return r
}
