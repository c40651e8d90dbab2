package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/iho/treasury/internal/adapter/http/handler"
	"github.com/iho/treasury/internal/adapter/http/middleware"
	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/infrastructure/metrics"
	"github.com/iho/treasury/internal/usecase"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	TreasuryHandler    *handler.TreasuryHandler
	TransactionHandler *handler.TransactionHandler
	TransferHandler    *handler.TransferHandler
	ReportHandler      *handler.ReportHandler
	HealthHandler      *handler.HealthHandler

	// Optional
	IdempotencyStore usecase.IdempotencyStore
	IdempotencyTTL   time.Duration
	RateLimiter      *middleware.RateLimiter
	TokenVerifier    middleware.TokenVerifier
	Metrics          *metrics.Metrics
	MetricsHandler   http.Handler
	Logger           zerolog.Logger
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Wrap)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Metrics(cfg.Metrics))
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Limit)
	}

	// Health endpoints
	r.Get("/health", cfg.HealthHandler.Liveness)
	r.Get("/ready", cfg.HealthHandler.Readiness)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	requireRole := func(role domain.Role) func(http.Handler) http.Handler {
		if cfg.TokenVerifier == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return middleware.RequireRole(role)
	}

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.TokenVerifier != nil {
			r.Use(middleware.AuthMiddleware(cfg.TokenVerifier, cfg.Metrics))
		}

		// Idempotency middleware for mutating requests
		if cfg.IdempotencyStore != nil {
			idempotencyMiddleware := middleware.NewIdempotencyMiddleware(cfg.IdempotencyStore, cfg.IdempotencyTTL, cfg.Logger)
			r.Use(idempotencyMiddleware.Wrap)
		}

		operator := requireRole(domain.RoleOperator)
		admin := requireRole(domain.RoleAdmin)

		// Treasuries
		r.Route("/treasuries", func(r chi.Router) {
			r.With(operator).Post("/", cfg.TreasuryHandler.Create)
			r.Get("/", cfg.TreasuryHandler.List)
			r.Get("/{id}", cfg.TreasuryHandler.Get)
			r.With(admin).Delete("/{id}", cfg.TreasuryHandler.Delete)
			r.With(admin).Post("/{id}/deactivate", cfg.TreasuryHandler.Deactivate)
			r.With(admin).Post("/{id}/activate", cfg.TreasuryHandler.Activate)
			r.Get("/{id}/transactions", cfg.TransactionHandler.ListByTreasury)
			r.Get("/{id}/reconciliation", cfg.ReportHandler.ReconcileTreasury)
		})

		// Transactions
		r.Route("/transactions", func(r chi.Router) {
			r.With(operator).Post("/", cfg.TransactionHandler.Create)
			r.Get("/", cfg.TransactionHandler.List)
			r.Get("/{id}", cfg.TransactionHandler.Get)
		})

		// Transfers
		r.Route("/transfers", func(r chi.Router) {
			r.With(operator).Post("/", cfg.TransferHandler.Create)
			r.Get("/{pairID}", cfg.TransferHandler.Get)
		})

		// Reports
		r.Get("/stats", cfg.ReportHandler.Stats)
		r.Get("/reconciliation", cfg.ReportHandler.ReconcileAll)
	})

	return r
}
