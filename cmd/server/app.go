package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	httpAdapter "github.com/iho/treasury/internal/adapter/http"
	"github.com/iho/treasury/internal/adapter/http/handler"
	"github.com/iho/treasury/internal/adapter/http/middleware"
	"github.com/iho/treasury/internal/adapter/repository/memory"
	postgresRepo "github.com/iho/treasury/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/treasury/internal/adapter/repository/redis"
	"github.com/iho/treasury/internal/infrastructure/auth"
	"github.com/iho/treasury/internal/infrastructure/config"
	"github.com/iho/treasury/internal/infrastructure/eventpublisher"
	"github.com/iho/treasury/internal/infrastructure/metrics"
	"github.com/iho/treasury/internal/infrastructure/postgres"
	"github.com/iho/treasury/internal/infrastructure/redis"
	"github.com/iho/treasury/internal/usecase"
)

// storage is one storage driver's implementation of the repositories.
type storage struct {
	txManager       usecase.TransactionManager
	treasuryRepo    usecase.TreasuryRepository
	transactionRepo usecase.TransactionRepository
	companyRepo     usecase.CompanyRepository
	outboxRepo      usecase.OutboxRepository
	retrier         usecase.Retrier
	check           handler.HealthCheck
	close           func()
}

// app is the wired service.
type app struct {
	handler     http.Handler
	publisher   *eventpublisher.EventPublisher
	rateLimiter *middleware.RateLimiter
	closers     []func()
}

// Close releases connections in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	a := &app{}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	policy, err := cfg.OverdraftPolicy()
	if err != nil {
		return nil, err
	}

	store, err := openStorage(ctx, cfg, m, log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store.close)

	checks := map[string]handler.HealthCheck{}
	if store.check != nil {
		checks[cfg.StorageDriver] = store.check
	}

	var (
		cache       usecase.Cache
		idempotency usecase.IdempotencyStore
		publisher   eventpublisher.Publisher = eventpublisher.NewLogPublisher(log)
		redisClient *goredis.Client
	)
	if cfg.RedisEnabled {
		redisClient, err = redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = redisClient.Close() })
		log.Info().Msg("connected to redis")

		cache = redisRepo.NewCache(redisClient)
		idempotency = redisRepo.NewIdempotencyStore(redisClient)
		publisher = eventpublisher.NewStreamPublisher(redisClient, cfg.OutboxStream, 0)
		checks["redis"] = redis.Check(redisClient)
	}

	// Use cases
	posting := usecase.NewPostingUseCase(
		store.txManager, store.treasuryRepo, store.transactionRepo, store.outboxRepo, store.retrier,
		postgresRepo.NewULIDGenerator(), policy, cache, m, log,
	)
	treasuryUC := usecase.NewTreasuryUseCase(posting, store.companyRepo, m, log)
	transferUC := usecase.NewTransferUseCase(posting, m, log)
	statementUC := usecase.NewStatementUseCase(store.transactionRepo, store.treasuryRepo)
	statsUC := usecase.NewStatsUseCase(store.treasuryRepo, cache, cfg.StatsCacheTTL, m, log)
	reconUC := usecase.NewReconciliationUseCase(store.treasuryRepo, store.transactionRepo, m, log)

	routerCfg := httpAdapter.RouterConfig{
		TreasuryHandler:    handler.NewTreasuryHandler(treasuryUC),
		TransactionHandler: handler.NewTransactionHandler(posting, statementUC),
		TransferHandler:    handler.NewTransferHandler(transferUC),
		ReportHandler:      handler.NewReportHandler(statsUC, reconUC),
		HealthHandler:      handler.NewHealthHandler(checks),
		IdempotencyStore:   idempotency,
		IdempotencyTTL:     cfg.IdempotencyTTL,
		Metrics:            m,
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Logger:             log,
	}
	if cfg.AuthEnabled {
		routerCfg.TokenVerifier = auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration)
	}
	if cfg.RateLimitRPS > 0 {
		a.rateLimiter = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, m)
		routerCfg.RateLimiter = a.rateLimiter
	}
	a.handler = httpAdapter.NewRouter(routerCfg)

	a.publisher = eventpublisher.NewEventPublisher(eventpublisher.Config{
		OutboxRepo: store.outboxRepo,
		Publisher:  publisher,
		Metrics:    m,
		Logger:     log,
		BatchSize:  cfg.OutboxBatchSize,
		Interval:   cfg.OutboxPollInterval,
		Retention:  cfg.OutboxRetention,
	})

	return a, nil
}

func openStorage(ctx context.Context, cfg *config.Config, m *metrics.Metrics, log zerolog.Logger) (*storage, error) {
	if cfg.StorageDriver == config.StorageDriverMemory {
		log.Warn().Msg("using in-memory storage; data is lost on restart")
		store := memory.NewStore(memory.WithLockTimeout(cfg.LockTimeout))
		return &storage{
			txManager:       store,
			treasuryRepo:    memory.NewTreasuryRepository(store),
			transactionRepo: memory.NewTransactionRepository(store),
			companyRepo:     memory.NewCompanyRepository(store),
			outboxRepo:      memory.NewOutboxRepository(store),
			close:           func() {},
		}, nil
	}

	if cfg.RunMigrations {
		if err := postgres.NewMigrator(cfg.DatabaseURL, cfg.MigrationsPath, log).Up(); err != nil {
			return nil, err
		}
	}

	pool, err := postgres.NewPoolWithConfig(ctx, postgres.PoolConfig{
		DatabaseURL:    cfg.DatabaseURL,
		MaxConns:       cfg.DatabaseMaxConns,
		MinConns:       cfg.DatabaseMinConns,
		ConnectTimeout: cfg.DatabaseTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	log.Info().Msg("connected to postgres")

	return &storage{
		txManager:       postgresRepo.NewTxManager(pool, cfg.LockTimeout),
		treasuryRepo:    postgresRepo.NewTreasuryRepository(pool),
		transactionRepo: postgresRepo.NewTransactionRepository(pool),
		companyRepo:     postgresRepo.NewCompanyRepository(pool),
		outboxRepo:      postgresRepo.NewOutboxRepository(pool),
		retrier:         postgresRepo.NewRetrier(m, log),
		check:           pool.Ping,
		close:           pool.Close,
	}, nil
}
