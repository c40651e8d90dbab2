package usecase

import "time"

const (
	// DefaultTransactionTimeout is the maximum duration for a database transaction
	// This prevents long-running transactions from blocking treasury rows
	DefaultTransactionTimeout = 10 * time.Second

	// IdempotencyKeyTTL is how long idempotency keys are cached
	IdempotencyKeyTTL = 24 * time.Hour

	// StatsCacheKey is the cache key of the aggregated treasury stats.
	StatsCacheKey = "treasury:stats"

	// reconcilePageSize is the page size used when walking all treasuries.
	reconcilePageSize = 100
)
