package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/treasury/internal/domain"
)

// TreasuryRepository defines data access for treasuries.
type TreasuryRepository interface {
	Create(ctx context.Context, tx Transaction, treasury *domain.Treasury) error
	GetByID(ctx context.Context, id string) (*domain.Treasury, error)
	GetByIDForUpdate(ctx context.Context, tx Transaction, id string) (*domain.Treasury, error)
	// GetByIDsForUpdate locks the rows in ascending id order.
	GetByIDsForUpdate(ctx context.Context, tx Transaction, ids []string) ([]*domain.Treasury, error)
	UpdateBalance(ctx context.Context, tx Transaction, id string, balance decimal.Decimal, version int64, updatedAt time.Time) error
	SetActive(ctx context.Context, tx Transaction, id string, active bool, updatedAt time.Time) error
	Delete(ctx context.Context, tx Transaction, id string) error
	List(ctx context.Context, filter domain.TreasuryFilter) ([]*domain.Treasury, int64, error)
	SumByType(ctx context.Context, activeOnly bool) ([]domain.TypeTotal, error)
	// BalancesByType returns cached balance totals and signed log totals per
	// type, both read from one snapshot.
	BalancesByType(ctx context.Context) (cached, logged []domain.TypeTotal, err error)
}

// TransactionRepository defines data access for the append-only transaction log.
type TransactionRepository interface {
	Create(ctx context.Context, tx Transaction, transaction *domain.Transaction) error
	GetByID(ctx context.Context, id string) (*domain.Transaction, error)
	GetByPairID(ctx context.Context, pairID string) ([]*domain.Transaction, error)
	CountByTreasury(ctx context.Context, tx Transaction, treasuryID string) (int64, error)
	// List returns rows newest first and the total matching the filter.
	List(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, int64, error)
	// ListChronological returns a treasury's full history oldest first.
	ListChronological(ctx context.Context, treasuryID string) ([]*domain.Transaction, error)
}

// CompanyRepository resolves companies owned by the wider ERP.
type CompanyRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Company, error)
}

// OutboxRepository defines data access for outbox events.
type OutboxRepository interface {
	Create(ctx context.Context, tx Transaction, event *domain.OutboxEvent) error
	GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error
	DeletePublished(ctx context.Context, before time.Time) error
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// Retrier re-runs a unit of work on transient storage conflicts.
// When retries are exhausted the returned error wraps domain.ErrConflict.
type Retrier interface {
	Retry(ctx context.Context, operation func() error) error
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// Cache defines caching operations.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// IdempotencyStore handles idempotency key storage.
type IdempotencyStore interface {
	// CheckAndSet atomically checks if key exists, sets if not.
	// Returns (exists, existingValue, error).
	CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	// Update updates an existing key with the final response.
	Update(ctx context.Context, key string, response []byte, ttl time.Duration) error
	// Release drops a claimed key so the request can be retried.
	Release(ctx context.Context, key string) error
}
