package memory

import (
	"context"
	"time"

	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/usecase"
)

// OutboxRepository implements usecase.OutboxRepository.
type OutboxRepository struct {
	store *Store
}

// NewOutboxRepository creates a new OutboxRepository.
func NewOutboxRepository(store *Store) *OutboxRepository {
	return &OutboxRepository{store: store}
}

// Create stages an event in the caller's transaction.
func (r *OutboxRepository) Create(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	e := *event
	t.outbox = append(t.outbox, &e)
	return nil
}

// GetUnpublished returns unpublished events oldest first.
func (r *OutboxRepository) GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	events := make([]*domain.OutboxEvent, 0)
	for _, id := range r.store.outboxOrder {
		event := r.store.outbox[id]
		if event == nil || event.Published {
			continue
		}
		e := *event
		events = append(events, &e)
		if limit > 0 && len(events) == limit {
			break
		}
	}
	return events, nil
}

// MarkPublished flags an event as published.
func (r *OutboxRepository) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if event, ok := r.store.outbox[id]; ok {
		event.Published = true
		event.PublishedAt = &publishedAt
	}
	return nil
}

// DeletePublished drops events published before the cutoff.
func (r *OutboxRepository) DeletePublished(ctx context.Context, before time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	kept := r.store.outboxOrder[:0]
	for _, id := range r.store.outboxOrder {
		event := r.store.outbox[id]
		if event.Published && event.PublishedAt != nil && event.PublishedAt.Before(before) {
			delete(r.store.outbox, id)
			continue
		}
		kept = append(kept, id)
	}
	r.store.outboxOrder = kept
	return nil
}

// CompanyRepository implements usecase.CompanyRepository.
type CompanyRepository struct {
	store *Store
}

// NewCompanyRepository creates a new CompanyRepository.
func NewCompanyRepository(store *Store) *CompanyRepository {
	return &CompanyRepository{store: store}
}

// GetByID resolves a company.
func (r *CompanyRepository) GetByID(ctx context.Context, id string) (*domain.Company, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	company, ok := r.store.companies[id]
	if !ok {
		return nil, domain.ErrCompanyNotFound
	}
	c := *company
	return &c, nil
}
