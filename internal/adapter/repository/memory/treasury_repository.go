package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/usecase"
)

// TreasuryRepository implements usecase.TreasuryRepository.
type TreasuryRepository struct {
	store *Store
}

// NewTreasuryRepository creates a new TreasuryRepository.
func NewTreasuryRepository(store *Store) *TreasuryRepository {
	return &TreasuryRepository{store: store}
}

// Create stages a new treasury.
func (r *TreasuryRepository) Create(ctx context.Context, tx usecase.Transaction, treasury *domain.Treasury) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	if _, exists := t.treasury(treasury.ID); exists {
		return fmt.Errorf("%w: treasury %s already exists", domain.ErrConflict, treasury.ID)
	}
	t.treasuries[treasury.ID] = cloneTreasury(treasury)
	return nil
}

// GetByID retrieves a committed treasury.
func (r *TreasuryRepository) GetByID(ctx context.Context, id string) (*domain.Treasury, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	treasury, ok := r.store.treasuries[id]
	if !ok {
		return nil, domain.ErrTreasuryNotFound
	}
	return cloneTreasury(treasury), nil
}

// GetByIDForUpdate locks and retrieves a treasury.
func (r *TreasuryRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Treasury, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	if err := t.lock(ctx, id); err != nil {
		return nil, err
	}

	treasury, ok := t.treasury(id)
	if !ok {
		return nil, domain.ErrTreasuryNotFound
	}
	return cloneTreasury(treasury), nil
}

// GetByIDsForUpdate locks treasuries in ascending id order. Missing ids are
// left out of the result.
func (r *TreasuryRepository) GetByIDsForUpdate(ctx context.Context, tx usecase.Transaction, ids []string) ([]*domain.Treasury, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	if err := t.lock(ctx, ids...); err != nil {
		return nil, err
	}

	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	treasuries := make([]*domain.Treasury, 0, len(sorted))
	for _, id := range sorted {
		if treasury, ok := t.treasury(id); ok {
			treasuries = append(treasuries, cloneTreasury(treasury))
		}
	}
	return treasuries, nil
}

// UpdateBalance stages the new cached balance of a locked treasury.
func (r *TreasuryRepository) UpdateBalance(ctx context.Context, tx usecase.Transaction, id string, balance decimal.Decimal, version int64, updatedAt time.Time) error {
	return r.update(tx, id, func(treasury *domain.Treasury) {
		treasury.Balance = balance
		treasury.Version = version
		treasury.UpdatedAt = updatedAt
	})
}

// SetActive stages the active flag of a locked treasury.
func (r *TreasuryRepository) SetActive(ctx context.Context, tx usecase.Transaction, id string, active bool, updatedAt time.Time) error {
	return r.update(tx, id, func(treasury *domain.Treasury) {
		treasury.IsActive = active
		treasury.UpdatedAt = updatedAt
	})
}

func (r *TreasuryRepository) update(tx usecase.Transaction, id string, apply func(*domain.Treasury)) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}

	current, ok := t.treasury(id)
	if !ok {
		return domain.ErrTreasuryNotFound
	}
	_, locked := t.held[id]
	if _, staged := t.treasuries[id]; !staged && !locked {
		return fmt.Errorf("memory: treasury %s updated without a row lock", id)
	}

	next := cloneTreasury(current)
	apply(next)
	t.treasuries[id] = next
	return nil
}

// Delete stages removal of a treasury.
func (r *TreasuryRepository) Delete(ctx context.Context, tx usecase.Transaction, id string) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	if _, ok := t.treasury(id); !ok {
		return domain.ErrTreasuryNotFound
	}
	delete(t.treasuries, id)
	t.deleted[id] = true
	return nil
}

// List returns committed treasuries in id order and the total matching count.
func (r *TreasuryRepository) List(ctx context.Context, filter domain.TreasuryFilter) ([]*domain.Treasury, int64, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	matched := make([]*domain.Treasury, 0)
	for _, treasury := range r.store.treasuries {
		if filter.Type != nil && treasury.Type != *filter.Type {
			continue
		}
		if filter.IsActive != nil && treasury.IsActive != *filter.IsActive {
			continue
		}
		matched = append(matched, treasury)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	total := int64(len(matched))
	page := paginate(matched, filter.Limit, filter.Offset)

	result := make([]*domain.Treasury, 0, len(page))
	for _, treasury := range page {
		result = append(result, cloneTreasury(treasury))
	}
	return result, total, nil
}

// SumByType aggregates cached balances by treasury type.
func (r *TreasuryRepository) SumByType(ctx context.Context, activeOnly bool) ([]domain.TypeTotal, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	totals := make(map[domain.TreasuryType]*domain.TypeTotal)
	for _, treasury := range r.store.treasuries {
		if activeOnly && !treasury.IsActive {
			continue
		}
		total, ok := totals[treasury.Type]
		if !ok {
			total = &domain.TypeTotal{Type: treasury.Type, Balance: decimal.Zero}
			totals[treasury.Type] = total
		}
		total.Count++
		total.Balance = total.Balance.Add(treasury.Balance)
	}

	return flattenTotals(totals), nil
}

// BalancesByType aggregates cached balances and the signed log by type under
// one read lock.
func (r *TreasuryRepository) BalancesByType(ctx context.Context) ([]domain.TypeTotal, []domain.TypeTotal, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	cached := make(map[domain.TreasuryType]*domain.TypeTotal)
	logged := make(map[domain.TreasuryType]*domain.TypeTotal)
	for id, treasury := range r.store.treasuries {
		c, ok := cached[treasury.Type]
		if !ok {
			c = &domain.TypeTotal{Type: treasury.Type, Balance: decimal.Zero}
			cached[treasury.Type] = c
			logged[treasury.Type] = &domain.TypeTotal{Type: treasury.Type, Balance: decimal.Zero}
		}
		l := logged[treasury.Type]
		c.Count++
		l.Count++
		c.Balance = c.Balance.Add(treasury.Balance)
		for _, txID := range r.store.byTreasury[id] {
			l.Balance = l.Balance.Add(r.store.transactions[txID].SignedAmount())
		}
	}

	return flattenTotals(cached), flattenTotals(logged), nil
}

func flattenTotals(totals map[domain.TreasuryType]*domain.TypeTotal) []domain.TypeTotal {
	result := make([]domain.TypeTotal, 0, len(totals))
	for _, typ := range domain.TreasuryTypes {
		if total, ok := totals[typ]; ok {
			result = append(result, *total)
		}
	}
	return result
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset < 0 || offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
