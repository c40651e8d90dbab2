package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/usecase"
)

// TransactionRepository implements usecase.TransactionRepository.
type TransactionRepository struct {
	store *Store
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(store *Store) *TransactionRepository {
	return &TransactionRepository{store: store}
}

// Create stages a transaction. (treasury_id, sequence) is unique.
func (r *TransactionRepository) Create(ctx context.Context, tx usecase.Transaction, transaction *domain.Transaction) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	if _, ok := t.treasury(transaction.TreasuryID); !ok {
		return domain.ErrTreasuryNotFound
	}

	for _, staged := range t.transactions {
		if staged.TreasuryID == transaction.TreasuryID && staged.Sequence == transaction.Sequence {
			return fmt.Errorf("%w: duplicate sequence %d for treasury %s", domain.ErrConflict, transaction.Sequence, transaction.TreasuryID)
		}
	}

	r.store.mu.RLock()
	for _, id := range r.store.byTreasury[transaction.TreasuryID] {
		if r.store.transactions[id].Sequence == transaction.Sequence {
			r.store.mu.RUnlock()
			return fmt.Errorf("%w: duplicate sequence %d for treasury %s", domain.ErrConflict, transaction.Sequence, transaction.TreasuryID)
		}
	}
	r.store.mu.RUnlock()

	t.transactions = append(t.transactions, cloneTransaction(transaction))
	return nil
}

// GetByID retrieves a committed transaction.
func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	transaction, ok := r.store.transactions[id]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	return cloneTransaction(transaction), nil
}

// GetByPairID returns both legs of a transfer.
func (r *TransactionRepository) GetByPairID(ctx context.Context, pairID string) ([]*domain.Transaction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	legs := make([]*domain.Transaction, 0, 2)
	for _, transaction := range r.store.transactions {
		if transaction.PairID != nil && *transaction.PairID == pairID {
			legs = append(legs, cloneTransaction(transaction))
		}
	}
	if len(legs) == 0 {
		return nil, domain.ErrTransferNotFound
	}
	sort.Slice(legs, func(i, j int) bool { return legs[i].ID < legs[j].ID })
	return legs, nil
}

// CountByTreasury counts the treasury's transactions as tx sees them.
func (r *TransactionRepository) CountByTreasury(ctx context.Context, tx usecase.Transaction, treasuryID string) (int64, error) {
	t, err := asTx(tx)
	if err != nil {
		return 0, err
	}

	var count int64
	for _, staged := range t.transactions {
		if staged.TreasuryID == treasuryID {
			count++
		}
	}

	r.store.mu.RLock()
	count += int64(len(r.store.byTreasury[treasuryID]))
	r.store.mu.RUnlock()

	return count, nil
}

// List returns committed transactions newest first.
func (r *TransactionRepository) List(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, int64, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	matched := make([]*domain.Transaction, 0)
	for _, transaction := range r.store.transactions {
		if matches(transaction, filter) {
			matched = append(matched, transaction)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		if a.Sequence != b.Sequence {
			return a.Sequence > b.Sequence
		}
		return a.ID > b.ID
	})

	total := int64(len(matched))
	page := paginate(matched, filter.Limit, filter.Offset)

	result := make([]*domain.Transaction, 0, len(page))
	for _, transaction := range page {
		result = append(result, cloneTransaction(transaction))
	}
	return result, total, nil
}

func matches(t *domain.Transaction, filter domain.TransactionFilter) bool {
	if filter.TreasuryID != nil && t.TreasuryID != *filter.TreasuryID {
		return false
	}
	if filter.Type != nil {
		if *filter.Type == domain.TransactionTypeTransfer {
			if !t.IsTransferLeg() {
				return false
			}
		} else if t.Type != *filter.Type {
			return false
		}
	}
	if filter.Source != nil && t.Source != *filter.Source {
		return false
	}
	if filter.PairID != nil && (t.PairID == nil || *t.PairID != *filter.PairID) {
		return false
	}
	if filter.StartDate != nil && t.CreatedAt.Before(*filter.StartDate) {
		return false
	}
	if filter.EndDate != nil && !t.CreatedAt.Before(*filter.EndDate) {
		return false
	}
	return true
}

// ListChronological returns a treasury's committed history oldest first.
func (r *TransactionRepository) ListChronological(ctx context.Context, treasuryID string) ([]*domain.Transaction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	ids := r.store.byTreasury[treasuryID]
	history := make([]*domain.Transaction, 0, len(ids))
	for _, id := range ids {
		history = append(history, cloneTransaction(r.store.transactions[id]))
	}

	sort.SliceStable(history, func(i, j int) bool {
		a, b := history[i], history[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.Sequence < b.Sequence
	})
	return history, nil
}
