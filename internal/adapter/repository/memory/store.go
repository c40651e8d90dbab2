// Package memory is an in-process storage driver. It keeps the locking
// discipline of the Postgres adapter: treasury rows are locked per
// transaction, multi-row locks are taken in ascending id order, and staged
// writes become visible atomically on commit.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/usecase"
)

// ErrTxClosed is returned when a finished transaction is used again.
var ErrTxClosed = errors.New("memory: transaction already closed")

// Store holds committed state.
type Store struct {
	mu           sync.RWMutex
	treasuries   map[string]*domain.Treasury
	transactions map[string]*domain.Transaction
	byTreasury   map[string][]string
	companies    map[string]*domain.Company
	outbox       map[string]*domain.OutboxEvent
	outboxOrder  []string

	lockMu      sync.Mutex
	locks       map[string]chan struct{}
	lockTimeout time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithLockTimeout bounds how long a transaction waits for a row lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		treasuries:   make(map[string]*domain.Treasury),
		transactions: make(map[string]*domain.Transaction),
		byTreasury:   make(map[string][]string),
		companies:    make(map[string]*domain.Company),
		outbox:       make(map[string]*domain.OutboxEvent),
		locks:        make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Begin starts a transaction.
func (s *Store) Begin(ctx context.Context) (usecase.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Tx{
		store:      s,
		held:       make(map[string]chan struct{}),
		treasuries: make(map[string]*domain.Treasury),
		deleted:    make(map[string]bool),
	}, nil
}

// PutCompany registers a company. Companies are owned elsewhere; the store
// only resolves them.
func (s *Store) PutCompany(company *domain.Company) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *company
	s.companies[c.ID] = &c
}

func (s *Store) lockChan(id string) chan struct{} {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	ch, ok := s.locks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[id] = ch
	}
	return ch
}

// acquire returns the channel it locked so release never touches a
// channel created after the row was forgotten.
func (s *Store) acquire(ctx context.Context, id string) (chan struct{}, error) {
	waitCtx := ctx
	if s.lockTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, s.lockTimeout)
		defer cancel()
	}

	ch := s.lockChan(id)
	select {
	case ch <- struct{}{}:
		return ch, nil
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: lock wait timeout on treasury %s", domain.ErrConflict, id)
	}
}

// forget drops the lock of a treasury that does not exist. Ids are never
// reused.
func (s *Store) forget(id string) {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	delete(s.locks, id)
}

// Tx is a unit of work against a Store.
type Tx struct {
	store        *Store
	held         map[string]chan struct{}
	treasuries   map[string]*domain.Treasury
	deleted      map[string]bool
	transactions []*domain.Transaction
	outbox       []*domain.OutboxEvent
	done         bool
}

func asTx(tx usecase.Transaction) (*Tx, error) {
	t, ok := tx.(*Tx)
	if !ok || t == nil {
		return nil, fmt.Errorf("memory: unexpected transaction type %T", tx)
	}
	if t.done {
		return nil, ErrTxClosed
	}
	return t, nil
}

// lock takes row locks in ascending id order, skipping rows already held.
func (t *Tx) lock(ctx context.Context, ids ...string) error {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	for _, id := range sorted {
		if _, ok := t.held[id]; ok {
			continue
		}
		ch, err := t.store.acquire(ctx, id)
		if err != nil {
			return err
		}
		t.held[id] = ch
	}
	return nil
}

// treasury returns the row as this transaction sees it.
func (t *Tx) treasury(id string) (*domain.Treasury, bool) {
	if t.deleted[id] {
		return nil, false
	}
	if staged, ok := t.treasuries[id]; ok {
		return staged, true
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	committed, ok := t.store.treasuries[id]
	return committed, ok
}

// Commit applies every staged write atomically and releases the locks.
func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxClosed
	}

	s := t.store
	s.mu.Lock()
	for id := range t.deleted {
		delete(s.treasuries, id)
	}
	for id, treasury := range t.treasuries {
		s.treasuries[id] = treasury
	}
	for _, tx := range t.transactions {
		s.transactions[tx.ID] = tx
		s.byTreasury[tx.TreasuryID] = append(s.byTreasury[tx.TreasuryID], tx.ID)
	}
	for _, event := range t.outbox {
		s.outbox[event.ID] = event
		s.outboxOrder = append(s.outboxOrder, event.ID)
	}
	s.mu.Unlock()

	t.finish()
	return nil
}

// Rollback discards staged writes and releases the locks.
func (t *Tx) Rollback(ctx context.Context) error {
	if t.done {
		return ErrTxClosed
	}
	t.finish()
	return nil
}

func (t *Tx) finish() {
	t.done = true
	for _, ch := range t.held {
		<-ch
	}

	// Locks of rows that no longer exist (deleted, or never there) are dropped.
	s := t.store
	s.mu.RLock()
	var gone []string
	for id := range t.held {
		if _, ok := s.treasuries[id]; !ok {
			gone = append(gone, id)
		}
	}
	s.mu.RUnlock()
	for _, id := range gone {
		s.forget(id)
	}
	t.held = nil
}

func cloneTreasury(t *domain.Treasury) *domain.Treasury {
	c := *t
	return &c
}

func cloneTransaction(t *domain.Transaction) *domain.Transaction {
	c := *t
	return &c
}
