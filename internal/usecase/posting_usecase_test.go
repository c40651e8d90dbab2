package usecase_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/iho/treasury/internal/adapter/repository/memory"
	"github.com/iho/treasury/internal/adapter/repository/postgres"
	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/usecase"
	"github.com/iho/treasury/internal/usecase/mocks"
)

func TestPostingUseCase_Post(t *testing.T) {
	h := newHarness(t, domain.OverdraftPolicy{})
	cash := h.createTreasury(t, "Main Cash", domain.TreasuryTypeGeneral, "100")

	posted := h.post(t, cash.ID, domain.TransactionTypeDeposit, "50.25")

	assert.Equal(t, cash.ID, posted.TreasuryID)
	assert.Equal(t, domain.TransactionTypeDeposit, posted.Type)
	assert.Equal(t, domain.SourceManual, posted.Source)
	assert.True(t, posted.BalanceAfter.Equal(dec("150.25")))
	assert.Equal(t, int64(2), posted.Sequence, "opening balance is sequence 1")
	assert.Equal(t, domain.SystemActor, posted.CreatedBy)
	assert.True(t, h.balance(t, cash.ID).Equal(dec("150.25")))

	withdrawn := h.post(t, cash.ID, domain.TransactionTypeWithdrawal, "150.25")
	assert.True(t, withdrawn.BalanceAfter.IsZero())
	assert.False(t, withdrawn.CreatedAt.Before(posted.CreatedAt))

	h.requireReconciled(t, cash.ID)
}

func TestPostingUseCase_PostValidation(t *testing.T) {
	h := newHarness(t, domain.OverdraftPolicy{})
	cash := h.createTreasury(t, "Main Cash", domain.TreasuryTypeGeneral, "0")
	long := strings.Repeat("x", domain.MaxDescriptionLength+1)

	tests := []struct {
		name  string
		input usecase.PostInput
	}{
		{"zero amount", usecase.PostInput{TreasuryID: cash.ID, Type: domain.TransactionTypeDeposit, Source: domain.SourceManual, Amount: decimal.Zero}},
		{"negative amount", usecase.PostInput{TreasuryID: cash.ID, Type: domain.TransactionTypeDeposit, Source: domain.SourceManual, Amount: dec("-5")}},
		{"above maximum", usecase.PostInput{TreasuryID: cash.ID, Type: domain.TransactionTypeDeposit, Source: domain.SourceManual, Amount: dec("1000000000001")}},
		{"transfer type", usecase.PostInput{TreasuryID: cash.ID, Type: domain.TransactionTypeTransfer, Source: domain.SourceManual, Amount: dec("1")}},
		{"unknown source", usecase.PostInput{TreasuryID: cash.ID, Type: domain.TransactionTypeDeposit, Source: "GIFT", Amount: dec("1")}},
		{"reserved source", usecase.PostInput{TreasuryID: cash.ID, Type: domain.TransactionTypeDeposit, Source: domain.SourceTransferIn, Amount: dec("1")}},
		{"opening balance source", usecase.PostInput{TreasuryID: cash.ID, Type: domain.TransactionTypeDeposit, Source: domain.SourceOpeningBalance, Amount: dec("1")}},
		{"long description", usecase.PostInput{TreasuryID: cash.ID, Type: domain.TransactionTypeDeposit, Source: domain.SourceManual, Amount: dec("1"), Description: &long}},
		{"missing treasury", usecase.PostInput{Type: domain.TransactionTypeDeposit, Source: domain.SourceManual, Amount: dec("1")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.posting.Post(context.Background(), tt.input)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}

	rows, _, err := h.txRepo.List(context.Background(), domain.TransactionFilter{TreasuryID: &cash.ID})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestPostingUseCase_PostErrors(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, domain.OverdraftPolicy{})
	cash := h.createTreasury(t, "Main Cash", domain.TreasuryTypeGeneral, "100")

	_, err := h.posting.Post(ctx, usecase.PostInput{TreasuryID: "missing", Type: domain.TransactionTypeDeposit, Source: domain.SourceManual, Amount: dec("1")})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = h.posting.Post(ctx, usecase.PostInput{TreasuryID: cash.ID, Type: domain.TransactionTypeWithdrawal, Source: domain.SourcePayment, Amount: dec("100.01")})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.True(t, h.balance(t, cash.ID).Equal(dec("100")), "failed posting must not move the balance")

	_, err = h.treasuries.DeactivateTreasury(ctx, cash.ID)
	require.NoError(t, err)

	_, err = h.posting.Post(ctx, usecase.PostInput{TreasuryID: cash.ID, Type: domain.TransactionTypeDeposit, Source: domain.SourceManual, Amount: dec("1")})
	assert.ErrorIs(t, err, domain.ErrInactiveTreasury)

	h.requireReconciled(t, cash.ID)
}

func TestPostingUseCase_OverdraftPolicy(t *testing.T) {
	h := newHarness(t, domain.NewOverdraftPolicy(domain.TreasuryTypeBank))
	bank := h.createTreasury(t, "Bank X", domain.TreasuryTypeBank, "0")
	cash := h.createTreasury(t, "Main Cash", domain.TreasuryTypeGeneral, "0")

	overdrawn := h.post(t, bank.ID, domain.TransactionTypeWithdrawal, "250")
	assert.True(t, overdrawn.BalanceAfter.Equal(dec("-250")))

	_, err := h.posting.Post(context.Background(), usecase.PostInput{TreasuryID: cash.ID, Type: domain.TransactionTypeWithdrawal, Source: domain.SourceManual, Amount: dec("1")})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	h.requireReconciled(t, bank.ID)
}

func TestPostingUseCase_ActorFromContext(t *testing.T) {
	h := newHarness(t, domain.OverdraftPolicy{})
	cash := h.createTreasury(t, "Main Cash", domain.TreasuryTypeGeneral, "0")

	ctx := domain.ContextWithUser(context.Background(), &domain.User{ID: "cashier-1", Role: domain.RoleOperator})
	posted, err := h.posting.Post(ctx, usecase.PostInput{TreasuryID: cash.ID, Type: domain.TransactionTypeDeposit, Source: domain.SourceSale, Amount: dec("10")})
	require.NoError(t, err)
	assert.Equal(t, "cashier-1", posted.CreatedBy)

	posted, err = h.posting.Post(ctx, usecase.PostInput{TreasuryID: cash.ID, Type: domain.TransactionTypeDeposit, Source: domain.SourceSalary, Amount: dec("10"), Actor: "payroll"})
	require.NoError(t, err)
	assert.Equal(t, "payroll", posted.CreatedBy)
}

func TestPostingUseCase_ConcurrentDeposits(t *testing.T) {
	h := newHarness(t, domain.OverdraftPolicy{})
	cash := h.createTreasury(t, "Main Cash", domain.TreasuryTypeGeneral, "1000")

	const workers = 50
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.posting.Post(context.Background(), usecase.PostInput{
				TreasuryID: cash.ID,
				Type:       domain.TransactionTypeDeposit,
				Source:     domain.SourceReceipt,
				Amount:     dec("7.5"),
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	assert.True(t, h.balance(t, cash.ID).Equal(dec("1375")), "expected 1000 + 50*7.5, got %s", h.balance(t, cash.ID))
	h.requireReconciled(t, cash.ID)
}

func TestPostingUseCase_ConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	h := newHarness(t, domain.OverdraftPolicy{})
	cash := h.createTreasury(t, "Main Cash", domain.TreasuryTypeGeneral, "100")

	const workers = 30
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, rejected := 0, 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.posting.Post(context.Background(), usecase.PostInput{
				TreasuryID: cash.ID,
				Type:       domain.TransactionTypeWithdrawal,
				Source:     domain.SourcePayment,
				Amount:     dec("10"),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrInsufficientFunds):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assert.Equal(t, workers-10, rejected)
	assert.True(t, h.balance(t, cash.ID).IsZero())
	h.requireReconciled(t, cash.ID)
}

func TestPostingUseCase_RollsBackOnWriteFailure(t *testing.T) {
	ctrl := gomock.NewController(t)

	txManager := mocks.NewMockTransactionManager(ctrl)
	tx := mocks.NewMockTransaction(ctrl)
	treasuryRepo := mocks.NewMockTreasuryRepository(ctrl)
	transactionRepo := mocks.NewMockTransactionRepository(ctrl)
	outboxRepo := mocks.NewMockOutboxRepository(ctrl)
	idGen := mocks.NewMockIDGenerator(ctrl)

	writeErr := errors.New("disk full")

	txManager.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	treasuryRepo.EXPECT().GetByIDForUpdate(gomock.Any(), tx, "tr-1").Return(&domain.Treasury{
		ID: "tr-1", Type: domain.TreasuryTypeGeneral, Balance: dec("10"), IsActive: true,
	}, nil)
	idGen.EXPECT().Generate().Return("tx-1")
	transactionRepo.EXPECT().Create(gomock.Any(), tx, gomock.Any()).Return(writeErr)
	// No balance update, no event and no commit after a failed insert.
	treasuryRepo.EXPECT().UpdateBalance(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	outboxRepo.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	tx.EXPECT().Commit(gomock.Any()).Times(0)
	tx.EXPECT().Rollback(gomock.Any()).Return(nil)

	uc := usecase.NewPostingUseCase(txManager, treasuryRepo, transactionRepo, outboxRepo, nil, idGen,
		domain.OverdraftPolicy{}, nil, nil, zerolog.Nop())

	_, err := uc.Post(context.Background(), usecase.PostInput{
		TreasuryID: "tr-1",
		Type:       domain.TransactionTypeDeposit,
		Source:     domain.SourceManual,
		Amount:     dec("5"),
	})
	assert.ErrorIs(t, err, writeErr)
}

func TestPostingUseCase_UsesRetrierAndInvalidatesStats(t *testing.T) {
	ctrl := gomock.NewController(t)

	txManager := mocks.NewMockTransactionManager(ctrl)
	tx := mocks.NewMockTransaction(ctrl)
	treasuryRepo := mocks.NewMockTreasuryRepository(ctrl)
	transactionRepo := mocks.NewMockTransactionRepository(ctrl)
	outboxRepo := mocks.NewMockOutboxRepository(ctrl)
	idGen := mocks.NewMockIDGenerator(ctrl)
	retrier := mocks.NewMockRetrier(ctrl)
	cache := mocks.NewMockCache(ctrl)

	conflict := errors.New("deadlock detected")
	attempts := 0

	retrier.EXPECT().Retry(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, op func() error) error {
		for {
			attempts++
			if err := op(); !errors.Is(err, conflict) {
				return err
			}
		}
	})

	txManager.EXPECT().Begin(gomock.Any()).Return(tx, nil).Times(2)
	tx.EXPECT().Rollback(gomock.Any()).Return(nil).Times(2)
	gomock.InOrder(
		treasuryRepo.EXPECT().GetByIDForUpdate(gomock.Any(), tx, "tr-1").Return(nil, conflict),
		treasuryRepo.EXPECT().GetByIDForUpdate(gomock.Any(), tx, "tr-1").Return(&domain.Treasury{
			ID: "tr-1", Type: domain.TreasuryTypeGeneral, Balance: dec("10"), Version: 3, IsActive: true,
		}, nil),
	)
	idGen.EXPECT().Generate().Return("id").Times(2)
	transactionRepo.EXPECT().Create(gomock.Any(), tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ usecase.Transaction, posted *domain.Transaction) error {
			assert.Equal(t, int64(4), posted.Sequence)
			assert.True(t, posted.BalanceAfter.Equal(dec("15")))
			return nil
		})
	treasuryRepo.EXPECT().UpdateBalance(gomock.Any(), tx, "tr-1", gomock.Any(), int64(4), gomock.Any()).Return(nil)
	outboxRepo.EXPECT().Create(gomock.Any(), tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ usecase.Transaction, event *domain.OutboxEvent) error {
			assert.Equal(t, domain.EventTypeTransactionPosted, event.EventType)
			return nil
		})
	tx.EXPECT().Commit(gomock.Any()).Return(nil)
	cache.EXPECT().Delete(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	uc := usecase.NewPostingUseCase(txManager, treasuryRepo, transactionRepo, outboxRepo, retrier, idGen,
		domain.OverdraftPolicy{}, cache, nil, zerolog.Nop())

	posted, err := uc.Post(context.Background(), usecase.PostInput{
		TreasuryID: "tr-1",
		Type:       domain.TransactionTypeDeposit,
		Source:     domain.SourceReceipt,
		Amount:     dec("5"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.True(t, posted.BalanceAfter.Equal(dec("15")))
}

func TestPostingUseCase_LogsFailuresAtWarn(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	store := memory.NewStore()
	posting := usecase.NewPostingUseCase(
		store, memory.NewTreasuryRepository(store), memory.NewTransactionRepository(store), memory.NewOutboxRepository(store), nil,
		postgres.NewULIDGenerator(), domain.OverdraftPolicy{}, nil, nil, logger,
	)
	treasuries := usecase.NewTreasuryUseCase(posting, memory.NewCompanyRepository(store), nil, logger)

	_, err := posting.Post(ctx, usecase.PostInput{TreasuryID: "missing", Type: domain.TransactionTypeDeposit, Source: domain.SourceManual, Amount: dec("1")})
	require.ErrorIs(t, err, domain.ErrTreasuryNotFound)

	_, err = treasuries.CreateTreasury(ctx, usecase.CreateTreasuryInput{Name: " ", Type: domain.TreasuryTypeGeneral})
	require.ErrorIs(t, err, domain.ErrValidation)

	logs := buf.String()
	assert.Contains(t, logs, `"level":"warn"`)
	assert.Contains(t, logs, `"component":"posting"`)
	assert.Contains(t, logs, "posting failed")
	assert.Contains(t, logs, `"component":"treasury"`)
	assert.Contains(t, logs, "treasury creation failed")
}
