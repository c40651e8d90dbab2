package usecase_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/usecase"
)

func TestStatementUseCase_FiltersKeepHistoricalBalance(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, domain.OverdraftPolicy{})
	cash := h.createTreasury(t, "Main Cash", domain.TreasuryTypeGeneral, "100")

	h.post(t, cash.ID, domain.TransactionTypeDeposit, "50")
	h.post(t, cash.ID, domain.TransactionTypeWithdrawal, "30")
	h.post(t, cash.ID, domain.TransactionTypeDeposit, "5")

	withdrawals := domain.TransactionTypeWithdrawal
	page, err := h.statements.ListTransactions(ctx, usecase.ListTransactionsInput{TreasuryID: &cash.ID, Type: &withdrawals})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.True(t, page.Items[0].BalanceAfter.Equal(dec("120")), "balanceAfter is the full-history value")

	manual := domain.SourceManual
	page, err = h.statements.ListTransactions(ctx, usecase.ListTransactionsInput{TreasuryID: &cash.ID, Source: &manual})
	require.NoError(t, err)
	assert.Equal(t, []string{"125", "120", "150"}, balancesAfter(page.Items))
	assert.Equal(t, int64(3), page.Total)
}

func TestStatementUseCase_Pagination(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, domain.OverdraftPolicy{})
	cash := h.createTreasury(t, "Main Cash", domain.TreasuryTypeGeneral, "0")

	for i := 0; i < 5; i++ {
		h.post(t, cash.ID, domain.TransactionTypeDeposit, "1")
	}

	page, err := h.statements.ListTransactions(ctx, usecase.ListTransactionsInput{TreasuryID: &cash.ID, Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "2"}, balancesAfter(page.Items))
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, int64(5), page.Total)

	page, err = h.statements.ListTransactions(ctx, usecase.ListTransactionsInput{TreasuryID: &cash.ID, Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, domain.MaxPageSize, page.Limit)
}

func TestStatementUseCase_HugePageIsEmpty(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, domain.OverdraftPolicy{})
	cash := h.createTreasury(t, "Main Cash", domain.TreasuryTypeGeneral, "10")
	h.post(t, cash.ID, domain.TransactionTypeDeposit, "1")

	for _, pageNo := range []int{math.MaxInt / 10, math.MaxInt} {
		page, err := h.statements.ListTransactions(ctx, usecase.ListTransactionsInput{TreasuryID: &cash.ID, Page: pageNo, Limit: 100})
		require.NoError(t, err)
		assert.Empty(t, page.Items)
		assert.Equal(t, int64(2), page.Total)
		assert.Positive(t, page.Page)
	}
}

func TestStatementUseCase_DateRange(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, domain.OverdraftPolicy{})
	cash := h.createTreasury(t, "Main Cash", domain.TreasuryTypeGeneral, "0")
	posted := h.post(t, cash.ID, domain.TransactionTypeDeposit, "1")

	start := posted.CreatedAt
	end := posted.CreatedAt.Add(time.Hour)
	page, err := h.statements.ListTransactions(ctx, usecase.ListTransactionsInput{StartDate: &start, EndDate: &end})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)

	page, err = h.statements.ListTransactions(ctx, usecase.ListTransactionsInput{EndDate: &start})
	require.NoError(t, err)
	assert.Empty(t, page.Items, "end date is exclusive")

	_, err = h.statements.ListTransactions(ctx, usecase.ListTransactionsInput{StartDate: &end, EndDate: &start})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestStatementUseCase_Errors(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, domain.OverdraftPolicy{})

	missing := "missing"
	_, err := h.statements.ListTransactions(ctx, usecase.ListTransactionsInput{TreasuryID: &missing})
	assert.ErrorIs(t, err, domain.ErrTreasuryNotFound)

	bad := domain.Source("GIFT")
	_, err = h.statements.ListTransactions(ctx, usecase.ListTransactionsInput{Source: &bad})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.statements.GetTransaction(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
}
