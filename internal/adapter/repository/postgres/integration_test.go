package postgres_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/treasury/internal/adapter/repository/postgres"
	"github.com/iho/treasury/internal/domain"
	infrapg "github.com/iho/treasury/internal/infrastructure/postgres"
	"github.com/iho/treasury/internal/usecase"
)

const migrationsPath = "../../../../migrations"

// ledger wires every usecase against a real database.
type ledger struct {
	pool         *pgxpool.Pool
	treasuryRepo *postgres.TreasuryRepository
	posting      *usecase.PostingUseCase
	treasuries   *usecase.TreasuryUseCase
	transfers    *usecase.TransferUseCase
	recon        *usecase.ReconciliationUseCase
}

// newLedger connects to DATABASE_URL, migrates and truncates. It skips the
// test under -short or when no database is configured.
func newLedger(t *testing.T, policy domain.OverdraftPolicy) *ledger {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test")
	}
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set")
	}

	require.NoError(t, infrapg.NewMigrator(dbURL, migrationsPath, zerolog.Nop()).Up())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := infrapg.NewPool(ctx, dbURL, 20, 2)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `TRUNCATE outbox_events, treasury_transactions, treasuries, companies`)
	require.NoError(t, err)

	logger := zerolog.Nop()
	treasuryRepo := postgres.NewTreasuryRepository(pool)
	txRepo := postgres.NewTransactionRepository(pool)

	l := &ledger{pool: pool, treasuryRepo: treasuryRepo}
	l.posting = usecase.NewPostingUseCase(
		postgres.NewTxManager(pool, 2*time.Second), treasuryRepo, txRepo, postgres.NewOutboxRepository(pool),
		postgres.NewRetrier(nil, logger), postgres.NewULIDGenerator(), policy, nil, nil, logger,
	)
	l.treasuries = usecase.NewTreasuryUseCase(l.posting, postgres.NewCompanyRepository(pool), nil, logger)
	l.transfers = usecase.NewTransferUseCase(l.posting, nil, logger)
	l.recon = usecase.NewReconciliationUseCase(treasuryRepo, txRepo, nil, logger)
	return l
}

func (l *ledger) create(t *testing.T, name string, typ domain.TreasuryType, opening string) *domain.Treasury {
	t.Helper()

	input := usecase.CreateTreasuryInput{Name: name, Type: typ, OpeningBalance: decimal.RequireFromString(opening)}
	if typ == domain.TreasuryTypeBank {
		input.BankName = &name
	}
	treasury, err := l.treasuries.CreateTreasury(context.Background(), input)
	require.NoError(t, err)
	return treasury
}

func (l *ledger) balance(t *testing.T, id string) decimal.Decimal {
	t.Helper()

	treasury, err := l.treasuryRepo.GetByID(context.Background(), id)
	require.NoError(t, err)
	return treasury.Balance
}

func TestIntegration_TransferScenario(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, domain.OverdraftPolicy{})

	cash := l.create(t, "Main Cash", domain.TreasuryTypeGeneral, "1000")
	_, err := l.posting.Post(ctx, usecase.PostInput{TreasuryID: cash.ID, Type: domain.TransactionTypeDeposit, Source: domain.SourceManual, Amount: decimal.NewFromInt(500)})
	require.NoError(t, err)
	_, err = l.posting.Post(ctx, usecase.PostInput{TreasuryID: cash.ID, Type: domain.TransactionTypeWithdrawal, Source: domain.SourcePayment, Amount: decimal.NewFromInt(200)})
	require.NoError(t, err)

	bank := l.create(t, "Bank X", domain.TreasuryTypeBank, "0")
	transfer, err := l.transfers.Transfer(ctx, usecase.TransferInput{FromTreasuryID: cash.ID, ToTreasuryID: bank.ID, Amount: decimal.NewFromInt(300)})
	require.NoError(t, err)

	assert.True(t, l.balance(t, cash.ID).Equal(decimal.NewFromInt(1000)))
	assert.True(t, l.balance(t, bank.ID).Equal(decimal.NewFromInt(300)))

	got, err := l.transfers.GetTransfer(ctx, transfer.PairID)
	require.NoError(t, err)
	assert.Equal(t, transfer.Withdrawal.ID, got.Withdrawal.ID)

	report, err := l.recon.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Discrepancies)
	assert.True(t, report.Stats.Consistent)
}

func TestIntegration_ConcurrentDeposits(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, domain.OverdraftPolicy{})
	cash := l.create(t, "Main Cash", domain.TreasuryTypeGeneral, "100")

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.posting.Post(ctx, usecase.PostInput{TreasuryID: cash.ID, Type: domain.TransactionTypeDeposit, Source: domain.SourceManual, Amount: decimal.RequireFromString("2.5")})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.True(t, l.balance(t, cash.ID).Equal(decimal.RequireFromString("225")))

	result, err := l.recon.ReconcileTreasury(ctx, cash.ID)
	require.NoError(t, err)
	assert.True(t, result.IsReconciled)
	assert.Equal(t, n+1, result.TransactionCount)
}

func TestIntegration_OpposingTransfers(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, domain.OverdraftPolicy{})
	a := l.create(t, "A", domain.TreasuryTypeGeneral, "1000")
	b := l.create(t, "B", domain.TreasuryTypeGeneral, "1000")

	const rounds = 20
	var wg sync.WaitGroup
	errs := make(chan error, 2*rounds)
	for range rounds {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := l.transfers.Transfer(ctx, usecase.TransferInput{FromTreasuryID: a.ID, ToTreasuryID: b.ID, Amount: decimal.NewFromInt(3)})
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := l.transfers.Transfer(ctx, usecase.TransferInput{FromTreasuryID: b.ID, ToTreasuryID: a.ID, Amount: decimal.NewFromInt(2)})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.True(t, l.balance(t, a.ID).Equal(decimal.NewFromInt(1000-rounds)))
	assert.True(t, l.balance(t, b.ID).Equal(decimal.NewFromInt(1000+rounds)))
}

func TestIntegration_DeleteGuardAndImmutableLog(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, domain.OverdraftPolicy{})

	fresh := l.create(t, "Fresh", domain.TreasuryTypeGeneral, "0")
	require.NoError(t, l.treasuries.DeleteTreasury(ctx, fresh.ID))

	funded := l.create(t, "Funded", domain.TreasuryTypeGeneral, "10")
	_, err := l.posting.Post(ctx, usecase.PostInput{TreasuryID: funded.ID, Type: domain.TransactionTypeWithdrawal, Source: domain.SourceSalary, Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)
	assert.ErrorIs(t, l.treasuries.DeleteTreasury(ctx, funded.ID), domain.ErrTreasuryInUse)

	_, err = l.pool.Exec(ctx, `UPDATE treasury_transactions SET amount = 1 WHERE treasury_id = $1`, funded.ID)
	assert.Error(t, err, "the transaction log must reject updates")
	_, err = l.pool.Exec(ctx, `DELETE FROM treasury_transactions WHERE treasury_id = $1`, funded.ID)
	assert.Error(t, err, "the transaction log must reject deletes")
}

func TestIntegration_CompanyTreasury(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, domain.OverdraftPolicy{})

	_, err := l.pool.Exec(ctx, `INSERT INTO companies (id, name, is_active) VALUES ('co-1', 'Acme', TRUE)`)
	require.NoError(t, err)

	companyID := "co-1"
	treasury, err := l.treasuries.CreateTreasury(ctx, usecase.CreateTreasuryInput{Name: "Acme Till", Type: domain.TreasuryTypeCompany, CompanyID: &companyID})
	require.NoError(t, err)
	require.NotNil(t, treasury.CompanyID)

	missing := "co-404"
	_, err = l.treasuries.CreateTreasury(ctx, usecase.CreateTreasuryInput{Name: "Ghost", Type: domain.TreasuryTypeCompany, CompanyID: &missing})
	assert.ErrorIs(t, err, domain.ErrCompanyNotFound)
}
