package usecase_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/iho/treasury/internal/adapter/repository/memory"
	"github.com/iho/treasury/internal/adapter/repository/postgres"
	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/usecase"
)

// harness wires every usecase against one in-memory store.
type harness struct {
	store        *memory.Store
	treasuryRepo *memory.TreasuryRepository
	txRepo       *memory.TransactionRepository
	outboxRepo   *memory.OutboxRepository

	posting    *usecase.PostingUseCase
	transfers  *usecase.TransferUseCase
	treasuries *usecase.TreasuryUseCase
	stats      *usecase.StatsUseCase
	statements *usecase.StatementUseCase
	recon      *usecase.ReconciliationUseCase
}

func newHarness(t *testing.T, policy domain.OverdraftPolicy) *harness {
	t.Helper()

	store := memory.NewStore()
	h := &harness{
		store:        store,
		treasuryRepo: memory.NewTreasuryRepository(store),
		txRepo:       memory.NewTransactionRepository(store),
		outboxRepo:   memory.NewOutboxRepository(store),
	}

	logger := zerolog.Nop()
	h.posting = usecase.NewPostingUseCase(
		store, h.treasuryRepo, h.txRepo, h.outboxRepo, nil,
		postgres.NewULIDGenerator(), policy, nil, nil, logger,
	)
	h.transfers = usecase.NewTransferUseCase(h.posting, nil, logger)
	h.treasuries = usecase.NewTreasuryUseCase(h.posting, memory.NewCompanyRepository(store), nil, logger)
	h.stats = usecase.NewStatsUseCase(h.treasuryRepo, nil, 0, nil, logger)
	h.statements = usecase.NewStatementUseCase(h.txRepo, h.treasuryRepo)
	h.recon = usecase.NewReconciliationUseCase(h.treasuryRepo, h.txRepo, nil, logger)
	return h
}

func (h *harness) createTreasury(t *testing.T, name string, typ domain.TreasuryType, opening string) *domain.Treasury {
	t.Helper()

	input := usecase.CreateTreasuryInput{
		Name:           name,
		Type:           typ,
		OpeningBalance: decimal.RequireFromString(opening),
	}
	if typ == domain.TreasuryTypeBank {
		bank := name + " Bank"
		input.BankName = &bank
	}

	treasury, err := h.treasuries.CreateTreasury(context.Background(), input)
	require.NoError(t, err)
	return treasury
}

func (h *harness) post(t *testing.T, treasuryID string, typ domain.TransactionType, amount string) *domain.Transaction {
	t.Helper()

	posted, err := h.posting.Post(context.Background(), usecase.PostInput{
		TreasuryID: treasuryID,
		Type:       typ,
		Source:     domain.SourceManual,
		Amount:     decimal.RequireFromString(amount),
	})
	require.NoError(t, err)
	return posted
}

func (h *harness) balance(t *testing.T, treasuryID string) decimal.Decimal {
	t.Helper()

	treasury, err := h.treasuryRepo.GetByID(context.Background(), treasuryID)
	require.NoError(t, err)
	return treasury.Balance
}

// requireReconciled checks the cached balance against a full replay.
func (h *harness) requireReconciled(t *testing.T, treasuryID string) {
	t.Helper()

	result, err := h.recon.ReconcileTreasury(context.Background(), treasuryID)
	require.NoError(t, err)
	require.True(t, result.IsReconciled, "treasury %s not reconciled: %+v", treasuryID, result)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func balancesAfter(transactions []*domain.Transaction) []string {
	out := make([]string, 0, len(transactions))
	for _, t := range transactions {
		out = append(out, t.BalanceAfter.String())
	}
	return out
}
