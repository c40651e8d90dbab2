package usecase

import (
	"context"
	"time"

	"github.com/iho/treasury/internal/domain"
)

// StatementUseCase is the read side over the transaction log.
type StatementUseCase struct {
	transactionRepo TransactionRepository
	treasuryRepo    TreasuryRepository
}

// NewStatementUseCase creates a new StatementUseCase.
func NewStatementUseCase(transactionRepo TransactionRepository, treasuryRepo TreasuryRepository) *StatementUseCase {
	return &StatementUseCase{
		transactionRepo: transactionRepo,
		treasuryRepo:    treasuryRepo,
	}
}

// ListTransactionsInput represents input for listing transactions.
type ListTransactionsInput struct {
	TreasuryID *string
	Type       *domain.TransactionType
	Source     *domain.Source
	PairID     *string
	StartDate  *time.Time
	EndDate    *time.Time
	Page       int
	Limit      int
}

// TransactionPage is one page of a statement.
type TransactionPage struct {
	Items []*domain.Transaction
	PageInfo
}

// ListTransactions returns matching transactions newest first. BalanceAfter is
// the stored full-history value regardless of the filters.
func (uc *StatementUseCase) ListTransactions(ctx context.Context, input ListTransactionsInput) (*TransactionPage, error) {
	if input.Type != nil && !input.Type.IsValid() {
		return nil, domain.Validationf("unknown transaction type %q", *input.Type)
	}
	if input.Source != nil && !input.Source.IsValid() {
		return nil, domain.Validationf("unknown source %q", *input.Source)
	}
	if input.StartDate != nil && input.EndDate != nil && input.StartDate.After(*input.EndDate) {
		return nil, domain.Validationf("startDate must not be after endDate")
	}

	if input.TreasuryID != nil {
		if _, err := uc.treasuryRepo.GetByID(ctx, *input.TreasuryID); err != nil {
			return nil, err
		}
	}

	page, limit, offset := domain.ValidatePagination(input.Page, input.Limit)

	items, total, err := uc.transactionRepo.List(ctx, domain.TransactionFilter{
		TreasuryID: input.TreasuryID,
		Type:       input.Type,
		Source:     input.Source,
		PairID:     input.PairID,
		StartDate:  input.StartDate,
		EndDate:    input.EndDate,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		return nil, err
	}

	return &TransactionPage{Items: items, PageInfo: NewPageInfo(page, limit, total)}, nil
}

// GetTransaction retrieves a transaction by ID.
func (uc *StatementUseCase) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	return uc.transactionRepo.GetByID(ctx, id)
}
