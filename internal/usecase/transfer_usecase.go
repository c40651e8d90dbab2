package usecase

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/infrastructure/metrics"
)

// TransferUseCase moves money between two treasuries as one unit of work.
type TransferUseCase struct {
	posting         *PostingUseCase
	transactionRepo TransactionRepository
	metrics         *metrics.Metrics
	logger          zerolog.Logger
}

// NewTransferUseCase creates a new TransferUseCase on top of the posting routine.
func NewTransferUseCase(posting *PostingUseCase, metrics *metrics.Metrics, logger zerolog.Logger) *TransferUseCase {
	return &TransferUseCase{
		posting:         posting,
		transactionRepo: posting.transactionRepo,
		metrics:         metrics,
		logger:          logger.With().Str("component", "transfer").Logger(),
	}
}

// TransferInput represents input for a transfer between two treasuries.
type TransferInput struct {
	Description    *string
	FromTreasuryID string
	ToTreasuryID   string
	Actor          string
	Amount         decimal.Decimal
}

// Transfer withdraws from one treasury and deposits into another. Either both
// legs are written or neither is.
func (uc *TransferUseCase) Transfer(ctx context.Context, input TransferInput) (*domain.Transfer, error) {
	start := time.Now()

	// 0. Validate inputs before starting transaction
	if err := validateTransferInput(input); err != nil {
		uc.recordError(err)
		return nil, err
	}

	actor := domain.ResolveActor(ctx, input.Actor)

	var transfer *domain.Transfer
	err := uc.posting.retrier.Retry(ctx, func() error {
		var err error
		transfer, err = uc.transferOnce(ctx, input, actor)
		return err
	})
	if err != nil {
		uc.recordError(err)
		return nil, err
	}

	invalidateStats(ctx, uc.posting.statsCache, uc.logger)

	if uc.metrics != nil {
		uc.metrics.TransfersCompleted.Inc()
		uc.metrics.TransferDuration.Observe(time.Since(start).Seconds())
	}

	uc.logger.Debug().
		Str("pair_id", transfer.PairID).
		Str("from", transfer.FromTreasuryID).
		Str("to", transfer.ToTreasuryID).
		Str("amount", transfer.Amount.String()).
		Msg("transfer completed")

	return transfer, nil
}

func (uc *TransferUseCase) transferOnce(ctx context.Context, input TransferInput, actor string) (*domain.Transfer, error) {
	// 1. Sort treasury IDs (DEADLOCK PREVENTION)
	ids := []string{input.FromTreasuryID, input.ToTreasuryID}
	sort.Strings(ids)

	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	// 2. Begin transaction
	tx, err := uc.posting.txManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	// 3. Lock treasuries in sorted order
	treasuries, err := uc.posting.treasuryRepo.GetByIDsForUpdate(txCtx, tx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*domain.Treasury, len(treasuries))
	for _, t := range treasuries {
		byID[t.ID] = t
	}

	from, to := byID[input.FromTreasuryID], byID[input.ToTreasuryID]
	if from == nil || to == nil {
		return nil, domain.ErrTreasuryNotFound
	}
	if !from.IsActive || !to.IsActive {
		return nil, domain.ErrInactiveTreasury
	}

	// 4. Post both legs
	pairID := uc.posting.idGen.Generate()

	withdrawal, err := uc.posting.apply(txCtx, tx, from, posting{
		direction:   domain.TransactionTypeWithdrawal,
		source:      domain.SourceTransferOut,
		amount:      input.Amount,
		description: input.Description,
		pairID:      &pairID,
		actor:       actor,
	})
	if err != nil {
		return nil, err
	}

	deposit, err := uc.posting.apply(txCtx, tx, to, posting{
		direction:   domain.TransactionTypeDeposit,
		source:      domain.SourceTransferIn,
		amount:      input.Amount,
		description: input.Description,
		pairID:      &pairID,
		actor:       actor,
	})
	if err != nil {
		return nil, err
	}

	transfer, err := domain.TransferFromLegs(pairID, []*domain.Transaction{withdrawal, deposit})
	if err != nil {
		return nil, err
	}

	if err := uc.posting.emit(txCtx, tx, pairID, domain.AggregateTypeTransfer, domain.EventTypeTransferCompleted,
		domain.TransferCompletedPayload(transfer), deposit.CreatedAt); err != nil {
		return nil, err
	}

	// 5. Commit transaction
	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}

	return transfer, nil
}

// GetTransfer returns both legs of the transfer identified by pairID.
func (uc *TransferUseCase) GetTransfer(ctx context.Context, pairID string) (*domain.Transfer, error) {
	legs, err := uc.transactionRepo.GetByPairID(ctx, pairID)
	if err != nil {
		return nil, err
	}
	return domain.TransferFromLegs(pairID, legs)
}

func (uc *TransferUseCase) recordError(err error) {
	if uc.metrics != nil {
		uc.metrics.TransferErrors.WithLabelValues(string(domain.KindOf(err))).Inc()
	}
	uc.logger.Warn().Err(err).Msg("transfer failed")
}

func validateTransferInput(input TransferInput) error {
	if input.FromTreasuryID == "" || input.ToTreasuryID == "" {
		return domain.Validationf("both treasury ids are required")
	}
	if input.FromTreasuryID == input.ToTreasuryID {
		return domain.ErrSameTreasury
	}
	if err := domain.ValidateAmount(input.Amount); err != nil {
		return err
	}
	return domain.ValidateDescription(input.Description)
}
