package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/infrastructure/metrics"
)

// PostingUseCase appends single-sided transactions to a treasury and keeps
// its cached balance in step with the log.
type PostingUseCase struct {
	txManager       TransactionManager
	treasuryRepo    TreasuryRepository
	transactionRepo TransactionRepository
	outboxRepo      OutboxRepository
	retrier         Retrier
	idGen           IDGenerator
	policy          domain.OverdraftPolicy
	statsCache      Cache
	metrics         *metrics.Metrics
	logger          zerolog.Logger
}

// NewPostingUseCase creates a new PostingUseCase.
// retrier, outboxRepo, statsCache and metrics may be nil.
func NewPostingUseCase(
	txManager TransactionManager,
	treasuryRepo TreasuryRepository,
	transactionRepo TransactionRepository,
	outboxRepo OutboxRepository,
	retrier Retrier,
	idGen IDGenerator,
	policy domain.OverdraftPolicy,
	statsCache Cache,
	metrics *metrics.Metrics,
	logger zerolog.Logger,
) *PostingUseCase {
	if retrier == nil {
		retrier = onceRetrier{}
	}
	return &PostingUseCase{
		txManager:       txManager,
		treasuryRepo:    treasuryRepo,
		transactionRepo: transactionRepo,
		outboxRepo:      outboxRepo,
		retrier:         retrier,
		idGen:           idGen,
		policy:          policy,
		statsCache:      statsCache,
		metrics:         metrics,
		logger:          logger.With().Str("component", "posting").Logger(),
	}
}

// PostInput represents input for posting a transaction.
type PostInput struct {
	Description *string
	TreasuryID  string
	Type        domain.TransactionType
	Source      domain.Source
	Actor       string
	Amount      decimal.Decimal
}

// posting is one balance movement applied under an already held row lock.
type posting struct {
	description *string
	pairID      *string
	direction   domain.TransactionType
	source      domain.Source
	actor       string
	amount      decimal.Decimal
}

// Post validates input and appends one DEPOSIT or WITHDRAWAL to a treasury.
func (uc *PostingUseCase) Post(ctx context.Context, input PostInput) (*domain.Transaction, error) {
	start := time.Now()

	if err := validatePostInput(input); err != nil {
		uc.recordError(err)
		return nil, err
	}

	p := posting{
		direction:   input.Type,
		source:      input.Source,
		amount:      input.Amount,
		description: input.Description,
		actor:       domain.ResolveActor(ctx, input.Actor),
	}

	var posted *domain.Transaction
	err := uc.retrier.Retry(ctx, func() error {
		var err error
		posted, err = uc.postOnce(ctx, input.TreasuryID, p)
		return err
	})
	if err != nil {
		uc.recordError(err)
		return nil, err
	}

	invalidateStats(ctx, uc.statsCache, uc.logger)

	if uc.metrics != nil {
		uc.metrics.TransactionsPosted.WithLabelValues(string(posted.Type), string(posted.Source)).Inc()
		uc.metrics.PostingDuration.Observe(time.Since(start).Seconds())
		uc.metrics.PostingAmount.Observe(posted.Amount.InexactFloat64())
	}

	uc.logger.Debug().
		Str("transaction_id", posted.ID).
		Str("treasury_id", posted.TreasuryID).
		Str("type", string(posted.Type)).
		Str("amount", posted.Amount.String()).
		Str("balance_after", posted.BalanceAfter.String()).
		Msg("transaction posted")

	return posted, nil
}

func (uc *PostingUseCase) postOnce(ctx context.Context, treasuryID string, p posting) (*domain.Transaction, error) {
	// Add transaction timeout
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	// Lock treasury
	treasury, err := uc.treasuryRepo.GetByIDForUpdate(txCtx, tx, treasuryID)
	if err != nil {
		return nil, err
	}

	if !treasury.IsActive {
		return nil, domain.ErrInactiveTreasury
	}

	posted, err := uc.apply(txCtx, tx, treasury, p)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}

	return posted, nil
}

// apply appends one transaction to a treasury whose row is locked by tx and
// advances the cached balance. The locked snapshot is updated in place so
// several postings can be applied to it within one transaction.
func (uc *PostingUseCase) apply(ctx context.Context, tx Transaction, treasury *domain.Treasury, p posting) (*domain.Transaction, error) {
	newBalance, err := treasury.ApplyPosting(p.direction, p.amount, uc.policy.AllowsNegative(treasury.Type))
	if err != nil {
		return nil, err
	}

	at := treasury.PostingTime(time.Now().UTC())
	version := treasury.Version + 1

	transaction := &domain.Transaction{
		ID:           uc.idGen.Generate(),
		TreasuryID:   treasury.ID,
		Type:         p.direction,
		Source:       p.source,
		Amount:       p.amount,
		BalanceAfter: newBalance,
		Description:  p.description,
		PairID:       p.pairID,
		Sequence:     version,
		CreatedAt:    at,
		CreatedBy:    p.actor,
	}

	if err := uc.transactionRepo.Create(ctx, tx, transaction); err != nil {
		return nil, err
	}

	if err := uc.treasuryRepo.UpdateBalance(ctx, tx, treasury.ID, newBalance, version, at); err != nil {
		return nil, err
	}

	if err := uc.emit(ctx, tx, transaction.ID, domain.AggregateTypeTransaction, domain.EventTypeTransactionPosted,
		domain.TransactionPostedPayload(transaction), at); err != nil {
		return nil, err
	}

	treasury.Balance = newBalance
	treasury.Version = version
	treasury.UpdatedAt = at

	if uc.metrics != nil {
		uc.metrics.TreasuryOperations.WithLabelValues(string(treasury.Type)).Inc()
	}

	return transaction, nil
}

// emit writes an outbox event in the caller's transaction.
func (uc *PostingUseCase) emit(ctx context.Context, tx Transaction, aggregateID, aggregateType, eventType string, payload map[string]any, at time.Time) error {
	if uc.outboxRepo == nil {
		return nil
	}
	return uc.outboxRepo.Create(ctx, tx, &domain.OutboxEvent{
		ID:            uc.idGen.Generate(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     at,
		Published:     false,
	})
}

func (uc *PostingUseCase) recordError(err error) {
	if uc.metrics != nil {
		uc.metrics.PostingErrors.WithLabelValues(string(domain.KindOf(err))).Inc()
	}
	uc.logger.Warn().Err(err).Msg("posting failed")
}

func validatePostInput(input PostInput) error {
	if input.TreasuryID == "" {
		return domain.Validationf("treasury id is required")
	}
	if !input.Type.IsPostable() {
		return domain.Validationf("type must be DEPOSIT or WITHDRAWAL, got %q", input.Type)
	}
	if !input.Source.IsValid() {
		return domain.Validationf("unknown source %q", input.Source)
	}
	if input.Source.IsReserved() {
		return domain.Validationf("source %s is reserved for internal postings", input.Source)
	}
	if err := domain.ValidateAmount(input.Amount); err != nil {
		return err
	}
	return domain.ValidateDescription(input.Description)
}

// onceRetrier runs the operation a single time.
type onceRetrier struct{}

func (onceRetrier) Retry(_ context.Context, operation func() error) error {
	return operation()
}
