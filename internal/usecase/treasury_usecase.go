package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/infrastructure/metrics"
)

// TreasuryUseCase handles the treasury lifecycle.
type TreasuryUseCase struct {
	posting     *PostingUseCase
	companyRepo CompanyRepository
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

// NewTreasuryUseCase creates a new TreasuryUseCase. Opening balances are
// written through posting.
func NewTreasuryUseCase(
	posting *PostingUseCase,
	companyRepo CompanyRepository,
	metrics *metrics.Metrics,
	logger zerolog.Logger,
) *TreasuryUseCase {
	return &TreasuryUseCase{
		posting:     posting,
		companyRepo: companyRepo,
		metrics:     metrics,
		logger:      logger.With().Str("component", "treasury").Logger(),
	}
}

// CreateTreasuryInput represents input for creating a treasury.
type CreateTreasuryInput struct {
	CompanyID      *string
	BankName       *string
	AccountNumber  *string
	Name           string
	Type           domain.TreasuryType
	Actor          string
	OpeningBalance decimal.Decimal
}

// CreateTreasury creates a treasury and, when the opening balance is not
// zero, its OPENING_BALANCE transaction in the same unit of work.
func (uc *TreasuryUseCase) CreateTreasury(ctx context.Context, input CreateTreasuryInput) (*domain.Treasury, error) {
	created, err := uc.createTreasury(ctx, input)
	if err != nil {
		uc.logger.Warn().
			Err(err).
			Str("name", input.Name).
			Str("type", string(input.Type)).
			Msg("treasury creation failed")
		return nil, err
	}
	return created, nil
}

func (uc *TreasuryUseCase) createTreasury(ctx context.Context, input CreateTreasuryInput) (*domain.Treasury, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := domain.ValidateTreasuryName(input.Name); err != nil {
		return nil, err
	}
	if err := domain.ValidateTreasuryFields(input.Type, input.CompanyID, input.BankName, input.AccountNumber); err != nil {
		return nil, err
	}
	if !input.OpeningBalance.IsZero() {
		if err := domain.ValidateAmount(input.OpeningBalance.Abs()); err != nil {
			return nil, err
		}
	}
	if input.OpeningBalance.IsNegative() && !uc.posting.policy.AllowsNegative(input.Type) {
		return nil, domain.Validationf("opening balance of a %s treasury cannot be negative", input.Type)
	}

	if input.Type == domain.TreasuryTypeCompany {
		company, err := uc.companyRepo.GetByID(ctx, *input.CompanyID)
		if err != nil {
			return nil, err
		}
		if !company.IsActive {
			return nil, domain.Validationf("company %s is inactive", company.ID)
		}
	}

	actor := domain.ResolveActor(ctx, input.Actor)

	var created *domain.Treasury
	err := uc.posting.retrier.Retry(ctx, func() error {
		var err error
		created, err = uc.createOnce(ctx, input, actor)
		return err
	})
	if err != nil {
		return nil, err
	}

	invalidateStats(ctx, uc.posting.statsCache, uc.logger)

	if uc.metrics != nil {
		uc.metrics.TreasuriesCreated.Inc()
	}

	uc.logger.Info().
		Str("treasury_id", created.ID).
		Str("type", string(created.Type)).
		Str("opening_balance", created.OpeningBalance.String()).
		Msg("treasury created")

	return created, nil
}

func (uc *TreasuryUseCase) createOnce(ctx context.Context, input CreateTreasuryInput, actor string) (*domain.Treasury, error) {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.posting.txManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	now := time.Now().UTC()
	treasury := &domain.Treasury{
		ID:             uc.posting.idGen.Generate(),
		Name:           input.Name,
		Type:           input.Type,
		CompanyID:      input.CompanyID,
		BankName:       input.BankName,
		AccountNumber:  input.AccountNumber,
		OpeningBalance: input.OpeningBalance,
		Balance:        decimal.Zero,
		Version:        0,
		IsActive:       true,
		CreatedBy:      actor,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := uc.posting.treasuryRepo.Create(txCtx, tx, treasury); err != nil {
		return nil, err
	}

	if !input.OpeningBalance.IsZero() {
		direction := domain.TransactionTypeDeposit
		if input.OpeningBalance.IsNegative() {
			direction = domain.TransactionTypeWithdrawal
		}
		if _, err := uc.posting.apply(txCtx, tx, treasury, posting{
			direction: direction,
			source:    domain.SourceOpeningBalance,
			amount:    input.OpeningBalance.Abs(),
			actor:     actor,
		}); err != nil {
			return nil, err
		}
	}

	if err := uc.posting.emit(txCtx, tx, treasury.ID, domain.AggregateTypeTreasury, domain.EventTypeTreasuryCreated,
		domain.TreasuryPayload(treasury), treasury.UpdatedAt); err != nil {
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}

	return treasury, nil
}

// DeactivateTreasury stops a treasury from accepting postings. Balance and
// history are untouched.
func (uc *TreasuryUseCase) DeactivateTreasury(ctx context.Context, id string) (*domain.Treasury, error) {
	return uc.setActive(ctx, id, false)
}

// ActivateTreasury lets a deactivated treasury accept postings again.
func (uc *TreasuryUseCase) ActivateTreasury(ctx context.Context, id string) (*domain.Treasury, error) {
	return uc.setActive(ctx, id, true)
}

func (uc *TreasuryUseCase) setActive(ctx context.Context, id string, active bool) (*domain.Treasury, error) {
	eventType, action := domain.EventTypeTreasuryDeactivated, "deactivate"
	if active {
		eventType, action = domain.EventTypeTreasuryActivated, "activate"
	}

	var updated *domain.Treasury
	var changed bool
	err := uc.posting.retrier.Retry(ctx, func() error {
		txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
		defer cancel()

		tx, err := uc.posting.txManager.Begin(txCtx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(txCtx) }()

		treasury, err := uc.posting.treasuryRepo.GetByIDForUpdate(txCtx, tx, id)
		if err != nil {
			return err
		}

		updated, changed = treasury, treasury.IsActive != active
		if !changed {
			return nil
		}

		now := treasury.PostingTime(time.Now().UTC())
		if err := uc.posting.treasuryRepo.SetActive(txCtx, tx, id, active, now); err != nil {
			return err
		}
		treasury.IsActive = active
		treasury.UpdatedAt = now

		if err := uc.posting.emit(txCtx, tx, id, domain.AggregateTypeTreasury, eventType,
			domain.TreasuryPayload(treasury), now); err != nil {
			return err
		}

		return tx.Commit(txCtx)
	})
	if err != nil {
		return nil, err
	}

	if changed {
		invalidateStats(ctx, uc.posting.statsCache, uc.logger)
		if uc.metrics != nil {
			uc.metrics.TreasuryLifecycle.WithLabelValues(action).Inc()
		}
		uc.logger.Info().Str("treasury_id", id).Str("action", action).Msg("treasury state changed")
	}

	return updated, nil
}

// DeleteTreasury hard-deletes a treasury that has no history and a zero
// balance.
func (uc *TreasuryUseCase) DeleteTreasury(ctx context.Context, id string) error {
	err := uc.posting.retrier.Retry(ctx, func() error {
		txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
		defer cancel()

		tx, err := uc.posting.txManager.Begin(txCtx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(txCtx) }()

		treasury, err := uc.posting.treasuryRepo.GetByIDForUpdate(txCtx, tx, id)
		if err != nil {
			return err
		}

		count, err := uc.posting.transactionRepo.CountByTreasury(txCtx, tx, id)
		if err != nil {
			return err
		}
		if !treasury.CanDelete(count) {
			return domain.ErrTreasuryInUse
		}

		if err := uc.posting.treasuryRepo.Delete(txCtx, tx, id); err != nil {
			return err
		}

		if err := uc.posting.emit(txCtx, tx, id, domain.AggregateTypeTreasury, domain.EventTypeTreasuryDeleted,
			domain.TreasuryPayload(treasury), time.Now().UTC()); err != nil {
			return err
		}

		return tx.Commit(txCtx)
	})
	if err != nil {
		return err
	}

	invalidateStats(ctx, uc.posting.statsCache, uc.logger)
	if uc.metrics != nil {
		uc.metrics.TreasuryLifecycle.WithLabelValues("delete").Inc()
	}
	uc.logger.Info().Str("treasury_id", id).Msg("treasury deleted")

	return nil
}

// GetTreasury retrieves a treasury by ID.
func (uc *TreasuryUseCase) GetTreasury(ctx context.Context, id string) (*domain.Treasury, error) {
	return uc.posting.treasuryRepo.GetByID(ctx, id)
}

// ListTreasuriesInput represents input for listing treasuries.
type ListTreasuriesInput struct {
	Type     *domain.TreasuryType
	IsActive *bool
	Page     int
	Limit    int
}

// TreasuryPage is one page of treasuries.
type TreasuryPage struct {
	Items []*domain.Treasury
	PageInfo
}

// ListTreasuries lists treasuries with pagination.
func (uc *TreasuryUseCase) ListTreasuries(ctx context.Context, input ListTreasuriesInput) (*TreasuryPage, error) {
	if input.Type != nil && !input.Type.IsValid() {
		return nil, domain.Validationf("unknown treasury type %q", *input.Type)
	}

	page, limit, offset := domain.ValidatePagination(input.Page, input.Limit)

	items, total, err := uc.posting.treasuryRepo.List(ctx, domain.TreasuryFilter{
		Type:     input.Type,
		IsActive: input.IsActive,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		return nil, err
	}

	return &TreasuryPage{Items: items, PageInfo: NewPageInfo(page, limit, total)}, nil
}

// PageInfo is the pagination metadata of a listing.
type PageInfo struct {
	Page       int
	Limit      int
	Total      int64
	TotalPages int
}

// NewPageInfo computes pagination metadata.
func NewPageInfo(page, limit int, total int64) PageInfo {
	totalPages := 0
	if limit > 0 {
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}
	return PageInfo{Page: page, Limit: limit, Total: total, TotalPages: totalPages}
}
