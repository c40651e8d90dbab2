package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/infrastructure/metrics"
)

// reconcileWorkers bounds concurrent replays during ReconcileAll.
const reconcileWorkers = 4

// ReconciliationUseCase replays the transaction log against cached balances.
type ReconciliationUseCase struct {
	treasuryRepo    TreasuryRepository
	transactionRepo TransactionRepository
	metrics         *metrics.Metrics
	logger          zerolog.Logger
}

// NewReconciliationUseCase creates a new reconciliation use case
func NewReconciliationUseCase(
	treasuryRepo TreasuryRepository,
	transactionRepo TransactionRepository,
	metrics *metrics.Metrics,
	logger zerolog.Logger,
) *ReconciliationUseCase {
	return &ReconciliationUseCase{
		treasuryRepo:    treasuryRepo,
		transactionRepo: transactionRepo,
		metrics:         metrics,
		logger:          logger.With().Str("component", "reconciliation").Logger(),
	}
}

// ReconciliationResult represents the result of a reconciliation check
type ReconciliationResult struct {
	TreasuryID        string
	RecordedBalance   decimal.Decimal
	CalculatedBalance decimal.Decimal
	Difference        decimal.Decimal
	OpeningBalance    decimal.Decimal
	OpeningPosted     decimal.Decimal
	TransactionCount  int
	FirstMismatch     *domain.Mismatch
	IsReconciled      bool
	LastChecked       time.Time
}

// ReconcileTreasury replays a treasury's history from zero and compares it
// with the cached balance, every stored balanceAfter and the opening balance.
func (uc *ReconciliationUseCase) ReconcileTreasury(ctx context.Context, treasuryID string) (*ReconciliationResult, error) {
	treasury, err := uc.treasuryRepo.GetByID(ctx, treasuryID)
	if err != nil {
		return nil, err
	}

	history, err := uc.transactionRepo.ListChronological(ctx, treasuryID)
	if err != nil {
		return nil, err
	}

	// Rows appended after the treasury snapshot was read are not compared.
	for len(history) > 0 && history[len(history)-1].Sequence > treasury.Version {
		history = history[:len(history)-1]
	}

	replay := domain.Replay(history)

	result := &ReconciliationResult{
		TreasuryID:        treasury.ID,
		RecordedBalance:   treasury.Balance,
		CalculatedBalance: replay.Final,
		Difference:        treasury.Balance.Sub(replay.Final),
		OpeningBalance:    treasury.OpeningBalance,
		OpeningPosted:     replay.OpeningPosted,
		TransactionCount:  replay.Count,
		FirstMismatch:     replay.FirstMismatch,
		LastChecked:       time.Now().UTC(),
	}
	result.IsReconciled = result.Difference.IsZero() &&
		replay.FirstMismatch == nil &&
		replay.OpeningPosted.Equal(treasury.OpeningBalance)

	if uc.metrics != nil {
		label := "reconciled"
		if !result.IsReconciled {
			label = "discrepancy"
			uc.metrics.ReconciliationMismatches.Inc()
		}
		uc.metrics.ReconciliationRuns.WithLabelValues(label).Inc()
	}

	if !result.IsReconciled {
		uc.logger.Warn().
			Str("treasury_id", treasury.ID).
			Str("recorded", result.RecordedBalance.String()).
			Str("calculated", result.CalculatedBalance.String()).
			Msg("treasury balance does not match its history")
	}

	return result, nil
}

// StatsDifference compares one type's cached total with the log.
type StatsDifference struct {
	Type       domain.TreasuryType
	Cached     decimal.Decimal
	Calculated decimal.Decimal
	Difference decimal.Decimal
}

// StatsCheck is the outcome of CheckStats.
type StatsCheck struct {
	ByType     []StatsDifference
	Consistent bool
}

// CheckStats compares the aggregated cached balances per type with the signed
// sum of the transaction log per type. Both come from one read, so a posting
// committing concurrently is either in both totals or in neither.
func (uc *ReconciliationUseCase) CheckStats(ctx context.Context) (*StatsCheck, error) {
	cachedTotals, loggedTotals, err := uc.treasuryRepo.BalancesByType(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	cached := domain.NewTreasuryStats(cachedTotals, false, now)
	calculated := domain.NewTreasuryStats(loggedTotals, false, now)

	check := &StatsCheck{Consistent: true}
	for i, total := range cached.ByType {
		diff := StatsDifference{
			Type:       total.Type,
			Cached:     total.Balance,
			Calculated: calculated.ByType[i].Balance,
		}
		diff.Difference = diff.Cached.Sub(diff.Calculated)
		if !diff.Difference.IsZero() {
			check.Consistent = false
		}
		check.ByType = append(check.ByType, diff)
	}

	return check, nil
}

// ReconciliationReport represents a full reconciliation report
type ReconciliationReport struct {
	TotalTreasuries      int
	ReconciledTreasuries int
	Discrepancies        []*ReconciliationResult
	Stats                *StatsCheck
	CheckedAt            time.Time
}

// ReconcileAll reconciles every treasury and the per-type stats.
func (uc *ReconciliationUseCase) ReconcileAll(ctx context.Context) (*ReconciliationReport, error) {
	report := &ReconciliationReport{
		Discrepancies: make([]*ReconciliationResult, 0),
	}

	for offset := 0; ; offset += reconcilePageSize {
		treasuries, _, err := uc.treasuryRepo.List(ctx, domain.TreasuryFilter{
			Limit:  reconcilePageSize,
			Offset: offset,
		})
		if err != nil {
			return nil, err
		}

		results := make([]*ReconciliationResult, len(treasuries))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(reconcileWorkers)
		for i, treasury := range treasuries {
			g.Go(func() error {
				result, err := uc.ReconcileTreasury(gctx, treasury.ID)
				if errors.Is(err, domain.ErrTreasuryNotFound) {
					// Deleted after the page was listed.
					return nil
				}
				if err != nil {
					return fmt.Errorf("failed to reconcile treasury %s: %w", treasury.ID, err)
				}
				results[i] = result
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		for _, result := range results {
			if result == nil {
				continue
			}
			report.TotalTreasuries++
			if result.IsReconciled {
				report.ReconciledTreasuries++
			} else {
				report.Discrepancies = append(report.Discrepancies, result)
			}
		}

		if len(treasuries) < reconcilePageSize {
			break
		}
	}

	stats, err := uc.CheckStats(ctx)
	if err != nil {
		return nil, err
	}
	report.Stats = stats
	report.CheckedAt = time.Now().UTC()

	uc.logger.Info().
		Int("treasuries", report.TotalTreasuries).
		Int("discrepancies", len(report.Discrepancies)).
		Bool("stats_consistent", stats.Consistent).
		Msg("reconciliation finished")

	return report, nil
}
