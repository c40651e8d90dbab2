package usecase

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/infrastructure/metrics"
)

// StatsUseCase aggregates cached treasury balances by type.
type StatsUseCase struct {
	treasuryRepo TreasuryRepository
	cache        Cache
	ttl          time.Duration
	metrics      *metrics.Metrics
	logger       zerolog.Logger
}

// NewStatsUseCase creates a new StatsUseCase. A nil cache or a zero ttl
// disables caching.
func NewStatsUseCase(
	treasuryRepo TreasuryRepository,
	cache Cache,
	ttl time.Duration,
	metrics *metrics.Metrics,
	logger zerolog.Logger,
) *StatsUseCase {
	if ttl <= 0 {
		cache = nil
	}
	return &StatsUseCase{
		treasuryRepo: treasuryRepo,
		cache:        cache,
		ttl:          ttl,
		metrics:      metrics,
		logger:       logger.With().Str("component", "stats").Logger(),
	}
}

// Stats returns per-type counts and balances plus the overall total.
func (uc *StatsUseCase) Stats(ctx context.Context, activeOnly bool) (*domain.TreasuryStats, error) {
	key := statsCacheKey(activeOnly)

	if cached, ok := uc.fromCache(ctx, key); ok {
		return cached, nil
	}

	totals, err := uc.treasuryRepo.SumByType(ctx, activeOnly)
	if err != nil {
		return nil, err
	}

	stats := domain.NewTreasuryStats(totals, activeOnly, time.Now().UTC())

	if uc.cache != nil {
		if data, err := json.Marshal(stats); err == nil {
			if err := uc.cache.Set(ctx, key, data, uc.ttl); err != nil {
				uc.logger.Warn().Err(err).Msg("failed to cache stats")
			}
		}
	}

	return stats, nil
}

func (uc *StatsUseCase) fromCache(ctx context.Context, key string) (*domain.TreasuryStats, bool) {
	if uc.cache == nil {
		return nil, false
	}

	data, err := uc.cache.Get(ctx, key)
	if err != nil || data == nil {
		uc.observeCache("miss")
		return nil, false
	}

	var stats domain.TreasuryStats
	if err := json.Unmarshal(data, &stats); err != nil {
		uc.logger.Warn().Err(err).Msg("discarding unreadable cached stats")
		uc.observeCache("miss")
		return nil, false
	}

	uc.observeCache("hit")
	return &stats, true
}

func (uc *StatsUseCase) observeCache(result string) {
	if uc.metrics != nil {
		uc.metrics.StatsCache.WithLabelValues(result).Inc()
	}
}

func statsCacheKey(activeOnly bool) string {
	if activeOnly {
		return StatsCacheKey + ":active"
	}
	return StatsCacheKey + ":all"
}

// invalidateStats drops cached stats after a committed mutation. Failures are
// logged only: the mutation itself already succeeded.
func invalidateStats(ctx context.Context, cache Cache, logger zerolog.Logger) {
	if cache == nil {
		return
	}
	for _, activeOnly := range []bool{true, false} {
		if err := cache.Delete(ctx, statsCacheKey(activeOnly)); err != nil {
			logger.Warn().Err(err).Msg("failed to invalidate stats cache")
		}
	}
}
