package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/treasury/internal/adapter/http/dto"
	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/usecase"
)

// StatsService aggregates balances by treasury type.
type StatsService interface {
	Stats(ctx context.Context, activeOnly bool) (*domain.TreasuryStats, error)
}

// ReconciliationService replays the log against cached balances.
type ReconciliationService interface {
	ReconcileTreasury(ctx context.Context, id string) (*usecase.ReconciliationResult, error)
	ReconcileAll(ctx context.Context) (*usecase.ReconciliationReport, error)
}

// ReportHandler serves stats and reconciliation reports.
type ReportHandler struct {
	statsUC StatsService
	reconUC ReconciliationService
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(statsUC StatsService, reconUC ReconciliationService) *ReportHandler {
	return &ReportHandler{
		statsUC: statsUC,
		reconUC: reconUC,
	}
}

// Stats returns balances grouped by treasury type.
func (h *ReportHandler) Stats(w http.ResponseWriter, r *http.Request) {
	active, err := parseBoolQuery(r, "active")
	if err != nil {
		writeDomainError(w, "invalid query", err)
		return
	}

	stats, err := h.statsUC.Stats(r.Context(), active != nil && *active)
	if err != nil {
		writeDomainError(w, "failed to compute stats", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.StatsFromDomain(stats))
}

// ReconcileTreasury reconciles one treasury.
func (h *ReportHandler) ReconcileTreasury(w http.ResponseWriter, r *http.Request) {
	result, err := h.reconUC.ReconcileTreasury(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to reconcile treasury", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ReconciliationFromUseCase(result))
}

// ReconcileAll reconciles every treasury and the stats.
func (h *ReportHandler) ReconcileAll(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconUC.ReconcileAll(r.Context())
	if err != nil {
		writeDomainError(w, "failed to reconcile", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ReconciliationReportFromUseCase(report))
}
