package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/treasury/internal/adapter/http/dto"
	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/usecase"
)

// TreasuryService defines the behavior needed by TreasuryHandler.
type TreasuryService interface {
	CreateTreasury(ctx context.Context, input usecase.CreateTreasuryInput) (*domain.Treasury, error)
	GetTreasury(ctx context.Context, id string) (*domain.Treasury, error)
	ListTreasuries(ctx context.Context, input usecase.ListTreasuriesInput) (*usecase.TreasuryPage, error)
	DeactivateTreasury(ctx context.Context, id string) (*domain.Treasury, error)
	ActivateTreasury(ctx context.Context, id string) (*domain.Treasury, error)
	DeleteTreasury(ctx context.Context, id string) error
}

// TreasuryHandler handles treasury-related HTTP requests.
type TreasuryHandler struct {
	treasuryUC TreasuryService
}

// NewTreasuryHandler creates a new TreasuryHandler.
func NewTreasuryHandler(treasuryUC TreasuryService) *TreasuryHandler {
	return &TreasuryHandler{treasuryUC: treasuryUC}
}

// Create creates a new treasury.
func (h *TreasuryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateTreasuryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, "invalid request", err)
		return
	}

	treasury, err := h.treasuryUC.CreateTreasury(r.Context(), req.ToUseCaseInput())
	if err != nil {
		writeDomainError(w, "failed to create treasury", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.TreasuryFromDomain(treasury))
}

// Get retrieves a treasury by ID.
func (h *TreasuryHandler) Get(w http.ResponseWriter, r *http.Request) {
	treasury, err := h.treasuryUC.GetTreasury(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to get treasury", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TreasuryFromDomain(treasury))
}

// List lists treasuries filtered by type and active flag.
func (h *TreasuryHandler) List(w http.ResponseWriter, r *http.Request) {
	active, err := parseBoolQuery(r, "active")
	if err != nil {
		writeDomainError(w, "invalid query", err)
		return
	}

	input := usecase.ListTreasuriesInput{
		IsActive: active,
		Page:     parseIntQuery(r, "page", 1),
		Limit:    parseIntQuery(r, "limit", domain.DefaultPageSize),
	}
	if t := stringQuery(r, "type"); t != nil {
		treasuryType := domain.TreasuryType(*t)
		input.Type = &treasuryType
	}

	page, err := h.treasuryUC.ListTreasuries(r.Context(), input)
	if err != nil {
		writeDomainError(w, "failed to list treasuries", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TreasuryPageFromUseCase(page))
}

// Deactivate marks a treasury inactive.
func (h *TreasuryHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	treasury, err := h.treasuryUC.DeactivateTreasury(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to deactivate treasury", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TreasuryFromDomain(treasury))
}

// Activate marks a treasury active.
func (h *TreasuryHandler) Activate(w http.ResponseWriter, r *http.Request) {
	treasury, err := h.treasuryUC.ActivateTreasury(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to activate treasury", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TreasuryFromDomain(treasury))
}

// Delete removes a treasury without history.
func (h *TreasuryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.treasuryUC.DeleteTreasury(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, "failed to delete treasury", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
