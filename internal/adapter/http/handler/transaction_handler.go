package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/treasury/internal/adapter/http/dto"
	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/usecase"
)

// PostingService posts single-sided transactions.
type PostingService interface {
	Post(ctx context.Context, input usecase.PostInput) (*domain.Transaction, error)
}

// StatementService reads the transaction log.
type StatementService interface {
	ListTransactions(ctx context.Context, input usecase.ListTransactionsInput) (*usecase.TransactionPage, error)
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
}

// TransactionHandler handles transaction-related HTTP requests.
type TransactionHandler struct {
	postingUC   PostingService
	statementUC StatementService
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(postingUC PostingService, statementUC StatementService) *TransactionHandler {
	return &TransactionHandler{
		postingUC:   postingUC,
		statementUC: statementUC,
	}
}

// Create posts a deposit or withdrawal.
func (h *TransactionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.PostTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, "invalid request", err)
		return
	}

	transaction, err := h.postingUC.Post(r.Context(), req.ToUseCaseInput())
	if err != nil {
		writeDomainError(w, "failed to post transaction", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.TransactionFromDomain(transaction))
}

// Get retrieves a transaction by ID.
func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	transaction, err := h.statementUC.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to get transaction", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TransactionFromDomain(transaction))
}

// List lists transactions, newest first.
func (h *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	input, err := transactionQuery(r)
	if err != nil {
		writeDomainError(w, "invalid query", err)
		return
	}

	h.writeStatement(w, r, input)
}

// ListByTreasury lists one treasury's statement.
func (h *TransactionHandler) ListByTreasury(w http.ResponseWriter, r *http.Request) {
	input, err := transactionQuery(r)
	if err != nil {
		writeDomainError(w, "invalid query", err)
		return
	}
	id := chi.URLParam(r, "id")
	input.TreasuryID = &id

	h.writeStatement(w, r, input)
}

func (h *TransactionHandler) writeStatement(w http.ResponseWriter, r *http.Request, input usecase.ListTransactionsInput) {
	page, err := h.statementUC.ListTransactions(r.Context(), input)
	if err != nil {
		writeDomainError(w, "failed to list transactions", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TransactionPageFromUseCase(page))
}

func transactionQuery(r *http.Request) (usecase.ListTransactionsInput, error) {
	start, err := parseTimeQuery(r, "start_date")
	if err != nil {
		return usecase.ListTransactionsInput{}, err
	}
	end, err := parseTimeQuery(r, "end_date")
	if err != nil {
		return usecase.ListTransactionsInput{}, err
	}

	input := usecase.ListTransactionsInput{
		TreasuryID: stringQuery(r, "treasury_id"),
		PairID:     stringQuery(r, "pair_id"),
		StartDate:  start,
		EndDate:    end,
		Page:       parseIntQuery(r, "page", 1),
		Limit:      parseIntQuery(r, "limit", domain.DefaultPageSize),
	}
	if t := stringQuery(r, "type"); t != nil {
		transactionType := domain.TransactionType(*t)
		input.Type = &transactionType
	}
	if s := stringQuery(r, "source"); s != nil {
		source := domain.Source(*s)
		input.Source = &source
	}
	return input, nil
}
