package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/usecase"
)

// TreasuryResponse represents a treasury in API responses.
type TreasuryResponse struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Type           string          `json:"type"`
	CompanyID      *string         `json:"company_id,omitempty"`
	BankName       *string         `json:"bank_name,omitempty"`
	AccountNumber  *string         `json:"account_number,omitempty"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	Balance        decimal.Decimal `json:"balance"`
	Version        int64           `json:"version"`
	IsActive       bool            `json:"is_active"`
	CreatedBy      string          `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TreasuryFromDomain converts a domain treasury to a response.
func TreasuryFromDomain(t *domain.Treasury) *TreasuryResponse {
	return &TreasuryResponse{
		ID:             t.ID,
		Name:           t.Name,
		Type:           string(t.Type),
		CompanyID:      t.CompanyID,
		BankName:       t.BankName,
		AccountNumber:  t.AccountNumber,
		OpeningBalance: t.OpeningBalance,
		Balance:        t.Balance,
		Version:        t.Version,
		IsActive:       t.IsActive,
		CreatedBy:      t.CreatedBy,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

// TransactionResponse represents a ledger row in API responses.
type TransactionResponse struct {
	ID           string          `json:"id"`
	TreasuryID   string          `json:"treasury_id"`
	Type         string          `json:"type"`
	Source       string          `json:"source"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	Description  *string         `json:"description,omitempty"`
	PairID       *string         `json:"pair_id,omitempty"`
	Sequence     int64           `json:"sequence"`
	CreatedBy    string          `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
}

// TransactionFromDomain converts a domain transaction to a response.
func TransactionFromDomain(t *domain.Transaction) *TransactionResponse {
	return &TransactionResponse{
		ID:           t.ID,
		TreasuryID:   t.TreasuryID,
		Type:         string(t.Type),
		Source:       string(t.Source),
		Amount:       t.Amount,
		BalanceAfter: t.BalanceAfter,
		Description:  t.Description,
		PairID:       t.PairID,
		Sequence:     t.Sequence,
		CreatedBy:    t.CreatedBy,
		CreatedAt:    t.CreatedAt,
	}
}

// TransferResponse represents both legs of a transfer.
type TransferResponse struct {
	PairID         string               `json:"pair_id"`
	FromTreasuryID string               `json:"from_treasury_id"`
	ToTreasuryID   string               `json:"to_treasury_id"`
	Amount         decimal.Decimal      `json:"amount"`
	Withdrawal     *TransactionResponse `json:"withdrawal"`
	Deposit        *TransactionResponse `json:"deposit"`
	CreatedAt      time.Time            `json:"created_at"`
}

// TransferFromDomain converts a domain transfer to a response.
func TransferFromDomain(t *domain.Transfer) *TransferResponse {
	return &TransferResponse{
		PairID:         t.PairID,
		FromTreasuryID: t.FromTreasuryID,
		ToTreasuryID:   t.ToTreasuryID,
		Amount:         t.Amount,
		Withdrawal:     TransactionFromDomain(t.Withdrawal),
		Deposit:        TransactionFromDomain(t.Deposit),
		CreatedAt:      t.CreatedAt,
	}
}

// PageResponse wraps one page of items with pagination metadata.
type PageResponse[T any] struct {
	Items      []T   `json:"items"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

func newPage[T any](items []T, info usecase.PageInfo) *PageResponse[T] {
	return &PageResponse[T]{
		Items:      items,
		Page:       info.Page,
		Limit:      info.Limit,
		Total:      info.Total,
		TotalPages: info.TotalPages,
	}
}

// TreasuryPageFromUseCase converts a treasury page.
func TreasuryPageFromUseCase(p *usecase.TreasuryPage) *PageResponse[*TreasuryResponse] {
	items := make([]*TreasuryResponse, len(p.Items))
	for i, t := range p.Items {
		items[i] = TreasuryFromDomain(t)
	}
	return newPage(items, p.PageInfo)
}

// TransactionPageFromUseCase converts a statement page.
func TransactionPageFromUseCase(p *usecase.TransactionPage) *PageResponse[*TransactionResponse] {
	items := make([]*TransactionResponse, len(p.Items))
	for i, t := range p.Items {
		items[i] = TransactionFromDomain(t)
	}
	return newPage(items, p.PageInfo)
}

// TypeTotalResponse is one treasury type's aggregate.
type TypeTotalResponse struct {
	Type    string          `json:"type"`
	Count   int64           `json:"count"`
	Balance decimal.Decimal `json:"balance"`
}

// StatsResponse represents treasury statistics.
type StatsResponse struct {
	ByType      []TypeTotalResponse `json:"by_type"`
	Total       decimal.Decimal     `json:"total"`
	Count       int64               `json:"count"`
	OnlyActive  bool                `json:"only_active"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// StatsFromDomain converts stats to a response.
func StatsFromDomain(s *domain.TreasuryStats) *StatsResponse {
	byType := make([]TypeTotalResponse, len(s.ByType))
	for i, t := range s.ByType {
		byType[i] = TypeTotalResponse{Type: string(t.Type), Count: t.Count, Balance: t.Balance}
	}
	return &StatsResponse{
		ByType:      byType,
		Total:       s.Total,
		Count:       s.Count,
		OnlyActive:  s.OnlyActive,
		GeneratedAt: s.GeneratedAt,
	}
}

// MismatchResponse identifies the first row whose balance_after is wrong.
type MismatchResponse struct {
	TransactionID string          `json:"transaction_id"`
	Sequence      int64           `json:"sequence"`
	Stored        decimal.Decimal `json:"stored"`
	Replayed      decimal.Decimal `json:"replayed"`
}

// ReconciliationResponse represents one treasury's reconciliation.
type ReconciliationResponse struct {
	TreasuryID        string            `json:"treasury_id"`
	RecordedBalance   decimal.Decimal   `json:"recorded_balance"`
	CalculatedBalance decimal.Decimal   `json:"calculated_balance"`
	Difference        decimal.Decimal   `json:"difference"`
	OpeningBalance    decimal.Decimal   `json:"opening_balance"`
	OpeningPosted     decimal.Decimal   `json:"opening_posted"`
	TransactionCount  int               `json:"transaction_count"`
	FirstMismatch     *MismatchResponse `json:"first_mismatch,omitempty"`
	IsReconciled      bool              `json:"is_reconciled"`
	LastChecked       time.Time         `json:"last_checked"`
}

// ReconciliationFromUseCase converts a reconciliation result.
func ReconciliationFromUseCase(r *usecase.ReconciliationResult) *ReconciliationResponse {
	resp := &ReconciliationResponse{
		TreasuryID:        r.TreasuryID,
		RecordedBalance:   r.RecordedBalance,
		CalculatedBalance: r.CalculatedBalance,
		Difference:        r.Difference,
		OpeningBalance:    r.OpeningBalance,
		OpeningPosted:     r.OpeningPosted,
		TransactionCount:  r.TransactionCount,
		IsReconciled:      r.IsReconciled,
		LastChecked:       r.LastChecked,
	}
	if m := r.FirstMismatch; m != nil {
		resp.FirstMismatch = &MismatchResponse{
			TransactionID: m.TransactionID,
			Sequence:      m.Sequence,
			Stored:        m.Stored,
			Replayed:      m.Replayed,
		}
	}
	return resp
}

// StatsDifferenceResponse compares one type's cached total with the log.
type StatsDifferenceResponse struct {
	Type       string          `json:"type"`
	Cached     decimal.Decimal `json:"cached"`
	Calculated decimal.Decimal `json:"calculated"`
	Difference decimal.Decimal `json:"difference"`
}

// ReconciliationReportResponse represents a full reconciliation run.
type ReconciliationReportResponse struct {
	TotalTreasuries      int                        `json:"total_treasuries"`
	ReconciledTreasuries int                        `json:"reconciled_treasuries"`
	Discrepancies        []*ReconciliationResponse  `json:"discrepancies"`
	StatsConsistent      bool                       `json:"stats_consistent"`
	Stats                []StatsDifferenceResponse  `json:"stats"`
	CheckedAt            time.Time                  `json:"checked_at"`
}

// ReconciliationReportFromUseCase converts a reconciliation report.
func ReconciliationReportFromUseCase(r *usecase.ReconciliationReport) *ReconciliationReportResponse {
	resp := &ReconciliationReportResponse{
		TotalTreasuries:      r.TotalTreasuries,
		ReconciledTreasuries: r.ReconciledTreasuries,
		Discrepancies:        make([]*ReconciliationResponse, len(r.Discrepancies)),
		CheckedAt:            r.CheckedAt,
	}
	for i, d := range r.Discrepancies {
		resp.Discrepancies[i] = ReconciliationFromUseCase(d)
	}
	if r.Stats != nil {
		resp.StatsConsistent = r.Stats.Consistent
		for _, s := range r.Stats.ByType {
			resp.Stats = append(resp.Stats, StatsDifferenceResponse{
				Type:       string(s.Type),
				Cached:     s.Cached,
				Calculated: s.Calculated,
				Difference: s.Difference,
			})
		}
	}
	return resp
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string       `json:"error"`
	Kind    string       `json:"kind,omitempty"`
	Message string       `json:"message,omitempty"`
	Details []FieldError `json:"details,omitempty"`
}
