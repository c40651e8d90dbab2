package dto

import (
	"github.com/shopspring/decimal"

	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/usecase"
)

// CreateTreasuryRequest represents a request to create a treasury.
type CreateTreasuryRequest struct {
	Name           string          `json:"name"            validate:"required,max=255"`
	Type           string          `json:"type"            validate:"required,oneof=GENERAL COMPANY BANK"`
	CompanyID      *string         `json:"company_id"      validate:"required_if=Type COMPANY"`
	BankName       *string         `json:"bank_name"       validate:"required_if=Type BANK"`
	AccountNumber  *string         `json:"account_number"  validate:"omitempty,max=64"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	CreatedBy      string          `json:"created_by"      validate:"max=255"`
}

// ToUseCaseInput converts to use case input.
func (r *CreateTreasuryRequest) ToUseCaseInput() usecase.CreateTreasuryInput {
	return usecase.CreateTreasuryInput{
		CompanyID:      r.CompanyID,
		BankName:       r.BankName,
		AccountNumber:  r.AccountNumber,
		Name:           r.Name,
		Type:           domain.TreasuryType(r.Type),
		Actor:          r.CreatedBy,
		OpeningBalance: r.OpeningBalance,
	}
}

// PostTransactionRequest represents a request to post a single-sided transaction.
type PostTransactionRequest struct {
	TreasuryID  string          `json:"treasury_id" validate:"required"`
	Type        string          `json:"type"        validate:"required,oneof=DEPOSIT WITHDRAWAL"`
	Source      string          `json:"source"      validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Description *string         `json:"description" validate:"omitempty,max=500"`
	CreatedBy   string          `json:"created_by"  validate:"max=255"`
}

// ToUseCaseInput converts to use case input.
func (r *PostTransactionRequest) ToUseCaseInput() usecase.PostInput {
	return usecase.PostInput{
		Description: r.Description,
		TreasuryID:  r.TreasuryID,
		Type:        domain.TransactionType(r.Type),
		Source:      domain.Source(r.Source),
		Actor:       r.CreatedBy,
		Amount:      r.Amount,
	}
}

// CreateTransferRequest represents a request to move funds between treasuries.
type CreateTransferRequest struct {
	FromTreasuryID string          `json:"from_treasury_id" validate:"required"`
	ToTreasuryID   string          `json:"to_treasury_id"   validate:"required"`
	Amount         decimal.Decimal `json:"amount"`
	Description    *string         `json:"description"      validate:"omitempty,max=500"`
	CreatedBy      string          `json:"created_by"       validate:"max=255"`
}

// ToUseCaseInput converts to use case input.
func (r *CreateTransferRequest) ToUseCaseInput() usecase.TransferInput {
	return usecase.TransferInput{
		Description:    r.Description,
		FromTreasuryID: r.FromTreasuryID,
		ToTreasuryID:   r.ToTreasuryID,
		Actor:          r.CreatedBy,
		Amount:         r.Amount,
	}
}
