package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the economic direction of a transaction.
//
// TRANSFER is never stored: transfer legs are a WITHDRAWAL and a DEPOSIT that
// share a PairID. It is accepted as a query filter selecting those legs.
type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "DEPOSIT"
	TransactionTypeWithdrawal TransactionType = "WITHDRAWAL"
	TransactionTypeTransfer   TransactionType = "TRANSFER"
)

// IsValid reports whether t is a known transaction type.
func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdrawal, TransactionTypeTransfer:
		return true
	}
	return false
}

// IsPostable reports whether t can be posted as a single-sided transaction.
func (t TransactionType) IsPostable() bool {
	return t == TransactionTypeDeposit || t == TransactionTypeWithdrawal
}

// Sign returns amount with the sign of t's effect on the balance.
func (t TransactionType) Sign(amount decimal.Decimal) decimal.Decimal {
	if t == TransactionTypeWithdrawal {
		return amount.Neg()
	}
	return amount
}

// Source is the business origin of a transaction.
type Source string

const (
	SourceReceipt        Source = "RECEIPT"
	SourcePayment        Source = "PAYMENT"
	SourceManual         Source = "MANUAL"
	SourceTransferIn     Source = "TRANSFER_IN"
	SourceTransferOut    Source = "TRANSFER_OUT"
	SourceOpeningBalance Source = "OPENING_BALANCE"
	SourceSalary         Source = "SALARY"
	SourceBonus          Source = "BONUS"
	SourceBadDebt        Source = "BAD_DEBT"
	SourceSale           Source = "SALE"
)

// IsValid reports whether s belongs to the closed source set.
func (s Source) IsValid() bool {
	switch s {
	case SourceReceipt, SourcePayment, SourceManual, SourceTransferIn, SourceTransferOut,
		SourceOpeningBalance, SourceSalary, SourceBonus, SourceBadDebt, SourceSale:
		return true
	}
	return false
}

// IsReserved reports whether s may only be written by the engine itself
// (transfers and treasury creation), never by an external producer.
func (s Source) IsReserved() bool {
	switch s {
	case SourceTransferIn, SourceTransferOut, SourceOpeningBalance:
		return true
	}
	return false
}

// Transaction is an immutable ledger row against one treasury.
type Transaction struct {
	ID           string
	TreasuryID   string
	Type         TransactionType
	Source       Source
	Amount       decimal.Decimal
	BalanceAfter decimal.Decimal
	Description  *string
	PairID       *string
	Sequence     int64
	CreatedAt    time.Time
	CreatedBy    string
}

// SignedAmount is the transaction's effect on its treasury's balance.
func (t *Transaction) SignedAmount() decimal.Decimal {
	return t.Type.Sign(t.Amount)
}

// IsTransferLeg reports whether the transaction is one leg of a transfer.
func (t *Transaction) IsTransferLeg() bool {
	return t.PairID != nil
}

// TransactionFilter selects transactions for statements and audit listing.
// StartDate is inclusive, EndDate exclusive.
type TransactionFilter struct {
	TreasuryID *string
	Type       *TransactionType
	Source     *Source
	PairID     *string
	StartDate  *time.Time
	EndDate    *time.Time
	Limit      int
	Offset     int
}
