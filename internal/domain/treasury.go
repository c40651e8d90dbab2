package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TreasuryType classifies a treasury.
type TreasuryType string

const (
	TreasuryTypeGeneral TreasuryType = "GENERAL"
	TreasuryTypeCompany TreasuryType = "COMPANY"
	TreasuryTypeBank    TreasuryType = "BANK"
)

// TreasuryTypes lists every treasury type in reporting order.
var TreasuryTypes = []TreasuryType{TreasuryTypeGeneral, TreasuryTypeCompany, TreasuryTypeBank}

// IsValid reports whether t is a known treasury type.
func (t TreasuryType) IsValid() bool {
	switch t {
	case TreasuryTypeGeneral, TreasuryTypeCompany, TreasuryTypeBank:
		return true
	}
	return false
}

// Treasury is a named cash or bank account with a cached running balance.
//
// Balance is a projection of the transaction log: it only changes together
// with an appended TreasuryTransaction, and Version counts those appends.
type Treasury struct {
	ID             string
	Name           string
	Type           TreasuryType
	CompanyID      *string
	BankName       *string
	AccountNumber  *string
	OpeningBalance decimal.Decimal
	Balance        decimal.Decimal
	Version        int64
	IsActive       bool
	CreatedBy      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ApplyPosting returns the balance after moving amount in direction.
// It fails with ErrInsufficientFunds when the result is negative and
// negatives are not allowed.
func (t *Treasury) ApplyPosting(direction TransactionType, amount decimal.Decimal, allowNegative bool) (decimal.Decimal, error) {
	newBalance := t.Balance.Add(direction.Sign(amount))
	if !allowNegative && newBalance.IsNegative() {
		return t.Balance, ErrInsufficientFunds
	}
	return newBalance, nil
}

// CanDelete reports whether the treasury may be hard-deleted given its
// transaction count.
func (t *Treasury) CanDelete(transactionCount int64) bool {
	return transactionCount == 0 && t.Balance.IsZero()
}

// PostingTime returns the createdAt for the next transaction, never earlier
// than the treasury's last change so createdAt order matches posting order.
func (t *Treasury) PostingTime(now time.Time) time.Time {
	if now.Before(t.UpdatedAt) {
		return t.UpdatedAt
	}
	return now
}

// TreasuryFilter selects treasuries for listing.
type TreasuryFilter struct {
	Type     *TreasuryType
	IsActive *bool
	Limit    int
	Offset   int
}

// TypeTotal is the aggregate for one treasury type.
type TypeTotal struct {
	Type    TreasuryType
	Count   int64
	Balance decimal.Decimal
}

// TreasuryStats groups cached balances by treasury type.
type TreasuryStats struct {
	ByType      []TypeTotal
	Total       decimal.Decimal
	Count       int64
	OnlyActive  bool
	GeneratedAt time.Time
}

// NewTreasuryStats fills in every treasury type, in reporting order, from
// per-type totals and sums them.
func NewTreasuryStats(totals []TypeTotal, onlyActive bool, at time.Time) *TreasuryStats {
	byType := make(map[TreasuryType]TypeTotal, len(totals))
	for _, t := range totals {
		byType[t.Type] = t
	}

	stats := &TreasuryStats{
		ByType:      make([]TypeTotal, 0, len(TreasuryTypes)),
		Total:       decimal.Zero,
		OnlyActive:  onlyActive,
		GeneratedAt: at,
	}
	for _, typ := range TreasuryTypes {
		t, ok := byType[typ]
		if !ok {
			t = TypeTotal{Type: typ, Balance: decimal.Zero}
		}
		stats.ByType = append(stats.ByType, t)
		stats.Total = stats.Total.Add(t.Balance)
		stats.Count += t.Count
	}
	return stats
}
