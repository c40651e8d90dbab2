package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the treasury engine wraps exactly one of these.
var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrInactiveTreasury  = errors.New("treasury is inactive")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrSameTreasury      = errors.New("cannot transfer to the same treasury")
	ErrConflict          = errors.New("conflict")
)

var (
	// Treasury errors
	ErrTreasuryNotFound = fmt.Errorf("treasury %w", ErrNotFound)
	ErrCompanyNotFound  = fmt.Errorf("company %w", ErrNotFound)
	ErrTreasuryInUse    = fmt.Errorf("%w: treasury has transaction history or a non-zero balance", ErrConflict)

	// Transaction errors
	ErrTransactionNotFound = fmt.Errorf("transaction %w", ErrNotFound)
	ErrTransferNotFound    = fmt.Errorf("transfer %w", ErrNotFound)
	ErrInvalidAmount       = fmt.Errorf("%w: amount must be positive", ErrValidation)
)

// ErrorKind names the class of a domain error.
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindNotFound          ErrorKind = "not_found"
	KindInactiveTreasury  ErrorKind = "inactive_treasury"
	KindInsufficientFunds ErrorKind = "insufficient_funds"
	KindSameTreasury      ErrorKind = "same_treasury"
	KindConflict          ErrorKind = "conflict"
	KindInternal          ErrorKind = "internal"
)

// KindOf classifies err. Errors outside the domain set are KindInternal.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInactiveTreasury):
		return KindInactiveTreasury
	case errors.Is(err, ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, ErrSameTreasury):
		return KindSameTreasury
	case errors.Is(err, ErrConflict):
		return KindConflict
	default:
		return KindInternal
	}
}

// Validationf builds an ErrValidation with a formatted detail.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
