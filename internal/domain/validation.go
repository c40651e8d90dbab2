package domain

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Validation constants
const (
	MaxTreasuryNameLength  = 255
	MaxBankNameLength      = 255
	MaxAccountNumberLength = 64
	MaxDescriptionLength   = 500
	MaxPostingAmount       = "1000000000000" // 1 trillion
	DefaultPageSize        = 20
	MaxPageSize            = 100
)

var maxPostingAmount = decimal.RequireFromString(MaxPostingAmount)

// ValidateTreasuryName validates a treasury name.
func ValidateTreasuryName(name string) error {
	name = strings.TrimSpace(name)

	if name == "" {
		return Validationf("name cannot be empty")
	}

	if utf8.RuneCountInString(name) > MaxTreasuryNameLength {
		return Validationf("name exceeds %d characters", MaxTreasuryNameLength)
	}

	return nil
}

// ValidateAmount validates a posting or transfer amount.
func ValidateAmount(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}

	if amount.GreaterThan(maxPostingAmount) {
		return Validationf("amount exceeds maximum of %s", MaxPostingAmount)
	}

	return nil
}

// ValidateDescription validates an optional description.
func ValidateDescription(description *string) error {
	if description == nil {
		return nil
	}

	if utf8.RuneCountInString(*description) > MaxDescriptionLength {
		return Validationf("description exceeds %d characters", MaxDescriptionLength)
	}

	return nil
}

// ValidateTreasuryFields checks the type-specific required fields of a new
// treasury. Company existence is checked by the registry.
func ValidateTreasuryFields(t TreasuryType, companyID, bankName, accountNumber *string) error {
	if !t.IsValid() {
		return Validationf("unknown treasury type %q", t)
	}

	switch t {
	case TreasuryTypeCompany:
		if isBlank(companyID) {
			return Validationf("company id is required for %s treasuries", t)
		}
		if bankName != nil || accountNumber != nil {
			return Validationf("bank details are only allowed on %s treasuries", TreasuryTypeBank)
		}
	case TreasuryTypeBank:
		if isBlank(bankName) {
			return Validationf("bank name is required for %s treasuries", t)
		}
		if utf8.RuneCountInString(*bankName) > MaxBankNameLength {
			return Validationf("bank name exceeds %d characters", MaxBankNameLength)
		}
		if accountNumber != nil && utf8.RuneCountInString(*accountNumber) > MaxAccountNumberLength {
			return Validationf("account number exceeds %d characters", MaxAccountNumberLength)
		}
		if companyID != nil {
			return Validationf("company id is only allowed on %s treasuries", TreasuryTypeCompany)
		}
	case TreasuryTypeGeneral:
		if companyID != nil || bankName != nil || accountNumber != nil {
			return Validationf("%s treasuries take no company or bank details", t)
		}
	}

	return nil
}

// ValidatePagination normalizes a 1-based page and page size into limit/offset.
func ValidatePagination(page, limit int) (int, int, int) {
	if page < 1 {
		page = 1
	}

	if limit <= 0 {
		limit = DefaultPageSize
	}

	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	// Keep (page-1)*limit within int.
	if maxPage := math.MaxInt / limit; page > maxPage {
		page = maxPage
	}

	return page, limit, (page - 1) * limit
}

func isBlank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}
