package domain

import (
	"fmt"
	"strings"
)

// OverdraftPolicy decides per treasury type whether a balance may go negative.
// The zero value forbids negatives for every type.
type OverdraftPolicy struct {
	allowed map[TreasuryType]bool
}

// NewOverdraftPolicy allows negative balances for the given types.
func NewOverdraftPolicy(types ...TreasuryType) OverdraftPolicy {
	allowed := make(map[TreasuryType]bool, len(types))
	for _, t := range types {
		allowed[t] = true
	}
	return OverdraftPolicy{allowed: allowed}
}

// ParseOverdraftPolicy parses a list like ["BANK"] (case-insensitive).
func ParseOverdraftPolicy(values []string) (OverdraftPolicy, error) {
	types := make([]TreasuryType, 0, len(values))
	for _, v := range values {
		v = strings.ToUpper(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		t := TreasuryType(v)
		if !t.IsValid() {
			return OverdraftPolicy{}, fmt.Errorf("unknown treasury type %q in overdraft policy", v)
		}
		types = append(types, t)
	}
	return NewOverdraftPolicy(types...), nil
}

// AllowsNegative reports whether treasuries of type t may go negative.
func (p OverdraftPolicy) AllowsNegative(t TreasuryType) bool {
	return p.allowed[t]
}
