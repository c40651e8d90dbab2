package domain

import "github.com/shopspring/decimal"

// Mismatch is the first transaction whose stored BalanceAfter disagrees with
// the replayed running balance.
type Mismatch struct {
	TransactionID string
	Sequence      int64
	Stored        decimal.Decimal
	Replayed      decimal.Decimal
}

// ReplayResult is the outcome of replaying a treasury's history from zero.
type ReplayResult struct {
	Final         decimal.Decimal
	OpeningPosted decimal.Decimal
	Count         int
	FirstMismatch *Mismatch
}

// Replay folds transactions, oldest first, into a running balance starting at
// zero and checks every stored BalanceAfter against it.
func Replay(transactions []*Transaction) ReplayResult {
	result := ReplayResult{Final: decimal.Zero, OpeningPosted: decimal.Zero}

	for _, tx := range transactions {
		signed := tx.SignedAmount()
		result.Final = result.Final.Add(signed)
		result.Count++

		if tx.Source == SourceOpeningBalance {
			result.OpeningPosted = result.OpeningPosted.Add(signed)
		}

		if result.FirstMismatch == nil && !tx.BalanceAfter.Equal(result.Final) {
			result.FirstMismatch = &Mismatch{
				TransactionID: tx.ID,
				Sequence:      tx.Sequence,
				Stored:        tx.BalanceAfter,
				Replayed:      result.Final,
			}
		}
	}

	return result
}
