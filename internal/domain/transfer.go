package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transfer is the pair of linked legs moving money between two treasuries.
type Transfer struct {
	PairID         string
	FromTreasuryID string
	ToTreasuryID   string
	Amount         decimal.Decimal
	Withdrawal     *Transaction
	Deposit        *Transaction
	CreatedAt      time.Time
}

// TransferFromLegs rebuilds a transfer from the rows sharing one pair id.
func TransferFromLegs(pairID string, legs []*Transaction) (*Transfer, error) {
	if len(legs) != 2 {
		return nil, ErrTransferNotFound
	}

	transfer := &Transfer{PairID: pairID}
	for _, leg := range legs {
		switch leg.Type {
		case TransactionTypeWithdrawal:
			transfer.Withdrawal = leg
		case TransactionTypeDeposit:
			transfer.Deposit = leg
		}
	}
	if transfer.Withdrawal == nil || transfer.Deposit == nil {
		return nil, ErrTransferNotFound
	}

	transfer.FromTreasuryID = transfer.Withdrawal.TreasuryID
	transfer.ToTreasuryID = transfer.Deposit.TreasuryID
	transfer.Amount = transfer.Withdrawal.Amount
	transfer.CreatedAt = transfer.Withdrawal.CreatedAt
	return transfer, nil
}

// TransferCompletedPayload builds the payload of a transfer.completed event.
func TransferCompletedPayload(t *Transfer) map[string]any {
	return map[string]any{
		"pair_id":          t.PairID,
		"from_treasury_id": t.FromTreasuryID,
		"to_treasury_id":   t.ToTreasuryID,
		"amount":           t.Amount.String(),
		"withdrawal_id":    t.Withdrawal.ID,
		"deposit_id":       t.Deposit.ID,
	}
}
