package domain

import "time"

// Event types
const (
	EventTypeTreasuryCreated     = "treasury.created"
	EventTypeTreasuryDeactivated = "treasury.deactivated"
	EventTypeTreasuryActivated   = "treasury.activated"
	EventTypeTreasuryDeleted     = "treasury.deleted"
	EventTypeTransactionPosted   = "transaction.posted"
	EventTypeTransferCompleted   = "transfer.completed"
)

// Aggregate types
const (
	AggregateTypeTreasury    = "treasury"
	AggregateTypeTransaction = "transaction"
	AggregateTypeTransfer    = "transfer"
)

// OutboxEvent represents an event to be published
type OutboxEvent struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       map[string]any
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Published     bool
}

// TransactionPostedPayload builds the payload of a transaction.posted event.
func TransactionPostedPayload(tx *Transaction) map[string]any {
	payload := map[string]any{
		"transaction_id": tx.ID,
		"treasury_id":    tx.TreasuryID,
		"type":           string(tx.Type),
		"source":         string(tx.Source),
		"amount":         tx.Amount.String(),
		"balance_after":  tx.BalanceAfter.String(),
		"created_by":     tx.CreatedBy,
	}
	if tx.PairID != nil {
		payload["pair_id"] = *tx.PairID
	}
	return payload
}

// TreasuryPayload builds the payload of a treasury lifecycle event.
func TreasuryPayload(t *Treasury) map[string]any {
	return map[string]any{
		"treasury_id": t.ID,
		"name":        t.Name,
		"type":        string(t.Type),
		"balance":     t.Balance.String(),
		"is_active":   t.IsActive,
	}
}
