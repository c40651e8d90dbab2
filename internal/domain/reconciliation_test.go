package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func row(id string, seq int64, typ TransactionType, source Source, amount, after int64) *Transaction {
	return &Transaction{
		ID:           id,
		Sequence:     seq,
		Type:         typ,
		Source:       source,
		Amount:       decimal.NewFromInt(amount),
		BalanceAfter: decimal.NewFromInt(after),
	}
}

func TestReplay(t *testing.T) {
	history := []*Transaction{
		row("t1", 1, TransactionTypeDeposit, SourceOpeningBalance, 1000, 1000),
		row("t2", 2, TransactionTypeDeposit, SourceReceipt, 300, 1300),
		row("t3", 3, TransactionTypeWithdrawal, SourceTransferOut, 500, 800),
	}

	result := Replay(history)

	if !result.Final.Equal(decimal.NewFromInt(800)) {
		t.Errorf("expected final 800, got %s", result.Final)
	}
	if !result.OpeningPosted.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("expected opening 1000, got %s", result.OpeningPosted)
	}
	if result.Count != 3 || result.FirstMismatch != nil {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestReplay_ReportsFirstMismatch(t *testing.T) {
	history := []*Transaction{
		row("t1", 1, TransactionTypeDeposit, SourceManual, 100, 100),
		row("t2", 2, TransactionTypeDeposit, SourceManual, 50, 175),
		row("t3", 3, TransactionTypeWithdrawal, SourceManual, 25, 100),
	}

	result := Replay(history)

	if result.FirstMismatch == nil {
		t.Fatal("expected a mismatch")
	}
	if result.FirstMismatch.TransactionID != "t2" || !result.FirstMismatch.Replayed.Equal(decimal.NewFromInt(150)) {
		t.Errorf("unexpected mismatch %+v", result.FirstMismatch)
	}
	if !result.Final.Equal(decimal.NewFromInt(125)) {
		t.Errorf("expected final 125, got %s", result.Final)
	}
}

func TestReplay_Empty(t *testing.T) {
	result := Replay(nil)
	if !result.Final.IsZero() || result.Count != 0 {
		t.Errorf("unexpected result %+v", result)
	}
}
