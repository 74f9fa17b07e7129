package store

import (
	"context"
	"encoding/json"
	"testing"
)

func TestMemoryLedger_CheckoutGrantsPro(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()
	if err := l.RecordCheckout(ctx, "evt_1", "user-1", json.RawMessage(`{}`)); err != nil {
		t.Fatalf("record checkout: %v", err)
	}
	if err := l.RecordCheckout(ctx, "evt_1", "user-1", json.RawMessage(`{}`)); err != nil {
		t.Fatalf("replay checkout: %v", err)
	}
	if got := l.Tier("user-1"); got != TierPro {
		t.Fatalf("expected pro tier, got %q", got)
	}
	if l.Payments() != 1 {
		t.Fatalf("expected one payment, got %d", l.Payments())
	}
	if l.Tier("user-2") != "" {
		t.Fatal("other users should have no tier")
	}
}

func TestMemoryLedger_InvoiceUpserts(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()
	_ = l.RecordInvoice(ctx, "evt_inv", json.RawMessage(`{"v":1}`))
	_ = l.RecordInvoice(ctx, "evt_inv", json.RawMessage(`{"v":2}`))
	if l.Subscriptions() != 1 {
		t.Fatalf("expected one subscription row, got %d", l.Subscriptions())
	}
}
