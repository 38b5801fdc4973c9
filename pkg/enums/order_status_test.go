package enums

import "testing"

func TestOrderStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		allowed  bool
	}{
		{OrderStatusPending, OrderStatusPaid, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusPaid, OrderStatusShipped, true},
		{OrderStatusShipped, OrderStatusDelivered, true},
		{OrderStatusPaid, OrderStatusCancelled, false},
		{OrderStatusPending, OrderStatusShipped, false},
		{OrderStatusCancelled, OrderStatusPaid, false},
		{OrderStatusDelivered, OrderStatusShipped, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.allowed {
			t.Fatalf("%s -> %s expected %v got %v", tt.from, tt.to, tt.allowed, got)
		}
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	if !OrderStatusDelivered.IsTerminal() || !OrderStatusCancelled.IsTerminal() {
		t.Fatalf("delivered and cancelled must be terminal")
	}
	if OrderStatusPending.IsTerminal() {
		t.Fatalf("pending is not terminal")
	}
}

func TestParseOrderStatus(t *testing.T) {
	if _, err := ParseOrderStatus("PAID"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ParseOrderStatus("paid"); err == nil {
		t.Fatalf("expected case-sensitive parse to fail")
	}
}

func TestOrderEventFor(t *testing.T) {
	if ev, ok := OrderEventFor(OrderStatusPaid); !ok || ev != OrderEventPaid {
		t.Fatalf("unexpected event %q", ev)
	}
	if _, ok := OrderEventFor(OrderStatusPending); ok {
		t.Fatalf("pending has no event")
	}
}

func TestPaymentStatusTransitions(t *testing.T) {
	if !PaymentStatusPending.CanTransitionTo(PaymentStatusSuccess) || !PaymentStatusPending.CanTransitionTo(PaymentStatusFailed) {
		t.Fatal("expected pending to settle")
	}
	if PaymentStatusSuccess.CanTransitionTo(PaymentStatusFailed) || PaymentStatusFailed.CanTransitionTo(PaymentStatusPending) {
		t.Fatal("expected settled attempts to be final")
	}
	if PaymentStatusPending.CanTransitionTo(PaymentStatusPending) {
		t.Fatal("expected no self transition")
	}
}
