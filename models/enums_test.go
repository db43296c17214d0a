package models_test

import (
	"testing"

	"github.com/yeboahd24/t-beauty/models"
)

var allOrderStatuses = []models.OrderStatus{
	models.OrderStatusPending,
	models.OrderStatusConfirmed,
	models.OrderStatusProcessing,
	models.OrderStatusPacked,
	models.OrderStatusShipped,
	models.OrderStatusDelivered,
	models.OrderStatusCancelled,
	models.OrderStatusReturned,
}

func TestOrderStatusTransitionTable(t *testing.T) {
	allowed := map[models.OrderStatus]map[models.OrderStatus]bool{
		models.OrderStatusPending: {
			models.OrderStatusConfirmed: true,
			models.OrderStatusCancelled: true,
		},
		models.OrderStatusConfirmed: {
			models.OrderStatusProcessing: true,
			models.OrderStatusShipped:    true,
			models.OrderStatusCancelled:  true,
		},
		models.OrderStatusProcessing: {
			models.OrderStatusPacked:    true,
			models.OrderStatusShipped:   true,
			models.OrderStatusCancelled: true,
		},
		models.OrderStatusPacked: {
			models.OrderStatusShipped:   true,
			models.OrderStatusCancelled: true,
		},
		models.OrderStatusShipped: {
			models.OrderStatusDelivered: true,
		},
		models.OrderStatusDelivered: {
			models.OrderStatusReturned: true,
		},
		models.OrderStatusCancelled: {},
		models.OrderStatusReturned:  {},
	}

	// Every pair, not just the allowed ones: the table must also forbid
	// everything it does not name (skipping states, going backwards,
	// self transitions).
	for _, from := range allOrderStatuses {
		for _, to := range allOrderStatuses {
			want := allowed[from][to]
			if got := from.CanTransition(to); got != want {
				t.Fatalf("CanTransition(%s -> %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

// Shipping does not require walking through every intermediate state;
// a confirmed or processing order may ship directly once payment and
// fulfillment allow it.
func TestShippingAllowedFromConfirmedOnward(t *testing.T) {
	for _, from := range []models.OrderStatus{
		models.OrderStatusConfirmed,
		models.OrderStatusProcessing,
		models.OrderStatusPacked,
	} {
		if !from.CanTransition(models.OrderStatusShipped) {
			t.Fatalf("CanTransition(%s -> shipped) = false, want true", from)
		}
	}
	if models.OrderStatusPending.CanTransition(models.OrderStatusShipped) {
		t.Fatal("CanTransition(pending -> shipped) = true, want false")
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range allOrderStatuses {
		wantTerminal := s == models.OrderStatusCancelled || s == models.OrderStatusReturned
		if got := s.IsTerminal(); got != wantTerminal {
			t.Fatalf("IsTerminal(%s) = %v, want %v", s, got, wantTerminal)
		}
	}
}

func TestIsPreShipment(t *testing.T) {
	pre := map[models.OrderStatus]bool{
		models.OrderStatusPending:    true,
		models.OrderStatusConfirmed:  true,
		models.OrderStatusProcessing: true,
		models.OrderStatusPacked:     true,
	}
	for _, s := range allOrderStatuses {
		if got := s.IsPreShipment(); got != pre[s] {
			t.Fatalf("IsPreShipment(%s) = %v, want %v", s, got, pre[s])
		}
	}
}

func TestPaymentStatusAllowsShipping(t *testing.T) {
	cases := []struct {
		status models.PaymentStatus
		want   bool
	}{
		{models.PaymentStatusPending, false},
		{models.PaymentStatusPartial, true},
		{models.PaymentStatusPaid, true},
		{models.PaymentStatusRefunded, false},
		{models.PaymentStatusCancelled, false},
	}
	for _, tc := range cases {
		if got := tc.status.AllowsShipping(); got != tc.want {
			t.Fatalf("AllowsShipping(%s) = %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestParseRejectsUnknownValues(t *testing.T) {
	if _, err := models.ParseOrderStatus("archived"); err == nil {
		t.Fatal("ParseOrderStatus accepted unknown value")
	}
	if _, err := models.ParsePaymentStatus("overdue"); err == nil {
		t.Fatal("ParsePaymentStatus accepted unknown value")
	}
	if _, err := models.ParseOrderSource("tiktok"); err == nil {
		t.Fatal("ParseOrderSource accepted unknown value")
	}
	if _, err := models.ParseStockMovementReason("shrinkage"); err == nil {
		t.Fatal("ParseStockMovementReason accepted unknown value")
	}
}

func TestParseAcceptsEveryOrderStatus(t *testing.T) {
	for _, s := range allOrderStatuses {
		parsed, err := models.ParseOrderStatus(string(s))
		if err != nil {
			t.Fatalf("ParseOrderStatus(%s): %v", s, err)
		}
		if parsed != s {
			t.Fatalf("ParseOrderStatus(%s) = %s", s, parsed)
		}
	}
}
