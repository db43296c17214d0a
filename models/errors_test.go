package models_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/yeboahd24/t-beauty/models"
)

func TestInsufficientStockErrorListsEveryShortLine(t *testing.T) {
	err := &models.InsufficientStockError{
		OrderId: 42,
		Lines: []models.LineShortfall{
			{LineId: 1, Sku: "LIP-001", Requested: 12, Available: 7},
			{LineId: 2, Sku: "GLO-003", Requested: 2, Available: 0},
		},
	}

	want := "order 42: insufficient stock (LIP-001: requested 12, available 7; GLO-003: requested 2, available 0)"
	if err.Error() != want {
		t.Fatalf("got %q, want %q", err.Error(), want)
	}
}

func TestInvalidTransitionErrorMessage(t *testing.T) {
	err := &models.InvalidTransitionError{
		OrderId:   7,
		Current:   models.OrderStatusShipped,
		Requested: models.OrderStatusCancelled,
	}
	want := "order 7: cannot transition from shipped to cancelled"
	if err.Error() != want {
		t.Fatalf("got %q, want %q", err.Error(), want)
	}
}

func TestNegativeStockErrorMessage(t *testing.T) {
	err := &models.NegativeStockError{UnitId: 3, CurrentStock: 2, Delta: -5}
	want := "inventory unit 3: movement of -5 would drive stock below zero (current 2)"
	if err.Error() != want {
		t.Fatalf("got %q, want %q", err.Error(), want)
	}
}

func TestEngineErrorsUnwrapWithAs(t *testing.T) {
	var wrapped error = fmt.Errorf("confirm: %w", &models.InsufficientStockError{OrderId: 1})

	var target *models.InsufficientStockError
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As failed to find InsufficientStockError")
	}
	if target.OrderId != 1 {
		t.Fatalf("OrderId = %d, want 1", target.OrderId)
	}
}
