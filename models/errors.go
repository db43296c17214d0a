package models

import (
	"fmt"
	"strings"
)

// NegativeStockError is returned when a ledger write would drive an
// inventory unit's stock below zero. The transaction that raised it is
// rolled back in full.
type NegativeStockError struct {
	UnitId       int
	CurrentStock int
	Delta        int
}

func (e *NegativeStockError) Error() string {
	return fmt.Sprintf("inventory unit %d: movement of %d would drive stock below zero (current %d)",
		e.UnitId, e.Delta, e.CurrentStock)
}

// LineShortfall describes one order line that could not be covered
// during allocation.
type LineShortfall struct {
	LineId    int    `json:"line_id"`
	ProductId int    `json:"product_id"`
	Sku       string `json:"sku"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// InsufficientStockError is returned by ConfirmOrder when one or more
// lines cannot be fully allocated. It lists every short line, not just
// the first, so the caller can report the whole shortfall at once.
type InsufficientStockError struct {
	OrderId int
	Lines   []LineShortfall
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Lines))
	for _, l := range e.Lines {
		parts = append(parts, fmt.Sprintf("%s: requested %d, available %d", l.Sku, l.Requested, l.Available))
	}
	return fmt.Sprintf("order %d: insufficient stock (%s)", e.OrderId, strings.Join(parts, "; "))
}

// InvalidTransitionError is returned when a requested order status change
// is not in the transition table.
type InvalidTransitionError struct {
	OrderId   int
	Current   OrderStatus
	Requested OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %d: cannot transition from %s to %s", e.OrderId, e.Current, e.Requested)
}

// OverFulfillmentError is returned when a fulfillment would exceed the
// quantity still allocated to an order line.
type OverFulfillmentError struct {
	LineId    int
	Requested int
	Remaining int
}

func (e *OverFulfillmentError) Error() string {
	return fmt.Sprintf("order line %d: cannot fulfill %d, only %d allocated and unfulfilled", e.LineId, e.Requested, e.Remaining)
}
