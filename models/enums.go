package models

import (
	"errors"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusPacked     OrderStatus = "packed"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusReturned   OrderStatus = "returned"
)

// orderStatusTransitions is the closed transition table for orders.
// A status mapping to an empty slice is terminal. Cancellation is driven
// by CancelOrder, not UpdateOrderStatus, but it is listed here so the
// table stays the single source of truth for the whole machine.
var orderStatusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusShipped, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusPacked, OrderStatusShipped, OrderStatusCancelled},
	OrderStatusPacked:     {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
	OrderStatusDelivered:  {OrderStatusReturned},
	OrderStatusCancelled:  {},
	OrderStatusReturned:   {},
}

// CanTransition reports whether the order status machine allows moving
// from s to next.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	for _, allowed := range orderStatusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsPreShipment reports whether the order has not left the warehouse yet.
// Cancellation is only allowed in these states.
func (s OrderStatus) IsPreShipment() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing, OrderStatusPacked:
		return true
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return len(orderStatusTransitions[s]) == 0
}

func ParseOrderStatus(str string) (OrderStatus, error) {
	orderStatuses := map[string]OrderStatus{
		"pending":    OrderStatusPending,
		"confirmed":  OrderStatusConfirmed,
		"processing": OrderStatusProcessing,
		"packed":     OrderStatusPacked,
		"shipped":    OrderStatusShipped,
		"delivered":  OrderStatusDelivered,
		"cancelled":  OrderStatusCancelled,
		"returned":   OrderStatusReturned,
	}
	s, ok := orderStatuses[str]
	if !ok {
		return "", errors.New("invalid order status")
	}
	return s, nil
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPartial   PaymentStatus = "partial"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusRefunded  PaymentStatus = "refunded"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// AllowsShipping reports whether an order with this payment status may
// be shipped. Partially paid orders ship; fully unpaid ones do not.
func (p PaymentStatus) AllowsShipping() bool {
	return p == PaymentStatusPaid || p == PaymentStatusPartial
}

func ParsePaymentStatus(str string) (PaymentStatus, error) {
	paymentStatuses := map[string]PaymentStatus{
		"pending":   PaymentStatusPending,
		"partial":   PaymentStatusPartial,
		"paid":      PaymentStatusPaid,
		"refunded":  PaymentStatusRefunded,
		"cancelled": PaymentStatusCancelled,
	}
	p, ok := paymentStatuses[str]
	if !ok {
		return "", errors.New("invalid payment status")
	}
	return p, nil
}

type OrderSource string

const (
	OrderSourceInstagram OrderSource = "instagram"
	OrderSourceWebsite   OrderSource = "website"
	OrderSourcePhone     OrderSource = "phone"
	OrderSourceWalkIn    OrderSource = "walk_in"
)

func ParseOrderSource(str string) (OrderSource, error) {
	orderSources := map[string]OrderSource{
		"instagram": OrderSourceInstagram,
		"website":   OrderSourceWebsite,
		"phone":     OrderSourcePhone,
		"walk_in":   OrderSourceWalkIn,
	}
	s, ok := orderSources[str]
	if !ok {
		return "", errors.New("invalid order source")
	}
	return s, nil
}

// StockMovementReason classifies every stock ledger entry. The ledger is
// append-only; a wrong movement is corrected by a compensating entry with
// the opposite sign, never by editing history.
type StockMovementReason string

const (
	StockMovementReceipt      StockMovementReason = "receipt"
	StockMovementAllocation   StockMovementReason = "allocation"
	StockMovementDeallocation StockMovementReason = "deallocation"
	StockMovementFulfillment  StockMovementReason = "fulfillment"
	StockMovementAdjustment   StockMovementReason = "adjustment"
	StockMovementReturn       StockMovementReason = "return"
)

func ParseStockMovementReason(str string) (StockMovementReason, error) {
	reasons := map[string]StockMovementReason{
		"receipt":      StockMovementReceipt,
		"allocation":   StockMovementAllocation,
		"deallocation": StockMovementDeallocation,
		"fulfillment":  StockMovementFulfillment,
		"adjustment":   StockMovementAdjustment,
		"return":       StockMovementReturn,
	}
	r, ok := reasons[str]
	if !ok {
		return "", errors.New("invalid stock movement reason")
	}
	return r, nil
}

type DiscountType string

const (
	DiscountTypePercentage DiscountType = "P"
	DiscountTypeFlat       DiscountType = "F"
)

type UserRole string

const (
	UserRoleAdmin UserRole = "Admin"
	UserRoleStaff UserRole = "Staff"
)

type PubSubMessageAction string

const (
	PubSubMessageActionCreate PubSubMessageAction = "C"
	PubSubMessageActionUpdate PubSubMessageAction = "U"
	PubSubMessageActionDelete PubSubMessageAction = "D"
)

type ReferenceType string

const (
	ReferenceTypeOrders         ReferenceType = "orders"
	ReferenceTypeOrderLines     ReferenceType = "order_lines"
	ReferenceTypeInventoryUnits ReferenceType = "inventory_units"
	ReferenceTypeStockLedger    ReferenceType = "stock_ledger_entries"
	ReferenceTypeReorderAlerts  ReferenceType = "reorder_alerts"
	ReferenceTypeCustomers      ReferenceType = "customers"
	ReferenceTypeProducts       ReferenceType = "products"
)
