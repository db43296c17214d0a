package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yeboahd24/t-beauty/config"
	"github.com/yeboahd24/t-beauty/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Order struct {
	ID                 int             `gorm:"primary_key" json:"id"`
	OwnerId            string          `gorm:"size:64;index;not null" json:"owner_id"`
	OrderNumber        string          `gorm:"size:30;not null;index:uniq_order_number,unique" json:"order_number"`
	CustomerId         int             `gorm:"not null;index" json:"customer_id"`
	Customer           *Customer       `json:"customer,omitempty"`
	Status             OrderStatus     `gorm:"type:enum('pending','confirmed','processing','packed','shipped','delivered','cancelled','returned');not null;default:'pending';index" json:"status"`
	PaymentStatus      PaymentStatus   `gorm:"type:enum('pending','partial','paid','refunded','cancelled');not null;default:'pending';index" json:"payment_status"`
	Subtotal           decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"subtotal"`
	DiscountAmount     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"discount_amount"`
	TaxAmount          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tax_amount"`
	ShippingCost       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"shipping_cost"`
	TotalAmount        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total_amount"`
	AmountPaid         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount_paid"`
	PaymentMethod      string          `gorm:"size:50" json:"payment_method"`
	PaymentReference   string          `gorm:"size:100" json:"payment_reference"`
	ShippingAddress    string          `gorm:"type:text" json:"shipping_address"`
	ShippingCity       string          `gorm:"size:100" json:"shipping_city"`
	ShippingRegion     string          `gorm:"size:100" json:"shipping_region"`
	ShippingCountry    string          `gorm:"size:100" json:"shipping_country"`
	DeliveryMethod     string          `gorm:"size:50" json:"delivery_method"`
	TrackingNumber     string          `gorm:"size:100" json:"tracking_number"`
	Courier            string          `gorm:"size:100" json:"courier"`
	Source             OrderSource     `gorm:"type:enum('instagram','website','phone','walk_in');not null;default:'instagram'" json:"source"`
	InstagramPostUrl   string          `gorm:"size:255" json:"instagram_post_url"`
	CustomerNotes      string          `gorm:"type:text" json:"customer_notes"`
	InternalNotes      string          `gorm:"type:text" json:"internal_notes"`
	CancellationReason string          `gorm:"size:255" json:"cancellation_reason"`
	ConfirmedAt        *time.Time      `json:"confirmed_at"`
	ShippedAt          *time.Time      `json:"shipped_at"`
	DeliveredAt        *time.Time      `json:"delivered_at"`
	CancelledAt        *time.Time      `json:"cancelled_at"`
	Lines              []*OrderLine    `json:"lines"`
	CreatedAt          time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type OrderLine struct {
	ID             int             `gorm:"primary_key" json:"id"`
	OrderId        int             `gorm:"not null;index" json:"order_id"`
	ProductId      int             `gorm:"not null;index" json:"product_id"`
	ProductName    string          `gorm:"size:255;not null" json:"product_name"` // snapshot at order time
	ProductSku     string          `gorm:"size:100;not null" json:"product_sku"`
	Quantity       int             `gorm:"not null" json:"quantity"`
	UnitPrice      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"discount_amount"`
	TotalPrice     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total_price"`
	PreferredColor *string         `gorm:"size:50" json:"preferred_color"`
	PreferredShade *string         `gorm:"size:50" json:"preferred_shade"`
	PreferredSize  *string         `gorm:"size:50" json:"preferred_size"`
	AllocatedQty   int             `gorm:"column:allocated_quantity;not null;default:0" json:"allocated_quantity"`
	FulfilledQty   int             `gorm:"column:fulfilled_quantity;not null;default:0" json:"fulfilled_quantity"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (l OrderLine) preferences() LinePreferences {
	return LinePreferences{Color: l.PreferredColor, Shade: l.PreferredShade, Size: l.PreferredSize}
}

type NewOrderLine struct {
	ProductId      int              `json:"product_id" binding:"required"`
	Quantity       int              `json:"quantity" binding:"required"`
	UnitPrice      *decimal.Decimal `json:"unit_price"` // defaults to the product's base price
	DiscountAmount decimal.Decimal  `json:"discount_amount"`
	PreferredColor *string          `json:"preferred_color"`
	PreferredShade *string          `json:"preferred_shade"`
	PreferredSize  *string          `json:"preferred_size"`
}

type NewOrder struct {
	CustomerId       int             `json:"customer_id" binding:"required"`
	Lines            []*NewOrderLine `json:"lines" binding:"required"`
	DiscountAmount   decimal.Decimal `json:"discount_amount"`
	TaxAmount        decimal.Decimal `json:"tax_amount"`
	ShippingCost     decimal.Decimal `json:"shipping_cost"`
	PaymentMethod    string          `json:"payment_method"`
	ShippingAddress  string          `json:"shipping_address"`
	ShippingCity     string          `json:"shipping_city"`
	ShippingRegion   string          `json:"shipping_region"`
	ShippingCountry  string          `json:"shipping_country"`
	DeliveryMethod   string          `json:"delivery_method"`
	Source           OrderSource     `json:"source"`
	InstagramPostUrl string          `json:"instagram_post_url"`
	CustomerNotes    string          `json:"customer_notes"`
	InternalNotes    string          `json:"internal_notes"`
}

type OrdersEdge Edge[Order]
type OrdersConnection struct {
	Edges    []*OrdersEdge `json:"edges"`
	PageInfo *PageInfo     `json:"pageInfo"`
}

func (o Order) GetOwnerId() string {
	return o.OwnerId
}

func (o Order) GetId() int {
	return o.ID
}

func (o Order) GetCursor() string {
	return o.CreatedAt.Format("2006-01-02 15:04:05.000000")
}

// CanBeShipped mirrors the shipping gate: the order is in a shippable
// state and at least partially paid.
func (o Order) CanBeShipped() bool {
	switch o.Status {
	case OrderStatusConfirmed, OrderStatusProcessing, OrderStatusPacked:
		return o.PaymentStatus.AllowsShipping()
	}
	return false
}

// generateOrderNumber builds "TB-YYYYMMDD-XXXXXXXX" with an 8 character
// uppercase uuid fragment.
func generateOrderNumber(now time.Time) string {
	fragment := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return fmt.Sprintf("TB-%s-%s", now.Format("20060102"), fragment)
}

func (input *NewOrder) validate(ctx context.Context, ownerId string) error {
	if len(input.Lines) == 0 {
		return errors.New("order needs at least one line")
	}
	if err := utils.ValidateResourceId[Customer](ctx, ownerId, input.CustomerId); err != nil {
		return errors.New("customer not found")
	}
	seen := make(map[int]bool, len(input.Lines))
	for _, line := range input.Lines {
		if line.Quantity <= 0 {
			return errors.New("line quantity must be positive")
		}
		if seen[line.ProductId] {
			return errors.New("duplicate product on order")
		}
		seen[line.ProductId] = true
		if err := utils.ValidateResourceId[Product](ctx, ownerId, line.ProductId); err != nil {
			return fmt.Errorf("product %d not found", line.ProductId)
		}
	}
	if input.Source == "" {
		input.Source = OrderSourceInstagram
	}
	return nil
}

// CreateOrder validates, snapshots product names and prices, computes
// totals and stores the order as pending with zero allocation. No stock
// moves here; stock is claimed at confirmation.
func CreateOrder(ctx context.Context, input *NewOrder) (*Order, error) {
	db := config.GetDB()

	ownerId, ok := utils.GetOwnerIdFromContext(ctx)
	if !ok || ownerId == "" {
		return nil, errors.New("owner id is required")
	}

	if err := input.validate(ctx, ownerId); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	order := Order{
		OwnerId:          ownerId,
		OrderNumber:      generateOrderNumber(now),
		CustomerId:       input.CustomerId,
		Status:           OrderStatusPending,
		PaymentStatus:    PaymentStatusPending,
		DiscountAmount:   input.DiscountAmount,
		TaxAmount:        input.TaxAmount,
		ShippingCost:     input.ShippingCost,
		PaymentMethod:    input.PaymentMethod,
		ShippingAddress:  input.ShippingAddress,
		ShippingCity:     input.ShippingCity,
		ShippingRegion:   input.ShippingRegion,
		ShippingCountry:  input.ShippingCountry,
		DeliveryMethod:   input.DeliveryMethod,
		Source:           input.Source,
		InstagramPostUrl: input.InstagramPostUrl,
		CustomerNotes:    input.CustomerNotes,
		InternalNotes:    input.InternalNotes,
	}

	subtotal := decimal.Zero
	for _, lineInput := range input.Lines {
		product, err := GetProduct(ctx, lineInput.ProductId)
		if err != nil {
			return nil, err
		}
		unitPrice := product.BasePrice
		if lineInput.UnitPrice != nil {
			unitPrice = *lineInput.UnitPrice
		}
		lineTotal := utils.CalculateLineSubtotal(unitPrice, lineInput.Quantity).Sub(lineInput.DiscountAmount)
		if lineTotal.IsNegative() {
			return nil, errors.New("line discount exceeds line total")
		}
		order.Lines = append(order.Lines, &OrderLine{
			ProductId:      product.ID,
			ProductName:    product.Name,
			ProductSku:     product.Sku,
			Quantity:       lineInput.Quantity,
			UnitPrice:      unitPrice,
			DiscountAmount: lineInput.DiscountAmount,
			TotalPrice:     lineTotal,
			PreferredColor: lineInput.PreferredColor,
			PreferredShade: lineInput.PreferredShade,
			PreferredSize:  lineInput.PreferredSize,
		})
		subtotal = subtotal.Add(lineTotal)
	}

	order.Subtotal = subtotal
	order.TotalAmount = subtotal.Sub(order.DiscountAmount).Add(order.TaxAmount).Add(order.ShippingCost)
	if order.TotalAmount.IsNegative() {
		return nil, errors.New("order discount exceeds order total")
	}

	tx := db.Begin()
	if err := tx.WithContext(ctx).Create(&order).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := PublishDomainEvent(ctx, tx, ownerId, now, fmt.Sprint(order.ID), ReferenceTypeOrders, &order, nil, PubSubMessageActionCreate); err != nil {
		tx.Rollback()
		return nil, err
	}

	return &order, tx.Commit().Error
}

// lockCandidateUnits loads and row-locks every allocatable unit of the
// product inside tx. Locking happens in id order before any ranking so
// competing confirms serialize without deadlocking.
func lockCandidateUnits(ctx context.Context, tx *gorm.DB, ownerId string, productId int) ([]*InventoryUnit, error) {
	var units []*InventoryUnit
	if err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("owner_id = ? AND product_id = ?", ownerId, productId).
		Where("is_active = true AND is_discontinued = false AND current_stock > 0").
		Order("id").
		Find(&units).Error; err != nil {
		return nil, err
	}
	return units, nil
}

// ConfirmOrder allocates stock for every line and moves the order to
// confirmed. Default behavior is all-or-nothing: any shortfall rolls the
// whole transaction back and the order stays pending. When partial
// allocation is enabled (feature flag plus caller opt-in) short lines
// are allocated as far as stock goes and the rest is left on back-order.
func ConfirmOrder(ctx context.Context, orderId int, allowPartial bool) (*Order, error) {
	db := config.GetDB()

	ownerId, ok := utils.GetOwnerIdFromContext(ctx)
	if !ok || ownerId == "" {
		return nil, errors.New("owner id is required")
	}

	partial := allowPartial && config.AllowPartialAllocation()

	tx := db.Begin()

	var order Order
	if err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("owner_id = ?", ownerId).First(&order, orderId).Error; err != nil {
		tx.Rollback()
		return nil, utils.ErrorRecordNotFound
	}
	if err := tx.WithContext(ctx).Where("order_id = ?", order.ID).Order("id").Find(&order.Lines).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if order.Status != OrderStatusPending {
		tx.Rollback()
		return nil, &InvalidTransitionError{OrderId: order.ID, Current: order.Status, Requested: OrderStatusConfirmed}
	}

	// lock candidates per product once; lines of the same product share
	// the loaded set so in-transaction stock mutations carry over
	unitsByProduct := make(map[int][]*InventoryUnit, len(order.Lines))
	for _, line := range order.Lines {
		if _, done := unitsByProduct[line.ProductId]; done {
			continue
		}
		units, err := lockCandidateUnits(ctx, tx, ownerId, line.ProductId)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		unitsByProduct[line.ProductId] = units
	}

	type linePlan struct {
		line *OrderLine
		plan []PlannedAllocation
	}
	plans := make([]linePlan, 0, len(order.Lines))
	shortfalls := make([]LineShortfall, 0)

	for _, line := range order.Lines {
		units := unitsByProduct[line.ProductId]
		plan, covered := planLineAllocation(units, line.Quantity, line.preferences())
		if covered < line.Quantity {
			available := 0
			for _, u := range units {
				available += u.CurrentStock
			}
			shortfalls = append(shortfalls, LineShortfall{
				LineId:    line.ID,
				ProductId: line.ProductId,
				Sku:       line.ProductSku,
				Requested: line.Quantity,
				Available: available,
			})
			if !partial {
				continue
			}
		}
		plans = append(plans, linePlan{line: line, plan: plan})

		// reserve planned stock in memory so later lines of the same
		// product plan against what is actually left
		for _, p := range plan {
			for _, u := range units {
				if u.ID == p.UnitId {
					u.CurrentStock -= p.Quantity
					break
				}
			}
		}
	}

	if len(shortfalls) > 0 && !partial {
		tx.Rollback()
		return nil, &InsufficientStockError{OrderId: order.ID, Lines: shortfalls}
	}

	// undo the in-memory reservations; recordStockMovement re-applies
	// them against the DB and the shared structs
	for _, lp := range plans {
		units := unitsByProduct[lp.line.ProductId]
		for _, p := range lp.plan {
			for _, u := range units {
				if u.ID == p.UnitId {
					u.CurrentStock += p.Quantity
					break
				}
			}
		}
	}

	for _, lp := range plans {
		units := unitsByProduct[lp.line.ProductId]
		allocated := 0
		for _, p := range lp.plan {
			var unit *InventoryUnit
			for _, u := range units {
				if u.ID == p.UnitId {
					unit = u
					break
				}
			}
			if unit == nil {
				tx.Rollback()
				return nil, errors.New("planned unit disappeared")
			}

			lineId := lp.line.ID
			if _, err := recordStockMovement(ctx, tx.WithContext(ctx), unit, -p.Quantity, StockMovementAllocation, movementRefs{OrderId: &order.ID, OrderLineId: &lineId}); err != nil {
				tx.Rollback()
				return nil, err
			}

			allocation := OrderLineAllocation{
				OwnerId:         ownerId,
				OrderId:         order.ID,
				OrderLineId:     lp.line.ID,
				InventoryUnitId: unit.ID,
				Quantity:        p.Quantity,
			}
			if err := tx.WithContext(ctx).Create(&allocation).Error; err != nil {
				tx.Rollback()
				return nil, err
			}

			if err := tx.WithContext(ctx).Model(&InventoryUnit{}).Where("id = ?", unit.ID).
				UpdateColumn("allocated_quantity", gorm.Expr("allocated_quantity + ?", p.Quantity)).Error; err != nil {
				tx.Rollback()
				return nil, err
			}
			allocated += p.Quantity
		}

		lp.line.AllocatedQty = allocated
		if err := tx.WithContext(ctx).Model(&OrderLine{}).Where("id = ?", lp.line.ID).
			UpdateColumn("allocated_quantity", allocated).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	now := time.Now().UTC()
	order.Status = OrderStatusConfirmed
	order.ConfirmedAt = &now
	if err := tx.WithContext(ctx).Model(&order).
		Updates(map[string]interface{}{"status": OrderStatusConfirmed, "confirmed_at": now}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := PublishDomainEvent(ctx, tx, ownerId, now, fmt.Sprint(order.ID), ReferenceTypeOrders, &order, nil, PubSubMessageActionUpdate); err != nil {
		tx.Rollback()
		return nil, err
	}

	return &order, tx.Commit().Error
}

// CancelOrder reverses every allocation and marks the order cancelled.
// Only pre-shipment orders may cancel. Cancelling an already cancelled
// order is a no-op returning the terminal order.
func CancelOrder(ctx context.Context, orderId int, reason string) (*Order, error) {
	db := config.GetDB()

	ownerId, ok := utils.GetOwnerIdFromContext(ctx)
	if !ok || ownerId == "" {
		return nil, errors.New("owner id is required")
	}

	tx := db.Begin()

	var order Order
	if err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("owner_id = ?", ownerId).First(&order, orderId).Error; err != nil {
		tx.Rollback()
		return nil, utils.ErrorRecordNotFound
	}

	if order.Status == OrderStatusCancelled {
		tx.Rollback()
		return &order, nil
	}
	if !order.Status.IsPreShipment() {
		tx.Rollback()
		return nil, &InvalidTransitionError{OrderId: order.ID, Current: order.Status, Requested: OrderStatusCancelled}
	}

	var allocations []*OrderLineAllocation
	if err := tx.WithContext(ctx).
		Where("owner_id = ? AND order_id = ?", ownerId, order.ID).
		Order("id").Find(&allocations).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	for _, a := range allocations {
		var unit InventoryUnit
		if err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&unit, a.InventoryUnitId).Error; err != nil {
			tx.Rollback()
			return nil, err
		}

		lineId := a.OrderLineId
		if _, err := recordStockMovement(ctx, tx.WithContext(ctx), &unit, a.Quantity, StockMovementDeallocation, movementRefs{OrderId: &order.ID, OrderLineId: &lineId}); err != nil {
			tx.Rollback()
			return nil, err
		}

		if err := tx.WithContext(ctx).Model(&InventoryUnit{}).Where("id = ?", unit.ID).
			UpdateColumn("allocated_quantity", gorm.Expr("allocated_quantity - ?", a.Quantity)).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if len(allocations) > 0 {
		if err := tx.WithContext(ctx).
			Where("owner_id = ? AND order_id = ?", ownerId, order.ID).
			Delete(&OrderLineAllocation{}).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.WithContext(ctx).Model(&OrderLine{}).Where("order_id = ?", order.ID).
		UpdateColumn("allocated_quantity", 0).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	now := time.Now().UTC()
	order.Status = OrderStatusCancelled
	order.CancelledAt = &now
	order.CancellationReason = reason
	if err := tx.WithContext(ctx).Model(&order).
		Updates(map[string]interface{}{"status": OrderStatusCancelled, "cancelled_at": now, "cancellation_reason": reason}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := PublishDomainEvent(ctx, tx, ownerId, now, fmt.Sprint(order.ID), ReferenceTypeOrders, &order, nil, PubSubMessageActionUpdate); err != nil {
		tx.Rollback()
		return nil, err
	}

	return &order, tx.Commit().Error
}

// StatusMeta carries the optional shipping metadata some transitions set.
type StatusMeta struct {
	TrackingNumber string `json:"tracking_number"`
	Courier        string `json:"courier"`
	DeliveryMethod string `json:"delivery_method"`
}

// UpdateOrderStatus walks the closed transition table. Shipping is
// additionally gated on payment and full fulfillment of every line.
// A delivered order moving to returned restores stock through return
// ledger entries without touching allocated_quantity.
func UpdateOrderStatus(ctx context.Context, orderId int, newStatus OrderStatus, meta StatusMeta) (*Order, error) {
	db := config.GetDB()

	ownerId, ok := utils.GetOwnerIdFromContext(ctx)
	if !ok || ownerId == "" {
		return nil, errors.New("owner id is required")
	}

	if newStatus == OrderStatusCancelled {
		return nil, errors.New("cancel orders through the cancellation endpoint")
	}

	tx := db.Begin()

	var order Order
	if err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("owner_id = ?", ownerId).First(&order, orderId).Error; err != nil {
		tx.Rollback()
		return nil, utils.ErrorRecordNotFound
	}
	if err := tx.WithContext(ctx).Where("order_id = ?", order.ID).Order("id").Find(&order.Lines).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if newStatus == OrderStatusConfirmed {
		tx.Rollback()
		return nil, errors.New("confirm orders through the confirmation endpoint")
	}

	if !order.Status.CanTransition(newStatus) {
		tx.Rollback()
		return nil, &InvalidTransitionError{OrderId: order.ID, Current: order.Status, Requested: newStatus}
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{"status": newStatus}

	switch newStatus {
	case OrderStatusShipped:
		if !order.PaymentStatus.AllowsShipping() {
			tx.Rollback()
			return nil, fmt.Errorf("order %d cannot ship with payment status %s", order.ID, order.PaymentStatus)
		}
		// Gate on the allocation, not the requested quantity: a line
		// partially allocated (back-order flow) ships once everything
		// allocated to it has been fulfilled.
		for _, line := range order.Lines {
			if line.FulfilledQty < line.AllocatedQty {
				tx.Rollback()
				return nil, fmt.Errorf("order %d cannot ship: line %d fulfilled %d of %d allocated", order.ID, line.ID, line.FulfilledQty, line.AllocatedQty)
			}
		}
		updates["shipped_at"] = now
		order.ShippedAt = &now
		if meta.TrackingNumber != "" {
			updates["tracking_number"] = meta.TrackingNumber
			order.TrackingNumber = meta.TrackingNumber
		}
		if meta.Courier != "" {
			updates["courier"] = meta.Courier
			order.Courier = meta.Courier
		}
		if meta.DeliveryMethod != "" {
			updates["delivery_method"] = meta.DeliveryMethod
			order.DeliveryMethod = meta.DeliveryMethod
		}

	case OrderStatusDelivered:
		updates["delivered_at"] = now
		order.DeliveredAt = &now

	case OrderStatusReturned:
		// put fulfilled goods back on the shelf through the ledger; the
		// allocation records tell us which units the goods came from
		var allocations []*OrderLineAllocation
		if err := tx.WithContext(ctx).
			Where("owner_id = ? AND order_id = ?", ownerId, order.ID).
			Order("id").Find(&allocations).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		for _, a := range allocations {
			var unit InventoryUnit
			if err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
				First(&unit, a.InventoryUnitId).Error; err != nil {
				tx.Rollback()
				return nil, err
			}
			lineId := a.OrderLineId
			if _, err := recordStockMovement(ctx, tx.WithContext(ctx), &unit, a.Quantity, StockMovementReturn, movementRefs{OrderId: &order.ID, OrderLineId: &lineId}); err != nil {
				tx.Rollback()
				return nil, err
			}
		}
	}

	order.Status = newStatus
	if err := tx.WithContext(ctx).Model(&order).Updates(updates).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := PublishDomainEvent(ctx, tx, ownerId, now, fmt.Sprint(order.ID), ReferenceTypeOrders, &order, nil, PubSubMessageActionUpdate); err != nil {
		tx.Rollback()
		return nil, err
	}

	return &order, tx.Commit().Error
}

// FulfillOrderLine marks qty of a line as picked and packed. It may not
// exceed what is allocated and unfulfilled. Each call appends a
// zero-delta fulfillment entry as an audit marker; stock already left
// current_stock at allocation time.
func FulfillOrderLine(ctx context.Context, orderId int, lineId int, qty int) (*OrderLine, error) {
	db := config.GetDB()

	ownerId, ok := utils.GetOwnerIdFromContext(ctx)
	if !ok || ownerId == "" {
		return nil, errors.New("owner id is required")
	}

	if qty <= 0 {
		return nil, errors.New("quantity must be positive")
	}

	tx := db.Begin()

	var order Order
	if err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("owner_id = ?", ownerId).First(&order, orderId).Error; err != nil {
		tx.Rollback()
		return nil, utils.ErrorRecordNotFound
	}

	switch order.Status {
	case OrderStatusConfirmed, OrderStatusProcessing, OrderStatusPacked:
	default:
		tx.Rollback()
		return nil, fmt.Errorf("order %d cannot fulfill lines in status %s", order.ID, order.Status)
	}

	var line OrderLine
	if err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ?", order.ID).First(&line, lineId).Error; err != nil {
		tx.Rollback()
		return nil, utils.ErrorRecordNotFound
	}

	remaining := line.AllocatedQty - line.FulfilledQty
	if qty > remaining {
		tx.Rollback()
		return nil, &OverFulfillmentError{LineId: line.ID, Requested: qty, Remaining: remaining}
	}

	var allocation OrderLineAllocation
	if err := tx.WithContext(ctx).
		Where("owner_id = ? AND order_line_id = ?", ownerId, line.ID).
		Order("id").First(&allocation).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	var unit InventoryUnit
	if err := tx.WithContext(ctx).First(&unit, allocation.InventoryUnitId).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if _, err := recordStockMovement(ctx, tx.WithContext(ctx), &unit, 0, StockMovementFulfillment, movementRefs{OrderId: &order.ID, OrderLineId: &line.ID, Notes: fmt.Sprintf("fulfilled %d", qty)}); err != nil {
		tx.Rollback()
		return nil, err
	}

	line.FulfilledQty += qty
	if err := tx.WithContext(ctx).Model(&OrderLine{}).Where("id = ?", line.ID).
		UpdateColumn("fulfilled_quantity", line.FulfilledQty).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	return &line, tx.Commit().Error
}

// UpdatePaymentStatus records a payment state change coming from the
// external billing flow. The engine itself never computes payments; it
// only reads this field when gating shipment.
func UpdatePaymentStatus(ctx context.Context, orderId int, status PaymentStatus, amountPaid *decimal.Decimal, method string, reference string) (*Order, error) {
	db := config.GetDB()

	ownerId, ok := utils.GetOwnerIdFromContext(ctx)
	if !ok || ownerId == "" {
		return nil, errors.New("owner id is required")
	}

	tx := db.Begin()

	var order Order
	if err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("owner_id = ?", ownerId).First(&order, orderId).Error; err != nil {
		tx.Rollback()
		return nil, utils.ErrorRecordNotFound
	}

	updates := map[string]interface{}{"payment_status": status}
	order.PaymentStatus = status
	if amountPaid != nil {
		if amountPaid.IsNegative() {
			tx.Rollback()
			return nil, errors.New("amount paid cannot be negative")
		}
		updates["amount_paid"] = *amountPaid
		order.AmountPaid = *amountPaid
	}
	if method != "" {
		updates["payment_method"] = method
		order.PaymentMethod = method
	}
	if reference != "" {
		updates["payment_reference"] = reference
		order.PaymentReference = reference
	}

	if err := tx.WithContext(ctx).Model(&order).Updates(updates).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	return &order, tx.Commit().Error
}

func GetOrder(ctx context.Context, id int) (*Order, error) {
	db := config.GetDB()

	ownerId, ok := utils.GetOwnerIdFromContext(ctx)
	if !ok || ownerId == "" {
		return nil, errors.New("owner id is required")
	}

	var order Order
	if err := db.WithContext(ctx).Preload("Lines").Preload("Customer").
		Where("orders.owner_id = ?", ownerId).First(&order, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &order, nil
}

func ListOrders(ctx context.Context, limit int, after *string, status *OrderStatus, customerId int) (*OrdersConnection, error) {
	db := config.GetDB()

	ownerId, ok := utils.GetOwnerIdFromContext(ctx)
	if !ok || ownerId == "" {
		return nil, errors.New("owner id is required")
	}

	dbCtx := db.WithContext(ctx).Model(&Order{}).Preload("Lines").
		Where("orders.owner_id = ?", ownerId)
	if status != nil {
		dbCtx.Where("status = ?", *status)
	}
	if customerId > 0 {
		dbCtx.Where("customer_id = ?", customerId)
	}

	edges, pageInfo, err := FetchPageCompositeCursor[Order](dbCtx, limit, after, "created_at", "<")
	if err != nil {
		return nil, err
	}

	orderEdges := make([]*OrdersEdge, 0, len(edges))
	for i := range edges {
		edge := OrdersEdge(edges[i])
		orderEdges = append(orderEdges, &edge)
	}

	return &OrdersConnection{Edges: orderEdges, PageInfo: pageInfo}, nil
}

// OrderStats is the dashboard summary for one owner.
type OrderStats struct {
	TotalOrders     int64           `json:"total_orders"`
	PendingOrders   int64           `json:"pending_orders"`
	ConfirmedOrders int64           `json:"confirmed_orders"`
	ShippedOrders   int64           `json:"shipped_orders"`
	DeliveredOrders int64           `json:"delivered_orders"`
	CancelledOrders int64           `json:"cancelled_orders"`
	TotalRevenue    decimal.Decimal `json:"total_revenue"`
}

func GetOrderStats(ctx context.Context) (*OrderStats, error) {
	db := config.GetDB()

	ownerId, ok := utils.GetOwnerIdFromContext(ctx)
	if !ok || ownerId == "" {
		return nil, errors.New("owner id is required")
	}

	var stats OrderStats
	base := func() *gorm.DB {
		return db.WithContext(ctx).Model(&Order{}).Where("owner_id = ?", ownerId)
	}

	if err := base().Count(&stats.TotalOrders).Error; err != nil {
		return nil, err
	}
	statusCounts := []struct {
		status OrderStatus
		dest   *int64
	}{
		{OrderStatusPending, &stats.PendingOrders},
		{OrderStatusConfirmed, &stats.ConfirmedOrders},
		{OrderStatusShipped, &stats.ShippedOrders},
		{OrderStatusDelivered, &stats.DeliveredOrders},
		{OrderStatusCancelled, &stats.CancelledOrders},
	}
	for _, sc := range statusCounts {
		if err := base().Where("status = ?", sc.status).Count(sc.dest).Error; err != nil {
			return nil, err
		}
	}

	var revenue decimal.NullDecimal
	if err := base().Where("status NOT IN ?", []OrderStatus{OrderStatusCancelled, OrderStatusReturned}).
		Select("SUM(total_amount)").Scan(&revenue).Error; err != nil {
		return nil, err
	}
	if revenue.Valid {
		stats.TotalRevenue = revenue.Decimal
	}

	return &stats, nil
}
