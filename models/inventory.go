package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yeboahd24/t-beauty/config"
	"github.com/yeboahd24/t-beauty/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InventoryUnit is one physical stock pool of a product: a location,
// batch and variant (color/shade/size) combination. current_stock is
// owned by the ledger writer; nothing else may touch it.
type InventoryUnit struct {
	ID              int             `gorm:"primary_key" json:"id"`
	OwnerId         string          `gorm:"size:64;index;not null" json:"owner_id" binding:"required"`
	ProductId       int             `gorm:"not null;index" json:"product_id" binding:"required"`
	Product         *Product        `json:"product,omitempty"`
	Location        string          `gorm:"size:100;not null;default:'main'" json:"location"`
	BatchNumber     string          `gorm:"size:100" json:"batch_number"`
	ExpiryDate      *time.Time      `json:"expiry_date"`
	Color           *string         `gorm:"size:50" json:"color"`
	Shade           *string         `gorm:"size:50" json:"shade"`
	Size            *string         `gorm:"size:50" json:"size"`
	CurrentStock    int             `gorm:"not null;default:0" json:"current_stock"`
	AllocatedQty    int             `gorm:"column:allocated_quantity;not null;default:0" json:"allocated_quantity"`
	MinimumStock    int             `gorm:"not null;default:0" json:"minimum_stock"`
	ReorderPoint    int             `gorm:"not null;default:0" json:"reorder_point"`
	ReorderQuantity int             `gorm:"not null;default:0" json:"reorder_quantity"`
	CostPrice       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cost_price"`
	SellingPrice    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"selling_price"`
	IsActive        *bool           `gorm:"not null;default:true" json:"is_active"`
	IsDiscontinued  *bool           `gorm:"not null;default:false" json:"is_discontinued"`
	LastRestocked   *time.Time      `json:"last_restocked"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewInventoryUnit struct {
	ProductId       int             `json:"product_id" binding:"required"`
	Location        string          `json:"location"`
	BatchNumber     string          `json:"batch_number"`
	ExpiryDate      *time.Time      `json:"expiry_date"`
	Color           *string         `json:"color"`
	Shade           *string         `json:"shade"`
	Size            *string         `json:"size"`
	InitialStock    int             `json:"initial_stock"`
	MinimumStock    int             `json:"minimum_stock"`
	ReorderPoint    int             `json:"reorder_point"`
	ReorderQuantity int             `json:"reorder_quantity"`
	CostPrice       decimal.Decimal `json:"cost_price"`
	SellingPrice    decimal.Decimal `json:"selling_price" binding:"required"`
}

type InventoryUnitsEdge Edge[InventoryUnit]
type InventoryUnitsConnection struct {
	Edges    []*InventoryUnitsEdge `json:"edges"`
	PageInfo *PageInfo             `json:"pageInfo"`
}

func (u InventoryUnit) GetOwnerId() string {
	return u.OwnerId
}

func (u InventoryUnit) GetId() int {
	return u.ID
}

func (u InventoryUnit) GetCursor() string {
	return u.CreatedAt.String()
}

// AvailableStock is what allocation may still claim.
func (u InventoryUnit) AvailableStock() int {
	return u.CurrentStock
}

func (u InventoryUnit) IsLowStock() bool {
	return u.CurrentStock <= u.MinimumStock
}

func (u InventoryUnit) NeedsReorder() bool {
	return u.CurrentStock <= u.ReorderPoint
}

func (input *NewInventoryUnit) validate(ctx context.Context, ownerId string) error {
	if err := utils.ValidateResourceId[Product](ctx, ownerId, input.ProductId); err != nil {
		return errors.New("product not found")
	}
	if input.InitialStock < 0 {
		return errors.New("initial stock cannot be negative")
	}
	if input.SellingPrice.IsNegative() || input.CostPrice.IsNegative() {
		return errors.New("prices cannot be negative")
	}
	if input.Location == "" {
		input.Location = "main"
	}
	return nil
}

// CreateInventoryUnit creates the unit and, when initial stock is given,
// writes the opening receipt through the ledger so reconstruction holds
// from day one.
func CreateInventoryUnit(ctx context.Context, input *NewInventoryUnit) (*InventoryUnit, error) {
	db := config.GetDB()

	ownerId, ok := utils.GetOwnerIdFromContext(ctx)
	if !ok || ownerId == "" {
		return nil, errors.New("owner id is required")
	}

	if err := input.validate(ctx, ownerId); err != nil {
		return nil, err
	}

	unit := InventoryUnit{
		OwnerId:         ownerId,
		ProductId:       input.ProductId,
		Location:        input.Location,
		BatchNumber:     input.BatchNumber,
		ExpiryDate:      input.ExpiryDate,
		Color:           input.Color,
		Shade:           input.Shade,
		Size:            input.Size,
		CurrentStock:    0,
		MinimumStock:    input.MinimumStock,
		ReorderPoint:    input.ReorderPoint,
		ReorderQuantity: input.ReorderQuantity,
		CostPrice:       input.CostPrice,
		SellingPrice:    input.SellingPrice,
		IsActive:        utils.NewTrue(),
		IsDiscontinued:  utils.NewFalse(),
	}

	tx := db.Begin()
	if err := tx.WithContext(ctx).Create(&unit).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if input.InitialStock > 0 {
		if _, err := recordStockMovement(ctx, tx.WithContext(ctx), &unit, input.InitialStock, StockMovementReceipt, movementRefs{Notes: "opening stock"}); err != nil {
			tx.Rollback()
			return nil, err
		}
		now := time.Now().UTC()
		if err := tx.WithContext(ctx).Model(&unit).UpdateColumn("last_restocked", now).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		unit.LastRestocked = &now
	}

	return &unit, tx.Commit().Error
}

// ReceiveStock appends a receipt (or adjustment) movement of +qty on the
// unit, bumps last_restocked, and enqueues a stock event in the outbox.
// An owner-scoped redis lock serializes restocks with the reorder scan.
func ReceiveStock(ctx context.Context, unitId int, qty int, reason StockMovementReason) (*InventoryUnit, error) {
	db := config.GetDB()

	ownerId, ok := utils.GetOwnerIdFromContext(ctx)
	if !ok || ownerId == "" {
		return nil, errors.New("owner id is required")
	}

	if qty <= 0 {
		return nil, errors.New("quantity must be positive")
	}
	if reason == "" {
		reason = StockMovementReceipt
	}
	if reason != StockMovementReceipt && reason != StockMovementAdjustment {
		return nil, errors.New("invalid reason for receiving stock")
	}

	if err := utils.OwnerLock(ctx, ownerId, "Restock", "inventory", "ReceiveStock"); err != nil {
		return nil, err
	}

	tx := db.Begin()

	var unit InventoryUnit
	if err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("owner_id = ?", ownerId).First(&unit, unitId).Error; err != nil {
		tx.Rollback()
		return nil, utils.ErrorRecordNotFound
	}

	entry, err := recordStockMovement(ctx, tx.WithContext(ctx), &unit, qty, reason, movementRefs{})
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	now := time.Now().UTC()
	if err := tx.WithContext(ctx).Model(&unit).UpdateColumn("last_restocked", now).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	unit.LastRestocked = &now

	if err := PublishDomainEvent(ctx, tx, ownerId, now, entry.ID, ReferenceTypeStockLedger, entry, nil, PubSubMessageActionCreate); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := RemoveRedisBoth(unit); err != nil {
		tx.Rollback()
		return nil, err
	}

	return &unit, tx.Commit().Error
}

// AdjustStock applies a signed correction (cycle count, damage, loss).
// Negative adjustments may not drive stock below zero.
func AdjustStock(ctx context.Context, unitId int, delta int, notes string) (*InventoryUnit, error) {
	db := config.GetDB()

	ownerId, ok := utils.GetOwnerIdFromContext(ctx)
	if !ok || ownerId == "" {
		return nil, errors.New("owner id is required")
	}

	if delta == 0 {
		return nil, errors.New("delta cannot be zero")
	}

	tx := db.Begin()

	var unit InventoryUnit
	if err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("owner_id = ?", ownerId).First(&unit, unitId).Error; err != nil {
		tx.Rollback()
		return nil, utils.ErrorRecordNotFound
	}

	entry, err := recordStockMovement(ctx, tx.WithContext(ctx), &unit, delta, StockMovementAdjustment, movementRefs{Notes: notes})
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := PublishDomainEvent(ctx, tx, ownerId, time.Now().UTC(), entry.ID, ReferenceTypeStockLedger, entry, nil, PubSubMessageActionCreate); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := RemoveRedisBoth(unit); err != nil {
		tx.Rollback()
		return nil, err
	}

	return &unit, tx.Commit().Error
}

func GetInventoryUnit(ctx context.Context, id int) (*InventoryUnit, error) {
	return GetResource[InventoryUnit](ctx, id, "Product")
}

func ListInventoryUnits(ctx context.Context, limit int, after *string, productId int, location string, activeOnly bool) (*InventoryUnitsConnection, error) {
	db := config.GetDB()

	ownerId, ok := utils.GetOwnerIdFromContext(ctx)
	if !ok || ownerId == "" {
		return nil, errors.New("owner id is required")
	}

	dbCtx := db.WithContext(ctx).Model(&InventoryUnit{}).Preload("Product").
		Where("inventory_units.owner_id = ?", ownerId)
	if productId > 0 {
		dbCtx.Where("product_id = ?", productId)
	}
	if location != "" {
		dbCtx.Where("location = ?", location)
	}
	if activeOnly {
		dbCtx.Where("is_active = true AND is_discontinued = false")
	}

	edges, pageInfo, err := FetchPagePureCursor[InventoryUnit](dbCtx, limit, after, "created_at", "<")
	if err != nil {
		return nil, err
	}

	unitEdges := make([]*InventoryUnitsEdge, 0, len(edges))
	for i := range edges {
		edge := InventoryUnitsEdge(edges[i])
		unitEdges = append(unitEdges, &edge)
	}

	return &InventoryUnitsConnection{Edges: unitEdges, PageInfo: pageInfo}, nil
}

func UpdateInventoryUnit(ctx context.Context, id int, input *NewInventoryUnit) (*InventoryUnit, error) {
	db := config.GetDB()

	ownerId, ok := utils.GetOwnerIdFromContext(ctx)
	if !ok || ownerId == "" {
		return nil, errors.New("owner id is required")
	}

	if err := input.validate(ctx, ownerId); err != nil {
		return nil, err
	}

	var unit InventoryUnit
	if err := db.WithContext(ctx).Where("owner_id = ?", ownerId).First(&unit, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	// stock levels are ledger-owned; only descriptive fields update here
	unit.Location = input.Location
	unit.BatchNumber = input.BatchNumber
	unit.ExpiryDate = input.ExpiryDate
	unit.Color = input.Color
	unit.Shade = input.Shade
	unit.Size = input.Size
	unit.MinimumStock = input.MinimumStock
	unit.ReorderPoint = input.ReorderPoint
	unit.ReorderQuantity = input.ReorderQuantity
	unit.CostPrice = input.CostPrice
	unit.SellingPrice = input.SellingPrice

	tx := db.Begin()
	if err := tx.WithContext(ctx).Save(&unit).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := RemoveRedisBoth(unit); err != nil {
		tx.Rollback()
		return nil, err
	}

	return &unit, tx.Commit().Error
}

func ToggleActiveInventoryUnit(ctx context.Context, id int, isActive bool) (*InventoryUnit, error) {
	ownerId, ok := utils.GetOwnerIdFromContext(ctx)
	if !ok || ownerId == "" {
		return nil, errors.New("owner id is required")
	}
	return ToggleActiveModel[InventoryUnit](ctx, ownerId, id, isActive)
}

// ListLowStockUnits returns active units at or below their minimum.
func ListLowStockUnits(ctx context.Context) ([]*InventoryUnit, error) {
	return listUnitsWhere(ctx, "current_stock <= minimum_stock")
}

func ListOutOfStockUnits(ctx context.Context) ([]*InventoryUnit, error) {
	return listUnitsWhere(ctx, "current_stock = 0")
}

// ListReorderSuggestions returns active units at or below their reorder
// point, the feed for the reorder alert scan.
func ListReorderSuggestions(ctx context.Context) ([]*InventoryUnit, error) {
	return listUnitsWhere(ctx, "current_stock <= reorder_point AND reorder_point > 0")
}

func listUnitsWhere(ctx context.Context, cond string) ([]*InventoryUnit, error) {
	db := config.GetDB()

	ownerId, ok := utils.GetOwnerIdFromContext(ctx)
	if !ok || ownerId == "" {
		return nil, errors.New("owner id is required")
	}

	var units []*InventoryUnit
	if err := db.WithContext(ctx).Preload("Product").
		Where("inventory_units.owner_id = ?", ownerId).
		Where("is_active = true AND is_discontinued = false").
		Where(cond).
		Order("current_stock, id").
		Find(&units).Error; err != nil {
		return nil, err
	}
	return units, nil
}

// InventoryStats is the dashboard summary for one owner.
type InventoryStats struct {
	TotalUnits      int64           `json:"total_units"`
	LowStockUnits   int64           `json:"low_stock_units"`
	OutOfStockUnits int64           `json:"out_of_stock_units"`
	TotalStockValue decimal.Decimal `json:"total_stock_value"`
}

func GetInventoryStats(ctx context.Context) (*InventoryStats, error) {
	db := config.GetDB()

	ownerId, ok := utils.GetOwnerIdFromContext(ctx)
	if !ok || ownerId == "" {
		return nil, errors.New("owner id is required")
	}

	var stats InventoryStats
	base := func() *gorm.DB {
		return db.WithContext(ctx).Model(&InventoryUnit{}).
			Where("owner_id = ? AND is_active = true", ownerId)
	}

	if err := base().Count(&stats.TotalUnits).Error; err != nil {
		return nil, err
	}
	if err := base().Where("current_stock <= minimum_stock").Count(&stats.LowStockUnits).Error; err != nil {
		return nil, err
	}
	if err := base().Where("current_stock = 0").Count(&stats.OutOfStockUnits).Error; err != nil {
		return nil, err
	}

	var value decimal.NullDecimal
	if err := base().Select("SUM(current_stock * cost_price)").Scan(&value).Error; err != nil {
		return nil, err
	}
	if value.Valid {
		stats.TotalStockValue = value.Decimal
	}

	return &stats, nil
}
