package models

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/yeboahd24/t-beauty/config"
	"github.com/yeboahd24/t-beauty/utils"
	"gorm.io/gorm"
)

// StockLedgerEntry is one append-only movement of stock on an inventory
// unit. Entries are never edited or deleted; a mistake is corrected by a
// compensating entry. ResultingQty snapshots the unit's current_stock
// after the movement so the ledger alone can rebuild it.
type StockLedgerEntry struct {
	ID              string              `gorm:"primary_key;size:36" json:"id"`
	OwnerId         string              `gorm:"size:64;index;not null" json:"owner_id"`
	InventoryUnitId int                 `gorm:"not null;index;index:idx_ledger_unit_seq,priority:1" json:"inventory_unit_id"`
	SequenceNo      int64               `gorm:"not null;index:idx_ledger_unit_seq,priority:2" json:"sequence_no"`
	Quantity        int                 `gorm:"not null" json:"quantity"` // signed delta
	ResultingQty    int                 `gorm:"not null" json:"resulting_qty"`
	Reason          StockMovementReason `gorm:"type:enum('receipt','allocation','deallocation','fulfillment','adjustment','return');not null;index" json:"reason"`
	OrderId         *int                `gorm:"index" json:"order_id"`
	OrderLineId     *int                `gorm:"index" json:"order_line_id"`
	ActorUserId     int                 `json:"actor_user_id"`
	Notes           string              `gorm:"size:255" json:"notes"`
	CorrelationId   string              `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt       time.Time           `gorm:"autoCreateTime;index" json:"created_at"`
}

func (e StockLedgerEntry) GetOwnerId() string {
	return e.OwnerId
}

// movementRefs carries the optional references a ledger entry may point at.
type movementRefs struct {
	OrderId     *int
	OrderLineId *int
	Notes       string
}

// recordStockMovement appends a ledger entry and moves current_stock by
// delta in the same transaction. The caller must already hold a row lock
// on the unit. Fulfillment entries carry delta 0 and leave stock alone;
// they exist as audit markers only.
func recordStockMovement(ctx context.Context, tx *gorm.DB, unit *InventoryUnit, delta int, reason StockMovementReason, refs movementRefs) (*StockLedgerEntry, error) {

	if unit.CurrentStock+delta < 0 {
		return nil, &NegativeStockError{
			UnitId:       unit.ID,
			CurrentStock: unit.CurrentStock,
			Delta:        delta,
		}
	}

	seq, err := utils.GetSequence[StockLedgerEntry](ctx, unit.OwnerId)
	if err != nil {
		return nil, err
	}

	userId, _ := utils.GetUserIdFromContext(ctx)

	entry := StockLedgerEntry{
		ID:              uuid.NewString(),
		OwnerId:         unit.OwnerId,
		InventoryUnitId: unit.ID,
		SequenceNo:      seq,
		Quantity:        delta,
		ResultingQty:    unit.CurrentStock + delta,
		Reason:          reason,
		OrderId:         refs.OrderId,
		OrderLineId:     refs.OrderLineId,
		ActorUserId:     userId,
		Notes:           refs.Notes,
		CorrelationId:   correlationIdFromContextOrNew(ctx),
	}

	if err := tx.Create(&entry).Error; err != nil {
		return nil, err
	}

	if delta != 0 {
		if err := tx.Model(&InventoryUnit{}).Where("id = ?", unit.ID).
			UpdateColumn("current_stock", gorm.Expr("current_stock + ?", delta)).Error; err != nil {
			return nil, err
		}
		unit.CurrentStock += delta
	}

	return &entry, nil
}

// GetStockLedger returns a unit's movements in sequence order, optionally
// bounded by [from, to) on created_at.
func GetStockLedger(ctx context.Context, unitId int, from *time.Time, to *time.Time) ([]*StockLedgerEntry, error) {
	db := config.GetDB()

	ownerId, ok := utils.GetOwnerIdFromContext(ctx)
	if !ok || ownerId == "" {
		return nil, errors.New("owner id is required")
	}

	if err := utils.ValidateResourceId[InventoryUnit](ctx, ownerId, unitId); err != nil {
		return nil, errors.New("inventory unit not found")
	}

	dbCtx := db.WithContext(ctx).Model(&StockLedgerEntry{}).
		Where("owner_id = ? AND inventory_unit_id = ?", ownerId, unitId)
	if from != nil {
		dbCtx.Where("created_at >= ?", *from)
	}
	if to != nil {
		dbCtx.Where("created_at < ?", *to)
	}

	var entries []*StockLedgerEntry
	if err := dbCtx.Order("sequence_no, created_at").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// ReconstructStock replays a unit's full ledger and returns the stock
// level it implies. A healthy unit satisfies
// current_stock == ReconstructStock(unit).
func ReconstructStock(ctx context.Context, db *gorm.DB, unitId int) (int, error) {
	var total *int
	if err := db.WithContext(ctx).Model(&StockLedgerEntry{}).
		Where("inventory_unit_id = ?", unitId).
		Select("SUM(quantity)").Scan(&total).Error; err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}
