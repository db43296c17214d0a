package models

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/yeboahd24/t-beauty/config"
	"github.com/yeboahd24/t-beauty/utils"
)

// OrderLineAllocation ties allocated quantity on an order line to the
// inventory unit it came from. A line may draw from several units; the
// sum of its allocation quantities always equals allocated_quantity on
// the line.
type OrderLineAllocation struct {
	ID              int       `gorm:"primary_key" json:"id"`
	OwnerId         string    `gorm:"size:64;index;not null" json:"owner_id"`
	OrderId         int       `gorm:"not null;index" json:"order_id"`
	OrderLineId     int       `gorm:"not null;index" json:"order_line_id"`
	InventoryUnitId int       `gorm:"not null;index" json:"inventory_unit_id"`
	Quantity        int       `gorm:"not null" json:"quantity"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// LinePreferences are the optional variant filters on an order line.
// A nil field means no preference on that attribute.
type LinePreferences struct {
	Color *string
	Shade *string
	Size  *string
}

func (p LinePreferences) IsEmpty() bool {
	return p.Color == nil && p.Shade == nil && p.Size == nil
}

func matchesPreference(have *string, want *string) bool {
	if want == nil {
		return true
	}
	return have != nil && *have == *want
}

// MatchesPreferences reports whether the unit satisfies every stated
// preference on the line.
func (u InventoryUnit) MatchesPreferences(prefs LinePreferences) bool {
	return matchesPreference(u.Color, prefs.Color) &&
		matchesPreference(u.Shade, prefs.Shade) &&
		matchesPreference(u.Size, prefs.Size)
}

// filterCandidates applies soft preference matching: when any candidate
// satisfies the preferences only those are kept; when none does, the
// full candidate set is used rather than failing the line.
func filterCandidates(units []*InventoryUnit, prefs LinePreferences) []*InventoryUnit {
	if prefs.IsEmpty() {
		return units
	}
	matched := make([]*InventoryUnit, 0, len(units))
	for _, u := range units {
		if u.MatchesPreferences(prefs) {
			matched = append(matched, u)
		}
	}
	if len(matched) == 0 {
		return units
	}
	return matched
}

// rankCandidates orders units by current_stock descending, then selling
// price ascending, then id ascending so planning is deterministic.
func rankCandidates(units []*InventoryUnit) {
	sort.SliceStable(units, func(i, j int) bool {
		if units[i].CurrentStock != units[j].CurrentStock {
			return units[i].CurrentStock > units[j].CurrentStock
		}
		if !units[i].SellingPrice.Equal(units[j].SellingPrice) {
			return units[i].SellingPrice.LessThan(units[j].SellingPrice)
		}
		return units[i].ID < units[j].ID
	})
}

// PlannedAllocation is one planned draw against a unit. The planner is
// pure; the caller applies the plan through the ledger writer.
type PlannedAllocation struct {
	UnitId   int
	Quantity int
}

// planLineAllocation walks the ranked candidates greedily, drawing
// min(remaining, unit stock) from each. It returns the plan and the
// total quantity it covers, which is short of requested when the
// candidates cannot fill the line.
func planLineAllocation(units []*InventoryUnit, requested int, prefs LinePreferences) ([]PlannedAllocation, int) {
	candidates := make([]*InventoryUnit, 0, len(units))
	for _, u := range units {
		if u.CurrentStock > 0 {
			candidates = append(candidates, u)
		}
	}
	candidates = filterCandidates(candidates, prefs)
	rankCandidates(candidates)

	plan := make([]PlannedAllocation, 0, len(candidates))
	remaining := requested
	for _, u := range candidates {
		if remaining == 0 {
			break
		}
		take := u.CurrentStock
		if take > remaining {
			take = remaining
		}
		plan = append(plan, PlannedAllocation{UnitId: u.ID, Quantity: take})
		remaining -= take
	}
	return plan, requested - remaining
}

// AllocationStatusLine is the per-line view of GetAllocationStatus.
type AllocationStatusLine struct {
	LineId       int                    `json:"line_id"`
	ProductId    int                    `json:"product_id"`
	Sku          string                 `json:"sku"`
	Requested    int                    `json:"requested"`
	Allocated    int                    `json:"allocated"`
	Fulfilled    int                    `json:"fulfilled"`
	Allocations  []*OrderLineAllocation `json:"allocations"`
	FullyCovered bool                   `json:"fully_covered"`
}

type AllocationStatus struct {
	OrderId     int                     `json:"order_id"`
	OrderNumber string                  `json:"order_number"`
	Status      OrderStatus             `json:"status"`
	Lines       []*AllocationStatusLine `json:"lines"`
}

// GetAllocationStatus reports how each line of an order is covered by
// inventory units.
func GetAllocationStatus(ctx context.Context, orderId int) (*AllocationStatus, error) {
	db := config.GetDB()

	ownerId, ok := utils.GetOwnerIdFromContext(ctx)
	if !ok || ownerId == "" {
		return nil, errors.New("owner id is required")
	}

	var order Order
	if err := db.WithContext(ctx).Preload("Lines").
		Where("owner_id = ?", ownerId).First(&order, orderId).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	var allocations []*OrderLineAllocation
	if err := db.WithContext(ctx).
		Where("owner_id = ? AND order_id = ?", ownerId, orderId).
		Order("id").Find(&allocations).Error; err != nil {
		return nil, err
	}

	byLine := make(map[int][]*OrderLineAllocation, len(order.Lines))
	for _, a := range allocations {
		byLine[a.OrderLineId] = append(byLine[a.OrderLineId], a)
	}

	status := AllocationStatus{
		OrderId:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
	}
	for _, line := range order.Lines {
		status.Lines = append(status.Lines, &AllocationStatusLine{
			LineId:       line.ID,
			ProductId:    line.ProductId,
			Sku:          line.ProductSku,
			Requested:    line.Quantity,
			Allocated:    line.AllocatedQty,
			Fulfilled:    line.FulfilledQty,
			Allocations:  byLine[line.ID],
			FullyCovered: line.AllocatedQty >= line.Quantity,
		})
	}

	return &status, nil
}
