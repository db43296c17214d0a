package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yeboahd24/t-beauty/config"
	"github.com/yeboahd24/t-beauty/models"
	"github.com/yeboahd24/t-beauty/utils"
	"gorm.io/gorm"
)

// ReorderAlert is the payload published when a unit first crosses its
// reorder point.
type ReorderAlert struct {
	InventoryUnitId int    `json:"inventory_unit_id"`
	ProductId       int    `json:"product_id"`
	Sku             string `json:"sku"`
	CurrentStock    int    `json:"current_stock"`
	ReorderPoint    int    `json:"reorder_point"`
	ReorderQuantity int    `json:"reorder_quantity"`
}

func reorderAlertSetKey(ownerId string) string {
	return "ReorderAlerts:" + ownerId
}

// ScanReorderAlerts finds units at or below their reorder point and
// enqueues one outbox alert per unit. A redis set remembers which units
// already alerted so restarts and repeat scans do not spam; the entry is
// cleared once the unit recovers above the reorder point. The whole scan
// runs under the owner's restock lock so it never races a receipt.
func ScanReorderAlerts(ctx context.Context, db *gorm.DB, logger *logrus.Logger, ownerId string) (int, error) {
	if !config.ReorderAlertsEnabled() {
		return 0, nil
	}
	if logger == nil {
		logger = config.GetLogger()
	}

	if err := utils.OwnerLock(ctx, ownerId, "Restock", "workflow", "ScanReorderAlerts"); err != nil {
		return 0, err
	}

	var units []*models.InventoryUnit
	if err := db.WithContext(ctx).Preload("Product").
		Where("owner_id = ?", ownerId).
		Where("is_active = true AND is_discontinued = false").
		Order("id").
		Find(&units).Error; err != nil {
		return 0, err
	}

	alerted, err := config.GetRedisSetMembers(reorderAlertSetKey(ownerId))
	if err != nil {
		return 0, err
	}
	alertedSet := make(map[string]bool, len(alerted))
	for _, m := range alerted {
		alertedSet[m] = true
	}

	published := 0
	now := time.Now().UTC()
	for _, unit := range units {
		member := fmt.Sprint(unit.ID)

		if !unit.NeedsReorder() || unit.ReorderPoint == 0 {
			// recovered; allow the next dip to alert again
			if alertedSet[member] {
				if err := config.RemoveRedisSetMember(reorderAlertSetKey(ownerId), member); err != nil {
					return published, err
				}
			}
			continue
		}
		if alertedSet[member] {
			continue
		}

		alert := ReorderAlert{
			InventoryUnitId: unit.ID,
			CurrentStock:    unit.CurrentStock,
			ReorderPoint:    unit.ReorderPoint,
			ReorderQuantity: unit.ReorderQuantity,
			ProductId:       unit.ProductId,
		}
		if unit.Product != nil {
			alert.Sku = unit.Product.Sku
		}

		txErr := db.Transaction(func(tx *gorm.DB) error {
			return models.PublishDomainEvent(ctx, tx, ownerId, now, member, models.ReferenceTypeReorderAlerts, &alert, nil, models.PubSubMessageActionCreate)
		})
		if txErr != nil {
			logger.WithFields(logrus.Fields{
				"owner_id": ownerId,
				"unit_id":  unit.ID,
			}).Error("reorder alert enqueue failed: " + txErr.Error())
			continue
		}

		if err := config.AddRedisSet(reorderAlertSetKey(ownerId), member); err != nil {
			return published, err
		}
		published++
	}

	return published, nil
}

// RunReorderScanLoop periodically scans every owner that has inventory.
func RunReorderScanLoop(ctx context.Context, db *gorm.DB, logger *logrus.Logger, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if logger == nil {
		logger = config.GetLogger()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		var ownerIds []string
		if err := db.WithContext(ctx).Model(&models.InventoryUnit{}).
			Distinct("owner_id").Pluck("owner_id", &ownerIds).Error; err != nil {
			logger.Error("reorder scan owner discovery failed: " + err.Error())
			continue
		}

		for _, ownerId := range ownerIds {
			if _, err := ScanReorderAlerts(ctx, db, logger, ownerId); err != nil {
				logger.WithFields(logrus.Fields{
					"owner_id": ownerId,
				}).Error("reorder scan failed: " + err.Error())
			}
		}
	}
}
