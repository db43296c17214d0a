package main

import (
	"context"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yeboahd24/t-beauty/config"
	"github.com/yeboahd24/t-beauty/models"
	"github.com/yeboahd24/t-beauty/utils"
	"github.com/yeboahd24/t-beauty/workflow"
	"gorm.io/gorm"
)

// ProcessMessage handles one domain event on the consumer side. Delivery is
// at-least-once, so every handler runs under a DB-backed idempotency key and
// the per-owner posting lock.
func ProcessMessage(ctx context.Context, logger *logrus.Logger, m config.PubSubMessage) error {
	db := config.GetDB()
	return db.Transaction(func(tx *gorm.DB) error {
		// Enforce strict per-owner ordering across instances.
		if err := workflow.AcquireOwnerPostingLock(tx.WithContext(ctx), m.OwnerId); err != nil {
			return err
		}
		defer workflow.ReleaseOwnerPostingLock(tx.WithContext(ctx), m.OwnerId)

		handlerName := m.ReferenceType
		messageId := strconv.Itoa(m.ID)

		skip, err := workflow.BeginIdempotency(tx.WithContext(ctx), m.OwnerId, handlerName, messageId)
		if err != nil {
			return err
		}
		if skip {
			return nil
		}

		if err := ProcessWorkflow(tx.WithContext(ctx), logger, m); err != nil {
			_ = workflow.MarkIdempotencyFailed(tx.WithContext(ctx), m.OwnerId, handlerName, messageId, err)
			return err
		}
		if err := workflow.MarkIdempotencySucceeded(tx.WithContext(ctx), m.OwnerId, handlerName, messageId); err != nil {
			return err
		}

		now := time.Now().UTC()
		return tx.WithContext(ctx).Model(&models.PubSubMessageRecord{}).
			Where("id = ? AND owner_id = ?", m.ID, m.OwnerId).
			Updates(map[string]interface{}{
				"is_processed":       true,
				"processed_at":       &now,
				"last_process_error": nil,
			}).Error
	})
}

// ProcessWorkflow routes one event to its handler. Handlers must be safe to
// replay; idempotency is enforced one level up.
func ProcessWorkflow(tx *gorm.DB, logger *logrus.Logger, msg config.PubSubMessage) error {
	switch msg.ReferenceType {
	case string(models.ReferenceTypeOrders), string(models.ReferenceTypeOrderLines):
		return invalidateCache[models.Order](msg)
	case string(models.ReferenceTypeCustomers):
		return invalidateCache[models.Customer](msg)
	case string(models.ReferenceTypeProducts):
		return invalidateCache[models.Product](msg)
	case string(models.ReferenceTypeInventoryUnits), string(models.ReferenceTypeStockLedger):
		// Ledger events reference the entry, not the unit; dropping the
		// owner's unit list is enough either way.
		return utils.RemoveRedisList[models.InventoryUnit](msg.OwnerId)
	case string(models.ReferenceTypeReorderAlerts):
		if logger != nil {
			var alert workflow.ReorderAlert
			if err := utils.UnmarshalFromJSON(msg.NewObj, &alert); err != nil {
				logger.WithFields(logrus.Fields{
					"field":        "ReorderAlert",
					"owner_id":     msg.OwnerId,
					"reference_id": msg.ReferenceId,
				}).Warn("reorder alert payload unreadable: " + err.Error())
				return nil
			}
			logger.WithFields(logrus.Fields{
				"field":            "ReorderAlert",
				"owner_id":         msg.OwnerId,
				"unit_id":          alert.InventoryUnitId,
				"sku":              alert.Sku,
				"current_stock":    alert.CurrentStock,
				"reorder_point":    alert.ReorderPoint,
				"reorder_quantity": alert.ReorderQuantity,
				"correlation_id":   msg.CorrelationId,
			}).Info("reorder alert raised")
		}
		return nil
	default:
		if logger != nil {
			payload, _ := utils.MarshalToJSON(msg)
			logger.WithFields(logrus.Fields{
				"field":          "ProcessWorkflow",
				"owner_id":       msg.OwnerId,
				"reference_type": msg.ReferenceType,
				"reference_id":   msg.ReferenceId,
				"payload":        payload,
			}).Warn("unknown reference type; dropping event")
		}
		return nil
	}
}

// invalidateCache drops the cached item and list for the event's entity so
// other instances never serve stale reads after a write elsewhere.
func invalidateCache[T any](msg config.PubSubMessage) error {
	if id, err := strconv.Atoi(msg.ReferenceId); err == nil {
		if err := utils.RemoveRedisItem[T](id); err != nil {
			return err
		}
	}
	return utils.RemoveRedisList[T](msg.OwnerId)
}
