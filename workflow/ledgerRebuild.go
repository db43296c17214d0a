package workflow

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/yeboahd24/t-beauty/config"
	"github.com/yeboahd24/t-beauty/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func acquireLedgerRebuildLock(tx *gorm.DB, ownerId string, unitId int) error {
	lockName := fmt.Sprintf("ledger_rebuild:%s:%d", ownerId, unitId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire rebuild lock for owner_id=%s unit_id=%d", ownerId, unitId)
	}
	return nil
}

func releaseLedgerRebuildLock(tx *gorm.DB, ownerId string, unitId int) {
	lockName := fmt.Sprintf("ledger_rebuild:%s:%d", ownerId, unitId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}

// RebuildUnitStock replays one unit's ledger and repairs current_stock
// when the replayed total disagrees with the row. It returns the drift
// (replayed minus stored) so callers can report what changed. The unit
// row is locked for the duration; GET_LOCK keeps concurrent rebuild
// tools off the same unit.
func RebuildUnitStock(ctx context.Context, tx *gorm.DB, logger *logrus.Logger, ownerId string, unitId int) (int, error) {
	if tx == nil {
		return 0, fmt.Errorf("rebuild stock: tx is nil")
	}
	if logger == nil {
		logger = config.GetLogger()
	}
	if ownerId == "" || unitId <= 0 {
		return 0, fmt.Errorf("rebuild stock: invalid scope")
	}

	if err := acquireLedgerRebuildLock(tx, ownerId, unitId); err != nil {
		return 0, err
	}
	defer releaseLedgerRebuildLock(tx, ownerId, unitId)

	var unit models.InventoryUnit
	if err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("owner_id = ?", ownerId).First(&unit, unitId).Error; err != nil {
		return 0, err
	}

	replayed, err := models.ReconstructStock(ctx, tx, unitId)
	if err != nil {
		return 0, err
	}

	drift := replayed - unit.CurrentStock
	if drift == 0 {
		return 0, nil
	}

	logger.WithFields(logrus.Fields{
		"owner_id":     ownerId,
		"unit_id":      unitId,
		"stored_stock": unit.CurrentStock,
		"replay_stock": replayed,
		"drift":        drift,
	}).Warn("stock drift detected, repairing from ledger")

	if err := tx.WithContext(ctx).Model(&models.InventoryUnit{}).Where("id = ?", unitId).
		UpdateColumn("current_stock", replayed).Error; err != nil {
		return 0, err
	}

	return drift, nil
}

// RebuildOwnerStock rebuilds every unit of an owner, one transaction per
// unit so a single bad unit does not poison the rest.
func RebuildOwnerStock(ctx context.Context, db *gorm.DB, logger *logrus.Logger, ownerId string) (repaired int, failed int, err error) {
	if logger == nil {
		logger = config.GetLogger()
	}

	var unitIds []int
	if err := db.WithContext(ctx).Model(&models.InventoryUnit{}).
		Where("owner_id = ?", ownerId).Order("id").Pluck("id", &unitIds).Error; err != nil {
		return 0, 0, err
	}

	for _, unitId := range unitIds {
		txErr := db.Transaction(func(tx *gorm.DB) error {
			drift, err := RebuildUnitStock(ctx, tx, logger, ownerId, unitId)
			if err != nil {
				return err
			}
			if drift != 0 {
				repaired++
			}
			return nil
		})
		if txErr != nil {
			failed++
			logger.WithFields(logrus.Fields{
				"owner_id": ownerId,
				"unit_id":  unitId,
			}).Error("stock rebuild failed: " + txErr.Error())
		}
	}

	return repaired, failed, nil
}
