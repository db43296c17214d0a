package models

import (
	"context"
	"errors"

	"github.com/yeboahd24/t-beauty/config"
	"github.com/yeboahd24/t-beauty/utils"
)

type Resource interface {
	GetOwnerId() string
}

// first find in redis, then in db, using ctx's owner_id in WHERE, cache result
// (may return RecordNotFound error)
func GetResource[T Resource](ctx context.Context, id int, associations ...string) (*T, error) {

	ownerId, ok := utils.GetOwnerIdFromContext(ctx)
	if !ok || ownerId == "" {
		return nil, errors.New("owner id is required")
	}
	// find in redis
	result, err := utils.RetrieveRedis[T](id)
	if err != nil {
		return nil, err
	}
	// if not found in redis
	if result == nil {
		result, err = utils.FetchModel[T](ctx, ownerId, id, associations...)
		if err != nil {
			return nil, err
		}

		if err := utils.StoreRedis[T](result, id); err != nil {
			return nil, err
		}
	} else {
		// cached rows still have to belong to the caller
		if (*result).GetOwnerId() != ownerId {
			return nil, errors.New("cannot access resource owned by another account")
		}
	}

	return result, nil
}

// list all resources, redis or db, cache result
func ListAllResource[ModelT any, AllModelT any](ctx context.Context, orders ...string) ([]*AllModelT, error) {

	ownerId, ok := utils.GetOwnerIdFromContext(ctx)
	if !ok || ownerId == "" {
		return nil, errors.New("owner id is required")
	}

	results, err := utils.RetrieveRedisList[AllModelT](ownerId)
	if err != nil {
		return nil, err
	}
	if results == nil {
		db := config.GetDB()
		var model ModelT
		dbCtx := db.WithContext(ctx).Where("owner_id = ?", ownerId)
		for _, order := range orders {
			dbCtx.Order(order)
		}
		if err = dbCtx.Model(&model).Find(&results).Error; err != nil {
			return nil, err
		}

		if err := utils.StoreRedisList[AllModelT](results, ownerId); err != nil {
			return nil, err
		}
	}

	return results, nil
}

// ToggleActiveModel flips is_active on a row and clears its cache entries.
func ToggleActiveModel[T RedisCleaner](ctx context.Context, ownerId string, id int, isActive bool) (*T, error) {

	var result *T
	var err error
	db := config.GetDB()

	if ownerId == "" {
		err = db.WithContext(ctx).First(&result, id).Error
	} else {
		err = db.WithContext(ctx).Where("owner_id = ?", ownerId).First(&result, id).Error
	}
	if err != nil {
		return nil, err
	}

	tx := db.Begin()
	if err := tx.WithContext(ctx).Model(&result).
		UpdateColumn("IsActive", isActive).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := RemoveRedisBoth(*result); err != nil {
		tx.Rollback()
		return nil, err
	}

	return result, tx.Commit().Error
}
