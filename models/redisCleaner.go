package models

import (
	"github.com/yeboahd24/t-beauty/utils"
)

type RedisCleaner interface {
	RemoveInstanceRedis() error // remove one
	RemoveAllRedis() error      // remove cached list if exists
}

// remove both the item cache and the list cache
func RemoveRedisBoth[T RedisCleaner](obj T) error {
	if err := obj.RemoveInstanceRedis(); err != nil {
		return err
	}
	if err := obj.RemoveAllRedis(); err != nil {
		return err
	}
	return nil
}

func (obj Product) RemoveInstanceRedis() error {
	if err := utils.RemoveRedisItem[Product](obj.ID); err != nil {
		return err
	}
	return nil
}

func (obj Product) RemoveAllRedis() error {
	return utils.RemoveRedisList[Product](obj.OwnerId)
}

func (obj InventoryUnit) RemoveInstanceRedis() error {
	if err := utils.RemoveRedisItem[InventoryUnit](obj.ID); err != nil {
		return err
	}
	return nil
}

func (obj InventoryUnit) RemoveAllRedis() error {
	return utils.RemoveRedisList[InventoryUnit](obj.OwnerId)
}

func (obj Customer) RemoveInstanceRedis() error {
	if err := utils.RemoveRedisItem[Customer](obj.ID); err != nil {
		return err
	}
	return nil
}

func (obj Customer) RemoveAllRedis() error {
	return nil
}

func (obj Order) RemoveInstanceRedis() error {
	if err := utils.RemoveRedisItem[Order](obj.ID); err != nil {
		return err
	}
	return nil
}

func (obj Order) RemoveAllRedis() error {
	return nil
}
