package models

import (
	"log"

	"github.com/yeboahd24/t-beauty/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&User{},
		&Customer{},
		&Product{},
		&InventoryUnit{},
		&StockLedgerEntry{},
		&Order{}, &OrderLine{}, &OrderLineAllocation{},
		&PubSubMessageRecord{},
		&IdempotencyKey{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
