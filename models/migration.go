package models

import (
	"log"

	"github.com/mmdatafocus/warehouse_backend/config"
	"gorm.io/gorm"
)

// Migrate runs schema auto-migration against the given handle. Tests pass an
// in-memory database here.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Warehouse{}, &Sku{}, &User{},
		&InventoryTransaction{}, &InventoryBalance{},
		&CostRate{}, &StorageLedgerEntry{}, &CalculatedCost{},
		&Invoice{}, &InvoiceLineItem{},
		&ReconciliationRecord{},
	)
}

func MigrateTable() {
	if err := Migrate(config.GetDB()); err != nil {
		log.Fatal(err)
	}
}
