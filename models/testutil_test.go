package models_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mmdatafocus/warehouse_backend/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// openTestDB gives each test its own in-memory database, migrated and ready.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedWarehouse(t *testing.T, db *gorm.DB, code string) *models.Warehouse {
	t.Helper()
	warehouse, err := models.CreateWarehouse(context.Background(), db, &models.NewWarehouse{
		Code:     code,
		Name:     code + " Warehouse",
		Operator: "Acme 3PL",
		Timezone: "UTC",
	})
	if err != nil {
		t.Fatalf("CreateWarehouse %s: %v", code, err)
	}
	return warehouse
}

func seedSku(t *testing.T, db *gorm.DB, code string, unitsPerCarton, cartonsPerPallet int) *models.Sku {
	t.Helper()
	sku, err := models.CreateSku(context.Background(), db, &models.NewSku{
		Code:             code,
		Name:             code + " Product",
		UnitsPerCarton:   unitsPerCarton,
		CartonsPerPallet: cartonsPerPallet,
	})
	if err != nil {
		t.Fatalf("CreateSku %s: %v", code, err)
	}
	return sku
}

func addTxn(t *testing.T, db *gorm.DB, input models.NewInventoryTransaction) *models.InventoryTransaction {
	t.Helper()
	txn, err := models.CreateInventoryTransaction(context.Background(), db, &input)
	if err != nil {
		t.Fatalf("CreateInventoryTransaction (%s %d on %s): %v",
			input.Type, input.Quantity, input.TransactionDate.Format("2006-01-02"), err)
	}
	return txn
}

func addRate(t *testing.T, db *gorm.DB, input models.NewCostRate) *models.CostRate {
	t.Helper()
	rate, err := models.CreateCostRate(context.Background(), db, &input)
	if err != nil {
		t.Fatalf("CreateCostRate (%s/%s): %v", input.Category, input.Name, err)
	}
	return rate
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}
