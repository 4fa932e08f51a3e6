package models_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmdatafocus/warehouse_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// billableMonth seeds a warehouse with one SKU, 50 cartons held days 1..10 of
// April 2026 (10 cartons per pallet, so 50 pallet-days), and generates the
// storage ledger for the month.
func billableMonth(t *testing.T, db *gorm.DB) (*models.Warehouse, *models.Sku, models.BillingPeriod) {
	t.Helper()
	ctx := context.Background()
	warehouse := seedWarehouse(t, db, "WH-A")
	sku := seedSku(t, db, "SKU-1", 12, 10)

	addTxn(t, db, models.NewInventoryTransaction{
		Type: models.TransactionTypeReceive, WarehouseId: warehouse.ID, SkuId: sku.ID,
		BatchLot: "LOT-1", Quantity: 50, TransactionDate: day(2026, time.April, 1),
	})
	addTxn(t, db, models.NewInventoryTransaction{
		Type: models.TransactionTypeShip, WarehouseId: warehouse.ID, SkuId: sku.ID,
		BatchLot: "LOT-1", Quantity: 50, TransactionDate: day(2026, time.April, 11),
	})
	if _, err := models.GenerateStorageLedger(ctx, db, 2026, 4, nil, ""); err != nil {
		t.Fatalf("GenerateStorageLedger: %v", err)
	}
	period, err := models.ResolveBillingPeriod(2026, 4, "")
	if err != nil {
		t.Fatalf("ResolveBillingPeriod: %v", err)
	}
	return warehouse, sku, period
}

func loadCosts(t *testing.T, db *gorm.DB) []models.CalculatedCost {
	t.Helper()
	var costs []models.CalculatedCost
	if err := db.Order("category, cost_name, sku_id").Find(&costs).Error; err != nil {
		t.Fatalf("load calculated costs: %v", err)
	}
	return costs
}

func TestCalculateCostsStorageCharge(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	warehouse, _, period := billableMonth(t, db)

	addRate(t, db, models.NewCostRate{
		WarehouseId: warehouse.ID,
		Category:    "Storage",
		Name:        "Pallet Storage",
		Rate:        "2.00",
		Unit:        "PerPalletDay",
	})

	if err := models.CalculateAndStoreCosts(ctx, db, warehouse.ID, period, 1); err != nil {
		t.Fatalf("CalculateAndStoreCosts: %v", err)
	}

	costs := loadCosts(t, db)
	if len(costs) != 1 {
		t.Fatalf("calculated costs = %d rows, want 1", len(costs))
	}
	c := costs[0]
	// 50 pallet-days x $2.00
	if !c.Amount.Equal(decimal.RequireFromString("100.00")) {
		t.Fatalf("storage amount = %s, want 100.00", c.Amount)
	}
	if !c.BasisQuantity.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("basis = %s, want 50 pallet-days", c.BasisQuantity)
	}
	if c.SkuId != nil {
		t.Fatalf("generic rate row carries sku scope %v, want nil", *c.SkuId)
	}
}

func TestCalculateCostsHandlingAndFlat(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	warehouse, _, period := billableMonth(t, db)

	addRate(t, db, models.NewCostRate{
		WarehouseId: warehouse.ID, Category: "HandlingIn",
		Name: "Inbound Handling", Rate: "0.50", Unit: "PerCarton",
	})
	addRate(t, db, models.NewCostRate{
		WarehouseId: warehouse.ID, Category: "HandlingOut",
		Name: "Outbound Handling", Rate: "3.00", Unit: "PerPallet",
	})
	addRate(t, db, models.NewCostRate{
		WarehouseId: warehouse.ID, Category: "Management",
		Name: "Account Management", Rate: "500.00", Unit: "Flat",
	})

	if err := models.CalculateAndStoreCosts(ctx, db, warehouse.ID, period, 1); err != nil {
		t.Fatalf("CalculateAndStoreCosts: %v", err)
	}

	costs := loadCosts(t, db)
	if len(costs) != 3 {
		t.Fatalf("calculated costs = %d rows, want 3", len(costs))
	}
	byName := map[string]models.CalculatedCost{}
	for _, c := range costs {
		byName[c.CostName] = c
	}
	// 50 cartons received x $0.50
	if got := byName["Inbound Handling"].Amount; !got.Equal(decimal.RequireFromString("25.00")) {
		t.Fatalf("inbound amount = %s, want 25.00", got)
	}
	// 50 cartons shipped = 5 pallets x $3.00
	if got := byName["Outbound Handling"].Amount; !got.Equal(decimal.RequireFromString("15.00")) {
		t.Fatalf("outbound amount = %s, want 15.00", got)
	}
	// flat fee charges once regardless of volume
	if got := byName["Account Management"].Amount; !got.Equal(decimal.RequireFromString("500.00")) {
		t.Fatalf("management amount = %s, want 500.00", got)
	}
}

func TestCalculateCostsMinMaxClamp(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	warehouse, _, period := billableMonth(t, db)

	min := "150.00"
	addRate(t, db, models.NewCostRate{
		WarehouseId: warehouse.ID, Category: "Storage",
		Name: "Pallet Storage", Rate: "2.00", Unit: "PerPalletDay",
		MinCharge: &min,
	})
	max := "20.00"
	addRate(t, db, models.NewCostRate{
		WarehouseId: warehouse.ID, Category: "HandlingIn",
		Name: "Inbound Handling", Rate: "0.50", Unit: "PerCarton",
		MaxCharge: &max,
	})

	if err := models.CalculateAndStoreCosts(ctx, db, warehouse.ID, period, 1); err != nil {
		t.Fatalf("CalculateAndStoreCosts: %v", err)
	}
	costs := loadCosts(t, db)
	byName := map[string]models.CalculatedCost{}
	for _, c := range costs {
		byName[c.CostName] = c
	}
	// raw 100.00 lifted to the 150.00 minimum
	if got := byName["Pallet Storage"].Amount; !got.Equal(decimal.RequireFromString("150.00")) {
		t.Fatalf("clamped storage amount = %s, want 150.00", got)
	}
	// raw 25.00 capped at the 20.00 maximum
	if got := byName["Inbound Handling"].Amount; !got.Equal(decimal.RequireFromString("20.00")) {
		t.Fatalf("clamped handling amount = %s, want 20.00", got)
	}
}

func TestCalculateCostsSkuScopedRateRows(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	warehouse := seedWarehouse(t, db, "WH-A")
	premium := seedSku(t, db, "SKU-PREMIUM", 12, 10)
	standard := seedSku(t, db, "SKU-STD", 12, 10)

	for _, sku := range []*models.Sku{premium, standard} {
		addTxn(t, db, models.NewInventoryTransaction{
			Type: models.TransactionTypeReceive, WarehouseId: warehouse.ID, SkuId: sku.ID,
			Quantity: 100, TransactionDate: day(2026, time.April, 5),
		})
	}

	addRate(t, db, models.NewCostRate{
		WarehouseId: warehouse.ID, Category: "HandlingIn",
		Name: "Inbound Handling", Rate: "0.50", Unit: "PerCarton",
	})
	addRate(t, db, models.NewCostRate{
		WarehouseId: warehouse.ID, Category: "HandlingIn",
		Name: "Inbound Handling", Rate: "0.80", Unit: "PerCarton",
		SkuId: &premium.ID,
	})

	period, _ := models.ResolveBillingPeriod(2026, 4, "")
	if err := models.CalculateAndStoreCosts(ctx, db, warehouse.ID, period, 1); err != nil {
		t.Fatalf("CalculateAndStoreCosts: %v", err)
	}

	costs := loadCosts(t, db)
	if len(costs) != 2 {
		t.Fatalf("calculated costs = %d rows, want a scoped row and a generic row", len(costs))
	}
	var scopedAmount, genericAmount decimal.Decimal
	for _, c := range costs {
		if c.SkuId != nil {
			if *c.SkuId != premium.ID {
				t.Fatalf("scoped row sku = %d, want %d", *c.SkuId, premium.ID)
			}
			scopedAmount = c.Amount
		} else {
			genericAmount = c.Amount
		}
	}
	if !scopedAmount.Equal(decimal.RequireFromString("80.00")) {
		t.Fatalf("premium sku amount = %s, want 80.00", scopedAmount)
	}
	if !genericAmount.Equal(decimal.RequireFromString("50.00")) {
		t.Fatalf("generic amount = %s, want 50.00", genericAmount)
	}
}

func TestCalculateCostsRerunIsReproducible(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	warehouse, _, period := billableMonth(t, db)

	addRate(t, db, models.NewCostRate{
		WarehouseId: warehouse.ID, Category: "Storage",
		Name: "Pallet Storage", Rate: "2.00", Unit: "PerPalletDay",
	})

	if err := models.CalculateAndStoreCosts(ctx, db, warehouse.ID, period, 1); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first := loadCosts(t, db)
	if err := models.CalculateAndStoreCosts(ctx, db, warehouse.ID, period, 1); err != nil {
		t.Fatalf("second run: %v", err)
	}
	second := loadCosts(t, db)

	if len(first) != len(second) {
		t.Fatalf("row count changed across reruns: %d -> %d", len(first), len(second))
	}
	for i := range first {
		a, b := first[i], second[i]
		if a.Category != b.Category || a.CostName != b.CostName ||
			!a.BasisQuantity.Equal(b.BasisQuantity) || !a.Amount.Equal(b.Amount) {
			t.Fatalf("row %d changed across reruns: %+v -> %+v", i, a, b)
		}
	}
}

func TestCalculateCostsFailsOnRateGap(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	warehouse := seedWarehouse(t, db, "WH-A")
	covered := seedSku(t, db, "SKU-1", 12, 10)
	uncovered := seedSku(t, db, "SKU-2", 12, 10)

	for _, sku := range []*models.Sku{covered, uncovered} {
		addTxn(t, db, models.NewInventoryTransaction{
			Type: models.TransactionTypeReceive, WarehouseId: warehouse.ID, SkuId: sku.ID,
			Quantity: 10, TransactionDate: day(2026, time.April, 5),
		})
	}
	// only one SKU has a rate and there is no generic fallback
	addRate(t, db, models.NewCostRate{
		WarehouseId: warehouse.ID, Category: "HandlingIn",
		Name: "Inbound Handling", Rate: "0.50", Unit: "PerCarton",
		SkuId: &covered.ID,
	})

	period, _ := models.ResolveBillingPeriod(2026, 4, "")
	err := models.CalculateAndStoreCosts(ctx, db, warehouse.ID, period, 1)
	var rateErr *models.RateNotFoundError
	if !errors.As(err, &rateErr) {
		t.Fatalf("err = %v, want RateNotFoundError for the uncovered sku", err)
	}
	if rateErr.SkuId != uncovered.ID {
		t.Fatalf("rate gap sku = %d, want %d", rateErr.SkuId, uncovered.ID)
	}

	// the failed run must not leave partial rows behind
	if costs := loadCosts(t, db); len(costs) != 0 {
		t.Fatalf("partial rows persisted after failed run: %+v", costs)
	}
}

func TestGetCalculatedCostsForReconciliationGroups(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	warehouse, _, period := billableMonth(t, db)

	addRate(t, db, models.NewCostRate{
		WarehouseId: warehouse.ID, Category: "Storage",
		Name: "Pallet Storage", Rate: "2.00", Unit: "PerPalletDay",
	})
	addRate(t, db, models.NewCostRate{
		WarehouseId: warehouse.ID, Category: "HandlingIn",
		Name: "Inbound Handling", Rate: "0.50", Unit: "PerCarton",
	})
	if err := models.CalculateAndStoreCosts(ctx, db, warehouse.ID, period, 1); err != nil {
		t.Fatalf("CalculateAndStoreCosts: %v", err)
	}

	groups, err := models.GetCalculatedCostsForReconciliation(ctx, db, warehouse.ID, period)
	if err != nil {
		t.Fatalf("GetCalculatedCostsForReconciliation: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(groups))
	}
	byCategory := map[models.CostCategory]models.CalculatedCostGroup{}
	for _, g := range groups {
		byCategory[g.Category] = g
	}
	if got := byCategory[models.CostCategoryStorage].Subtotal; !got.Equal(decimal.RequireFromString("100.00")) {
		t.Fatalf("storage subtotal = %s, want 100.00", got)
	}
	if got := byCategory[models.CostCategoryHandlingIn].Subtotal; !got.Equal(decimal.RequireFromString("25.00")) {
		t.Fatalf("handling subtotal = %s, want 25.00", got)
	}
}
