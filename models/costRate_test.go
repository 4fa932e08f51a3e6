package models_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmdatafocus/warehouse_backend/config"
	"github.com/mmdatafocus/warehouse_backend/models"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

func TestResolveRateSkuScopedWinsOverGeneric(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	warehouse := seedWarehouse(t, db, "WH-A")
	sku := seedSku(t, db, "SKU-1", 12, 10)
	other := seedSku(t, db, "SKU-2", 6, 20)

	addRate(t, db, models.NewCostRate{
		WarehouseId: warehouse.ID,
		Category:    "Storage",
		Name:        "Pallet Storage",
		Rate:        "2.00",
		Unit:        "PerPalletDay",
	})
	scoped := addRate(t, db, models.NewCostRate{
		WarehouseId: warehouse.ID,
		Category:    "Storage",
		Name:        "Pallet Storage",
		Rate:        "1.50",
		Unit:        "PerPalletDay",
		SkuId:       &sku.ID,
	})

	got, err := models.ResolveRate(ctx, db, warehouse.ID, models.CostCategoryStorage, "Pallet Storage", sku.ID)
	if err != nil {
		t.Fatalf("ResolveRate scoped sku: %v", err)
	}
	if got.ID != scoped.ID {
		t.Fatalf("resolved rate id = %d, want sku-scoped rate %d", got.ID, scoped.ID)
	}

	// a SKU without a scoped rate falls back to the generic rate
	got, err = models.ResolveRate(ctx, db, warehouse.ID, models.CostCategoryStorage, "Pallet Storage", other.ID)
	if err != nil {
		t.Fatalf("ResolveRate generic fallback: %v", err)
	}
	if got.SkuId != nil {
		t.Fatalf("resolved rate sku scope = %v, want generic (nil)", *got.SkuId)
	}
	if !got.Rate.Equal(decimal.RequireFromString("2.00")) {
		t.Fatalf("generic rate = %s, want 2.00", got.Rate)
	}
}

func TestResolveRateNoCrossWarehouseFallback(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	whA := seedWarehouse(t, db, "WH-A")
	whB := seedWarehouse(t, db, "WH-B")

	addRate(t, db, models.NewCostRate{
		WarehouseId: whA.ID,
		Category:    "HandlingIn",
		Name:        "Inbound Handling",
		Rate:        "0.75",
		Unit:        "PerCarton",
	})

	_, err := models.ResolveRate(ctx, db, whB.ID, models.CostCategoryHandlingIn, "Inbound Handling", 0)
	var rateErr *models.RateNotFoundError
	if !errors.As(err, &rateErr) {
		t.Fatalf("ResolveRate in other warehouse err = %v, want RateNotFoundError", err)
	}
	if rateErr.WarehouseId != whB.ID || rateErr.Category != models.CostCategoryHandlingIn {
		t.Fatalf("RateNotFoundError = %+v, want warehouse %d / HandlingIn", rateErr, whB.ID)
	}
}

func TestCreateCostRateRejectsDuplicateActiveScope(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	warehouse := seedWarehouse(t, db, "WH-A")

	input := models.NewCostRate{
		WarehouseId: warehouse.ID,
		Category:    "Management",
		Name:        "Account Management",
		Rate:        "500.00",
		Unit:        "Flat",
	}
	first := addRate(t, db, input)
	if _, err := models.CreateCostRate(ctx, db, &input); err == nil {
		t.Fatalf("duplicate active rate accepted, want error")
	}

	// deactivating the old rate frees the scope for a replacement
	if err := models.DeactivateCostRate(ctx, db, first.ID); err != nil {
		t.Fatalf("DeactivateCostRate: %v", err)
	}
	input.Rate = "550.00"
	if _, err := models.CreateCostRate(ctx, db, &input); err != nil {
		t.Fatalf("replacement rate after deactivation: %v", err)
	}

	rates, err := models.FindActiveRates(ctx, db, warehouse.ID)
	if err != nil {
		t.Fatalf("FindActiveRates: %v", err)
	}
	if len(rates) != 1 || !rates[0].Rate.Equal(decimal.RequireFromString("550.00")) {
		t.Fatalf("active rates = %+v, want one rate of 550.00", rates)
	}
}

func TestCreateCostRateValidation(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	warehouse := seedWarehouse(t, db, "WH-A")

	bad := []models.NewCostRate{
		{WarehouseId: warehouse.ID, Category: "Parking", Name: "X", Rate: "1", Unit: "Flat"},
		{WarehouseId: warehouse.ID, Category: "Storage", Name: "X", Rate: "1", Unit: "PerFortnight"},
		{WarehouseId: warehouse.ID, Category: "Storage", Name: "X", Rate: "-1", Unit: "Flat"},
		{WarehouseId: warehouse.ID + 99, Category: "Storage", Name: "X", Rate: "1", Unit: "Flat"},
	}
	for i, input := range bad {
		if _, err := models.CreateCostRate(ctx, db, &input); err == nil {
			t.Fatalf("case %d: invalid rate accepted", i)
		}
	}

	min := "100.00"
	max := "50.00"
	if _, err := models.CreateCostRate(ctx, db, &models.NewCostRate{
		WarehouseId: warehouse.ID,
		Category:    "Storage",
		Name:        "X",
		Rate:        "1",
		Unit:        "Flat",
		MinCharge:   &min,
		MaxCharge:   &max,
	}); err == nil {
		t.Fatalf("max below min accepted")
	}
}

func TestFindActiveRatesSurvivesCacheOutage(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	warehouse := seedWarehouse(t, db, "WH-A")
	addRate(t, db, models.NewCostRate{
		WarehouseId: warehouse.ID,
		Category:    "Storage",
		Name:        "Carton Storage",
		Rate:        "0.50",
		Unit:        "PerCartonDay",
	})

	// point the cache at a dead address; lookups must degrade to DB reads
	config.UseRedisClient(redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	}))
	defer config.UseRedisClient(nil)

	rates, err := models.FindActiveRates(ctx, db, warehouse.ID)
	if err != nil {
		t.Fatalf("FindActiveRates with cache down: %v", err)
	}
	if len(rates) != 1 || rates[0].Name != "Carton Storage" {
		t.Fatalf("rates = %+v, want the one seeded rate", rates)
	}
	if !rates[0].Rate.Equal(decimal.RequireFromString("0.50")) {
		t.Fatalf("rate = %s, want 0.50", rates[0].Rate)
	}
}
