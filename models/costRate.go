package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mmdatafocus/warehouse_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var validate = validator.New()

// CostRate is one rate-table entry. A rate may be scoped to a single SKU;
// unscoped rates apply to all SKUs of the warehouse. No two active rates may
// share (warehouse, category, name, sku scope).
type CostRate struct {
	ID          int              `gorm:"primary_key" json:"id"`
	WarehouseId int              `gorm:"index:idx_rate_wh_cat,priority:1;not null" json:"warehouse_id"`
	Category    CostCategory     `gorm:"index:idx_rate_wh_cat,priority:2;size:20;not null" json:"category"`
	Name        string           `gorm:"size:100;not null" json:"name"`
	Rate        decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"rate"`
	Unit        UnitOfMeasure    `gorm:"size:20;not null" json:"unit"`
	SkuId       *int             `gorm:"index" json:"sku_id"` // nil = applies to all SKUs
	MinCharge   *decimal.Decimal `gorm:"type:decimal(20,4)" json:"min_charge"`
	MaxCharge   *decimal.Decimal `gorm:"type:decimal(20,4)" json:"max_charge"`
	IsActive    *bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCostRate struct {
	WarehouseId int     `json:"warehouse_id" binding:"required" validate:"required,gt=0"`
	Category    string  `json:"category" binding:"required" validate:"required"`
	Name        string  `json:"name" binding:"required" validate:"required,max=100"`
	Rate        string  `json:"rate" binding:"required" validate:"required"`
	Unit        string  `json:"unit" binding:"required" validate:"required"`
	SkuId       *int    `json:"sku_id" validate:"omitempty,gt=0"`
	MinCharge   *string `json:"min_charge"`
	MaxCharge   *string `json:"max_charge"`
}

func rateTableCacheKey(warehouseId int) string {
	return fmt.Sprintf("rateTable:%d", warehouseId)
}

func CreateCostRate(ctx context.Context, db *gorm.DB, input *NewCostRate) (*CostRate, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	category := CostCategory(input.Category)
	if !category.Valid() {
		return nil, errors.New("invalid cost category")
	}
	unit := UnitOfMeasure(input.Unit)
	if !unit.Valid() {
		return nil, errors.New("invalid unit of measure")
	}
	if err := validateWarehouseId(ctx, db, input.WarehouseId); err != nil {
		return nil, err
	}
	if input.SkuId != nil {
		if _, err := GetSku(ctx, db, *input.SkuId); err != nil {
			return nil, err
		}
	}
	rate, err := decimal.NewFromString(input.Rate)
	if err != nil || rate.IsNegative() {
		return nil, errors.New("rate must be a non-negative decimal")
	}

	var minCharge, maxCharge *decimal.Decimal
	if input.MinCharge != nil {
		v, err := decimal.NewFromString(*input.MinCharge)
		if err != nil {
			return nil, errors.New("invalid min charge")
		}
		minCharge = &v
	}
	if input.MaxCharge != nil {
		v, err := decimal.NewFromString(*input.MaxCharge)
		if err != nil {
			return nil, errors.New("invalid max charge")
		}
		maxCharge = &v
	}
	if minCharge != nil && maxCharge != nil && maxCharge.LessThan(*minCharge) {
		return nil, errors.New("max charge cannot be below min charge")
	}

	// uniqueness: active (warehouse, category, name, sku scope)
	dbCtx := db.WithContext(ctx).Model(&CostRate{}).
		Where("warehouse_id = ? AND category = ? AND name = ? AND is_active = ?",
			input.WarehouseId, category, input.Name, true)
	if input.SkuId != nil {
		dbCtx = dbCtx.Where("sku_id = ?", *input.SkuId)
	} else {
		dbCtx = dbCtx.Where("sku_id IS NULL")
	}
	var count int64
	if err := dbCtx.Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("an active rate with this warehouse, category, name and scope already exists")
	}

	costRate := CostRate{
		WarehouseId: input.WarehouseId,
		Category:    category,
		Name:        input.Name,
		Rate:        rate,
		Unit:        unit,
		SkuId:       input.SkuId,
		MinCharge:   minCharge,
		MaxCharge:   maxCharge,
	}
	if err := db.WithContext(ctx).Create(&costRate).Error; err != nil {
		return nil, err
	}
	// drop the cached rate table for the warehouse
	if err := config.RemoveRedisKey(rateTableCacheKey(input.WarehouseId)); err != nil {
		config.LogError(config.GetLogger(), "costRate.go", "CreateCostRate", "invalidate cache", input.WarehouseId, err)
	}
	return &costRate, nil
}

func DeactivateCostRate(ctx context.Context, db *gorm.DB, id int) error {
	var costRate CostRate
	if err := db.WithContext(ctx).First(&costRate, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.New("rate not found")
		}
		return err
	}
	inactive := false
	if err := db.WithContext(ctx).Model(&costRate).Update("is_active", &inactive).Error; err != nil {
		return err
	}
	if err := config.RemoveRedisKey(rateTableCacheKey(costRate.WarehouseId)); err != nil {
		config.LogError(config.GetLogger(), "costRate.go", "DeactivateCostRate", "invalidate cache", costRate.WarehouseId, err)
	}
	return nil
}

// FindActiveRates returns the warehouse's active rate table, redis-cached.
// The cache is an accelerator only: a redis outage degrades to DB reads, it
// never fails a rate lookup.
func FindActiveRates(ctx context.Context, db *gorm.DB, warehouseId int) ([]CostRate, error) {
	rates := make([]CostRate, 0)
	cacheKey := rateTableCacheKey(warehouseId)
	exists, err := config.GetRedisObject(cacheKey, &rates)
	if err != nil {
		config.LogError(config.GetLogger(), "costRate.go", "FindActiveRates", "read cached rate table", warehouseId, err)
		rates = rates[:0]
	} else if exists {
		return rates, nil
	}

	if err := db.WithContext(ctx).
		Where("warehouse_id = ? AND is_active = ?", warehouseId, true).
		Order("category, name, sku_id").
		Find(&rates).Error; err != nil {
		return nil, err
	}
	if err := config.SetRedisObject(cacheKey, &rates, 0); err != nil {
		config.LogError(config.GetLogger(), "costRate.go", "FindActiveRates", "cache rate table", warehouseId, err)
	}
	return rates, nil
}

// ResolveRate finds the applicable rate for (warehouse, category, name) and an
// optional SKU. A SKU-scoped rate wins over the unscoped one; there is no
// fallback across warehouses and no silent zero default.
func ResolveRate(ctx context.Context, db *gorm.DB, warehouseId int, category CostCategory, name string, skuId int) (*CostRate, error) {
	rates, err := FindActiveRates(ctx, db, warehouseId)
	if err != nil {
		return nil, err
	}
	return resolveRateFrom(rates, warehouseId, category, name, skuId)
}

// resolveRateFrom is the pure resolution step over an already loaded table.
func resolveRateFrom(rates []CostRate, warehouseId int, category CostCategory, name string, skuId int) (*CostRate, error) {
	var generic *CostRate
	for i := range rates {
		r := &rates[i]
		if r.Category != category || r.Name != name {
			continue
		}
		if r.SkuId != nil {
			if skuId > 0 && *r.SkuId == skuId {
				return r, nil
			}
			continue
		}
		if generic == nil {
			generic = r
		}
	}
	if generic != nil {
		return generic, nil
	}
	return nil, &RateNotFoundError{WarehouseId: warehouseId, Category: category, CostName: name, SkuId: skuId}
}
