package models

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Sku is the product master. UnitsPerCarton here is the current packing spec;
// transactions snapshot their own copy so history stays accurate when the
// master changes.
type Sku struct {
	ID               int       `gorm:"primary_key" json:"id"`
	Code             string    `gorm:"size:50;not null;unique" json:"code" binding:"required"`
	Name             string    `gorm:"size:100;not null" json:"name" binding:"required"`
	UnitsPerCarton   int       `gorm:"not null;default:1" json:"units_per_carton"`
	CartonsPerPallet int       `gorm:"not null;default:1" json:"cartons_per_pallet"`
	IsActive         *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewSku struct {
	Code             string `json:"code" binding:"required"`
	Name             string `json:"name" binding:"required"`
	UnitsPerCarton   int    `json:"units_per_carton" binding:"required,gt=0"`
	CartonsPerPallet int    `json:"cartons_per_pallet" binding:"required,gt=0"`
}

func CreateSku(ctx context.Context, db *gorm.DB, input *NewSku) (*Sku, error) {
	if input.UnitsPerCarton <= 0 || input.CartonsPerPallet <= 0 {
		return nil, errors.New("units per carton and cartons per pallet must be positive")
	}
	var count int64
	if err := db.WithContext(ctx).Model(&Sku{}).Where("code = ?", input.Code).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("sku code already in use")
	}

	sku := Sku{
		Code:             input.Code,
		Name:             input.Name,
		UnitsPerCarton:   input.UnitsPerCarton,
		CartonsPerPallet: input.CartonsPerPallet,
	}
	if err := db.WithContext(ctx).Create(&sku).Error; err != nil {
		return nil, err
	}
	return &sku, nil
}

func GetSku(ctx context.Context, db *gorm.DB, id int) (*Sku, error) {
	var sku Sku
	if err := db.WithContext(ctx).First(&sku, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("sku not found")
		}
		return nil, err
	}
	return &sku, nil
}

func ListSkus(ctx context.Context, db *gorm.DB) ([]Sku, error) {
	var skus []Sku
	if err := db.WithContext(ctx).Order("id").Find(&skus).Error; err != nil {
		return nil, err
	}
	return skus, nil
}

// skuPackingMap returns id -> cartonsPerPallet for pallet math.
func skuPackingMap(ctx context.Context, db *gorm.DB) (map[int]int, error) {
	var skus []Sku
	if err := db.WithContext(ctx).Select("id", "cartons_per_pallet").Find(&skus).Error; err != nil {
		return nil, err
	}
	packing := make(map[int]int, len(skus))
	for _, s := range skus {
		packing[s.ID] = s.CartonsPerPallet
	}
	return packing, nil
}

// palletsFor converts a carton count to whole pallets, rounded up.
// Non-positive carton counts occupy no pallets.
func palletsFor(cartons, cartonsPerPallet int) int {
	if cartons <= 0 {
		return 0
	}
	if cartonsPerPallet <= 0 {
		cartonsPerPallet = 1
	}
	return (cartons + cartonsPerPallet - 1) / cartonsPerPallet
}
