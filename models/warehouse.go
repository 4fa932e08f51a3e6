package models

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Warehouse struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Code      string    `gorm:"size:20;not null;unique" json:"code" binding:"required"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Operator  string    `gorm:"size:100" json:"operator"` // third-party operator who invoices us
	Address   string    `gorm:"type:text" json:"address"`
	Timezone  string    `gorm:"size:50" json:"timezone"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewWarehouse struct {
	Code     string `json:"code" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Operator string `json:"operator"`
	Address  string `json:"address"`
	Timezone string `json:"timezone"`
}

func (input *NewWarehouse) validate(ctx context.Context, db *gorm.DB, id int) error {
	var count int64
	if err := db.WithContext(ctx).Model(&Warehouse{}).
		Where("code = ? AND id != ?", input.Code, id).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return errors.New("warehouse code already in use")
	}
	return nil
}

func CreateWarehouse(ctx context.Context, db *gorm.DB, input *NewWarehouse) (*Warehouse, error) {
	if err := input.validate(ctx, db, 0); err != nil {
		return nil, err
	}

	warehouse := Warehouse{
		Code:     input.Code,
		Name:     input.Name,
		Operator: input.Operator,
		Address:  input.Address,
		Timezone: input.Timezone,
	}
	if err := db.WithContext(ctx).Create(&warehouse).Error; err != nil {
		return nil, err
	}
	return &warehouse, nil
}

func GetWarehouse(ctx context.Context, db *gorm.DB, id int) (*Warehouse, error) {
	var warehouse Warehouse
	if err := db.WithContext(ctx).First(&warehouse, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("warehouse not found")
		}
		return nil, err
	}
	return &warehouse, nil
}

func ListWarehouses(ctx context.Context, db *gorm.DB) ([]Warehouse, error) {
	var warehouses []Warehouse
	if err := db.WithContext(ctx).Order("id").Find(&warehouses).Error; err != nil {
		return nil, err
	}
	return warehouses, nil
}

func validateWarehouseId(ctx context.Context, db *gorm.DB, id int) error {
	if id <= 0 {
		return errors.New("warehouse id is required")
	}
	var count int64
	if err := db.WithContext(ctx).Model(&Warehouse{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count <= 0 {
		return errors.New("warehouse not found")
	}
	return nil
}
