package models

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/warehouse_backend/utils"
	"gorm.io/gorm"
)

// InventoryTransaction is the append-only source of truth for all inventory
// movement. Rows are never updated or deleted; corrections are offsetting
// ADJUST_IN / ADJUST_OUT rows. Every derived table (balances, storage ledger,
// calculated costs) must be fully reproducible by replaying these rows.
type InventoryTransaction struct {
	ID          int             `gorm:"primary_key" json:"id"`
	Type        TransactionType `gorm:"size:20;not null;index" json:"type"`
	WarehouseId int             `gorm:"index:idx_txn_wh_sku_lot,priority:1;not null" json:"warehouse_id"`
	SkuId       int             `gorm:"index:idx_txn_wh_sku_lot,priority:2;not null" json:"sku_id"`
	BatchLot    string          `gorm:"index:idx_txn_wh_sku_lot,priority:3;size:100" json:"batch_lot"`
	// Quantity is a positive carton count; the type determines the sign.
	// TRANSFER rows carry their own sign (positive = into this warehouse).
	Quantity int `gorm:"not null" json:"quantity"`
	// UnitsPerCarton is snapshotted at transaction time and never recomputed
	// from the current SKU master, to preserve historical accuracy.
	UnitsPerCarton  int        `gorm:"not null" json:"units_per_carton"`
	TransactionDate time.Time  `gorm:"index;not null" json:"transaction_date"`
	PickupDate      *time.Time `json:"pickup_date"`
	CorrelationId   string     `gorm:"size:64;index" json:"correlation_id"`
	CreatedBy       int        `json:"created_by"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// BeforeUpdate blocks mutation: the ledger is append-only.
func (t *InventoryTransaction) BeforeUpdate(tx *gorm.DB) error {
	return ErrTransactionImmutable
}

// BeforeDelete blocks deletion: the ledger is append-only.
func (t *InventoryTransaction) BeforeDelete(tx *gorm.DB) error {
	return ErrTransactionImmutable
}

// SignedQuantity applies the type's direction: receives and adjust-ins count
// positive, shipments and adjust-outs negative, transfers as stored.
func (t *InventoryTransaction) SignedQuantity() int {
	if sign := t.Type.Sign(); sign != 0 {
		if t.Quantity < 0 {
			return -t.Quantity * sign
		}
		return t.Quantity * sign
	}
	return t.Quantity
}

// EffectiveLedgerDate is the date a movement hits the storage ledger. Outbound
// stock keeps accruing storage until its pickup date when one is recorded.
func (t *InventoryTransaction) EffectiveLedgerDate() time.Time {
	if t.PickupDate != nil && t.SignedQuantity() < 0 {
		return dateUTC(*t.PickupDate)
	}
	return dateUTC(t.TransactionDate)
}

type NewInventoryTransaction struct {
	Type            TransactionType `json:"type" binding:"required"`
	WarehouseId     int             `json:"warehouse_id" binding:"required"`
	SkuId           int             `json:"sku_id" binding:"required"`
	BatchLot        string          `json:"batch_lot"`
	Quantity        int             `json:"quantity" binding:"required"`
	TransactionDate time.Time       `json:"transaction_date" binding:"required"`
	PickupDate      *time.Time      `json:"pickup_date"`
}

func (input *NewInventoryTransaction) validate(ctx context.Context, db *gorm.DB) error {
	if !input.Type.Valid() {
		return errors.New("invalid transaction type")
	}
	if input.Type == TransactionTypeTransfer {
		if input.Quantity == 0 {
			return errors.New("transfer quantity cannot be zero")
		}
	} else if input.Quantity <= 0 {
		return errors.New("quantity must be positive; direction comes from the type")
	}
	if input.TransactionDate.IsZero() {
		return errors.New("transaction date is required")
	}
	if input.PickupDate != nil && input.PickupDate.Before(input.TransactionDate) {
		return errors.New("pickup date cannot precede the transaction date")
	}
	if err := validateWarehouseId(ctx, db, input.WarehouseId); err != nil {
		return err
	}
	return nil
}

func CreateInventoryTransaction(ctx context.Context, db *gorm.DB, input *NewInventoryTransaction) (*InventoryTransaction, error) {
	if err := input.validate(ctx, db); err != nil {
		return nil, err
	}
	sku, err := GetSku(ctx, db, input.SkuId)
	if err != nil {
		return nil, err
	}

	txn := InventoryTransaction{
		Type:            input.Type,
		WarehouseId:     input.WarehouseId,
		SkuId:           sku.ID,
		BatchLot:        input.BatchLot,
		Quantity:        input.Quantity,
		UnitsPerCarton:  sku.UnitsPerCarton,
		TransactionDate: dateUTC(input.TransactionDate),
		CorrelationId:   correlationIdFromContextOrNew(ctx),
	}
	if input.PickupDate != nil {
		d := dateUTC(*input.PickupDate)
		txn.PickupDate = &d
	}
	if userId, ok := utils.GetUserIdFromContext(ctx); ok {
		txn.CreatedBy = userId
	}

	if err := db.WithContext(ctx).Create(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

// loadTransactionsForScope returns the ledger for a warehouse (or all
// warehouses when nil), ordered so a running-balance walk is deterministic:
// same-day rows apply in ascending id order. A non-nil until drops rows dated
// after it; the storage ledger passes nil because its period bound already
// excludes events outside the window.
func loadTransactionsForScope(ctx context.Context, db *gorm.DB, warehouseId *int, until *time.Time) ([]InventoryTransaction, error) {
	dbCtx := db.WithContext(ctx).Model(&InventoryTransaction{})
	if warehouseId != nil && *warehouseId > 0 {
		dbCtx = dbCtx.Where("warehouse_id = ?", *warehouseId)
	}
	if until != nil {
		dbCtx = dbCtx.Where("transaction_date <= ?", *until)
	}
	var txns []InventoryTransaction
	if err := dbCtx.
		Order("warehouse_id, sku_id, batch_lot, transaction_date, id").
		Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

// MovementSum is one aggregated row of sumMovementsBySku.
type MovementSum struct {
	SkuId   int `json:"sku_id"`
	Cartons int `json:"cartons"`
}

// sumMovementsBySku totals absolute carton quantities per SKU for the given
// transaction types within a billing period. This is the basis source for
// movement-priced (per-carton / per-pallet) rates.
func sumMovementsBySku(ctx context.Context, db *gorm.DB, warehouseId int, types []TransactionType, period BillingPeriod) ([]MovementSum, error) {
	if len(types) == 0 {
		return nil, nil
	}
	var rows []MovementSum
	if err := db.WithContext(ctx).Raw(`
		SELECT
			sku_id,
			SUM(ABS(quantity)) AS cartons
		FROM inventory_transactions
		WHERE warehouse_id = ?
			AND type IN ?
			AND transaction_date >= ?
			AND transaction_date <= ?
		GROUP BY sku_id
		ORDER BY sku_id
	`, warehouseId, types, period.Start, period.End).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
