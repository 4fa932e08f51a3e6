package models

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/warehouse_backend/utils"
	"gorm.io/gorm"
)

// InventoryBalance is a derived summary per (warehouse, SKU, batch lot). It is
// recomputed wholesale from the transaction ledger and never hand-edited:
// writes outside RecomputeBalances fail in the save hooks.
type InventoryBalance struct {
	ID             int       `gorm:"primary_key" json:"id"`
	WarehouseId    int       `gorm:"uniqueIndex:uidx_bal_wh_sku_lot,priority:1;not null" json:"warehouse_id"`
	SkuId          int       `gorm:"uniqueIndex:uidx_bal_wh_sku_lot,priority:2;not null" json:"sku_id"`
	BatchLot       string    `gorm:"uniqueIndex:uidx_bal_wh_sku_lot,priority:3;size:100" json:"batch_lot"`
	CurrentCartons int       `gorm:"not null" json:"current_cartons"`
	CurrentPallets int       `gorm:"not null" json:"current_pallets"`
	LastUpdatedAt  time.Time `gorm:"not null" json:"last_updated_at"`
}

const balanceRebuildSetting = "inventory_balance_rebuild"

func (b *InventoryBalance) guardDerivedWrite(tx *gorm.DB) error {
	if v, ok := tx.Get(balanceRebuildSetting); ok {
		if allowed, _ := v.(bool); allowed {
			return nil
		}
	}
	return ErrBalanceWriteBlocked
}

func (b *InventoryBalance) BeforeCreate(tx *gorm.DB) error { return b.guardDerivedWrite(tx) }
func (b *InventoryBalance) BeforeUpdate(tx *gorm.DB) error { return b.guardDerivedWrite(tx) }
func (b *InventoryBalance) BeforeDelete(tx *gorm.DB) error { return b.guardDerivedWrite(tx) }

func ListInventoryBalances(ctx context.Context, db *gorm.DB, warehouseId *int) ([]InventoryBalance, error) {
	dbCtx := db.WithContext(ctx).Model(&InventoryBalance{})
	if warehouseId != nil && *warehouseId > 0 {
		dbCtx = dbCtx.Where("warehouse_id = ?", *warehouseId)
	}
	var balances []InventoryBalance
	if err := dbCtx.Order("warehouse_id, sku_id, batch_lot").Find(&balances).Error; err != nil {
		return nil, err
	}
	return balances, nil
}

// balanceTotal is the outcome of replaying one lot's ledger.
type balanceTotal struct {
	WarehouseId int
	SkuId       int
	BatchLot    string
	Cartons     int
}

// replayLedger walks transactions (already ordered by warehouse, sku, lot,
// date, id) and produces final totals per lot plus anomalies for lots whose
// running balance dipped below zero at any point.
func replayLedger(txns []InventoryTransaction) ([]balanceTotal, []NegativeBalanceAnomaly) {
	var totals []balanceTotal
	var anomalies []NegativeBalanceAnomaly

	flush := func(cur *balanceTotal, lowest int, firstNegAt time.Time) {
		if cur == nil {
			return
		}
		totals = append(totals, *cur)
		if lowest < 0 {
			anomalies = append(anomalies, NegativeBalanceAnomaly{
				WarehouseId: cur.WarehouseId,
				SkuId:       cur.SkuId,
				BatchLot:    cur.BatchLot,
				LowestQty:   lowest,
				FirstSeenAt: firstNegAt,
			})
		}
	}

	var cur *balanceTotal
	var lowest int
	var firstNegAt time.Time
	for i := range txns {
		t := &txns[i]
		if cur == nil || cur.WarehouseId != t.WarehouseId || cur.SkuId != t.SkuId || cur.BatchLot != t.BatchLot {
			flush(cur, lowest, firstNegAt)
			cur = &balanceTotal{WarehouseId: t.WarehouseId, SkuId: t.SkuId, BatchLot: t.BatchLot}
			lowest = 0
			firstNegAt = time.Time{}
		}
		cur.Cartons += t.SignedQuantity()
		if cur.Cartons < lowest {
			lowest = cur.Cartons
			if firstNegAt.IsZero() {
				firstNegAt = t.TransactionDate
			}
		}
	}
	flush(cur, lowest, firstNegAt)

	return totals, anomalies
}

// RecomputeBalances rebuilds the balance table from the full transaction
// ledger, for one warehouse or for all. The rebuild is a single transactional
// delete-then-insert, so a failure partway leaves the prior state intact, and
// re-running against an unchanged ledger writes identical rows.
//
// Negative totals are stored as-is (pallets 0) and reported in the anomaly
// list; flooring them to zero would hide a data entry error from billing.
func RecomputeBalances(ctx context.Context, db *gorm.DB, warehouseId *int) (int, []NegativeBalanceAnomaly, error) {
	scope := "all"
	if warehouseId != nil && *warehouseId > 0 {
		scope = fmt.Sprint(*warehouseId)
	}
	release, err := utils.ObtainScopeLock(ctx, "balance-recompute", scope, 2*time.Minute)
	if err != nil {
		return 0, nil, err
	}
	defer release()

	// A balance is a statement as of now: future-dated rows, such as a
	// scheduled inbound entered ahead of time, must not count yet.
	now := time.Now().UTC()
	txns, err := loadTransactionsForScope(ctx, db, warehouseId, &now)
	if err != nil {
		return 0, nil, err
	}
	packing, err := skuPackingMap(ctx, db)
	if err != nil {
		return 0, nil, err
	}

	totals, anomalies := replayLedger(txns)

	rows := make([]InventoryBalance, 0, len(totals))
	for _, total := range totals {
		rows = append(rows, InventoryBalance{
			WarehouseId:    total.WarehouseId,
			SkuId:          total.SkuId,
			BatchLot:       total.BatchLot,
			CurrentCartons: total.Cartons,
			CurrentPallets: palletsFor(total.Cartons, packing[total.SkuId]),
			LastUpdatedAt:  now,
		})
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tx = tx.Set(balanceRebuildSetting, true)
		del := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		if warehouseId != nil && *warehouseId > 0 {
			del = del.Where("warehouse_id = ?", *warehouseId)
		}
		if err := del.Delete(&InventoryBalance{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return 0, nil, err
	}
	return len(rows), anomalies, nil
}
