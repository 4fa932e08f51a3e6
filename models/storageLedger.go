package models

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mmdatafocus/warehouse_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StorageLedgerEntry summarizes one lot's storage accrual over one billing
// period: total pallet-days and carton-days, the integral of the lot's
// end-of-day balance curve across the period.
type StorageLedgerEntry struct {
	ID           int             `gorm:"primary_key" json:"id"`
	WarehouseId  int             `gorm:"uniqueIndex:uidx_sle_scope,priority:1;not null" json:"warehouse_id"`
	SkuId        int             `gorm:"uniqueIndex:uidx_sle_scope,priority:2;not null" json:"sku_id"`
	BatchLot     string          `gorm:"uniqueIndex:uidx_sle_scope,priority:3;size:100" json:"batch_lot"`
	PeriodStart  time.Time       `gorm:"uniqueIndex:uidx_sle_scope,priority:4;not null" json:"period_start"`
	PeriodEnd    time.Time       `gorm:"uniqueIndex:uidx_sle_scope,priority:5;not null" json:"period_end"`
	PalletDays   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"pallet_days"`
	CartonDays   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"carton_days"`
	DaysInPeriod int             `gorm:"not null" json:"days_in_period"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// storageEvent is one balance delta on the storage timeline. Outbound
// movements land on their pickup date, not their transaction date.
type storageEvent struct {
	Date  time.Time
	Id    int
	Delta int
}

// accrueLot integrates a lot's end-of-day balance over the period.
//
// Reference semantics are the naive day-walk: for every day of the period the
// end-of-day balance (opening balance plus all events dated on or before that
// day) contributes one day of cartons and of whole pallets (rounded up).
// This implementation walks event boundaries instead of days and must produce
// the same totals. Events must be sorted by (date, id); same-day events apply
// in ascending id order. Days with a negative balance accrue nothing.
func accrueLot(events []storageEvent, period BillingPeriod, cartonsPerPallet int) (cartonDays, palletDays int, active bool) {
	balance := 0
	i := 0
	for ; i < len(events) && events[i].Date.Before(period.Start); i++ {
		balance += events[i].Delta
	}

	accrue := func(bal, days int) {
		if days <= 0 {
			return
		}
		if bal != 0 {
			active = true
		}
		if bal > 0 {
			cartonDays += bal * days
			palletDays += palletsFor(bal, cartonsPerPallet) * days
		}
	}

	prev := period.Start
	for ; i < len(events) && !events[i].Date.After(period.End); i++ {
		e := events[i]
		if e.Date.After(prev) {
			// the [prev, e.Date) span still has the old end-of-day balance
			accrue(balance, int(e.Date.Sub(prev).Hours()/24))
			prev = e.Date
		}
		balance += e.Delta
	}
	accrue(balance, int(period.End.Sub(prev).Hours()/24)+1)
	return cartonDays, palletDays, active
}

type lotKey struct {
	WarehouseId int
	SkuId       int
	BatchLot    string
}

// GenerateStorageLedger produces one ledger row per lot that held stock at any
// point during the billing period of the given year/month (resolved under the
// supplied boundary policy; empty means calendar month). The write is a
// transactional delete-then-insert scoped exactly to (warehouse filter,
// period), safe to re-run.
func GenerateStorageLedger(ctx context.Context, db *gorm.DB, year, month int, warehouseId *int, policy PeriodPolicy) (int, error) {
	period, err := ResolveBillingPeriod(year, month, policy)
	if err != nil {
		return 0, err
	}

	scope := "all"
	if warehouseId != nil && *warehouseId > 0 {
		scope = fmt.Sprint(*warehouseId)
	}
	release, err := utils.ObtainScopeLock(ctx, fmt.Sprintf("storage-ledger:%s", period), scope, 5*time.Minute)
	if err != nil {
		return 0, err
	}
	defer release()

	txns, err := loadTransactionsForScope(ctx, db, warehouseId, nil)
	if err != nil {
		return 0, err
	}
	packing, err := skuPackingMap(ctx, db)
	if err != nil {
		return 0, err
	}

	events := make(map[lotKey][]storageEvent)
	for i := range txns {
		t := &txns[i]
		key := lotKey{t.WarehouseId, t.SkuId, t.BatchLot}
		events[key] = append(events[key], storageEvent{
			Date:  t.EffectiveLedgerDate(),
			Id:    t.ID,
			Delta: t.SignedQuantity(),
		})
	}

	keys := make([]lotKey, 0, len(events))
	for key := range events {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.WarehouseId != b.WarehouseId {
			return a.WarehouseId < b.WarehouseId
		}
		if a.SkuId != b.SkuId {
			return a.SkuId < b.SkuId
		}
		return a.BatchLot < b.BatchLot
	})

	rows := make([]StorageLedgerEntry, 0, len(keys))
	for _, key := range keys {
		lotEvents := events[key]
		// pickup dates can put an outbound event ahead of later transactions,
		// so re-sort on the effective timeline
		sort.Slice(lotEvents, func(i, j int) bool {
			if !lotEvents[i].Date.Equal(lotEvents[j].Date) {
				return lotEvents[i].Date.Before(lotEvents[j].Date)
			}
			return lotEvents[i].Id < lotEvents[j].Id
		})

		cartonDays, palletDays, active := accrueLot(lotEvents, period, packing[key.SkuId])
		if !active {
			continue
		}
		rows = append(rows, StorageLedgerEntry{
			WarehouseId:  key.WarehouseId,
			SkuId:        key.SkuId,
			BatchLot:     key.BatchLot,
			PeriodStart:  period.Start,
			PeriodEnd:    period.End,
			PalletDays:   decimal.NewFromInt(int64(palletDays)),
			CartonDays:   decimal.NewFromInt(int64(cartonDays)),
			DaysInPeriod: period.Days(),
		})
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		del := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).
			Where("period_start = ? AND period_end = ?", period.Start, period.End)
		if warehouseId != nil && *warehouseId > 0 {
			del = del.Where("warehouse_id = ?", *warehouseId)
		}
		if err := del.Delete(&StorageLedgerEntry{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// DurationSum is one aggregated row of sumStorageDaysBySku.
type DurationSum struct {
	SkuId      int             `json:"sku_id"`
	PalletDays decimal.Decimal `json:"pallet_days"`
	CartonDays decimal.Decimal `json:"carton_days"`
}

// sumStorageDaysBySku totals ledger pallet-days and carton-days per SKU for a
// warehouse and period. This is the basis source for duration-priced
// (per-pallet-day / per-carton-day) rates.
func sumStorageDaysBySku(ctx context.Context, db *gorm.DB, warehouseId int, period BillingPeriod) ([]DurationSum, error) {
	var rows []DurationSum
	if err := db.WithContext(ctx).Raw(`
		SELECT
			sku_id,
			SUM(pallet_days) AS pallet_days,
			SUM(carton_days) AS carton_days
		FROM storage_ledger_entries
		WHERE warehouse_id = ?
			AND period_start = ?
			AND period_end = ?
		GROUP BY sku_id
		ORDER BY sku_id
	`, warehouseId, period.Start, period.End).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
