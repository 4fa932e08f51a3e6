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

// CalculatedCost is one computed expected charge for a billing period.
// Recomputation for the same (warehouse, period) is a delete-then-insert in
// one transaction scoped exactly to that period, so reruns are idempotent and
// adjacent periods are never touched.
type CalculatedCost struct {
	ID            int             `gorm:"primary_key" json:"id"`
	WarehouseId   int             `gorm:"index:idx_cc_scope,priority:1;not null" json:"warehouse_id"`
	PeriodStart   time.Time       `gorm:"index:idx_cc_scope,priority:2;not null" json:"period_start"`
	PeriodEnd     time.Time       `gorm:"index:idx_cc_scope,priority:3;not null" json:"period_end"`
	Category      CostCategory    `gorm:"size:20;not null" json:"category"`
	CostName      string          `gorm:"size:100;not null" json:"cost_name"`
	SkuId         *int            `gorm:"index" json:"sku_id"` // nil = aggregated over unscoped SKUs
	BasisQuantity decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"basis_quantity"`
	Unit          UnitOfMeasure   `gorm:"size:20;not null" json:"unit"`
	RateApplied   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"rate_applied"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	RequestedBy   int             `json:"requested_by"`
	CorrelationId string          `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// chargeFor applies quantity x rate with the rate's min/max clamps, rounded to
// 2 decimal places. Fixed-point decimals throughout; no binary floats.
func chargeFor(rate *CostRate, basis decimal.Decimal) decimal.Decimal {
	amount := basis.Mul(rate.Rate).Round(2)
	if rate.MinCharge != nil && amount.LessThan(*rate.MinCharge) {
		amount = rate.MinCharge.Round(2)
	}
	if rate.MaxCharge != nil && amount.GreaterThan(*rate.MaxCharge) {
		amount = rate.MaxCharge.Round(2)
	}
	return amount
}

type rateGroupKey struct {
	Category CostCategory
	Name     string
}

// periodBases holds the per-SKU basis sources for one calculation run.
type periodBases struct {
	movements map[CostCategory]map[int]int // category -> sku -> cartons moved
	durations map[int]DurationSum          // sku -> pallet/carton days
}

func (b *periodBases) basisFor(rate *CostRate, skuId int, packing map[int]int) decimal.Decimal {
	switch rate.Unit {
	case UnitFlat:
		return decimal.NewFromInt(1)
	case UnitPerCarton:
		return decimal.NewFromInt(int64(b.movements[rate.Category][skuId]))
	case UnitPerPallet:
		cartons := b.movements[rate.Category][skuId]
		return decimal.NewFromInt(int64(palletsFor(cartons, packing[skuId])))
	case UnitPerPalletDay:
		return b.durations[skuId].PalletDays
	case UnitPerCartonDay:
		return b.durations[skuId].CartonDays
	}
	return decimal.Zero
}

// skuUniverse is the set of SKUs with billable activity for a category.
func (b *periodBases) skuUniverse(category CostCategory) []int {
	seen := map[int]bool{}
	if category == CostCategoryStorage {
		for skuId := range b.durations {
			seen[skuId] = true
		}
	}
	for skuId := range b.movements[category] {
		seen[skuId] = true
	}
	skus := make([]int, 0, len(seen))
	for skuId := range seen {
		skus = append(skus, skuId)
	}
	sort.Ints(skus)
	return skus
}

func collectPeriodBases(ctx context.Context, db *gorm.DB, warehouseId int, period BillingPeriod, rates []CostRate) (*periodBases, error) {
	bases := &periodBases{
		movements: make(map[CostCategory]map[int]int),
		durations: make(map[int]DurationSum),
	}

	needDurations := false
	for i := range rates {
		r := &rates[i]
		if r.Unit.IsDuration() {
			needDurations = true
		}
		types := r.Category.MovementTypes()
		if len(types) == 0 || bases.movements[r.Category] != nil {
			continue
		}
		sums, err := sumMovementsBySku(ctx, db, warehouseId, types, period)
		if err != nil {
			return nil, err
		}
		perSku := make(map[int]int, len(sums))
		for _, s := range sums {
			perSku[s.SkuId] = s.Cartons
		}
		bases.movements[r.Category] = perSku
	}

	if needDurations {
		sums, err := sumStorageDaysBySku(ctx, db, warehouseId, period)
		if err != nil {
			return nil, err
		}
		for _, s := range sums {
			bases.durations[s.SkuId] = s
		}
	}
	return bases, nil
}

// CalculateAndStoreCosts derives the expected charges for a warehouse and
// billing period from the active rate table, movement sums, and the storage
// ledger. A rate gap for a SKU with billable activity aborts the entire run:
// a partial invoice is worse than a visible failure.
func CalculateAndStoreCosts(ctx context.Context, db *gorm.DB, warehouseId int, period BillingPeriod, requestedBy int) error {
	if period.Start.IsZero() || period.End.Before(period.Start) {
		return fmt.Errorf("%w: %s", ErrInvalidPeriod, period)
	}
	if err := validateWarehouseId(ctx, db, warehouseId); err != nil {
		return err
	}

	release, err := utils.ObtainScopeLock(ctx, "cost-calc", fmt.Sprintf("%d:%s", warehouseId, period), 5*time.Minute)
	if err != nil {
		return err
	}
	defer release()

	rates, err := FindActiveRates(ctx, db, warehouseId)
	if err != nil {
		return err
	}
	packing, err := skuPackingMap(ctx, db)
	if err != nil {
		return err
	}
	bases, err := collectPeriodBases(ctx, db, warehouseId, period, rates)
	if err != nil {
		return err
	}

	groups := make(map[rateGroupKey][]CostRate)
	for _, r := range rates {
		key := rateGroupKey{r.Category, r.Name}
		groups[key] = append(groups[key], r)
	}
	groupKeys := make([]rateGroupKey, 0, len(groups))
	for key := range groups {
		groupKeys = append(groupKeys, key)
	}
	sort.Slice(groupKeys, func(i, j int) bool {
		if groupKeys[i].Category != groupKeys[j].Category {
			return groupKeys[i].Category < groupKeys[j].Category
		}
		return groupKeys[i].Name < groupKeys[j].Name
	})

	correlationId := correlationIdFromContextOrNew(ctx)
	var rows []CalculatedCost
	appendRow := func(rate *CostRate, skuId *int, basis decimal.Decimal) {
		rows = append(rows, CalculatedCost{
			WarehouseId:   warehouseId,
			PeriodStart:   period.Start,
			PeriodEnd:     period.End,
			Category:      rate.Category,
			CostName:      rate.Name,
			SkuId:         skuId,
			BasisQuantity: basis,
			Unit:          rate.Unit,
			RateApplied:   rate.Rate,
			Amount:        chargeFor(rate, basis),
			RequestedBy:   requestedBy,
			CorrelationId: correlationId,
		})
	}

	for _, key := range groupKeys {
		groupRates := groups[key]

		// flat fees charge once per period regardless of activity
		for i := range groupRates {
			r := &groupRates[i]
			if r.Unit == UnitFlat {
				appendRow(r, r.SkuId, decimal.NewFromInt(1))
			}
		}

		genericBasis := decimal.Zero
		var genericRate *CostRate
		for _, skuId := range bases.skuUniverse(key.Category) {
			rate, err := resolveRateFrom(groupRates, warehouseId, key.Category, key.Name, skuId)
			if err != nil {
				// a lot moved or stored with no applicable rate: fail the whole
				// calculation, never omit the charge
				return err
			}
			if rate.Unit == UnitFlat {
				continue
			}
			basis := bases.basisFor(rate, skuId, packing)
			if basis.IsZero() {
				continue
			}
			if rate.SkuId != nil {
				skuId := skuId
				appendRow(rate, &skuId, basis)
				continue
			}
			genericRate = rate
			genericBasis = genericBasis.Add(basis)
		}
		if genericRate != nil && !genericBasis.IsZero() {
			appendRow(genericRate, nil, genericBasis)
		}
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("warehouse_id = ? AND period_start = ? AND period_end = ?",
				warehouseId, period.Start, period.End).
			Delete(&CalculatedCost{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}

// CalculatedCostGroup is the read contract for reconciliation screens: the
// period's computed charges grouped by category with a subtotal.
type CalculatedCostGroup struct {
	Category CostCategory     `json:"category"`
	Subtotal decimal.Decimal  `json:"subtotal"`
	Items    []CalculatedCost `json:"items"`
}

func loadCalculatedCosts(ctx context.Context, db *gorm.DB, warehouseId int, period BillingPeriod) ([]CalculatedCost, error) {
	var costs []CalculatedCost
	if err := db.WithContext(ctx).
		Where("warehouse_id = ? AND period_start = ? AND period_end = ?",
			warehouseId, period.Start, period.End).
		Order("category, cost_name, sku_id").
		Find(&costs).Error; err != nil {
		return nil, err
	}
	return costs, nil
}

func GetCalculatedCostsForReconciliation(ctx context.Context, db *gorm.DB, warehouseId int, period BillingPeriod) ([]CalculatedCostGroup, error) {
	if period.Start.IsZero() || period.End.Before(period.Start) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPeriod, period)
	}
	costs, err := loadCalculatedCosts(ctx, db, warehouseId, period)
	if err != nil {
		return nil, err
	}

	var result []CalculatedCostGroup
	for _, cost := range costs {
		if len(result) == 0 || result[len(result)-1].Category != cost.Category {
			result = append(result, CalculatedCostGroup{Category: cost.Category, Subtotal: decimal.Zero})
		}
		group := &result[len(result)-1]
		group.Items = append(group.Items, cost)
		group.Subtotal = group.Subtotal.Add(cost.Amount)
	}
	return result, nil
}
