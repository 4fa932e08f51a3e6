package models

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReconciliationRecord links one invoice line item to one calculated cost (or
// records the absence of either) with the resulting variance. The match itself
// is never retroactively altered; staff append resolution notes afterwards.
type ReconciliationRecord struct {
	ID                int                  `gorm:"primary_key" json:"id"`
	InvoiceId         int                  `gorm:"index;not null" json:"invoice_id"`
	InvoiceLineItemId *int                 `gorm:"index" json:"invoice_line_item_id"`
	CalculatedCostId  *int                 `gorm:"index" json:"calculated_cost_id"`
	WarehouseId       int                  `gorm:"not null" json:"warehouse_id"`
	PeriodStart       time.Time            `gorm:"not null" json:"period_start"`
	PeriodEnd         time.Time            `gorm:"not null" json:"period_end"`
	Category          CostCategory         `gorm:"size:20;not null" json:"category"`
	CostName          string               `gorm:"size:100;not null" json:"cost_name"`
	InvoicedAmount    *decimal.Decimal     `gorm:"type:decimal(20,4)" json:"invoiced_amount"`
	CalculatedAmount  *decimal.Decimal     `gorm:"type:decimal(20,4)" json:"calculated_amount"`
	Variance          decimal.Decimal      `gorm:"type:decimal(20,4);not null" json:"variance"`
	Status            ReconciliationStatus `gorm:"size:30;not null" json:"status"`
	ResolutionNote    *string              `gorm:"type:text" json:"resolution_note"`
	ResolvedBy        *int                 `json:"resolved_by"`
	ResolvedAt        *time.Time           `json:"resolved_at"`
	CreatedAt         time.Time            `gorm:"autoCreateTime" json:"created_at"`
}

// ReconciliationTolerance absorbs rounding noise: a variance within the looser
// of the absolute and percentage bounds still counts as matched.
type ReconciliationTolerance struct {
	Absolute decimal.Decimal
	Percent  decimal.Decimal // e.g. 0.5 = 0.5% of the calculated amount
}

func DefaultReconciliationTolerance() ReconciliationTolerance {
	return ReconciliationTolerance{
		Absolute: decimal.RequireFromString("0.01"),
		Percent:  decimal.RequireFromString("0.5"),
	}
}

func (t ReconciliationTolerance) within(variance, calculated decimal.Decimal) bool {
	abs := variance.Abs()
	if abs.LessThanOrEqual(t.Absolute) {
		return true
	}
	if t.Percent.IsPositive() && calculated.IsPositive() {
		bound := calculated.Mul(t.Percent).Div(decimal.NewFromInt(100))
		if abs.LessThanOrEqual(bound) {
			return true
		}
	}
	return false
}

// candidate is one potential (line, cost) pairing within a category/name bucket.
type candidate struct {
	lineIdx  int
	costIdx  int
	variance decimal.Decimal
}

// matchBucket assigns invoice lines to calculated costs injectively: each line
// matches at most one cost and vice versa. Duplicate candidates are resolved
// by smallest absolute variance, then lowest line id, then lowest cost id, so
// the outcome is deterministic.
func matchBucket(lines []InvoiceLineItem, costs []CalculatedCost) (pairs []candidate, unpairedLines, unpairedCosts []int) {
	candidates := make([]candidate, 0, len(lines)*len(costs))
	for li := range lines {
		for ci := range costs {
			candidates = append(candidates, candidate{
				lineIdx:  li,
				costIdx:  ci,
				variance: lines[li].Amount.Sub(costs[ci].Amount),
			})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if cmp := a.variance.Abs().Cmp(b.variance.Abs()); cmp != 0 {
			return cmp < 0
		}
		if lines[a.lineIdx].ID != lines[b.lineIdx].ID {
			return lines[a.lineIdx].ID < lines[b.lineIdx].ID
		}
		return costs[a.costIdx].ID < costs[b.costIdx].ID
	})

	lineTaken := make([]bool, len(lines))
	costTaken := make([]bool, len(costs))
	for _, c := range candidates {
		if lineTaken[c.lineIdx] || costTaken[c.costIdx] {
			continue
		}
		lineTaken[c.lineIdx] = true
		costTaken[c.costIdx] = true
		pairs = append(pairs, c)
	}
	for li := range lines {
		if !lineTaken[li] {
			unpairedLines = append(unpairedLines, li)
		}
	}
	for ci := range costs {
		if !costTaken[ci] {
			unpairedCosts = append(unpairedCosts, ci)
		}
	}
	return pairs, unpairedLines, unpairedCosts
}

// Reconcile compares an invoice's line items against the calculated costs for
// the same (warehouse, period) and persists one record per line/cost. It is
// safe to re-run: the record set for the invoice is replaced, carrying over
// resolution fields when the same match reappears. The invoice status moves to
// Reconciled when everything matched, Disputed otherwise.
func Reconcile(ctx context.Context, db *gorm.DB, invoiceId int, tolerance ReconciliationTolerance) ([]ReconciliationRecord, error) {
	invoice, err := GetInvoice(ctx, db, invoiceId)
	if err != nil {
		return nil, err
	}
	period := BillingPeriod{Start: dateUTC(invoice.PeriodStart), End: dateUTC(invoice.PeriodEnd)}
	costs, err := loadCalculatedCosts(ctx, db, invoice.WarehouseId, period)
	if err != nil {
		return nil, err
	}

	lineBuckets := make(map[rateGroupKey][]InvoiceLineItem)
	for _, line := range invoice.LineItems {
		key := rateGroupKey{line.Category, line.CostName}
		lineBuckets[key] = append(lineBuckets[key], line)
	}
	costBuckets := make(map[rateGroupKey][]CalculatedCost)
	for _, cost := range costs {
		key := rateGroupKey{cost.Category, cost.CostName}
		costBuckets[key] = append(costBuckets[key], cost)
	}

	keys := make(map[rateGroupKey]bool)
	for key := range lineBuckets {
		keys[key] = true
	}
	for key := range costBuckets {
		keys[key] = true
	}
	orderedKeys := make([]rateGroupKey, 0, len(keys))
	for key := range keys {
		orderedKeys = append(orderedKeys, key)
	}
	sort.Slice(orderedKeys, func(i, j int) bool {
		if orderedKeys[i].Category != orderedKeys[j].Category {
			return orderedKeys[i].Category < orderedKeys[j].Category
		}
		return orderedKeys[i].Name < orderedKeys[j].Name
	})

	allMatched := true
	var records []ReconciliationRecord
	for _, key := range orderedKeys {
		lines := lineBuckets[key]
		bucketCosts := costBuckets[key]
		pairs, unpairedLines, unpairedCosts := matchBucket(lines, bucketCosts)

		for _, p := range pairs {
			line := lines[p.lineIdx]
			cost := bucketCosts[p.costIdx]
			status := ReconciliationMatched
			if !tolerance.within(p.variance, cost.Amount) {
				allMatched = false
				if p.variance.IsPositive() {
					status = ReconciliationOverBilled
				} else {
					status = ReconciliationUnderBilled
				}
			}
			lineId := line.ID
			costId := cost.ID
			invoiced := line.Amount
			calculated := cost.Amount
			records = append(records, ReconciliationRecord{
				InvoiceId:         invoice.ID,
				InvoiceLineItemId: &lineId,
				CalculatedCostId:  &costId,
				WarehouseId:       invoice.WarehouseId,
				PeriodStart:       period.Start,
				PeriodEnd:         period.End,
				Category:          key.Category,
				CostName:          key.Name,
				InvoicedAmount:    &invoiced,
				CalculatedAmount:  &calculated,
				Variance:          p.variance,
				Status:            status,
			})
		}
		for _, li := range unpairedLines {
			allMatched = false
			line := lines[li]
			lineId := line.ID
			invoiced := line.Amount
			records = append(records, ReconciliationRecord{
				InvoiceId:         invoice.ID,
				InvoiceLineItemId: &lineId,
				WarehouseId:       invoice.WarehouseId,
				PeriodStart:       period.Start,
				PeriodEnd:         period.End,
				Category:          key.Category,
				CostName:          key.Name,
				InvoicedAmount:    &invoiced,
				Variance:          line.Amount,
				Status:            ReconciliationMissingFromCalc,
			})
		}
		for _, ci := range unpairedCosts {
			allMatched = false
			cost := bucketCosts[ci]
			costId := cost.ID
			calculated := cost.Amount
			records = append(records, ReconciliationRecord{
				InvoiceId:         invoice.ID,
				CalculatedCostId:  &costId,
				WarehouseId:       invoice.WarehouseId,
				PeriodStart:       period.Start,
				PeriodEnd:         period.End,
				Category:          key.Category,
				CostName:          key.Name,
				CalculatedAmount:  &calculated,
				Variance:          cost.Amount.Neg(),
				Status:            ReconciliationMissingFromInvoice,
			})
		}
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var previous []ReconciliationRecord
		if err := tx.Where("invoice_id = ?", invoice.ID).Find(&previous).Error; err != nil {
			return err
		}
		// carry resolution fields over when the identical match reappears
		type matchKey struct {
			lineId, costId int
			status         ReconciliationStatus
		}
		resolved := make(map[matchKey]*ReconciliationRecord)
		for i := range previous {
			p := &previous[i]
			if p.ResolvedAt == nil {
				continue
			}
			key := matchKey{derefInt(p.InvoiceLineItemId), derefInt(p.CalculatedCostId), p.Status}
			resolved[key] = p
		}
		for i := range records {
			r := &records[i]
			key := matchKey{derefInt(r.InvoiceLineItemId), derefInt(r.CalculatedCostId), r.Status}
			if p, ok := resolved[key]; ok {
				r.ResolutionNote = p.ResolutionNote
				r.ResolvedBy = p.ResolvedBy
				r.ResolvedAt = p.ResolvedAt
			}
		}

		if err := tx.Where("invoice_id = ?", invoice.ID).Delete(&ReconciliationRecord{}).Error; err != nil {
			return err
		}
		if len(records) > 0 {
			if err := tx.Create(&records).Error; err != nil {
				return err
			}
		}

		status := InvoiceStatusReconciled
		if !allMatched {
			status = InvoiceStatusDisputed
		}
		return updateInvoiceStatus(ctx, tx, invoice.ID, status)
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func ListReconciliationRecords(ctx context.Context, db *gorm.DB, invoiceId int) ([]ReconciliationRecord, error) {
	var records []ReconciliationRecord
	if err := db.WithContext(ctx).
		Where("invoice_id = ?", invoiceId).
		Order("category, cost_name, id").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// ResolveReconciliationRecord appends a staff resolution to a record. The
// match, variance and status stay untouched.
func ResolveReconciliationRecord(ctx context.Context, db *gorm.DB, recordId int, note string, resolvedBy int) (*ReconciliationRecord, error) {
	var record ReconciliationRecord
	if err := db.WithContext(ctx).First(&record, recordId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("reconciliation record not found")
		}
		return nil, err
	}
	now := time.Now().UTC()
	if err := db.WithContext(ctx).Model(&record).Updates(map[string]interface{}{
		"resolution_note": note,
		"resolved_by":     resolvedBy,
		"resolved_at":     now,
	}).Error; err != nil {
		return nil, err
	}
	record.ResolutionNote = &note
	record.ResolvedBy = &resolvedBy
	record.ResolvedAt = &now
	return &record, nil
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
