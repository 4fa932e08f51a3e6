package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/warehouse_backend/utils"
)

var (
	// ErrInvalidPeriod is returned for malformed or inverted billing date ranges,
	// before any computation starts.
	ErrInvalidPeriod = errors.New("invalid billing period")

	// ErrInvoiceNotFound is returned when reconciliation is requested for an
	// invoice id that does not exist.
	ErrInvoiceNotFound = errors.New("invoice not found")

	// ErrRecomputeConflict is returned when another recompute holds the scope
	// lock. Callers should retry after a short backoff.
	ErrRecomputeConflict = utils.ErrScopeLocked

	// ErrTransactionImmutable is returned on any attempt to update or delete an
	// inventory transaction. Corrections are made with offsetting ADJUST_IN /
	// ADJUST_OUT rows.
	ErrTransactionImmutable = errors.New("inventory transactions are append-only")

	// ErrBalanceWriteBlocked is returned when inventory balance rows are written
	// outside the aggregator.
	ErrBalanceWriteBlocked = errors.New("inventory balances are derived; use RecomputeBalances")
)

// RateNotFoundError aborts a whole cost calculation. A missing rate must never
// be defaulted to zero: a silent zero-charge would corrupt the reconciliation
// feeding into actual billing decisions.
type RateNotFoundError struct {
	WarehouseId int
	Category    CostCategory
	CostName    string
	SkuId       int // 0 when no SKU scope was requested
}

func (e *RateNotFoundError) Error() string {
	if e.SkuId > 0 {
		return fmt.Sprintf("no active rate for warehouse=%d category=%s name=%q sku=%d",
			e.WarehouseId, e.Category, e.CostName, e.SkuId)
	}
	return fmt.Sprintf("no active rate for warehouse=%d category=%s name=%q",
		e.WarehouseId, e.Category, e.CostName)
}

// NegativeBalanceAnomaly reports a lot whose running total went negative at
// some point in history. It is a warning, not a hard failure: data entry errors
// happen and the system reports rather than blocks.
type NegativeBalanceAnomaly struct {
	WarehouseId int       `json:"warehouse_id"`
	SkuId       int       `json:"sku_id"`
	BatchLot    string    `json:"batch_lot"`
	LowestQty   int       `json:"lowest_qty"`
	FirstSeenAt time.Time `json:"first_seen_at"`
}
