// balance-rebuild recomputes inventory balances from the transaction log.
// With no flags it rebuilds every warehouse; pass -warehouse-id to scope the
// rebuild to one warehouse.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/balance-rebuild
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mmdatafocus/warehouse_backend/config"
	"github.com/mmdatafocus/warehouse_backend/models"
)

func main() {
	warehouseID := flag.Int("warehouse-id", 0, "Optional: rebuild only this warehouse. 0 rebuilds all warehouses.")
	flag.Parse()

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	var scope *int
	if *warehouseID > 0 {
		scope = warehouseID
	}

	count, anomalies, err := models.RecomputeBalances(ctx, db, scope)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rebuild failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("rebuilt %d balance rows\n", count)
	if len(anomalies) > 0 {
		fmt.Printf("%d negative balance anomalies:\n", len(anomalies))
		for _, a := range anomalies {
			fmt.Printf("  warehouse=%d sku=%d lot=%q lowest=%d first_seen=%s\n",
				a.WarehouseId, a.SkuId, a.BatchLot, a.LowestQty, a.FirstSeenAt.Format("2006-01-02"))
		}
	}
}
