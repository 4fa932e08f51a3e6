// storage-ledger-backfill regenerates storage ledger entries for a range of
// billing months. Regeneration is idempotent per (warehouse, period) scope, so
// re-running over months that already have entries is safe.
//
// Usage (from backend directory):
//   go run ./cmd/storage-ledger-backfill -from 2026-01 -to 2026-06
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mmdatafocus/warehouse_backend/config"
	"github.com/mmdatafocus/warehouse_backend/models"
)

func parseMonth(s string) (int, int, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, err
	}
	return t.Year(), int(t.Month()), nil
}

func main() {
	from := flag.String("from", "", "Required: first month to backfill (YYYY-MM)")
	to := flag.String("to", "", "Optional: last month to backfill (YYYY-MM). Defaults to -from.")
	warehouseID := flag.Int("warehouse-id", 0, "Optional: backfill only this warehouse. 0 backfills all warehouses.")
	policy := flag.String("policy", "", "Optional: billing period policy (CalendarMonth or MondayCycle). Defaults to CalendarMonth.")
	continueOnError := flag.Bool("continue-on-error", false, "Skip failing months and continue backfilling others")
	flag.Parse()

	if strings.TrimSpace(*from) == "" {
		fmt.Fprintln(os.Stderr, "--from is required")
		os.Exit(1)
	}
	fromYear, fromMonth, err := parseMonth(*from)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid from month: %v\n", err)
		os.Exit(1)
	}
	toYear, toMonth := fromYear, fromMonth
	if strings.TrimSpace(*to) != "" {
		toYear, toMonth, err = parseMonth(*to)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid to month: %v\n", err)
			os.Exit(1)
		}
	}
	if toYear*12+toMonth < fromYear*12+fromMonth {
		fmt.Fprintln(os.Stderr, "--to is before --from")
		os.Exit(1)
	}

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}

	var scope *int
	if *warehouseID > 0 {
		scope = warehouseID
	}

	total := 0
	failed := 0
	for y, m := fromYear, fromMonth; y*12+m <= toYear*12+toMonth; {
		count, err := models.GenerateStorageLedger(ctx, db, y, m, scope, models.PeriodPolicy(*policy))
		if err != nil {
			fmt.Fprintf(os.Stderr, "%04d-%02d: %v\n", y, m, err)
			if !*continueOnError {
				os.Exit(1)
			}
			failed++
		} else {
			fmt.Printf("%04d-%02d: wrote %d ledger rows\n", y, m, count)
			total += count
		}
		m++
		if m > 12 {
			m = 1
			y++
		}
	}

	fmt.Printf("done: %d rows written", total)
	if failed > 0 {
		fmt.Printf(", %d months failed", failed)
	}
	fmt.Println()
}
