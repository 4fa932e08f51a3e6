// seed-admin creates the bootstrap admin user if it does not already exist.
// The password comes from SEED_ADMIN_PASSWORD; there is no default.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//     SEED_ADMIN_PASSWORD=... go run ./cmd/seed-admin
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/warehouse_backend/config"
	"github.com/mmdatafocus/warehouse_backend/models"
)

const (
	adminUsername = "warehouseAdmin"
	adminName     = "Warehouse Admin"
)

func main() {
	password := strings.TrimSpace(os.Getenv("SEED_ADMIN_PASSWORD"))
	if password == "" {
		fmt.Fprintln(os.Stderr, "SEED_ADMIN_PASSWORD is required")
		os.Exit(1)
	}

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	if existing, err := models.GetUserByUsername(ctx, db, adminUsername); err == nil && existing != nil {
		fmt.Printf("admin user %q already exists (id=%d); nothing to do\n", adminUsername, existing.ID)
		return
	}

	user, err := models.CreateUser(ctx, db, &models.NewUser{
		Username: adminUsername,
		Name:     adminName,
		Password: password,
		Role:     string(models.UserRoleAdmin),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create admin user: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("created admin user %q (id=%d)\n", user.Username, user.ID)
}
