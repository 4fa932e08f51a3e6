package models_test

import (
	"context"
	"testing"

	"github.com/mmdatafocus/warehouse_backend/models"
)

func TestCreateUserHashesPasswordAndEnforcesRole(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	user, err := models.CreateUser(ctx, db, &models.NewUser{
		Username: "ops1",
		Name:     "Ops One",
		Password: "s3cret-pass",
		Role:     "Operator",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.Password == "s3cret-pass" {
		t.Fatalf("password stored in plaintext")
	}
	if user.Role != models.UserRoleOperator {
		t.Fatalf("role = %s, want Operator", user.Role)
	}

	loaded, err := models.GetUserByUsername(ctx, db, "ops1")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if !loaded.CheckPassword("s3cret-pass") {
		t.Fatalf("CheckPassword rejected the correct password")
	}
	if loaded.CheckPassword("wrong-pass") {
		t.Fatalf("CheckPassword accepted a wrong password")
	}

	// roles are a closed enum
	if _, err := models.CreateUser(ctx, db, &models.NewUser{
		Username: "x", Name: "X", Password: "password123", Role: "SuperUser",
	}); err == nil {
		t.Fatalf("unknown role accepted")
	}
	// usernames are unique
	if _, err := models.CreateUser(ctx, db, &models.NewUser{
		Username: "ops1", Name: "Dup", Password: "password123", Role: "Operator",
	}); err == nil {
		t.Fatalf("duplicate username accepted")
	}
}
