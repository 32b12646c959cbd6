package nubodb

import (
	"context"
	"testing"

	"github.com/kartikbazzad/nubodb/internal/queryengine"
	"github.com/kartikbazzad/nubodb/internal/storage"
)

func TestProjectionMixedModeIsQueryShapeError(t *testing.T) {
	db := openTestDB(t)
	users, err := db.CreateCollection("users", CollectionConfig{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := users.Insert(storage.Document{"name": "Alice", "age": float64(30)}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	ctx := context.Background()
	_, err = users.Find(ctx, map[string]interface{}{}, queryengine.Options{
		Projection: map[string]int{"name": 1, "age": 0},
	})
	if err == nil {
		t.Error("expected a query-shape error for mixed projection modes")
	}
}

func TestQueryBuilderFindOneAndDelete(t *testing.T) {
	db := openTestDB(t)
	users, err := db.CreateCollection("users", CollectionConfig{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := users.Insert(storage.Document{"name": "Alice"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	ctx := context.Background()
	deleted, err := users.Query().Where("name", "Alice").FindOneAndDelete(ctx)
	if err != nil {
		t.Fatalf("find one and delete: %v", err)
	}
	if deleted == nil {
		t.Fatal("expected a deleted document to be returned")
	}

	exists, err := users.Query().Where("name", "Alice").Exists(ctx)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists {
		t.Error("expected the document to no longer exist")
	}
}

func TestQueryBuilderAndGroup(t *testing.T) {
	db := openTestDB(t)
	users, err := db.CreateCollection("users", CollectionConfig{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := users.Insert(storage.Document{"name": "Alice", "age": float64(30), "active": true}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := users.Insert(storage.Document{"name": "Bob", "age": float64(30), "active": false}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	ctx := context.Background()
	count, err := users.Query().And("age", float64(30)).And("active", true).Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("expected exactly one match, got %d", count)
	}
}
