package storage

import (
	"testing"
	"time"
)

func TestBuildExportPath(t *testing.T) {
	ts := time.Date(2026, time.February, 19, 4, 5, 6, 789_000_000, time.FixedZone("x", -5*3600))
	key, err := BuildExportPath("shop.sqlite", "users", ts)
	if err != nil {
		t.Fatalf("BuildExportPath() error = %v", err)
	}
	want := "shop/users/export-20260219T090506.789Z.parquet"
	if key != want {
		t.Fatalf("BuildExportPath() = %q, want %q", key, want)
	}
}

func TestBuildExportPathSanitizesTableName(t *testing.T) {
	key, err := BuildExportPath("analytics.duckdb", `order items"`, time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("BuildExportPath() error = %v", err)
	}
	want := "analytics/order_items_/export-20260101T000000.000Z.parquet"
	if key != want {
		t.Fatalf("BuildExportPath() = %q, want %q", key, want)
	}
}

func TestBuildExportPathRejectsInvalidComponent(t *testing.T) {
	if _, err := BuildExportPath("../oops.db", "events", time.Now()); err == nil {
		t.Fatal("expected invalid database error")
	}
	if _, err := BuildExportPath("shop.db", "...", time.Now()); err == nil {
		t.Fatal("expected invalid table error")
	}
}
