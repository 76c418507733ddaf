package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"orderlake/internal/dimension"
	"orderlake/internal/source"
	"orderlake/internal/transform"
)

func TestGenerate_OutputIsReadableByThePipeline(t *testing.T) {
	dir := t.TempDir()
	opts := options{
		count:     200,
		users:     5,
		products:  4,
		dupRate:   0.2,
		badRate:   0.1,
		seed:      42,
		start:     time.Date(2025, 8, 20, 0, 0, 0, 0, time.UTC),
		outputDir: dir,
	}
	if err := generate(opts); err != nil {
		t.Fatalf("generate: %v", err)
	}

	raws, err := source.NewFileSource(filepath.Join(dir, "api_orders.json")).Fetch(context.Background(), nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(raws) <= opts.count {
		t.Fatalf("want duplicates on top of %d orders, got %d records", opts.count, len(raws))
	}
	valid, rejected := transform.Validate(raws)
	if len(rejected) == 0 {
		t.Fatalf("want some invalid orders")
	}
	if deduped := transform.Dedupe(valid); len(deduped) >= len(valid) {
		t.Fatalf("want duplicates removed, %d -> %d", len(valid), len(deduped))
	}

	users, err := dimension.LoadUsers(filepath.Join(dir, "users.csv"))
	if err != nil || len(users) != 5 {
		t.Fatalf("users: %d %v", len(users), err)
	}
	products, err := dimension.LoadProducts(filepath.Join(dir, "products.csv"))
	if err != nil || len(products.Rows()) != 4 {
		t.Fatalf("products: %v", err)
	}
	if _, ok := products.Price("p1"); !ok {
		t.Fatalf("p1 has no price")
	}
}

func TestGenerate_NeedsReferenceRows(t *testing.T) {
	if err := generate(options{count: 1, outputDir: t.TempDir()}); err == nil {
		t.Fatalf("expected error")
	}
}
