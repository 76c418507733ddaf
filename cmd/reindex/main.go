package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"

	_ "github.com/joho/godotenv/autoload"

	"orderlake/internal/catalog"
	"orderlake/internal/config"
	"orderlake/internal/curated"
)

// reindex rebuilds the partition catalog from the curated files on disk,
// e.g. after partitions were copied in or the catalog was lost.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	flag.StringVar(&cfg.OutputDir, "output", cfg.OutputDir, "output root holding curated/")
	flag.StringVar(&cfg.CatalogDir, "catalog", cfg.CatalogDir, "pebble catalog directory (default <output>/_catalog)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("reindex failed: %v", err)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	cat, err := catalog.OpenPebble(cfg.CatalogPath())
	if err != nil {
		return err
	}
	defer cat.Close()

	store := curated.New(cfg.CuratedDir(), curated.DefaultRegistry())
	res, err := catalog.Reindex(ctx, cat, store)
	if err != nil {
		return err
	}
	log.Printf("reindex: %d tables, %d partitions, %d rows", res.Tables, res.Partitions, res.Rows)
	return nil
}
