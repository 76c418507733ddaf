package catalog

import (
	"context"
	"fmt"
	"log"
	"time"
)

// PartitionSource lists the partition files actually on disk.
type PartitionSource interface {
	Tables() ([]string, error)
	Partitions(table string) ([]string, error)
	CountRows(table, partition string) (int64, error)
}

// Result summarizes a rebuild.
type Result struct {
	Tables     int
	Partitions int
	Rows       int64
}

// Reindex rebuilds the partition stats from src, dropping entries for files
// that no longer exist. Watermarks are kept.
func Reindex(ctx context.Context, cat Catalog, src PartitionSource) (Result, error) {
	tables, err := src.Tables()
	if err != nil {
		return Result{}, fmt.Errorf("list tables: %w", err)
	}
	var res Result
	var stats []PartitionStat
	now := time.Now().UTC()
	for _, table := range tables {
		parts, err := src.Partitions(table)
		if err != nil {
			return Result{}, fmt.Errorf("list partitions of %s: %w", table, err)
		}
		res.Tables++
		for _, part := range parts {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			n, err := src.CountRows(table, part)
			if err != nil {
				return Result{}, fmt.Errorf("count %s/%s: %w", table, part, err)
			}
			st := PartitionStat{Table: table, Partition: part, Rows: n, Mode: "reindexed", UpdatedAt: now}
			if prev, ok, err := cat.Partition(table, part); err == nil && ok {
				st.LastRunID = prev.LastRunID
			}
			stats = append(stats, st)
			res.Partitions++
			res.Rows += n
		}
	}
	if err := cat.ReplacePartitions(stats); err != nil {
		return Result{}, fmt.Errorf("replace partitions: %w", err)
	}
	log.Printf("catalog: reindexed %d partitions across %d tables (%d rows)", res.Partitions, res.Tables, res.Rows)
	return res, nil
}
