// Package catalog tracks what the pipeline has committed: row counts per
// curated partition and the ingestion watermark per source entity.
package catalog

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// PartitionStat is the last known state of one curated partition file.
type PartitionStat struct {
	Table     string    `json:"table"`
	Partition string    `json:"partition"`
	Rows      int64     `json:"rows"`
	Mode      string    `json:"mode"`
	LastRunID string    `json:"lastRunId,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Catalog abstracts the catalog backend.
type Catalog interface {
	RecordPartition(st PartitionStat) error
	Partition(table, partition string) (PartitionStat, bool, error)
	// RangePartitions visits partitions ordered by table then partition.
	// An empty table visits every table.
	RangePartitions(table string, fn func(st PartitionStat) error) error
	// ReplacePartitions drops every partition stat and stores stats instead.
	ReplacePartitions(stats []PartitionStat) error
	Watermark(entity string) (time.Time, bool, error)
	// AdvanceWatermark moves the watermark forward only; it reports whether
	// the stored value changed.
	AdvanceWatermark(entity string, ts time.Time) (bool, error)
	Close() error
}

// MemoryCatalog is a simple thread-safe map catalog.
type MemoryCatalog struct {
	mu         sync.RWMutex
	partitions map[string]PartitionStat
	watermarks map[string]time.Time
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		partitions: make(map[string]PartitionStat),
		watermarks: make(map[string]time.Time),
	}
}

func (m *MemoryCatalog) RecordPartition(st PartitionStat) error {
	if err := checkStat(st); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.partitions[partitionKey(st.Table, st.Partition)] = st
	return nil
}

func (m *MemoryCatalog) Partition(table, partition string) (PartitionStat, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.partitions[partitionKey(table, partition)]
	return st, ok, nil
}

func (m *MemoryCatalog) RangePartitions(table string, fn func(st PartitionStat) error) error {
	m.mu.RLock()
	keys := make([]string, 0, len(m.partitions))
	for k, st := range m.partitions {
		if table == "" || st.Table == table {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	stats := make([]PartitionStat, 0, len(keys))
	for _, k := range keys {
		stats = append(stats, m.partitions[k])
	}
	m.mu.RUnlock()

	for _, st := range stats {
		if err := fn(st); err != nil {
			return fmt.Errorf("range callback failed: %w", err)
		}
	}
	return nil
}

func (m *MemoryCatalog) ReplacePartitions(stats []PartitionStat) error {
	for _, st := range stats {
		if err := checkStat(st); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.partitions = make(map[string]PartitionStat, len(stats))
	for _, st := range stats {
		m.partitions[partitionKey(st.Table, st.Partition)] = st
	}
	return nil
}

func (m *MemoryCatalog) Watermark(entity string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ts, ok := m.watermarks[entity]
	return ts, ok, nil
}

func (m *MemoryCatalog) AdvanceWatermark(entity string, ts time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.watermarks[entity]
	if ok && !ts.After(cur) {
		return false, nil
	}
	m.watermarks[entity] = ts.UTC()
	return true, nil
}

func (m *MemoryCatalog) Close() error { return nil }

const (
	partitionPrefix = "partition/"
	watermarkPrefix = "watermark/"
)

func partitionKey(table, partition string) string {
	return partitionPrefix + table + "/" + partition
}

func watermarkKey(entity string) string { return watermarkPrefix + entity }

func checkStat(st PartitionStat) error {
	if st.Table == "" || st.Partition == "" {
		return fmt.Errorf("partition stat needs table and partition: %+v", st)
	}
	return nil
}
