package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cockroachdb/pebble"
)

// PebbleCatalog implements Catalog using PebbleDB. Values are JSON.
type PebbleCatalog struct {
	db *pebble.DB
}

func OpenPebble(dir string) (*PebbleCatalog, error) {
	opts := &pebble.Options{
		// the catalog is small; keep the memtable modest
		MemTableSize: 8 << 20,
	}
	d, err := pebble.Open(filepath.Clean(dir), opts)
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &PebbleCatalog{db: d}, nil
}

func (p *PebbleCatalog) Close() error { return p.db.Close() }

func (p *PebbleCatalog) RecordPartition(st PartitionStat) error {
	if err := checkStat(st); err != nil {
		return err
	}
	b, err := json.Marshal(&st)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := p.db.Set([]byte(partitionKey(st.Table, st.Partition)), b, pebble.Sync); err != nil {
		return fmt.Errorf("pebble set: %w", err)
	}
	return nil
}

func (p *PebbleCatalog) Partition(table, partition string) (PartitionStat, bool, error) {
	var st PartitionStat
	ok, err := p.get([]byte(partitionKey(table, partition)), &st)
	return st, ok, err
}

func (p *PebbleCatalog) RangePartitions(table string, fn func(st PartitionStat) error) error {
	prefix := partitionPrefix
	if table != "" {
		prefix = partitionPrefix + table + "/"
	}
	it, err := p.db.NewIter(prefixOptions([]byte(prefix)))
	if err != nil {
		return fmt.Errorf("pebble iter: %w", err)
	}
	defer it.Close()
	for it.First(); it.Valid(); it.Next() {
		var st PartitionStat
		if err := json.Unmarshal(it.Value(), &st); err != nil {
			return fmt.Errorf("decode %s: %w", it.Key(), err)
		}
		if err := fn(st); err != nil {
			return fmt.Errorf("range callback failed: %w", err)
		}
	}
	return it.Error()
}

// ReplacePartitions rewrites the partition keyspace in one batch; watermarks
// are left alone.
func (p *PebbleCatalog) ReplacePartitions(stats []PartitionStat) error {
	wb := p.db.NewBatch()
	defer wb.Close()
	start := []byte(partitionPrefix)
	if err := wb.DeleteRange(start, prefixEnd(start), nil); err != nil {
		return fmt.Errorf("pebble delete range: %w", err)
	}
	for _, st := range stats {
		if err := checkStat(st); err != nil {
			return err
		}
		b, err := json.Marshal(&st)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		if err := wb.Set([]byte(partitionKey(st.Table, st.Partition)), b, nil); err != nil {
			return fmt.Errorf("pebble set: %w", err)
		}
	}
	if err := wb.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("pebble commit: %w", err)
	}
	return nil
}

func (p *PebbleCatalog) Watermark(entity string) (time.Time, bool, error) {
	var ts time.Time
	ok, err := p.get([]byte(watermarkKey(entity)), &ts)
	return ts, ok, err
}

// AdvanceWatermark is a read-modify-write; the catalog has a single writer.
func (p *PebbleCatalog) AdvanceWatermark(entity string, ts time.Time) (bool, error) {
	cur, ok, err := p.Watermark(entity)
	if err != nil {
		return false, err
	}
	if ok && !ts.After(cur) {
		return false, nil
	}
	b, err := json.Marshal(ts.UTC())
	if err != nil {
		return false, fmt.Errorf("marshal: %w", err)
	}
	if err := p.db.Set([]byte(watermarkKey(entity)), b, pebble.Sync); err != nil {
		return false, fmt.Errorf("pebble set: %w", err)
	}
	return true, nil
}

func (p *PebbleCatalog) get(key []byte, out any) (bool, error) {
	v, closer, err := p.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("pebble get: %w", err)
	}
	defer closer.Close()
	if err := json.Unmarshal(v, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func prefixOptions(prefix []byte) *pebble.IterOptions {
	return &pebble.IterOptions{LowerBound: prefix, UpperBound: prefixEnd(prefix)}
}

// prefixEnd returns the smallest key greater than every key with prefix.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
