// Package curated persists analytic rows into date-partitioned parquet files
// and merges repeated writes by primary key.
//
// Layout: <base>/<table>/date=<YYYY-MM-DD>/<table>.parquet, one file per
// partition. Rows without a timestamp go to date=unknown.
package curated

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
)

// UnknownPartition holds rows that carry no created_at.
const UnknownPartition = "unknown"

const partitionPrefix = "date="

var (
	ErrInvalidTable      = errors.New("invalid table name")
	ErrPartitionNotFound = errors.New("partition not found")
)

// Row is a curated table row. Column returns the string form of a key
// column; Timestamp returns the row's created_at when it has one.
type Row interface {
	Column(name string) (string, bool)
	Timestamp() (time.Time, bool)
}

// Mode tells how a partition write was applied.
type Mode string

const (
	ModeCreated  Mode = "created"
	ModeMerged   Mode = "merged"
	ModeReplaced Mode = "replaced"
)

type PartitionResult struct {
	Table     string
	Partition string
	Path      string
	Mode      Mode
	Incoming  int
	Before    int
	After     int
}

type UpsertResult struct {
	Table      string
	Partitions []PartitionResult
}

// Rows returns the number of rows stored across the touched partitions.
func (r UpsertResult) Rows() int {
	n := 0
	for _, p := range r.Partitions {
		n += p.After
	}
	return n
}

// Store writes curated tables below baseDir. It assumes it is the only
// writer of baseDir; calls within one process are serialized.
type Store struct {
	baseDir  string
	registry Registry
	policy   MergePolicy
	mu       sync.Mutex
}

type Option func(*Store)

func WithMergePolicy(p MergePolicy) Option {
	return func(s *Store) { s.policy = p }
}

func New(baseDir string, registry Registry, opts ...Option) *Store {
	reg := make(Registry, len(registry))
	for t, pk := range registry {
		reg[t] = pk
	}
	s := &Store{baseDir: baseDir, registry: reg, policy: ArrivalWins}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) BaseDir() string { return s.baseDir }

func (s *Store) Policy() MergePolicy { return s.policy }

// PartitionPath returns the file holding one partition of a table.
func (s *Store) PartitionPath(table, partition string) string {
	return filepath.Join(s.baseDir, table, partitionPrefix+partition, table+".parquet")
}

// PartitionOf returns the partition value for a row: its UTC date, or
// UnknownPartition when it has no timestamp.
func PartitionOf(r Row) string {
	ts, ok := r.Timestamp()
	if !ok {
		return UnknownPartition
	}
	return ts.UTC().Format("2006-01-02")
}

// Upsert writes rows into their partitions of table.
//
// For an existing partition of a table with a registered primary key that is
// a column of R, stored rows are followed by the incoming rows and only the
// last row per key is kept (subject to the merge policy). Without such a key
// the incoming rows replace the partition. New partitions are written as-is,
// with duplicate keys inside the batch collapsed.
func Upsert[R Row](ctx context.Context, s *Store, table string, rows []R) (UpsertResult, error) {
	res := UpsertResult{Table: table}
	if len(rows) == 0 {
		log.Printf("curated: no rows to write for %s", table)
		return res, nil
	}
	if err := checkTable(table); err != nil {
		return res, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pk, keyed := s.keyColumn(table, rows[0])
	if !keyed {
		log.Printf("curated: %s has no usable primary key, partitions will be replaced", table)
	}

	groups := make(map[string][]R)
	for _, r := range rows {
		p := PartitionOf(r)
		groups[p] = append(groups[p], r)
	}
	partitions := make([]string, 0, len(groups))
	for p := range groups {
		partitions = append(partitions, p)
	}
	sort.Strings(partitions)

	for _, p := range partitions {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		pr, err := upsertPartition(s, table, p, groups[p], pk, keyed)
		if err != nil {
			return res, fmt.Errorf("upsert %s/%s%s: %w", table, partitionPrefix, p, err)
		}
		res.Partitions = append(res.Partitions, pr)
	}
	return res, nil
}

func (s *Store) keyColumn(table string, sample Row) (string, bool) {
	pk, ok := s.registry.PrimaryKey(table)
	if !ok {
		return "", false
	}
	if _, ok := parquet.SchemaOf(sample).Lookup(pk); !ok {
		log.Printf("curated: primary key %s of %s is not a column of the incoming rows", pk, table)
		return "", false
	}
	return pk, true
}

func upsertPartition[R Row](s *Store, table, partition string, incoming []R, pk string, keyed bool) (PartitionResult, error) {
	path := s.PartitionPath(table, partition)
	pr := PartitionResult{Table: table, Partition: partition, Path: path, Incoming: len(incoming)}

	existing, found, err := readRows[R](path)
	if err != nil {
		return pr, err
	}
	var out []R
	switch {
	case !found:
		pr.Mode = ModeCreated
		out = incoming
		if keyed {
			out = mergeRows(nil, incoming, pk, s.policy)
		}
	case keyed:
		log.Printf("curated: existing partition found: %s", path)
		pr.Mode = ModeMerged
		out = mergeRows(existing, incoming, pk, s.policy)
	default:
		log.Printf("curated: existing partition found: %s", path)
		pr.Mode = ModeReplaced
		out = incoming
	}
	pr.Before = len(existing)
	pr.After = len(out)

	if err := writeRows(path, out); err != nil {
		return pr, err
	}
	log.Printf("curated: %s %s (%d rows) in %s", pr.Mode, table, pr.After, filepath.Dir(path))
	return pr, nil
}

// mergeRows keeps one row per key. A key keeps the position where it was
// first seen; its value is the last row written for it unless the policy
// rejects an older row.
func mergeRows[R Row](existing, incoming []R, pk string, policy MergePolicy) []R {
	out := make([]R, 0, len(existing)+len(incoming))
	pos := make(map[string]int, len(existing)+len(incoming))
	put := func(r R) {
		k, _ := r.Column(pk)
		i, seen := pos[k]
		if !seen {
			pos[k] = len(out)
			out = append(out, r)
			return
		}
		if policy == RecencyWins && olderThan(r, out[i]) {
			return
		}
		out[i] = r
	}
	for _, r := range existing {
		put(r)
	}
	for _, r := range incoming {
		put(r)
	}
	return out
}

func olderThan(a, b Row) bool {
	ta, okA := a.Timestamp()
	tb, okB := b.Timestamp()
	return okA && okB && ta.Before(tb)
}

func readRows[R Row](path string) ([]R, bool, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("stat: %w", err)
	}
	rows, err := parquet.ReadFile[R](path)
	if err != nil {
		return nil, true, fmt.Errorf("read %s: %w", path, err)
	}
	return rows, true, nil
}

// writeRows replaces path atomically: rows go to a temporary file in the
// same directory which is then renamed over the target.
func writeRows[R Row](path string, rows []R) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmp := filepath.Join(dir, "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
	if err := parquet.WriteFile(tmp, rows); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// ReadPartition loads every row of one partition.
func ReadPartition[R Row](s *Store, table, partition string) ([]R, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	rows, found, err := readRows[R](s.PartitionPath(table, partition))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%s/%s%s: %w", table, partitionPrefix, partition, ErrPartitionNotFound)
	}
	return rows, nil
}

// Tables lists the table directories present under the base directory.
func (s *Store) Tables() ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list tables: %w", err)
	}
	var tables []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			tables = append(tables, e.Name())
		}
	}
	sort.Strings(tables)
	return tables, nil
}

// Partitions lists the partition values of a table in ascending order.
func (s *Store) Partitions(table string) ([]string, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(s.baseDir, table))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	var parts []string
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), partitionPrefix) {
			continue
		}
		parts = append(parts, strings.TrimPrefix(e.Name(), partitionPrefix))
	}
	sort.Strings(parts)
	return parts, nil
}

// CountRows reads the row count from a partition's parquet footer.
func (s *Store) CountRows(table, partition string) (int64, error) {
	f, err := os.Open(s.PartitionPath(table, partition))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("%s/%s%s: %w", table, partitionPrefix, partition, ErrPartitionNotFound)
		}
		return 0, fmt.Errorf("open: %w", err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat: %w", err)
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return 0, fmt.Errorf("open parquet: %w", err)
	}
	return pf.NumRows(), nil
}

func checkTable(table string) error {
	if table == "" || strings.ContainsAny(table, `/\`) || strings.HasPrefix(table, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	return nil
}
