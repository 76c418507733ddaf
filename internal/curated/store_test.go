package curated

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderlake/internal/model"
)

func day(d, h int) time.Time { return time.Date(2025, 8, d, h, 0, 0, 0, time.UTC) }

func fact(id string, total float64, at time.Time) model.FactOrder {
	return model.FactOrder{OrderID: id, UserID: "u_" + id, TotalAmount: total, Currency: "USD", CreatedAt: at}
}

// readFacts loads a partition sorted by order_id with timestamps in UTC.
func readFacts(t *testing.T, s *Store, partition string) []model.FactOrder {
	t.Helper()
	rows, err := ReadPartition[model.FactOrder](s, model.TableFactOrder, partition)
	require.NoError(t, err)
	for i := range rows {
		rows[i].CreatedAt = rows[i].CreatedAt.UTC()
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].OrderID < rows[j].OrderID })
	return rows
}

func newStore(t *testing.T, opts ...Option) *Store {
	return New(t.TempDir(), DefaultRegistry(), opts...)
}

func TestUpsert_EmptyIsNoop(t *testing.T) {
	s := newStore(t)
	res, err := Upsert[model.FactOrder](context.Background(), s, model.TableFactOrder, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Partitions)

	tables, err := s.Tables()
	require.NoError(t, err)
	assert.Empty(t, tables)
}

func TestUpsert_CreatesDatePartitions(t *testing.T) {
	s := newStore(t)
	batch := []model.FactOrder{
		fact("o1", 10, day(20, 10)),
		fact("o2", 20, day(20, 23)),
		fact("o3", 30, day(21, 1)),
	}
	res, err := Upsert(context.Background(), s, model.TableFactOrder, batch)
	require.NoError(t, err)
	require.Len(t, res.Partitions, 2)
	assert.Equal(t, "2025-08-20", res.Partitions[0].Partition)
	assert.Equal(t, ModeCreated, res.Partitions[0].Mode)
	assert.Equal(t, 2, res.Partitions[0].After)
	assert.Equal(t, 3, res.Rows())

	want := filepath.Join(s.BaseDir(), "fact_order", "date=2025-08-20", "fact_order.parquet")
	assert.Equal(t, want, res.Partitions[0].Path)
	_, err = os.Stat(want)
	require.NoError(t, err)

	parts, err := s.Partitions(model.TableFactOrder)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-08-20", "2025-08-21"}, parts)

	got := readFacts(t, s, "2025-08-20")
	assert.Equal(t, batch[:2], got)
}

func TestUpsert_IdempotentForRegisteredKey(t *testing.T) {
	s := newStore(t)
	batch := []model.FactOrder{fact("o1", 10, day(20, 10)), fact("o2", 5.5, day(20, 11))}

	_, err := Upsert(context.Background(), s, model.TableFactOrder, batch)
	require.NoError(t, err)
	first := readFacts(t, s, "2025-08-20")

	res, err := Upsert(context.Background(), s, model.TableFactOrder, batch)
	require.NoError(t, err)
	second := readFacts(t, s, "2025-08-20")

	assert.Equal(t, ModeMerged, res.Partitions[0].Mode)
	assert.Equal(t, 2, res.Partitions[0].Before)
	assert.Equal(t, 2, res.Partitions[0].After)
	assert.Equal(t, first, second)
}

func TestUpsert_IncomingOverridesExisting(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, err := Upsert(ctx, s, model.TableFactOrder, []model.FactOrder{fact("o1", 10, day(20, 10))})
	require.NoError(t, err)
	_, err = Upsert(ctx, s, model.TableFactOrder, []model.FactOrder{fact("o1", 99, day(20, 10))})
	require.NoError(t, err)

	got := readFacts(t, s, "2025-08-20")
	require.Len(t, got, 1)
	assert.Equal(t, "o1", got[0].OrderID)
	assert.Equal(t, 99.0, got[0].TotalAmount)
}

func TestUpsert_MergeKeepsOtherKeys(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, err := Upsert(ctx, s, model.TableFactOrder, []model.FactOrder{fact("o1", 1, day(20, 1)), fact("o2", 2, day(20, 2))})
	require.NoError(t, err)
	_, err = Upsert(ctx, s, model.TableFactOrder, []model.FactOrder{fact("o2", 22, day(20, 2)), fact("o3", 3, day(20, 3))})
	require.NoError(t, err)

	got := readFacts(t, s, "2025-08-20")
	require.Len(t, got, 3)
	assert.Equal(t, []float64{1, 22, 3}, []float64{got[0].TotalAmount, got[1].TotalAmount, got[2].TotalAmount})

	n, err := s.CountRows(model.TableFactOrder, "2025-08-20")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestUpsert_CollapsesDuplicateKeysInFirstWrite(t *testing.T) {
	s := newStore(t)
	_, err := Upsert(context.Background(), s, model.TableFactOrder, []model.FactOrder{
		fact("o1", 1, day(20, 1)),
		fact("o1", 2, day(20, 1)),
	})
	require.NoError(t, err)

	got := readFacts(t, s, "2025-08-20")
	require.Len(t, got, 1)
	assert.Equal(t, 2.0, got[0].TotalAmount)
}

func TestUpsert_ArrivalWinsEvenWhenStale(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, err := Upsert(ctx, s, model.TableFactOrder, []model.FactOrder{fact("o1", 50, day(20, 12))})
	require.NoError(t, err)
	_, err = Upsert(ctx, s, model.TableFactOrder, []model.FactOrder{fact("o1", 10, day(20, 9))})
	require.NoError(t, err)

	got := readFacts(t, s, "2025-08-20")
	require.Len(t, got, 1)
	assert.Equal(t, 10.0, got[0].TotalAmount)
}

func TestUpsert_RecencyWinsKeepsNewerRow(t *testing.T) {
	s := newStore(t, WithMergePolicy(RecencyWins))
	ctx := context.Background()
	_, err := Upsert(ctx, s, model.TableFactOrder, []model.FactOrder{fact("o1", 50, day(20, 12))})
	require.NoError(t, err)
	_, err = Upsert(ctx, s, model.TableFactOrder, []model.FactOrder{fact("o1", 10, day(20, 9))})
	require.NoError(t, err)
	got := readFacts(t, s, "2025-08-20")
	require.Len(t, got, 1)
	assert.Equal(t, 50.0, got[0].TotalAmount)

	// equal timestamps still let the incoming row win
	_, err = Upsert(ctx, s, model.TableFactOrder, []model.FactOrder{fact("o1", 77, day(20, 12))})
	require.NoError(t, err)
	got = readFacts(t, s, "2025-08-20")
	assert.Equal(t, 77.0, got[0].TotalAmount)
}

func TestUpsert_RecencyWinsComparesSubMillisecond(t *testing.T) {
	s := newStore(t, WithMergePolicy(RecencyWins))
	ctx := context.Background()
	base := day(20, 10)
	newer := base.Add(600 * time.Microsecond)
	older := base.Add(500 * time.Microsecond)

	_, err := Upsert(ctx, s, model.TableFactOrder, []model.FactOrder{fact("o1", 2, newer)})
	require.NoError(t, err)
	_, err = Upsert(ctx, s, model.TableFactOrder, []model.FactOrder{fact("o1", 1, older)})
	require.NoError(t, err)

	got := readFacts(t, s, "2025-08-20")
	require.Len(t, got, 1)
	assert.Equal(t, 2.0, got[0].TotalAmount)
	assert.True(t, got[0].CreatedAt.Equal(newer), "stored created_at %v, want %v", got[0].CreatedAt, newer)
}

func TestUpsert_DimUserRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	joined := time.Date(2024, 1, 2, 3, 4, 5, 123456789, time.UTC)
	res, err := Upsert(ctx, s, model.TableDimUser, []model.DimUser{
		{UserID: "u1", Name: "Ann", Email: "ann@example.com", Country: "VN", CreatedAt: &joined},
		{UserID: "u2", Name: "Bob", Email: "bob@example.com", Country: "US"},
	})
	require.NoError(t, err)
	require.Len(t, res.Partitions, 2)

	dated, err := ReadPartition[model.DimUser](s, model.TableDimUser, "2024-01-02")
	require.NoError(t, err)
	require.Len(t, dated, 1)
	assert.Equal(t, "Ann", dated[0].Name)
	require.NotNil(t, dated[0].CreatedAt)
	assert.True(t, dated[0].CreatedAt.Equal(joined), "created_at %v", dated[0].CreatedAt)

	unknown, err := ReadPartition[model.DimUser](s, model.TableDimUser, UnknownPartition)
	require.NoError(t, err)
	require.Len(t, unknown, 1)
	assert.Equal(t, "u2", unknown[0].UserID)
	assert.Nil(t, unknown[0].CreatedAt)

	// merge on user_id keeps one row per key
	_, err = Upsert(ctx, s, model.TableDimUser, []model.DimUser{
		{UserID: "u2", Name: "Bobby", Email: "bob@example.com", Country: "US"},
	})
	require.NoError(t, err)
	unknown, err = ReadPartition[model.DimUser](s, model.TableDimUser, UnknownPartition)
	require.NoError(t, err)
	require.Len(t, unknown, 1)
	assert.Equal(t, "Bobby", unknown[0].Name)
	assert.Nil(t, unknown[0].CreatedAt)
}

func TestUpsert_UnknownPartitionForRowsWithoutTimestamp(t *testing.T) {
	s := newStore(t)
	price := 9.5
	res, err := Upsert(context.Background(), s, model.TableDimProduct, []model.DimProduct{
		{SKU: "p1", Name: "one", Price: &price},
		{SKU: "p2", Name: "two"},
	})
	require.NoError(t, err)
	require.Len(t, res.Partitions, 1)
	assert.Equal(t, UnknownPartition, res.Partitions[0].Partition)

	rows, err := ReadPartition[model.DimProduct](s, model.TableDimProduct, UnknownPartition)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	sort.Slice(rows, func(i, j int) bool { return rows[i].SKU < rows[j].SKU })
	require.NotNil(t, rows[0].Price)
	assert.Equal(t, 9.5, *rows[0].Price)
	assert.Nil(t, rows[1].Price)
}

func TestUpsert_UnregisteredTableReplacesPartition(t *testing.T) {
	s := New(t.TempDir(), Registry{})
	ctx := context.Background()
	_, err := Upsert(ctx, s, "fact_adhoc", []model.FactOrder{fact("o1", 1, day(20, 1)), fact("o2", 2, day(20, 2))})
	require.NoError(t, err)
	res, err := Upsert(ctx, s, "fact_adhoc", []model.FactOrder{fact("o3", 3, day(20, 3))})
	require.NoError(t, err)
	assert.Equal(t, ModeReplaced, res.Partitions[0].Mode)
	assert.Equal(t, 2, res.Partitions[0].Before)

	rows, err := ReadPartition[model.FactOrder](s, "fact_adhoc", "2025-08-20")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "o3", rows[0].OrderID)
}

func TestUpsert_KeyNotInSchemaReplacesPartition(t *testing.T) {
	s := New(t.TempDir(), Registry{"facts": "sku"})
	ctx := context.Background()
	_, err := Upsert(ctx, s, "facts", []model.FactOrder{fact("o1", 1, day(20, 1))})
	require.NoError(t, err)
	res, err := Upsert(ctx, s, "facts", []model.FactOrder{fact("o2", 2, day(20, 2))})
	require.NoError(t, err)
	assert.Equal(t, ModeReplaced, res.Partitions[0].Mode)
	assert.Equal(t, 1, res.Partitions[0].After)
}

func TestUpsert_LeavesNoTemporaryFiles(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := Upsert(ctx, s, model.TableFactOrder, []model.FactOrder{fact("o1", float64(i), day(20, 1))})
		require.NoError(t, err)
	}
	entries, err := os.ReadDir(filepath.Dir(s.PartitionPath(model.TableFactOrder, "2025-08-20")))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "fact_order.parquet", entries[0].Name())
}

func TestUpsert_RejectsBadTableAndCancelledContext(t *testing.T) {
	s := newStore(t)
	_, err := Upsert(context.Background(), s, "../escape", []model.FactOrder{fact("o1", 1, day(20, 1))})
	require.ErrorIs(t, err, ErrInvalidTable)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Upsert(ctx, s, model.TableFactOrder, []model.FactOrder{fact("o1", 1, day(20, 1))})
	require.ErrorIs(t, err, context.Canceled)
}

func TestReadPartition_NotFound(t *testing.T) {
	s := newStore(t)
	_, err := ReadPartition[model.FactOrder](s, model.TableFactOrder, "2025-01-01")
	require.ErrorIs(t, err, ErrPartitionNotFound)
	_, err = s.CountRows(model.TableFactOrder, "2025-01-01")
	require.ErrorIs(t, err, ErrPartitionNotFound)
}

func TestParseMergePolicy(t *testing.T) {
	p, err := ParseMergePolicy("Recency")
	require.NoError(t, err)
	assert.Equal(t, RecencyWins, p)
	p, err = ParseMergePolicy("")
	require.NoError(t, err)
	assert.Equal(t, ArrivalWins, p)
	_, err = ParseMergePolicy("newest")
	require.Error(t, err)
}

func TestNew_CopiesRegistry(t *testing.T) {
	reg := Registry{"t": "id"}
	s := New(t.TempDir(), reg)
	reg["t"] = ""
	pk, ok := s.registry.PrimaryKey("t")
	assert.True(t, ok)
	assert.Equal(t, "id", pk)
}
