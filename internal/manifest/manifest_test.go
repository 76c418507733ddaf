package manifest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func commit(table, partition string, rows int) Commit {
	return Commit{
		RunID:       "run-1",
		Table:       table,
		Partition:   partition,
		Path:        filepath.Join(table, "date="+partition, table+".parquet"),
		Rows:        rows,
		Mode:        "created",
		CommittedAt: time.Date(2025, 8, 20, 9, 0, 0, 0, time.UTC),
	}
}

func TestPublishAndReadLatest(t *testing.T) {
	dir := t.TempDir()
	m := NewFilesystemManifest(dir)
	ctx := context.Background()
	if err := m.Publish(ctx, commit("fact_order", "2025-08-19", 3)); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if err := m.Publish(ctx, commit("fact_order", "2025-08-20", 5)); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	got, err := m.ReadLatest("fact_order")
	if err != nil {
		t.Fatalf("ReadLatest error: %v", err)
	}
	if got.Partition != "2025-08-20" || got.Rows != 5 || got.RunID != "run-1" || got.CommittedAt.IsZero() {
		t.Fatalf("unexpected manifest: %+v", got)
	}
	entries, _ := os.ReadDir(filepath.Join(dir, "fact_order"))
	if len(entries) != 1 {
		t.Fatalf("leftover temp files: %v", entries)
	}
	if _, err := m.ReadLatest("dim_user"); err == nil {
		t.Fatalf("expected error for table without commits")
	}
}

// fakeKafkaWriter implements kafkaio.MessageWriter for tests
type fakeKafkaWriter struct {
	msgs   []kafka.Message
	fail   bool
	closed int
}

func (f *fakeKafkaWriter) Close() error {
	f.closed++
	return nil
}

func (f *fakeKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.fail {
		return errors.New("fail")
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func TestKafkaManifest_Publish_Success(t *testing.T) {
	fk := &fakeKafkaWriter{}
	km := NewKafkaManifestWith(fk)
	if err := km.Publish(context.Background(), commit("dim_product", "unknown", 4)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(fk.msgs) != 1 {
		t.Fatalf("want 1 msg, got %d", len(fk.msgs))
	}
	if string(fk.msgs[0].Key) != "dim_product/unknown" {
		t.Fatalf("bad key: %s", string(fk.msgs[0].Key))
	}
}

func TestKafkaManifest_Publish_Fail(t *testing.T) {
	fk := &fakeKafkaWriter{fail: true}
	km := NewKafkaManifestWith(fk)
	if err := km.Publish(context.Background(), commit("fact_order", "2025-08-20", 1)); err == nil {
		t.Fatalf("expected error")
	}
}

func TestMultiPublisher(t *testing.T) {
	dir := t.TempDir()
	fk := &fakeKafkaWriter{}
	mp := MultiPublisher(NewFilesystemManifest(dir), NewKafkaManifestWith(fk), Noop{})
	if err := mp.Publish(context.Background(), commit("dim_user", "2024-01-02", 2)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(fk.msgs) != 1 {
		t.Fatalf("kafka publisher not called")
	}
	if _, err := NewFilesystemManifest(dir).ReadLatest("dim_user"); err != nil {
		t.Fatalf("file publisher not called: %v", err)
	}
}

// messageOnly has no Close method.
type messageOnly struct{}

func (messageOnly) WriteMessages(context.Context, ...kafka.Message) error { return nil }

func TestKafkaManifest_CloseReleasesWriter(t *testing.T) {
	fk := &fakeKafkaWriter{}
	if err := NewKafkaManifestWith(fk).Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if fk.closed != 1 {
		t.Fatalf("want writer closed once, got %d", fk.closed)
	}
	if err := NewKafkaManifestWith(messageOnly{}).Close(); err != nil {
		t.Fatalf("close without closer: %v", err)
	}
}
