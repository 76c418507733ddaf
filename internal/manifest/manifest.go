// Package manifest announces committed curated partitions. The latest
// commit per table is kept on disk and optionally on a compacted topic.
package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"orderlake/internal/kafkaio"
)

const latestFile = "_manifest.latest.json"

// Commit describes one partition file that has been written.
type Commit struct {
	RunID       string    `json:"runId"`
	Table       string    `json:"table"`
	Partition   string    `json:"partition"`
	Path        string    `json:"path"`
	Rows        int       `json:"rows"`
	Mode        string    `json:"mode"`
	CommittedAt time.Time `json:"committedAt"`
}

// Key identifies the partition a commit refers to.
func (c Commit) Key() string { return c.Table + "/" + c.Partition }

type Publisher interface {
	Publish(ctx context.Context, c Commit) error
}

// MultiPublisher writes to multiple publishers sequentially.
type MultiPublisherImpl struct {
	pubs []Publisher
}

func MultiPublisher(pubs ...Publisher) Publisher {
	return &MultiPublisherImpl{pubs: pubs}
}

func (m *MultiPublisherImpl) Publish(ctx context.Context, c Commit) error {
	for _, p := range m.pubs {
		if err := p.Publish(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// Noop accepts and drops every commit.
type Noop struct{}

func (Noop) Publish(context.Context, Commit) error { return nil }

type Reader interface {
	ReadLatest(table string) (Commit, error)
}

// FilesystemManifest keeps <baseDir>/<table>/_manifest.latest.json, where
// baseDir is the curated root.
type FilesystemManifest struct {
	baseDir string
}

func NewFilesystemManifest(baseDir string) *FilesystemManifest {
	return &FilesystemManifest{baseDir: baseDir}
}

func (f *FilesystemManifest) Publish(ctx context.Context, c Commit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Join(f.baseDir, c.Table)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	b, err := json.MarshalIndent(&c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	tmp := filepath.Join(dir, "."+latestFile+"."+uuid.NewString())
	if err := os.WriteFile(tmp, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("create: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, latestFile)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func (f *FilesystemManifest) ReadLatest(table string) (Commit, error) {
	file := filepath.Join(f.baseDir, table, latestFile)
	data, err := os.ReadFile(file)
	if err != nil {
		return Commit{}, fmt.Errorf("read manifest: %w", err)
	}
	var c Commit
	if err := json.Unmarshal(data, &c); err != nil {
		return Commit{}, fmt.Errorf("unmarshal manifest: %w", err)
	}
	return c, nil
}

// KafkaManifest publishes each commit as a record keyed table/partition, so
// a compacted topic retains the latest commit per partition.
type KafkaManifest struct {
	writer kafkaio.MessageWriter
}

// NewKafkaManifest creates a Kafka manifest publisher.
// bootstrap can be comma-separated brokers.
func NewKafkaManifest(bootstrap string, topic string) *KafkaManifest {
	return &KafkaManifest{writer: kafkaio.NewWriter(bootstrap, topic)}
}

// NewKafkaManifestWith is only for tests to inject a fake writer.
func NewKafkaManifestWith(w kafkaio.MessageWriter) *KafkaManifest {
	return &KafkaManifest{writer: w}
}

// Close flushes and closes the underlying writer when it supports it.
func (k *KafkaManifest) Close() error {
	if c, ok := k.writer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (k *KafkaManifest) Publish(ctx context.Context, c Commit) error {
	b, err := json.Marshal(&c)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(c.Key()), Value: b}); err != nil {
		return fmt.Errorf("publish manifest: %w", err)
	}
	return nil
}
