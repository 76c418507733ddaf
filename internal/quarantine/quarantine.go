// Package quarantine records orders and order lines the pipeline refused,
// so they can be inspected and replayed.
package quarantine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/segmentio/kafka-go"

	"orderlake/internal/kafkaio"
)

type Entry struct {
	RunID   string          `json:"run_id"`
	Reason  string          `json:"reason"`
	OrderID string          `json:"order_id,omitempty"`
	SKU     string          `json:"sku,omitempty"`
	Detail  string          `json:"detail,omitempty"`
	Record  json.RawMessage `json:"record,omitempty"`
	At      time.Time       `json:"at"`
}

type Writer interface {
	Append(ctx context.Context, entries ...Entry) error
}

// MultiWriter fans out writes to multiple underlying writers.
type MultiWriter struct {
	writers []Writer
}

func NewMultiWriter(ws ...Writer) *MultiWriter {
	return &MultiWriter{writers: ws}
}

func (m *MultiWriter) Append(ctx context.Context, entries ...Entry) error {
	for _, w := range m.writers {
		if err := w.Append(ctx, entries...); err != nil {
			return err
		}
	}
	return nil
}

// Discard drops every entry.
type Discard struct{}

func (Discard) Append(context.Context, ...Entry) error { return nil }

// FileWriter appends one JSON document per line.
type FileWriter struct {
	path string
}

func NewFileWriter(dir string, filename string) (*FileWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	return &FileWriter{path: filepath.Join(dir, filename)}, nil
}

func (w *FileWriter) Path() string { return w.path }

func (w *FileWriter) Append(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	for i := range entries {
		if err := enc.Encode(&entries[i]); err != nil {
			return fmt.Errorf("encode: %w", err)
		}
	}
	return nil
}

// KafkaWriter publishes entries keyed by order id.
type KafkaWriter struct {
	writer kafkaio.MessageWriter
}

// NewKafkaWriter creates a Kafka writer.
// bootstrap can be a comma-separated list of host:port.
func NewKafkaWriter(bootstrap string, topic string) *KafkaWriter {
	return &KafkaWriter{writer: kafkaio.NewWriter(bootstrap, topic)}
}

// NewKafkaWriterWith is only for tests to inject a fake writer.
func NewKafkaWriterWith(w kafkaio.MessageWriter) *KafkaWriter {
	return &KafkaWriter{writer: w}
}

// Close flushes and closes the underlying writer when it supports it.
func (k *KafkaWriter) Close() error {
	if c, ok := k.writer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (k *KafkaWriter) Append(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(entries))
	for i := range entries {
		b, err := json.Marshal(&entries[i])
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(entries[i].OrderID), Value: b})
	}
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish quarantine: %w", err)
	}
	return nil
}
