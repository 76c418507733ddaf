// Package rawzone keeps an as-received copy of each fetched entity.
package rawzone

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"orderlake/internal/model"
)

// Snapshotter persists a full copy of the raw records for an entity.
type Snapshotter interface {
	Write(entity string, records []model.RawRecord) (string, error)
}

// Writer writes <baseDir>/<entity>.json, replacing the previous run's file.
type Writer struct {
	baseDir string
}

func NewWriter(baseDir string) *Writer {
	return &Writer{baseDir: baseDir}
}

func (w *Writer) Path(entity string) string {
	return filepath.Join(w.baseDir, entity+".json")
}

// Write encodes the records as an indented JSON array. Records are written
// from their original bytes when available so unknown fields survive.
func (w *Writer) Write(entity string, records []model.RawRecord) (string, error) {
	if entity == "" {
		return "", fmt.Errorf("write raw: empty entity name")
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}

	elems := make([]json.RawMessage, 0, len(records))
	for _, r := range records {
		b, err := r.Bytes()
		if err != nil {
			return "", fmt.Errorf("encode %s record %s: %w", entity, r.OrderID, err)
		}
		elems = append(elems, b)
	}
	compact, err := json.Marshal(elems)
	if err != nil {
		return "", fmt.Errorf("encode: %w", err)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, compact, "", "  "); err != nil {
		return "", fmt.Errorf("indent: %w", err)
	}
	buf.WriteByte('\n')

	path := w.Path(entity)
	tmp := filepath.Join(w.baseDir, "."+entity+"."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("create: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("rename: %w", err)
	}
	log.Printf("rawzone: wrote %d %s records to %s", len(records), entity, path)
	return path, nil
}
