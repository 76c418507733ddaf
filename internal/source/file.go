package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"orderlake/internal/model"
)

// FileSource reads a JSON array of orders from disk, standing in for the
// orders API.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (f *FileSource) Fetch(ctx context.Context, since *time.Time) ([]model.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log.Printf("source: reading orders from %s", f.path)
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, f.path)
		}
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}
	records, err := decodeList(data)
	if err != nil {
		return nil, err
	}
	if since != nil {
		records = FilterSince(records, *since)
		log.Printf("source: %d orders after incremental filter", len(records))
	}
	return records, nil
}

// decodeList decodes a top-level JSON array. Elements that are not order
// objects are skipped; anything but an array is a malformed payload.
func decodeList(data []byte) ([]model.RawRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: top level must be a list of orders", ErrMalformedPayload)
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(trimmed, &elems); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	records := make([]model.RawRecord, 0, len(elems))
	for i, e := range elems {
		r, err := model.DecodeRawRecord(e)
		if err != nil {
			log.Printf("source: skipping undecodable record at index %d: %v", i, err)
			continue
		}
		records = append(records, r)
	}
	return records, nil
}
