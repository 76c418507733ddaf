// Package source pulls raw order records from the upstream system.
package source

import (
	"context"
	"errors"
	"log"
	"time"

	"orderlake/internal/model"
)

var (
	// ErrMalformedPayload means the source returned something other than a
	// list of order records. It is never retried.
	ErrMalformedPayload = errors.New("malformed source payload")
	// ErrSourceNotFound means the configured source does not exist.
	ErrSourceNotFound = errors.New("source not found")
)

// Fetcher returns raw records. A non-nil since keeps only records whose
// created_at is at or after it.
type Fetcher interface {
	Fetch(ctx context.Context, since *time.Time) ([]model.RawRecord, error)
}

// IsFatal reports whether err must not be retried.
func IsFatal(err error) bool {
	return errors.Is(err, ErrMalformedPayload) || errors.Is(err, ErrSourceNotFound) ||
		errors.Is(err, context.Canceled)
}

// FilterSince applies the incremental lower bound. Records whose created_at
// is missing or unparsable cannot be placed and are left out.
func FilterSince(records []model.RawRecord, since time.Time) []model.RawRecord {
	out := make([]model.RawRecord, 0, len(records))
	for _, r := range records {
		if r.CreatedAt == "" {
			log.Printf("source: order without created_at, skipping. order_id=%s", r.OrderID)
			continue
		}
		ts, err := model.ParseTimestamp(r.CreatedAt)
		if err != nil {
			log.Printf("source: invalid created_at, skipping. order_id=%s", r.OrderID)
			continue
		}
		if !ts.Before(since) {
			out = append(out, r)
		}
	}
	return out
}
