package source

import (
	"context"
	"fmt"
	"log"
	"time"

	"orderlake/internal/model"
)

// RetryPolicy bounds fetch attempts. Delay is slept before the second
// attempt and multiplied by Multiplier before each later one; a zero Delay
// retries immediately.
type RetryPolicy struct {
	Attempts   int
	Delay      time.Duration
	Multiplier float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Multiplier: 1}
}

// Retrying re-attempts transient fetch failures. Fatal errors are returned
// at once; after the last attempt the last error is returned.
type Retrying struct {
	next   Fetcher
	policy RetryPolicy
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewRetrying(next Fetcher, policy RetryPolicy) *Retrying {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	if policy.Multiplier <= 0 {
		policy.Multiplier = 1
	}
	return &Retrying{next: next, policy: policy, sleep: sleepCtx}
}

func (r *Retrying) Fetch(ctx context.Context, since *time.Time) ([]model.RawRecord, error) {
	delay := r.policy.Delay
	var lastErr error
	for attempt := 1; attempt <= r.policy.Attempts; attempt++ {
		if attempt > 1 && delay > 0 {
			if err := r.sleep(ctx, delay); err != nil {
				return nil, err
			}
			delay = time.Duration(float64(delay) * r.policy.Multiplier)
		}
		records, err := r.next.Fetch(ctx, since)
		if err == nil {
			return records, nil
		}
		if IsFatal(err) {
			return nil, err
		}
		lastErr = err
		log.Printf("source: fetch failed (attempt %d/%d): %v", attempt, r.policy.Attempts, err)
	}
	log.Printf("source: retries exhausted")
	return nil, fmt.Errorf("fetch after %d attempts: %w", r.policy.Attempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
