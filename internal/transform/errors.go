package transform

import (
	"errors"
	"fmt"

	"orderlake/internal/model"
)

// Rejection reasons. A RejectionError wraps exactly one of these.
var (
	ErrMissingField     = errors.New("missing required field")
	ErrInvalidTimestamp = errors.New("invalid created_at")
	ErrEmptyItems       = errors.New("order has no items")
	ErrInvalidItem      = errors.New("invalid item")
)

// RejectionError describes why a raw record was discarded by Validate.
type RejectionError struct {
	Reason  error
	OrderID string
	Detail  string
	Record  model.RawRecord
}

func (e *RejectionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("order %q: %v", e.OrderID, e.Reason)
	}
	return fmt.Sprintf("order %q: %v: %s", e.OrderID, e.Reason, e.Detail)
}

func (e *RejectionError) Unwrap() error { return e.Reason }

// Label is the short reason name used in metrics and quarantine entries.
func (e *RejectionError) Label() string {
	switch {
	case errors.Is(e.Reason, ErrMissingField):
		return "missing_field"
	case errors.Is(e.Reason, ErrInvalidTimestamp):
		return "invalid_timestamp"
	case errors.Is(e.Reason, ErrEmptyItems):
		return "empty_items"
	case errors.Is(e.Reason, ErrInvalidItem):
		return "invalid_item"
	}
	return "unknown"
}

// DroppedItem is an order line left out of a fact total because no price
// could be resolved for it.
type DroppedItem struct {
	OrderID string
	SKU     string
}
