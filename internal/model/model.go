package model

import (
	"encoding/json"
	"time"

	"orderlake/internal/money"
)

// RawItem is one order line as received from the source.
type RawItem struct {
	SKU   string       `json:"sku"`
	Qty   json.Number  `json:"qty,omitempty"`
	Price *json.Number `json:"price,omitempty"`
}

// RawRecord is an unvalidated order payload. Raw keeps the exact source bytes.
type RawRecord struct {
	OrderID   string          `json:"order_id"`
	UserID    string          `json:"user_id"`
	CreatedAt string          `json:"created_at"`
	Currency  string          `json:"currency"`
	Items     []RawItem       `json:"items"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
	Raw       json.RawMessage `json:"-"`
}

// DecodeRawRecord decodes one source payload and remembers its bytes.
func DecodeRawRecord(b []byte) (RawRecord, error) {
	var r RawRecord
	if err := json.Unmarshal(b, &r); err != nil {
		return RawRecord{}, err
	}
	r.Raw = append(json.RawMessage(nil), b...)
	return r, nil
}

// Bytes returns the record as it was received, or its re-encoding when built in code.
func (r RawRecord) Bytes() (json.RawMessage, error) {
	if len(r.Raw) > 0 {
		return r.Raw, nil
	}
	return json.Marshal(r)
}

// Item is a validated order line. A nil Price means the source did not send one.
type Item struct {
	SKU   string
	Qty   money.Decimal
	Price *money.Decimal
}

// CanonicalOrder is only built by the validator; all identifiers are non-empty,
// CreatedAt is parsed and Items is non-empty.
type CanonicalOrder struct {
	OrderID   string
	UserID    string
	Currency  string
	CreatedAt time.Time
	Items     []Item
	Metadata  map[string]any
}
