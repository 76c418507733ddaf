package transform

import (
	"fmt"
	"log"
	"strings"

	"golang.org/x/text/currency"

	"orderlake/internal/model"
	"orderlake/internal/money"
)

// Validate keeps the raw records that can become canonical orders, in input
// order. Every other record is returned as a rejection; none is fatal.
func Validate(raws []model.RawRecord) ([]model.CanonicalOrder, []*RejectionError) {
	orders := make([]model.CanonicalOrder, 0, len(raws))
	var rejected []*RejectionError
	for _, r := range raws {
		o, err := canonicalize(r)
		if err != nil {
			log.Printf("validate: dropping record: %v", err)
			rejected = append(rejected, err)
			continue
		}
		orders = append(orders, o)
	}
	log.Printf("validate: %d valid orders, %d rejected", len(orders), len(rejected))
	return orders, rejected
}

func canonicalize(r model.RawRecord) (model.CanonicalOrder, *RejectionError) {
	orderID := trimID(r.OrderID)
	userID := trimID(r.UserID)
	reject := func(reason error, detail string) *RejectionError {
		return &RejectionError{Reason: reason, OrderID: orderID, Detail: detail, Record: r}
	}

	var missing []string
	if orderID == "" {
		missing = append(missing, "order_id")
	}
	if userID == "" {
		missing = append(missing, "user_id")
	}
	if r.CreatedAt == "" {
		missing = append(missing, "created_at")
	}
	if len(missing) > 0 {
		return model.CanonicalOrder{}, reject(ErrMissingField, strings.Join(missing, ","))
	}

	createdAt, err := model.ParseTimestamp(r.CreatedAt)
	if err != nil {
		return model.CanonicalOrder{}, reject(ErrInvalidTimestamp, err.Error())
	}
	if len(r.Items) == 0 {
		return model.CanonicalOrder{}, reject(ErrEmptyItems, "")
	}

	items := make([]model.Item, 0, len(r.Items))
	for i, it := range r.Items {
		item, err := normalizeItem(it)
		if err != nil {
			return model.CanonicalOrder{}, reject(ErrInvalidItem, fmt.Sprintf("item %d: %v", i, err))
		}
		items = append(items, item)
	}

	metadata := r.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return model.CanonicalOrder{
		OrderID:   orderID,
		UserID:    userID,
		Currency:  normalizeCurrency(orderID, r.Currency),
		CreatedAt: createdAt,
		Items:     items,
		Metadata:  metadata,
	}, nil
}

// trimID strips surrounding spaces; a blank identifier is present, not
// missing, and is kept as received.
func trimID(s string) string {
	if t := strings.TrimSpace(s); t != "" {
		return t
	}
	return s
}

func normalizeItem(it model.RawItem) (model.Item, error) {
	item := model.Item{SKU: strings.TrimSpace(it.SKU), Qty: money.Zero()}
	if it.Qty != "" {
		q, err := money.Parse(it.Qty.String())
		if err != nil {
			return model.Item{}, fmt.Errorf("qty: %w", err)
		}
		item.Qty = q
	}
	if it.Price != nil && *it.Price != "" {
		p, err := money.Parse(it.Price.String())
		if err != nil {
			return model.Item{}, fmt.Errorf("price: %w", err)
		}
		item.Price = &p
	}
	return item, nil
}

// normalizeCurrency upper-cases ISO 4217 codes. Unknown codes pass through.
func normalizeCurrency(orderID, raw string) string {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if code == "" {
		return ""
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		log.Printf("validate: order %s has unknown currency %q, keeping as is", orderID, code)
		return code
	}
	return unit.String()
}
