package transform

import (
	"log"
	"sort"

	"orderlake/internal/model"
)

// Dedupe collapses orders sharing an order_id to the one with the latest
// created_at. Orders are stably sorted ascending by created_at first, so on
// equal timestamps the last one encountered wins. The result stays sorted.
func Dedupe(orders []model.CanonicalOrder) []model.CanonicalOrder {
	if len(orders) == 0 {
		return []model.CanonicalOrder{}
	}
	sorted := make([]model.CanonicalOrder, len(orders))
	copy(sorted, orders)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	last := make(map[string]int, len(sorted))
	for i, o := range sorted {
		last[o.OrderID] = i
	}
	out := make([]model.CanonicalOrder, 0, len(last))
	for i, o := range sorted {
		if last[o.OrderID] == i {
			out = append(out, o)
		}
	}
	log.Printf("dedupe: removed %d duplicates", len(orders)-len(out))
	return out
}
