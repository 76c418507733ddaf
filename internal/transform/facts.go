package transform

import (
	"log"

	"orderlake/internal/model"
	"orderlake/internal/money"
)

// PriceLookup resolves reference prices by SKU.
type PriceLookup interface {
	Price(sku string) (money.Decimal, bool)
}

// BuildFacts emits one fact_order row per order. An item without its own
// price uses the reference price; an item with neither is dropped and
// reported, and the order is still emitted with the remaining total.
func BuildFacts(orders []model.CanonicalOrder, prices PriceLookup) ([]model.FactOrder, []DroppedItem) {
	facts := make([]model.FactOrder, 0, len(orders))
	var dropped []DroppedItem
	for _, o := range orders {
		total := money.Zero()
		for _, it := range o.Items {
			price, ok := resolvePrice(it, prices)
			if !ok {
				log.Printf("facts: no price for sku=%s in order %s, skipping item", it.SKU, o.OrderID)
				dropped = append(dropped, DroppedItem{OrderID: o.OrderID, SKU: it.SKU})
				continue
			}
			total = total.Add(it.Qty.Mul(price))
		}
		facts = append(facts, model.FactOrder{
			OrderID:     o.OrderID,
			UserID:      o.UserID,
			TotalAmount: total.Round(2).Float64(),
			Currency:    o.Currency,
			CreatedAt:   o.CreatedAt,
		})
	}
	log.Printf("facts: built %d rows, dropped %d items", len(facts), len(dropped))
	return facts, dropped
}

func resolvePrice(it model.Item, prices PriceLookup) (money.Decimal, bool) {
	if it.Price != nil {
		return *it.Price, true
	}
	if prices == nil {
		return money.Decimal{}, false
	}
	return prices.Price(it.SKU)
}
