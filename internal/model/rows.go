package model

import "time"

// Curated table names.
const (
	TableFactOrder  = "fact_order"
	TableDimUser    = "dim_user"
	TableDimProduct = "dim_product"
)

// FactOrder is one row of fact_order: the per-order total.
type FactOrder struct {
	OrderID     string    `parquet:"order_id" json:"order_id"`
	UserID      string    `parquet:"user_id" json:"user_id"`
	TotalAmount float64   `parquet:"total_amount" json:"total_amount"`
	Currency    string    `parquet:"currency" json:"currency"`
	CreatedAt   time.Time `parquet:"created_at" json:"created_at"`
}

func (r FactOrder) Column(name string) (string, bool) {
	switch name {
	case "order_id":
		return r.OrderID, true
	case "user_id":
		return r.UserID, true
	case "currency":
		return r.Currency, true
	}
	return "", false
}

func (r FactOrder) Timestamp() (time.Time, bool) { return r.CreatedAt, !r.CreatedAt.IsZero() }

// DimUser is one row of dim_user. CreatedAt is nil when the reference value
// was missing or unparsable.
type DimUser struct {
	UserID    string     `parquet:"user_id" json:"user_id"`
	Name      string     `parquet:"name" json:"name"`
	Email     string     `parquet:"email" json:"email"`
	Country   string     `parquet:"country" json:"country"`
	CreatedAt *time.Time `parquet:"created_at" json:"created_at,omitempty"`
}

func (r DimUser) Column(name string) (string, bool) {
	switch name {
	case "user_id":
		return r.UserID, true
	case "email":
		return r.Email, true
	}
	return "", false
}

func (r DimUser) Timestamp() (time.Time, bool) {
	if r.CreatedAt == nil {
		return time.Time{}, false
	}
	return *r.CreatedAt, true
}

// DimProduct is one row of dim_product. It has no timestamp, so every row
// lands in the unknown partition.
type DimProduct struct {
	SKU      string   `parquet:"sku" json:"sku"`
	Name     string   `parquet:"name" json:"name"`
	Category string   `parquet:"category" json:"category"`
	Price    *float64 `parquet:"price" json:"price,omitempty"`
}

func (r DimProduct) Column(name string) (string, bool) {
	switch name {
	case "sku":
		return r.SKU, true
	case "category":
		return r.Category, true
	}
	return "", false
}

func (r DimProduct) Timestamp() (time.Time, bool) { return time.Time{}, false }
