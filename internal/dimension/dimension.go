// Package dimension loads the read-only reference tables (users, products)
// from flat CSV files.
package dimension

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/jfyne/csvd"

	"orderlake/internal/model"
	"orderlake/internal/money"
)

// ErrReferenceNotFound is returned when a required reference file is missing.
var ErrReferenceNotFound = errors.New("reference file not found")

type userRecord struct {
	UserID    string `csv:"user_id"`
	Name      string `csv:"name"`
	Email     string `csv:"email"`
	Country   string `csv:"country"`
	CreatedAt string `csv:"created_at"`
}

type productRecord struct {
	SKU      string `csv:"sku"`
	Name     string `csv:"name"`
	Category string `csv:"category"`
	Price    string `csv:"price"`
}

// Products is the product dimension plus its price lookup by SKU.
type Products struct {
	rows   []model.DimProduct
	prices map[string]money.Decimal
}

// Rows returns the deduplicated dimension rows in file order.
func (p *Products) Rows() []model.DimProduct { return p.rows }

// Price implements transform.PriceLookup.
func (p *Products) Price(sku string) (money.Decimal, bool) {
	d, ok := p.prices[sku]
	return d, ok
}

// LoadUsers reads the user dimension and keeps the first row per user_id.
// An unparsable created_at is kept as missing.
func LoadUsers(path string) ([]model.DimUser, error) {
	var recs []userRecord
	if err := readCSV(path, &recs); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(recs))
	users := make([]model.DimUser, 0, len(recs))
	for _, r := range recs {
		id := strings.TrimSpace(r.UserID)
		if seen[id] {
			continue
		}
		seen[id] = true
		u := model.DimUser{UserID: id, Name: r.Name, Email: r.Email, Country: r.Country}
		if ts, err := model.ParseTimestamp(r.CreatedAt); err == nil {
			u.CreatedAt = &ts
		} else if strings.TrimSpace(r.CreatedAt) != "" {
			log.Printf("dimension: user %s has invalid created_at %q", id, r.CreatedAt)
		}
		users = append(users, u)
	}
	log.Printf("dimension: loaded %d users from %s", len(users), path)
	return users, nil
}

// LoadProducts reads the product dimension. Dimension rows keep the first
// row per sku; the price lookup follows the last row per sku, and a last row
// without a valid price leaves the sku unpriced.
func LoadProducts(path string) (*Products, error) {
	var recs []productRecord
	if err := readCSV(path, &recs); err != nil {
		return nil, err
	}
	p := &Products{prices: make(map[string]money.Decimal, len(recs))}
	seen := make(map[string]bool, len(recs))
	for _, r := range recs {
		sku := strings.TrimSpace(r.SKU)
		price, priced := parsePrice(sku, r.Price)
		if priced {
			p.prices[sku] = price
		} else {
			delete(p.prices, sku)
		}
		if seen[sku] {
			continue
		}
		seen[sku] = true
		row := model.DimProduct{SKU: sku, Name: r.Name, Category: r.Category}
		if priced {
			f := price.Float64()
			row.Price = &f
		}
		p.rows = append(p.rows, row)
	}
	log.Printf("dimension: loaded %d products from %s", len(p.rows), path)
	return p, nil
}

func parsePrice(sku, raw string) (money.Decimal, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return money.Decimal{}, false
	}
	d, err := money.Parse(raw)
	if err != nil {
		log.Printf("dimension: product %s has invalid price %q", sku, raw)
		return money.Decimal{}, false
	}
	return d, true
}

func readCSV(path string, out any) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrReferenceNotFound, path)
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csvd.NewReader(f)
	r.FieldsPerRecord = -1
	if err := gocsv.UnmarshalCSV(r, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Files loads both dimensions from fixed paths.
type Files struct {
	UsersPath    string
	ProductsPath string
}

func (f Files) LoadUsers() ([]model.DimUser, error) { return LoadUsers(f.UsersPath) }
func (f Files) LoadProducts() (*Products, error)     { return LoadProducts(f.ProductsPath) }
