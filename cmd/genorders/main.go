package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
)

type genItem struct {
	SKU   string   `json:"sku"`
	Qty   int      `json:"qty"`
	Price *float64 `json:"price,omitempty"`
}

type genOrder struct {
	OrderID   string         `json:"order_id"`
	UserID    string         `json:"user_id"`
	CreatedAt string         `json:"created_at,omitempty"`
	Currency  string         `json:"currency,omitempty"`
	Items     []genItem      `json:"items"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type genUser struct {
	UserID    string `csv:"user_id"`
	Name      string `csv:"name"`
	Email     string `csv:"email"`
	Country   string `csv:"country"`
	CreatedAt string `csv:"created_at"`
}

type genProduct struct {
	SKU      string `csv:"sku"`
	Name     string `csv:"name"`
	Category string `csv:"category"`
	Price    string `csv:"price"`
}

type options struct {
	count     int
	users     int
	products  int
	dupRate   float64
	badRate   float64
	seed      int64
	start     time.Time
	outputDir string
}

func main() {
	var opts options
	var start string
	flag.IntVar(&opts.count, "count", 100, "number of orders to generate")
	flag.IntVar(&opts.users, "users", 20, "number of users")
	flag.IntVar(&opts.products, "products", 10, "number of products")
	flag.Float64Var(&opts.dupRate, "dup-rate", 0.1, "share of orders re-sent later with a newer created_at")
	flag.Float64Var(&opts.badRate, "bad-rate", 0.05, "share of invalid orders")
	flag.Int64Var(&opts.seed, "seed", time.Now().UnixNano(), "random seed")
	flag.StringVar(&start, "start", time.Now().UTC().Format(time.DateOnly), "first order date (YYYY-MM-DD)")
	flag.StringVar(&opts.outputDir, "output", "sample_data", "output directory")
	flag.Parse()

	t, err := time.ParseInLocation(time.DateOnly, start, time.UTC)
	if err != nil {
		log.Fatalf("invalid -start: %v", err)
	}
	opts.start = t
	if err := generate(opts); err != nil {
		log.Fatalf("generation failed: %v", err)
	}
}

func generate(opts options) error {
	if opts.users < 1 || opts.products < 1 {
		return fmt.Errorf("need at least one user and one product")
	}
	if err := os.MkdirAll(opts.outputDir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	rnd := rand.New(rand.NewSource(opts.seed))

	users := make([]genUser, opts.users)
	for i := range users {
		users[i] = genUser{
			UserID:    fmt.Sprintf("u%d", i+1),
			Name:      fmt.Sprintf("User %d", i+1),
			Email:     fmt.Sprintf("user%d@example.com", i+1),
			Country:   []string{"AR", "BR", "US", "ES", "VN"}[rnd.Intn(5)],
			CreatedAt: opts.start.AddDate(0, 0, -rnd.Intn(365)).Format(time.DateOnly),
		}
	}
	products := make([]genProduct, opts.products)
	for i := range products {
		products[i] = genProduct{
			SKU:      fmt.Sprintf("p%d", i+1),
			Name:     fmt.Sprintf("Product %d", i+1),
			Category: []string{"office", "kitchen", "home"}[rnd.Intn(3)],
			Price:    fmt.Sprintf("%d.%02d", 1+rnd.Intn(99), rnd.Intn(100)),
		}
	}

	orders := make([]genOrder, 0, opts.count)
	for i := 0; i < opts.count; i++ {
		created := opts.start.Add(time.Duration(i) * 7 * time.Minute)
		o := genOrder{
			OrderID:   fmt.Sprintf("o_%d", i+1),
			UserID:    users[rnd.Intn(len(users))].UserID,
			CreatedAt: created.Format(time.RFC3339),
			Currency:  "USD",
			Metadata:  map[string]any{"channel": []string{"web", "app"}[rnd.Intn(2)]},
		}
		for n := 1 + rnd.Intn(3); n > 0; n-- {
			it := genItem{SKU: products[rnd.Intn(len(products))].SKU, Qty: 1 + rnd.Intn(4)}
			if rnd.Intn(2) == 0 {
				p := float64(100+rnd.Intn(9900)) / 100
				it.Price = &p
			}
			o.Items = append(o.Items, it)
		}
		if rnd.Float64() < opts.badRate {
			corrupt(rnd, &o)
		}
		orders = append(orders, o)
		if rnd.Float64() < opts.dupRate {
			dup := o
			dup.CreatedAt = created.Add(time.Hour).Format(time.RFC3339)
			orders = append(orders, dup)
		}
	}

	b, err := json.MarshalIndent(orders, "", "  ")
	if err != nil {
		return fmt.Errorf("encode orders: %w", err)
	}
	if err := os.WriteFile(filepath.Join(opts.outputDir, "api_orders.json"), b, 0o644); err != nil {
		return fmt.Errorf("write orders: %w", err)
	}
	if err := writeCSV(filepath.Join(opts.outputDir, "users.csv"), &users); err != nil {
		return err
	}
	if err := writeCSV(filepath.Join(opts.outputDir, "products.csv"), &products); err != nil {
		return err
	}
	log.Printf("generated %d orders, %d users, %d products in %s", len(orders), len(users), len(products), opts.outputDir)
	return nil
}

// corrupt breaks one required property so the order gets rejected.
func corrupt(rnd *rand.Rand, o *genOrder) {
	switch rnd.Intn(3) {
	case 0:
		o.UserID = ""
	case 1:
		o.CreatedAt = "not-a-date"
	default:
		o.Items = nil
	}
}

func writeCSV(path string, rows any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if err := gocsv.MarshalFile(rows, f); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}
