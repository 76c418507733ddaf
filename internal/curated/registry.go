package curated

import (
	"fmt"
	"strings"

	"orderlake/internal/model"
)

// Registry maps a table name to its primary key column. Tables missing from
// the registry are not merge-deduplicated.
type Registry map[string]string

// DefaultRegistry returns the keys of the tables this pipeline writes.
func DefaultRegistry() Registry {
	return Registry{
		model.TableFactOrder:  "order_id",
		model.TableDimUser:    "user_id",
		model.TableDimProduct: "sku",
	}
}

func (r Registry) PrimaryKey(table string) (string, bool) {
	pk, ok := r[table]
	return pk, ok && pk != ""
}

// MergePolicy decides which row survives when an incoming row shares a key
// with a stored one.
type MergePolicy int

const (
	// ArrivalWins lets the incoming row replace the stored one unconditionally.
	ArrivalWins MergePolicy = iota
	// RecencyWins keeps the row with the later timestamp; ties and rows
	// without a timestamp fall back to ArrivalWins.
	RecencyWins
)

func (p MergePolicy) String() string {
	switch p {
	case ArrivalWins:
		return "arrival"
	case RecencyWins:
		return "recency"
	}
	return fmt.Sprintf("MergePolicy(%d)", int(p))
}

func ParseMergePolicy(s string) (MergePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "arrival":
		return ArrivalWins, nil
	case "recency":
		return RecencyWins, nil
	}
	return 0, fmt.Errorf("unknown merge policy %q (want arrival|recency)", s)
}
