// Package money holds exact decimal amounts used for order totals.
package money

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

const precision = 34

type Decimal struct {
	value apd.Decimal
}

func Zero() Decimal { return Decimal{} }

func Parse(s string) (Decimal, error) {
	var d apd.Decimal
	if _, _, err := d.SetString(s); err != nil {
		return Decimal{}, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return Decimal{value: d}, nil
}

func MustParse(s string) Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

func FromFloat(f float64) (Decimal, error) {
	var d apd.Decimal
	if _, err := d.SetFloat64(f); err != nil {
		return Decimal{}, fmt.Errorf("invalid decimal %v: %w", f, err)
	}
	return Decimal{value: d}, nil
}

func FromInt64(i int64) Decimal {
	var d apd.Decimal
	d.SetInt64(i)
	return Decimal{value: d}
}

func (d Decimal) String() string { return d.value.String() }

func (d Decimal) IsZero() bool { return d.value.IsZero() }

func (d Decimal) Cmp(other Decimal) int { return d.value.Cmp(&other.value) }

// Add returns the sum of d and other.
func (d Decimal) Add(other Decimal) Decimal {
	var result apd.Decimal
	ctx := apd.BaseContext.WithPrecision(precision)
	_, _ = ctx.Add(&result, &d.value, &other.value)
	return Decimal{value: result}
}

// Mul returns the product of d and other.
func (d Decimal) Mul(other Decimal) Decimal {
	var result apd.Decimal
	ctx := apd.BaseContext.WithPrecision(precision)
	_, _ = ctx.Mul(&result, &d.value, &other.value)
	return Decimal{value: result}
}

// Round rounds half-even to the given number of fractional digits.
func (d Decimal) Round(places int32) Decimal {
	var result apd.Decimal
	ctx := apd.BaseContext.WithPrecision(precision)
	ctx.Rounding = apd.RoundHalfEven
	if _, err := ctx.Quantize(&result, &d.value, -places); err != nil {
		return d
	}
	return Decimal{value: result}
}

// Float64 converts to the nearest float64; curated rows store amounts as doubles.
func (d Decimal) Float64() float64 {
	f, err := d.value.Float64()
	if err != nil {
		return 0
	}
	return f
}
