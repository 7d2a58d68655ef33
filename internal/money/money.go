// Package money holds the decimal arithmetic shared by orders and quick
// shops. Amounts are kept at two fractional digits.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const Places = 2

var hundred = decimal.NewFromInt(100)

// Parse reads a currency amount such as "500" or "12.50".
func Parse(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	return Round(d), nil
}

// MustParse is Parse for constants and tests.
func MustParse(raw string) decimal.Decimal {
	d, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return d
}

func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Line multiplies a unit amount by a quantity.
func Line(unit decimal.Decimal, qty int) decimal.Decimal {
	return unit.Mul(decimal.NewFromInt(int64(qty)))
}

// Profit is (price - cost) * qty.
func Profit(price decimal.Decimal, cost decimal.Decimal, qty int) decimal.Decimal {
	return Line(price.Sub(cost), qty)
}

// HasMoreThanPlaces reports amounts with sub-cent precision, which the
// store would silently round.
func HasMoreThanPlaces(d decimal.Decimal) bool {
	return !d.Equal(d.Round(Places))
}

// MarginPercent is profit / price * 100, zero when price is zero.
func MarginPercent(profit decimal.Decimal, price decimal.Decimal) decimal.Decimal {
	if price.IsZero() {
		return decimal.Zero
	}
	return Round(profit.Div(price).Mul(hundred))
}
