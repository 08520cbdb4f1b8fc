package market

import (
	"fmt"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Currency is the single currency the simulator trades in.
const Currency = money.USD

// Cents is the number of fractional digits kept for cash amounts.
const Cents = 2

// Value returns price × shares.
func Value(price decimal.Decimal, shares int64) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(shares))
}

// ParseAmount parses a decimal cash or price amount such as "10000.00".
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return d, nil
}

// FormatUSD renders an amount the way the UI shows money, e.g. "$1,234.56".
func FormatUSD(d decimal.Decimal) string {
	cents := d.Shift(Cents).Round(0).IntPart()
	return money.New(cents, Currency).Display()
}
