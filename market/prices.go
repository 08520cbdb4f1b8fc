// Package market defines the price oracle the trade engine consults and the
// money helpers shared by the rest of the module.
package market

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrSymbolNotFound means the oracle has no such ticker.
	ErrSymbolNotFound = errors.New("unknown symbol")

	// ErrOracleUnavailable means the lookup failed (transport error, timeout,
	// unexpected response) and says nothing about the symbol itself.
	ErrOracleUnavailable = errors.New("price oracle unavailable")
)

// Quote is a single price lookup result.
type Quote struct {
	Symbol string          `json:"symbol"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
}

// Oracle looks up the current price and canonical name of a ticker.
type Oracle interface {
	Lookup(ctx context.Context, symbol string) (Quote, error)
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(ctx context.Context, symbol string) (Quote, error)

func (f OracleFunc) Lookup(ctx context.Context, symbol string) (Quote, error) {
	return f(ctx, symbol)
}

// NormalizeSymbol trims and upper-cases a ticker so "aapl " and "AAPL" name
// the same holding.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
