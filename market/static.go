package market

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// StaticOracle serves quotes from memory. It backs the demo configuration
// and the tests; prices change only when Set is called.
type StaticOracle struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

var _ Oracle = (*StaticOracle)(nil)

func NewStaticOracle(quotes ...Quote) *StaticOracle {
	o := &StaticOracle{quotes: make(map[string]Quote, len(quotes))}
	for _, q := range quotes {
		o.Set(q)
	}
	return o
}

// Set adds or replaces the quote for q.Symbol.
func (o *StaticOracle) Set(q Quote) {
	q.Symbol = NormalizeSymbol(q.Symbol)
	if q.Name == "" {
		q.Name = q.Symbol
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.quotes[q.Symbol] = q
}

// SetPrice changes the price of a symbol, keeping its name.
func (o *StaticOracle) SetPrice(symbol string, price decimal.Decimal) {
	symbol = NormalizeSymbol(symbol)
	o.mu.Lock()
	defer o.mu.Unlock()
	q, ok := o.quotes[symbol]
	if !ok {
		q = Quote{Symbol: symbol, Name: symbol}
	}
	q.Price = price
	o.quotes[symbol] = q
}

// Delete removes a symbol so later lookups report ErrSymbolNotFound.
func (o *StaticOracle) Delete(symbol string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.quotes, NormalizeSymbol(symbol))
}

func (o *StaticOracle) Lookup(ctx context.Context, symbol string) (Quote, error) {
	if err := ctx.Err(); err != nil {
		return Quote{}, fmt.Errorf("%w: %w", ErrOracleUnavailable, err)
	}
	symbol = NormalizeSymbol(symbol)

	o.mu.RLock()
	defer o.mu.RUnlock()
	q, ok := o.quotes[symbol]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}
	return q, nil
}

// Symbols lists the known tickers in sorted order.
func (o *StaticOracle) Symbols() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]string, 0, len(o.quotes))
	for s := range o.quotes {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
