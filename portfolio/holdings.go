package portfolio

import (
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/papertrade/market"
)

// Holdings is an ordered mapping from symbol to position built in one pass
// over the store's rows. Adding a symbol twice merges the share counts and
// keeps the later name and price.
type Holdings struct {
	order []string
	bySym map[string]Position
}

func NewHoldings() *Holdings {
	return &Holdings{bySym: make(map[string]Position)}
}

func (h *Holdings) Add(p Position) {
	p.Symbol = market.NormalizeSymbol(p.Symbol)
	cur, ok := h.bySym[p.Symbol]
	if !ok {
		h.order = append(h.order, p.Symbol)
		h.bySym[p.Symbol] = p
		return
	}
	p.Shares += cur.Shares
	h.bySym[p.Symbol] = p
}

func (h *Holdings) Get(symbol string) (Position, bool) {
	p, ok := h.bySym[market.NormalizeSymbol(symbol)]
	return p, ok
}

func (h *Holdings) Len() int { return len(h.order) }

// Symbols lists held symbols in insertion order. This feeds the sell picker.
func (h *Holdings) Symbols() []string {
	out := make([]string, len(h.order))
	copy(out, h.order)
	return out
}

// All returns the positions in insertion order.
func (h *Holdings) All() []Position {
	out := make([]Position, 0, len(h.order))
	for _, s := range h.order {
		out = append(out, h.bySym[s])
	}
	return out
}

// Value sums shares × price over every holding.
func (h *Holdings) Value() decimal.Decimal {
	total := decimal.Zero
	for _, s := range h.order {
		total = total.Add(h.bySym[s].Value())
	}
	return total
}
