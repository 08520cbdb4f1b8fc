// Package journal is the append-only transaction log. Every committed buy
// or sell has exactly one Entry; entries are never updated or deleted.
package journal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/papertrade/market"
	"github.com/rustyeddy/papertrade/pkg/id"
	"github.com/rustyeddy/papertrade/store"
)

// Side is the direction of a trade.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// ParseSide accepts "buy"/"sell" in any case.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case Buy:
		return Buy, nil
	case Sell:
		return Sell, nil
	}
	return "", fmt.Errorf("unknown side %q", s)
}

// Label is the past-tense form shown in the history table.
func (s Side) Label() string {
	switch s {
	case Buy:
		return "Bought"
	case Sell:
		return "Sold"
	}
	return string(s)
}

// Entry is one immutable trade record. Seq is assigned by the database and
// orders entries by insertion.
type Entry struct {
	ID        string          `json:"id"`
	Seq       int64           `json:"seq"`
	UserID    int64           `json:"-"`
	Side      Side            `json:"side"`
	Symbol    string          `json:"symbol"`
	Shares    int64           `json:"shares"`
	Price     decimal.Decimal `json:"price"`
	CreatedAt time.Time       `json:"created_at"`
}

// Total is shares × price.
func (e Entry) Total() decimal.Decimal {
	return market.Value(e.Price, e.Shares)
}

// Log appends to and reads the transactions table.
type Log struct {
	logger *slog.Logger
	now    func() time.Time
}

func New(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{
		logger: logger.With("component", "journal"),
		now:    time.Now,
	}
}

// Append inserts a new entry and returns it with ID, Seq and CreatedAt set.
func (l *Log) Append(ctx context.Context, q store.Querier, userID int64, side Side, symbol string, shares int64, price decimal.Decimal) (Entry, error) {
	if side != Buy && side != Sell {
		return Entry{}, fmt.Errorf("unknown side %q", side)
	}
	if shares <= 0 {
		return Entry{}, fmt.Errorf("shares must be positive, got %d", shares)
	}

	now := l.now().UTC()
	e := Entry{
		ID:        id.NewAt(now),
		UserID:    userID,
		Side:      side,
		Symbol:    market.NormalizeSymbol(symbol),
		Shares:    shares,
		Price:     price,
		CreatedAt: now,
	}

	err := q.QueryRowContext(ctx, `
		INSERT INTO transactions (id, user_id, side, symbol, shares, price, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING seq`,
		e.ID, e.UserID, string(e.Side), e.Symbol, e.Shares, e.Price, e.CreatedAt,
	).Scan(&e.Seq)
	if err != nil {
		return Entry{}, fmt.Errorf("insert transaction: %w", err)
	}

	l.logger.Debug("transaction recorded",
		"id", e.ID, "seq", e.Seq, "user_id", userID, "side", string(side),
		"symbol", e.Symbol, "shares", shares, "price", price.String())
	return e, nil
}
