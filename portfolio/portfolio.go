// Package portfolio stores each user's aggregated share holdings.
//
// A holding row exists only while its share count is positive: Decrement
// deletes the row when the count reaches zero and refuses to go below it.
package portfolio

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/papertrade/market"
	"github.com/rustyeddy/papertrade/store"
)

var (
	ErrNoSuchPosition     = errors.New("no such position")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrInvalidShares      = errors.New("share count must be positive")
)

// Position is one user's holding of one symbol.
type Position struct {
	UserID    int64           `json:"-"`
	Symbol    string          `json:"symbol"`
	Name      string          `json:"name"`
	Shares    int64           `json:"shares"`
	Price     decimal.Decimal `json:"price"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Value is shares × last known price.
func (p Position) Value() decimal.Decimal {
	return market.Value(p.Price, p.Shares)
}

// Store reads and writes the positions table.
type Store struct {
	logger *slog.Logger
	now    func() time.Time
}

func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		logger: logger.With("component", "portfolio"),
		now:    time.Now,
	}
}

const positionColumns = `user_id, symbol, name, shares, price, updated_at`

func scanPosition(row interface{ Scan(...any) error }) (Position, error) {
	var p Position
	err := row.Scan(&p.UserID, &p.Symbol, &p.Name, &p.Shares, &p.Price, &p.UpdatedAt)
	return p, err
}

// Get loads a single holding. A missing row is ErrNoSuchPosition.
func (s *Store) Get(ctx context.Context, q store.Querier, userID int64, symbol string) (Position, error) {
	symbol = market.NormalizeSymbol(symbol)
	p, err := scanPosition(q.QueryRowContext(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE user_id = ? AND symbol = ?`+q.Dialect().ForUpdate(),
		userID, symbol))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Position{}, fmt.Errorf("%w: %s", ErrNoSuchPosition, symbol)
		}
		return Position{}, fmt.Errorf("select position: %w", err)
	}
	return p, nil
}

// Upsert adds delta shares to the holding, creating it if needed, and
// records name and price as the latest known values.
func (s *Store) Upsert(ctx context.Context, q store.Querier, userID int64, symbol, name string, delta int64, price decimal.Decimal) (Position, error) {
	symbol = market.NormalizeSymbol(symbol)
	if delta <= 0 {
		return Position{}, fmt.Errorf("%w: %d", ErrInvalidShares, delta)
	}
	if name == "" {
		name = symbol
	}

	p := Position{
		UserID:    userID,
		Symbol:    symbol,
		Name:      name,
		Price:     price,
		UpdatedAt: s.now().UTC(),
	}
	err := q.QueryRowContext(ctx, `
		INSERT INTO positions (user_id, symbol, name, shares, price, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, symbol) DO UPDATE SET
			shares = positions.shares + excluded.shares,
			name = excluded.name,
			price = excluded.price,
			updated_at = excluded.updated_at
		RETURNING shares`,
		userID, symbol, name, delta, price, p.UpdatedAt,
	).Scan(&p.Shares)
	if err != nil {
		return Position{}, fmt.Errorf("upsert position: %w", err)
	}

	s.logger.Debug("position upserted", "user_id", userID, "symbol", symbol, "delta", delta, "shares", p.Shares)
	return p, nil
}

// Decrement removes delta shares and deletes the row when none remain.
// It returns the remaining share count.
func (s *Store) Decrement(ctx context.Context, q store.Querier, userID int64, symbol string, delta int64) (int64, error) {
	if delta <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidShares, delta)
	}
	p, err := s.Get(ctx, q, userID, symbol)
	if err != nil {
		return 0, err
	}
	if p.Shares < delta {
		return p.Shares, fmt.Errorf("%w: you only have %d shares of %s", ErrInsufficientShares, p.Shares, p.Symbol)
	}

	left := p.Shares - delta
	if left == 0 {
		_, err = q.ExecContext(ctx,
			`DELETE FROM positions WHERE user_id = ? AND symbol = ?`, userID, p.Symbol)
	} else {
		_, err = q.ExecContext(ctx,
			`UPDATE positions SET shares = ?, updated_at = ? WHERE user_id = ? AND symbol = ?`,
			left, s.now().UTC(), userID, p.Symbol)
	}
	if err != nil {
		return p.Shares, fmt.Errorf("decrement position: %w", err)
	}

	s.logger.Debug("position decremented", "user_id", userID, "symbol", p.Symbol, "delta", delta, "shares", left)
	return left, nil
}

// ListForUser returns every holding of the user ordered by symbol.
func (s *Store) ListForUser(ctx context.Context, q store.Querier, userID int64) (*Holdings, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE user_id = ? ORDER BY symbol ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	h := NewHoldings()
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		h.Add(p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	return h, nil
}
