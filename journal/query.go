package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"

	"github.com/rustyeddy/papertrade/store"
)

// ErrNotFound is returned by Get for an unknown entry ID.
var ErrNotFound = errors.New("transaction not found")

const entryColumns = `seq, id, user_id, side, symbol, shares, price, created_at`

func scanEntry(row interface{ Scan(...any) error }) (Entry, error) {
	var (
		e    Entry
		side string
	)
	err := row.Scan(&e.Seq, &e.ID, &e.UserID, &side, &e.Symbol, &e.Shares, &e.Price, &e.CreatedAt)
	e.Side = Side(side)
	return e, err
}

// Get returns a single entry by ID.
func (l *Log) Get(ctx context.Context, q store.Querier, entryID string) (Entry, error) {
	e, err := scanEntry(q.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM transactions WHERE id = ?`, entryID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, entryID)
		}
		return Entry{}, fmt.Errorf("select transaction: %w", err)
	}
	return e, nil
}

// ListForUser returns every entry of the user in insertion order.
func (l *Log) ListForUser(ctx context.Context, q store.Querier, userID int64) ([]Entry, error) {
	var out []Entry
	for e, err := range l.Iterate(ctx, q, userID) {
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Iterate yields the user's entries in insertion order. Each range over the
// returned sequence runs a fresh query, so it can be consumed any number of
// times. A query or scan failure is yielded once as the final element.
func (l *Log) Iterate(ctx context.Context, q store.Querier, userID int64) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		rows, err := q.QueryContext(ctx,
			`SELECT `+entryColumns+` FROM transactions WHERE user_id = ? ORDER BY seq ASC`, userID)
		if err != nil {
			yield(Entry{}, fmt.Errorf("list transactions: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			e, err := scanEntry(rows)
			if err != nil {
				yield(Entry{}, fmt.Errorf("scan transaction: %w", err))
				return
			}
			if !yield(e, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Entry{}, fmt.Errorf("list transactions: %w", err))
		}
	}
}

// Count returns how many entries the user has.
func (l *Log) Count(ctx context.Context, q store.Querier, userID int64) (int64, error) {
	var n int64
	if err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}
