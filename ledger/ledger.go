// Package ledger owns the users table and every user's cash balance.
//
// Credit and Debit are point mutations. They are only ever called by the
// trade engine with the transaction it opened, so a balance change is always
// committed together with the position change and the log entry that
// explain it.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/papertrade/store"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUsernameTaken     = errors.New("username already exists")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNegativeAmount    = errors.New("amount must not be negative")
)

// User is a registered account holder.
type User struct {
	ID        int64
	Username  string
	Hash      string
	Cash      decimal.Decimal
	CreatedAt time.Time
}

// Ledger reads and mutates users and their cash.
type Ledger struct {
	logger *slog.Logger
	now    func() time.Time
}

func New(logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		logger: logger.With("component", "ledger"),
		now:    time.Now,
	}
}

const userColumns = `id, username, hash, cash, created_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Hash, &u.Cash, &u.CreatedAt)
	return u, err
}

// CreateUser inserts a user with an opening cash balance.
func (l *Ledger) CreateUser(ctx context.Context, q store.Querier, username, hash string, cash decimal.Decimal) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return User{}, fmt.Errorf("username is required")
	}
	if cash.IsNegative() {
		return User{}, ErrNegativeAmount
	}

	u := User{
		Username:  username,
		Hash:      hash,
		Cash:      cash,
		CreatedAt: l.now().UTC(),
	}
	err := q.QueryRowContext(ctx, `
		INSERT INTO users (username, hash, cash, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id`,
		u.Username, u.Hash, u.Cash, u.CreatedAt,
	).Scan(&u.ID)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return User{}, fmt.Errorf("%w: %s", ErrUsernameTaken, username)
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}

	l.logger.Info("user created", "user_id", u.ID, "username", u.Username)
	return u, nil
}

// UserByID loads a user.
func (l *Ledger) UserByID(ctx context.Context, q store.Querier, userID int64) (User, error) {
	u, err := scanUser(q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, fmt.Errorf("%w: id %d", ErrUserNotFound, userID)
		}
		return User{}, fmt.Errorf("select user: %w", err)
	}
	return u, nil
}

// UserByUsername loads a user by login name.
func (l *Ledger) UserByUsername(ctx context.Context, q store.Querier, username string) (User, error) {
	u, err := scanUser(q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, strings.TrimSpace(username)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, fmt.Errorf("%w: %s", ErrUserNotFound, username)
		}
		return User{}, fmt.Errorf("select user: %w", err)
	}
	return u, nil
}

// Balance returns the current cash of a user.
func (l *Ledger) Balance(ctx context.Context, q store.Querier, userID int64) (decimal.Decimal, error) {
	return l.balance(ctx, q, userID, "")
}

// LockBalance returns the cash of a user and, on backends with row locks,
// holds the user's row until the transaction ends. The trade engine calls it
// first so that concurrent trades for one user are serialized.
func (l *Ledger) LockBalance(ctx context.Context, q store.Querier, userID int64) (decimal.Decimal, error) {
	return l.balance(ctx, q, userID, q.Dialect().ForUpdate())
}

func (l *Ledger) balance(ctx context.Context, q store.Querier, userID int64, suffix string) (decimal.Decimal, error) {
	var cash decimal.Decimal
	err := q.QueryRowContext(ctx, `SELECT cash FROM users WHERE id = ?`+suffix, userID).Scan(&cash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("%w: id %d", ErrUserNotFound, userID)
		}
		return decimal.Zero, fmt.Errorf("select cash: %w", err)
	}
	return cash, nil
}

// Credit adds amount to the user's cash and returns the new balance.
func (l *Ledger) Credit(ctx context.Context, q store.Querier, userID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, ErrNegativeAmount
	}
	cash, err := l.LockBalance(ctx, q, userID)
	if err != nil {
		return decimal.Zero, err
	}
	next := cash.Add(amount)
	if err := l.setCash(ctx, q, userID, next); err != nil {
		return decimal.Zero, err
	}
	l.logger.Debug("credit", "user_id", userID, "amount", amount.String(), "cash", next.String())
	return next, nil
}

// Debit subtracts amount from the user's cash and returns the new balance.
// It never lets the balance go below zero.
func (l *Ledger) Debit(ctx context.Context, q store.Querier, userID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, ErrNegativeAmount
	}
	cash, err := l.LockBalance(ctx, q, userID)
	if err != nil {
		return decimal.Zero, err
	}
	if cash.LessThan(amount) {
		return decimal.Zero, fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, amount.StringFixed(2), cash.StringFixed(2))
	}
	next := cash.Sub(amount)
	if err := l.setCash(ctx, q, userID, next); err != nil {
		return decimal.Zero, err
	}
	l.logger.Debug("debit", "user_id", userID, "amount", amount.String(), "cash", next.String())
	return next, nil
}

func (l *Ledger) setCash(ctx context.Context, q store.Querier, userID int64, cash decimal.Decimal) error {
	res, err := q.ExecContext(ctx, `UPDATE users SET cash = ? WHERE id = ?`, cash, userID)
	if err != nil {
		return fmt.Errorf("update cash: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: id %d", ErrUserNotFound, userID)
	}
	return nil
}
