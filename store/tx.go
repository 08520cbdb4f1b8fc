package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

// Tx is a transaction bound to the dialect of the DB that started it.
type Tx struct {
	tx      *sql.Tx
	dialect Dialect
}

var _ Querier = (*Tx)(nil)

func (t *Tx) Dialect() Dialect { return t.dialect }

func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.dialect.Rebind(query), args...)
}

func (t *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, t.dialect.Rebind(query), args...)
}

func (t *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, t.dialect.Rebind(query), args...)
}

// WithTx runs fn inside a read-write transaction.
//
// The transaction is rolled back if fn returns an error or panics (the panic
// is re-raised) and committed otherwise. Errors returned by fn are passed
// through untouched; failures to begin or commit are wrapped in
// ErrUnavailable.
func (d *DB) WithTx(ctx context.Context, fn func(q Querier) error) error {
	return d.withTx(ctx, nil, fn)
}

// WithReadTx runs fn inside a read-only transaction so that several reads
// observe one consistent snapshot.
func (d *DB) WithReadTx(ctx context.Context, fn func(q Querier) error) error {
	return d.withTx(ctx, &sql.TxOptions{ReadOnly: true}, fn)
}

func (d *DB) withTx(ctx context.Context, opts *sql.TxOptions, fn func(q Querier) error) error {
	if d.dialect == SQLite {
		// mattn/go-sqlite3 ignores TxOptions; the DSN decides the lock mode.
		opts = nil
	}

	sqlTx, err := d.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %w", ErrUnavailable, err)
	}
	tx := &Tx{tx: sqlTx, dialect: d.dialect}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := sqlTx.Rollback(); rbErr != nil {
				d.logger.Error("failed to rollback transaction after panic", "error", rbErr)
			}
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			d.logger.Error("failed to rollback transaction", "error", rbErr, "originalError", err)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("%w: commit transaction: %w", ErrUnavailable, err)
	}
	return nil
}

// IsUniqueViolation reports whether err was caused by a UNIQUE or PRIMARY
// KEY constraint on either backend.
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
