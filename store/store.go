// Package store owns the database handle shared by the ledger, the position
// store and the transaction log.
//
// Both SQLite (mattn/go-sqlite3) and PostgreSQL (pgx) are supported behind
// database/sql. Queries are written with '?' placeholders and rebound for
// the active dialect, so repositories never see driver differences except
// row locking (see Dialect.ForUpdate).
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// ErrUnavailable reports that the storage backend could not be reached or a
// transaction could not be started or committed. Nothing was applied.
var ErrUnavailable = errors.New("storage unavailable")

// Config selects and tunes the storage backend.
type Config struct {
	// Driver is "sqlite" or "postgres".
	Driver string

	// Path is the SQLite database file.
	Path string

	// URL is the PostgreSQL connection string.
	URL string

	// BusyTimeout is how long a SQLite writer waits for the write lock.
	BusyTimeout time.Duration

	MaxConns int32
	MinConns int32
}

// Querier is the subset of database/sql shared by *DB and *Tx. Every
// repository takes a Querier so the same code runs inside or outside a
// transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	Dialect() Dialect
}

// DB is a pooled database handle.
type DB struct {
	db      *sql.DB
	pool    *pgxpool.Pool
	dialect Dialect
	logger  *slog.Logger
}

var _ Querier = (*DB)(nil)

// Open connects to the configured backend and applies the schema.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")

	var (
		d   *DB
		err error
	)
	switch strings.ToLower(cfg.Driver) {
	case "", "sqlite", "sqlite3":
		d, err = openSQLite(cfg)
	case "postgres", "postgresql", "pgx":
		d, err = openPostgres(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	d.logger = logger

	if err := d.Migrate(ctx); err != nil {
		_ = d.Close()
		return nil, err
	}

	logger.Info("database ready", "dialect", d.dialect.String())
	return d, nil
}

// OpenSQLite is shorthand used by the CLI and tests.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*DB, error) {
	return Open(ctx, Config{Driver: "sqlite", Path: path}, logger)
}

func openSQLite(cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}

	// _txlock=immediate makes every BeginTx take the write lock up front, so
	// two trades can never both read a balance before either writes it.
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=%d&_foreign_keys=on",
		cfg.Path, busy.Milliseconds())

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %w", ErrUnavailable, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping sqlite: %w", ErrUnavailable, err)
	}
	return &DB{db: db, dialect: SQLite}, nil
}

func openPostgres(ctx context.Context, cfg Config) (*DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("postgres url is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: create pool: %w", ErrUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping postgres: %w", ErrUnavailable, err)
	}

	return &DB{db: stdlib.OpenDBFromPool(pool), pool: pool, dialect: Postgres}, nil
}

// Migrate creates the schema if it does not exist yet.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range statements(d.dialect.schema()) {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Dialect reports the SQL dialect of the backend.
func (d *DB) Dialect() Dialect { return d.dialect }

// Ping checks connectivity.
func (d *DB) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

// Close releases the pool.
func (d *DB) Close() error {
	err := d.db.Close()
	if d.pool != nil {
		d.pool.Close()
	}
	return err
}

func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.db.ExecContext(ctx, d.dialect.Rebind(query), args...)
}

func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.db.QueryContext(ctx, d.dialect.Rebind(query), args...)
}

func (d *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return d.db.QueryRowContext(ctx, d.dialect.Rebind(query), args...)
}

// statements splits a schema script on ';' so each statement runs on its own.
func statements(script string) []string {
	var out []string
	for _, s := range strings.Split(script, ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
