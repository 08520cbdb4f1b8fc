package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rustyeddy/papertrade/auth"
	"github.com/rustyeddy/papertrade/cache"
	"github.com/rustyeddy/papertrade/config"
	"github.com/rustyeddy/papertrade/iex"
	"github.com/rustyeddy/papertrade/market"
	"github.com/rustyeddy/papertrade/sim"
	"github.com/rustyeddy/papertrade/store"
)

// app is the wired object graph a command works with.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *store.DB
	engine   *sim.Engine
	accounts *auth.Service
	quotes   *cache.QuoteCache
}

func openApp(ctx context.Context, rc *RootConfig) (*app, error) {
	cfg, logger := rc.Config, rc.Logger

	db, err := store.Open(ctx, store.Config{
		Driver:      cfg.Database.Driver,
		Path:        cfg.Database.Path,
		URL:         cfg.Database.URL,
		BusyTimeout: cfg.Database.BusyTimeout,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, db: db}

	oracle, err := newOracle(cfg.Oracle, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	if cfg.Cache.Enabled {
		a.quotes, err = cache.NewQuoteCache(cache.Config{
			Addr:      cfg.Cache.Addr,
			Password:  cfg.Cache.Password,
			DB:        cfg.Cache.DB,
			TTL:       cfg.Cache.TTL,
			KeyPrefix: cfg.Cache.KeyPrefix,
		}, oracle, logger)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("quote cache: %w", err)
		}
		if err := a.quotes.Ping(ctx); err != nil {
			logger.Warn("redis unreachable, quotes go to the oracle", "addr", cfg.Cache.Addr, "error", err)
		}
		oracle = a.quotes
	}

	cash, err := cfg.Account.InitialCashAmount()
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.engine = sim.NewEngine(db, oracle,
		sim.WithLogger(logger),
		sim.WithOracleTimeout(cfg.Oracle.Timeout),
	)
	a.accounts = auth.NewService(db, a.engine.Ledger(),
		auth.WithInitialCash(cash),
		auth.WithLogger(logger),
	)
	return a, nil
}

func newOracle(cfg config.OracleConfig, logger *slog.Logger) (market.Oracle, error) {
	switch cfg.Type {
	case "iex":
		c, err := iex.NewClient(iex.Config{
			BaseURL:         cfg.BaseURL,
			Token:           cfg.Token,
			Timeout:         cfg.Timeout,
			MaxRetries:      cfg.MaxRetries,
			RateLimitPerMin: cfg.RateLimitPerMin,
			Logger:          logger,
		})
		if err != nil {
			return nil, fmt.Errorf("iex oracle: %w", err)
		}
		return c, nil
	default:
		quotes, err := cfg.Quotes()
		if err != nil {
			return nil, err
		}
		return market.NewStaticOracle(quotes...), nil
	}
}

// userID resolves a username to the account the command acts on.
func (a *app) userID(ctx context.Context, username string) (int64, error) {
	u, err := a.accounts.Lookup(ctx, username)
	if err != nil {
		return 0, fmt.Errorf("user %q: %w", username, err)
	}
	return u.ID, nil
}

func (a *app) Close() error {
	var errs []error
	if a.quotes != nil {
		errs = append(errs, a.quotes.Close())
	}
	errs = append(errs, a.db.Close())
	return errors.Join(errs...)
}

// withApp opens the app for the duration of fn.
func withApp(ctx context.Context, rc *RootConfig, fn func(a *app) error) error {
	a, err := openApp(ctx, rc)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.logger.Warn("close", "error", err)
		}
	}()
	return fn(a)
}
