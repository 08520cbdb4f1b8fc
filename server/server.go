// Package server exposes the trade engine as a JSON API over HTTP.
//
// Routes:
//   - POST /api/v1/register
//   - GET  /api/v1/quote/{symbol}
//   - POST /api/v1/buy
//   - POST /api/v1/sell
//   - GET  /api/v1/portfolio
//   - GET  /api/v1/history
//   - GET  /api/v1/positions/symbols
//   - GET  /health
//
// Everything under /api/v1 except register requires HTTP Basic auth.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/rustyeddy/papertrade/journal"
	"github.com/rustyeddy/papertrade/ledger"
	"github.com/rustyeddy/papertrade/market"
	"github.com/rustyeddy/papertrade/sim"
)

// Trader is the part of sim.Engine the API calls.
type Trader interface {
	Quote(ctx context.Context, symbol string) (market.Quote, error)
	ExecuteBuy(ctx context.Context, userID int64, symbol string, shares int64) (sim.Receipt, error)
	ExecuteSell(ctx context.Context, userID int64, symbol string, shares int64) (sim.Receipt, error)
	Portfolio(ctx context.Context, userID int64) (sim.PortfolioView, error)
	History(ctx context.Context, userID int64) ([]journal.Entry, error)
	Symbols(ctx context.Context, userID int64) ([]string, error)
}

// Accounts registers and authenticates users. *auth.Service implements it.
type Accounts interface {
	Register(ctx context.Context, username, password, confirmation string) (ledger.User, error)
	Authenticate(ctx context.Context, username, password string) (ledger.User, error)
}

// Pinger reports whether storage is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds configuration for the API server.
type Config struct {
	// Addr is the address to listen on (e.g., ":8080")
	Addr string

	Logger *slog.Logger

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// ShutdownTimeout bounds how long Run waits for in-flight requests.
	ShutdownTimeout time.Duration
}

// ConfigDefaults returns a config with default values.
func ConfigDefaults() Config {
	return Config{
		Addr:            ":8080",
		Logger:          slog.Default(),
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

type Server struct {
	server          *http.Server
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// New builds the server. db may be nil, in which case /health only reports
// that the process is up.
func New(cfg Config, trader Trader, accounts Accounts, db Pinger) *Server {
	defaults := ConfigDefaults()
	if cfg.Addr == "" {
		cfg.Addr = defaults.Addr
	}
	if cfg.Logger == nil {
		cfg.Logger = defaults.Logger
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}

	logger := cfg.Logger.With("component", "api-server")
	h := NewHandler(trader, accounts, db, logger)

	return &Server{
		server: &http.Server{
			Addr:              cfg.Addr,
			Handler:           h.Routes(),
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
		},
		shutdownTimeout: cfg.ShutdownTimeout,
		logger:          logger,
	}
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Run listens on the configured address and serves until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting api server", "addr", ln.Addr().String())
		errCh <- s.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
