// Package sim is the trade engine. It validates a buy or sell, prices it
// with the oracle and applies the cash change, the position change and the
// log entry in one database transaction.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/rustyeddy/papertrade/journal"
	"github.com/rustyeddy/papertrade/ledger"
	"github.com/rustyeddy/papertrade/market"
	"github.com/rustyeddy/papertrade/portfolio"
	"github.com/rustyeddy/papertrade/store"
)

// DefaultOracleTimeout bounds a single price lookup.
const DefaultOracleTimeout = 5 * time.Second

// TxRunner runs a function inside a database transaction. *store.DB
// implements it.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(q store.Querier) error) error
	WithReadTx(ctx context.Context, fn func(q store.Querier) error) error
}

// HoldingView is one row of the portfolio page.
type HoldingView struct {
	Name   string          `json:"name"`
	Symbol string          `json:"symbol"`
	Shares int64           `json:"shares"`
	Price  decimal.Decimal `json:"price"`
	Value  decimal.Decimal `json:"value"`
}

// PortfolioView is cash plus holdings, valued at each holding's last traded
// price. Total = Cash + sum of Value.
type PortfolioView struct {
	Holdings []HoldingView  `json:"holdings"`
	Cash     decimal.Decimal `json:"cash"`
	Total    decimal.Decimal `json:"total"`
}

// Receipt is the result of a committed trade.
type Receipt struct {
	Entry     journal.Entry `json:"transaction"`
	Name      string        `json:"name"`
	Portfolio PortfolioView `json:"portfolio"`
}

type Engine struct {
	db        TxRunner
	oracle    market.Oracle
	ledger    *ledger.Ledger
	positions *portfolio.Store
	journal   *journal.Log
	locks     *userLocks
	telemetry *Telemetry
	logger    *slog.Logger

	oracleTimeout time.Duration
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithOracleTimeout overrides DefaultOracleTimeout.
func WithOracleTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.oracleTimeout = d
		}
	}
}

func WithTelemetry(t *Telemetry) Option {
	return func(e *Engine) {
		if t != nil {
			e.telemetry = t
		}
	}
}

func NewEngine(db TxRunner, oracle market.Oracle, opts ...Option) *Engine {
	e := &Engine{
		db:            db,
		oracle:        oracle,
		locks:         newUserLocks(),
		logger:        slog.Default(),
		oracleTimeout: DefaultOracleTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.telemetry == nil {
		t, err := NewTelemetry()
		if err != nil {
			e.logger.Warn("telemetry disabled", "error", err)
			t, _ = NewTelemetryWithProviders(tracenoop.NewTracerProvider(), noop.NewMeterProvider())
		}
		e.telemetry = t
	}
	e.ledger = ledger.New(e.logger)
	e.positions = portfolio.New(e.logger)
	e.journal = journal.New(e.logger)
	e.logger = e.logger.With("component", "engine")
	return e
}

// Ledger exposes the account ledger so registration can create users with
// the same logger and clock.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// Quote looks a symbol up without trading.
func (e *Engine) Quote(ctx context.Context, symbol string) (market.Quote, error) {
	symbol = market.NormalizeSymbol(symbol)
	if symbol == "" {
		return market.Quote{}, fmt.Errorf("%w: missing symbol", ErrInvalidInput)
	}
	return e.lookup(ctx, symbol)
}

// ExecuteBuy buys shares of symbol at the oracle's current price.
func (e *Engine) ExecuteBuy(ctx context.Context, userID int64, symbol string, shares int64) (Receipt, error) {
	return e.execute(ctx, journal.Buy, userID, symbol, shares)
}

// ExecuteSell sells shares of symbol at the oracle's current price.
func (e *Engine) ExecuteSell(ctx context.Context, userID int64, symbol string, shares int64) (Receipt, error) {
	return e.execute(ctx, journal.Sell, userID, symbol, shares)
}

func (e *Engine) execute(ctx context.Context, side journal.Side, userID int64, symbol string, shares int64) (r Receipt, err error) {
	start := time.Now()
	ctx, span := e.telemetry.startTrade(ctx, side, userID, symbol, shares)
	defer func() {
		e.telemetry.endTrade(ctx, span, side, time.Since(start), err)
	}()

	symbol, err = validate(symbol, shares)
	if err != nil {
		return Receipt{}, err
	}

	// The oracle is consulted before any lock is taken so a slow lookup
	// never holds up other trades.
	quote, err := e.lookup(ctx, symbol)
	if err != nil {
		return Receipt{}, err
	}

	unlock := e.locks.lock(userID)
	defer unlock()

	err = e.db.WithTx(ctx, func(q store.Querier) error {
		cash, err := e.ledger.LockBalance(ctx, q, userID)
		if err != nil {
			return err
		}
		amount := market.Value(quote.Price, shares)

		switch side {
		case journal.Buy:
			err = e.applyBuy(ctx, q, userID, quote, shares, cash, amount)
		case journal.Sell:
			err = e.applySell(ctx, q, userID, quote, shares, amount)
		}
		if err != nil {
			return err
		}

		entry, err := e.journal.Append(ctx, q, userID, side, quote.Symbol, shares, quote.Price)
		if err != nil {
			return err
		}
		view, err := e.snapshot(ctx, q, userID)
		if err != nil {
			return err
		}
		r = Receipt{Entry: entry, Name: quote.Name, Portfolio: view}
		return nil
	})
	if err != nil {
		err = e.userError(err)
		e.logger.Info("trade rejected",
			"side", string(side), "user_id", userID, "symbol", symbol,
			"shares", shares, "kind", KindOf(err).String(), "error", err)
		return Receipt{}, err
	}

	e.logger.Info("trade executed",
		"side", string(side), "user_id", userID, "symbol", symbol,
		"shares", shares, "price", quote.Price.String(), "id", r.Entry.ID)
	return r, nil
}

func (e *Engine) applyBuy(ctx context.Context, q store.Querier, userID int64, quote market.Quote, shares int64, cash, cost decimal.Decimal) error {
	if cash.LessThan(cost) {
		return fmt.Errorf("%w: %d %s costs %s, you have %s", ErrInsufficientFunds,
			shares, quote.Symbol, market.FormatUSD(cost), market.FormatUSD(cash))
	}
	if _, err := e.ledger.Debit(ctx, q, userID, cost); err != nil {
		return err
	}
	_, err := e.positions.Upsert(ctx, q, userID, quote.Symbol, quote.Name, shares, quote.Price)
	return err
}

func (e *Engine) applySell(ctx context.Context, q store.Querier, userID int64, quote market.Quote, shares int64, proceeds decimal.Decimal) error {
	held, err := e.positions.Get(ctx, q, userID, quote.Symbol)
	if err != nil {
		return err
	}
	if held.Shares < shares {
		return fmt.Errorf("%w: you only have %d shares of %s", ErrInsufficientShares, held.Shares, quote.Symbol)
	}
	if _, err := e.ledger.Credit(ctx, q, userID, proceeds); err != nil {
		return err
	}
	_, err = e.positions.Decrement(ctx, q, userID, quote.Symbol, shares)
	return err
}

// userError turns an unknown user into invalid input and everything that is
// not a domain error into ErrStorageUnavailable.
func (e *Engine) userError(err error) error {
	if errors.Is(err, ledger.ErrUserNotFound) {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return classify(err)
}

// lookup calls the oracle with a deadline and normalizes its failures to
// ErrUnknownSymbol or ErrOracleUnavailable.
func (e *Engine) lookup(ctx context.Context, symbol string) (market.Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, e.oracleTimeout)
	defer cancel()

	start := time.Now()
	q, err := e.oracle.Lookup(ctx, symbol)
	switch {
	case err == nil && !q.Price.IsPositive():
		err = fmt.Errorf("%w: non-positive price %s for %s", ErrOracleUnavailable, q.Price, symbol)
	case err == nil:
	case errors.Is(err, ErrUnknownSymbol), errors.Is(err, ErrOracleUnavailable):
	default:
		err = fmt.Errorf("%w: %w", ErrOracleUnavailable, err)
	}
	e.telemetry.recordLookup(ctx, time.Since(start), err)
	if err != nil {
		return market.Quote{}, err
	}

	q.Symbol = market.NormalizeSymbol(q.Symbol)
	if q.Symbol == "" {
		q.Symbol = symbol
	}
	if q.Name == "" {
		q.Name = q.Symbol
	}
	return q, nil
}

// Portfolio returns the user's cash and holdings read from one snapshot.
func (e *Engine) Portfolio(ctx context.Context, userID int64) (PortfolioView, error) {
	var view PortfolioView
	err := e.db.WithReadTx(ctx, func(q store.Querier) error {
		var err error
		view, err = e.snapshot(ctx, q, userID)
		return err
	})
	if err != nil {
		return PortfolioView{}, e.userError(err)
	}
	return view, nil
}

func (e *Engine) snapshot(ctx context.Context, q store.Querier, userID int64) (PortfolioView, error) {
	cash, err := e.ledger.Balance(ctx, q, userID)
	if err != nil {
		return PortfolioView{}, err
	}
	h, err := e.positions.ListForUser(ctx, q, userID)
	if err != nil {
		return PortfolioView{}, err
	}

	view := PortfolioView{
		Holdings: make([]HoldingView, 0, h.Len()),
		Cash:     cash,
		Total:    cash.Add(h.Value()),
	}
	for _, p := range h.All() {
		view.Holdings = append(view.Holdings, HoldingView{
			Name:   p.Name,
			Symbol: p.Symbol,
			Shares: p.Shares,
			Price:  p.Price,
			Value:  p.Value(),
		})
	}
	return view, nil
}

// History returns every trade of the user in the order they happened.
func (e *Engine) History(ctx context.Context, userID int64) ([]journal.Entry, error) {
	var entries []journal.Entry
	err := e.db.WithReadTx(ctx, func(q store.Querier) error {
		var err error
		entries, err = e.journal.ListForUser(ctx, q, userID)
		return err
	})
	if err != nil {
		return nil, classify(err)
	}
	return entries, nil
}

// Symbols lists the symbols the user can sell.
func (e *Engine) Symbols(ctx context.Context, userID int64) ([]string, error) {
	var symbols []string
	err := e.db.WithReadTx(ctx, func(q store.Querier) error {
		h, err := e.positions.ListForUser(ctx, q, userID)
		if err != nil {
			return err
		}
		symbols = h.Symbols()
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return symbols, nil
}

// Transaction returns one of the user's trades by ID. A trade that does not
// exist or belongs to someone else is ErrInvalidInput.
func (e *Engine) Transaction(ctx context.Context, userID int64, entryID string) (journal.Entry, error) {
	var entry journal.Entry
	err := e.db.WithReadTx(ctx, func(q store.Querier) error {
		var err error
		entry, err = e.journal.Get(ctx, q, entryID)
		return err
	})
	switch {
	case errors.Is(err, journal.ErrNotFound):
		return journal.Entry{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	case err != nil:
		return journal.Entry{}, classify(err)
	case entry.UserID != userID:
		return journal.Entry{}, fmt.Errorf("%w: %w: %s", ErrInvalidInput, journal.ErrNotFound, entryID)
	}
	return entry, nil
}
