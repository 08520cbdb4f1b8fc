// Package iex is a price oracle backed by an IEX Cloud compatible quote API.
package iex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/rustyeddy/papertrade/market"
	"github.com/rustyeddy/papertrade/pkg/retry"
)

const (
	// CloudURL is the production API.
	CloudURL = "https://cloud.iexapis.com/stable"
	// SandboxURL serves fake prices for development.
	SandboxURL = "https://sandbox.iexapis.com/stable"
)

type Config struct {
	BaseURL string
	Token   string

	// Timeout bounds a single HTTP request.
	Timeout time.Duration

	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// RateLimitPerMin caps outgoing requests.
	RateLimitPerMin int

	Logger     *slog.Logger
	HTTPClient *http.Client
}

func DefaultConfig() Config {
	return Config{
		BaseURL:         CloudURL,
		Timeout:         10 * time.Second,
		MaxRetries:      2,
		InitialBackoff:  200 * time.Millisecond,
		MaxBackoff:      2 * time.Second,
		RateLimitPerMin: 600,
	}
}

// Client looks up quotes over HTTP.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      retry.Config
	logger     *slog.Logger
}

var _ market.Oracle = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("iex token is required")
	}
	d := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = d.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = d.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = d.MaxBackoff
	}
	if cfg.RateLimitPerMin <= 0 {
		cfg.RateLimitPerMin = d.RateLimitPerMin
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(float64(cfg.RateLimitPerMin)/60.0), 1),
		retry: retry.Config{
			MaxRetries:     cfg.MaxRetries,
			InitialBackoff: cfg.InitialBackoff,
			MaxBackoff:     cfg.MaxBackoff,
		},
		logger: cfg.Logger.With("component", "iex-client"),
	}, nil
}

// quoteResponse is the subset of /stock/{symbol}/quote we use.
type quoteResponse struct {
	Symbol      string          `json:"symbol"`
	CompanyName string          `json:"companyName"`
	LatestPrice decimal.Decimal `json:"latestPrice"`
}

// Lookup fetches the latest price of symbol. A 404 is ErrSymbolNotFound;
// every other failure is ErrOracleUnavailable.
func (c *Client) Lookup(ctx context.Context, symbol string) (market.Quote, error) {
	symbol = market.NormalizeSymbol(symbol)
	if symbol == "" {
		return market.Quote{}, fmt.Errorf("%w: empty symbol", market.ErrSymbolNotFound)
	}

	apiURL := fmt.Sprintf("%s/stock/%s/quote?%s", c.baseURL, url.PathEscape(symbol),
		url.Values{"token": {c.token}}.Encode())

	onRetry := func(attempt int, err error, backoff time.Duration) {
		c.logger.Warn("quote request failed, retrying",
			"symbol", symbol, "attempt", attempt, "backoff", backoff, "error", err)
	}

	q, err := retry.Do(ctx, c.retry, onRetry, func(ctx context.Context) (market.Quote, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return market.Quote{}, retry.Permanent(fmt.Errorf("rate limiter: %w", err))
		}
		return c.get(ctx, apiURL)
	})
	if err != nil {
		if errors.Is(err, market.ErrSymbolNotFound) {
			return market.Quote{}, fmt.Errorf("%w: %s", market.ErrSymbolNotFound, symbol)
		}
		return market.Quote{}, fmt.Errorf("%w: %s: %w", market.ErrOracleUnavailable, symbol, err)
	}
	if q.Symbol == "" {
		q.Symbol = symbol
	}
	return q, nil
}

func (c *Client) get(ctx context.Context, apiURL string) (market.Quote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return market.Quote{}, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return market.Quote{}, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return market.Quote{}, retry.Permanent(market.ErrSymbolNotFound)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return market.Quote{}, fmt.Errorf("API error (status %d)", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return market.Quote{}, retry.Permanent(fmt.Errorf("API error (status %d): %s", resp.StatusCode, body))
	}

	var qr quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return market.Quote{}, retry.Permanent(fmt.Errorf("decode response: %w", err))
	}
	if !qr.LatestPrice.IsPositive() {
		return market.Quote{}, retry.Permanent(fmt.Errorf("no price in response"))
	}

	return market.Quote{
		Symbol: market.NormalizeSymbol(qr.Symbol),
		Name:   qr.CompanyName,
		Price:  qr.LatestPrice,
	}, nil
}
