// Package cache puts a Redis read-through cache in front of a price oracle.
//
// Quotes are stored as JSON under prefix:quote:SYMBOL with a short TTL.
// Redis failures never fail a lookup: the cache logs them and asks the
// oracle directly.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rustyeddy/papertrade/market"
)

type Config struct {
	Addr      string
	Password  string
	DB        int
	TTL       time.Duration
	KeyPrefix string
}

func ConfigDefaults() Config {
	return Config{
		Addr:      "localhost:6379",
		TTL:       15 * time.Second,
		KeyPrefix: "papertrade",
	}
}

// QuoteCache is a market.Oracle that consults Redis before the wrapped
// oracle.
type QuoteCache struct {
	client    *redis.Client
	next      market.Oracle
	ttl       time.Duration
	keyPrefix string
	logger    *slog.Logger
}

var _ market.Oracle = (*QuoteCache)(nil)

func NewQuoteCache(cfg Config, next market.Oracle, logger *slog.Logger) (*QuoteCache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if next == nil {
		return nil, fmt.Errorf("oracle is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 2 * time.Second,
		ReadTimeout: time.Second,
		MaxRetries:  -1,
	})
	return newQuoteCache(client, cfg, next, logger), nil
}

func newQuoteCache(client *redis.Client, cfg Config, next market.Oracle, logger *slog.Logger) *QuoteCache {
	d := ConfigDefaults()
	if cfg.TTL <= 0 {
		cfg.TTL = d.TTL
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = d.KeyPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QuoteCache{
		client:    client,
		next:      next,
		ttl:       cfg.TTL,
		keyPrefix: cfg.KeyPrefix,
		logger:    logger.With("component", "quote-cache"),
	}
}

func (c *QuoteCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *QuoteCache) Close() error {
	return c.client.Close()
}

func (c *QuoteCache) key(symbol string) string {
	return fmt.Sprintf("%s:quote:%s", c.keyPrefix, symbol)
}

// Lookup returns a cached quote if one is fresh, otherwise asks the oracle
// and caches a successful answer. Errors from the oracle are not cached.
func (c *QuoteCache) Lookup(ctx context.Context, symbol string) (market.Quote, error) {
	symbol = market.NormalizeSymbol(symbol)
	key := c.key(symbol)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var q market.Quote
		if jerr := json.Unmarshal(data, &q); jerr == nil {
			return q, nil
		}
		c.logger.Warn("discarding unreadable cache entry", "key", key)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("cache read failed", "key", key, "error", err)
	}

	q, err := c.next.Lookup(ctx, symbol)
	if err != nil {
		return market.Quote{}, err
	}

	if data, err := json.Marshal(q); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("cache write failed", "key", key, "error", err)
		}
	}
	return q, nil
}

// Invalidate drops the cached quote for symbol.
func (c *QuoteCache) Invalidate(ctx context.Context, symbol string) error {
	if err := c.client.Del(ctx, c.key(market.NormalizeSymbol(symbol))).Err(); err != nil {
		return fmt.Errorf("invalidate %s: %w", symbol, err)
	}
	return nil
}
