package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/papertrade/market"
)

func TestNewQuoteCacheValidation(t *testing.T) {
	t.Parallel()

	_, err := NewQuoteCache(Config{}, market.NewStaticOracle(), nil)
	assert.Error(t, err)

	_, err = NewQuoteCache(Config{Addr: "localhost:6379"}, nil, nil)
	assert.Error(t, err)
}

func TestQuoteCacheFallsBackWhenRedisIsDown(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	oracle := market.OracleFunc(func(ctx context.Context, symbol string) (market.Quote, error) {
		calls.Add(1)
		return market.Quote{Symbol: symbol, Name: "ABC Corp", Price: decimal.NewFromInt(100)}, nil
	})

	// Nothing listens on port 1.
	c, err := NewQuoteCache(Config{Addr: "127.0.0.1:1", TTL: time.Minute}, oracle, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	assert.Error(t, c.Ping(context.Background()))

	q, err := c.Lookup(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "ABC", q.Symbol)
	assert.Equal(t, int32(1), calls.Load())

	_, err = c.Lookup(context.Background(), "ABC")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "without redis every lookup reaches the oracle")
}

func TestQuoteCachePassesOracleErrors(t *testing.T) {
	t.Parallel()

	c, err := NewQuoteCache(Config{Addr: "127.0.0.1:1"}, market.NewStaticOracle(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	_, err = c.Lookup(context.Background(), "NOPE")
	assert.ErrorIs(t, err, market.ErrSymbolNotFound)
}

func TestQuoteCacheKey(t *testing.T) {
	t.Parallel()

	c, err := NewQuoteCache(Config{Addr: "127.0.0.1:1", KeyPrefix: "pt"}, market.NewStaticOracle(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	assert.Equal(t, "pt:quote:AAPL", c.key("AAPL"))
	assert.Equal(t, ConfigDefaults().TTL, c.ttl)
}
