package iex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/papertrade/market"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		BaseURL:         srv.URL,
		Token:           "test-token",
		MaxRetries:      2,
		InitialBackoff:  time.Millisecond,
		MaxBackoff:      2 * time.Millisecond,
		RateLimitPerMin: 60000,
	})
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresToken(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{})
	assert.Error(t, err)

	c, err := NewClient(Config{Token: "x"})
	require.NoError(t, err)
	assert.Equal(t, CloudURL, c.baseURL)
	assert.NotNil(t, c.httpClient)
}

func TestLookupSuccess(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stock/AAPL/quote", r.URL.Path)
		assert.Equal(t, "test-token", r.URL.Query().Get("token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"symbol":"AAPL","companyName":"Apple Inc.","latestPrice":189.25}`))
	})

	q, err := c.Lookup(context.Background(), " aapl")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", q.Symbol)
	assert.Equal(t, "Apple Inc.", q.Name)
	assert.True(t, q.Price.Equal(decimal.RequireFromString("189.25")), "price %s", q.Price)
}

func TestLookupNotFound(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "Unknown symbol", http.StatusNotFound)
	})

	_, err := c.Lookup(context.Background(), "NOPE")
	assert.ErrorIs(t, err, market.ErrSymbolNotFound)
	assert.NotErrorIs(t, err, market.ErrOracleUnavailable)
	assert.Equal(t, int32(1), calls.Load(), "404 is not retried")
}

func TestLookupRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"symbol":"MSFT","companyName":"Microsoft","latestPrice":"410.10"}`))
	})

	q, err := c.Lookup(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.Equal(t, "Microsoft", q.Name)
	assert.Equal(t, int32(3), calls.Load())
}

func TestLookupUnavailable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server keeps failing", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}},
		{"forbidden", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad token", http.StatusForbidden)
		}},
		{"garbage body", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}},
		{"null price", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"symbol":"ABC","latestPrice":null}`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := newTestClient(t, tt.handler)
			_, err := c.Lookup(context.Background(), "ABC")
			assert.ErrorIs(t, err, market.ErrOracleUnavailable)
			assert.NotErrorIs(t, err, market.ErrSymbolNotFound)
		})
	}
}

func TestLookupHonorsContext(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Lookup(ctx, "ABC")
	assert.ErrorIs(t, err, market.ErrOracleUnavailable)
}

func TestLookupEmptySymbol(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	_, err := c.Lookup(context.Background(), " ")
	assert.ErrorIs(t, err, market.ErrSymbolNotFound)
}
