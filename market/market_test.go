package market

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSymbol(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "AAPL", NormalizeSymbol(" aapl "))
	assert.Equal(t, "", NormalizeSymbol("   "))
}

func TestFormatUSD(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"0", "$0.00"},
		{"10000", "$10,000.00"},
		{"1234.567", "$1,234.57"},
		{"-12.5", "-$12.50"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatUSD(decimal.RequireFromString(tt.in)))
		})
	}
}

func TestValue(t *testing.T) {
	t.Parallel()

	got := Value(decimal.RequireFromString("100.25"), 4)
	assert.True(t, got.Equal(decimal.RequireFromString("401")), "got %s", got)
}

func TestParseAmount(t *testing.T) {
	t.Parallel()

	d, err := ParseAmount("9000.00")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.NewFromInt(9000)))

	_, err = ParseAmount("lots")
	assert.Error(t, err)
}

func TestStaticOracle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	o := NewStaticOracle(Quote{Symbol: "abc", Name: "ABC Corp", Price: decimal.NewFromInt(100)})

	q, err := o.Lookup(ctx, "ABC")
	require.NoError(t, err)
	assert.Equal(t, "ABC", q.Symbol)
	assert.Equal(t, "ABC Corp", q.Name)
	assert.True(t, q.Price.Equal(decimal.NewFromInt(100)))

	o.SetPrice("abc", decimal.NewFromInt(120))
	q, err = o.Lookup(ctx, " abc")
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(decimal.NewFromInt(120)))
	assert.Equal(t, "ABC Corp", q.Name)

	_, err = o.Lookup(ctx, "ZZZ")
	assert.ErrorIs(t, err, ErrSymbolNotFound)

	o.Delete("ABC")
	_, err = o.Lookup(ctx, "ABC")
	assert.ErrorIs(t, err, ErrSymbolNotFound)
}

func TestStaticOracleCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := NewStaticOracle(Quote{Symbol: "ABC", Price: decimal.NewFromInt(1)})
	_, err := o.Lookup(ctx, "ABC")
	assert.ErrorIs(t, err, ErrOracleUnavailable)
}

func TestStaticOracleSymbols(t *testing.T) {
	t.Parallel()

	o := NewStaticOracle(Quote{Symbol: "msft"}, Quote{Symbol: "AAPL"})
	assert.Equal(t, []string{"AAPL", "MSFT"}, o.Symbols())
}
