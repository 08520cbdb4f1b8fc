package cli

import (
	"bytes"
	"context"
	"encoding/csv"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/papertrade/ledger"
	"github.com/rustyeddy/papertrade/sim"
)

type runner struct {
	db string
}

func newRunner(t *testing.T) *runner {
	t.Helper()
	return &runner{db: filepath.Join(t.TempDir(), "cli.db")}
}

func (r *runner) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--db", r.db, "--style", "plain", "--log-level", "error"}, args...))

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := newRunner(t).run(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "papertrade dev\n", out)
}

func TestTradingSession(t *testing.T) {
	r := newRunner(t)

	out, err := r.run(t, "", "register", "alice", "--password", "pw", "--confirm", "pw")
	require.NoError(t, err)
	assert.Equal(t, "Registered alice with $10,000.00\n", out)

	out, err = r.run(t, "", "quote", "aapl")
	require.NoError(t, err)
	assert.Equal(t, "A share of Apple Inc. (AAPL) costs $189.25.\n", out)

	out, err = r.run(t, "", "buy", "alice", "AAPL", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Bought")
	assert.Contains(t, out, "$378.50")

	out, err = r.run(t, "", "portfolio", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "AAPL")
	assert.Contains(t, out, "$9,621.50")
	assert.Contains(t, out, "$10,000.00")

	_, err = r.run(t, "", "sell", "alice", "AAPL", "3")
	assert.ErrorIs(t, err, sim.ErrInsufficientShares)

	_, err = r.run(t, "", "sell", "alice", "MSFT", "1")
	assert.ErrorIs(t, err, sim.ErrNoSuchPosition)

	out, err = r.run(t, "", "sell", "alice", "AAPL", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Sold")

	out, err = r.run(t, "", "history", "alice", "--format", "csv")
	require.NoError(t, err)
	records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"buy", "AAPL", "2", "189.25", "378.50"}, records[1][2:7])
	assert.Equal(t, []string{"sell", "AAPL", "2", "189.25", "378.50"}, records[2][2:7])

	out, err = r.run(t, "", "transaction", "alice", records[1][0])
	require.NoError(t, err)
	assert.Contains(t, out, "Bought 2 AAPL @ $189.25")

	out, err = r.run(t, "", "history", "alice", "--format", "org")
	require.NoError(t, err)
	assert.Contains(t, out, "Sold 2 AAPL")

	out, err = r.run(t, "", "history", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "History")
	assert.Contains(t, out, "-2")
}

func TestRegisterReadsStdin(t *testing.T) {
	r := newRunner(t)

	_, err := r.run(t, "secret\nsecret\n", "register", "bob")
	require.NoError(t, err)

	_, err = r.run(t, "secret\nother\n", "register", "carol")
	assert.Error(t, err)

	_, err = r.run(t, "", "register", "dave", "--password", "x")
	assert.Error(t, err)
}

func TestCommandErrors(t *testing.T) {
	r := newRunner(t)

	_, err := r.run(t, "", "portfolio", "nobody")
	assert.ErrorIs(t, err, ledger.ErrUserNotFound)

	_, err = r.run(t, "", "buy", "nobody", "AAPL", "zero")
	assert.ErrorIs(t, err, sim.ErrInvalidInput)

	_, err = r.run(t, "", "quote", "NOPE")
	assert.ErrorIs(t, err, sim.ErrUnknownSymbol)

	_, err = r.run(t, "", "history", "nobody", "--format", "xml")
	assert.ErrorContains(t, err, "unknown format")

	_, err = r.run(t, "", "buy", "alice")
	assert.Error(t, err)
}

func TestConfigInitAndValidate(t *testing.T) {
	r := newRunner(t)
	path := filepath.Join(t.TempDir(), "papertrade.yaml")

	out, err := r.run(t, "", "config", "init", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	out, err = r.run(t, "", "config", "validate", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration valid")
	assert.Contains(t, out, "$10,000.00")

	_, err = r.run(t, "", "config", "validate", "-f", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = r.run(t, "", "--config", path, "version")
	assert.NoError(t, err)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLevel("debug").String())
	assert.Equal(t, "WARN", parseLevel("WARN").String())
	assert.Equal(t, "ERROR", parseLevel("error").String())
	assert.Equal(t, "INFO", parseLevel("whatever").String())
}

func TestReadPasswords(t *testing.T) {
	p, c, err := readPasswords(strings.NewReader("a\r\nb\n"))
	require.NoError(t, err)
	assert.Equal(t, "a", p)
	assert.Equal(t, "b", c)

	p, c, err = readPasswords(strings.NewReader("only"))
	require.NoError(t, err)
	assert.Equal(t, "only", p)
	assert.Equal(t, "", c)
}
