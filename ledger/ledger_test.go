package ledger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/papertrade/store"
)

func newTestLedger(t *testing.T) (*Ledger, *store.DB) {
	t.Helper()

	db, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "ledger.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return New(nil), db
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCreateUser(t *testing.T) {
	t.Parallel()

	l, db := newTestLedger(t)
	ctx := context.Background()

	u, err := l.CreateUser(ctx, db, " alice ", "hash", dec("10000.00"))
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
	assert.Equal(t, "alice", u.Username)

	got, err := l.UserByID(ctx, db, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "hash", got.Hash)
	assert.True(t, got.Cash.Equal(dec("10000")), "cash %s", got.Cash)

	got, err = l.UserByUsername(ctx, db, "alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}

func TestCreateUserDuplicate(t *testing.T) {
	t.Parallel()

	l, db := newTestLedger(t)
	ctx := context.Background()

	_, err := l.CreateUser(ctx, db, "bob", "h", dec("1"))
	require.NoError(t, err)

	_, err = l.CreateUser(ctx, db, "bob", "h", dec("1"))
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestCreateUserValidation(t *testing.T) {
	t.Parallel()

	l, db := newTestLedger(t)
	ctx := context.Background()

	_, err := l.CreateUser(ctx, db, "  ", "h", dec("1"))
	assert.ErrorContains(t, err, "username is required")

	_, err = l.CreateUser(ctx, db, "carol", "h", dec("-1"))
	assert.ErrorIs(t, err, ErrNegativeAmount)
}

func TestUserNotFound(t *testing.T) {
	t.Parallel()

	l, db := newTestLedger(t)
	ctx := context.Background()

	_, err := l.UserByID(ctx, db, 42)
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = l.UserByUsername(ctx, db, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = l.Balance(ctx, db, 42)
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = l.Credit(ctx, db, 42, dec("1"))
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestCreditDebit(t *testing.T) {
	t.Parallel()

	l, db := newTestLedger(t)
	ctx := context.Background()

	u, err := l.CreateUser(ctx, db, "dave", "h", dec("100.50"))
	require.NoError(t, err)

	cash, err := l.Credit(ctx, db, u.ID, dec("0.25"))
	require.NoError(t, err)
	assert.True(t, cash.Equal(dec("100.75")), "cash %s", cash)

	cash, err = l.Debit(ctx, db, u.ID, dec("100.75"))
	require.NoError(t, err)
	assert.True(t, cash.IsZero(), "cash %s", cash)

	cash, err = l.Balance(ctx, db, u.ID)
	require.NoError(t, err)
	assert.True(t, cash.IsZero())
}

func TestDebitNeverGoesNegative(t *testing.T) {
	t.Parallel()

	l, db := newTestLedger(t)
	ctx := context.Background()

	u, err := l.CreateUser(ctx, db, "erin", "h", dec("10"))
	require.NoError(t, err)

	_, err = l.Debit(ctx, db, u.ID, dec("10.01"))
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.ErrorContains(t, err, "need 10.01, have 10.00")

	cash, err := l.Balance(ctx, db, u.ID)
	require.NoError(t, err)
	assert.True(t, cash.Equal(dec("10")), "balance must be unchanged, got %s", cash)
}

func TestNegativeAmountsRejected(t *testing.T) {
	t.Parallel()

	l, db := newTestLedger(t)
	ctx := context.Background()

	u, err := l.CreateUser(ctx, db, "frank", "h", dec("10"))
	require.NoError(t, err)

	_, err = l.Credit(ctx, db, u.ID, dec("-1"))
	assert.ErrorIs(t, err, ErrNegativeAmount)
	_, err = l.Debit(ctx, db, u.ID, dec("-1"))
	assert.ErrorIs(t, err, ErrNegativeAmount)
}

func TestDebitInsideRolledBackTx(t *testing.T) {
	t.Parallel()

	l, db := newTestLedger(t)
	ctx := context.Background()

	u, err := l.CreateUser(ctx, db, "gina", "h", dec("50"))
	require.NoError(t, err)

	err = db.WithTx(ctx, func(q store.Querier) error {
		if _, err := l.Debit(ctx, q, u.ID, dec("20")); err != nil {
			return err
		}
		_, err := l.Debit(ctx, q, u.ID, dec("40"))
		return err
	})
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	cash, err := l.Balance(ctx, db, u.ID)
	require.NoError(t, err)
	assert.True(t, cash.Equal(dec("50")), "rolled back debit must not persist, got %s", cash)
}
