//go:build integration

package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rustyeddy/papertrade/store"
)

func startPostgres(t *testing.T, ctx context.Context) *store.DB {
	t.Helper()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "postgres",
				"POSTGRES_PASSWORD": "postgres",
				"POSTGRES_DB":       "papertrade",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	db, err := store.Open(ctx, store.Config{
		Driver:   "postgres",
		URL:      fmt.Sprintf("postgres://postgres:postgres@%s:%s/papertrade?sslmode=disable", host, port.Port()),
		MaxConns: 8,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestPostgresEngine(t *testing.T) {
	ctx := context.Background()
	db := startPostgres(t, ctx)

	t.Run("buy then sell", func(t *testing.T) {
		env := newTestEnvOn(t, db, "alice", "10000")

		_, err := env.engine.ExecuteBuy(ctx, env.userID, "ABC", 10)
		require.NoError(t, err)
		env.oracle.SetPrice("ABC", dec("120"))
		r, err := env.engine.ExecuteSell(ctx, env.userID, "ABC", 10)
		require.NoError(t, err)

		assert.True(t, r.Portfolio.Cash.Equal(dec("10200")), "cash %s", r.Portfolio.Cash)
		assert.Empty(t, r.Portfolio.Holdings)

		_, err = env.engine.ExecuteSell(ctx, env.userID, "ABC", 1)
		assert.ErrorIs(t, err, ErrNoSuchPosition)
	})

	t.Run("rejected buy leaves nothing behind", func(t *testing.T) {
		env := newTestEnvOn(t, db, "bob", "50")
		before := env.state(t)

		_, err := env.engine.ExecuteBuy(ctx, env.userID, "ABC", 1)
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assertUnchanged(t, before, env.state(t))
	})

	// Two engines share nothing in process, so only the row lock keeps
	// the sells apart.
	t.Run("concurrent sells across engines", func(t *testing.T) {
		env := newTestEnvOn(t, db, "carol", "10000")
		_, err := env.engine.ExecuteBuy(ctx, env.userID, "ABC", 10)
		require.NoError(t, err)

		other := NewEngine(db, env.oracle)
		engines := []*Engine{env.engine, other}

		var (
			wg   sync.WaitGroup
			errs = make([]error, len(engines))
		)
		for i, e := range engines {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = e.ExecuteSell(ctx, env.userID, "ABC", 6)
			}()
		}
		wg.Wait()

		var ok int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrInsufficientShares):
				assert.ErrorContains(t, err, "you only have 4 shares of ABC")
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, ok)

		s := env.state(t)
		assert.Equal(t, int64(4), s.shares["ABC"])
		assert.True(t, s.cash.Equal(dec("9600")), "cash %s", s.cash)
		assert.Equal(t, 2, s.history)
	})
}
