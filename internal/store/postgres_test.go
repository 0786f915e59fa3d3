package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/vault-engine/internal/fixed"
	"github.com/atmx/vault-engine/internal/model"
)

// newTestPostgres migrates a throwaway schema on DATABASE_URL.
func newTestPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	schema := fmt.Sprintf("vault_test_%d", time.Now().UnixNano())

	admin, err := pgx.Connect(ctx, url)
	require.NoError(t, err)
	_, err = admin.Exec(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
		admin.Close(context.Background())
	})

	cfg, err := pgxpool.ParseConfig(url)
	require.NoError(t, err)
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	s := NewPostgresStore(pool)
	require.NoError(t, s.Migrate(ctx))
	// Re-running is a no-op.
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestPostgresStore_OpenCloseReload(t *testing.T) {
	s := newTestPostgres(t)
	ctx := context.Background()

	open := sampleBatch()
	require.NoError(t, s.Apply(ctx, open))

	want := open.Positions[0]
	key := want.Key().Hex()
	got, err := s.GetPosition(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, want.Account, got.Account)
	assert.True(t, got.IsLong)
	assert.Equal(t, want.Size.String(), got.Size.String())
	assert.Equal(t, "9910000000000000000000000000000", got.Collateral.String())
	assert.Equal(t, want.AveragePrice.String(), got.AveragePrice.String())
	assert.Equal(t, "225000", got.ReserveAmount.String())
	assert.Equal(t, "5000000000000000000000000000000", got.RealisedPnl.Abs.String())
	assert.True(t, got.RealisedPnl.Negative)
	assert.True(t, want.LastIncreasedTime.Equal(got.LastIncreasedTime))

	positions, pools, err := s.LoadState(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.Len(t, pools, 1)
	assert.Equal(t, "274031", pools[0].PoolAmount.String())
	assert.Equal(t, "219", pools[0].FeeReserves.String())

	list, err := s.ListPositions(ctx, "0xalice")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	closed := want
	closed.Reset()
	pool := open.Pools[0]
	pool.PoolAmount = fixed.New(257153)
	pool.ReservedAmount = fixed.Zero
	pool.FeeReserves = fixed.New(438)
	require.NoError(t, s.Apply(ctx, &model.Batch{
		Positions: []model.Position{closed},
		Pools:     []model.PoolEntry{pool},
		Entries: []model.LedgerEntry{{
			ID:              "9b2e4f10-3c5d-4e6f-8a7b-1c2d3e4f5a6b",
			Kind:            model.EntryDecrease,
			PositionKey:     key,
			Account:         "0xalice",
			CollateralAsset: "BTC",
			IndexAsset:      "BTC",
			IsLong:          true,
			SizeDelta:       want.Size,
			AmountOut:       fixed.New(16878),
			RealisedPnl:     fixed.Signed{Abs: fixed.USD(4), Negative: true},
			Receiver:        "0xalice",
			Timestamp:       want.LastIncreasedTime.Add(time.Hour),
		}},
	}))

	_, err = s.GetPosition(ctx, key)
	require.ErrorIs(t, err, ErrNotFound)

	positions, pools, err = s.LoadState(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)
	require.Len(t, pools, 1)
	assert.Equal(t, "257153", pools[0].PoolAmount.String())
	assert.True(t, pools[0].ReservedAmount.IsZero())

	history, err := s.GetLedgerEntriesByPosition(ctx, key)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.EntryIncrease, history[0].Kind)
	assert.Equal(t, model.EntryDecrease, history[1].Kind)
	assert.Equal(t, "16878", history[1].AmountOut.String())
	assert.True(t, history[1].RealisedPnl.Negative)

	flows, err := s.AssetFlows(ctx)
	require.NoError(t, err)
	require.Len(t, flows, 1)
	assert.Equal(t, "BTC", flows[0].Asset)
	held, err := flows[0].Held()
	require.NoError(t, err)
	assert.Equal(t, "8122", held.String())
}
