package oracle_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/vault-engine/internal/fixed"
	"github.com/atmx/vault-engine/internal/model"
	"github.com/atmx/vault-engine/internal/oracle"
)

func TestSampleFeedMinMax(t *testing.T) {
	ctx := context.Background()
	f := oracle.NewSampleFeed(3, 0)

	for _, p := range []uint64{40000, 40000, 41000} {
		require.NoError(t, f.Push(ctx, "BTC", fixed.USD(p)))
	}

	max, err := f.Price(ctx, "BTC", true)
	require.NoError(t, err)
	min, err := f.Price(ctx, "BTC", false)
	require.NoError(t, err)
	assert.True(t, max.Eq(fixed.USD(41000)))
	assert.True(t, min.Eq(fixed.USD(40000)))
}

func TestSampleFeedDropsOldRounds(t *testing.T) {
	ctx := context.Background()
	f := oracle.NewSampleFeed(3, 0)

	for _, p := range []uint64{30000, 45100, 46100, 47100} {
		require.NoError(t, f.Push(ctx, "BTC", fixed.USD(p)))
	}

	min, err := f.Price(ctx, "BTC", false)
	require.NoError(t, err)
	assert.True(t, min.Eq(fixed.USD(45100)), "30000 fell out of the window")
}

func TestSampleFeedFailsClosed(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	f := oracle.NewSampleFeed(3, time.Minute).WithClock(func() time.Time { return now })

	_, err := f.Price(ctx, "ETH", true)
	require.ErrorIs(t, err, model.ErrPriceUnavailable)

	require.NoError(t, f.Push(ctx, "ETH", fixed.USD(2000)))
	_, err = f.Price(ctx, "ETH", true)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = f.Price(ctx, "ETH", true)
	require.ErrorIs(t, err, model.ErrStalePrice)
	assert.Equal(t, model.KindOracle, model.KindOf(err))

	require.ErrorIs(t, f.Push(ctx, "ETH", fixed.Zero), model.ErrPriceUnavailable)
}
