package oracle

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/vault-engine/internal/fixed"
	"github.com/atmx/vault-engine/internal/model"
)

func TestRoundEncoding(t *testing.T) {
	in := round{price: fixed.USD(41000), at: time.Unix(0, 1_700_000_000_123)}
	out, err := decodeRound(encodeRound(in))
	require.NoError(t, err)
	assert.True(t, in.price.Eq(out.price))
	assert.True(t, in.at.Equal(out.at))

	_, err = decodeRound("41000")
	assert.Error(t, err)
	_, err = decodeRound("abc|1")
	assert.Error(t, err)
}

// TestRedisFeed needs a live Redis; set REDIS_URL to run it.
func TestRedisFeed(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	ctx := context.Background()
	asset := "TEST-" + time.Now().Format("150405.000000")
	defer rdb.Del(ctx, roundsKey(asset))

	f := NewRedisFeed(rdb, 3, 0)
	_, err = f.Price(ctx, asset, true)
	require.ErrorIs(t, err, model.ErrPriceUnavailable)

	for _, p := range []uint64{1, 40000, 40000, 41000} {
		require.NoError(t, f.Push(ctx, asset, fixed.USD(p)))
	}
	min, err := f.Price(ctx, asset, false)
	require.NoError(t, err)
	max, err := f.Price(ctx, asset, true)
	require.NoError(t, err)
	assert.True(t, min.Eq(fixed.USD(40000)))
	assert.True(t, max.Eq(fixed.USD(41000)))
}
