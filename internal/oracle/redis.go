package oracle

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/vault-engine/internal/fixed"
	"github.com/atmx/vault-engine/internal/model"
)

// RedisFeed keeps rounds in a Redis list per asset at "oracle:{asset}",
// newest first, trimmed to the sample space. Each element is
// "{price}|{unix nanos}". Several engine replicas can share one feed.
type RedisFeed struct {
	rdb         *redis.Client
	sampleSpace int
	maxAge      time.Duration
	now         func() time.Time
}

// NewRedisFeed creates a Redis-backed feed.
func NewRedisFeed(rdb *redis.Client, sampleSpace int, maxAge time.Duration) *RedisFeed {
	if sampleSpace < 1 {
		sampleSpace = DefaultSampleSpace
	}
	return &RedisFeed{rdb: rdb, sampleSpace: sampleSpace, maxAge: maxAge, now: time.Now}
}

func roundsKey(asset string) string { return "oracle:" + asset }

// Push records a new round for asset.
func (f *RedisFeed) Push(ctx context.Context, asset string, price fixed.Uint) error {
	if price.IsZero() {
		return fmt.Errorf("push %s: %w", asset, model.ErrPriceUnavailable)
	}
	key := roundsKey(asset)
	pipe := f.rdb.TxPipeline()
	pipe.LPush(ctx, key, encodeRound(round{price: price, at: f.now()}))
	pipe.LTrim(ctx, key, 0, int64(f.sampleSpace-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: push price %s: %w", asset, err)
	}
	return nil
}

// Price returns the max (maximise) or min of the recent rounds. Redis
// errors surface as ErrPriceUnavailable so callers see an oracle failure.
func (f *RedisFeed) Price(ctx context.Context, asset string, maximise bool) (fixed.Uint, error) {
	vals, err := f.rdb.LRange(ctx, roundsKey(asset), 0, int64(f.sampleSpace-1)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fixed.Zero, fmt.Errorf("price %s: %w: %v", asset, model.ErrPriceUnavailable, err)
	}
	if len(vals) == 0 {
		return fixed.Zero, fmt.Errorf("price %s: %w", asset, model.ErrPriceUnavailable)
	}

	prices := make([]fixed.Uint, 0, len(vals))
	for i, v := range vals {
		r, err := decodeRound(v)
		if err != nil {
			return fixed.Zero, fmt.Errorf("price %s: %w: %v", asset, model.ErrPriceUnavailable, err)
		}
		if i == 0 && f.maxAge > 0 && f.now().Sub(r.at) > f.maxAge {
			return fixed.Zero, fmt.Errorf("price %s: %w", asset, model.ErrStalePrice)
		}
		prices = append(prices, r.price)
	}
	return pick(prices, maximise), nil
}

func encodeRound(r round) string {
	return r.price.String() + "|" + strconv.FormatInt(r.at.UnixNano(), 10)
}

func decodeRound(s string) (round, error) {
	priceStr, tsStr, ok := strings.Cut(s, "|")
	if !ok {
		return round{}, fmt.Errorf("malformed round %q", s)
	}
	price, err := fixed.Parse(priceStr)
	if err != nil {
		return round{}, err
	}
	ns, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return round{}, fmt.Errorf("parse ts %q: %w", tsStr, err)
	}
	return round{price: price, at: time.Unix(0, ns)}, nil
}
