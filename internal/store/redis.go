package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/vault-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Apply goes to the primary and invalidates every key the batch
// touched; reads check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) Apply(ctx context.Context, b *model.Batch) error {
	if err := s.primary.Apply(ctx, b); err != nil {
		return err
	}
	if keys := invalidated(b); len(keys) > 0 {
		s.rdb.Del(ctx, keys...)
	}
	return nil
}

// invalidated lists the cache keys a batch makes stale.
func invalidated(b *model.Batch) []string {
	var keys []string
	accounts := make(map[string]bool)
	for _, p := range b.Positions {
		keys = append(keys, positionKey(p.Key().Hex()))
		if !accounts[p.Account] {
			accounts[p.Account] = true
			keys = append(keys, accountPositionsKey(p.Account))
		}
	}
	for _, p := range b.Pools {
		keys = append(keys, poolKey(p.Asset))
	}
	return keys
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetPosition(ctx context.Context, key string) (*model.Position, error) {
	var p model.Position
	if s.cached(ctx, positionKey(key), &p) {
		return &p, nil
	}
	got, err := s.primary.GetPosition(ctx, key)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, positionKey(key), got)
	return got, nil
}

func (s *CachedStore) ListPositions(ctx context.Context, account string) ([]model.Position, error) {
	var positions []model.Position
	if s.cached(ctx, accountPositionsKey(account), &positions) {
		return positions, nil
	}
	positions, err := s.primary.ListPositions(ctx, account)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, accountPositionsKey(account), positions)
	return positions, nil
}

func (s *CachedStore) GetPoolEntry(ctx context.Context, asset string) (*model.PoolEntry, error) {
	var p model.PoolEntry
	if s.cached(ctx, poolKey(asset), &p) {
		return &p, nil
	}
	got, err := s.primary.GetPoolEntry(ctx, asset)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, poolKey(asset), got)
	return got, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) LoadState(ctx context.Context) ([]model.Position, []model.PoolEntry, error) {
	return s.primary.LoadState(ctx)
}

func (s *CachedStore) GetLedgerEntriesByAccount(ctx context.Context, account string) ([]model.LedgerEntry, error) {
	return s.primary.GetLedgerEntriesByAccount(ctx, account)
}

func (s *CachedStore) AssetFlows(ctx context.Context) ([]model.AssetFlow, error) {
	return s.primary.AssetFlows(ctx)
}

func (s *CachedStore) GetLedgerEntriesByPosition(ctx context.Context, key string) ([]model.LedgerEntry, error) {
	return s.primary.GetLedgerEntriesByPosition(ctx, key)
}

// --- Cache helpers ---

func (s *CachedStore) cached(ctx context.Context, key string, v any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

func (s *CachedStore) cache(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func positionKey(key string) string          { return fmt.Sprintf("position:%s", key) }
func accountPositionsKey(acct string) string { return fmt.Sprintf("positions:%s", acct) }
func poolKey(asset string) string            { return fmt.Sprintf("pool:%s", asset) }
