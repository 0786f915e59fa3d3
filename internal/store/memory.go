package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/atmx/vault-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	positions map[string]model.Position
	pools     map[string]model.PoolEntry
	ledger    []model.LedgerEntry
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		positions: make(map[string]model.Position),
		pools:     make(map[string]model.PoolEntry),
	}
}

func (s *MemoryStore) Apply(_ context.Context, b *model.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range b.Positions {
		key := p.Key().Hex()
		if p.IsEmpty() {
			delete(s.positions, key)
			continue
		}
		s.positions[key] = p
	}
	for _, p := range b.Pools {
		s.pools[p.Asset] = p
	}
	s.ledger = append(s.ledger, b.Entries...)
	return nil
}

func (s *MemoryStore) LoadState(_ context.Context) ([]model.Position, []model.PoolEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	positions := make([]model.Position, 0, len(s.positions))
	for _, p := range s.positions {
		positions = append(positions, p)
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Key().Hex() < positions[j].Key().Hex()
	})

	pools := make([]model.PoolEntry, 0, len(s.pools))
	for _, p := range s.pools {
		pools = append(pools, p)
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i].Asset < pools[j].Asset })
	return positions, pools, nil
}

func (s *MemoryStore) GetPosition(_ context.Context, key string) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[key]
	if !ok {
		return nil, fmt.Errorf("position %s: %w", key, ErrNotFound)
	}
	return &p, nil
}

func (s *MemoryStore) ListPositions(_ context.Context, account string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Position
	for _, p := range s.positions {
		if p.Account == account {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().Hex() < out[j].Key().Hex() })
	return out, nil
}

func (s *MemoryStore) GetPoolEntry(_ context.Context, asset string) (*model.PoolEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pools[asset]
	if !ok {
		return nil, fmt.Errorf("pool %s: %w", asset, ErrNotFound)
	}
	return &p, nil
}

func (s *MemoryStore) GetLedgerEntriesByAccount(_ context.Context, account string) ([]model.LedgerEntry, error) {
	return s.filterLedger(func(e model.LedgerEntry) bool { return e.Account == account }), nil
}

func (s *MemoryStore) GetLedgerEntriesByPosition(_ context.Context, key string) ([]model.LedgerEntry, error) {
	return s.filterLedger(func(e model.LedgerEntry) bool { return e.PositionKey == key }), nil
}

func (s *MemoryStore) AssetFlows(_ context.Context) ([]model.AssetFlow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	flows := make(map[string]*model.AssetFlow)
	for _, e := range s.ledger {
		f, ok := flows[e.CollateralAsset]
		if !ok {
			f = &model.AssetFlow{Asset: e.CollateralAsset}
			flows[e.CollateralAsset] = f
		}
		var err error
		if f.In, err = f.In.Add(e.AmountIn); err != nil {
			return nil, fmt.Errorf("asset flows %s: %w", e.CollateralAsset, err)
		}
		if f.Out, err = f.Out.Add(e.AmountOut); err != nil {
			return nil, fmt.Errorf("asset flows %s: %w", e.CollateralAsset, err)
		}
	}
	out := make([]model.AssetFlow, 0, len(flows))
	for _, f := range flows {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out, nil
}

func (s *MemoryStore) filterLedger(keep func(model.LedgerEntry) bool) []model.LedgerEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.LedgerEntry
	for _, e := range s.ledger {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
