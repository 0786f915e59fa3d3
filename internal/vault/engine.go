// Package vault implements the position engine and pool ledger.
//
// The Engine is the only writer of positions and pool counters. Every
// mutating call runs under a single lock, reads oracle prices at most once
// per asset and side, stages its changes in a transaction, validates them,
// persists the resulting batch through the Journal and only then commits to
// memory. A failed call leaves no trace.
package vault

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/vault-engine/internal/fixed"
	"github.com/atmx/vault-engine/internal/model"
)

// PriceFeed supplies the min or max recent price of an asset, USD with 30
// decimals per whole unit. It must fail rather than return a default.
type PriceFeed interface {
	Price(ctx context.Context, asset string, maximise bool) (fixed.Uint, error)
}

// Authorizer answers permission questions.
type Authorizer interface {
	IsApprovedCaller(account, caller string) bool
	IsGovernor(caller string) bool
	IsLiquidator(caller string) bool
}

// Journal durably records committed batches. Apply must be atomic.
type Journal interface {
	Apply(ctx context.Context, b *model.Batch) error
}

// Engine owns positions and pool counters.
type Engine struct {
	mu sync.Mutex

	feed    PriceFeed
	auth    Authorizer
	journal Journal
	now     func() time.Time
	logger  *slog.Logger

	params    Params
	assets    map[string]model.AssetConfig
	positions map[common.Hash]*model.Position
	pools     map[string]*model.PoolEntry
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger replaces slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an engine with no assets and no positions.
func New(feed PriceFeed, auth Authorizer, journal Journal, params Params, opts ...Option) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("vault params: %w", err)
	}
	e := &Engine{
		feed:      feed,
		auth:      auth,
		journal:   journal,
		now:       time.Now,
		logger:    slog.Default(),
		params:    params,
		assets:    make(map[string]model.AssetConfig),
		positions: make(map[common.Hash]*model.Position),
		pools:     make(map[string]*model.PoolEntry),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Restore loads persisted state. It is meant to run once at startup, after
// assets are configured and before any operation.
func (e *Engine) Restore(positions []model.Position, pools []model.PoolEntry) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, p := range pools {
		if _, ok := e.assets[p.Asset]; !ok {
			return fmt.Errorf("restore pool %s: %w", p.Asset, model.ErrUnsupportedAsset)
		}
		p := p
		e.pools[p.Asset] = &p
	}
	for _, p := range positions {
		if p.IsEmpty() {
			continue
		}
		if !p.Consistent() {
			return fmt.Errorf("restore position %s: inconsistent record", p.Key())
		}
		p := p
		e.positions[p.Key()] = &p
	}
	return nil
}

// commit persists the staged batch and applies it to memory.
func (e *Engine) commit(t *tx) error {
	b := t.batch()
	if err := e.journal.Apply(t.ctx, b); err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	for i := range b.Positions {
		p := b.Positions[i]
		key := p.Key()
		if p.IsEmpty() {
			delete(e.positions, key)
			continue
		}
		e.positions[key] = &p
	}
	for i := range b.Pools {
		p := b.Pools[i]
		e.pools[p.Asset] = &p
	}
	return nil
}

// sortedAssets returns configured asset symbols in order.
func (e *Engine) sortedAssets() []string {
	out := make([]string, 0, len(e.assets))
	for s := range e.assets {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
