package vault

import (
	"context"
	"sort"
	"time"

	"github.com/atmx/vault-engine/internal/fixed"
	"github.com/atmx/vault-engine/internal/model"
	"github.com/atmx/vault-engine/internal/risk"
)

// GetPosition returns the position record; the empty record when none is
// open.
func (e *Engine) GetPosition(account, collateralAsset, indexAsset string, isLong bool) model.Position {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p, ok := e.positions[model.PositionKey(account, collateralAsset, indexAsset, isLong)]; ok {
		return *p
	}
	return model.Position{
		Account:         account,
		CollateralAsset: collateralAsset,
		IndexAsset:      indexAsset,
		IsLong:          isLong,
	}
}

// GetPositionDelta returns the unrealised PnL of an open position at the
// exit price.
func (e *Engine) GetPositionDelta(ctx context.Context, account, collateralAsset, indexAsset string, isLong bool) (bool, fixed.Uint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.positions[model.PositionKey(account, collateralAsset, indexAsset, isLong)]
	if !ok {
		return false, fixed.Zero, model.ErrEmptyPosition
	}
	return e.begin(ctx).positionDelta(p)
}

// GetPositionLeverage returns size*10000/collateral.
func (e *Engine) GetPositionLeverage(account, collateralAsset, indexAsset string, isLong bool) (fixed.Uint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.positions[model.PositionKey(account, collateralAsset, indexAsset, isLong)]
	if !ok {
		return fixed.Zero, model.ErrEmptyPosition
	}
	return risk.Leverage(p.Size, p.Collateral)
}

// GetDelta values a hypothetical position.
func (e *Engine) GetDelta(ctx context.Context, indexAsset string, size, averagePrice fixed.Uint, isLong bool, lastIncreased time.Time) (bool, fixed.Uint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.assets[indexAsset]; !ok {
		return false, fixed.Zero, model.ErrUnsupportedAsset
	}
	return e.begin(ctx).delta(indexAsset, size, averagePrice, isLong, lastIncreased)
}

// GetNextAveragePrice returns the average price a position would carry
// after adding sizeDelta at nextPrice.
func (e *Engine) GetNextAveragePrice(ctx context.Context, indexAsset string, size, averagePrice fixed.Uint, isLong bool, nextPrice, sizeDelta fixed.Uint, lastIncreased time.Time) (fixed.Uint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.assets[indexAsset]; !ok {
		return fixed.Zero, model.ErrUnsupportedAsset
	}
	return e.begin(ctx).nextAveragePrice(indexAsset, size, averagePrice, isLong, nextPrice, sizeDelta, lastIncreased)
}

// LiquidationState reports whether an open position could be liquidated
// now and why.
func (e *Engine) LiquidationState(ctx context.Context, account, collateralAsset, indexAsset string, isLong bool) (risk.Verdict, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.positions[model.PositionKey(account, collateralAsset, indexAsset, isLong)]
	if !ok {
		return risk.Verdict{}, model.ErrEmptyPosition
	}
	return e.begin(ctx).liquidationVerdict(p)
}

// Pool returns the counters of one asset.
func (e *Engine) Pool(asset string) (model.PoolEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.assets[asset]; !ok {
		return model.PoolEntry{}, model.ErrUnsupportedAsset
	}
	if p, ok := e.pools[asset]; ok {
		return *p, nil
	}
	return model.PoolEntry{Asset: asset}, nil
}

// Pools returns every configured asset's counters, ordered by symbol.
func (e *Engine) Pools() []model.PoolEntry {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]model.PoolEntry, 0, len(e.assets))
	for _, a := range e.sortedAssets() {
		if p, ok := e.pools[a]; ok {
			out = append(out, *p)
			continue
		}
		out = append(out, model.PoolEntry{Asset: a})
	}
	return out
}

// Positions returns every open position, optionally for one account.
func (e *Engine) Positions(account string) []model.Position {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]model.Position, 0, len(e.positions))
	for _, p := range e.positions {
		if account != "" && p.Account != account {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key().Hex() < out[j].Key().Hex()
	})
	return out
}

// Params returns the current governance parameters.
func (e *Engine) Params() Params {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}

// Asset returns an asset's whitelist entry.
func (e *Engine) Asset(symbol string) (model.AssetConfig, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.assets[symbol]
	return a, ok
}

// Assets returns the whitelist ordered by symbol.
func (e *Engine) Assets() []model.AssetConfig {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]model.AssetConfig, 0, len(e.assets))
	for _, s := range e.sortedAssets() {
		out = append(out, e.assets[s])
	}
	return out
}
