package vault

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/atmx/vault-engine/internal/fixed"
	"github.com/atmx/vault-engine/internal/model"
)

type priceKey struct {
	asset    string
	maximise bool
}

// tx stages one operation. Reads go through copy-on-read views of engine
// state; nothing reaches the engine until commit.
type tx struct {
	ctx context.Context
	e   *Engine
	now time.Time

	prices map[priceKey]fixed.Uint

	positions map[common.Hash]*model.Position
	posOrder  []common.Hash
	pools     map[string]*model.PoolEntry
	poolOrder []string
	entries   []model.LedgerEntry
}

// begin opens a transaction. The caller holds e.mu.
func (e *Engine) begin(ctx context.Context) *tx {
	return &tx{
		ctx:       ctx,
		e:         e,
		now:       e.now(),
		prices:    make(map[priceKey]fixed.Uint),
		positions: make(map[common.Hash]*model.Position),
		pools:     make(map[string]*model.PoolEntry),
	}
}

// position returns the staged copy of a position, creating the empty
// record when the key has none.
func (t *tx) position(account, collateralAsset, indexAsset string, isLong bool) *model.Position {
	key := model.PositionKey(account, collateralAsset, indexAsset, isLong)
	if p, ok := t.positions[key]; ok {
		return p
	}
	p := model.Position{
		Account:         account,
		CollateralAsset: collateralAsset,
		IndexAsset:      indexAsset,
		IsLong:          isLong,
	}
	if cur, ok := t.e.positions[key]; ok {
		p = *cur
	}
	t.positions[key] = &p
	t.posOrder = append(t.posOrder, key)
	return &p
}

// pool returns the staged copy of an asset's pool entry.
func (t *tx) pool(asset string) *model.PoolEntry {
	if p, ok := t.pools[asset]; ok {
		return p
	}
	p := model.PoolEntry{Asset: asset}
	if cur, ok := t.e.pools[asset]; ok {
		p = *cur
	}
	t.pools[asset] = &p
	t.poolOrder = append(t.poolOrder, asset)
	return &p
}

// record appends a ledger entry stamped with the transaction time.
func (t *tx) record(entry model.LedgerEntry) model.LedgerEntry {
	entry.ID = uuid.New().String()
	entry.Timestamp = t.now
	t.entries = append(t.entries, entry)
	return entry
}

func (t *tx) batch() *model.Batch {
	b := &model.Batch{
		Positions: make([]model.Position, 0, len(t.posOrder)),
		Pools:     make([]model.PoolEntry, 0, len(t.poolOrder)),
		Entries:   t.entries,
	}
	for _, k := range t.posOrder {
		b.Positions = append(b.Positions, *t.positions[k])
	}
	for _, a := range t.poolOrder {
		b.Pools = append(b.Pools, *t.pools[a])
	}
	return b
}
