// Package store persists what the vault engine commits. PostgreSQL is the
// source of truth, Redis a read-through cache, and the in-memory store
// serves tests and development.
//
// Every committed operation arrives as one model.Batch and is applied
// atomically: position post-states, pool counters and ledger entries land
// together or not at all.
package store

import (
	"context"
	"errors"

	"github.com/atmx/vault-engine/internal/model"
)

// ErrNotFound is returned by lookups of keys the store has never seen.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. It satisfies vault.Journal.
type Store interface {
	// Apply persists one committed batch. Closed positions arrive as
	// empty records and are removed.
	Apply(ctx context.Context, b *model.Batch) error

	// LoadState returns every open position and every pool entry, for
	// restoring the engine at startup.
	LoadState(ctx context.Context) ([]model.Position, []model.PoolEntry, error)

	// GetPosition retrieves an open position by its hex key.
	GetPosition(ctx context.Context, key string) (*model.Position, error)

	// ListPositions returns the open positions of an account.
	ListPositions(ctx context.Context, account string) ([]model.Position, error)

	GetPoolEntry(ctx context.Context, asset string) (*model.PoolEntry, error)

	// GetLedgerEntriesByAccount returns an account's history, oldest
	// first.
	GetLedgerEntriesByAccount(ctx context.Context, account string) ([]model.LedgerEntry, error)

	// GetLedgerEntriesByPosition returns the history of one position key.
	GetLedgerEntriesByPosition(ctx context.Context, key string) ([]model.LedgerEntry, error)

	// AssetFlows sums AmountIn and AmountOut of every ledger entry per
	// collateral asset, ordered by asset.
	AssetFlows(ctx context.Context) ([]model.AssetFlow, error)
}
