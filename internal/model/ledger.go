package model

import (
	"time"

	"github.com/atmx/vault-engine/internal/fixed"
)

// EntryKind names the operation that produced a ledger entry.
type EntryKind string

const (
	EntryIncrease    EntryKind = "increase"
	EntryDecrease    EntryKind = "decrease"
	EntryLiquidation EntryKind = "liquidation"
	EntryDeposit     EntryKind = "deposit"
)

// LedgerEntry is an immutable record of one committed operation.
// Once created, these are never modified or deleted.
type LedgerEntry struct {
	ID              string    `json:"id"`
	Kind            EntryKind `json:"kind"`
	PositionKey     string    `json:"position_key,omitempty"`
	Account         string    `json:"account,omitempty"`
	CollateralAsset string    `json:"collateral_asset"`
	IndexAsset      string    `json:"index_asset,omitempty"`
	IsLong          bool      `json:"is_long"`

	SizeDelta       fixed.Uint   `json:"size_delta"`       // USD
	CollateralDelta fixed.Uint   `json:"collateral_delta"` // USD
	Price           fixed.Uint   `json:"price"`            // USD per unit
	Fee             fixed.Uint   `json:"fee"`              // USD
	AmountIn        fixed.Uint   `json:"amount_in"`        // collateral units
	AmountOut       fixed.Uint   `json:"amount_out"`       // collateral units
	RealisedPnl     fixed.Signed `json:"realised_pnl"`
	Receiver        string       `json:"receiver,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Batch is everything one operation changes. It is persisted as a unit:
// either the whole batch is applied or none of it.
type Batch struct {
	// Positions holds the post-state of every touched position. Empty
	// records mean the position was closed.
	Positions []Position
	Pools     []PoolEntry
	Entries   []LedgerEntry
}

// AssetFlow totals the units an asset's ledger entries moved into and out
// of the vault.
type AssetFlow struct {
	Asset string     `json:"asset"`
	In    fixed.Uint `json:"in"`
	Out   fixed.Uint `json:"out"`
}

// Held is In minus Out.
func (f AssetFlow) Held() (fixed.Uint, error) {
	return f.In.Sub(f.Out)
}
