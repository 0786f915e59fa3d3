// Package model defines the core domain types shared across the vault engine.
// All monetary values are fixed-point integers from package fixed, never
// float64.
package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/atmx/vault-engine/internal/fixed"
)

// Position is a trader's leveraged exposure, keyed by account, collateral
// asset, index asset and side.
//
// Size, Collateral and AveragePrice are USD values with 30 decimals.
// ReserveAmount is in units of the collateral asset. A position with zero
// size is the empty record: it is both the initial and the terminal state.
type Position struct {
	Account         string `json:"account"`
	CollateralAsset string `json:"collateral_asset"`
	IndexAsset      string `json:"index_asset"`
	IsLong          bool   `json:"is_long"`

	Size              fixed.Uint   `json:"size"`
	Collateral        fixed.Uint   `json:"collateral"`
	AveragePrice      fixed.Uint   `json:"average_price"`
	EntryFundingRate  fixed.Uint   `json:"entry_funding_rate"`
	ReserveAmount     fixed.Uint   `json:"reserve_amount"`
	RealisedPnl       fixed.Signed `json:"realised_pnl"`
	LastIncreasedTime time.Time    `json:"last_increased_time"`
}

// PositionKey hashes the identifying fields of a position, packed in order:
// account, collateral asset, index asset, side byte.
func PositionKey(account, collateralAsset, indexAsset string, isLong bool) common.Hash {
	side := []byte{0}
	if isLong {
		side[0] = 1
	}
	return crypto.Keccak256Hash(
		[]byte(account), []byte{0},
		[]byte(collateralAsset), []byte{0},
		[]byte(indexAsset), []byte{0},
		side,
	)
}

// Key returns the position's key.
func (p *Position) Key() common.Hash {
	return PositionKey(p.Account, p.CollateralAsset, p.IndexAsset, p.IsLong)
}

// IsEmpty reports whether p is the zero record.
func (p *Position) IsEmpty() bool {
	return p.Size.IsZero()
}

// Reset clears every accounting field and keeps the identity, so an emptied
// position can still be addressed by key.
func (p *Position) Reset() {
	*p = Position{
		Account:         p.Account,
		CollateralAsset: p.CollateralAsset,
		IndexAsset:      p.IndexAsset,
		IsLong:          p.IsLong,
	}
}

// Consistent reports whether size, collateral, average price and reserve
// are either all zero or all non-zero.
func (p *Position) Consistent() bool {
	z := p.Size.IsZero()
	return p.Collateral.IsZero() == z &&
		p.AveragePrice.IsZero() == z &&
		p.ReserveAmount.IsZero() == z
}

// Side renders IsLong for logs and URLs.
func Side(isLong bool) string {
	if isLong {
		return "long"
	}
	return "short"
}
