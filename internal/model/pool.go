package model

import "github.com/atmx/vault-engine/internal/fixed"

// PoolEntry holds the aggregate counters for one asset. PoolAmount,
// ReservedAmount and FeeReserves are in asset units; GuaranteedUsd and the
// global short fields are USD with 30 decimals.
type PoolEntry struct {
	Asset          string     `json:"asset"`
	PoolAmount     fixed.Uint `json:"pool_amount"`
	ReservedAmount fixed.Uint `json:"reserved_amount"`
	FeeReserves    fixed.Uint `json:"fee_reserves"`
	GuaranteedUsd  fixed.Uint `json:"guaranteed_usd"`

	CumulativeFundingRate fixed.Uint `json:"cumulative_funding_rate"`
	LastFundingTime       int64      `json:"last_funding_time"` // unix seconds

	GlobalShortSize         fixed.Uint `json:"global_short_size"`
	GlobalShortAveragePrice fixed.Uint `json:"global_short_average_price"`
}

// AssetConfig is the whitelist entry for a tradable asset.
type AssetConfig struct {
	Symbol   string `json:"symbol" toml:"symbol"`
	Decimals uint8  `json:"decimals" toml:"decimals"`
	IsStable bool   `json:"is_stable" toml:"is_stable"`

	// IsShortable allows the asset to be used as the index of a short.
	IsShortable bool `json:"is_shortable" toml:"is_shortable"`

	// MinProfitBasisPoints is the move an index price must make before a
	// profit counts inside the min-profit window.
	MinProfitBasisPoints uint64 `json:"min_profit_bps" toml:"min_profit_bps"`
}
