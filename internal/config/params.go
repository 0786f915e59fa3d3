package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"

	"github.com/atmx/vault-engine/internal/fixed"
	"github.com/atmx/vault-engine/internal/model"
	"github.com/atmx/vault-engine/internal/risk"
	"github.com/atmx/vault-engine/internal/vault"
)

// ParamsFile is the TOML layout of the governance parameters. Fields left
// out keep their defaults.
type ParamsFile struct {
	Fees    FeesSection    `toml:"fees"`
	Risk    RiskSection    `toml:"risk"`
	Funding FundingSection `toml:"funding"`

	PrivateLiquidationMode bool `toml:"private_liquidation_mode"`

	Assets []model.AssetConfig `toml:"assets"`
}

type FeesSection struct {
	TaxBps           uint64 `toml:"tax_bps"`
	StableTaxBps     uint64 `toml:"stable_tax_bps"`
	MintBurnFeeBps   uint64 `toml:"mint_burn_fee_bps"`
	SwapFeeBps       uint64 `toml:"swap_fee_bps"`
	StableSwapFeeBps uint64 `toml:"stable_swap_fee_bps"`
	MarginFeeBps     uint64 `toml:"margin_fee_bps"`
	HasDynamicFees   bool   `toml:"has_dynamic_fees"`

	// LiquidationFeeUsd is a decimal string, e.g. "5".
	LiquidationFeeUsd    decimal.Decimal `toml:"liquidation_fee_usd"`
	MinProfitTimeSeconds int64           `toml:"min_profit_time_seconds"`
}

type RiskSection struct {
	MinLeverageBps            uint64 `toml:"min_leverage_bps"`
	MaxLeverageBps            uint64 `toml:"max_leverage_bps"`
	WithdrawalCooldownSeconds int64  `toml:"withdrawal_cooldown_seconds"`
	CooldownBoundary          string `toml:"cooldown_boundary"` // inclusive | exclusive
}

type FundingSection struct {
	IntervalSeconds int64  `toml:"interval_seconds"`
	Factor          uint64 `toml:"factor"`
	StableFactor    uint64 `toml:"stable_factor"`
}

// DefaultAssets is the whitelist used when the parameter file names none.
func DefaultAssets() []model.AssetConfig {
	return []model.AssetConfig{
		{Symbol: "BTC", Decimals: 8, IsShortable: true, MinProfitBasisPoints: 75},
		{Symbol: "ETH", Decimals: 18, IsShortable: true, MinProfitBasisPoints: 75},
		{Symbol: "USDC", Decimals: 6, IsStable: true},
	}
}

func defaultsFile() ParamsFile {
	p := vault.DefaultParams()
	return ParamsFile{
		Fees: FeesSection{
			TaxBps:               p.TaxBasisPoints,
			StableTaxBps:         p.StableTaxBasisPoints,
			MintBurnFeeBps:       p.MintBurnFeeBasisPoints,
			SwapFeeBps:           p.SwapFeeBasisPoints,
			StableSwapFeeBps:     p.StableSwapFeeBasisPoints,
			MarginFeeBps:         p.MarginFeeBasisPoints,
			HasDynamicFees:       p.HasDynamicFees,
			LiquidationFeeUsd:    p.Risk.LiquidationFeeUsd.Decimal(fixed.USDDecimals),
			MinProfitTimeSeconds: int64(p.MinProfitTime / time.Second),
		},
		Risk: RiskSection{
			MinLeverageBps:            p.Risk.MinLeverage,
			MaxLeverageBps:            p.Risk.MaxLeverage,
			WithdrawalCooldownSeconds: int64(p.Risk.WithdrawalCooldown / time.Second),
			CooldownBoundary:          p.Risk.CooldownBoundary.String(),
		},
		Funding: FundingSection{
			IntervalSeconds: int64(p.FundingInterval / time.Second),
			Factor:          p.FundingRateFactor,
			StableFactor:    p.StableFundingRateFactor,
		},
		PrivateLiquidationMode: p.PrivateLiquidationMode,
	}
}

// LoadParams reads the parameter file at path over the defaults. An empty
// path yields the defaults and DefaultAssets.
func LoadParams(path string) (vault.Params, []model.AssetConfig, error) {
	file := defaultsFile()
	if path != "" {
		if _, err := toml.DecodeFile(path, &file); err != nil {
			return vault.Params{}, nil, fmt.Errorf("decode params %s: %w", path, err)
		}
	}
	params, err := file.Params()
	if err != nil {
		return vault.Params{}, nil, err
	}
	assets := file.Assets
	if len(assets) == 0 {
		assets = DefaultAssets()
	}
	return params, assets, nil
}

// Params converts the file to engine parameters and validates them.
func (f ParamsFile) Params() (vault.Params, error) {
	liqFee, err := fixed.FromDecimal(f.Fees.LiquidationFeeUsd, fixed.USDDecimals)
	if err != nil {
		return vault.Params{}, fmt.Errorf("liquidation_fee_usd: %w", err)
	}
	switch f.Risk.CooldownBoundary {
	case "", "inclusive", "exclusive":
	default:
		return vault.Params{}, fmt.Errorf("cooldown_boundary %q: %w", f.Risk.CooldownBoundary, model.ErrInvalidParams)
	}

	p := vault.Params{
		TaxBasisPoints:           f.Fees.TaxBps,
		StableTaxBasisPoints:     f.Fees.StableTaxBps,
		MintBurnFeeBasisPoints:   f.Fees.MintBurnFeeBps,
		SwapFeeBasisPoints:       f.Fees.SwapFeeBps,
		StableSwapFeeBasisPoints: f.Fees.StableSwapFeeBps,
		MarginFeeBasisPoints:     f.Fees.MarginFeeBps,
		HasDynamicFees:           f.Fees.HasDynamicFees,
		MinProfitTime:            time.Duration(f.Fees.MinProfitTimeSeconds) * time.Second,
		FundingInterval:          time.Duration(f.Funding.IntervalSeconds) * time.Second,
		FundingRateFactor:        f.Funding.Factor,
		StableFundingRateFactor:  f.Funding.StableFactor,
		PrivateLiquidationMode:   f.PrivateLiquidationMode,
		Risk: risk.Policy{
			WithdrawalCooldown: time.Duration(f.Risk.WithdrawalCooldownSeconds) * time.Second,
			MinLeverage:        f.Risk.MinLeverageBps,
			MaxLeverage:        f.Risk.MaxLeverageBps,
			LiquidationFeeUsd:  liqFee,
			CooldownBoundary:   risk.ParseBoundary(f.Risk.CooldownBoundary),
		},
	}
	if err := p.Validate(); err != nil {
		return vault.Params{}, fmt.Errorf("validate params: %w", err)
	}
	return p, nil
}
