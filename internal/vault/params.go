package vault

import (
	"time"

	"github.com/atmx/vault-engine/internal/fixed"
	"github.com/atmx/vault-engine/internal/model"
	"github.com/atmx/vault-engine/internal/risk"
)

const (
	// MaxFeeBasisPoints bounds every fee rate (5%).
	MaxFeeBasisPoints = 500

	// MinFundingRateInterval is the shortest allowed funding interval.
	MinFundingRateInterval = time.Hour

	// MaxFundingRateFactor bounds the funding factor (1% per interval).
	MaxFundingRateFactor = 10000

	// MinMaxLeverage is the lowest value MaxLeverage may be set to (1x).
	MinMaxLeverage = 10000
)

// MaxLiquidationFeeUsd bounds the liquidation fee.
var MaxLiquidationFeeUsd = fixed.USD(100)

// Params is the governance-set configuration. It is read once per operation
// and cannot change mid-call.
type Params struct {
	// Fee schedule in basis points. Only the margin fee is charged by
	// position operations; the others are held for the swap and
	// mint/burn paths.
	TaxBasisPoints           uint64
	StableTaxBasisPoints     uint64
	MintBurnFeeBasisPoints   uint64
	SwapFeeBasisPoints       uint64
	StableSwapFeeBasisPoints uint64
	MarginFeeBasisPoints     uint64
	HasDynamicFees           bool

	// MinProfitTime is the window after an increase in which small
	// profits are reported as zero.
	MinProfitTime time.Duration

	FundingInterval         time.Duration
	FundingRateFactor       uint64
	StableFundingRateFactor uint64

	// PrivateLiquidationMode restricts liquidations to registered
	// liquidators.
	PrivateLiquidationMode bool

	Risk risk.Policy
}

// DefaultParams returns the launch configuration.
func DefaultParams() Params {
	return Params{
		TaxBasisPoints:           50,
		StableTaxBasisPoints:     20,
		MintBurnFeeBasisPoints:   30,
		SwapFeeBasisPoints:       30,
		StableSwapFeeBasisPoints: 4,
		MarginFeeBasisPoints:     10,
		MinProfitTime:            time.Hour,
		FundingInterval:          8 * time.Hour,
		FundingRateFactor:        600,
		StableFundingRateFactor:  600,
		Risk:                     risk.DefaultPolicy(),
	}
}

// Validate checks every bound governance setters enforce.
func (p Params) Validate() error {
	for _, bps := range []uint64{
		p.TaxBasisPoints, p.StableTaxBasisPoints, p.MintBurnFeeBasisPoints,
		p.SwapFeeBasisPoints, p.StableSwapFeeBasisPoints, p.MarginFeeBasisPoints,
	} {
		if bps > MaxFeeBasisPoints {
			return model.ErrInvalidFee
		}
	}
	if p.Risk.LiquidationFeeUsd.Gt(MaxLiquidationFeeUsd) {
		return model.ErrInvalidFee
	}
	if p.MinProfitTime < 0 || p.Risk.WithdrawalCooldown < 0 {
		return model.ErrInvalidParams
	}
	if p.FundingInterval < MinFundingRateInterval ||
		p.FundingRateFactor > MaxFundingRateFactor ||
		p.StableFundingRateFactor > MaxFundingRateFactor {
		return model.ErrInvalidParams
	}
	if p.Risk.MaxLeverage <= MinMaxLeverage || p.Risk.MinLeverage > p.Risk.MaxLeverage {
		return model.ErrInvalidParams
	}
	return nil
}
