package vault

import (
	"github.com/atmx/vault-engine/internal/fixed"
)

// positionFee is the margin fee on sizeDelta, rounded up.
func (t *tx) positionFee(sizeDelta fixed.Uint) (fixed.Uint, error) {
	if sizeDelta.IsZero() {
		return fixed.Zero, nil
	}
	bps := t.e.params.MarginFeeBasisPoints
	var c fixed.Calc
	afterFee := c.MulDiv(sizeDelta, fixed.New(fixed.BasisPoints-bps), fixed.BasisPointsDivisor)
	fee := c.Sub(sizeDelta, afterFee)
	return fee, c.Err()
}

// marginFees is the position fee on sizeDelta plus funding owed on size.
func (t *tx) marginFees(asset string, sizeDelta, size, entryFundingRate fixed.Uint) (fixed.Uint, error) {
	posFee, err := t.positionFee(sizeDelta)
	if err != nil {
		return fixed.Zero, err
	}
	funding, err := t.fundingFee(asset, size, entryFundingRate)
	if err != nil {
		return fixed.Zero, err
	}
	return posFee.Add(funding)
}

// collectMarginFees charges margin fees and credits their value in
// collateral units to fee reserves. It returns the fee in USD.
func (t *tx) collectMarginFees(asset string, sizeDelta, size, entryFundingRate fixed.Uint) (fee, feeTokens fixed.Uint, err error) {
	fee, err = t.marginFees(asset, sizeDelta, size, entryFundingRate)
	if err != nil {
		return fixed.Zero, fixed.Zero, err
	}
	feeTokens, err = t.usdToTokenMin(asset, fee)
	if err != nil {
		return fixed.Zero, fixed.Zero, err
	}
	pool := t.pool(asset)
	reserves, err := pool.FeeReserves.Add(feeTokens)
	if err != nil {
		return fixed.Zero, fixed.Zero, err
	}
	pool.FeeReserves = reserves
	return fee, feeTokens, nil
}
