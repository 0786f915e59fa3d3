package vault

import (
	"github.com/atmx/vault-engine/internal/fixed"
)

// updateFunding accrues the cumulative funding rate of a collateral asset.
// The first call only aligns LastFundingTime to the interval grid. After
// that the rate grows once per whole elapsed interval by
// factor*reserved/pool.
func (t *tx) updateFunding(asset string) error {
	interval := int64(t.e.params.FundingInterval.Seconds())
	if interval <= 0 {
		return nil
	}
	pool := t.pool(asset)
	now := t.now.Unix()

	if pool.LastFundingTime == 0 {
		pool.LastFundingTime = now / interval * interval
		return nil
	}
	if pool.LastFundingTime+interval > now {
		return nil
	}

	next, err := t.nextFundingRate(asset)
	if err != nil {
		return err
	}
	rate, err := pool.CumulativeFundingRate.Add(next)
	if err != nil {
		return err
	}
	pool.CumulativeFundingRate = rate
	pool.LastFundingTime = now / interval * interval
	return nil
}

// nextFundingRate is the increment the next update would apply.
func (t *tx) nextFundingRate(asset string) (fixed.Uint, error) {
	interval := int64(t.e.params.FundingInterval.Seconds())
	pool := t.pool(asset)
	if interval <= 0 || pool.PoolAmount.IsZero() || pool.LastFundingTime == 0 {
		return fixed.Zero, nil
	}
	now := t.now.Unix()
	if pool.LastFundingTime+interval > now {
		return fixed.Zero, nil
	}
	intervals := uint64((now - pool.LastFundingTime) / interval)

	factor := t.e.params.FundingRateFactor
	if t.e.assets[asset].IsStable {
		factor = t.e.params.StableFundingRateFactor
	}

	var c fixed.Calc
	scaled := c.Mul(fixed.New(factor), fixed.New(intervals))
	next := c.MulDiv(scaled, pool.ReservedAmount, pool.PoolAmount)
	return next, c.Err()
}

// fundingFee is size*(cumulative-entry)/1e6 in USD.
func (t *tx) fundingFee(asset string, size, entryFundingRate fixed.Uint) (fixed.Uint, error) {
	if size.IsZero() {
		return fixed.Zero, nil
	}
	rate := t.pool(asset).CumulativeFundingRate.SubFloor(entryFundingRate)
	if rate.IsZero() {
		return fixed.Zero, nil
	}
	return size.MulDiv(rate, fixed.FundingRatePrecision)
}
