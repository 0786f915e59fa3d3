package vault

import (
	"fmt"

	"github.com/atmx/vault-engine/internal/fixed"
	"github.com/atmx/vault-engine/internal/model"
)

// Direction picks which side of the oracle spread a price read uses.
//
//	                      long  short
//	ConservativeForTrader  max   min    entry: increases
//	ConservativeForPool    min   max    exit: decreases, PnL, liquidation
//
// Both settle against the trader; the names follow who the price protects
// when the position is later valued.
type Direction int

const (
	ConservativeForTrader Direction = iota
	ConservativeForPool
)

// maximise resolves d for a side.
func (d Direction) maximise(isLong bool) bool {
	if d == ConservativeForTrader {
		return isLong
	}
	return !isLong
}

// price reads the oracle once per asset and side for the life of the
// transaction.
func (t *tx) price(asset string, maximise bool) (fixed.Uint, error) {
	k := priceKey{asset: asset, maximise: maximise}
	if p, ok := t.prices[k]; ok {
		return p, nil
	}
	p, err := t.e.feed.Price(t.ctx, asset, maximise)
	if err != nil {
		return fixed.Zero, err
	}
	if p.IsZero() {
		return fixed.Zero, fmt.Errorf("price %s: %w", asset, model.ErrPriceUnavailable)
	}
	t.prices[k] = p
	return p, nil
}

// indexPrice returns the index price for a position side and direction.
func (t *tx) indexPrice(indexAsset string, isLong bool, d Direction) (fixed.Uint, error) {
	return t.price(indexAsset, d.maximise(isLong))
}

func (t *tx) decimals(asset string) fixed.Uint {
	return fixed.Pow10(uint(t.e.assets[asset].Decimals))
}

// tokenToUsdMin values asset units at the min price.
func (t *tx) tokenToUsdMin(asset string, amount fixed.Uint) (fixed.Uint, error) {
	if amount.IsZero() {
		return fixed.Zero, nil
	}
	p, err := t.price(asset, false)
	if err != nil {
		return fixed.Zero, err
	}
	return amount.MulDiv(p, t.decimals(asset))
}

// usdToTokenMin converts USD to units at the max price, giving the fewer
// units. Used for payouts and fees.
func (t *tx) usdToTokenMin(asset string, usd fixed.Uint) (fixed.Uint, error) {
	return t.usdToToken(asset, usd, true)
}

// usdToTokenMax converts USD to units at the min price, giving the more
// units. Used for reserves.
func (t *tx) usdToTokenMax(asset string, usd fixed.Uint) (fixed.Uint, error) {
	return t.usdToToken(asset, usd, false)
}

func (t *tx) usdToToken(asset string, usd fixed.Uint, maximise bool) (fixed.Uint, error) {
	if usd.IsZero() {
		return fixed.Zero, nil
	}
	p, err := t.price(asset, maximise)
	if err != nil {
		return fixed.Zero, err
	}
	return usd.MulDiv(t.decimals(asset), p)
}
