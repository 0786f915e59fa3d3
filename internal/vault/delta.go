package vault

import (
	"time"

	"github.com/atmx/vault-engine/internal/fixed"
	"github.com/atmx/vault-engine/internal/model"
)

// delta computes the unrealised PnL of a position of the given size and
// average price at the exit price.
//
// Inside the min-profit window a profit of at most minProfitBps of size is
// reported as (true, 0).
func (t *tx) delta(indexAsset string, size, averagePrice fixed.Uint, isLong bool, lastIncreased time.Time) (bool, fixed.Uint, error) {
	if averagePrice.IsZero() {
		return false, fixed.Zero, model.ErrEmptyPosition
	}
	price, err := t.indexPrice(indexAsset, isLong, ConservativeForPool)
	if err != nil {
		return false, fixed.Zero, err
	}

	priceDelta := fixed.AbsDiff(averagePrice, price)
	d, err := size.MulDiv(priceDelta, averagePrice)
	if err != nil {
		return false, fixed.Zero, err
	}

	hasProfit := price.Gt(averagePrice)
	if !isLong {
		hasProfit = averagePrice.Gt(price)
	}

	if hasProfit && t.now.Sub(lastIncreased) < t.e.params.MinProfitTime {
		minBps := t.e.assets[indexAsset].MinProfitBasisPoints
		var c fixed.Calc
		lhs := c.Mul(d, fixed.BasisPointsDivisor)
		rhs := c.Mul(size, fixed.New(minBps))
		if err := c.Err(); err != nil {
			return false, fixed.Zero, err
		}
		if lhs.Lte(rhs) {
			d = fixed.Zero
		}
	}
	return hasProfit, d, nil
}

// positionDelta is delta for a stored position.
func (t *tx) positionDelta(p *model.Position) (bool, fixed.Uint, error) {
	return t.delta(p.IndexAsset, p.Size, p.AveragePrice, p.IsLong, p.LastIncreasedTime)
}

// nextAveragePrice blends nextPrice into a position so that the PnL
// carried before the increase is unchanged after it:
//
//	next = nextPrice*nextSize / (nextSize ± delta)
//
// with +delta for a long in profit or a short at a loss.
func (t *tx) nextAveragePrice(indexAsset string, size, averagePrice fixed.Uint, isLong bool, nextPrice, sizeDelta fixed.Uint, lastIncreased time.Time) (fixed.Uint, error) {
	hasProfit, d, err := t.delta(indexAsset, size, averagePrice, isLong, lastIncreased)
	if err != nil {
		return fixed.Zero, err
	}
	nextSize, err := size.Add(sizeDelta)
	if err != nil {
		return fixed.Zero, err
	}
	divisor, err := blendDivisor(nextSize, d, hasProfit == isLong)
	if err != nil {
		return fixed.Zero, err
	}
	return nextPrice.MulDiv(nextSize, divisor)
}

// nextGlobalShortAveragePrice blends nextPrice into the aggregate short of
// an index asset the same way.
func (t *tx) nextGlobalShortAveragePrice(indexAsset string, nextPrice, sizeDelta fixed.Uint) (fixed.Uint, error) {
	pool := t.pool(indexAsset)
	size, avg := pool.GlobalShortSize, pool.GlobalShortAveragePrice
	if size.IsZero() || avg.IsZero() {
		return nextPrice, nil
	}
	d, err := size.MulDiv(fixed.AbsDiff(avg, nextPrice), avg)
	if err != nil {
		return fixed.Zero, err
	}
	hasProfit := avg.Gt(nextPrice)
	nextSize, err := size.Add(sizeDelta)
	if err != nil {
		return fixed.Zero, err
	}
	divisor, err := blendDivisor(nextSize, d, !hasProfit)
	if err != nil {
		return fixed.Zero, err
	}
	return nextPrice.MulDiv(nextSize, divisor)
}

func blendDivisor(nextSize, d fixed.Uint, add bool) (fixed.Uint, error) {
	if add {
		return nextSize.Add(d)
	}
	return nextSize.Sub(d)
}
