package vault

import (
	"context"
	"fmt"

	"github.com/atmx/vault-engine/internal/fixed"
	"github.com/atmx/vault-engine/internal/model"
)

// IncreaseRequest opens or adds to a position. CollateralIn is in units of
// the collateral asset and must already be held by the custodian.
type IncreaseRequest struct {
	Caller          string
	Account         string
	CollateralAsset string
	IndexAsset      string
	IsLong          bool
	SizeDelta       fixed.Uint // USD
	CollateralIn    fixed.Uint // units
}

// IncreasePosition adds SizeDelta of notional and CollateralIn of margin.
// Entry uses the trader-conservative index price. The margin fee is taken
// from collateral and credited to fee reserves; the new notional is backed
// by a reserve of collateral units that may not exceed the pool.
func (e *Engine) IncreasePosition(ctx context.Context, req IncreaseRequest) (model.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := model.PositionKey(req.Account, req.CollateralAsset, req.IndexAsset, req.IsLong)
	pos, err := e.increase(ctx, req)
	if err != nil {
		return model.Position{}, fmt.Errorf("increase %s: %w", key.Hex(), err)
	}
	return pos, nil
}

func (e *Engine) increase(ctx context.Context, req IncreaseRequest) (model.Position, error) {
	if !e.auth.IsApprovedCaller(req.Account, req.Caller) {
		return model.Position{}, model.ErrUnauthorized
	}
	if req.SizeDelta.IsZero() && req.CollateralIn.IsZero() {
		return model.Position{}, model.ErrZeroDelta
	}
	if err := e.validateAssets(req.CollateralAsset, req.IndexAsset, req.IsLong); err != nil {
		return model.Position{}, err
	}

	t := e.begin(ctx)
	if err := t.updateFunding(req.CollateralAsset); err != nil {
		return model.Position{}, err
	}

	pos := t.position(req.Account, req.CollateralAsset, req.IndexAsset, req.IsLong)
	price, err := t.indexPrice(req.IndexAsset, req.IsLong, ConservativeForTrader)
	if err != nil {
		return model.Position{}, err
	}

	if pos.IsEmpty() {
		pos.AveragePrice = price
	} else if !req.SizeDelta.IsZero() {
		avg, err := t.nextAveragePrice(req.IndexAsset, pos.Size, pos.AveragePrice, pos.IsLong, price, req.SizeDelta, pos.LastIncreasedTime)
		if err != nil {
			return model.Position{}, err
		}
		pos.AveragePrice = avg
	}

	fee, feeTokens, err := t.collectMarginFees(req.CollateralAsset, req.SizeDelta, pos.Size, pos.EntryFundingRate)
	if err != nil {
		return model.Position{}, err
	}

	collateralInUsd, err := t.tokenToUsdMin(req.CollateralAsset, req.CollateralIn)
	if err != nil {
		return model.Position{}, err
	}
	var c fixed.Calc
	pos.Collateral = c.Add(pos.Collateral, collateralInUsd)
	if err := c.Err(); err != nil {
		return model.Position{}, err
	}
	if pos.Collateral.Lt(fee) {
		return model.Position{}, model.ErrInsufficientCollateralForFees
	}
	pos.Collateral = c.Sub(pos.Collateral, fee)
	pos.EntryFundingRate = t.pool(req.CollateralAsset).CumulativeFundingRate
	pos.Size = c.Add(pos.Size, req.SizeDelta)
	pos.LastIncreasedTime = t.now
	if err := c.Err(); err != nil {
		return model.Position{}, err
	}

	if pos.Size.IsZero() {
		return model.Position{}, model.ErrInvalidPositionSize
	}
	if err := validatePosition(pos); err != nil {
		return model.Position{}, err
	}
	if err := e.params.Risk.CheckIncrease(pos); err != nil {
		return model.Position{}, err
	}
	if err := t.requireHealthy(pos); err != nil {
		return model.Position{}, err
	}

	reserveDelta, err := t.usdToTokenMax(req.CollateralAsset, req.SizeDelta)
	if err != nil {
		return model.Position{}, err
	}
	pos.ReserveAmount = c.Add(pos.ReserveAmount, reserveDelta)
	if err := c.Err(); err != nil {
		return model.Position{}, err
	}
	if err := t.increaseReservedAmount(req.CollateralAsset, reserveDelta); err != nil {
		return model.Position{}, err
	}

	if req.IsLong {
		// guaranteedUsd tracks size - collateral across open longs.
		if err := t.increaseGuaranteedUsd(req.CollateralAsset, c.Add(req.SizeDelta, fee)); err != nil {
			return model.Position{}, err
		}
		if err := c.Err(); err != nil {
			return model.Position{}, err
		}
		t.decreaseGuaranteedUsd(req.CollateralAsset, collateralInUsd)
		if err := t.increasePoolAmount(req.CollateralAsset, req.CollateralIn); err != nil {
			return model.Position{}, err
		}
		if err := t.decreasePoolAmount(req.CollateralAsset, feeTokens); err != nil {
			return model.Position{}, err
		}
	} else {
		avg, err := t.nextGlobalShortAveragePrice(req.IndexAsset, price, req.SizeDelta)
		if err != nil {
			return model.Position{}, err
		}
		t.pool(req.IndexAsset).GlobalShortAveragePrice = avg
		if err := t.increaseGlobalShortSize(req.IndexAsset, req.SizeDelta); err != nil {
			return model.Position{}, err
		}
	}

	t.record(model.LedgerEntry{
		Kind:            model.EntryIncrease,
		PositionKey:     pos.Key().Hex(),
		Account:         req.Account,
		CollateralAsset: req.CollateralAsset,
		IndexAsset:      req.IndexAsset,
		IsLong:          req.IsLong,
		SizeDelta:       req.SizeDelta,
		CollateralDelta: collateralInUsd,
		Price:           price,
		Fee:             fee,
		AmountIn:        req.CollateralIn,
	})
	if err := e.commit(t); err != nil {
		return model.Position{}, err
	}

	e.logger.Info("position increased",
		"key", pos.Key().Hex(),
		"account", req.Account,
		"side", model.Side(req.IsLong),
		"size_delta", req.SizeDelta.Decimal(fixed.USDDecimals).String(),
		"collateral_in", req.CollateralIn.String(),
		"price", price.Decimal(fixed.USDDecimals).String(),
		"fee", fee.Decimal(fixed.USDDecimals).String(),
		"size", pos.Size.Decimal(fixed.USDDecimals).String(),
	)
	return *pos, nil
}
