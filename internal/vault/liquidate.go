package vault

import (
	"context"
	"fmt"

	"github.com/atmx/vault-engine/internal/fixed"
	"github.com/atmx/vault-engine/internal/model"
	"github.com/atmx/vault-engine/internal/risk"
)

// LiquidateRequest names the position to liquidate and who receives the
// liquidation fee.
type LiquidateRequest struct {
	Caller          string
	Account         string
	CollateralAsset string
	IndexAsset      string
	IsLong          bool
	FeeReceiver     string
}

// LiquidationResult reports what was paid. For an over-leveraged position
// the close goes through the decrease path and Decrease is set.
type LiquidationResult struct {
	State       risk.LiquidationState `json:"state"`
	Reason      string                `json:"reason"`
	Fees        fixed.Uint            `json:"fees"`
	FeeReceiver string                `json:"fee_receiver,omitempty"`
	FeeOut      fixed.Uint            `json:"fee_out"`
	Decrease    *DecreaseResult       `json:"decrease,omitempty"`
}

// exposure values a position for liquidation checks: PnL at the exit price
// and the fees a full close would pay.
func (t *tx) exposure(pos *model.Position) (risk.Exposure, error) {
	hasProfit, d, err := t.positionDelta(pos)
	if err != nil {
		return risk.Exposure{}, err
	}
	fees, err := t.marginFees(pos.CollateralAsset, pos.Size, pos.Size, pos.EntryFundingRate)
	if err != nil {
		return risk.Exposure{}, err
	}
	return risk.Exposure{HasProfit: hasProfit, Delta: d, MarginFees: fees}, nil
}

func (t *tx) liquidationVerdict(pos *model.Position) (risk.Verdict, error) {
	ex, err := t.exposure(pos)
	if err != nil {
		return risk.Verdict{}, err
	}
	return t.e.params.Risk.Liquidation(pos, ex)
}

// requireHealthy rejects a post-state that would be liquidatable.
func (t *tx) requireHealthy(pos *model.Position) error {
	v, err := t.liquidationVerdict(pos)
	if err != nil {
		return err
	}
	if v.State != risk.Healthy {
		return v.Reason
	}
	return nil
}

// LiquidatePosition closes an unhealthy position. A liquidatable position
// forfeits its collateral to the pool, minus margin fees to fee reserves
// and the liquidation fee paid from the pool to FeeReceiver. An
// over-leveraged position is fully closed back to its owner.
func (e *Engine) LiquidatePosition(ctx context.Context, req LiquidateRequest) (LiquidationResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := model.PositionKey(req.Account, req.CollateralAsset, req.IndexAsset, req.IsLong)
	res, err := e.liquidate(ctx, req)
	if err != nil {
		return LiquidationResult{}, fmt.Errorf("liquidate %s: %w", key.Hex(), err)
	}

	e.logger.Info("position liquidated",
		"key", key.Hex(),
		"account", req.Account,
		"side", model.Side(req.IsLong),
		"state", res.State.String(),
		"reason", res.Reason,
		"fees", res.Fees.Decimal(fixed.USDDecimals).String(),
		"fee_out", res.FeeOut.String(),
		"fee_receiver", req.FeeReceiver,
	)
	return res, nil
}

func (e *Engine) liquidate(ctx context.Context, req LiquidateRequest) (LiquidationResult, error) {
	if e.params.PrivateLiquidationMode && !e.auth.IsLiquidator(req.Caller) {
		return LiquidationResult{}, model.ErrUnauthorized
	}
	if req.FeeReceiver == "" {
		return LiquidationResult{}, model.ErrInvalidParams
	}

	t := e.begin(ctx)
	if err := t.updateFunding(req.CollateralAsset); err != nil {
		return LiquidationResult{}, err
	}
	pos := t.position(req.Account, req.CollateralAsset, req.IndexAsset, req.IsLong)
	if pos.IsEmpty() {
		return LiquidationResult{}, model.ErrEmptyPosition
	}

	v, err := t.liquidationVerdict(pos)
	if err != nil {
		return LiquidationResult{}, err
	}
	switch v.State {
	case risk.Healthy:
		return LiquidationResult{}, model.ErrNotLiquidatable

	case risk.OverLeveraged:
		dec, err := t.decrease(DecreaseRequest{
			Caller:          req.Caller,
			Account:         req.Account,
			CollateralAsset: req.CollateralAsset,
			IndexAsset:      req.IndexAsset,
			IsLong:          req.IsLong,
			SizeDelta:       pos.Size,
			Receiver:        req.Account,
		}, false)
		if err != nil {
			return LiquidationResult{}, err
		}
		if err := e.commit(t); err != nil {
			return LiquidationResult{}, err
		}
		return LiquidationResult{
			State:    v.State,
			Reason:   v.Reason.Error(),
			Fees:     dec.Fee,
			Decrease: &dec,
		}, nil
	}

	asset := req.CollateralAsset
	feeTokens, err := t.usdToTokenMin(asset, v.Fees)
	if err != nil {
		return LiquidationResult{}, err
	}
	pool := t.pool(asset)
	if pool.FeeReserves, err = pool.FeeReserves.Add(feeTokens); err != nil {
		return LiquidationResult{}, err
	}
	if err := t.decreaseReservedAmount(asset, pos.ReserveAmount); err != nil {
		return LiquidationResult{}, err
	}

	if req.IsLong {
		t.decreaseGuaranteedUsd(asset, pos.Size.SubFloor(pos.Collateral))
		if err := t.decreasePoolAmount(asset, feeTokens); err != nil {
			return LiquidationResult{}, err
		}
	} else {
		if v.Fees.Lt(pos.Collateral) {
			units, err := t.usdToTokenMin(asset, pos.Collateral.SubFloor(v.Fees))
			if err != nil {
				return LiquidationResult{}, err
			}
			if err := t.increasePoolAmount(asset, units); err != nil {
				return LiquidationResult{}, err
			}
		}
		t.decreaseGlobalShortSize(req.IndexAsset, pos.Size)
	}

	liqFeeTokens, err := t.usdToTokenMin(asset, e.params.Risk.LiquidationFeeUsd)
	if err != nil {
		return LiquidationResult{}, err
	}
	if err := t.decreasePoolAmount(asset, liqFeeTokens); err != nil {
		return LiquidationResult{}, err
	}

	price, err := t.indexPrice(req.IndexAsset, req.IsLong, ConservativeForPool)
	if err != nil {
		return LiquidationResult{}, err
	}
	t.record(model.LedgerEntry{
		Kind:            model.EntryLiquidation,
		PositionKey:     pos.Key().Hex(),
		Account:         req.Account,
		CollateralAsset: asset,
		IndexAsset:      req.IndexAsset,
		IsLong:          req.IsLong,
		SizeDelta:       pos.Size,
		CollateralDelta: pos.Collateral,
		Price:           price,
		Fee:             v.Fees,
		AmountOut:       liqFeeTokens,
		Receiver:        req.FeeReceiver,
	})
	pos.Reset()

	if err := e.commit(t); err != nil {
		return LiquidationResult{}, err
	}
	return LiquidationResult{
		State:       v.State,
		Reason:      v.Reason.Error(),
		Fees:        v.Fees,
		FeeReceiver: req.FeeReceiver,
		FeeOut:      liqFeeTokens,
	}, nil
}
