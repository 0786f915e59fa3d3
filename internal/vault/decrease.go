package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/atmx/vault-engine/internal/fixed"
	"github.com/atmx/vault-engine/internal/model"
)

// DecreaseRequest reduces or closes a position. CollateralDelta and
// SizeDelta are USD.
type DecreaseRequest struct {
	Caller          string
	Account         string
	CollateralAsset string
	IndexAsset      string
	IsLong          bool
	CollateralDelta fixed.Uint
	SizeDelta       fixed.Uint
	Receiver        string
}

// DecreaseResult reports the post-state and the collateral units owed to
// the receiver. The caller settles the payout with the custodian.
type DecreaseResult struct {
	Position    model.Position `json:"position"`
	Closed      bool           `json:"closed"`
	Receiver    string         `json:"receiver"`
	AmountOut   fixed.Uint     `json:"amount_out"`
	Fee         fixed.Uint     `json:"fee"`
	RealisedPnl fixed.Signed   `json:"realised_pnl"`
}

// DecreasePosition realises the proportional share of PnL on SizeDelta,
// withdraws CollateralDelta, charges the margin fee and releases the
// matching reserve. A full close pays out all remaining collateral and
// resets the position to the empty record.
func (e *Engine) DecreasePosition(ctx context.Context, req DecreaseRequest) (DecreaseResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := model.PositionKey(req.Account, req.CollateralAsset, req.IndexAsset, req.IsLong)
	if !e.auth.IsApprovedCaller(req.Account, req.Caller) {
		return DecreaseResult{}, fmt.Errorf("decrease %s: %w", key.Hex(), model.ErrUnauthorized)
	}
	if req.SizeDelta.IsZero() && req.CollateralDelta.IsZero() {
		return DecreaseResult{}, fmt.Errorf("decrease %s: %w", key.Hex(), model.ErrZeroDelta)
	}

	t := e.begin(ctx)
	res, err := t.decrease(req, true)
	if err != nil {
		return DecreaseResult{}, fmt.Errorf("decrease %s: %w", key.Hex(), err)
	}
	if err := e.commit(t); err != nil {
		return DecreaseResult{}, fmt.Errorf("decrease %s: %w", key.Hex(), err)
	}
	e.logDecrease(key.Hex(), req, res)
	return res, nil
}

// decrease stages a decrease. withPolicy is false for the forced close of
// an over-leveraged position, which is always a full close.
func (t *tx) decrease(req DecreaseRequest, withPolicy bool) (DecreaseResult, error) {
	if req.Receiver == "" {
		return DecreaseResult{}, model.ErrInvalidParams
	}
	if err := t.updateFunding(req.CollateralAsset); err != nil {
		return DecreaseResult{}, err
	}

	pos := t.position(req.Account, req.CollateralAsset, req.IndexAsset, req.IsLong)
	if pos.IsEmpty() {
		return DecreaseResult{}, model.ErrEmptyPosition
	}
	if req.SizeDelta.Gt(pos.Size) {
		return DecreaseResult{}, model.ErrPositionSizeExceeded
	}
	if req.CollateralDelta.Gt(pos.Collateral) {
		return DecreaseResult{}, model.ErrCollateralExceeded
	}
	if withPolicy {
		if err := t.e.params.Risk.CheckCooldown(pos, req.CollateralDelta, req.SizeDelta, t.now); err != nil {
			return DecreaseResult{}, err
		}
	}

	oldCollateral := pos.Collateral
	pnlBefore := pos.RealisedPnl

	reserveDelta, err := pos.ReserveAmount.MulDiv(req.SizeDelta, pos.Size)
	if err != nil {
		return DecreaseResult{}, err
	}
	pos.ReserveAmount = pos.ReserveAmount.SubFloor(reserveDelta)
	if err := t.decreaseReservedAmount(req.CollateralAsset, reserveDelta); err != nil {
		return DecreaseResult{}, err
	}

	usdOut, usdOutAfterFee, fee, err := t.reduceCollateral(pos, req.CollateralDelta, req.SizeDelta)
	if err != nil {
		return DecreaseResult{}, err
	}

	closed := req.SizeDelta.Eq(pos.Size)
	if !closed {
		pos.EntryFundingRate = t.pool(req.CollateralAsset).CumulativeFundingRate
		pos.Size = pos.Size.SubFloor(req.SizeDelta)
		if err := validatePosition(pos); err != nil {
			return DecreaseResult{}, err
		}
		if err := t.requireHealthy(pos); err != nil {
			return DecreaseResult{}, err
		}
		if withPolicy {
			if err := t.e.params.Risk.CheckDecreased(pos); err != nil {
				return DecreaseResult{}, err
			}
		}
		if req.IsLong {
			if err := t.increaseGuaranteedUsd(req.CollateralAsset, oldCollateral.SubFloor(pos.Collateral)); err != nil {
				return DecreaseResult{}, err
			}
			t.decreaseGuaranteedUsd(req.CollateralAsset, req.SizeDelta)
		}
	} else {
		if req.IsLong {
			if err := t.increaseGuaranteedUsd(req.CollateralAsset, oldCollateral); err != nil {
				return DecreaseResult{}, err
			}
			t.decreaseGuaranteedUsd(req.CollateralAsset, req.SizeDelta)
		}
	}

	if !req.IsLong {
		t.decreaseGlobalShortSize(req.IndexAsset, req.SizeDelta)
	}

	var amountOut fixed.Uint
	if !usdOut.IsZero() {
		if req.IsLong {
			out, err := t.usdToTokenMin(req.CollateralAsset, usdOut)
			if err != nil {
				return DecreaseResult{}, err
			}
			if err := t.decreasePoolAmount(req.CollateralAsset, out); err != nil {
				return DecreaseResult{}, err
			}
		}
		amountOut, err = t.usdToTokenMin(req.CollateralAsset, usdOutAfterFee)
		if err != nil {
			return DecreaseResult{}, err
		}
	}

	realised, err := pnlDiff(pnlBefore, pos.RealisedPnl)
	if err != nil {
		return DecreaseResult{}, err
	}
	price, err := t.indexPrice(req.IndexAsset, req.IsLong, ConservativeForPool)
	if err != nil {
		return DecreaseResult{}, err
	}

	t.record(model.LedgerEntry{
		Kind:            model.EntryDecrease,
		PositionKey:     pos.Key().Hex(),
		Account:         req.Account,
		CollateralAsset: req.CollateralAsset,
		IndexAsset:      req.IndexAsset,
		IsLong:          req.IsLong,
		SizeDelta:       req.SizeDelta,
		CollateralDelta: req.CollateralDelta,
		Price:           price,
		Fee:             fee,
		AmountOut:       amountOut,
		RealisedPnl:     realised,
		Receiver:        req.Receiver,
	})

	if closed {
		pos.Reset()
	}
	return DecreaseResult{
		Position:    *pos,
		Closed:      closed,
		Receiver:    req.Receiver,
		AmountOut:   amountOut,
		Fee:         fee,
		RealisedPnl: realised,
	}, nil
}

// reduceCollateral settles fee and PnL on a decrease and returns the USD
// owed before and after the fee.
//
// The PnL of the whole position is computed and the sizeDelta/size share
// realised. Profit is paid out; loss comes off collateral. When the payout
// cannot cover the fee, the fee comes off collateral instead.
func (t *tx) reduceCollateral(pos *model.Position, collateralDelta, sizeDelta fixed.Uint) (usdOut, usdOutAfterFee, fee fixed.Uint, err error) {
	asset := pos.CollateralAsset
	fee, _, err = t.collectMarginFees(asset, sizeDelta, pos.Size, pos.EntryFundingRate)
	if err != nil {
		return
	}

	hasProfit, d, err := t.positionDelta(pos)
	if err != nil {
		return
	}
	adjusted, err := sizeDelta.MulDiv(d, pos.Size)
	if err != nil {
		return
	}

	if !adjusted.IsZero() {
		if hasProfit {
			usdOut = adjusted
			if pos.RealisedPnl, err = pos.RealisedPnl.Plus(adjusted); err != nil {
				return
			}
			if !pos.IsLong {
				var units fixed.Uint
				if units, err = t.usdToTokenMin(asset, adjusted); err != nil {
					return
				}
				if err = t.decreasePoolAmount(asset, units); err != nil {
					return
				}
			}
		} else {
			if pos.Collateral, err = subCollateral(pos.Collateral, adjusted); err != nil {
				return
			}
			if !pos.IsLong {
				var units fixed.Uint
				if units, err = t.usdToTokenMin(asset, adjusted); err != nil {
					return
				}
				if err = t.increasePoolAmount(asset, units); err != nil {
					return
				}
			}
			if pos.RealisedPnl, err = pos.RealisedPnl.Minus(adjusted); err != nil {
				return
			}
		}
	}

	if !collateralDelta.IsZero() {
		if usdOut, err = usdOut.Add(collateralDelta); err != nil {
			return
		}
		if pos.Collateral, err = subCollateral(pos.Collateral, collateralDelta); err != nil {
			return
		}
	}

	if sizeDelta.Eq(pos.Size) {
		if usdOut, err = usdOut.Add(pos.Collateral); err != nil {
			return
		}
		pos.Collateral = fixed.Zero
	}

	usdOutAfterFee = usdOut
	if usdOut.Gt(fee) {
		usdOutAfterFee = usdOut.SubFloor(fee)
		return
	}

	if pos.Collateral, err = pos.Collateral.Sub(fee); err != nil {
		err = model.ErrInsufficientCollateralForFees
		return
	}
	if pos.IsLong {
		var feeTokens fixed.Uint
		if feeTokens, err = t.usdToTokenMin(asset, fee); err != nil {
			return
		}
		err = t.decreasePoolAmount(asset, feeTokens)
	}
	return
}

func subCollateral(collateral, amount fixed.Uint) (fixed.Uint, error) {
	next, err := collateral.Sub(amount)
	if errors.Is(err, fixed.ErrUnderflow) {
		return fixed.Zero, model.ErrCollateralExceeded
	}
	return next, err
}

// pnlDiff returns after-before.
func pnlDiff(before, after fixed.Signed) (fixed.Signed, error) {
	if before.Negative {
		return after.Plus(before.Abs)
	}
	return after.Minus(before.Abs)
}

func (e *Engine) logDecrease(key string, req DecreaseRequest, res DecreaseResult) {
	e.logger.Info("position decreased",
		"key", key,
		"account", req.Account,
		"side", model.Side(req.IsLong),
		"size_delta", req.SizeDelta.Decimal(fixed.USDDecimals).String(),
		"collateral_delta", req.CollateralDelta.Decimal(fixed.USDDecimals).String(),
		"fee", res.Fee.Decimal(fixed.USDDecimals).String(),
		"realised_pnl", res.RealisedPnl.Decimal(fixed.USDDecimals).String(),
		"amount_out", res.AmountOut.String(),
		"receiver", req.Receiver,
		"closed", res.Closed,
	)
}
