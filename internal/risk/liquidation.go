package risk

import (
	"github.com/atmx/vault-engine/internal/fixed"
	"github.com/atmx/vault-engine/internal/model"
)

// LiquidationState is the outcome of liquidation validation.
type LiquidationState int

const (
	Healthy LiquidationState = iota
	// Liquidatable positions cannot cover losses and fees.
	Liquidatable
	// OverLeveraged positions are solvent but above MaxLeverage on
	// remaining collateral; they are closed back to the owner.
	OverLeveraged
)

func (s LiquidationState) String() string {
	switch s {
	case Liquidatable:
		return "liquidatable"
	case OverLeveraged:
		return "over_leveraged"
	default:
		return "healthy"
	}
}

// Verdict reports the liquidation state, the margin fees the position owes
// (capped at remaining collateral when it cannot pay them) and, for an
// unhealthy position, the reason.
type Verdict struct {
	State  LiquidationState
	Fees   fixed.Uint
	Reason error
}

// Exposure is the position's unrealised PnL and the fees it would pay to
// close: position fee on full size plus accrued funding.
type Exposure struct {
	HasProfit  bool
	Delta      fixed.Uint
	MarginFees fixed.Uint
}

// Liquidation validates pos at the given exposure. Checks run in order:
// losses, fees, liquidation fee, leverage.
func (p Policy) Liquidation(pos *model.Position, ex Exposure) (Verdict, error) {
	if !ex.HasProfit && pos.Collateral.Lt(ex.Delta) {
		return Verdict{State: Liquidatable, Fees: ex.MarginFees, Reason: model.ErrLossesExceedCollateral}, nil
	}

	remaining := pos.Collateral
	if !ex.HasProfit {
		remaining = pos.Collateral.SubFloor(ex.Delta)
	}

	if remaining.Lt(ex.MarginFees) {
		return Verdict{State: Liquidatable, Fees: remaining, Reason: model.ErrFeesExceedCollateral}, nil
	}

	var c fixed.Calc
	floor := c.Add(ex.MarginFees, p.LiquidationFeeUsd)
	lhs := c.Mul(remaining, fixed.New(p.MaxLeverage))
	rhs := c.Mul(pos.Size, fixed.BasisPointsDivisor)
	if err := c.Err(); err != nil {
		return Verdict{}, err
	}

	if remaining.Lt(floor) {
		return Verdict{State: Liquidatable, Fees: ex.MarginFees, Reason: model.ErrLiquidationFeesExceedCollateral}, nil
	}
	if p.MaxLeverage > 0 && lhs.Lt(rhs) {
		return Verdict{State: OverLeveraged, Fees: ex.MarginFees, Reason: model.ErrMaxLeverageExceeded}, nil
	}
	return Verdict{State: Healthy, Fees: ex.MarginFees}, nil
}
