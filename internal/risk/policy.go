// Package risk implements the admission rules for position changes:
// leverage bounds, the withdrawal cooldown and liquidation validation.
//
// Every function here is pure. The engine computes prices, deltas and fees
// and asks the policy whether the resulting transition is admissible.
package risk

import (
	"time"

	"github.com/atmx/vault-engine/internal/fixed"
	"github.com/atmx/vault-engine/internal/model"
)

// Boundary selects how the cooldown proportionality rule treats equality.
type Boundary int

const (
	// Inclusive admits a decrease that keeps leverage exactly unchanged.
	Inclusive Boundary = iota
	// Exclusive requires leverage to strictly fall.
	Exclusive
)

func (b Boundary) String() string {
	if b == Exclusive {
		return "exclusive"
	}
	return "inclusive"
}

// ParseBoundary reads "inclusive" or "exclusive"; anything else is
// Inclusive.
func ParseBoundary(s string) Boundary {
	if s == "exclusive" {
		return Exclusive
	}
	return Inclusive
}

// Policy holds the governance thresholds. Leverage values are in basis
// points (10000 = 1x).
type Policy struct {
	// WithdrawalCooldown blocks collateral-heavy partial decreases for this
	// long after the last increase.
	WithdrawalCooldown time.Duration

	// MinLeverage is the floor for a position left open.
	MinLeverage uint64

	// MaxLeverage caps leverage, on posted collateral at increase and on
	// remaining collateral during liquidation validation.
	MaxLeverage uint64

	// LiquidationFeeUsd must stay covered by remaining collateral.
	LiquidationFeeUsd fixed.Uint

	CooldownBoundary Boundary
}

// DefaultPolicy returns 2.5x min, 50x max, a 5 USD liquidation fee and
// no cooldown.
func DefaultPolicy() Policy {
	return Policy{
		MinLeverage:       25000,
		MaxLeverage:       500000,
		LiquidationFeeUsd: fixed.USD(5),
		CooldownBoundary:  Inclusive,
	}
}

// Leverage returns size*10000/collateral rounded down.
func Leverage(size, collateral fixed.Uint) (fixed.Uint, error) {
	if collateral.IsZero() {
		return fixed.Zero, model.ErrEmptyPosition
	}
	return size.MulDiv(fixed.BasisPointsDivisor, collateral)
}

// CheckIncrease validates the post-increase position against
// [MinLeverage, MaxLeverage]. A zero bound is not enforced.
func (p Policy) CheckIncrease(next *model.Position) error {
	lev, err := Leverage(next.Size, next.Collateral)
	if err != nil {
		return err
	}
	if p.MaxLeverage > 0 && lev.Gt(fixed.New(p.MaxLeverage)) {
		return model.ErrLeverageRejected
	}
	if p.MinLeverage > 0 && lev.Lt(fixed.New(p.MinLeverage)) {
		return model.ErrLeverageRejected
	}
	return nil
}

// CheckCooldown applies the withdrawal cooldown to a requested decrease of
// prev. Full closes always pass. Inside the cooldown window a partial
// decrease passes only when it removes collateral in no greater proportion
// than size:
//
//	collateralDelta/collateral <= sizeDelta/size
//
// compared by cross-multiplication.
func (p Policy) CheckCooldown(prev *model.Position, collateralDelta, sizeDelta fixed.Uint, now time.Time) error {
	if prev.IsEmpty() || sizeDelta.Gte(prev.Size) {
		return nil
	}
	if p.WithdrawalCooldown <= 0 || !prev.LastIncreasedTime.Add(p.WithdrawalCooldown).After(now) {
		return nil
	}

	var c fixed.Calc
	lhs := c.Mul(collateralDelta, prev.Size)
	rhs := c.Mul(prev.Collateral, sizeDelta)
	if err := c.Err(); err != nil {
		return err
	}

	ok := lhs.Lte(rhs)
	if p.CooldownBoundary == Exclusive {
		ok = lhs.Lt(rhs)
	}
	if !ok {
		return model.ErrCooldownNotPassed
	}
	return nil
}

// CheckDecreased enforces the leverage floor on a position left open by a
// decrease. Closed positions pass.
func (p Policy) CheckDecreased(next *model.Position) error {
	if next.IsEmpty() || p.MinLeverage == 0 {
		return nil
	}
	lev, err := Leverage(next.Size, next.Collateral)
	if err != nil {
		return err
	}
	if lev.Lt(fixed.New(p.MinLeverage)) {
		return model.ErrLeverageTooLow
	}
	return nil
}
