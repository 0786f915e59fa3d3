package model

import (
	"errors"

	"github.com/atmx/vault-engine/internal/fixed"
)

// Kind classifies an error for callers deciding whether to retry.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuthorization
	KindValidation
	KindSolvency
	KindPolicy
	KindOracle
)

func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindValidation:
		return "validation"
	case KindSolvency:
		return "solvency"
	case KindPolicy:
		return "policy"
	case KindOracle:
		return "oracle"
	default:
		return "unknown"
	}
}

// Error is a sentinel error carrying its Kind.
type Error struct {
	Kind Kind
	msg  string
}

func (e *Error) Error() string { return e.msg }

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

var (
	ErrUnauthorized = newError(KindAuthorization, "vault: unauthorized caller")

	ErrZeroDelta            = newError(KindValidation, "vault: zero delta")
	ErrEmptyPosition        = newError(KindValidation, "vault: empty position")
	ErrPositionSizeExceeded = newError(KindValidation, "vault: position size exceeded")
	ErrInvalidPositionSize  = newError(KindValidation, "vault: invalid position size")
	ErrSizeBelowCollateral  = newError(KindValidation, "vault: size must be more than collateral")
	ErrUnsupportedAsset     = newError(KindValidation, "vault: asset not whitelisted")
	ErrAssetMismatch        = newError(KindValidation, "vault: collateral and index assets do not pair")
	ErrInvalidFee           = newError(KindValidation, "vault: invalid fee")
	ErrInvalidParams        = newError(KindValidation, "vault: invalid parameters")

	ErrPoolExceeded                    = newError(KindSolvency, "vault: reserve exceeds pool")
	ErrPoolAmountExceeded              = newError(KindSolvency, "vault: pool amount exceeded")
	ErrCollateralExceeded              = newError(KindSolvency, "vault: collateral exceeded")
	ErrInsufficientCollateralForFees   = newError(KindSolvency, "vault: insufficient collateral for fees")
	ErrLossesExceedCollateral          = newError(KindSolvency, "vault: losses exceed collateral")
	ErrFeesExceedCollateral            = newError(KindSolvency, "vault: fees exceed collateral")
	ErrLiquidationFeesExceedCollateral = newError(KindSolvency, "vault: liquidation fees exceed collateral")
	ErrNotLiquidatable                 = newError(KindValidation, "vault: position cannot be liquidated")

	ErrMaxLeverageExceeded = newError(KindPolicy, "vault: max leverage exceeded")
	ErrLeverageRejected    = newError(KindPolicy, "vault: leverage outside allowed range")
	ErrLeverageTooLow      = newError(KindPolicy, "vault: leverage too low")
	ErrCooldownNotPassed   = newError(KindPolicy, "vault: cooldown duration not yet passed")

	ErrStalePrice       = newError(KindOracle, "oracle: stale price")
	ErrPriceUnavailable = newError(KindOracle, "oracle: price unavailable")
)

// KindOf classifies err. Checked arithmetic failures are solvency errors:
// they only happen when an amount would leave its valid range.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, fixed.ErrUnderflow) ||
		errors.Is(err, fixed.ErrOverflow) ||
		errors.Is(err, fixed.ErrDivisionByZero) {
		return KindSolvency
	}
	return KindUnknown
}
