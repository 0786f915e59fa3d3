// Package fixed implements the unsigned fixed-point values used by the vault
// engine. Every quantity is an integer with an implied scale:
//
//   - USD amounts and prices carry 30 decimals (PricePrecision)
//   - basis points are parts of BasisPointsDivisor (10000)
//   - funding rates are parts of FundingRatePrecision (1e6)
//   - asset units carry the asset's own decimals
//
// Values are 256-bit and never float64. Multiply-then-divide goes through a
// 512-bit intermediate so it cannot overflow before the division.
package fixed

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

var (
	// ErrOverflow is returned when a result does not fit in 256 bits.
	ErrOverflow = errors.New("fixed: arithmetic overflow")

	// ErrUnderflow is returned when a subtraction would go below zero.
	ErrUnderflow = errors.New("fixed: subtraction overflow")

	// ErrDivisionByZero is returned by MulDiv with a zero divisor.
	ErrDivisionByZero = errors.New("fixed: division by zero")

	// ErrNegative is returned when a negative decimal is converted.
	ErrNegative = errors.New("fixed: negative value")
)

const (
	// USDDecimals is the scale of USD amounts and prices.
	USDDecimals = 30

	// BasisPoints is the denominator of every basis-point ratio.
	BasisPoints = 10000

	// FundingRateDecimals is the scale of cumulative funding rates.
	FundingRateDecimals = 6
)

var (
	// PricePrecision is 10^30.
	PricePrecision = Pow10(USDDecimals)

	// BasisPointsDivisor is 10^4.
	BasisPointsDivisor = New(BasisPoints)

	// FundingRatePrecision is 10^6.
	FundingRatePrecision = Pow10(FundingRateDecimals)
)

// Uint is an unsigned 256-bit integer with value semantics.
type Uint struct {
	v uint256.Int
}

// Zero is the zero value, spelled out for readability at call sites.
var Zero = Uint{}

// New returns x as a Uint.
func New(x uint64) Uint {
	var u Uint
	u.v.SetUint64(x)
	return u
}

// Pow10 returns 10^n.
func Pow10(n uint) Uint {
	var u Uint
	u.v.Exp(uint256.NewInt(10), uint256.NewInt(uint64(n)))
	return u
}

// USD returns whole dollars scaled to 30 decimals.
func USD(dollars uint64) Uint {
	return New(dollars).mustMul(PricePrecision)
}

// Parse reads a base-10 integer string.
func Parse(s string) (Uint, error) {
	var u Uint
	if err := u.v.SetFromDecimal(s); err != nil {
		return Zero, fmt.Errorf("fixed: parse %q: %w", s, err)
	}
	return u, nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Uint {
	u, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

// FromDecimal converts a human-readable decimal into a fixed-point integer
// with the given number of decimals. Digits beyond the scale are truncated.
func FromDecimal(d decimal.Decimal, decimals int32) (Uint, error) {
	if d.IsNegative() {
		return Zero, ErrNegative
	}
	b := d.Shift(decimals).BigInt()
	var u Uint
	if u.v.SetFromBig(b) {
		return Zero, ErrOverflow
	}
	return u, nil
}

// Decimal renders the integer as a human-readable decimal with the given
// number of implied decimals.
func (a Uint) Decimal(decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(a.v.ToBig(), -decimals)
}

// Big returns a copy as *big.Int.
func (a Uint) Big() *big.Int {
	return a.v.ToBig()
}

// Uint64 returns the low 64 bits and whether the value fit.
func (a Uint) Uint64() (uint64, bool) {
	return a.v.Uint64(), a.v.IsUint64()
}

// IsZero reports whether a is 0.
func (a Uint) IsZero() bool { return a.v.IsZero() }

// Cmp returns -1, 0 or +1 as a is less than, equal to or greater than b.
func (a Uint) Cmp(b Uint) int { return a.v.Cmp(&b.v) }

// Eq reports a == b.
func (a Uint) Eq(b Uint) bool { return a.v.Eq(&b.v) }

// Lt reports a < b.
func (a Uint) Lt(b Uint) bool { return a.v.Lt(&b.v) }

// Gt reports a > b.
func (a Uint) Gt(b Uint) bool { return a.v.Gt(&b.v) }

// Lte reports a <= b.
func (a Uint) Lte(b Uint) bool { return !a.v.Gt(&b.v) }

// Gte reports a >= b.
func (a Uint) Gte(b Uint) bool { return !a.v.Lt(&b.v) }

// String formats a in base 10 without implied decimals.
func (a Uint) String() string { return a.v.Dec() }

// Add returns a+b.
func (a Uint) Add(b Uint) (Uint, error) {
	var z Uint
	if _, overflow := z.v.AddOverflow(&a.v, &b.v); overflow {
		return Zero, ErrOverflow
	}
	return z, nil
}

// Sub returns a-b, or ErrUnderflow when b > a.
func (a Uint) Sub(b Uint) (Uint, error) {
	var z Uint
	if _, underflow := z.v.SubOverflow(&a.v, &b.v); underflow {
		return Zero, ErrUnderflow
	}
	return z, nil
}

// SubFloor returns a-b clamped at zero.
func (a Uint) SubFloor(b Uint) Uint {
	if a.Lte(b) {
		return Zero
	}
	var z Uint
	z.v.Sub(&a.v, &b.v)
	return z
}

// Mul returns a*b.
func (a Uint) Mul(b Uint) (Uint, error) {
	var z Uint
	if _, overflow := z.v.MulOverflow(&a.v, &b.v); overflow {
		return Zero, ErrOverflow
	}
	return z, nil
}

// Div returns a/b rounded down.
func (a Uint) Div(b Uint) (Uint, error) {
	if b.IsZero() {
		return Zero, ErrDivisionByZero
	}
	var z Uint
	z.v.Div(&a.v, &b.v)
	return z, nil
}

// MulDiv returns a*b/d rounded down, with a 512-bit intermediate product.
func (a Uint) MulDiv(b, d Uint) (Uint, error) {
	if d.IsZero() {
		return Zero, ErrDivisionByZero
	}
	var z Uint
	if _, overflow := z.v.MulDivOverflow(&a.v, &b.v, &d.v); overflow {
		return Zero, ErrOverflow
	}
	return z, nil
}

// AbsDiff returns |a-b|.
func AbsDiff(a, b Uint) Uint {
	if a.Gt(b) {
		return a.SubFloor(b)
	}
	return b.SubFloor(a)
}

// Min returns the smaller of a and b.
func Min(a, b Uint) Uint {
	if a.Lt(b) {
		return a
	}
	return b
}

func (a Uint) mustMul(b Uint) Uint {
	z, err := a.Mul(b)
	if err != nil {
		panic(err)
	}
	return z
}

// MarshalJSON encodes the value as a quoted base-10 string; 1e30-scaled
// numbers do not survive a round trip through JSON numbers.
func (a Uint) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(a.v.Dec())), nil
}

// UnmarshalJSON accepts a quoted or bare base-10 integer.
func (a *Uint) UnmarshalJSON(data []byte) error {
	s := string(data)
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	u, err := Parse(s)
	if err != nil {
		return err
	}
	*a = u
	return nil
}

// Signed is a sign-magnitude value used for realised PnL.
type Signed struct {
	Abs      Uint `json:"abs"`
	Negative bool `json:"negative"`
}

// Plus returns s+x.
func (s Signed) Plus(x Uint) (Signed, error) {
	if !s.Negative {
		abs, err := s.Abs.Add(x)
		return Signed{Abs: abs}, err
	}
	if s.Abs.Gt(x) {
		return Signed{Abs: s.Abs.SubFloor(x), Negative: true}, nil
	}
	return Signed{Abs: x.SubFloor(s.Abs)}, nil
}

// Minus returns s-x.
func (s Signed) Minus(x Uint) (Signed, error) {
	if s.Negative {
		abs, err := s.Abs.Add(x)
		return Signed{Abs: abs, Negative: true}, err
	}
	if s.Abs.Gte(x) {
		return Signed{Abs: s.Abs.SubFloor(x)}, nil
	}
	return Signed{Abs: x.SubFloor(s.Abs), Negative: true}, nil
}

// Decimal renders the signed value with the given implied decimals.
func (s Signed) Decimal(decimals int32) decimal.Decimal {
	d := s.Abs.Decimal(decimals)
	if s.Negative {
		return d.Neg()
	}
	return d
}

// String renders the integer with a leading minus when negative.
func (s Signed) String() string {
	if s.Negative && !s.Abs.IsZero() {
		return "-" + s.Abs.String()
	}
	return s.Abs.String()
}

// ParseSigned reads a base-10 integer with an optional leading minus.
func ParseSigned(str string) (Signed, error) {
	neg := strings.HasPrefix(str, "-")
	abs, err := Parse(strings.TrimPrefix(str, "-"))
	if err != nil {
		return Signed{}, err
	}
	return Signed{Abs: abs, Negative: neg && !abs.IsZero()}, nil
}
