// Package fixed implements the deterministic Q47.16 arithmetic used by every
// simulated computation. Nothing in here touches the FPU except the explicit
// FromFloat/ToFloat conversions, which exist for tooling and presentation only.
package fixed

import (
	"errors"
	"math"
	"math/bits"
)

// Fixed is a 64-bit signed value interpreted as v * 2^Shift.
type Fixed = int64

const (
	Shift   = 16
	One     = Fixed(1) << Shift
	Half    = One >> 1
	Mask    = One - 1
	Epsilon = Fixed(1)

	MaxValue = Fixed(math.MaxInt64)
	MinValue = Fixed(math.MinInt64)
)

// ErrDivideByZero is the panic value of Div when the divisor is zero.
var ErrDivideByZero = errors.New("fixed: division by zero")

// FromInt converts a whole number.
func FromInt(i int) Fixed { return Fixed(i) << Shift }

// FromFraction returns num/den without going through floating point.
func FromFraction(num, den int64) Fixed { return Div(num<<Shift, den<<Shift) }

// ToInt truncates toward negative infinity.
func ToInt(f Fixed) int { return int(f >> Shift) }

// Round rounds half away from zero to the nearest whole number.
func Round(f Fixed) int {
	if f < 0 {
		return -int((-f + Half) >> Shift)
	}
	return int((f + Half) >> Shift)
}

// FromFloat is for tooling and presentation. Never feed its result back into
// simulation state on one peer only.
func FromFloat(f float64) Fixed { return Fixed(math.Round(f * float64(One))) }

// ToFloat is for presentation only.
func ToFloat(f Fixed) float64 { return float64(f) / float64(One) }

// Mul returns (a*b) >> Shift using a 128-bit intermediate product.
func Mul(a, b Fixed) Fixed {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if a < 0 {
		hi -= uint64(b)
	}
	if b < 0 {
		hi -= uint64(a)
	}
	return Fixed(hi<<(64-Shift) | lo>>Shift)
}

// Div returns (a << Shift) / b, truncated toward zero. Like integer division it
// panics when b is zero; callers guard. Quotients that do not fit saturate.
func Div(a, b Fixed) Fixed {
	if b == 0 {
		panic(ErrDivideByZero)
	}
	negative := (a < 0) != (b < 0)
	ua, ub := absU(a), absU(b)

	hi := ua >> (64 - Shift)
	lo := ua << Shift
	if hi >= ub {
		return saturate(negative)
	}
	quo, _ := bits.Div64(hi, lo, ub)
	if quo > math.MaxInt64 {
		if negative && quo == 1<<63 {
			return MinValue
		}
		return saturate(negative)
	}
	if negative {
		return -Fixed(quo)
	}
	return Fixed(quo)
}

// MulDiv computes (a * b) / c with a 128-bit intermediate. c must not be zero.
func MulDiv(a, b, c Fixed) Fixed {
	if c == 0 {
		panic(ErrDivideByZero)
	}
	negative := ((a < 0) != (b < 0)) != (c < 0)
	hi, lo := bits.Mul64(absU(a), absU(b))
	uc := absU(c)
	if hi >= uc {
		return saturate(negative)
	}
	q, _ := bits.Div64(hi, lo, uc)
	if q > math.MaxInt64 {
		return saturate(negative)
	}
	if negative {
		return -Fixed(q)
	}
	return Fixed(q)
}

// Sqrt returns the square root using a digit-by-digit integer algorithm.
// Non-positive input yields zero.
func Sqrt(x Fixed) Fixed {
	if x <= 0 {
		return 0
	}
	u := uint64(x)
	if u < 1<<(63-Shift) {
		return Fixed(isqrt(u << Shift))
	}
	// Large values lose the low half of the fractional precision.
	return Fixed(isqrt(u) << (Shift / 2))
}

func isqrt(n uint64) uint64 {
	var res uint64
	bit := uint64(1) << 62
	for bit > n {
		bit >>= 2
	}
	for bit != 0 {
		if n >= res+bit {
			n -= res + bit
			res = res>>1 + bit
		} else {
			res >>= 1
		}
		bit >>= 2
	}
	return res
}

// Abs returns |x|.
func Abs(x Fixed) Fixed {
	if x < 0 {
		return -x
	}
	return x
}

// Sign returns -One, 0 or One.
func Sign(x Fixed) Fixed {
	switch {
	case x < 0:
		return -One
	case x > 0:
		return One
	}
	return 0
}

func Min(a, b Fixed) Fixed {
	if a < b {
		return a
	}
	return b
}

func Max(a, b Fixed) Fixed {
	if a > b {
		return a
	}
	return b
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi Fixed) Fixed {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Lerp interpolates between a and b; t is in [0, One].
func Lerp(a, b, t Fixed) Fixed {
	if t >= One {
		return b
	}
	if t <= 0 {
		return a
	}
	return a + Mul(b-a, t)
}

// MoreThanEpsilon reports whether |x| exceeds the smallest step.
func MoreThanEpsilon(x Fixed) bool {
	return x > Epsilon || x < -Epsilon
}

func absU(x Fixed) uint64 {
	if x < 0 {
		return uint64(-x)
	}
	return uint64(x)
}

func saturate(negative bool) Fixed {
	if negative {
		return MinValue
	}
	return MaxValue
}
