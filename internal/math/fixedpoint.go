package math

import (
	"math"
	"math/big"
	"sync"

	"VammLedger/internal/errs"
)

type RoundingMode int

const (
	RoundDown     RoundingMode = iota // toward zero
	RoundUp                           // away from zero
	RoundFloor                        // toward -inf
	RoundCeil                         // toward +inf
	RoundHalfEven                     // banker's rounding
)

var bigPool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getBig() *big.Int {
	return bigPool.Get().(*big.Int)
}

func putBig(v *big.Int) {
	v.SetInt64(0)
	bigPool.Put(v)
}

var (
	maxInt64 = big.NewInt(math.MaxInt64)
	minInt64 = big.NewInt(math.MinInt64)
)

// ToInt64 narrows an intermediate back to int64.
func ToInt64(v *big.Int) (int64, error) {
	if v.Cmp(maxInt64) > 0 || v.Cmp(minInt64) < 0 {
		return 0, errs.Overflow("narrow to int64")
	}
	return v.Int64(), nil
}

// QuoRound divides num by den into a fresh big.Int, applying mode.
func QuoRound(num, den *big.Int, mode RoundingMode) (*big.Int, error) {
	if den.Sign() == 0 {
		return nil, errs.Overflow("division by zero")
	}
	q := new(big.Int)
	r := getBig()
	defer putBig(r)
	q.QuoRem(num, den, r)
	if r.Sign() == 0 {
		return q, nil
	}

	// sign of the exact quotient
	neg := num.Sign()*den.Sign() < 0
	switch mode {
	case RoundUp:
		if neg {
			q.Sub(q, big.NewInt(1))
		} else {
			q.Add(q, big.NewInt(1))
		}
	case RoundFloor:
		if neg {
			q.Sub(q, big.NewInt(1))
		}
	case RoundCeil:
		if !neg {
			q.Add(q, big.NewInt(1))
		}
	case RoundHalfEven:
		twice := getBig()
		defer putBig(twice)
		twice.Abs(r)
		twice.Lsh(twice, 1)
		absDen := getBig()
		defer putBig(absDen)
		absDen.Abs(den)
		cmp := twice.Cmp(absDen)
		if cmp > 0 || (cmp == 0 && q.Bit(0) == 1) {
			if neg {
				q.Sub(q, big.NewInt(1))
			} else {
				q.Add(q, big.NewInt(1))
			}
		}
	}
	return q, nil
}

// MulDiv computes a*b/c with a wide intermediate, truncating toward zero.
func MulDiv(a, b, c int64) (int64, error) {
	return MulDivRound(a, b, c, RoundDown)
}

// MulDivRound computes a*b/c with a wide intermediate and the given rounding.
func MulDivRound(a, b, c int64, mode RoundingMode) (int64, error) {
	if c == 0 {
		return 0, errs.Overflow("division by zero")
	}
	num := getBig()
	defer putBig(num)
	num.Mul(big.NewInt(a), big.NewInt(b))
	q, err := QuoRound(num, big.NewInt(c), mode)
	if err != nil {
		return 0, err
	}
	return ToInt64(q)
}

// Div divides a by b with the given rounding. A zero divisor is an error.
func Div(a, b int64, mode RoundingMode) (int64, error) {
	return MulDivRound(a, 1, b, mode)
}

func CheckedAdd(a, b int64) (int64, error) {
	s := a + b
	if (b > 0 && s < a) || (b < 0 && s > a) {
		return 0, errs.Overflow("add")
	}
	return s, nil
}

func CheckedSub(a, b int64) (int64, error) {
	d := a - b
	if (b > 0 && d > a) || (b < 0 && d < a) {
		return 0, errs.Overflow("sub")
	}
	return d, nil
}

func CheckedMul(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	p := a * b
	if p/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, errs.Overflow("mul")
	}
	return p, nil
}

// Abs saturates at MaxInt64, so it never returns a negative value. Use
// CheckedAbs where MinInt64 must be an error.
func Abs(v int64) int64 {
	switch {
	case v == math.MinInt64:
		return math.MaxInt64
	case v < 0:
		return -v
	}
	return v
}

func CheckedAbs(v int64) (int64, error) {
	if v == math.MinInt64 {
		return 0, errs.Overflow("abs")
	}
	return Abs(v), nil
}

func Sign(v int64) int64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func Min(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func Max(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// StandardizeToStep rounds x toward zero to a multiple of step and returns
// the standardized value and the remainder (same sign as x). A non-positive
// step leaves x untouched.
func StandardizeToStep(x, step int64) (std, remainder int64) {
	if step <= 0 {
		return x, 0
	}
	remainder = x % step
	return x - remainder, remainder
}

// SqrtProduct returns floor(sqrt(a*b)) for non-negative a and b.
func SqrtProduct(a, b int64) (int64, error) {
	if a < 0 || b < 0 {
		return 0, errs.New(errs.CodeInvalidArgument, "sqrt of negative product")
	}
	p := getBig()
	defer putBig(p)
	p.Mul(big.NewInt(a), big.NewInt(b))
	return ToInt64(new(big.Int).Sqrt(p))
}

// Square returns v*v as a wide integer.
func Square(v int64) *big.Int {
	b := big.NewInt(v)
	return b.Mul(b, b)
}

// ReserveToQuote converts a reserve-denominated amount into quote precision
// through the peg multiplier.
func ReserveToQuote(amount, peg int64, mode RoundingMode) (int64, error) {
	return MulDivRound(amount, peg, AmmTimesPegToQuotePrecisionRatio, mode)
}

// BaseValue is base * price in quote precision, keeping the sign of base.
func BaseValue(base, price int64) (int64, error) {
	return MulDiv(base, price, BaseTimesPriceToQuotePrecisionRatio)
}

// BaseNotional is |base| * price in quote precision.
func BaseNotional(base, price int64) (int64, error) {
	abs, err := CheckedAbs(base)
	if err != nil {
		return 0, err
	}
	return MulDiv(abs, price, BaseTimesPriceToQuotePrecisionRatio)
}
