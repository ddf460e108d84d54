package safe

import (
	"errors"
	"math"
	"math/bits"
)

var (
	// ErrOverflow is returned when a lamport or token amount would exceed uint64.
	ErrOverflow = errors.New("CORE_SAFE_OVERFLOW")

	// ErrUnderflow is returned when a subtraction would go below zero.
	ErrUnderflow = errors.New("CORE_SAFE_UNDERFLOW")

	// ErrDivByZero is returned on division by zero.
	ErrDivByZero = errors.New("CORE_SAFE_DIV_BY_ZERO")
)

// Add performs uint64 addition and reports overflow.
func Add(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// Sub performs uint64 subtraction and reports underflow.
func Sub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrUnderflow
	}
	return a - b, nil
}

// Mul performs uint64 multiplication and reports overflow.
func Mul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrOverflow
	}
	return lo, nil
}

// MulDiv computes floor(a * b / c) with a 128-bit intermediate product,
// so a*b may exceed uint64 as long as the quotient does not.
func MulDiv(a, b, c uint64) (uint64, error) {
	if c == 0 {
		return 0, ErrDivByZero
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= c {
		return 0, ErrOverflow
	}
	q, _ := bits.Div64(hi, lo, c)
	return q, nil
}

// MustAdd is Add for callers that have already bounded their inputs.
// Panics on overflow.
func MustAdd(a, b uint64) uint64 {
	v, err := Add(a, b)
	if err != nil {
		panic(err.Error())
	}
	return v
}
