package safe

import (
	"errors"
	"math"
	"testing"
)

func TestSafeMath(t *testing.T) {
	tests := []struct {
		name string
		op   func(a, b uint64) (uint64, error)
		val1 uint64
		val2 uint64
		want uint64
	}{
		{"Normal Add", Add, 10, 20, 30},
		{"Add Boundary", Add, math.MaxUint64 - 1, 1, math.MaxUint64},
		{"Normal Sub", Sub, 30, 10, 20},
		{"Sub To Zero", Sub, 7, 7, 0},
		{"Normal Mul", Mul, 5, 6, 30},
		{"Mul By Zero", Mul, math.MaxUint64, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.op(tt.val1, tt.val2)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMathErrors(t *testing.T) {
	t.Run("Add Overflow", func(t *testing.T) {
		if _, err := Add(math.MaxUint64, 1); !errors.Is(err, ErrOverflow) {
			t.Errorf("Expected ErrOverflow, got %v", err)
		}
	})

	t.Run("Sub Underflow", func(t *testing.T) {
		if _, err := Sub(1, 2); !errors.Is(err, ErrUnderflow) {
			t.Errorf("Expected ErrUnderflow, got %v", err)
		}
	})

	t.Run("Mul Overflow", func(t *testing.T) {
		if _, err := Mul(math.MaxUint64, 2); !errors.Is(err, ErrOverflow) {
			t.Errorf("Expected ErrOverflow, got %v", err)
		}
	})

	t.Run("MulDiv By Zero", func(t *testing.T) {
		if _, err := MulDiv(10, 10, 0); !errors.Is(err, ErrDivByZero) {
			t.Errorf("Expected ErrDivByZero, got %v", err)
		}
	})

	t.Run("MustAdd Panics", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Error("Should have panicked")
			}
		}()
		MustAdd(math.MaxUint64, 1)
	})
}

func TestMulDiv(t *testing.T) {
	t.Run("Floors the quotient", func(t *testing.T) {
		got, err := MulDiv(999, 10, 100)
		if err != nil {
			t.Fatal(err)
		}
		if got != 99 {
			t.Errorf("Expected 99, got %d", got)
		}
	})

	t.Run("Wide intermediate product", func(t *testing.T) {
		got, err := MulDiv(math.MaxUint64, 100, 100)
		if err != nil {
			t.Fatal(err)
		}
		if got != math.MaxUint64 {
			t.Errorf("Expected MaxUint64, got %d", got)
		}
	})

	t.Run("Quotient overflow", func(t *testing.T) {
		if _, err := MulDiv(math.MaxUint64, 2, 1); !errors.Is(err, ErrOverflow) {
			t.Errorf("Expected ErrOverflow, got %v", err)
		}
	})
}
