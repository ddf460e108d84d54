package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// LamportsToSOL converts a lamport amount to a SOL decimal for display.
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -9)
}

// FormatSOL renders lamports as a SOL string, e.g. 90000000 -> "0.09".
func FormatSOL(lamports uint64) string {
	return LamportsToSOL(lamports).String()
}

// OwnerCutRatio returns the owner cut as a fraction, e.g. 10 -> 0.1.
func OwnerCutRatio(ownerCut uint16) decimal.Decimal {
	return decimal.NewFromInt(int64(ownerCut)).Div(decimal.NewFromInt(100))
}
