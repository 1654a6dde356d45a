// Package money formats integer groth amounts for display. Every stored
// and computed value in beamgate stays a 64-bit integer; decimal.Decimal
// is used only at the edges, the way the teacher formats ledger amounts.
package money

import "github.com/shopspring/decimal"

// FEERegular is charged when the receiver is a regular/regular_new address.
const FEERegular int64 = 100_000

// FEEOffline is charged for offline/public_offline/max_privacy receivers.
const FEEOffline int64 = 1_100_000

// DefaultDecimals is used for assets whose NTH_RATIO metadata is absent.
const DefaultDecimals = 8

// Format renders a groth amount as a human-readable decimal string with the
// given number of decimals, e.g. Format(150_000_000, 8) == "1.5".
func Format(groth int64, decimals int32) string {
	scale := decimal.New(1, decimals)
	return decimal.NewFromInt(groth).DivRound(scale, decimals).String()
}

// Parse is the inverse of Format, used when reading decimal strings off the
// node's wire contract back into groth integers.
func Parse(s string, decimals int32) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	scale := decimal.New(1, decimals)
	return d.Mul(scale).Round(0).IntPart(), nil
}
