package relaypay

import "math"

// satsPerUnit is the number of settlement minor units (sats) in one
// settlement unit (BTC).
const satsPerUnit = 100_000_000

// SatsForPrice converts a price in the billing currency's minor unit
// (cents) to whole sats at the given rate (currency units per
// settlement unit).
//
// Rounding is half-away-from-zero: an exact .5 sat remainder rounds up.
// Remote systems re-derive nothing from this amount, so the only
// requirement is that the rule stays fixed.
func SatsForPrice(priceCents int64, rate float64) int64 {
	units := float64(priceCents) / 100 / rate
	return int64(math.Round(units * satsPerUnit))
}
