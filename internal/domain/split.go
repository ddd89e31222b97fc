package domain

import (
	"errors"
	"math"
)

// BpsDenominator is the basis-point scale used for the mint split ratio.
const BpsDenominator = 10000

// ErrInvalidSplitRatio is returned when a ratio is outside [0, 1].
var ErrInvalidSplitRatio = errors.New("split ratio must be within [0, 1]")

// RatioToBps converts a fractional pool ratio to basis points.
// The ratio is applied exclusively through integer arithmetic afterwards,
// so this is the only place a float is touched.
func RatioToBps(ratio float64) (int64, error) {
	if ratio < 0 || ratio > 1 || math.IsNaN(ratio) {
		return 0, ErrInvalidSplitRatio
	}
	return int64(math.Round(ratio * BpsDenominator)), nil
}

// SplitBps divides amount between pool and stakeholder shares.
// poolShare = floor(amount * ratioBps / 10000); the stakeholder share
// absorbs the rounding remainder, so poolShare + stakeholderShare == amount
// exactly for every amount >= 0.
func SplitBps(amount, ratioBps int64) (poolShare, stakeholderShare int64) {
	poolShare = amount * ratioBps / BpsDenominator
	stakeholderShare = amount - poolShare
	return poolShare, stakeholderShare
}
