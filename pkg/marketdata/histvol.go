package marketdata

import (
	"fmt"
	"math"
)

// Trailing sessions used for the realized-volatility fallback.
const histVolWindow = 30

// tradingDaysPerYear annualizes daily volatility.
const tradingDaysPerYear = 252

// RealizedVol computes annualized realized volatility, in percentage
// points, from daily closes (oldest first). It needs at least window+1
// observations: daily log returns over the trailing window, sample standard
// deviation, annualized by sqrt(252).
//
// The result is a historical quantity, not an implied one; callers must tag
// it accordingly.
func RealizedVol(closes []float64, window int) (float64, error) {
	if len(closes) < window+1 {
		return 0, fmt.Errorf("%w: need %d closes, have %d", ErrNoData, window+1, len(closes))
	}

	recent := closes[len(closes)-(window+1):]
	returns := make([]float64, 0, window)
	for i := 1; i < len(recent); i++ {
		if recent[i-1] <= 0 || recent[i] <= 0 {
			return 0, fmt.Errorf("%w: non-positive close in history", ErrNoData)
		}
		returns = append(returns, math.Log(recent[i]/recent[i-1]))
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var sumSq float64
	for _, r := range returns {
		d := r - mean
		sumSq += d * d
	}
	// Sample standard deviation.
	std := math.Sqrt(sumSq / float64(len(returns)-1))

	vol := std * math.Sqrt(tradingDaysPerYear) * 100
	if !saneIV(vol) {
		return 0, fmt.Errorf("%w: realized vol %.2f%%", ErrOutOfRange, vol)
	}
	return vol, nil
}
