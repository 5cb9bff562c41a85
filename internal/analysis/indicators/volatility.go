package indicators

import (
	"math"

	"spx-engine/internal/models"
)

// DefaultRealizedVolLookback is the number of log returns in the realized-vol window.
const DefaultRealizedVolLookback = 22

// minuteAnnualization scales a one-minute stdev to an annualized percentage.
var minuteAnnualization = math.Sqrt(252*390) * 100

// CalculateRealizedVolatility returns the annualized realized volatility in
// percent over the last lookback log returns, rounded to 2 decimals. Returns
// nil when fewer than lookback+1 bars exist or any close is non-positive.
func CalculateRealizedVolatility(bars []models.Bar, lookback int) *float64 {
	if lookback <= 0 {
		lookback = DefaultRealizedVolLookback
	}
	if len(bars) < lookback+1 {
		return nil
	}
	sorted := models.SortBars(bars)
	window := sorted[len(sorted)-(lookback+1):]

	returns := make([]float64, 0, lookback)
	for i := 1; i < len(window); i++ {
		prev, cur := window[i-1].Close, window[i].Close
		if prev <= 0 || cur <= 0 {
			continue
		}
		r := math.Log(cur / prev)
		if Finite(r) {
			returns = append(returns, r)
		}
	}
	if len(returns) < 2 {
		return nil
	}

	rv := Round(sampleStdDev(returns)*minuteAnnualization, 2)
	if !Finite(rv) {
		return nil
	}
	return &rv
}
