// Package patterns classifies trigger-bar price action: candlestick shape,
// zone penetration, approach speed and volume spikes.
package patterns

import (
	"math"

	"spx-engine/internal/models"
)

// CandlestickDetector classifies single and two-bar candlestick patterns.
type CandlestickDetector struct {
	dojiBodyRatio      float64 // Body as fraction of range for doji
	dojiWickMultiple   float64 // Each wick must be >= this x body
	hammerWickMultiple float64 // Long wick >= this x body
	hammerWickRatio    float64 // Long wick >= this fraction of range
	hammerTailRatio    float64 // Short wick <= this fraction of range
}

// NewCandlestickDetector creates a new candlestick pattern detector.
func NewCandlestickDetector() *CandlestickDetector {
	return &CandlestickDetector{
		dojiBodyRatio:      0.18,
		dojiWickMultiple:   1.2,
		hammerWickMultiple: 2.0,
		hammerWickRatio:    0.35,
		hammerTailRatio:    0.20,
	}
}

var defaultDetector = NewCandlestickDetector()

// DetectCandlePattern classifies current, using prior for two-bar patterns.
// prior may be nil.
func DetectCandlePattern(current models.Bar, prior *models.Bar) models.CandlePattern {
	return defaultDetector.Detect(current, prior)
}

// Detect classifies current. Engulfing takes precedence when prior is present.
func (d *CandlestickDetector) Detect(current models.Bar, prior *models.Bar) models.CandlePattern {
	rng := candleRange(current)
	if !(rng > 0) || math.IsInf(rng, 0) {
		return models.PatternNone
	}

	if prior != nil {
		if p := d.detectEngulfing(current, *prior); p != models.PatternNone {
			return p
		}
	}

	body := bodySize(current)
	upper := upperShadow(current)
	lower := lowerShadow(current)

	switch {
	case body <= rng*d.dojiBodyRatio && upper >= body*d.dojiWickMultiple && lower >= body*d.dojiWickMultiple:
		return models.PatternDoji
	case lower >= math.Max(body*d.hammerWickMultiple, rng*d.hammerWickRatio) &&
		upper <= math.Max(body, rng*d.hammerTailRatio):
		return models.PatternHammer
	case upper >= math.Max(body*d.hammerWickMultiple, rng*d.hammerWickRatio) &&
		lower <= math.Max(body, rng*d.hammerTailRatio):
		return models.PatternInvertedHammer
	}
	return models.PatternNone
}

// detectEngulfing requires opposite colors and the current body covering the prior body.
func (d *CandlestickDetector) detectEngulfing(current, prior models.Bar) models.CandlePattern {
	if bodySize(current) == 0 || bodySize(prior) == 0 {
		return models.PatternNone
	}
	curHigh, curLow := math.Max(current.Open, current.Close), math.Min(current.Open, current.Close)
	priorHigh, priorLow := math.Max(prior.Open, prior.Close), math.Min(prior.Open, prior.Close)
	if curHigh < priorHigh || curLow > priorLow {
		return models.PatternNone
	}

	switch {
	case isBullish(current) && isBearish(prior):
		return models.PatternEngulfingBull
	case isBearish(current) && isBullish(prior):
		return models.PatternEngulfingBear
	}
	return models.PatternNone
}

// Helper functions for candle analysis
func bodySize(c models.Bar) float64 {
	return math.Abs(c.Close - c.Open)
}

func candleRange(c models.Bar) float64 {
	return c.High - c.Low
}

func upperShadow(c models.Bar) float64 {
	return c.High - math.Max(c.Open, c.Close)
}

func lowerShadow(c models.Bar) float64 {
	return math.Min(c.Open, c.Close) - c.Low
}

func isBullish(c models.Bar) bool {
	return c.Close > c.Open
}

func isBearish(c models.Bar) bool {
	return c.Close < c.Open
}
