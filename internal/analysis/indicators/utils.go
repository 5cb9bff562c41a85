// Package indicators computes intraday volatility measures from minute bars
// and hosts the shared numeric guards used across the decision engine.
package indicators

import (
	"math"

	"spx-engine/internal/models"
)

// Finite reports whether x is neither NaN nor infinite.
func Finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// FinitePtr reports whether p is non-nil and finite.
func FinitePtr(p *float64) bool {
	return p != nil && Finite(*p)
}

// Clamp bounds x to [lo, hi]. NaN maps to lo so callers fail toward the conservative bound.
func Clamp(x, lo, hi float64) float64 {
	if math.IsNaN(x) {
		return lo
	}
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Round rounds x to the given number of decimals.
func Round(x float64, decimals int) float64 {
	if !Finite(x) {
		return x
	}
	p := math.Pow(10, float64(decimals))
	return math.Round(x*p) / p
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// mean calculates the arithmetic mean of a slice of float64.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var total float64
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

// sampleStdDev is the n-1 standard deviation.
func sampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var variance float64
	for _, v := range values {
		diff := v - m
		variance += diff * diff
	}
	return math.Sqrt(variance / float64(len(values)-1))
}

// trueRange calculates the true range for a bar.
func trueRange(current, previous models.Bar) float64 {
	highLow := current.High - current.Low
	highClose := math.Abs(current.High - previous.Close)
	lowClose := math.Abs(current.Low - previous.Close)
	return math.Max(highLow, math.Max(highClose, lowClose))
}
