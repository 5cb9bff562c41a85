package contracts

import (
	"fmt"
	"math"

	"spx-engine/internal/analysis/indicators"
	"spx-engine/internal/models"
)

// IV timing signals and recommendations.
const (
	SignalTailwind = "tailwind"
	SignalHeadwind = "headwind"
	SignalNeutral  = "neutral"

	RecommendEnterNow = "enter_now"
	RecommendWait     = "wait"
	RecommendNeutral  = "neutral"
)

const (
	maxIVBias             = 6.0
	tailwindMinConfidence = 0.4
	waitMinConfidence     = 0.65
)

// BuildIVTimingSignal converts an IV forecast into an entry-timing overlay.
// Returns nil for a nil or non-finite forecast.
func BuildIVTimingSignal(f *models.IVForecast) *models.IVTimingSignal {
	if f == nil || !indicators.Finite(f.DeltaIV) || !indicators.Finite(f.Confidence) {
		return nil
	}
	confidence := indicators.Clamp(f.Confidence, 0, 1)
	magnitude := math.Min(1, math.Abs(f.DeltaIV)/2)
	bias := math.Min(maxIVBias, (2+4*magnitude)*confidence)

	s := &models.IVTimingSignal{
		Signal:         SignalNeutral,
		Recommendation: RecommendNeutral,
		DeltaIV:        indicators.Round(f.DeltaIV, 3),
		Confidence:     indicators.Round(confidence, 3),
		HorizonMinutes: f.HorizonMinutes,
	}
	switch {
	case f.Direction == models.IVUp && confidence >= tailwindMinConfidence:
		s.Signal = SignalTailwind
		s.Recommendation = RecommendEnterNow
		s.ScoreBias = indicators.Round(bias, 2)
		s.Reason = fmt.Sprintf("IV forecast rising %+.2f over %dm favors entering now.", f.DeltaIV, f.HorizonMinutes)
	case f.Direction == models.IVDown:
		s.Signal = SignalHeadwind
		s.ScoreBias = -indicators.Round(bias, 2)
		s.Reason = fmt.Sprintf("IV forecast falling %+.2f over %dm is a premium headwind.", f.DeltaIV, f.HorizonMinutes)
		if confidence >= waitMinConfidence {
			s.Recommendation = RecommendWait
			s.Reason = fmt.Sprintf("IV forecast falling %+.2f over %dm; waiting may buy cheaper premium.", f.DeltaIV, f.HorizonMinutes)
		}
	default:
		s.Reason = "IV forecast is flat; no timing edge."
	}
	return s
}

// vegaWeightedBias spreads the signal bias across candidates by relative vega.
func vegaWeightedBias(s *models.IVTimingSignal, candidates []models.OptionContract) func(models.OptionContract) float64 {
	if s == nil || s.ScoreBias == 0 {
		return nil
	}
	var maxVega float64
	for _, c := range candidates {
		if v := math.Abs(c.Vega); indicators.Finite(v) && v > maxVega {
			maxVega = v
		}
	}
	if maxVega <= 0 {
		return nil
	}
	return func(c models.OptionContract) float64 {
		v := math.Abs(c.Vega)
		if !indicators.Finite(v) {
			return 0
		}
		return s.ScoreBias * v / maxVega
	}
}
