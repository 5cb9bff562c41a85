// Package stops computes the adaptive stop distance for a setup.
package stops

import (
	"math"

	"spx-engine/internal/analysis/indicators"
	"spx-engine/internal/errors"
	"spx-engine/internal/gate"
	"spx-engine/internal/models"
)

const (
	// MinRiskPoints is the smallest stop distance ever returned.
	MinRiskPoints = 0.35

	DefaultATRStopMultiplier = 0.9
)

// meanReversionCap bounds the stop distance of mean_reversion setups per regime.
type meanReversionCap struct {
	maxPoints     float64
	atrMultiplier float64
}

var meanReversionCaps = map[models.Regime]meanReversionCap{
	models.RegimeCompression: {maxPoints: 8, atrMultiplier: 0.8},
	models.RegimeRanging:     {maxPoints: 9, atrMultiplier: 1.0},
	models.RegimeTrending:    {maxPoints: 10, atrMultiplier: 1.2},
	models.RegimeBreakout:    {maxPoints: 12, atrMultiplier: 1.5},
}

var vixStopScales = map[gate.VixRegime]float64{
	gate.VixNormal:   1.0,
	gate.VixElevated: 1.3,
	gate.VixExtreme:  1.6,
}

// AdaptiveStopInput describes one setup's stop geometry and market context.
type AdaptiveStopInput struct {
	Direction models.Direction
	EntryLow  float64
	EntryHigh float64
	BaseStop  float64
	SetupType models.SetupType
	Regime    models.Regime

	// GeometryStopScale defaults to 1.
	GeometryStopScale   *float64
	ATR14               *float64
	ATRStopFloorEnabled bool
	// ATRStopMultiplier defaults to 0.9.
	ATRStopMultiplier *float64

	VixRegime             gate.VixRegime
	VixStopScalingEnabled bool

	NetGEX *float64
	// GEXDistanceBp wins over the distance derived from GEXLevels.
	GEXDistanceBp              *float64
	GEXLevels                  *models.GEXLevels
	ReferencePrice             *float64
	GEXMagnitudeScalingEnabled bool
}

// StopScale holds the multiplicative factors applied to the base risk.
type StopScale struct {
	Geometry       float64 `json:"geometry"`
	VIX            float64 `json:"vix"`
	GEXDirectional float64 `json:"gexDirectional"`
	GEXMagnitude   float64 `json:"gexMagnitude"`
	Total          float64 `json:"total"`
}

// AdaptiveStopOutput is the live stop for a setup.
type AdaptiveStopOutput struct {
	Stop                   float64   `json:"stop"`
	RiskPoints             float64   `json:"riskPoints"`
	BaseRiskPoints         float64   `json:"baseRiskPoints"`
	ATRFloorPoints         *float64  `json:"atrFloorPoints"`
	MeanReversionCapPoints *float64  `json:"meanReversionCapPoints,omitempty"`
	Scale                  StopScale `json:"scale"`
}

// ResolveVixStopScale widens stops as volatility rises. Unknown regimes scale by 1.
func ResolveVixStopScale(regime gate.VixRegime) float64 {
	if s, ok := vixStopScales[regime]; ok {
		return s
	}
	return 1
}

// DeriveNearestGEXDistanceBp returns the smallest distance, in basis points of
// the reference price, to any known GEX level. nil when nothing is measurable.
func DeriveNearestGEXDistanceBp(referencePrice float64, levels models.GEXLevels) *float64 {
	if !indicators.Finite(referencePrice) || referencePrice <= 0 {
		return nil
	}
	var nearest *float64
	for _, level := range []*float64{levels.CallWall, levels.PutWall, levels.FlipPoint} {
		if !indicators.FinitePtr(level) {
			continue
		}
		bp := math.Abs(*level-referencePrice) / referencePrice * 10000
		if nearest == nil || bp < *nearest {
			nearest = indicators.Ptr(bp)
		}
	}
	if nearest == nil {
		return nil
	}
	return indicators.Ptr(indicators.Round(*nearest, 2))
}

// ResolveGEXDirectionalScale tightens stops in positive gamma and widens
// mean-reversion stops in negative gamma.
func ResolveGEXDirectionalScale(netGEX *float64, setupType models.SetupType) float64 {
	if !indicators.FinitePtr(netGEX) {
		return 1
	}
	switch {
	case *netGEX > 0:
		return 0.9
	case *netGEX < 0 && setupType.IsMeanReversionFamily():
		return 1.1
	}
	return 1
}

// ResolveGEXMagnitudeScale buckets the nearest GEX distance.
func ResolveGEXMagnitudeScale(distanceBp *float64) float64 {
	if !indicators.FinitePtr(distanceBp) {
		return 1
	}
	switch d := *distanceBp; {
	case d > 500:
		return 1.2
	case d > 200:
		return 1.0
	}
	return 0.7
}

// MeanReversionCapPoints returns the stop distance ceiling for a mean_reversion
// setup in the given regime. ok is false for regimes without a cap.
func MeanReversionCapPoints(regime models.Regime, atr14 *float64) (float64, bool) {
	c, ok := meanReversionCaps[regime]
	if !ok {
		return 0, false
	}
	limit := c.maxPoints
	if indicators.FinitePtr(atr14) && *atr14 > 0 {
		limit = math.Min(c.maxPoints, *atr14*c.atrMultiplier)
	}
	return math.Max(MinRiskPoints, limit), true
}

// CalculateAdaptiveStop composes the geometric stop with the ATR floor and
// volatility and gamma scaling. Returns ErrInvalidInput for non-finite prices.
func CalculateAdaptiveStop(in AdaptiveStopInput) (AdaptiveStopOutput, error) {
	if !indicators.Finite(in.EntryLow) || !indicators.Finite(in.EntryHigh) || !indicators.Finite(in.BaseStop) {
		return AdaptiveStopOutput{}, errors.Wrap(errors.ErrInvalidInput, "adaptive stop requires finite entry and base stop")
	}

	entryMid := (in.EntryLow + in.EntryHigh) / 2
	baseRisk := math.Max(MinRiskPoints, math.Abs(entryMid-in.BaseStop))
	effective := baseRisk

	out := AdaptiveStopOutput{BaseRiskPoints: indicators.Round(baseRisk, 2)}

	if in.ATRStopFloorEnabled && indicators.FinitePtr(in.ATR14) && *in.ATR14 > 0 {
		mult := DefaultATRStopMultiplier
		if indicators.FinitePtr(in.ATRStopMultiplier) {
			mult = indicators.Clamp(*in.ATRStopMultiplier, 0.1, 3)
		}
		floor := *in.ATR14 * mult
		out.ATRFloorPoints = indicators.Ptr(indicators.Round(floor, 2))
		effective = math.Max(effective, floor)
	}

	geometry := 1.0
	if indicators.FinitePtr(in.GeometryStopScale) && *in.GeometryStopScale > 0 {
		geometry = indicators.Clamp(*in.GeometryStopScale, 0.2, 4)
	}
	vix := 1.0
	if in.VixStopScalingEnabled {
		vix = ResolveVixStopScale(in.VixRegime)
	}
	directional := ResolveGEXDirectionalScale(in.NetGEX, in.SetupType)
	magnitude := 1.0
	if in.GEXMagnitudeScalingEnabled {
		distance := in.GEXDistanceBp
		if !indicators.FinitePtr(distance) && in.GEXLevels != nil {
			ref := entryMid
			if indicators.FinitePtr(in.ReferencePrice) {
				ref = *in.ReferencePrice
			}
			distance = DeriveNearestGEXDistanceBp(ref, *in.GEXLevels)
		}
		magnitude = ResolveGEXMagnitudeScale(distance)
	}
	total := indicators.Clamp(geometry*vix*directional*magnitude, 0.2, 5)
	out.Scale = StopScale{
		Geometry:       geometry,
		VIX:            vix,
		GEXDirectional: directional,
		GEXMagnitude:   magnitude,
		Total:          indicators.Round(total, 4),
	}

	risk := math.Max(MinRiskPoints, effective*total)
	if in.SetupType == models.SetupMeanReversion {
		if limit, ok := MeanReversionCapPoints(in.Regime, in.ATR14); ok {
			out.MeanReversionCapPoints = indicators.Ptr(indicators.Round(limit, 2))
			risk = math.Min(risk, limit)
		}
	}
	risk = indicators.Round(risk, 2)
	if !indicators.Finite(risk) {
		return AdaptiveStopOutput{}, errors.Wrap(errors.ErrInvalidInput, "adaptive stop produced non-finite risk")
	}

	out.RiskPoints = risk
	if in.Direction == models.DirectionBearish {
		out.Stop = indicators.Round(entryMid+risk, 2)
	} else {
		out.Stop = indicators.Round(entryMid-risk, 2)
	}
	return out, nil
}
