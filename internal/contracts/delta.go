// Package contracts selects, scores and sizes an SPX option contract for an
// actionable setup.
package contracts

import (
	"spx-engine/internal/analysis/indicators"
	"spx-engine/internal/models"
)

const (
	minDeltaTarget     = 0.12
	maxDeltaTarget     = 0.55
	defaultDeltaTarget = 0.18
)

// deltaTargets is the base |delta| each strategy wants before regime adjustment.
var deltaTargets = map[models.SetupType]float64{
	models.SetupORBBreakout:       0.32,
	models.SetupBreakoutVacuum:    0.28,
	models.SetupTrendContinuation: 0.30,
	models.SetupTrendPullback:     0.26,
	models.SetupFlipReclaim:       0.24,
	models.SetupMeanReversion:     0.22,
	models.SetupFadeAtWall:        0.18,
}

// DeltaTargetForSetup returns the |delta| the selector aims for.
func DeltaTargetForSetup(setupType models.SetupType, regime models.Regime) float64 {
	base, ok := deltaTargets[setupType]
	if !ok {
		base = defaultDeltaTarget
	}

	switch {
	case regime == models.RegimeRanging || regime == models.RegimeCompression:
		base += 0.06
	case (regime == models.RegimeTrending || regime == models.RegimeBreakout) && setupType.IsMomentumFamily():
		base -= 0.04
	case regime == models.RegimeTrending && setupType == models.SetupTrendPullback:
		base -= 0.02
	}
	return indicators.Round(indicators.Clamp(base, minDeltaTarget, maxDeltaTarget), 4)
}

// deltaBand is the accepted |delta| interval for one filter pass.
type deltaBand struct {
	min, max float64
}

func deltaBandForSetup(setup models.Setup, b passBounds) deltaBand {
	target := DeltaTargetForSetup(setup.Type, setup.Regime)
	tolerance := 0.14
	switch {
	case b.relaxed:
		tolerance = 0.22
	case setup.Regime == models.RegimeBreakout || setup.Regime == models.RegimeTrending:
		tolerance = 0.12
	}
	lo := indicators.Clamp(target-tolerance, b.minDelta, b.maxDelta)
	floor := lo + 0.02
	if floor > b.maxDelta {
		floor = b.maxDelta
	}
	hi := indicators.Clamp(target+tolerance, floor, b.maxDelta)
	return deltaBand{min: lo, max: hi}
}

func (d deltaBand) contains(absDelta float64) bool {
	return absDelta >= d.min && absDelta <= d.max
}
