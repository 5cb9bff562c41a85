package engine

import (
	"spx-engine/internal/analysis/indicators"
	"spx-engine/internal/gate"
	"spx-engine/internal/logging"
	"spx-engine/internal/models"
	"spx-engine/internal/stops"
)

// adaptiveStop computes the live stop. Unusable geometry keeps the base stop.
func (e *Engine) adaptiveStop(s models.Setup, decision gate.EnvironmentGateDecision, atr, price *float64, gex *models.GEXLevels) *StopSummary {
	in := stops.AdaptiveStopInput{
		Direction:                  s.Direction,
		EntryLow:                   s.EntryZone.Low,
		EntryHigh:                  s.EntryZone.High,
		BaseStop:                   s.Stop,
		SetupType:                  s.Type,
		Regime:                     s.Regime,
		ATR14:                      atr,
		ATRStopFloorEnabled:        e.stops.ATRStopFloorEnabled,
		VixRegime:                  decision.VixRegime,
		VixStopScalingEnabled:      e.stops.VixStopScalingEnabled,
		GEXLevels:                  gex,
		ReferencePrice:             price,
		GEXMagnitudeScalingEnabled: e.stops.GEXMagnitudeScalingEnabled,
	}
	if indicators.Finite(e.stops.ATRStopMultiplier) && e.stops.ATRStopMultiplier > 0 {
		in.ATRStopMultiplier = indicators.Ptr(e.stops.ATRStopMultiplier)
	}
	if gex != nil {
		in.NetGEX = gex.NetGEX
	}

	out, err := stops.CalculateAdaptiveStop(in)
	if err != nil {
		logger := logging.WithSetup(e.logger, s.ID)
		logger.Warn().Err(err).Float64("base_stop", s.Stop).Msg("Adaptive stop unavailable, keeping base stop")
		return &StopSummary{BaseStop: s.Stop, Fallback: true}
	}
	return &StopSummary{BaseStop: s.Stop, Output: &out}
}
