package contracts

import (
	"math"

	"spx-engine/internal/analysis/indicators"
	"spx-engine/internal/models"
)

const (
	// realizedVolProxy is the IV treated as fair for intraday SPX options.
	realizedVolProxy = 0.25
	// sessionQuarterHours is the number of 15-minute bars in a regular session.
	sessionQuarterHours = 26
)

// ScoreContractHealth rates execution quality of a contract from 0 to 100.
func ScoreContractHealth(c models.OptionContract) models.ContractHealth {
	spreadPct := 100.0
	if sp := c.SpreadPct(); indicators.Finite(sp) {
		spreadPct = sp * 100
	}
	liquidity := LiquidityScore(c)
	theta15 := math.Abs(c.Theta) * ContractMultiplier / sessionQuarterHours
	iv := math.Max(0, c.ImpliedVolatility)

	spreadPenalty := math.Min(45, spreadPct/20*45)
	liquidityPenalty := 0.0
	if liquidity < 70 {
		liquidityPenalty = math.Min(25, (70-liquidity)*0.45)
	}
	thetaPenalty := math.Min(20, theta15/20*20)
	ivPenalty := 0.0
	if iv > 0.45 {
		ivPenalty = math.Min(10, (iv-0.45)*80)
	}

	// Tier the unrounded score; only the reported score is rounded.
	raw := indicators.Clamp(100-spreadPenalty-liquidityPenalty-thetaPenalty-ivPenalty, 0, 100)
	return models.ContractHealth{
		Score:             indicators.Round(raw, 1),
		Tier:              HealthTierFor(raw),
		SpreadPct:         indicators.Round(spreadPct, 2),
		ThetaRiskPer15Min: indicators.Round(theta15, 2),
		IVVsRealized:      indicators.Round(iv-realizedVolProxy, 3),
	}
}

// HealthTierFor buckets a health score.
func HealthTierFor(score float64) models.HealthTier {
	switch {
	case score >= 75:
		return models.HealthGreen
	case score >= 55:
		return models.HealthAmber
	}
	return models.HealthRed
}
