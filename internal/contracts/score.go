package contracts

import (
	"math"
	"sort"
	"time"

	"spx-engine/internal/analysis/indicators"
	"spx-engine/internal/models"
)

const (
	scoreBaseline      = 100.0
	maxRanked          = 4
	spreadPenaltyScale = 0.24
)

// ScoreContract ranks a filtered candidate; higher is better. The result may
// be non-finite for degenerate quotes and such candidates are dropped by Rank.
func ScoreContract(setup models.Setup, c models.OptionContract, now time.Time) float64 {
	target := DeltaTargetForSetup(setup.Type, setup.Regime)
	deltaPenalty := math.Min(1, math.Abs(math.Abs(c.Delta)-target)/0.2) * 45

	spreadPenalty := math.Min(1, c.SpreadPct()/spreadPenaltyScale) * 35
	absSpreadPenalty := math.Min(10, math.Max(0, c.Spread())*6)

	oi := math.Max(0, float64(c.OpenInterest))
	vol := math.Max(0, float64(c.Volume))
	liquidityBonus := math.Min(18, 4*math.Log10(oi+1)+3*math.Log10(vol+1))

	gammaBonus := math.Min(10, math.Max(0, c.Gamma)*250)

	thetaPenalty := math.Max(0, math.Abs(c.Theta)-thetaTolerance(DaysToExpiry(c.Expiry, now))) * 8

	return scoreBaseline - deltaPenalty - spreadPenalty - absSpreadPenalty - thetaPenalty + liquidityBonus + gammaBonus
}

func thetaTolerance(dte int) float64 {
	switch {
	case dte <= 1:
		return 1.3
	case dte <= 3:
		return 1.0
	}
	return 0.8
}

// LiquidityScore blends spread, open interest and volume into 0-100.
func LiquidityScore(c models.OptionContract) float64 {
	spreadScore := 0.0
	if sp := c.SpreadPct(); indicators.Finite(sp) {
		spreadScore = indicators.Clamp(100-sp*180, 0, 100)
	}
	oiScore := indicators.Clamp(22*math.Log10(math.Max(0, float64(c.OpenInterest))+1), 0, 100)
	volScore := indicators.Clamp(24*math.Log10(math.Max(0, float64(c.Volume))+1), 0, 100)
	return indicators.Round(0.55*spreadScore+0.25*oiScore+0.20*volScore, 1)
}

// RankedContract is a scored candidate.
type RankedContract struct {
	Contract models.OptionContract
	Score    float64
}

// Rank scores candidates and orders them best first, keeping the top four.
func Rank(setup models.Setup, candidates []models.OptionContract, now time.Time, bias func(models.OptionContract) float64) []RankedContract {
	ranked := make([]RankedContract, 0, len(candidates))
	for _, c := range candidates {
		score := ScoreContract(setup, c, now)
		if bias != nil {
			score += bias(c)
		}
		if !indicators.Finite(score) {
			continue
		}
		ranked = append(ranked, RankedContract{Contract: c, Score: score})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		switch {
		case a.Score != b.Score:
			return a.Score > b.Score
		case a.Contract.OpenInterest != b.Contract.OpenInterest:
			return a.Contract.OpenInterest > b.Contract.OpenInterest
		case a.Contract.Volume != b.Contract.Volume:
			return a.Contract.Volume > b.Contract.Volume
		}
		return a.Contract.Strike < b.Contract.Strike
	})
	if len(ranked) > maxRanked {
		ranked = ranked[:maxRanked]
	}
	return ranked
}

// CostBandFor buckets the per-contract debit.
func CostBandFor(ask float64) models.CostBand {
	switch debit := ask * ContractMultiplier; {
	case debit <= 1200:
		return models.CostDiscount
	case debit <= 2700:
		return models.CostBalanced
	}
	return models.CostExpensive
}
