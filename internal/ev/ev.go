// Package ev scores setup quality as an expected value in R-multiples.
package ev

import (
	"math"

	"spx-engine/internal/analysis/indicators"
)

const (
	// DeniedEV is the EvR reported when the computation is not finite.
	DeniedEV = -1.0

	DefaultSlippageR = 0.05

	lateSessionMinutes = 270 // 14:00 ET
	lateSessionPenalty = 0.05
	minTargetR         = 0.1
	minLossR           = 0.1
)

// LossBucket is one outcome of the loss-severity distribution.
type LossBucket struct {
	RLoss       float64 `json:"rLoss" yaml:"rLoss"`
	Probability float64 `json:"probability" yaml:"probability"`
}

// DefaultLossDistribution models partial stop-outs as well as full losses.
var DefaultLossDistribution = []LossBucket{
	{RLoss: 0.5, Probability: 0.20},
	{RLoss: 0.75, Probability: 0.35},
	{RLoss: 1.0, Probability: 0.35},
	{RLoss: 1.25, Probability: 0.10},
}

// AdaptiveEVInput describes one setup's payoff profile.
type AdaptiveEVInput struct {
	PWin     float64 `json:"pWin" yaml:"pWin"`
	Target1R float64 `json:"target1R" yaml:"target1R"`
	Target2R float64 `json:"target2R" yaml:"target2R"`

	VixValue         *float64 `json:"vixValue,omitempty" yaml:"vixValue,omitempty"`
	MinutesSinceOpen *int     `json:"minutesSinceOpen,omitempty" yaml:"minutesSinceOpen,omitempty"`
	// PartialAtT1 is the fraction of the position taken off at target 1.
	PartialAtT1      *float64     `json:"partialAtT1,omitempty" yaml:"partialAtT1,omitempty"`
	LossDistribution []LossBucket `json:"lossDistribution,omitempty" yaml:"lossDistribution,omitempty"`
	SlippageR        *float64     `json:"slippageR,omitempty" yaml:"slippageR,omitempty"`
}

// AdaptiveEVResult is the scored expected value.
type AdaptiveEVResult struct {
	EvR           float64 `json:"evR"`
	AdjustedPWin  float64 `json:"adjustedPWin"`
	BlendedWinR   float64 `json:"blendedWinR"`
	ExpectedLossR float64 `json:"expectedLossR"`
	T1Weight      float64 `json:"t1Weight"`
	T2Weight      float64 `json:"t2Weight"`
	SlippageR     float64 `json:"slippageR"`
	// Denied is set when the EV failed closed; EvR is then DeniedEV.
	Denied bool `json:"denied"`
}

// AdjustWinProbability clamps pWin and applies the afternoon decay.
func AdjustWinProbability(pWin float64, minutesSinceOpen *int) float64 {
	p := indicators.Clamp(pWin, 0.05, 0.95)
	if minutesSinceOpen != nil && *minutesSinceOpen >= lateSessionMinutes {
		p -= lateSessionPenalty
	}
	return indicators.Clamp(p, 0.03, 0.95)
}

// TargetWeights returns the T1/T2 weights. They always sum to 1.
func TargetWeights(vix *float64, partialAtT1 *float64) (t1, t2 float64) {
	t1 = 0.65
	if indicators.FinitePtr(vix) {
		switch {
		case *vix > 25:
			t1 = 0.72
		case *vix < 15:
			t1 = 0.58
		}
	}
	if indicators.FinitePtr(partialAtT1) {
		partial := indicators.Clamp(*partialAtT1, 0.25, 0.9)
		t1 = 0.6*t1 + 0.4*partial
	}
	return t1, 1 - t1
}

// ExpectedLossR is the probability-weighted loss. Invalid or empty
// distributions fall back to DefaultLossDistribution.
func ExpectedLossR(dist []LossBucket) float64 {
	if v, ok := weightedLoss(dist); ok {
		return v
	}
	v, _ := weightedLoss(DefaultLossDistribution)
	return v
}

func weightedLoss(dist []LossBucket) (float64, bool) {
	if len(dist) == 0 {
		return 0, false
	}
	var total float64
	for _, b := range dist {
		if !indicators.Finite(b.RLoss) || !indicators.Finite(b.Probability) || b.Probability < 0 {
			return 0, false
		}
		total += b.Probability
	}
	if total <= 0 {
		return 0, false
	}
	var loss float64
	for _, b := range dist {
		loss += math.Max(b.RLoss, minLossR) * (b.Probability / total)
	}
	return loss, true
}

// CalculateAdaptiveEV scores a setup. A non-finite result is DeniedEV.
func CalculateAdaptiveEV(in AdaptiveEVInput) AdaptiveEVResult {
	p := AdjustWinProbability(in.PWin, in.MinutesSinceOpen)
	t1, t2 := TargetWeights(in.VixValue, in.PartialAtT1)

	r1 := math.Max(in.Target1R, minTargetR)
	r2 := math.Max(in.Target2R, minTargetR)
	winR := t1*r1 + t2*r2
	lossR := ExpectedLossR(in.LossDistribution)

	slip := DefaultSlippageR
	if indicators.FinitePtr(in.SlippageR) {
		slip = indicators.Clamp(*in.SlippageR, 0, 0.5)
	}

	res := AdaptiveEVResult{
		AdjustedPWin:  finiteOrZero(p),
		BlendedWinR:   finiteOrZero(winR),
		ExpectedLossR: finiteOrZero(lossR),
		T1Weight:      finiteOrZero(t1),
		T2Weight:      finiteOrZero(t2),
		SlippageR:     slip,
	}
	v := p*winR - (1-p)*lossR - slip
	if !indicators.Finite(v) {
		res.EvR = DeniedEV
		res.Denied = true
		return res
	}
	res.EvR = indicators.Round(v, 4)
	return res
}

// finiteOrZero rounds x for output; non-finite values are reported as 0.
func finiteOrZero(x float64) float64 {
	if !indicators.Finite(x) {
		return 0
	}
	return indicators.Round(x, 4)
}
