package ev

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spx-engine/internal/analysis/indicators"
)

func baseEVInput() AdaptiveEVInput {
	return AdaptiveEVInput{
		PWin:             0.6,
		Target1R:         1.5,
		Target2R:         3,
		VixValue:         indicators.Ptr(20.0),
		MinutesSinceOpen: indicators.Ptr(60),
	}
}

func TestCalculateAdaptiveEV_Default(t *testing.T) {
	res := CalculateAdaptiveEV(baseEVInput())

	assert.Equal(t, 0.6, res.AdjustedPWin)
	assert.Equal(t, 0.65, res.T1Weight)
	assert.Equal(t, 0.35, res.T2Weight)
	assert.InDelta(t, 2.025, res.BlendedWinR, 1e-9)
	assert.InDelta(t, 0.8375, res.ExpectedLossR, 1e-9)
	assert.Equal(t, DefaultSlippageR, res.SlippageR)
	assert.InDelta(t, 0.83, res.EvR, 1e-9)
	assert.False(t, res.Denied)
}

func TestCalculateAdaptiveEV_LateSessionDecay(t *testing.T) {
	in := baseEVInput()
	in.MinutesSinceOpen = indicators.Ptr(300)
	res := CalculateAdaptiveEV(in)

	assert.InDelta(t, 0.55, res.AdjustedPWin, 1e-9)
	assert.InDelta(t, 0.6869, res.EvR, 1e-4)

	assert.InDelta(t, 0.03, AdjustWinProbability(0.01, indicators.Ptr(300)), 1e-9)
	assert.InDelta(t, 0.95, AdjustWinProbability(1.4, nil), 1e-9)
	assert.InDelta(t, 0.05, AdjustWinProbability(math.NaN(), nil), 1e-9)
}

func TestTargetWeights(t *testing.T) {
	t1, t2 := TargetWeights(indicators.Ptr(30.0), nil)
	assert.Equal(t, 0.72, t1)
	assert.InDelta(t, 0.28, t2, 1e-9)

	t1, _ = TargetWeights(indicators.Ptr(12.0), nil)
	assert.Equal(t, 0.58, t1)

	t1, t2 = TargetWeights(indicators.Ptr(20.0), indicators.Ptr(0.5))
	assert.InDelta(t, 0.59, t1, 1e-9)
	assert.InDelta(t, 0.41, t2, 1e-9)

	// Partial is clamped to [0.25, 0.9].
	t1, _ = TargetWeights(nil, indicators.Ptr(2.0))
	assert.InDelta(t, 0.6*0.65+0.4*0.9, t1, 1e-9)
}

func TestExpectedLossR(t *testing.T) {
	assert.InDelta(t, 0.8375, ExpectedLossR(nil), 1e-9)
	assert.InDelta(t, 0.55, ExpectedLossR([]LossBucket{{RLoss: 1, Probability: 2}, {RLoss: 0.05, Probability: 2}}), 1e-9)
	assert.InDelta(t, 0.8375, ExpectedLossR([]LossBucket{{RLoss: 1, Probability: 0}}), 1e-9)
	assert.InDelta(t, 0.8375, ExpectedLossR([]LossBucket{{RLoss: math.NaN(), Probability: 1}}), 1e-9)
	assert.InDelta(t, 0.8375, ExpectedLossR([]LossBucket{{RLoss: 1, Probability: -1}, {RLoss: 1, Probability: 2}}), 1e-9)
}

func TestCalculateAdaptiveEV_SlippageClamped(t *testing.T) {
	in := baseEVInput()
	in.SlippageR = indicators.Ptr(3.0)
	assert.Equal(t, 0.5, CalculateAdaptiveEV(in).SlippageR)

	in.SlippageR = indicators.Ptr(-1.0)
	assert.Equal(t, 0.0, CalculateAdaptiveEV(in).SlippageR)

	in.SlippageR = indicators.Ptr(math.NaN())
	assert.Equal(t, DefaultSlippageR, CalculateAdaptiveEV(in).SlippageR)
}

func TestCalculateAdaptiveEV_FailsClosed(t *testing.T) {
	in := baseEVInput()
	in.Target1R = math.NaN()
	res := CalculateAdaptiveEV(in)
	assert.True(t, res.Denied)
	assert.Equal(t, DeniedEV, res.EvR)
	assert.Zero(t, res.BlendedWinR)

	// Denied results still encode.
	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"denied":true`)

	in = baseEVInput()
	in.Target2R = math.Inf(1)
	assert.True(t, CalculateAdaptiveEV(in).Denied)
}

func TestCalculateAdaptiveEV_MinusOneIsNotDenied(t *testing.T) {
	// 0.05*0.1 - 0.95*1 - 0.055 rounds to exactly -1.
	in := AdaptiveEVInput{
		PWin:             0.05,
		Target1R:         0.1,
		Target2R:         0.1,
		LossDistribution: []LossBucket{{RLoss: 1, Probability: 1}},
		SlippageR:        indicators.Ptr(0.055),
	}
	res := CalculateAdaptiveEV(in)
	assert.Equal(t, DeniedEV, res.EvR)
	assert.False(t, res.Denied)
}

func TestCalculateAdaptiveEV_TargetsFloored(t *testing.T) {
	in := baseEVInput()
	in.Target1R = -2
	in.Target2R = 0
	res := CalculateAdaptiveEV(in)
	assert.InDelta(t, 0.1, res.BlendedWinR, 1e-9)
}

// Property: target weights sum to 1 and the EV is finite or the deny value.
func TestProperty_EVWeightsAndFiniteness(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("weights sum to 1, EV finite", prop.ForAll(
		func(pWin, r1, r2, vix, partial, slip float64, minutes int) bool {
			res := CalculateAdaptiveEV(AdaptiveEVInput{
				PWin:             pWin,
				Target1R:         r1,
				Target2R:         r2,
				VixValue:         &vix,
				MinutesSinceOpen: &minutes,
				PartialAtT1:      &partial,
				SlippageR:        &slip,
			})
			if math.Abs(res.T1Weight+res.T2Weight-1) > 2e-4 {
				return false
			}
			if res.AdjustedPWin < 0.03 || res.AdjustedPWin > 0.95 {
				return false
			}
			return indicators.Finite(res.EvR)
		},
		gen.Float64Range(-1, 2),
		gen.Float64Range(-5, 20),
		gen.Float64Range(-5, 20),
		gen.Float64Range(5, 80),
		gen.Float64Range(0, 1),
		gen.Float64Range(-1, 1),
		gen.IntRange(0, 390),
	))

	properties.TestingRun(t)
}

// Property: EV never rises when win probability falls, all else equal.
func TestProperty_EVMonotonicInPWin(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("EV non-decreasing in pWin", prop.ForAll(
		func(a, b float64) bool {
			lo, hi := math.Min(a, b), math.Max(a, b)
			in := baseEVInput()
			in.PWin = lo
			low := CalculateAdaptiveEV(in).EvR
			in.PWin = hi
			return CalculateAdaptiveEV(in).EvR >= low
		},
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
	))

	properties.TestingRun(t)
}
