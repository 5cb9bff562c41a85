package models

import (
	"fmt"
	"math"
)

// OptionType is call or put.
type OptionType string

const (
	OptionCall OptionType = "call"
	OptionPut  OptionType = "put"
)

// OptionGreeks represents option Greeks.
type OptionGreeks struct {
	Delta float64 `json:"delta" yaml:"delta"`
	Gamma float64 `json:"gamma" yaml:"gamma"`
	Theta float64 `json:"theta" yaml:"theta"`
	Vega  float64 `json:"vega" yaml:"vega"`
	Rho   float64 `json:"rho" yaml:"rho"`
}

// OptionContract is one listed contract from the options chain. Supplied
// fresh per request and never persisted.
type OptionContract struct {
	Symbol            string     `json:"symbol" yaml:"symbol"`
	Strike            float64    `json:"strike" yaml:"strike" validate:"gt=0"`
	Expiry            string     `json:"expiry" yaml:"expiry" validate:"required,datetime=2006-01-02"`
	Type              OptionType `json:"type" yaml:"type" validate:"oneof=call put"`
	Bid               float64    `json:"bid" yaml:"bid" validate:"gte=0"`
	Ask               float64    `json:"ask" yaml:"ask" validate:"gte=0"`
	Last              float64    `json:"last" yaml:"last"`
	Volume            int64      `json:"volume" yaml:"volume" validate:"gte=0"`
	OpenInterest      int64      `json:"openInterest" yaml:"openInterest" validate:"gte=0"`
	OptionGreeks      `yaml:",inline"`
	ImpliedVolatility float64 `json:"impliedVolatility" yaml:"impliedVolatility"`
	IntrinsicValue    float64 `json:"intrinsicValue" yaml:"intrinsicValue"`
	ExtrinsicValue    float64 `json:"extrinsicValue" yaml:"extrinsicValue"`
}

// Mid returns the bid/ask midpoint.
func (c OptionContract) Mid() float64 {
	return (c.Bid + c.Ask) / 2
}

// Spread returns ask minus bid.
func (c OptionContract) Spread() float64 {
	return c.Ask - c.Bid
}

// SpreadPct returns the spread as a fraction of mid, or +Inf for a non-positive mid.
func (c OptionContract) SpreadPct() float64 {
	mid := c.Mid()
	if mid <= 0 {
		return math.Inf(1)
	}
	return c.Spread() / mid
}

// Description renders "SPX 6000C 2026-02-20".
func (c OptionContract) Description() string {
	suffix := "C"
	if c.Type == OptionPut {
		suffix = "P"
	}
	symbol := c.Symbol
	if symbol == "" {
		symbol = "SPX"
	}
	return fmt.Sprintf("%s %g%s %s", symbol, c.Strike, suffix, c.Expiry)
}

// OptionsChain is the provider response for one expiry.
type OptionsChain struct {
	Expiry string           `json:"expiry" yaml:"expiry"`
	Calls  []OptionContract `json:"calls" yaml:"calls"`
	Puts   []OptionContract `json:"puts" yaml:"puts"`
}

// All returns calls followed by puts.
func (c OptionsChain) All() []OptionContract {
	out := make([]OptionContract, 0, len(c.Calls)+len(c.Puts))
	out = append(out, c.Calls...)
	return append(out, c.Puts...)
}

// HealthTier buckets a contract health score.
type HealthTier string

const (
	HealthGreen HealthTier = "green"
	HealthAmber HealthTier = "amber"
	HealthRed   HealthTier = "red"
)

// CostBand buckets per-contract premium.
type CostBand string

const (
	CostDiscount  CostBand = "discount"
	CostBalanced  CostBand = "balanced"
	CostExpensive CostBand = "expensive"
)

// AlternativeTag explains why an alternative contract is offered.
type AlternativeTag string

const (
	TagTighter          AlternativeTag = "tighter"
	TagSafer            AlternativeTag = "safer"
	TagHigherConviction AlternativeTag = "higher_conviction"
)

// ContractHealth is the 0-100 execution-quality score of a contract.
type ContractHealth struct {
	Score             float64    `json:"score"`
	Tier              HealthTier `json:"tier"`
	SpreadPct         float64    `json:"spreadPct"`
	ThetaRiskPer15Min float64    `json:"thetaRiskPer15Min"`
	IVVsRealized      float64    `json:"ivVsRealized"`
}

// ContractSizing is the recommended position size under account risk limits.
type ContractSizing struct {
	MaxRiskDollars         float64 `json:"maxRiskDollars"`
	PerContractDebit       float64 `json:"perContractDebit"`
	ContractsByRisk        *int    `json:"contractsByRisk,omitempty"`
	ContractsByBuyingPower *int    `json:"contractsByBuyingPower,omitempty"`
	RecommendedContracts   int     `json:"recommendedContracts"`
	BlockedReason          string  `json:"blockedReason,omitempty"`
}

// IVTimingSignal is the entry-timing overlay derived from an IV forecast.
type IVTimingSignal struct {
	Signal         string  `json:"signal"`
	Recommendation string  `json:"recommendation"`
	ScoreBias      float64 `json:"scoreBias"`
	DeltaIV        float64 `json:"deltaIV"`
	Confidence     float64 `json:"confidence"`
	HorizonMinutes int     `json:"horizonMinutes"`
	Reason         string  `json:"reason"`
}

// ContractAlternative is a runner-up contract with an explanatory tag.
type ContractAlternative struct {
	Description string         `json:"description"`
	Strike      float64        `json:"strike"`
	Expiry      string         `json:"expiry"`
	Type        OptionType     `json:"type"`
	Delta       float64        `json:"delta"`
	Bid         float64        `json:"bid"`
	Ask         float64        `json:"ask"`
	SpreadPct   float64        `json:"spreadPct"`
	MaxLoss     float64        `json:"maxLoss"`
	Score       float64        `json:"score"`
	Tag         AlternativeTag `json:"tag,omitempty"`
	Tradeoff    string         `json:"tradeoff,omitempty"`
}

// ContractRecommendation is the selected contract for one setup.
type ContractRecommendation struct {
	SetupID              string                `json:"setupId"`
	Description          string                `json:"description"`
	Strike               float64               `json:"strike"`
	Expiry               string                `json:"expiry"`
	Type                 OptionType            `json:"type"`
	DaysToExpiry         int                   `json:"daysToExpiry"`
	Greeks               OptionGreeks          `json:"greeks"`
	ImpliedVolatility    float64               `json:"impliedVolatility"`
	Bid                  float64               `json:"bid"`
	Ask                  float64               `json:"ask"`
	Mid                  float64               `json:"mid"`
	PremiumMid           float64               `json:"premiumMid"`
	PremiumAsk           float64               `json:"premiumAsk"`
	RiskReward           float64               `json:"riskReward"`
	ExpectedPnLAtTarget1 float64               `json:"expectedPnlAtTarget1"`
	ExpectedPnLAtTarget2 float64               `json:"expectedPnlAtTarget2"`
	MaxLoss              float64               `json:"maxLoss"`
	SpreadPct            float64               `json:"spreadPct"`
	LiquidityScore       float64               `json:"liquidityScore"`
	CostBand             CostBand              `json:"costBand"`
	Score                float64               `json:"score"`
	Health               ContractHealth        `json:"health"`
	Alternatives         []ContractAlternative `json:"alternatives"`
	Sizing               *ContractSizing       `json:"sizing,omitempty"`
	IVTiming             *IVTimingSignal       `json:"ivTiming,omitempty"`
	Relaxed              bool                  `json:"relaxed"`
	Reasoning            string                `json:"reasoning"`
}
