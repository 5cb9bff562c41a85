// Package models provides domain models for the SPX decision engine.
package models

import (
	"fmt"
	"time"

	"spx-engine/internal/errors"
)

// Direction is the side a setup trades.
type Direction string

const (
	DirectionBullish Direction = "bullish"
	DirectionBearish Direction = "bearish"
)

// SetupType identifies the strategy family that produced a setup.
type SetupType string

const (
	SetupFadeAtWall        SetupType = "fade_at_wall"
	SetupBreakoutVacuum    SetupType = "breakout_vacuum"
	SetupMeanReversion     SetupType = "mean_reversion"
	SetupTrendContinuation SetupType = "trend_continuation"
	SetupORBBreakout       SetupType = "orb_breakout"
	SetupTrendPullback     SetupType = "trend_pullback"
	SetupFlipReclaim       SetupType = "flip_reclaim"
)

// SetupTypes lists every known strategy type in a stable order.
var SetupTypes = []SetupType{
	SetupFadeAtWall,
	SetupBreakoutVacuum,
	SetupMeanReversion,
	SetupTrendContinuation,
	SetupORBBreakout,
	SetupTrendPullback,
	SetupFlipReclaim,
}

// ParseSetupType validates a strategy type string.
func ParseSetupType(s string) (SetupType, error) {
	for _, t := range SetupTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("setup type %q: %w", s, errors.ErrInvalidEnum)
}

// IsMeanReversionFamily reports whether the setup fades a level rather than trading through it.
func (t SetupType) IsMeanReversionFamily() bool {
	return t == SetupMeanReversion || t == SetupFadeAtWall || t == SetupFlipReclaim
}

// IsMomentumFamily reports whether the setup trades continuation through a level.
func (t SetupType) IsMomentumFamily() bool {
	return t == SetupORBBreakout || t == SetupBreakoutVacuum || t == SetupTrendContinuation
}

// Regime is the market structure classification a setup was detected in.
type Regime string

const (
	RegimeRanging     Regime = "ranging"
	RegimeCompression Regime = "compression"
	RegimeTrending    Regime = "trending"
	RegimeBreakout    Regime = "breakout"
)

// ParseRegime validates a regime string.
func ParseRegime(s string) (Regime, error) {
	switch Regime(s) {
	case RegimeRanging, RegimeCompression, RegimeTrending, RegimeBreakout:
		return Regime(s), nil
	}
	return "", fmt.Errorf("regime %q: %w", s, errors.ErrInvalidEnum)
}

// SetupStatus is the lifecycle state of a setup.
type SetupStatus string

const (
	StatusForming     SetupStatus = "forming"
	StatusReady       SetupStatus = "ready"
	StatusTriggered   SetupStatus = "triggered"
	StatusInvalidated SetupStatus = "invalidated"
	StatusExpired     SetupStatus = "expired"
)

// ParseSetupStatus validates a lifecycle status string.
func ParseSetupStatus(s string) (SetupStatus, error) {
	switch SetupStatus(s) {
	case StatusForming, StatusReady, StatusTriggered, StatusInvalidated, StatusExpired:
		return SetupStatus(s), nil
	}
	return "", fmt.Errorf("setup status %q: %w", s, errors.ErrInvalidEnum)
}

// IsActionable reports whether a contract may be selected for the status.
func (s SetupStatus) IsActionable() bool {
	return s == StatusReady || s == StatusTriggered
}

// IsTerminal reports whether the setup can no longer become actionable.
func (s SetupStatus) IsTerminal() bool {
	return s == StatusInvalidated || s == StatusExpired
}

// GateStatus records how the environment gate treated a setup.
type GateStatus string

const (
	GateEligible GateStatus = "eligible"
	GateBlocked  GateStatus = "blocked"
)

// SetupTier is the priority bucket of a setup.
type SetupTier string

const (
	TierSniperPrimary   SetupTier = "sniper_primary"
	TierSniperSecondary SetupTier = "sniper_secondary"
	TierWatchlist       SetupTier = "watchlist"
	TierHidden          SetupTier = "hidden"
)

// ZoneType classifies the strength of a cluster zone.
type ZoneType string

const (
	ZoneFortress ZoneType = "fortress"
	ZoneDefended ZoneType = "defended"
	ZoneModerate ZoneType = "moderate"
	ZoneMinor    ZoneType = "minor"
)

// PriceRange is an inclusive price band.
type PriceRange struct {
	Low  float64 `json:"low" yaml:"low"`
	High float64 `json:"high" yaml:"high"`
}

// Mid returns the midpoint of the band.
func (r PriceRange) Mid() float64 {
	return (r.Low + r.High) / 2
}

// Contains reports whether price lies inside the band.
func (r PriceRange) Contains(price float64) bool {
	return price >= r.Low && price <= r.High
}

// ClusterZone is a defended price band. Immutable within one evaluation cycle.
type ClusterZone struct {
	ID           string   `json:"id" yaml:"id"`
	PriceLow     float64  `json:"priceLow" yaml:"priceLow"`
	PriceHigh    float64  `json:"priceHigh" yaml:"priceHigh"`
	ClusterScore float64  `json:"clusterScore" yaml:"clusterScore"`
	Type         ZoneType `json:"type" yaml:"type"`
	TestCount    int      `json:"testCount" yaml:"testCount"`
	HoldRate     *float64 `json:"holdRate,omitempty" yaml:"holdRate,omitempty"`
}

// Target is a profit target.
type Target struct {
	Price float64 `json:"price" yaml:"price"`
	Label string  `json:"label" yaml:"label"`
}

// Setup is a candidate trade produced by the setup detector.
type Setup struct {
	ID                string          `json:"id" yaml:"id"`
	Type              SetupType       `json:"type" yaml:"type"`
	Direction         Direction       `json:"direction" yaml:"direction"`
	EntryZone         PriceRange      `json:"entryZone" yaml:"entryZone"`
	Stop              float64         `json:"stop" yaml:"stop"`
	Target1           Target          `json:"target1" yaml:"target1"`
	Target2           Target          `json:"target2" yaml:"target2"`
	ConfluenceScore   float64         `json:"confluenceScore" yaml:"confluenceScore"`
	ConfluenceSources []string        `json:"confluenceSources" yaml:"confluenceSources"`
	ClusterZone       ClusterZone     `json:"clusterZone" yaml:"clusterZone"`
	Regime            Regime          `json:"regime" yaml:"regime"`
	Status            SetupStatus     `json:"status" yaml:"status"`
	Probability       float64         `json:"probability" yaml:"probability"`
	Score             float64         `json:"score" yaml:"score"`
	FlowConfirmed     bool            `json:"flowConfirmed" yaml:"flowConfirmed"`
	TriggerContext    *TriggerContext `json:"triggerContext,omitempty" yaml:"triggerContext,omitempty"`
	GateStatus        GateStatus      `json:"gateStatus,omitempty" yaml:"gateStatus,omitempty"`
	GateReasons       []string        `json:"gateReasons,omitempty" yaml:"gateReasons,omitempty"`
	Tier              SetupTier       `json:"tier,omitempty" yaml:"tier,omitempty"`
	CreatedAt         time.Time       `json:"createdAt" yaml:"createdAt"`
	StatusUpdatedAt   time.Time       `json:"statusUpdatedAt" yaml:"statusUpdatedAt"`
	TriggeredAt       *time.Time      `json:"triggeredAt,omitempty" yaml:"triggeredAt,omitempty"`
}

// Clone returns a deep copy of the setup so gate demotion never aliases caller state.
func (s Setup) Clone() Setup {
	out := s
	out.ConfluenceSources = append([]string(nil), s.ConfluenceSources...)
	out.GateReasons = append([]string(nil), s.GateReasons...)
	if s.TriggerContext != nil {
		tc := *s.TriggerContext
		out.TriggerContext = &tc
	}
	if s.TriggeredAt != nil {
		at := *s.TriggeredAt
		out.TriggeredAt = &at
	}
	if s.ClusterZone.HoldRate != nil {
		hr := *s.ClusterZone.HoldRate
		out.ClusterZone.HoldRate = &hr
	}
	return out
}

// CandlePattern is a single/two-bar candlestick classification.
type CandlePattern string

const (
	PatternEngulfingBull  CandlePattern = "engulfing_bull"
	PatternEngulfingBear  CandlePattern = "engulfing_bear"
	PatternDoji           CandlePattern = "doji"
	PatternHammer         CandlePattern = "hammer"
	PatternInvertedHammer CandlePattern = "inverted_hammer"
	PatternNone           CandlePattern = "none"
)

// ApproachSpeed classifies how quickly price reached a level.
type ApproachSpeed string

const (
	ApproachFast     ApproachSpeed = "fast"
	ApproachModerate ApproachSpeed = "moderate"
	ApproachSlow     ApproachSpeed = "slow"
)

// TriggerContext captures why and when a setup triggered.
type TriggerContext struct {
	TriggerBarTimestamp time.Time     `json:"triggerBarTimestamp" yaml:"triggerBarTimestamp"`
	TriggerBarPattern   CandlePattern `json:"triggerBarPatternType" yaml:"triggerBarPatternType"`
	TriggerBarVolume    int64         `json:"triggerBarVolume" yaml:"triggerBarVolume"`
	PenetrationDepth    float64       `json:"penetrationDepth" yaml:"penetrationDepth"`
	ApproachSpeed       ApproachSpeed `json:"approachSpeed" yaml:"approachSpeed"`
	VolumeSpike         bool          `json:"volumeSpike" yaml:"volumeSpike"`
	TriggerLatencyMs    int64         `json:"triggerLatencyMs" yaml:"triggerLatencyMs"`
}
