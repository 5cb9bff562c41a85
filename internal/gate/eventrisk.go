package gate

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"spx-engine/internal/analysis/indicators"
	"spx-engine/internal/news"
)

// Event risk sources.
const (
	RiskSourceNone     = "none"
	RiskSourceMacro    = "macro"
	RiskSourceNews     = "news"
	RiskSourceCombined = "combined"
)

const (
	macroBlackoutRiskScore = 95
	macroCautionBaseScore  = 35
	riskBlackoutFloor      = 88
	riskCautionFloor       = 50
)

// newsTrigger escalates risk when enough qualifying headlines are present.
type newsTrigger struct {
	minCount      int
	minAbsScore   float64
	maxAgeMinutes float64 // 0 means any age
	add           float64
	blackout      bool
}

var newsTriggers = []newsTrigger{
	{minCount: 2, minAbsScore: 35, add: 18},
	{minCount: 2, minAbsScore: 50, maxAgeMinutes: 60, add: 24},
	{minCount: 3, minAbsScore: 65, maxAgeMinutes: 20, add: 38, blackout: true},
}

// EventRiskInput is everything the event risk gate scores.
type EventRiskInput struct {
	EvaluationDate time.Time
	Macro          MacroCheck
	News           *news.Snapshot
	NewsEnabled    bool
}

// EventRiskDecision is the combined macro and news verdict.
type EventRiskDecision struct {
	Passed                bool        `json:"passed"`
	Caution               bool        `json:"caution"`
	Blackout              bool        `json:"blackout"`
	Score                 float64     `json:"riskScore"`
	Source                string      `json:"source"`
	Reason                string      `json:"reason,omitempty"`
	NextEvent             *MacroEvent `json:"nextEvent,omitempty"`
	NewsSentimentScore    *float64    `json:"newsSentimentScore,omitempty"`
	NewsBias              news.Bias   `json:"newsBias,omitempty"`
	MarketMovingCount     int         `json:"marketMovingArticleCount"`
	RecentHighImpactCount int         `json:"recentHighImpactCount"`
	LatestArticleAt       *time.Time  `json:"latestArticleAt,omitempty"`
}

// disabledEventRisk is the pass-through decision used when the event risk gate is off.
func disabledEventRisk(macro MacroCheck, snap *news.Snapshot) EventRiskDecision {
	d := EventRiskDecision{
		Passed:    true,
		Source:    RiskSourceNone,
		NextEvent: macro.NextEvent,
	}
	attachNews(&d, snap)
	return d
}

func attachNews(d *EventRiskDecision, snap *news.Snapshot) {
	if snap == nil {
		return
	}
	score := snap.Score
	d.NewsSentimentScore = &score
	d.NewsBias = snap.Bias
	d.MarketMovingCount = snap.MarketMovingCount
	d.RecentHighImpactCount = snap.RecentHighImpactCount
	d.LatestArticleAt = snap.LatestPublishedAt
}

// EvaluateEventRiskGate scores macro and news risk. A failed macro check is
// always a blackout regardless of news.
func EvaluateEventRiskGate(in EventRiskInput) EventRiskDecision {
	snap := in.News
	if !in.NewsEnabled {
		snap = nil
	}

	d := EventRiskDecision{NextEvent: in.Macro.NextEvent}
	attachNews(&d, snap)

	if !in.Macro.Passed {
		d.Blackout = true
		d.Caution = true
		d.Score = macroBlackoutRiskScore
		d.Source = RiskSourceMacro
		d.Reason = in.Macro.Reason
		if d.Reason == "" {
			d.Reason = "Macro calendar blackout"
		}
		return d
	}

	var macroScore float64
	if in.Macro.Caution {
		macroScore = macroCautionBaseScore
		d.Caution = true
	}

	var newsScore float64
	if snap != nil {
		for _, t := range newsTriggers {
			if countQualifying(snap.Articles, in.EvaluationDate, t) >= t.minCount {
				newsScore += t.add
				d.Caution = true
				if t.blackout {
					d.Blackout = true
				}
			}
		}
	}

	d.Score = indicators.Clamp(macroScore+newsScore, 0, 100)
	if d.Score >= riskBlackoutFloor {
		d.Blackout = true
	}
	if d.Score >= riskCautionFloor {
		d.Caution = true
	}
	if d.Blackout {
		d.Caution = true
	}
	d.Passed = !d.Blackout

	switch {
	case d.Score == 0:
		d.Source = RiskSourceNone
	case newsScore == 0:
		d.Source = RiskSourceMacro
	case macroScore == 0:
		d.Source = RiskSourceNews
	default:
		d.Source = RiskSourceCombined
	}

	switch {
	case d.Blackout:
		d.Reason = breakingNewsReason(snap, d.Score)
	case d.Caution && newsScore > 0:
		d.Reason = fmt.Sprintf("Elevated news flow risk (score %s)", formatScore(d.Score))
	case d.Caution:
		d.Reason = in.Macro.Reason
	}
	return d
}

func countQualifying(articles []news.ScoredArticle, at time.Time, t newsTrigger) int {
	n := 0
	for _, a := range articles {
		if !a.MarketMoving || math.Abs(a.SentimentScore) < t.minAbsScore {
			continue
		}
		if t.maxAgeMinutes > 0 {
			if a.PublishedAt.IsZero() {
				continue
			}
			age := at.Sub(a.PublishedAt).Minutes()
			if age < 0 {
				age = 0
			}
			if age > t.maxAgeMinutes {
				continue
			}
		}
		n++
	}
	return n
}

func breakingNewsReason(snap *news.Snapshot, score float64) string {
	if snap == nil {
		return fmt.Sprintf("Breaking high-impact news flow (risk %s)", formatScore(score))
	}
	return fmt.Sprintf("Breaking high-impact news flow (%s %s)", snap.Bias, formatScore(snap.Score))
}

func formatScore(x float64) string {
	return strconv.FormatFloat(indicators.Round(x, 2), 'f', -1, 64)
}
