package gate

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"spx-engine/internal/analysis/indicators"
	"spx-engine/internal/models"
)

const (
	standbyStatus       = "STANDBY"
	nextCheckInterval   = 5 * time.Minute
	maxStandbyItems     = 3
	defaultWaitingFor   = "Waiting for environment gate checks to pass"
	defaultStandbyCause = "Market environment not suitable for high-conviction entries"
)

// StandbyNearestSetup is the setup closest to becoming actionable.
type StandbyNearestSetup struct {
	SetupID              string           `json:"setupId"`
	SetupType            models.SetupType `json:"setupType"`
	Direction            models.Direction `json:"direction"`
	EntryLevel           float64          `json:"entryLevel"`
	Stop                 float64          `json:"stop"`
	Target1              float64          `json:"target1"`
	Target2              float64          `json:"target2"`
	EstimatedProbability float64          `json:"estimatedProbability"`
	ConditionsNeeded     []string         `json:"conditionsNeeded"`
}

// StandbyWatchZone is a level to monitor while standing by.
type StandbyWatchZone struct {
	Level              float64          `json:"level"`
	Direction          models.Direction `json:"direction"`
	Reason             string           `json:"reason"`
	ConfluenceRequired float64          `json:"confluenceRequired"`
}

// StandbyEnvironment summarizes the gate state behind the guidance.
type StandbyEnvironment struct {
	VixRegime        VixRegime `json:"vixRegime"`
	DynamicThreshold float64   `json:"dynamicReadyThreshold"`
	Caution          bool      `json:"caution"`
}

// StandbyGuidance tells the trader what to wait for while the gate is closed.
type StandbyGuidance struct {
	Status       string               `json:"status"`
	Reason       string               `json:"reason"`
	WaitingFor   []string             `json:"waitingFor"`
	NearestSetup *StandbyNearestSetup `json:"nearestSetup,omitempty"`
	WatchZones   []StandbyWatchZone   `json:"watchZones"`
	NextCheckAt  time.Time            `json:"nextCheckTime"`
	Environment  StandbyEnvironment   `json:"environment"`
}

// waitingCondition translates a gate reason into what the trader waits for.
func waitingCondition(reason string) string {
	r := strings.ToLower(reason)
	switch {
	case strings.Contains(r, "vix"):
		return "VIX volatility needs to cool"
	case containsAny(r, "blackout", "fomc", "cpi", "payroll"):
		return "Wait for macro event window to clear"
	case containsAny(r, "high-impact news", "news flow", "breaking news"):
		return "Wait for high-impact news flow to stabilize"
	case strings.Contains(r, "last 15 minutes"):
		return "Wait for a fresh session window"
	case strings.Contains(r, "expected move"):
		return "Wait for cleaner intraday structure"
	case strings.Contains(r, "compression"):
		return "Need stronger realized volatility expansion"
	}
	return reason
}

// BuildStandbyGuidance explains a failed gate. Returns nil when the gate passed.
func BuildStandbyGuidance(decision EnvironmentGateDecision, setups []models.Setup, now time.Time) *StandbyGuidance {
	if decision.Passed {
		return nil
	}

	translated := make([]string, 0, len(decision.Reasons))
	for _, r := range decision.Reasons {
		translated = append(translated, waitingCondition(r))
	}
	waiting := firstN(uniqueStrings(translated...), maxStandbyItems)

	g := &StandbyGuidance{
		Status:      standbyStatus,
		Reason:      decision.Reason,
		WaitingFor:  waiting,
		WatchZones:  watchZones(setups, decision.DynamicReadyThreshold),
		NextCheckAt: now.Add(nextCheckInterval),
		Environment: StandbyEnvironment{
			VixRegime:        decision.VixRegime,
			DynamicThreshold: decision.DynamicReadyThreshold,
			Caution:          decision.Caution,
		},
	}
	if g.Reason == "" {
		g.Reason = defaultStandbyCause
	}
	if len(g.WaitingFor) == 0 {
		g.WaitingFor = []string{defaultWaitingFor}
	}
	if nearest := nearestSetup(setups); nearest != nil {
		g.NearestSetup = toNearestSetup(*nearest, decision.DynamicReadyThreshold, waiting)
	}
	return g
}

func statusPriority(s models.SetupStatus) int {
	switch s {
	case models.StatusTriggered:
		return 0
	case models.StatusReady:
		return 1
	default:
		return 2
	}
}

func byScoreThenConfluence(a, b models.Setup) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.ConfluenceScore > b.ConfluenceScore
}

func nearestSetup(setups []models.Setup) *models.Setup {
	candidates := make([]models.Setup, 0, len(setups))
	for _, s := range setups {
		if !s.Status.IsTerminal() {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		pi, pj := statusPriority(candidates[i].Status), statusPriority(candidates[j].Status)
		if pi != pj {
			return pi < pj
		}
		return byScoreThenConfluence(candidates[i], candidates[j])
	})
	return &candidates[0]
}

func toNearestSetup(s models.Setup, threshold float64, waiting []string) *StandbyNearestSetup {
	conditions := append([]string{}, waiting...)
	if gap := math.Max(0, indicators.Round(threshold-s.ConfluenceScore, 2)); gap > 0 {
		conditions = append(conditions, fmt.Sprintf("Need +%s confluence", formatScore(gap)))
	}
	if !s.FlowConfirmed {
		conditions = append(conditions, "Need options flow alignment")
	}
	return &StandbyNearestSetup{
		SetupID:              s.ID,
		SetupType:            s.Type,
		Direction:            s.Direction,
		EntryLevel:           indicators.Round(s.EntryZone.Mid(), 2),
		Stop:                 s.Stop,
		Target1:              s.Target1.Price,
		Target2:              s.Target2.Price,
		EstimatedProbability: s.Probability,
		ConditionsNeeded:     firstN(uniqueStrings(conditions...), maxStandbyItems),
	}
}

func watchZones(setups []models.Setup, threshold float64) []StandbyWatchZone {
	candidates := make([]models.Setup, 0, len(setups))
	for _, s := range setups {
		switch s.Status {
		case models.StatusForming, models.StatusReady, models.StatusTriggered:
			candidates = append(candidates, s)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return byScoreThenConfluence(candidates[i], candidates[j])
	})

	zones := make([]StandbyWatchZone, 0, maxStandbyItems)
	for _, s := range firstNSetups(candidates, maxStandbyItems) {
		zones = append(zones, StandbyWatchZone{
			Level:              indicators.Round(s.EntryZone.Mid(), 2),
			Direction:          s.Direction,
			Reason:             fmt.Sprintf("%s setup becomes actionable with alignment", s.Type),
			ConfluenceRequired: indicators.Round(math.Max(threshold, 2), 2),
		})
	}
	return zones
}

func firstN(values []string, n int) []string {
	if len(values) > n {
		return values[:n]
	}
	return values
}

func firstNSetups(values []models.Setup, n int) []models.Setup {
	if len(values) > n {
		return values[:n]
	}
	return values
}
