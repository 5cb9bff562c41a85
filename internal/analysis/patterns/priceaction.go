package patterns

import (
	"math"
	"time"

	"spx-engine/internal/models"
)

// Approach speed thresholds in points per second.
const (
	fastApproachPtsPerSec     = 0.25
	moderateApproachPtsPerSec = 0.08
)

const (
	approachLookbackBars = 5
	volumeLookbackBars   = 10
)

// CalculatePenetrationDepth measures how far bar pushed through the zone against
// the trade direction, rounded to 2 decimals. Never negative.
func CalculatePenetrationDepth(direction models.Direction, zone models.PriceRange, bar models.Bar) float64 {
	var depth float64
	if direction == models.DirectionBearish {
		depth = bar.High - zone.High
	} else {
		depth = zone.Low - bar.Low
	}
	if !(depth > 0) || math.IsInf(depth, 0) {
		return 0
	}
	return math.Round(depth*100) / 100
}

// ClassifyApproachSpeed buckets the move into the level by points per second.
func ClassifyApproachSpeed(points, seconds float64) models.ApproachSpeed {
	if !(seconds > 0) || math.IsInf(seconds, 0) || math.IsNaN(points) || math.IsInf(points, 0) {
		return models.ApproachSlow
	}
	speed := math.Abs(points) / seconds
	switch {
	case speed >= fastApproachPtsPerSec:
		return models.ApproachFast
	case speed >= moderateApproachPtsPerSec:
		return models.ApproachModerate
	default:
		return models.ApproachSlow
	}
}

func hasTriggerContext(status models.SetupStatus) bool {
	switch status {
	case models.StatusTriggered, models.StatusInvalidated, models.StatusExpired:
		return true
	}
	return false
}

// BuildTriggerContext derives trigger-bar metadata for a triggered setup. Setups
// in other states keep their existing context. When a context already exists only
// the latency is refreshed.
func BuildTriggerContext(setup models.Setup, bars []models.Bar, evaluatedAt time.Time) *models.TriggerContext {
	if !hasTriggerContext(setup.Status) {
		return setup.TriggerContext
	}

	if existing := setup.TriggerContext; existing != nil {
		out := *existing
		out.TriggerLatencyMs = latencyMs(evaluatedAt, existing.TriggerBarTimestamp)
		return &out
	}

	if len(bars) == 0 {
		return nil
	}
	sorted := models.SortBars(bars)

	ref := evaluatedAt
	if setup.TriggeredAt != nil {
		ref = *setup.TriggeredAt
	}
	idx := findTriggerBar(sorted, setup.EntryZone, ref)
	trigger := sorted[idx]

	var prior *models.Bar
	if idx > 0 {
		p := sorted[idx-1]
		prior = &p
	}

	start := idx - approachLookbackBars
	if start < 0 {
		start = 0
	}
	approachPts := trigger.Close - sorted[start].Close
	approachSecs := trigger.Timestamp.Sub(sorted[start].Timestamp).Seconds()

	volStart := idx - volumeLookbackBars
	if volStart < 0 {
		volStart = 0
	}

	return &models.TriggerContext{
		TriggerBarTimestamp: trigger.Timestamp,
		TriggerBarPattern:   DetectCandlePattern(trigger, prior),
		TriggerBarVolume:    trigger.Volume,
		PenetrationDepth:    CalculatePenetrationDepth(setup.Direction, setup.EntryZone, trigger),
		ApproachSpeed:       ClassifyApproachSpeed(approachPts, approachSecs),
		VolumeSpike:         IsVolumeSpike(trigger, sorted[volStart:idx], DefaultVolumeSpikeMultiplier),
		TriggerLatencyMs:    latencyMs(evaluatedAt, trigger.Timestamp),
	}
}

// findTriggerBar returns the latest bar at or before ref touching zone, then the
// latest bar at or before ref, then the last bar.
func findTriggerBar(sorted []models.Bar, zone models.PriceRange, ref time.Time) int {
	lastBefore := -1
	for i := len(sorted) - 1; i >= 0; i-- {
		b := sorted[i]
		if b.Timestamp.After(ref) {
			continue
		}
		if lastBefore < 0 {
			lastBefore = i
		}
		if b.Low <= zone.High && b.High >= zone.Low {
			return i
		}
	}
	if lastBefore >= 0 {
		return lastBefore
	}
	return len(sorted) - 1
}

func latencyMs(evaluatedAt, barTime time.Time) int64 {
	ms := evaluatedAt.Sub(barTime).Milliseconds()
	if ms < 0 {
		return 0
	}
	return ms
}
