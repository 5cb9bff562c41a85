package gate

import (
	"time"

	"spx-engine/internal/models"
)

const defaultBlockReason = "Environment gate blocked actionable setup"

// ApplyEnvironmentGateToSetups returns copies of setups with the gate verdict
// applied. On failure ready and triggered setups are demoted to forming, tagged
// with the gate reason and dropped from sniper tiers. The input is not modified.
func ApplyEnvironmentGateToSetups(setups []models.Setup, decision EnvironmentGateDecision, now time.Time) []models.Setup {
	out := make([]models.Setup, len(setups))
	for i, s := range setups {
		c := s.Clone()
		if !c.Status.IsActionable() {
			out[i] = c
			continue
		}

		if decision.Passed {
			c.GateStatus = models.GateEligible
			out[i] = c
			continue
		}

		reason := decision.Reason
		if reason == "" {
			reason = defaultBlockReason
		}
		c.Status = models.StatusForming
		c.GateStatus = models.GateBlocked
		c.GateReasons = uniqueStrings(append(c.GateReasons, "environment_gate:"+reason)...)
		if c.Tier == models.TierSniperPrimary || c.Tier == models.TierSniperSecondary {
			c.Tier = models.TierWatchlist
		}
		c.StatusUpdatedAt = now
		out[i] = c
	}
	return out
}
