package patterns

import (
	"spx-engine/internal/models"
)

// DefaultVolumeSpikeMultiplier is the ratio to the prior mean that counts as a spike.
const DefaultVolumeSpikeMultiplier = 1.6

// IsVolumeSpike reports whether current volume is at least multiplier times the
// mean of prior. A non-positive multiplier uses the default.
func IsVolumeSpike(current models.Bar, prior []models.Bar, multiplier float64) bool {
	if !(multiplier > 0) {
		multiplier = DefaultVolumeSpikeMultiplier
	}
	avg := averageVolume(prior)
	if avg <= 0 {
		return false
	}
	return float64(current.Volume) >= avg*multiplier
}

func averageVolume(bars []models.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	var total int64
	for _, b := range bars {
		total += b.Volume
	}
	return float64(total) / float64(len(bars))
}
