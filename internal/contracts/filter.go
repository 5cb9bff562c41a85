package contracts

import (
	"math"
	"time"

	"spx-engine/internal/analysis/indicators"
	"spx-engine/internal/models"
	"spx-engine/pkg/utils"
)

// ContractMultiplier converts option premium to dollars.
const ContractMultiplier = 100

const lateDayMinute = 14 * 60

// passBounds are the thresholds of one filter pass.
type passBounds struct {
	relaxed         bool
	minDelta        float64
	maxDelta        float64
	minOpenInterest int64
	minVolume       int64
	maxSpreadPct    float64
	maxDebit        float64
	maxZeroDTETheta float64
}

var (
	strictBounds = passBounds{
		minDelta:        0.05,
		maxDelta:        0.65,
		minOpenInterest: 150,
		minVolume:       20,
		maxSpreadPct:    0.24,
		maxDebit:        2500,
		maxZeroDTETheta: 1.95,
	}
	relaxedBounds = passBounds{
		relaxed:         true,
		minDelta:        0.02,
		maxDelta:        0.80,
		minOpenInterest: 10,
		minVolume:       1,
		maxSpreadPct:    0.42,
		maxDebit:        3500,
		maxZeroDTETheta: 2.35,
	}
)

const (
	lateDayMaxSpreadPct    = 0.18
	lateDayMaxSpread       = 0.35
	lateDayMinOpenInterest = 250
)

// quoteTier bounds the absolute spread and bid/ask balance by premium level.
type quoteTier struct {
	belowMid                   float64
	spreadCap, relaxedSpread   float64
	balanceFloor, relaxedFloor float64
}

var quoteTiers = []quoteTier{
	{belowMid: 5, spreadCap: 0.35, relaxedSpread: 0.5, balanceFloor: 0.6, relaxedFloor: 0.5},
	{belowMid: 15, spreadCap: 0.65, relaxedSpread: 0.9, balanceFloor: 0.62, relaxedFloor: 0.52},
	{belowMid: math.Inf(1), spreadCap: 1.05, relaxedSpread: 1.4, balanceFloor: 0.65, relaxedFloor: 0.55},
}

// FilterOptions controls one filter pass.
type FilterOptions struct {
	Relaxed bool
	Now     time.Time
}

func (o FilterOptions) bounds() passBounds {
	if o.Relaxed {
		return relaxedBounds
	}
	return strictBounds
}

// FilterCandidates keeps the contracts tradable for setup. The result preserves input order.
func FilterCandidates(contracts []models.OptionContract, setup models.Setup, opts FilterOptions) []models.OptionContract {
	b := opts.bounds()
	band := deltaBandForSetup(setup, b)
	lateDay := utils.MinuteOfDayET(opts.Now) >= lateDayMinute
	want := optionTypeFor(setup.Direction)

	out := make([]models.OptionContract, 0, len(contracts))
	for _, c := range contracts {
		if c.Type != want {
			continue
		}
		if !saneQuote(c) {
			continue
		}
		if IsTerminalZeroDTE(setup.Type, c.Expiry, opts.Now) {
			continue
		}
		absDelta := math.Abs(c.Delta)
		if !indicators.Finite(absDelta) || !band.contains(absDelta) {
			continue
		}
		if IsZeroDTE(c.Expiry, opts.Now) && math.Abs(c.Theta) > b.maxZeroDTETheta {
			continue
		}
		if c.OpenInterest < b.minOpenInterest && c.Volume < b.minVolume {
			continue
		}
		spreadPct := c.SpreadPct()
		if !indicators.Finite(spreadPct) || spreadPct > b.maxSpreadPct {
			continue
		}
		if lateDay && (spreadPct > lateDayMaxSpreadPct || c.Spread() > lateDayMaxSpread || c.OpenInterest < lateDayMinOpenInterest) {
			continue
		}
		if !reliableQuote(c, b.relaxed) {
			continue
		}
		debit := c.Ask * ContractMultiplier
		if !indicators.Finite(debit) || debit <= 0 || debit > b.maxDebit {
			continue
		}
		out = append(out, c)
	}
	return out
}

func optionTypeFor(d models.Direction) models.OptionType {
	if d == models.DirectionBearish {
		return models.OptionPut
	}
	return models.OptionCall
}

func saneQuote(c models.OptionContract) bool {
	return indicators.Finite(c.Bid) && indicators.Finite(c.Ask) && c.Bid > 0 && c.Ask > c.Bid
}

func reliableQuote(c models.OptionContract, relaxed bool) bool {
	mid := c.Mid()
	spread := c.Spread()
	if !indicators.Finite(mid) || mid <= 0 || spread <= 0 {
		return false
	}
	for _, t := range quoteTiers {
		if mid >= t.belowMid {
			continue
		}
		spreadCap, floor := t.spreadCap, t.balanceFloor
		if relaxed {
			spreadCap, floor = t.relaxedSpread, t.relaxedFloor
		}
		return spread <= spreadCap && c.Bid/c.Ask >= floor
	}
	return false
}
