package contracts

import (
	"context"
	"math"
	"sort"
	"time"

	"spx-engine/internal/models"
	"spx-engine/internal/providers"
	"spx-engine/pkg/utils"
)

const defaultRolloverMinute = 13 * 60

// rolloverMinutes is the ET minute after which a setup stops trading same-day expiries.
var rolloverMinutes = map[models.SetupType]int{
	models.SetupORBBreakout:       12*60 + 45,
	models.SetupTrendPullback:     12*60 + 45,
	models.SetupTrendContinuation: 12*60 + 45,
	models.SetupBreakoutVacuum:    12*60 + 45,
	models.SetupFadeAtWall:        13*60 + 20,
	models.SetupMeanReversion:     13*60 + 20,
	models.SetupFlipReclaim:       13*60 + 20,
}

// RolloverMinute returns the zero-DTE cutoff for a setup type.
func RolloverMinute(setupType models.SetupType) int {
	if m, ok := rolloverMinutes[setupType]; ok {
		return m
	}
	return defaultRolloverMinute
}

// IsTerminalZeroDTE reports whether expiry is today and past the setup's cutoff.
func IsTerminalZeroDTE(setupType models.SetupType, expiry string, now time.Time) bool {
	return IsZeroDTE(expiry, now) && utils.MinuteOfDayET(now) >= RolloverMinute(setupType)
}

// pastExpiryRollover reports whether expiry is today and past the 13:00 ET
// expiry roll. Per-setup cutoffs only apply to candidate filtering.
func pastExpiryRollover(expiry string, now time.Time) bool {
	return IsZeroDTE(expiry, now) && utils.MinuteOfDayET(now) >= defaultRolloverMinute
}

// IsZeroDTE reports whether expiry is the current ET session date.
func IsZeroDTE(expiry string, now time.Time) bool {
	return expiry == utils.EasternDate(now)
}

// DaysToExpiry counts whole days until the expiry's 16:00 ET settlement, never negative.
func DaysToExpiry(expiry string, now time.Time) int {
	settle, err := utils.EasternClock(expiry, 16, 0)
	if err != nil {
		return 0
	}
	left := settle.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Hours() / 24))
}

// ExpiryPolicy picks the expiration a setup should trade.
type ExpiryPolicy struct {
	chains        providers.OptionsChainProvider
	lookaheadDays int
}

// NewExpiryPolicy creates an expiry policy.
func NewExpiryPolicy(chains providers.OptionsChainProvider, lookaheadDays int) *ExpiryPolicy {
	if lookaheadDays <= 0 {
		lookaheadDays = 7
	}
	return &ExpiryPolicy{chains: chains, lookaheadDays: lookaheadDays}
}

// ResolveTargetExpiry returns the expiry to trade, or "" when none qualifies.
func (p *ExpiryPolicy) ResolveTargetExpiry(ctx context.Context, symbol string, now time.Time, allowZeroDTE bool) (string, error) {
	expirations, err := p.chains.FetchExpirationDates(ctx, symbol)
	if err != nil {
		return "", err
	}
	return SelectExpiry(expirations, now, allowZeroDTE, p.lookaheadDays), nil
}

// SelectExpiry applies the expiry policy to a list of ISO dates.
func SelectExpiry(expirations []string, now time.Time, allowZeroDTE bool, lookaheadDays int) string {
	today := utils.EasternDate(now)
	horizon := utils.ToEastern(now).AddDate(0, 0, lookaheadDays).Format("2006-01-02")

	future := make([]string, 0, len(expirations))
	var within []string
	for _, e := range expirations {
		if e < today {
			continue
		}
		future = append(future, e)
		if e <= horizon {
			within = append(within, e)
		}
	}
	if len(within) > 0 {
		future = within
	}
	if len(future) == 0 {
		return ""
	}
	sort.Strings(future)

	nearest := future[0]
	if nearest == today && !allowZeroDTE {
		if len(future) > 1 {
			return future[1]
		}
		return ""
	}
	if !pastExpiryRollover(nearest, now) {
		return nearest
	}
	if len(future) > 1 {
		return future[1]
	}
	return nearest
}
