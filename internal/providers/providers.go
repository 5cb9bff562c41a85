// Package providers defines the boundary to external collaborators: setup
// detection, options chains, IV forecasts, macro calendar, news, bars, ticks,
// live session status and account risk snapshots.
package providers

import (
	"context"
	"time"

	"spx-engine/internal/models"
)

// SetupQuery carries per-call options for setup lookups.
type SetupQuery struct {
	UserID       string
	ForceRefresh bool
	Now          time.Time
}

// SetupProvider returns setups produced by the detection pipeline.
// GetSetupByID returns nil, nil when the setup does not exist.
type SetupProvider interface {
	DetectActiveSetups(ctx context.Context, q SetupQuery) ([]models.Setup, error)
	GetSetupByID(ctx context.Context, id string, q SetupQuery) (*models.Setup, error)
}

// StrikeRange bounds a chain request to strikes within Width points of Center.
// A zero Width requests the full chain.
type StrikeRange struct {
	Center float64
	Width  float64
}

// Contains reports whether strike lies inside the range.
func (r StrikeRange) Contains(strike float64) bool {
	if r.Width <= 0 {
		return true
	}
	return strike >= r.Center-r.Width && strike <= r.Center+r.Width
}

// OptionsChainProvider lists expirations and chains. Expirations are ascending YYYY-MM-DD.
type OptionsChainProvider interface {
	FetchExpirationDates(ctx context.Context, symbol string) ([]string, error)
	FetchOptionsChain(ctx context.Context, symbol, expiry string, strikes StrikeRange) (*models.OptionsChain, error)
}

// IVProfileOptions configures an IV forecast request.
type IVProfileOptions struct {
	HorizonMinutes int
	Expiry         string
}

// IVForecastProvider returns a short-horizon IV forecast, or nil when none is available.
type IVForecastProvider interface {
	AnalyzeIVProfile(ctx context.Context, symbol string, opts IVProfileOptions) (*models.IVForecast, error)
}

// MacroCalendarProvider returns scheduled economic releases.
type MacroCalendarProvider interface {
	GetEconomicCalendar(ctx context.Context, daysAhead int, impact models.EventImpact) ([]models.EconomicEvent, error)
}

// NewsProvider returns recent headlines for a ticker.
type NewsProvider interface {
	GetTickerNews(ctx context.Context, ticker string, limit int) ([]models.NewsArticle, error)
}

// BarsProvider returns one session of minute aggregates for a YYYY-MM-DD date.
type BarsProvider interface {
	GetMinuteAggregates(ctx context.Context, ticker, date string) ([]models.Bar, error)
}

// TickProvider returns the latest print, or nil when the symbol has none.
type TickProvider interface {
	GetLatestTick(ctx context.Context, symbol string) (*models.Tick, error)
}

// LiveMarketStatus is the exchange-reported session state.
type LiveMarketStatus struct {
	Market     string    `json:"market" yaml:"market" validate:"required"`
	EarlyHours bool      `json:"earlyHours" yaml:"earlyHours"`
	AfterHours bool      `json:"afterHours" yaml:"afterHours"`
	ServerTime time.Time `json:"serverTime" yaml:"serverTime"`
}

// LiveStatusFeed reports the live market session.
type LiveStatusFeed interface {
	MarketStatus(ctx context.Context) (*LiveMarketStatus, error)
}

// RiskContextProvider returns the latest account snapshot for a user, or nil.
type RiskContextProvider interface {
	LatestRiskContext(ctx context.Context, userID string) (*models.RiskContext, error)
}
