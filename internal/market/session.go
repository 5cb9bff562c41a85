package market

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"spx-engine/internal/logging"
	"spx-engine/internal/providers"
)

// Session status sources.
const (
	SourceLocal = "local"
	SourceLive  = "live"
)

// DefaultLiveTimeout bounds the live status overlay.
const DefaultLiveTimeout = 1500 * time.Millisecond

// SessionStatus is the market session as seen by the decision engine.
type SessionStatus struct {
	Status            string    `json:"status" yaml:"status"`
	Date              string    `json:"date" yaml:"date"`
	MinuteEt          int       `json:"minuteEt" yaml:"minuteEt"`
	MinutesUntilClose *int      `json:"minutesUntilClose,omitempty" yaml:"minutesUntilClose,omitempty"`
	SessionProgress   float64   `json:"sessionProgress" yaml:"sessionProgress"`
	CloseMinute       int       `json:"closeMinute" yaml:"closeMinute"`
	IsEarlyClose      bool      `json:"isEarlyClose" yaml:"isEarlyClose"`
	IsHoliday         bool      `json:"isHoliday" yaml:"isHoliday"`
	Source            string    `json:"source" yaml:"source"`
	AsOf              time.Time `json:"asOf" yaml:"asOf"`
}

// IsOpen reports whether the regular session is in progress.
func (s SessionStatus) IsOpen() bool {
	return s.Status == StatusOpen
}

// SessionConfig holds session service settings.
type SessionConfig struct {
	LiveEnabled bool
	LiveTimeout time.Duration
}

// SessionService resolves the session status from the local calendar, optionally
// overlaid by a live exchange status feed.
type SessionService struct {
	feed   providers.LiveStatusFeed
	cfg    SessionConfig
	logger zerolog.Logger
}

// NewSessionService creates a session service. feed may be nil.
func NewSessionService(feed providers.LiveStatusFeed, cfg SessionConfig, logger zerolog.Logger) *SessionService {
	if cfg.LiveTimeout <= 0 {
		cfg.LiveTimeout = DefaultLiveTimeout
	}
	return &SessionService{
		feed:   feed,
		cfg:    cfg,
		logger: logging.WithComponent(logger, "session"),
	}
}

// Status returns the session at the given instant.
func (s *SessionService) Status(ctx context.Context, at time.Time) SessionStatus {
	local := LocalStatus(at)
	if s == nil || !s.cfg.LiveEnabled || s.feed == nil {
		return local
	}

	liveCtx, cancel := context.WithTimeout(ctx, s.cfg.LiveTimeout)
	defer cancel()

	live, err := s.feed.MarketStatus(liveCtx)
	if err != nil {
		logging.LogProviderFallback(s.logger, "live_status", "MarketStatus", "local session", err)
		return local
	}
	if live == nil {
		return local
	}
	return overlayLive(local, live)
}

// overlayLive lets the exchange-reported phase override the clock-derived one.
func overlayLive(local SessionStatus, live *providers.LiveMarketStatus) SessionStatus {
	out := local
	out.Source = SourceLive

	switch strings.ToLower(live.Market) {
	case "open":
		out.Status = StatusOpen
	case "extended-hours", "extended_hours":
		switch {
		case live.EarlyHours:
			out.Status = StatusPreMarket
		case live.AfterHours:
			out.Status = StatusAfterHours
		case local.Status == StatusOpen:
			out.Status = StatusClosed
		}
	case "closed":
		out.Status = StatusClosed
	default:
		out.Source = SourceLocal
		return out
	}

	out.MinutesUntilClose = nil
	if out.Status == StatusOpen {
		remaining := out.CloseMinute - out.MinuteEt
		if remaining < 0 {
			remaining = 0
		}
		out.MinutesUntilClose = &remaining
	}
	out.SessionProgress = sessionProgress(out.Status, out.MinuteEt, out.CloseMinute)
	return out
}
