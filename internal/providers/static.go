package providers

import (
	"context"
	"sort"
	"strings"
	"time"

	"spx-engine/internal/models"
	"spx-engine/pkg/utils"
)

// Static serves fixed data for every provider interface. It backs CLI
// scenario files and tests. Nil or empty fields answer "no data".
type Static struct {
	Setups      []models.Setup
	Chains      []models.OptionsChain
	Expirations []string
	IV          *models.IVForecast
	Events      []models.EconomicEvent
	Articles    []models.NewsArticle
	Bars        []models.Bar
	Ticks       []models.Tick
	Risk        *models.RiskContext
	Live        *LiveMarketStatus
}

var (
	_ SetupProvider         = (*Static)(nil)
	_ OptionsChainProvider  = (*Static)(nil)
	_ IVForecastProvider    = (*Static)(nil)
	_ MacroCalendarProvider = (*Static)(nil)
	_ NewsProvider          = (*Static)(nil)
	_ BarsProvider          = (*Static)(nil)
	_ TickProvider          = (*Static)(nil)
	_ LiveStatusFeed        = (*Static)(nil)
	_ RiskContextProvider   = (*Static)(nil)
)

// DetectActiveSetups returns the setups that are not invalidated or expired.
func (s *Static) DetectActiveSetups(_ context.Context, _ SetupQuery) ([]models.Setup, error) {
	out := make([]models.Setup, 0, len(s.Setups))
	for _, setup := range s.Setups {
		if !setup.Status.IsTerminal() {
			out = append(out, setup.Clone())
		}
	}
	return out, nil
}

// GetSetupByID returns nil, nil for an unknown id.
func (s *Static) GetSetupByID(_ context.Context, id string, _ SetupQuery) (*models.Setup, error) {
	for _, setup := range s.Setups {
		if setup.ID == id {
			c := setup.Clone()
			return &c, nil
		}
	}
	return nil, nil
}

// FetchExpirationDates returns Expirations, or the chain expiries when unset.
func (s *Static) FetchExpirationDates(_ context.Context, _ string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(e string) {
		if e != "" && !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	for _, e := range s.Expirations {
		add(e)
	}
	if len(out) == 0 {
		for _, c := range s.Chains {
			add(c.Expiry)
		}
	}
	sort.Strings(out)
	return out, nil
}

// FetchOptionsChain returns the chain for expiry limited to the strike range.
func (s *Static) FetchOptionsChain(_ context.Context, _ string, expiry string, strikes StrikeRange) (*models.OptionsChain, error) {
	for _, c := range s.Chains {
		if c.Expiry != expiry {
			continue
		}
		out := &models.OptionsChain{Expiry: c.Expiry}
		for _, call := range c.Calls {
			if strikes.Contains(call.Strike) {
				out.Calls = append(out.Calls, withExpiry(call, expiry))
			}
		}
		for _, put := range c.Puts {
			if strikes.Contains(put.Strike) {
				out.Puts = append(out.Puts, withExpiry(put, expiry))
			}
		}
		return out, nil
	}
	return nil, nil
}

func withExpiry(c models.OptionContract, expiry string) models.OptionContract {
	if c.Expiry == "" {
		c.Expiry = expiry
	}
	return c
}

// AnalyzeIVProfile returns the fixed forecast.
func (s *Static) AnalyzeIVProfile(_ context.Context, _ string, opts IVProfileOptions) (*models.IVForecast, error) {
	if s.IV == nil {
		return nil, nil
	}
	f := *s.IV
	if f.HorizonMinutes == 0 {
		f.HorizonMinutes = opts.HorizonMinutes
	}
	return &f, nil
}

// GetEconomicCalendar returns the events of the requested impact.
func (s *Static) GetEconomicCalendar(_ context.Context, _ int, impact models.EventImpact) ([]models.EconomicEvent, error) {
	var out []models.EconomicEvent
	for _, e := range s.Events {
		if impact == "" || e.Impact == impact {
			out = append(out, e)
		}
	}
	return out, nil
}

// GetTickerNews returns the newest articles tagged with ticker. Untagged
// articles match every ticker.
func (s *Static) GetTickerNews(_ context.Context, ticker string, limit int) ([]models.NewsArticle, error) {
	var out []models.NewsArticle
	for _, a := range s.Articles {
		if len(a.Tickers) == 0 || containsFold(a.Tickers, ticker) {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PublishedAt.After(out[j].PublishedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// GetMinuteAggregates returns the bars whose ET date is date, ascending.
func (s *Static) GetMinuteAggregates(_ context.Context, _ string, date string) ([]models.Bar, error) {
	var out []models.Bar
	for _, b := range s.Bars {
		if utils.EasternDate(b.Timestamp) == date {
			out = append(out, b)
		}
	}
	return models.SortBars(out), nil
}

// GetLatestTick returns the newest tick for symbol, or nil.
func (s *Static) GetLatestTick(_ context.Context, symbol string) (*models.Tick, error) {
	var latest *models.Tick
	for i := range s.Ticks {
		t := s.Ticks[i]
		if !strings.EqualFold(t.Symbol, symbol) {
			continue
		}
		if latest == nil || t.Timestamp.After(latest.Timestamp) {
			latest = &t
		}
	}
	return latest, nil
}

// MarketStatus returns the fixed live status, or nil.
func (s *Static) MarketStatus(_ context.Context) (*LiveMarketStatus, error) {
	if s.Live == nil {
		return nil, nil
	}
	st := *s.Live
	if st.ServerTime.IsZero() {
		st.ServerTime = time.Now().UTC()
	}
	return &st, nil
}

// LatestRiskContext returns the fixed account snapshot for any user.
func (s *Static) LatestRiskContext(_ context.Context, userID string) (*models.RiskContext, error) {
	if s.Risk == nil {
		return nil, nil
	}
	rc := *s.Risk
	if rc.UserID == "" {
		rc.UserID = userID
	}
	return &rc, nil
}
