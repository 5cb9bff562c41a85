package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"spx-engine/internal/errors"
	"spx-engine/internal/logging"
	"spx-engine/internal/models"
	"spx-engine/internal/resilience"
	"spx-engine/pkg/utils"
)

// MassiveConfig configures the market data REST client.
type MassiveConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	Timeout           time.Duration `mapstructure:"timeout"`
	CalendarPath      string        `mapstructure:"calendar_path"`
	IVProfilePath     string        `mapstructure:"iv_profile_path"`
	ExpiryLookahead   int           `mapstructure:"expiry_lookahead_days"`
	ExpiryPages       int           `mapstructure:"expiry_pages"`
	ChainPages        int           `mapstructure:"chain_pages"`
}

// DefaultMassiveConfig returns the default client configuration.
func DefaultMassiveConfig() MassiveConfig {
	return MassiveConfig{
		BaseURL:           "https://api.massive.com",
		RequestsPerSecond: 5,
		Burst:             10,
		Timeout:           8 * time.Second,
		CalendarPath:      "/v1/calendar/economic",
		IVProfilePath:     "/v1/volatility/profile",
		ExpiryLookahead:   7,
		ExpiryPages:       2,
		ChainPages:        4,
	}
}

// MassiveClient is the market data REST adapter. Every request passes a rate
// limiter and the resilient-call wrapper keyed per endpoint.
type MassiveClient struct {
	cfg      MassiveConfig
	http     *http.Client
	limiter  *rate.Limiter
	breakers *resilience.CircuitBreakerRegistry
	retry    resilience.RetryConfig
	logger   zerolog.Logger
	now      func() time.Time
}

var (
	_ BarsProvider          = (*MassiveClient)(nil)
	_ TickProvider          = (*MassiveClient)(nil)
	_ NewsProvider          = (*MassiveClient)(nil)
	_ OptionsChainProvider  = (*MassiveClient)(nil)
	_ LiveStatusFeed        = (*MassiveClient)(nil)
	_ MacroCalendarProvider = (*MassiveClient)(nil)
	_ IVForecastProvider    = (*MassiveClient)(nil)
)

// NewMassiveClient creates a new client.
func NewMassiveClient(cfg MassiveConfig, breakers *resilience.CircuitBreakerRegistry, retry resilience.RetryConfig, logger zerolog.Logger) *MassiveClient {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	return &MassiveClient{
		cfg:      cfg,
		http:     &http.Client{Timeout: cfg.Timeout},
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		breakers: breakers,
		retry:    retry,
		logger:   logging.WithComponent(logger, "massive"),
		now:      time.Now,
	}
}

func (c *MassiveClient) endpoint(path string, query url.Values) string {
	u := strings.TrimRight(c.cfg.BaseURL, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// get issues one GET through the limiter and breaker and returns the body.
func (c *MassiveClient) get(ctx context.Context, op, rawURL string) ([]byte, error) {
	cb := c.breakers.Get("massive." + op)
	return resilience.Call(ctx, cb, c.retry, func(ctx context.Context) ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, errors.NewProviderError("massive", op, errors.Wrap(errors.ErrInvalidInput, err.Error()))
		}
		if c.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}
		req.Header.Set("Accept", "application/json")

		start := time.Now()
		resp, err := c.http.Do(req)
		logging.LogAPICall(c.logger, http.MethodGet, op, time.Since(start), err)
		if err != nil {
			return nil, errors.NewProviderError("massive", op, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
		if err != nil {
			return nil, errors.NewProviderError("massive", op, err)
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, errors.NewProviderError("massive", op, errors.ErrRateLimited)
		case resp.StatusCode >= 500:
			return nil, errors.NewProviderError("massive", op, fmt.Errorf("%w: status %d", errors.ErrProviderUnavailable, resp.StatusCode))
		case resp.StatusCode >= 400:
			return nil, errors.NewProviderError("massive", op, fmt.Errorf("%w: status %d", errors.ErrInvalidInput, resp.StatusCode))
		}
		return body, nil
	})
}

// GetMinuteAggregates returns one session of minute bars.
func (c *MassiveClient) GetMinuteAggregates(ctx context.Context, ticker, date string) ([]models.Bar, error) {
	path := fmt.Sprintf("/v2/aggs/ticker/%s/range/1/minute/%s/%s", url.PathEscape(ticker), date, date)
	body, err := c.get(ctx, "aggs", c.endpoint(path, url.Values{
		"adjusted": {"true"},
		"sort":     {"asc"},
		"limit":    {"50000"},
	}))
	if err != nil {
		return nil, err
	}
	decoded, err := DecodeMinuteAggregates(body)
	if err != nil {
		return nil, err
	}
	if decoded.Dropped > 0 {
		c.logger.Debug().Str("ticker", ticker).Int("dropped", decoded.Dropped).Msg("Dropped invalid bars")
	}
	return decoded.Items, nil
}

// GetLatestTick returns the latest print. Index symbols (I:VIX) use the index snapshot.
func (c *MassiveClient) GetLatestTick(ctx context.Context, symbol string) (*models.Tick, error) {
	var rawURL string
	if strings.HasPrefix(symbol, "I:") {
		rawURL = c.endpoint("/v3/snapshot/indices", url.Values{"ticker.any_of": {symbol}})
	} else {
		rawURL = c.endpoint("/v2/last/trade/"+url.PathEscape(symbol), nil)
	}
	body, err := c.get(ctx, "tick", rawURL)
	if err != nil {
		return nil, err
	}
	return DecodeLatestTick(symbol, body)
}

// GetTickerNews returns recent headlines, newest first.
func (c *MassiveClient) GetTickerNews(ctx context.Context, ticker string, limit int) ([]models.NewsArticle, error) {
	body, err := c.get(ctx, "news", c.endpoint("/v2/reference/news", url.Values{
		"ticker": {ticker},
		"limit":  {strconv.Itoa(limit)},
		"order":  {"desc"},
		"sort":   {"published_utc"},
	}))
	if err != nil {
		return nil, err
	}
	decoded, err := DecodeNews(body)
	if err != nil {
		return nil, err
	}
	return decoded.Items, nil
}

// FetchExpirationDates lists expirations from today through the lookahead window.
func (c *MassiveClient) FetchExpirationDates(ctx context.Context, symbol string) ([]string, error) {
	today := utils.ToEastern(c.now())
	next := c.endpoint("/v3/reference/options/contracts", url.Values{
		"underlying_ticker":   {symbol},
		"expiration_date.gte": {today.Format("2006-01-02")},
		"expiration_date.lte": {today.AddDate(0, 0, c.cfg.ExpiryLookahead).Format("2006-01-02")},
		"contract_type":       {"call"},
		"expired":             {"false"},
		"order":               {"asc"},
		"sort":                {"expiration_date"},
		"limit":               {"1000"},
	})

	seen := make(map[string]struct{})
	var dates []string
	for page := 0; next != "" && page < maxInt(1, c.cfg.ExpiryPages); page++ {
		body, err := c.get(ctx, "expirations", next)
		if err != nil {
			return nil, err
		}
		decoded, err := DecodeExpirations(body)
		if err != nil {
			return nil, err
		}
		for _, d := range decoded.Dates {
			if _, ok := seen[d]; !ok {
				seen[d] = struct{}{}
				dates = append(dates, d)
			}
		}
		next = decoded.NextURL
	}
	sort.Strings(dates)
	return dates, nil
}

// FetchOptionsChain returns the chain for one expiry, following pagination.
func (c *MassiveClient) FetchOptionsChain(ctx context.Context, symbol, expiry string, strikes StrikeRange) (*models.OptionsChain, error) {
	query := url.Values{
		"expiration_date": {expiry},
		"limit":           {"250"},
	}
	if strikes.Width > 0 {
		query.Set("strike_price.gte", strconv.FormatFloat(strikes.Center-strikes.Width, 'f', 2, 64))
		query.Set("strike_price.lte", strconv.FormatFloat(strikes.Center+strikes.Width, 'f', 2, 64))
	}
	next := c.endpoint("/v3/snapshot/options/"+url.PathEscape(symbol), query)

	chain := &models.OptionsChain{Expiry: expiry}
	dropped := 0
	for page := 0; next != "" && page < maxInt(1, c.cfg.ChainPages); page++ {
		body, err := c.get(ctx, "chain", next)
		if err != nil {
			return nil, err
		}
		decoded, err := DecodeOptionsChain(expiry, body)
		if err != nil {
			return nil, err
		}
		chain.Calls = append(chain.Calls, decoded.Chain.Calls...)
		chain.Puts = append(chain.Puts, decoded.Chain.Puts...)
		dropped += decoded.Dropped
		next = decoded.NextURL
	}
	if dropped > 0 {
		c.logger.Debug().Str("expiry", expiry).Int("dropped", dropped).Msg("Dropped invalid option snapshots")
	}
	return chain, nil
}

// MarketStatus returns the live exchange session state.
func (c *MassiveClient) MarketStatus(ctx context.Context) (*LiveMarketStatus, error) {
	body, err := c.get(ctx, "marketstatus", c.endpoint("/v1/marketstatus/now", nil))
	if err != nil {
		return nil, err
	}
	return DecodeMarketStatus(body)
}

// GetEconomicCalendar returns upcoming macro events.
func (c *MassiveClient) GetEconomicCalendar(ctx context.Context, daysAhead int, impact models.EventImpact) ([]models.EconomicEvent, error) {
	from := utils.ToEastern(c.now())
	body, err := c.get(ctx, "calendar", c.endpoint(c.cfg.CalendarPath, url.Values{
		"from":   {from.Format("2006-01-02")},
		"to":     {from.AddDate(0, 0, daysAhead).Format("2006-01-02")},
		"impact": {string(impact)},
	}))
	if err != nil {
		return nil, err
	}
	decoded, err := DecodeEconomicCalendar(body)
	if err != nil {
		return nil, err
	}
	return decoded.Items, nil
}

// AnalyzeIVProfile returns the short-horizon IV forecast, or nil.
func (c *MassiveClient) AnalyzeIVProfile(ctx context.Context, symbol string, opts IVProfileOptions) (*models.IVForecast, error) {
	query := url.Values{"symbol": {symbol}}
	if opts.HorizonMinutes > 0 {
		query.Set("horizonMinutes", strconv.Itoa(opts.HorizonMinutes))
	}
	if opts.Expiry != "" {
		query.Set("expiry", opts.Expiry)
	}
	body, err := c.get(ctx, "ivprofile", c.endpoint(c.cfg.IVProfilePath, query))
	if err != nil {
		return nil, err
	}
	return DecodeIVForecast(body)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
