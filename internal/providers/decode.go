package providers

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"spx-engine/internal/errors"
	"spx-engine/internal/models"
)

var validate = validator.New()

// Decoded is a validated list plus the number of elements dropped for failing
// validation. Only a malformed envelope is an error.
type Decoded[T any] struct {
	Items   []T
	Dropped int
}

func decodeEnvelope(source string, data []byte, dest interface{}) error {
	if err := json.Unmarshal(data, dest); err != nil {
		return errors.NewDecodeError(source, "", "malformed envelope", err)
	}
	return nil
}

func validItem(v interface{}) bool {
	if err := defaults.Set(v); err != nil {
		return false
	}
	return validate.Struct(v) == nil
}

type aggregateDTO struct {
	T int64   `json:"t" validate:"gt=0"`
	O float64 `json:"o" validate:"gt=0"`
	H float64 `json:"h" validate:"gt=0,gtefield=L"`
	L float64 `json:"l" validate:"gt=0"`
	C float64 `json:"c" validate:"gt=0"`
	V float64 `json:"v" validate:"gte=0"`
}

// DecodeMinuteAggregates decodes an aggregates response into bars ordered by time.
func DecodeMinuteAggregates(data []byte) (Decoded[models.Bar], error) {
	var env struct {
		Results []aggregateDTO `json:"results"`
	}
	if err := decodeEnvelope("aggregates", data, &env); err != nil {
		return Decoded[models.Bar]{}, err
	}

	out := Decoded[models.Bar]{Items: make([]models.Bar, 0, len(env.Results))}
	for i := range env.Results {
		a := env.Results[i]
		if !validItem(&a) || a.H < math.Max(a.O, a.C) || a.L > math.Min(a.O, a.C) {
			out.Dropped++
			continue
		}
		out.Items = append(out.Items, models.Bar{
			Timestamp: time.UnixMilli(a.T).UTC(),
			Open:      a.O,
			High:      a.H,
			Low:       a.L,
			Close:     a.C,
			Volume:    int64(math.Round(a.V)),
		})
	}
	out.Items = models.SortBars(out.Items)
	return out, nil
}

type tickDTO struct {
	Price       float64 `json:"p"`
	Value       float64 `json:"value"`
	Timestamp   int64   `json:"t"`
	LastUpdated int64   `json:"last_updated"`
}

// DecodeLatestTick decodes a last-trade object or an index snapshot array. A
// missing or non-positive price decodes to nil.
func DecodeLatestTick(symbol string, data []byte) (*models.Tick, error) {
	var env struct {
		Results json.RawMessage `json:"results"`
	}
	if err := decodeEnvelope("tick", data, &env); err != nil {
		return nil, err
	}

	raw := strings.TrimSpace(string(env.Results))
	var dto tickDTO
	switch {
	case raw == "" || raw == "null":
		return nil, nil
	case strings.HasPrefix(raw, "["):
		var list []tickDTO
		if err := json.Unmarshal(env.Results, &list); err != nil {
			return nil, errors.NewDecodeError("tick", "results", "malformed list", err)
		}
		if len(list) == 0 {
			return nil, nil
		}
		dto = list[0]
	default:
		if err := json.Unmarshal(env.Results, &dto); err != nil {
			return nil, errors.NewDecodeError("tick", "results", "malformed object", err)
		}
	}

	price := dto.Price
	if price <= 0 {
		price = dto.Value
	}
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return nil, nil
	}
	tick := &models.Tick{Symbol: symbol, Price: price}
	switch {
	case dto.Timestamp > 0:
		tick.Timestamp = time.Unix(0, dto.Timestamp).UTC()
	case dto.LastUpdated > 0:
		tick.Timestamp = time.Unix(0, dto.LastUpdated).UTC()
	}
	return tick, nil
}

type newsDTO struct {
	ID          string   `json:"id"`
	Title       string   `json:"title" validate:"required"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
	Published   string   `json:"published_utc" validate:"required"`
	ArticleURL  string   `json:"article_url" validate:"omitempty,url"`
	Tickers     []string `json:"tickers"`
}

// DecodeNews decodes a news response. Articles without an id or url, a title,
// or a parseable publish time are dropped.
func DecodeNews(data []byte) (Decoded[models.NewsArticle], error) {
	var env struct {
		Results []newsDTO `json:"results"`
	}
	if err := decodeEnvelope("news", data, &env); err != nil {
		return Decoded[models.NewsArticle]{}, err
	}

	out := Decoded[models.NewsArticle]{Items: make([]models.NewsArticle, 0, len(env.Results))}
	for i := range env.Results {
		n := env.Results[i]
		if !validItem(&n) || (n.ID == "" && n.ArticleURL == "") {
			out.Dropped++
			continue
		}
		published, err := time.Parse(time.RFC3339, n.Published)
		if err != nil {
			out.Dropped++
			continue
		}
		out.Items = append(out.Items, models.NewsArticle{
			ID:          n.ID,
			Title:       n.Title,
			Description: n.Description,
			Keywords:    n.Keywords,
			PublishedAt: published.UTC(),
			ArticleURL:  n.ArticleURL,
			Tickers:     n.Tickers,
		})
	}
	return out, nil
}

type economicEventDTO struct {
	Date   string `json:"date" validate:"required,datetime=2006-01-02"`
	Event  string `json:"event" validate:"required"`
	Impact string `json:"impact" default:"medium" validate:"oneof=high medium low"`
}

// DecodeEconomicCalendar decodes a macro calendar response.
func DecodeEconomicCalendar(data []byte) (Decoded[models.EconomicEvent], error) {
	var env struct {
		Events []economicEventDTO `json:"events"`
	}
	if err := decodeEnvelope("calendar", data, &env); err != nil {
		return Decoded[models.EconomicEvent]{}, err
	}

	out := Decoded[models.EconomicEvent]{Items: make([]models.EconomicEvent, 0, len(env.Events))}
	for i := range env.Events {
		e := env.Events[i]
		e.Impact = strings.ToLower(strings.TrimSpace(e.Impact))
		if !validItem(&e) {
			out.Dropped++
			continue
		}
		out.Items = append(out.Items, models.EconomicEvent{
			Date:   e.Date,
			Event:  strings.TrimSpace(e.Event),
			Impact: models.EventImpact(e.Impact),
		})
	}
	return out, nil
}

type optionSnapshotDTO struct {
	Details struct {
		Ticker       string  `json:"ticker"`
		StrikePrice  float64 `json:"strike_price" validate:"gt=0"`
		Expiration   string  `json:"expiration_date" validate:"required,datetime=2006-01-02"`
		ContractType string  `json:"contract_type" validate:"oneof=call put"`
	} `json:"details"`
	LastQuote struct {
		Bid float64 `json:"bid" validate:"gte=0"`
		Ask float64 `json:"ask" validate:"gte=0"`
	} `json:"last_quote"`
	LastTrade struct {
		Price float64 `json:"price"`
	} `json:"last_trade"`
	Day struct {
		Volume float64 `json:"volume" validate:"gte=0"`
	} `json:"day"`
	OpenInterest float64 `json:"open_interest" validate:"gte=0"`
	Greeks       struct {
		Delta float64 `json:"delta" validate:"gte=-1,lte=1"`
		Gamma float64 `json:"gamma"`
		Theta float64 `json:"theta"`
		Vega  float64 `json:"vega"`
		Rho   float64 `json:"rho"`
	} `json:"greeks"`
	ImpliedVolatility float64 `json:"implied_volatility" validate:"gte=0"`
	UnderlyingAsset   struct {
		Price float64 `json:"price"`
	} `json:"underlying_asset"`
}

// ChainPage is one page of an options chain snapshot.
type ChainPage struct {
	Chain   models.OptionsChain
	Dropped int
	NextURL string
}

// DecodeOptionsChain decodes an options snapshot response. Intrinsic and
// extrinsic values are derived from the underlying price when present.
func DecodeOptionsChain(expiry string, data []byte) (ChainPage, error) {
	var env struct {
		Results []optionSnapshotDTO `json:"results"`
		NextURL string              `json:"next_url"`
	}
	if err := decodeEnvelope("chain", data, &env); err != nil {
		return ChainPage{}, err
	}

	page := ChainPage{Chain: models.OptionsChain{Expiry: expiry}, NextURL: env.NextURL}
	for i := range env.Results {
		o := env.Results[i]
		if !validItem(&o) {
			page.Dropped++
			continue
		}
		c := models.OptionContract{
			Symbol:       "SPX",
			Strike:       o.Details.StrikePrice,
			Expiry:       o.Details.Expiration,
			Type:         models.OptionType(o.Details.ContractType),
			Bid:          o.LastQuote.Bid,
			Ask:          o.LastQuote.Ask,
			Last:         o.LastTrade.Price,
			Volume:       int64(math.Round(o.Day.Volume)),
			OpenInterest: int64(math.Round(o.OpenInterest)),
			OptionGreeks: models.OptionGreeks{
				Delta: o.Greeks.Delta,
				Gamma: o.Greeks.Gamma,
				Theta: o.Greeks.Theta,
				Vega:  o.Greeks.Vega,
				Rho:   o.Greeks.Rho,
			},
			ImpliedVolatility: o.ImpliedVolatility,
		}
		if spot := o.UnderlyingAsset.Price; spot > 0 {
			if c.Type == models.OptionCall {
				c.IntrinsicValue = math.Max(0, spot-c.Strike)
			} else {
				c.IntrinsicValue = math.Max(0, c.Strike-spot)
			}
			c.ExtrinsicValue = math.Max(0, c.Mid()-c.IntrinsicValue)
		}
		if c.Type == models.OptionCall {
			page.Chain.Calls = append(page.Chain.Calls, c)
		} else {
			page.Chain.Puts = append(page.Chain.Puts, c)
		}
	}
	return page, nil
}

// ExpirationPage is one page of listed expirations.
type ExpirationPage struct {
	Dates   []string
	NextURL string
}

// DecodeExpirations collects distinct ascending expiration dates from a
// contracts reference response.
func DecodeExpirations(data []byte) (ExpirationPage, error) {
	var env struct {
		Results []struct {
			Expiration string `json:"expiration_date"`
		} `json:"results"`
		NextURL string `json:"next_url"`
	}
	if err := decodeEnvelope("expirations", data, &env); err != nil {
		return ExpirationPage{}, err
	}

	seen := make(map[string]struct{}, len(env.Results))
	page := ExpirationPage{NextURL: env.NextURL}
	for _, r := range env.Results {
		if _, err := time.Parse("2006-01-02", r.Expiration); err != nil {
			continue
		}
		if _, ok := seen[r.Expiration]; ok {
			continue
		}
		seen[r.Expiration] = struct{}{}
		page.Dates = append(page.Dates, r.Expiration)
	}
	sort.Strings(page.Dates)
	return page, nil
}

// DecodeMarketStatus decodes a live market status response.
func DecodeMarketStatus(data []byte) (*LiveMarketStatus, error) {
	var st LiveMarketStatus
	if err := decodeEnvelope("market_status", data, &st); err != nil {
		return nil, err
	}
	st.Market = strings.ToLower(strings.TrimSpace(st.Market))
	if err := validate.Struct(&st); err != nil {
		return nil, errors.NewDecodeError("market_status", "market", "required", err)
	}
	return &st, nil
}

// DecodeIVForecast decodes an IV profile response. A null forecast decodes to nil.
func DecodeIVForecast(data []byte) (*models.IVForecast, error) {
	var env struct {
		IVForecast *models.IVForecast `json:"ivForecast"`
	}
	if err := decodeEnvelope("iv_profile", data, &env); err != nil {
		return nil, err
	}
	if env.IVForecast == nil {
		return nil, nil
	}
	f := env.IVForecast
	if f.Direction == "" {
		f.Direction = models.IVFlat
	}
	if err := validate.Struct(f); err != nil {
		return nil, errors.NewDecodeError("iv_profile", "ivForecast", fmt.Sprintf("invalid forecast: %v", err), err)
	}
	return f, nil
}
