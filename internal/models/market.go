package models

import (
	"sort"
	"time"
)

// Bar represents OHLCV data for one minute.
type Bar struct {
	Timestamp time.Time `json:"t" yaml:"t"`
	Open      float64   `json:"o" yaml:"o"`
	High      float64   `json:"h" yaml:"h"`
	Low       float64   `json:"l" yaml:"l"`
	Close     float64   `json:"c" yaml:"c"`
	Volume    int64     `json:"v" yaml:"v"`
}

// Range returns high minus low.
func (b Bar) Range() float64 {
	return b.High - b.Low
}

// SortBars returns a copy of bars ordered by timestamp ascending.
func SortBars(bars []Bar) []Bar {
	out := append([]Bar(nil), bars...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// Tick is the latest trade print for a symbol.
type Tick struct {
	Symbol    string    `json:"symbol" yaml:"symbol"`
	Price     float64   `json:"price" yaml:"price"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// EventImpact is the importance rating of a macro calendar event.
type EventImpact string

const (
	ImpactHigh   EventImpact = "high"
	ImpactMedium EventImpact = "medium"
	ImpactLow    EventImpact = "low"
)

// EconomicEvent is a scheduled macro release.
type EconomicEvent struct {
	Date   string      `json:"date" yaml:"date" validate:"required,datetime=2006-01-02"`
	Event  string      `json:"event" yaml:"event" validate:"required"`
	Impact EventImpact `json:"impact" yaml:"impact" validate:"required,oneof=high medium low"`
}

// NewsArticle is a headline returned by the news provider.
type NewsArticle struct {
	ID          string    `json:"id" yaml:"id"`
	Title       string    `json:"title" yaml:"title" validate:"required"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Keywords    []string  `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	PublishedAt time.Time `json:"published_utc" yaml:"published_utc" validate:"required"`
	ArticleURL  string    `json:"article_url" yaml:"article_url" validate:"omitempty,url"`
	Tickers     []string  `json:"tickers,omitempty" yaml:"tickers,omitempty"`
}

// IVDirection is the sign of a forecast IV move.
type IVDirection string

const (
	IVUp   IVDirection = "up"
	IVDown IVDirection = "down"
	IVFlat IVDirection = "flat"
)

// IVForecast is a short-horizon implied volatility forecast.
type IVForecast struct {
	HorizonMinutes int                `json:"horizonMinutes" yaml:"horizonMinutes"`
	PredictedIV    float64            `json:"predictedIV" yaml:"predictedIV"`
	CurrentIV      float64            `json:"currentIV" yaml:"currentIV"`
	DeltaIV        float64            `json:"deltaIV" yaml:"deltaIV"`
	Direction      IVDirection        `json:"direction" yaml:"direction" validate:"oneof=up down flat"`
	Confidence     float64            `json:"confidence" yaml:"confidence" validate:"gte=0,lte=1"`
	Features       map[string]float64 `json:"features,omitempty" yaml:"features,omitempty"`
}

// GEXLevels are the dealer-gamma reference strikes used for stop scaling.
type GEXLevels struct {
	NetGEX    *float64 `json:"netGex,omitempty" yaml:"netGex,omitempty"`
	CallWall  *float64 `json:"callWall,omitempty" yaml:"callWall,omitempty"`
	PutWall   *float64 `json:"putWall,omitempty" yaml:"putWall,omitempty"`
	FlipPoint *float64 `json:"flipPoint,omitempty" yaml:"flipPoint,omitempty"`
}
