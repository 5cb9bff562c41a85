// Package news scores recent SPX/SPY/VIX headlines into a weighted sentiment
// snapshot consumed by the event risk gate.
package news

import (
	"math"
	"strings"
	"time"

	"spx-engine/internal/analysis/indicators"
	"spx-engine/internal/models"
)

// Bias is the directional read of a score.
type Bias string

const (
	BiasBullish Bias = "bullish"
	BiasBearish Bias = "bearish"
	BiasNeutral Bias = "neutral"
)

// Snapshot sources.
const (
	SourceComputed = "computed"
	SourceCached   = "cached"
	SourceFallback = "fallback"
)

const biasThreshold = 12

var positivePhrases = []string{
	"rally", "surge", "beats", "beat estimates", "upgrade",
	"optimism", "dovish", "cooling inflation", "risk-on", "strong demand",
}

var negativePhrases = []string{
	"selloff", "plunge", "misses", "missed estimates", "downgrade", "concern",
	"hawkish", "hot inflation", "risk-off", "recession", "shock",
}

var highImpactPhrases = []string{
	"fomc", "federal reserve", "powell", "cpi", "inflation", "nfp", "nonfarm payroll",
	"employment", "jobless", "pce", "treasury yield", "earnings guidance", "volatility",
}

// ScoredArticle is a headline with its phrase-based sentiment.
type ScoredArticle struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	PublishedAt    time.Time `json:"publishedUtc"`
	ArticleURL     string    `json:"articleUrl"`
	Tickers        []string  `json:"tickers"`
	MarketMoving   bool      `json:"marketMoving"`
	SentimentScore float64   `json:"sentimentScore"`
	Sentiment      Bias      `json:"sentiment"`
}

// Snapshot is the aggregated news read at a point in time.
type Snapshot struct {
	GeneratedAt           time.Time       `json:"generatedAt"`
	Source                string          `json:"source"`
	Bias                  Bias            `json:"bias"`
	Score                 float64         `json:"score"`
	MarketMovingCount     int             `json:"marketMovingCount"`
	RecentHighImpactCount int             `json:"recentHighImpactCount"`
	LatestPublishedAt     *time.Time      `json:"latestPublishedAt,omitempty"`
	Articles              []ScoredArticle `json:"articles"`
}

// FallbackSnapshot is the neutral read used when no news is available.
func FallbackSnapshot(asOf time.Time) Snapshot {
	return Snapshot{
		GeneratedAt: asOf,
		Source:      SourceFallback,
		Bias:        BiasNeutral,
		Articles:    []ScoredArticle{},
	}
}

// BiasFor maps a score onto bullish, bearish or neutral.
func BiasFor(score float64) Bias {
	switch {
	case score >= biasThreshold:
		return BiasBullish
	case score <= -biasThreshold:
		return BiasBearish
	default:
		return BiasNeutral
	}
}

func articleText(a models.NewsArticle) string {
	parts := append([]string{a.Title, a.Description}, a.Keywords...)
	return strings.ToLower(strings.Join(parts, " "))
}

func phraseHits(text string, phrases []string) int {
	n := 0
	for _, p := range phrases {
		if strings.Contains(text, p) {
			n++
		}
	}
	return n
}

// ScoreArticle scores one headline by counting phrase hits.
func ScoreArticle(a models.NewsArticle) ScoredArticle {
	text := articleText(a)
	pos := phraseHits(text, positivePhrases)
	neg := phraseHits(text, negativePhrases)
	score := indicators.Clamp(float64(pos*16-neg*16), -100, 100)

	id := a.ID
	if id == "" {
		id = a.ArticleURL
	}
	return ScoredArticle{
		ID:             id,
		Title:          a.Title,
		PublishedAt:    a.PublishedAt,
		ArticleURL:     a.ArticleURL,
		Tickers:        append([]string{}, a.Tickers...),
		MarketMoving:   phraseHits(text, highImpactPhrases) > 0,
		SentimentScore: indicators.Round(score, 2),
		Sentiment:      BiasFor(score),
	}
}

// Aggregate builds a computed snapshot from already scored articles, weighting
// fresh and market-moving headlines more heavily.
func Aggregate(asOf time.Time, articles []ScoredArticle) Snapshot {
	var totalWeight, weighted float64
	var moving, recent int

	for _, a := range articles {
		age := 999.0
		if !a.PublishedAt.IsZero() {
			age = math.Max(0, asOf.Sub(a.PublishedAt).Minutes())
		}
		weight := 0.65
		switch {
		case age <= 30:
			weight = 1.25
		case age <= 120:
			weight = 1.0
		}
		if a.MarketMoving {
			weight += 0.35
			moving++
			if age <= 60 {
				recent++
			}
		}
		totalWeight += weight
		weighted += a.SentimentScore * weight
	}

	score := 0.0
	if totalWeight > 0 {
		score = indicators.Clamp(weighted/totalWeight, -100, 100)
	}

	snap := Snapshot{
		GeneratedAt:           asOf,
		Source:                SourceComputed,
		Bias:                  BiasFor(score),
		Score:                 indicators.Round(score, 2),
		MarketMovingCount:     moving,
		RecentHighImpactCount: recent,
		Articles:              articles,
	}
	if snap.Articles == nil {
		snap.Articles = []ScoredArticle{}
	}
	if len(articles) > 0 {
		latest := articles[0].PublishedAt
		snap.LatestPublishedAt = &latest
	}
	return snap
}
