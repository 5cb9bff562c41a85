package news

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"spx-engine/internal/cache"
	"spx-engine/internal/logging"
	"spx-engine/internal/metrics"
	"spx-engine/internal/models"
	"spx-engine/internal/providers"
)

// CacheKey is where the latest computed snapshot is kept.
const CacheKey = "spx_command_center:news_sentiment:v1"

const (
	defaultCacheTTL = 300 * time.Second
	maxArticles     = 60
	perTickerLimit  = 25
)

// DefaultTickers are the symbols whose headlines feed the snapshot.
var DefaultTickers = []string{"SPX", "SPY", "VIX"}

// Config holds news service settings.
type Config struct {
	Tickers        []string
	PerTickerLimit int
	CacheTTL       time.Duration
}

// SnapshotOptions are per-call options.
type SnapshotOptions struct {
	ForceRefresh bool
	AsOf         time.Time
}

// Service builds and caches news sentiment snapshots.
type Service struct {
	provider providers.NewsProvider
	cache    cache.Cache
	cfg      Config
	metrics  *metrics.Recorder
	logger   zerolog.Logger
}

// NewService creates a news sentiment service. c and rec may be nil.
func NewService(provider providers.NewsProvider, c cache.Cache, cfg Config, rec *metrics.Recorder, logger zerolog.Logger) *Service {
	if len(cfg.Tickers) == 0 {
		cfg.Tickers = DefaultTickers
	}
	if cfg.PerTickerLimit <= 0 {
		cfg.PerTickerLimit = perTickerLimit
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	return &Service{
		provider: provider,
		cache:    c,
		cfg:      cfg,
		metrics:  rec,
		logger:   logging.WithComponent(logger, "news"),
	}
}

// Snapshot returns the current news read. It never fails: provider errors
// fall back to the last cached snapshot, then to FallbackSnapshot.
func (s *Service) Snapshot(ctx context.Context, opts SnapshotOptions) Snapshot {
	asOf := opts.AsOf
	if asOf.IsZero() {
		asOf = time.Now()
	}

	if !opts.ForceRefresh {
		if cached, ok := s.cached(ctx); ok {
			return cached
		}
	}

	articles, err := s.fetch(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to compute news sentiment snapshot")
		s.metrics.RecordProviderFallback("news", "GetTickerNews")
		if cached, ok := s.cached(ctx); ok {
			return cached
		}
		return FallbackSnapshot(asOf)
	}

	snap := Aggregate(asOf, articles)
	cache.Store(ctx, s.cache, CacheKey, snap, s.cfg.CacheTTL)
	return snap
}

func (s *Service) cached(ctx context.Context) (Snapshot, bool) {
	snap, ok := cache.Lookup[Snapshot](ctx, s.cache, CacheKey)
	if !ok || snap.Source == "" {
		return Snapshot{}, false
	}
	snap.Source = SourceCached
	return snap, true
}

// fetch pulls every ticker concurrently and returns deduplicated, scored
// articles newest first. Any ticker failure fails the whole fetch.
func (s *Service) fetch(ctx context.Context) ([]ScoredArticle, error) {
	results := make([][]models.NewsArticle, len(s.cfg.Tickers))
	g, gctx := errgroup.WithContext(ctx)
	for i, ticker := range s.cfg.Tickers {
		i, ticker := i, ticker
		g.Go(func() error {
			items, err := s.provider.GetTickerNews(gctx, ticker, s.cfg.PerTickerLimit)
			if err != nil {
				return err
			}
			results[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []models.NewsArticle
	for _, r := range results {
		all = append(all, r...)
	}
	return scoreAndRank(all), nil
}

func scoreAndRank(articles []models.NewsArticle) []ScoredArticle {
	seen := make(map[string]struct{}, len(articles))
	out := make([]ScoredArticle, 0, len(articles))
	for _, a := range articles {
		key := a.ID
		if key == "" {
			key = a.ArticleURL
		}
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, ScoreArticle(a))
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PublishedAt.After(out[j].PublishedAt)
	})
	if len(out) > maxArticles {
		out = out[:maxArticles]
	}
	return out
}
