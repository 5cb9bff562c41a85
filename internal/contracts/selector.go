package contracts

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"spx-engine/internal/analysis/indicators"
	"spx-engine/internal/cache"
	"spx-engine/internal/errors"
	"spx-engine/internal/logging"
	"spx-engine/internal/metrics"
	"spx-engine/internal/models"
	"spx-engine/internal/providers"
)

// CacheKeyPrefix namespaces cached recommendations.
const CacheKeyPrefix = "spx_command_center:contract:"

// Config tunes the selector.
type Config struct {
	Symbol              string  `mapstructure:"symbol" default:"SPX"`
	StrikeWidth         float64 `mapstructure:"strike_width" default:"100"`
	CacheTTLSeconds     int     `mapstructure:"cache_ttl_seconds" default:"10"`
	ExpiryLookaheadDays int     `mapstructure:"expiry_lookahead_days" default:"7"`
	IVHorizonMinutes    int     `mapstructure:"iv_horizon_minutes" default:"30"`
	IVTimeoutMillis     int     `mapstructure:"iv_timeout_millis" default:"1500"`
	IVTimingEnabled     bool    `mapstructure:"iv_timing_enabled" default:"true"`

	// Sizing defaults for account snapshots that leave the percentages unset.
	MaxRiskPct                float64 `mapstructure:"max_risk_pct" default:"0.02"`
	BuyingPowerUtilizationPct float64 `mapstructure:"buying_power_utilization_pct" default:"0.9"`
}

// DefaultConfig returns the production selector settings.
func DefaultConfig() Config {
	var cfg Config
	defaults.MustSet(&cfg)
	return cfg
}

// Dependencies are the selector's collaborators. Chains is required.
type Dependencies struct {
	Setups       providers.SetupProvider
	Chains       providers.OptionsChainProvider
	IV           providers.IVForecastProvider
	RiskContexts providers.RiskContextProvider
	Cache        cache.Cache
	Metrics      *metrics.Recorder
}

// Request identifies the setup to select a contract for. Setup takes
// precedence over SetupID; with neither, the first actionable active setup is used.
type Request struct {
	SetupID      string
	Setup        *models.Setup
	RiskContext  *models.RiskContext
	UserID       string
	ForceRefresh bool
	Now          time.Time
}

// Selector picks the option contract to trade for a setup.
type Selector struct {
	deps   Dependencies
	cfg    Config
	expiry *ExpiryPolicy
	logger zerolog.Logger
}

// NewSelector creates a selector.
func NewSelector(deps Dependencies, cfg Config, logger zerolog.Logger) *Selector {
	return &Selector{
		deps:   deps,
		cfg:    cfg,
		expiry: NewExpiryPolicy(deps.Chains, cfg.ExpiryLookaheadDays),
		logger: logging.WithComponent(logger, "contract_selector"),
	}
}

// GetContractRecommendation returns the best contract for the requested setup,
// or nil when none can be recommended.
func (s *Selector) GetContractRecommendation(ctx context.Context, req Request) (*models.ContractRecommendation, error) {
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	if req.Setup == nil && req.SetupID == "" && s.deps.Setups == nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "contract request needs a setup, a setup id or a setup provider")
	}

	rc := NormalizeRiskContext(s.withSizingDefaults(s.resolveRiskContext(ctx, req)))
	cacheKey := CacheKey(req.SetupID, rc)
	cacheEligible := req.Setup == nil && !req.ForceRefresh
	if cacheEligible {
		if cached, ok := cache.Lookup[models.ContractRecommendation](ctx, s.deps.Cache, cacheKey); ok {
			s.deps.Metrics.RecordSelectorOutcome(metrics.OutcomeCached)
			return &cached, nil
		}
	}

	setup := s.resolveSetup(ctx, req, now)
	if setup == nil {
		s.logger.Warn().Str("setup_id", req.SetupID).Msg("No setup available for contract selection")
		s.deps.Metrics.RecordSelectorOutcome(metrics.OutcomeNoSetup)
		return nil, nil
	}
	logger := logging.WithSetup(s.logger, setup.ID)
	if !setup.Status.IsActionable() {
		logger.Warn().Str("status", string(setup.Status)).Msg("Skipping contract selection for non-actionable setup")
		s.deps.Metrics.RecordSelectorOutcome(metrics.OutcomeNoSetup)
		return nil, nil
	}

	zeroDTEBlocked := ZeroDTEBlocked(rc)
	expiry, err := s.expiry.ResolveTargetExpiry(ctx, s.cfg.Symbol, now, !zeroDTEBlocked)
	if err != nil {
		logging.LogProviderFallback(logger, "chains", "FetchExpirationDates", "no expiry", err)
		s.deps.Metrics.RecordProviderFallback("chains", "FetchExpirationDates")
	}
	if expiry == "" {
		logger.Warn().Bool("zero_dte_blocked", zeroDTEBlocked).Msg("Could not resolve target expiry")
		s.deps.Metrics.RecordSelectorOutcome(metrics.OutcomeNoExpiry)
		return nil, nil
	}

	chain, forecast := s.fetchChainAndForecast(ctx, logger, *setup, expiry)
	if chain == nil {
		s.deps.Metrics.RecordSelectorOutcome(metrics.OutcomeNoCandidates)
		return nil, nil
	}
	contracts := chain.All()

	relaxed := false
	candidates := FilterCandidates(contracts, *setup, FilterOptions{Now: now})
	if len(candidates) == 0 {
		relaxed = true
		candidates = FilterCandidates(contracts, *setup, FilterOptions{Relaxed: true, Now: now})
		logger.Info().Int("chain_size", len(contracts)).Int("relaxed_candidates", len(candidates)).
			Msg("Strict contract filter empty, using relaxed pass")
	}

	timing := BuildIVTimingSignal(forecast)
	ranked := Rank(*setup, candidates, now, vegaWeightedBias(timing, candidates))
	if len(ranked) == 0 {
		logger.Warn().
			Str("direction", string(setup.Direction)).
			Str("type", string(setup.Type)).
			Str("expiry", expiry).
			Msg("No suitable contract found")
		s.deps.Metrics.RecordSelectorOutcome(metrics.OutcomeNoCandidates)
		return nil, nil
	}

	rec := BuildRecommendation(*setup, ranked, rc, timing, now)
	rec.Relaxed = relaxed
	logging.LogContractSelection(logger, setup.ID, rec.Description, rec.Score, relaxed)
	if relaxed {
		s.deps.Metrics.RecordSelectorOutcome(metrics.OutcomeRelaxed)
	} else {
		s.deps.Metrics.RecordSelectorOutcome(metrics.OutcomeRecommended)
	}
	if cacheEligible {
		cache.Store(ctx, s.deps.Cache, cacheKey, rec, time.Duration(s.cfg.CacheTTLSeconds)*time.Second)
	}
	return rec, nil
}

// CacheKey builds the recommendation cache key for a setup id and risk context.
func CacheKey(setupID string, rc *models.RiskContext) string {
	if setupID == "" {
		setupID = "active"
	}
	return CacheKeyPrefix + setupID + ":" + RiskFingerprint(rc)
}

func (s *Selector) resolveRiskContext(ctx context.Context, req Request) *models.RiskContext {
	if req.RiskContext != nil {
		return req.RiskContext
	}
	if s.deps.RiskContexts == nil || req.UserID == "" {
		return nil
	}
	rc, err := s.deps.RiskContexts.LatestRiskContext(ctx, req.UserID)
	if err != nil {
		logging.LogProviderFallback(s.logger, "risk_context", "LatestRiskContext", "unsized", err)
		s.deps.Metrics.RecordProviderFallback("risk_context", "LatestRiskContext")
		return nil
	}
	return rc
}

// withSizingDefaults applies the configured percentages where rc leaves them zero.
func (s *Selector) withSizingDefaults(rc *models.RiskContext) *models.RiskContext {
	if rc == nil {
		return nil
	}
	out := *rc
	if out.MaxRiskPct == 0 {
		out.MaxRiskPct = s.cfg.MaxRiskPct
	}
	if out.BuyingPowerUtilizationPct == 0 {
		out.BuyingPowerUtilizationPct = s.cfg.BuyingPowerUtilizationPct
	}
	return &out
}

func (s *Selector) resolveSetup(ctx context.Context, req Request, now time.Time) *models.Setup {
	if req.Setup != nil {
		return req.Setup
	}
	if s.deps.Setups == nil {
		return nil
	}
	q := providers.SetupQuery{UserID: req.UserID, ForceRefresh: req.ForceRefresh, Now: now}
	if req.SetupID != "" {
		setup, err := s.deps.Setups.GetSetupByID(ctx, req.SetupID, q)
		if err != nil {
			logging.LogProviderFallback(s.logger, "setups", "GetSetupByID", "no setup", err)
			s.deps.Metrics.RecordProviderFallback("setups", "GetSetupByID")
			return nil
		}
		return setup
	}
	active, err := s.deps.Setups.DetectActiveSetups(ctx, q)
	if err != nil {
		logging.LogProviderFallback(s.logger, "setups", "DetectActiveSetups", "no setup", err)
		s.deps.Metrics.RecordProviderFallback("setups", "DetectActiveSetups")
		return nil
	}
	for i := range active {
		if active[i].Status.IsActionable() {
			return &active[i]
		}
	}
	return nil
}

// fetchChainAndForecast loads the chain and the IV forecast concurrently.
// The forecast is best effort and bounded by the IV timeout.
func (s *Selector) fetchChainAndForecast(ctx context.Context, logger zerolog.Logger, setup models.Setup, expiry string) (*models.OptionsChain, *models.IVForecast) {
	var (
		chain    *models.OptionsChain
		forecast *models.IVForecast
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := s.deps.Chains.FetchOptionsChain(gctx, s.cfg.Symbol, expiry, providers.StrikeRange{
			Center: setup.EntryZone.Mid(),
			Width:  s.cfg.StrikeWidth,
		})
		if err != nil {
			logging.LogProviderFallback(logger, "chains", "FetchOptionsChain", "no candidates", err)
			s.deps.Metrics.RecordProviderFallback("chains", "FetchOptionsChain")
			return nil
		}
		chain = c
		return nil
	})
	if s.cfg.IVTimingEnabled && s.deps.IV != nil {
		g.Go(func() error {
			ivCtx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.IVTimeoutMillis)*time.Millisecond)
			defer cancel()
			f, err := s.deps.IV.AnalyzeIVProfile(ivCtx, s.cfg.Symbol, providers.IVProfileOptions{
				HorizonMinutes: s.cfg.IVHorizonMinutes,
				Expiry:         expiry,
			})
			if err != nil {
				logging.LogProviderFallback(logger, "iv", "AnalyzeIVProfile", "no timing overlay", err)
				s.deps.Metrics.RecordProviderFallback("iv", "AnalyzeIVProfile")
				return nil
			}
			forecast = f
			return nil
		})
	}
	_ = g.Wait()
	return chain, forecast
}

// BuildRecommendation turns the ranked list into a recommendation. ranked must be non-empty.
func BuildRecommendation(setup models.Setup, ranked []RankedContract, rc *models.RiskContext, timing *models.IVTimingSignal, now time.Time) *models.ContractRecommendation {
	best := ranked[0]
	c := best.Contract
	mid := c.Mid()
	entry := setup.EntryZone.Mid()
	move1 := math.Abs(setup.Target1.Price - entry)
	move2 := math.Abs(setup.Target2.Price - entry)
	absDelta := math.Abs(c.Delta)
	projected1 := mid + absDelta*move1*0.1 + c.Gamma*move1*0.8
	projected2 := mid + absDelta*move2*0.1 + c.Gamma*move2*0.9
	risk := math.Max(0.01, math.Abs(entry-setup.Stop))

	spreadPct := 0.0
	if sp := c.SpreadPct(); indicators.Finite(sp) {
		spreadPct = indicators.Round(sp*100, 2)
	}
	health := ScoreContractHealth(c)
	dte := DaysToExpiry(c.Expiry, now)

	rec := &models.ContractRecommendation{
		SetupID:      setup.ID,
		Description:  c.Description(),
		Strike:       indicators.Round(c.Strike, 2),
		Expiry:       c.Expiry,
		Type:         c.Type,
		DaysToExpiry: dte,
		Greeks: models.OptionGreeks{
			Delta: indicators.Round(c.Delta, 3),
			Gamma: indicators.Round(c.Gamma, 3),
			Theta: indicators.Round(c.Theta, 3),
			Vega:  indicators.Round(c.Vega, 3),
			Rho:   indicators.Round(c.Rho, 3),
		},
		ImpliedVolatility:    indicators.Round(c.ImpliedVolatility, 4),
		Bid:                  indicators.Round(c.Bid, 2),
		Ask:                  indicators.Round(c.Ask, 2),
		Mid:                  indicators.Round(mid, 2),
		PremiumMid:           indicators.Round(mid*ContractMultiplier, 2),
		PremiumAsk:           indicators.Round(c.Ask*ContractMultiplier, 2),
		RiskReward:           indicators.Round(move1/risk, 2),
		ExpectedPnLAtTarget1: indicators.Round((projected1-mid)*ContractMultiplier, 2),
		ExpectedPnLAtTarget2: indicators.Round((projected2-mid)*ContractMultiplier, 2),
		MaxLoss:              maxLoss(c),
		SpreadPct:            spreadPct,
		LiquidityScore:       LiquidityScore(c),
		CostBand:             CostBandFor(c.Ask),
		Score:                indicators.Round(best.Score, 2),
		Health:               health,
		Alternatives:         buildAlternatives(ranked[1:]),
		IVTiming:             timing,
	}

	rec.Sizing = CalculateSizing(c.Ask, rc)
	if rec.Sizing != nil && IsZeroDTE(c.Expiry, now) && ZeroDTEBlocked(rc) {
		rec.Sizing.RecommendedContracts = 0
		rec.Sizing.BlockedReason = BlockedPDTZeroDTE
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Selected for %s with model score %.1f and %s contract health (%v).",
		setup.Type, indicators.Round(best.Score, 1), strings.ToUpper(string(health.Tier)), health.Score)
	if timing != nil && timing.Signal != SignalNeutral {
		b.WriteString(" ")
		b.WriteString(timing.Reason)
	}
	rec.Reasoning = b.String()
	return rec
}

func maxLoss(c models.OptionContract) float64 {
	return indicators.Round(math.Max(c.Ask, c.Mid())*ContractMultiplier, 2)
}

var tradeoffs = map[models.AlternativeTag]string{
	models.TagTighter:          "Lower spread, better execution quality.",
	models.TagSafer:            "Lower max loss per contract.",
	models.TagHigherConviction: "Highest model score among alternatives.",
}

// buildAlternatives converts up to three runners-up and tags the tightest,
// the safest and the highest scoring, at most one tag each.
func buildAlternatives(rest []RankedContract) []models.ContractAlternative {
	if len(rest) > 3 {
		rest = rest[:3]
	}
	alts := make([]models.ContractAlternative, 0, len(rest))
	for _, r := range rest {
		c := r.Contract
		spreadPct := 0.0
		if sp := c.SpreadPct(); indicators.Finite(sp) {
			spreadPct = indicators.Round(sp*100, 2)
		}
		alts = append(alts, models.ContractAlternative{
			Description: c.Description(),
			Strike:      indicators.Round(c.Strike, 2),
			Expiry:      c.Expiry,
			Type:        c.Type,
			Delta:       indicators.Round(c.Delta, 3),
			Bid:         indicators.Round(c.Bid, 2),
			Ask:         indicators.Round(c.Ask, 2),
			SpreadPct:   spreadPct,
			MaxLoss:     maxLoss(c),
			Score:       indicators.Round(r.Score, 2),
		})
	}
	if len(alts) == 0 {
		return alts
	}

	tag := func(idx int, t models.AlternativeTag) {
		if alts[idx].Tag == "" {
			alts[idx].Tag = t
			alts[idx].Tradeoff = tradeoffs[t]
		}
	}
	tag(bestIndex(alts, func(a, b models.ContractAlternative) bool { return a.SpreadPct < b.SpreadPct }), models.TagTighter)
	tag(bestIndex(alts, func(a, b models.ContractAlternative) bool { return a.MaxLoss < b.MaxLoss }), models.TagSafer)
	tag(bestIndex(alts, func(a, b models.ContractAlternative) bool { return a.Score > b.Score }), models.TagHigherConviction)
	return alts
}

func bestIndex(alts []models.ContractAlternative, better func(a, b models.ContractAlternative) bool) int {
	best := 0
	for i := 1; i < len(alts); i++ {
		if better(alts[i], alts[best]) {
			best = i
		}
	}
	return best
}
