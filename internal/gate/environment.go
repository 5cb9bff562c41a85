// Package gate decides whether the trading environment is fit for new entries
// and demotes setups when it is not.
package gate

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"spx-engine/internal/analysis/indicators"
	"spx-engine/internal/cache"
	"spx-engine/internal/logging"
	"spx-engine/internal/market"
	"spx-engine/internal/metrics"
	"spx-engine/internal/models"
	"spx-engine/internal/news"
	"spx-engine/internal/providers"
	"spx-engine/pkg/utils"
)

// Symbols used for fallback fetches.
const (
	SPXSymbol = "I:SPX"
	VIXSymbol = "I:VIX"
)

// VIXCacheKey holds the last VIX print.
const VIXCacheKey = "spx_command_center:vix:last"

const baseReadyThreshold = 3.0

// VixRegime buckets the VIX level.
type VixRegime string

const (
	VixNormal   VixRegime = "normal"
	VixElevated VixRegime = "elevated"
	VixExtreme  VixRegime = "extreme"
	VixUnknown  VixRegime = "unknown"
)

// ClassifyVixRegime buckets a VIX value. nil or non-finite is unknown.
func ClassifyVixRegime(vix *float64) VixRegime {
	if !indicators.FinitePtr(vix) {
		return VixUnknown
	}
	switch v := *vix; {
	case v < 18:
		return VixNormal
	case v < 25:
		return VixElevated
	default:
		return VixExtreme
	}
}

// GateInput carries one evaluation's inputs. Nil fields are fetched or derived.
type GateInput struct {
	EvaluationDate   time.Time
	CurrentPrice     *float64
	SessionOpenPrice *float64
	ATR14            *float64
	VixValue         *float64
	Bars             []models.Bar
	Regime           models.Regime
	RegimeConfidence float64

	MarketSession *market.SessionStatus
	EventRisk     *EventRiskDecision
	News          *news.Snapshot
	MacroEvents   []models.EconomicEvent
}

// VixCheck is the VIX regime sub-check.
type VixCheck struct {
	Passed bool      `json:"passed"`
	Regime VixRegime `json:"regime"`
	Value  *float64  `json:"value"`
	Reason string    `json:"reason,omitempty"`
}

// ExpectedMoveCheck is the expected-move consumption sub-check.
type ExpectedMoveCheck struct {
	Passed             bool     `json:"passed"`
	ConsumedPct        *float64 `json:"value"`
	ExpectedMovePoints *float64 `json:"expectedMovePoints"`
	Reason             string   `json:"reason,omitempty"`
}

// SessionCheck is the session time sub-check.
type SessionCheck struct {
	Passed            bool   `json:"passed"`
	Status            string `json:"status"`
	MinuteEt          int    `json:"minuteEt"`
	MinutesUntilClose *int   `json:"minutesUntilClose"`
	Source            string `json:"source"`
	Reason            string `json:"reason,omitempty"`
}

// CompressionCheck is the IV-RV compression sub-check.
type CompressionCheck struct {
	Passed         bool     `json:"passed"`
	Caution        bool     `json:"caution"`
	RealizedVolPct *float64 `json:"realizedVolPct"`
	ImpliedVolPct  *float64 `json:"impliedVolPct"`
	SpreadPct      *float64 `json:"spreadPct"`
	Reason         string   `json:"reason,omitempty"`
}

// Breakdown holds one record per sub-check.
type Breakdown struct {
	VixRegime               VixCheck          `json:"vixRegime"`
	ExpectedMoveConsumption ExpectedMoveCheck `json:"expectedMoveConsumption"`
	MacroCalendar           MacroCheck        `json:"macroCalendar"`
	SessionTime             SessionCheck      `json:"sessionTime"`
	Compression             CompressionCheck  `json:"compression"`
	EventRisk               EventRiskDecision `json:"eventRisk"`
}

// EnvironmentGateDecision is the go/no-go verdict for one cycle.
type EnvironmentGateDecision struct {
	Passed                bool      `json:"passed"`
	Reason                string    `json:"reason,omitempty"`
	Reasons               []string  `json:"reasons"`
	Caution               bool      `json:"caution"`
	VixRegime             VixRegime `json:"vixRegime"`
	DynamicReadyThreshold float64   `json:"dynamicReadyThreshold"`
	Breakdown             Breakdown `json:"breakdown"`
	EvaluatedAt           time.Time `json:"evaluatedAt"`
}

// BlockingCheck names the first failing sub-check, or "" when passed.
func (d EnvironmentGateDecision) BlockingCheck() string {
	b := d.Breakdown
	switch {
	case !b.VixRegime.Passed:
		return "vix_regime"
	case !b.ExpectedMoveConsumption.Passed:
		return "expected_move"
	case !b.MacroCalendar.Passed:
		return "macro_calendar"
	case !b.SessionTime.Passed:
		return "session_time"
	case !b.Compression.Passed:
		return "compression"
	case !b.EventRisk.Passed:
		return "event_risk"
	}
	return ""
}

// Dependencies are the collaborators used to fill missing inputs. Any may be nil.
type Dependencies struct {
	Bars     providers.BarsProvider
	Ticks    providers.TickProvider
	Macro    providers.MacroCalendarProvider
	Session  *market.SessionService
	News     *news.Service
	Calendar *market.Calendar
	ATR      *indicators.ATRService
	Cache    cache.Cache
	Metrics  *metrics.Recorder
}

// EnvironmentGate evaluates the six environment sub-checks.
type EnvironmentGate struct {
	deps   Dependencies
	cfg    Config
	logger zerolog.Logger
}

// NewEnvironmentGate creates an environment gate.
func NewEnvironmentGate(deps Dependencies, cfg Config, logger zerolog.Logger) *EnvironmentGate {
	if deps.Calendar == nil {
		deps.Calendar = market.NewCalendar()
	}
	return &EnvironmentGate{
		deps:   deps,
		cfg:    cfg.withDefaults(),
		logger: logging.WithComponent(logger, "environment_gate"),
	}
}

// Evaluate runs every sub-check. It never fails: unavailable inputs degrade to
// documented fallbacks.
func (g *EnvironmentGate) Evaluate(ctx context.Context, in GateInput) EnvironmentGateDecision {
	at := in.EvaluationDate
	if at.IsZero() {
		at = time.Now()
	}
	minuteEt := utils.MinuteOfDayET(at)

	var (
		bars    = in.Bars
		vix     = in.VixValue
		session market.SessionStatus
		macro   MacroCheck
		snap    = in.News
		atr     = in.ATR14
	)

	// Independent fetches; each degrades on its own.
	var eg errgroup.Group
	if len(bars) == 0 {
		eg.Go(func() error {
			bars = g.fetchBars(ctx, at)
			return nil
		})
	}
	if !indicators.FinitePtr(atr) && len(in.Bars) == 0 && g.deps.ATR != nil {
		eg.Go(func() error {
			atr = g.deps.ATR.IntradayATR(ctx, SPXSymbol, utils.EasternDate(at), indicators.DefaultATRPeriod)
			return nil
		})
	}
	if !indicators.FinitePtr(vix) {
		eg.Go(func() error {
			vix = g.resolveVIX(ctx)
			return nil
		})
	}
	eg.Go(func() error {
		session = g.resolveSession(ctx, in.MarketSession, at)
		return nil
	})
	eg.Go(func() error {
		macro = g.evaluateMacro(ctx, in.MacroEvents, at)
		return nil
	})
	if snap == nil && in.EventRisk == nil && g.cfg.NewsEnabled && g.deps.News != nil {
		eg.Go(func() error {
			s := g.deps.News.Snapshot(ctx, news.SnapshotOptions{AsOf: at})
			snap = &s
			return nil
		})
	}
	_ = eg.Wait()

	sorted := models.SortBars(bars)

	if !indicators.FinitePtr(atr) {
		atr = indicators.CalculateATRFromBars(sorted, indicators.DefaultATRPeriod)
	}
	open := in.SessionOpenPrice
	if !indicators.FinitePtr(open) && len(sorted) > 0 {
		open = indicators.Ptr(sorted[0].Open)
	}
	price := in.CurrentPrice
	if !indicators.FinitePtr(price) && len(sorted) > 0 {
		price = indicators.Ptr(sorted[len(sorted)-1].Close)
	}

	// Check 1: VIX regime
	vixCheck := g.checkVIX(vix)

	// Check 2: Expected move consumption
	moveCheck := g.checkExpectedMove(price, open, atr, in.Regime)

	// Check 3: Session time
	sessionCheck := g.checkSession(session, minuteEt)

	// Check 4: Volatility compression
	rv := indicators.CalculateRealizedVolatility(sorted, g.cfg.RealizedVolLookback)
	compression := g.checkCompression(vix, rv)

	// Check 5: Event risk
	var eventRisk EventRiskDecision
	switch {
	case in.EventRisk != nil:
		eventRisk = *in.EventRisk
	case g.cfg.EventRiskEnabled:
		eventRisk = EvaluateEventRiskGate(EventRiskInput{
			EvaluationDate: at,
			Macro:          macro,
			News:           snap,
			NewsEnabled:    snap != nil,
		})
	default:
		eventRisk = disabledEventRisk(macro, snap)
	}

	reasons := uniqueStrings(
		failReason(vixCheck.Passed, vixCheck.Reason),
		failReason(moveCheck.Passed, moveCheck.Reason),
		failReason(macro.Passed, macro.Reason),
		failReason(sessionCheck.Passed, sessionCheck.Reason),
		failReason(compression.Passed, compression.Reason),
		failReason(eventRisk.Passed, eventRisk.Reason),
	)

	decision := EnvironmentGateDecision{
		Passed: vixCheck.Passed && moveCheck.Passed && macro.Passed &&
			sessionCheck.Passed && compression.Passed && eventRisk.Passed,
		Reasons:   reasons,
		Caution:   macro.Caution || compression.Caution || eventRisk.Caution,
		VixRegime: vixCheck.Regime,
		DynamicReadyThreshold: CalculateDynamicReadyThreshold(ThresholdInput{
			VixValue:             vix,
			MinuteEt:             minuteEt,
			Regime:               in.Regime,
			RegimeConfidence:     in.RegimeConfidence,
			CompressionSpreadPct: compression.SpreadPct,
			MacroCaution:         macro.Caution || eventRisk.Caution,
			LateSessionMinute:    g.cfg.LateSessionMinute,
			SpreadBlockPct:       g.cfg.CompressionSpreadBlockPct,
			SpreadCautionPct:     g.cfg.CompressionSpreadCautionPct,
		}),
		Breakdown: Breakdown{
			VixRegime:               vixCheck,
			ExpectedMoveConsumption: moveCheck,
			MacroCalendar:           macro,
			SessionTime:             sessionCheck,
			Compression:             compression,
			EventRisk:               eventRisk,
		},
		EvaluatedAt: at,
	}
	if len(reasons) > 0 {
		decision.Reason = reasons[0]
	}

	logging.LogGateDecision(g.logger, decision.Passed, decision.Reasons, decision.DynamicReadyThreshold, string(decision.VixRegime))
	g.deps.Metrics.RecordGateDecision(decision.Passed, decision.BlockingCheck(), decision.DynamicReadyThreshold)
	return decision
}

func (g *EnvironmentGate) fetchBars(ctx context.Context, at time.Time) []models.Bar {
	if g.deps.Bars == nil {
		return nil
	}
	bars, err := g.deps.Bars.GetMinuteAggregates(ctx, SPXSymbol, utils.EasternDate(at))
	if err != nil {
		logging.LogProviderFallback(g.logger, "bars", "GetMinuteAggregates", "no bars", err)
		g.deps.Metrics.RecordProviderFallback("bars", "GetMinuteAggregates")
		return nil
	}
	return bars
}

// resolveVIX reads the cached last print, then the tick provider.
func (g *EnvironmentGate) resolveVIX(ctx context.Context) *float64 {
	if tick, ok := cache.Lookup[models.Tick](ctx, g.deps.Cache, VIXCacheKey); ok && indicators.Finite(tick.Price) {
		return indicators.Ptr(tick.Price)
	}
	if g.deps.Ticks == nil {
		return nil
	}
	tick, err := g.deps.Ticks.GetLatestTick(ctx, VIXSymbol)
	if err != nil {
		logging.LogProviderFallback(g.logger, "ticks", "GetLatestTick", "unknown VIX", err)
		g.deps.Metrics.RecordProviderFallback("ticks", "GetLatestTick")
		return nil
	}
	if tick == nil || !indicators.Finite(tick.Price) {
		return nil
	}
	cache.Store(ctx, g.deps.Cache, VIXCacheKey, tick, time.Duration(g.cfg.VIXCacheTTLSeconds)*time.Second)
	return indicators.Ptr(tick.Price)
}

func (g *EnvironmentGate) resolveSession(ctx context.Context, override *market.SessionStatus, at time.Time) market.SessionStatus {
	if override != nil {
		return *override
	}
	if g.deps.Session != nil {
		return g.deps.Session.Status(ctx, at)
	}
	return market.LocalStatus(at)
}

func (g *EnvironmentGate) evaluateMacro(ctx context.Context, override []models.EconomicEvent, at time.Time) MacroCheck {
	if g.cfg.DisableMacroCalendar {
		return macroClear()
	}
	events := override
	if events == nil {
		if g.deps.Macro == nil {
			return macroClear()
		}
		fetched, err := g.deps.Macro.GetEconomicCalendar(ctx, g.cfg.MacroLookaheadDays, models.ImpactHigh)
		if err != nil {
			g.logger.Debug().Err(err).Msg("Macro calendar unavailable")
			g.deps.Metrics.RecordProviderFallback("macro", "GetEconomicCalendar")
			return macroUnavailable()
		}
		events = fetched
	}
	return EvaluateMacroCalendar(events, at, g.deps.Calendar, g.cfg)
}

func (g *EnvironmentGate) checkVIX(vix *float64) VixCheck {
	c := VixCheck{Passed: true, Regime: ClassifyVixRegime(vix), Value: vix}
	if indicators.FinitePtr(vix) && *vix >= g.cfg.MaxActionableVIX {
		c.Passed = false
		c.Reason = fmt.Sprintf("VIX %s above actionable cap (%s)", formatScore(*vix), formatScore(g.cfg.MaxActionableVIX))
	}
	return c
}

func (g *EnvironmentGate) checkExpectedMove(price, open, atr *float64, regime models.Regime) ExpectedMoveCheck {
	if !indicators.FinitePtr(price) || !indicators.FinitePtr(open) || !indicators.FinitePtr(atr) || *atr <= 0 {
		return ExpectedMoveCheck{Passed: true}
	}
	expected := math.Max(*atr*g.cfg.ExpectedMoveATRMultiplier, g.cfg.MinExpectedMovePoints)
	traveled := math.Abs(*price - *open)
	consumed := indicators.Round(traveled/expected*100, 2)

	c := ExpectedMoveCheck{
		Passed:             consumed <= g.cfg.MaxExpectedMoveConsumptionPct || regime == models.RegimeBreakout,
		ConsumedPct:        indicators.Ptr(consumed),
		ExpectedMovePoints: indicators.Ptr(indicators.Round(expected, 2)),
	}
	if !c.Passed {
		c.Reason = fmt.Sprintf("Expected move %s%% consumed (%s / %s pts)",
			formatScore(consumed), formatScore(traveled), formatScore(expected))
	}
	return c
}

func (g *EnvironmentGate) checkSession(s market.SessionStatus, minuteEt int) SessionCheck {
	c := SessionCheck{
		Status:            s.Status,
		MinuteEt:          s.MinuteEt,
		MinutesUntilClose: s.MinutesUntilClose,
		Source:            s.Source,
	}
	switch {
	case s.Status != market.StatusOpen:
		c.Reason = fmt.Sprintf("Session %s is not tradable", strings.ReplaceAll(s.Status, "_", " "))
	case s.MinutesUntilClose == nil && minuteEt > g.cfg.LastActionableMinute:
		c.Reason = "Last 15 minutes of regular session"
	case s.MinutesUntilClose != nil && *s.MinutesUntilClose <= g.cfg.MinMinutesUntilClose:
		c.Reason = "Last 15 minutes of regular session"
	default:
		c.Passed = true
	}
	return c
}

func (g *EnvironmentGate) checkCompression(vix, rv *float64) CompressionCheck {
	c := CompressionCheck{Passed: true, RealizedVolPct: rv, ImpliedVolPct: vix}
	if !indicators.FinitePtr(vix) || !indicators.FinitePtr(rv) {
		return c
	}
	spread := indicators.Round(*vix-*rv, 2)
	c.SpreadPct = &spread
	if spread > g.cfg.CompressionSpreadBlockPct && *rv < g.cfg.CompressionRealizedVolMaxPct {
		c.Passed = false
		c.Reason = fmt.Sprintf("Volatility compression detected (IV-RV spread %s%%)", formatScore(spread))
		return c
	}
	c.Caution = spread > g.cfg.CompressionSpreadCautionPct
	return c
}

// ThresholdInput drives the dynamic ready threshold.
type ThresholdInput struct {
	VixValue             *float64
	MinuteEt             int
	Regime               models.Regime
	RegimeConfidence     float64
	CompressionSpreadPct *float64
	MacroCaution         bool

	// Zero values use the production constants.
	LateSessionMinute int
	SpreadBlockPct    float64
	SpreadCautionPct  float64
}

// CalculateDynamicReadyThreshold returns the confluence score a setup needs to
// be ready, clamped to [2.5, 4.25].
func CalculateDynamicReadyThreshold(in ThresholdInput) float64 {
	late, block, caution := in.LateSessionMinute, in.SpreadBlockPct, in.SpreadCautionPct
	if late <= 0 {
		late = 15*60 + 30
	}
	if block <= 0 {
		block = 8
	}
	if caution <= 0 {
		caution = 5
	}

	threshold := baseReadyThreshold
	if indicators.FinitePtr(in.VixValue) {
		threshold += math.Max(0, (*in.VixValue-20)*0.03)
		if *in.VixValue >= 25 {
			threshold += 0.15
		}
	}
	if in.MinuteEt >= late {
		threshold += 0.3
	}
	if indicators.FinitePtr(in.CompressionSpreadPct) {
		switch {
		case *in.CompressionSpreadPct > block:
			threshold += 0.45
		case *in.CompressionSpreadPct > caution:
			threshold += 0.2
		}
	}
	if in.MacroCaution {
		threshold += 0.25
	}
	switch in.Regime {
	case models.RegimeTrending, models.RegimeBreakout:
		if in.RegimeConfidence >= 72 {
			threshold -= 0.2
		}
	case models.RegimeCompression:
		if in.RegimeConfidence >= 65 {
			threshold += 0.15
		}
	}
	return indicators.Round(indicators.Clamp(threshold, 2.5, 4.25), 2)
}

func failReason(passed bool, reason string) string {
	if passed {
		return ""
	}
	return reason
}

// uniqueStrings trims, drops empties and keeps first occurrences in order.
func uniqueStrings(values ...string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
