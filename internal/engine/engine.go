// Package engine runs one decision cycle: environment gate, setup demotion,
// trigger metadata, adaptive stops, expected value and contract selection.
package engine

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"spx-engine/internal/analysis/indicators"
	"spx-engine/internal/analysis/patterns"
	"spx-engine/internal/contracts"
	"spx-engine/internal/ev"
	"spx-engine/internal/gate"
	"spx-engine/internal/logging"
	"spx-engine/internal/metrics"
	"spx-engine/internal/models"
	"spx-engine/internal/providers"
	"spx-engine/internal/stops"
	"spx-engine/pkg/utils"
)

// openMinuteET is 09:30 ET.
const openMinuteET = 9*60 + 30

// StopConfig toggles the adaptive stop overlays.
type StopConfig struct {
	ATRStopFloorEnabled        bool    `mapstructure:"atr_floor_enabled" default:"true"`
	ATRStopMultiplier          float64 `mapstructure:"atr_multiplier" default:"0.9"`
	VixStopScalingEnabled      bool    `mapstructure:"vix_scaling_enabled" default:"true"`
	GEXMagnitudeScalingEnabled bool    `mapstructure:"gex_magnitude_scaling_enabled" default:"true"`
}

// Dependencies wires the engine. Gate is required; Selector and Setups may be nil.
type Dependencies struct {
	Gate     *gate.EnvironmentGate
	Selector *contracts.Selector
	Setups   providers.SetupProvider
	Bars     providers.BarsProvider
	Metrics  *metrics.Recorder
}

// CycleOptions carries one cycle's inputs.
type CycleOptions struct {
	Now    time.Time
	UserID string
	// Setups skips setup detection when non-nil.
	Setups []models.Setup
	Gate   gate.GateInput
	GEX    *models.GEXLevels
	// PartialAtT1 is the fraction scaled out at target 1, used for EV weights.
	PartialAtT1     *float64
	RiskContext     *models.RiskContext
	SelectContracts bool
}

// SetupEvaluation is the per-setup outcome of a cycle.
type SetupEvaluation struct {
	Setup    models.Setup                   `json:"setup"`
	Stop     *StopSummary                   `json:"stop,omitempty"`
	EV       *ev.AdaptiveEVResult           `json:"ev,omitempty"`
	Contract *models.ContractRecommendation `json:"contract,omitempty"`
}

// StopSummary is the adaptive stop applied to a setup. Fallback marks a
// setup that kept its base stop because the inputs were unusable.
type StopSummary struct {
	BaseStop float64                   `json:"baseStop"`
	Fallback bool                      `json:"fallback"`
	Output   *stops.AdaptiveStopOutput `json:"output,omitempty"`
}

// CycleResult is the outcome of one evaluation cycle.
type CycleResult struct {
	Gate        gate.EnvironmentGateDecision `json:"gate"`
	Setups      []SetupEvaluation            `json:"setups"`
	Standby     *gate.StandbyGuidance        `json:"standby,omitempty"`
	EvaluatedAt time.Time                    `json:"evaluatedAt"`
}

// Actionable returns the evaluations whose setups survived the gate as ready or triggered.
func (r CycleResult) Actionable() []SetupEvaluation {
	var out []SetupEvaluation
	for _, e := range r.Setups {
		if e.Setup.Status.IsActionable() {
			out = append(out, e)
		}
	}
	return out
}

// Engine orchestrates the decision components.
type Engine struct {
	deps   Dependencies
	stops  StopConfig
	logger zerolog.Logger
}

// New creates an engine.
func New(deps Dependencies, cfg StopConfig, logger zerolog.Logger) *Engine {
	return &Engine{
		deps:   deps,
		stops:  cfg,
		logger: logging.WithComponent(logger, "engine"),
	}
}

// EvaluateCycle runs the gate once and scores each setup that survives it.
func (e *Engine) EvaluateCycle(ctx context.Context, opts CycleOptions) (*CycleResult, error) {
	start := time.Now()
	defer func() { e.deps.Metrics.ObserveCycle(time.Since(start)) }()

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	// Step 1: Resolve setups
	setups := opts.Setups
	if setups == nil && e.deps.Setups != nil {
		detected, err := e.deps.Setups.DetectActiveSetups(ctx, providers.SetupQuery{UserID: opts.UserID, Now: now})
		if err != nil {
			logging.LogProviderFallback(e.logger, "setups", "DetectActiveSetups", "no setups", err)
			e.deps.Metrics.RecordProviderFallback("setups", "DetectActiveSetups")
		}
		setups = detected
	}

	// Step 2: Load bars once for the gate and trigger metadata
	in := opts.Gate
	in.EvaluationDate = now
	if len(in.Bars) == 0 && e.deps.Bars != nil {
		bars, err := e.deps.Bars.GetMinuteAggregates(ctx, gate.SPXSymbol, utils.EasternDate(now))
		if err != nil {
			logging.LogProviderFallback(e.logger, "bars", "GetMinuteAggregates", "gate fetch", err)
			e.deps.Metrics.RecordProviderFallback("bars", "GetMinuteAggregates")
		}
		in.Bars = bars
	}

	// Step 3: Environment gate
	decision := e.deps.Gate.Evaluate(ctx, in)
	gated := gate.ApplyEnvironmentGateToSetups(setups, decision, now)

	result := &CycleResult{
		Gate:        decision,
		Setups:      make([]SetupEvaluation, 0, len(gated)),
		EvaluatedAt: now,
	}

	atr := in.ATR14
	if !indicators.FinitePtr(atr) {
		atr = indicators.CalculateATRFromBars(in.Bars, indicators.DefaultATRPeriod)
	}
	price := in.CurrentPrice
	if !indicators.FinitePtr(price) && len(in.Bars) > 0 {
		sorted := models.SortBars(in.Bars)
		price = indicators.Ptr(sorted[len(sorted)-1].Close)
	}

	// Step 4: Per-setup scoring
	for _, s := range gated {
		s.TriggerContext = patterns.BuildTriggerContext(s, in.Bars, now)
		eval := SetupEvaluation{Setup: s}
		if s.Status.IsActionable() {
			stop := e.adaptiveStop(s, decision, atr, price, opts.GEX)
			eval.Stop = stop
			if stop.Output != nil {
				eval.Setup.Stop = stop.Output.Stop
			}
			scored := e.expectedValue(eval.Setup, decision, now, opts.PartialAtT1)
			eval.EV = &scored

			if opts.SelectContracts && e.deps.Selector != nil {
				setup := eval.Setup
				rec, err := e.deps.Selector.GetContractRecommendation(ctx, contracts.Request{
					Setup:       &setup,
					RiskContext: opts.RiskContext,
					UserID:      opts.UserID,
					Now:         now,
				})
				if err != nil {
					logger := logging.WithSetup(e.logger, s.ID)
					logger.Warn().Err(err).Msg("Contract selection failed")
				}
				eval.Contract = rec
			}
		}
		result.Setups = append(result.Setups, eval)
	}

	// Step 5: Standby guidance when blocked
	result.Standby = gate.BuildStandbyGuidance(decision, result.setupsOnly(), now)

	e.logger.Info().
		Bool("gate_passed", decision.Passed).
		Int("setups", len(result.Setups)).
		Int("actionable", len(result.Actionable())).
		Dur("elapsed", time.Since(start)).
		Msg("Cycle evaluated")
	return result, nil
}

func (r *CycleResult) setupsOnly() []models.Setup {
	out := make([]models.Setup, 0, len(r.Setups))
	for _, e := range r.Setups {
		out = append(out, e.Setup)
	}
	return out
}

// expectedValue scores the setup using its adaptive risk as 1R.
func (e *Engine) expectedValue(s models.Setup, decision gate.EnvironmentGateDecision, now time.Time, partial *float64) ev.AdaptiveEVResult {
	entry := s.EntryZone.Mid()
	risk := math.Abs(entry - s.Stop)
	in := ev.AdaptiveEVInput{
		PWin:        winProbability(s.Probability),
		VixValue:    decision.Breakdown.VixRegime.Value,
		PartialAtT1: partial,
	}
	if risk > 0 {
		in.Target1R = math.Abs(s.Target1.Price-entry) / risk
		in.Target2R = math.Abs(s.Target2.Price-entry) / risk
	} else {
		in.Target1R, in.Target2R = math.NaN(), math.NaN()
	}
	if minute := utils.MinuteOfDayET(now) - openMinuteET; minute >= 0 {
		in.MinutesSinceOpen = &minute
	}
	return ev.CalculateAdaptiveEV(in)
}

// winProbability accepts a probability either as a fraction or as a percent.
func winProbability(p float64) float64 {
	if p > 1 {
		return p / 100
	}
	return p
}
