package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"spx-engine/internal/analysis/indicators"
	"spx-engine/internal/contracts"
	"spx-engine/internal/engine"
	"spx-engine/internal/gate"
	"spx-engine/internal/market"
	"spx-engine/internal/news"
	"spx-engine/internal/providers"
)

// atrCacheTTL matches the intraday ATR refresh cadence.
const atrCacheTTL = 60 * time.Second

// sources are the external collaborators behind one command run.
type sources struct {
	setups providers.SetupProvider
	chains providers.OptionsChainProvider
	iv     providers.IVForecastProvider
	macro  providers.MacroCalendarProvider
	news   providers.NewsProvider
	bars   providers.BarsProvider
	ticks  providers.TickProvider
	live   providers.LiveStatusFeed
	risk   providers.RiskContextProvider
}

// sources serves a scenario file when one is given. Otherwise market data comes
// from the REST provider and setups and account snapshots from the store.
func (a *App) sources(sc *Scenario) (sources, error) {
	if sc != nil {
		s := sc.Static()
		return sources{setups: s, chains: s, iv: s, macro: s, news: s, bars: s, ticks: s, live: s, risk: s}, nil
	}

	if a.Config.Provider.APIKey == "" {
		return sources{}, fmt.Errorf("no scenario file given and no provider API key configured (set SPX_API_KEY)")
	}
	client := providers.NewMassiveClient(a.Config.Provider.MassiveConfig, a.Breakers, a.Config.Provider.Retry, a.Logger)
	st, err := a.Store()
	if err != nil {
		return sources{}, err
	}
	return sources{
		setups: st,
		chains: client,
		iv:     client,
		macro:  client,
		news:   client,
		bars:   client,
		ticks:  client,
		live:   client,
		risk:   st,
	}, nil
}

// newGate builds the environment gate over src.
func (a *App) newGate(ctx context.Context, src sources) *gate.EnvironmentGate {
	cfg := a.Config
	c := a.Cache(ctx)

	fomc := market.DefaultFOMCDates
	if len(cfg.Market.FOMCDates) > 0 {
		fomc = append(append([]string(nil), market.DefaultFOMCDates...), cfg.Market.FOMCDates...)
	}

	return gate.NewEnvironmentGate(gate.Dependencies{
		Bars:     src.bars,
		Ticks:    src.ticks,
		Macro:    src.macro,
		Session:  market.NewSessionService(src.live, cfg.SessionConfig(), a.Logger),
		News:     news.NewService(src.news, c, cfg.NewsServiceConfig(), a.Metrics, a.Logger),
		Calendar: market.NewCalendar(fomc...),
		ATR:      indicators.NewATRService(src.bars, c, atrCacheTTL, a.Logger),
		Cache:    c,
		Metrics:  a.Metrics,
	}, cfg.Gate, a.Logger)
}

// newSelector builds the contract selector over src.
func (a *App) newSelector(ctx context.Context, src sources) *contracts.Selector {
	return contracts.NewSelector(contracts.Dependencies{
		Setups:       src.setups,
		Chains:       src.chains,
		IV:           src.iv,
		RiskContexts: src.risk,
		Cache:        a.Cache(ctx),
		Metrics:      a.Metrics,
	}, a.Config.Contracts.Config, a.Logger)
}

// newEngine builds the full decision engine over src.
func (a *App) newEngine(ctx context.Context, src sources) *engine.Engine {
	return engine.New(engine.Dependencies{
		Gate:     a.newGate(ctx, src),
		Selector: a.newSelector(ctx, src),
		Setups:   src.setups,
		Bars:     src.bars,
		Metrics:  a.Metrics,
	}, a.Config.Stops, a.Logger)
}

// scenarioFlag loads the --scenario file, or returns nil when unset.
func scenarioFlag(cmd *cobra.Command) (*Scenario, error) {
	path, _ := cmd.Flags().GetString("scenario")
	if path == "" {
		return nil, nil
	}
	return LoadScenario(path)
}

// evaluationTime is the scenario clock, or now.
func evaluationTime(sc *Scenario) time.Time {
	if sc != nil {
		return sc.Now
	}
	return time.Now()
}
