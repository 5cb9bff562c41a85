// Package cli provides the command-line interface for the decision engine.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"spx-engine/internal/cache"
	"spx-engine/internal/config"
	"spx-engine/internal/logging"
	"spx-engine/internal/metrics"
	"spx-engine/internal/resilience"
	"spx-engine/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2026-02-20"
)

// App holds the application dependencies. Config, cache and store are
// resolved lazily so commands that need none of them stay offline.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Recorder
	Breakers *resilience.CircuitBreakerRegistry

	cache cache.Cache
	store store.DataStore
	close []func() error
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(logger zerolog.Logger) *cobra.Command {
	registry := prometheus.NewRegistry()
	app := &App{
		Logger:   logger,
		Registry: registry,
		Metrics:  metrics.New(registry),
	}

	rootCmd := &cobra.Command{
		Use:   "spx-engine",
		Short: "SPX 0DTE trade decision engine",
		Long: `spx-engine gates, prices and outfits SPX 0DTE setups.

It evaluates the trading environment (VIX regime, expected move, macro
calendar, session time, volatility compression and event risk), recomputes
adaptive stops, scores expected value and selects a sized option contract.

Commands read a scenario file (YAML or JSON) or, without one, the configured
market data provider and setup store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			app.Config = cfg
			app.Logger = logging.NewLoggerWithConfig(cfg.Logging)

			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			app.Breakers = resilience.NewCircuitBreakerRegistry(cfg.Provider.Breaker, app.Logger)

			// Recording is a no-op unless enabled or an exposition file was asked for.
			if metricsPath, _ := cmd.Flags().GetString("metrics"); !cfg.Metrics.Enabled && metricsPath == "" {
				app.Metrics = nil
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			defer app.Close()
			metricsPath, _ := cmd.Flags().GetString("metrics")
			if metricsPath == "" {
				return nil
			}
			return app.WriteMetrics(metricsPath)
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config file or directory (default: ~/.config/spx-engine/engine.toml)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().String("metrics", "", "write the Prometheus text exposition to this file ('-' for stderr)")

	addCoreCommands(rootCmd, app)
	addDecisionCommands(rootCmd, app)

	return rootCmd
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

// addDecisionCommands adds the decision engine commands.
func addDecisionCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newGateCmd(app))
	rootCmd.AddCommand(newStopCmd(app))
	rootCmd.AddCommand(newEVCmd(app))
	rootCmd.AddCommand(newContractCmd(app))
	rootCmd.AddCommand(newPatternCmd(app))
	rootCmd.AddCommand(newCycleCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// Version needs no config.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("SPX Decision Engine v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

// Cache returns the configured cache backend. A Redis dial failure falls back
// to the in-process cache.
func (a *App) Cache(ctx context.Context) cache.Cache {
	if a.cache != nil {
		return a.cache
	}
	if a.Config != nil && a.Config.Cache.Backend == "redis" {
		rc, err := cache.DialRedis(ctx, a.Config.Cache.Redis)
		if err == nil {
			a.cache = rc
			a.close = append(a.close, rc.Close)
			return a.cache
		}
		logging.LogProviderFallback(a.Logger, "redis", "Dial", "memory cache", err)
		a.Metrics.RecordProviderFallback("redis", "Dial")
	}
	a.cache = cache.NewMemoryCache()
	return a.cache
}

// Store opens the SQLite store on first use.
func (a *App) Store() (store.DataStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	path := config.DefaultConfigDir() + "/engine.db"
	if a.Config != nil && a.Config.Store.Path != "" {
		path = a.Config.Store.Path
	}
	s, err := store.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	a.store = s
	a.close = append(a.close, s.Close)
	return a.store, nil
}

// Close releases the cache and store connections.
func (a *App) Close() {
	for _, fn := range a.close {
		if err := fn(); err != nil {
			a.Logger.Debug().Err(err).Msg("Close failed")
		}
	}
	a.close = nil
}

// WriteMetrics writes the engine registry in the Prometheus text format.
func (a *App) WriteMetrics(path string) error {
	families, err := a.Registry.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}

	var w io.Writer = os.Stderr
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating metrics file: %w", err)
		}
		defer f.Close()
		w = f
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}
	return nil
}

// commandContext bounds a command run.
func commandContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
