package cli

import (
	"github.com/spf13/cobra"

	"spx-engine/internal/config"
	"spx-engine/internal/logging"
)

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View, validate and create the engine configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			cfg := *app.Config
			cfg.Provider.APIKey = logging.MaskCredential(cfg.Provider.APIKey)
			cfg.Flags.APIKey = logging.MaskCredential(cfg.Flags.APIKey)
			cfg.Cache.Redis.Password = logging.MaskCredential(cfg.Cache.Redis.Password)
			if output.IsJSON() {
				return output.JSON(cfg)
			}
			return showConfig(output, &cfg)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": config.DefaultConfigDir()})
			} else {
				output.Println(config.DefaultConfigDir())
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("Configuration is valid")
			}
			return nil
		},
	})

	initCmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a commented engine.toml template",
		Args:  cobra.MaximumNArgs(1),
		// The template must be writable even when the current file is invalid.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			force, _ := cmd.Flags().GetBool("force")
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			path, err := config.CreateTemplateConfig(dir, force)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": path})
			}
			output.Success("Configuration template written to %s", path)
			return nil
		},
	}
	initCmd.Flags().Bool("force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)

	return cmd
}

func showConfig(output *Output, cfg *config.Config) error {
	output.Bold("Environment Gate")
	output.Printf("  Max VIX:            %.1f\n", cfg.Gate.MaxActionableVIX)
	output.Printf("  Expected Move:      ATR x %.1f (min %.1f pts, block above %.0f%%)\n",
		cfg.Gate.ExpectedMoveATRMultiplier, cfg.Gate.MinExpectedMovePoints, cfg.Gate.MaxExpectedMoveConsumptionPct)
	output.Printf("  Macro Windows:      blackout %d min, caution %d min\n", cfg.Gate.MacroBlackoutMinutes, cfg.Gate.MacroCautionMinutes)
	output.Printf("  Compression:        block %.1f / caution %.1f pts, RV < %.1f%%\n",
		cfg.Gate.CompressionSpreadBlockPct, cfg.Gate.CompressionSpreadCautionPct, cfg.Gate.CompressionRealizedVolMaxPct)
	output.Printf("  Last Entry:         %s ET\n", FormatMinuteET(cfg.Gate.LastActionableMinute))
	output.Println()

	output.Bold("Stops")
	output.Printf("  ATR Floor:          %v (x %.2f)\n", cfg.Stops.ATRStopFloorEnabled, cfg.Stops.ATRStopMultiplier)
	output.Printf("  VIX Scaling:        %v\n", cfg.Stops.VixStopScalingEnabled)
	output.Printf("  GEX Magnitude:      %v\n", cfg.Stops.GEXMagnitudeScalingEnabled)
	output.Println()

	output.Bold("Contracts")
	output.Printf("  Symbol:             %s\n", cfg.Contracts.Symbol)
	output.Printf("  Max Risk:           %.1f%%\n", cfg.Contracts.MaxRiskPct*100)
	output.Printf("  BP Utilization:     %.0f%%\n", cfg.Contracts.BuyingPowerUtilizationPct*100)
	output.Printf("  IV Timing:          %v\n", cfg.Contracts.IVTimingEnabled)
	output.Println()

	output.Bold("Feature Flags")
	output.Printf("  Event Risk Gate:    %v\n", cfg.Flags.EventRiskGateEnabled)
	output.Printf("  News Sentiment:     %v\n", cfg.Flags.NewsSentimentEnabled)
	output.Printf("  Live Session:       %v\n", cfg.Flags.LiveSessionEnabled)
	output.Println()

	output.Bold("Infrastructure")
	output.Printf("  Cache:              %s\n", cfg.Cache.Backend)
	output.Printf("  Store:              %s\n", cfg.Store.Path)
	output.Printf("  Provider:           %s\n", cfg.Provider.BaseURL)
	output.Printf("  API Key:            %s\n", valueOr(cfg.Provider.APIKey, "(not set)"))

	return nil
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
