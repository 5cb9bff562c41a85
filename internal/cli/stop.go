package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"spx-engine/internal/gate"
	"spx-engine/internal/models"
	"spx-engine/internal/stops"
)

func newStopCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Compute the adaptive stop for a setup",
		Long: `Recompute a setup's stop from its base stop, the ATR floor, the VIX
regime and dealer gamma positioning. The setup comes from a scenario file or
from flags.`,
		Example: `  spx-engine stop --scenario morning.yaml --setup s-1
  spx-engine stop --direction bullish --entry-low 5000 --entry-high 5002 --base-stop 4996 --atr 6 --vix 22`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			in, err := stopInput(cmd, app)
			if err != nil {
				output.Error("%v", err)
				return err
			}

			out, err := stops.CalculateAdaptiveStop(in)
			if err != nil {
				output.Error("Adaptive stop unavailable: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(out)
			}

			output.Bold("Adaptive Stop (%s %s)", in.Direction, in.SetupType)
			output.Printf("Entry Zone:   %.2f - %.2f\n", in.EntryLow, in.EntryHigh)
			output.Printf("Base Stop:    %.2f (%s)\n", in.BaseStop, FormatPoints(out.BaseRiskPoints))
			output.Printf("Stop:         %s (%s)\n", output.Cyan(fmt.Sprintf("%.2f", out.Stop)), FormatPoints(out.RiskPoints))
			output.Printf("ATR Floor:    %s\n", FormatOptPoints(out.ATRFloorPoints))
			if out.MeanReversionCapPoints != nil {
				output.Printf("MR Cap:       %s\n", FormatOptPoints(out.MeanReversionCapPoints))
			}
			output.Println()

			table := NewTable(output, "Geometry", "VIX", "GEX Dir", "GEX Mag", "Total")
			table.AddRow(
				fmt.Sprintf("x%.2f", out.Scale.Geometry),
				fmt.Sprintf("x%.2f", out.Scale.VIX),
				fmt.Sprintf("x%.2f", out.Scale.GEXDirectional),
				fmt.Sprintf("x%.2f", out.Scale.GEXMagnitude),
				fmt.Sprintf("x%.3f", out.Scale.Total),
			)
			table.Render()
			return nil
		},
	}

	cmd.Flags().String("scenario", "", "scenario file (YAML or JSON)")
	cmd.Flags().String("setup", "", "setup id within the scenario (default: first)")
	cmd.Flags().String("direction", "", "bullish or bearish")
	cmd.Flags().String("type", string(models.SetupFadeAtWall), "setup type")
	cmd.Flags().String("regime", "", "market regime")
	cmd.Flags().Float64("entry-low", 0, "entry zone low")
	cmd.Flags().Float64("entry-high", 0, "entry zone high")
	cmd.Flags().Float64("base-stop", 0, "base stop price")
	cmd.Flags().Float64("atr", 0, "14-period ATR in points")
	cmd.Flags().Float64("vix", 0, "VIX level")
	cmd.Flags().Float64("net-gex", 0, "net dealer gamma exposure")
	cmd.Flags().Float64("gex-distance-bp", 0, "distance to the nearest GEX level in basis points")
	cmd.Flags().Float64("geometry-scale", 0, "geometry stop scale")
	return cmd
}

// stopInput builds the stop input from a scenario setup, then lets explicit
// flags override it.
func stopInput(cmd *cobra.Command, app *App) (stops.AdaptiveStopInput, error) {
	cfg := app.Config.Stops
	in := stops.AdaptiveStopInput{
		ATRStopFloorEnabled:        cfg.ATRStopFloorEnabled,
		VixStopScalingEnabled:      cfg.VixStopScalingEnabled,
		GEXMagnitudeScalingEnabled: cfg.GEXMagnitudeScalingEnabled,
		VixRegime:                  gate.VixUnknown,
	}
	if cfg.ATRStopMultiplier > 0 {
		m := cfg.ATRStopMultiplier
		in.ATRStopMultiplier = &m
	}

	sc, err := scenarioFlag(cmd)
	if err != nil {
		return in, err
	}
	if sc != nil {
		id, _ := cmd.Flags().GetString("setup")
		setup, err := sc.Setup(id)
		if err != nil {
			return in, err
		}
		in.Direction = setup.Direction
		in.EntryLow = setup.EntryZone.Low
		in.EntryHigh = setup.EntryZone.High
		in.BaseStop = setup.Stop
		in.SetupType = setup.Type
		in.Regime = setup.Regime
		in.ATR14 = sc.ATR14
		in.VixRegime = gate.ClassifyVixRegime(sc.VIX)
		in.GEXLevels = sc.GEX
		in.ReferencePrice = sc.CurrentPrice
		if sc.GEX != nil {
			in.NetGEX = sc.GEX.NetGEX
		}
	}

	flags := cmd.Flags()
	if flags.Changed("direction") {
		d, _ := flags.GetString("direction")
		in.Direction = models.Direction(d)
	}
	if flags.Changed("type") || in.SetupType == "" {
		v, _ := flags.GetString("type")
		t, err := models.ParseSetupType(v)
		if err != nil {
			return in, err
		}
		in.SetupType = t
	}
	if flags.Changed("regime") {
		v, _ := flags.GetString("regime")
		r, err := models.ParseRegime(v)
		if err != nil {
			return in, err
		}
		in.Regime = r
	}
	if flags.Changed("entry-low") {
		in.EntryLow, _ = flags.GetFloat64("entry-low")
	}
	if flags.Changed("entry-high") {
		in.EntryHigh, _ = flags.GetFloat64("entry-high")
	}
	if flags.Changed("base-stop") {
		in.BaseStop, _ = flags.GetFloat64("base-stop")
	}
	if flags.Changed("atr") {
		in.ATR14 = floatFlag(cmd, "atr")
	}
	if flags.Changed("vix") {
		in.VixRegime = gate.ClassifyVixRegime(floatFlag(cmd, "vix"))
	}
	if flags.Changed("net-gex") {
		in.NetGEX = floatFlag(cmd, "net-gex")
	}
	if flags.Changed("gex-distance-bp") {
		in.GEXDistanceBp = floatFlag(cmd, "gex-distance-bp")
	}
	if flags.Changed("geometry-scale") {
		in.GeometryStopScale = floatFlag(cmd, "geometry-scale")
	}

	if in.Direction != models.DirectionBullish && in.Direction != models.DirectionBearish {
		return in, fmt.Errorf("direction %q must be bullish or bearish", in.Direction)
	}
	return in, nil
}

// floatFlag returns a pointer to a float flag's value.
func floatFlag(cmd *cobra.Command, name string) *float64 {
	v, _ := cmd.Flags().GetFloat64(name)
	return &v
}
