package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"spx-engine/internal/ev"
)

func newEVCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ev",
		Short: "Score a setup's adaptive expected value",
		Long: `Compute expected value in R multiples from a win probability and the
R distance to each target. Late-session decay, the VIX slippage estimate and
the partial-loss distribution are applied.`,
		Example: `  spx-engine ev --pwin 0.62 --t1 1.2 --t2 2.4
  spx-engine ev --pwin 0.55 --t1 1 --t2 2 --vix 28 --minutes-since-open 320 --partial 0.5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			flags := cmd.Flags()

			in := ev.AdaptiveEVInput{}
			in.PWin, _ = flags.GetFloat64("pwin")
			in.Target1R, _ = flags.GetFloat64("t1")
			in.Target2R, _ = flags.GetFloat64("t2")
			if flags.Changed("vix") {
				in.VixValue = floatFlag(cmd, "vix")
			}
			if flags.Changed("minutes-since-open") {
				m, _ := flags.GetInt("minutes-since-open")
				in.MinutesSinceOpen = &m
			}
			if flags.Changed("partial") {
				in.PartialAtT1 = floatFlag(cmd, "partial")
			}
			if flags.Changed("slippage") {
				in.SlippageR = floatFlag(cmd, "slippage")
			}

			result := ev.CalculateAdaptiveEV(in)
			if output.IsJSON() {
				return output.JSON(result)
			}

			if result.Denied {
				output.Warning("Expected value denied: inputs are not usable")
			}
			output.Bold("Adaptive EV: %s", output.Signed(result.EvR, FormatR(result.EvR)))
			output.Printf("Win Probability:  %.3f (input %.3f)\n", result.AdjustedPWin, in.PWin)
			output.Printf("Blended Win:      %s (T1 %.2f / T2 %.2f)\n", FormatR(result.BlendedWinR), result.T1Weight, result.T2Weight)
			output.Printf("Expected Loss:    %s\n", FormatR(-result.ExpectedLossR))
			output.Printf("Slippage:         %s\n", fmt.Sprintf("%.3fR", result.SlippageR))
			return nil
		},
	}

	cmd.Flags().Float64("pwin", 0, "win probability (0-1)")
	cmd.Flags().Float64("t1", 0, "target 1 distance in R")
	cmd.Flags().Float64("t2", 0, "target 2 distance in R")
	cmd.Flags().Float64("vix", 0, "VIX level for the slippage estimate")
	cmd.Flags().Int("minutes-since-open", 0, "minutes since the 09:30 ET open")
	cmd.Flags().Float64("partial", 0, "fraction scaled out at target 1")
	cmd.Flags().Float64("slippage", 0, "explicit slippage in R")
	_ = cmd.MarkFlagRequired("pwin")
	return cmd
}
