package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"spx-engine/internal/contracts"
	"spx-engine/internal/models"
)

func newContractCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contract",
		Short: "Select and size the option contract for a setup",
		Long: `Filter the options chain for the setup's direction, score the survivors
against a regime-adjusted delta target, rank them and size the winner under
the account's risk limits.`,
		Example: `  spx-engine contract --scenario morning.yaml --setup s-1
  spx-engine contract --setup 0f3c9a --force --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(30 * time.Second)
			defer cancel()

			sc, err := scenarioFlag(cmd)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			src, err := app.sources(sc)
			if err != nil {
				output.Error("%v", err)
				return err
			}

			id, _ := cmd.Flags().GetString("setup")
			force, _ := cmd.Flags().GetBool("force")
			req := contracts.Request{SetupID: id, ForceRefresh: force, Now: evaluationTime(sc)}
			if sc != nil {
				setup, err := sc.Setup(id)
				if err != nil {
					output.Error("%v", err)
					return err
				}
				req.Setup = setup
				req.SetupID = setup.ID
				req.RiskContext = sc.RiskContext
				req.UserID = sc.UserID
			} else if id == "" {
				err := fmt.Errorf("--setup is required without a scenario")
				output.Error("%v", err)
				return err
			}

			rec, err := app.newSelector(ctx, src).GetContractRecommendation(ctx, req)
			if err != nil {
				output.Error("Contract selection failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(rec)
			}
			if rec == nil {
				output.Warning("No contract recommendation for setup %s", req.SetupID)
				return nil
			}
			printContract(output, rec)
			return nil
		},
	}

	cmd.Flags().String("scenario", "", "scenario file (YAML or JSON)")
	cmd.Flags().String("setup", "", "setup id")
	cmd.Flags().Bool("force", false, "bypass the recommendation cache")
	return cmd
}

func printContract(output *Output, rec *models.ContractRecommendation) {
	output.Bold("%s", rec.Description)
	if rec.Relaxed {
		output.Warning("Filters were relaxed to find a candidate")
	}
	output.Printf("Expiry:        %s (%d DTE)\n", rec.Expiry, rec.DaysToExpiry)
	output.Printf("Quote:         %s\n", FormatBidAsk(rec.Bid, rec.Ask))
	output.Printf("Greeks:        %s\n", FormatGreeks(rec.Greeks.Delta, rec.Greeks.Gamma, rec.Greeks.Theta, rec.Greeks.Vega))
	output.Printf("IV:            %.1f%%\n", rec.ImpliedVolatility*100)
	output.Printf("Premium:       %s mid / %s ask\n", FormatUSD(rec.PremiumMid), FormatUSD(rec.PremiumAsk))
	output.Printf("Risk/Reward:   %s\n", FormatRiskReward(rec.RiskReward))
	output.Printf("P&L at T1/T2:  %s / %s\n", FormatPnL(rec.ExpectedPnLAtTarget1), FormatPnL(rec.ExpectedPnLAtTarget2))
	output.Printf("Max Loss:      %s\n", FormatUSD(rec.MaxLoss))
	output.Printf("Score:         %.1f (%s, liquidity %.0f)\n", rec.Score, rec.CostBand, rec.LiquidityScore)
	output.Printf("Health:        %.0f %s (theta/15m %.2f)\n", rec.Health.Score, rec.Health.Tier, rec.Health.ThetaRiskPer15Min)

	if s := rec.Sizing; s != nil {
		output.Println()
		output.Bold("Sizing")
		output.Printf("  Max Risk:      %s\n", FormatUSD(s.MaxRiskDollars))
		output.Printf("  Per Contract:  %s\n", FormatUSD(s.PerContractDebit))
		output.Printf("  Contracts:     %s\n", output.Cyan(fmt.Sprintf("%d", s.RecommendedContracts)))
		if s.BlockedReason != "" {
			output.Warning("  %s", s.BlockedReason)
		}
	}

	if t := rec.IVTiming; t != nil {
		output.Println()
		output.Printf("IV Timing:     %s (%s, bias %+.1f)\n", t.Signal, t.Recommendation, t.ScoreBias)
	}

	if len(rec.Alternatives) > 0 {
		output.Println()
		table := NewTable(output, "Alternative", "Delta", "Bid/Ask", "Spread", "Score", "Tag")
		for _, alt := range rec.Alternatives {
			table.AddRow(
				TruncateString(alt.Description, 32),
				fmt.Sprintf("%.2f", alt.Delta),
				fmt.Sprintf("%.2f/%.2f", alt.Bid, alt.Ask),
				fmt.Sprintf("%.1f%%", alt.SpreadPct*100),
				fmt.Sprintf("%.1f", alt.Score),
				string(alt.Tag),
			)
		}
		table.Render()
	}

	if rec.Reasoning != "" {
		output.Println()
		output.Dim("%s", rec.Reasoning)
	}
}
