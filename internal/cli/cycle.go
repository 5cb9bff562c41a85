package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"spx-engine/internal/engine"
	"spx-engine/internal/gate"
	"spx-engine/internal/models"
)

func newCycleCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cycle",
		Short: "Run one full decision cycle",
		Long: `Run the environment gate, demote setups it blocks, attach trigger
metadata, recompute adaptive stops, score expected value and optionally
select a contract for every actionable setup.`,
		Example: `  spx-engine cycle --scenario morning.yaml --select-contracts
  spx-engine cycle --user u-1 --record
  spx-engine cycle --scenario morning.yaml --json --metrics -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(60 * time.Second)
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

			selectContracts, _ := cmd.Flags().GetBool("select-contracts")
			opts := engine.CycleOptions{
				Now:             evaluationTime(sc),
				Gate:            gate.GateInput{},
				SelectContracts: selectContracts,
			}
			opts.UserID, _ = cmd.Flags().GetString("user")
			if sc != nil {
				opts.Gate = sc.GateInput()
				opts.Setups = sc.Setups
				opts.GEX = sc.GEX
				opts.PartialAtT1 = sc.PartialAtT1
				opts.RiskContext = sc.RiskContext
				if opts.UserID == "" {
					opts.UserID = sc.UserID
				}
			}

			result, err := app.newEngine(ctx, src).EvaluateCycle(ctx, opts)
			if err != nil {
				output.Error("Cycle failed: %v", err)
				return err
			}

			if record, _ := cmd.Flags().GetBool("record"); record {
				if err := recordCycle(ctx, app, result); err != nil {
					output.Error("Failed to record cycle: %v", err)
					return err
				}
			}

			if output.IsJSON() {
				return output.JSON(result)
			}
			printCycle(output, result)
			return nil
		},
	}

	cmd.Flags().String("scenario", "", "scenario file (YAML or JSON)")
	cmd.Flags().String("user", "", "user id for setup detection and account risk")
	cmd.Flags().Bool("select-contracts", false, "select a contract for each actionable setup")
	cmd.Flags().Bool("record", false, "persist the gate decision and setup statuses to the store")
	return cmd
}

// recordCycle persists the gate decision and every setup status the gate changed.
func recordCycle(ctx context.Context, app *App, result *engine.CycleResult) error {
	st, err := app.Store()
	if err != nil {
		return err
	}
	if err := st.SaveGateDecision(ctx, result.Gate); err != nil {
		return err
	}
	for _, e := range result.Setups {
		if err := st.SaveSetup(ctx, e.Setup); err != nil {
			return fmt.Errorf("saving setup %s: %w", e.Setup.ID, err)
		}
	}
	return nil
}

func printCycle(output *Output, result *engine.CycleResult) {
	printGateDecision(output, result.Gate)
	output.Println()

	if len(result.Setups) == 0 {
		output.Info("No setups to evaluate")
	} else {
		table := NewTable(output, "Setup", "Type", "Dir", "Status", "Entry", "Stop", "Risk", "EV", "Contract")
		for _, e := range result.Setups {
			s := e.Setup
			status := string(s.Status)
			if s.Status.IsActionable() {
				status = output.Green(status)
			} else if s.GateStatus == models.GateBlocked {
				status = output.Red(status)
			}

			risk, evText, contract := "-", "-", "-"
			if e.Stop != nil && e.Stop.Output != nil {
				risk = FormatPoints(e.Stop.Output.RiskPoints)
			} else if e.Stop != nil && e.Stop.Fallback {
				risk = output.Yellow("base")
			}
			if e.EV != nil {
				evText = output.Signed(e.EV.EvR, FormatR(e.EV.EvR))
			}
			if e.Contract != nil {
				contract = TruncateString(e.Contract.Description, 24)
				if e.Contract.Sizing != nil {
					contract = fmt.Sprintf("%s x%d", contract, e.Contract.Sizing.RecommendedContracts)
				}
			}

			table.AddRow(
				TruncateString(s.ID, 12),
				string(s.Type),
				string(s.Direction),
				status,
				fmt.Sprintf("%.2f-%.2f", s.EntryZone.Low, s.EntryZone.High),
				fmt.Sprintf("%.2f", s.Stop),
				risk,
				evText,
				contract,
			)
		}
		table.Render()
	}

	if result.Standby != nil {
		output.Println()
		printStandby(output, result.Standby)
	}
}
