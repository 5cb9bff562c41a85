package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"spx-engine/internal/gate"
	"spx-engine/internal/models"
)

func newGateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gate",
		Short: "Evaluate the trading environment gate",
		Long: `Run the environment gate once and print each sub-check:
VIX regime, expected move consumption, macro calendar, session time,
volatility compression and event risk.`,
		Example: `  spx-engine gate --scenario morning.yaml
  spx-engine gate --record
  spx-engine gate --scenario fomc.yaml --json`,
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

			in := gate.GateInput{EvaluationDate: time.Now()}
			if sc != nil {
				in = sc.GateInput()
			}
			decision := app.newGate(ctx, src).Evaluate(ctx, in)

			if record, _ := cmd.Flags().GetBool("record"); record {
				st, err := app.Store()
				if err != nil {
					output.Error("%v", err)
					return err
				}
				if err := st.SaveGateDecision(ctx, decision); err != nil {
					output.Error("Failed to record gate decision: %v", err)
					return err
				}
			}

			var standby *gate.StandbyGuidance
			if !decision.Passed {
				var setups []models.Setup
				if sc != nil {
					setups = sc.Setups
				}
				standby = gate.BuildStandbyGuidance(decision, setups, decision.EvaluatedAt)
			}

			if output.IsJSON() {
				return output.JSON(struct {
					Decision gate.EnvironmentGateDecision `json:"decision"`
					Standby  *gate.StandbyGuidance        `json:"standby,omitempty"`
				}{decision, standby})
			}

			printGateDecision(output, decision)
			if standby != nil {
				output.Println()
				printStandby(output, standby)
			}
			return nil
		},
	}

	cmd.Flags().String("scenario", "", "scenario file (YAML or JSON)")
	cmd.Flags().Bool("record", false, "persist the decision to the store")
	return cmd
}

func printGateDecision(output *Output, d gate.EnvironmentGateDecision) {
	verdict := output.Green("OPEN")
	switch {
	case !d.Passed:
		verdict = output.Red("CLOSED")
	case d.Caution:
		verdict = output.Yellow("OPEN (caution)")
	}
	output.Bold("Environment Gate: %s", verdict)
	output.Printf("Evaluated:        %s\n", FormatDateTime(d.EvaluatedAt))
	output.Printf("VIX Regime:       %s\n", d.VixRegime)
	output.Printf("Ready Threshold:  %.0f\n", d.DynamicReadyThreshold)
	if blocking := d.BlockingCheck(); blocking != "" {
		output.Printf("Blocking Check:   %s\n", output.Red(blocking))
	}
	output.Println()

	b := d.Breakdown
	table := NewTable(output, "Check", "Status", "Value", "Detail")
	table.AddRow("VIX regime", output.PassFail(b.VixRegime.Passed),
		FormatOptFloat(b.VixRegime.Value, 2), b.VixRegime.Reason)
	table.AddRow("Expected move", output.PassFail(b.ExpectedMoveConsumption.Passed),
		optPercent(b.ExpectedMoveConsumption.ConsumedPct),
		joinDetail("move "+FormatOptPoints(b.ExpectedMoveConsumption.ExpectedMovePoints), b.ExpectedMoveConsumption.Reason))
	table.AddRow("Macro calendar", checkStatus(output, b.MacroCalendar.Passed, b.MacroCalendar.Caution),
		nextEventLabel(b.MacroCalendar.NextEvent), b.MacroCalendar.Reason)
	table.AddRow("Session time", output.PassFail(b.SessionTime.Passed),
		FormatMinuteET(b.SessionTime.MinuteEt), joinDetail(b.SessionTime.Status+"/"+b.SessionTime.Source, b.SessionTime.Reason))
	table.AddRow("Compression", checkStatus(output, b.Compression.Passed, b.Compression.Caution),
		FormatOptFloat(b.Compression.SpreadPct, 2),
		joinDetail(fmt.Sprintf("IV %s RV %s", FormatOptFloat(b.Compression.ImpliedVolPct, 1), FormatOptFloat(b.Compression.RealizedVolPct, 1)), b.Compression.Reason))
	table.AddRow("Event risk", checkStatus(output, b.EventRisk.Passed, b.EventRisk.Caution),
		fmt.Sprintf("%.0f", b.EventRisk.Score), joinDetail(b.EventRisk.Source, b.EventRisk.Reason))
	table.Render()

	if len(d.Reasons) > 0 {
		output.Println()
		for _, r := range d.Reasons {
			output.Printf("  - %s\n", r)
		}
	}
}

func printStandby(output *Output, s *gate.StandbyGuidance) {
	output.Bold("%s: %s", s.Status, s.Reason)
	for _, w := range s.WaitingFor {
		output.Printf("  waiting for: %s\n", w)
	}
	if n := s.NearestSetup; n != nil {
		output.Printf("  nearest setup: %s %s %s entry %.2f stop %.2f (p %.2f)\n",
			n.SetupID, n.SetupType, n.Direction, n.EntryLevel, n.Stop, n.EstimatedProbability)
	}
	for _, z := range s.WatchZones {
		output.Printf("  watch %.2f %s: %s\n", z.Level, z.Direction, z.Reason)
	}
	output.Dim("Next check: %s", FormatTime(s.NextCheckAt))
}

func checkStatus(output *Output, passed, caution bool) string {
	if passed && caution {
		return output.Yellow("CAUTION")
	}
	return output.PassFail(passed)
}

func optPercent(p *float64) string {
	if p == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", *p)
}

func nextEventLabel(e *gate.MacroEvent) string {
	if e == nil {
		return "-"
	}
	return fmt.Sprintf("%s in %dm", e.Event, e.MinutesUntil)
}

func joinDetail(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "; ")
}
