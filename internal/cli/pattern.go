package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"spx-engine/internal/analysis/patterns"
	"spx-engine/internal/models"
)

// volumeLookback is the number of prior bars averaged for the spike test.
const volumeLookback = 10

// barPattern is one classified bar.
type barPattern struct {
	Timestamp   time.Time            `json:"timestamp"`
	Close       float64              `json:"close"`
	Volume      int64                `json:"volume"`
	Pattern     models.CandlePattern `json:"pattern"`
	VolumeSpike bool                 `json:"volumeSpike"`
}

func newPatternCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pattern",
		Short: "Classify scenario bars and build trigger metadata",
		Long: `Classify each one-minute bar of a scenario (engulfing, doji, hammer,
inverted hammer) and flag volume spikes. With --setup, build the trigger
context for that setup: trigger bar, penetration depth and approach speed.`,
		Example: `  spx-engine pattern --scenario morning.yaml
  spx-engine pattern --scenario morning.yaml --setup s-1 --last 15`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			sc, err := scenarioFlag(cmd)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			if sc == nil {
				err := fmt.Errorf("--scenario is required")
				output.Error("%v", err)
				return err
			}

			last, _ := cmd.Flags().GetInt("last")
			rows := classifyBars(sc.Bars, last)

			var trigger *models.TriggerContext
			if id, _ := cmd.Flags().GetString("setup"); id != "" {
				setup, err := sc.Setup(id)
				if err != nil {
					output.Error("%v", err)
					return err
				}
				trigger = patterns.BuildTriggerContext(*setup, sc.Bars, sc.Now)
			}

			if output.IsJSON() {
				return output.JSON(struct {
					Bars    []barPattern           `json:"bars"`
					Trigger *models.TriggerContext `json:"triggerContext,omitempty"`
				}{rows, trigger})
			}

			if len(rows) == 0 {
				output.Warning("Scenario has no bars")
			} else {
				table := NewTable(output, "Time", "Close", "Volume", "Pattern", "Spike")
				for _, r := range rows {
					spike := ""
					if r.VolumeSpike {
						spike = output.Yellow("yes")
					}
					table.AddRow(FormatTime(r.Timestamp), fmt.Sprintf("%.2f", r.Close), fmt.Sprintf("%d", r.Volume), string(r.Pattern), spike)
				}
				table.Render()
			}

			if trigger != nil {
				output.Println()
				output.Bold("Trigger Context")
				output.Printf("  Bar:          %s (%s)\n", FormatTime(trigger.TriggerBarTimestamp), trigger.TriggerBarPattern)
				output.Printf("  Penetration:  %s\n", FormatPoints(trigger.PenetrationDepth))
				output.Printf("  Approach:     %s\n", trigger.ApproachSpeed)
				output.Printf("  Volume:       %d (spike %v)\n", trigger.TriggerBarVolume, trigger.VolumeSpike)
				output.Printf("  Latency:      %s\n", FormatDuration(time.Duration(trigger.TriggerLatencyMs)*time.Millisecond))
			}
			return nil
		},
	}

	cmd.Flags().String("scenario", "", "scenario file (YAML or JSON)")
	cmd.Flags().String("setup", "", "setup id to build trigger metadata for")
	cmd.Flags().Int("last", 0, "only show the last N bars")
	return cmd
}

// classifyBars labels bars in time order, keeping the last n when n > 0.
func classifyBars(bars []models.Bar, n int) []barPattern {
	sorted := models.SortBars(bars)
	out := make([]barPattern, 0, len(sorted))
	for i, b := range sorted {
		var prior *models.Bar
		if i > 0 {
			prior = &sorted[i-1]
		}
		out = append(out, barPattern{
			Timestamp:   b.Timestamp,
			Close:       b.Close,
			Volume:      b.Volume,
			Pattern:     patterns.DetectCandlePattern(b, prior),
			VolumeSpike: patterns.IsVolumeSpike(b, sorted[max(0, i-volumeLookback):i], 0),
		})
	}
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}
