package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spx-engine/internal/engine"
	"spx-engine/internal/ev"
	"spx-engine/internal/gate"
	"spx-engine/internal/models"
	"spx-engine/internal/stops"
	"spx-engine/internal/store"
)

// highVixScenario is a 10:00 ET snapshot with VIX in the extreme regime.
const highVixScenario = `
now: 2026-02-20T15:00:00Z
userId: u-1
vix: 35
atr14: 1.8
currentPrice: 6001
sessionOpenPrice: 5996
regime: trending
regimeConfidence: 78
session:
  status: open
  minuteEt: 600
  minutesUntilClose: 360
  source: local
setups:
  - id: orb-1
    type: orb_breakout
    direction: bullish
    entryZone: {low: 5998, high: 6000}
    stop: 5995
    target1: {price: 6008, label: T1}
    target2: {price: 6015, label: T2}
    regime: trending
    status: ready
    probability: 62
bars:
  - {t: 2026-02-20T14:57:00Z, o: 6000, h: 6001, l: 5999, c: 6000.5, v: 1000}
  - {t: 2026-02-20T14:58:00Z, o: 6000.5, h: 6001.5, l: 5999.5, c: 6000, v: 1100}
  - {t: 2026-02-20T14:59:00Z, o: 6001, h: 6002, l: 5998, c: 5998.5, v: 4200}
`

// testEnv writes a config directory that keeps logs quiet and the store local.
func testEnv(t *testing.T) (configDir string, scenarioPath string) {
	t.Helper()
	dir := t.TempDir()
	body := "[logging]\nconsole = false\nfile = false\n\n" +
		"[store]\npath = \"" + filepath.ToSlash(filepath.Join(dir, "engine.db")) + "\"\n\n" +
		"[gate]\ndisable_macro_calendar = true\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "engine.toml"), []byte(body), 0o600))

	scenarioPath = filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(scenarioPath, []byte(highVixScenario), 0o600))
	return dir, scenarioPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd(zerolog.Nop())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version", "--json")
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, Version, got["version"])
}

func TestGateCommandBlocksOnExtremeVix(t *testing.T) {
	dir, scenario := testEnv(t)
	out, err := run(t, "gate", "--config", dir, "--scenario", scenario, "--json")
	require.NoError(t, err)

	var got struct {
		Decision gate.EnvironmentGateDecision `json:"decision"`
		Standby  *gate.StandbyGuidance        `json:"standby"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.False(t, got.Decision.Passed)
	assert.Equal(t, gate.VixExtreme, got.Decision.VixRegime)
	assert.Equal(t, "vix_regime", got.Decision.BlockingCheck())
	require.NotNil(t, got.Standby)
	assert.Equal(t, "STANDBY", got.Standby.Status)
}

func TestGateCommandRecordsDecision(t *testing.T) {
	dir, scenario := testEnv(t)
	_, err := run(t, "gate", "--config", dir, "--scenario", scenario, "--record", "--json")
	require.NoError(t, err)

	st, err := store.NewSQLiteStore(filepath.Join(dir, "engine.db"))
	require.NoError(t, err)
	defer st.Close()

	records, err := st.GetGateDecisions(context.Background(), store.DecisionFilter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.False(t, records[0].Passed)
	assert.Equal(t, "vix_regime", records[0].BlockingCheck)
}

func TestGateCommandTextOutput(t *testing.T) {
	dir, scenario := testEnv(t)
	out, err := run(t, "gate", "--config", dir, "--scenario", scenario)
	require.NoError(t, err)
	assert.Contains(t, out, "CLOSED")
	assert.Contains(t, out, "VIX regime")
	assert.Contains(t, out, "STANDBY")
}

func TestGateCommandRequiresProviderWithoutScenario(t *testing.T) {
	t.Setenv("SPX_API_KEY", "")
	dir, _ := testEnv(t)
	_, err := run(t, "gate", "--config", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestCycleCommandDemotesBlockedSetups(t *testing.T) {
	dir, scenario := testEnv(t)
	out, err := run(t, "cycle", "--config", dir, "--scenario", scenario, "--json")
	require.NoError(t, err)

	var res engine.CycleResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.False(t, res.Gate.Passed)
	require.Len(t, res.Setups, 1)
	assert.Equal(t, models.StatusForming, res.Setups[0].Setup.Status)
	assert.Equal(t, models.GateBlocked, res.Setups[0].Setup.GateStatus)
	assert.Nil(t, res.Setups[0].EV)
	assert.Empty(t, res.Actionable())
}

func TestCycleCommandWritesMetrics(t *testing.T) {
	dir, scenario := testEnv(t)
	metricsPath := filepath.Join(dir, "metrics.prom")
	_, err := run(t, "cycle", "--config", dir, "--scenario", scenario, "--json", "--metrics", metricsPath)
	require.NoError(t, err)

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "spx_engine_gate_decisions_total")
	assert.Contains(t, string(data), "spx_engine_cycle_duration_seconds")
}

func TestStopCommandFromFlags(t *testing.T) {
	dir, _ := testEnv(t)
	out, err := run(t, "stop", "--config", dir, "--json",
		"--direction", "bullish", "--type", "orb_breakout", "--regime", "trending",
		"--entry-low", "5998", "--entry-high", "6000", "--base-stop", "5995", "--atr", "1.8")
	require.NoError(t, err)

	var got stops.AdaptiveStopOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 5995.0, got.Stop)
	assert.Equal(t, 4.0, got.RiskPoints)
	require.NotNil(t, got.ATRFloorPoints)
	assert.Equal(t, 1.62, *got.ATRFloorPoints)
}

func TestStopCommandFromScenario(t *testing.T) {
	dir, scenario := testEnv(t)
	out, err := run(t, "stop", "--config", dir, "--scenario", scenario, "--setup", "orb-1", "--json")
	require.NoError(t, err)

	var got stops.AdaptiveStopOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	// Extreme VIX widens the stop below the base.
	assert.Less(t, got.Stop, 5995.0)
	assert.Greater(t, got.Scale.VIX, 1.0)
}

func TestStopCommandRejectsMissingDirection(t *testing.T) {
	dir, _ := testEnv(t)
	_, err := run(t, "stop", "--config", dir, "--entry-low", "1", "--entry-high", "2", "--base-stop", "0.5")
	assert.Error(t, err)
}

func TestEVCommand(t *testing.T) {
	dir, _ := testEnv(t)
	out, err := run(t, "ev", "--config", dir, "--json", "--pwin", "0.62", "--t1", "1.2", "--t2", "2.4")
	require.NoError(t, err)

	var got ev.AdaptiveEVResult
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Greater(t, got.EvR, 0.0)
	assert.InDelta(t, 0.62, got.AdjustedPWin, 1e-9)
	assert.InDelta(t, 1.0, got.T1Weight+got.T2Weight, 1e-9)
}

func TestPatternCommandFlagsVolumeSpike(t *testing.T) {
	dir, scenario := testEnv(t)
	out, err := run(t, "pattern", "--config", dir, "--scenario", scenario, "--json")
	require.NoError(t, err)

	var got struct {
		Bars []barPattern `json:"bars"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Bars, 3)
	assert.True(t, got.Bars[2].VolumeSpike)
	assert.False(t, got.Bars[0].VolumeSpike)
}

func TestContractCommandWithoutChainReturnsNothing(t *testing.T) {
	dir, scenario := testEnv(t)
	out, err := run(t, "contract", "--config", dir, "--scenario", scenario, "--setup", "orb-1")
	require.NoError(t, err)
	assert.Contains(t, out, "No contract recommendation")
}

func TestConfigShowMasksSecrets(t *testing.T) {
	t.Setenv("SPX_API_KEY", "abcd1234efgh5678")
	dir, _ := testEnv(t)
	out, err := run(t, "config", "show", "--config", dir)
	require.NoError(t, err)
	assert.NotContains(t, out, "abcd1234efgh5678")
	assert.Contains(t, out, "abcd")
}

func TestConfigInitWritesTemplate(t *testing.T) {
	dir := t.TempDir()
	out, err := run(t, "config", "init", dir, "--json")
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, filepath.Join(dir, "engine.toml"), got["path"])
	assert.FileExists(t, got["path"])
}

func TestLoadScenarioRejectsUnknownSetupType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	body := "setups:\n  - id: x\n    type: moonshot\n    direction: bullish\n    status: ready\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	_, err := LoadScenario(path)
	assert.Error(t, err)
}

func TestLoadScenarioJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.json")
	body := `{"now":"2026-02-20T15:00:00Z","vix":18,"setups":[{"id":"a","type":"fade_at_wall","direction":"bearish","status":"forming"}]}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	sc, err := LoadScenario(path)
	require.NoError(t, err)
	require.NotNil(t, sc.VIX)
	assert.Equal(t, 18.0, *sc.VIX)

	setup, err := sc.Setup("")
	require.NoError(t, err)
	assert.Equal(t, "a", setup.ID)
	_, err = sc.Setup("missing")
	assert.Error(t, err)
}
