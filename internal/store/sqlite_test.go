package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spx-engine/internal/analysis/indicators"
	"spx-engine/internal/errors"
	"spx-engine/internal/gate"
	"spx-engine/internal/models"
	"spx-engine/internal/providers"
)

var sessionAt = time.Date(2026, 2, 20, 15, 0, 0, 0, time.UTC) // 10:00 ET

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	return openTestStore(t, filepath.Join(t.TempDir(), "engine.db"))
}

func openTestStore(t *testing.T, path string) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testSetup(id string, status models.SetupStatus, created time.Time) models.Setup {
	return models.Setup{
		ID:          id,
		Type:        models.SetupORBBreakout,
		Direction:   models.DirectionBullish,
		EntryZone:   models.PriceRange{Low: 5998, High: 6000},
		Stop:        5995,
		Target1:     models.Target{Price: 6008, Label: "T1"},
		Target2:     models.Target{Price: 6015, Label: "T2"},
		Regime:      models.RegimeTrending,
		Status:      status,
		Probability: 62,
		CreatedAt:   created,
	}
}

func TestSetupLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SaveSetup(ctx, testSetup("orb-1", models.StatusReady, sessionAt.Add(-30*time.Minute))))
	require.NoError(t, s.SaveSetup(ctx, testSetup("orb-2", models.StatusForming, sessionAt.Add(-10*time.Minute))))
	require.NoError(t, s.SaveSetup(ctx, testSetup("orb-3", models.StatusExpired, sessionAt.Add(-20*time.Minute))))
	// previous session
	require.NoError(t, s.SaveSetup(ctx, testSetup("orb-0", models.StatusReady, sessionAt.Add(-24*time.Hour))))

	active, err := s.DetectActiveSetups(ctx, providers.SetupQuery{Now: sessionAt})
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "orb-1", active[0].ID)
	assert.Equal(t, "orb-2", active[1].ID)
	assert.Equal(t, 6008.0, active[0].Target1.Price)

	got, err := s.GetSetupByID(ctx, "orb-0", providers.SetupQuery{})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.StatusReady, got.Status)

	missing, err := s.GetSetupByID(ctx, "nope", providers.SetupQuery{})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpdateSetupStatusStampsTrigger(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.SaveSetup(ctx, testSetup("orb-1", models.StatusReady, sessionAt.Add(-30*time.Minute))))

	require.NoError(t, s.UpdateSetupStatus(ctx, "orb-1", models.StatusTriggered, sessionAt))
	got, err := s.GetSetupByID(ctx, "orb-1", providers.SetupQuery{})
	require.NoError(t, err)
	require.NotNil(t, got.TriggeredAt)
	assert.True(t, got.TriggeredAt.Equal(sessionAt))
	assert.Equal(t, models.StatusTriggered, got.Status)

	triggered, err := s.GetSetups(ctx, SetupFilter{Status: models.StatusTriggered})
	require.NoError(t, err)
	assert.Len(t, triggered, 1)

	err = s.UpdateSetupStatus(ctx, "nope", models.StatusExpired, sessionAt)
	assert.True(t, errors.Is(err, errors.ErrSetupNotFound))

	err = s.UpdateSetupStatus(ctx, "orb-1", models.SetupStatus("armed"), sessionAt)
	assert.True(t, errors.Is(err, errors.ErrInvalidEnum))
}

func TestSaveSetupRequiresID(t *testing.T) {
	err := newTestStore(t).SaveSetup(context.Background(), models.Setup{})
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestLatestRiskContext(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "engine.db")
	s := openTestStore(t, path)

	none, err := s.LatestRiskContext(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, none)

	pdt := false
	require.NoError(t, s.SaveRiskContext(ctx, models.RiskContext{
		UserID:      "u1",
		TotalEquity: indicators.Ptr(40000.0),
		AsOf:        sessionAt.Add(-time.Hour),
	}))
	require.NoError(t, s.SaveRiskContext(ctx, models.RiskContext{
		UserID:              "u1",
		TotalEquity:         indicators.Ptr(50000.0),
		DayTradeBuyingPower: indicators.Ptr(20000.0),
		MaxRiskPct:          0.01,
		PDTQualified:        &pdt,
		AsOf:                sessionAt,
	}))

	rc, err := s.LatestRiskContext(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, rc)
	assert.Equal(t, 50000.0, *rc.TotalEquity)
	assert.Equal(t, 0.01, rc.MaxRiskPct)
	require.NotNil(t, rc.PDTQualified)
	assert.False(t, *rc.PDTQualified)

	// a fresh handle on the same file reads from disk
	rc, err = openTestStore(t, path).LatestRiskContext(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, rc)
	assert.Equal(t, 20000.0, *rc.DayTradeBuyingPower)
	assert.True(t, rc.AsOf.Equal(sessionAt))
}

func TestGateDecisionLog(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	blocked := gate.EnvironmentGateDecision{
		Passed:      false,
		Reasons:     []string{"VIX 35.0 is above the 30 cap"},
		EvaluatedAt: sessionAt,
	}
	blocked.Breakdown.VixRegime.Passed = false
	passed := gate.EnvironmentGateDecision{Passed: true, EvaluatedAt: sessionAt.Add(time.Minute)}
	passed.Breakdown.VixRegime.Passed = true
	passed.Breakdown.ExpectedMoveConsumption.Passed = true
	passed.Breakdown.MacroCalendar.Passed = true
	passed.Breakdown.SessionTime.Passed = true
	passed.Breakdown.Compression.Passed = true
	passed.Breakdown.EventRisk.Passed = true

	require.NoError(t, s.SaveGateDecision(ctx, blocked))
	require.NoError(t, s.SaveGateDecision(ctx, passed))

	all, err := s.GetGateDecisions(ctx, DecisionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.True(t, all[0].Passed)
	assert.Equal(t, "2026-02-20", all[1].SessionDate)
	assert.Equal(t, "vix_regime", all[1].BlockingCheck)
	assert.Equal(t, blocked.Reasons, all[1].Decision.Reasons)

	no := false
	failed, err := s.GetGateDecisions(ctx, DecisionFilter{Passed: &no, Limit: 5})
	require.NoError(t, err)
	assert.Len(t, failed, 1)
}

// Property: DetectActiveSetups never returns a terminal setup or one from another session.
func TestProperty_DetectActiveSetupsFiltersTerminal(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30

	properties := gopter.NewProperties(parameters)

	statuses := []models.SetupStatus{
		models.StatusForming, models.StatusReady, models.StatusTriggered,
		models.StatusInvalidated, models.StatusExpired,
	}
	run := 0

	properties.Property("active setups are same-session and non-terminal", prop.ForAll(
		func(codes []int, dayOffsets []int) bool {
			run++
			// each run gets its own session day so earlier rows never leak in
			now := sessionAt.AddDate(0, 0, run*10)
			want := 0
			for i, code := range codes {
				status := statuses[code%len(statuses)]
				created := now.Add(-time.Duration(i+1) * time.Minute)
				if i < len(dayOffsets) && dayOffsets[i] > 0 {
					created = created.AddDate(0, 0, -dayOffsets[i])
				} else if !status.IsTerminal() {
					want++
				}
				if err := s.SaveSetup(ctx, testSetup(fmt.Sprintf("r%d-%d", run, i), status, created)); err != nil {
					return false
				}
			}

			active, err := s.DetectActiveSetups(ctx, providers.SetupQuery{Now: now})
			if err != nil || len(active) != want {
				return false
			}
			for _, a := range active {
				if a.Status.IsTerminal() {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(8, gen.IntRange(0, 4)),
		gen.SliceOfN(8, gen.IntRange(0, 2)),
	))

	properties.TestingRun(t)
}
