package models

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spx-engine/internal/errors"
)

func TestParseSetupType(t *testing.T) {
	for _, st := range SetupTypes {
		got, err := ParseSetupType(string(st))
		require.NoError(t, err)
		assert.Equal(t, st, got)
	}

	_, err := ParseSetupType("gap_and_go")
	assert.True(t, errors.Is(err, errors.ErrInvalidEnum))
}

func TestSetupFamilies(t *testing.T) {
	assert.True(t, SetupFadeAtWall.IsMeanReversionFamily())
	assert.True(t, SetupFlipReclaim.IsMeanReversionFamily())
	assert.False(t, SetupORBBreakout.IsMeanReversionFamily())
	assert.True(t, SetupBreakoutVacuum.IsMomentumFamily())
	assert.False(t, SetupTrendPullback.IsMomentumFamily())
}

func TestSetupCloneDoesNotAlias(t *testing.T) {
	at := time.Date(2026, 2, 20, 15, 0, 0, 0, time.UTC)
	s := Setup{
		ID:          "s1",
		GateReasons: []string{"a"},
		TriggeredAt: &at,
	}
	c := s.Clone()
	c.GateReasons[0] = "b"
	*c.TriggeredAt = at.Add(time.Minute)

	assert.Equal(t, "a", s.GateReasons[0])
	assert.Equal(t, at, *s.TriggeredAt)
}

func TestContractSpreadPct(t *testing.T) {
	c := OptionContract{Bid: 1.9, Ask: 2.1}
	assert.InDelta(t, 0.1, c.SpreadPct(), 1e-9)

	zero := OptionContract{}
	assert.True(t, math.IsInf(zero.SpreadPct(), 1))
}

func TestContractDescription(t *testing.T) {
	c := OptionContract{Strike: 6000, Expiry: "2026-02-20", Type: OptionPut}
	assert.Equal(t, "SPX 6000P 2026-02-20", c.Description())
}

func TestSortBars(t *testing.T) {
	base := time.Date(2026, 2, 20, 14, 30, 0, 0, time.UTC)
	bars := []Bar{
		{Timestamp: base.Add(2 * time.Minute)},
		{Timestamp: base},
		{Timestamp: base.Add(time.Minute)},
	}
	sorted := SortBars(bars)
	assert.Equal(t, base, sorted[0].Timestamp)
	assert.Equal(t, base.Add(2*time.Minute), sorted[2].Timestamp)
	assert.Equal(t, base.Add(2*time.Minute), bars[0].Timestamp)
}

func TestParseSetupStatus(t *testing.T) {
	got, err := ParseSetupStatus("triggered")
	require.NoError(t, err)
	assert.Equal(t, StatusTriggered, got)

	_, err = ParseSetupStatus("armed")
	assert.True(t, errors.Is(err, errors.ErrInvalidEnum))
}
