package utils

import (
	"testing"
	"time"
)

func TestToEasternDST(t *testing.T) {
	tests := []struct {
		name   string
		utc    time.Time
		minute int
	}{
		{"winter", time.Date(2026, 2, 20, 15, 0, 0, 0, time.UTC), 10 * 60},
		{"summer", time.Date(2026, 7, 15, 14, 0, 0, 0, time.UTC), 10 * 60},
		{"day after spring forward", time.Date(2026, 3, 9, 13, 30, 0, 0, time.UTC), 9*60 + 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MinuteOfDayET(tt.utc); got != tt.minute {
				t.Errorf("MinuteOfDayET() = %d, want %d", got, tt.minute)
			}
		})
	}
}

func TestFallbackDSTRule(t *testing.T) {
	if isUSDaylightTime(time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)) {
		t.Error("January should be standard time")
	}
	if !isUSDaylightTime(time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)) {
		t.Error("June should be daylight time")
	}
	// 2026 spring forward is March 8.
	if isUSDaylightTime(time.Date(2026, 3, 8, 6, 59, 0, 0, time.UTC)) {
		t.Error("before 07:00 UTC on March 8 should be standard time")
	}
	if !isUSDaylightTime(time.Date(2026, 3, 8, 7, 0, 0, 0, time.UTC)) {
		t.Error("07:00 UTC on March 8 should be daylight time")
	}
}

func TestEasternClock(t *testing.T) {
	got, err := EasternClock("2026-02-20", 14, 0)
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2026, 2, 20, 19, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("EasternClock() = %v, want %v", got.UTC(), want)
	}

	if _, err := EasternClock("02/20/2026", 14, 0); err == nil {
		t.Error("expected parse error")
	}
}
