package gate

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"spx-engine/internal/market"
	"spx-engine/internal/models"
	"spx-engine/pkg/utils"
)

// MacroEvent is the nearest upcoming priority release.
type MacroEvent struct {
	Event        string    `json:"event"`
	At           time.Time `json:"at"`
	MinutesUntil int       `json:"minutesUntil"`
}

// MacroCheck is the macro calendar sub-check.
type MacroCheck struct {
	Passed      bool        `json:"passed"`
	Caution     bool        `json:"caution"`
	Unavailable bool        `json:"unavailable,omitempty"`
	Reason      string      `json:"reason,omitempty"`
	NextEvent   *MacroEvent `json:"nextEvent,omitempty"`
}

// macroUnavailable is the fail-open result when the calendar cannot be read.
func macroUnavailable() MacroCheck {
	return MacroCheck{Passed: true, Unavailable: true, Reason: "macro calendar unavailable"}
}

func macroClear() MacroCheck {
	return MacroCheck{Passed: true}
}

var priorityMacroKeywords = []string{
	"fomc", "federal reserve", "consumer price index", "cpi",
	"nonfarm payroll", "employment situation", "payroll",
}

func containsAny(s string, keywords ...string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func isPriorityMacroEvent(name string) bool {
	return containsAny(strings.ToLower(name), priorityMacroKeywords...)
}

func isFedCalendarEvent(name string) bool {
	return containsAny(strings.ToLower(name), "fomc", "federal reserve", "federal open market")
}

// inferMacroEventMinute returns the scheduled release minute of day, Eastern.
func inferMacroEventMinute(name string) int {
	n := strings.ToLower(name)
	switch {
	case containsAny(n, "fomc", "federal reserve"):
		return 14 * 60
	case containsAny(n, "payroll", "employment", "cpi"):
		return 8*60 + 30
	default:
		return 10 * 60
	}
}

// EvaluateMacroCalendar classifies the upcoming macro releases relative to at.
// Fed events in the feed extend the calendar's FOMC dates for the same-day blackout.
func EvaluateMacroCalendar(events []models.EconomicEvent, at time.Time, cal *market.Calendar, cfg Config) MacroCheck {
	if cal == nil {
		cal = market.NewCalendar()
	}
	date := utils.EasternDate(at)
	minute := utils.MinuteOfDayET(at)

	fedToday := ""
	for _, e := range events {
		if e.Date == date && isFedCalendarEvent(e.Event) {
			fedToday = e.Event
			break
		}
	}

	cc := cal.Context(at)
	cc.IsFOMCDay = cc.IsFOMCDay || fedToday != ""
	if market.ShouldBlockStrategies(cc, at) {
		name := fedToday
		if name == "" {
			name = "Federal Reserve event"
		}
		check := MacroCheck{
			Passed: false,
			Reason: "FOMC announcement day blackout until 14:30 ET",
		}
		if announce, err := utils.EasternClock(date, 14, 0); err == nil {
			until := 14*60 - minute
			if until < 0 {
				until = 0
			}
			check.NextEvent = &MacroEvent{Event: name, At: announce, MinutesUntil: until}
		}
		return check
	}

	var upcoming []MacroEvent
	for _, e := range events {
		if !isPriorityMacroEvent(e.Event) {
			continue
		}
		m := inferMacroEventMinute(e.Event)
		eventAt, err := utils.EasternClock(e.Date, m/60, m%60)
		if err != nil {
			continue
		}
		until := int(eventAt.Sub(at).Minutes())
		if eventAt.Before(at) {
			continue
		}
		upcoming = append(upcoming, MacroEvent{Event: e.Event, At: eventAt, MinutesUntil: until})
	}
	if len(upcoming) == 0 {
		return macroClear()
	}
	sort.SliceStable(upcoming, func(i, j int) bool {
		return upcoming[i].MinutesUntil < upcoming[j].MinutesUntil
	})

	next := upcoming[0]
	switch {
	case next.MinutesUntil <= cfg.MacroBlackoutMinutes:
		return MacroCheck{
			Passed:    false,
			Reason:    fmt.Sprintf("%s in %dm (blackout window)", next.Event, next.MinutesUntil),
			NextEvent: &next,
		}
	case next.MinutesUntil <= cfg.MacroCautionMinutes:
		return MacroCheck{
			Passed:    true,
			Caution:   true,
			Reason:    fmt.Sprintf("%s in %dm (caution window)", next.Event, next.MinutesUntil),
			NextEvent: &next,
		}
	}
	return MacroCheck{Passed: true, NextEvent: &next}
}
