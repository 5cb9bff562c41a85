package market

import (
	"sort"
	"time"

	"spx-engine/internal/models"
	"spx-engine/pkg/utils"
)

// FOMCBlockUntilMinute is 14:30 ET, half an hour after the statement.
const FOMCBlockUntilMinute = 14*60 + 30

// DefaultFOMCDates lists scheduled FOMC statement dates (second day of each meeting).
var DefaultFOMCDates = []string{
	"2025-01-29", "2025-03-19", "2025-05-07", "2025-06-18",
	"2025-07-30", "2025-09-17", "2025-10-29", "2025-12-10",
	"2026-01-28", "2026-03-18", "2026-04-29", "2026-06-17",
	"2026-07-29", "2026-09-16", "2026-10-28", "2026-12-09",
	"2027-01-27", "2027-03-17", "2027-04-28", "2027-06-09",
	"2027-07-28", "2027-09-22", "2027-10-27", "2027-12-08",
	"2028-01-26", "2028-03-15", "2028-04-26", "2028-06-14",
	"2028-07-26", "2028-09-20", "2028-11-01", "2028-12-13",
}

// CalendarContext classifies one trading date for event-driven strategy restrictions.
type CalendarContext struct {
	Date                  string     `json:"date"`
	IsFOMCDay             bool       `json:"isFomcDay"`
	IsFOMCWeek            bool       `json:"isFomcWeek"`
	IsOPEXDay             bool       `json:"isOpexDay"`
	IsOPEXWeek            bool       `json:"isOpexWeek"`
	IsQuarterlyOPEX       bool       `json:"isQuarterlyOpex"`
	RestrictMeanReversion bool       `json:"restrictMeanReversion"`
	RestrictBreakouts     bool       `json:"restrictBreakouts"`
	NextFOMC              *time.Time `json:"nextFomc,omitempty"`
	Notes                 []string   `json:"notes,omitempty"`
}

// Calendar answers FOMC and monthly options-expiration questions.
type Calendar struct {
	fomc   map[string]struct{}
	sorted []string
}

// NewCalendar creates a calendar over the given FOMC dates, or DefaultFOMCDates when none are given.
func NewCalendar(fomcDates ...string) *Calendar {
	if len(fomcDates) == 0 {
		fomcDates = DefaultFOMCDates
	}
	c := &Calendar{fomc: make(map[string]struct{}, len(fomcDates))}
	for _, d := range fomcDates {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			continue
		}
		if _, dup := c.fomc[d]; dup {
			continue
		}
		c.fomc[d] = struct{}{}
		c.sorted = append(c.sorted, d)
	}
	sort.Strings(c.sorted)
	return c
}

// IsFOMCDay reports whether date is an FOMC statement day.
func (c *Calendar) IsFOMCDay(date string) bool {
	_, ok := c.fomc[date]
	return ok
}

// Context classifies the Eastern date of at. Time-of-day restrictions use at.
func (c *Calendar) Context(at time.Time) CalendarContext {
	et := utils.ToEastern(at)
	date := et.Format("2006-01-02")
	minute := utils.MinuteOfDayET(at)

	cc := CalendarContext{Date: date}
	cc.IsFOMCDay = c.IsFOMCDay(date)
	for _, d := range weekDates(et) {
		if c.IsFOMCDay(d) {
			cc.IsFOMCWeek = true
			break
		}
	}

	opex := MonthlyOPEX(et.Year(), et.Month())
	opexDate := opex.Format("2006-01-02")
	cc.IsOPEXDay = date == opexDate
	for _, d := range weekDates(et) {
		if d == opexDate {
			cc.IsOPEXWeek = true
			break
		}
	}
	cc.IsQuarterlyOPEX = cc.IsOPEXDay && isQuarterMonth(et.Month())

	if cc.IsFOMCDay && minute >= FOMCBlockUntilMinute {
		cc.RestrictBreakouts = true
		cc.Notes = append(cc.Notes, "FOMC afternoon whipsaw: breakouts restricted")
	}
	if cc.IsOPEXDay {
		cc.RestrictBreakouts = true
		cc.Notes = append(cc.Notes, "OPEX pinning: breakouts restricted")
	}
	if cc.IsQuarterlyOPEX {
		cc.RestrictMeanReversion = true
		cc.Notes = append(cc.Notes, "Quarterly OPEX flows: mean reversion restricted")
	}

	cc.NextFOMC = c.nextFOMC(date, minute)
	return cc
}

// nextFOMC returns 14:00 ET of the first FOMC date not yet announced.
func (c *Calendar) nextFOMC(date string, minute int) *time.Time {
	i := sort.SearchStrings(c.sorted, date)
	for ; i < len(c.sorted); i++ {
		d := c.sorted[i]
		if d == date && minute >= 14*60 {
			continue
		}
		t, err := utils.EasternClock(d, 14, 0)
		if err != nil {
			return nil
		}
		return &t
	}
	return nil
}

// ShouldBlockStrategies reports the same-day FOMC blackout, active until 14:30 ET.
func ShouldBlockStrategies(cc CalendarContext, at time.Time) bool {
	return cc.IsFOMCDay && utils.MinuteOfDayET(at) < FOMCBlockUntilMinute
}

// StrategyAllowed applies the calendar restriction flags to a setup type.
func StrategyAllowed(cc CalendarContext, setupType models.SetupType, at time.Time) bool {
	if ShouldBlockStrategies(cc, at) {
		return false
	}
	if cc.RestrictBreakouts && isBreakoutType(setupType) {
		return false
	}
	if cc.RestrictMeanReversion && setupType.IsMeanReversionFamily() {
		return false
	}
	return true
}

func isBreakoutType(t models.SetupType) bool {
	switch t {
	case models.SetupBreakoutVacuum, models.SetupORBBreakout:
		return true
	}
	return false
}

// MonthlyOPEX returns the standard monthly expiration: the third Friday, or
// the Thursday before when that Friday is an exchange holiday.
func MonthlyOPEX(year int, month time.Month) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(time.Friday) - int(first.Weekday()) + 7) % 7
	third := first.AddDate(0, 0, offset+14)
	if IsHoliday(third.Format("2006-01-02")) {
		return third.AddDate(0, 0, -1)
	}
	return third
}

func isQuarterMonth(m time.Month) bool {
	return m == time.March || m == time.June || m == time.September || m == time.December
}

// weekDates returns Monday through Friday of the week containing et.
func weekDates(et time.Time) []string {
	day := time.Date(et.Year(), et.Month(), et.Day(), 0, 0, 0, 0, time.UTC)
	back := (int(day.Weekday()) + 6) % 7
	monday := day.AddDate(0, 0, -back)
	out := make([]string, 5)
	for i := range out {
		out[i] = monday.AddDate(0, 0, i).Format("2006-01-02")
	}
	return out
}
