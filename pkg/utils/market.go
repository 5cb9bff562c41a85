// Package utils provides Eastern time helpers shared across the engine.
package utils

import (
	"time"
)

// EasternLocation is the timezone for US equity and index options markets.
// Nil when the tz database is unavailable; ToEastern then applies US DST rules itself.
var EasternLocation *time.Location

func init() {
	loc, err := time.LoadLocation("America/New_York")
	if err == nil {
		EasternLocation = loc
	}
}

var (
	estZone = time.FixedZone("EST", -5*60*60)
	edtZone = time.FixedZone("EDT", -4*60*60)
)

// ToEastern converts t to US Eastern time.
func ToEastern(t time.Time) time.Time {
	if EasternLocation != nil {
		return t.In(EasternLocation)
	}
	if isUSDaylightTime(t.UTC()) {
		return t.In(edtZone)
	}
	return t.In(estZone)
}

// isUSDaylightTime applies the post-2007 rule: second Sunday of March 07:00 UTC
// through first Sunday of November 06:00 UTC.
func isUSDaylightTime(utc time.Time) bool {
	year := utc.Year()
	start := nthSunday(year, time.March, 2).Add(7 * time.Hour)
	end := nthSunday(year, time.November, 1).Add(6 * time.Hour)
	return !utc.Before(start) && utc.Before(end)
}

func nthSunday(year int, month time.Month, n int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(time.Sunday) - int(first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, offset+7*(n-1))
}

// EasternDate returns the YYYY-MM-DD calendar date of t in Eastern time.
func EasternDate(t time.Time) string {
	return ToEastern(t).Format("2006-01-02")
}

// MinuteOfDayET returns minutes since midnight Eastern.
func MinuteOfDayET(t time.Time) int {
	et := ToEastern(t)
	return et.Hour()*60 + et.Minute()
}

// EasternClock returns the instant at hour:minute Eastern on the given YYYY-MM-DD date.
func EasternClock(date string, hour, minute int) (time.Time, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return time.Time{}, err
	}
	if EasternLocation != nil {
		return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, EasternLocation), nil
	}
	// Resolve the offset at noon UTC of that day; DST transitions happen before the session.
	probe := time.Date(day.Year(), day.Month(), day.Day(), 12, 0, 0, 0, time.UTC)
	zone := estZone
	if isUSDaylightTime(probe) {
		zone = edtZone
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, zone), nil
}

// IsWeekend reports whether t falls on Saturday or Sunday in Eastern time.
func IsWeekend(t time.Time) bool {
	wd := ToEastern(t).Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
