// Package market provides US index-options calendar math: exchange hours and
// holidays, FOMC and OPEX classification, and the live-overlaid session status.
package market

import (
	"time"

	"spx-engine/pkg/utils"
)

// Session status values.
const (
	StatusOpen       = "open"
	StatusPreMarket  = "pre_market"
	StatusAfterHours = "after_hours"
	StatusClosed     = "closed"
)

// Minutes of day, Eastern.
const (
	PreMarketOpenMinute  = 4 * 60
	RegularOpenMinute    = 9*60 + 30
	RegularCloseMinute   = 16 * 60
	EarlyCloseMinute     = 13 * 60
	AfterHoursEndMinute  = 20 * 60
	regularSessionLength = RegularCloseMinute - RegularOpenMinute
)

type holidayKind int

const (
	holidayClosed holidayKind = iota + 1
	holidayEarlyClose
)

// NYSE/Cboe full closures and 13:00 early closes.
var exchangeHolidays = map[string]holidayKind{
	"2025-01-01": holidayClosed,
	"2025-01-20": holidayClosed,
	"2025-02-17": holidayClosed,
	"2025-04-18": holidayClosed,
	"2025-05-26": holidayClosed,
	"2025-06-19": holidayClosed,
	"2025-07-03": holidayEarlyClose,
	"2025-07-04": holidayClosed,
	"2025-09-01": holidayClosed,
	"2025-11-27": holidayClosed,
	"2025-11-28": holidayEarlyClose,
	"2025-12-24": holidayEarlyClose,
	"2025-12-25": holidayClosed,

	"2026-01-01": holidayClosed,
	"2026-01-19": holidayClosed,
	"2026-02-16": holidayClosed,
	"2026-04-03": holidayClosed,
	"2026-05-25": holidayClosed,
	"2026-06-19": holidayClosed,
	"2026-07-03": holidayClosed,
	"2026-09-07": holidayClosed,
	"2026-11-26": holidayClosed,
	"2026-11-27": holidayEarlyClose,
	"2026-12-24": holidayEarlyClose,
	"2026-12-25": holidayClosed,

	"2027-01-01": holidayClosed,
	"2027-01-18": holidayClosed,
	"2027-02-15": holidayClosed,
	"2027-03-26": holidayClosed,
	"2027-05-31": holidayClosed,
	"2027-06-18": holidayClosed,
	"2027-07-05": holidayClosed,
	"2027-09-06": holidayClosed,
	"2027-11-25": holidayClosed,
	"2027-11-26": holidayEarlyClose,
	"2027-12-24": holidayClosed,

	"2028-01-17": holidayClosed,
	"2028-02-21": holidayClosed,
	"2028-04-14": holidayClosed,
	"2028-05-29": holidayClosed,
	"2028-06-19": holidayClosed,
	"2028-07-03": holidayEarlyClose,
	"2028-07-04": holidayClosed,
	"2028-09-04": holidayClosed,
	"2028-11-23": holidayClosed,
	"2028-11-24": holidayEarlyClose,
	"2028-12-25": holidayClosed,
}

// IsHoliday reports whether the exchange is fully closed on the YYYY-MM-DD date.
func IsHoliday(date string) bool {
	return exchangeHolidays[date] == holidayClosed
}

// IsEarlyClose reports whether the regular session ends at 13:00 ET on date.
func IsEarlyClose(date string) bool {
	return exchangeHolidays[date] == holidayEarlyClose
}

// IsTradingDay reports whether the regular session runs on the date of t.
func IsTradingDay(t time.Time) bool {
	return !utils.IsWeekend(t) && !IsHoliday(utils.EasternDate(t))
}

// CloseMinuteFor returns the regular-session close minute for a date.
func CloseMinuteFor(date string) int {
	if IsEarlyClose(date) {
		return EarlyCloseMinute
	}
	return RegularCloseMinute
}

// LocalStatus resolves the session phase from the clock and holiday table alone.
func LocalStatus(at time.Time) SessionStatus {
	date := utils.EasternDate(at)
	minute := utils.MinuteOfDayET(at)
	closeMinute := CloseMinuteFor(date)

	st := SessionStatus{
		Date:         date,
		MinuteEt:     minute,
		CloseMinute:  closeMinute,
		IsEarlyClose: IsEarlyClose(date),
		IsHoliday:    IsHoliday(date),
		Source:       SourceLocal,
		AsOf:         at,
	}

	switch {
	case utils.IsWeekend(at) || st.IsHoliday:
		st.Status = StatusClosed
	case minute >= PreMarketOpenMinute && minute < RegularOpenMinute:
		st.Status = StatusPreMarket
	case minute >= RegularOpenMinute && minute <= closeMinute:
		st.Status = StatusOpen
	case minute > closeMinute && minute < AfterHoursEndMinute:
		st.Status = StatusAfterHours
	default:
		st.Status = StatusClosed
	}

	if st.Status == StatusOpen {
		remaining := closeMinute - minute
		st.MinutesUntilClose = &remaining
	}
	st.SessionProgress = sessionProgress(st.Status, minute, closeMinute)
	return st
}

func sessionProgress(status string, minute, closeMinute int) float64 {
	switch {
	case status == StatusOpen:
		length := closeMinute - RegularOpenMinute
		if length <= 0 {
			length = regularSessionLength
		}
		p := float64(minute-RegularOpenMinute) / float64(length) * 100
		if p < 0 {
			return 0
		}
		if p > 100 {
			return 100
		}
		return float64(int(p*100+0.5)) / 100
	case status == StatusAfterHours:
		return 100
	case status == StatusClosed && minute >= closeMinute:
		return 100
	default:
		return 0
	}
}
