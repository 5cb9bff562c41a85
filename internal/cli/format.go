package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"spx-engine/pkg/utils"
)

// FormatUSD formats a dollar amount with thousands separators, e.g. "$12,345.60".
func FormatUSD(amount float64) string {
	d := decimal.NewFromFloat(amount).Round(2)
	negative := d.IsNegative()
	str := d.Abs().StringFixed(2)

	parts := strings.SplitN(str, ".", 2)
	result := "$" + groupThousands(parts[0]) + "." + parts[1]
	if negative {
		result = "-" + result
	}
	return result
}

// groupThousands inserts commas every three digits from the right.
func groupThousands(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}
	var b strings.Builder
	lead := n % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value float64) string {
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value)
}

// FormatPnL formats P&L with sign.
func FormatPnL(pnl float64) string {
	formatted := FormatUSD(pnl)
	if pnl > 0 {
		return "+" + formatted
	}
	return formatted
}

// FormatPoints formats an index point distance.
func FormatPoints(points float64) string {
	return fmt.Sprintf("%.2f pts", points)
}

// FormatR formats an expectancy in R multiples.
func FormatR(r float64) string {
	sign := ""
	if r > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.3fR", sign, r)
}

// FormatOptPoints formats an optional point value, "n/a" when missing.
func FormatOptPoints(p *float64) string {
	if p == nil {
		return "n/a"
	}
	return FormatPoints(*p)
}

// FormatOptFloat formats an optional value with the given precision.
func FormatOptFloat(p *float64, decimals int) string {
	if p == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.*f", decimals, *p)
}

// FormatTime formats a time in ET.
func FormatTime(t time.Time) string {
	return utils.ToEastern(t).Format("15:04:05 ET")
}

// FormatDateTime formats a datetime in ET.
func FormatDateTime(t time.Time) string {
	return utils.ToEastern(t).Format("2006-01-02 15:04 ET")
}

// FormatMinuteET renders minutes after midnight ET as HH:MM.
func FormatMinuteET(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	} else if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}

// FormatRiskReward formats a risk-reward ratio.
func FormatRiskReward(rr float64) string {
	return fmt.Sprintf("1:%.2f", rr)
}

// FormatBidAsk formats bid/ask spread.
func FormatBidAsk(bid, ask float64) string {
	spread := ask - bid
	if bid <= 0 {
		return fmt.Sprintf("Bid: %.2f  Ask: %.2f  Spread: %.2f", bid, ask, spread)
	}
	return fmt.Sprintf("Bid: %.2f  Ask: %.2f  Spread: %.2f (%.2f%%)", bid, ask, spread, spread/bid*100)
}

// FormatGreeks formats option Greeks.
func FormatGreeks(delta, gamma, theta, vega float64) string {
	return fmt.Sprintf("Δ: %.3f  Γ: %.4f  Θ: %.3f  ν: %.3f", delta, gamma, theta, vega)
}

// TruncateString truncates a string to max length with ellipsis.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
