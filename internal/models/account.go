package models

import "time"

// RiskContext is the account snapshot used for position sizing. Percent
// fields are fractions; zero means "use the default".
type RiskContext struct {
	UserID                    string    `json:"userId,omitempty" yaml:"userId,omitempty"`
	TotalEquity               *float64  `json:"totalEquity,omitempty" yaml:"totalEquity,omitempty"`
	DayTradeBuyingPower       *float64  `json:"dayTradeBuyingPower,omitempty" yaml:"dayTradeBuyingPower,omitempty"`
	MaxRiskPct                float64   `json:"maxRiskPct,omitempty" yaml:"maxRiskPct,omitempty" default:"0.02"`
	BuyingPowerUtilizationPct float64   `json:"buyingPowerUtilizationPct,omitempty" yaml:"buyingPowerUtilizationPct,omitempty" default:"0.9"`
	PDTQualified              *bool     `json:"pdtQualified,omitempty" yaml:"pdtQualified,omitempty"`
	AsOf                      time.Time `json:"asOf,omitempty" yaml:"asOf,omitempty"`
}
