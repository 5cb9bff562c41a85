package contracts

import (
	"fmt"

	"github.com/creasty/defaults"
	"github.com/shopspring/decimal"

	"spx-engine/internal/analysis/indicators"
	"spx-engine/internal/models"
)

// Sizing block reasons.
const (
	BlockedMarginLimit = "margin_limit_blocked"
	BlockedPDTZeroDTE  = "pdt_zero_dte_blocked"
)

// MinBuyingPowerForZeroDTE is the pattern day trader equity floor.
const MinBuyingPowerForZeroDTE = 25000

var contractMultiplier = decimal.NewFromInt(ContractMultiplier)

// NormalizeRiskContext fills default percentages and clamps them to sane bounds.
// Returns nil for a nil context.
func NormalizeRiskContext(rc *models.RiskContext) *models.RiskContext {
	if rc == nil {
		return nil
	}
	out := *rc
	_ = defaults.Set(&out)
	out.MaxRiskPct = indicators.Clamp(out.MaxRiskPct, 0.001, 0.25)
	out.BuyingPowerUtilizationPct = indicators.Clamp(out.BuyingPowerUtilizationPct, 0.05, 1)
	if !indicators.FinitePtr(out.TotalEquity) {
		out.TotalEquity = nil
	}
	if !indicators.FinitePtr(out.DayTradeBuyingPower) {
		out.DayTradeBuyingPower = nil
	}
	return &out
}

// ZeroDTEBlocked reports whether the account may not trade same-day expiries.
func ZeroDTEBlocked(rc *models.RiskContext) bool {
	if rc == nil {
		return false
	}
	if rc.PDTQualified != nil && !*rc.PDTQualified {
		return true
	}
	return rc.DayTradeBuyingPower != nil && *rc.DayTradeBuyingPower < MinBuyingPowerForZeroDTE
}

// RiskFingerprint identifies the sizing inputs for cache keys.
func RiskFingerprint(rc *models.RiskContext) string {
	rc = NormalizeRiskContext(rc)
	if rc == nil {
		return "na:na:na:na:pdt_ok"
	}
	pdt := "pdt_ok"
	if ZeroDTEBlocked(rc) {
		pdt = "pdt_blocked"
	}
	return fmt.Sprintf("%s:%s:%s:%s:%s",
		fingerprintValue(rc.TotalEquity),
		fingerprintValue(rc.DayTradeBuyingPower),
		decimal.NewFromFloat(rc.MaxRiskPct).String(),
		decimal.NewFromFloat(rc.BuyingPowerUtilizationPct).String(),
		pdt)
}

func fingerprintValue(v *float64) string {
	if v == nil {
		return "na"
	}
	return decimal.NewFromFloat(*v).Round(2).String()
}

// CalculateSizing sizes a position at the given ask. Returns nil when ask is
// unusable, the context is nil, or neither equity nor buying power is known.
func CalculateSizing(ask float64, rc *models.RiskContext) *models.ContractSizing {
	rc = NormalizeRiskContext(rc)
	if rc == nil || !indicators.Finite(ask) || ask <= 0 {
		return nil
	}
	if rc.TotalEquity == nil && rc.DayTradeBuyingPower == nil {
		return nil
	}

	debit := decimal.NewFromFloat(ask).Mul(contractMultiplier)
	sizing := &models.ContractSizing{PerContractDebit: debit.Round(2).InexactFloat64()}

	recommended := -1
	if rc.TotalEquity != nil {
		maxRisk := decimal.NewFromFloat(*rc.TotalEquity).Mul(decimal.NewFromFloat(rc.MaxRiskPct))
		sizing.MaxRiskDollars = maxRisk.Round(2).InexactFloat64()
		n := contractsWithin(maxRisk, debit)
		sizing.ContractsByRisk = &n
		recommended = n
	}
	if rc.DayTradeBuyingPower != nil {
		budget := decimal.NewFromFloat(*rc.DayTradeBuyingPower).Mul(decimal.NewFromFloat(rc.BuyingPowerUtilizationPct))
		n := contractsWithin(budget, debit)
		sizing.ContractsByBuyingPower = &n
		if recommended < 0 || n < recommended {
			recommended = n
		}
	}

	sizing.RecommendedContracts = recommended
	if recommended == 0 {
		sizing.BlockedReason = BlockedMarginLimit
	}
	return sizing
}

func contractsWithin(budget, debit decimal.Decimal) int {
	if budget.Sign() <= 0 {
		return 0
	}
	return int(budget.Div(debit).Floor().IntPart())
}
