// Package alerts converts metrics, application data, and verification
// data into structured, severity-ranked alerts. Every rule is an
// independent, side-effect-free function; the engine runs all of them,
// isolates individual failures, and returns one stably ordered list.
package alerts

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/opensource-finance/veritas/internal/domain"
)

// Input carries everything the rule set may consume. Optional fields
// may be nil; rules that need them simply do not fire.
type Input struct {
	Statement *domain.Statement
	Metrics   *domain.MetricsBundle
	Score     *domain.Score

	Application  *domain.ApplicationRecord
	Verification *domain.VerificationRecord

	// Cross-statement inputs; the cross-account rules require at least
	// two entries and skip otherwise.
	AllMetrics []domain.MetricsBundle
	AllScores  []domain.Score
}

// rule pairs a name (for failure logging) with its evaluation function.
// A rule returns nil when it does not fire.
type rule struct {
	name string
	eval func(in *Input) *domain.Alert
}

// Engine is the evaluate-all alert pipeline. It holds only immutable
// configuration; concurrent use is safe.
type Engine struct {
	cfg   domain.AlertConfig
	rules []rule
	now   func() time.Time
}

// NewEngine creates an alerts engine with the full built-in rule set.
func NewEngine(cfg domain.AlertConfig) *Engine {
	e := &Engine{cfg: cfg, now: time.Now}
	e.rules = []rule{
		{"nsf_threshold", e.ruleNSFThreshold},
		{"low_average_balance", e.ruleLowAverageBalance},
		{"negative_balance", e.ruleNegativeBalance},
		{"velocity_ratio", e.ruleVelocityRatio},
		{"income_instability", e.ruleIncomeInstability},
		{"negative_cash_flow", e.ruleNegativeCashFlow},
		{"withdrawal_ratio", e.ruleWithdrawalRatio},
		{"large_deposits", e.ruleLargeDeposits},
		{"structuring", e.ruleStructuring},
		{"large_cash_withdrawals", e.ruleLargeCashWithdrawals},
		{"atm_usage", e.ruleATMUsage},
		{"credit_risk", e.ruleCreditRisk},
		{"compliance_volume", e.ruleComplianceVolume},
		{"sanctions_screening", e.ruleSanctionsScreening},
		{"missing_application_data", e.ruleMissingApplicationData},
		{"applicant_name_mismatch", e.ruleApplicantNameMismatch},
		{"insufficient_history", e.ruleInsufficientHistory},
		{"round_amounts", e.ruleRoundAmounts},
		{"weekend_activity", e.ruleWeekendActivity},
		{"debt_service", e.ruleDebtService},
		{"high_risk_industry", e.ruleHighRiskIndustry},
		{"cash_intensive_industry", e.ruleCashIntensiveIndustry},
		{"cross_nsf_spread", e.ruleCrossNSFSpread},
		{"cross_balance_variance", e.ruleCrossBalanceVariance},
		{"cross_risk_concentration", e.ruleCrossRiskConcentration},
		{"revenue_discrepancy", e.ruleRevenueDiscrepancy},
		{"business_not_found", e.ruleBusinessNotFound},
		{"business_inactive", e.ruleBusinessInactive},
		{"business_name_mismatch", e.ruleBusinessNameMismatch},
		{"newly_registered", e.ruleNewlyRegistered},
		{"time_in_business", e.ruleTimeInBusiness},
	}
	return e
}

// Generate runs every rule against the input and returns the merged,
// severity-sorted alert list. It never panics: a catastrophic internal
// failure degrades to a single synthetic ALERT_GENERATION_ERROR alert
// so callers always receive a well-formed list.
func (e *Engine) Generate(in *Input) (out []domain.Alert) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("alert generation failed", "panic", r)
			out = []domain.Alert{e.generationError(r)}
		}
	}()

	if in == nil {
		in = &Input{}
	}

	var produced []domain.Alert
	for _, r := range e.rules {
		if a := e.runRule(r, in); a != nil {
			produced = append(produced, *a)
		}
	}

	SortBySeverity(produced)
	return produced
}

// RulesCount returns the number of registered built-in rules.
func (e *Engine) RulesCount() int {
	return len(e.rules)
}

// runRule evaluates one rule with panic isolation: a failing rule
// contributes nothing and never aborts the run.
func (e *Engine) runRule(r rule, in *Input) (alert *domain.Alert) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Warn("alert rule failed",
				"rule", r.name,
				"panic", rec,
			)
			alert = nil
		}
	}()
	return r.eval(in)
}

// SortBySeverity orders alerts by the fixed severity rank (CRITICAL=0,
// HIGH=1, MEDIUM=2, LOW=3), stable with respect to rule-evaluation
// order on ties.
func SortBySeverity(alerts []domain.Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		return domain.SeverityRank(alerts[i].Severity) < domain.SeverityRank(alerts[j].Severity)
	})
}

// newAlert builds an alert with the engine clock.
func (e *Engine) newAlert(code domain.AlertCode, severity domain.Severity, title, message, recommendation string, data map[string]any) *domain.Alert {
	return &domain.Alert{
		Code:           code,
		Severity:       severity,
		Title:          title,
		Message:        message,
		Recommendation: recommendation,
		Data:           data,
		Timestamp:      e.now().UTC(),
	}
}

func (e *Engine) generationError(cause any) domain.Alert {
	return *e.newAlert(
		domain.CodeGenerationError,
		domain.SeverityHigh,
		"Alert generation failed",
		"The alert engine encountered an internal error and could not complete rule evaluation.",
		"Retry the analysis; if the failure persists, inspect engine logs.",
		map[string]any{"cause": fmt.Sprint(cause)},
	)
}

// Summarize groups alert counts by severity and by category.
func Summarize(alerts []domain.Alert) domain.AlertSummary {
	summary := domain.AlertSummary{
		Total:      len(alerts),
		BySeverity: make(map[domain.Severity]int),
		ByCategory: make(map[domain.AlertCategory]int),
	}

	for _, a := range alerts {
		summary.BySeverity[a.Severity]++
		summary.ByCategory[domain.CategoryFor(a.Code)]++
	}

	for _, sev := range []domain.Severity{
		domain.SeverityCritical,
		domain.SeverityHigh,
		domain.SeverityMedium,
		domain.SeverityLow,
	} {
		if summary.BySeverity[sev] > 0 {
			summary.Highest = sev
			break
		}
	}

	return summary
}
