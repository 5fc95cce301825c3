package domain

import "time"

// Severity is the alert severity tier.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// SeverityRank returns the fixed sort rank: CRITICAL=0, HIGH=1,
// MEDIUM=2, LOW=3. Unknown severities sort last.
func SeverityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	default:
		return 4
	}
}

// AlertCode is the stable identifier of a rule's alert.
type AlertCode string

// Single-statement rule codes.
const (
	CodeHighNSFCount          AlertCode = "HIGH_NSF_COUNT"
	CodeLowAverageBalance     AlertCode = "LOW_AVERAGE_BALANCE"
	CodeNegativeBalance       AlertCode = "NEGATIVE_BALANCE"
	CodeHighVelocity          AlertCode = "HIGH_VELOCITY"
	CodeIncomeInstability     AlertCode = "INCOME_INSTABILITY"
	CodeNegativeCashFlow      AlertCode = "NEGATIVE_CASH_FLOW"
	CodeHighWithdrawalRatio   AlertCode = "HIGH_WITHDRAWAL_RATIO"
	CodeLargeDeposits         AlertCode = "LARGE_DEPOSITS"
	CodeStructuringPattern    AlertCode = "STRUCTURING_PATTERN"
	CodeLargeCashWithdrawals  AlertCode = "LARGE_CASH_WITHDRAWALS"
	CodeExcessiveATMUsage     AlertCode = "EXCESSIVE_ATM_USAGE"
	CodeCreditRiskCritical    AlertCode = "CREDIT_RISK_CRITICAL"
	CodeCreditRiskHigh        AlertCode = "CREDIT_RISK_HIGH"
	CodeCreditRiskMedium      AlertCode = "CREDIT_RISK_MEDIUM"
	CodeHighVolumeActivity    AlertCode = "HIGH_VOLUME_ACTIVITY"
	CodeSanctionsScreening    AlertCode = "SANCTIONS_SCREENING_REQUIRED"
	CodeMissingApplication    AlertCode = "MISSING_APPLICATION_DATA"
	CodeApplicantNameMismatch AlertCode = "APPLICANT_NAME_MISMATCH"
	CodeInsufficientHistory   AlertCode = "INSUFFICIENT_TRANSACTION_HISTORY"
	CodeRoundAmountPattern    AlertCode = "ROUND_AMOUNT_PATTERN"
	CodeWeekendActivity       AlertCode = "WEEKEND_ACTIVITY_PATTERN"
	CodeDebtServiceStrain     AlertCode = "DEBT_SERVICE_STRAIN"
	CodeHighRiskIndustry      AlertCode = "HIGH_RISK_INDUSTRY"
	CodeCashIntensiveIndustry AlertCode = "CASH_INTENSIVE_INDUSTRY"
)

// Cross-statement rule codes.
const (
	CodeInconsistentNSF        AlertCode = "INCONSISTENT_NSF_ACTIVITY"
	CodeBalanceVarianceOutlier AlertCode = "BALANCE_VARIANCE_OUTLIER"
	CodeHighRiskConcentration  AlertCode = "HIGH_RISK_CONCENTRATION"
)

// Verification rule codes.
const (
	CodeRevenueDiscrepancy      AlertCode = "REVENUE_DISCREPANCY"
	CodeBusinessNotFound        AlertCode = "BUSINESS_NOT_FOUND"
	CodeBusinessInactive        AlertCode = "BUSINESS_INACTIVE"
	CodeBusinessNameMismatch    AlertCode = "BUSINESS_NAME_MISMATCH"
	CodeNewlyRegisteredBusiness AlertCode = "NEWLY_REGISTERED_BUSINESS"
	CodeTimeInBusinessMismatch  AlertCode = "TIME_IN_BUSINESS_MISMATCH"
)

// CodeCustomRule prefixes alerts produced by operator-defined CEL rules.
const CodeCustomRule AlertCode = "CUSTOM_RULE"

// CodeGenerationError is the synthetic alert emitted when alert
// generation itself fails catastrophically.
const CodeGenerationError AlertCode = "ALERT_GENERATION_ERROR"

// Alert is a single risk/compliance finding. Immutable once produced.
type Alert struct {
	Code           AlertCode      `json:"code"`
	Severity       Severity       `json:"severity"`
	Title          string         `json:"title"`
	Message        string         `json:"message"`
	Recommendation string         `json:"recommendation,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// AlertCategory is a summary bucket for alerts.
type AlertCategory string

const (
	CategoryNSF          AlertCategory = "NSF & Overdrafts"
	CategoryBalance      AlertCategory = "Balance & Liquidity"
	CategoryCashFlow     AlertCategory = "Cash Flow"
	CategoryAML          AlertCategory = "AML & Structuring"
	CategoryCreditRisk   AlertCategory = "Credit Risk"
	CategoryCompliance   AlertCategory = "Compliance"
	CategoryDataQuality  AlertCategory = "Data Quality"
	CategoryFraud        AlertCategory = "Fraud Indicators"
	CategoryDebtService  AlertCategory = "Debt Service"
	CategoryIndustry     AlertCategory = "Industry Risk"
	CategoryCrossAccount AlertCategory = "Cross-Account"
	CategoryVerification AlertCategory = "Verification"
	CategoryCustom       AlertCategory = "Custom Rules"
	CategoryInternal     AlertCategory = "Engine"
)

// alertCategories is the explicit code-to-category lookup, built at
// definition time. Substring matching on codes is deliberately avoided.
var alertCategories = map[AlertCode]AlertCategory{
	CodeHighNSFCount:            CategoryNSF,
	CodeLowAverageBalance:       CategoryBalance,
	CodeNegativeBalance:         CategoryBalance,
	CodeHighVelocity:            CategoryAML,
	CodeIncomeInstability:       CategoryCashFlow,
	CodeNegativeCashFlow:        CategoryCashFlow,
	CodeHighWithdrawalRatio:     CategoryCashFlow,
	CodeLargeDeposits:           CategoryAML,
	CodeStructuringPattern:      CategoryAML,
	CodeLargeCashWithdrawals:    CategoryAML,
	CodeExcessiveATMUsage:       CategoryAML,
	CodeCreditRiskCritical:      CategoryCreditRisk,
	CodeCreditRiskHigh:          CategoryCreditRisk,
	CodeCreditRiskMedium:        CategoryCreditRisk,
	CodeHighVolumeActivity:      CategoryCompliance,
	CodeSanctionsScreening:      CategoryCompliance,
	CodeMissingApplication:      CategoryDataQuality,
	CodeApplicantNameMismatch:   CategoryDataQuality,
	CodeInsufficientHistory:     CategoryDataQuality,
	CodeRoundAmountPattern:      CategoryFraud,
	CodeWeekendActivity:         CategoryFraud,
	CodeDebtServiceStrain:       CategoryDebtService,
	CodeHighRiskIndustry:        CategoryIndustry,
	CodeCashIntensiveIndustry:   CategoryIndustry,
	CodeInconsistentNSF:         CategoryCrossAccount,
	CodeBalanceVarianceOutlier:  CategoryCrossAccount,
	CodeHighRiskConcentration:   CategoryCrossAccount,
	CodeRevenueDiscrepancy:      CategoryVerification,
	CodeBusinessNotFound:        CategoryVerification,
	CodeBusinessInactive:        CategoryVerification,
	CodeBusinessNameMismatch:    CategoryVerification,
	CodeNewlyRegisteredBusiness: CategoryVerification,
	CodeTimeInBusinessMismatch:  CategoryVerification,
	CodeCustomRule:              CategoryCustom,
	CodeGenerationError:         CategoryInternal,
}

// CategoryFor returns the summary bucket for an alert code.
func CategoryFor(code AlertCode) AlertCategory {
	if c, ok := alertCategories[code]; ok {
		return c
	}
	return CategoryCustom
}

// AlertSummary groups alert counts by severity and category.
type AlertSummary struct {
	Total      int                   `json:"total"`
	BySeverity map[Severity]int      `json:"bySeverity"`
	ByCategory map[AlertCategory]int `json:"byCategory"`
	Highest    Severity              `json:"highestSeverity,omitempty"`
}
