package alerts

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/opensource-finance/veritas/internal/domain"
	"github.com/opensource-finance/veritas/internal/similarity"
)

// ruleNSFThreshold fires HIGH when NSF activity reaches the threshold.
func (e *Engine) ruleNSFThreshold(in *Input) *domain.Alert {
	if in.Metrics == nil || in.Metrics.NSFCount < e.cfg.NSFAlertThreshold {
		return nil
	}
	return e.newAlert(
		domain.CodeHighNSFCount,
		domain.SeverityHigh,
		"High NSF activity",
		fmt.Sprintf("%d NSF or overdraft events found in the statement period.", in.Metrics.NSFCount),
		"Review the account for chronic liquidity shortfalls before extending credit.",
		map[string]any{"nsfCount": in.Metrics.NSFCount},
	)
}

// ruleLowAverageBalance fires MEDIUM when the average daily balance
// sits below the floor.
func (e *Engine) ruleLowAverageBalance(in *Input) *domain.Alert {
	if in.Metrics == nil || in.Metrics.PeriodDays == 0 {
		return nil
	}
	if in.Metrics.AverageDailyBalance >= e.cfg.LowBalanceFloor {
		return nil
	}
	return e.newAlert(
		domain.CodeLowAverageBalance,
		domain.SeverityMedium,
		"Low average daily balance",
		fmt.Sprintf("Average daily balance of %.2f is below the %.2f floor.", in.Metrics.AverageDailyBalance, e.cfg.LowBalanceFloor),
		"Verify the applicant maintains sufficient operating liquidity.",
		map[string]any{"averageDailyBalance": in.Metrics.AverageDailyBalance},
	)
}

// ruleNegativeBalance fires CRITICAL on the union of three signals:
// interpolated negative-balance days, a negative minimum balance, or
// the extraction layer's explicit flag. One detector, one alert,
// carrying the most informative available detail.
func (e *Engine) ruleNegativeBalance(in *Input) *domain.Alert {
	var negativeDays int
	var lowest float64
	var flagged bool

	if in.Metrics != nil {
		negativeDays = len(in.Metrics.NegativeBalanceDays)
		lowest = in.Metrics.LowestBalance
	}
	if in.Statement != nil {
		flagged = in.Statement.FlaggedNegativeBalance
	}

	if negativeDays == 0 && lowest >= 0 && !flagged {
		return nil
	}

	data := map[string]any{}
	message := "The account balance went negative during the statement period."
	switch {
	case negativeDays > 0:
		data["negativeBalanceDays"] = negativeDays
		message = fmt.Sprintf("The account balance was negative on %d day(s).", negativeDays)
	case lowest < 0:
		data["lowestBalance"] = lowest
		message = fmt.Sprintf("The account balance reached %.2f.", lowest)
	default:
		data["flagged"] = true
	}

	return e.newAlert(
		domain.CodeNegativeBalance,
		domain.SeverityCritical,
		"Negative balance",
		message,
		"Negative balances indicate the account cannot absorb its obligations; decline or require reserves.",
		data,
	)
}

// ruleVelocityRatio fires at escalating severities as turnover relative
// to balance grows.
func (e *Engine) ruleVelocityRatio(in *Input) *domain.Alert {
	if in.Metrics == nil {
		return nil
	}
	ratio := in.Metrics.CashFlow.VelocityRatio

	var severity domain.Severity
	switch {
	case ratio > e.cfg.VelocityCritical:
		severity = domain.SeverityCritical
	case ratio > e.cfg.VelocityHigh:
		severity = domain.SeverityHigh
	case ratio > e.cfg.VelocityMedium:
		severity = domain.SeverityMedium
	default:
		return nil
	}

	return e.newAlert(
		domain.CodeHighVelocity,
		severity,
		"High transaction velocity",
		fmt.Sprintf("Transaction volume is %.1fx the average daily balance.", ratio),
		"High turnover relative to balance is a money-movement pattern; review for pass-through activity.",
		map[string]any{"velocityRatio": ratio},
	)
}

// ruleIncomeInstability fires tiered severities as the stability score
// falls. Insufficient income data does not fire; the data-quality rules
// cover thin files.
func (e *Engine) ruleIncomeInstability(in *Input) *domain.Alert {
	if in.Metrics == nil || !in.Metrics.IncomeStability.Sufficient {
		return nil
	}
	score := in.Metrics.IncomeStability.StabilityScore

	var severity domain.Severity
	switch {
	case score < e.cfg.StabilityHigh:
		severity = domain.SeverityHigh
	case score < e.cfg.StabilityMedium:
		severity = domain.SeverityMedium
	case score < e.cfg.StabilityLow:
		severity = domain.SeverityLow
	default:
		return nil
	}

	return e.newAlert(
		domain.CodeIncomeInstability,
		severity,
		"Unstable income pattern",
		fmt.Sprintf("Income stability score is %.0f (%s).", score, in.Metrics.IncomeStability.Interpretation),
		"Request additional income documentation to confirm repayment capacity.",
		map[string]any{"stabilityScore": score},
	)
}

// ruleNegativeCashFlow fires on a negative net cash flow, escalating
// with magnitude relative to deposits.
func (e *Engine) ruleNegativeCashFlow(in *Input) *domain.Alert {
	if in.Metrics == nil || in.Metrics.CashFlow.NetCashFlow >= 0 {
		return nil
	}
	net := in.Metrics.CashFlow.NetCashFlow

	severity := domain.SeverityMedium
	if in.Metrics.TotalDeposits > 0 && -net > 0.25*in.Metrics.TotalDeposits {
		severity = domain.SeverityHigh
	}

	return e.newAlert(
		domain.CodeNegativeCashFlow,
		severity,
		"Negative net cash flow",
		fmt.Sprintf("Withdrawals exceeded deposits by %.2f over the period.", -net),
		"The business is burning cash; confirm how operations are funded.",
		map[string]any{"netCashFlow": net},
	)
}

// ruleWithdrawalRatio fires when withdrawals approach or exceed
// deposits. Skips when no ratio exists (zero deposits).
func (e *Engine) ruleWithdrawalRatio(in *Input) *domain.Alert {
	if in.Metrics == nil || !in.Metrics.CashFlow.HasWithdrawalRatio {
		return nil
	}
	ratio := in.Metrics.CashFlow.WithdrawalRatio

	var severity domain.Severity
	switch {
	case ratio > e.cfg.WithdrawalRatioCritical:
		severity = domain.SeverityHigh
	case ratio > e.cfg.WithdrawalRatioHigh:
		severity = domain.SeverityMedium
	default:
		return nil
	}

	return e.newAlert(
		domain.CodeHighWithdrawalRatio,
		severity,
		"High withdrawal-to-deposit ratio",
		fmt.Sprintf("Withdrawals are %.0f%% of deposits.", ratio*100),
		"Nearly all inflows leave the account; verify retained earnings claims.",
		map[string]any{"withdrawalRatio": ratio},
	)
}

// ruleLargeDeposits fires on single deposits above the large-deposit
// threshold, escalating with count and total.
func (e *Engine) ruleLargeDeposits(in *Input) *domain.Alert {
	if in.Statement == nil {
		return nil
	}

	var count int
	var total float64
	for _, tx := range in.Statement.Transactions {
		if tx.Amount > e.cfg.LargeDepositAmount {
			count++
			total += tx.Amount
		}
	}
	if count == 0 {
		return nil
	}

	severity := domain.SeverityMedium
	if count >= 3 || total > 5*e.cfg.LargeDepositAmount {
		severity = domain.SeverityHigh
	}

	return e.newAlert(
		domain.CodeLargeDeposits,
		severity,
		"Large deposit activity",
		fmt.Sprintf("%d deposit(s) above %.0f totaling %.2f.", count, e.cfg.LargeDepositAmount, total),
		"Obtain source-of-funds documentation for large deposits.",
		map[string]any{"count": count, "total": total},
	)
}

// ruleStructuring detects deposits clustered just under the reporting
// threshold.
func (e *Engine) ruleStructuring(in *Input) *domain.Alert {
	if in.Statement == nil {
		return nil
	}

	var count int
	var total float64
	for _, tx := range in.Statement.Transactions {
		if tx.Amount >= e.cfg.StructuringBandLower && tx.Amount <= e.cfg.StructuringBandUpper {
			count++
			total += tx.Amount
		}
	}
	if count < e.cfg.StructuringMinCount {
		return nil
	}

	severity := domain.SeverityHigh
	if count >= 2*e.cfg.StructuringMinCount {
		severity = domain.SeverityCritical
	}

	return e.newAlert(
		domain.CodeStructuringPattern,
		severity,
		"Possible structuring",
		fmt.Sprintf("%d deposit(s) between %.0f and %.2f, just under the reporting threshold.", count, e.cfg.StructuringBandLower, e.cfg.StructuringBandUpper),
		"Escalate to compliance for a structuring review before proceeding.",
		map[string]any{"count": count, "total": total},
	)
}

// ruleLargeCashWithdrawals fires on keyword-matched cash withdrawals
// above the amount threshold, escalating with count and total.
func (e *Engine) ruleLargeCashWithdrawals(in *Input) *domain.Alert {
	if in.Statement == nil {
		return nil
	}

	var count int
	var total float64
	for _, tx := range in.Statement.Transactions {
		if tx.Amount >= 0 || -tx.Amount < e.cfg.CashWithdrawalAmount {
			continue
		}
		if containsAny(tx.Description, e.cfg.CashWithdrawalKeywords) {
			count++
			total += -tx.Amount
		}
	}
	if count == 0 {
		return nil
	}

	severity := domain.SeverityMedium
	if count >= 3 || total > 5*e.cfg.CashWithdrawalAmount {
		severity = domain.SeverityHigh
	}

	return e.newAlert(
		domain.CodeLargeCashWithdrawals,
		severity,
		"Large cash withdrawals",
		fmt.Sprintf("%d cash withdrawal(s) of %.0f or more totaling %.2f.", count, e.cfg.CashWithdrawalAmount, total),
		"Large cash movements reduce auditability; ask for supporting records.",
		map[string]any{"count": count, "total": total},
	)
}

// ruleATMUsage fires MEDIUM when ATM withdrawals exceed the usage
// threshold.
func (e *Engine) ruleATMUsage(in *Input) *domain.Alert {
	if in.Statement == nil {
		return nil
	}

	var count int
	for _, tx := range in.Statement.Transactions {
		if tx.Amount < 0 && containsAny(tx.Description, e.cfg.ATMKeywords) {
			count++
		}
	}
	if count <= e.cfg.ATMUsageThreshold {
		return nil
	}

	return e.newAlert(
		domain.CodeExcessiveATMUsage,
		domain.SeverityMedium,
		"Excessive ATM usage",
		fmt.Sprintf("%d ATM withdrawals in one statement period.", count),
		"Heavy ATM activity on a business account suggests unreported cash operations.",
		map[string]any{"count": count},
	)
}

// ruleCreditRisk derives escalating alerts from the synthesized score
// bands.
func (e *Engine) ruleCreditRisk(in *Input) *domain.Alert {
	if in.Score == nil {
		return nil
	}
	value := in.Score.Value

	var code domain.AlertCode
	var severity domain.Severity
	switch {
	case value < e.cfg.CreditRiskCriticalBelow:
		code, severity = domain.CodeCreditRiskCritical, domain.SeverityCritical
	case value < e.cfg.CreditRiskHighBelow:
		code, severity = domain.CodeCreditRiskHigh, domain.SeverityHigh
	case value < e.cfg.CreditRiskMediumBelow:
		code, severity = domain.CodeCreditRiskMedium, domain.SeverityMedium
	default:
		return nil
	}

	return e.newAlert(
		code,
		severity,
		"Elevated credit risk",
		fmt.Sprintf("Veritas score of %.0f falls in the %s risk band.", value, in.Score.RiskLevel),
		"Apply enhanced underwriting for this risk band.",
		map[string]any{"score": value, "riskLevel": string(in.Score.RiskLevel)},
	)
}

// ruleComplianceVolume fires HIGH when aggregate deposits or
// withdrawals exceed the compliance volume threshold.
func (e *Engine) ruleComplianceVolume(in *Input) *domain.Alert {
	if in.Metrics == nil {
		return nil
	}
	if in.Metrics.TotalDeposits <= e.cfg.ComplianceVolume && in.Metrics.TotalWithdrawals <= e.cfg.ComplianceVolume {
		return nil
	}

	return e.newAlert(
		domain.CodeHighVolumeActivity,
		domain.SeverityHigh,
		"High aggregate volume",
		fmt.Sprintf("Deposits %.2f / withdrawals %.2f exceed the %.0f review threshold.", in.Metrics.TotalDeposits, in.Metrics.TotalWithdrawals, e.cfg.ComplianceVolume),
		"Volume above this level requires enhanced due diligence.",
		map[string]any{
			"totalDeposits":    in.Metrics.TotalDeposits,
			"totalWithdrawals": in.Metrics.TotalWithdrawals,
		},
	)
}

// ruleSanctionsScreening is a mandatory LOW flag whenever a business
// name is present: the engine cannot screen, it can only require it.
func (e *Engine) ruleSanctionsScreening(in *Input) *domain.Alert {
	if in.Application == nil || strings.TrimSpace(in.Application.BusinessName) == "" {
		return nil
	}

	return e.newAlert(
		domain.CodeSanctionsScreening,
		domain.SeverityLow,
		"Sanctions screening required",
		fmt.Sprintf("Business %q must be screened against sanctions lists before approval.", in.Application.BusinessName),
		"Run OFAC/sanctions screening; this is a mandatory pre-approval step.",
		map[string]any{"businessName": in.Application.BusinessName},
	)
}

// ruleMissingApplicationData fires MEDIUM listing the required fields
// the application left empty.
func (e *Engine) ruleMissingApplicationData(in *Input) *domain.Alert {
	if in.Application == nil {
		return e.newAlert(
			domain.CodeMissingApplication,
			domain.SeverityMedium,
			"Missing application data",
			"No application record was provided with the analysis.",
			"Collect the business application before final underwriting.",
			map[string]any{"missingFields": []string{"application"}},
		)
	}

	var missing []string
	if strings.TrimSpace(in.Application.BusinessName) == "" {
		missing = append(missing, "businessName")
	}
	if strings.TrimSpace(in.Application.Industry) == "" {
		missing = append(missing, "industry")
	}
	if in.Application.StatedAnnualRevenue <= 0 {
		missing = append(missing, "statedAnnualRevenue")
	}
	if in.Application.BusinessStartDate == nil {
		missing = append(missing, "businessStartDate")
	}
	if len(missing) == 0 {
		return nil
	}

	return e.newAlert(
		domain.CodeMissingApplication,
		domain.SeverityMedium,
		"Missing application data",
		fmt.Sprintf("Required application fields are missing: %s.", strings.Join(missing, ", ")),
		"Request the missing fields; several rules cannot run without them.",
		map[string]any{"missingFields": missing},
	)
}

// ruleApplicantNameMismatch compares the application's business name
// against the statement account name.
func (e *Engine) ruleApplicantNameMismatch(in *Input) *domain.Alert {
	if in.Application == nil || in.Statement == nil {
		return nil
	}
	applied := normalizeName(in.Application.BusinessName)
	account := normalizeName(in.Statement.AccountName)
	if applied == "" || account == "" {
		return nil
	}

	sim := similarity.Ratio(applied, account)
	if sim >= e.cfg.NameSimilarityMinimum {
		return nil
	}

	return e.newAlert(
		domain.CodeApplicantNameMismatch,
		domain.SeverityMedium,
		"Applicant name mismatch",
		fmt.Sprintf("Application name %q does not match statement account name %q (similarity %.2f).", in.Application.BusinessName, in.Statement.AccountName, sim),
		"Confirm the statements belong to the applying entity.",
		map[string]any{"similarity": sim},
	)
}

// ruleInsufficientHistory fires LOW when fewer transactions are
// available than the minimum history the models expect.
func (e *Engine) ruleInsufficientHistory(in *Input) *domain.Alert {
	if in.Metrics == nil || in.Metrics.TransactionCount >= e.cfg.MinTransactionHistory {
		return nil
	}

	return e.newAlert(
		domain.CodeInsufficientHistory,
		domain.SeverityLow,
		"Thin transaction history",
		fmt.Sprintf("Only %d transactions available; %d needed for reliable metrics.", in.Metrics.TransactionCount, e.cfg.MinTransactionHistory),
		"Request additional statement months.",
		map[string]any{"transactionCount": in.Metrics.TransactionCount},
	)
}

// ruleRoundAmounts flags statements where a large share of transactions
// are round hundreds at or above the floor, a common mark of fabricated
// entries.
func (e *Engine) ruleRoundAmounts(in *Input) *domain.Alert {
	if in.Statement == nil || len(in.Statement.Transactions) == 0 {
		return nil
	}

	var round int
	for _, tx := range in.Statement.Transactions {
		amount := math.Abs(tx.Amount)
		if amount >= e.cfg.RoundAmountMinimum && math.Mod(amount, 100) == 0 {
			round++
		}
	}

	share := float64(round) / float64(len(in.Statement.Transactions))
	if share <= e.cfg.RoundAmountShare {
		return nil
	}

	return e.newAlert(
		domain.CodeRoundAmountPattern,
		domain.SeverityMedium,
		"Round-amount clustering",
		fmt.Sprintf("%.0f%% of transactions are round hundreds of %.0f or more.", share*100, e.cfg.RoundAmountMinimum),
		"Organic activity rarely clusters on round amounts; verify statement authenticity.",
		map[string]any{"roundCount": round, "share": share},
	)
}

// ruleWeekendActivity flags unusual weekend transaction concentration.
func (e *Engine) ruleWeekendActivity(in *Input) *domain.Alert {
	if in.Statement == nil || len(in.Statement.Transactions) == 0 {
		return nil
	}

	var weekend int
	for _, tx := range in.Statement.Transactions {
		switch tx.Date.Weekday() {
		case time.Saturday, time.Sunday:
			weekend++
		}
	}

	share := float64(weekend) / float64(len(in.Statement.Transactions))
	if share <= e.cfg.WeekendShare {
		return nil
	}

	return e.newAlert(
		domain.CodeWeekendActivity,
		domain.SeverityLow,
		"High weekend activity",
		fmt.Sprintf("%.0f%% of transactions posted on weekends.", share*100),
		"Weekend-heavy posting is unusual for most business banking; review against the stated industry.",
		map[string]any{"weekendCount": weekend, "share": share},
	)
}

// ruleDebtService compares the estimated monthly loan payment to the
// statement's monthly net cash flow, tiered by coverage strain.
func (e *Engine) ruleDebtService(in *Input) *domain.Alert {
	if in.Metrics == nil || in.Application == nil {
		return nil
	}
	if in.Application.RequestedAmount <= 0 || in.Application.TermMonths <= 0 {
		return nil
	}
	if in.Metrics.PeriodDays == 0 {
		return nil
	}

	payment := monthlyPayment(in.Application.RequestedAmount, e.cfg.AnnualInterestRate, in.Application.TermMonths)
	monthlyNet := in.Metrics.CashFlow.NetCashFlow / float64(in.Metrics.PeriodDays) * 30

	if monthlyNet <= 0 {
		// Negative cash flow already alerts; a ratio over it is noise.
		return nil
	}

	ratio := payment / monthlyNet
	var severity domain.Severity
	switch {
	case ratio > e.cfg.DebtServiceCritical:
		severity = domain.SeverityCritical
	case ratio > e.cfg.DebtServiceHigh:
		severity = domain.SeverityHigh
	case ratio > e.cfg.DebtServiceMedium:
		severity = domain.SeverityMedium
	default:
		return nil
	}

	return e.newAlert(
		domain.CodeDebtServiceStrain,
		severity,
		"Debt service strain",
		fmt.Sprintf("Estimated payment %.2f would consume %.0f%% of monthly net cash flow.", payment, ratio*100),
		"Consider a smaller amount or longer term to bring coverage into range.",
		map[string]any{"estimatedPayment": payment, "ratio": ratio},
	)
}

// ruleHighRiskIndustry fires HIGH on a denylist match.
func (e *Engine) ruleHighRiskIndustry(in *Input) *domain.Alert {
	if in.Application == nil {
		return nil
	}
	industry := strings.ToLower(strings.TrimSpace(in.Application.Industry))
	if industry == "" {
		return nil
	}

	for _, denied := range e.cfg.HighRiskIndustries {
		if strings.Contains(industry, denied) {
			return e.newAlert(
				domain.CodeHighRiskIndustry,
				domain.SeverityHigh,
				"High-risk industry",
				fmt.Sprintf("Industry %q matches the high-risk list entry %q.", in.Application.Industry, denied),
				"High-risk industries require program-level approval.",
				map[string]any{"industry": in.Application.Industry, "matched": denied},
			)
		}
	}
	return nil
}

// ruleCashIntensiveIndustry fires MEDIUM when a cash-intensive industry
// combines with high transaction velocity.
func (e *Engine) ruleCashIntensiveIndustry(in *Input) *domain.Alert {
	if in.Application == nil || in.Metrics == nil {
		return nil
	}
	industry := strings.ToLower(strings.TrimSpace(in.Application.Industry))
	if industry == "" {
		return nil
	}
	if in.Metrics.CashFlow.VelocityRatio <= e.cfg.VelocityMedium {
		return nil
	}

	for _, cash := range e.cfg.CashIntensiveIndustries {
		if strings.Contains(industry, cash) {
			return e.newAlert(
				domain.CodeCashIntensiveIndustry,
				domain.SeverityMedium,
				"Cash-intensive industry with high velocity",
				fmt.Sprintf("Industry %q is cash-intensive and velocity is %.1fx balance.", in.Application.Industry, in.Metrics.CashFlow.VelocityRatio),
				"The combination elevates AML exposure; apply enhanced monitoring.",
				map[string]any{"industry": in.Application.Industry, "velocityRatio": in.Metrics.CashFlow.VelocityRatio},
			)
		}
	}
	return nil
}

// monthlyPayment is the standard amortization formula.
func monthlyPayment(principal, annualRate float64, termMonths int) float64 {
	monthly := annualRate / 12
	if monthly == 0 {
		return principal / float64(termMonths)
	}
	f := math.Pow(1+monthly, float64(termMonths))
	return principal * monthly * f / (f - 1)
}

func containsAny(description string, keywords []string) bool {
	if description == "" {
		return false
	}
	desc := strings.ToLower(description)
	for _, kw := range keywords {
		if strings.Contains(desc, kw) {
			return true
		}
	}
	return false
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
