package domain

import "time"

// MetricsBundle is the full derived metrics set for one statement.
// Recomputed fresh on every call; the engine never caches it.
type MetricsBundle struct {
	NSFCount int `json:"nsfCount"`

	TotalDeposits    float64 `json:"totalDeposits"`
	TotalWithdrawals float64 `json:"totalWithdrawals"`
	DepositCount     int     `json:"depositCount"`
	WithdrawalCount  int     `json:"withdrawalCount"`

	AverageDailyBalance float64 `json:"averageDailyBalance"`
	LowestBalance       float64 `json:"lowestBalance"`
	HighestBalance      float64 `json:"highestBalance"`

	// PeriodDays is the inclusive day count between the earliest and
	// latest transaction dates. Zero for an empty statement.
	PeriodDays int `json:"periodDays"`

	// NegativeBalanceDays lists the days the interpolated running balance
	// was below zero.
	NegativeBalanceDays []time.Time `json:"negativeBalanceDays,omitempty"`

	IncomeStability IncomeStability `json:"incomeStability"`
	CashFlow        CashFlowMetrics `json:"cashFlow"`
	Business        BusinessMetrics `json:"business"`

	TransactionCount int `json:"transactionCount"`
}

// IntervalStats describes the day gaps between consecutive income deposits.
type IntervalStats struct {
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
	StdDev   float64 `json:"stdDev"`
	Median   float64 `json:"median"`
	Count    int     `json:"count"`
}

// IncomeStability scores the regularity of income-like deposits.
type IncomeStability struct {
	// StabilityScore is 0-100; higher means more regular income.
	StabilityScore float64 `json:"stabilityScore"`

	Intervals IntervalStats `json:"intervals"`

	// IncomeTransactions is the number of deposits that qualified as income.
	IncomeTransactions int `json:"incomeTransactions"`

	// Sufficient is false when fewer than two qualifying deposits exist;
	// the score is zero in that case, never an error.
	Sufficient bool `json:"sufficient"`

	Interpretation string `json:"interpretation"`
}

// CashFlowMetrics are the derived flow figures.
type CashFlowMetrics struct {
	NetCashFlow float64 `json:"netCashFlow"`

	// WithdrawalRatio is withdrawals/deposits. HasWithdrawalRatio is false
	// when deposits are zero; the ratio is meaningless then, not infinite.
	WithdrawalRatio    float64 `json:"withdrawalRatio"`
	HasWithdrawalRatio bool    `json:"hasWithdrawalRatio"`

	// VelocityRatio is total transaction volume relative to the average
	// daily balance, a turnover proxy used by the AML rules.
	VelocityRatio float64 `json:"velocityRatio"`
}

// BusinessMetrics are keyword-matched business-activity totals,
// consumed only by specific alert rules.
type BusinessMetrics struct {
	Detected         bool    `json:"detected"`
	BusinessDeposits float64 `json:"businessDeposits"`
	BusinessExpenses float64 `json:"businessExpenses"`
	DepositCount     int     `json:"depositCount"`
	ExpenseCount     int     `json:"expenseCount"`

	// ProfitRatio is (deposits-expenses)/deposits when deposits exist.
	ProfitRatio float64 `json:"profitRatio"`
}

// DepositWithdrawalTotals is the output of the totals calculation.
type DepositWithdrawalTotals struct {
	TotalDeposits    float64 `json:"totalDeposits"`
	TotalWithdrawals float64 `json:"totalWithdrawals"`
	DepositCount     int     `json:"depositCount"`
	WithdrawalCount  int     `json:"withdrawalCount"`
}

// BalanceMetrics is the output of the calendar day-walk interpolation.
type BalanceMetrics struct {
	AverageDailyBalance float64     `json:"averageDailyBalance"`
	LowestBalance       float64     `json:"lowestBalance"`
	HighestBalance      float64     `json:"highestBalance"`
	PeriodDays          int         `json:"periodDays"`
	NegativeBalanceDays []time.Time `json:"negativeBalanceDays,omitempty"`
}
