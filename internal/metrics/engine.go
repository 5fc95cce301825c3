// Package metrics turns a transaction list into derived risk metrics:
// NSF counts, deposit/withdrawal totals, calendar-accurate average
// daily balance, income-stability statistics, and cash-flow figures.
// Everything here is a pure function over immutable inputs.
package metrics

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/opensource-finance/veritas/internal/domain"
)

// ErrInvalidOpeningBalance is returned when the opening balance is not a
// finite number. The balance interpolation is meaningless without a true
// starting balance, so this is a contract violation rather than a
// degraded result.
var ErrInvalidOpeningBalance = errors.New("opening balance must be a finite number")

// Engine computes statement metrics using a fixed configuration.
// It holds no mutable state; concurrent use is safe.
type Engine struct {
	cfg domain.MetricsConfig
}

// NewEngine creates a metrics engine with the given configuration.
func NewEngine(cfg domain.MetricsConfig) *Engine {
	return &Engine{cfg: cfg}
}

// NSFCount counts transactions whose description contains an NSF
// keyword, compared case-insensitively. Missing descriptions never
// match and never fail.
func (e *Engine) NSFCount(txs []domain.Transaction) int {
	count := 0
	for _, tx := range txs {
		if tx.Description == "" {
			continue
		}
		desc := strings.ToLower(tx.Description)
		for _, kw := range e.cfg.NSFKeywords {
			if strings.Contains(desc, kw) {
				count++
				break
			}
		}
	}
	return count
}

// Totals sums positive amounts as deposits and the absolute value of
// negative amounts as withdrawals. Non-finite amounts are skipped.
func (e *Engine) Totals(txs []domain.Transaction) domain.DepositWithdrawalTotals {
	var out domain.DepositWithdrawalTotals
	for _, tx := range txs {
		if math.IsNaN(tx.Amount) || math.IsInf(tx.Amount, 0) {
			continue
		}
		if tx.Amount > 0 {
			out.TotalDeposits += tx.Amount
			out.DepositCount++
		} else if tx.Amount < 0 {
			out.TotalWithdrawals += -tx.Amount
			out.WithdrawalCount++
		}
	}
	return out
}

// AverageDailyBalance walks one calendar day at a time from the first
// to the last transaction date inclusive. On a gap day the running
// balance carries forward unchanged; on a day with transactions the
// balance is updated by their sum before being recorded.
//
// Zero transactions return {average: openingBalance, periodDays: 0}.
// A single transaction yields periodDays = 1.
func (e *Engine) AverageDailyBalance(txs []domain.Transaction, openingBalance float64) (domain.BalanceMetrics, error) {
	if math.IsNaN(openingBalance) || math.IsInf(openingBalance, 0) {
		return domain.BalanceMetrics{}, fmt.Errorf("%w: got %v", ErrInvalidOpeningBalance, openingBalance)
	}

	if len(txs) == 0 {
		return domain.BalanceMetrics{
			AverageDailyBalance: openingBalance,
			LowestBalance:       openingBalance,
			HighestBalance:      openingBalance,
			PeriodDays:          0,
		}, nil
	}

	sorted := make([]domain.Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	// Amounts summed per calendar day, so same-day transactions apply
	// together before the day's balance is recorded.
	daily := make(map[time.Time]float64)
	for _, tx := range sorted {
		if math.IsNaN(tx.Amount) || math.IsInf(tx.Amount, 0) {
			continue
		}
		daily[dayOf(tx.Date)] += tx.Amount
	}

	first := dayOf(sorted[0].Date)
	last := dayOf(sorted[len(sorted)-1].Date)

	balance := openingBalance
	lowest := math.Inf(1)
	highest := math.Inf(-1)
	var sum float64
	var days int
	var negativeDays []time.Time

	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		if delta, ok := daily[day]; ok {
			balance += delta
		}
		sum += balance
		days++
		if balance < lowest {
			lowest = balance
		}
		if balance > highest {
			highest = balance
		}
		if balance < 0 {
			negativeDays = append(negativeDays, day)
		}
	}

	return domain.BalanceMetrics{
		AverageDailyBalance: sum / float64(days),
		LowestBalance:       lowest,
		HighestBalance:      highest,
		PeriodDays:          days,
		NegativeBalanceDays: negativeDays,
	}, nil
}

// IncomeStability scores the regularity of income-like deposits from
// the day gaps between them. Fewer than two qualifying deposits yield
// an insufficient-data result with score zero, never an error.
func (e *Engine) IncomeStability(txs []domain.Transaction) domain.IncomeStability {
	income := e.filterIncome(txs)

	if len(income) < 2 {
		return domain.IncomeStability{
			StabilityScore:     0,
			IncomeTransactions: len(income),
			Sufficient:         false,
			Interpretation:     "insufficient income history to assess stability",
		}
	}

	sort.SliceStable(income, func(i, j int) bool {
		return income[i].Date.Before(income[j].Date)
	})

	var gaps []float64
	for i := 1; i < len(income); i++ {
		gap := dayOf(income[i].Date).Sub(dayOf(income[i-1].Date)).Hours() / 24
		if gap <= 0 || gap > float64(e.cfg.MaxPayIntervalDays) {
			// Same-day duplicates and implausible gaps are anomalies,
			// not evidence about the pay cycle.
			continue
		}
		gaps = append(gaps, gap)
	}

	if len(gaps) == 0 {
		return domain.IncomeStability{
			StabilityScore:     0,
			IncomeTransactions: len(income),
			Sufficient:         false,
			Interpretation:     "no plausible pay intervals found",
		}
	}

	stats := intervalStats(gaps)
	score := stabilityScore(stats, e.cfg.PayCycleDays)

	return domain.IncomeStability{
		StabilityScore:     score,
		Intervals:          stats,
		IncomeTransactions: len(income),
		Sufficient:         true,
		Interpretation:     interpretStability(score),
	}
}

// filterIncome selects income-like credits: positive, at or above the
// floor, dated, and (in strict mode) keyword-matched.
func (e *Engine) filterIncome(txs []domain.Transaction) []domain.Transaction {
	var income []domain.Transaction
	for _, tx := range txs {
		if math.IsNaN(tx.Amount) || math.IsInf(tx.Amount, 0) {
			continue
		}
		if tx.Amount <= 0 || tx.Amount < e.cfg.IncomeMinimum {
			continue
		}
		if tx.Date.IsZero() {
			continue
		}
		if e.cfg.StrictIncomeFilter && !matchesAny(tx.Description, e.cfg.IncomeKeywords) {
			continue
		}
		income = append(income, tx)
	}
	return income
}

// intervalStats computes mean, sample variance, standard deviation, and
// median over the given gaps.
func intervalStats(gaps []float64) domain.IntervalStats {
	n := len(gaps)

	var sum float64
	for _, g := range gaps {
		sum += g
	}
	mean := sum / float64(n)

	var variance float64
	if n > 1 {
		var sq float64
		for _, g := range gaps {
			d := g - mean
			sq += d * d
		}
		variance = sq / float64(n-1)
	}

	sorted := make([]float64, n)
	copy(sorted, gaps)
	sort.Float64s(sorted)
	var median float64
	if n%2 == 1 {
		median = sorted[n/2]
	} else {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}

	return domain.IntervalStats{
		Mean:     mean,
		Variance: variance,
		StdDev:   math.Sqrt(variance),
		Median:   median,
		Count:    n,
	}
}

// stabilityScore is max(0, 100 - 100*(stddev/mean)) plus bonuses for a
// recognizable pay cycle, low absolute deviation, and sample size,
// clamped to 100.
func stabilityScore(stats domain.IntervalStats, payCycles []float64) float64 {
	if stats.Mean <= 0 {
		return 0
	}

	score := 100 - 100*(stats.StdDev/stats.Mean)
	if score < 0 {
		score = 0
	}

	// Up to +10 when the mean gap sits near a canonical pay cycle.
	minDist := math.Inf(1)
	for _, cycle := range payCycles {
		if d := math.Abs(stats.Mean - cycle); d < minDist {
			minDist = d
		}
	}
	if minDist <= 5 {
		score += 10 - 2*minDist
	}

	// Up to +10 for low absolute standard deviation.
	switch {
	case stats.StdDev < 2:
		score += 10
	case stats.StdDev < 4:
		score += 5
	}

	// Up to +5 for a meaningful number of observations.
	switch {
	case stats.Count >= 10:
		score += 5
	case stats.Count >= 6:
		score += 3
	}

	if score > 100 {
		score = 100
	}
	return score
}

func interpretStability(score float64) string {
	switch {
	case score >= 80:
		return "highly regular income pattern"
	case score >= 60:
		return "mostly regular income pattern"
	case score >= 40:
		return "irregular income pattern"
	default:
		return "highly irregular income pattern"
	}
}

// CashFlow derives net cash flow, withdrawal ratio, and velocity ratio
// from the totals and the average daily balance. The withdrawal ratio
// is marked absent when deposits are zero.
func (e *Engine) CashFlow(totals domain.DepositWithdrawalTotals, averageDailyBalance float64) domain.CashFlowMetrics {
	out := domain.CashFlowMetrics{
		NetCashFlow: totals.TotalDeposits - totals.TotalWithdrawals,
	}

	if totals.TotalDeposits > 0 {
		out.WithdrawalRatio = totals.TotalWithdrawals / totals.TotalDeposits
		out.HasWithdrawalRatio = true
	}

	volume := totals.TotalDeposits + totals.TotalWithdrawals
	denom := averageDailyBalance
	if denom < 1 {
		// Guard against zero and negative balances; a floor of one unit
		// keeps the ratio finite while still flagging extreme turnover.
		denom = 1
	}
	out.VelocityRatio = volume / denom

	return out
}

// Business computes keyword-matched business-activity totals. Only
// specific alert rules consume these.
func (e *Engine) Business(txs []domain.Transaction) domain.BusinessMetrics {
	var out domain.BusinessMetrics
	for _, tx := range txs {
		if math.IsNaN(tx.Amount) || math.IsInf(tx.Amount, 0) {
			continue
		}
		if tx.Amount > 0 && matchesAny(tx.Description, e.cfg.BusinessDepositKeywords) {
			out.BusinessDeposits += tx.Amount
			out.DepositCount++
		} else if tx.Amount < 0 && matchesAny(tx.Description, e.cfg.BusinessExpenseKeywords) {
			out.BusinessExpenses += -tx.Amount
			out.ExpenseCount++
		}
	}

	out.Detected = out.DepositCount+out.ExpenseCount >= e.cfg.BusinessActivityMinimum
	if out.BusinessDeposits > 0 {
		out.ProfitRatio = (out.BusinessDeposits - out.BusinessExpenses) / out.BusinessDeposits
	}
	return out
}

// Compute runs the full metrics pipeline for one statement.
func (e *Engine) Compute(st *domain.Statement) (*domain.MetricsBundle, error) {
	balance, err := e.AverageDailyBalance(st.Transactions, st.OpeningBalance)
	if err != nil {
		return nil, err
	}

	totals := e.Totals(st.Transactions)

	bundle := &domain.MetricsBundle{
		NSFCount:            e.NSFCount(st.Transactions),
		TotalDeposits:       totals.TotalDeposits,
		TotalWithdrawals:    totals.TotalWithdrawals,
		DepositCount:        totals.DepositCount,
		WithdrawalCount:     totals.WithdrawalCount,
		AverageDailyBalance: balance.AverageDailyBalance,
		LowestBalance:       balance.LowestBalance,
		HighestBalance:      balance.HighestBalance,
		PeriodDays:          balance.PeriodDays,
		NegativeBalanceDays: balance.NegativeBalanceDays,
		IncomeStability:     e.IncomeStability(st.Transactions),
		Business:            e.Business(st.Transactions),
		TransactionCount:    len(st.Transactions),
	}
	bundle.CashFlow = e.CashFlow(totals, balance.AverageDailyBalance)

	return bundle, nil
}

func matchesAny(description string, keywords []string) bool {
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

// dayOf truncates a timestamp to its UTC calendar day.
func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
