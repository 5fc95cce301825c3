package metrics

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/opensource-finance/veritas/internal/domain"
)

func testEngine() *Engine {
	return NewEngine(domain.DefaultEngineConfig().Metrics)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNSFCount(t *testing.T) {
	e := testEngine()

	t.Run("CaseInsensitive", func(t *testing.T) {
		txs := []domain.Transaction{
			{Date: day(2024, 1, 1), Description: "NSF FEE", Amount: -35},
			{Date: day(2024, 1, 2), Description: "Insufficient Funds charge", Amount: -35},
			{Date: day(2024, 1, 3), Description: "overdraft protection transfer", Amount: -12},
			{Date: day(2024, 1, 4), Description: "grocery store", Amount: -80},
		}
		if got := e.NSFCount(txs); got != 3 {
			t.Errorf("NSFCount = %d, want 3", got)
		}
	})

	t.Run("MissingDescription", func(t *testing.T) {
		txs := []domain.Transaction{
			{Date: day(2024, 1, 1), Amount: -10},
		}
		if got := e.NSFCount(txs); got != 0 {
			t.Errorf("NSFCount = %d, want 0", got)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		if got := e.NSFCount(nil); got != 0 {
			t.Errorf("NSFCount(nil) = %d, want 0", got)
		}
	})
}

func TestTotals(t *testing.T) {
	e := testEngine()

	totals := e.Totals([]domain.Transaction{
		{Date: day(2024, 1, 1), Amount: 100},
		{Date: day(2024, 1, 2), Amount: -50},
	})

	if totals.TotalDeposits != 100 {
		t.Errorf("TotalDeposits = %v, want 100", totals.TotalDeposits)
	}
	if totals.TotalWithdrawals != 50 {
		t.Errorf("TotalWithdrawals = %v, want 50", totals.TotalWithdrawals)
	}
	if totals.DepositCount != 1 || totals.WithdrawalCount != 1 {
		t.Errorf("counts = %d/%d, want 1/1", totals.DepositCount, totals.WithdrawalCount)
	}
}

func TestTotalsSkipsNonFinite(t *testing.T) {
	e := testEngine()

	totals := e.Totals([]domain.Transaction{
		{Date: day(2024, 1, 1), Amount: math.NaN()},
		{Date: day(2024, 1, 2), Amount: math.Inf(1)},
		{Date: day(2024, 1, 3), Amount: 200},
	})

	if totals.TotalDeposits != 200 || totals.DepositCount != 1 {
		t.Errorf("non-finite amounts should be skipped, got %+v", totals)
	}
}

func TestAverageDailyBalance(t *testing.T) {
	e := testEngine()

	t.Run("Empty", func(t *testing.T) {
		got, err := e.AverageDailyBalance(nil, 1234.56)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.AverageDailyBalance != 1234.56 {
			t.Errorf("average = %v, want opening balance", got.AverageDailyBalance)
		}
		if got.PeriodDays != 0 {
			t.Errorf("periodDays = %d, want 0", got.PeriodDays)
		}
	})

	t.Run("SingleTransaction", func(t *testing.T) {
		got, err := e.AverageDailyBalance([]domain.Transaction{
			{Date: day(2024, 3, 10), Amount: 250},
		}, 100)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.PeriodDays != 1 {
			t.Errorf("periodDays = %d, want 1", got.PeriodDays)
		}
		if got.AverageDailyBalance != 350 {
			t.Errorf("average = %v, want 350", got.AverageDailyBalance)
		}
	})

	t.Run("GapDaysCarryForward", func(t *testing.T) {
		// Day 1: +100 -> 200. Days 2-3: no activity, carry 200.
		// Day 4: -100 -> 100. Average = (200+200+200+100)/4 = 175.
		got, err := e.AverageDailyBalance([]domain.Transaction{
			{Date: day(2024, 1, 1), Amount: 100},
			{Date: day(2024, 1, 4), Amount: -100},
		}, 100)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.PeriodDays != 4 {
			t.Errorf("periodDays = %d, want 4", got.PeriodDays)
		}
		if got.AverageDailyBalance != 175 {
			t.Errorf("average = %v, want 175", got.AverageDailyBalance)
		}
		if got.HighestBalance != 200 || got.LowestBalance != 100 {
			t.Errorf("extremes = %v/%v, want 200/100", got.HighestBalance, got.LowestBalance)
		}
	})

	t.Run("SameDaySumsBeforeRecording", func(t *testing.T) {
		got, err := e.AverageDailyBalance([]domain.Transaction{
			{Date: day(2024, 1, 1), Amount: 1000},
			{Date: day(2024, 1, 1), Amount: -400},
		}, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.PeriodDays != 1 || got.AverageDailyBalance != 600 {
			t.Errorf("got %+v, want single day at 600", got)
		}
	})

	t.Run("NegativeDaysTracked", func(t *testing.T) {
		got, err := e.AverageDailyBalance([]domain.Transaction{
			{Date: day(2024, 1, 1), Amount: -300},
			{Date: day(2024, 1, 3), Amount: 500},
		}, 100)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got.NegativeBalanceDays) != 2 {
			t.Errorf("negative days = %d, want 2", len(got.NegativeBalanceDays))
		}
		if got.LowestBalance != -200 {
			t.Errorf("lowest = %v, want -200", got.LowestBalance)
		}
	})

	t.Run("NonFiniteOpeningBalance", func(t *testing.T) {
		_, err := e.AverageDailyBalance(nil, math.NaN())
		if !errors.Is(err, ErrInvalidOpeningBalance) {
			t.Errorf("expected ErrInvalidOpeningBalance, got %v", err)
		}
	})
}

func TestIncomeStability(t *testing.T) {
	e := testEngine()

	t.Run("InsufficientData", func(t *testing.T) {
		got := e.IncomeStability([]domain.Transaction{
			{Date: day(2024, 1, 1), Description: "payroll", Amount: 2000},
		})
		if got.Sufficient {
			t.Error("expected insufficient data")
		}
		if got.StabilityScore != 0 {
			t.Errorf("score = %v, want 0", got.StabilityScore)
		}
	})

	t.Run("PerfectBiweekly", func(t *testing.T) {
		var txs []domain.Transaction
		for i := 0; i < 8; i++ {
			txs = append(txs, domain.Transaction{
				Date:        day(2024, 1, 1).AddDate(0, 0, 14*i),
				Description: "payroll deposit",
				Amount:      2500,
			})
		}
		got := e.IncomeStability(txs)
		if !got.Sufficient {
			t.Fatal("expected sufficient data")
		}
		// Zero deviation plus every bonus: clamped at 100.
		if got.StabilityScore != 100 {
			t.Errorf("score = %v, want 100", got.StabilityScore)
		}
		if got.Intervals.Mean != 14 {
			t.Errorf("mean gap = %v, want 14", got.Intervals.Mean)
		}
		if got.Intervals.StdDev != 0 {
			t.Errorf("stddev = %v, want 0", got.Intervals.StdDev)
		}
	})

	t.Run("AnomalousGapDiscarded", func(t *testing.T) {
		txs := []domain.Transaction{
			{Date: day(2024, 1, 1), Amount: 2000},
			{Date: day(2024, 1, 15), Amount: 2000},
			{Date: day(2024, 1, 29), Amount: 2000},
			// 200-day gap is beyond any plausible pay interval.
			{Date: day(2024, 8, 16), Amount: 2000},
		}
		got := e.IncomeStability(txs)
		if got.Intervals.Count != 2 {
			t.Errorf("gap count = %d, want 2 after anomaly discard", got.Intervals.Count)
		}
	})

	t.Run("BelowFloorIgnored", func(t *testing.T) {
		txs := []domain.Transaction{
			{Date: day(2024, 1, 1), Amount: 50},
			{Date: day(2024, 1, 15), Amount: 50},
		}
		got := e.IncomeStability(txs)
		if got.Sufficient {
			t.Error("sub-floor credits should not qualify as income")
		}
	})

	t.Run("StrictFilterRequiresKeyword", func(t *testing.T) {
		cfg := domain.DefaultEngineConfig().Metrics
		cfg.StrictIncomeFilter = true
		strict := NewEngine(cfg)

		txs := []domain.Transaction{
			{Date: day(2024, 1, 1), Description: "refund", Amount: 2000},
			{Date: day(2024, 1, 15), Description: "refund", Amount: 2000},
		}
		if got := strict.IncomeStability(txs); got.Sufficient {
			t.Error("strict filter should reject non-income descriptions")
		}
	})
}

func TestCashFlow(t *testing.T) {
	e := testEngine()

	t.Run("Basic", func(t *testing.T) {
		got := e.CashFlow(domain.DepositWithdrawalTotals{
			TotalDeposits:    1000,
			TotalWithdrawals: 800,
		}, 500)

		if got.NetCashFlow != 200 {
			t.Errorf("netCashFlow = %v, want 200", got.NetCashFlow)
		}
		if !got.HasWithdrawalRatio || got.WithdrawalRatio != 0.8 {
			t.Errorf("withdrawalRatio = %v/%v, want 0.8", got.WithdrawalRatio, got.HasWithdrawalRatio)
		}
		if got.VelocityRatio != 3.6 {
			t.Errorf("velocityRatio = %v, want 3.6", got.VelocityRatio)
		}
	})

	t.Run("ZeroDepositsHasNoRatio", func(t *testing.T) {
		got := e.CashFlow(domain.DepositWithdrawalTotals{TotalWithdrawals: 500}, 100)
		if got.HasWithdrawalRatio {
			t.Error("withdrawal ratio should be absent when deposits are zero")
		}
	})
}

func TestBusiness(t *testing.T) {
	e := testEngine()

	txs := []domain.Transaction{
		{Date: day(2024, 1, 2), Description: "Stripe payout", Amount: 4000},
		{Date: day(2024, 1, 5), Description: "Square POS settlement", Amount: 1500},
		{Date: day(2024, 1, 8), Description: "Payroll run", Amount: -2000},
		{Date: day(2024, 1, 9), Description: "coffee", Amount: -5},
	}

	got := e.Business(txs)
	if !got.Detected {
		t.Error("expected business activity detected")
	}
	if got.BusinessDeposits != 5500 {
		t.Errorf("businessDeposits = %v, want 5500", got.BusinessDeposits)
	}
	if got.BusinessExpenses != 2000 {
		t.Errorf("businessExpenses = %v, want 2000", got.BusinessExpenses)
	}
	want := (5500.0 - 2000.0) / 5500.0
	if math.Abs(got.ProfitRatio-want) > 1e-9 {
		t.Errorf("profitRatio = %v, want %v", got.ProfitRatio, want)
	}
}

func TestCompute(t *testing.T) {
	e := testEngine()

	st := &domain.Statement{
		ID:             "st-001",
		OpeningBalance: 200,
		Transactions: []domain.Transaction{
			{Date: day(2024, 1, 1), Description: "deposit", Amount: 1000},
			{Date: day(2024, 1, 2), Description: "rent", Amount: -800},
			{Date: day(2024, 1, 3), Description: "groceries", Amount: -150},
		},
	}

	bundle, err := e.Compute(st)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if bundle.PeriodDays != 3 {
		t.Errorf("periodDays = %d, want 3", bundle.PeriodDays)
	}
	// Balances: 1200, 400, 250 -> average 616.66...
	want := (1200.0 + 400.0 + 250.0) / 3
	if math.Abs(bundle.AverageDailyBalance-want) > 1e-9 {
		t.Errorf("average = %v, want %v", bundle.AverageDailyBalance, want)
	}
	if bundle.TotalDeposits != 1000 || bundle.TotalWithdrawals != 950 {
		t.Errorf("totals = %v/%v, want 1000/950", bundle.TotalDeposits, bundle.TotalWithdrawals)
	}
	if bundle.TransactionCount != 3 {
		t.Errorf("transactionCount = %d, want 3", bundle.TransactionCount)
	}
}
