package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/veritas/internal/domain"
)

func TestSQLiteRepository(t *testing.T) {
	// Create temp database file
	tmpFile, err := os.CreateTemp("", "veritas-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	}

	repo, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetStatement", func(t *testing.T) {
		st := &domain.Statement{
			ID:             "st-001",
			AccountName:    "Acme Trading LLC",
			OpeningBalance: 1250.75,
			Transactions: []domain.Transaction{
				{Date: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), Description: "CLIENT PAYMENT", Amount: 2500},
				{Date: time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC), Description: "NSF FEE", Amount: -35},
			},
			FlaggedNegativeBalance: true,
			CreatedAt:              time.Now().UTC(),
		}

		if err := repo.SaveStatement(ctx, tenantID, st); err != nil {
			t.Fatalf("SaveStatement failed: %v", err)
		}

		retrieved, err := repo.GetStatement(ctx, tenantID, st.ID)
		if err != nil {
			t.Fatalf("GetStatement failed: %v", err)
		}

		if retrieved.ID != st.ID {
			t.Errorf("expected ID %s, got %s", st.ID, retrieved.ID)
		}
		if retrieved.OpeningBalance != st.OpeningBalance {
			t.Errorf("expected OpeningBalance %.2f, got %.2f", st.OpeningBalance, retrieved.OpeningBalance)
		}
		if len(retrieved.Transactions) != 2 {
			t.Fatalf("expected 2 transactions, got %d", len(retrieved.Transactions))
		}
		if retrieved.Transactions[1].Amount != -35 {
			t.Errorf("expected second amount -35, got %.2f", retrieved.Transactions[1].Amount)
		}
		if !retrieved.FlaggedNegativeBalance {
			t.Error("FlaggedNegativeBalance not preserved")
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		_, err := repo.GetStatement(ctx, "tenant-002", "st-001")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound across tenants, got %v", err)
		}
	})

	t.Run("StatementUpsert", func(t *testing.T) {
		st := &domain.Statement{
			ID:             "st-001",
			AccountName:    "Acme Trading LLC (corrected)",
			OpeningBalance: 1300,
			Transactions:   []domain.Transaction{},
			CreatedAt:      time.Now().UTC(),
		}
		if err := repo.SaveStatement(ctx, tenantID, st); err != nil {
			t.Fatalf("re-save failed: %v", err)
		}

		retrieved, err := repo.GetStatement(ctx, tenantID, "st-001")
		if err != nil {
			t.Fatalf("GetStatement failed: %v", err)
		}
		if retrieved.OpeningBalance != 1300 {
			t.Errorf("upsert did not replace opening balance: %.2f", retrieved.OpeningBalance)
		}
	})

	t.Run("SaveAndGetAnalysis", func(t *testing.T) {
		analysis := &domain.Analysis{
			ID:           "an-001",
			StatementIDs: []string{"st-001"},
			Metrics: []domain.MetricsBundle{{
				NSFCount:            2,
				AverageDailyBalance: 842.50,
				PeriodDays:          30,
			}},
			Score: domain.Score{
				Value:     612,
				RiskLevel: domain.RiskMedium,
				FactorBreakdown: map[string]float64{
					domain.FactorNSF: -60,
				},
			},
			Alerts: []domain.Alert{{
				Code:     domain.CodeLowAverageBalance,
				Severity: domain.SeverityMedium,
				Title:    "Low average daily balance",
			}},
			Summary: domain.AlertSummary{
				Total:      1,
				BySeverity: map[domain.Severity]int{domain.SeverityMedium: 1},
				ByCategory: map[domain.AlertCategory]int{domain.CategoryBalance: 1},
				Highest:    domain.SeverityMedium,
			},
			Timestamp: time.Now().UTC(),
			Metadata:  domain.AnalysisMetadata{StatementsCount: 1, EngineVersion: "1"},
		}

		if err := repo.SaveAnalysis(ctx, tenantID, analysis); err != nil {
			t.Fatalf("SaveAnalysis failed: %v", err)
		}

		retrieved, err := repo.GetAnalysis(ctx, tenantID, analysis.ID)
		if err != nil {
			t.Fatalf("GetAnalysis failed: %v", err)
		}

		if retrieved.Score.Value != 612 {
			t.Errorf("score = %.0f, want 612", retrieved.Score.Value)
		}
		if retrieved.Score.RiskLevel != domain.RiskMedium {
			t.Errorf("riskLevel = %s, want MEDIUM", retrieved.Score.RiskLevel)
		}
		if retrieved.Score.FactorBreakdown[domain.FactorNSF] != -60 {
			t.Errorf("factor breakdown not preserved: %+v", retrieved.Score.FactorBreakdown)
		}
		if len(retrieved.Alerts) != 1 || retrieved.Alerts[0].Code != domain.CodeLowAverageBalance {
			t.Errorf("alerts not preserved: %+v", retrieved.Alerts)
		}
		if retrieved.Summary.Highest != domain.SeverityMedium {
			t.Errorf("summary highest = %s", retrieved.Summary.Highest)
		}
		if len(retrieved.Metrics) != 1 || retrieved.Metrics[0].AverageDailyBalance != 842.50 {
			t.Errorf("metrics not preserved: %+v", retrieved.Metrics)
		}
	})

	t.Run("ListAnalyses", func(t *testing.T) {
		older := &domain.Analysis{
			ID:        "an-old",
			Timestamp: time.Now().UTC().Add(-48 * time.Hour),
			Score:     domain.Score{Value: 700, RiskLevel: domain.RiskLow},
		}
		if err := repo.SaveAnalysis(ctx, tenantID, older); err != nil {
			t.Fatalf("SaveAnalysis failed: %v", err)
		}

		recent, err := repo.ListAnalyses(ctx, tenantID, time.Now().UTC().Add(-time.Hour))
		if err != nil {
			t.Fatalf("ListAnalyses failed: %v", err)
		}
		if len(recent) != 1 || recent[0].ID != "an-001" {
			t.Errorf("since filter failed: got %d analyses", len(recent))
		}

		all, err := repo.ListAnalyses(ctx, tenantID, time.Time{})
		if err != nil {
			t.Fatalf("ListAnalyses failed: %v", err)
		}
		if len(all) != 2 {
			t.Fatalf("expected 2 analyses, got %d", len(all))
		}
		// Newest first.
		if all[0].ID != "an-001" {
			t.Errorf("ordering: first = %s, want an-001", all[0].ID)
		}
	})

	t.Run("CustomRules", func(t *testing.T) {
		lower := 1.0
		rule := &domain.CustomRuleConfig{
			ID:         "rule-001",
			Name:       "velocity policy",
			Version:    "1",
			Expression: "velocity_ratio > 3.0",
			Bands: []domain.RuleBand{{
				LowerLimit: &lower, Alert: true,
				Severity: domain.SeverityHigh, Reason: "velocity over policy",
			}},
			Enabled: true,
		}

		if err := repo.SaveCustomRule(ctx, tenantID, rule); err != nil {
			t.Fatalf("SaveCustomRule failed: %v", err)
		}

		retrieved, err := repo.GetCustomRule(ctx, tenantID, rule.ID)
		if err != nil {
			t.Fatalf("GetCustomRule failed: %v", err)
		}
		if retrieved.Expression != rule.Expression {
			t.Errorf("expression = %q", retrieved.Expression)
		}
		if len(retrieved.Bands) != 1 || retrieved.Bands[0].Severity != domain.SeverityHigh {
			t.Errorf("bands not preserved: %+v", retrieved.Bands)
		}

		// A newer version wins the lookup.
		rule.Version = "2"
		rule.Expression = "velocity_ratio > 4.0"
		if err := repo.SaveCustomRule(ctx, tenantID, rule); err != nil {
			t.Fatalf("SaveCustomRule v2 failed: %v", err)
		}
		retrieved, err = repo.GetCustomRule(ctx, tenantID, rule.ID)
		if err != nil {
			t.Fatalf("GetCustomRule failed: %v", err)
		}
		if retrieved.Version != "2" {
			t.Errorf("version = %q, want 2", retrieved.Version)
		}

		// Disabled rules are invisible to listing.
		disabled := &domain.CustomRuleConfig{
			ID: "rule-002", Name: "off", Version: "1",
			Expression: "true", Enabled: false,
		}
		if err := repo.SaveCustomRule(ctx, tenantID, disabled); err != nil {
			t.Fatalf("SaveCustomRule failed: %v", err)
		}

		rules, err := repo.ListCustomRules(ctx, tenantID)
		if err != nil {
			t.Fatalf("ListCustomRules failed: %v", err)
		}
		for _, r := range rules {
			if r.ID == "rule-002" {
				t.Error("disabled rule returned by list")
			}
		}
	})

	t.Run("InvalidInput", func(t *testing.T) {
		if err := repo.SaveStatement(ctx, "", &domain.Statement{ID: "x"}); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("empty tenant: err = %v", err)
		}
		if err := repo.SaveStatement(ctx, tenantID, nil); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("nil statement: err = %v", err)
		}
		if _, err := repo.GetAnalysis(ctx, tenantID, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("missing analysis: err = %v", err)
		}
	})
}

func TestRebind(t *testing.T) {
	pg := &SQLRepository{driver: "postgres"}
	got := pg.rebind("INSERT INTO t (a, b) VALUES (?, ?)")
	want := "INSERT INTO t (a, b) VALUES ($1, $2)"
	if got != want {
		t.Errorf("rebind = %q, want %q", got, want)
	}

	lite := &SQLRepository{driver: "sqlite"}
	if got := lite.rebind("SELECT ?"); got != "SELECT ?" {
		t.Errorf("sqlite rebind altered query: %q", got)
	}
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := New(domain.RepositoryConfig{Driver: "oracle"})
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}
