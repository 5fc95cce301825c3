package analysis

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/opensource-finance/veritas/internal/celrules"
	"github.com/opensource-finance/veritas/internal/domain"
	"github.com/opensource-finance/veritas/internal/metrics"
	"github.com/opensource-finance/veritas/internal/score"
)

func day(d int) time.Time {
	return time.Date(2024, 5, d, 0, 0, 0, 0, time.UTC)
}

func testStatement(id string) *domain.Statement {
	return &domain.Statement{
		ID:             id,
		AccountName:    "Acme Trading LLC",
		OpeningBalance: 200,
		Transactions: []domain.Transaction{
			{Date: day(1), Description: "CLIENT PAYMENT", Amount: 1000},
			{Date: day(2), Description: "RENT", Amount: -800},
			{Date: day(3), Description: "SUPPLIES", Amount: -150},
		},
	}
}

func TestProcessSingleStatement(t *testing.T) {
	p := NewProcessor(domain.DefaultEngineConfig(), nil)
	ctx := context.Background()

	analysis, err := p.Process(ctx, &Request{
		TenantID:   "tenant-001",
		Statements: []*domain.Statement{testStatement("st-001")},
		TraceID:    "trace-abc",
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if analysis.ID == "" {
		t.Error("analysis ID not assigned")
	}
	if analysis.TenantID != "tenant-001" {
		t.Errorf("tenantID = %q", analysis.TenantID)
	}
	if len(analysis.StatementIDs) != 1 || analysis.StatementIDs[0] != "st-001" {
		t.Errorf("statementIDs = %v", analysis.StatementIDs)
	}
	if len(analysis.Metrics) != 1 {
		t.Fatalf("metrics count = %d, want 1", len(analysis.Metrics))
	}

	// Spec scenario: balances 1200, 400, 250 over three days.
	m := analysis.Metrics[0]
	want := (1200.0 + 400.0 + 250.0) / 3.0
	if diff := m.AverageDailyBalance - want; diff > 0.001 || diff < -0.001 {
		t.Errorf("averageDailyBalance = %.4f, want %.4f", m.AverageDailyBalance, want)
	}

	if analysis.Score.Value < domain.ScoreMin || analysis.Score.Value > domain.ScoreMax {
		t.Errorf("score %.0f outside range", analysis.Score.Value)
	}
	if analysis.Score.RiskLevel != domain.RiskLevelFor(analysis.Score.Value) {
		t.Errorf("riskLevel not derived from value")
	}

	if analysis.Summary.Total != len(analysis.Alerts) {
		t.Errorf("summary total = %d, alerts = %d", analysis.Summary.Total, len(analysis.Alerts))
	}
	for i := 1; i < len(analysis.Alerts); i++ {
		if domain.SeverityRank(analysis.Alerts[i-1].Severity) > domain.SeverityRank(analysis.Alerts[i].Severity) {
			t.Fatalf("alerts not severity-sorted at %d", i)
		}
	}

	md := analysis.Metadata
	if md.TraceID != "trace-abc" {
		t.Errorf("traceID = %q", md.TraceID)
	}
	if md.StatementsCount != 1 || md.EngineVersion != EngineVersion {
		t.Errorf("metadata = %+v", md)
	}
	if md.RulesEvaluated == 0 {
		t.Error("rulesEvaluated not recorded")
	}
}

func TestProcessMultiStatement(t *testing.T) {
	p := NewProcessor(domain.DefaultEngineConfig(), nil)
	ctx := context.Background()

	// A clean account and an NSF-riddled one.
	clean := testStatement("st-clean")
	dirty := &domain.Statement{
		ID:             "st-dirty",
		OpeningBalance: 100,
		Transactions: []domain.Transaction{
			{Date: day(1), Description: "NSF FEE", Amount: -35},
			{Date: day(2), Description: "OVERDRAFT CHARGE", Amount: -35},
			{Date: day(3), Description: "NSF RETURNED ITEM", Amount: -35},
			{Date: day(4), Description: "NSF FEE", Amount: -35},
			{Date: day(5), Description: "INSUFFICIENT FUNDS FEE", Amount: -35},
		},
	}

	analysis, err := p.Process(ctx, &Request{
		TenantID:   "tenant-001",
		Statements: []*domain.Statement{clean, dirty},
		Application: &domain.ApplicationRecord{
			BusinessName:        "Acme Trading LLC",
			Industry:            "retail",
			StatedAnnualRevenue: 12000,
		},
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if len(analysis.Metrics) != 2 {
		t.Fatalf("metrics count = %d, want 2", len(analysis.Metrics))
	}
	if analysis.Metrics[1].NSFCount < 5 {
		t.Errorf("dirty statement NSF count = %d", analysis.Metrics[1].NSFCount)
	}

	// Cross-account NSF spread: 0 vs 5+.
	var nsfSpread, appRules int
	for _, a := range analysis.Alerts {
		switch a.Code {
		case domain.CodeInconsistentNSF:
			nsfSpread++
		case domain.CodeMissingApplication:
			appRules++
		}
	}
	if nsfSpread != 1 {
		t.Errorf("INCONSISTENT_NSF fired %d times, want exactly 1", nsfSpread)
	}
	// Application carries a start date omission; the rule must fire
	// once, not once per statement.
	if appRules != 1 {
		t.Errorf("MISSING_APPLICATION fired %d times, want exactly 1", appRules)
	}

	// The overall score blends the per-statement scores once: it must
	// equal the mean of independently synthesized scores.
	cfg := domain.DefaultEngineConfig()
	me := metrics.NewEngine(cfg.Metrics)
	sy := score.NewSynthesizer(cfg.Score)
	var sum float64
	for _, st := range []*domain.Statement{clean, dirty} {
		b, err := me.Compute(st)
		if err != nil {
			t.Fatalf("Compute failed: %v", err)
		}
		sum += sy.Synthesize(b).Value
	}
	if want := sum / 2; math.Abs(analysis.Score.Value-want) > 0.001 {
		t.Errorf("overall score = %v, want mean %v", analysis.Score.Value, want)
	}
}

func TestProcessCustomRules(t *testing.T) {
	custom, err := celrules.NewEngine(4)
	if err != nil {
		t.Fatalf("celrules.NewEngine: %v", err)
	}
	lower := 1.0
	if err := custom.LoadRule(&domain.CustomRuleConfig{
		ID:         "policy-1",
		Name:       "deposit floor",
		Expression: "total_deposits < 5000.0",
		Bands: []domain.RuleBand{{
			LowerLimit: &lower, Alert: true,
			Severity: domain.SeverityLow, Reason: "deposits under policy floor",
		}},
		Enabled: true,
	}); err != nil {
		t.Fatalf("LoadRule: %v", err)
	}

	p := NewProcessor(domain.DefaultEngineConfig(), custom)
	analysis, err := p.Process(context.Background(), &Request{
		TenantID:   "tenant-001",
		Statements: []*domain.Statement{testStatement("st-001")},
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	var found bool
	for _, a := range analysis.Alerts {
		if a.Code == domain.CodeCustomRule && a.Message == "deposits under policy floor" {
			found = true
		}
	}
	if !found {
		t.Error("custom rule alert missing from analysis")
	}
}

func TestProcessValidation(t *testing.T) {
	p := NewProcessor(domain.DefaultEngineConfig(), nil)
	ctx := context.Background()

	if _, err := p.Process(ctx, nil); !errors.Is(err, ErrNoStatements) {
		t.Errorf("nil request: err = %v", err)
	}
	if _, err := p.Process(ctx, &Request{TenantID: "t"}); !errors.Is(err, ErrNoStatements) {
		t.Errorf("empty statements: err = %v", err)
	}

	bad := testStatement("st-bad")
	bad.OpeningBalance = math.NaN()
	_, err := p.Process(ctx, &Request{
		TenantID:   "t",
		Statements: []*domain.Statement{bad},
	})
	if !errors.Is(err, metrics.ErrInvalidOpeningBalance) {
		t.Errorf("NaN opening balance: err = %v", err)
	}
}

func TestDigest(t *testing.T) {
	a := &domain.Analysis{
		ID:    "an-001",
		Score: domain.Score{Value: 612, RiskLevel: domain.RiskMedium},
		Alerts: []domain.Alert{
			{Severity: domain.SeverityHigh},
			{Severity: domain.SeverityLow},
		},
		Summary:   domain.AlertSummary{Highest: domain.SeverityHigh},
		Timestamp: time.Now().UTC(),
	}

	d := Digest(a)
	if d.AnalysisID != "an-001" || d.ScoreValue != 612 || d.AlertCount != 2 {
		t.Errorf("digest = %+v", d)
	}
	if d.Highest != domain.SeverityHigh {
		t.Errorf("highest = %s", d.Highest)
	}
}
