// Package analysis orchestrates the full statement analysis pipeline:
// metrics, score synthesis, built-in alerts, and custom CEL rules, in
// that order, producing one persisted Analysis per request.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/veritas/internal/alerts"
	"github.com/opensource-finance/veritas/internal/celrules"
	"github.com/opensource-finance/veritas/internal/domain"
	"github.com/opensource-finance/veritas/internal/metrics"
	"github.com/opensource-finance/veritas/internal/score"
)

// EngineVersion is stamped into every analysis for traceability.
const EngineVersion = "veritas-1.0"

var ErrNoStatements = errors.New("at least one statement is required")

// Processor runs the analysis pipeline. All stages are deterministic;
// the processor itself is safe for concurrent use.
type Processor struct {
	metrics *metrics.Engine
	score   *score.Synthesizer
	alerts  *alerts.Engine
	custom  *celrules.Engine

	now func() time.Time
}

// NewProcessor assembles the pipeline from engine configuration. The
// custom rule engine is optional; nil skips the custom stage.
func NewProcessor(cfg domain.EngineConfig, custom *celrules.Engine) *Processor {
	return &Processor{
		metrics: metrics.NewEngine(cfg.Metrics),
		score:   score.NewSynthesizer(cfg.Score),
		alerts:  alerts.NewEngine(cfg.Alerts),
		custom:  custom,
		now:     time.Now,
	}
}

// Request carries one analysis invocation. Application and
// Verification are optional; rules that need them do not fire when
// absent.
type Request struct {
	TenantID     string
	Statements   []*domain.Statement
	Application  *domain.ApplicationRecord
	Verification *domain.VerificationRecord
	TraceID      string
}

// Process runs the pipeline over the request's statements and returns
// the assembled analysis. It fails only on contract violations
// (no statements, invalid opening balance); degraded inputs otherwise
// produce a valid analysis with fewer firing rules.
func (p *Processor) Process(ctx context.Context, req *Request) (*domain.Analysis, error) {
	start := p.now()

	if req == nil || len(req.Statements) == 0 {
		return nil, ErrNoStatements
	}

	// Stage 1: per-statement metrics.
	bundles := make([]domain.MetricsBundle, len(req.Statements))
	statementIDs := make([]string, len(req.Statements))
	for i, st := range req.Statements {
		bundle, err := p.metrics.Compute(st)
		if err != nil {
			return nil, fmt.Errorf("statement %s: %w", st.ID, err)
		}
		bundles[i] = *bundle
		statementIDs[i] = st.ID
	}
	metricsDone := p.now()

	// Stage 2: per-statement scores plus the blended overall score.
	scores := make([]domain.Score, len(bundles))
	for i := range bundles {
		scores[i] = p.score.Synthesize(&bundles[i])
	}
	overall := p.score.Combine(scores)

	// Stage 3: built-in alerts. Per-statement rules run once per
	// statement; application, verification, and cross-account rules
	// are attached to the first pass so they fire exactly once.
	var allAlerts []domain.Alert
	rulesEvaluated := 0
	for i, st := range req.Statements {
		in := &alerts.Input{
			Statement: st,
			Metrics:   &bundles[i],
			Score:     &scores[i],
		}
		if i == 0 {
			in.Application = req.Application
			in.Verification = req.Verification
			in.AllMetrics = bundles
			in.AllScores = scores
		}
		allAlerts = append(allAlerts, p.alerts.Generate(in)...)
		rulesEvaluated += p.alerts.RulesCount()
	}

	// Stage 4: custom CEL rules over each statement's bundle.
	if p.custom != nil {
		for i := range bundles {
			allAlerts = append(allAlerts, p.custom.Evaluate(&bundles[i], &scores[i])...)
		}
		rulesEvaluated += p.custom.RulesCount() * len(bundles)
	}

	alerts.SortBySeverity(allAlerts)
	alertsDone := p.now()

	analysis := &domain.Analysis{
		ID:           uuid.New().String(),
		TenantID:     req.TenantID,
		StatementIDs: statementIDs,
		Metrics:      bundles,
		Score:        overall,
		Alerts:       allAlerts,
		Summary:      alerts.Summarize(allAlerts),
		Timestamp:    p.now().UTC(),
		Metadata: domain.AnalysisMetadata{
			TraceID:         req.TraceID,
			MetricsMs:       metricsDone.Sub(start).Milliseconds(),
			AlertsMs:        alertsDone.Sub(metricsDone).Milliseconds(),
			TotalMs:         p.now().Sub(start).Milliseconds(),
			StatementsCount: len(req.Statements),
			RulesEvaluated:  rulesEvaluated,
			EngineVersion:   EngineVersion,
		},
	}

	return analysis, nil
}

// Quick computes metrics and a score for a single statement without
// running the alert stages.
func (p *Processor) Quick(st *domain.Statement) (*domain.MetricsBundle, domain.Score, error) {
	if st == nil {
		return nil, domain.Score{}, ErrNoStatements
	}
	bundle, err := p.metrics.Compute(st)
	if err != nil {
		return nil, domain.Score{}, err
	}
	return bundle, p.score.Synthesize(bundle), nil
}

// Digest produces the compact cacheable view of an analysis.
func Digest(a *domain.Analysis) *domain.AnalysisDigest {
	return &domain.AnalysisDigest{
		AnalysisID: a.ID,
		ScoreValue: a.Score.Value,
		RiskLevel:  a.Score.RiskLevel,
		AlertCount: len(a.Alerts),
		Highest:    a.Summary.Highest,
		Timestamp:  a.Timestamp,
	}
}
