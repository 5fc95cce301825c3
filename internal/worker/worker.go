// Package worker provides async statement processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/veritas/internal/analysis"
	"github.com/opensource-finance/veritas/internal/domain"
)

// Worker consumes statement-received events from the EventBus, runs
// the full analysis pipeline, persists the result, and publishes
// completion and alert events.
type Worker struct {
	bus       domain.EventBus
	repo      domain.Repository
	cache     domain.Cache
	processor *analysis.Processor

	digestTTL time.Duration

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = global subscription)
	TenantIDs []string

	// DigestTTL controls how long completed analysis digests stay cached.
	DigestTTL time.Duration
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, cache domain.Cache, processor *analysis.Processor) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		repo:      repo,
		cache:     cache,
		processor: processor,
		digestTTL: time.Hour,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins processing statement events for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if cfg.DigestTTL > 0 {
		w.digestTTL = cfg.DigestTTL
	}

	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicStatementReceived, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts a worker for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicStatementReceived, func(ctx context.Context, msg *domain.Message) error {
		return w.processStatements(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicStatementReceived,
	)

	return nil
}

// handleMessage handles messages from the global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processStatements(ctx, msg.TenantID, msg)
}

// StatementMessage is the payload for async analysis requests.
type StatementMessage struct {
	TenantID     string                     `json:"tenantId"`
	TraceID      string                     `json:"traceId,omitempty"`
	Statements   []*domain.Statement        `json:"statements"`
	Application  *domain.ApplicationRecord  `json:"application,omitempty"`
	Verification *domain.VerificationRecord `json:"verification,omitempty"`
}

// AlertEvent is the payload published per analysis to the alert topic
// when the analysis produced any alerts.
type AlertEvent struct {
	AnalysisID string          `json:"analysisId"`
	TenantID   string          `json:"tenantId"`
	Highest    domain.Severity `json:"highestSeverity"`
	Alerts     []domain.Alert  `json:"alerts"`
}

// processStatements runs one statement batch through the pipeline.
func (w *Worker) processStatements(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var stMsg StatementMessage
	if err := json.Unmarshal(msg.Payload, &stMsg); err != nil {
		slog.Error("failed to parse statement message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if stMsg.TenantID != "" {
		tenantID = stMsg.TenantID
	}

	traceID := stMsg.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	slog.Debug("processing statements",
		"tenant_id", tenantID,
		"trace_id", traceID,
		"statement_count", len(stMsg.Statements),
	)

	result, err := w.processor.Process(ctx, &analysis.Request{
		TenantID:     tenantID,
		Statements:   stMsg.Statements,
		Application:  stMsg.Application,
		Verification: stMsg.Verification,
		TraceID:      traceID,
	})
	if err != nil {
		slog.Error("analysis failed",
			"tenant_id", tenantID,
			"trace_id", traceID,
			"error", err,
		)
		return err
	}

	// Persist statements and the analysis.
	if w.repo != nil {
		for _, st := range stMsg.Statements {
			if err := w.repo.SaveStatement(ctx, tenantID, st); err != nil {
				slog.Error("failed to save statement",
					"statement_id", st.ID,
					"error", err,
				)
			}
		}
		if err := w.repo.SaveAnalysis(ctx, tenantID, result); err != nil {
			slog.Error("failed to save analysis",
				"analysis_id", result.ID,
				"error", err,
			)
		}
	}

	// Cache the digest for repeat lookups.
	if w.cache != nil {
		if err := w.cache.SetDigest(ctx, tenantID, result.ID, analysis.Digest(result), w.digestTTL); err != nil {
			slog.Warn("failed to cache analysis digest",
				"analysis_id", result.ID,
				"error", err,
			)
		}
	}

	// Publish completion.
	resultPayload, _ := json.Marshal(result)
	if err := w.bus.Publish(ctx, tenantID, domain.TopicAnalysisCompleted, resultPayload); err != nil {
		slog.Error("failed to publish completion",
			"analysis_id", result.ID,
			"error", err,
		)
	}

	// Publish the alert event when anything fired.
	if len(result.Alerts) > 0 {
		event := AlertEvent{
			AnalysisID: result.ID,
			TenantID:   tenantID,
			Highest:    result.Summary.Highest,
			Alerts:     result.Alerts,
		}
		eventPayload, _ := json.Marshal(event)
		if err := w.bus.Publish(ctx, tenantID, domain.TopicAlert, eventPayload); err != nil {
			slog.Error("failed to publish alert event",
				"analysis_id", result.ID,
				"error", err,
			)
		}
	}

	slog.Info("statements processed",
		"analysis_id", result.ID,
		"tenant_id", tenantID,
		"score", result.Score.Value,
		"risk_level", result.Score.RiskLevel,
		"alert_count", len(result.Alerts),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
