package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-finance/veritas/internal/analysis"
	"github.com/opensource-finance/veritas/internal/celrules"
	"github.com/opensource-finance/veritas/internal/domain"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	rules     *celrules.Engine
	processor *analysis.Processor
	version   string

	// digestTTL bounds how long analysis digests stay cached.
	digestTTL time.Duration
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, rules *celrules.Engine, processor *analysis.Processor, version string) *Handler {
	return &Handler{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		rules:     rules,
		processor: processor,
		version:   version,
		digestTTL: time.Hour,
	}
}

// AnalyzeRequest is the request body for POST /analyze.
type AnalyzeRequest struct {
	Statements   []*domain.Statement        `json:"statements"`
	Application  *domain.ApplicationRecord  `json:"application,omitempty"`
	Verification *domain.VerificationRecord `json:"verification,omitempty"`
}

// AnalyzeResponse is the response for POST /analyze.
type AnalyzeResponse struct {
	AnalysisID string                  `json:"analysisId"`
	Score      domain.Score            `json:"score"`
	Alerts     []domain.Alert          `json:"alerts"`
	Summary    domain.AlertSummary     `json:"summary"`
	Metrics    []domain.MetricsBundle  `json:"metrics"`
	Metadata   domain.AnalysisMetadata `json:"metadata"`
}

// Analyze handles POST /analyze requests: the full synchronous
// pipeline over one or more statements.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if len(req.Statements) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "at least one statement is required",
		})
		return
	}

	for _, st := range req.Statements {
		if st == nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "statements must not contain null entries",
			})
			return
		}
		if st.ID == "" {
			st.ID = uuid.New().String()
		}
		st.TenantID = tenantID
	}

	result, err := h.processor.Process(ctx, &analysis.Request{
		TenantID:     tenantID,
		Statements:   req.Statements,
		Application:  req.Application,
		Verification: req.Verification,
		TraceID:      traceID,
	})
	if err != nil {
		slog.Error("analysis failed", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": err.Error(),
		})
		return
	}

	// Persistence and caching are best-effort; the caller already has
	// the result in hand.
	if h.repo != nil {
		for _, st := range req.Statements {
			if err := h.repo.SaveStatement(ctx, tenantID, st); err != nil {
				slog.Error("failed to save statement", "id", st.ID, "error", err)
			}
		}
		if err := h.repo.SaveAnalysis(ctx, tenantID, result); err != nil {
			slog.Error("failed to save analysis", "id", result.ID, "error", err)
		}
	}
	if h.cache != nil {
		if err := h.cache.SetDigest(ctx, tenantID, result.ID, analysis.Digest(result), h.digestTTL); err != nil {
			slog.Warn("failed to cache analysis digest", "id", result.ID, "error", err)
		}
	}

	h.publishEvents(ctx, tenantID, result)

	resp := AnalyzeResponse{
		AnalysisID: result.ID,
		Score:      result.Score,
		Alerts:     result.Alerts,
		Summary:    result.Summary,
		Metrics:    result.Metrics,
		Metadata:   result.Metadata,
	}
	if resp.Alerts == nil {
		resp.Alerts = []domain.Alert{}
	}

	writeJSON(w, http.StatusOK, resp)
}

// publishEvents emits completion and alert events for downstream
// consumers. Failures are logged, never surfaced to the caller.
func (h *Handler) publishEvents(ctx context.Context, tenantID string, result *domain.Analysis) {
	if h.bus == nil {
		return
	}

	if payload, err := json.Marshal(analysis.Digest(result)); err == nil {
		if err := h.bus.Publish(ctx, tenantID, domain.TopicAnalysisCompleted, payload); err != nil {
			slog.Warn("failed to publish completion event", "id", result.ID, "error", err)
		}
	}

	if len(result.Alerts) > 0 {
		event := map[string]any{
			"analysisId":      result.ID,
			"tenantId":        tenantID,
			"highestSeverity": result.Summary.Highest,
			"alerts":          result.Alerts,
		}
		if payload, err := json.Marshal(event); err == nil {
			if err := h.bus.Publish(ctx, tenantID, domain.TopicAlert, payload); err != nil {
				slog.Warn("failed to publish alert event", "id", result.ID, "error", err)
			}
		}
	}
}

// ScoreRequest is the request body for POST /score.
type ScoreRequest struct {
	Statement *domain.Statement `json:"statement"`
}

// ScoreResponse is the response for POST /score.
type ScoreResponse struct {
	Metrics *domain.MetricsBundle `json:"metrics"`
	Score   domain.Score          `json:"score"`
}

// Score handles POST /score: metrics and score for a single statement
// without the alert stages. Nothing is persisted.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	var req ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Statement == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "statement is required",
		})
		return
	}

	bundle, score, err := h.processor.Quick(req.Statement)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, ScoreResponse{
		Metrics: bundle,
		Score:   score,
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// GetAnalysis retrieves a full analysis by ID.
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	analysisID := chi.URLParam(r, "id")

	if analysisID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "analysis id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	result, err := h.repo.GetAnalysis(ctx, tenantID, analysisID)
	if err != nil {
		slog.Error("failed to get analysis", "id", analysisID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "analysis not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GetAnalysisDigest returns the compact cached view of an analysis,
// falling back to the repository on a cache miss.
func (h *Handler) GetAnalysisDigest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	analysisID := chi.URLParam(r, "id")

	if analysisID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "analysis id is required",
		})
		return
	}

	if h.cache != nil {
		digest, err := h.cache.GetDigest(ctx, tenantID, analysisID)
		if err == nil && digest != nil {
			writeJSON(w, http.StatusOK, digest)
			return
		}
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	result, err := h.repo.GetAnalysis(ctx, tenantID, analysisID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "analysis not found",
		})
		return
	}

	digest := analysis.Digest(result)
	if h.cache != nil {
		if err := h.cache.SetDigest(ctx, tenantID, analysisID, digest, h.digestTTL); err != nil {
			slog.Warn("failed to cache analysis digest", "id", analysisID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, digest)
}

// ListAnalyses returns analyses for the tenant, newest first. The
// optional "since" query parameter (RFC 3339) bounds the range.
func (h *Handler) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "since must be RFC 3339",
			})
			return
		}
		since = parsed
	}

	analyses, err := h.repo.ListAnalyses(ctx, tenantID, since)
	if err != nil {
		slog.Error("failed to list analyses", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list analyses",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"analyses": analyses,
		"count":    len(analyses),
	})
}

// GlobalTenantID is used for custom rules that apply to all tenants.
const GlobalTenantID = "*"

// ListRules returns all custom rules currently loaded in the engine.
// Rules are loaded from the database at startup and can be reloaded
// via POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.rules.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// GetRule retrieves a custom rule by ID from the loaded engine rules.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	for _, rule := range h.rules.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating a custom rule.
type CreateRuleRequest struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Expression  string            `json:"expression"`
	Bands       []domain.RuleBand `json:"bands"`
	Enabled     bool              `json:"enabled"`
}

// CreateRule creates a new custom rule and saves it to the database.
// Rules are saved globally (tenant_id = "*") so they apply to all
// tenants. After saving, call POST /rules/reload to hot-reload into
// the engine.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	ruleConfig := &domain.CustomRuleConfig{
		ID:          req.ID,
		TenantID:    GlobalTenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Expression:  req.Expression,
		Bands:       req.Bands,
		Enabled:     req.Enabled,
	}

	// Validate the CEL expression before anything is persisted.
	if err := h.rules.ValidateRule(ruleConfig); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveCustomRule(ctx, GlobalTenantID, ruleConfig); err != nil {
			slog.Error("failed to save custom rule", "id", ruleConfig.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("custom rule created", "id", ruleConfig.ID, "name", ruleConfig.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    ruleConfig,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// ReloadRules reloads all custom rules from the database into the
// engine. This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	dbRules, err := h.repo.ListCustomRules(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to list custom rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.rules.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload custom rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("custom rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
