package domain

import "time"

// Analysis is the complete result of analyzing a set of statements for
// one applicant: per-statement metrics, the synthesized score, and the
// ranked alert list.
type Analysis struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	// StatementIDs preserves the order the statements were analyzed in.
	StatementIDs []string `json:"statementIds"`

	Metrics []MetricsBundle `json:"metrics"`
	Score   Score           `json:"score"`
	Alerts  []Alert         `json:"alerts"`
	Summary AlertSummary    `json:"summary"`

	Timestamp time.Time        `json:"timestamp"`
	Metadata  AnalysisMetadata `json:"metadata"`
}

// AnalysisMetadata carries processing information for observability.
type AnalysisMetadata struct {
	TraceID         string `json:"traceId"`
	MetricsMs       int64  `json:"metricsMs"`
	AlertsMs        int64  `json:"alertsMs"`
	TotalMs         int64  `json:"totalMs"`
	StatementsCount int    `json:"statementsCount"`
	RulesEvaluated  int    `json:"rulesEvaluated"`
	EngineVersion   string `json:"engineVersion"`
}

// AnalysisDigest is the compact cached view of an analysis, enough to
// answer repeat lookups without touching the repository.
type AnalysisDigest struct {
	AnalysisID string    `json:"analysisId"`
	ScoreValue float64   `json:"score"`
	RiskLevel  RiskLevel `json:"riskLevel"`
	AlertCount int       `json:"alertCount"`
	Highest    Severity  `json:"highestSeverity,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
