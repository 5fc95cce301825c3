package domain

// CustomRuleConfig is an operator-defined alert rule. The expression is
// CEL over the metric variables exposed by the celrules engine; when it
// lands in an alerting band the engine emits a CUSTOM_RULE alert with
// the band's severity.
type CustomRuleConfig struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// Expression must evaluate to bool, int, or double.
	Expression string `json:"expression"`

	// Bands map the numeric result to an outcome and severity.
	Bands []RuleBand `json:"bands"`

	Enabled bool `json:"enabled"`
}

// RuleBand maps a score range to an alerting outcome. Lower bound is
// inclusive, upper exclusive; a nil upper bound means unbounded.
type RuleBand struct {
	LowerLimit *float64 `json:"lowerLimit,omitempty"`
	UpperLimit *float64 `json:"upperLimit,omitempty"`

	// Alert is true when a score in this band should produce an alert.
	Alert    bool     `json:"alert"`
	Severity Severity `json:"severity,omitempty"`
	Reason   string   `json:"reason"`
}
