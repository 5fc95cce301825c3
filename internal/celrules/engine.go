// Package celrules provides the CEL-Go based custom rule engine.
// Operators define expressions over the computed statement metrics;
// severity bands map each expression's numeric result to an alert.
package celrules

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opensource-finance/veritas/internal/domain"
)

// Engine compiles and evaluates tenant-defined CEL rules against
// analysis metrics.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	maxWorkers    int
	now           func() time.Time
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.CustomRuleConfig
	Program cel.Program
}

// NewEngine creates a custom rule engine with the metric variable set.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	env, err := cel.NewEnv(
		cel.Variable("metrics", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("nsf_count", cel.IntType),
		cel.Variable("average_daily_balance", cel.DoubleType),
		cel.Variable("lowest_balance", cel.DoubleType),
		cel.Variable("total_deposits", cel.DoubleType),
		cel.Variable("total_withdrawals", cel.DoubleType),
		cel.Variable("net_cash_flow", cel.DoubleType),
		cel.Variable("withdrawal_ratio", cel.DoubleType),
		cel.Variable("velocity_ratio", cel.DoubleType),
		cel.Variable("stability_score", cel.DoubleType),
		cel.Variable("transaction_count", cel.IntType),
		cel.Variable("period_days", cel.IntType),
		cel.Variable("score", cel.DoubleType),
		cel.Variable("risk_level", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
		maxWorkers:    maxWorkers,
		now:           time.Now,
	}, nil
}

// ValidateRule compiles a rule without mutating the loaded set.
func (e *Engine) ValidateRule(cfg *domain.CustomRuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.CustomRuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled

	return nil
}

// LoadRules compiles and loads the enabled rules from a list.
func (e *Engine) LoadRules(configs []*domain.CustomRuleConfig) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules atomically replaces the loaded rule set. This enables
// hot-reloading of rules from the database.
func (e *Engine) ReloadRules(configs []*domain.CustomRuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules

	return nil
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// GetLoadedRules returns the currently loaded rule configurations.
func (e *Engine) GetLoadedRules() []*domain.CustomRuleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.CustomRuleConfig, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	return rules
}

// Close clears the loaded rules.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

// Evaluate runs every loaded rule against the metrics and score and
// returns the alerts from bands that fired. A rule whose expression
// errors at runtime is skipped; a buggy custom rule must not block the
// built-in pipeline.
func (e *Engine) Evaluate(metrics *domain.MetricsBundle, score *domain.Score) []domain.Alert {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 || metrics == nil {
		return nil
	}

	activation := e.activation(metrics, score)

	results := make([]*domain.Alert, len(rules))
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			results[idx] = e.evaluateRule(r, activation)
		}(i, rule)
	}

	wg.Wait()

	var alerts []domain.Alert
	for _, a := range results {
		if a != nil {
			alerts = append(alerts, *a)
		}
	}
	return alerts
}

// activation builds the CEL variable bindings from the metrics.
func (e *Engine) activation(metrics *domain.MetricsBundle, score *domain.Score) map[string]any {
	var scoreValue float64
	var riskLevel string
	if score != nil {
		scoreValue = score.Value
		riskLevel = string(score.RiskLevel)
	}

	flat := map[string]any{
		"nsf_count":             int64(metrics.NSFCount),
		"average_daily_balance": metrics.AverageDailyBalance,
		"lowest_balance":        metrics.LowestBalance,
		"total_deposits":        metrics.TotalDeposits,
		"total_withdrawals":     metrics.TotalWithdrawals,
		"net_cash_flow":         metrics.CashFlow.NetCashFlow,
		"withdrawal_ratio":      metrics.CashFlow.WithdrawalRatio,
		"velocity_ratio":        metrics.CashFlow.VelocityRatio,
		"stability_score":       metrics.IncomeStability.StabilityScore,
		"transaction_count":     int64(metrics.TransactionCount),
		"period_days":           int64(metrics.PeriodDays),
		"score":                 scoreValue,
		"risk_level":            riskLevel,
	}

	activation := make(map[string]any, len(flat)+1)
	metricsMap := make(map[string]any, len(flat))
	for k, v := range flat {
		activation[k] = v
		metricsMap[k] = v
	}
	activation["metrics"] = metricsMap

	return activation
}

// evaluateRule runs one compiled rule and maps its result through the
// severity bands. Returns nil when no alerting band matches.
func (e *Engine) evaluateRule(rule *CompiledRule, activation map[string]any) *domain.Alert {
	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		return nil
	}

	value := toScore(out)
	band := matchBand(value, rule.Config.Bands)
	if band == nil || !band.Alert {
		return nil
	}

	severity := band.Severity
	if severity == "" {
		severity = domain.SeverityMedium
	}

	return &domain.Alert{
		Code:     domain.CodeCustomRule,
		Severity: severity,
		Title:    rule.Config.Name,
		Message:  band.Reason,
		Data: map[string]any{
			"ruleId":      rule.Config.ID,
			"ruleVersion": rule.Config.Version,
			"value":       value,
		},
		Timestamp: e.now().UTC(),
	}
}

// toScore converts a CEL value to a numeric score.
func toScore(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0
		}
		return 0.0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}

// matchBand finds the band containing the value. Lower bound is
// inclusive, upper exclusive; nil bounds are unbounded.
func matchBand(value float64, bands []domain.RuleBand) *domain.RuleBand {
	for i := range bands {
		band := &bands[i]

		if band.LowerLimit != nil && value < *band.LowerLimit {
			continue
		}
		if band.UpperLimit != nil && value >= *band.UpperLimit {
			continue
		}
		return band
	}
	return nil
}

func (e *Engine) compileRule(cfg *domain.CustomRuleConfig) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", cfg.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
