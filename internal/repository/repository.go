// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/veritas/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveStatement stores a statement with tenant isolation. The
// transaction list is stored as JSON; the engine always reads a
// statement whole.
func (r *SQLRepository) SaveStatement(ctx context.Context, tenantID string, st *domain.Statement) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if st == nil || st.ID == "" {
		return fmt.Errorf("%w: statement with an ID is required", ErrInvalidInput)
	}

	transactions, err := json.Marshal(st.Transactions)
	if err != nil {
		return fmt.Errorf("failed to encode transactions: %w", err)
	}

	flagged := 0
	if st.FlaggedNegativeBalance {
		flagged = 1
	}

	createdAt := st.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO statements (
			id, tenant_id, account_name, opening_balance,
			transactions, flagged_negative, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			account_name = excluded.account_name,
			opening_balance = excluded.opening_balance,
			transactions = excluded.transactions,
			flagged_negative = excluded.flagged_negative
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		st.ID, tenantID, st.AccountName, st.OpeningBalance,
		string(transactions), flagged, createdAt,
	)
	return err
}

// GetStatement retrieves a statement by ID with tenant isolation.
func (r *SQLRepository) GetStatement(ctx context.Context, tenantID string, statementID string) (*domain.Statement, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, account_name, opening_balance,
			   transactions, flagged_negative, created_at
		FROM statements
		WHERE tenant_id = ? AND id = ?
	`

	var st domain.Statement
	var transactions string
	var flagged int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, statementID).Scan(
		&st.ID, &st.TenantID, &st.AccountName, &st.OpeningBalance,
		&transactions, &flagged, &st.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	st.FlaggedNegativeBalance = flagged == 1
	if err := json.Unmarshal([]byte(transactions), &st.Transactions); err != nil {
		return nil, fmt.Errorf("failed to parse statement transactions: %w", err)
	}

	return &st, nil
}

// SaveAnalysis stores a completed analysis with tenant isolation.
func (r *SQLRepository) SaveAnalysis(ctx context.Context, tenantID string, analysis *domain.Analysis) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if analysis == nil || analysis.ID == "" {
		return fmt.Errorf("%w: analysis with an ID is required", ErrInvalidInput)
	}

	statementIDs, _ := json.Marshal(analysis.StatementIDs)
	metrics, _ := json.Marshal(analysis.Metrics)
	breakdown, _ := json.Marshal(analysis.Score.FactorBreakdown)
	alerts, _ := json.Marshal(analysis.Alerts)
	summary, _ := json.Marshal(analysis.Summary)
	metadata, _ := json.Marshal(analysis.Metadata)

	query := `
		INSERT INTO analyses (
			id, tenant_id, statement_ids, metrics, score, risk_level,
			factor_breakdown, alerts, summary, timestamp, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		analysis.ID, tenantID, string(statementIDs), string(metrics),
		analysis.Score.Value, string(analysis.Score.RiskLevel), string(breakdown),
		string(alerts), string(summary), analysis.Timestamp, string(metadata),
	)
	return err
}

// GetAnalysis retrieves an analysis by ID with tenant isolation.
func (r *SQLRepository) GetAnalysis(ctx context.Context, tenantID string, analysisID string) (*domain.Analysis, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, statement_ids, metrics, score, risk_level,
			   factor_breakdown, alerts, summary, timestamp, metadata
		FROM analyses
		WHERE tenant_id = ? AND id = ?
	`

	analysis, err := r.scanAnalysis(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, analysisID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return analysis, err
}

// ListAnalyses retrieves a tenant's analyses since a point in time,
// newest first.
func (r *SQLRepository) ListAnalyses(ctx context.Context, tenantID string, since time.Time) ([]*domain.Analysis, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, statement_ids, metrics, score, risk_level,
			   factor_breakdown, alerts, summary, timestamp, metadata
		FROM analyses
		WHERE tenant_id = ? AND timestamp >= ?
		ORDER BY timestamp DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var analyses []*domain.Analysis
	for rows.Next() {
		analysis, err := r.scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		analyses = append(analyses, analysis)
	}

	return analyses, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func (r *SQLRepository) scanAnalysis(row scanner) (*domain.Analysis, error) {
	var analysis domain.Analysis
	var statementIDs, metrics, riskLevel, breakdown, alerts, summary, metadata string

	err := row.Scan(
		&analysis.ID, &analysis.TenantID, &statementIDs, &metrics,
		&analysis.Score.Value, &riskLevel, &breakdown,
		&alerts, &summary, &analysis.Timestamp, &metadata,
	)
	if err != nil {
		return nil, err
	}

	analysis.Score.RiskLevel = domain.RiskLevel(riskLevel)
	json.Unmarshal([]byte(breakdown), &analysis.Score.FactorBreakdown)
	json.Unmarshal([]byte(statementIDs), &analysis.StatementIDs)
	json.Unmarshal([]byte(metrics), &analysis.Metrics)
	json.Unmarshal([]byte(alerts), &analysis.Alerts)
	json.Unmarshal([]byte(summary), &analysis.Summary)
	json.Unmarshal([]byte(metadata), &analysis.Metadata)

	return &analysis, nil
}

// SaveCustomRule stores a custom rule configuration with tenant
// isolation. Saving an existing (id, version) updates it in place.
func (r *SQLRepository) SaveCustomRule(ctx context.Context, tenantID string, rule *domain.CustomRuleConfig) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule with an ID is required", ErrInvalidInput)
	}

	bands, _ := json.Marshal(rule.Bands)

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO custom_rules (
			id, tenant_id, name, description, version, expression, bands, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			bands = excluded.bands,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Version, rule.Expression, string(bands), enabled,
		now, now,
	)
	return err
}

// GetCustomRule retrieves the latest enabled version of a rule with
// tenant isolation.
func (r *SQLRepository) GetCustomRule(ctx context.Context, tenantID string, ruleID string) (*domain.CustomRuleConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, bands, enabled
		FROM custom_rules
		WHERE tenant_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	var cfg domain.CustomRuleConfig
	var bands string
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID).Scan(
		&cfg.ID, &cfg.TenantID, &cfg.Name, &cfg.Description,
		&cfg.Version, &cfg.Expression, &bands, &enabled,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	cfg.Enabled = enabled == 1
	json.Unmarshal([]byte(bands), &cfg.Bands)

	return &cfg, nil
}

// ListCustomRules retrieves all enabled custom rules for a tenant.
func (r *SQLRepository) ListCustomRules(ctx context.Context, tenantID string) ([]*domain.CustomRuleConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, bands, enabled
		FROM custom_rules
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.CustomRuleConfig
	for rows.Next() {
		var cfg domain.CustomRuleConfig
		var bands string
		var enabled int

		if err := rows.Scan(
			&cfg.ID, &cfg.TenantID, &cfg.Name, &cfg.Description,
			&cfg.Version, &cfg.Expression, &bands, &enabled,
		); err != nil {
			return nil, err
		}

		cfg.Enabled = enabled == 1
		json.Unmarshal([]byte(bands), &cfg.Bands)
		configs = append(configs, &cfg)
	}

	return configs, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
