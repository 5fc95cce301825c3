package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Statement operations
	SaveStatement(ctx context.Context, tenantID string, st *Statement) error
	GetStatement(ctx context.Context, tenantID string, statementID string) (*Statement, error)

	// Analysis results
	SaveAnalysis(ctx context.Context, tenantID string, analysis *Analysis) error
	GetAnalysis(ctx context.Context, tenantID string, analysisID string) (*Analysis, error)
	ListAnalyses(ctx context.Context, tenantID string, since time.Time) ([]*Analysis, error)

	// Custom rule configuration operations
	SaveCustomRule(ctx context.Context, tenantID string, rule *CustomRuleConfig) error
	GetCustomRule(ctx context.Context, tenantID string, ruleID string) (*CustomRuleConfig, error)
	ListCustomRules(ctx context.Context, tenantID string) ([]*CustomRuleConfig, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
