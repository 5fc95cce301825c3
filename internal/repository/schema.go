package repository

// Schema definitions for the Veritas database.
// Compatible with both SQLite and PostgreSQL.

const schemaStatements = `
CREATE TABLE IF NOT EXISTS statements (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    account_name TEXT,
    opening_balance REAL NOT NULL,
    transactions TEXT NOT NULL,
    flagged_negative INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_statements_tenant ON statements(tenant_id);
CREATE INDEX IF NOT EXISTS idx_statements_created ON statements(tenant_id, created_at);
`

const schemaAnalyses = `
CREATE TABLE IF NOT EXISTS analyses (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    statement_ids TEXT NOT NULL,
    metrics TEXT NOT NULL,
    score REAL NOT NULL,
    risk_level TEXT NOT NULL,
    factor_breakdown TEXT NOT NULL DEFAULT '{}',
    alerts TEXT NOT NULL,
    summary TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    metadata TEXT NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_analyses_tenant ON analyses(tenant_id);
CREATE INDEX IF NOT EXISTS idx_analyses_timestamp ON analyses(tenant_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_analyses_risk ON analyses(tenant_id, risk_level);
`

const schemaCustomRules = `
CREATE TABLE IF NOT EXISTS custom_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    bands TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_custom_rules_tenant ON custom_rules(tenant_id);
CREATE INDEX IF NOT EXISTS idx_custom_rules_enabled ON custom_rules(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaStatements,
		schemaAnalyses,
		schemaCustomRules,
	}
}
