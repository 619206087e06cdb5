package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaRulesets = `
CREATE TABLE IF NOT EXISTS rulesets (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    domain TEXT NOT NULL,
    jurisdiction TEXT NOT NULL,
    rulebook_version TEXT NOT NULL,
    ruleset_version TEXT NOT NULL,
    status TEXT NOT NULL,
    rules TEXT NOT NULL,
    published_at TIMESTAMP,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rulesets_tenant ON rulesets(tenant_id);
CREATE INDEX IF NOT EXISTS idx_rulesets_scope ON rulesets(tenant_id, domain, jurisdiction);
CREATE INDEX IF NOT EXISTS idx_rulesets_status ON rulesets(tenant_id, domain, jurisdiction, status);
`

const schemaReports = `
CREATE TABLE IF NOT EXISTS validation_reports (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    document_type TEXT NOT NULL,
    domain TEXT NOT NULL,
    jurisdiction TEXT NOT NULL,
    ruleset_version TEXT NOT NULL,
    status TEXT NOT NULL,
    score REAL NOT NULL,
    violations TEXT NOT NULL,
    errors TEXT,
    evaluated_at TIMESTAMP NOT NULL,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reports_tenant ON validation_reports(tenant_id);
CREATE INDEX IF NOT EXISTS idx_reports_status ON validation_reports(tenant_id, status);
CREATE INDEX IF NOT EXISTS idx_reports_evaluated ON validation_reports(tenant_id, evaluated_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaRulesets,
		schemaReports,
	}
}
