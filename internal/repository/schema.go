package repository

// Schema definitions for the Gavel database.
// Compatible with both SQLite and PostgreSQL.

const schemaDocuments = `
CREATE TABLE IF NOT EXISTS documents (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    source TEXT,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_documents_tenant ON documents(tenant_id);
`

const schemaStatements = `
CREATE TABLE IF NOT EXISTS statements (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    document_id TEXT NOT NULL,
    section TEXT,
    content TEXT NOT NULL,
    tags TEXT NOT NULL,
    vals TEXT,
    parties TEXT,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_statements_document ON statements(tenant_id, document_id);
`

const schemaRegulationVersions = `
CREATE TABLE IF NOT EXISTS regulation_versions (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    jurisdiction_id TEXT NOT NULL,
    effective_at TIMESTAMP NOT NULL,
    published_at TIMESTAMP NOT NULL,
    superseded_by TEXT NOT NULL DEFAULT '',
    requirements TEXT NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_regulation_versions_jurisdiction
    ON regulation_versions(tenant_id, jurisdiction_id, effective_at);
`

const schemaRiskProfiles = `
CREATE TABLE IF NOT EXISTS risk_profiles (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    jurisdiction_id TEXT NOT NULL,
    regulation_version_id TEXT NOT NULL,
    document_ids TEXT NOT NULL,
    overall_score REAL NOT NULL,
    category_scores TEXT NOT NULL,
    undetermined INTEGER NOT NULL DEFAULT 0,
    findings TEXT NOT NULL,
    findings_evaluated REAL NOT NULL DEFAULT 0,
    previous_id TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_risk_profiles_version ON risk_profiles(tenant_id, regulation_version_id);
CREATE INDEX IF NOT EXISTS idx_risk_profiles_created ON risk_profiles(tenant_id, created_at);
`

const schemaDriftRecords = `
CREATE TABLE IF NOT EXISTS drift_records (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    document_id TEXT NOT NULL,
    jurisdiction_id TEXT NOT NULL,
    profile_id TEXT NOT NULL,
    old_regulation_version_id TEXT NOT NULL,
    new_regulation_version_id TEXT NOT NULL,
    old_score REAL NOT NULL,
    projected_score REAL NOT NULL,
    projected_undetermined INTEGER NOT NULL DEFAULT 0,
    magnitude REAL NOT NULL,
    changed_requirements TEXT NOT NULL,
    status TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    archived_at TIMESTAMP,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_drift_records_document ON drift_records(tenant_id, document_id);
CREATE INDEX IF NOT EXISTS idx_drift_records_status ON drift_records(tenant_id, status);
`

const schemaAttestations = `
CREATE TABLE IF NOT EXISTS attestations (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    profile_id TEXT NOT NULL,
    regulation_version_id TEXT NOT NULL,
    score_bucket TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    issued_at TIMESTAMP NOT NULL,
    expires_at TIMESTAMP NOT NULL,
    signature TEXT NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_attestations_profile ON attestations(tenant_id, profile_id);
CREATE INDEX IF NOT EXISTS idx_attestations_expiry ON attestations(tenant_id, expires_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaDocuments,
		schemaStatements,
		schemaRegulationVersions,
		schemaRiskProfiles,
		schemaDriftRecords,
		schemaAttestations,
	}
}
