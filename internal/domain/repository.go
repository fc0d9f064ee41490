// Package domain defines the core types and interface contracts for Gavel.
package domain

import (
	"context"
	"time"
)

// Repository defines the persistence contract. Regulation versions, risk
// profiles, drift records, and attestations are append-only records keyed
// by UUID; no update-in-place operation is exposed to callers (archiving a
// drift record and superseding a regulation version are one-way pointer
// writes, never content mutation).
//
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Document and statement operations. Statements are written once with
	// their document and are immutable thereafter.
	SaveDocument(ctx context.Context, tenantID string, doc *Document) error
	GetDocument(ctx context.Context, tenantID string, docID string) (*Document, error)
	ListStatements(ctx context.Context, tenantID string, docID string) ([]Statement, error)

	// Regulation version operations.
	SaveRegulationVersion(ctx context.Context, tenantID string, v *RegulationVersion) error
	GetRegulationVersion(ctx context.Context, tenantID string, versionID string) (*RegulationVersion, error)
	ListRegulationVersions(ctx context.Context, tenantID string, jurisdictionID string) ([]*RegulationVersion, error)
	MarkSuperseded(ctx context.Context, tenantID string, versionID, supersededBy string) error

	// Risk profile operations.
	SaveRiskProfile(ctx context.Context, tenantID string, profile *RiskProfile) error
	GetRiskProfile(ctx context.Context, tenantID string, profileID string) (*RiskProfile, error)
	ListRiskProfilesByVersion(ctx context.Context, tenantID string, regulationVersionID string) ([]*RiskProfile, error)
	LatestRiskProfile(ctx context.Context, tenantID string, docID, jurisdictionID string) (*RiskProfile, error)

	// Drift record operations.
	SaveDriftRecord(ctx context.Context, tenantID string, rec *DriftRecord) error
	ListOpenDriftRecords(ctx context.Context, tenantID string, docID string) ([]*DriftRecord, error)
	ArchiveDriftRecord(ctx context.Context, tenantID string, recordID string, at time.Time) error

	// Attestation operations.
	SaveAttestation(ctx context.Context, tenantID string, att *ComplianceAttestation) error
	GetAttestation(ctx context.Context, tenantID string, attID string) (*ComplianceAttestation, error)

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
