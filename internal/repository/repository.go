// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-compliance/gavel/internal/domain"
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

// SaveDocument stores a document and its extracted statements with tenant
// isolation. Statements are written once; re-saving a document replaces
// them wholesale.
func (r *SQLRepository) SaveDocument(ctx context.Context, tenantID string, doc *domain.Document) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO documents (id, tenant_id, name, source, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			source = excluded.source
	`
	if _, err := tx.ExecContext(ctx, r.rebind(query),
		doc.ID, tenantID, doc.Name, doc.Source, doc.CreatedAt,
	); err != nil {
		return err
	}

	del := `DELETE FROM statements WHERE tenant_id = ? AND document_id = ?`
	if _, err := tx.ExecContext(ctx, r.rebind(del), tenantID, doc.ID); err != nil {
		return err
	}

	ins := `
		INSERT INTO statements (id, tenant_id, document_id, section, content, tags, vals, parties)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, st := range doc.Statements {
		tags, _ := json.Marshal(st.Tags)
		vals, _ := json.Marshal(st.Values)
		parties, _ := json.Marshal(st.Parties)

		if _, err := tx.ExecContext(ctx, r.rebind(ins),
			st.ID, tenantID, doc.ID, st.Section, st.Content,
			string(tags), string(vals), string(parties),
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetDocument retrieves a document by ID with tenant isolation. Statements
// are loaded alongside.
func (r *SQLRepository) GetDocument(ctx context.Context, tenantID string, docID string) (*domain.Document, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, source, created_at
		FROM documents
		WHERE tenant_id = ? AND id = ?
	`

	var doc domain.Document
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, docID).Scan(
		&doc.ID, &doc.TenantID, &doc.Name, &doc.Source, &doc.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	doc.Statements, err = r.ListStatements(ctx, tenantID, docID)
	if err != nil {
		return nil, err
	}

	return &doc, nil
}

// ListStatements retrieves the statements of a document in stable order.
func (r *SQLRepository) ListStatements(ctx context.Context, tenantID string, docID string) ([]domain.Statement, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, document_id, section, content, tags, vals, parties
		FROM statements
		WHERE tenant_id = ? AND document_id = ?
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var statements []domain.Statement
	for rows.Next() {
		var st domain.Statement
		var tags, vals, parties string

		if err := rows.Scan(
			&st.ID, &st.DocumentID, &st.Section, &st.Content,
			&tags, &vals, &parties,
		); err != nil {
			return nil, err
		}

		json.Unmarshal([]byte(tags), &st.Tags)
		if vals != "" {
			json.Unmarshal([]byte(vals), &st.Values)
		}
		if parties != "" {
			json.Unmarshal([]byte(parties), &st.Parties)
		}

		statements = append(statements, st)
	}

	return statements, rows.Err()
}

// SaveRegulationVersion stores an immutable regulation version.
func (r *SQLRepository) SaveRegulationVersion(ctx context.Context, tenantID string, v *domain.RegulationVersion) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	requirements, _ := json.Marshal(v.Requirements)

	query := `
		INSERT INTO regulation_versions (
			id, tenant_id, jurisdiction_id, effective_at, published_at, superseded_by, requirements
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		v.ID, tenantID, v.JurisdictionID,
		v.EffectiveAt, v.PublishedAt, v.SupersededBy,
		string(requirements),
	)
	return err
}

// GetRegulationVersion retrieves a regulation version by ID with tenant isolation.
func (r *SQLRepository) GetRegulationVersion(ctx context.Context, tenantID string, versionID string) (*domain.RegulationVersion, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, jurisdiction_id, effective_at, published_at, superseded_by, requirements
		FROM regulation_versions
		WHERE tenant_id = ? AND id = ?
	`

	var v domain.RegulationVersion
	var requirements string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, versionID).Scan(
		&v.ID, &v.TenantID, &v.JurisdictionID,
		&v.EffectiveAt, &v.PublishedAt, &v.SupersededBy,
		&requirements,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(requirements), &v.Requirements); err != nil {
		return nil, fmt.Errorf("failed to parse requirements: %w", err)
	}

	return &v, nil
}

// ListRegulationVersions retrieves all versions for a jurisdiction, ordered
// by effective date.
func (r *SQLRepository) ListRegulationVersions(ctx context.Context, tenantID string, jurisdictionID string) ([]*domain.RegulationVersion, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, jurisdiction_id, effective_at, published_at, superseded_by, requirements
		FROM regulation_versions
		WHERE tenant_id = ? AND jurisdiction_id = ?
		ORDER BY effective_at
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, jurisdictionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []*domain.RegulationVersion
	for rows.Next() {
		var v domain.RegulationVersion
		var requirements string

		if err := rows.Scan(
			&v.ID, &v.TenantID, &v.JurisdictionID,
			&v.EffectiveAt, &v.PublishedAt, &v.SupersededBy,
			&requirements,
		); err != nil {
			return nil, err
		}

		if err := json.Unmarshal([]byte(requirements), &v.Requirements); err != nil {
			return nil, fmt.Errorf("failed to parse requirements for %s: %w", v.ID, err)
		}
		versions = append(versions, &v)
	}

	return versions, rows.Err()
}

// MarkSuperseded sets the superseded-by pointer on a version. One-way write;
// version content is never mutated.
func (r *SQLRepository) MarkSuperseded(ctx context.Context, tenantID string, versionID, supersededBy string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE regulation_versions
		SET superseded_by = ?
		WHERE tenant_id = ? AND id = ? AND superseded_by = ''
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), supersededBy, tenantID, versionID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// SaveRiskProfile stores a risk profile. Profiles are content-addressed, so
// re-saving an identical aggregate is a no-op.
func (r *SQLRepository) SaveRiskProfile(ctx context.Context, tenantID string, profile *domain.RiskProfile) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	documentIDs, _ := json.Marshal(profile.DocumentIDs)
	categoryScores, _ := json.Marshal(profile.CategoryScores)
	findings, _ := json.Marshal(profile.Findings)

	undetermined := 0
	if profile.Undetermined {
		undetermined = 1
	}

	query := `
		INSERT INTO risk_profiles (
			id, tenant_id, jurisdiction_id, regulation_version_id,
			document_ids, overall_score, category_scores, undetermined,
			findings, findings_evaluated, previous_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		profile.ID, tenantID, profile.JurisdictionID, profile.RegulationVersionID,
		string(documentIDs), profile.OverallScore, string(categoryScores), undetermined,
		string(findings), profile.FindingsEvaluated, profile.PreviousID,
		time.Now().UTC(),
	)
	return err
}

// GetRiskProfile retrieves a risk profile by ID with tenant isolation.
func (r *SQLRepository) GetRiskProfile(ctx context.Context, tenantID string, profileID string) (*domain.RiskProfile, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, jurisdiction_id, regulation_version_id,
			   document_ids, overall_score, category_scores, undetermined,
			   findings, findings_evaluated, previous_id
		FROM risk_profiles
		WHERE tenant_id = ? AND id = ?
	`

	profile, err := scanProfile(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, profileID))
	if err != nil {
		return nil, err
	}
	profile.TenantID = tenantID
	return profile, nil
}

// ListRiskProfilesByVersion retrieves the newest profile per document set
// scored against a regulation version. Drift evaluation fans out over these.
func (r *SQLRepository) ListRiskProfilesByVersion(ctx context.Context, tenantID string, regulationVersionID string) ([]*domain.RiskProfile, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, jurisdiction_id, regulation_version_id,
			   document_ids, overall_score, category_scores, undetermined,
			   findings, findings_evaluated, previous_id
		FROM risk_profiles
		WHERE tenant_id = ? AND regulation_version_id = ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, regulationVersionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*domain.RiskProfile
	seen := make(map[string]bool)
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		// Newest first; keep one profile per document set.
		key := fmt.Sprint(profile.DocumentIDs)
		if seen[key] {
			continue
		}
		seen[key] = true
		profile.TenantID = tenantID
		profiles = append(profiles, profile)
	}

	return profiles, rows.Err()
}

// LatestRiskProfile retrieves the most recent profile for a single document
// under a jurisdiction.
func (r *SQLRepository) LatestRiskProfile(ctx context.Context, tenantID string, docID, jurisdictionID string) (*domain.RiskProfile, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, jurisdiction_id, regulation_version_id,
			   document_ids, overall_score, category_scores, undetermined,
			   findings, findings_evaluated, previous_id
		FROM risk_profiles
		WHERE tenant_id = ? AND jurisdiction_id = ? AND document_ids = ?
		ORDER BY created_at DESC
		LIMIT 1
	`

	documentIDs, _ := json.Marshal([]string{docID})
	profile, err := scanProfile(r.db.QueryRowContext(ctx, r.rebind(query),
		tenantID, jurisdictionID, string(documentIDs)))
	if err != nil {
		return nil, err
	}
	profile.TenantID = tenantID
	return profile, nil
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(row scanner) (*domain.RiskProfile, error) {
	var p domain.RiskProfile
	var documentIDs, categoryScores, findings string
	var undetermined int

	err := row.Scan(
		&p.ID, &p.JurisdictionID, &p.RegulationVersionID,
		&documentIDs, &p.OverallScore, &categoryScores, &undetermined,
		&findings, &p.FindingsEvaluated, &p.PreviousID,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	p.Undetermined = undetermined == 1
	json.Unmarshal([]byte(documentIDs), &p.DocumentIDs)
	json.Unmarshal([]byte(categoryScores), &p.CategoryScores)
	json.Unmarshal([]byte(findings), &p.Findings)

	return &p, nil
}

// SaveDriftRecord stores a drift record with tenant isolation.
func (r *SQLRepository) SaveDriftRecord(ctx context.Context, tenantID string, rec *domain.DriftRecord) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	changed, _ := json.Marshal(rec.ChangedRequirements)

	projectedUndetermined := 0
	if rec.ProjectedUndetermined {
		projectedUndetermined = 1
	}

	query := `
		INSERT INTO drift_records (
			id, tenant_id, document_id, jurisdiction_id, profile_id,
			old_regulation_version_id, new_regulation_version_id,
			old_score, projected_score, projected_undetermined,
			magnitude, changed_requirements, status, created_at, archived_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rec.ID, tenantID, rec.DocumentID, rec.JurisdictionID, rec.ProfileID,
		rec.OldRegulationVersionID, rec.NewRegulationVersionID,
		rec.OldScore, rec.ProjectedScore, projectedUndetermined,
		rec.Magnitude, string(changed), string(rec.Status),
		rec.CreatedAt, rec.ArchivedAt,
	)
	return err
}

// ListOpenDriftRecords retrieves the unarchived drift records for a document.
func (r *SQLRepository) ListOpenDriftRecords(ctx context.Context, tenantID string, docID string) ([]*domain.DriftRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, document_id, jurisdiction_id, profile_id,
			   old_regulation_version_id, new_regulation_version_id,
			   old_score, projected_score, projected_undetermined,
			   magnitude, changed_requirements, status, created_at
		FROM drift_records
		WHERE tenant_id = ? AND document_id = ? AND archived_at IS NULL
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.DriftRecord
	for rows.Next() {
		var rec domain.DriftRecord
		var changed string
		var projectedUndetermined int

		if err := rows.Scan(
			&rec.ID, &rec.DocumentID, &rec.JurisdictionID, &rec.ProfileID,
			&rec.OldRegulationVersionID, &rec.NewRegulationVersionID,
			&rec.OldScore, &rec.ProjectedScore, &projectedUndetermined,
			&rec.Magnitude, &changed, &rec.Status, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}

		rec.TenantID = tenantID
		rec.ProjectedUndetermined = projectedUndetermined == 1
		json.Unmarshal([]byte(changed), &rec.ChangedRequirements)
		records = append(records, &rec)
	}

	return records, rows.Err()
}

// ArchiveDriftRecord stamps the archive time on a drift record. One-way
// write; the record itself is never deleted.
func (r *SQLRepository) ArchiveDriftRecord(ctx context.Context, tenantID string, recordID string, at time.Time) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE drift_records
		SET archived_at = ?
		WHERE tenant_id = ? AND id = ? AND archived_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), at, tenantID, recordID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// SaveAttestation stores an issued attestation with tenant isolation.
func (r *SQLRepository) SaveAttestation(ctx context.Context, tenantID string, att *domain.ComplianceAttestation) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO attestations (
			id, tenant_id, profile_id, regulation_version_id,
			score_bucket, content_hash, issued_at, expires_at, signature
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		att.ID, tenantID, att.ProfileID, att.RegulationVersionID,
		att.ScoreBucket, att.ContentHash, att.IssuedAt, att.ExpiresAt, att.Signature,
	)
	return err
}

// GetAttestation retrieves an attestation by ID with tenant isolation.
func (r *SQLRepository) GetAttestation(ctx context.Context, tenantID string, attID string) (*domain.ComplianceAttestation, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, profile_id, regulation_version_id,
			   score_bucket, content_hash, issued_at, expires_at, signature
		FROM attestations
		WHERE tenant_id = ? AND id = ?
	`

	var att domain.ComplianceAttestation
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, attID).Scan(
		&att.ID, &att.ProfileID, &att.RegulationVersionID,
		&att.ScoreBucket, &att.ContentHash, &att.IssuedAt, &att.ExpiresAt, &att.Signature,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	att.TenantID = tenantID
	return &att, nil
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

	// Convert ? to $1, $2, etc.
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
