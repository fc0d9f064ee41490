// Package drift tracks how risk profiles decay as regulation changes.
package drift

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/opensource-compliance/gavel/internal/aggregate"
	"github.com/opensource-compliance/gavel/internal/domain"
	"github.com/opensource-compliance/gavel/internal/scoring"
)

// Tracker runs the per-(document, jurisdiction) drift state machine:
// current -> stale on a non-empty catalog publish, stale -> current when
// the document is explicitly re-scored.
type Tracker struct {
	mu     sync.RWMutex
	states map[string]domain.DriftState // tenant:document:jurisdiction

	engine *scoring.Engine
	repo   domain.Repository
	bus    domain.EventBus
	cfg    domain.DriftConfig
}

// NewTracker creates a drift tracker.
func NewTracker(engine *scoring.Engine, repo domain.Repository, bus domain.EventBus, cfg domain.DriftConfig) *Tracker {
	if cfg.Thresholds.Critical == 0 && cfg.Thresholds.Warning == 0 {
		cfg.Thresholds = domain.DefaultDriftThresholds()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}
	return &Tracker{
		states: make(map[string]domain.DriftState),
		engine: engine,
		repo:   repo,
		bus:    bus,
		cfg:    cfg,
	}
}

// Evaluate projects a previously computed profile onto a newer regulation
// version without re-extraction: findings for removed or modified
// requirements are dropped from the projection, and the document's
// existing statements are re-scored against only the added and modified
// requirements. Returns nil for an empty diff — a no-op publish never
// produces drift.
func (t *Tracker) Evaluate(ctx context.Context, tenantID string, profile *domain.RiskProfile, newVersion *domain.RegulationVersion, diff domain.CatalogDiff, statements []domain.Statement) (*domain.DriftRecord, error) {
	if diff.Empty() {
		return nil, nil
	}

	changed := make(map[string]bool)
	for _, r := range diff.Removed {
		changed[r.ID] = true
	}
	for _, r := range diff.Modified {
		changed[r.ID] = true
	}

	// Findings whose requirement is untouched survive as-is.
	var kept []domain.Finding
	for _, f := range profile.Findings {
		if !changed[f.RequirementID] {
			kept = append(kept, f)
		}
	}

	rescoreReqs := make([]domain.Requirement, 0, len(diff.Added)+len(diff.Modified))
	rescoreReqs = append(rescoreReqs, diff.Added...)
	rescoreReqs = append(rescoreReqs, diff.Modified...)

	fresh, err := t.engine.Score(ctx, statements, rescoreReqs)
	if err != nil {
		return nil, fmt.Errorf("drift projection scoring failed: %w", err)
	}

	projection := aggregate.Aggregate(append(kept, fresh...),
		profile.JurisdictionID, newVersion.ID, &aggregate.Options{PreviousID: profile.ID})

	projectedScore := projection.OverallScore
	if projection.Undetermined {
		// Nothing evaluable remains. Surface as undetermined, never as a
		// silent 100.
		projectedScore = 100
	}

	record := &domain.DriftRecord{
		ID:                     uuid.New().String(),
		TenantID:               tenantID,
		DocumentID:             primaryDocument(profile),
		JurisdictionID:         profile.JurisdictionID,
		ProfileID:              profile.ID,
		OldRegulationVersionID: profile.RegulationVersionID,
		NewRegulationVersionID: newVersion.ID,
		OldScore:               profile.OverallScore,
		ProjectedScore:         projectedScore,
		ProjectedUndetermined:  projection.Undetermined,
		Magnitude:              math.Abs(profile.OverallScore-projectedScore) / 100,
		ChangedRequirements:    diff.ChangedIDs(),
		CreatedAt:              time.Now().UTC(),
	}
	record.Status = t.cfg.Thresholds.Grade(record.Magnitude)

	t.setState(tenantID, record.DocumentID, record.JurisdictionID, domain.DriftStateStale)

	if t.repo != nil {
		if err := t.repo.SaveDriftRecord(ctx, tenantID, record); err != nil {
			slog.Error("failed to save drift record",
				"document_id", record.DocumentID,
				"error", err,
			)
		}
	}

	if record.Status != domain.DriftStatusOK && t.bus != nil {
		alert := domain.DriftAlert{
			DocumentID:     record.DocumentID,
			JurisdictionID: record.JurisdictionID,
			Status:         record.Status,
			Magnitude:      record.Magnitude,
		}
		if err := t.bus.Publish(ctx, tenantID, domain.TopicDriftAlert, alert); err != nil {
			slog.Error("failed to publish drift alert",
				"document_id", record.DocumentID,
				"error", err,
			)
		}
	}

	slog.Info("drift evaluated",
		"tenant_id", tenantID,
		"document_id", record.DocumentID,
		"jurisdiction", record.JurisdictionID,
		"old_score", record.OldScore,
		"projected_score", record.ProjectedScore,
		"magnitude", record.Magnitude,
		"status", record.Status,
	)

	return record, nil
}

// EvaluateAll fans drift projection out across every affected profile with
// bounded concurrency. Cancellation propagates to in-flight projections;
// a cancelled fan-out returns promptly without leaking workers.
func (t *Tracker) EvaluateAll(ctx context.Context, tenantID string, profiles []*domain.RiskProfile, newVersion *domain.RegulationVersion, diff domain.CatalogDiff) ([]*domain.DriftRecord, error) {
	if diff.Empty() || len(profiles) == 0 {
		return nil, nil
	}

	records := make([]*domain.DriftRecord, len(profiles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.MaxConcurrent)

	for i, profile := range profiles {
		g.Go(func() error {
			statements, err := t.loadStatements(gctx, tenantID, profile)
			if err != nil {
				return err
			}
			rec, err := t.Evaluate(gctx, tenantID, profile, newVersion, diff, statements)
			if err != nil {
				return err
			}
			records[i] = rec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := records[:0]
	for _, r := range records {
		if r != nil {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *Tracker) loadStatements(ctx context.Context, tenantID string, profile *domain.RiskProfile) ([]domain.Statement, error) {
	if t.repo == nil {
		return nil, nil
	}
	var statements []domain.Statement
	for _, docID := range profile.DocumentIDs {
		s, err := t.repo.ListStatements(ctx, tenantID, docID)
		if err != nil {
			return nil, fmt.Errorf("failed to load statements for document %s: %w", docID, err)
		}
		statements = append(statements, s...)
	}
	return statements, nil
}

// MarkRescored completes the stale -> current transition after a document
// has been re-scored end-to-end. Open drift records are archived for the
// audit trail, never deleted.
func (t *Tracker) MarkRescored(ctx context.Context, tenantID, docID, jurisdictionID string) error {
	t.setState(tenantID, docID, jurisdictionID, domain.DriftStateCurrent)

	if t.repo == nil {
		return nil
	}

	open, err := t.repo.ListOpenDriftRecords(ctx, tenantID, docID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, rec := range open {
		if rec.JurisdictionID != jurisdictionID {
			continue
		}
		if err := t.repo.ArchiveDriftRecord(ctx, tenantID, rec.ID, now); err != nil {
			return fmt.Errorf("failed to archive drift record %s: %w", rec.ID, err)
		}
	}

	slog.Info("document rescored",
		"tenant_id", tenantID,
		"document_id", docID,
		"jurisdiction", jurisdictionID,
		"archived_records", len(open),
	)
	return nil
}

// State reports the drift state for a (document, jurisdiction) pair.
// Pairs never seen are current.
func (t *Tracker) State(tenantID, docID, jurisdictionID string) domain.DriftState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, ok := t.states[t.key(tenantID, docID, jurisdictionID)]; ok {
		return s
	}
	return domain.DriftStateCurrent
}

func (t *Tracker) setState(tenantID, docID, jurisdictionID string, state domain.DriftState) {
	t.mu.Lock()
	t.states[t.key(tenantID, docID, jurisdictionID)] = state
	t.mu.Unlock()
}

func (t *Tracker) key(tenantID, docID, jurisdictionID string) string {
	return tenantID + ":" + docID + ":" + jurisdictionID
}

// primaryDocument returns the profile's document id; portfolio profiles
// record drift under their first member.
func primaryDocument(profile *domain.RiskProfile) string {
	if len(profile.DocumentIDs) > 0 {
		return profile.DocumentIDs[0]
	}
	return ""
}
