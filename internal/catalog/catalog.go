// Package catalog holds versioned jurisdiction rule sets and the active
// version index.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-compliance/gavel/internal/domain"
	"github.com/opensource-compliance/gavel/internal/scoring"
)

// activeVersionTTL bounds how long cached active-version lookups live.
const activeVersionTTL = 5 * time.Minute

// Catalog owns the versioned regulation index for every jurisdiction.
// Versions are immutable once published; the index is read-mostly, and a
// publish only swaps the per-jurisdiction version list under the lock.
type Catalog struct {
	mu    sync.RWMutex
	index map[string][]*domain.RegulationVersion // tenant:jurisdiction -> versions sorted by effective date

	engine *scoring.Engine
	repo   domain.Repository
	bus    domain.EventBus
	cache  domain.Cache
}

// New creates a catalog. repo, bus, and cache may be nil in embedded use;
// the engine is required for predicate validation at publish time.
func New(engine *scoring.Engine, repo domain.Repository, bus domain.EventBus, cache domain.Cache) *Catalog {
	return &Catalog{
		index:  make(map[string][]*domain.RegulationVersion),
		engine: engine,
		repo:   repo,
		bus:    bus,
		cache:  cache,
	}
}

// Load warms the index from persisted versions for a tenant's
// jurisdictions. Called at startup.
func (c *Catalog) Load(ctx context.Context, tenantID string, jurisdictionIDs []string) error {
	if c.repo == nil {
		return nil
	}

	for _, jID := range jurisdictionIDs {
		versions, err := c.repo.ListRegulationVersions(ctx, tenantID, jID)
		if err != nil {
			return fmt.Errorf("failed to load versions for jurisdiction %s: %w", jID, err)
		}
		sort.Slice(versions, func(i, j int) bool {
			return versions[i].EffectiveAt.Before(versions[j].EffectiveAt)
		})

		c.mu.Lock()
		c.index[c.key(tenantID, jID)] = versions
		c.mu.Unlock()

		slog.Info("catalog loaded",
			"tenant_id", tenantID,
			"jurisdiction", jID,
			"versions", len(versions),
		)
	}
	return nil
}

// Publish creates an immutable new regulation version. Validation happens
// before anything becomes visible: a malformed predicate or an
// out-of-range severity weight rejects the whole publish, never a partial
// one. On success the active index is swapped and a catalog.published
// event (carrying the structural diff) fans out to the drift worker.
func (c *Catalog) Publish(ctx context.Context, tenantID, jurisdictionID string, effectiveAt time.Time, requirements []domain.Requirement) (*domain.RegulationVersion, error) {
	if err := c.validate(requirements); err != nil {
		return nil, err
	}

	version := &domain.RegulationVersion{
		ID:             uuid.New().String(),
		TenantID:       tenantID,
		JurisdictionID: jurisdictionID,
		EffectiveAt:    effectiveAt.UTC(),
		PublishedAt:    time.Now().UTC(),
		Requirements:   requirements,
	}

	key := c.key(tenantID, jurisdictionID)

	// Persist before the index swap. A failed write must leave the
	// previously active version serving; the new one never becomes visible.
	if c.repo != nil {
		if err := c.repo.SaveRegulationVersion(ctx, tenantID, version); err != nil {
			return nil, fmt.Errorf("failed to persist regulation version: %w", err)
		}
	}

	c.mu.Lock()
	versions := c.index[key]
	var prior *domain.RegulationVersion
	if len(versions) > 0 {
		prior = versions[len(versions)-1]
	}

	next := make([]*domain.RegulationVersion, len(versions), len(versions)+1)
	copy(next, versions)
	next = append(next, version)
	sort.Slice(next, func(i, j int) bool {
		return next[i].EffectiveAt.Before(next[j].EffectiveAt)
	})
	c.index[key] = next

	if prior != nil {
		prior.SupersededBy = version.ID
	}
	c.mu.Unlock()

	if c.repo != nil && prior != nil {
		if err := c.repo.MarkSuperseded(ctx, tenantID, prior.ID, version.ID); err != nil {
			slog.Error("failed to mark version superseded",
				"version_id", prior.ID,
				"error", err,
			)
		}
	}

	if c.cache != nil {
		// Drop the cached active pointer; the next lookup re-resolves.
		_ = c.cache.Delete(ctx, tenantID, "active-version:"+jurisdictionID)
		if n, err := c.cache.IncrementCounter(ctx, tenantID, "publishes:"+jurisdictionID, time.Hour); err == nil {
			slog.Debug("catalog publish tempo",
				"jurisdiction", jurisdictionID,
				"publishes_last_hour", n,
			)
		}
	}

	diff := domain.CatalogDiff{Added: requirements}
	oldVersionID := ""
	if prior != nil {
		diff = Diff(prior, version)
		oldVersionID = prior.ID
	}

	if c.bus != nil {
		event := domain.CatalogPublishedEvent{
			TenantID:       tenantID,
			JurisdictionID: jurisdictionID,
			OldVersionID:   oldVersionID,
			NewVersionID:   version.ID,
			Diff:           diff,
		}
		if err := c.bus.Publish(ctx, tenantID, domain.TopicCatalogPublished, event); err != nil {
			slog.Error("failed to publish catalog event",
				"jurisdiction", jurisdictionID,
				"version_id", version.ID,
				"error", err,
			)
		}
	}

	slog.Info("regulation published",
		"tenant_id", tenantID,
		"jurisdiction", jurisdictionID,
		"version_id", version.ID,
		"requirements", len(requirements),
		"diff_added", len(diff.Added),
		"diff_removed", len(diff.Removed),
		"diff_modified", len(diff.Modified),
	)

	return version, nil
}

// validate checks every requirement before a publish becomes visible.
func (c *Catalog) validate(requirements []domain.Requirement) error {
	if len(requirements) == 0 {
		return &domain.ValidationError{Reason: "a regulation version must contain at least one requirement"}
	}

	var bad []string
	var reasons []string
	seen := map[string]bool{}

	for _, req := range requirements {
		switch {
		case req.ID == "":
			bad = append(bad, "(missing id)")
			reasons = append(reasons, "requirement id is required")
		case seen[req.ID]:
			bad = append(bad, req.ID)
			reasons = append(reasons, "duplicate requirement id")
		case req.Category == "":
			bad = append(bad, req.ID)
			reasons = append(reasons, "category is required")
		// Zero weight is rejected: a violated weight-0 requirement would
		// contribute nothing, letting a non-compliant profile score 100.
		case req.SeverityWeight <= 0 || req.SeverityWeight > 10:
			bad = append(bad, req.ID)
			reasons = append(reasons, fmt.Sprintf("severityWeight %.2f out of (0,10]", req.SeverityWeight))
		default:
			if err := c.engine.CompilePredicate(req.Predicate); err != nil {
				bad = append(bad, req.ID)
				reasons = append(reasons, fmt.Sprintf("malformed predicate: %v", err))
			}
		}
		seen[req.ID] = true
	}

	if len(bad) > 0 {
		return &domain.ValidationError{
			RequirementIDs: bad,
			Reason:         reasons[0],
		}
	}
	return nil
}

// ActiveVersion returns the version whose effective date is the latest one
// at or before asOf. The cached active pointer fronts the lookup: when it
// names a version this instance has not indexed yet (a publish that went
// through another instance), the jurisdiction is reloaded from the
// repository before resolving.
func (c *Catalog) ActiveVersion(ctx context.Context, tenantID, jurisdictionID string, asOf time.Time) (*domain.RegulationVersion, error) {
	if c.cache != nil && c.repo != nil {
		id, err := c.cache.GetActiveVersionID(ctx, tenantID, jurisdictionID)
		if err == nil && id != "" && !c.indexed(tenantID, jurisdictionID, id) {
			if err := c.Load(ctx, tenantID, []string{jurisdictionID}); err != nil {
				slog.Warn("failed to reload jurisdiction after remote publish",
					"jurisdiction", jurisdictionID,
					"error", err,
				)
			}
		}
	}

	c.mu.RLock()
	versions := c.index[c.key(tenantID, jurisdictionID)]
	var active *domain.RegulationVersion
	for _, v := range versions {
		if !v.EffectiveAt.After(asOf) {
			active = v
		}
	}
	isLatest := active != nil && active == versions[len(versions)-1]
	c.mu.RUnlock()

	if active == nil {
		return nil, &domain.NotFoundError{
			Resource: "active regulation version",
			Key:      fmt.Sprintf("%s as of %s", jurisdictionID, asOf.UTC().Format(time.RFC3339)),
		}
	}

	// Only the current latest version is a valid pointer value; a
	// historical asOf query must not poison the cache for "now" readers.
	if c.cache != nil && isLatest {
		_ = c.cache.SetActiveVersionID(ctx, tenantID, jurisdictionID, active.ID, activeVersionTTL)
	}

	return active, nil
}

// indexed reports whether a version id is present in the in-memory index
// for a jurisdiction.
func (c *Catalog) indexed(tenantID, jurisdictionID, versionID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, v := range c.index[c.key(tenantID, jurisdictionID)] {
		if v.ID == versionID {
			return true
		}
	}
	return false
}

// Version resolves a regulation version by id, checking the in-memory
// index before falling back to the repository.
func (c *Catalog) Version(ctx context.Context, tenantID, versionID string) (*domain.RegulationVersion, error) {
	c.mu.RLock()
	for _, versions := range c.index {
		for _, v := range versions {
			if v.ID == versionID && v.TenantID == tenantID {
				c.mu.RUnlock()
				return v, nil
			}
		}
	}
	c.mu.RUnlock()

	if c.repo != nil {
		return c.repo.GetRegulationVersion(ctx, tenantID, versionID)
	}
	return nil, &domain.NotFoundError{Resource: "regulation version", Key: versionID}
}

// Diff structurally compares two regulation versions. Requirements are
// matched by id; a requirement is modified when its predicate or severity
// weight differs. Pure function, no catalog state involved.
func Diff(old, new *domain.RegulationVersion) domain.CatalogDiff {
	var diff domain.CatalogDiff

	oldByID := make(map[string]domain.Requirement, len(old.Requirements))
	for _, r := range old.Requirements {
		oldByID[r.ID] = r
	}

	newIDs := make(map[string]bool, len(new.Requirements))
	for _, r := range new.Requirements {
		newIDs[r.ID] = true
		prev, existed := oldByID[r.ID]
		switch {
		case !existed:
			diff.Added = append(diff.Added, r)
		case prev.Predicate != r.Predicate || prev.SeverityWeight != r.SeverityWeight:
			diff.Modified = append(diff.Modified, r)
		}
	}

	for _, r := range old.Requirements {
		if !newIDs[r.ID] {
			diff.Removed = append(diff.Removed, r)
		}
	}

	return diff
}

func (c *Catalog) key(tenantID, jurisdictionID string) string {
	return tenantID + ":" + jurisdictionID
}

// Jurisdictions returns the jurisdiction ids currently indexed for a
// tenant, sorted.
func (c *Catalog) Jurisdictions(tenantID string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	prefix := tenantID + ":"
	var out []string
	for key := range c.index {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			out = append(out, key[len(prefix):])
		}
	}
	sort.Strings(out)
	return out
}
