package domain

import (
	"sort"
	"time"
)

// Jurisdiction identifies a body of regulation (e.g. "EU", "US-CA").
// Its versions are ordered by effective date and immutable once published;
// a regulatory change always produces a new RegulationVersion.
type Jurisdiction struct {
	ID       string               `json:"id"`
	Name     string               `json:"name"`
	Versions []*RegulationVersion `json:"versions,omitempty"`
}

// RegulationVersion is an immutable snapshot of a jurisdiction's rule set.
type RegulationVersion struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenantId,omitempty"`
	JurisdictionID string    `json:"jurisdictionId"`
	EffectiveAt    time.Time `json:"effectiveAt"`
	PublishedAt    time.Time `json:"publishedAt"`

	// SupersededBy points at the version that replaced this one.
	// Weak reference; empty while this is the newest version.
	SupersededBy string `json:"supersededBy,omitempty"`

	Requirements []Requirement `json:"requirements"`
}

// Requirement is one atomic, independently testable rule.
type Requirement struct {
	ID          string `json:"id"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`

	// Predicate is a CEL expression over statement attributes.
	// Evaluation must be a pure function of the statement.
	Predicate string `json:"predicate"`

	// SeverityWeight in (0,10], used as the risk contribution of a violation.
	SeverityWeight float64 `json:"severityWeight"`
}

// RequirementByID returns the requirement with the given id, if present.
func (v *RegulationVersion) RequirementByID(id string) (Requirement, bool) {
	for _, r := range v.Requirements {
		if r.ID == id {
			return r, true
		}
	}
	return Requirement{}, false
}

// CatalogDiff is the structural comparison of two regulation versions.
// Requirements are matched by id; a requirement is modified when its
// predicate or severity weight differs.
type CatalogDiff struct {
	Added    []Requirement `json:"added"`
	Removed  []Requirement `json:"removed"`
	Modified []Requirement `json:"modified"`
}

// Empty reports whether the diff contains no changes.
func (d CatalogDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

// ChangedIDs returns the sorted ids of every added, removed, or modified
// requirement.
func (d CatalogDiff) ChangedIDs() []string {
	ids := make([]string, 0, len(d.Added)+len(d.Removed)+len(d.Modified))
	for _, r := range d.Added {
		ids = append(ids, r.ID)
	}
	for _, r := range d.Removed {
		ids = append(ids, r.ID)
	}
	for _, r := range d.Modified {
		ids = append(ids, r.ID)
	}
	sort.Strings(ids)
	return ids
}
