package domain

import "time"

// DriftStatus grades how much exposure changed when a newer regulation
// version was published. Thresholds are configuration, not law.
type DriftStatus string

const (
	DriftStatusCritical DriftStatus = "critical"
	DriftStatusWarning  DriftStatus = "warning"
	DriftStatusOK       DriftStatus = "ok"
)

// DriftState tracks whether a (document, jurisdiction) pair is scored
// against the active regulation version.
type DriftState string

const (
	// DriftStateCurrent: scored against the active version.
	DriftStateCurrent DriftState = "current"

	// DriftStateStale: a newer version exists and its diff is non-empty.
	DriftStateStale DriftState = "stale"
)

// DriftRecord links a risk profile to a newer regulation version it has not
// yet been scored against. Created on catalog publish, archived (never
// deleted) when the document is re-scored.
type DriftRecord struct {
	ID             string `json:"id"`
	TenantID       string `json:"tenantId,omitempty"`
	DocumentID     string `json:"documentId"`
	JurisdictionID string `json:"jurisdictionId"`
	ProfileID      string `json:"profileId"`

	OldRegulationVersionID string `json:"oldRegulationVersionId"`
	NewRegulationVersionID string `json:"newRegulationVersionId"`

	OldScore       float64 `json:"oldScore"`
	ProjectedScore float64 `json:"projectedScore"`

	// ProjectedUndetermined is set when the projection evaluated no
	// requirements at all, so the projected score must be read as
	// "undetermined", not as compliant.
	ProjectedUndetermined bool `json:"projectedUndetermined,omitempty"`

	// Magnitude = |oldScore - projectedScore| / 100, in [0,1].
	Magnitude float64 `json:"magnitude"`

	// ChangedRequirements lists the requirement ids that were added,
	// removed, or modified between the two versions.
	ChangedRequirements []string `json:"changedRequirements"`

	Status     DriftStatus `json:"status"`
	CreatedAt  time.Time   `json:"createdAt"`
	ArchivedAt *time.Time  `json:"archivedAt,omitempty"`
}

// DriftAlert is the event payload emitted for critical and warning drift
// transitions. The engine does not render or deliver notifications itself.
type DriftAlert struct {
	DocumentID     string      `json:"documentId"`
	JurisdictionID string      `json:"jurisdictionId"`
	Status         DriftStatus `json:"status"`
	Magnitude      float64     `json:"magnitude"`
}

// DriftThresholds maps drift magnitude to status. Magnitudes at or above
// Critical grade critical, at or above Warning grade warning, else ok.
type DriftThresholds struct {
	Critical float64 `json:"critical"`
	Warning  float64 `json:"warning"`
}

// DefaultDriftThresholds returns the default grading policy.
func DefaultDriftThresholds() DriftThresholds {
	return DriftThresholds{Critical: 0.60, Warning: 0.30}
}

// Grade returns the status for a drift magnitude.
func (t DriftThresholds) Grade(magnitude float64) DriftStatus {
	switch {
	case magnitude >= t.Critical:
		return DriftStatusCritical
	case magnitude >= t.Warning:
		return DriftStatusWarning
	default:
		return DriftStatusOK
	}
}
