package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// RiskProfile is a point-in-time aggregate over one document (or a
// portfolio of documents) for one regulation version. It is never mutated;
// recomputation produces a new profile linked to the previous one.
//
// The profile's ID is content-derived: aggregating the same finding set
// twice yields a bit-identical profile, which keeps the proof commitment
// stable.
type RiskProfile struct {
	ID                  string `json:"id"`
	TenantID            string `json:"tenantId,omitempty"`
	JurisdictionID      string `json:"jurisdictionId"`
	RegulationVersionID string `json:"regulationVersionId"`

	// DocumentIDs are sorted; a single-document profile has one entry.
	DocumentIDs []string `json:"documentIds"`

	// OverallScore is the normalized inverse-risk index in [0,100]:
	// 100 = fully compliant, 0 = maximal risk.
	OverallScore float64 `json:"overallScore"`

	// CategoryScores holds the same index restricted per category.
	CategoryScores map[string]float64 `json:"categoryScores"`

	// Undetermined is set when no requirement applied to any statement.
	// An empty evaluation must never present as fully compliant.
	Undetermined bool `json:"undetermined"`

	// Findings the profile summarizes, sorted by (statement, requirement).
	Findings []Finding `json:"findings"`

	// FindingsEvaluated is the (weighted) number of evaluations behind the
	// overall score.
	FindingsEvaluated float64 `json:"findingsEvaluated"`

	// PreviousID links to the profile this one supersedes.
	PreviousID string `json:"previousId,omitempty"`
}

// profileDigest is the canonical form hashed into the profile fingerprint.
// encoding/json emits map keys in sorted order, so identical content always
// serializes identically.
type profileDigest struct {
	JurisdictionID      string             `json:"jurisdictionId"`
	RegulationVersionID string             `json:"regulationVersionId"`
	DocumentIDs         []string           `json:"documentIds"`
	OverallScore        float64            `json:"overallScore"`
	CategoryScores      map[string]float64 `json:"categoryScores"`
	Undetermined        bool               `json:"undetermined"`
	Findings            []Finding          `json:"findings"`
	PreviousID          string             `json:"previousId"`
}

// Fingerprint returns the SHA-256 hex digest of the profile's canonical
// serialization. The proof layer commits to this value, never to the
// underlying statement text.
func (p *RiskProfile) Fingerprint() string {
	raw, _ := json.Marshal(profileDigest{
		JurisdictionID:      p.JurisdictionID,
		RegulationVersionID: p.RegulationVersionID,
		DocumentIDs:         p.DocumentIDs,
		OverallScore:        p.OverallScore,
		CategoryScores:      p.CategoryScores,
		Undetermined:        p.Undetermined,
		Findings:            p.Findings,
		PreviousID:          p.PreviousID,
	})
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// FullyCompliant reports whether every finding is satisfied and at least
// one requirement was actually evaluated.
func (p *RiskProfile) FullyCompliant() bool {
	if p.Undetermined || len(p.Findings) == 0 {
		return false
	}
	for _, f := range p.Findings {
		if f.Outcome != OutcomeSatisfied {
			return false
		}
	}
	return true
}

// FailingRequirements returns the (requirementID, outcome) pairs for every
// non-satisfied finding, for audit-grade refusal messages.
func (p *RiskProfile) FailingRequirements() []RequirementOutcome {
	var out []RequirementOutcome
	for _, f := range p.Findings {
		if f.Outcome == OutcomeSatisfied {
			continue
		}
		out = append(out, RequirementOutcome{
			RequirementID: f.RequirementID,
			Outcome:       f.Outcome,
		})
	}
	return out
}

// RequirementOutcome pairs a requirement id with the finding outcome that
// was recorded against it.
type RequirementOutcome struct {
	RequirementID string  `json:"requirementId"`
	Outcome       Outcome `json:"outcome"`
}
