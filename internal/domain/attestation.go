package domain

import "time"

// ComplianceAttestation is a sealed, shareable claim that a risk profile
// scored at or above a threshold under a specific regulation version.
// It commits to the profile fingerprint, never to statement text, and is
// verifiable offline without the original document.
type ComplianceAttestation struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId,omitempty"`

	// ProfileID is the content-derived fingerprint of the attested profile.
	// It is part of the commitment but is not included in the export.
	ProfileID string `json:"profileId"`

	RegulationVersionID string `json:"regulationVersionId"`

	// ScoreBucket discloses the score only as a coarse bucket
	// (e.g. ">=90", "80-89"), never the exact value.
	ScoreBucket string `json:"scoreBucket"`

	// ContentHash is the hex SHA-256 commitment over
	// (profileId, regulationVersionId, scoreBucket, issuedAt).
	ContentHash string `json:"contentHash"`

	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`

	// Signature is the hex Ed25519 signature over the export payload.
	Signature string `json:"signature"`
}

// AttestationExport is the flat, offline-verifiable record shared with
// third parties. Field set and encoding are part of the public contract.
type AttestationExport struct {
	ContentHash         string `json:"contentHash"`
	RegulationVersionID string `json:"regulationVersionId"`
	ScoreBucket         string `json:"scoreBucket"`
	IssuedAt            string `json:"issuedAt"`  // RFC 3339
	ExpiresAt           string `json:"expiresAt"` // RFC 3339
	Signature           string `json:"signature"`
}

// Export renders the attestation in its shareable form.
func (a *ComplianceAttestation) Export() AttestationExport {
	return AttestationExport{
		ContentHash:         a.ContentHash,
		RegulationVersionID: a.RegulationVersionID,
		ScoreBucket:         a.ScoreBucket,
		IssuedAt:            a.IssuedAt.UTC().Format(time.RFC3339),
		ExpiresAt:           a.ExpiresAt.UTC().Format(time.RFC3339),
		Signature:           a.Signature,
	}
}

// VerifyResult is the outcome of attestation verification. Expiry is an
// expected, non-exceptional outcome: Valid=false, Reason="expired".
type VerifyResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// Verification failure reasons.
const (
	VerifyReasonExpired         = "expired"
	VerifyReasonBadSignature    = "signature mismatch"
	VerifyReasonVersionMismatch = "regulation version mismatch"
	VerifyReasonMalformed       = "malformed attestation"
)
