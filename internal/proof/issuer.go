// Package proof issues and verifies compliance attestations. An attestation
// is a signed, privacy-preserving claim that a risk profile met the
// compliance bar under a specific regulation version. It discloses a score
// bucket and a hash commitment, never statement text or exact scores, and
// verifies offline with nothing but the export record and the issuer's
// public key.
package proof

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-compliance/gavel/internal/domain"
)

// DefaultMinimumThreshold is the attestation bar applied when the caller
// does not name one: only fully compliant profiles pass.
const DefaultMinimumThreshold = 100

// Issuer signs attestations for compliant risk profiles.
type Issuer struct {
	priv  ed25519.PrivateKey
	cfg   domain.ProofConfig
	repo  domain.Repository
	clock func() time.Time
}

// NewIssuer builds an issuer from config. An empty SigningKeyHex generates
// an ephemeral key, which is fine for development but means previously
// issued attestations stop verifying after a restart.
func NewIssuer(cfg domain.ProofConfig, repo domain.Repository) (*Issuer, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = 90 * 24 * time.Hour
	}
	if cfg.BucketSize <= 0 {
		cfg.BucketSize = 10
	}
	if cfg.TopBucket <= 0 {
		cfg.TopBucket = 90
	}

	var priv ed25519.PrivateKey
	if cfg.SigningKeyHex != "" {
		seed, err := hex.DecodeString(cfg.SigningKeyHex)
		if err != nil {
			return nil, fmt.Errorf("invalid signing key: %w", err)
		}
		if len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("invalid signing key: expected %d-byte seed, got %d", ed25519.SeedSize, len(seed))
		}
		priv = ed25519.NewKeyFromSeed(seed)
	} else {
		var err error
		_, priv, err = ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate signing key: %w", err)
		}
		slog.Warn("no signing key configured, using ephemeral key")
	}

	return &Issuer{
		priv:  priv,
		cfg:   cfg,
		repo:  repo,
		clock: time.Now,
	}, nil
}

// PublicKey returns the verification key for this issuer.
func (i *Issuer) PublicKey() ed25519.PublicKey {
	return i.priv.Public().(ed25519.PublicKey)
}

// Issue seals an attestation for a profile that scored at or above the
// caller's minimum threshold. Undetermined profiles are always refused, and
// a refusal is a ThresholdNotMetError naming the responsible requirements.
func (i *Issuer) Issue(ctx context.Context, tenantID string, profile *domain.RiskProfile, minThreshold float64) (*domain.ComplianceAttestation, error) {
	if profile == nil {
		return nil, &domain.ValidationError{Reason: "profile is required"}
	}
	if minThreshold < 0 || minThreshold > 100 {
		return nil, &domain.ValidationError{
			Reason: fmt.Sprintf("minimum threshold %.2f out of [0,100]", minThreshold),
		}
	}
	undetermined := profile.Undetermined || len(profile.Findings) == 0
	if undetermined || profile.OverallScore < minThreshold {
		return nil, &domain.ThresholdNotMetError{
			ProfileID:    profile.ID,
			Score:        profile.OverallScore,
			Threshold:    minThreshold,
			Undetermined: undetermined,
			Failing:      profile.FailingRequirements(),
		}
	}

	issuedAt := i.clock().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(i.cfg.TTL)
	bucket := i.bucketFor(profile.OverallScore)
	hash := commitment(profile.ID, profile.RegulationVersionID, bucket, issuedAt)

	att := &domain.ComplianceAttestation{
		ID:                  uuid.New().String(),
		TenantID:            tenantID,
		ProfileID:           profile.ID,
		RegulationVersionID: profile.RegulationVersionID,
		ScoreBucket:         bucket,
		ContentHash:         hash,
		IssuedAt:            issuedAt,
		ExpiresAt:           expiresAt,
	}
	att.Signature = hex.EncodeToString(ed25519.Sign(i.priv, signingPayload(att.Export())))

	if i.repo != nil {
		if err := i.repo.SaveAttestation(ctx, tenantID, att); err != nil {
			return nil, fmt.Errorf("failed to save attestation: %w", err)
		}
	}

	slog.Info("attestation issued",
		"tenant_id", tenantID,
		"attestation_id", att.ID,
		"regulation_version", att.RegulationVersionID,
		"score_bucket", att.ScoreBucket,
		"expires_at", att.ExpiresAt,
	)
	return att, nil
}

// bucketFor maps an exact score to its disclosed bucket, e.g. ">=90" or
// "80-89" with the default width of 10.
func (i *Issuer) bucketFor(score float64) string {
	if score >= i.cfg.TopBucket {
		return fmt.Sprintf(">=%d", int(i.cfg.TopBucket))
	}
	lo := int(score/i.cfg.BucketSize) * int(i.cfg.BucketSize)
	return fmt.Sprintf("%d-%d", lo, lo+int(i.cfg.BucketSize)-1)
}

// commitment is the hex SHA-256 over the attested identity. The profile
// fingerprint is committed to but never disclosed; a holder who knows it
// can open the commitment, nobody else learns it.
func commitment(profileID, regVersionID, bucket string, issuedAt time.Time) string {
	h := sha256.Sum256([]byte(strings.Join([]string{
		profileID,
		regVersionID,
		bucket,
		issuedAt.UTC().Format(time.RFC3339),
	}, "|")))
	return hex.EncodeToString(h[:])
}

// signingPayload is the canonical byte string the signature covers. It is
// built from the disclosed export fields only, so verification needs no
// out-of-band data.
func signingPayload(e domain.AttestationExport) []byte {
	return []byte(strings.Join([]string{
		e.ContentHash,
		e.RegulationVersionID,
		e.ScoreBucket,
		e.IssuedAt,
		e.ExpiresAt,
	}, "|"))
}

// Verifier checks exported attestations offline.
type Verifier struct {
	pub   ed25519.PublicKey
	clock func() time.Time
}

// NewVerifier builds a verifier around the issuer's public key.
func NewVerifier(pub ed25519.PublicKey) *Verifier {
	return &Verifier{pub: pub, clock: time.Now}
}

// Verify checks an exported attestation: signature over the disclosed
// fields, an optional expected regulation version, and expiry. Expiry is a
// normal outcome, reported as Valid=false with Reason "expired", never as
// an error.
func (v *Verifier) Verify(export domain.AttestationExport, expectedRegVersionID string) domain.VerifyResult {
	issuedAt, err := time.Parse(time.RFC3339, export.IssuedAt)
	if err != nil {
		return domain.VerifyResult{Reason: domain.VerifyReasonMalformed}
	}
	expiresAt, err := time.Parse(time.RFC3339, export.ExpiresAt)
	if err != nil {
		return domain.VerifyResult{Reason: domain.VerifyReasonMalformed}
	}
	if export.ContentHash == "" || export.ScoreBucket == "" || !expiresAt.After(issuedAt) {
		return domain.VerifyResult{Reason: domain.VerifyReasonMalformed}
	}

	sig, err := hex.DecodeString(export.Signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return domain.VerifyResult{Reason: domain.VerifyReasonMalformed}
	}
	if !ed25519.Verify(v.pub, signingPayload(export), sig) {
		return domain.VerifyResult{Reason: domain.VerifyReasonBadSignature}
	}

	if expectedRegVersionID != "" && export.RegulationVersionID != expectedRegVersionID {
		return domain.VerifyResult{Reason: domain.VerifyReasonVersionMismatch}
	}

	if !v.clock().Before(expiresAt) {
		return domain.VerifyResult{Reason: domain.VerifyReasonExpired}
	}
	return domain.VerifyResult{Valid: true}
}
