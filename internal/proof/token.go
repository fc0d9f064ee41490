package proof

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/opensource-compliance/gavel/internal/domain"
)

// tokenClaims carries the disclosed attestation fields inside a JWT. The
// hex export stays the canonical format; the token is a convenience for
// parties whose tooling already speaks JWT.
type tokenClaims struct {
	ContentHash         string `json:"contentHash"`
	RegulationVersionID string `json:"regulationVersionId"`
	ScoreBucket         string `json:"scoreBucket"`
	jwt.RegisteredClaims
}

// Token renders an attestation as an EdDSA-signed JWT. The token carries
// its own signature, independent of the export signature, under the same
// issuer key.
func (i *Issuer) Token(att *domain.ComplianceAttestation) (string, error) {
	claims := tokenClaims{
		ContentHash:         att.ContentHash,
		RegulationVersionID: att.RegulationVersionID,
		ScoreBucket:         att.ScoreBucket,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        att.ID,
			Issuer:    "gavel",
			IssuedAt:  jwt.NewNumericDate(att.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(att.ExpiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(i.priv)
	if err != nil {
		return "", fmt.Errorf("failed to sign attestation token: %w", err)
	}
	return signed, nil
}

// VerifyToken checks an attestation JWT against the issuer key and returns
// the disclosed export fields. Expired tokens report Valid=false with the
// expired reason; tampered or foreign tokens report a signature mismatch.
func (v *Verifier) VerifyToken(tokenString string) (domain.AttestationExport, domain.VerifyResult) {
	var claims tokenClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims,
		func(t *jwt.Token) (any, error) { return v.pub, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithTimeFunc(v.clock),
		jwt.WithExpirationRequired(),
	)
	export := domain.AttestationExport{
		ContentHash:         claims.ContentHash,
		RegulationVersionID: claims.RegulationVersionID,
		ScoreBucket:         claims.ScoreBucket,
	}
	if claims.IssuedAt != nil {
		export.IssuedAt = claims.IssuedAt.UTC().Format(time.RFC3339)
	}
	if claims.ExpiresAt != nil {
		export.ExpiresAt = claims.ExpiresAt.UTC().Format(time.RFC3339)
	}

	switch {
	case err == nil && token.Valid:
		return export, domain.VerifyResult{Valid: true}
	case errors.Is(err, jwt.ErrTokenExpired):
		return export, domain.VerifyResult{Reason: domain.VerifyReasonExpired}
	case errors.Is(err, jwt.ErrTokenMalformed):
		return export, domain.VerifyResult{Reason: domain.VerifyReasonMalformed}
	default:
		return export, domain.VerifyResult{Reason: domain.VerifyReasonBadSignature}
	}
}
