//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Gavel compliance
// engine.
//
// These tests verify the COMPLETE analysis pipeline:
//
//	Catalog publish → Document ingest → Scoring → Drift → Attestation
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// UNDERSTANDING THE DOMAIN:
//
// 1. REGULATION VERSION: An immutable snapshot of a jurisdiction's rule
//    set. Publishing a new version supersedes the previous one and fans a
//    structural diff out to the drift worker.
//
// 2. REQUIREMENT: One atomic rule. Each requirement has:
//   - Predicate: A CEL expression over statement attributes
//   - Category: Tag vocabulary shared with the statement extractor
//   - SeverityWeight: Risk contribution of a violation (0 to 10)
//
// 3. RISK PROFILE: The aggregate verdict for one document, 0 to 100 where
//    100 is fully compliant. Content-addressed: rescoring identical
//    findings yields the same profile id.
//
// 4. DRIFT: When a new version changes requirements that touched a scored
//    document, the old profile goes stale and a projected score grades the
//    exposure (ok / warning / critical).
//
// 5. ATTESTATION: A signed, offline-verifiable claim that a profile is
//    fully compliant under a named regulation version. Refused otherwise.
//
// The suite needs a running server (default http://localhost:8080) with
// the drift worker enabled for the test tenant:
//
//	GAVEL_TENANTS=test-tenant go run cmd/gavel/main.go
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL  string
	TenantID string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("GAVEL_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{
		BaseURL:  baseURL,
		TenantID: "test-tenant",
	}
}

// ============================================================================
// API Request/Response Types (matching Gavel's API contract)
// ============================================================================

type Requirement struct {
	ID             string  `json:"id"`
	Category       string  `json:"category"`
	Description    string  `json:"description,omitempty"`
	Predicate      string  `json:"predicate"`
	SeverityWeight float64 `json:"severityWeight"`
}

type PublishRequest struct {
	EffectiveAt  string        `json:"effectiveAt,omitempty"`
	Requirements []Requirement `json:"requirements"`
}

type RegulationVersion struct {
	ID             string `json:"id"`
	JurisdictionID string `json:"jurisdictionId"`
	SupersededBy   string `json:"supersededBy,omitempty"`
}

type Statement struct {
	Section string             `json:"section"`
	Content string             `json:"content"`
	Tags    []string           `json:"tags"`
	Values  map[string]float64 `json:"values,omitempty"`
}

type DocumentRequest struct {
	Name       string      `json:"name"`
	Statements []Statement `json:"statements"`
}

type Document struct {
	ID string `json:"id"`
}

type AnalyzeRequest struct {
	DocumentID     string `json:"documentId"`
	JurisdictionID string `json:"jurisdictionId"`
}

type RescoreRequest struct {
	JurisdictionID string `json:"jurisdictionId"`
}

type Finding struct {
	RequirementID string `json:"requirementId"`
	Outcome       string `json:"outcome"`
}

type RiskProfile struct {
	ID                  string    `json:"id"`
	RegulationVersionID string    `json:"regulationVersionId"`
	OverallScore        float64   `json:"overallScore"`
	Undetermined        bool      `json:"undetermined"`
	Findings            []Finding `json:"findings"`
	PreviousID          string    `json:"previousId,omitempty"`
}

type AnalyzeResponse struct {
	Profile RiskProfile `json:"profile"`
}

type DriftRecord struct {
	ID             string   `json:"id"`
	Status         string   `json:"status"`
	OldScore       float64  `json:"oldScore"`
	ProjectedScore float64  `json:"projectedScore"`
	Magnitude      float64  `json:"magnitude"`
	Changed        []string `json:"changedRequirements"`
}

type DriftResponse struct {
	Records []DriftRecord `json:"records"`
	Count   int           `json:"count"`
	State   string        `json:"state"`
}

type AttestationExport struct {
	ContentHash         string `json:"contentHash"`
	RegulationVersionID string `json:"regulationVersionId"`
	ScoreBucket         string `json:"scoreBucket"`
	IssuedAt            string `json:"issuedAt"`
	ExpiresAt           string `json:"expiresAt"`
	Signature           string `json:"signature"`
}

type AttestResponse struct {
	ID          string            `json:"id"`
	Attestation AttestationExport `json:"attestation"`
	Token       string            `json:"token"`
	PublicKey   string            `json:"publicKey"`
}

type VerifyRequest struct {
	Attestation                 AttestationExport `json:"attestation"`
	ExpectedRegulationVersionID string            `json:"expectedRegulationVersionId,omitempty"`
}

type VerifyResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// ============================================================================
// Test Helper Functions
// ============================================================================

func call(t *testing.T, config TestConfig, method, path string, body any, wantStatus int, out any) []byte {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequest(method, config.BaseURL+path, reader)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", config.TenantID)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}

	if resp.StatusCode != wantStatus {
		t.Fatalf("Expected status %d for %s %s, got %d: %s",
			wantStatus, method, path, resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, string(respBody))
		}
	}
	return respBody
}

func indemnificationRequirement(weight float64) Requirement {
	return Requirement{
		ID:             "EU-IND-01",
		Category:       "indemnification",
		Description:    "Indemnification clauses must carry a liability cap",
		Predicate:      `"liability-cap" in tags`,
		SeverityWeight: weight,
	}
}

// uniqueJurisdiction isolates each run; published versions are immutable
// and would otherwise leak between invocations against a shared server.
func uniqueJurisdiction(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

// ============================================================================
// SCENARIO 1: Violation, regulatory change, drift, rescore
// ============================================================================

func TestComplianceDriftLifecycle(t *testing.T) {
	/*
	   SCENARIO: A contract with an uncapped indemnification clause is
	   scored under version 1 (score 0). The regulator then withdraws the
	   requirement in version 2; the document's profile is stale and the
	   projection jumps to 100, a critical drift. Rescoring archives the
	   drift records and returns the document to the current state.
	*/
	config := getTestConfig()
	jurisdiction := uniqueJurisdiction("EU-TEST")

	// 1. Publish version 1
	var v1 RegulationVersion
	call(t, config, "POST", "/catalog/"+jurisdiction+"/versions", PublishRequest{
		Requirements: []Requirement{indemnificationRequirement(8)},
	}, http.StatusCreated, &v1)

	// 2. Ingest the offending contract
	var doc Document
	call(t, config, "POST", "/documents", DocumentRequest{
		Name: "uncapped-msa",
		Statements: []Statement{{
			Section: "7.2",
			Content: "Company shall indemnify Client without limitation.",
			Tags:    []string{"indemnification"},
		}},
	}, http.StatusCreated, &doc)

	// 3. Score it: the single requirement is violated
	var analyzed AnalyzeResponse
	call(t, config, "POST", "/analyze", AnalyzeRequest{
		DocumentID:     doc.ID,
		JurisdictionID: jurisdiction,
	}, http.StatusOK, &analyzed)

	if analyzed.Profile.OverallScore != 0 {
		t.Errorf("Expected score 0 under v1, got %.2f", analyzed.Profile.OverallScore)
	}
	if analyzed.Profile.RegulationVersionID != v1.ID {
		t.Errorf("Expected profile scored against %s, got %s", v1.ID, analyzed.Profile.RegulationVersionID)
	}

	// 4. The regulator withdraws the requirement: publish version 2 with a
	// placeholder in another category so the diff removes EU-IND-01.
	var v2 RegulationVersion
	call(t, config, "POST", "/catalog/"+jurisdiction+"/versions", PublishRequest{
		EffectiveAt: time.Now().UTC().Add(time.Second).Format(time.RFC3339),
		Requirements: []Requirement{{
			ID:             "EU-PRIV-01",
			Category:       "privacy",
			Predicate:      `"data-processing-agreement" in tags`,
			SeverityWeight: 5,
		}},
	}, http.StatusCreated, &v2)

	// 5. The drift worker reacts asynchronously; poll for the record
	var driftResp DriftResponse
	deadline := time.Now().Add(5 * time.Second)
	for {
		call(t, config, "GET", "/documents/"+doc.ID+"/drift?jurisdiction="+jurisdiction, nil, http.StatusOK, &driftResp)
		if driftResp.Count > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	if driftResp.Count != 1 {
		t.Fatalf("Expected 1 open drift record, got %d", driftResp.Count)
	}
	rec := driftResp.Records[0]
	if rec.Status != "critical" {
		t.Errorf("Expected critical drift, got %s", rec.Status)
	}
	if rec.OldScore != 0 {
		t.Errorf("Expected old score 0, got %.2f", rec.OldScore)
	}
	if rec.Magnitude != 1.0 {
		t.Errorf("Expected magnitude 1.0, got %.2f", rec.Magnitude)
	}
	if driftResp.State != "stale" {
		t.Errorf("Expected stale drift state, got %s", driftResp.State)
	}

	// 6. Rescore against version 2: the indemnification requirement is
	// gone and the privacy requirement does not apply, so the profile is
	// undetermined rather than compliant.
	var rescored AnalyzeResponse
	call(t, config, "POST", "/documents/"+doc.ID+"/rescore", RescoreRequest{
		JurisdictionID: jurisdiction,
	}, http.StatusOK, &rescored)

	if !rescored.Profile.Undetermined {
		t.Error("Expected undetermined profile after requirement withdrawal")
	}
	if rescored.Profile.RegulationVersionID != v2.ID {
		t.Errorf("Expected profile scored against %s, got %s", v2.ID, rescored.Profile.RegulationVersionID)
	}

	// 7. Drift records are archived, state back to current
	call(t, config, "GET", "/documents/"+doc.ID+"/drift?jurisdiction="+jurisdiction, nil, http.StatusOK, &driftResp)
	if driftResp.Count != 0 {
		t.Errorf("Expected 0 open drift records after rescore, got %d", driftResp.Count)
	}
	if driftResp.State != "current" {
		t.Errorf("Expected current drift state after rescore, got %s", driftResp.State)
	}
}

// ============================================================================
// SCENARIO 2: Compliant document, attestation, offline verification
// ============================================================================

func TestAttestationLifecycle(t *testing.T) {
	/*
	   SCENARIO: A contract whose indemnification clause carries a
	   liability cap scores 100 and earns an attestation. The export
	   verifies offline; tampering with any disclosed field breaks the
	   signature; an undetermined profile is refused.
	*/
	config := getTestConfig()
	jurisdiction := uniqueJurisdiction("EU-ATT")

	var v1 RegulationVersion
	call(t, config, "POST", "/catalog/"+jurisdiction+"/versions", PublishRequest{
		Requirements: []Requirement{indemnificationRequirement(8)},
	}, http.StatusCreated, &v1)

	var doc Document
	call(t, config, "POST", "/documents", DocumentRequest{
		Name: "capped-msa",
		Statements: []Statement{{
			Section: "7.2",
			Content: "Company shall indemnify Client up to the fees paid in the prior 12 months.",
			Tags:    []string{"indemnification", "liability-cap"},
			Values:  map[string]float64{"cap_amount": 250000},
		}},
	}, http.StatusCreated, &doc)

	var analyzed AnalyzeResponse
	call(t, config, "POST", "/analyze", AnalyzeRequest{
		DocumentID:     doc.ID,
		JurisdictionID: jurisdiction,
	}, http.StatusOK, &analyzed)

	if analyzed.Profile.OverallScore != 100 {
		t.Fatalf("Expected score 100, got %.2f", analyzed.Profile.OverallScore)
	}

	// Attest
	var attested AttestResponse
	call(t, config, "POST", "/profiles/"+analyzed.Profile.ID+"/attest", nil, http.StatusCreated, &attested)

	if attested.Attestation.ScoreBucket != ">=90" {
		t.Errorf("Expected score bucket >=90, got %s", attested.Attestation.ScoreBucket)
	}
	if attested.Attestation.RegulationVersionID != v1.ID {
		t.Errorf("Expected attestation pinned to %s, got %s", v1.ID, attested.Attestation.RegulationVersionID)
	}

	// Verify, including the version pin
	var result VerifyResult
	call(t, config, "POST", "/attestations/verify", VerifyRequest{
		Attestation:                 attested.Attestation,
		ExpectedRegulationVersionID: v1.ID,
	}, http.StatusOK, &result)
	if !result.Valid {
		t.Errorf("Expected valid attestation, got reason %q", result.Reason)
	}

	// Wrong version pin
	call(t, config, "POST", "/attestations/verify", VerifyRequest{
		Attestation:                 attested.Attestation,
		ExpectedRegulationVersionID: "some-other-version",
	}, http.StatusOK, &result)
	if result.Valid {
		t.Error("Expected version pin mismatch to be invalid")
	}

	// Tampered bucket
	tampered := attested.Attestation
	tampered.ScoreBucket = ">=100"
	call(t, config, "POST", "/attestations/verify", VerifyRequest{
		Attestation: tampered,
	}, http.StatusOK, &result)
	if result.Valid {
		t.Error("Expected tampered attestation to be invalid")
	}

	// JWT rendering verifies too
	var tokenResult struct {
		Result VerifyResult `json:"result"`
	}
	call(t, config, "POST", "/attestations/verify-token", map[string]string{
		"token": attested.Token,
	}, http.StatusOK, &tokenResult)
	if !tokenResult.Result.Valid {
		t.Errorf("Expected valid token, got reason %q", tokenResult.Result.Reason)
	}
}

// ============================================================================
// SCENARIO 3: Attestation refusals
// ============================================================================

func TestAttestationRefusals(t *testing.T) {
	/*
	   SCENARIO: A violated profile and an undetermined profile both fail
	   attestation with a 422 naming the cause. Refusal is a typed
	   outcome, not a generic server error.
	*/
	config := getTestConfig()
	jurisdiction := uniqueJurisdiction("EU-REF")

	call(t, config, "POST", "/catalog/"+jurisdiction+"/versions", PublishRequest{
		Requirements: []Requirement{indemnificationRequirement(8)},
	}, http.StatusCreated, nil)

	// Violating document
	var doc Document
	call(t, config, "POST", "/documents", DocumentRequest{
		Name: "uncapped-msa",
		Statements: []Statement{{
			Section: "7.2",
			Content: "Company shall indemnify Client without limitation.",
			Tags:    []string{"indemnification"},
		}},
	}, http.StatusCreated, &doc)

	var analyzed AnalyzeResponse
	call(t, config, "POST", "/analyze", AnalyzeRequest{
		DocumentID:     doc.ID,
		JurisdictionID: jurisdiction,
	}, http.StatusOK, &analyzed)

	body := call(t, config, "POST", "/profiles/"+analyzed.Profile.ID+"/attest", nil,
		http.StatusUnprocessableEntity, nil)
	if !bytes.Contains(body, []byte("EU-IND-01")) {
		t.Errorf("Expected refusal to name the failing requirement, got: %s", body)
	}

	// Undetermined document: no requirement applies
	var offTopic Document
	call(t, config, "POST", "/documents", DocumentRequest{
		Name: "unrelated-nda",
		Statements: []Statement{{
			Section: "1.1",
			Content: "Each party shall keep Confidential Information secret.",
			Tags:    []string{"confidentiality"},
		}},
	}, http.StatusCreated, &offTopic)

	call(t, config, "POST", "/analyze", AnalyzeRequest{
		DocumentID:     offTopic.ID,
		JurisdictionID: jurisdiction,
	}, http.StatusOK, &analyzed)

	if !analyzed.Profile.Undetermined {
		t.Fatal("Expected undetermined profile for off-topic document")
	}
	call(t, config, "POST", "/profiles/"+analyzed.Profile.ID+"/attest", nil,
		http.StatusUnprocessableEntity, nil)
}

// ============================================================================
// SCENARIO 4: Determinism
// ============================================================================

func TestScoringIsDeterministic(t *testing.T) {
	/*
	   SCENARIO: Scoring the same document twice against the same version
	   yields the same overall score, and the second profile links to the
	   first through previousId while its content hash stays stable.
	*/
	config := getTestConfig()
	jurisdiction := uniqueJurisdiction("EU-DET")

	call(t, config, "POST", "/catalog/"+jurisdiction+"/versions", PublishRequest{
		Requirements: []Requirement{indemnificationRequirement(8)},
	}, http.StatusCreated, nil)

	var doc Document
	call(t, config, "POST", "/documents", DocumentRequest{
		Name: "uncapped-msa",
		Statements: []Statement{{
			Section: "7.2",
			Content: "Company shall indemnify Client without limitation.",
			Tags:    []string{"indemnification"},
		}},
	}, http.StatusCreated, &doc)

	var first, second AnalyzeResponse
	req := AnalyzeRequest{DocumentID: doc.ID, JurisdictionID: jurisdiction}
	call(t, config, "POST", "/analyze", req, http.StatusOK, &first)
	call(t, config, "POST", "/analyze", req, http.StatusOK, &second)

	if first.Profile.OverallScore != second.Profile.OverallScore {
		t.Errorf("Scores differ across runs: %.2f vs %.2f",
			first.Profile.OverallScore, second.Profile.OverallScore)
	}
	if second.Profile.PreviousID != first.Profile.ID {
		t.Errorf("Expected second profile to link to %s, got %s",
			first.Profile.ID, second.Profile.PreviousID)
	}
}
