package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opensource-compliance/gavel/internal/bus"
	"github.com/opensource-compliance/gavel/internal/catalog"
	"github.com/opensource-compliance/gavel/internal/domain"
	"github.com/opensource-compliance/gavel/internal/drift"
	"github.com/opensource-compliance/gavel/internal/proof"
	"github.com/opensource-compliance/gavel/internal/repository"
	"github.com/opensource-compliance/gavel/internal/scoring"
)

// newTestServer wires a full server against a temp SQLite database.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "gavel-api-test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	engine, err := scoring.NewEngine(8)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	cat := catalog.New(engine, repo, eventBus, nil)
	tracker := drift.NewTracker(engine, repo, eventBus, domain.DriftConfig{
		Thresholds:    domain.DefaultDriftThresholds(),
		MaxConcurrent: 4,
	})

	issuer, err := proof.NewIssuer(domain.ProofConfig{
		TTL:        time.Hour,
		BucketSize: 10,
		TopBucket:  90,
	}, repo)
	if err != nil {
		t.Fatalf("failed to create issuer: %v", err)
	}
	verifier := proof.NewVerifier(issuer.PublicKey())

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}
	return NewServer(cfg, repo, nil, eventBus, cat, engine, tracker, issuer, verifier, nil, "test-v1")
}

// doJSON sends a tenant-scoped JSON request to the test server.
func doJSON(t *testing.T, server *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", "tenant-001")

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func capRequirement() domain.Requirement {
	return domain.Requirement{
		ID:             "R1",
		Category:       "indemnification",
		Description:    "Indemnification clauses must carry a liability cap",
		Predicate:      `"liability-cap" in tags`,
		SeverityWeight: 8,
	}
}

func TestCatalogEndpoints(t *testing.T) {
	server := newTestServer(t)

	t.Run("PublishAndGetActive", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/catalog/EU/versions", PublishRequest{
			Requirements: []domain.Requirement{capRequirement()},
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}

		var published domain.RegulationVersion
		if err := json.Unmarshal(rr.Body.Bytes(), &published); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if published.ID == "" {
			t.Fatal("expected version id in response")
		}
		if published.JurisdictionID != "EU" {
			t.Errorf("expected jurisdiction EU, got %s", published.JurisdictionID)
		}

		rr = doJSON(t, server, http.MethodGet, "/catalog/EU/active", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var active domain.RegulationVersion
		json.Unmarshal(rr.Body.Bytes(), &active)
		if active.ID != published.ID {
			t.Errorf("expected active version %s, got %s", published.ID, active.ID)
		}

		rr = doJSON(t, server, http.MethodGet, "/catalog/versions/"+published.ID, nil)
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200 for version lookup, got %d", rr.Code)
		}
	})

	t.Run("DiffVersions", func(t *testing.T) {
		relaxed := capRequirement()
		relaxed.SeverityWeight = 4

		rr := doJSON(t, server, http.MethodPost, "/catalog/EU/versions", PublishRequest{
			EffectiveAt:  time.Now().UTC().Add(time.Minute).Format(time.RFC3339),
			Requirements: []domain.Requirement{relaxed},
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}
		var v2 domain.RegulationVersion
		json.Unmarshal(rr.Body.Bytes(), &v2)

		rr = doJSON(t, server, http.MethodGet, "/catalog/EU/active", nil)
		var v1 domain.RegulationVersion
		json.Unmarshal(rr.Body.Bytes(), &v1)

		rr = doJSON(t, server, http.MethodGet, "/catalog/diff?from="+v1.ID+"&to="+v2.ID, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var resp struct {
			Diff domain.CatalogDiff `json:"diff"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if len(resp.Diff.Modified) != 1 {
			t.Errorf("expected 1 modified requirement, got %d", len(resp.Diff.Modified))
		}
	})

	t.Run("RejectsBadPredicate", func(t *testing.T) {
		bad := capRequirement()
		bad.Predicate = `"liability-cap" in`

		rr := doJSON(t, server, http.MethodPost, "/catalog/EU/versions", PublishRequest{
			Requirements: []domain.Requirement{bad},
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("RejectsWeightOutOfRange", func(t *testing.T) {
		bad := capRequirement()
		bad.SeverityWeight = 15

		rr := doJSON(t, server, http.MethodPost, "/catalog/EU/versions", PublishRequest{
			Requirements: []domain.Requirement{bad},
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("RequiresRequirements", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/catalog/EU/versions", PublishRequest{})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("MissingTenantID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/catalog/EU/active", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("NoActiveVersionIs404", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/catalog/MARS/active", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})
}

func TestAnalyzeAndAttest(t *testing.T) {
	server := newTestServer(t)

	rr := doJSON(t, server, http.MethodPost, "/catalog/EU/versions", PublishRequest{
		Requirements: []domain.Requirement{capRequirement()},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("failed to publish catalog: %d %s", rr.Code, rr.Body.String())
	}

	ingest := func(t *testing.T, name string, tags []string) string {
		t.Helper()
		rr := doJSON(t, server, http.MethodPost, "/documents", DocumentRequest{
			Name: name,
			Statements: []domain.Statement{{
				Section: "7.2",
				Content: "Company shall indemnify Client for third-party claims.",
				Tags:    tags,
			}},
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("failed to ingest document: %d %s", rr.Code, rr.Body.String())
		}
		var doc domain.Document
		json.Unmarshal(rr.Body.Bytes(), &doc)
		return doc.ID
	}

	analyze := func(t *testing.T, docID string) AnalyzeResponse {
		t.Helper()
		rr := doJSON(t, server, http.MethodPost, "/analyze", AnalyzeRequest{
			DocumentID:     docID,
			JurisdictionID: "EU",
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("analyze failed: %d %s", rr.Code, rr.Body.String())
		}
		var resp AnalyzeResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse analyze response: %v", err)
		}
		return resp
	}

	violatingDoc := ingest(t, "uncapped-msa", []string{"indemnification"})
	compliantDoc := ingest(t, "capped-msa", []string{"indemnification", "liability-cap"})

	t.Run("ViolationScoresZero", func(t *testing.T) {
		resp := analyze(t, violatingDoc)
		if resp.Profile.OverallScore != 0 {
			t.Errorf("expected score 0, got %.2f", resp.Profile.OverallScore)
		}
		if len(resp.Profile.Findings) != 1 {
			t.Fatalf("expected 1 finding, got %d", len(resp.Profile.Findings))
		}
		if resp.Profile.Findings[0].Outcome != domain.OutcomeViolated {
			t.Errorf("expected violated outcome, got %s", resp.Profile.Findings[0].Outcome)
		}
		if resp.Metadata.Version != "test-v1" {
			t.Errorf("expected version test-v1, got %s", resp.Metadata.Version)
		}
	})

	t.Run("AttestRefusesViolations", func(t *testing.T) {
		resp := analyze(t, violatingDoc)
		rr := doJSON(t, server, http.MethodPost, "/profiles/"+resp.Profile.ID+"/attest", nil)
		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected status 422, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("CompliantDocAttests", func(t *testing.T) {
		resp := analyze(t, compliantDoc)
		if resp.Profile.OverallScore != 100 {
			t.Fatalf("expected score 100, got %.2f", resp.Profile.OverallScore)
		}

		rr := doJSON(t, server, http.MethodPost, "/profiles/"+resp.Profile.ID+"/attest", nil)
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}

		var attResp AttestResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &attResp); err != nil {
			t.Fatalf("failed to parse attest response: %v", err)
		}
		if attResp.Attestation.ScoreBucket != ">=90" {
			t.Errorf("expected bucket >=90, got %s", attResp.Attestation.ScoreBucket)
		}
		if attResp.Token == "" {
			t.Error("expected token in attest response")
		}
		if attResp.PublicKey == "" {
			t.Error("expected public key in attest response")
		}

		rr = doJSON(t, server, http.MethodGet, "/attestations/"+attResp.ID, nil)
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200 for attestation lookup, got %d", rr.Code)
		}

		rr = doJSON(t, server, http.MethodPost, "/attestations/verify", VerifyRequest{
			Attestation: attResp.Attestation,
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var result domain.VerifyResult
		json.Unmarshal(rr.Body.Bytes(), &result)
		if !result.Valid {
			t.Errorf("expected valid attestation, got reason %q", result.Reason)
		}

		tampered := attResp.Attestation
		tampered.ScoreBucket = ">=100"
		rr = doJSON(t, server, http.MethodPost, "/attestations/verify", VerifyRequest{
			Attestation: tampered,
		})
		json.Unmarshal(rr.Body.Bytes(), &result)
		if result.Valid {
			t.Error("expected tampered attestation to be invalid")
		}

		rr = doJSON(t, server, http.MethodPost, "/attestations/verify-token", VerifyTokenRequest{
			Token: attResp.Token,
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var tokenResp struct {
			Result domain.VerifyResult `json:"result"`
		}
		json.Unmarshal(rr.Body.Bytes(), &tokenResp)
		if !tokenResp.Result.Valid {
			t.Errorf("expected valid token, got reason %q", tokenResp.Result.Reason)
		}
	})

	t.Run("ThresholdFromRequest", func(t *testing.T) {
		// A second jurisdiction where the capped document scores 95: the
		// cap requirement is satisfied but a low-severity audit-trail
		// requirement is violated.
		rr := doJSON(t, server, http.MethodPost, "/catalog/US/versions", PublishRequest{
			Requirements: []domain.Requirement{
				capRequirement(),
				{ID: "R2", Category: "indemnification", Predicate: `"audit-trail" in tags`, SeverityWeight: 0.1},
			},
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("failed to publish catalog: %d %s", rr.Code, rr.Body.String())
		}

		rr = doJSON(t, server, http.MethodPost, "/analyze", AnalyzeRequest{
			DocumentID:     compliantDoc,
			JurisdictionID: "US",
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("analyze failed: %d %s", rr.Code, rr.Body.String())
		}
		var resp AnalyzeResponse
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Profile.OverallScore != 95 {
			t.Fatalf("expected score 95, got %.2f", resp.Profile.OverallScore)
		}

		// The default bar of 100 refuses the residual violation.
		rr = doJSON(t, server, http.MethodPost, "/profiles/"+resp.Profile.ID+"/attest", nil)
		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected status 422 at default threshold, got %d: %s", rr.Code, rr.Body.String())
		}

		// The caller's bar of 90 attests.
		rr = doJSON(t, server, http.MethodPost, "/profiles/"+resp.Profile.ID+"/attest", AttestRequest{
			MinimumThreshold: 90,
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201 at threshold 90, got %d: %s", rr.Code, rr.Body.String())
		}
		var attResp AttestResponse
		json.Unmarshal(rr.Body.Bytes(), &attResp)
		if attResp.Attestation.ScoreBucket != ">=90" {
			t.Errorf("expected bucket >=90, got %s", attResp.Attestation.ScoreBucket)
		}
	})

	t.Run("RescoreArchivesDrift", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/documents/"+violatingDoc+"/rescore", RescoreRequest{
			JurisdictionID: "EU",
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		rr = doJSON(t, server, http.MethodGet, "/documents/"+violatingDoc+"/drift?jurisdiction=EU", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var driftResp struct {
			Count int    `json:"count"`
			State string `json:"state"`
		}
		json.Unmarshal(rr.Body.Bytes(), &driftResp)
		if driftResp.Count != 0 {
			t.Errorf("expected 0 open drift records, got %d", driftResp.Count)
		}
		if driftResp.State != string(domain.DriftStateCurrent) {
			t.Errorf("expected current drift state, got %s", driftResp.State)
		}
	})

	t.Run("PortfolioAnalyze", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/portfolio/analyze", PortfolioRequest{
			DocumentIDs:    []string{violatingDoc, compliantDoc},
			JurisdictionID: "EU",
			Weights:        map[string]float64{violatingDoc: 3, compliantDoc: 1},
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var resp AnalyzeResponse
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if len(resp.Profile.DocumentIDs) != 2 {
			t.Errorf("expected 2 documents in portfolio profile, got %d", len(resp.Profile.DocumentIDs))
		}
		// The weighted violation saturates the risk slice.
		if resp.Profile.OverallScore >= 100 {
			t.Errorf("expected portfolio score below 100, got %.2f", resp.Profile.OverallScore)
		}
	})
}

func TestDocumentEndpoints(t *testing.T) {
	server := newTestServer(t)

	t.Run("RequiresName", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/documents", DocumentRequest{
			Statements: []domain.Statement{{Content: "x"}},
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("RequiresStatements", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/documents", DocumentRequest{Name: "empty"})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/documents", bytes.NewBufferString("not-json"))
		req.Header.Set("X-Tenant-ID", "tenant-001")
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("UnknownDocumentIs404", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/documents/nonexistent", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("UnknownProfileIs404", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/profiles/nonexistent", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("UnknownAttestationIs404", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/attestations/nonexistent", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("AnalyzeUnknownDocumentIs404", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/catalog/EU/versions", PublishRequest{
			Requirements: []domain.Requirement{capRequirement()},
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("failed to publish catalog: %d", rr.Code)
		}

		rr = doJSON(t, server, http.MethodPost, "/analyze", AnalyzeRequest{
			DocumentID:     "nonexistent",
			JurisdictionID: "EU",
		})
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d: %s", rr.Code, rr.Body.String())
		}
	})
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t)

	t.Run("HealthCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}

		var resp map[string]string
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp["status"] != "healthy" {
			t.Errorf("expected status 'healthy', got '%s'", resp["status"])
		}
		if resp["version"] != "test-v1" {
			t.Errorf("expected version 'test-v1', got '%s'", resp["version"])
		}
	})

	t.Run("ReadyCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("TenantScopesRequest", func(t *testing.T) {
		var scoped string

		handler := TenantMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scoped = GetTenantID(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodPost, "/v1/catalog/publish", nil)
		req.Header.Set("X-Tenant-ID", "acme-legal")

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if scoped != "acme-legal" {
			t.Errorf("expected request scoped to tenant acme-legal, got %q", scoped)
		}
	})

	t.Run("TenantRejectsMalformedID", func(t *testing.T) {
		called := false
		handler := TenantMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))

		// A dot would alias another tenant's bus subject tree.
		for _, id := range []string{"acme.legal", "acme legal", "tenant/../other", strings.Repeat("a", 65)} {
			req := httptest.NewRequest(http.MethodGet, "/v1/jurisdictions", nil)
			req.Header.Set("X-Tenant-ID", id)

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Errorf("tenant id %q: expected status 400, got %d", id, rr.Code)
			}
		}
		if called {
			t.Error("handler must not run for a malformed tenant id")
		}
	})

	t.Run("TracingTagsResponseForAudit", func(t *testing.T) {
		var capturedRequestID string

		handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v, ok := r.Context().Value(RequestIDKey).(string); ok {
				capturedRequestID = v
			}
			w.WriteHeader(http.StatusCreated)
		}))

		req := httptest.NewRequest(http.MethodPost, "/v1/attest/doc-1", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedRequestID == "" {
			t.Error("expected request ID to be set")
		}

		// The audit trail correlates attestations with requests through
		// these response headers.
		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID response header")
		}
	})

	t.Run("RecoverMiddlewareHandlesPanic", func(t *testing.T) {
		handler := RecoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("scoring blew up")
		}))

		req := httptest.NewRequest(http.MethodPost, "/v1/analyze", nil)
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rr.Code)
		}
	})
}
