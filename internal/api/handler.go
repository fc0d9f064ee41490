package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-compliance/gavel/internal/aggregate"
	"github.com/opensource-compliance/gavel/internal/catalog"
	"github.com/opensource-compliance/gavel/internal/domain"
	"github.com/opensource-compliance/gavel/internal/drift"
	"github.com/opensource-compliance/gavel/internal/metrics"
	"github.com/opensource-compliance/gavel/internal/proof"
	"github.com/opensource-compliance/gavel/internal/repository"
	"github.com/opensource-compliance/gavel/internal/scoring"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	catalog  *catalog.Catalog
	engine   *scoring.Engine
	tracker  *drift.Tracker
	issuer   *proof.Issuer
	verifier *proof.Verifier
	metrics  *metrics.Metrics
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, cat *catalog.Catalog, engine *scoring.Engine, tracker *drift.Tracker, issuer *proof.Issuer, verifier *proof.Verifier, m *metrics.Metrics, version string) *Handler {
	return &Handler{
		repo:     repo,
		cache:    cache,
		bus:      bus,
		catalog:  cat,
		engine:   engine,
		tracker:  tracker,
		issuer:   issuer,
		verifier: verifier,
		metrics:  m,
		version:  version,
	}
}

// PublishRequest is the request body for publishing a regulation version.
type PublishRequest struct {
	EffectiveAt  string               `json:"effectiveAt,omitempty"` // RFC 3339, defaults to now
	Requirements []domain.Requirement `json:"requirements"`
}

// PublishVersion handles POST /catalog/{jurisdictionID}/versions.
func (h *Handler) PublishVersion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	jurisdictionID := chi.URLParam(r, "jurisdictionID")

	var req PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if len(req.Requirements) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "at least one requirement is required",
		})
		return
	}

	effectiveAt := time.Now().UTC()
	if req.EffectiveAt != "" {
		parsed, err := time.Parse(time.RFC3339, req.EffectiveAt)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "effectiveAt must be RFC 3339",
			})
			return
		}
		effectiveAt = parsed
	}

	version, err := h.catalog.Publish(ctx, tenantID, jurisdictionID, effectiveAt, req.Requirements)
	if err != nil {
		writeError(w, err)
		return
	}

	h.metrics.IncrementPublish(jurisdictionID)
	writeJSON(w, http.StatusCreated, version)
}

// GetActiveVersion handles GET /catalog/{jurisdictionID}/active.
// The optional asOf query parameter (RFC 3339) defaults to now.
func (h *Handler) GetActiveVersion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	jurisdictionID := chi.URLParam(r, "jurisdictionID")

	asOf := time.Now().UTC()
	if raw := r.URL.Query().Get("asOf"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "asOf must be RFC 3339",
			})
			return
		}
		asOf = parsed
	}

	version, err := h.catalog.ActiveVersion(ctx, tenantID, jurisdictionID, asOf)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, version)
}

// GetVersion handles GET /catalog/versions/{id}.
func (h *Handler) GetVersion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	versionID := chi.URLParam(r, "id")

	version, err := h.catalog.Version(ctx, tenantID, versionID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, version)
}

// DiffVersions handles GET /catalog/diff?from={id}&to={id}.
func (h *Handler) DiffVersions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	fromID := r.URL.Query().Get("from")
	toID := r.URL.Query().Get("to")
	if fromID == "" || toID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "from and to query parameters are required",
		})
		return
	}

	from, err := h.catalog.Version(ctx, tenantID, fromID)
	if err != nil {
		writeError(w, err)
		return
	}
	to, err := h.catalog.Version(ctx, tenantID, toID)
	if err != nil {
		writeError(w, err)
		return
	}

	diff := catalog.Diff(from, to)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"from": fromID,
		"to":   toID,
		"diff": diff,
	})
}

// DocumentRequest is the request body for POST /documents. Statements
// arrive pre-extracted with their normalized attributes.
type DocumentRequest struct {
	ID         string             `json:"id,omitempty"`
	Name       string             `json:"name"`
	Source     string             `json:"source,omitempty"`
	Statements []domain.Statement `json:"statements"`
}

// IngestDocument handles POST /documents.
func (h *Handler) IngestDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req DocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "name is required",
		})
		return
	}
	if len(req.Statements) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "at least one statement is required",
		})
		return
	}
	for i := range req.Statements {
		if req.Statements[i].Content == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "statement content is required",
			})
			return
		}
	}

	docID := req.ID
	if docID == "" {
		docID = uuid.New().String()
	}
	source := req.Source
	if source == "" {
		source = "api"
	}

	doc := &domain.Document{
		ID:         docID,
		TenantID:   tenantID,
		Name:       req.Name,
		Source:     source,
		CreatedAt:  time.Now().UTC(),
		Statements: req.Statements,
	}
	for i := range doc.Statements {
		if doc.Statements[i].ID == "" {
			doc.Statements[i].ID = uuid.New().String()
		}
		doc.Statements[i].DocumentID = docID
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}
	if err := h.repo.SaveDocument(ctx, tenantID, doc); err != nil {
		slog.Error("failed to save document", "id", docID, "error", err)
		writeError(w, err)
		return
	}

	slog.Info("document ingested", "id", docID, "statements", len(doc.Statements))
	writeJSON(w, http.StatusCreated, doc)
}

// GetDocument handles GET /documents/{id}.
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	docID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	doc, err := h.repo.GetDocument(ctx, tenantID, docID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

// AnalyzeRequest is the request body for POST /analyze.
type AnalyzeRequest struct {
	DocumentID     string `json:"documentId"`
	JurisdictionID string `json:"jurisdictionId"`
	AsOf           string `json:"asOf,omitempty"` // RFC 3339, defaults to now
}

// AnalyzeResponse is the response for POST /analyze and POST /portfolio/analyze.
type AnalyzeResponse struct {
	Profile  *domain.RiskProfile `json:"profile"`
	Metadata struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// Analyze handles POST /analyze: scores one document against the active
// regulation version and persists the resulting risk profile.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.DocumentID == "" || req.JurisdictionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "documentId and jurisdictionId are required",
		})
		return
	}

	asOf, ok := parseAsOf(w, req.AsOf)
	if !ok {
		return
	}

	profile, err := h.analyzeDocuments(ctx, tenantID, []string{req.DocumentID}, req.JurisdictionID, asOf, nil)
	if err != nil {
		writeError(w, err)
		return
	}

	h.writeAnalyzeResponse(w, r, profile, start)
}

// PortfolioRequest is the request body for POST /portfolio/analyze.
type PortfolioRequest struct {
	DocumentIDs    []string           `json:"documentIds"`
	JurisdictionID string             `json:"jurisdictionId"`
	Weights        map[string]float64 `json:"weights,omitempty"`
	AsOf           string             `json:"asOf,omitempty"`
}

// AnalyzePortfolio handles POST /portfolio/analyze: scores a weighted set
// of documents into a single portfolio risk profile.
func (h *Handler) AnalyzePortfolio(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req PortfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.DocumentIDs) == 0 || req.JurisdictionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "documentIds and jurisdictionId are required",
		})
		return
	}
	for docID, weight := range req.Weights {
		if weight < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "weight for document " + docID + " must be non-negative",
			})
			return
		}
	}

	asOf, ok := parseAsOf(w, req.AsOf)
	if !ok {
		return
	}

	profile, err := h.analyzeDocuments(ctx, tenantID, req.DocumentIDs, req.JurisdictionID, asOf, req.Weights)
	if err != nil {
		writeError(w, err)
		return
	}

	h.writeAnalyzeResponse(w, r, profile, start)
}

// analyzeDocuments runs the scoring pipeline: resolve the active
// regulation version, evaluate the statement grid, aggregate into a
// profile linked to its predecessor, persist, and announce.
func (h *Handler) analyzeDocuments(ctx context.Context, tenantID string, docIDs []string, jurisdictionID string, asOf time.Time, weights map[string]float64) (*domain.RiskProfile, error) {
	version, err := h.catalog.ActiveVersion(ctx, tenantID, jurisdictionID, asOf)
	if err != nil {
		return nil, err
	}

	var statements []domain.Statement
	for _, docID := range docIDs {
		doc, err := h.repo.GetDocument(ctx, tenantID, docID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, &domain.NotFoundError{Resource: "document", Key: docID}
			}
			return nil, err
		}
		statements = append(statements, doc.Statements...)
	}

	scoreStart := time.Now()
	findings, err := h.engine.Score(ctx, statements, version.Requirements)
	if err != nil {
		return nil, err
	}

	previousID := ""
	if len(docIDs) == 1 {
		prev, err := h.repo.LatestRiskProfile(ctx, tenantID, docIDs[0], jurisdictionID)
		if err == nil {
			previousID = prev.ID
		} else if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}

	profile := aggregate.Aggregate(findings, jurisdictionID, version.ID, &aggregate.Options{
		Weights:    weights,
		PreviousID: previousID,
	})
	profile.TenantID = tenantID

	// An undetermined evaluation produces no findings, so the document
	// set must be filled in from the request.
	if len(profile.DocumentIDs) == 0 {
		profile.DocumentIDs = append(profile.DocumentIDs, docIDs...)
		sort.Strings(profile.DocumentIDs)
		profile.ID = profile.Fingerprint()
	}

	if err := h.repo.SaveRiskProfile(ctx, tenantID, profile); err != nil {
		return nil, err
	}

	for _, f := range findings {
		h.metrics.IncrementFinding(string(f.Outcome))
	}
	h.metrics.ObserveScoreLatency(time.Since(scoreStart))

	if h.bus != nil {
		event := domain.ProfileScoredEvent{
			TenantID:            tenantID,
			ProfileID:           profile.ID,
			DocumentIDs:         profile.DocumentIDs,
			JurisdictionID:      jurisdictionID,
			RegulationVersionID: version.ID,
			OverallScore:        profile.OverallScore,
			Undetermined:        profile.Undetermined,
		}
		if err := h.bus.Publish(ctx, tenantID, domain.TopicProfileScored, event); err != nil {
			slog.Warn("failed to publish profile.scored", "profile_id", profile.ID, "error", err)
		}
	}

	slog.Info("profile scored",
		"tenant_id", tenantID,
		"profile_id", profile.ID,
		"jurisdiction", jurisdictionID,
		"score", profile.OverallScore,
		"undetermined", profile.Undetermined,
		"findings", len(findings),
	)
	return profile, nil
}

func (h *Handler) writeAnalyzeResponse(w http.ResponseWriter, r *http.Request, profile *domain.RiskProfile, start time.Time) {
	resp := AnalyzeResponse{Profile: profile}
	resp.Metadata.TraceID = GetTraceID(r.Context())
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version
	writeJSON(w, http.StatusOK, resp)
}

// GetProfile handles GET /profiles/{id}.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	profileID := chi.URLParam(r, "id")

	profile, err := h.repo.GetRiskProfile(ctx, tenantID, profileID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

// ListDrift handles GET /documents/{id}/drift: returns the open (not yet
// archived) drift records for a document, plus the current drift state
// when a jurisdiction is named.
func (h *Handler) ListDrift(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	docID := chi.URLParam(r, "id")

	records, err := h.repo.ListOpenDriftRecords(ctx, tenantID, docID)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]interface{}{
		"records": records,
		"count":   len(records),
	}
	if jurisdictionID := r.URL.Query().Get("jurisdiction"); jurisdictionID != "" && h.tracker != nil {
		resp["state"] = h.tracker.State(tenantID, docID, jurisdictionID)
	}

	writeJSON(w, http.StatusOK, resp)
}

// RescoreRequest is the request body for POST /documents/{id}/rescore.
type RescoreRequest struct {
	JurisdictionID string `json:"jurisdictionId"`
	AsOf           string `json:"asOf,omitempty"`
}

// Rescore handles POST /documents/{id}/rescore: re-runs the scoring
// pipeline against the active regulation version, archives the document's
// open drift records, and returns the pair to the current state.
func (h *Handler) Rescore(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	docID := chi.URLParam(r, "id")

	var req RescoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.JurisdictionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "jurisdictionId is required",
		})
		return
	}

	asOf, ok := parseAsOf(w, req.AsOf)
	if !ok {
		return
	}

	profile, err := h.analyzeDocuments(ctx, tenantID, []string{docID}, req.JurisdictionID, asOf, nil)
	if err != nil {
		writeError(w, err)
		return
	}

	if h.tracker != nil {
		if err := h.tracker.MarkRescored(ctx, tenantID, docID, req.JurisdictionID); err != nil {
			slog.Error("failed to mark document rescored", "document_id", docID, "error", err)
		}
	}

	h.writeAnalyzeResponse(w, r, profile, start)
}

// AttestRequest is the optional request body for POST /profiles/{id}/attest.
// An absent body or zero threshold applies the default bar of 100.
type AttestRequest struct {
	MinimumThreshold float64 `json:"minimumThreshold"`
}

// AttestResponse is the response for POST /profiles/{id}/attest.
type AttestResponse struct {
	ID          string                   `json:"id"`
	Attestation domain.AttestationExport `json:"attestation"`
	Token       string                   `json:"token,omitempty"`
	PublicKey   string                   `json:"publicKey"`
}

// Attest handles POST /profiles/{id}/attest: issues a signed compliance
// attestation for a profile scoring at or above the caller's minimum
// threshold. Profiles below the bar and undetermined profiles are refused
// with the failing requirements.
func (h *Handler) Attest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	profileID := chi.URLParam(r, "id")

	if h.issuer == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "attestation issuer not available",
		})
		return
	}

	var req AttestRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
	}
	threshold := req.MinimumThreshold
	if threshold == 0 {
		threshold = proof.DefaultMinimumThreshold
	}

	profile, err := h.repo.GetRiskProfile(ctx, tenantID, profileID)
	if err != nil {
		writeError(w, err)
		return
	}

	att, err := h.issuer.Issue(ctx, tenantID, profile, threshold)
	if err != nil {
		h.metrics.IncrementAttestation("refused")
		writeError(w, err)
		return
	}
	h.metrics.IncrementAttestation("issued")

	resp := AttestResponse{
		ID:          att.ID,
		Attestation: att.Export(),
		PublicKey:   hex.EncodeToString(h.issuer.PublicKey()),
	}
	if token, err := h.issuer.Token(att); err == nil {
		resp.Token = token
	} else {
		slog.Warn("failed to mint attestation token", "attestation_id", att.ID, "error", err)
	}

	writeJSON(w, http.StatusCreated, resp)
}

// GetAttestation handles GET /attestations/{id}.
func (h *Handler) GetAttestation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	attID := chi.URLParam(r, "id")

	att, err := h.repo.GetAttestation(ctx, tenantID, attID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, att.Export())
}

// VerifyRequest is the request body for POST /attestations/verify.
type VerifyRequest struct {
	Attestation domain.AttestationExport `json:"attestation"`

	// ExpectedRegulationVersionID pins verification to one regulation
	// version; empty skips the pin.
	ExpectedRegulationVersionID string `json:"expectedRegulationVersionId,omitempty"`
}

// VerifyAttestation handles POST /attestations/verify. Verification is an
// offline check against the issuer's public key; an invalid or expired
// attestation is a 200 with valid=false, never an error status.
func (h *Handler) VerifyAttestation(w http.ResponseWriter, r *http.Request) {
	if h.verifier == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "attestation verifier not available",
		})
		return
	}

	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	result := h.verifier.Verify(req.Attestation, req.ExpectedRegulationVersionID)
	writeJSON(w, http.StatusOK, result)
}

// VerifyTokenRequest is the request body for POST /attestations/verify-token.
type VerifyTokenRequest struct {
	Token string `json:"token"`
}

// VerifyToken handles POST /attestations/verify-token: verifies the JWT
// rendering of an attestation and returns the embedded claims.
func (h *Handler) VerifyToken(w http.ResponseWriter, r *http.Request) {
	if h.verifier == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "attestation verifier not available",
		})
		return
	}

	var req VerifyTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "token is required",
		})
		return
	}

	export, result := h.verifier.VerifyToken(req.Token)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"result":      result,
		"attestation": export,
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// parseAsOf parses an optional RFC 3339 as-of time, defaulting to now.
// Writes a 400 and returns false on a malformed value.
func parseAsOf(w http.ResponseWriter, raw string) (time.Time, bool) {
	if raw == "" {
		return time.Now().UTC(), true
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "asOf must be RFC 3339",
		})
		return time.Time{}, false
	}
	return parsed, true
}

// writeError maps domain error types to HTTP statuses. Unknown errors are
// logged and surfaced as a bare 500.
func writeError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	var notFoundErr *domain.NotFoundError
	var thresholdErr *domain.ThresholdNotMetError
	var schedulingErr *domain.SchedulingError

	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":          validationErr.Error(),
			"requirementIds": validationErr.RequirementIDs,
		})
	case errors.As(err, &notFoundErr):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": notFoundErr.Error(),
		})
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "not found",
		})
	case errors.As(err, &thresholdErr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":        thresholdErr.Error(),
			"score":        thresholdErr.Score,
			"threshold":    thresholdErr.Threshold,
			"undetermined": thresholdErr.Undetermined,
			"failing":      thresholdErr.Failing,
		})
	case errors.As(err, &schedulingErr):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": schedulingErr.Error(),
		})
	default:
		slog.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal server error",
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
