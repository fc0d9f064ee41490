package domain

import "context"

// RawDocument is the unextracted input handed to the extractor boundary.
type RawDocument struct {
	DocumentID string `json:"documentId"`
	TenantID   string `json:"tenantId"`
	MediaType  string `json:"mediaType"` // e.g. "application/pdf", "text/plain"
	Content    []byte `json:"content"`
}

// Extractor is the external collaborator that converts a raw document into
// structured statements. Extraction internals (NLP, layout analysis) live
// outside this engine; the contract is only that each statement is tagged
// from the shared category vocabulary the catalog also uses, since the
// scoring pre-filter depends on tag overlap.
type Extractor interface {
	Extract(ctx context.Context, raw *RawDocument) ([]Statement, error)
}
