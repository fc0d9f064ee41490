package domain

import "time"

// Document is a source contract or business-model description.
// It owns its statements; statements are produced once by the external
// extractor and are immutable thereafter.
type Document struct {
	ID         string      `json:"id"`
	TenantID   string      `json:"tenantId"`
	Name       string      `json:"name"`
	Source     string      `json:"source,omitempty"` // e.g. "upload", "api"
	CreatedAt  time.Time   `json:"createdAt"`
	Statements []Statement `json:"statements,omitempty"`
}

// Statement is one extracted clause or assertion from a document.
type Statement struct {
	ID         string `json:"id"`
	DocumentID string `json:"documentId"`
	Section    string `json:"section"`
	Content    string `json:"content"`

	// Normalized attributes detected by the extractor.
	// Tags come from the shared category vocabulary the catalog also uses;
	// the scoring pre-filter depends on tag overlap.
	Tags    []string           `json:"tags"`
	Values  map[string]float64 `json:"values,omitempty"`
	Parties []string           `json:"parties,omitempty"`
}

// HasTag reports whether the statement carries the given category tag.
func (s *Statement) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
