// Package aggregate rolls findings up into risk profiles.
//
// Aggregation is a pure, side-effect-free reduction: the same finding set
// always yields a bit-identical profile, which is what keeps the proof
// commitment stable.
package aggregate

import (
	"sort"

	"github.com/opensource-compliance/gavel/internal/domain"
)

// Options tunes an aggregation.
type Options struct {
	// Weights maps document id to its portfolio weight. Documents without
	// an entry weigh 1. Nil means every document weighs equally.
	Weights map[string]float64

	// PreviousID links the produced profile to the one it supersedes.
	PreviousID string
}

// Aggregate reduces findings into a risk profile for one regulation
// version. Overall score = 100 - min(100, Σcontribution / numEvaluated *
// 100): a normalized inverse-risk index where 100 is fully compliant and 0
// is maximal risk. Per-category subscores use the same formula restricted
// to that category.
//
// An empty evaluation (no requirement applied to any statement) marks the
// profile undetermined rather than defaulting to 100.
func Aggregate(findings []domain.Finding, jurisdictionID, regulationVersionID string, opts *Options) *domain.RiskProfile {
	if opts == nil {
		opts = &Options{}
	}

	profile := &domain.RiskProfile{
		JurisdictionID:      jurisdictionID,
		RegulationVersionID: regulationVersionID,
		CategoryScores:      map[string]float64{},
		PreviousID:          opts.PreviousID,
	}

	sorted := make([]domain.Finding, len(findings))
	copy(sorted, findings)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].StatementID != sorted[j].StatementID {
			return sorted[i].StatementID < sorted[j].StatementID
		}
		return sorted[i].RequirementID < sorted[j].RequirementID
	})
	profile.Findings = sorted

	docSet := map[string]struct{}{}

	var totalRisk, totalWeight float64
	catRisk := map[string]float64{}
	catWeight := map[string]float64{}

	for _, f := range sorted {
		docSet[f.DocumentID] = struct{}{}

		w := 1.0
		if opts.Weights != nil {
			if dw, ok := opts.Weights[f.DocumentID]; ok {
				w = dw
			}
		}

		totalRisk += f.Contribution * w
		totalWeight += w
		catRisk[f.Category] += f.Contribution * w
		catWeight[f.Category] += w
	}

	profile.DocumentIDs = make([]string, 0, len(docSet))
	for id := range docSet {
		profile.DocumentIDs = append(profile.DocumentIDs, id)
	}
	sort.Strings(profile.DocumentIDs)

	profile.FindingsEvaluated = totalWeight

	if totalWeight == 0 {
		profile.Undetermined = true
		profile.OverallScore = 0
		profile.ID = profile.Fingerprint()
		return profile
	}

	profile.OverallScore = score(totalRisk, totalWeight)
	for cat := range catRisk {
		profile.CategoryScores[cat] = score(catRisk[cat], catWeight[cat])
	}

	profile.ID = profile.Fingerprint()
	return profile
}

// score computes 100 - min(100, risk/weight*100). A single fully-weighted
// violation saturates risk for its slice of the evaluation.
func score(risk, weight float64) float64 {
	normalized := risk / weight * 100
	if normalized > 100 {
		normalized = 100
	}
	return 100 - normalized
}
