package domain

// Outcome is the result of evaluating one statement against one requirement.
type Outcome string

const (
	// OutcomeSatisfied means the predicate held; no risk contribution.
	OutcomeSatisfied Outcome = "satisfied"

	// OutcomeViolated means the predicate evaluated false with enough
	// statement signal to judge; contributes the full severity weight.
	OutcomeViolated Outcome = "violated"

	// OutcomeInconclusive means the statement lacked the signal the
	// predicate needed; contributes half the severity weight and must be
	// surfaced as "needs review", never as a hard failure.
	OutcomeInconclusive Outcome = "inconclusive"
)

// Finding is the append-only fact produced by one (statement, requirement)
// evaluation. Findings are recomputed, never mutated.
type Finding struct {
	StatementID   string  `json:"statementId"`
	DocumentID    string  `json:"documentId"`
	RequirementID string  `json:"requirementId"`
	Category      string  `json:"category"`
	Outcome       Outcome `json:"outcome"`

	// Contribution is the risk this finding adds: 0 when satisfied,
	// severityWeight when violated, severityWeight/2 when inconclusive.
	Contribution float64 `json:"contribution"`

	// Explanation is a deterministic, templated rendering of the predicate
	// verdict and the attributes consulted.
	Explanation string `json:"explanation"`
}
