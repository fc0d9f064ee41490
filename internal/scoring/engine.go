// Package scoring provides the CEL-Go based statement scoring engine.
package scoring

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opensource-compliance/gavel/internal/domain"
)

// NewEnv creates the shared CEL environment for requirement predicates.
// The variable set is the full statement attribute surface; predicates are
// pure functions of these inputs, so scoring stays reproducible.
func NewEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("content", cel.StringType),
		cel.Variable("section", cel.StringType),
		cel.Variable("tags", cel.ListType(cel.StringType)),
		cel.Variable("values", cel.MapType(cel.StringType, cel.DoubleType)),
		cel.Variable("parties", cel.ListType(cel.StringType)),
	)
}

// Engine evaluates statements against requirement predicates.
type Engine struct {
	mu         sync.RWMutex
	env        *cel.Env
	programs   map[string]*compiledRequirement // key: requirement id
	maxWorkers int
}

type compiledRequirement struct {
	req     domain.Requirement
	program cel.Program
}

// NewEngine creates a scoring engine with a bounded worker pool.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 100
	}

	env, err := NewEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:        env,
		programs:   make(map[string]*compiledRequirement),
		maxWorkers: maxWorkers,
	}, nil
}

// CompilePredicate validates a single predicate against the shared
// environment without loading it. Used by the catalog at publish time.
func (e *Engine) CompilePredicate(predicate string) error {
	_, err := e.compile(predicate)
	return err
}

func (e *Engine) compile(predicate string) (cel.Program, error) {
	ast, issues := e.env.Compile(predicate)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("predicate must return bool, got %s", ast.OutputType())
	}

	return e.env.Program(ast)
}

// pair is one cell of the (statement, requirement) evaluation grid.
type pair struct {
	statement   *domain.Statement
	requirement *compiledRequirement
}

// Score evaluates every statement against every category-matching
// requirement and returns the findings sorted by (statement, requirement).
//
// A statement that cannot be judged produces an inconclusive finding, never
// an error: one bad clause must not block the batch. The returned error is
// reserved for systemic problems — a requirement whose predicate does not
// compile (the catalog should have rejected it) or pool scheduling failure
// on cancellation.
func (e *Engine) Score(ctx context.Context, statements []domain.Statement, requirements []domain.Requirement) ([]domain.Finding, error) {
	compiled, err := e.load(requirements)
	if err != nil {
		return nil, err
	}

	// Pre-filter: only evaluate pairs where the requirement's category is
	// among the statement's tags.
	var grid []pair
	for i := range statements {
		for _, cr := range compiled {
			if statements[i].HasTag(cr.req.Category) {
				grid = append(grid, pair{statement: &statements[i], requirement: cr})
			}
		}
	}

	if len(grid) == 0 {
		return nil, nil
	}

	findings := make([]domain.Finding, len(grid))
	sem := make(chan struct{}, e.maxWorkers)
	var wg sync.WaitGroup

	var schedErr error
	for i, p := range grid {
		if err := ctx.Err(); err != nil {
			schedErr = err
			break
		}
		select {
		case <-ctx.Done():
			schedErr = ctx.Err()
		case sem <- struct{}{}:
			wg.Add(1)
			go func(idx int, p pair) {
				defer wg.Done()
				defer func() { <-sem }()
				findings[idx] = evaluatePair(p.statement, p.requirement)
			}(i, p)
		}
		if schedErr != nil {
			break
		}
	}

	wg.Wait()

	if schedErr != nil {
		return nil, &domain.SchedulingError{Cause: schedErr}
	}

	sort.Slice(findings, func(i, j int) bool {
		if findings[i].StatementID != findings[j].StatementID {
			return findings[i].StatementID < findings[j].StatementID
		}
		return findings[i].RequirementID < findings[j].RequirementID
	})

	return findings, nil
}

// load compiles the given requirements, reusing cached programs when the
// predicate text is unchanged. The finding metadata (weight, category) is
// always taken from the requirement passed in, so a republished requirement
// with the same predicate but a new severity scores with the new severity.
func (e *Engine) load(requirements []domain.Requirement) ([]*compiledRequirement, error) {
	compiled := make([]*compiledRequirement, 0, len(requirements))

	e.mu.RLock()
	var missing []domain.Requirement
	for _, req := range requirements {
		if cr, ok := e.programs[req.ID]; ok && cr.req.Predicate == req.Predicate {
			compiled = append(compiled, &compiledRequirement{req: req, program: cr.program})
		} else {
			missing = append(missing, req)
		}
	}
	e.mu.RUnlock()

	if len(missing) == 0 {
		return compiled, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, req := range missing {
		program, err := e.compile(req.Predicate)
		if err != nil {
			return nil, &domain.ValidationError{
				RequirementIDs: []string{req.ID},
				Reason:         fmt.Sprintf("predicate does not compile: %v", err),
			}
		}
		cr := &compiledRequirement{req: req, program: program}
		e.programs[req.ID] = cr
		compiled = append(compiled, cr)
	}

	return compiled, nil
}

// evaluatePair scores one statement against one requirement. Pure: no
// clock, no randomness, no external calls.
func evaluatePair(st *domain.Statement, cr *compiledRequirement) domain.Finding {
	req := cr.req
	finding := domain.Finding{
		StatementID:   st.ID,
		DocumentID:    st.DocumentID,
		RequirementID: req.ID,
		Category:      req.Category,
	}

	if strings.TrimSpace(st.Content) == "" {
		finding.Outcome = domain.OutcomeInconclusive
		finding.Contribution = req.SeverityWeight * 0.5
		finding.Explanation = fmt.Sprintf(
			"extraction quality insufficient: statement %s has no content", st.ID)
		return finding
	}

	out, _, err := cr.program.Eval(activation(st))
	if err != nil {
		// A predicate that references an attribute the statement lacks
		// (e.g. a missing values key) errors at runtime. That is missing
		// signal, not a violation.
		finding.Outcome = domain.OutcomeInconclusive
		finding.Contribution = req.SeverityWeight * 0.5
		finding.Explanation = fmt.Sprintf(
			"extraction quality insufficient: predicate %q could not be evaluated against statement %s: %v",
			req.Predicate, st.ID, err)
		return finding
	}

	if asBool(out) {
		finding.Outcome = domain.OutcomeSatisfied
		finding.Contribution = 0
		finding.Explanation = fmt.Sprintf(
			"requirement %s satisfied: predicate %q held for statement %s",
			req.ID, req.Predicate, st.ID)
		return finding
	}

	finding.Outcome = domain.OutcomeViolated
	finding.Contribution = req.SeverityWeight
	finding.Explanation = fmt.Sprintf(
		"requirement %s violated: predicate %q evaluated false for statement %s (tags=[%s] values={%s})",
		req.ID, req.Predicate, st.ID,
		strings.Join(st.Tags, " "), formatValues(st.Values))
	return finding
}

func activation(st *domain.Statement) map[string]any {
	tags := st.Tags
	if tags == nil {
		tags = []string{}
	}
	parties := st.Parties
	if parties == nil {
		parties = []string{}
	}
	values := st.Values
	if values == nil {
		values = map[string]float64{}
	}
	return map[string]any{
		"content": st.Content,
		"section": st.Section,
		"tags":    tags,
		"values":  values,
		"parties": parties,
	}
}

func asBool(val ref.Val) bool {
	if b, ok := val.(types.Bool); ok {
		return bool(b)
	}
	return false
}

// formatValues renders a values map with sorted keys so explanations are
// deterministic.
func formatValues(values map[string]float64) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%g", k, values[k])
	}
	return strings.Join(parts, " ")
}

// CompiledCount returns the number of cached predicate programs.
func (e *Engine) CompiledCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.programs)
}

// Close clears the compiled program cache.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.programs = make(map[string]*compiledRequirement)
	return nil
}
