// Package admission gates which TransformKind names, UDF names and AggKind
// "how"s are allowed into an expression or plan at build time, using OPA/Rego
// the same way the teacher's pkg/opa engine gates tool and data-flow access.
package admission

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage"
	"github.com/open-policy-agent/opa/storage/inmem"
	"github.com/rs/zerolog/log"
)

// Engine is the admission-control engine powered by OPA.
type Engine struct {
	mu          sync.RWMutex
	queries     map[string]*rego.PreparedEvalQuery
	store       storage.Store
	initialized bool
}

// Ready returns true if the engine has at least one policy loaded.
func (e *Engine) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.initialized
}

// Decision is the result of one admission check.
type Decision struct {
	Allow      bool           `json:"allow"`
	Reasons    []string       `json:"reasons,omitempty"`
	Violations []Violation    `json:"violations,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	EvalTimeUs int64          `json:"eval_time_us"`
}

// Violation is one denial detail.
type Violation struct {
	Policy      string `json:"policy"`
	Rule        string `json:"rule"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

// Operation is the kind of expr/plan construction site admission gates.
type Operation string

const (
	OpTransform Operation = "transform"
	OpUDF       Operation = "udf"
	OpAgg       Operation = "agg"
)

// EvaluationInput is the input to an admission check: which operation is
// being built, the name/kind being requested, and the context it's being
// built into.
type EvaluationInput struct {
	Operation Operation `json:"operation"`
	Name      string    `json:"name"`
	ContextID string    `json:"context_id,omitempty"`
}

// NewEngine creates a new admission engine with an empty in-memory store.
func NewEngine() (*Engine, error) {
	return &Engine{
		queries: make(map[string]*rego.PreparedEvalQuery),
		store:   inmem.New(),
	}, nil
}

// LoadPolicies compiles and prepares the Rego policies at paths.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	r := rego.New(
		rego.Query("data.policyguard.admission"),
		rego.Store(e.store),
		rego.Load(paths, nil),
	)
	pq, err := r.PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("preparing admission policy: %w", err)
	}
	e.queries["default"] = &pq
	e.initialized = true
	return nil
}

// LoadPolicyBundle loads a policy bundle from a tar.gz file.
func (e *Engine) LoadPolicyBundle(ctx context.Context, bundlePath string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	r := rego.New(
		rego.Query("data.policyguard.admission"),
		rego.Store(e.store),
		rego.LoadBundle(bundlePath),
	)
	pq, err := r.PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("loading admission bundle: %w", err)
	}
	e.queries["default"] = &pq
	e.initialized = true
	return nil
}

// UpdateData writes an allowlist (or any other document) into the engine's
// data store at path, e.g. "policies/allowed_udfs".
func (e *Engine) UpdateData(ctx context.Context, path string, data any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	txn, err := e.store.NewTransaction(ctx, storage.WriteParams)
	if err != nil {
		return fmt.Errorf("starting storage transaction: %w", err)
	}
	storagePath, ok := storage.ParsePath("/" + path)
	if !ok {
		e.store.Abort(ctx, txn)
		return fmt.Errorf("invalid storage path: %s", path)
	}
	if err := e.store.Write(ctx, txn, storage.AddOp, storagePath, data); err != nil {
		e.store.Abort(ctx, txn)
		return fmt.Errorf("writing to storage path %s: %w", path, err)
	}
	if err := e.store.Commit(ctx, txn); err != nil {
		e.store.Abort(ctx, txn)
		return fmt.Errorf("committing storage transaction: %w", err)
	}
	return nil
}

const maxAdmissionInputSize = 1 << 20 // 1 MB

// Evaluate runs the default admission policy against input.
func (e *Engine) Evaluate(ctx context.Context, input *EvaluationInput) (*Decision, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	start := time.Now()

	pq, ok := e.queries["default"]
	if !ok || pq == nil {
		return nil, fmt.Errorf("no admission policy loaded")
	}

	inputJSON, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("serializing admission input: %w", err)
	}
	if len(inputJSON) > maxAdmissionInputSize {
		return nil, fmt.Errorf("admission input exceeds maximum size of %d bytes", maxAdmissionInputSize)
	}

	results, err := pq.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("admission evaluation failed: %w", err)
	}

	decision := &Decision{Allow: false, EvalTimeUs: time.Since(start).Microseconds()}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return decision, nil
	}

	result := results[0].Expressions[0].Value
	resultMap, ok := result.(map[string]any)
	if !ok {
		if allow, ok := result.(bool); ok {
			decision.Allow = allow
		}
		return decision, nil
	}
	if allow, ok := resultMap["allow"].(bool); ok {
		decision.Allow = allow
	}
	if reasons, ok := resultMap["reasons"].([]any); ok {
		for _, r := range reasons {
			if s, ok := r.(string); ok {
				decision.Reasons = append(decision.Reasons, s)
			}
		}
	}
	if violations, ok := resultMap["violations"].([]any); ok {
		for _, v := range violations {
			if vm, ok := v.(map[string]any); ok {
				decision.Violations = append(decision.Violations, Violation{
					Policy:      getString(vm, "policy"),
					Rule:        getString(vm, "rule"),
					Description: getString(vm, "description"),
					Severity:    getString(vm, "severity"),
				})
			}
		}
	}
	log.Debug().Str("operation", string(input.Operation)).Str("name", input.Name).Bool("allow", decision.Allow).Msg("admission decision")
	return decision, nil
}

// EvaluateTransform gates a TransformKind name at expr_from_args time.
func (e *Engine) EvaluateTransform(ctx context.Context, name string) (*Decision, error) {
	return e.Evaluate(ctx, &EvaluationInput{Operation: OpTransform, Name: name})
}

// EvaluateUDF gates a Unary/Binary UDF name at expr_from_args time.
func (e *Engine) EvaluateUDF(ctx context.Context, name string) (*Decision, error) {
	return e.Evaluate(ctx, &EvaluationInput{Operation: OpUDF, Name: name})
}

// EvaluateAgg gates an AggKind.How at plan_from_args time.
func (e *Engine) EvaluateAgg(ctx context.Context, how string) (*Decision, error) {
	return e.Evaluate(ctx, &EvaluationInput{Operation: OpAgg, Name: how})
}

func getString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// BaseAdmissionPolicy is the default Rego policy: every operation's name must
// appear in the matching allowlist document, keyed by operation kind.
const BaseAdmissionPolicy = `
package policyguard.admission

import future.keywords.in

default allow = false

allow {
	input.operation == "transform"
	input.name in data.policies.allowed_transforms
}

allow {
	input.operation == "udf"
	input.name in data.policies.allowed_udfs
}

allow {
	input.operation == "agg"
	input.name in data.policies.allowed_aggs
}

denial_reasons[reason] {
	not allow
	reason := sprintf("operation '%s' for name '%s' is not on the admission allowlist", [input.operation, input.name])
}
`
