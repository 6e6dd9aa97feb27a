// Package audit records the outcomes the monitor cannot leave unlogged:
// every Finalize call and every PrivacyError it raises, so a deployment can
// answer "what did the policy engine block, and why" after the fact.
package audit

import (
	"context"

	"github.com/google/uuid"

	"github.com/agentguard/policyguard/internal/policy"
)

// Outcome is how a checked operation ended.
type Outcome string

const (
	OutcomeClean   Outcome = "clean"
	OutcomeBlocked Outcome = "blocked"
)

// Event is one row of the audit trail: a context/plan pair, what happened,
// and — for a blocked outcome — the policy error that caused it.
type Event struct {
	ContextID uuid.UUID
	PlanID    uuid.UUID
	Outcome   Outcome
	ErrorKind string
	Message   string
}

// NewCleanEvent records a Finalize that found every cell clean.
func NewCleanEvent(contextID, planID uuid.UUID) Event {
	return Event{ContextID: contextID, PlanID: planID, Outcome: OutcomeClean}
}

// NewBlockedEvent records a Finalize or check that failed with err.
func NewBlockedEvent(contextID, planID uuid.UUID, err error) Event {
	e := Event{ContextID: contextID, PlanID: planID, Outcome: OutcomeBlocked, Message: err.Error()}
	if pe, ok := err.(*policy.Error); ok {
		e.ErrorKind = pe.Kind.String()
	}
	return e
}

// Recorder persists audit events. Implementations must not block the check
// path on a slow or unreachable store; the postgres implementation logs and
// swallows its own write failures rather than surfacing them to the caller
// performing the policy check.
type Recorder interface {
	Record(ctx context.Context, event Event) error
	Close()
}

// NopRecorder discards every event, for configurations with no audit store
// wired (e.g. unit tests, or a deployment that hasn't opted in yet).
type NopRecorder struct{}

func (NopRecorder) Record(ctx context.Context, event Event) error { return nil }
func (NopRecorder) Close()                                        {}
