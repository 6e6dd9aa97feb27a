package audit

import (
	"testing"

	"github.com/google/uuid"

	"github.com/agentguard/policyguard/internal/policy"
)

func TestNewBlockedEventCarriesErrorKind(t *testing.T) {
	err := policy.New(policy.PrivacyError, "cannot downgrade")
	ev := NewBlockedEvent(uuid.New(), uuid.New(), err)
	if ev.Outcome != OutcomeBlocked {
		t.Fatalf("expected blocked outcome, got %v", ev.Outcome)
	}
	if ev.ErrorKind != "PrivacyError" {
		t.Fatalf("expected PrivacyError kind, got %q", ev.ErrorKind)
	}
}

func TestNewCleanEventHasNoErrorKind(t *testing.T) {
	ev := NewCleanEvent(uuid.New(), uuid.New())
	if ev.Outcome != OutcomeClean {
		t.Fatalf("expected clean outcome, got %v", ev.Outcome)
	}
	if ev.ErrorKind != "" {
		t.Fatalf("expected no error kind, got %q", ev.ErrorKind)
	}
}
