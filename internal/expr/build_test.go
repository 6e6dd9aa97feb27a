package expr

import (
	"testing"

	"github.com/google/uuid"

	"github.com/agentguard/policyguard/internal/arena"
	"github.com/agentguard/policyguard/internal/policy"
)

func TestBuildRejectsDanglingSubexpression(t *testing.T) {
	a := arena.New[Expr]()
	if _, err := BuildAlias(a, uuid.New(), "x"); !policy.Is(err, policy.InvalidOperation) {
		t.Fatalf("expected InvalidOperation, got %v", err)
	}
}

func TestBuildBinaryValidatesBothSides(t *testing.T) {
	a := arena.New[Expr]()
	lit := BuildLiteral(a, policy.Int64Value(1))
	if _, err := BuildBinary(a, lit, Add, uuid.New()); !policy.Is(err, policy.InvalidOperation) {
		t.Fatalf("expected InvalidOperation for dangling right side, got %v", err)
	}
	if _, err := BuildBinary(a, lit, Add, lit); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}

func TestBuildApplyValidatesAllArgs(t *testing.T) {
	a := arena.New[Expr]()
	lit := BuildLiteral(a, policy.Int64Value(1))
	if _, err := BuildApply(a, "+", []uuid.UUID{lit, uuid.New()}); !policy.Is(err, policy.InvalidOperation) {
		t.Fatalf("expected InvalidOperation, got %v", err)
	}
}

func TestBuildTernaryValidatesAllThreeBranches(t *testing.T) {
	a := arena.New[Expr]()
	cond := BuildLiteral(a, policy.BoolValue(true))
	then := BuildLiteral(a, policy.Int64Value(1))
	if _, err := BuildTernary(a, cond, then, uuid.New()); !policy.Is(err, policy.InvalidOperation) {
		t.Fatalf("expected InvalidOperation, got %v", err)
	}
}
