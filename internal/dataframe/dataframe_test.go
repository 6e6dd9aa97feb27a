package dataframe

import (
	"testing"

	"github.com/agentguard/policyguard/internal/policy"
)

func TestShapeOfExampleDF(t *testing.T) {
	df := ExampleDF()
	rows, cols := df.Shape()
	if rows != 5 || cols != 2 {
		t.Fatalf("got shape (%d,%d), want (5,2)", rows, cols)
	}
}

func TestEmptyDataFrameShapeIsZeroZero(t *testing.T) {
	df := New(NewSchema(), nil)
	rows, cols := df.Shape()
	if rows != 0 || cols != 0 {
		t.Fatalf("got shape (%d,%d), want (0,0)", rows, cols)
	}
}

func TestSanityCheckCatchesSchemaMismatch(t *testing.T) {
	df := New(NewSchema(Field{Name: "a", Type: Int64}), nil)
	if err := df.SanityCheck(); !policy.Is(err, policy.InvalidOperation) {
		t.Fatalf("expected InvalidOperation, got %v", err)
	}
}

func TestFilterRetainsRowsAndMutatesInPlace(t *testing.T) {
	df := ExampleDF()
	if err := df.Filter([]bool{true, false, true, false, true}); err != nil {
		t.Fatalf("filter: %v", err)
	}
	rows, cols := df.Shape()
	if rows != 3 || cols != 2 {
		t.Fatalf("got shape (%d,%d), want (3,2)", rows, cols)
	}
}

func TestFilterRejectsWrongLengthPredicate(t *testing.T) {
	df := ExampleDF()
	err := df.Filter([]bool{true, false})
	if !policy.Is(err, policy.InvalidOperation) {
		t.Fatalf("expected InvalidOperation, got %v", err)
	}
}

func TestFinalizeFailsOnNonCleanCell(t *testing.T) {
	df := ExampleDF()
	err := df.Finalize()
	if !policy.Is(err, policy.PrivacyError) {
		t.Fatalf("expected PrivacyError, got %v", err)
	}
}

func TestFinalizeSucceedsWhenAllClean(t *testing.T) {
	schema := NewSchema(Field{Name: "b", Type: Int64})
	df := New(schema, []Column{{Policies: []*policy.Chain{nil, nil, nil}}})
	if err := df.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
}

func TestIntoRowsFromRowsRoundTrip(t *testing.T) {
	df := ExampleDF()
	rows := df.IntoRows()
	back := FromRows(df.Schema, rows)
	if !back.Schema.Equal(df.Schema) {
		t.Fatal("schema not preserved")
	}
	r1, c1 := df.Shape()
	r2, c2 := back.Shape()
	if r1 != r2 || c1 != c2 {
		t.Fatalf("shape not preserved: (%d,%d) vs (%d,%d)", r1, c1, r2, c2)
	}
}

func TestGroupsJoinsPerRowPolicies(t *testing.T) {
	df := ExampleDF()
	proxy := NewGroupByProxy()
	proxy.Add("g1", 0)
	proxy.Add("g1", 1)
	proxy.Add("g2", 2)
	grouped, err := df.Groups(proxy)
	if err != nil {
		t.Fatalf("groups: %v", err)
	}
	rows, _ := grouped.Shape()
	if rows != 2 {
		t.Fatalf("got %d groups, want 2", rows)
	}
}
