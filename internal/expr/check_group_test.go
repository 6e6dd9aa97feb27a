package expr

import (
	"context"
	"testing"

	"github.com/agentguard/policyguard/internal/arena"
	"github.com/agentguard/policyguard/internal/dataframe"
	"github.com/agentguard/policyguard/internal/policy"
)

func sumGroupDF(rows int) *dataframe.DataFrame {
	schema := dataframe.NewSchema(dataframe.Field{Name: "v", Type: dataframe.Int64})
	label := policy.AggLabel(policy.NewAggOps(policy.AggKind{How: "sum", GroupSize: 2}))
	policies := make([]*policy.Chain, rows)
	for i := range policies {
		c, _ := policy.Cons(nil, label)
		policies[i] = c
	}
	return dataframe.New(schema, []dataframe.Column{{Policies: policies}})
}

func TestCheckInGroupAggGroupSizeGateSucceeds(t *testing.T) {
	df := sumGroupDF(2)
	a := arena.New[Expr]()
	col := BuildColumn(a, ByIndex(0))
	agg, _ := BuildAgg(a, col, policy.AggKind{How: "sum", GroupSize: 2})

	proxy := dataframe.NewGroupByProxy()
	proxy.Add("g1", 0)
	proxy.Add("g1", 1)

	gc := &GroupContext{Exprs: a, DF: df, Proxy: proxy}
	res, err := CheckInGroup(context.Background(), gc, agg)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !policy.IsClean(res[0]) {
		t.Fatalf("expected Clean after a correctly-sized group sum, got %v", res[0])
	}
}

func TestCheckInGroupAggUsesActualGroupSizeNotDeclaredGroupSize(t *testing.T) {
	// A real caller can't know a policy-relevant group size in advance, so
	// Agg nodes are normally built with GroupSize: 0. The label checked
	// against the policy must still come from the group's actual row
	// count, not from this zero value.
	df := sumGroupDF(2)
	a := arena.New[Expr]()
	col := BuildColumn(a, ByIndex(0))
	agg, _ := BuildAgg(a, col, policy.AggKind{How: "sum", GroupSize: 0})

	proxy := dataframe.NewGroupByProxy()
	proxy.Add("g1", 0)
	proxy.Add("g1", 1)

	gc := &GroupContext{Exprs: a, DF: df, Proxy: proxy}
	res, err := CheckInGroup(context.Background(), gc, agg)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !policy.IsClean(res[0]) {
		t.Fatalf("expected Clean once the group's actual size (2) matches the policy's declared GroupSize, got %v", res[0])
	}
}

func TestCheckInGroupAggGroupSizeGateFailsOnMismatch(t *testing.T) {
	df := sumGroupDF(3)
	a := arena.New[Expr]()
	col := BuildColumn(a, ByIndex(0))
	agg, _ := BuildAgg(a, col, policy.AggKind{How: "sum", GroupSize: 2})

	proxy := dataframe.NewGroupByProxy()
	proxy.Add("g1", 0)
	proxy.Add("g1", 1)
	proxy.Add("g1", 2)

	gc := &GroupContext{Exprs: a, DF: df, Proxy: proxy}
	_, err := CheckInGroup(context.Background(), gc, agg)
	if !policy.Is(err, policy.PrivacyError) {
		t.Fatalf("expected PrivacyError, got %v", err)
	}
}

func TestCheckInGroupColumnMaterializesGroupedView(t *testing.T) {
	shift := policy.TransformLabel(policy.NewTransformOps(policy.Shift(1)))
	chain, _ := policy.Cons(nil, shift)
	schema := dataframe.NewSchema(dataframe.Field{Name: "a", Type: dataframe.Int64})
	df := dataframe.New(schema, []dataframe.Column{{Policies: []*policy.Chain{chain, nil}}})

	a := arena.New[Expr]()
	col := BuildColumn(a, ByIndex(0))
	proxy := dataframe.NewGroupByProxy()
	proxy.Add("g1", 0)
	proxy.Add("g1", 1)

	gc := &GroupContext{Exprs: a, DF: df, Proxy: proxy}
	res, err := CheckInGroup(context.Background(), gc, col)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(res) != 1 {
		t.Fatalf("expected one group, got %d", len(res))
	}
	if !policy.EqualChain(res[0], chain) {
		t.Fatalf("expected the joined per-row chain, got %v", res[0])
	}
}
