package expr

import (
	"testing"
	"time"

	"github.com/agentguard/policyguard/internal/arena"
	"github.com/agentguard/policyguard/internal/dataframe"
	"github.com/agentguard/policyguard/internal/policy"
)

func TestConvertValueDatatypeTable(t *testing.T) {
	if v, err := ConvertValue(dataframe.Int32, int32(3)); err != nil || v.Int32 != 3 {
		t.Fatalf("Int32: got (%v, %v)", v, err)
	}
	if v, err := ConvertValue(dataframe.Date32, int32(2)); err != nil || v.Duration != 48*time.Hour {
		t.Fatalf("Date32: got (%v, %v)", v, err)
	}
	if v, err := ConvertValue(dataframe.TimestampNanos, int64(1500)); err != nil || v.Duration != 1500*time.Nanosecond {
		t.Fatalf("Timestamp: got (%v, %v)", v, err)
	}
	if _, err := ConvertValue(dataframe.Boolean, true); !policy.Is(err, policy.InvalidOperation) {
		t.Fatalf("expected InvalidOperation for an unreifiable datatype, got %v", err)
	}
}

func TestReifyBinaryRejectsWrongVariant(t *testing.T) {
	a := arena.New[Expr]()
	lit := BuildLiteral(a, policy.Int64Value(1))
	err := ReifyBinary(a, lit, dataframe.Int64, [][2]any{{int64(1), int64(2)}})
	if !policy.Is(err, policy.InvalidOperation) {
		t.Fatalf("expected InvalidOperation, got %v", err)
	}
}

func TestReifyBinaryStoresConvertedValues(t *testing.T) {
	a := arena.New[Expr]()
	l := BuildLiteral(a, policy.Int64Value(1))
	r := BuildLiteral(a, policy.Int64Value(2))
	bin, _ := BuildBinary(a, l, Add, r)
	if err := ReifyBinary(a, bin, dataframe.Int64, [][2]any{{int64(5), int64(7)}}); err != nil {
		t.Fatalf("reify: %v", err)
	}
	got, _ := a.Get(bin)
	b := got.(BinaryExpr)
	if !b.Reified || b.Values[0][0].Int64 != 5 || b.Values[0][1].Int64 != 7 {
		t.Fatalf("unexpected reified values: %+v", b)
	}
}

func TestResolveColumnSetsIndex(t *testing.T) {
	a := arena.New[Expr]()
	col := BuildColumn(a, ByName("a"))
	if err := ResolveColumn(a, col, 2); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	got, _ := a.Get(col)
	c := got.(Column)
	if !c.Ident.HasIndex || c.Ident.Index != 2 {
		t.Fatalf("column not resolved: %+v", c)
	}
}
