package policyio

import (
	"testing"

	"github.com/agentguard/policyguard/internal/dataframe"
	"github.com/agentguard/policyguard/internal/policy"
)

func TestMarshalChainJSONCleanUsesPolicyCleanTag(t *testing.T) {
	b, err := MarshalChainJSON(nil)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := UnmarshalChainJSON(b)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !policy.IsClean(got) {
		t.Fatalf("expected clean, got %v", got)
	}
}

func TestMarshalChainJSONRoundTripsDeclassify(t *testing.T) {
	label := policy.TransformLabel(policy.NewTransformOps(policy.Redact(0, 3)))
	chain, _ := policy.Cons(nil, label)
	b, err := MarshalChainJSON(chain)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := UnmarshalChainJSON(b)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !policy.EqualChain(chain, got) {
		t.Fatalf("round trip mismatch: %v vs %v", chain, got)
	}
}

func TestMarshalDataFrameJSONRoundTrips(t *testing.T) {
	df := dataframe.ExampleDF()
	b, err := MarshalDataFrameJSON(df)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := UnmarshalDataFrameJSON(b)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !got.Schema.Equal(df.Schema) {
		t.Fatalf("schema mismatch: %+v vs %+v", got.Schema, df.Schema)
	}
	rows, cols := got.Shape()
	wantRows, wantCols := df.Shape()
	if rows != wantRows || cols != wantCols {
		t.Fatalf("shape mismatch: (%d,%d) vs (%d,%d)", rows, cols, wantRows, wantCols)
	}
	for j, col := range got.Columns {
		for i, c := range col.Policies {
			if !policy.EqualChain(c, df.Columns[j].Policies[i]) {
				t.Fatalf("cell (%d,%d) mismatch: %v vs %v", i, j, c, df.Columns[j].Policies[i])
			}
		}
	}
}
