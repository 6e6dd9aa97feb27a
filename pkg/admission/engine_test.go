package admission

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func loadBasePolicy(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "admission.rego")
	if err := os.WriteFile(path, []byte(BaseAdmissionPolicy), 0o644); err != nil {
		t.Fatalf("writing policy fixture: %v", err)
	}
	e, err := NewEngine()
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := e.LoadPolicies(context.Background(), []string{path}); err != nil {
		t.Fatalf("LoadPolicies: %v", err)
	}
	return e
}

func TestEngineReadyBeforeAndAfterLoad(t *testing.T) {
	e, err := NewEngine()
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if e.Ready() {
		t.Fatal("fresh engine should not be ready")
	}
	e = loadBasePolicy(t)
	if !e.Ready() {
		t.Fatal("engine should be ready after LoadPolicies")
	}
}

func TestEvaluateDeniesUnlistedName(t *testing.T) {
	e := loadBasePolicy(t)
	d, err := e.EvaluateUDF(context.Background(), "dt.offset_by")
	if err != nil {
		t.Fatalf("EvaluateUDF: %v", err)
	}
	if d.Allow {
		t.Fatal("expected deny for a name not on any allowlist")
	}
}

func TestEvaluateAllowsAllowlistedName(t *testing.T) {
	e := loadBasePolicy(t)
	if err := e.UpdateData(context.Background(), "policies/allowed_udfs", []string{"dt.offset_by"}); err != nil {
		t.Fatalf("UpdateData: %v", err)
	}
	d, err := e.EvaluateUDF(context.Background(), "dt.offset_by")
	if err != nil {
		t.Fatalf("EvaluateUDF: %v", err)
	}
	if !d.Allow {
		t.Fatalf("expected allow once dt.offset_by is allowlisted, got %+v", d)
	}

	d, err = e.EvaluateUDF(context.Background(), "some.other.udf")
	if err != nil {
		t.Fatalf("EvaluateUDF: %v", err)
	}
	if d.Allow {
		t.Fatal("expected deny for a name still absent from the allowlist")
	}
}

func TestEvaluateTransformAndAggOperations(t *testing.T) {
	e := loadBasePolicy(t)
	if err := e.UpdateData(context.Background(), "policies/allowed_transforms", []string{"Shift"}); err != nil {
		t.Fatalf("UpdateData transforms: %v", err)
	}
	if err := e.UpdateData(context.Background(), "policies/allowed_aggs", []string{"sum"}); err != nil {
		t.Fatalf("UpdateData aggs: %v", err)
	}

	if d, err := e.EvaluateTransform(context.Background(), "Shift"); err != nil || !d.Allow {
		t.Fatalf("expected Shift transform allowed, got %+v, err %v", d, err)
	}
	if d, err := e.EvaluateAgg(context.Background(), "sum"); err != nil || !d.Allow {
		t.Fatalf("expected sum agg allowed, got %+v, err %v", d, err)
	}
	if d, err := e.EvaluateAgg(context.Background(), "count"); err != nil || d.Allow {
		t.Fatalf("expected count agg denied, got %+v, err %v", d, err)
	}
}

func TestEvaluateWithoutLoadedPolicyErrors(t *testing.T) {
	e, err := NewEngine()
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if _, err := e.EvaluateUDF(context.Background(), "dt.offset_by"); err == nil {
		t.Fatal("expected an error evaluating against an engine with no loaded policy")
	}
}
