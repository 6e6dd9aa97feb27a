package monitor

import (
	"context"
	"testing"

	"github.com/agentguard/policyguard/internal/policy"
	"github.com/agentguard/policyguard/pkg/admission"
)

func TestBuildApplyCheckedAdmitsWithNoEngineConfigured(t *testing.T) {
	resetForTest()
	defer resetForTest()
	m, _ := InitMonitor()
	id := m.OpenNew(Options{})
	c, _ := m.Context(id)

	if _, err := c.BuildApplyChecked(context.Background(), "dt.offset_by", nil); err != nil {
		t.Fatalf("expected no admission error with no engine configured, got %v", err)
	}
}

func TestBuildApplyCheckedDeniesUnlistedUDF(t *testing.T) {
	resetForTest()
	defer resetForTest()
	m, _ := InitMonitor()
	id := m.OpenNew(Options{})
	c, _ := m.Context(id)

	eng, err := admission.NewEngine()
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	c.SetAdmission(eng)

	ctx := context.Background()
	if _, err := c.BuildApplyChecked(ctx, "dt.offset_by", nil); err == nil {
		t.Fatalf("expected admission denial with no policy loaded")
	} else if !policy.Is(err, policy.Unimplemented) {
		t.Fatalf("expected Unimplemented, got %v", err)
	}
}
