package monitor

import (
	"context"
	"testing"

	"github.com/agentguard/policyguard/internal/audit"
	"github.com/agentguard/policyguard/internal/dataframe"
	"github.com/agentguard/policyguard/internal/policy"
)

type recordingRecorder struct {
	events []audit.Event
}

func (r *recordingRecorder) Record(ctx context.Context, event audit.Event) error {
	r.events = append(r.events, event)
	return nil
}

func (r *recordingRecorder) Close() {}

func TestInitMonitorRejectsDoubleInit(t *testing.T) {
	resetForTest()
	defer resetForTest()
	if _, err := InitMonitor(); err != nil {
		t.Fatalf("first init: %v", err)
	}
	if _, err := InitMonitor(); !policy.Is(err, policy.Already) {
		t.Fatalf("expected Already, got %v", err)
	}
}

func TestGetFailsBeforeInit(t *testing.T) {
	resetForTest()
	defer resetForTest()
	if _, err := Get(); !policy.Is(err, policy.NoData) {
		t.Fatalf("expected NoData, got %v", err)
	}
}

func TestOpenNewAndContextLookup(t *testing.T) {
	resetForTest()
	defer resetForTest()
	m, _ := InitMonitor()
	id := m.OpenNew(Options{})
	if _, err := m.Context(id); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	m.Drop(id)
	if _, err := m.Context(id); !policy.Is(err, policy.InvalidOperation) {
		t.Fatalf("expected InvalidOperation after drop, got %v", err)
	}
}

func TestRegisterAndFinalizeDataFrame(t *testing.T) {
	resetForTest()
	defer resetForTest()
	m, _ := InitMonitor()
	id := m.OpenNew(Options{})
	c, _ := m.Context(id)

	rec := &recordingRecorder{}
	c.SetAuditRecorder(rec)

	df := dataframe.ExampleDF()
	dfID := c.RegisterPolicyDataFrame(df)
	if err := c.Finalize(dfID); !policy.Is(err, policy.PrivacyError) {
		t.Fatalf("expected PrivacyError, got %v", err)
	}
	if len(rec.events) != 1 || rec.events[0].Outcome != audit.OutcomeBlocked {
		t.Fatalf("expected one blocked audit event, got %+v", rec.events)
	}
}

func TestCreateSliceAndEarlyProjection(t *testing.T) {
	resetForTest()
	defer resetForTest()
	m, _ := InitMonitor()
	id := m.OpenNew(Options{})
	c, _ := m.Context(id)

	dfID := c.RegisterPolicyDataFrame(dataframe.ExampleDF())
	sliceID, err := c.CreateSlice(dfID, 1, 3)
	if err != nil {
		t.Fatalf("slice: %v", err)
	}
	sliced, _ := c.DataFrame(sliceID)
	rows, _ := sliced.Shape()
	if rows != 2 {
		t.Fatalf("got %d rows, want 2", rows)
	}

	projID, err := c.EarlyProjection(dfID, []int{1})
	if err != nil {
		t.Fatalf("projection: %v", err)
	}
	projected, _ := c.DataFrame(projID)
	_, cols := projected.Shape()
	if cols != 1 {
		t.Fatalf("got %d columns, want 1", cols)
	}
}

func TestRunConcurrentRunsEveryUnit(t *testing.T) {
	resetForTest()
	defer resetForTest()
	m, _ := InitMonitor()
	id := m.OpenNew(Options{})
	c, _ := m.Context(id)

	var seen [5]bool
	err := c.runConcurrent(context.Background(), 5, func(ctx context.Context, i int) error {
		seen[i] = true
		return nil
	})
	if err != nil {
		t.Fatalf("runConcurrent: %v", err)
	}
	for i, ok := range seen {
		if !ok {
			t.Fatalf("unit %d never ran", i)
		}
	}
}
