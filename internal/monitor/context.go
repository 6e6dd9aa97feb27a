package monitor

import (
	"context"
	"runtime"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/agentguard/policyguard/internal/arena"
	"github.com/agentguard/policyguard/internal/audit"
	"github.com/agentguard/policyguard/internal/dataframe"
	"github.com/agentguard/policyguard/internal/expr"
	"github.com/agentguard/policyguard/internal/plan"
	"github.com/agentguard/policyguard/internal/policy"
	"github.com/agentguard/policyguard/internal/telemetry"
	"github.com/agentguard/policyguard/pkg/admission"
)

// Options are the per-context toggles exposed at open_new time.
type Options struct {
	EnableProfiling bool
	EnableTracing   bool
}

// dfEntry is one reference-counted slot in the policy-dataframe registry.
// In-place mutation (Filter, Groups-replace) is only safe when Refs == 1;
// every other path must install a fresh entry.
type dfEntry struct {
	df   *dataframe.DataFrame
	refs int
}

// Context is a single monitor session: its own arenas, its own
// policy-dataframe registry, its own residual cache, and a private slice of
// the global worker pool sizing.
type Context struct {
	Exprs *arena.Arena[expr.Expr]
	Plans *arena.Arena[plan.Plan]

	id   uuid.UUID
	opts Options

	mu   sync.Mutex
	dfs  map[uuid.UUID]*dfEntry
	pool int

	cache     *lru.Cache[string, *policy.Chain]
	audit     audit.Recorder
	admission *admission.Engine
	metrics   *telemetry.Provider
}

const defaultResidualCacheSize = 4096

func newContext(id uuid.UUID, opts Options) *Context {
	cache, _ := lru.New[string, *policy.Chain](defaultResidualCacheSize)
	pool := runtime.GOMAXPROCS(0)
	if pool < 1 {
		pool = 1
	}
	return &Context{
		Exprs: arena.New[expr.Expr](),
		Plans: arena.New[plan.Plan](),
		id:    id,
		opts:  opts,
		dfs:   make(map[uuid.UUID]*dfEntry),
		pool:  pool,
		cache: cache,
		audit: audit.NopRecorder{},
	}
}

// SetAuditRecorder replaces the context's audit sink. The default is a
// NopRecorder; a deployment that wants a durable trail wires in
// audit/postgres's Recorder here.
func (c *Context) SetAuditRecorder(r audit.Recorder) { c.audit = r }

// SetTelemetry wires a metrics/tracing provider into the context. Until this
// is called, Finalize records no metrics — telemetry is opt-in the same way
// the audit trail is.
func (c *Context) SetTelemetry(p *telemetry.Provider) { c.metrics = p }

// RegisterPolicyDataFrame inserts df into the registry with an initial
// reference count of one and returns its ID.
func (c *Context) RegisterPolicyDataFrame(df *dataframe.DataFrame) uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := uuid.New()
	c.dfs[id] = &dfEntry{df: df, refs: 1}
	return id
}

// DataFrame resolves a registered ID to its dataframe.
func (c *Context) DataFrame(id uuid.UUID) (*dataframe.DataFrame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.dfs[id]
	if !ok {
		return nil, policy.New(policy.InvalidOperation, "the requested object does not exist")
	}
	return e.df, nil
}

// Retain increments a dataframe's reference count (e.g. when a Join plan
// reads both of its inputs without consuming either).
func (c *Context) Retain(id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.dfs[id]
	if !ok {
		return policy.New(policy.InvalidOperation, "the requested object does not exist")
	}
	e.refs++
	return nil
}

// install stores result, replacing id's entry in place iff id currently has
// exactly one live reference (per §4.7's in-place-replacement rule);
// otherwise a fresh ID is registered and returned.
func (c *Context) install(id uuid.UUID, result *dataframe.DataFrame) uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.dfs[id]; ok && e.refs == 1 {
		e.df = result
		return id
	}
	newID := uuid.New()
	c.dfs[newID] = &dfEntry{df: result, refs: 1}
	return newID
}

// Finalize resolves id and requires every remaining cell to be Clean,
// recording the outcome (clean or blocked) through the context's audit sink
// and metrics provider.
func (c *Context) Finalize(id uuid.UUID) error {
	start := time.Now()
	df, err := c.DataFrame(id)
	if err != nil {
		return err
	}
	rows, _ := df.Shape()
	if err := df.Finalize(); err != nil {
		c.audit.Record(context.Background(), audit.NewBlockedEvent(c.id, id, err))
		c.recordCheck(rows, start, false, errKind(err))
		return err
	}
	c.audit.Record(context.Background(), audit.NewCleanEvent(c.id, id))
	c.recordCheck(rows, start, true, "")
	return nil
}

func (c *Context) recordCheck(rows int, start time.Time, allowed bool, errKind string) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordCheck(context.Background(), telemetry.CheckMetrics{
		Operation: "finalize",
		Rows:      int64(rows),
		Duration:  time.Since(start),
		Allowed:   allowed,
		ErrorKind: errKind,
	})
}

func errKind(err error) string {
	if pe, ok := err.(*policy.Error); ok {
		return pe.Kind.String()
	}
	return ""
}

// DebugPrintDF renders a registered dataframe's table form for diagnostics.
func (c *Context) DebugPrintDF(id uuid.UUID) (string, error) {
	df, err := c.DataFrame(id)
	if err != nil {
		return "", err
	}
	return df.String(), nil
}

// CreateSlice registers a new dataframe containing rows [start, end) of the
// one at id.
func (c *Context) CreateSlice(id uuid.UUID, start, end int) (uuid.UUID, error) {
	df, err := c.DataFrame(id)
	if err != nil {
		return uuid.Nil, err
	}
	rows, cols := df.Shape()
	if start < 0 || end > rows || start > end {
		return uuid.Nil, policy.Newf(policy.OutOfBounds, "slice [%d:%d) out of bounds (height %d)", start, end, rows)
	}
	out := make([]dataframe.Column, cols)
	for j, col := range df.Columns {
		out[j].Policies = append([]*policy.Chain(nil), col.Policies[start:end]...)
	}
	return c.RegisterPolicyDataFrame(dataframe.New(df.Schema, out)), nil
}

// EarlyProjection registers a new dataframe retaining only the given
// column indices, in the given order.
func (c *Context) EarlyProjection(id uuid.UUID, columnIndices []int) (uuid.UUID, error) {
	df, err := c.DataFrame(id)
	if err != nil {
		return uuid.Nil, err
	}
	fields := make([]dataframe.Field, len(columnIndices))
	cols := make([]dataframe.Column, len(columnIndices))
	for j, idx := range columnIndices {
		if idx < 0 || idx >= len(df.Columns) {
			return uuid.Nil, policy.Newf(policy.OutOfBounds, "column index %d out of bounds", idx)
		}
		fields[j] = df.Schema.Fields[idx]
		cols[j] = df.Columns[idx]
	}
	return c.RegisterPolicyDataFrame(dataframe.New(dataframe.NewSchema(fields...), cols)), nil
}

// ExecuteEpilogue runs planID's prologue check against the dataframe(s) at
// inputIDs (one ID for single-input nodes, two for Join/Union, in
// left-then-right order) and installs the result, returning its ID.
func (c *Context) ExecuteEpilogue(ctx context.Context, planID uuid.UUID, inputIDs ...uuid.UUID) (uuid.UUID, error) {
	var in plan.Inputs
	switch len(inputIDs) {
	case 1:
		df, err := c.DataFrame(inputIDs[0])
		if err != nil {
			return uuid.Nil, err
		}
		in.Single = df
	case 2:
		left, err := c.DataFrame(inputIDs[0])
		if err != nil {
			return uuid.Nil, err
		}
		right, err := c.DataFrame(inputIDs[1])
		if err != nil {
			return uuid.Nil, err
		}
		in.Left, in.Right = left, right
	default:
		return uuid.Nil, policy.Newf(policy.InvalidOperation, "expected 1 or 2 input dataframes, got %d", len(inputIDs))
	}

	result, err := plan.ExecutePrologue(ctx, c.Plans, c.Exprs, planID, in)
	if err != nil {
		return uuid.Nil, err
	}
	return c.install(inputIDs[0], result), nil
}

// runConcurrent fans fn out across n independent units of work (rows or
// groups) using the context's worker-pool sizing, the generic substitute
// for the fork-join axis (b) described in §5.
func (c *Context) runConcurrent(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.pool)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error { return fn(gctx, i) })
	}
	return g.Wait()
}
