// Package monitor implements the process-wide singleton and per-session
// context (C8) that every other component is reached through: two arenas
// (expressions and plans),
// a reference-counted policy-dataframe registry, a small residual cache,
// and a fixed-size worker pool. Ported from original_source's
// picachv-core/src/monitor.rs and context.rs.
package monitor

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/agentguard/policyguard/internal/policy"
	"github.com/agentguard/policyguard/internal/telemetry"
)

// Monitor is the process-wide, init-once container of live contexts.
type Monitor struct {
	mu       sync.RWMutex
	contexts map[uuid.UUID]*Context
	metrics  *telemetry.Provider
}

// SetTelemetry wires a metrics/tracing provider into the monitor. Contexts
// opened after this call inherit it automatically.
func (m *Monitor) SetTelemetry(p *telemetry.Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = p
}

var (
	instance   *Monitor
	instanceMu sync.Mutex
)

// InitMonitor creates the singleton. Calling it twice fails with Already,
// matching the source's init-once/set-once lifecycle.
func InitMonitor() (*Monitor, error) {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	if instance != nil {
		return nil, policy.New(policy.Already, "the monitor has already been initialized")
	}
	instance = &Monitor{contexts: make(map[uuid.UUID]*Context)}
	return instance, nil
}

// Get returns the process-wide Monitor, or NoData if InitMonitor was never
// called.
func Get() (*Monitor, error) {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	if instance == nil {
		return nil, policy.New(policy.NoData, "the monitor has not been initialized")
	}
	return instance, nil
}

// resetForTest drops the singleton. Only ever called from this package's
// own tests, which each need a fresh Monitor.
func resetForTest() {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	instance = nil
}

// OpenNew allocates a fresh Context and returns its ID.
func (m *Monitor) OpenNew(opts Options) uuid.UUID {
	id := uuid.New()
	ctx := newContext(id, opts)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.metrics != nil {
		ctx.SetTelemetry(m.metrics)
		m.metrics.StartContext(context.Background())
	}
	m.contexts[id] = ctx
	return id
}

// Context resolves a context ID to its Context, failing with InvalidOperation
// if the context has been dropped or never existed — a live check observing
// its context disappear fails at its next lookup, per §5's cancellation
// model.
func (m *Monitor) Context(id uuid.UUID) (*Context, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ctx, ok := m.contexts[id]
	if !ok {
		return nil, policy.New(policy.InvalidOperation, "the requested context does not exist")
	}
	return ctx, nil
}

// Drop removes a context, abandoning any in-flight checks against it.
func (m *Monitor) Drop(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.contexts[id]; ok && m.metrics != nil {
		m.metrics.EndContext(context.Background())
	}
	delete(m.contexts, id)
}
