// Package plan implements the physical-plan IR the monitor intercepts
// before/after each real operator runs, and the prologue that dispatches a
// check appropriate to the plan node's kind. Ported from
// original_source's picachv-core/src/plan/mod.rs.
package plan

import (
	"github.com/google/uuid"

	"github.com/agentguard/policyguard/internal/dataframe"
	"github.com/agentguard/policyguard/internal/policy"
)

// Plan is the tagged union of physical-plan nodes.
type Plan interface{ isPlan() }

type Scan struct {
	Schema        *dataframe.Schema
	Projection    []int
	HasProjection bool
	Selection     uuid.UUID
	HasSelection  bool
}

func (Scan) isPlan() {}

type Projection struct {
	Input  uuid.UUID
	Exprs  []uuid.UUID
	Schema *dataframe.Schema
}

func (Projection) isPlan() {}

type Select struct {
	Input     uuid.UUID
	Predicate uuid.UUID
}

func (Select) isPlan() {}

// Aggregation's Aggs are the IDs of already-built expr.Agg nodes — the
// aggregation kind lives on that node, not duplicated here.
type Aggregation struct {
	Input         uuid.UUID
	Keys          []uuid.UUID
	Aggs          []uuid.UUID
	Schema        *dataframe.Schema
	Proxy         *dataframe.GroupByProxy
	MaintainOrder bool
}

func (Aggregation) isPlan() {}

type JoinKind int

const (
	InnerJoin JoinKind = iota
	LeftJoin
	RightJoin
	FullJoin
)

// RowMap is the host-supplied provenance for one joined output: for every
// output row, which row (if any, -1 otherwise) of the left/right input
// contributed it. The monitor never computes join membership itself — the
// real physical join does that — it only propagates policies along
// whatever pairing the host reports.
type RowMap struct {
	Left  []int
	Right []int
}

type Join struct {
	Left, Right      uuid.UUID
	LeftOn, RightOn  []uuid.UUID
	Kind             JoinKind
	Schema           *dataframe.Schema
	Rows             *RowMap
}

func (Join) isPlan() {}

type Union struct {
	Left, Right uuid.UUID
	Schema      *dataframe.Schema
}

func (Union) isPlan() {}

// Distinct collapses rows per proxy's key->source-row mapping (reusing
// GroupByProxy's shape, since deduplication is structurally identical to
// grouping: many source rows collapse to one surviving row).
type Distinct struct {
	Input uuid.UUID
	Dedup *dataframe.GroupByProxy
}

func (Distinct) isPlan() {}

// ErrorPlan wraps a once-consumable error state: the first Schema or
// prologue call surfaces Err; every subsequent call sees AlreadyEncountered.
type ErrorPlan struct {
	Input    uuid.UUID
	HasInput bool
	Err      *policy.Error
	Consumed bool
}

func (ErrorPlan) isPlan() {}

type Other struct {
	Inputs []uuid.UUID
	Schema *dataframe.Schema
}

func (Other) isPlan() {}
