// Package expr implements the typed expression IR (§4.5) and its two
// evaluator entry points, check_in_row and check_in_group (§4.6), ported
// from original_source's picachv-core/src/expr/{mod.rs,check.rs}.
package expr

import (
	"github.com/google/uuid"

	"github.com/agentguard/policyguard/internal/policy"
)

// Expr is the tagged union of expression-tree nodes. Every variant below
// implements it purely as a marker; dispatch happens by type switch in
// check_row.go / check_group.go, the idiomatic Go substitute for a Rust enum
// match.
type Expr interface{ isExpr() }

type Literal struct{ Value policy.AnyValue }

func (Literal) isExpr() {}

// ColumnIdent is either a name (which must be reified into an index before
// any row-context check) or an already-resolved index.
type ColumnIdent struct {
	Name     string
	HasName  bool
	Index    int
	HasIndex bool
}

func ByName(name string) ColumnIdent  { return ColumnIdent{Name: name, HasName: true} }
func ByIndex(idx int) ColumnIdent      { return ColumnIdent{Index: idx, HasIndex: true} }

type Column struct{ Ident ColumnIdent }

func (Column) isExpr() {}

type Count struct{}

func (Count) isExpr() {}

type Wildcard struct{}

func (Wildcard) isExpr() {}

type Alias struct {
	Expr uuid.UUID
	Name string
}

func (Alias) isExpr() {}

type Filter struct {
	Input  uuid.UUID
	Filter uuid.UUID
}

func (Filter) isExpr() {}

// BinOpCategory classifies a BinOperator for the evaluator's dispatch.
type BinOpCategory int

const (
	Logical BinOpCategory = iota
	Comparison
	Arithmetic
)

// BinOperator is {Logical(And|Or), Comparison(Eq,Neq,Lt,Gt,Le,Ge),
// Arithmetic(Add,Sub,Mul,Div,Mod,Pow)}.
type BinOperator struct {
	Category BinOpCategory
	Op       string
}

var (
	And = BinOperator{Category: Logical, Op: "and"}
	Or  = BinOperator{Category: Logical, Op: "or"}

	Eq  = BinOperator{Category: Comparison, Op: "eq"}
	Neq = BinOperator{Category: Comparison, Op: "neq"}
	Lt  = BinOperator{Category: Comparison, Op: "lt"}
	Gt  = BinOperator{Category: Comparison, Op: "gt"}
	Le  = BinOperator{Category: Comparison, Op: "le"}
	Ge  = BinOperator{Category: Comparison, Op: "ge"}

	Add = BinOperator{Category: Arithmetic, Op: "+"}
	Sub = BinOperator{Category: Arithmetic, Op: "-"}
	Mul = BinOperator{Category: Arithmetic, Op: "*"}
	Div = BinOperator{Category: Arithmetic, Op: "/"}
	Mod = BinOperator{Category: Arithmetic, Op: "%"}
	Pow = BinOperator{Category: Arithmetic, Op: "^"}
)

// BinaryExpr carries an optional reified values payload: one (left, right)
// value pair per row (row context) or per group (group context).
type BinaryExpr struct {
	Left    uuid.UUID
	Op      BinOperator
	Right   uuid.UUID
	Values  [][2]policy.AnyValue
	Reified bool
}

func (BinaryExpr) isExpr() {}

type UnaryExpr struct {
	Arg uuid.UUID
	Op  policy.TransformKind
}

func (UnaryExpr) isExpr() {}

// Apply is a UDF call. Values mirrors BinaryExpr's but is only meaningful
// for the 2-argument form (see check_row's two-arg UDF dispatch).
type Apply struct {
	Name    string
	Args    []uuid.UUID
	Values  [][2]policy.AnyValue
	Reified bool
}

func (Apply) isExpr() {}

type Ternary struct {
	Cond        uuid.UUID
	CondValues  []bool
	CondReified bool
	Then        uuid.UUID
	Otherwise   uuid.UUID
}

func (Ternary) isExpr() {}

// Agg wraps a GroupByMethod-style aggregation kind over an inner
// sub-expression; only meaningful in group context.
type Agg struct {
	Inner   uuid.UUID
	How     policy.AggKind
	Values  [][2]policy.AnyValue
	Reified bool
}

func (Agg) isExpr() {}
