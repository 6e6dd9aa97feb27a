package expr

import (
	"github.com/google/uuid"

	"github.com/agentguard/policyguard/internal/arena"
	"github.com/agentguard/policyguard/internal/policy"
)

// BuildLiteral inserts a constant value node. Literals need no reification
// and no sub-expression validation.
func BuildLiteral(a *arena.Arena[Expr], v policy.AnyValue) uuid.UUID {
	return a.Insert(Literal{Value: v})
}

func BuildColumn(a *arena.Arena[Expr], ident ColumnIdent) uuid.UUID {
	return a.Insert(Column{Ident: ident})
}

func BuildCount(a *arena.Arena[Expr]) uuid.UUID {
	return a.Insert(Count{})
}

func BuildWildcard(a *arena.Arena[Expr]) uuid.UUID {
	return a.Insert(Wildcard{})
}

// exists checks that id refers to a live node before it is wired into a
// parent, per the builder contract: "checks that all referenced IDs exist in
// the arena before constructing the parent".
func exists(a *arena.Arena[Expr], id uuid.UUID) error {
	_, err := a.Get(id)
	return err
}

func BuildAlias(a *arena.Arena[Expr], inner uuid.UUID, name string) (uuid.UUID, error) {
	if err := exists(a, inner); err != nil {
		return uuid.Nil, err
	}
	return a.Insert(Alias{Expr: inner, Name: name}), nil
}

func BuildFilter(a *arena.Arena[Expr], input, filter uuid.UUID) (uuid.UUID, error) {
	if err := exists(a, input); err != nil {
		return uuid.Nil, err
	}
	if err := exists(a, filter); err != nil {
		return uuid.Nil, err
	}
	return a.Insert(Filter{Input: input, Filter: filter}), nil
}

func BuildBinary(a *arena.Arena[Expr], left uuid.UUID, op BinOperator, right uuid.UUID) (uuid.UUID, error) {
	if err := exists(a, left); err != nil {
		return uuid.Nil, err
	}
	if err := exists(a, right); err != nil {
		return uuid.Nil, err
	}
	return a.Insert(BinaryExpr{Left: left, Op: op, Right: right}), nil
}

func BuildUnary(a *arena.Arena[Expr], arg uuid.UUID, op policy.TransformKind) (uuid.UUID, error) {
	if err := exists(a, arg); err != nil {
		return uuid.Nil, err
	}
	return a.Insert(UnaryExpr{Arg: arg, Op: op}), nil
}

func BuildApply(a *arena.Arena[Expr], name string, args []uuid.UUID) (uuid.UUID, error) {
	for _, id := range args {
		if err := exists(a, id); err != nil {
			return uuid.Nil, err
		}
	}
	argsCopy := append([]uuid.UUID(nil), args...)
	return a.Insert(Apply{Name: name, Args: argsCopy}), nil
}

func BuildTernary(a *arena.Arena[Expr], cond, then, otherwise uuid.UUID) (uuid.UUID, error) {
	if err := exists(a, cond); err != nil {
		return uuid.Nil, err
	}
	if err := exists(a, then); err != nil {
		return uuid.Nil, err
	}
	if err := exists(a, otherwise); err != nil {
		return uuid.Nil, err
	}
	return a.Insert(Ternary{Cond: cond, Then: then, Otherwise: otherwise}), nil
}

func BuildAgg(a *arena.Arena[Expr], inner uuid.UUID, how policy.AggKind) (uuid.UUID, error) {
	if err := exists(a, inner); err != nil {
		return uuid.Nil, err
	}
	return a.Insert(Agg{Inner: inner, How: how}), nil
}
