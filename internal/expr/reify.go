package expr

import (
	"github.com/google/uuid"

	"github.com/agentguard/policyguard/internal/arena"
	"github.com/agentguard/policyguard/internal/dataframe"
	"github.com/agentguard/policyguard/internal/policy"
)

// ConvertValue implements the reification datatype table: Int32->Int32,
// Int64->Int64, Float64->Float64, Utf8->String, Date32->Duration(days),
// Timestamp(ns)->Duration(ns). Any other datatype fails with
// InvalidOperation. raw must already carry the Go type matching dtype (int32,
// int64, float64, string, int32 day-count, int64 nanosecond-count).
func ConvertValue(dtype dataframe.DataType, raw any) (policy.AnyValue, error) {
	switch dtype {
	case dataframe.Int32:
		v, ok := raw.(int32)
		if !ok {
			return policy.AnyValue{}, policy.New(policy.InvalidOperation, "expected an int32 value")
		}
		return policy.Int32Value(v), nil
	case dataframe.Int64:
		v, ok := raw.(int64)
		if !ok {
			return policy.AnyValue{}, policy.New(policy.InvalidOperation, "expected an int64 value")
		}
		return policy.Int64Value(v), nil
	case dataframe.Float64:
		v, ok := raw.(float64)
		if !ok {
			return policy.AnyValue{}, policy.New(policy.InvalidOperation, "expected a float64 value")
		}
		return policy.Float64Value(v), nil
	case dataframe.Utf8:
		v, ok := raw.(string)
		if !ok {
			return policy.AnyValue{}, policy.New(policy.InvalidOperation, "expected a string value")
		}
		return policy.StringValue(v), nil
	case dataframe.Date32:
		days, ok := raw.(int32)
		if !ok {
			return policy.AnyValue{}, policy.New(policy.InvalidOperation, "expected a day count for a Date32 value")
		}
		return policy.DurationValue(daysToDuration(days)), nil
	case dataframe.TimestampNanos:
		ns, ok := raw.(int64)
		if !ok {
			return policy.AnyValue{}, policy.New(policy.InvalidOperation, "expected a nanosecond count for a Timestamp value")
		}
		return policy.DurationValue(nanosToDuration(ns)), nil
	default:
		return policy.AnyValue{}, policy.Newf(policy.InvalidOperation, "datatype %s is not reifiable", dtype)
	}
}

// ResolveColumn reifies a by-name Column reference into its schema index,
// the prerequisite for checking it in row or group context.
func ResolveColumn(a *arena.Arena[Expr], id uuid.UUID, index int) error {
	return a.Mutate(id, func(e Expr) Expr {
		col, ok := e.(Column)
		if !ok {
			return e
		}
		col.Ident = ByIndex(index)
		return col
	})
}

// ReifyBinary attaches one (left, right) value pair per row/group to a
// BinaryExpr node, converted from dtype.
func ReifyBinary(a *arena.Arena[Expr], id uuid.UUID, dtype dataframe.DataType, raw [][2]any) error {
	e, err := a.Get(id)
	if err != nil {
		return err
	}
	if _, ok := e.(BinaryExpr); !ok {
		return policy.New(policy.InvalidOperation, "expression is not reifiable as a binary expression")
	}
	values, err := convertPairs(dtype, raw)
	if err != nil {
		return err
	}
	return a.Mutate(id, func(e Expr) Expr {
		b := e.(BinaryExpr)
		b.Values = values
		b.Reified = true
		return b
	})
}

// ReifyApply attaches one (arg0, arg1) value pair per row/group to a 2-arg
// Apply node.
func ReifyApply(a *arena.Arena[Expr], id uuid.UUID, dtype dataframe.DataType, raw [][2]any) error {
	e, err := a.Get(id)
	if err != nil {
		return err
	}
	app, ok := e.(Apply)
	if !ok {
		return policy.New(policy.InvalidOperation, "expression is not reifiable as a function application")
	}
	if len(app.Args) != 2 {
		return policy.New(policy.InvalidOperation, "only two-argument function applications take a reified value payload")
	}
	values, err := convertPairs(dtype, raw)
	if err != nil {
		return err
	}
	return a.Mutate(id, func(e Expr) Expr {
		a := e.(Apply)
		a.Values = values
		a.Reified = true
		return a
	})
}

// ReifyTernaryCond attaches one reified condition value per row/group to a
// Ternary node. A single-element raw broadcasts to every row/group.
func ReifyTernaryCond(a *arena.Arena[Expr], id uuid.UUID, raw []bool) error {
	e, err := a.Get(id)
	if err != nil {
		return err
	}
	if _, ok := e.(Ternary); !ok {
		return policy.New(policy.InvalidOperation, "expression is not reifiable as a ternary condition")
	}
	return a.Mutate(id, func(e Expr) Expr {
		t := e.(Ternary)
		t.CondValues = append([]bool(nil), raw...)
		t.CondReified = true
		return t
	})
}

func convertPairs(dtype dataframe.DataType, raw [][2]any) ([][2]policy.AnyValue, error) {
	out := make([][2]policy.AnyValue, len(raw))
	for i, pair := range raw {
		l, err := ConvertValue(dtype, pair[0])
		if err != nil {
			return nil, err
		}
		r, err := ConvertValue(dtype, pair[1])
		if err != nil {
			return nil, err
		}
		out[i] = [2]policy.AnyValue{l, r}
	}
	return out, nil
}
