package plan

import (
	"context"

	"github.com/google/uuid"

	"github.com/agentguard/policyguard/internal/arena"
	"github.com/agentguard/policyguard/internal/dataframe"
	"github.com/agentguard/policyguard/internal/expr"
	"github.com/agentguard/policyguard/internal/policy"
)

// Inputs carries whichever of a plan node's input dataframes are relevant
// to its kind: Single for one-input nodes (Scan/Select/Projection/
// Aggregation/Distinct), Left/Right for two-input nodes (Join/Union).
type Inputs struct {
	Single      *dataframe.DataFrame
	Left, Right *dataframe.DataFrame
}

var predicateSchema = dataframe.NewSchema(dataframe.Field{Name: "__predicate", Type: dataframe.Boolean})

// ExecutePrologue runs the check appropriate to the plan node at id and
// returns the new active policy dataframe, per §4.7. Recursing into a node's
// children (resolving Inputs) is the caller's responsibility — this keeps
// the per-node check logic independent of how the surrounding plan arena is
// walked.
func ExecutePrologue(ctx context.Context, plans *arena.Arena[Plan], exprs *arena.Arena[expr.Expr], id uuid.UUID, in Inputs) (*dataframe.DataFrame, error) {
	node, err := plans.Get(id)
	if err != nil {
		return nil, err
	}
	switch v := node.(type) {
	case Scan:
		if !v.HasSelection {
			return in.Single, nil
		}
		rc := &expr.RowContext{Exprs: exprs, DF: in.Single}
		return checkPlan(ctx, rc, []uuid.UUID{v.Selection}, predicateSchema)
	case Select:
		// Unlike Scan's bare predicate check, Select's residual must survive
		// into whatever columns are projected downstream — a row surviving
		// the filter is still tainted by whatever the predicate needed to
		// read, even if that column is never itself selected (see
		// TestScenarioSelectThenProjectFails).
		rc := &expr.RowContext{Exprs: exprs, DF: in.Single}
		rows, _ := in.Single.Shape()
		predRes := make([]*policy.Chain, rows)
		for i := 0; i < rows; i++ {
			p, err := expr.CheckInRow(ctx, rc, v.Predicate, i)
			if err != nil {
				return nil, err
			}
			predRes[i] = p
		}
		return mergeResidualIntoColumns(in.Single, predRes), nil
	case Projection:
		rc := &expr.RowContext{Exprs: exprs, DF: in.Single}
		return checkPlan(ctx, rc, v.Exprs, v.Schema)
	case Aggregation:
		if v.Proxy == nil {
			return nil, policy.New(policy.InvalidOperation, "aggregation requires a host-supplied group proxy")
		}
		gc := &expr.GroupContext{Exprs: exprs, DF: in.Single, Proxy: v.Proxy}
		exprIDs := append(append([]uuid.UUID(nil), v.Keys...), v.Aggs...)
		return checkGroupPlan(ctx, gc, exprIDs, v.Schema)
	case Join:
		return executeJoin(exprs, v, in.Left, in.Right)
	case Union:
		return executeUnion(v, in.Left, in.Right)
	case Distinct:
		if v.Dedup == nil {
			return nil, policy.New(policy.InvalidOperation, "distinct requires a host-supplied dedup proxy")
		}
		return in.Single.Groups(v.Dedup)
	case ErrorPlan:
		return nil, consumeError(plans, id, v)
	case Other:
		return in.Single, nil
	default:
		return nil, policy.New(policy.Unimplemented, "plan variant has no prologue")
	}
}

// mergeResidualIntoColumns joins extra[i] into every column's chain at row
// i, producing a new dataframe with the same schema and shape.
func mergeResidualIntoColumns(df *dataframe.DataFrame, extra []*policy.Chain) *dataframe.DataFrame {
	rows, cols := df.Shape()
	out := make([]dataframe.Column, cols)
	for j := 0; j < cols; j++ {
		out[j].Policies = make([]*policy.Chain, rows)
		for i := 0; i < rows; i++ {
			out[j].Policies[i] = policy.JoinChain(df.Columns[j].Policies[i], extra[i])
		}
	}
	return dataframe.New(df.Schema, out)
}

func columnIndexOf(exprs *arena.Arena[expr.Expr], id uuid.UUID) (int, error) {
	e, err := exprs.Get(id)
	if err != nil {
		return 0, err
	}
	col, ok := e.(expr.Column)
	if !ok || !col.Ident.HasIndex {
		return 0, policy.New(policy.InvalidOperation, "join keys must be resolved column references")
	}
	return col.Ident.Index, nil
}

// executeJoin lays output columns out as (left's columns..., right's
// columns...) against the host-supplied row provenance in v.Rows, then
// overrides each join-key column with the join of both sides' key chains —
// the only place a join's policy is not a straight copy from its source row.
func executeJoin(exprs *arena.Arena[expr.Expr], v Join, left, right *dataframe.DataFrame) (*dataframe.DataFrame, error) {
	if v.Rows == nil {
		return nil, policy.New(policy.InvalidOperation, "join requires host-supplied row provenance")
	}
	n := len(v.Rows.Left)
	if len(v.Rows.Right) != n {
		return nil, policy.New(policy.ShapeMismatch, "join row provenance arrays disagree in length")
	}
	_, leftCols := left.Shape()
	_, rightCols := right.Shape()
	cols := make([]dataframe.Column, leftCols+rightCols)
	for j := range cols {
		cols[j].Policies = make([]*policy.Chain, n)
	}
	for i := 0; i < n; i++ {
		li, ri := v.Rows.Left[i], v.Rows.Right[i]
		if li >= 0 {
			leftRow, err := left.Row(li)
			if err != nil {
				return nil, err
			}
			for j := 0; j < leftCols; j++ {
				cols[j].Policies[i] = leftRow[j]
			}
		}
		if ri >= 0 {
			rightRow, err := right.Row(ri)
			if err != nil {
				return nil, err
			}
			for j := 0; j < rightCols; j++ {
				cols[leftCols+j].Policies[i] = rightRow[j]
			}
		}
	}
	for k := range v.LeftOn {
		leftIdx, err := columnIndexOf(exprs, v.LeftOn[k])
		if err != nil {
			return nil, err
		}
		rightIdx, err := columnIndexOf(exprs, v.RightOn[k])
		if err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			li, ri := v.Rows.Left[i], v.Rows.Right[i]
			var lp, rp *policy.Chain
			if li >= 0 {
				leftRow, _ := left.Row(li)
				lp = leftRow[leftIdx]
			}
			if ri >= 0 {
				rightRow, _ := right.Row(ri)
				rp = rightRow[rightIdx]
			}
			cols[leftIdx].Policies[i] = policy.JoinChain(lp, rp)
		}
	}
	return dataframe.New(v.Schema, cols), nil
}

func executeUnion(v Union, left, right *dataframe.DataFrame) (*dataframe.DataFrame, error) {
	if !left.Schema.Equal(right.Schema) {
		return nil, policy.New(policy.SchemaMismatch, "union requires matching schemas")
	}
	_, cols := left.Shape()
	out := make([]dataframe.Column, cols)
	for j := 0; j < cols; j++ {
		out[j].Policies = append(append([]*policy.Chain(nil), left.Columns[j].Policies...), right.Columns[j].Policies...)
	}
	return dataframe.New(v.Schema, out), nil
}
