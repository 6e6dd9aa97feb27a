package plan

import (
	"context"

	"github.com/google/uuid"

	"github.com/agentguard/policyguard/internal/dataframe"
	"github.com/agentguard/policyguard/internal/expr"
	"github.com/agentguard/policyguard/internal/policy"
)

// checkPlan is the central row-context helper shared by Scan's predicate
// check and Projection: for every surviving row, for every
// expression, compute check_in_row and collect the residuals into a new
// per-row, per-expression policy matrix, one output column per expression.
func checkPlan(ctx context.Context, exprs *expr.RowContext, exprIDs []uuid.UUID, schema *dataframe.Schema) (*dataframe.DataFrame, error) {
	rows, _ := exprs.DF.Shape()
	cols := make([]dataframe.Column, len(exprIDs))
	for j := range cols {
		cols[j].Policies = make([]*policy.Chain, rows)
	}
	for i := 0; i < rows; i++ {
		for j, id := range exprIDs {
			p, err := expr.CheckInRow(ctx, exprs, id, i)
			if err != nil {
				return nil, err
			}
			cols[j].Policies[i] = p
		}
	}
	return dataframe.New(schema, cols), nil
}

// checkGroupPlan is Aggregation's analogue of checkPlan: one residual per
// group per expression (key or agg), columns in (keys..., aggs...) order.
func checkGroupPlan(ctx context.Context, gc *expr.GroupContext, exprIDs []uuid.UUID, schema *dataframe.Schema) (*dataframe.DataFrame, error) {
	groups := gc.Proxy.NumGroups()
	cols := make([]dataframe.Column, len(exprIDs))
	for j, id := range exprIDs {
		residuals, err := expr.CheckInGroup(ctx, gc, id)
		if err != nil {
			return nil, err
		}
		if len(residuals) != groups {
			return nil, policy.New(policy.ShapeMismatch, "check_in_group returned an unexpected number of residuals")
		}
		cols[j].Policies = residuals
	}
	return dataframe.New(schema, cols), nil
}
