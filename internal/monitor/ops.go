package monitor

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/agentguard/policyguard/internal/dataframe"
	"github.com/agentguard/policyguard/internal/expr"
	"github.com/agentguard/policyguard/internal/policy"
)

// ReifyExpression attaches concrete values to a BinaryExpr or Apply node,
// dispatching on the node's own variant to ReifyBinary or ReifyApply; every
// other variant fails with InvalidOperation.
func (c *Context) ReifyExpression(id uuid.UUID, dtype dataframe.DataType, raw [][2]any) error {
	e, err := c.Exprs.Get(id)
	if err != nil {
		return err
	}
	switch e.(type) {
	case expr.BinaryExpr:
		return expr.ReifyBinary(c.Exprs, id, dtype, raw)
	case expr.Apply:
		return expr.ReifyApply(c.Exprs, id, dtype, raw)
	default:
		return policy.New(policy.InvalidOperation, "expression variant is not reifiable with a value payload")
	}
}

// CheckInRow wraps expr.CheckInRow with the context's residual cache,
// deduplicating repeated evaluation of the same sub-expression against the
// same row (common when a predicate and a projection both reference it).
func (c *Context) CheckInRow(ctx context.Context, rc *expr.RowContext, id uuid.UUID, row int) (*policy.Chain, error) {
	key := fmt.Sprintf("row:%s:%d", id, row)
	if cached, ok := c.cache.Get(key); ok {
		return cached, nil
	}
	res, err := expr.CheckInRow(ctx, rc, id, row)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, res)
	return res, nil
}

// CheckInGroup is a thin pass-through to expr.CheckInGroup. Group residuals
// are not memoized in the per-row cache: the cache is typed for single
// chains and check_in_group is only ever called once per aggregation node
// per query, so there is no repeated-evaluation cost to dedupe.
func (c *Context) CheckInGroup(ctx context.Context, gc *expr.GroupContext, id uuid.UUID) ([]*policy.Chain, error) {
	return expr.CheckInGroup(ctx, gc, id)
}
