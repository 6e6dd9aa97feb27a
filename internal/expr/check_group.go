package expr

import (
	"context"

	"github.com/google/uuid"

	"github.com/agentguard/policyguard/internal/arena"
	"github.com/agentguard/policyguard/internal/dataframe"
	"github.com/agentguard/policyguard/internal/policy"
)

// GroupContext is everything check_in_group needs: the proxy mapping group
// key to contributing row indices, and the ungrouped active dataframe so an
// Agg node's inner expression can be checked row by row before folding.
type GroupContext struct {
	Exprs *arena.Arena[Expr]
	DF    *dataframe.DataFrame
	Proxy *dataframe.GroupByProxy
}

// CheckInGroup computes, for every group in Proxy's enumeration order, the
// residual chain that would remain after evaluating the expression at id
// over that group. Only Column, BinaryExpr, Apply and Agg are meaningful in
// group context (§4.6.2); anything else fails with Unimplemented.
func CheckInGroup(ctx context.Context, gc *GroupContext, id uuid.UUID) ([]*policy.Chain, error) {
	e, err := gc.Exprs.Get(id)
	if err != nil {
		return nil, err
	}
	switch v := e.(type) {
	case Column:
		if !v.Ident.HasIndex {
			return nil, policy.New(policy.ComputeError, "column reference must be resolved to an index before it can be checked")
		}
		grouped, err := gc.DF.Groups(gc.Proxy)
		if err != nil {
			return nil, err
		}
		if v.Ident.Index < 0 || v.Ident.Index >= len(grouped.Columns) {
			return nil, policy.Newf(policy.OutOfBounds, "column index %d out of bounds", v.Ident.Index)
		}
		return grouped.Columns[v.Ident.Index].Policies, nil
	case BinaryExpr:
		pL, pR, err := checkPairInGroup(ctx, gc, v.Left, v.Right)
		if err != nil {
			return nil, err
		}
		out := make([]*policy.Chain, gc.Proxy.NumGroups())
		for g := range out {
			switch v.Op.Category {
			case Logical, Comparison:
				out[g] = policy.JoinChain(pL[g], pR[g])
			default:
				var pair [2]policy.AnyValue
				if v.Reified && g < len(v.Values) {
					pair = v.Values[g]
				}
				res, err := combineArithmetic(v.Op, pL[g], pR[g], v.Reified && g < len(v.Values), pair)
				if err != nil {
					return nil, err
				}
				out[g] = res
			}
		}
		return out, nil
	case Apply:
		return checkApplyInGroup(ctx, gc, v)
	case Agg:
		return checkAggInGroup(ctx, gc, v)
	default:
		return nil, policy.New(policy.Unimplemented, "expression variant is not supported in group context")
	}
}

func checkPairInGroup(ctx context.Context, gc *GroupContext, left, right uuid.UUID) ([]*policy.Chain, []*policy.Chain, error) {
	pL, err := CheckInGroup(ctx, gc, left)
	if err != nil {
		return nil, nil, err
	}
	pR, err := CheckInGroup(ctx, gc, right)
	if err != nil {
		return nil, nil, err
	}
	return pL, pR, nil
}

func checkApplyInGroup(ctx context.Context, gc *GroupContext, v Apply) ([]*policy.Chain, error) {
	switch len(v.Args) {
	case 0:
		return make([]*policy.Chain, gc.Proxy.NumGroups()), nil
	case 1:
		p, err := CheckInGroup(ctx, gc, v.Args[0])
		if err != nil {
			return nil, err
		}
		out := make([]*policy.Chain, len(p))
		label := policy.TransformLabel(policy.NewTransformOps(policy.UnaryTransform(v.Name)))
		for g, chain := range p {
			if policy.PolicyOk(chain) {
				continue
			}
			res, err := policy.Downgrade(chain, label)
			if err != nil {
				return nil, err
			}
			out[g] = res
		}
		return out, nil
	case 2:
		pL, pR, err := checkPairInGroup(ctx, gc, v.Args[0], v.Args[1])
		if err != nil {
			return nil, err
		}
		out := make([]*policy.Chain, gc.Proxy.NumGroups())
		for g := range out {
			var pair [2]policy.AnyValue
			if v.Reified && g < len(v.Values) {
				pair = v.Values[g]
			}
			res, err := combineTwoArgUDF(v.Name, pL[g], pR[g], v.Reified && g < len(v.Values), pair)
			if err != nil {
				return nil, err
			}
			out[g] = res
		}
		return out, nil
	default:
		return nil, policy.Newf(policy.Unimplemented, "function applications with %d arguments are not supported", len(v.Args))
	}
}

// checkAggInGroup folds the inner expression's per-row residual across every
// row of each group via JoinChain (an associative, order-independent
// reduction, see the resolved fold_on_groups open question in
// SPEC_FULL.md), then downgrades the folded residual by a label built from
// the aggregation's operator and the group's actual size — never from
// whatever GroupSize the caller declared on the Agg node at build time.
// Mirrors original_source's fold_on_groups, which derives its label as
// policy_agg_label!(how, groups.len()): GroupSize is part of an AggKind's
// identity, and a query can't know it in advance, so the label the checker
// tests against must come from len(rows), not from v.How.
func checkAggInGroup(ctx context.Context, gc *GroupContext, v Agg) ([]*policy.Chain, error) {
	rowCtx := &RowContext{Exprs: gc.Exprs, DF: gc.DF}
	out := make([]*policy.Chain, gc.Proxy.NumGroups())
	for g, key := range gc.Proxy.Keys {
		rows := gc.Proxy.Groups[key]
		var folded *policy.Chain
		for _, i := range rows {
			p, err := CheckInRow(ctx, rowCtx, v.Inner, i)
			if err != nil {
				return nil, err
			}
			folded = policy.JoinChain(folded, p)
		}
		label := policy.AggLabel(policy.NewAggOps(policy.AggKind{How: v.How.How, GroupSize: len(rows)}))
		res, err := policy.Downgrade(folded, label)
		if err != nil {
			return nil, err
		}
		out[g] = res
	}
	return out, nil
}
