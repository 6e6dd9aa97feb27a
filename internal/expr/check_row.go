package expr

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/agentguard/policyguard/internal/arena"
	"github.com/agentguard/policyguard/internal/dataframe"
	"github.com/agentguard/policyguard/internal/policy"
)

// RowContext is everything check_in_row needs to resolve an expression
// against one concrete row of the active policy dataframe.
type RowContext struct {
	Exprs *arena.Arena[Expr]
	DF    *dataframe.DataFrame
}

// CheckInRow computes the residual policy chain that would remain after
// evaluating the expression at id against row i, per §4.6.1's per-variant
// rules. Sibling sub-expressions of a binary/ternary node are evaluated
// concurrently via an errgroup, mirroring the monitor's fork-join
// concurrency model for independent sub-checks.
func CheckInRow(ctx context.Context, rc *RowContext, id uuid.UUID, row int) (*policy.Chain, error) {
	e, err := rc.Exprs.Get(id)
	if err != nil {
		return nil, err
	}
	switch v := e.(type) {
	case Literal:
		return nil, nil
	case Column:
		if !v.Ident.HasIndex {
			return nil, policy.New(policy.ComputeError, "column reference must be resolved to an index before it can be checked")
		}
		cells, err := rc.DF.Row(row)
		if err != nil {
			return nil, err
		}
		if v.Ident.Index < 0 || v.Ident.Index >= len(cells) {
			return nil, policy.Newf(policy.OutOfBounds, "column index %d out of bounds", v.Ident.Index)
		}
		return cells[v.Ident.Index], nil
	case Count, Wildcard:
		return nil, nil
	case Alias:
		return CheckInRow(ctx, rc, v.Expr, row)
	case Filter:
		if _, err := CheckInRow(ctx, rc, v.Filter, row); err != nil {
			return nil, err
		}
		return CheckInRow(ctx, rc, v.Input, row)
	case UnaryExpr:
		p, err := CheckInRow(ctx, rc, v.Arg, row)
		if err != nil {
			return nil, err
		}
		return policy.Downgrade(p, policy.TransformLabel(policy.NewTransformOps(v.Op)))
	case BinaryExpr:
		pL, pR, err := checkPairInRow(ctx, rc, v.Left, v.Right, row)
		if err != nil {
			return nil, err
		}
		switch v.Op.Category {
		case Logical, Comparison:
			return policy.JoinChain(pL, pR), nil
		default: // Arithmetic
			var pair [2]policy.AnyValue
			if v.Reified && row < len(v.Values) {
				pair = v.Values[row]
			}
			return combineArithmetic(v.Op, pL, pR, v.Reified && row < len(v.Values), pair)
		}
	case Apply:
		return checkApplyInRow(ctx, rc, v, row)
	case Ternary:
		return checkTernaryInRow(ctx, rc, v, row)
	case Agg:
		return nil, policy.New(policy.InvalidOperation, "aggregation is forbidden in row context")
	default:
		return nil, policy.New(policy.Unimplemented, "expression variant is not supported in row context")
	}
}

// checkPairInRow runs the two sub-checks of a binary node concurrently.
func checkPairInRow(ctx context.Context, rc *RowContext, left, right uuid.UUID, row int) (*policy.Chain, *policy.Chain, error) {
	var pL, pR *policy.Chain
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		pL, err = CheckInRow(gctx, rc, left, row)
		return err
	})
	g.Go(func() error {
		var err error
		pR, err = CheckInRow(gctx, rc, right, row)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return pL, pR, nil
}

func checkApplyInRow(ctx context.Context, rc *RowContext, v Apply, row int) (*policy.Chain, error) {
	switch len(v.Args) {
	case 0:
		return nil, nil
	case 1:
		p, err := CheckInRow(ctx, rc, v.Args[0], row)
		if err != nil {
			return nil, err
		}
		if policy.PolicyOk(p) {
			return nil, nil
		}
		label := policy.TransformLabel(policy.NewTransformOps(policy.UnaryTransform(v.Name)))
		return policy.Downgrade(p, label)
	case 2:
		pL, pR, err := checkPairInRow(ctx, rc, v.Args[0], v.Args[1], row)
		if err != nil {
			return nil, err
		}
		var pair [2]policy.AnyValue
		if v.Reified && row < len(v.Values) {
			pair = v.Values[row]
		}
		return combineTwoArgUDF(v.Name, pL, pR, v.Reified && row < len(v.Values), pair)
	default:
		return nil, policy.Newf(policy.Unimplemented, "function applications with %d arguments are not supported", len(v.Args))
	}
}

func checkTernaryInRow(ctx context.Context, rc *RowContext, v Ternary, row int) (*policy.Chain, error) {
	if !v.CondReified {
		return nil, policy.New(policy.ComputeError, "ternary condition was checked before it was reified")
	}
	branch := ternaryBranch(v.CondValues, row)

	var thenRes, elseRes *policy.Chain
	var thenErr, elseErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		thenRes, thenErr = CheckInRow(gctx, rc, v.Then, row)
		return nil
	})
	g.Go(func() error {
		elseRes, elseErr = CheckInRow(gctx, rc, v.Otherwise, row)
		return nil
	})
	_ = g.Wait()

	if branch {
		return thenRes, thenErr
	}
	return elseRes, elseErr
}

func ternaryBranch(values []bool, row int) bool {
	if len(values) == 1 {
		return values[0]
	}
	if row < 0 || row >= len(values) {
		return false
	}
	return values[row]
}
