package monitor

import (
	"context"

	"github.com/google/uuid"

	"github.com/agentguard/policyguard/internal/expr"
	"github.com/agentguard/policyguard/internal/policy"
	"github.com/agentguard/policyguard/pkg/admission"
)

// SetAdmission wires an admission engine into the context. Until this is
// called, BuildUnaryChecked/BuildApplyChecked/BuildAggChecked admit
// everything — a context with no admission engine configured has no
// allowlist to enforce.
func (c *Context) SetAdmission(e *admission.Engine) { c.admission = e }

func (c *Context) admit(ctx context.Context, op admission.Operation, name string) error {
	if c.admission == nil {
		return nil
	}
	var (
		d   *admission.Decision
		err error
	)
	switch op {
	case admission.OpTransform:
		d, err = c.admission.EvaluateTransform(ctx, name)
	case admission.OpUDF:
		d, err = c.admission.EvaluateUDF(ctx, name)
	case admission.OpAgg:
		d, err = c.admission.EvaluateAgg(ctx, name)
	}
	if err != nil {
		return policy.Wrap(policy.Unimplemented, err, "admission evaluation failed")
	}
	if !d.Allow {
		return policy.Newf(policy.Unimplemented, "admission denied %s %q", op, name)
	}
	return nil
}

// BuildUnaryChecked admits kind.Name as a UDF (when kind is a unary UDF) or
// kind.Kind as a transform (otherwise) before building the node, per §9's
// design note that an unlisted UDF name must surface
// Unimplemented regardless of its operands.
func (c *Context) BuildUnaryChecked(ctx context.Context, argID uuid.UUID, kind policy.TransformKind) (uuid.UUID, error) {
	if kind.Kind == "unary" {
		if err := c.admit(ctx, admission.OpUDF, kind.Name); err != nil {
			return uuid.Nil, err
		}
	} else if err := c.admit(ctx, admission.OpTransform, kind.Kind); err != nil {
		return uuid.Nil, err
	}
	return expr.BuildUnary(c.Exprs, argID, kind)
}

// BuildApplyChecked admits name before building the Apply node.
func (c *Context) BuildApplyChecked(ctx context.Context, name string, args []uuid.UUID) (uuid.UUID, error) {
	if err := c.admit(ctx, admission.OpUDF, name); err != nil {
		return uuid.Nil, err
	}
	return expr.BuildApply(c.Exprs, name, args)
}

// BuildAggChecked admits how before building the Agg node.
func (c *Context) BuildAggChecked(ctx context.Context, innerID uuid.UUID, how policy.AggKind) (uuid.UUID, error) {
	if err := c.admit(ctx, admission.OpAgg, how.How); err != nil {
		return uuid.Nil, err
	}
	return expr.BuildAgg(c.Exprs, innerID, how)
}
