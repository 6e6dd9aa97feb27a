package expr

import (
	"github.com/agentguard/policyguard/internal/policy"
)

// combineArithmetic implements the value-dependent downgrade rule shared by
// row- and group-context checks for an Arithmetic BinaryExpr: if both sides
// are already Clean the result is Clean; if exactly one side is Clean, the
// other side is downgraded by a Binary transform whose argument is the
// Clean side's own reified value; otherwise (neither side Clean) the
// operation cannot discharge any restriction and the two residuals simply
// join.
func combineArithmetic(op BinOperator, pL, pR *policy.Chain, reified bool, pair [2]policy.AnyValue) (*policy.Chain, error) {
	lOk, rOk := policy.PolicyOk(pL), policy.PolicyOk(pR)
	if lOk && rOk {
		return nil, nil
	}
	if !reified {
		return nil, policy.New(policy.ComputeError, "arithmetic expression was checked before its operands were reified")
	}
	if lOk {
		label := policy.TransformLabel(policy.NewTransformOps(policy.BinaryTransform(op.Op, pair[0])))
		return policy.Downgrade(pR, label)
	}
	if rOk {
		label := policy.TransformLabel(policy.NewTransformOps(policy.BinaryTransform(op.Op, pair[1])))
		return policy.Downgrade(pL, label)
	}
	return policy.JoinChain(pL, pR), nil
}

// knownTwoArgUDF reports whether name is one of the two recognized
// two-argument UDFs. This mirrors original_source's check_apply literally
// and is deliberately narrow: an unrecognized two-arg UDF must be surfaced
// as Unimplemented, not silently treated as Clean just because both
// operands happen to be Clean on this row or group.
func knownTwoArgUDF(name string) bool {
	return name == "dt.offset_by" || name == "+"
}

// twoArgUDFLabel resolves the Binary transform label a known two-argument
// UDF contributes from its concrete argument value.
func twoArgUDFLabel(name string, value policy.AnyValue) (policy.Label, error) {
	switch name {
	case "dt.offset_by":
		if _, ok := value.AsDuration(); !ok {
			return policy.Label{}, policy.New(policy.InvalidOperation, "dt.offset_by requires a duration argument")
		}
	case "+":
		if _, ok := value.AsInt64(); !ok {
			return policy.Label{}, policy.New(policy.InvalidOperation, "+ requires an integer argument")
		}
	default:
		return policy.Label{}, policy.Newf(policy.Unimplemented, "unsupported two-argument UDF %q", name)
	}
	return policy.TransformLabel(policy.NewTransformOps(policy.BinaryTransform(name, value))), nil
}

// combineTwoArgUDF is the Apply analogue of combineArithmetic, driven by
// twoArgUDFLabel's name-based argument conversion rather than an operator.
func combineTwoArgUDF(name string, pL, pR *policy.Chain, reified bool, pair [2]policy.AnyValue) (*policy.Chain, error) {
	if !knownTwoArgUDF(name) {
		return nil, policy.Newf(policy.Unimplemented, "unsupported two-argument UDF %q", name)
	}
	lOk, rOk := policy.PolicyOk(pL), policy.PolicyOk(pR)
	if lOk && rOk {
		return nil, nil
	}
	if !reified {
		return nil, policy.New(policy.ComputeError, "function application was checked before its operands were reified")
	}
	if lOk {
		label, err := twoArgUDFLabel(name, pair[0])
		if err != nil {
			return nil, err
		}
		return policy.Downgrade(pR, label)
	}
	if rOk {
		label, err := twoArgUDFLabel(name, pair[1])
		if err != nil {
			return nil, err
		}
		return policy.Downgrade(pL, label)
	}
	return policy.JoinChain(pL, pR), nil
}
