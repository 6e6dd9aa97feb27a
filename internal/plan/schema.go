package plan

import (
	"github.com/google/uuid"

	"github.com/agentguard/policyguard/internal/arena"
	"github.com/agentguard/policyguard/internal/dataframe"
	"github.com/agentguard/policyguard/internal/policy"
)

// Schema resolves the output schema of the plan node at id, recursing into
// single-input nodes that carry no schema of their own (Select, Distinct).
// Hitting an ErrorPlan consumes its one-shot error state.
func Schema(plans *arena.Arena[Plan], id uuid.UUID) (*dataframe.Schema, error) {
	p, err := plans.Get(id)
	if err != nil {
		return nil, err
	}
	switch v := p.(type) {
	case Scan:
		return v.Schema, nil
	case Projection:
		return v.Schema, nil
	case Select:
		return Schema(plans, v.Input)
	case Aggregation:
		return v.Schema, nil
	case Join:
		return v.Schema, nil
	case Union:
		return v.Schema, nil
	case Distinct:
		return Schema(plans, v.Input)
	case Other:
		return v.Schema, nil
	case ErrorPlan:
		return nil, consumeError(plans, id, v)
	default:
		return nil, policy.New(policy.Unimplemented, "plan variant has no schema resolution")
	}
}

// consumeError surfaces an ErrorPlan's stored error exactly once; every
// later call sees a fresh AlreadyEncountered wrapping the original message.
func consumeError(plans *arena.Arena[Plan], id uuid.UUID, v ErrorPlan) error {
	if v.Consumed {
		return policy.Newf(policy.Already, "AlreadyEncountered: %s", v.Err.Error())
	}
	_ = plans.Mutate(id, func(p Plan) Plan {
		e := p.(ErrorPlan)
		e.Consumed = true
		return e
	})
	return v.Err
}
