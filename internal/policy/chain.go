package policy

import "strings"

// Chain is a per-cell policy: an ordered, strictly-descending sequence of
// labels, each representing one remaining allowed declassification step. A
// nil *Chain is the terminal "Clean" policy — no restriction remains. Chains
// are immutable; every operation returns a new chain.
type Chain struct {
	Label Label
	Next  *Chain
}

// Clean constructs the empty/terminal chain.
func Clean() *Chain { return nil }

// IsClean reports whether c carries no remaining restriction.
func IsClean(c *Chain) bool { return c == nil }

// PolicyOk is policy_ok(p) ≡ p == Clean: a clean cell imposes no further
// restriction and is the identity for value-dependent downgrades.
func PolicyOk(c *Chain) bool { return c == nil }

// Cons prepends label to the chain, or — if the chain is non-empty and its
// current head already dominates label (head does not flow into label) —
// inserts label directly beneath the head, which preserves the
// strictly-descending invariant without disturbing the existing head. If the
// head flows into label (inserting it as a new head would violate strict
// descent), Cons fails with InvalidOperation.
func Cons(c *Chain, label Label) (*Chain, error) {
	if c == nil {
		return &Chain{Label: label, Next: nil}, nil
	}
	if c.Label.FlowsTo(label) {
		return nil, New(InvalidOperation, "policy label is not ordered correctly")
	}
	return &Chain{Label: c.Label, Next: &Chain{Label: label, Next: c.Next}}, nil
}

// Le is the policy_lt relation: Clean is ≤ anything; two non-empty chains
// compare pointwise by FlowsTo on heads and recursively on tails.
func Le(a, b *Chain) bool {
	if a == nil {
		return true
	}
	if b == nil {
		return false
	}
	return a.Label.FlowsTo(b.Label) && Le(a.Next, b.Next)
}

// EqualChain reports mutual Le, mirroring the original's PartialEq-via-le.
func EqualChain(a, b *Chain) bool {
	return Le(a, b) && Le(b, a)
}

// JoinChain merges two chains level by level: two heads at the same level
// merge into their label Join and both chains advance; otherwise the
// higher-level head is emitted and its chain advances, while the other chain
// is kept whole for the next step. Clean is the identity. join is
// commutative, associative and the fan-in order of a parallel reduction
// never matters.
func JoinChain(a, b *Chain) *Chain {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if a.Label.BaseEq(b.Label) {
		return &Chain{Label: Join(a.Label, b.Label), Next: JoinChain(a.Next, b.Next)}
	}
	if a.Label.FlowsTo(b.Label) {
		return &Chain{Label: b.Label, Next: JoinChain(a, b.Next)}
	}
	return &Chain{Label: a.Label, Next: JoinChain(a.Next, b)}
}

// Downgrade consumes one chain level because the operation represented by lf
// was performed: if the chain is Clean, it stays Clean (identity). Otherwise
// the head must be able to declassify to lf, in which case the head is
// peeled off and the rest of the chain becomes the new residual; if the head
// cannot declassify to lf, Downgrade fails with PrivacyError.
func Downgrade(c *Chain, lf Label) (*Chain, error) {
	if c == nil {
		return nil, nil
	}
	if !c.Label.CanDeclassify(lf) {
		return nil, Newf(PrivacyError, "cannot downgrade label %s to %s", c.Label, lf)
	}
	return c.Next, nil
}

func (c *Chain) String() string {
	if c == nil {
		return "∅"
	}
	var b strings.Builder
	b.WriteString(c.Label.String())
	b.WriteString(" ⇝ ")
	b.WriteString(c.Next.String())
	return b.String()
}

// Clone deep-copies a chain. Chains are never mutated in place, so this is
// mostly useful for tests that want to assert aliasing does not leak.
func (c *Chain) Clone() *Chain {
	if c == nil {
		return nil
	}
	return &Chain{Label: c.Label, Next: c.Next.Clone()}
}
