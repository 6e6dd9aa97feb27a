package policy

import "testing"

func shiftLabel(by int64) Label {
	return TransformLabel(NewTransformOps(Shift(by)))
}

func TestConsRejectsOutOfOrderChain(t *testing.T) {
	c, err := Cons(nil, shiftLabel(1))
	if err != nil {
		t.Fatalf("cons onto Clean: %v", err)
	}
	if c == nil || !c.Label.Equal(shiftLabel(1)) {
		t.Fatalf("unexpected chain: %v", c)
	}

	// Top is stronger than the existing Transform head, so it cannot be
	// inserted beneath it without breaking strict descent.
	_, err = Cons(c, Top())
	if err == nil {
		t.Fatal("expected error consing Top beneath a Transform head")
	}
	if !Is(err, InvalidOperation) {
		t.Fatalf("expected InvalidOperation, got %v", err)
	}

	// Bot is weaker than Transform, so it inserts cleanly beneath the head.
	c2, err := Cons(c, Bot())
	if err != nil {
		t.Fatalf("cons Bot beneath Transform head: %v", err)
	}
	if c2.Label.Level != LevelTransform || c2.Next.Label.Level != LevelBot {
		t.Fatalf("unexpected chain shape: %v", c2)
	}
}

func TestConsAgg(t *testing.T) {
	agg := AggLabel(NewAggOps(AggKind{How: "sum", GroupSize: 2}))
	c, err := Cons(nil, agg)
	if err != nil {
		t.Fatalf("cons agg: %v", err)
	}
	if _, err := Cons(c, Top()); err == nil {
		t.Fatal("expected error consing Top above an Agg head")
	}
}

func TestCleanIsIdentityForLeAndJoin(t *testing.T) {
	c, _ := Cons(nil, shiftLabel(5))
	if !Le(nil, c) {
		t.Fatal("Clean.le(p) must be true")
	}
	if Le(c, nil) {
		t.Fatal("a non-clean chain must not be <= Clean")
	}
	if JoinChain(nil, c) != c {
		t.Fatal("Clean.join(p) must return p unchanged")
	}
	if JoinChain(c, nil) != c {
		t.Fatal("p.join(Clean) must return p unchanged")
	}
}

func TestDowngradeConsumesOneLevel(t *testing.T) {
	c, _ := Cons(nil, shiftLabel(5))
	residual, err := Downgrade(c, shiftLabel(5))
	if err != nil {
		t.Fatalf("downgrade: %v", err)
	}
	if !IsClean(residual) {
		t.Fatalf("expected Clean after matching downgrade, got %v", residual)
	}
}

func TestDowngradeFailsOnMismatch(t *testing.T) {
	c, _ := Cons(nil, shiftLabel(5))
	_, err := Downgrade(c, shiftLabel(6))
	if err == nil {
		t.Fatal("expected PrivacyError on mismatched shift amount")
	}
	if !Is(err, PrivacyError) {
		t.Fatalf("expected PrivacyError, got %v", err)
	}
}

func TestDowngradeOnCleanIsIdentity(t *testing.T) {
	residual, err := Downgrade(nil, shiftLabel(1))
	if err != nil {
		t.Fatalf("downgrade on Clean must never fail: %v", err)
	}
	if !IsClean(residual) {
		t.Fatal("downgrade on Clean must stay Clean")
	}
}

func TestJoinChainIsCommutative(t *testing.T) {
	// Two labels at different levels are always comparable by FlowsTo, so
	// the merge is order-independent regardless of call order.
	a, _ := Cons(nil, Bot())
	b, _ := Cons(nil, shiftLabel(1))
	if !EqualChain(JoinChain(a, b), JoinChain(b, a)) {
		t.Fatal("join must be commutative")
	}
}

func TestAggGroupSizeGate(t *testing.T) {
	allowed := AggLabel(NewAggOps(AggKind{How: "sum", GroupSize: 2}))
	c, _ := Cons(nil, allowed)

	if _, err := Downgrade(c, AggLabel(NewAggOps(AggKind{How: "sum", GroupSize: 2}))); err != nil {
		t.Fatalf("exact group size match should succeed: %v", err)
	}
	if _, err := Downgrade(c, AggLabel(NewAggOps(AggKind{How: "sum", GroupSize: 5}))); err == nil {
		t.Fatal("wrong group size must fail with PrivacyError")
	}
}
