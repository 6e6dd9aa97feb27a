package policy

import "testing"

func sampleLabels() []Label {
	return []Label{
		Bot(),
		Top(),
		TransformLabel(NewTransformOps(Shift(1), Identify())),
		TransformLabel(NewTransformOps(Shift(2))),
		AggLabel(NewAggOps(AggKind{How: "sum", GroupSize: 2})),
		AggLabel(NewAggOps(AggKind{How: "sum", GroupSize: 5}, AggKind{How: "mean", GroupSize: 2})),
		NoiseLabel(NoiseParam{Epsilon: 0.5}),
	}
}

func TestJoinMeetCommutative(t *testing.T) {
	labels := sampleLabels()
	for _, a := range labels {
		for _, b := range labels {
			if !Join(a, b).Equal(Join(b, a)) {
				t.Fatalf("join not commutative for %v, %v", a, b)
			}
			if !Meet(a, b).Equal(Meet(b, a)) {
				t.Fatalf("meet not commutative for %v, %v", a, b)
			}
		}
	}
}

func TestJoinAssociative(t *testing.T) {
	labels := sampleLabels()
	for _, a := range labels {
		for _, b := range labels {
			for _, c := range labels {
				lhs := Join(Join(a, b), c)
				rhs := Join(a, Join(b, c))
				if !lhs.Equal(rhs) {
					t.Fatalf("join not associative for %v, %v, %v: %v != %v", a, b, c, lhs, rhs)
				}
			}
		}
	}
}

func TestJoinWithBotAndTop(t *testing.T) {
	for _, a := range sampleLabels() {
		if !Join(a, Bot()).Equal(a) {
			t.Fatalf("join(a, Bot) must equal a, got %v for a=%v", Join(a, Bot()), a)
		}
		if !Join(a, Top()).Equal(Top()) {
			t.Fatalf("join(a, Top) must equal Top, got %v for a=%v", Join(a, Top()), a)
		}
	}
}

func TestJoinAbsorptive(t *testing.T) {
	for _, a := range sampleLabels() {
		for _, b := range sampleLabels() {
			if !Join(a, Meet(a, b)).Equal(a) {
				t.Fatalf("absorption a join (a meet b) != a for a=%v b=%v", a, b)
			}
			if !Meet(a, Join(a, b)).Equal(a) {
				t.Fatalf("absorption a meet (a join b) != a for a=%v b=%v", a, b)
			}
		}
	}
}

func TestFlowsToReflexiveAndTransitive(t *testing.T) {
	labels := sampleLabels()
	for _, a := range labels {
		if !a.FlowsTo(a) {
			t.Fatalf("flowsto must be reflexive for %v", a)
		}
	}
	for _, a := range labels {
		for _, b := range labels {
			for _, c := range labels {
				if a.FlowsTo(b) && b.FlowsTo(c) && !a.FlowsTo(c) {
					t.Fatalf("flowsto not transitive: %v -> %v -> %v", a, b, c)
				}
			}
		}
	}
}

func TestCanDeclassifyBotAndTop(t *testing.T) {
	if !Bot().CanDeclassify(Top()) {
		t.Fatal("Bot must be able to declassify to anything")
	}
	if Top().CanDeclassify(Bot()) {
		t.Fatal("Top must not be able to declassify to anything")
	}
}

func TestGroupSizeIsPartOfAggIdentity(t *testing.T) {
	a := AggLabel(NewAggOps(AggKind{How: "sum", GroupSize: 2}))
	b := AggLabel(NewAggOps(AggKind{How: "sum", GroupSize: 5}))
	if a.Equal(b) {
		t.Fatal("Agg labels with different group sizes must not be equal")
	}
	if a.CanDeclassify(b) {
		t.Fatal("an Agg{sum,2} policy must not permit declassifying to Agg{sum,5}")
	}
}
