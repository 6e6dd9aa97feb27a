package policyio

import (
	"testing"

	"github.com/agentguard/policyguard/internal/policy"
)

func TestEncodeDecodeChainRoundTrips(t *testing.T) {
	label := policy.TransformLabel(policy.NewTransformOps(policy.Shift(3)))
	chain, err := policy.Cons(nil, label)
	if err != nil {
		t.Fatalf("cons: %v", err)
	}
	enc, err := EncodeChain(chain)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeChain(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !policy.EqualChain(chain, got) {
		t.Fatalf("round trip mismatch: %v vs %v", chain, got)
	}
}

func TestEncodeDecodeCleanChain(t *testing.T) {
	enc, err := EncodeChain(nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeChain(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !policy.IsClean(got) {
		t.Fatalf("expected clean chain, got %v", got)
	}
}

func TestEncodeDecodeBinaryTransformArg(t *testing.T) {
	label := policy.TransformLabel(policy.NewTransformOps(
		policy.BinaryTransform("+", policy.Int64Value(42)),
	))
	chain, _ := policy.Cons(nil, label)
	enc, err := EncodeChain(chain)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeChain(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !policy.EqualChain(chain, got) {
		t.Fatalf("round trip mismatch: %v vs %v", chain, got)
	}
}

func TestEncodeDecodeMultiLevelChain(t *testing.T) {
	// Built directly rather than via policy.Cons: the codec only needs to
	// round-trip whatever shape it's handed, not re-derive a valid descent.
	c := &policy.Chain{
		Label: policy.NoiseLabel(policy.NoiseParam{Epsilon: 0.5}),
		Next: &policy.Chain{
			Label: policy.AggLabel(policy.NewAggOps(policy.AggKind{How: "sum", GroupSize: 4})),
		},
	}
	enc, err := EncodeChain(c)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeChain(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !policy.EqualChain(c, got) {
		t.Fatalf("round trip mismatch: %v vs %v", c, got)
	}
}

func TestDecodeChainRejectsTruncatedInput(t *testing.T) {
	if _, err := DecodeChain([]byte{tagTransform}); !policy.Is(err, policy.SerializeError) {
		t.Fatalf("expected SerializeError, got %v", err)
	}
}
