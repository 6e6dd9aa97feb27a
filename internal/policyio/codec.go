package policyio

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/agentguard/policyguard/internal/policy"
)

// Chain wire tags. No library in the pack models this lattice's recursive
// shape, so the binary form is a small hand-rolled TLV: a level byte, a
// level-specific payload, then the next chain link (recursing to tagClean).
const (
	tagClean byte = iota
	tagTransform
	tagAgg
	tagNoise
)

const (
	transformIdentify byte = iota
	transformRedact
	transformGeneralize
	transformReplace
	transformShift
	transformUnary
	transformBinary
)

const (
	valNull byte = iota
	valInt32
	valInt64
	valFloat64
	valString
	valDuration
	valBool
)

// EncodeChain renders a chain to its binary wire form for a Parquet
// BinaryArray cell or a JSON byte-string mirror.
func EncodeChain(c *policy.Chain) ([]byte, error) {
	var buf []byte
	for c != nil {
		enc, err := encodeLabel(c.Label)
		if err != nil {
			return nil, err
		}
		buf = append(buf, enc...)
		c = c.Next
	}
	buf = append(buf, tagClean)
	return buf, nil
}

// DecodeChain parses a chain previously produced by EncodeChain.
func DecodeChain(b []byte) (*policy.Chain, error) {
	head, rest, err := decodeChain(b)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, policy.New(policy.SerializeError, "trailing bytes after chain encoding")
	}
	return head, nil
}

func decodeChain(b []byte) (*policy.Chain, []byte, error) {
	if len(b) == 0 {
		return nil, nil, policy.New(policy.SerializeError, "truncated chain encoding")
	}
	tag := b[0]
	b = b[1:]
	if tag == tagClean {
		return nil, b, nil
	}
	label, rest, err := decodeLabelBody(tag, b)
	if err != nil {
		return nil, nil, err
	}
	next, rest, err := decodeChain(rest)
	if err != nil {
		return nil, nil, err
	}
	return &policy.Chain{Label: label, Next: next}, rest, nil
}

func encodeLabel(l policy.Label) ([]byte, error) {
	switch l.Level {
	case policy.LevelTransform:
		return encodeTransformLabel(l)
	case policy.LevelAgg:
		return encodeAggLabel(l)
	case policy.LevelNoise:
		return encodeNoiseLabel(l)
	default:
		return nil, policy.Newf(policy.SerializeError, "a chain link cannot carry a %s label", l.Level)
	}
}

func decodeLabelBody(tag byte, b []byte) (policy.Label, []byte, error) {
	switch tag {
	case tagTransform:
		return decodeTransformLabel(b)
	case tagAgg:
		return decodeAggLabel(b)
	case tagNoise:
		return decodeNoiseLabel(b)
	default:
		return policy.Label{}, nil, policy.Newf(policy.SerializeError, "unknown label tag %d", tag)
	}
}

func encodeTransformLabel(l policy.Label) ([]byte, error) {
	buf := []byte{tagTransform}
	buf = appendUvarint(buf, uint64(len(l.Transforms)))
	for k := range l.Transforms {
		enc, err := encodeTransformKind(k)
		if err != nil {
			return nil, err
		}
		buf = append(buf, enc...)
	}
	return buf, nil
}

func decodeTransformLabel(b []byte) (policy.Label, []byte, error) {
	n, b, err := takeUvarint(b)
	if err != nil {
		return policy.Label{}, nil, err
	}
	kinds := make([]policy.TransformKind, 0, n)
	for i := uint64(0); i < n; i++ {
		var k policy.TransformKind
		k, b, err = decodeTransformKind(b)
		if err != nil {
			return policy.Label{}, nil, err
		}
		kinds = append(kinds, k)
	}
	return policy.TransformLabel(policy.NewTransformOps(kinds...)), b, nil
}

func encodeTransformKind(k policy.TransformKind) ([]byte, error) {
	var buf []byte
	switch k.Kind {
	case "identify":
		buf = append(buf, transformIdentify)
	case "redact":
		buf = append(buf, transformRedact)
		buf = appendVarint(buf, int64(k.RangeStart))
		buf = appendVarint(buf, int64(k.RangeEnd))
	case "generalize":
		buf = append(buf, transformGeneralize)
		buf = appendVarint(buf, int64(k.RangeStart))
		buf = appendVarint(buf, int64(k.RangeEnd))
	case "replace":
		buf = append(buf, transformReplace)
	case "shift":
		buf = append(buf, transformShift)
		buf = appendVarint(buf, k.By)
	case "unary":
		buf = append(buf, transformUnary)
		buf = appendString(buf, k.Name)
	case "binary":
		buf = append(buf, transformBinary)
		buf = appendString(buf, k.Name)
		enc, err := encodeValue(k.Arg)
		if err != nil {
			return nil, err
		}
		buf = append(buf, enc...)
	default:
		return nil, policy.Newf(policy.SerializeError, "unknown transform kind %q", k.Kind)
	}
	return buf, nil
}

func decodeTransformKind(b []byte) (policy.TransformKind, []byte, error) {
	if len(b) == 0 {
		return policy.TransformKind{}, nil, policy.New(policy.SerializeError, "truncated transform kind")
	}
	tag, b := b[0], b[1:]
	switch tag {
	case transformIdentify:
		return policy.Identify(), b, nil
	case transformRedact:
		start, b, err := takeVarint(b)
		if err != nil {
			return policy.TransformKind{}, nil, err
		}
		end, b, err := takeVarint(b)
		if err != nil {
			return policy.TransformKind{}, nil, err
		}
		return policy.Redact(int(start), int(end)), b, nil
	case transformGeneralize:
		start, b, err := takeVarint(b)
		if err != nil {
			return policy.TransformKind{}, nil, err
		}
		end, b, err := takeVarint(b)
		if err != nil {
			return policy.TransformKind{}, nil, err
		}
		return policy.Generalize(int(start), int(end)), b, nil
	case transformReplace:
		return policy.Replace(), b, nil
	case transformShift:
		by, b, err := takeVarint(b)
		if err != nil {
			return policy.TransformKind{}, nil, err
		}
		return policy.Shift(by), b, nil
	case transformUnary:
		name, b, err := takeString(b)
		if err != nil {
			return policy.TransformKind{}, nil, err
		}
		return policy.UnaryTransform(name), b, nil
	case transformBinary:
		name, b, err := takeString(b)
		if err != nil {
			return policy.TransformKind{}, nil, err
		}
		arg, b, err := decodeValue(b)
		if err != nil {
			return policy.TransformKind{}, nil, err
		}
		return policy.BinaryTransform(name, arg), b, nil
	default:
		return policy.TransformKind{}, nil, policy.Newf(policy.SerializeError, "unknown transform tag %d", tag)
	}
}

func encodeAggLabel(l policy.Label) ([]byte, error) {
	buf := []byte{tagAgg}
	buf = appendUvarint(buf, uint64(len(l.Aggs)))
	for k := range l.Aggs {
		buf = appendString(buf, k.How)
		buf = appendVarint(buf, int64(k.GroupSize))
		if k.IncludeNulls {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
		buf = appendFloat64(buf, k.Quantile)
		buf = appendString(buf, k.Interp)
		buf = append(buf, k.Ddof)
	}
	return buf, nil
}

func decodeAggLabel(b []byte) (policy.Label, []byte, error) {
	n, b, err := takeUvarint(b)
	if err != nil {
		return policy.Label{}, nil, err
	}
	kinds := make([]policy.AggKind, 0, n)
	for i := uint64(0); i < n; i++ {
		how, rest, err := takeString(b)
		if err != nil {
			return policy.Label{}, nil, err
		}
		groupSize, rest2, err := takeVarint(rest)
		if err != nil {
			return policy.Label{}, nil, err
		}
		if len(rest2) < 1 {
			return policy.Label{}, nil, policy.New(policy.SerializeError, "truncated agg kind")
		}
		includeNulls := rest2[0] == 1
		rest2 = rest2[1:]
		quantile, rest2, err := takeFloat64(rest2)
		if err != nil {
			return policy.Label{}, nil, err
		}
		interp, rest2, err := takeString(rest2)
		if err != nil {
			return policy.Label{}, nil, err
		}
		if len(rest2) < 1 {
			return policy.Label{}, nil, policy.New(policy.SerializeError, "truncated agg kind")
		}
		ddof := rest2[0]
		b = rest2[1:]
		kinds = append(kinds, policy.AggKind{
			How: how, GroupSize: int(groupSize), IncludeNulls: includeNulls,
			Quantile: quantile, Interp: interp, Ddof: ddof,
		})
	}
	return policy.AggLabel(policy.NewAggOps(kinds...)), b, nil
}

func encodeNoiseLabel(l policy.Label) ([]byte, error) {
	buf := []byte{tagNoise}
	buf = appendFloat64(buf, l.Noise.Epsilon)
	if l.Noise.HasDelta {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = appendFloat64(buf, l.Noise.Delta)
	return buf, nil
}

func decodeNoiseLabel(b []byte) (policy.Label, []byte, error) {
	eps, b, err := takeFloat64(b)
	if err != nil {
		return policy.Label{}, nil, err
	}
	if len(b) < 1 {
		return policy.Label{}, nil, policy.New(policy.SerializeError, "truncated noise label")
	}
	hasDelta := b[0] == 1
	b = b[1:]
	delta, b, err := takeFloat64(b)
	if err != nil {
		return policy.Label{}, nil, err
	}
	return policy.Label{Level: policy.LevelNoise, Noise: policy.NoiseParam{Epsilon: eps, HasDelta: hasDelta, Delta: delta}}, b, nil
}

func encodeValue(v policy.AnyValue) ([]byte, error) {
	switch v.Kind {
	case "null":
		return []byte{valNull}, nil
	case "int32":
		buf := []byte{valInt32}
		return appendVarint(buf, int64(v.Int32)), nil
	case "int64":
		buf := []byte{valInt64}
		return appendVarint(buf, v.Int64), nil
	case "float64":
		buf := []byte{valFloat64}
		return appendFloat64(buf, v.Float64), nil
	case "string":
		buf := []byte{valString}
		return appendString(buf, v.String), nil
	case "duration":
		buf := []byte{valDuration}
		return appendVarint(buf, int64(v.Duration)), nil
	case "bool":
		b := byte(0)
		if v.Bool {
			b = 1
		}
		return []byte{valBool, b}, nil
	default:
		return nil, policy.Newf(policy.SerializeError, "unknown value kind %q", v.Kind)
	}
}

func decodeValue(b []byte) (policy.AnyValue, []byte, error) {
	if len(b) == 0 {
		return policy.AnyValue{}, nil, policy.New(policy.SerializeError, "truncated value")
	}
	tag, b := b[0], b[1:]
	switch tag {
	case valNull:
		return policy.NullValue(), b, nil
	case valInt32:
		n, b, err := takeVarint(b)
		if err != nil {
			return policy.AnyValue{}, nil, err
		}
		return policy.Int32Value(int32(n)), b, nil
	case valInt64:
		n, b, err := takeVarint(b)
		if err != nil {
			return policy.AnyValue{}, nil, err
		}
		return policy.Int64Value(n), b, nil
	case valFloat64:
		f, b, err := takeFloat64(b)
		if err != nil {
			return policy.AnyValue{}, nil, err
		}
		return policy.Float64Value(f), b, nil
	case valString:
		s, b, err := takeString(b)
		if err != nil {
			return policy.AnyValue{}, nil, err
		}
		return policy.StringValue(s), b, nil
	case valDuration:
		n, b, err := takeVarint(b)
		if err != nil {
			return policy.AnyValue{}, nil, err
		}
		return policy.DurationValue(time.Duration(n)), b, nil
	case valBool:
		if len(b) < 1 {
			return policy.AnyValue{}, nil, policy.New(policy.SerializeError, "truncated bool value")
		}
		return policy.BoolValue(b[0] == 1), b[1:], nil
	default:
		return policy.AnyValue{}, nil, policy.Newf(policy.SerializeError, "unknown value tag %d", tag)
	}
}

func appendUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

func appendVarint(buf []byte, v int64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutVarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

func appendFloat64(buf []byte, f float64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(f))
	return append(buf, tmp[:]...)
}

func appendString(buf []byte, s string) []byte {
	buf = appendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

func takeUvarint(b []byte) (uint64, []byte, error) {
	v, n := binary.Uvarint(b)
	if n <= 0 {
		return 0, nil, policy.New(policy.SerializeError, "truncated varint")
	}
	return v, b[n:], nil
}

func takeVarint(b []byte) (int64, []byte, error) {
	v, n := binary.Varint(b)
	if n <= 0 {
		return 0, nil, policy.New(policy.SerializeError, "truncated varint")
	}
	return v, b[n:], nil
}

func takeFloat64(b []byte) (float64, []byte, error) {
	if len(b) < 8 {
		return 0, nil, policy.New(policy.SerializeError, "truncated float64")
	}
	bits := binary.LittleEndian.Uint64(b[:8])
	return math.Float64frombits(bits), b[8:], nil
}

func takeString(b []byte) (string, []byte, error) {
	n, rest, err := takeUvarint(b)
	if err != nil {
		return "", nil, err
	}
	if uint64(len(rest)) < n {
		return "", nil, policy.New(policy.SerializeError, "truncated string")
	}
	return string(rest[:n]), rest[n:], nil
}

func mustEncode(c *policy.Chain) []byte {
	b, err := EncodeChain(c)
	if err != nil {
		panic(fmt.Sprintf("policyio: encoding an already-validated chain failed: %v", err))
	}
	return b
}
