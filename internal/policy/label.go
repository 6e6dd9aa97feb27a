// Package policy implements the five-level label lattice and the per-cell
// policy chains built on top of it.
//
// A Label sits at one of five levels, ordered Bot < Transform < Agg < Noise <
// Top. Transform, Agg and Noise labels additionally carry a set of operators
// that remain permitted at that level; two labels at the same level are equal
// iff their operator sets are equal, and join/meet degrade to set
// intersection/union on same-level labels. See original_source's
// picachv-core/src/policy/policy.rs for the algebra this is ported from.
package policy

import "fmt"

// Level is the position of a Label in the five-level lattice.
type Level int

const (
	LevelBot Level = iota
	LevelTransform
	LevelAgg
	LevelNoise
	LevelTop
)

func (l Level) String() string {
	switch l {
	case LevelBot:
		return "Bot"
	case LevelTransform:
		return "Transform"
	case LevelAgg:
		return "Agg"
	case LevelNoise:
		return "Noise"
	case LevelTop:
		return "Top"
	default:
		return "Unknown"
	}
}

// TransformKind is one element of a Transform label's operator set.
type TransformKind struct {
	Kind string // "identify", "redact", "generalize", "replace", "shift", "unary", "binary"

	// Redact / Generalize carry a half-open range over the value.
	RangeStart int
	RangeEnd   int

	// Shift carries a day offset.
	By int64

	// Unary/Binary carry the UDF name; Binary additionally carries the
	// concrete argument value used for the value-dependent downgrade check.
	Name string
	Arg  AnyValue
}

func Identify() TransformKind                    { return TransformKind{Kind: "identify"} }
func Redact(start, end int) TransformKind         { return TransformKind{Kind: "redact", RangeStart: start, RangeEnd: end} }
func Generalize(start, end int) TransformKind     { return TransformKind{Kind: "generalize", RangeStart: start, RangeEnd: end} }
func Replace() TransformKind                      { return TransformKind{Kind: "replace"} }
func Shift(by int64) TransformKind                { return TransformKind{Kind: "shift", By: by} }
func UnaryTransform(name string) TransformKind    { return TransformKind{Kind: "unary", Name: name} }
func BinaryTransform(name string, arg AnyValue) TransformKind {
	return TransformKind{Kind: "binary", Name: name, Arg: arg}
}

// AggKind is one element of an Agg label's operator set. GroupSize is part of
// its identity: a policy authored for group_size=2 is a distinct operator
// from one authored for group_size=5, which is exactly what lets
// fold_on_groups reject aggregations over the wrong number of rows.
type AggKind struct {
	How          string // "min","max","median","mean","sum","first","last","nunique","groups","nanmin","nanmax","count","quantile","std","var","implode"
	GroupSize    int
	IncludeNulls bool
	Quantile     float64
	Interp       string
	Ddof         uint8
}

// NoiseParam describes a differential-privacy mechanism. Declassifying to a
// target epsilon/delta is permitted only if the target is no weaker than the
// label actually held (a smaller epsilon is a stronger guarantee).
type NoiseParam struct {
	Epsilon  float64
	HasDelta bool
	Delta    float64
}

func (n NoiseParam) leq(o NoiseParam) bool {
	if n.Epsilon != o.Epsilon {
		return n.Epsilon <= o.Epsilon
	}
	if !n.HasDelta && !o.HasDelta {
		return true
	}
	return n.Delta <= o.Delta
}

func (n NoiseParam) min(o NoiseParam) NoiseParam {
	if n.leq(o) {
		return n
	}
	return o
}

func (n NoiseParam) max(o NoiseParam) NoiseParam {
	if n.leq(o) {
		return o
	}
	return n
}

// TransformOps is a set of TransformKind, compared/joined/met by set algebra.
type TransformOps map[TransformKind]struct{}

func NewTransformOps(kinds ...TransformKind) TransformOps {
	ops := make(TransformOps, len(kinds))
	for _, k := range kinds {
		ops[k] = struct{}{}
	}
	return ops
}

func (o TransformOps) isSubset(other TransformOps) bool {
	for k := range o {
		if _, ok := other[k]; !ok {
			return false
		}
	}
	return true
}

func (o TransformOps) setEq(other TransformOps) bool {
	return o.isSubset(other) && other.isSubset(o)
}

func (o TransformOps) intersect(other TransformOps) TransformOps {
	out := make(TransformOps)
	for k := range o {
		if _, ok := other[k]; ok {
			out[k] = struct{}{}
		}
	}
	return out
}

func (o TransformOps) union(other TransformOps) TransformOps {
	out := make(TransformOps, len(o)+len(other))
	for k := range o {
		out[k] = struct{}{}
	}
	for k := range other {
		out[k] = struct{}{}
	}
	return out
}

// AggOps is a set of AggKind.
type AggOps map[AggKind]struct{}

func NewAggOps(kinds ...AggKind) AggOps {
	ops := make(AggOps, len(kinds))
	for _, k := range kinds {
		ops[k] = struct{}{}
	}
	return ops
}

func (o AggOps) isSubset(other AggOps) bool {
	for k := range o {
		if _, ok := other[k]; !ok {
			return false
		}
	}
	return true
}

func (o AggOps) setEq(other AggOps) bool {
	return o.isSubset(other) && other.isSubset(o)
}

func (o AggOps) intersect(other AggOps) AggOps {
	out := make(AggOps)
	for k := range o {
		if _, ok := other[k]; ok {
			out[k] = struct{}{}
		}
	}
	return out
}

func (o AggOps) union(other AggOps) AggOps {
	out := make(AggOps, len(o)+len(other))
	for k := range o {
		out[k] = struct{}{}
	}
	for k := range other {
		out[k] = struct{}{}
	}
	return out
}

// Label is a single level of the lattice plus the operator set (or noise
// parameter) attached to Transform/Agg/Noise levels. Bot and Top carry no
// payload.
type Label struct {
	Level      Level
	Transforms TransformOps
	Aggs       AggOps
	Noise      NoiseParam
}

func Bot() Label  { return Label{Level: LevelBot} }
func Top() Label  { return Label{Level: LevelTop} }

func TransformLabel(ops TransformOps) Label { return Label{Level: LevelTransform, Transforms: ops} }
func AggLabel(ops AggOps) Label             { return Label{Level: LevelAgg, Aggs: ops} }
func NoiseLabel(p NoiseParam) Label         { return Label{Level: LevelNoise, Noise: p} }

// Equal implements policy_label_eq: same level, and for Transform/Agg/Noise
// set/parameter equality of the payload. Bot/Bot and Top/Top are equal;
// cross-level comparisons are never equal.
func (l Label) Equal(o Label) bool {
	if l.Level != o.Level {
		return false
	}
	switch l.Level {
	case LevelBot, LevelTop:
		return true
	case LevelTransform:
		return l.Transforms.setEq(o.Transforms)
	case LevelAgg:
		return l.Aggs.setEq(o.Aggs)
	case LevelNoise:
		return l.Noise.leq(o.Noise) && o.Noise.leq(l.Noise)
	default:
		return false
	}
}

// BaseEq compares only the level tag, ignoring operator sets.
func (l Label) BaseEq(o Label) bool {
	return l.Level == o.Level
}

// CanDeclassify reports whether a cell currently holding label l may be
// declassified to the (weaker-or-equal) target label o: Bot can declassify
// to anything, Top to nothing, same-level labels require the target's
// operator set to be a subset of the current one, and different non-Bot
// levels can never declassify to one another.
func (l Label) CanDeclassify(o Label) bool {
	switch l.Level {
	case LevelBot:
		return true
	case LevelTop:
		return false
	}
	if l.Level != o.Level {
		return l.Equal(o)
	}
	switch l.Level {
	case LevelTransform:
		return o.Transforms.isSubset(l.Transforms)
	case LevelAgg:
		return o.Aggs.isSubset(l.Aggs)
	case LevelNoise:
		return o.Noise.leq(l.Noise)
	default:
		return l.Equal(o)
	}
}

// FlowsTo is the ⊑ ordering: l is no more restrictive than o, i.e. l sits at
// a strictly lower level, or the same level with o's operator set a subset
// of l's (everything o permits, l already permits).
func (l Label) FlowsTo(o Label) bool {
	if l.Level != o.Level {
		return l.Level < o.Level
	}
	switch l.Level {
	case LevelBot, LevelTop:
		return true
	case LevelTransform:
		return o.Transforms.isSubset(l.Transforms)
	case LevelAgg:
		return o.Aggs.isSubset(l.Aggs)
	case LevelNoise:
		return o.Noise.leq(l.Noise)
	default:
		return false
	}
}

// Join is the least upper bound: the higher level wins outright; on equal
// levels the operator sets intersect (keeping only operations both labels
// still permit).
func Join(a, b Label) Label {
	if a.Level != b.Level {
		if a.Level < b.Level {
			return b
		}
		return a
	}
	switch a.Level {
	case LevelBot, LevelTop:
		return a
	case LevelTransform:
		return TransformLabel(a.Transforms.intersect(b.Transforms))
	case LevelAgg:
		return AggLabel(a.Aggs.intersect(b.Aggs))
	case LevelNoise:
		return NoiseLabel(a.Noise.min(b.Noise))
	default:
		return a
	}
}

// Meet is the greatest lower bound: dual of Join, the lower level wins and
// equal-level operator sets union.
func Meet(a, b Label) Label {
	if a.Level != b.Level {
		if a.Level < b.Level {
			return a
		}
		return b
	}
	switch a.Level {
	case LevelBot, LevelTop:
		return a
	case LevelTransform:
		return TransformLabel(a.Transforms.union(b.Transforms))
	case LevelAgg:
		return AggLabel(a.Aggs.union(b.Aggs))
	case LevelNoise:
		return NoiseLabel(a.Noise.max(b.Noise))
	default:
		return a
	}
}

func (l Label) String() string {
	switch l.Level {
	case LevelBot:
		return "⊥"
	case LevelTop:
		return "⊤"
	case LevelTransform:
		return fmt.Sprintf("Transform(%v)", transformNames(l.Transforms))
	case LevelAgg:
		return fmt.Sprintf("Agg(%v)", aggNames(l.Aggs))
	case LevelNoise:
		return fmt.Sprintf("Noise(eps=%v)", l.Noise.Epsilon)
	default:
		return "?"
	}
}

func transformNames(ops TransformOps) []string {
	names := make([]string, 0, len(ops))
	for k := range ops {
		names = append(names, k.Kind)
	}
	return names
}

func aggNames(ops AggOps) []string {
	names := make([]string, 0, len(ops))
	for k := range ops {
		names = append(names, k.How)
	}
	return names
}
