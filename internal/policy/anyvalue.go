package policy

import "time"

// AnyValue is a reified data value, used both as a Binary transform's
// argument and as the row-major value payload attached to an expression by
// Reify. The element datatypes listed in the expression IR's reification
// contract are representable: Int32, Int64, Float64, String and Duration
// (used for both Date32-as-days and Timestamp-as-nanoseconds), plus Bool and
// Null.
type AnyValue struct {
	Kind     string // "int32", "int64", "float64", "string", "duration", "bool", "null"
	Int32    int32
	Int64    int64
	Float64  float64
	String   string
	Duration time.Duration
	Bool     bool
}

func Int32Value(v int32) AnyValue    { return AnyValue{Kind: "int32", Int32: v} }
func Int64Value(v int64) AnyValue    { return AnyValue{Kind: "int64", Int64: v} }
func Float64Value(v float64) AnyValue { return AnyValue{Kind: "float64", Float64: v} }
func StringValue(v string) AnyValue  { return AnyValue{Kind: "string", String: v} }
func DurationValue(v time.Duration) AnyValue { return AnyValue{Kind: "duration", Duration: v} }
func BoolValue(v bool) AnyValue      { return AnyValue{Kind: "bool", Bool: v} }
func NullValue() AnyValue            { return AnyValue{Kind: "null"} }

// AsInt64 returns the value's int64 interpretation for the "+"-named binary
// UDF downgrade handler.
func (v AnyValue) AsInt64() (int64, bool) {
	switch v.Kind {
	case "int32":
		return int64(v.Int32), true
	case "int64":
		return v.Int64, true
	default:
		return 0, false
	}
}

// AsDuration returns the value's duration interpretation for the
// "dt.offset_by"-named binary UDF downgrade handler.
func (v AnyValue) AsDuration() (time.Duration, bool) {
	if v.Kind != "duration" {
		return 0, false
	}
	return v.Duration, true
}
