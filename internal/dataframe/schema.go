// Package dataframe implements the policy-guarded columnar container: a
// schema plus per-cell policy chains mirroring the shape of the (unmodeled)
// real data, ported from original_source's picachv-core/src/dataframe.rs.
package dataframe

// DataType is the handful of element types the monitor reasons about when
// reifying expression values (see the expr package's reification contract).
type DataType int

const (
	Int32 DataType = iota
	Int64
	Float64
	Utf8
	Date32
	TimestampNanos
	Boolean
)

func (d DataType) String() string {
	switch d {
	case Int32:
		return "Int32"
	case Int64:
		return "Int64"
	case Float64:
		return "Float64"
	case Utf8:
		return "Utf8"
	case Date32:
		return "Date32"
	case TimestampNanos:
		return "Timestamp(ns)"
	case Boolean:
		return "Boolean"
	default:
		return "Unknown"
	}
}

// Field is one (name, datatype) pair in a Schema.
type Field struct {
	Name string
	Type DataType
}

// Schema is the ordered list of fields shared by a policy dataframe.
type Schema struct {
	Fields []Field
}

func NewSchema(fields ...Field) *Schema {
	return &Schema{Fields: fields}
}

func (s *Schema) Len() int { return len(s.Fields) }

func (s *Schema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// IndexOf resolves a column name to its position, or -1 if absent.
func (s *Schema) IndexOf(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

func (s *Schema) Equal(o *Schema) bool {
	if len(s.Fields) != len(o.Fields) {
		return false
	}
	for i := range s.Fields {
		if s.Fields[i] != o.Fields[i] {
			return false
		}
	}
	return true
}
