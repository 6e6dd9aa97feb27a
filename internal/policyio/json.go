package policyio

import (
	"encoding/json"
	"time"

	"github.com/agentguard/policyguard/internal/dataframe"
	"github.com/agentguard/policyguard/internal/policy"
)

// jsonChain mirrors the chain's two-constructor shape with serde-style
// internal tagging (a "tag" field names the constructor): "PolicyClean" has no payload, "PolicyDeclassify" carries
// {label, next}.
type jsonChain struct {
	Tag   string          `json:"tag"`
	Label *jsonLabel      `json:"label,omitempty"`
	Next  json.RawMessage `json:"next,omitempty"`
}

type jsonLabel struct {
	Level      string          `json:"level"`
	Transforms []jsonTransform `json:"transforms,omitempty"`
	Aggs       []jsonAgg       `json:"aggs,omitempty"`
	Noise      *jsonNoise      `json:"noise,omitempty"`
}

type jsonTransform struct {
	Kind       string        `json:"kind"`
	RangeStart int           `json:"range_start,omitempty"`
	RangeEnd   int           `json:"range_end,omitempty"`
	By         int64         `json:"by,omitempty"`
	Name       string        `json:"name,omitempty"`
	Arg        *jsonAnyValue `json:"arg,omitempty"`
}

type jsonAgg struct {
	How          string  `json:"how"`
	GroupSize    int     `json:"group_size"`
	IncludeNulls bool    `json:"include_nulls"`
	Quantile     float64 `json:"quantile,omitempty"`
	Interp       string  `json:"interp,omitempty"`
	Ddof         uint8   `json:"ddof,omitempty"`
}

type jsonNoise struct {
	Epsilon  float64 `json:"epsilon"`
	HasDelta bool    `json:"has_delta"`
	Delta    float64 `json:"delta,omitempty"`
}

type jsonAnyValue struct {
	Kind     string  `json:"kind"`
	Int32    int32   `json:"int32,omitempty"`
	Int64    int64   `json:"int64,omitempty"`
	Float64  float64 `json:"float64,omitempty"`
	String   string  `json:"string,omitempty"`
	Duration int64   `json:"duration_ns,omitempty"`
	Bool     bool    `json:"bool,omitempty"`
}

// MarshalChainJSON renders c in the PolicyClean/PolicyDeclassify mirror
// format, for the JSON serialization path spec §4.9 calls out for small/dev
// inputs.
func MarshalChainJSON(c *policy.Chain) ([]byte, error) {
	return json.Marshal(toJSONChain(c))
}

// UnmarshalChainJSON parses the mirror format back into a chain.
func UnmarshalChainJSON(b []byte) (*policy.Chain, error) {
	var jc jsonChain
	if err := json.Unmarshal(b, &jc); err != nil {
		return nil, policy.Wrap(policy.SerializeError, err, "parsing JSON policy chain")
	}
	return fromJSONChain(jc)
}

func toJSONChain(c *policy.Chain) jsonChain {
	if c == nil {
		return jsonChain{Tag: "PolicyClean"}
	}
	next, _ := json.Marshal(toJSONChain(c.Next))
	return jsonChain{Tag: "PolicyDeclassify", Label: toJSONLabel(c.Label), Next: next}
}

func fromJSONChain(jc jsonChain) (*policy.Chain, error) {
	switch jc.Tag {
	case "PolicyClean":
		return nil, nil
	case "PolicyDeclassify":
		if jc.Label == nil {
			return nil, policy.New(policy.SerializeError, "PolicyDeclassify is missing its label")
		}
		label, err := fromJSONLabel(*jc.Label)
		if err != nil {
			return nil, err
		}
		var nextJC jsonChain
		if len(jc.Next) > 0 {
			if err := json.Unmarshal(jc.Next, &nextJC); err != nil {
				return nil, policy.Wrap(policy.SerializeError, err, "parsing nested policy chain")
			}
		} else {
			nextJC = jsonChain{Tag: "PolicyClean"}
		}
		next, err := fromJSONChain(nextJC)
		if err != nil {
			return nil, err
		}
		return &policy.Chain{Label: label, Next: next}, nil
	default:
		return nil, policy.Newf(policy.SerializeError, "unknown chain tag %q", jc.Tag)
	}
}

func toJSONLabel(l policy.Label) *jsonLabel {
	switch l.Level {
	case policy.LevelTransform:
		out := make([]jsonTransform, 0, len(l.Transforms))
		for k := range l.Transforms {
			jt := jsonTransform{Kind: k.Kind, RangeStart: k.RangeStart, RangeEnd: k.RangeEnd, By: k.By, Name: k.Name}
			if k.Kind == "binary" {
				jt.Arg = toJSONValue(k.Arg)
			}
			out = append(out, jt)
		}
		return &jsonLabel{Level: "Transform", Transforms: out}
	case policy.LevelAgg:
		out := make([]jsonAgg, 0, len(l.Aggs))
		for k := range l.Aggs {
			out = append(out, jsonAgg{
				How: k.How, GroupSize: k.GroupSize, IncludeNulls: k.IncludeNulls,
				Quantile: k.Quantile, Interp: k.Interp, Ddof: k.Ddof,
			})
		}
		return &jsonLabel{Level: "Agg", Aggs: out}
	case policy.LevelNoise:
		return &jsonLabel{Level: "Noise", Noise: &jsonNoise{
			Epsilon: l.Noise.Epsilon, HasDelta: l.Noise.HasDelta, Delta: l.Noise.Delta,
		}}
	default:
		return &jsonLabel{Level: l.Level.String()}
	}
}

func fromJSONLabel(jl jsonLabel) (policy.Label, error) {
	switch jl.Level {
	case "Transform":
		kinds := make([]policy.TransformKind, 0, len(jl.Transforms))
		for _, jt := range jl.Transforms {
			k := policy.TransformKind{Kind: jt.Kind, RangeStart: jt.RangeStart, RangeEnd: jt.RangeEnd, By: jt.By, Name: jt.Name}
			if jt.Arg != nil {
				v, err := fromJSONValue(*jt.Arg)
				if err != nil {
					return policy.Label{}, err
				}
				k.Arg = v
			}
			kinds = append(kinds, k)
		}
		return policy.TransformLabel(policy.NewTransformOps(kinds...)), nil
	case "Agg":
		kinds := make([]policy.AggKind, 0, len(jl.Aggs))
		for _, ja := range jl.Aggs {
			kinds = append(kinds, policy.AggKind{
				How: ja.How, GroupSize: ja.GroupSize, IncludeNulls: ja.IncludeNulls,
				Quantile: ja.Quantile, Interp: ja.Interp, Ddof: ja.Ddof,
			})
		}
		return policy.AggLabel(policy.NewAggOps(kinds...)), nil
	case "Noise":
		if jl.Noise == nil {
			return policy.Label{}, policy.New(policy.SerializeError, "Noise label is missing its parameters")
		}
		return policy.NoiseLabel(policy.NoiseParam{
			Epsilon: jl.Noise.Epsilon, HasDelta: jl.Noise.HasDelta, Delta: jl.Noise.Delta,
		}), nil
	default:
		return policy.Label{}, policy.Newf(policy.SerializeError, "unknown label level %q", jl.Level)
	}
}

func toJSONValue(v policy.AnyValue) *jsonAnyValue {
	return &jsonAnyValue{
		Kind: v.Kind, Int32: v.Int32, Int64: v.Int64, Float64: v.Float64,
		String: v.String, Duration: int64(v.Duration), Bool: v.Bool,
	}
}

func fromJSONValue(jv jsonAnyValue) (policy.AnyValue, error) {
	switch jv.Kind {
	case "int32":
		return policy.Int32Value(jv.Int32), nil
	case "int64":
		return policy.Int64Value(jv.Int64), nil
	case "float64":
		return policy.Float64Value(jv.Float64), nil
	case "string":
		return policy.StringValue(jv.String), nil
	case "duration":
		return policy.DurationValue(time.Duration(jv.Duration)), nil
	case "bool":
		return policy.BoolValue(jv.Bool), nil
	case "null":
		return policy.NullValue(), nil
	default:
		return policy.AnyValue{}, policy.Newf(policy.SerializeError, "unknown value kind %q", jv.Kind)
	}
}

// jsonDataFrame is the dev-facing mirror of a whole table: schema plus one
// row-major array of cells, each cell a jsonChain.
type jsonDataFrame struct {
	Fields []jsonField `json:"fields"`
	Rows   [][]json.RawMessage `json:"rows"`
}

type jsonField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// MarshalDataFrameJSON renders df as the dev-facing JSON mirror format.
func MarshalDataFrameJSON(df *dataframe.DataFrame) ([]byte, error) {
	jdf := jsonDataFrame{Fields: make([]jsonField, df.Schema.Len())}
	for i, f := range df.Schema.Fields {
		jdf.Fields[i] = jsonField{Name: f.Name, Type: f.Type.String()}
	}
	for _, row := range df.IntoRows() {
		jsonRow := make([]json.RawMessage, len(row))
		for j, c := range row {
			enc, err := json.Marshal(toJSONChain(c))
			if err != nil {
				return nil, policy.Wrap(policy.SerializeError, err, "marshaling row cell")
			}
			jsonRow[j] = enc
		}
		jdf.Rows = append(jdf.Rows, jsonRow)
	}
	return json.MarshalIndent(jdf, "", "  ")
}

// UnmarshalDataFrameJSON parses the dev-facing JSON mirror format back into a
// DataFrame. Fields are typed back via dataTypeByName; an unrecognized type
// name fails with SerializeError.
func UnmarshalDataFrameJSON(b []byte) (*dataframe.DataFrame, error) {
	var jdf jsonDataFrame
	if err := json.Unmarshal(b, &jdf); err != nil {
		return nil, policy.Wrap(policy.SerializeError, err, "parsing JSON dataframe")
	}
	fields := make([]dataframe.Field, len(jdf.Fields))
	for i, jf := range jdf.Fields {
		dtype, err := dataTypeByName(jf.Type)
		if err != nil {
			return nil, err
		}
		fields[i] = dataframe.Field{Name: jf.Name, Type: dtype}
	}
	schema := dataframe.NewSchema(fields...)
	rows := make([][]*policy.Chain, len(jdf.Rows))
	for i, jsonRow := range jdf.Rows {
		row := make([]*policy.Chain, len(jsonRow))
		for j, raw := range jsonRow {
			var jc jsonChain
			if err := json.Unmarshal(raw, &jc); err != nil {
				return nil, policy.Wrap(policy.SerializeError, err, "parsing row cell")
			}
			c, err := fromJSONChain(jc)
			if err != nil {
				return nil, err
			}
			row[j] = c
		}
		rows[i] = row
	}
	return dataframe.FromRows(schema, rows), nil
}

func dataTypeByName(name string) (dataframe.DataType, error) {
	switch name {
	case "Int32":
		return dataframe.Int32, nil
	case "Int64":
		return dataframe.Int64, nil
	case "Float64":
		return dataframe.Float64, nil
	case "Utf8":
		return dataframe.Utf8, nil
	case "Date32":
		return dataframe.Date32, nil
	case "Timestamp(ns)":
		return dataframe.TimestampNanos, nil
	case "Boolean":
		return dataframe.Boolean, nil
	default:
		return 0, policy.Newf(policy.SerializeError, "unknown data type %q", name)
	}
}

