package dataframe

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/agentguard/policyguard/internal/policy"
)

// Column is one policy-guarded column: one chain per row.
type Column struct {
	Policies []*policy.Chain
}

// DataFrame is a policy-guarded dataframe: (schema, columns). Every column
// holds exactly as many policy chains as every other, and the schema names
// one field per column. A DataFrame never stores real data — it is a pure
// policy shadow of whatever columnar data the host engine is actually
// computing.
type DataFrame struct {
	Schema  *Schema
	Columns []Column
}

func New(schema *Schema, columns []Column) *DataFrame {
	return &DataFrame{Schema: schema, Columns: columns}
}

// Shape returns (rows, cols). An empty dataframe (no columns) has shape
// (0, 0), matching the original's handling of that edge case.
func (df *DataFrame) Shape() (int, int) {
	if len(df.Columns) == 0 {
		return 0, 0
	}
	return len(df.Columns[0].Policies), len(df.Columns)
}

// SanityCheck fails with InvalidOperation if the column count disagrees with
// the schema, and with ShapeMismatch if any two columns disagree on row count.
func (df *DataFrame) SanityCheck() error {
	if len(df.Columns) != df.Schema.Len() {
		return policy.New(policy.InvalidOperation, "the number of columns does not match the schema")
	}
	if len(df.Columns) == 0 {
		return nil
	}
	rows := len(df.Columns[0].Policies)
	for _, c := range df.Columns[1:] {
		if len(c.Policies) != rows {
			return policy.New(policy.ShapeMismatch, "columns disagree on row count")
		}
	}
	return nil
}

// GetColumnNames returns the schema's field names in column order.
func (df *DataFrame) GetColumnNames() []string {
	return df.Schema.Names()
}

// Row returns the per-column chain at row i.
func (df *DataFrame) Row(i int) ([]*policy.Chain, error) {
	rows, _ := df.Shape()
	if i < 0 || i >= rows {
		return nil, policy.Newf(policy.OutOfBounds, "row %d out of bounds (height %d)", i, rows)
	}
	out := make([]*policy.Chain, len(df.Columns))
	for j, c := range df.Columns {
		out[j] = c.Policies[i]
	}
	return out, nil
}

// IntoRows transposes column-major storage into row-major (one slice of
// per-column chains per row), as policyio's JSON mirror writer consumes it.
func (df *DataFrame) IntoRows() [][]*policy.Chain {
	rows, cols := df.Shape()
	out := make([][]*policy.Chain, rows)
	for i := 0; i < rows; i++ {
		row := make([]*policy.Chain, cols)
		for j := 0; j < cols; j++ {
			row[j] = df.Columns[j].Policies[i]
		}
		out[i] = row
	}
	return out
}

// FromRows transposes row-major residuals back into a column-major
// DataFrame against the given schema (one column per expression).
func FromRows(schema *Schema, rows [][]*policy.Chain) *DataFrame {
	if len(rows) == 0 {
		cols := make([]Column, schema.Len())
		return New(schema, cols)
	}
	cols := make([]Column, len(rows[0]))
	for j := range cols {
		cols[j].Policies = make([]*policy.Chain, len(rows))
	}
	for i, row := range rows {
		for j, c := range row {
			cols[j].Policies[i] = c
		}
	}
	return New(schema, cols)
}

// Filter retains row i iff pred[i] is true, mutating the dataframe in place.
// Fails with InvalidOperation if pred's length disagrees with the height.
func (df *DataFrame) Filter(pred []bool) error {
	rows, _ := df.Shape()
	if len(pred) != rows {
		return policy.New(policy.InvalidOperation, "the length of the predicate does not match the dataframe")
	}
	newCols := make([]Column, len(df.Columns))
	for j, c := range df.Columns {
		kept := make([]*policy.Chain, 0, len(c.Policies))
		for i, p := range c.Policies {
			if pred[i] {
				kept = append(kept, p)
			}
		}
		newCols[j] = Column{Policies: kept}
	}
	df.Columns = newCols
	return nil
}

// Groups materializes a virtual dataframe whose row g has, per column, the
// chain produced by repeatedly joining the per-row chains of every original
// row belonging to group g, per proxy's key->row-indices mapping. Group order
// follows proxy.Keys().
func (df *DataFrame) Groups(proxy *GroupByProxy) (*DataFrame, error) {
	newCols := make([]Column, len(df.Columns))
	for j := range df.Columns {
		newCols[j].Policies = make([]*policy.Chain, len(proxy.Keys))
	}
	for g, key := range proxy.Keys {
		rowIdxs := proxy.Groups[key]
		for j, c := range df.Columns {
			var folded *policy.Chain
			for _, i := range rowIdxs {
				if i < 0 || i >= len(c.Policies) {
					return nil, policy.Newf(policy.OutOfBounds, "group row index %d out of bounds", i)
				}
				folded = policy.JoinChain(folded, c.Policies[i])
			}
			newCols[j].Policies[g] = folded
		}
	}
	return New(df.Schema, newCols), nil
}

// Finalize succeeds iff every remaining cell chain is Clean; any surviving
// restriction is a privacy breach the query must not be allowed to complete.
func (df *DataFrame) Finalize() error {
	for _, c := range df.Columns {
		for _, p := range c.Policies {
			if !policy.IsClean(p) {
				return policy.Newf(policy.PrivacyError,
					"possible policy breach detected; abort early\n\nthe required policy is\n%s", df)
			}
		}
	}
	return nil
}

// String renders an index column plus one column per schema field, each cell
// the chain's arrow-separated rendering, matching original_source's tabled
// Display impl (ported onto text/tabwriter since the pack carries no table
// library).
func (df *DataFrame) String() string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 2, 2, ' ', 0)
	header := append([]string{"index"}, df.Schema.Names()...)
	fmt.Fprintln(w, strings.Join(header, "\t"))
	rows, _ := df.Shape()
	for i := 0; i < rows; i++ {
		cells := make([]string, 0, len(df.Columns)+1)
		cells = append(cells, fmt.Sprintf("%d", i))
		for _, c := range df.Columns {
			cells = append(cells, c.Policies[i].String())
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	w.Flush()
	return b.String()
}

// ExampleDF mirrors original_source's get_example_df(): a=[1..5] each with a
// Shift{by:i} ⇝ Bot chain, b clean. Used across this module's tests and the
// plan package's end-to-end scenarios.
func ExampleDF() *DataFrame {
	schema := NewSchema(Field{Name: "a", Type: Int64}, Field{Name: "b", Type: Int64})
	aPolicies := make([]*policy.Chain, 5)
	bPolicies := make([]*policy.Chain, 5)
	for i := 0; i < 5; i++ {
		label := policy.TransformLabel(policy.NewTransformOps(policy.Shift(int64(i))))
		chain, _ := policy.Cons(nil, label)
		aPolicies[i] = chain
		bPolicies[i] = nil
	}
	return New(schema, []Column{{Policies: aPolicies}, {Policies: bPolicies}})
}
