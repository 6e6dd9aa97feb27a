package policyio

import (
	"io"
	"os"
	"strconv"

	"github.com/parquet-go/parquet-go"

	"github.com/agentguard/policyguard/internal/dataframe"
	"github.com/agentguard/policyguard/internal/policy"
)

// RowGroupSize is the fixed row-group height every persisted policy table
// uses, matching the data side's own row-group size so a (rg_index,
// selection) pair loaded from the policy file lines up with the
// corresponding data row group.
const RowGroupSize = 2048

func columnName(idx int) string { return "col_" + strconv.Itoa(idx) }

func rowGroupSchema(width int) *parquet.Schema {
	group := make(parquet.Group, width)
	for j := 0; j < width; j++ {
		group[columnName(j)] = parquet.Optional(parquet.Leaf(parquet.ByteArrayType))
	}
	return parquet.NewSchema("policy_row_group", group)
}

// WriteParquet persists df as one Parquet file, split into fixed-size
// RowGroupSize row groups, one BinaryArray column per original column named
// col_<idx>, each cell the binary encoding of that row's chain.
func WriteParquet(path string, df *dataframe.DataFrame) error {
	f, err := os.Create(path)
	if err != nil {
		return policy.Wrap(policy.Io, err, "creating parquet file")
	}
	defer f.Close()
	return writeParquet(f, df)
}

func writeParquet(w io.Writer, df *dataframe.DataFrame) error {
	rows, cols := df.Shape()
	schema := rowGroupSchema(cols)
	writer := parquet.NewWriter(w, schema)
	for start := 0; start < rows || rows == 0; start += RowGroupSize {
		end := start + RowGroupSize
		if end > rows {
			end = rows
		}
		for i := start; i < end; i++ {
			row := make(map[string]any, cols)
			for j, c := range df.Columns {
				enc, err := EncodeChain(c.Policies[i])
				if err != nil {
					return err
				}
				row[columnName(j)] = enc
			}
			if _, err := writer.Write(row); err != nil {
				return policy.Wrap(policy.Io, err, "writing parquet row")
			}
		}
		if err := writer.Flush(); err != nil {
			return policy.Wrap(policy.Io, err, "flushing parquet row group")
		}
		if rows == 0 {
			break
		}
	}
	if err := writer.Close(); err != nil {
		return policy.Wrap(policy.Io, err, "closing parquet writer")
	}
	return nil
}

// FromParquetRowGroup loads row group rgIndex of the file at path, applying
// projection (column indices to keep, in order) and selection (a per-row
// keep mask whose length must equal the row group's own row count).
func FromParquetRowGroup(path string, schema *dataframe.Schema, projection []int, selection []bool, rgIndex int) (*dataframe.DataFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, policy.Wrap(policy.Io, err, "opening parquet file")
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, policy.Wrap(policy.Io, err, "statting parquet file")
	}
	return fromParquetRowGroup(f, info.Size(), schema, projection, selection, rgIndex)
}

// fromParquetRowGroup is the ReaderAt-based core FromParquetRowGroup and the
// Provider-backed loaders in storage.go both build on.
func fromParquetRowGroup(r io.ReaderAt, size int64, schema *dataframe.Schema, projection []int, selection []bool, rgIndex int) (*dataframe.DataFrame, error) {
	pf, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, policy.Wrap(policy.Io, err, "opening parquet footer")
	}
	groups := pf.RowGroups()
	if rgIndex < 0 || rgIndex >= len(groups) {
		return nil, policy.Newf(policy.OutOfBounds, "row group %d out of bounds (%d present)", rgIndex, len(groups))
	}
	rg := groups[rgIndex]
	rgRows := int(rg.NumRows())
	if len(selection) != rgRows {
		return nil, policy.Newf(policy.ShapeMismatch,
			"selection length %d does not match row group %d's row count %d", len(selection), rgIndex, rgRows)
	}

	cols := projection
	if cols == nil {
		cols = make([]int, schema.Len())
		for j := range cols {
			cols[j] = j
		}
	}
	fields := make([]dataframe.Field, len(cols))
	for k, j := range cols {
		if j < 0 || j >= schema.Len() {
			return nil, policy.Newf(policy.OutOfBounds, "projected column %d out of bounds", j)
		}
		fields[k] = schema.Fields[j]
	}

	raw := make([][][]byte, len(cols))
	for k, j := range cols {
		col, err := readByteArrayColumn(rg, columnName(j), rgRows)
		if err != nil {
			return nil, err
		}
		raw[k] = col
	}

	out := make([]dataframe.Column, len(cols))
	for k := range out {
		out[k].Policies = make([]*policy.Chain, 0, rgRows)
	}
	for i := 0; i < rgRows; i++ {
		if !selection[i] {
			continue
		}
		for k := range cols {
			chain, err := DecodeChain(raw[k][i])
			if err != nil {
				return nil, err
			}
			out[k].Policies = append(out[k].Policies, chain)
		}
	}
	return dataframe.New(dataframe.NewSchema(fields...), out), nil
}

// readByteArrayColumn reads every value (including nulls, encoded as the
// tagClean-only empty-chain bytes) of one leaf column out of a row group.
func readByteArrayColumn(rg parquet.RowGroup, name string, rowCount int) ([][]byte, error) {
	leaf, ok := rg.Schema().Lookup(name)
	if !ok {
		return nil, policy.Newf(policy.ColumnNotFound, "column %q not present in row group schema", name)
	}
	col := rg.ColumnChunks()[leaf.ColumnIndex]
	pages := col.Pages()
	defer pages.Close()

	out := make([][]byte, 0, rowCount)
	for {
		page, err := pages.ReadPage()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, policy.Wrap(policy.Io, err, "reading parquet page")
		}
		values := make([]parquet.Value, page.NumValues())
		reader := page.Values()
		n, err := reader.ReadValues(values)
		if err != nil && err != io.EOF {
			return nil, policy.Wrap(policy.Io, err, "reading parquet page values")
		}
		for _, v := range values[:n] {
			if v.IsNull() {
				out = append(out, mustEncode(nil))
				continue
			}
			out = append(out, append([]byte(nil), v.ByteArray()...))
		}
		parquet.Release(page)
	}
	if len(out) != rowCount {
		return nil, policy.Newf(policy.ShapeMismatch, "column %q has %d values, row group reports %d rows", name, len(out), rowCount)
	}
	return out, nil
}
