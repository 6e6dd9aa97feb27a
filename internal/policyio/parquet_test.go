package policyio

import (
	"path/filepath"
	"testing"

	"github.com/agentguard/policyguard/internal/dataframe"
	"github.com/agentguard/policyguard/internal/policy"
)

func TestWriteParquetThenFromParquetRowGroupRoundTrips(t *testing.T) {
	df := dataframe.ExampleDF()
	path := filepath.Join(t.TempDir(), "policy.parquet")
	if err := WriteParquet(path, df); err != nil {
		t.Fatalf("write: %v", err)
	}

	rows, _ := df.Shape()
	selection := make([]bool, rows)
	for i := range selection {
		selection[i] = true
	}
	got, err := FromParquetRowGroup(path, df.Schema, nil, selection, 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for j, col := range got.Columns {
		for i, c := range col.Policies {
			if !policy.EqualChain(c, df.Columns[j].Policies[i]) {
				t.Fatalf("cell (%d,%d) mismatch: %v vs %v", i, j, c, df.Columns[j].Policies[i])
			}
		}
	}
}

func TestFromParquetRowGroupRejectsWrongSelectionLength(t *testing.T) {
	df := dataframe.ExampleDF()
	path := filepath.Join(t.TempDir(), "policy.parquet")
	if err := WriteParquet(path, df); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := FromParquetRowGroup(path, df.Schema, nil, []bool{true}, 0)
	if !policy.Is(err, policy.ShapeMismatch) {
		t.Fatalf("expected ShapeMismatch, got %v", err)
	}
}

func TestFromParquetRowGroupAppliesProjection(t *testing.T) {
	df := dataframe.ExampleDF()
	path := filepath.Join(t.TempDir(), "policy.parquet")
	if err := WriteParquet(path, df); err != nil {
		t.Fatalf("write: %v", err)
	}
	rows, _ := df.Shape()
	selection := make([]bool, rows)
	for i := range selection {
		selection[i] = true
	}
	got, err := FromParquetRowGroup(path, df.Schema, []int{1}, selection, 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	_, cols := got.Shape()
	if cols != 1 {
		t.Fatalf("expected 1 projected column, got %d", cols)
	}
	if got.Schema.Fields[0].Name != "b" {
		t.Fatalf("expected projected column b, got %s", got.Schema.Fields[0].Name)
	}
}

func TestFromParquetRowGroupOutOfBoundsIndex(t *testing.T) {
	df := dataframe.ExampleDF()
	path := filepath.Join(t.TempDir(), "policy.parquet")
	if err := WriteParquet(path, df); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := FromParquetRowGroup(path, df.Schema, nil, nil, 5)
	if !policy.Is(err, policy.OutOfBounds) {
		t.Fatalf("expected OutOfBounds, got %v", err)
	}
}
