package policyio

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/agentguard/policyguard/internal/dataframe"
	"github.com/agentguard/policyguard/internal/policy"
)

var (
	_ Provider = (*AzureBlobProvider)(nil)
	_ Provider = (*S3Provider)(nil)
	_ Provider = (*GCSProvider)(nil)
)

// memoryProvider is an in-memory Provider used only by this package's own
// tests; the three cloud providers are unexercisable without live
// credentials.
type memoryProvider struct {
	objects map[string][]byte
}

func newMemoryProvider() *memoryProvider { return &memoryProvider{objects: make(map[string][]byte)} }

func (m *memoryProvider) Upload(ctx context.Context, key string, content io.Reader, contentType string) error {
	b, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	m.objects[key] = b
	return nil
}

func (m *memoryProvider) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	b, ok := m.objects[key]
	if !ok {
		return nil, policy.New(policy.NoData, "no such object")
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memoryProvider) Delete(ctx context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func (m *memoryProvider) List(ctx context.Context, prefix string) ([]Artifact, error) { return nil, nil }

func (m *memoryProvider) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memoryProvider) Name() string { return "memory" }

func TestUploadDownloadParquetRoundTrips(t *testing.T) {
	df := dataframe.ExampleDF()
	p := newMemoryProvider()
	if err := UploadParquet(context.Background(), p, "tables/t.parquet", df); err != nil {
		t.Fatalf("upload: %v", err)
	}
	rows, _ := df.Shape()
	selection := make([]bool, rows)
	for i := range selection {
		selection[i] = true
	}
	got, err := DownloadParquetRowGroup(context.Background(), p, "tables/t.parquet", df.Schema, nil, selection, 0)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	for j, col := range got.Columns {
		for i, c := range col.Policies {
			if !policy.EqualChain(c, df.Columns[j].Policies[i]) {
				t.Fatalf("cell (%d,%d) mismatch: %v vs %v", i, j, c, df.Columns[j].Policies[i])
			}
		}
	}
}

func TestDownloadParquetMissingKeyFails(t *testing.T) {
	p := newMemoryProvider()
	if _, err := DownloadParquetRowGroup(context.Background(), p, "missing", dataframe.ExampleDF().Schema, nil, nil, 0); !policy.Is(err, policy.Io) {
		t.Fatalf("expected Io, got %v", err)
	}
}
