// Package objectstore is the columnar batch store: an S3-compatible bucket
// holding one JSON object per record under a Hive-style partition layout
// that external query engines can scan.
package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/couchcryptid/noaa-ingest/internal/domain"
	"github.com/couchcryptid/noaa-ingest/internal/sink"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Name identifies the store in logs and metrics.
const Name = "columnar"

// Config holds the connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

// Store writes documents as objects.
type Store struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// New creates a Store. No request is made until Connect.
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	client, err := minio.New(sanitizeEndpoint(cfg.Endpoint), &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseSSL,
		Region:       region,
		BucketLookup: minio.BucketLookupPath,
		// The outbox committer owns retries.
		MaxRetries: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("init object store client: %w", err)
	}
	return &Store{client: client, bucket: cfg.Bucket, logger: logger.With("component", "objectstore")}, nil
}

func (s *Store) Name() string { return Name }

// Connect makes sure the bucket exists.
func (s *Store) Connect(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return classify("check bucket "+s.bucket, err)
	}
	if exists {
		return nil
	}
	err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
	if err != nil && minio.ToErrorResponse(err).Code != "BucketAlreadyOwnedByYou" {
		return classify("create bucket "+s.bucket, err)
	}
	s.logger.Info("bucket created", "bucket", s.bucket)
	return nil
}

// Write puts doc at its partitioned key, replacing any previous version.
func (s *Store) Write(ctx context.Context, doc domain.Document) error {
	body, err := Encode(doc)
	if err != nil {
		return err
	}
	key := ObjectKey(doc)
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType:      "application/json",
		DisableMultipart: true,
	})
	if err != nil {
		return classify("put "+key, err)
	}
	return nil
}

// ObjectKey returns "<table>/year=YYYY[/month=MM]/<id>.json".
func ObjectKey(doc domain.Document) string {
	return path.Join(doc.Table, doc.Partition.Path(), safeName(doc.ID)+".json")
}

// Encode renders doc as one flat JSON row with the id and partition
// columns alongside the fields.
func Encode(doc domain.Document) ([]byte, error) {
	row := make(map[string]any, len(doc.Fields)+3)
	for k, v := range doc.Fields {
		row[k] = v
	}
	row["id"] = doc.ID
	row["year"] = doc.Partition.Year
	if doc.Partition.Month != 0 {
		row["month"] = doc.Partition.Month
	}
	b, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", doc.ID, err)
	}
	return b, nil
}

// classify marks transport failures and server errors as unavailability.
func classify(op string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode == 0 || resp.StatusCode >= 500 {
		return fmt.Errorf("%s: %w: %v", op, sink.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func safeName(id string) string {
	return strings.NewReplacer("/", "_", "\\", "_").Replace(id)
}

// sanitizeEndpoint strips a scheme and path; minio.New wants host[:port].
func sanitizeEndpoint(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
	host, _, _ := strings.Cut(raw, "/")
	return host
}
