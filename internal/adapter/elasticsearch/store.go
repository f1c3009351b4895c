// Package elasticsearch is the document-search store. Each record shape has
// its own index; documents are indexed with the natural key as _id so a
// re-ingested row overwrites the previous version.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/couchcryptid/noaa-ingest/internal/domain"
	"github.com/couchcryptid/noaa-ingest/internal/sink"
	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// Name identifies the store in logs and metrics.
const Name = "elasticsearch"

var mappings = map[string]string{
	domain.IndexObservations: `{"mappings":{"properties":{
		"station_id":{"type":"keyword"},
		"source":{"type":"keyword"},
		"timestamp":{"type":"date"},
		"season":{"type":"keyword"},
		"temperature":{"type":"float"},
		"temperature_max":{"type":"float"},
		"temperature_min":{"type":"float"},
		"humidity":{"type":"float"},
		"pressure":{"type":"float"},
		"precipitation":{"type":"float"},
		"wind_speed":{"type":"float"},
		"wind_direction":{"type":"float"}}}}`,
	domain.IndexEvents: `{"mappings":{"properties":{
		"event_id":{"type":"keyword"},
		"event_type":{"type":"keyword"},
		"timestamp":{"type":"date"},
		"season":{"type":"keyword"},
		"location":{"type":"keyword"},
		"damage_estimate":{"type":"double"},
		"injuries":{"type":"integer"},
		"fatalities":{"type":"integer"},
		"description":{"type":"text"}}}}`,
	domain.IndexLiveReports: `{"mappings":{"properties":{
		"station_id":{"type":"keyword"},
		"captured_at":{"type":"date"},
		"raw_text":{"type":"text"}}}}`,
}

// Store writes documents to Elasticsearch.
type Store struct {
	client *es.Client
	logger *slog.Logger
}

// New creates a Store for the cluster at url. No request is made until
// Connect.
func New(url string, logger *slog.Logger) (*Store, error) {
	client, err := es.NewClient(es.Config{Addresses: []string{url}})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	return &Store{client: client, logger: logger.With("component", "elasticsearch")}, nil
}

func (s *Store) Name() string { return Name }

// Connect pings the cluster and creates any missing index with its mapping.
func (s *Store) Connect(ctx context.Context) error {
	res, err := s.client.Info(s.client.Info.WithContext(ctx))
	if err := check("info", res, err); err != nil {
		return err
	}
	for _, index := range []string{domain.IndexObservations, domain.IndexEvents, domain.IndexLiveReports} {
		if err := s.ensureIndex(ctx, index); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ensureIndex(ctx context.Context, index string) error {
	res, err := s.client.Indices.Exists([]string{index}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index %s: %w: %v", index, sink.ErrUnavailable, err)
	}
	code := res.StatusCode
	drain(res)
	switch {
	case code == http.StatusOK:
		return nil
	case code >= 500:
		return fmt.Errorf("check index %s: %w: status %d", index, sink.ErrUnavailable, code)
	case code != http.StatusNotFound:
		return fmt.Errorf("check index %s: status %d", index, code)
	}

	res, err = s.client.Indices.Create(index,
		s.client.Indices.Create.WithBody(strings.NewReader(mappings[index])),
		s.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create index %s: %w: %v", index, sink.ErrUnavailable, err)
	}
	defer drain(res)
	if res.StatusCode == http.StatusBadRequest {
		body, _ := io.ReadAll(res.Body)
		// A concurrent writer may have created it first.
		if bytes.Contains(body, []byte("resource_already_exists_exception")) {
			return nil
		}
		return fmt.Errorf("create index %s: %s: %s", index, res.Status(), bytes.TrimSpace(body))
	}
	if res.IsError() {
		return statusError("create index "+index, res)
	}
	s.logger.Info("index created", "index", index)
	return nil
}

// Write indexes doc under its natural key.
func (s *Store) Write(ctx context.Context, doc domain.Document) error {
	body, err := json.Marshal(doc.Fields)
	if err != nil {
		return fmt.Errorf("encode %s: %w", doc.ID, err)
	}
	res, err := s.client.Index(doc.Index, bytes.NewReader(body),
		s.client.Index.WithDocumentID(doc.ID),
		s.client.Index.WithContext(ctx),
	)
	return check("index "+doc.Index, res, err)
}

func check(op string, res *esapi.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w: %v", op, sink.ErrUnavailable, err)
	}
	defer drain(res)
	if res.IsError() {
		return statusError(op, res)
	}
	return nil
}

// statusError maps a failed response: server-side errors mean the cluster
// is unhealthy, anything else rejects this request only.
func statusError(op string, res *esapi.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
	if res.StatusCode >= 500 {
		return fmt.Errorf("%s: %w: %s", op, sink.ErrUnavailable, res.Status())
	}
	return fmt.Errorf("%s: %s: %s", op, res.Status(), bytes.TrimSpace(body))
}

func drain(res *esapi.Response) {
	if res != nil && res.Body != nil {
		_, _ = io.Copy(io.Discard, res.Body)
		res.Body.Close()
	}
}
