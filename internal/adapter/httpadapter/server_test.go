package httpadapter_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/couchcryptid/noaa-ingest/internal/adapter/httpadapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockStatus struct {
	st  httpadapter.Status
	err error
}

func (m *mockStatus) Status(_ context.Context) (httpadapter.Status, error) { return m.st, m.err }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestServer(readyErr error) *httpadapter.Server {
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, nil, discard())
}

func get(srv http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	rec := get(newTestServer(nil), "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := get(newTestServer(nil), "/readyz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := get(newTestServer(fmt.Errorf("not ready yet")), "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "not ready yet", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(newTestServer(nil), "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestStatusEndpoint(t *testing.T) {
	refreshed := time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)
	p := &mockStatus{st: httpadapter.Status{
		OutboxDepth: 12,
		Stores:      map[string]string{"elasticsearch": "available", "columnar": "unavailable"},
		LastRefresh: &refreshed,
	}}
	srv := httpadapter.NewServer(":0", &mockReadiness{}, p, discard())

	rec := get(srv, "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var got httpadapter.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 12, got.OutboxDepth)
	assert.Equal(t, "unavailable", got.Stores["columnar"])
	require.NotNil(t, got.LastRefresh)
	assert.True(t, refreshed.Equal(*got.LastRefresh))
	assert.Nil(t, got.LastDrain)

	p.err = errors.New("outbox closed")
	rec = get(srv, "/status")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "outbox closed")
}

func TestStatusNotServedWithoutProvider(t *testing.T) {
	rec := get(newTestServer(nil), "/status")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAllReady(t *testing.T) {
	ok := &mockReadiness{}
	down := &mockReadiness{err: errors.New("columnar unavailable")}
	cold := &mockReadiness{err: errors.New("committer has not completed a drain yet")}

	require.NoError(t, httpadapter.AllReady(ok, ok).CheckReadiness(context.Background()))

	err := httpadapter.AllReady(ok, down, cold).CheckReadiness(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "columnar unavailable")
	assert.Contains(t, err.Error(), "committer")
}
