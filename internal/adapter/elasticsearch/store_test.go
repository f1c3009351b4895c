package elasticsearch

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/couchcryptid/noaa-ingest/internal/domain"
	"github.com/couchcryptid/noaa-ingest/internal/sink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCluster answers the handful of endpoints the store uses.
type fakeCluster struct {
	mu        sync.Mutex
	indexes   map[string]string
	docs      map[string]map[string]any
	indexCode int
}

func newFakeCluster() *fakeCluster {
	return &fakeCluster{indexes: map[string]string{}, docs: map[string]map[string]any{}}
}

func (f *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	switch {
	case r.URL.Path == "/":
		_, _ = io.WriteString(w, `{"cluster_name":"test","version":{"number":"8.17.1"}}`)
	case len(parts) == 1 && r.Method == http.MethodHead:
		if _, ok := f.indexes[parts[0]]; !ok {
			w.WriteHeader(http.StatusNotFound)
		}
	case len(parts) == 1 && r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.indexes[parts[0]] = string(body)
		_, _ = io.WriteString(w, `{"acknowledged":true}`)
	case len(parts) == 3 && parts[1] == "_doc":
		if f.indexCode != 0 {
			w.WriteHeader(f.indexCode)
			_, _ = io.WriteString(w, `{"error":{"type":"mapper_parsing_exception"}}`)
			return
		}
		var fields map[string]any
		_ = json.NewDecoder(r.Body).Decode(&fields)
		f.docs[parts[0]+"/"+parts[2]] = fields
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"result":"created"}`)
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func newStore(t *testing.T, url string) *Store {
	t.Helper()
	s, err := New(url, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return s
}

func TestConnect_CreatesIndexesWithMappings(t *testing.T) {
	cluster := newFakeCluster()
	cluster.indexes[domain.IndexEvents] = "existing"
	srv := httptest.NewServer(cluster)
	defer srv.Close()

	require.NoError(t, newStore(t, srv.URL).Connect(context.Background()))

	assert.Contains(t, cluster.indexes[domain.IndexObservations], `"season":{"type":"keyword"}`)
	assert.Contains(t, cluster.indexes[domain.IndexLiveReports], `"raw_text":{"type":"text"}`)
	assert.Equal(t, "existing", cluster.indexes[domain.IndexEvents])
}

func TestWrite_UsesNaturalKeyAsID(t *testing.T) {
	cluster := newFakeCluster()
	srv := httptest.NewServer(cluster)
	defer srv.Close()
	s := newStore(t, srv.URL)

	doc := domain.Document{
		ID:     "10096222",
		Index:  domain.IndexEvents,
		Fields: map[string]any{"event_id": "10096222", "injuries": 2},
	}
	require.NoError(t, s.Write(context.Background(), doc))
	require.NoError(t, s.Write(context.Background(), doc))

	require.Len(t, cluster.docs, 1)
	stored := cluster.docs[domain.IndexEvents+"/10096222"]
	assert.Equal(t, "10096222", stored["event_id"])
	assert.InDelta(t, 2, stored["injuries"], 1e-9)
}

func TestWrite_RejectedDocumentIsNotUnavailable(t *testing.T) {
	cluster := newFakeCluster()
	cluster.indexCode = http.StatusBadRequest
	srv := httptest.NewServer(cluster)
	defer srv.Close()

	err := newStore(t, srv.URL).Write(context.Background(), domain.Document{ID: "x", Index: domain.IndexEvents})
	require.Error(t, err)
	assert.NotErrorIs(t, err, sink.ErrUnavailable)
	assert.Contains(t, err.Error(), "mapper_parsing_exception")
}

func TestWrite_ServerErrorIsUnavailable(t *testing.T) {
	cluster := newFakeCluster()
	cluster.indexCode = http.StatusInternalServerError
	srv := httptest.NewServer(cluster)
	defer srv.Close()

	err := newStore(t, srv.URL).Write(context.Background(), domain.Document{ID: "x", Index: domain.IndexEvents})
	require.ErrorIs(t, err, sink.ErrUnavailable)
}

func TestConnect_UnreachableClusterIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(newFakeCluster())
	url := srv.URL
	srv.Close()

	err := newStore(t, url).Connect(context.Background())
	require.ErrorIs(t, err, sink.ErrUnavailable)
}

func TestName(t *testing.T) {
	assert.Equal(t, "elasticsearch", newStore(t, "http://localhost:9200").Name())
}
