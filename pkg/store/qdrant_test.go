package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/courseqa/internal/models"
	"github.com/xhad/courseqa/internal/types"
	"github.com/xhad/courseqa/pkg/store"
)

type recordedRequest struct {
	Method string
	Path   string
	APIKey string
	Body   map[string]any
}

type fakeQdrant struct {
	mu       sync.Mutex
	requests []recordedRequest
	handler  func(w http.ResponseWriter, r recordedRequest)
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := recordedRequest{Method: r.Method, Path: r.URL.RequestURI(), APIKey: r.Header.Get("api-key")}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&rec.Body)
	}
	f.mu.Lock()
	f.requests = append(f.requests, rec)
	f.mu.Unlock()
	f.handler(w, rec)
}

func writeResult(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"result": result, "status": "ok", "time": 0.001})
}

func newQdrant(t *testing.T, handler func(w http.ResponseWriter, r recordedRequest)) (*store.QdrantStore, *fakeQdrant) {
	t.Helper()
	fake := &fakeQdrant{handler: handler}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	s, err := store.NewQdrantStore(store.QdrantConfig{
		URL:        srv.URL + "/",
		APIKey:     "secret",
		Collection: "tds-embeddings",
		VectorDim:  3,
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, fake
}

func TestNewQdrantStoreValidation(t *testing.T) {
	_, err := store.NewQdrantStore(store.QdrantConfig{Collection: "c"})
	assert.Error(t, err)
	_, err = store.NewQdrantStore(store.QdrantConfig{URL: "http://localhost:6333"})
	assert.Error(t, err)
}

func TestQdrantSearch(t *testing.T) {
	s, fake := newQdrant(t, func(w http.ResponseWriter, r recordedRequest) {
		writeResult(w, []map[string]any{
			{
				"id":    "8d7b2c4e-0000-5000-8000-000000000001",
				"score": 0.91,
				"payload": map[string]any{
					"text":    "Docker is fine for the project.",
					"source":  "discourse",
					"post_id": 42,
					"url":     "https://discourse.example.com/t/docker/42",
				},
			},
			{
				"id":    12,
				"score": 0.75,
				"payload": map[string]any{
					"content":      "Week 3 covers embeddings.",
					"source":       "course_material",
					"filename":     "week3.md",
					"original_url": "https://course.example.com/week3",
				},
			},
		})
	})

	chunks, err := s.Search(context.Background(), []float32{0.1, 0.2, 0.3}, types.SearchParams{Limit: 3, ScoreThreshold: 0.7, Exact: true})
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, models.SourceDiscourse, chunks[0].Source)
	assert.Equal(t, 0.91, chunks[0].Score)
	assert.Equal(t, 0.91, chunks[0].Metadata["score"])
	assert.Equal(t, "42", chunks[0].Field("post_id"))
	assert.Equal(t, "Docker is fine for the project.", chunks[0].Text)

	assert.Equal(t, "12", chunks[1].ID)
	assert.Equal(t, models.SourceCourseMaterial, chunks[1].Source)
	assert.Equal(t, "Week 3 covers embeddings.", chunks[1].Text)
	assert.Equal(t, "https://course.example.com/week3", chunks[1].URL())

	require.Len(t, fake.requests, 1)
	req := fake.requests[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/collections/tds-embeddings/points/search", req.Path)
	assert.Equal(t, "secret", req.APIKey)
	assert.Equal(t, float64(3), req.Body["limit"])
	assert.Equal(t, 0.7, req.Body["score_threshold"])
	assert.Equal(t, true, req.Body["with_payload"])
	params := req.Body["params"].(map[string]any)
	assert.Equal(t, true, params["exact"])
	assert.Equal(t, float64(128), params["hnsw_ef"])
}

func TestQdrantSearchEmptyVector(t *testing.T) {
	s, fake := newQdrant(t, func(w http.ResponseWriter, r recordedRequest) { writeResult(w, nil) })
	_, err := s.Search(context.Background(), nil, types.SearchParams{})
	require.Error(t, err)
	assert.Empty(t, fake.requests)
}

func TestQdrantErrorStatus(t *testing.T) {
	s, _ := newQdrant(t, func(w http.ResponseWriter, r recordedRequest) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"status":{"error":"boom"}}`))
	})
	_, err := s.Search(context.Background(), []float32{1, 0, 0}, types.SearchParams{Limit: 3})
	require.Error(t, err)

	var opErr *store.OperationError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, http.StatusInternalServerError, opErr.StatusCode)
	assert.Equal(t, store.OperationErrorQueryFailed, opErr.Code)
	assert.Equal(t, "search", opErr.Operation)
}

func TestQdrantEnvelopeError(t *testing.T) {
	s, _ := newQdrant(t, func(w http.ResponseWriter, r recordedRequest) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": map[string]any{"error": "wrong input"}})
	})
	_, err := s.Count(context.Background())
	assert.ErrorContains(t, err, "wrong input")
}

func TestQdrantCount(t *testing.T) {
	s, fake := newQdrant(t, func(w http.ResponseWriter, r recordedRequest) {
		writeResult(w, map[string]any{"count": 1234})
	})
	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1234), n)
	assert.Equal(t, "/collections/tds-embeddings/points/count", fake.requests[0].Path)
	assert.Equal(t, true, fake.requests[0].Body["exact"])
}

func TestQdrantInitCreatesMissingCollection(t *testing.T) {
	s, fake := newQdrant(t, func(w http.ResponseWriter, r recordedRequest) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":{"error":"Not found"}}`))
			return
		}
		writeResult(w, true)
	})
	require.NoError(t, s.Init(context.Background()))

	require.Len(t, fake.requests, 2)
	create := fake.requests[1]
	assert.Equal(t, http.MethodPut, create.Method)
	vectors := create.Body["vectors"].(map[string]any)
	assert.Equal(t, float64(3), vectors["size"])
	assert.Equal(t, "Cosine", vectors["distance"])
}

func TestQdrantInitSizeMismatch(t *testing.T) {
	s, _ := newQdrant(t, func(w http.ResponseWriter, r recordedRequest) {
		writeResult(w, map[string]any{
			"config": map[string]any{"params": map[string]any{"vectors": map[string]any{"size": 1536, "distance": "Cosine"}}},
		})
	})
	assert.ErrorContains(t, s.Init(context.Background()), "vector size mismatch")
}

func TestQdrantUpsert(t *testing.T) {
	s, fake := newQdrant(t, func(w http.ResponseWriter, r recordedRequest) {
		writeResult(w, map[string]any{"operation_id": 1, "status": "completed"})
	})

	id := store.PointID("discourse_42_0")
	err := s.Upsert(context.Background(), []types.Point{
		{ID: id, Vector: []float32{1, 0, 0}, Payload: map[string]any{"text": "hello", "source": "discourse"}},
	})
	require.NoError(t, err)
	require.Len(t, fake.requests, 1)
	assert.Equal(t, "/collections/tds-embeddings/points?wait=true", fake.requests[0].Path)
	points := fake.requests[0].Body["points"].([]any)
	require.Len(t, points, 1)
	assert.Equal(t, id, points[0].(map[string]any)["id"])

	err = s.Upsert(context.Background(), []types.Point{{ID: id, Vector: []float32{1}}})
	assert.Error(t, err)
	assert.NoError(t, s.Upsert(context.Background(), nil))
}
