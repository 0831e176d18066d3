package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xhad/courseqa/internal/models"
	"github.com/xhad/courseqa/internal/types"
)

const (
	qdrantBackend     = "qdrant"
	maxErrorBodyBytes = 1024
	searchHNSWEf      = 128
)

type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	VectorDim  int
	Timeout    time.Duration
}

// QdrantStore talks to Qdrant over its REST API. Collections use cosine
// distance, so search scores are cosine similarities.
type QdrantStore struct {
	config  QdrantConfig
	baseURL string
	client  *http.Client
}

var _ types.VectorStore = (*QdrantStore)(nil)

type qdrantEnvelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
	Time   float64         `json:"time"`
}

type qdrantScoredPoint struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

func NewQdrantStore(config QdrantConfig) (*QdrantStore, error) {
	if strings.TrimSpace(config.URL) == "" {
		return nil, fmt.Errorf("qdrant url is required")
	}
	if strings.TrimSpace(config.Collection) == "" {
		return nil, fmt.Errorf("qdrant collection is required")
	}
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}
	return &QdrantStore{
		config:  config,
		baseURL: strings.TrimRight(config.URL, "/"),
		client:  &http.Client{Timeout: config.Timeout},
	}, nil
}

// Init creates the collection if it does not exist and checks the vector size
// of an existing one.
func (s *QdrantStore) Init(ctx context.Context) error {
	const op = "init"
	var info struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	err := s.doJSON(ctx, op, http.MethodGet, s.collectionPath(""), nil, &info)
	if err == nil {
		size := info.Config.Params.Vectors.Size
		if s.config.VectorDim > 0 && size != 0 && size != s.config.VectorDim {
			return opErr(qdrantBackend, op, OperationErrorValidation,
				fmt.Sprintf("collection %q vector size mismatch: expected=%d actual=%d", s.config.Collection, s.config.VectorDim, size), nil)
		}
		return nil
	}
	var opError *OperationError
	if !errors.As(err, &opError) || opError.StatusCode != http.StatusNotFound {
		return err
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     s.config.VectorDim,
			"distance": "Cosine",
		},
	}
	return s.doJSON(ctx, op, http.MethodPut, s.collectionPath(""), body, nil)
}

func (s *QdrantStore) Upsert(ctx context.Context, points []types.Point) error {
	const op = "upsert"
	if len(points) == 0 {
		return nil
	}
	out := make([]map[string]any, 0, len(points))
	for _, p := range points {
		if strings.TrimSpace(p.ID) == "" {
			return opErr(qdrantBackend, op, OperationErrorValidation, "point id is required", nil)
		}
		if s.config.VectorDim > 0 && len(p.Vector) != s.config.VectorDim {
			return opErr(qdrantBackend, op, OperationErrorValidation,
				fmt.Sprintf("point %q dimension mismatch: expected=%d got=%d", p.ID, s.config.VectorDim, len(p.Vector)), nil)
		}
		out = append(out, map[string]any{
			"id":      p.ID,
			"vector":  p.Vector,
			"payload": p.Payload,
		})
	}
	return s.doJSON(ctx, op, http.MethodPut, s.collectionPath("/points?wait=true"), map[string]any{"points": out}, nil)
}

// Search returns up to params.Limit points scoring at least params.ScoreThreshold,
// best first, each carrying its score.
func (s *QdrantStore) Search(ctx context.Context, vector []float32, params types.SearchParams) ([]models.Chunk, error) {
	const op = "search"
	if len(vector) == 0 {
		return nil, opErr(qdrantBackend, op, OperationErrorValidation, "query vector required", nil)
	}
	if params.Limit <= 0 {
		params.Limit = 3
	}
	req := map[string]any{
		"vector":          vector,
		"limit":           params.Limit,
		"with_payload":    true,
		"with_vector":     false,
		"score_threshold": params.ScoreThreshold,
		"params": map[string]any{
			"hnsw_ef": searchHNSWEf,
			"exact":   params.Exact,
		},
	}
	var hits []qdrantScoredPoint
	if err := s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/search"), req, &hits); err != nil {
		return nil, err
	}

	chunks := make([]models.Chunk, 0, len(hits))
	for _, h := range hits {
		chunks = append(chunks, chunkFromPayload(decodePointID(h.ID), h.Score, h.Payload))
	}
	return chunks, nil
}

func (s *QdrantStore) Count(ctx context.Context) (int64, error) {
	var out struct {
		Count int64 `json:"count"`
	}
	if err := s.doJSON(ctx, "count", http.MethodPost, s.collectionPath("/points/count"), map[string]any{"exact": true}, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (s *QdrantStore) Close() {
	s.client.CloseIdleConnections()
}

func (s *QdrantStore) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(qdrantBackend, op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return opErr(qdrantBackend, op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.config.APIKey != "" {
		req.Header.Set("api-key", s.config.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return classifyCallError(qdrantBackend, op, "qdrant request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return opErr(qdrantBackend, op, OperationErrorDecodeFailed, "read response failed", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Backend:    qdrantBackend,
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}

	var envelope qdrantEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return opErr(qdrantBackend, op, OperationErrorDecodeFailed, "decode envelope failed", err)
	}
	if msg := parseEnvelopeStatus(envelope.Status); msg != "" {
		return &OperationError{
			Backend:    qdrantBackend,
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    msg,
		}
	}

	if out == nil || len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return opErr(qdrantBackend, op, OperationErrorDecodeFailed, "decode result failed", err)
	}
	return nil
}

func (s *QdrantStore) collectionPath(suffix string) string {
	return "/collections/" + s.config.Collection + suffix
}

func parseEnvelopeStatus(raw json.RawMessage) string {
	status := strings.TrimSpace(string(raw))
	if status == "" || status == "null" {
		return ""
	}
	var statusString string
	if err := json.Unmarshal(raw, &statusString); err == nil {
		if strings.EqualFold(statusString, "ok") {
			return ""
		}
		return fmt.Sprintf("status=%q", statusString)
	}
	var statusObject struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &statusObject); err == nil && strings.TrimSpace(statusObject.Error) != "" {
		return strings.TrimSpace(statusObject.Error)
	}
	return "status=" + status
}

func decodePointID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var idString string
	if err := json.Unmarshal(raw, &idString); err == nil {
		return idString
	}
	var idNumber int64
	if err := json.Unmarshal(raw, &idNumber); err == nil {
		return fmt.Sprintf("%d", idNumber)
	}
	return string(raw)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}
