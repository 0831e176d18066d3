package store

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/xhad/courseqa/internal/models"
	"github.com/xhad/courseqa/internal/types"
)

const pgvectorBackend = "pgvector"

type PgvectorConfig struct {
	ConnString string
	TableName  string
	VectorDim  int
}

// PgvectorStore keeps chunks in a Postgres table with a pgvector column.
// Scores are cosine similarities, 1 - cosine distance.
type PgvectorStore struct {
	config PgvectorConfig
	table  string
	pool   *pgxpool.Pool
}

var _ types.VectorStore = (*PgvectorStore)(nil)

func NewPgvectorStore(ctx context.Context, config PgvectorConfig) (*PgvectorStore, error) {
	if config.TableName == "" {
		config.TableName = "documents"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 1024
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &PgvectorStore{
		config: config,
		table:  pgx.Identifier{config.TableName}.Sanitize(),
		pool:   pool,
	}, nil
}

func (s *PgvectorStore) Init(ctx context.Context) error {
	const op = "init"
	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return opErr(pgvectorBackend, op, OperationErrorQueryFailed, "failed to create vector extension", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			text TEXT NOT NULL,
			source TEXT,
			embedding vector(%d),
			payload JSONB
		)`, s.table, s.config.VectorDim)
	if _, err := s.pool.Exec(ctx, createTable); err != nil {
		return opErr(pgvectorBackend, op, OperationErrorQueryFailed, "failed to create table", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		pgx.Identifier{s.config.TableName + "_embedding_idx"}.Sanitize(), s.table)
	if _, err := s.pool.Exec(ctx, createIndex); err != nil {
		return opErr(pgvectorBackend, op, OperationErrorQueryFailed, "failed to create index", err)
	}
	return nil
}

func (s *PgvectorStore) Upsert(ctx context.Context, points []types.Point) error {
	const op = "upsert"
	if len(points) == 0 {
		return nil
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, text, source, embedding, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			text = EXCLUDED.text,
			source = EXCLUDED.source,
			embedding = EXCLUDED.embedding,
			payload = EXCLUDED.payload`,
		s.table)

	batch := &pgx.Batch{}
	for _, p := range points {
		if len(p.Vector) != s.config.VectorDim {
			return opErr(pgvectorBackend, op, OperationErrorValidation,
				fmt.Sprintf("point %q dimension mismatch: expected=%d got=%d", p.ID, s.config.VectorDim, len(p.Vector)), nil)
		}
		payload := make(map[string]any, len(p.Payload))
		for k, v := range p.Payload {
			if str, ok := v.(string); ok {
				v = sanitizeUTF8(str)
			}
			payload[k] = v
		}
		text, _ := payload["text"].(string)
		source, _ := payload["source"].(string)
		batch.Queue(stmt, p.ID, text, source, pgvector.NewVector(p.Vector), payload)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return opErr(pgvectorBackend, op, OperationErrorTransportFailed, "failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return opErr(pgvectorBackend, op, OperationErrorQueryFailed, "failed to insert points", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return opErr(pgvectorBackend, op, OperationErrorQueryFailed, "failed to commit transaction", err)
	}
	return nil
}

// Search ranks rows by cosine similarity. With params.Exact the planner is
// kept off the ivfflat index so every row is compared.
func (s *PgvectorStore) Search(ctx context.Context, vector []float32, params types.SearchParams) ([]models.Chunk, error) {
	const op = "search"
	if len(vector) == 0 {
		return nil, opErr(pgvectorBackend, op, OperationErrorValidation, "query vector required", nil)
	}
	if params.Limit <= 0 {
		params.Limit = 3
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, classifyCallError(pgvectorBackend, op, "failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	if params.Exact {
		if _, err := tx.Exec(ctx, "SET LOCAL enable_indexscan = off"); err != nil {
			return nil, opErr(pgvectorBackend, op, OperationErrorQueryFailed, "failed to disable index scan", err)
		}
	}

	query := fmt.Sprintf(`
		SELECT id, text, source, payload, 1 - (embedding <=> $1) AS score
		FROM %s
		WHERE 1 - (embedding <=> $1) >= $2
		ORDER BY embedding <=> $1
		LIMIT $3`,
		s.table)

	rows, err := tx.Query(ctx, query, pgvector.NewVector(vector), params.ScoreThreshold, params.Limit)
	if err != nil {
		return nil, classifyCallError(pgvectorBackend, op, "failed to query chunks", err)
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var (
			id, text string
			source   *string
			payload  map[string]any
			score    float64
		)
		if err := rows.Scan(&id, &text, &source, &payload, &score); err != nil {
			return nil, opErr(pgvectorBackend, op, OperationErrorDecodeFailed, "failed to scan row", err)
		}
		if payload == nil {
			payload = map[string]any{}
		}
		if _, ok := payload["text"]; !ok {
			payload["text"] = text
		}
		if _, ok := payload["source"]; !ok && source != nil {
			payload["source"] = *source
		}
		chunks = append(chunks, chunkFromPayload(id, score, payload))
	}
	if err := rows.Err(); err != nil {
		return nil, opErr(pgvectorBackend, op, OperationErrorQueryFailed, "failed to read rows", err)
	}
	return chunks, nil
}

func (s *PgvectorStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s", s.table)).Scan(&n); err != nil {
		return 0, classifyCallError(pgvectorBackend, "count", "failed to count rows", err)
	}
	return n, nil
}

func (s *PgvectorStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// sanitizeUTF8 drops invalid bytes; Postgres rejects them in TEXT and JSONB.
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	v := make([]rune, 0, len(s))
	for i, r := range s {
		if r == utf8.RuneError {
			_, size := utf8.DecodeRuneInString(s[i:])
			if size == 1 {
				continue
			}
		}
		v = append(v, r)
	}
	return string(v)
}
