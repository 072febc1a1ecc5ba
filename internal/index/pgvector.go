package index

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/indexer"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	errx "github.com/aptify/knowledge-rag/internal/core/error"
)

// PGVectorStore keeps chunks in Postgres and ranks them with pgvector's
// cosine distance operator.
type PGVectorStore struct {
	pool       *pgxpool.Pool
	embedder   embedding.Embedder
	dimensions int
}

// NewPGVectorStore ensures the vector extension and chunk table exist.
func NewPGVectorStore(ctx context.Context, pool *pgxpool.Pool, embedder embedding.Embedder, dimensions int) (*PGVectorStore, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("index: embedding dimensions must be positive")
	}
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS rag_chunks (
			id         TEXT PRIMARY KEY,
			content    TEXT NOT NULL,
			metadata   JSONB NOT NULL DEFAULT '{}',
			embedding  vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, dimensions),
	}
	for _, s := range stmts {
		if _, err := pool.Exec(ctx, s); err != nil {
			return nil, errx.WrapPostgres(err)
		}
	}
	return &PGVectorStore{pool: pool, embedder: embedder, dimensions: dimensions}, nil
}

// Close is a no-op; the pool is owned by the caller.
func (s *PGVectorStore) Close() error { return nil }

// Store implements indexer.Indexer.
func (s *PGVectorStore) Store(ctx context.Context, docs []*schema.Document, _ ...indexer.Option) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	vecs, err := s.embedder.EmbedStrings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("index: embed: %w", err)
	}
	if len(vecs) != len(docs) {
		return nil, fmt.Errorf("index: embedder returned %d vectors for %d docs", len(vecs), len(docs))
	}

	batch := &pgx.Batch{}
	ids := make([]string, 0, len(docs))
	for i, d := range docs {
		md, err := json.Marshal(d.MetaData)
		if err != nil {
			return nil, fmt.Errorf("index: marshal metadata: %w", err)
		}
		batch.Queue(`
			INSERT INTO rag_chunks (id, content, metadata, embedding) VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, metadata = EXCLUDED.metadata, embedding = EXCLUDED.embedding`,
			d.ID, d.Content, md, pgvector.NewVector(toFloat32(vecs[i])))
		ids = append(ids, d.ID)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return nil, errx.WrapPostgres(err)
	}
	return ids, nil
}

// Retrieve implements retriever.Retriever.
func (s *PGVectorStore) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	q, err := embedOne(ctx, s.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("index: embed query: %w", err)
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, content, metadata, 1 - (embedding <=> $1) AS score
		   FROM rag_chunks ORDER BY embedding <=> $1 LIMIT $2`,
		pgvector.NewVector(q), topK(opts))
	if err != nil {
		return nil, errx.WrapPostgres(err)
	}
	defer rows.Close()

	var out []*schema.Document
	for rows.Next() {
		var (
			id, content string
			meta        []byte
			score       float64
		)
		if err := rows.Scan(&id, &content, &meta, &score); err != nil {
			return nil, errx.WrapPostgres(err)
		}
		md := map[string]any{}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &md); err != nil {
				return nil, fmt.Errorf("index: chunk %s metadata: %w", id, err)
			}
		}
		doc := &schema.Document{ID: id, Content: content, MetaData: md}
		out = append(out, doc.WithScore(score))
	}
	if err := rows.Err(); err != nil {
		return nil, errx.WrapPostgres(err)
	}
	return out, nil
}

var _ Store = (*PGVectorStore)(nil)
