package index

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/indexer"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	_ "modernc.org/sqlite"

	errx "github.com/aptify/knowledge-rag/internal/core/error"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// SQLiteStore keeps chunks and their embeddings in a local SQLite file and
// ranks them by cosine similarity in process.
type SQLiteStore struct {
	db       *sql.DB
	embedder embedding.Embedder
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string, embedder embedding.Embedder) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("index: create data dir: %w", err)
		}
	}
	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("index: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("index: pragma %q: %w", p, err)
		}
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS chunks (
			id         TEXT PRIMARY KEY,
			content    TEXT NOT NULL,
			metadata   TEXT NOT NULL DEFAULT '{}',
			embedding  BLOB NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("index: migration: %w", err)
	}
	return &SQLiteStore{db: db, embedder: embedder}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// Store implements indexer.Indexer.
func (s *SQLiteStore) Store(ctx context.Context, docs []*schema.Document, _ ...indexer.Option) ([]string, error) {
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errx.New(errx.KindUnavailable, "index.sqlite.Store", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, content, metadata, embedding) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET content = excluded.content, metadata = excluded.metadata, embedding = excluded.embedding`)
	if err != nil {
		return nil, errx.New(errx.KindUnavailable, "index.sqlite.Store", err)
	}
	defer stmt.Close()

	ids := make([]string, 0, len(docs))
	for i, d := range docs {
		md, err := json.Marshal(d.MetaData)
		if err != nil {
			return nil, fmt.Errorf("index: marshal metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, d.ID, d.Content, string(md), encodeVector(toFloat32(vecs[i]))); err != nil {
			return nil, errx.New(errx.KindUnavailable, "index.sqlite.Store", err)
		}
		ids = append(ids, d.ID)
	}
	if err := tx.Commit(); err != nil {
		return nil, errx.New(errx.KindUnavailable, "index.sqlite.Store", err)
	}
	return ids, nil
}

type scored struct {
	doc   *schema.Document
	score float64
}

// Retrieve implements retriever.Retriever.
func (s *SQLiteStore) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	k := topK(opts)
	q, err := embedOne(ctx, s.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("index: embed query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, content, metadata, embedding FROM chunks`)
	if err != nil {
		return nil, errx.New(errx.KindUnavailable, "index.sqlite.Retrieve", err)
	}
	defer rows.Close()

	var all []scored
	for rows.Next() {
		var (
			id, content, meta string
			blob              []byte
		)
		if err := rows.Scan(&id, &content, &meta, &blob); err != nil {
			return nil, errx.New(errx.KindUnavailable, "index.sqlite.Retrieve", err)
		}
		md := map[string]any{}
		if err := json.Unmarshal([]byte(meta), &md); err != nil {
			return nil, fmt.Errorf("index: chunk %s metadata: %w", id, err)
		}
		score := cosine(q, decodeVector(blob))
		all = append(all, scored{doc: &schema.Document{ID: id, Content: content, MetaData: md}, score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, errx.New(errx.KindUnavailable, "index.sqlite.Retrieve", err)
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].score > all[j].score })
	if len(all) > k {
		all = all[:k]
	}
	out := make([]*schema.Document, len(all))
	for i, sc := range all {
		sc.doc.WithScore(sc.score)
		out[i] = sc.doc
	}
	return out, nil
}

// Count returns the number of stored chunks.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, errx.New(errx.KindUnavailable, "index.sqlite.Count", err)
	}
	return n, nil
}

func encodeVector(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(x))
	}
	return b
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}

// cosine returns 0 for mismatched or zero vectors.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

var _ Store = (*SQLiteStore)(nil)
