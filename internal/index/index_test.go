package index

import (
	"context"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"

	"github.com/aptify/knowledge-rag/internal/agent/model"
)

const testDims = 64

// wordEmbedder hashes lowercase words into a fixed number of buckets.
type wordEmbedder struct{}

func (wordEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v := make([]float64, testDims)
		for _, w := range strings.Fields(strings.ToLower(t)) {
			w = strings.Trim(w, ".,?!:;")
			if w == "" {
				continue
			}
			h := fnv.New32a()
			h.Write([]byte(w))
			v[h.Sum32()%testDims]++
		}
		out[i] = v
	}
	return out, nil
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "data", "index.db"), wordEmbedder{})
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func documentSource(path string) document.Source { return document.Source{URI: path} }

func newTestSplitter(t *testing.T, size, overlap int) *Splitter {
	t.Helper()
	s, err := NewSplitter(context.Background(), size, overlap)
	if err != nil {
		t.Fatalf("NewSplitter: %v", err)
	}
	return s
}

func TestSplitterDefaults(t *testing.T) {
	s := newTestSplitter(t, 0, -1)
	if s.Size != DefaultChunkSize || s.Overlap != DefaultChunkOverlap {
		t.Fatalf("NewSplitter(0,-1) = %+v", s)
	}
	if s := newTestSplitter(t, 100, 100); s.Overlap >= s.Size {
		t.Fatalf("overlap %d not below size %d", s.Overlap, s.Size)
	}
}

func TestSplitterKeepsShortDocumentWhole(t *testing.T) {
	s := newTestSplitter(t, 500, 50)
	doc := &schema.Document{ID: "x", Content: "Refunds are issued within thirty days.", MetaData: map[string]any{model.MetaPath: "/a.md"}}
	got, err := s.Transform(context.Background(), []*schema.Document{doc})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if len(got) != 1 || strings.TrimSpace(got[0].Content) != doc.Content {
		t.Fatalf("chunks = %+v", got)
	}
	if got[0].MetaData[model.MetaChunk] != 0 || got[0].MetaData[model.MetaPath] != "/a.md" {
		t.Fatalf("metadata = %v", got[0].MetaData)
	}
}

func TestTransformSplitsLongTextWithStableIDs(t *testing.T) {
	s := newTestSplitter(t, 60, 10)
	var paras []string
	for i := 0; i < 6; i++ {
		paras = append(paras, "tenants must give notice thirty days before leaving")
	}
	doc := &schema.Document{ID: "x", Content: strings.Join(paras, "\n\n"), MetaData: map[string]any{model.MetaPath: "/lease.md"}}

	a, err := s.Transform(context.Background(), []*schema.Document{doc})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	b, _ := s.Transform(context.Background(), []*schema.Document{doc})
	if len(a) < 2 || len(a) != len(b) {
		t.Fatalf("chunks = %d/%d, want the same count above 1", len(a), len(b))
	}
	seen := map[string]bool{}
	for i := range a {
		if a[i].ID != b[i].ID {
			t.Fatalf("chunk %d id not stable: %s vs %s", i, a[i].ID, b[i].ID)
		}
		if seen[a[i].ID] {
			t.Fatalf("duplicate chunk id %s", a[i].ID)
		}
		seen[a[i].ID] = true
		if a[i].MetaData[model.MetaChunk] != i || a[i].MetaData[model.MetaPath] != "/lease.md" {
			t.Fatalf("chunk %d metadata = %v", i, a[i].MetaData)
		}
	}
	if _, ok := doc.MetaData[model.MetaChunk]; ok {
		t.Fatal("source document metadata was modified")
	}
}

func TestFileLoaderReadsTextAndMarkdown(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "guide.md", "# Returns Guide\n\nItems can be returned.")
	writeFile(t, dir, "notes.txt", "plain notes")
	writeFile(t, dir, "empty.txt", "   ")
	writeFile(t, dir, "image.png", "not text")

	docs, err := NewFileLoader().Load(context.Background(), documentSource(dir))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("docs = %d, want 2", len(docs))
	}
	byName := map[string]*schema.Document{}
	for _, d := range docs {
		byName[d.MetaData[model.MetaSource].(string)] = d
	}
	if byName["guide.md"].MetaData[model.MetaTitle] != "Returns Guide" {
		t.Fatalf("title = %v", byName["guide.md"].MetaData[model.MetaTitle])
	}
	if byName["notes.txt"].Content != "plain notes" {
		t.Fatalf("content = %q", byName["notes.txt"].Content)
	}
}

func TestFileLoaderRejectsUnsupportedFile(t *testing.T) {
	p := writeFile(t, t.TempDir(), "image.png", "x")
	if _, err := NewFileLoader().Load(context.Background(), documentSource(p)); err == nil {
		t.Fatal("expected error for unsupported file")
	}
}

func TestSQLiteStoreRanksByCosine(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	docs := []*schema.Document{
		{ID: "1", Content: "refund policy allows returns within thirty days", MetaData: map[string]any{model.MetaSource: "refunds.md"}},
		{ID: "2", Content: "shipping takes five business days", MetaData: map[string]any{model.MetaSource: "shipping.md"}},
		{ID: "3", Content: "office opening hours", MetaData: map[string]any{model.MetaSource: "hours.md"}},
	}
	ids, err := s.Store(ctx, docs)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("ids = %v", ids)
	}

	got, err := s.Retrieve(ctx, "refund policy returns", retriever.WithTopK(2))
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Retrieve returned %d docs, want 2", len(got))
	}
	if got[0].ID != "1" || got[0].MetaData[model.MetaSource] != "refunds.md" {
		t.Fatalf("top doc = %+v", got[0])
	}
	if got[0].Score() < got[1].Score() {
		t.Fatalf("scores not descending: %v %v", got[0].Score(), got[1].Score())
	}
}

func TestSQLiteStoreUpserts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	doc := &schema.Document{ID: "same", Content: "old", MetaData: map[string]any{}}
	if _, err := s.Store(ctx, []*schema.Document{doc}); err != nil {
		t.Fatal(err)
	}
	doc.Content = "new"
	if _, err := s.Store(ctx, []*schema.Document{doc}); err != nil {
		t.Fatal(err)
	}
	n, err := s.Count(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Count = %d, %v; want 1", n, err)
	}
	got, _ := s.Retrieve(ctx, "new")
	if len(got) != 1 || got[0].Content != "new" {
		t.Fatalf("Retrieve = %+v", got)
	}
}

func TestSearcherConvertsToEvidence(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.Store(ctx, []*schema.Document{
		{ID: "a", Content: "alpha beta", MetaData: map[string]any{model.MetaSource: "a.md", model.MetaChunk: 3}},
	})
	if err != nil {
		t.Fatal(err)
	}
	ev, err := NewSearcher(s).Search(ctx, "alpha", 4)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(ev) != 1 || ev[0].Content != "alpha beta" {
		t.Fatalf("Search = %+v", ev)
	}
	if ev[0].Meta(model.MetaSource) != "a.md" || ev[0].Meta(model.MetaChunk) != "3" {
		t.Fatalf("meta = %v", ev[0].Metadata)
	}
}

func TestIngestorIndexesDirectory(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "refunds.md", "# Refunds\n\nRefunds are issued within thirty days.")
	writeFile(t, dir, "hours.txt", "The office opens at nine.")

	s := newTestStore(t)
	ing, err := NewIngestor(ctx, NewFileLoader(), newTestSplitter(t, 500, 50), s)
	if err != nil {
		t.Fatalf("NewIngestor: %v", err)
	}
	ids, err := ing.Ingest(ctx, dir)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("ids = %d, want 2", len(ids))
	}
	if _, err := ing.Ingest(ctx, dir); err != nil {
		t.Fatalf("re-ingest: %v", err)
	}
	if n, _ := s.Count(ctx); n != 2 {
		t.Fatalf("Count after re-ingest = %d, want 2", n)
	}

	ev, err := NewSearcher(s).Search(ctx, "when are refunds issued", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(ev) != 1 || ev[0].Source() != "refunds.md" {
		t.Fatalf("Search = %+v", ev)
	}
}
