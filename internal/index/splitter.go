package index

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/cloudwego/eino-ext/components/document/transformer/splitter/recursive"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/aptify/knowledge-rag/internal/agent/model"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

var (
	chunkSeparators = []string{"\n\n", "\n", " "}
	chunkNamespace  = uuid.MustParse("6f1c2a4e-8d1b-4c55-9a7e-2f0c7b6f3d21")
)

// Splitter cuts documents into chunks of at most Size runes overlapping by
// Overlap runes, preferring paragraph, then line, then word boundaries.
type Splitter struct {
	Size    int
	Overlap int

	inner document.Transformer
}

func NewSplitter(ctx context.Context, size, overlap int) (*Splitter, error) {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = min(DefaultChunkOverlap, size/5)
	}
	inner, err := recursive.NewSplitter(ctx, &recursive.Config{
		ChunkSize:   size,
		OverlapSize: overlap,
		Separators:  chunkSeparators,
		LenFunc:     utf8.RuneCountInString,
	})
	if err != nil {
		return nil, fmt.Errorf("create recursive splitter: %w", err)
	}
	return &Splitter{Size: size, Overlap: overlap, inner: inner}, nil
}

// Transform implements document.Transformer. Chunk IDs are derived from the
// source and chunk position so re-indexing a file overwrites its chunks.
func (s *Splitter) Transform(ctx context.Context, src []*schema.Document, opts ...document.TransformerOption) ([]*schema.Document, error) {
	var out []*schema.Document
	for _, doc := range src {
		if doc == nil {
			continue
		}
		chunks, err := s.inner.Transform(ctx, []*schema.Document{doc}, opts...)
		if err != nil {
			return nil, fmt.Errorf("split %s: %w", sourceKey(doc), err)
		}
		key := sourceKey(doc)
		i := 0
		for _, c := range chunks {
			if c == nil || c.Content == "" {
				continue
			}
			md := make(map[string]any, len(doc.MetaData)+1)
			for k, v := range doc.MetaData {
				md[k] = v
			}
			md[model.MetaChunk] = i
			out = append(out, &schema.Document{
				ID:       uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%s#%d", key, i))).String(),
				Content:  c.Content,
				MetaData: md,
			})
			i++
		}
	}
	return out, nil
}

func sourceKey(doc *schema.Document) string {
	for _, k := range []string{model.MetaPath, model.MetaSource} {
		if v, ok := doc.MetaData[k].(string); ok && v != "" {
			return v
		}
	}
	return doc.ID
}

var _ document.Transformer = (*Splitter)(nil)
