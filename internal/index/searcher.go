package index

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/indexer"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"

	"github.com/aptify/knowledge-rag/internal/agent/model"
)

const defaultTopK = 4

// Store is a vector store usable both for ingestion and retrieval.
type Store interface {
	indexer.Indexer
	retriever.Retriever
	Close() error
}

// Searcher adapts an eino retriever to model.Index.
type Searcher struct {
	retriever retriever.Retriever
}

func NewSearcher(r retriever.Retriever) *Searcher {
	return &Searcher{retriever: r}
}

// Search returns at most k passages as Evidence.
func (s *Searcher) Search(ctx context.Context, query string, k int) ([]model.Evidence, error) {
	docs, err := s.retriever.Retrieve(ctx, query, retriever.WithTopK(k))
	if err != nil {
		return nil, err
	}
	out := make([]model.Evidence, 0, len(docs))
	for _, d := range docs {
		if d == nil {
			continue
		}
		out = append(out, toEvidence(d))
	}
	return out, nil
}

func toEvidence(d *schema.Document) model.Evidence {
	md := make(map[string]string, len(d.MetaData))
	for k, v := range d.MetaData {
		if s, ok := v.(string); ok {
			md[k] = s
			continue
		}
		md[k] = fmt.Sprint(v)
	}
	return model.NewEvidence(d.Content, md)
}

func topK(opts []retriever.Option) int {
	def := defaultTopK
	o := retriever.GetCommonOptions(&retriever.Options{TopK: &def}, opts...)
	if o.TopK == nil || *o.TopK <= 0 {
		return defaultTopK
	}
	return *o.TopK
}

var _ model.Index = (*Searcher)(nil)
