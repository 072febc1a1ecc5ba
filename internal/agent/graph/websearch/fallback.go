package websearch

import (
	"context"
	"strings"

	"github.com/aptify/knowledge-rag/internal/agent/model"
	errx "github.com/aptify/knowledge-rag/internal/core/error"
)

// SourceWebSearch labels evidence synthesized from web results.
const SourceWebSearch = "web_search"

// Fallback turns web search hits into a single Evidence item.
type Fallback struct {
	search model.WebSearch
}

func NewFallback(search model.WebSearch) *Fallback {
	return &Fallback{search: search}
}

// Search joins the content of every hit with a blank line. Zero hits give
// an Evidence with empty content. Provider errors are retrieval failures.
func (f *Fallback) Search(ctx context.Context, question string) (model.Evidence, error) {
	const op = "websearch.Search"
	results, err := f.search.Query(ctx, question)
	if err != nil {
		if ctx.Err() != nil {
			return model.Evidence{}, errx.Cancelled(op, ctx.Err())
		}
		return model.Evidence{}, errx.Retrieval(op, err)
	}
	contents := make([]string, 0, len(results))
	urls := make([]string, 0, len(results))
	for _, r := range results {
		if c := strings.TrimSpace(r.Content); c != "" {
			contents = append(contents, c)
		}
		if r.URL != "" {
			urls = append(urls, r.URL)
		}
	}
	md := map[string]string{model.MetaSource: SourceWebSearch}
	if len(urls) > 0 {
		md[model.MetaURLs] = strings.Join(urls, " ")
	}
	return model.NewEvidence(strings.Join(contents, "\n\n"), md), nil
}
