package writers

import (
	"context"
	"strings"

	"github.com/aptify/knowledge-rag/internal/agent/graph/prompts"
	"github.com/aptify/knowledge-rag/internal/agent/model"
	errx "github.com/aptify/knowledge-rag/internal/core/error"
)

// Rewriter reformulates a question for better retrieval.
type Rewriter struct {
	llm model.TextGenerator
}

func NewRewriter(llm model.TextGenerator) *Rewriter {
	return &Rewriter{llm: llm}
}

var rewritePrefixes = []string{"improved question:", "rewritten question:", "question:"}

// Rewrite returns the reformulated question, or the input unchanged when
// the model produces nothing usable.
func (r *Rewriter) Rewrite(ctx context.Context, question string) (string, error) {
	const op = "writers.Rewrite"
	msgs, err := prompts.Render(ctx, prompts.Rewrite, map[string]string{"question": question})
	if err != nil {
		return "", errx.Fatal(op, err)
	}
	out, err := r.llm.Complete(ctx, msgs)
	if err != nil {
		if errx.KindOf(err) == errx.KindFatal {
			return "", errx.Generation(op, err)
		}
		return "", err
	}
	if q := cleanRewrite(out); q != "" {
		return q, nil
	}
	return question, nil
}

func cleanRewrite(s string) string {
	s = strings.TrimSpace(s)
	// first non-empty line only
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			s = line
			break
		}
	}
	lower := strings.ToLower(s)
	for _, p := range rewritePrefixes {
		if strings.HasPrefix(lower, p) {
			s = strings.TrimSpace(s[len(p):])
			break
		}
	}
	return strings.TrimSpace(strings.Trim(s, "\"'`*"))
}
