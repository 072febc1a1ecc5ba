package writers

import (
	"context"
	"strings"

	"github.com/aptify/knowledge-rag/internal/agent/graph/prompts"
	"github.com/aptify/knowledge-rag/internal/agent/model"
	errx "github.com/aptify/knowledge-rag/internal/core/error"
)

// InsufficientInformation is returned when the model produces no text.
const InsufficientInformation = "I don't have enough information to answer that question."

// Generator drafts an answer from the question and its evidence.
type Generator struct {
	llm model.TextGenerator
}

func NewGenerator(llm model.TextGenerator) *Generator {
	return &Generator{llm: llm}
}

// Generate accepts an empty evidence set; the prompt then carries no context.
func (g *Generator) Generate(ctx context.Context, question string, evidence []model.Evidence) (string, error) {
	const op = "writers.Generate"
	msgs, err := prompts.Render(ctx, prompts.Generate, map[string]string{
		"question": question,
		"context":  formatContext(evidence),
	})
	if err != nil {
		return "", errx.Fatal(op, err)
	}
	out, err := g.llm.Complete(ctx, msgs)
	if err != nil {
		if errx.KindOf(err) == errx.KindFatal {
			return "", errx.Generation(op, err)
		}
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return InsufficientInformation, nil
	}
	return out, nil
}

func formatContext(evidence []model.Evidence) string {
	if len(evidence) == 0 {
		return "(no context available)"
	}
	var b strings.Builder
	for i, ev := range evidence {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if src := ev.Source(); src != "" {
			b.WriteString("[" + src + "]\n")
		}
		b.WriteString(ev.Content)
	}
	return b.String()
}
