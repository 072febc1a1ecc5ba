package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/aptify/knowledge-rag/internal/agent/graph/parsers"
	"github.com/aptify/knowledge-rag/internal/agent/graph/prompts"
	"github.com/aptify/knowledge-rag/internal/agent/model"
	errx "github.com/aptify/knowledge-rag/internal/core/error"
)

// ChatGenerator adapts a chat model to model.TextGenerator.
type ChatGenerator struct {
	chat      einomodel.BaseChatModel
	modelName string
}

func NewChatGenerator(chat einomodel.BaseChatModel, modelName string) *ChatGenerator {
	return &ChatGenerator{chat: chat, modelName: modelName}
}

// Complete returns the assistant text. Failures are KindGeneration, or
// KindCancelled when ctx is done.
func (g *ChatGenerator) Complete(ctx context.Context, messages []*schema.Message) (string, error) {
	return complete(ctx, "llm.Complete", g.chat, g.modelName, messages)
}

// ChatClassifier adapts a chat model to model.Classifier: it renders the
// criterion's prompt and parses the structured decision out of the reply.
type ChatClassifier struct {
	chat      einomodel.BaseChatModel
	modelName string
}

func NewChatClassifier(chat einomodel.BaseChatModel, modelName string) *ChatClassifier {
	return &ChatClassifier{chat: chat, modelName: modelName}
}

func (c *ChatClassifier) Classify(ctx context.Context, in model.ClassifyInput) (model.Decision, error) {
	op := "llm.Classify." + in.Criterion
	if !prompts.Has(in.Criterion) {
		return model.Decision{}, errx.Fatal(op, fmt.Errorf("unknown criterion %q", in.Criterion))
	}
	msgs, err := prompts.Render(ctx, in.Criterion, in.Vars)
	if err != nil {
		return model.Decision{}, errx.Fatal(op, err)
	}
	out, err := complete(ctx, op, c.chat, c.modelName, msgs)
	if err != nil {
		return model.Decision{}, err
	}
	return parsers.ParseDecision(out)
}

func complete(ctx context.Context, op string, chat einomodel.BaseChatModel, modelName string, msgs []*schema.Message) (string, error) {
	ctx = callbacks.ReuseHandlers(ctx, &callbacks.RunInfo{
		Name:      modelName,
		Type:      "ChatModel",
		Component: components.ComponentOfChatModel,
	})
	resp, err := chat.Generate(ctx, msgs)
	if err != nil {
		if ctx.Err() != nil {
			return "", errx.Cancelled(op, ctx.Err())
		}
		return "", errx.Generation(op, err)
	}
	if resp == nil {
		return "", nil
	}
	return strings.TrimSpace(resp.Content), nil
}

var (
	_ model.TextGenerator = (*ChatGenerator)(nil)
	_ model.Classifier    = (*ChatClassifier)(nil)
)
