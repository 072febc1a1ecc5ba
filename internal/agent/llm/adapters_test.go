package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/aptify/knowledge-rag/internal/agent/model"
	errx "github.com/aptify/knowledge-rag/internal/core/error"
)

// fakeChatModel replies with a fixed message and records the prompt.
type fakeChatModel struct {
	reply string
	err   error
	seen  []*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, in []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	f.seen = in
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func TestClassifierParsesDecision(t *testing.T) {
	chat := &fakeChatModel{reply: "```json\n{\"score\": \"yes\"}\n```"}
	d, err := NewChatClassifier(chat, "test").Classify(context.Background(), model.ClassifyInput{
		Criterion: "relevance",
		Vars:      map[string]string{"question": "late fee?", "document": "Late fees are $50."},
	})
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := d.Get("score"); v != "yes" {
		t.Fatalf("score = %q", v)
	}
	if !strings.Contains(chat.seen[len(chat.seen)-1].Content, "Late fees are $50.") {
		t.Fatal("document missing from prompt")
	}
}

func TestClassifierErrors(t *testing.T) {
	ctx := context.Background()
	in := model.ClassifyInput{Criterion: "answer", Vars: map[string]string{"question": "q", "generation": "a"}}

	if _, err := NewChatClassifier(&fakeChatModel{reply: "definitely"}, "m").Classify(ctx, in); !errx.IsKind(err, errx.KindClassification) {
		t.Fatalf("unparsable reply: err = %v", err)
	}
	if _, err := NewChatClassifier(&fakeChatModel{err: errors.New("503")}, "m").Classify(ctx, in); !errx.IsKind(err, errx.KindGeneration) {
		t.Fatalf("transport: err = %v", err)
	}
	if _, err := NewChatClassifier(&fakeChatModel{}, "m").Classify(ctx, model.ClassifyInput{Criterion: "mood"}); !errx.IsKind(err, errx.KindFatal) {
		t.Fatalf("unknown criterion: err = %v", err)
	}
}

func TestGeneratorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewChatGenerator(&fakeChatModel{err: context.Canceled}, "m").Complete(ctx, nil)
	if !errx.IsKind(err, errx.KindCancelled) {
		t.Fatalf("err = %v", err)
	}
}

func TestGeneratorTrims(t *testing.T) {
	out, err := NewChatGenerator(&fakeChatModel{reply: "  hi \n"}, "m").Complete(context.Background(), nil)
	if err != nil || out != "hi" {
		t.Fatalf("out = %q, err = %v", out, err)
	}
}
