package observers

import (
	"context"
	"strings"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	agentmodel "github.com/aptify/knowledge-rag/internal/agent/model"
	logx "github.com/aptify/knowledge-rag/pkg/logger"
)

// newModelHandler logs model calls and accounts their token cost.
func newModelHandler(m *Metrics) *callbackHelper.ModelCallbackHandler {
	return &callbackHelper.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *model.CallbackInput) context.Context {
			if input != nil && len(input.Messages) > 0 {
				logx.Debug().
					Str("component", "chat_model").
					Str("name", info.Name).
					Int("messages", len(input.Messages)).
					Str("user", truncate(lastUserContent(input.Messages), 200)).
					Msg("model call")
			}
			return ctx
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *model.CallbackOutput) context.Context {
			if output == nil {
				return ctx
			}
			modelName := info.Name
			if output.Config != nil && output.Config.Model != "" {
				modelName = output.Config.Model
			}
			usage := usageOf(output)
			cost := agentmodel.ComputeCost(usage, agentmodel.ResolvePricing(modelName))
			ev := logx.Debug().Str("component", "chat_model").Str("model", modelName)
			if usage != nil {
				ev = ev.Int("prompt_tokens", usage.PromptTokens).
					Int("completion_tokens", usage.CompletionTokens).
					Int("total_tokens", usage.TotalTokens).
					Float64("total_cost_usd", cost.Total)
				m.observeUsage(modelName, usage.PromptTokens, usage.CompletionTokens, cost.Total)
			}
			if output.Message != nil {
				ev = ev.Str("assistant", truncate(strings.TrimSpace(output.Message.Content), 200))
			}
			ev.Msg("model call finished")
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Warn().Str("component", "chat_model").Str("name", info.Name).Err(err).Msg("model call failed")
			return ctx
		},
	}
}

func usageOf(out *model.CallbackOutput) *schema.TokenUsage {
	if out.Message != nil && out.Message.ResponseMeta != nil && out.Message.ResponseMeta.Usage != nil {
		return out.Message.ResponseMeta.Usage
	}
	if out.TokenUsage != nil {
		return &schema.TokenUsage{
			PromptTokens:     out.TokenUsage.PromptTokens,
			CompletionTokens: out.TokenUsage.CompletionTokens,
			TotalTokens:      out.TokenUsage.TotalTokens,
		}
	}
	return nil
}

func lastUserContent(msgs []*schema.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m == nil {
			continue
		}
		if m.Role == schema.User {
			return strings.TrimSpace(m.Content)
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
