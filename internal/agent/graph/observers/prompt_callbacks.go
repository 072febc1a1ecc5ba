package observers

import (
	"context"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/prompt"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	logx "github.com/aptify/knowledge-rag/pkg/logger"
)

// newPromptHandler traces rendered prompts.
func newPromptHandler() *callbackHelper.PromptCallbackHandler {
	return &callbackHelper.PromptCallbackHandler{
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *prompt.CallbackOutput) context.Context {
			if output != nil && len(output.Result) > 0 {
				last := output.Result[len(output.Result)-1]
				if last != nil {
					logx.Trace().Str("component", "prompt").Str("rendered", last.Content).Msg("prompt rendered")
				}
			}
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Error().Str("component", "prompt").Err(err).Msg("prompt render failed")
			return ctx
		},
	}
}
