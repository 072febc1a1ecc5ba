package observers

import (
	"context"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/indexer"
	"github.com/cloudwego/eino/compose"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	logx "github.com/aptify/knowledge-rag/pkg/logger"
)

// newLambdaHandler counts workflow states as they are entered.
func newLambdaHandler(m *Metrics) einocb.Handler {
	return einocb.NewHandlerBuilder().
		OnStartFn(func(ctx context.Context, info *einocb.RunInfo, _ einocb.CallbackInput) context.Context {
			if info.Component == compose.ComponentOfLambda {
				m.observeNode(info.Name)
			}
			return ctx
		}).
		OnErrorFn(func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Warn().Str("node", info.Name).Err(err).Msg("node failed")
			return ctx
		}).
		Build()
}

func newLoaderHandler() *callbackHelper.LoaderCallbackHandler {
	return &callbackHelper.LoaderCallbackHandler{
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *document.LoaderCallbackOutput) context.Context {
			if output != nil {
				logx.Info().Str("component", "loader").Str("uri", output.Source.URI).Int("docs", len(output.Docs)).Msg("documents loaded")
			}
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Error().Str("component", "loader").Err(err).Msg("load failed")
			return ctx
		},
	}
}

func newTransformerHandler() *callbackHelper.TransformerCallbackHandler {
	return &callbackHelper.TransformerCallbackHandler{
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *document.TransformerCallbackOutput) context.Context {
			if output != nil {
				logx.Info().Str("component", "splitter").Int("chunks", len(output.Output)).Msg("documents split")
			}
			return ctx
		},
	}
}

func newIndexerHandler() *callbackHelper.IndexerCallbackHandler {
	return &callbackHelper.IndexerCallbackHandler{
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *indexer.CallbackOutput) context.Context {
			if output != nil {
				logx.Info().Str("component", "indexer").Int("stored", len(output.IDs)).Msg("chunks stored")
			}
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Error().Str("component", "indexer").Err(err).Msg("store failed")
			return ctx
		},
	}
}
