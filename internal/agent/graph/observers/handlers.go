package observers

import (
	einocb "github.com/cloudwego/eino/callbacks"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"
)

// NewAllCallbacks aggregates the answering workflow observers into one callbacks.Handler.
func NewAllCallbacks(m *Metrics) einocb.Handler {
	return callbackHelper.NewHandlerHelper().
		ChatModel(newModelHandler(m)).
		Prompt(newPromptHandler()).
		Lambda(newLambdaHandler(m)).
		Handler()
}

// NewIngestCallbacks aggregates the ingestion observers into one callbacks.Handler.
func NewIngestCallbacks() einocb.Handler {
	return callbackHelper.NewHandlerHelper().
		Loader(newLoaderHandler()).
		Transformer(newTransformerHandler()).
		Indexer(newIndexerHandler()).
		Handler()
}
