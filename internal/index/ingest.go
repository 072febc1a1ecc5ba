package index

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/indexer"
	"github.com/cloudwego/eino/compose"

	"github.com/aptify/knowledge-rag/internal/agent/graph/observers"
	logx "github.com/aptify/knowledge-rag/pkg/logger"
)

const (
	nodeLoad  = "load"
	nodeSplit = "split"
	nodeStore = "store"
)

// Ingestor runs load -> split -> store as an eino graph.
type Ingestor struct {
	runner compose.Runnable[document.Source, []string]
}

// NewIngestor compiles the indexing graph.
func NewIngestor(ctx context.Context, loader document.Loader, splitter document.Transformer, store indexer.Indexer) (*Ingestor, error) {
	g := compose.NewGraph[document.Source, []string]()

	if err := g.AddLoaderNode(nodeLoad, loader, compose.WithNodeName(nodeLoad)); err != nil {
		return nil, err
	}
	if err := g.AddDocumentTransformerNode(nodeSplit, splitter, compose.WithNodeName(nodeSplit)); err != nil {
		return nil, err
	}
	if err := g.AddIndexerNode(nodeStore, store, compose.WithNodeName(nodeStore)); err != nil {
		return nil, err
	}

	edges := [][2]string{
		{compose.START, nodeLoad},
		{nodeLoad, nodeSplit},
		{nodeSplit, nodeStore},
		{nodeStore, compose.END},
	}
	for _, e := range edges {
		if err := g.AddEdge(e[0], e[1]); err != nil {
			return nil, fmt.Errorf("add edge %s -> %s: %w", e[0], e[1], err)
		}
	}

	r, err := g.Compile(ctx, compose.WithGraphName("KnowledgeIndexing"))
	if err != nil {
		return nil, err
	}
	return &Ingestor{runner: r}, nil
}

// Ingest indexes the file or directory at path and returns the stored chunk IDs.
func (i *Ingestor) Ingest(ctx context.Context, path string) ([]string, error) {
	ids, err := i.runner.Invoke(ctx, document.Source{URI: path},
		compose.WithCallbacks(observers.NewIngestCallbacks()))
	if err != nil {
		return nil, err
	}
	logx.Info().Str("path", path).Int("chunks", len(ids)).Msg("ingest complete")
	return ids, nil
}
