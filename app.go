package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/aptify/knowledge-rag/internal/agent/graph"
	"github.com/aptify/knowledge-rag/internal/agent/graph/observers"
	"github.com/aptify/knowledge-rag/internal/agent/graph/websearch"
	"github.com/aptify/knowledge-rag/internal/agent/llm"
	"github.com/aptify/knowledge-rag/internal/index"
	"github.com/aptify/knowledge-rag/internal/knowledge"
	logx "github.com/aptify/knowledge-rag/pkg/logger"
)

const (
	backendSQLite   = "sqlite"
	backendPGVector = "pgvector"
)

// app holds the long-lived dependencies of one process.
type app struct {
	service  *knowledge.Service
	registry *prometheus.Registry
	closers  []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg AppConfig) (_ *app, err error) {
	a := &app{registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	models, err := llm.NewChatModels(ctx, llm.ChatModelConfig{
		LLM:       cfg.LLM,
		Generator: cfg.Generator,
		Grader:    cfg.Grader,
	})
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg, a)
	if err != nil {
		return nil, err
	}

	if cfg.WebSearch.TavilyAPIKey == "" {
		logx.Warn().Msg("TAVILY_API_KEY is not set; questions routed to web search will fail")
	}

	runner, err := graph.BuildAnswerGraph(ctx, graph.Dependencies{
		Classifier: llm.NewChatClassifier(models.Grader, models.GraderModelName),
		Generator:  llm.NewChatGenerator(models.Generator, models.GeneratorModelName),
		Index:      index.NewSearcher(store),
		WebSearch: websearch.NewTavily(cfg.WebSearch.TavilyAPIKey, cfg.WebSearch.Depth,
			cfg.WebSearch.MaxResults, cfg.WebSearch.Timeout),
		Metrics: observers.NewMetrics(a.registry),
	}, graph.SettingsFrom(cfg.Workflow, cfg.Retrieval))
	if err != nil {
		return nil, fmt.Errorf("build answer graph: %w", err)
	}

	var cache knowledge.AnswerCache
	if cfg.Redis.Enabled() && cfg.Cache.TTL > 0 {
		rdb, err := cfg.Redis.New(ctx)
		if err != nil {
			logx.Warn().Err(err).Msg("redis unavailable, answer cache disabled")
		} else {
			a.closers = append(a.closers, closeRedis(rdb))
			cache = knowledge.NewRedisAnswerCache(rdb, cfg.Cache.TTL)
			logx.Info().Dur("ttl", cfg.Cache.TTL).Msg("answer cache enabled")
		}
	}

	a.service = knowledge.NewService(runner, cache)
	return a, nil
}

// openStore opens the configured vector store and registers its cleanup on a.
func openStore(ctx context.Context, cfg AppConfig, a *app) (index.Store, error) {
	client, err := llm.NewGenAIClient(ctx, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("create embedding client: %w", err)
	}
	embedder := index.NewGenAIEmbedder(client, cfg.Index.EmbeddingModel, cfg.Index.EmbeddingDimensions)

	switch strings.ToLower(strings.TrimSpace(cfg.Index.Backend)) {
	case "", backendSQLite:
		s, err := index.NewSQLiteStore(cfg.Index.SQLitePath, embedder)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = s.Close() })
		logx.Info().Str("path", cfg.Index.SQLitePath).Msg("using sqlite index")
		return s, nil

	case backendPGVector:
		if !cfg.Postgres.Enabled() {
			return nil, fmt.Errorf("INDEX_BACKEND=pgvector requires POSTGRES_URL")
		}
		pool, err := cfg.Postgres.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, closePool(pool))
		s, err := index.NewPGVectorStore(ctx, pool, embedder, cfg.Index.EmbeddingDimensions)
		if err != nil {
			return nil, err
		}
		logx.Info().Msg("using pgvector index")
		return s, nil

	default:
		return nil, fmt.Errorf("unknown INDEX_BACKEND %q", cfg.Index.Backend)
	}
}

func runIndex(ctx context.Context, cfg AppConfig, path string) error {
	a := &app{}
	defer a.Close()

	store, err := openStore(ctx, cfg, a)
	if err != nil {
		return err
	}
	splitter, err := index.NewSplitter(ctx, cfg.Index.ChunkSize, cfg.Index.ChunkOverlap)
	if err != nil {
		return err
	}
	ing, err := index.NewIngestor(ctx, index.NewFileLoader(), splitter, store)
	if err != nil {
		return fmt.Errorf("build ingest graph: %w", err)
	}
	ids, err := ing.Ingest(ctx, path)
	if err != nil {
		return err
	}
	fmt.Printf("Indexing complete: %d chunks from %s\n", len(ids), path)
	return nil
}

func closeRedis(rdb *redis.Client) func() {
	return func() {
		if err := rdb.Close(); err != nil {
			logx.Warn().Err(err).Msg("redis close")
		}
	}
}

func closePool(pool *pgxpool.Pool) func() {
	return func() { pool.Close() }
}
