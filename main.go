package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/aptify/knowledge-rag/internal/agent/model"
	"github.com/aptify/knowledge-rag/internal/core"
	"github.com/aptify/knowledge-rag/internal/server"
	logx "github.com/aptify/knowledge-rag/pkg/logger"
	pkgpostgres "github.com/aptify/knowledge-rag/pkg/postgres"
	pkgredis "github.com/aptify/knowledge-rag/pkg/redis"
)

// AppConfig defines all configurable parameters of the service,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment core.Environment `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string           `envconfig:"LOG_LEVEL"`

	// Infrastructure
	Redis    pkgredis.Config
	Postgres pkgpostgres.Config

	// LLM provider
	LLM       model.LLMConfig
	Generator model.GeneratorModelConfig
	Grader    model.GraderModelConfig

	// Workflow
	Workflow  model.WorkflowConfig
	Retrieval model.RetrievalConfig
	Index     model.IndexConfig
	WebSearch model.WebSearchConfig
	Cache     model.CacheConfig
	HTTP      model.HTTPConfig
}

const usage = `Usage: knowledge-rag <command> [flags]

Commands:
  serve              run the HTTP API (POST /knowledge/query, /health, /metrics)
  ask   -q "..."     answer one question and print it as JSON
  index -path DIR    load, chunk, embed and store documents
  mcp                serve the ask_knowledge_base tool over stdio`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: Could not load .env file: %v\n", err)
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to process environment config: %v\n", err)
		os.Exit(1)
	}

	logOpts := logx.LoggerOpts{Environment: cfg.Environment, Level: cfg.LogLevel}
	if os.Args[1] == "mcp" {
		// stdout carries the MCP protocol.
		logOpts.Output = os.Stderr
	}
	logx.Init(logOpts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Args[1], os.Args[2:]); err != nil {
		logx.Error().Err(err).Str("command", os.Args[1]).Msg("command failed")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg AppConfig, cmd string, args []string) error {
	switch cmd {
	case "serve":
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		return server.NewHTTPServer(server.Options{
			Addr:     cfg.HTTP.Addr,
			Asker:    a.service,
			Registry: a.registry,
		}).Run(ctx)

	case "ask":
		fs := flag.NewFlagSet("ask", flag.ExitOnError)
		question := fs.String("q", "", "question text")
		_ = fs.Parse(args)
		if *question == "" {
			return fmt.Errorf("please provide -q \"your question\"")
		}
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		answer, err := a.service.Ask(ctx, *question)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(answer)

	case "index":
		fs := flag.NewFlagSet("index", flag.ExitOnError)
		path := fs.String("path", "./data/docs", "path to a file or folder to index")
		_ = fs.Parse(args)
		return runIndex(ctx, cfg, *path)

	case "mcp":
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		return server.ServeMCP(a.service)

	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
}
