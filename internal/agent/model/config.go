package model

import "time"

// ================ Config ================
type LLMConfig struct {
	Provider      string `envconfig:"LLM_PROVIDER" default:"gemini"`
	GeminiAPIKey  string `envconfig:"GEMINI_API_KEY"`
	GeminiBaseURL string `envconfig:"GEMINI_BASE_URL"`
	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL"`
}

type GeneratorModelConfig struct {
	Model       string  `envconfig:"GENERATOR_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"GENERATOR_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"GENERATOR_TEMPERATURE" default:"0.2"`
}

type GraderModelConfig struct {
	Model       string  `envconfig:"GRADER_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"GRADER_MAX_TOKENS" default:"512"`
	Temperature float32 `envconfig:"GRADER_TEMPERATURE" default:"0"`
}

type WorkflowConfig struct {
	MaxRegenerations int           `envconfig:"WORKFLOW_MAX_REGENERATIONS" default:"2"`
	MaxRewrites      int           `envconfig:"WORKFLOW_MAX_REWRITES" default:"2"`
	Timeout          time.Duration `envconfig:"WORKFLOW_TIMEOUT" default:"60s"`
}

type RetrievalConfig struct {
	TopK                 int `envconfig:"RETRIEVAL_TOP_K" default:"4"`
	RelevanceConcurrency int `envconfig:"RELEVANCE_CONCURRENCY" default:"4"`
}

type IndexConfig struct {
	Backend             string `envconfig:"INDEX_BACKEND" default:"sqlite"`
	SQLitePath          string `envconfig:"SQLITE_PATH" default:"data/index.db"`
	EmbeddingModel      string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-004"`
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"768"`
	ChunkSize           int    `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap        int    `envconfig:"CHUNK_OVERLAP" default:"200"`
}

type WebSearchConfig struct {
	TavilyAPIKey string        `envconfig:"TAVILY_API_KEY"`
	MaxResults   int           `envconfig:"TAVILY_MAX_RESULTS" default:"3"`
	Depth        string        `envconfig:"TAVILY_DEPTH" default:"basic"`
	Timeout      time.Duration `envconfig:"TAVILY_TIMEOUT" default:"10s"`
}

type CacheConfig struct {
	TTL time.Duration `envconfig:"ANSWER_CACHE_TTL" default:"10m"`
}

type HTTPConfig struct {
	Addr string `envconfig:"HTTP_ADDR" default:":8080"`
}
