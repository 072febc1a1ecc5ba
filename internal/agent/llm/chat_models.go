package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	einomodel "github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"github.com/aptify/knowledge-rag/internal/agent/model"
	logx "github.com/aptify/knowledge-rag/pkg/logger"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// ChatModelConfig holds the configuration for chat model creation
type ChatModelConfig struct {
	LLM       model.LLMConfig
	Generator model.GeneratorModelConfig
	Grader    model.GraderModelConfig
}

// ChatModels holds the generator and grader chat models
type ChatModels struct {
	Generator          einomodel.BaseChatModel
	Grader             einomodel.BaseChatModel
	GeneratorModelName string
	GraderModelName    string
	Provider           string
}

// NewChatModels creates the generator and grader chat models for the configured provider.
func NewChatModels(ctx context.Context, config ChatModelConfig) (*ChatModels, error) {
	provider := strings.ToLower(strings.TrimSpace(config.LLM.Provider))
	if provider == "" {
		provider = ProviderGemini
	}
	cms := &ChatModels{
		GeneratorModelName: config.Generator.Model,
		GraderModelName:    config.Grader.Model,
		Provider:           provider,
	}

	switch provider {
	case ProviderGemini:
		client, err := NewGenAIClient(ctx, config.LLM)
		if err != nil {
			return nil, err
		}
		gen, err := newGeminiModel(ctx, client, config.Generator.Model, config.Generator.Temperature, config.Generator.MaxTokens)
		if err != nil {
			logx.Error().Err(err).Msg("Error creating generator model")
			return nil, fmt.Errorf("error creating generator model: %w", err)
		}
		grader, err := newGeminiModel(ctx, client, config.Grader.Model, config.Grader.Temperature, config.Grader.MaxTokens)
		if err != nil {
			logx.Error().Err(err).Msg("Error creating grader model")
			return nil, fmt.Errorf("error creating grader model: %w", err)
		}
		cms.Generator, cms.Grader = gen, grader

	case ProviderOpenAI:
		gen, err := newOpenAIModel(ctx, config.LLM, config.Generator.Model, config.Generator.Temperature, config.Generator.MaxTokens)
		if err != nil {
			logx.Error().Err(err).Msg("Error creating generator model")
			return nil, fmt.Errorf("error creating generator model: %w", err)
		}
		grader, err := newOpenAIModel(ctx, config.LLM, config.Grader.Model, config.Grader.Temperature, config.Grader.MaxTokens)
		if err != nil {
			logx.Error().Err(err).Msg("Error creating grader model")
			return nil, fmt.Errorf("error creating grader model: %w", err)
		}
		cms.Generator, cms.Grader = gen, grader

	default:
		return nil, fmt.Errorf("unknown LLM provider %q", config.LLM.Provider)
	}

	logx.Debug().
		Str("provider", provider).
		Str("generator_model", cms.GeneratorModelName).
		Str("grader_model", cms.GraderModelName).
		Msg("Chat models created")
	return cms, nil
}

// NewGenAIClient creates the Gemini API client shared by chat models and the embedder.
func NewGenAIClient(ctx context.Context, cfg model.LLMConfig) (*genai.Client, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.GeminiBaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.GeminiBaseURL
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}
	return client, nil
}

func newGeminiModel(ctx context.Context, client *genai.Client, name string, temperature float32, maxTokens int) (*gemini.ChatModel, error) {
	return gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       name,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  genai.Ptr(int32(0)),
		},
	})
}

func newOpenAIModel(ctx context.Context, cfg model.LLMConfig, name string, temperature float32, maxTokens int) (*openai.ChatModel, error) {
	return openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      cfg.OpenAIAPIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		Model:       name,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
}
