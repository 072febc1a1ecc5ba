package knowledge

import (
	"context"
	"strings"

	"github.com/aptify/knowledge-rag/internal/agent/model"
	errx "github.com/aptify/knowledge-rag/internal/core/error"
	logx "github.com/aptify/knowledge-rag/pkg/logger"
)

// Answerer runs one workflow execution per call.
type Answerer interface {
	Answer(ctx context.Context, question string) (*model.Answer, error)
}

// Service answers questions, consulting the cache first when one is set.
// Cache failures never fail a question.
type Service struct {
	answerer Answerer
	cache    AnswerCache
}

// NewService builds a Service; cache may be nil.
func NewService(answerer Answerer, cache AnswerCache) *Service {
	return &Service{answerer: answerer, cache: cache}
}

func (s *Service) Ask(ctx context.Context, question string) (*model.Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, errx.Invalid("knowledge.Ask", "question must not be empty")
	}

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, question)
		switch {
		case err != nil:
			logx.Warn().Err(err).Msg("answer cache unavailable, answering without it")
		case cached != nil:
			logx.Debug().Str("question", question).Msg("answer cache hit")
			return cached, nil
		}
	}

	answer, err := s.answerer.Answer(ctx, question)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && answer.Outcome == model.OutcomeDone {
		if err := s.cache.Set(ctx, question, answer); err != nil {
			logx.Warn().Err(err).Msg("failed to cache answer")
		}
	}
	return answer, nil
}
