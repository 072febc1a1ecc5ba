package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aptify/knowledge-rag/internal/agent/model"
	errx "github.com/aptify/knowledge-rag/internal/core/error"
	logx "github.com/aptify/knowledge-rag/pkg/logger"
)

// AnswerCache stores finished answers by question.
type AnswerCache interface {
	// Get returns (nil, nil) on a miss.
	Get(ctx context.Context, question string) (*model.Answer, error)
	Set(ctx context.Context, question string, answer *model.Answer) error
}

type RedisAnswerCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisAnswerCache(rdb redis.Cmdable, ttl time.Duration) *RedisAnswerCache {
	return &RedisAnswerCache{rdb: rdb, ttl: ttl}
}

func (c *RedisAnswerCache) answerKey(question string) string {
	sum := sha256.Sum256([]byte(NormalizeQuestion(question)))
	return fmt.Sprintf("knowledge:answer:%s", hex.EncodeToString(sum[:]))
}

func (c *RedisAnswerCache) Get(ctx context.Context, question string) (*model.Answer, error) {
	key := c.answerKey(question)
	b, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to read cached answer from redis")
		return nil, errx.WrapRedis(err)
	}
	var a model.Answer
	if err := json.Unmarshal(b, &a); err != nil {
		logx.Warn().Err(err).Str("key", key).Msg("dropping unreadable cached answer")
		return nil, nil
	}
	return &a, nil
}

func (c *RedisAnswerCache) Set(ctx context.Context, question string, answer *model.Answer) error {
	b, err := json.Marshal(answer)
	if err != nil {
		return fmt.Errorf("marshal answer: %w", err)
	}
	key := c.answerKey(question)
	if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to cache answer in redis")
		return errx.WrapRedis(err)
	}
	return nil
}

// NormalizeQuestion lowercases and collapses whitespace.
func NormalizeQuestion(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

var _ AnswerCache = (*RedisAnswerCache)(nil)
