package errx

import (
	"errors"

	"github.com/redis/go-redis/v9"
)

// WrapRedis maps Redis errors to the unified Error type with appropriate status codes.
func WrapRedis(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		e := New(KindNotFound, "redis", err)
		e.Message = RedisNotFoundMessage
		return e
	}
	e := New(KindUnavailable, "redis", err)
	e.Message = RedisErrorMessage
	return e
}
