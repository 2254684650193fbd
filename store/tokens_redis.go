package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vidbridge/vidbridge/apperrors"
	"github.com/vidbridge/vidbridge/logging"
)

// RedisTokenStoreImpl stores tokens with a native redis TTL, so expiry is
// enforced by redis itself and no janitor is needed.
type RedisTokenStoreImpl struct {
	client *redis.Client
	ttl    time.Duration

	logger logging.Logger
}

func NewRedisTokenStoreImpl(client *redis.Client, ttl time.Duration, l logging.Logger) *RedisTokenStoreImpl {
	return &RedisTokenStoreImpl{
		client: client,
		ttl:    ttl,
		logger: l,
	}
}

func tokenKey(token string) string {
	return "token:" + token
}

func (s *RedisTokenStoreImpl) Mint(ctx context.Context, fileName string) (string, error) {
	token := uuid.NewString()

	if err := s.client.Set(ctx, tokenKey(token), fileName, s.ttl).Err(); err != nil {
		s.logger.Error("failed to store access token", "file", fileName, "error", err)
		return "", fmt.Errorf("failed to store access token: %w", err)
	}

	s.logger.Info("access token minted", "file", fileName, "ttl", s.ttl)
	return token, nil
}

func (s *RedisTokenStoreImpl) Validate(ctx context.Context, token, fileName string) error {
	bound, err := s.client.Get(ctx, tokenKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return apperrors.ErrTokenInvalid
	}
	if err != nil {
		s.logger.Error("token lookup failed", "error", err)
		return fmt.Errorf("token lookup failed: %w", err)
	}
	if bound != fileName {
		return apperrors.ErrTokenInvalid
	}
	return nil
}
