package tokenstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists tokens in Redis, for server-side deployments where
// several processes share one token store.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a Redis-backed token store. The prefix namespaces
// keys so several stores can share one database.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(clientID string) string {
	return fmt.Sprintf("%s:tokens:%s", s.prefix, clientID)
}

func (s *RedisStore) Get(ctx context.Context, clientID string) (*Tokens, error) {
	data, err := s.client.Get(ctx, s.key(clientID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get tokens from redis: %w", err)
	}

	var tokens Tokens
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("failed to decode tokens: %w", err)
	}

	return &tokens, nil
}

func (s *RedisStore) Set(ctx context.Context, clientID string, tokens *Tokens) error {
	data, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("failed to encode tokens: %w", err)
	}

	var ttl time.Duration // 0: no expiry while a refresh token is held
	if tokens.RefreshToken == "" {
		ttl = time.Until(tokens.ExpiresAt)
	}

	if err := s.client.Set(ctx, s.key(clientID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set tokens in redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, clientID string) error {
	if err := s.client.Del(ctx, s.key(clientID)).Err(); err != nil {
		return fmt.Errorf("failed to delete tokens from redis: %w", err)
	}
	return nil
}

func (s *RedisStore) ClearAll(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, fmt.Sprintf("%s:tokens:*", s.prefix), 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete tokens from redis: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan token keys: %w", err)
	}
	return nil
}
