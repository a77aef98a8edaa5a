package ledger

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "faucet:ledger:"

// RedisBackend stores each collection document under its own Redis key.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend constructs a Redis-backed ledger backend.
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (b *RedisBackend) Load(ctx context.Context, kind Kind) ([]byte, error) {
	doc, err := b.client.Get(ctx, redisKeyPrefix+string(kind)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return doc, err
}

func (b *RedisBackend) Save(ctx context.Context, kind Kind, document []byte) error {
	return b.client.Set(ctx, redisKeyPrefix+string(kind), document, 0).Err()
}
