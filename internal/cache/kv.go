package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// KV stores small json values such as job cursors.
type KV interface {
	Get(ctx context.Context, k string, v any) (bool, error)
	Set(ctx context.Context, k string, v any, ttl time.Duration) error
}

var _ KV = (*Redis)(nil)

type Redis struct {
	client *redis.Client
}

// NewClient connects to the redis server at addr.
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "", // No password set
		DB:       0,  // Use default DB
		Protocol: 2,  // Connection protocol
	})
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Get(ctx context.Context, k string, v any) (bool, error) {
	buf, err := r.client.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, json.Unmarshal(buf, v)
}

// Set stores v under k. A zero ttl keeps the value forever.
func (r *Redis) Set(ctx context.Context, k string, v any, ttl time.Duration) error {
	value, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return r.client.Set(ctx, k, value, ttl).Err()
}
