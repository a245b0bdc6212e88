package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/avelezdev/geolayers/internal/cache/redisstore"
)

// adapter binds the context-free Interface to the redis client with a
// per-operation timeout.
type adapter struct {
	cli     *redisstore.Client
	timeout time.Duration
}

func NewRedisAdapter(c *redisstore.Client, timeout time.Duration) Interface {
	return &adapter{cli: c, timeout: timeout}
}

func (a *adapter) withTimeout() (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), a.timeout)
}

func (a *adapter) Get(key string) ([]byte, bool, error) {
	ctx, cancel := a.withTimeout()
	defer cancel()
	v, ok, err := a.cli.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("cache get %q: %w", key, err)
	}
	return v, ok, nil
}

func (a *adapter) Set(key string, val []byte, ttl time.Duration) error {
	ctx, cancel := a.withTimeout()
	defer cancel()
	if err := a.cli.Set(ctx, key, val, ttl); err != nil {
		return fmt.Errorf("cache set %q: %w", key, err)
	}
	return nil
}

func (a *adapter) Del(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := a.withTimeout()
	defer cancel()
	if err := a.cli.Del(ctx, keys...); err != nil {
		return fmt.Errorf("cache del %d keys: %w", len(keys), err)
	}
	return nil
}
