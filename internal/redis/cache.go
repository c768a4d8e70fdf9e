package redis

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/graphbank/backoffice/internal/logging"
)

// ViewCache stores JSON-encoded read model projections of type T. A zero ttl
// means keys never expire; the caller owns invalidation in that case.
type ViewCache[T any] struct {
	client *goredis.Client
	ttl    time.Duration
	log    *logging.Logger
}

func NewViewCache[T any](client *goredis.Client, ttl time.Duration, log *logging.Logger) *ViewCache[T] {
	return &ViewCache[T]{client: client, ttl: ttl, log: log}
}

// Get reports (nil, false) on a miss, a decode failure or any Redis error;
// the caller falls through to the backing store. An undecodable entry is
// dropped so it cannot shadow the store until expiry.
func (c *ViewCache[T]) Get(ctx context.Context, key string) (*T, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var view T
	if err := json.Unmarshal(data, &view); err != nil {
		c.log.WithService().WithField("key", key).Warnf("dropping undecodable cached view: %v", err)
		c.client.Del(ctx, key)
		return nil, false
	}
	return &view, true
}

// Set writes through to Redis. Failures are logged, never surfaced: the cache
// is an accelerator, not a source of truth.
func (c *ViewCache[T]) Set(ctx context.Context, key string, view *T) {
	data, err := json.Marshal(view)
	if err != nil {
		c.log.WithService().WithField("key", key).Warnf("failed to encode view: %v", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.WithService().WithField("key", key).Warnf("failed to cache view: %v", err)
	}
}

// Delete drops a cached view.
func (c *ViewCache[T]) Delete(ctx context.Context, key string) {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.log.WithService().WithField("key", key).Warnf("failed to drop cached view: %v", err)
	}
}
