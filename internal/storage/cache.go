package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"memory-core/internal/logging"
	"memory-core/pkg/types"
)

// CachedNodeStore is a redis read-through cache in front of a NodeStore.
// Writes and deletes invalidate; cache failures degrade to the underlying
// store.
type CachedNodeStore struct {
	NodeStore
	client *redis.Client
	ttl    time.Duration
	logger logging.Logger
}

// NewCachedNodeStore wraps a node store with a redis cache.
func NewCachedNodeStore(inner NodeStore, addr string, ttl time.Duration, logger logging.Logger) *CachedNodeStore {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &CachedNodeStore{
		NodeStore: inner,
		client:    redis.NewClient(&redis.Options{Addr: addr}),
		ttl:       ttl,
		logger:    logger.WithComponent("node_cache"),
	}
}

func cacheKey(id string) string {
	return "node:" + id
}

// GetNode serves from cache when possible, falling back to the inner store
// and populating on miss.
func (c *CachedNodeStore) GetNode(ctx context.Context, id string) (*types.Node, error) {
	data, err := c.client.Get(ctx, cacheKey(id)).Bytes()
	if err == nil {
		var node types.Node
		if err := json.Unmarshal(data, &node); err == nil {
			return &node, nil
		}
		// Corrupt entry: drop it and fall through.
		c.client.Del(ctx, cacheKey(id))
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("cache read failed", "node_id", id, "error", err.Error())
	}

	node, err := c.NodeStore.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(node); err == nil {
		if err := c.client.Set(ctx, cacheKey(id), data, c.ttl).Err(); err != nil {
			c.logger.Warn("cache write failed", "node_id", id, "error", err.Error())
		}
	}
	return node, nil
}

// PutNode writes through and invalidates.
func (c *CachedNodeStore) PutNode(ctx context.Context, node *types.Node) error {
	if err := c.NodeStore.PutNode(ctx, node); err != nil {
		return err
	}
	if err := c.client.Del(ctx, cacheKey(node.ID)).Err(); err != nil {
		c.logger.Warn("cache invalidation failed", "node_id", node.ID, "error", err.Error())
	}
	return nil
}

// DeleteNode deletes through and invalidates.
func (c *CachedNodeStore) DeleteNode(ctx context.Context, id string) error {
	if err := c.NodeStore.DeleteNode(ctx, id); err != nil {
		return err
	}
	if err := c.client.Del(ctx, cacheKey(id)).Err(); err != nil {
		c.logger.Warn("cache invalidation failed", "node_id", id, "error", err.Error())
	}
	return nil
}

// Close closes the redis connection.
func (c *CachedNodeStore) Close() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close cache: %w", err)
	}
	return nil
}
