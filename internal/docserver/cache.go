package docserver

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/beariot/beariot/internal/config"
)

// TTL of cached read results. Writes invalidate the whole collection, so
// the TTL only bounds staleness across proxy instances.
const readTTL = 30 * time.Second

// Cache is a Redis read-through cache over readDocument results. A
// disabled cache is a no-op, so callers never branch on it.
type Cache struct {
	client    *redis.Client
	keyPrefix string
	enabled   bool
}

// NewCache connects to Redis, or returns a disabled cache when the config
// says so.
func NewCache(cfg config.RedisConfig) (*Cache, error) {
	if !cfg.Enabled {
		return &Cache{enabled: false}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "beariot"
	}

	return &Cache{
		client:    client,
		keyPrefix: prefix,
		enabled:   true,
	}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func (c *Cache) key(collection string, query map[string]interface{}) string {
	raw, _ := json.Marshal(query)
	sum := sha1.Sum(raw)
	return fmt.Sprintf("%s:read:%s:%s", c.keyPrefix, collection, hex.EncodeToString(sum[:]))
}

// GetRead returns a cached read result, or false on miss.
func (c *Cache) GetRead(ctx context.Context, collection string, query map[string]interface{}) ([]map[string]interface{}, bool) {
	if !c.enabled {
		return nil, false
	}

	data, err := c.client.Get(ctx, c.key(collection, query)).Bytes()
	if err != nil {
		return nil, false
	}

	var docs []map[string]interface{}
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, false
	}
	return docs, true
}

// SetRead caches a read result.
func (c *Cache) SetRead(ctx context.Context, collection string, query map[string]interface{}, docs []map[string]interface{}) {
	if !c.enabled {
		return
	}

	data, err := json.Marshal(docs)
	if err != nil {
		return
	}
	c.client.Set(ctx, c.key(collection, query), data, readTTL)
}

// Invalidate drops every cached read of a collection after a write.
func (c *Cache) Invalidate(ctx context.Context, collection string) {
	if !c.enabled {
		return
	}

	pattern := fmt.Sprintf("%s:read:%s:*", c.keyPrefix, collection)
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if len(keys) > 0 {
		c.client.Del(ctx, keys...)
	}
}
