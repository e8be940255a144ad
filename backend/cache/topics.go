package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"luminate/backend/config"
	"luminate/backend/models"
	"luminate/backend/utils"

	goredis "github.com/redis/go-redis/v9"
)

// TopicCache holds ordered topic listings keyed by category ("" = whole catalog).
type TopicCache interface {
	Get(ctx context.Context, category string) ([]models.Topic, bool)
	Set(ctx context.Context, category string, topics []models.Topic)
	Invalidate(ctx context.Context)
	Close() error
}

// NewTopicCache returns a Redis-backed cache when REDIS_ADDR is set, otherwise an
// in-process one.
func NewTopicCache(cfg *config.Config, log *utils.Logger) (TopicCache, error) {
	if cfg.RedisAddr == "" {
		return NewMemoryTopicCache(cfg.CacheTTL), nil
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.RedisAddr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return newRedisTopicCache(rdb, cfg.CacheTTL, log), nil
}

// redisTopicCache keeps one key per category, each with its own TTL.
type redisTopicCache struct {
	rdb    *goredis.Client
	prefix string
	ttl    time.Duration
	log    *utils.Logger
}

func newRedisTopicCache(rdb *goredis.Client, ttl time.Duration, log *utils.Logger) *redisTopicCache {
	return &redisTopicCache{
		rdb:    rdb,
		prefix: "luminate:topics:",
		ttl:    ttl,
		log:    log.With("service", "RedisTopicCache"),
	}
}

func (c *redisTopicCache) key(category string) string {
	return c.prefix + category
}

func (c *redisTopicCache) Get(ctx context.Context, category string) ([]models.Topic, bool) {
	raw, err := c.rdb.Get(ctx, c.key(category)).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.log.Warn("topic cache read failed", "error", err)
		}
		return nil, false
	}
	var topics []models.Topic
	if err := json.Unmarshal(raw, &topics); err != nil {
		c.log.Warn("bad topic cache payload", "error", err)
		return nil, false
	}
	return topics, true
}

func (c *redisTopicCache) Set(ctx context.Context, category string, topics []models.Topic) {
	raw, err := json.Marshal(topics)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, c.key(category), raw, c.ttl).Err(); err != nil {
		c.log.Warn("topic cache write failed", "error", err)
	}
}

// Invalidate drops every cached category.
func (c *redisTopicCache) Invalidate(ctx context.Context) {
	var keys []string
	iter := c.rdb.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.log.Warn("topic cache scan failed", "error", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn("topic cache invalidate failed", "error", err)
	}
}

func (c *redisTopicCache) Close() error {
	return c.rdb.Close()
}

type memoryEntry struct {
	topics  []models.Topic
	expires time.Time
}

type MemoryTopicCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryTopicCache(ttl time.Duration) *MemoryTopicCache {
	return &MemoryTopicCache{ttl: ttl, entries: map[string]memoryEntry{}, now: time.Now}
}

func (c *MemoryTopicCache) Get(_ context.Context, category string) ([]models.Topic, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[category]
	if !ok || c.now().After(e.expires) {
		delete(c.entries, category)
		return nil, false
	}
	return append([]models.Topic(nil), e.topics...), true
}

func (c *MemoryTopicCache) Set(_ context.Context, category string, topics []models.Topic) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[category] = memoryEntry{
		topics:  append([]models.Topic(nil), topics...),
		expires: c.now().Add(c.ttl),
	}
}

func (c *MemoryTopicCache) Invalidate(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]memoryEntry{}
}

func (c *MemoryTopicCache) Close() error { return nil }
