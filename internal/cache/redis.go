package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// EmbeddingCache stores embeddings in Redis keyed by a digest of the text they
// were computed from. Only masked text is ever used as a key source.
type EmbeddingCache struct {
	client *redis.Client
	config Config
	logger *zap.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// NewEmbeddingCache connects to Redis and verifies the connection.
func NewEmbeddingCache(config Config, logger *zap.Logger) (*EmbeddingCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.MaxConnections > 0 {
		opts.PoolSize = config.MaxConnections
	}
	opts.MinIdleConns = config.MinIdleConns

	cache := NewEmbeddingCacheWithClient(redis.NewClient(opts), config, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := cache.Ping(ctx); err != nil {
		_ = cache.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Embedding cache initialized",
		zap.String("redis_url", maskRedisURL(config.RedisURL)),
		zap.Int("max_connections", opts.PoolSize),
		zap.Duration("default_ttl", config.DefaultTTL))

	return cache, nil
}

// NewEmbeddingCacheWithClient wraps an existing client without pinging it.
func NewEmbeddingCacheWithClient(client *redis.Client, config Config, logger *zap.Logger) *EmbeddingCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmbeddingCache{
		client: client,
		config: config,
		logger: logger,
	}
}

// Ping tests the Redis connection
func (c *EmbeddingCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Get returns the cached embedding of text. A miss is reported as ok=false
// with a nil error.
func (c *EmbeddingCache) Get(ctx context.Context, text string) ([]float32, bool, error) {
	key := c.Key(text)

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		c.misses.Add(1)
		return nil, false, fmt.Errorf("cache lookup failed: %w", err)
	}

	embedding, err := decodeEmbedding(data)
	if err != nil {
		c.logger.Warn("Dropping corrupted cache entry", zap.String("key", key), zap.Error(err))
		c.client.Del(ctx, key)
		c.misses.Add(1)
		return nil, false, nil
	}

	c.hits.Add(1)
	return embedding, true, nil
}

// Set caches the embedding of text with the default TTL.
func (c *EmbeddingCache) Set(ctx context.Context, text string, embedding []float32) error {
	data, err := encodeEmbedding(embedding)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.Key(text), data, c.config.DefaultTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache embedding: %w", err)
	}
	return nil
}

// SetBatch caches several embeddings in one pipeline round trip.
func (c *EmbeddingCache) SetBatch(ctx context.Context, texts []string, embeddings [][]float32) error {
	if len(texts) != len(embeddings) {
		return fmt.Errorf("texts and embeddings length mismatch: %d != %d", len(texts), len(embeddings))
	}
	if len(texts) == 0 {
		return nil
	}

	pipe := c.client.Pipeline()
	queued := 0
	for i, text := range texts {
		if embeddings[i] == nil {
			continue
		}
		data, err := encodeEmbedding(embeddings[i])
		if err != nil {
			c.logger.Error("Failed to encode embedding for batch caching", zap.Error(err))
			continue
		}
		pipe.Set(ctx, c.Key(text), data, c.config.DefaultTTL)
		queued++
	}
	if queued == 0 {
		return nil
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("batch cache operation failed: %w", err)
	}

	c.logger.Debug("Batch cache operation completed", zap.Int("cached_embeddings", queued))
	return nil
}

// GetStats returns cache performance statistics
func (c *EmbeddingCache) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}

	info, err := c.client.Info(ctx, "memory").Result()
	if err != nil {
		return stats, fmt.Errorf("failed to get Redis info: %w", err)
	}
	stats.MemoryUsage = parseUsedMemory(info)

	if keys, err := c.client.DBSize(ctx).Result(); err == nil {
		stats.TotalKeys = keys
	}

	return stats, nil
}

// Clear removes every cached embedding under the configured prefix.
func (c *EmbeddingCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.config.KeyPrefix+":emb:*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}

	const batchSize = 100
	for i := 0; i < len(keys); i += batchSize {
		end := i + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		if err := c.client.Del(ctx, keys[i:end]...).Err(); err != nil {
			return fmt.Errorf("failed to delete cache keys: %w", err)
		}
	}

	c.logger.Info("Embedding cache cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

// Close closes the Redis connection
func (c *EmbeddingCache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Key returns the Redis key for text.
func (c *EmbeddingCache) Key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.config.KeyPrefix + ":emb:" + hex.EncodeToString(sum[:8])
}

func encodeEmbedding(embedding []float32) ([]byte, error) {
	data, err := json.Marshal(embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding: %w", err)
	}
	return data, nil
}

func decodeEmbedding(data []byte) ([]float32, error) {
	var embedding []float32
	if err := json.Unmarshal(data, &embedding); err != nil {
		return nil, err
	}
	if len(embedding) == 0 {
		return nil, errors.New("empty embedding")
	}
	return embedding, nil
}

func parseUsedMemory(info string) int64 {
	for _, line := range strings.Split(info, "\r\n") {
		if v, ok := strings.CutPrefix(line, "used_memory:"); ok {
			if mem, err := strconv.ParseInt(v, 10, 64); err == nil {
				return mem
			}
		}
	}
	return 0
}

// maskRedisURL masks the password of a Redis URL for logging
func maskRedisURL(raw string) string {
	at := strings.LastIndex(raw, "@")
	if at < 0 {
		return raw
	}
	userInfo := raw[:at]
	colon := strings.LastIndex(userInfo, ":")
	if colon < 0 || colon < strings.Index(userInfo, "//") {
		return raw
	}
	return userInfo[:colon+1] + "***" + raw[at:]
}
