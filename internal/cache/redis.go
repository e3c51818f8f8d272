package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/raaihank/compliance-sentinel/internal/compliance"
	"github.com/raaihank/compliance-sentinel/internal/config"
	"github.com/raaihank/compliance-sentinel/internal/logger"
	"go.uber.org/zap"
)

// ResultCache stores check results in Redis, keyed by the rules version,
// platform and content so that a rules change never serves stale results.
type ResultCache struct {
	client *redis.Client
	config config.CacheConfig
	logger *logger.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// NewResultCache connects to Redis and verifies the connection.
func NewResultCache(ctx context.Context, cfg config.CacheConfig, log *logger.Logger) (*ResultCache, error) {
	if log == nil {
		log = logger.NewNop()
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if cfg.MaxConnections > 0 {
		opts.PoolSize = cfg.MaxConnections
	}
	opts.MinIdleConns = cfg.MinIdleConns

	rc := &ResultCache{
		client: redis.NewClient(opts),
		config: cfg,
		logger: log.WithComponent("cache"),
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rc.client.Ping(pingCtx).Err(); err != nil {
		rc.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	rc.logger.Info("Result cache initialized",
		zap.String("redis_url", maskRedisURL(cfg.RedisURL)),
		zap.Int("max_connections", opts.PoolSize),
		zap.Duration("default_ttl", cfg.DefaultTTL))

	return rc, nil
}

// Get returns the cached result for content on platform, or ErrCacheMiss.
// Corrupted entries are deleted and reported as misses.
func (rc *ResultCache) Get(ctx context.Context, platform, content string) (*compliance.Result, error) {
	key := rc.Key(platform, content)

	data, err := rc.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		rc.misses.Add(1)
		rc.logger.Debug("Cache miss", zap.String("key", key))
		return nil, ErrCacheMiss
	}
	if err != nil {
		rc.misses.Add(1)
		return nil, fmt.Errorf("cache lookup failed: %w", err)
	}

	var cached CachedResult
	if err := json.Unmarshal(data, &cached); err != nil {
		rc.logger.Warn("Dropping corrupted cache entry", zap.String("key", key), zap.Error(err))
		rc.client.Del(ctx, key)
		rc.misses.Add(1)
		return nil, ErrCacheMiss
	}

	rc.hits.Add(1)
	rc.logger.Debug("Cache hit", zap.String("key", key), zap.String("platform", platform))
	return &cached.Result, nil
}

// Set stores result for content on platform with the configured TTL.
func (rc *ResultCache) Set(ctx context.Context, platform, content string, result compliance.Result) error {
	key := rc.Key(platform, content)

	data, err := json.Marshal(CachedResult{
		Result:       result,
		Platform:     platform,
		RulesVersion: compliance.RulesVersion,
		CachedAt:     time.Now().UTC(),
		TTL:          int64(rc.config.DefaultTTL.Seconds()),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal result for caching: %w", err)
	}

	if err := rc.client.Set(ctx, key, data, rc.config.DefaultTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache result: %w", err)
	}
	return nil
}

// Stats returns hit/miss counters together with Redis key and memory figures.
func (rc *ResultCache) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		Hits:   rc.hits.Load(),
		Misses: rc.misses.Load(),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}

	info, err := rc.client.Info(ctx, "memory").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get Redis info: %w", err)
	}
	stats.MemoryUsage = parseUsedMemory(info)

	if keys, err := rc.client.DBSize(ctx).Result(); err == nil {
		stats.TotalKeys = keys
	}

	return stats, nil
}

// Clear removes every entry under the configured key prefix.
func (rc *ResultCache) Clear(ctx context.Context) error {
	iter := rc.client.Scan(ctx, 0, rc.config.KeyPrefix+":check:*", 0).Iterator()
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
		if err := rc.client.Del(ctx, keys[i:end]...).Err(); err != nil {
			return fmt.Errorf("failed to delete cache keys: %w", err)
		}
	}

	rc.logger.Info("Cache cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

// Close closes the Redis connection
func (rc *ResultCache) Close() error {
	if rc.client != nil {
		return rc.client.Close()
	}
	return nil
}

// Key derives the cache key for content checked against platform.
func (rc *ResultCache) Key(platform, content string) string {
	return resultKey(rc.config.KeyPrefix, platform, content)
}

func resultKey(prefix, platform, content string) string {
	hasher := sha256.New()
	hasher.Write([]byte(compliance.RulesVersion))
	hasher.Write([]byte{0})
	hasher.Write([]byte(platform))
	hasher.Write([]byte{0})
	hasher.Write([]byte(content))

	hash := hex.EncodeToString(hasher.Sum(nil))
	return fmt.Sprintf("%s:check:%s", prefix, hash[:32])
}

func parseUsedMemory(info string) int64 {
	for _, line := range strings.Split(info, "\r\n") {
		if memStr, ok := strings.CutPrefix(line, "used_memory:"); ok {
			if mem, err := strconv.ParseInt(memStr, 10, 64); err == nil {
				return mem
			}
		}
	}
	return 0
}

// maskRedisURL hides the password in a Redis URL for logging
func maskRedisURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid-url"
	}
	return u.Redacted()
}
