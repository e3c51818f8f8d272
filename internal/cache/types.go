package cache

import (
	"errors"
	"time"

	"github.com/raaihank/compliance-sentinel/internal/compliance"
)

// ErrCacheMiss is returned by Get when no usable entry exists.
var ErrCacheMiss = errors.New("cache miss")

// CachedResult is the stored form of a check result.
type CachedResult struct {
	Result       compliance.Result `json:"result"`
	Platform     string            `json:"platform"`
	RulesVersion string            `json:"rules_version"`
	CachedAt     time.Time         `json:"cached_at"`
	TTL          int64             `json:"ttl"`
}

// Stats represents cache performance statistics
type Stats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
	TotalKeys   int64   `json:"total_keys"`
	MemoryUsage int64   `json:"memory_usage_bytes"`
}
