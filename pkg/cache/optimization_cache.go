package cache

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/cfl-optimizer/internal/normalizer"
	"github.com/stitts-dev/cfl-optimizer/internal/optimizer"
)

// OptimizationCacheService handles caching for optimization results
type OptimizationCacheService struct {
	cache  Cache
	ttl    time.Duration
	logger *logrus.Logger
}

// NewOptimizationCacheService creates a new optimization cache service
func NewOptimizationCacheService(cache Cache, ttl time.Duration, logger *logrus.Logger) *OptimizationCacheService {
	return &OptimizationCacheService{cache: cache, ttl: ttl, logger: logger}
}

// RequestKey hashes any JSON-encodable request into a stable cache key.
func RequestKey(request interface{}) (string, error) {
	data, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request for cache key: %w", err)
	}
	return fmt.Sprintf("%x", md5.Sum(data)), nil
}

// CachedOptimization is a stored optimize response: the engine result and,
// when the pool came from feed records, the normalization report.
type CachedOptimization struct {
	Result        *optimizer.Result  `json:"result"`
	Normalization *normalizer.Report `json:"normalization,omitempty"`
}

// SetOptimizationResult stores an optimization result in cache
func (c *OptimizationCacheService) SetOptimizationResult(ctx context.Context, key string, entry *CachedOptimization) error {
	if entry == nil || entry.Result == nil {
		return errors.New("cannot cache an empty optimization result")
	}
	fullKey := "optimization:" + key
	if err := c.cache.Set(ctx, fullKey, entry, c.ttl); err != nil {
		return fmt.Errorf("failed to set optimization result in cache: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"cache_key":     fullKey,
		"expiration":    c.ttl,
		"lineups_count": len(entry.Result.Lineups),
	}).Debug("Cached optimization result")

	return nil
}

// GetOptimizationResult retrieves an optimization result from cache. A miss
// returns (nil, nil).
func (c *OptimizationCacheService) GetOptimizationResult(ctx context.Context, key string) (*CachedOptimization, error) {
	fullKey := "optimization:" + key
	var entry CachedOptimization
	if err := c.cache.Get(ctx, fullKey, &entry); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get optimization result from cache: %w", err)
	}
	if entry.Result == nil {
		return nil, nil
	}

	c.logger.WithFields(logrus.Fields{
		"cache_key":     fullKey,
		"lineups_count": len(entry.Result.Lineups),
	}).Debug("Retrieved optimization result from cache")

	return &entry, nil
}
