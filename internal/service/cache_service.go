package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/academy-enrollment-api/pkg/errors"
)

// Cache key namespaces.
const (
	cacheKeyAdminEnrollments = "enrollments:admin:"
	cachePatternEnrollments  = "enrollments:*"
	// Lives outside the enrollments namespace so pattern deletes never reset it.
	cacheKeyEnrollmentsGeneration = "generation:enrollments"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
	Incr(ctx context.Context, key string) (int64, error)
}

// CacheService orchestrates cache operations and related metrics. A nil or
// disabled service behaves as an always-missing cache.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get attempts to retrieve a cached entry. It returns true when the cache was hit.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	duration := time.Since(start)
	if err != nil {
		s.metrics.RecordCacheOperation(false, duration)
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return false, nil
		}
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
	s.metrics.RecordCacheOperation(true, duration)
	return true, nil
}

// Set stores the value in cache.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// Invalidate removes cached values for the provided pattern. Failures are
// logged; a stale entry expires with its TTL.
func (s *CacheService) Invalidate(ctx context.Context, pattern string) {
	if !s.Enabled() {
		return
	}
	if err := s.repo.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
	}
}

// EnrollmentsGeneration returns the current enrollment cache generation.
// Readers must fetch it before loading data and embed it in their keys, so a
// projection computed before an invalidation is stored under a generation no
// later reader asks for. The bool is false when the cache must be bypassed.
func (s *CacheService) EnrollmentsGeneration(ctx context.Context) (int64, bool) {
	if !s.Enabled() {
		return 0, false
	}
	var generation int64
	if err := s.repo.Get(ctx, cacheKeyEnrollmentsGeneration, &generation); err != nil {
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return 0, true
		}
		s.logger.Warn("cache generation read failed", zap.Error(err))
		return 0, false
	}
	return generation, true
}

// InvalidateEnrollments bumps the enrollment generation and drops every cached
// enrollment projection.
func (s *CacheService) InvalidateEnrollments(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	if _, err := s.repo.Incr(ctx, cacheKeyEnrollmentsGeneration); err != nil {
		s.logger.Warn("cache generation bump failed", zap.Error(err))
	}
	s.Invalidate(ctx, cachePatternEnrollments)
}
