package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingCacheRepo struct{}

func (failingCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	return errors.New("redis down")
}

func (failingCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return errors.New("redis down")
}

func (failingCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	return errors.New("redis down")
}

func (failingCacheRepo) Incr(ctx context.Context, key string) (int64, error) {
	return 0, errors.New("redis down")
}

func TestCacheServiceRoundTrip(t *testing.T) {
	repo := &memoryCacheRepo{}
	cache := NewCacheService(repo, nil, 0, nil, true)
	require.True(t, cache.Enabled())

	var out []string
	hit, err := cache.Get(context.Background(), "enrollments:admin:k", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, cache.Set(context.Background(), "enrollments:admin:k", []string{"a"}, 0))
	hit, err = cache.Get(context.Background(), "enrollments:admin:k", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []string{"a"}, out)

	cache.InvalidateEnrollments(context.Background())
	hit, _ = cache.Get(context.Background(), "enrollments:admin:k", &out)
	assert.False(t, hit)
}

func TestCacheServiceDisabledOrFailing(t *testing.T) {
	var nilCache *CacheService
	assert.False(t, nilCache.Enabled())
	hit, err := nilCache.Get(context.Background(), "k", &struct{}{})
	assert.NoError(t, err)
	assert.False(t, hit)
	assert.NotPanics(t, func() { nilCache.InvalidateEnrollments(context.Background()) })

	disabled := NewCacheService(&memoryCacheRepo{}, nil, time.Minute, nil, false)
	assert.NoError(t, disabled.Set(context.Background(), "k", 1, 0))

	failing := NewCacheService(failingCacheRepo{}, nil, time.Minute, nil, true)
	hit, err = failing.Get(context.Background(), "k", &struct{}{})
	assert.Error(t, err)
	assert.False(t, hit)
	assert.NotPanics(t, func() { failing.InvalidateEnrollments(context.Background()) })
	_, cacheable := failing.EnrollmentsGeneration(context.Background())
	assert.False(t, cacheable)
}

func TestCacheServiceInvalidationBumpsGeneration(t *testing.T) {
	cache := NewCacheService(&memoryCacheRepo{}, nil, time.Minute, nil, true)

	generation, cacheable := cache.EnrollmentsGeneration(context.Background())
	require.True(t, cacheable)
	assert.Zero(t, generation)

	cache.InvalidateEnrollments(context.Background())
	cache.InvalidateEnrollments(context.Background())
	generation, cacheable = cache.EnrollmentsGeneration(context.Background())
	require.True(t, cacheable)
	assert.Equal(t, int64(2), generation)
}
