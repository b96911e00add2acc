package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheServiceHitAndMiss(t *testing.T) {
	metrics := NewMetricsService()
	svc := NewCacheService(newMemoryCache(), metrics, time.Minute, nil, true)
	ctx := context.Background()

	var out map[string]int
	assert.False(t, svc.Get(ctx, "k", &out))

	svc.Set(ctx, "k", map[string]int{"a": 1}, 0)
	require.True(t, svc.Get(ctx, "k", &out))
	assert.Equal(t, 1, out["a"])

	snap := metrics.Snapshot()
	assert.Equal(t, uint64(1), snap.CacheHits)
	assert.Equal(t, uint64(1), snap.CacheMisses)
	assert.InDelta(t, 0.5, snap.CacheHitRatio, 1e-9)
}

func TestCacheServiceDisabled(t *testing.T) {
	store := newMemoryCache()
	svc := NewCacheService(store, nil, time.Minute, nil, false)

	svc.Set(context.Background(), "k", 1, time.Second)
	assert.Zero(t, store.len())
	var v int
	assert.False(t, svc.Get(context.Background(), "k", &v))

	var nilSvc *CacheService
	assert.False(t, nilSvc.Enabled())
}

func TestCacheServiceSwallowsErrors(t *testing.T) {
	store := newMemoryCache()
	store.err = errors.New("dial tcp: refused")
	svc := NewCacheService(store, nil, time.Minute, nil, true)

	assert.NotPanics(t, func() { svc.Set(context.Background(), "k", 1, 0) })
	var v int
	assert.False(t, svc.Get(context.Background(), "k", &v))
}
