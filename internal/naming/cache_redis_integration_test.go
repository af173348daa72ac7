//go:build integration

package naming

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ttauveron/gcp-iam-watcher/pkg/testutil/containers"
)

// Resolutions written by one resolver instance must be readable by another
// sharing the same Redis, without touching the inner resolver again.
func TestCachedResolverSharesViaRedis(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	require.NoError(t, rc.FlushAll(context.Background()))

	res := Resource{Kind: KindFolder, ID: "77", Display: "Ops (*folder-level*)"}

	first := &countingResolver{res: res}
	a := NewCachedResolver(first, time.Minute, rc.Client, discard(), nil)

	got, err := a.Resolve(context.Background(), "folders/77")
	require.NoError(t, err)
	assert.Equal(t, res, got)
	assert.Equal(t, 1, first.calls)

	// A fresh instance with a cold local cache hits Redis, not the inner
	// resolver.
	second := &countingResolver{res: Resource{Display: "should not be used"}}
	b := NewCachedResolver(second, time.Minute, rc.Client, discard(), nil)

	got, err = b.Resolve(context.Background(), "folders/77")
	require.NoError(t, err)
	assert.Equal(t, res, got)
	assert.Equal(t, 0, second.calls)
}

func TestCachedResolverRedisEntriesExpire(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	require.NoError(t, rc.FlushAll(context.Background()))

	inner := &countingResolver{res: Resource{Kind: KindProject, ID: "p", Display: "P"}}
	c := NewCachedResolver(inner, time.Second, rc.Client, discard(), nil)

	_, err := c.Resolve(context.Background(), "projects/1")
	require.NoError(t, err)

	ttl, err := rc.Client.TTL(context.Background(), "naming:projects/1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Second)
}

func TestCachedResolverSurvivesCorruptCacheEntry(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	require.NoError(t, rc.FlushAll(context.Background()))

	require.NoError(t, rc.Client.Set(context.Background(), "naming:projects/9", "not-json", time.Minute).Err())

	inner := &countingResolver{res: Resource{Kind: KindProject, ID: "nine", Display: "Nine"}}
	c := NewCachedResolver(inner, time.Minute, rc.Client, discard(), nil)

	got, err := c.Resolve(context.Background(), "projects/9")
	require.NoError(t, err)
	assert.Equal(t, "nine", got.ID)
	assert.Equal(t, 1, inner.calls)
}
