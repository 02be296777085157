package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisLock_AcquireRelease(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()

	lock := NewRedisLock(client, "snapshot:org-1", 30*time.Second)
	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second holder for the same org is shut out
	other := NewRedisLock(client, "snapshot:org-1", 30*time.Second)
	ok, err = other.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, lock.Release(ctx))

	ok, err = other.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLock_PerOrgKeysDoNotContend(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()

	a := NewRedisLock(client, "snapshot:org-1", 30*time.Second)
	b := NewRedisLock(client, "snapshot:org-2", 30*time.Second)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLock_ReleaseDoesNotStealOthersLock(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()

	holder := NewRedisLock(client, "snapshot:org-1", 30*time.Second)
	ok, err := holder.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// A lock instance that never acquired must not delete the holder's key
	stale := NewRedisLock(client, "snapshot:org-1", 30*time.Second)
	require.NoError(t, stale.Release(ctx))

	ok, err = stale.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisLock_ExtendAfterExpiry(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()

	lock := NewRedisLock(client, "snapshot:org-1", 1*time.Second)
	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, lock.Extend(ctx, 5*time.Second))

	mr.FastForward(10 * time.Second)

	err = lock.Extend(ctx, 5*time.Second)
	assert.ErrorIs(t, err, ErrNotHeld)
}

func TestNewLock_PrefersRedis(t *testing.T) {
	_, client := newTestRedis(t)

	lock := NewLock(client, nil, "snapshot:org-1", time.Second)
	_, ok := lock.(*RedisLock)
	assert.True(t, ok)

	lock = NewLock(nil, nil, "snapshot:org-1", time.Second)
	_, ok = lock.(*PGAdvisoryLock)
	assert.True(t, ok)
}
