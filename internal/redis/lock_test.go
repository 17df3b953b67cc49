package redisclient

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestWithLockReleasesKeys(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := NewRedisLocker(client, time.Second, 100*time.Millisecond)

	var ran bool
	err := locker.WithLock(context.Background(), []string{"prof:1:2026-10-19:09:00"}, func(ctx context.Context) error {
		ran = true
		assert.True(t, mr.Exists("lock:prof:1:2026-10-19:09:00"))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, mr.Exists("lock:prof:1:2026-10-19:09:00"))
}

func TestWithLockGivesUpAfterWait(t *testing.T) {
	mr, client := setupTestRedis(t)
	require.NoError(t, mr.Set("lock:busy", "someone-else"))

	locker := NewRedisLocker(client, time.Second, 50*time.Millisecond)
	err := locker.WithLock(context.Background(), []string{"busy"}, func(ctx context.Context) error {
		t.Fatal("critical section must not run")
		return nil
	})
	assert.ErrorIs(t, err, ErrLockNotAcquired)
	assert.True(t, mr.Exists("lock:busy"), "foreign lock must not be released")
}

func TestWithLockSerializesCallers(t *testing.T) {
	_, client := setupTestRedis(t)
	locker := NewRedisLocker(client, 2*time.Second, 2*time.Second)

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(context.Background(), []string{"b", "a"}, func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
}

func TestNopLockerRunsFn(t *testing.T) {
	called := false
	err := NopLocker{}.WithLock(context.Background(), []string{"x"}, func(ctx context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}
