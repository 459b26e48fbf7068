package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewRedis(client, time.Second, 50*time.Millisecond, nil)
}

func TestRedisLockExclusive(t *testing.T) {
	mr, l := newRedis(t)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "user:1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:user:1"))

	_, err = l.Lock(ctx, "user:1")
	assert.ErrorIs(t, err, ErrTimeout)

	other, err := l.Lock(ctx, "user:2")
	require.NoError(t, err)
	other()

	unlock()
	assert.False(t, mr.Exists("lock:user:1"))

	again, err := l.Lock(ctx, "user:1")
	require.NoError(t, err)
	again()
}

func TestRedisLockExpires(t *testing.T) {
	mr, l := newRedis(t)
	ctx := context.Background()

	stale, err := l.Lock(ctx, "post:9")
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	fresh, err := l.Lock(ctx, "post:9")
	require.NoError(t, err)

	// The expired holder must not release the new holder's lock.
	stale()
	assert.True(t, mr.Exists("lock:post:9"))
	fresh()
	assert.False(t, mr.Exists("lock:post:9"))
}

func TestRedisLockContextCancelled(t *testing.T) {
	_, l := newRedis(t)
	l.wait = time.Minute

	unlock, err := l.Lock(context.Background(), "user:1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "user:1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRedisLockServerDown(t *testing.T) {
	mr, l := newRedis(t)
	mr.Close()

	_, err := l.Lock(context.Background(), "user:1")
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	unlock, err := Nop{}.Lock(context.Background(), "anything")
	require.NoError(t, err)
	unlock()
}
