// Package lock provides per-record lockers for the service layer.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrTimeout = errors.New("lock wait timed out")

// Nop never blocks. Version checks in the store are enough on their own.
type Nop struct{}

func (Nop) Lock(context.Context, string) (func(), error) { return func() {}, nil }

// release deletes the key only while it still holds our token.
var release = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// Redis is a single-writer-per-key lock on SET NX PX.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	poll   time.Duration
	log    *slog.Logger
}

func NewRedis(client *redis.Client, ttl, wait time.Duration, log *slog.Logger) *Redis {
	if log == nil {
		log = slog.Default()
	}
	return &Redis{
		client: client,
		ttl:    ttl,
		wait:   wait,
		poll:   10 * time.Millisecond,
		log:    log.With("component", "lock"),
	}
}

// Lock blocks until key is free, ctx ends, or the wait budget runs out.
func (l *Redis) Lock(ctx context.Context, key string) (func(), error) {
	k := "lock:" + key
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, k, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			return func() { l.unlock(k, token) }, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("acquire %s: %w", key, ErrTimeout)
		}
		t := time.NewTimer(l.poll)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

func (l *Redis) unlock(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := release.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
		l.log.Warn("lock release failed", "key", key, "error", err)
	}
}
