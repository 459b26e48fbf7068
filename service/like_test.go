package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToggleLike(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner, fan := e.register(t, "owner"), e.register(t, "fan")
	p := e.createPost(t, owner.ID, "sunset")

	applied, err := e.svc.ToggleLike(ctx, p.ID, fan.ID)
	require.NoError(t, err)
	assert.Equal(t, Added, applied)
	assert.True(t, e.post(t, p.ID).Likes.Has(fan.ID))

	applied, err = e.svc.ToggleLike(ctx, p.ID, fan.ID)
	require.NoError(t, err)
	assert.Equal(t, Removed, applied)
	assert.Equal(t, 0, e.post(t, p.ID).Likes.Len())
}

func TestToggleLikeMissingPost(t *testing.T) {
	e := newEnv(t)
	fan := e.register(t, "fan")

	_, err := e.svc.ToggleLike(context.Background(), "missing", fan.ID)
	requireKind(t, KindNotFound, err)
}

func TestConcurrentLikesAllLand(t *testing.T) {
	const n = 16
	e := newEnv(t, func(o *Options) { o.RetryAttempts = 2 * n })
	owner := e.register(t, "owner")
	p := e.createPost(t, owner.ID, "crowd")

	ids := make([]string, n)
	for i := range ids {
		ids[i] = e.register(t, fmt.Sprintf("fan%d", i)).ID
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = e.svc.ToggleLike(context.Background(), p.ID, id)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	got := e.post(t, p.ID)
	assert.Equal(t, n, got.Likes.Len())
	for _, id := range ids {
		assert.True(t, got.Likes.Has(id))
	}
}
