package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redgraph/models"
)

func TestUpsertCommentOverwrites(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner, u := e.register(t, "owner"), e.register(t, "u")
	p := e.createPost(t, owner.ID, "pic")

	created, err := e.svc.UpsertComment(ctx, p.ID, u.ID, "hi")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = e.svc.UpsertComment(ctx, p.ID, u.ID, "hello")
	require.NoError(t, err)
	assert.False(t, created)

	got := e.post(t, p.ID)
	require.Len(t, got.Comments, 1)
	assert.Equal(t, u.ID, got.Comments[0].User)
	assert.Equal(t, "hello", got.Comments[0].Text)
}

func TestUpsertCommentOnePerUser(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner, a, b := e.register(t, "owner"), e.register(t, "a"), e.register(t, "b")
	p := e.createPost(t, owner.ID, "pic")

	for _, step := range []struct{ user, text string }{
		{a.ID, "1"}, {b.ID, "2"}, {a.ID, "3"}, {owner.ID, "4"}, {b.ID, "5"}, {a.ID, "6"},
	} {
		_, err := e.svc.UpsertComment(ctx, p.ID, step.user, step.text)
		require.NoError(t, err)
	}

	got := e.post(t, p.ID)
	per := map[string]int{}
	for _, c := range got.Comments {
		per[c.User]++
	}
	assert.Equal(t, map[string]int{a.ID: 1, b.ID: 1, owner.ID: 1}, per)
	assert.Equal(t, "6", got.Comments[got.CommentBy(a.ID)].Text)
}

func TestUpsertCommentCollapsesDuplicates(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner, u := e.register(t, "owner"), e.register(t, "u")
	p := e.createPost(t, owner.ID, "pic")

	raw := e.post(t, p.ID)
	raw.Comments = []models.Comment{
		{ID: "c1", User: u.ID, Text: "one", CreatedAt: time.Now()},
		{ID: "c2", User: u.ID, Text: "two", CreatedAt: time.Now()},
	}
	require.NoError(t, e.db.Posts().Save(ctx, raw))

	_, err := e.svc.UpsertComment(ctx, p.ID, u.ID, "three")
	require.NoError(t, err)
	got := e.post(t, p.ID)
	require.Len(t, got.Comments, 1)
	assert.Equal(t, "c1", got.Comments[0].ID)
	assert.Equal(t, "three", got.Comments[0].Text)
}

func TestUpsertCommentValidation(t *testing.T) {
	e := newEnv(t)
	u := e.register(t, "u")
	p := e.createPost(t, u.ID, "pic")

	_, err := e.svc.UpsertComment(context.Background(), p.ID, u.ID, "   ")
	requireKind(t, KindInvalidArgument, err)

	_, err = e.svc.UpsertComment(context.Background(), "missing", u.ID, "hi")
	requireKind(t, KindNotFound, err)
}

func TestDeleteComment(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*env, *models.Post, *models.User, *models.User, *models.User) {
		e := newEnv(t)
		owner, a, b := e.register(t, "owner"), e.register(t, "a"), e.register(t, "b")
		p := e.createPost(t, owner.ID, "pic")
		_, err := e.svc.UpsertComment(ctx, p.ID, a.ID, "from a")
		require.NoError(t, err)
		_, err = e.svc.UpsertComment(ctx, p.ID, b.ID, "from b")
		require.NoError(t, err)
		return e, e.post(t, p.ID), owner, a, b
	}

	t.Run("owner removes by id", func(t *testing.T) {
		e, p, owner, a, _ := setup(t)
		id := p.Comments[p.CommentBy(a.ID)].ID

		n, err := e.svc.DeleteComment(ctx, p.ID, owner.ID, id)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		got := e.post(t, p.ID)
		assert.Equal(t, -1, got.CommentBy(a.ID))
		assert.Len(t, got.Comments, 1)
	})

	t.Run("owner unknown id is a no-op", func(t *testing.T) {
		e, p, owner, _, _ := setup(t)

		n, err := e.svc.DeleteComment(ctx, p.ID, owner.ID, "no-such-comment")
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		assert.Len(t, e.post(t, p.ID).Comments, 2)
	})

	t.Run("owner needs an id", func(t *testing.T) {
		e, p, owner, _, _ := setup(t)

		_, err := e.svc.DeleteComment(ctx, p.ID, owner.ID, "")
		requireKind(t, KindInvalidArgument, err)
		assert.Len(t, e.post(t, p.ID).Comments, 2)
	})

	t.Run("commenter removes own and id is ignored", func(t *testing.T) {
		e, p, _, a, b := setup(t)
		bComment := p.Comments[p.CommentBy(b.ID)].ID

		n, err := e.svc.DeleteComment(ctx, p.ID, a.ID, bComment)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		got := e.post(t, p.ID)
		assert.Equal(t, -1, got.CommentBy(a.ID))
		assert.NotEqual(t, -1, got.CommentBy(b.ID))
	})

	t.Run("nothing to remove", func(t *testing.T) {
		e, p, _, a, _ := setup(t)
		_, err := e.svc.DeleteComment(ctx, p.ID, a.ID, "")
		require.NoError(t, err)

		n, err := e.svc.DeleteComment(ctx, p.ID, a.ID, "")
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("missing post", func(t *testing.T) {
		e, _, _, a, _ := setup(t)
		_, err := e.svc.DeleteComment(ctx, "missing", a.ID, "")
		requireKind(t, KindNotFound, err)
	})
}
