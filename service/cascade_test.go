package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redgraph/models"
	"redgraph/store"
	"redgraph/store/storetest"
)

func follow(t *testing.T, e *env, actor, target string) {
	t.Helper()
	applied, err := e.svc.ToggleFollow(context.Background(), actor, target)
	require.NoError(t, err)
	require.Equal(t, Added, applied)
}

func TestDeleteUserCascades(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.register(t, "u")
	f1, f2 := e.register(t, "f1"), e.register(t, "f2")
	other := e.register(t, "other")

	var posts []string
	for _, c := range []string{"one", "two", "three"} {
		posts = append(posts, e.createPost(t, u.ID, c).ID)
	}
	keep := e.createPost(t, other.ID, "stays")
	follow(t, e, f1.ID, u.ID)
	follow(t, e, f2.ID, u.ID)
	follow(t, e, u.ID, f1.ID)

	res, err := e.svc.DeleteUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, res.PostsDeleted)
	assert.Equal(t, 3, res.Unlinked)
	assert.Zero(t, res.Failed)
	assert.Empty(t, res.Failures)
	assert.True(t, res.UserDeleted)

	_, err = e.db.Users().Find(ctx, u.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	for _, id := range posts {
		_, err := e.db.Posts().Find(ctx, id)
		assert.ErrorIs(t, err, store.ErrNotFound)
	}
	assert.False(t, e.user(t, f1.ID).Following.Has(u.ID))
	assert.False(t, e.user(t, f1.ID).Followers.Has(u.ID))
	assert.False(t, e.user(t, f2.ID).Following.Has(u.ID))
	e.post(t, keep.ID)

	assert.Equal(t, 3, e.metrics.tasks["delete_post/done"])
	assert.Equal(t, 2, e.metrics.tasks["unlink_follower/done"])
	assert.Equal(t, 1, e.metrics.tasks["unlink_following/done"])
}

func TestDeleteUserLeavesNoReferences(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.register(t, "u")
	var others []*models.User
	for _, n := range []string{"a", "b", "c"} {
		o := e.register(t, n)
		others = append(others, o)
		follow(t, e, o.ID, u.ID)
		follow(t, e, u.ID, o.ID)
	}
	e.createPost(t, u.ID, "listed")

	// A post owned by u that u.Posts does not list.
	stray := storetest.NewPost(u.ID, "stray")
	require.NoError(t, e.db.Posts().Create(ctx, stray))

	res, err := e.svc.DeleteUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.PostsDeleted)

	all, err := e.db.Users().FindAll(ctx, store.UserFilter{})
	require.NoError(t, err)
	for _, o := range all {
		assert.False(t, o.Following.Has(u.ID), o.Name)
		assert.False(t, o.Followers.Has(u.ID), o.Name)
	}
	owned, err := e.db.Posts().FindAll(ctx, store.PostFilter{Owners: []string{u.ID}})
	require.NoError(t, err)
	assert.Empty(t, owned)
}

func TestDeleteUserToleratesFailedTask(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.register(t, "u")
	f1, f2, f3 := e.register(t, "f1"), e.register(t, "f2"), e.register(t, "f3")
	for _, f := range []*models.User{f1, f2, f3} {
		follow(t, e, f.ID, u.ID)
	}

	e.users.onSave = func(_ context.Context, x *models.User) error {
		if x.ID == f2.ID {
			return errors.New("disk full")
		}
		return nil
	}

	res, err := e.svc.DeleteUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Unlinked)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, f2.ID, res.Failures[0].ID)
	assert.Equal(t, "unlink_follower", res.Failures[0].Task)
	assert.Contains(t, res.Failures[0].Error, "disk full")

	assert.False(t, res.UserDeleted)

	assert.False(t, e.user(t, f1.ID).Following.Has(u.ID))
	assert.False(t, e.user(t, f3.ID).Following.Has(u.ID))
	assert.True(t, e.user(t, f2.ID).Following.Has(u.ID))
	assert.Equal(t, u.ID, e.user(t, u.ID).ID, "user kept while a dependent still points at it")
}

func TestDeleteUserRetryFinishesFailedTask(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.register(t, "u")
	f1, f2 := e.register(t, "f1"), e.register(t, "f2")
	follow(t, e, f1.ID, u.ID)
	follow(t, e, f2.ID, u.ID)
	e.createPost(t, u.ID, "one")

	e.users.onSave = func(_ context.Context, x *models.User) error {
		if x.ID == f2.ID {
			return errors.New("disk full")
		}
		return nil
	}
	res, err := e.svc.DeleteUser(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, 1, res.Failed)
	require.False(t, res.UserDeleted)

	e.users.onSave = nil
	res, err = e.svc.DeleteUser(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, res.UserDeleted)
	assert.Zero(t, res.Failed)
	assert.Equal(t, 1, res.Unlinked)
	assert.Zero(t, res.PostsDeleted)

	_, err = e.db.Users().Find(ctx, u.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	for _, id := range []string{f1.ID, f2.ID} {
		assert.False(t, e.user(t, id).Following.Has(u.ID))
	}
	owned, err := e.db.Posts().FindAll(ctx, store.PostFilter{Owners: []string{u.ID}})
	require.NoError(t, err)
	assert.Empty(t, owned)
}

func TestDeleteUserTaskTimeout(t *testing.T) {
	e := newEnv(t, func(o *Options) { o.TaskTimeout = 50 * time.Millisecond })
	ctx := context.Background()
	u := e.register(t, "u")
	slow, fast := e.register(t, "slow"), e.register(t, "fast")
	follow(t, e, slow.ID, u.ID)
	follow(t, e, fast.ID, u.ID)

	e.users.onSave = func(ctx context.Context, x *models.User) error {
		if x.ID == slow.ID {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}

	res, err := e.svc.DeleteUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Unlinked)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, slow.ID, res.Failures[0].ID)
	assert.False(t, res.UserDeleted)
	assert.False(t, e.user(t, fast.ID).Following.Has(u.ID))
}

func TestDeleteUserSkipsMissingDependents(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.register(t, "u")
	f := e.register(t, "f")
	follow(t, e, f.ID, u.ID)

	raw := e.user(t, u.ID)
	raw.Posts = append(raw.Posts, "ghost-post")
	raw.Following.Add("ghost-user")
	require.NoError(t, e.db.Users().Save(ctx, raw))

	res, err := e.svc.DeleteUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 1, res.Unlinked)
	assert.Zero(t, res.Failed)
}

func TestDeleteUserKeepsPostsOfOthers(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u, other := e.register(t, "u"), e.register(t, "other")
	theirs := e.createPost(t, other.ID, "not yours")

	raw := e.user(t, u.ID)
	raw.Posts = append(raw.Posts, theirs.ID)
	require.NoError(t, e.db.Users().Save(ctx, raw))

	res, err := e.svc.DeleteUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Zero(t, res.PostsDeleted)
	assert.Equal(t, 1, res.Skipped)
	e.post(t, theirs.ID)
}

func TestDeleteUserRemovesImages(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.register(t, "u")
	p, err := e.svc.CreatePost(ctx, u.ID, PostInput{
		Caption: "with image",
		Image:   &Upload{Filename: "a.png", ContentType: "image/png", Size: 3, Body: strings.NewReader("png")},
	})
	require.NoError(t, err)

	_, err = e.svc.DeleteUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{p.Image.PublicID}, e.media.removed)
}

func TestDeleteUserNotFound(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.DeleteUser(context.Background(), "nobody")
	requireKind(t, KindNotFound, err)
}

func TestDeletePost(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner, other := e.register(t, "owner"), e.register(t, "other")
	p, err := e.svc.CreatePost(ctx, owner.ID, PostInput{
		Caption: "pic",
		Image:   &Upload{Filename: "b.jpg", Body: strings.NewReader("jpg")},
	})
	require.NoError(t, err)

	err = e.svc.DeletePost(ctx, p.ID, other.ID)
	requireKind(t, KindUnauthorized, err)
	e.post(t, p.ID)
	assert.Contains(t, e.user(t, owner.ID).Posts, p.ID)

	require.NoError(t, e.svc.DeletePost(ctx, p.ID, owner.ID))
	_, err = e.db.Posts().Find(ctx, p.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NotContains(t, e.user(t, owner.ID).Posts, p.ID)
	assert.Equal(t, []string{p.Image.PublicID}, e.media.removed)

	err = e.svc.DeletePost(ctx, p.ID, owner.ID)
	requireKind(t, KindNotFound, err)
}

func TestDeletePostUnlinksBeforeDelete(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := e.register(t, "owner")
	p := e.createPost(t, owner.ID, "pic")

	e.posts.onDelete = func(string) error { return errors.New("disk full") }

	err := e.svc.DeletePost(ctx, p.ID, owner.ID)
	requireKind(t, KindInternal, err)
	assert.NotContains(t, e.user(t, owner.ID).Posts, p.ID)
	e.post(t, p.ID)

	e.posts.onDelete = nil
	require.NoError(t, e.svc.DeletePost(ctx, p.ID, owner.ID))
}
