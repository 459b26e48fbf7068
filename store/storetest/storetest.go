// Package storetest holds the behaviour every store.Store backend must share.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redgraph/models"
	"redgraph/store"
)

// Opener returns a fresh, empty store. Cleanup is registered on t.
type Opener func(t *testing.T) store.Store

func Run(t *testing.T, open Opener) {
	t.Run("UserLifecycle", func(t *testing.T) { testUserLifecycle(t, open(t)) })
	t.Run("UserVersionConflict", func(t *testing.T) { testUserVersionConflict(t, open(t)) })
	t.Run("UserEmailUnique", func(t *testing.T) { testUserEmailUnique(t, open(t)) })
	t.Run("UserFilters", func(t *testing.T) { testUserFilters(t, open(t)) })
	t.Run("PostLifecycle", func(t *testing.T) { testPostLifecycle(t, open(t)) })
	t.Run("PostVersionConflict", func(t *testing.T) { testPostVersionConflict(t, open(t)) })
	t.Run("PostFilters", func(t *testing.T) { testPostFilters(t, open(t)) })
}

func NewUser(name string) *models.User {
	now := time.Now().UTC()
	return &models.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        name + "@example.com",
		PasswordHash: "hash-" + name,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func NewPost(owner, caption string) *models.Post {
	now := time.Now().UTC()
	return &models.Post{
		ID:        uuid.NewString(),
		Owner:     owner,
		Caption:   caption,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func testUserLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	users := s.Users()

	u := NewUser("ann")
	u.Posts = []string{"p1", "p2"}
	u.Following = models.NewIDSet("b")
	u.Followers = models.NewIDSet("c", "d")
	u.Avatar = models.Image{PublicID: "pid", URL: "http://x/pid"}
	require.NoError(t, users.Create(ctx, u))
	assert.Equal(t, int64(1), u.Version)

	got, err := users.Find(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Name, got.Name)
	assert.Equal(t, u.Email, got.Email)
	assert.Equal(t, "hash-ann", got.PasswordHash)
	assert.Equal(t, []string{"p1", "p2"}, got.Posts)
	assert.True(t, got.Following.Has("b"))
	assert.Equal(t, []string{"c", "d"}, got.Followers.Slice())
	assert.Equal(t, u.Avatar, got.Avatar)
	assert.Equal(t, int64(1), got.Version)
	assert.WithinDuration(t, u.CreatedAt, got.CreatedAt, time.Second)

	got.Name = "annie"
	got.Following.Remove("b")
	require.NoError(t, users.Save(ctx, got))
	assert.Equal(t, int64(2), got.Version)

	again, err := users.Find(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "annie", again.Name)
	assert.Equal(t, 0, again.Following.Len())
	assert.Equal(t, int64(2), again.Version)

	require.NoError(t, users.Delete(ctx, u.ID))
	_, err = users.Find(ctx, u.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, users.Delete(ctx, u.ID), store.ErrNotFound)
	assert.ErrorIs(t, users.Save(ctx, again), store.ErrNotFound)
}

func testUserVersionConflict(t *testing.T, s store.Store) {
	ctx := context.Background()
	users := s.Users()
	u := NewUser("bob")
	require.NoError(t, users.Create(ctx, u))

	a, err := users.Find(ctx, u.ID)
	require.NoError(t, err)
	b, err := users.Find(ctx, u.ID)
	require.NoError(t, err)

	a.Following.Add("x")
	require.NoError(t, users.Save(ctx, a))

	b.Following.Add("y")
	assert.ErrorIs(t, users.Save(ctx, b), store.ErrConflict)

	got, err := users.Find(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, got.Following.Slice(), "stale save must not land")
}

func testUserEmailUnique(t *testing.T, s store.Store) {
	ctx := context.Background()
	users := s.Users()
	a := NewUser("cat")
	require.NoError(t, users.Create(ctx, a))

	dup := NewUser("cat")
	assert.ErrorIs(t, users.Create(ctx, dup), store.ErrDuplicate)

	b := NewUser("dan")
	require.NoError(t, users.Create(ctx, b))
	b.Email = a.Email
	assert.ErrorIs(t, users.Save(ctx, b), store.ErrDuplicate)

	// a free address is fine and frees the old one
	b, err := users.Find(ctx, b.ID)
	require.NoError(t, err)
	b.Email = "dan2@example.com"
	require.NoError(t, users.Save(ctx, b))
	c := NewUser("dan")
	require.NoError(t, users.Create(ctx, c))
}

func testUserFilters(t *testing.T, s store.Store) {
	ctx := context.Background()
	users := s.Users()
	a, b, c := NewUser("eve"), NewUser("fay"), NewUser("gus")
	now := time.Now().UTC()
	b.ResetToken = "tok"
	b.ResetExpires = now.Add(time.Hour)
	c.ResetToken = "old"
	c.ResetExpires = now.Add(-time.Hour)
	for _, u := range []*models.User{a, b, c} {
		require.NoError(t, users.Create(ctx, u))
	}

	all, err := users.FindAll(ctx, store.UserFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byEmail, err := users.FindAll(ctx, store.UserFilter{Email: "FAY@example.com"})
	require.NoError(t, err)
	require.Len(t, byEmail, 1)
	assert.Equal(t, b.ID, byEmail[0].ID)

	byIDs, err := users.FindAll(ctx, store.UserFilter{IDs: []string{a.ID, c.ID}})
	require.NoError(t, err)
	assert.Len(t, byIDs, 2)

	live, err := users.FindAll(ctx, store.UserFilter{ResetToken: "tok", ResetAfter: now})
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, b.ID, live[0].ID)

	expired, err := users.FindAll(ctx, store.UserFilter{ResetToken: "old", ResetAfter: now})
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func testPostLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	posts := s.Posts()

	p := NewPost("owner", "hello")
	p.Image = models.Image{PublicID: "img", URL: "http://x/img"}
	p.Likes = models.NewIDSet("u1", "u2")
	p.Comments = []models.Comment{{ID: "c1", User: "u1", Text: "hi", CreatedAt: time.Now().UTC()}}
	require.NoError(t, posts.Create(ctx, p))
	assert.Equal(t, int64(1), p.Version)
	assert.ErrorIs(t, posts.Create(ctx, p), store.ErrDuplicate)

	got, err := posts.Find(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "owner", got.Owner)
	assert.Equal(t, "hello", got.Caption)
	assert.Equal(t, p.Image, got.Image)
	assert.Equal(t, []string{"u1", "u2"}, got.Likes.Slice())
	require.Len(t, got.Comments, 1)
	assert.Equal(t, "hi", got.Comments[0].Text)
	assert.Equal(t, "u1", got.Comments[0].User)

	got.Caption = "edited"
	got.Comments = append(got.Comments, models.Comment{ID: "c2", User: "u2", Text: "yo"})
	require.NoError(t, posts.Save(ctx, got))
	assert.Equal(t, int64(2), got.Version)

	again, err := posts.Find(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "edited", again.Caption)
	assert.Len(t, again.Comments, 2)

	require.NoError(t, posts.Delete(ctx, p.ID))
	_, err = posts.Find(ctx, p.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, posts.Delete(ctx, p.ID), store.ErrNotFound)
	assert.ErrorIs(t, posts.Save(ctx, again), store.ErrNotFound)
}

func testPostVersionConflict(t *testing.T, s store.Store) {
	ctx := context.Background()
	posts := s.Posts()
	p := NewPost("owner", "c")
	require.NoError(t, posts.Create(ctx, p))

	a, err := posts.Find(ctx, p.ID)
	require.NoError(t, err)
	b, err := posts.Find(ctx, p.ID)
	require.NoError(t, err)

	a.Likes.Add("u1")
	require.NoError(t, posts.Save(ctx, a))
	b.Likes.Add("u2")
	assert.ErrorIs(t, posts.Save(ctx, b), store.ErrConflict)
}

func testPostFilters(t *testing.T, s store.Store) {
	ctx := context.Background()
	posts := s.Posts()
	p1, p2, p3 := NewPost("a", "1"), NewPost("a", "2"), NewPost("b", "3")
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p1.CreatedAt = base
	p2.CreatedAt = base.Add(time.Hour)
	p3.CreatedAt = base.Add(2 * time.Hour)
	// inserted out of order so neither key nor insertion order passes for recency
	for _, p := range []*models.Post{p2, p3, p1} {
		p.UpdatedAt = p.CreatedAt
		require.NoError(t, posts.Create(ctx, p))
	}

	byOwner, err := posts.FindAll(ctx, store.PostFilter{Owners: []string{"a"}})
	require.NoError(t, err)
	assert.Len(t, byOwner, 2)

	byOwners, err := posts.FindAll(ctx, store.PostFilter{Owners: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, []string{p3.ID, p2.ID, p1.ID}, postIDs(byOwners), "newest first")

	byID, err := posts.FindAll(ctx, store.PostFilter{IDs: []string{p3.ID}})
	require.NoError(t, err)
	require.Len(t, byID, 1)
	assert.Equal(t, "3", byID[0].Caption)

	none, err := posts.FindAll(ctx, store.PostFilter{Owners: []string{"nobody"}})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func postIDs(posts []*models.Post) []string {
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID)
	}
	return ids
}
