package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"redgraph/models"
	"redgraph/store"
)

type PostInput struct {
	Caption string
	Image   *Upload
}

// CreatePost stores a new post and links it into the owner's posts list. If
// the link cannot be written the post and its image are removed again.
func (s *Service) CreatePost(ctx context.Context, actorID string, in PostInput) (post *models.Post, err error) {
	const op = "CreatePost"
	ctx, span := s.start(ctx, op, attribute.String("actor", actorID))
	defer func() { finish(span, err) }()

	if _, err := s.users.Find(ctx, actorID); err != nil {
		return nil, storeError(op, "user", err)
	}

	now := s.now()
	p := &models.Post{
		ID:        uuid.NewString(),
		Owner:     actorID,
		Caption:   strings.TrimSpace(in.Caption),
		Likes:     models.NewIDSet(),
		Comments:  []models.Comment{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if in.Image != nil {
		if s.media == nil {
			return nil, newError(op, KindInvalidArgument, "image uploads are disabled", nil)
		}
		img, err := s.media.Upload(ctx, *in.Image)
		if err != nil {
			return nil, newError(op, KindDependencyFailure, "image upload failed", err)
		}
		p.Image = img
	}

	if err := s.posts.Create(ctx, p); err != nil {
		s.removeImage(ctx, p.Image)
		return nil, storeError(op, "post", err)
	}

	_, err = s.updateUser(ctx, actorID, func(u *models.User) (bool, error) {
		return u.AddPost(p.ID), nil
	})
	if err != nil {
		if derr := s.posts.Delete(context.WithoutCancel(ctx), p.ID); derr != nil {
			s.log.Error("orphan post left behind", "post", p.ID, "owner", actorID, "error", derr)
		}
		s.removeImage(context.WithoutCancel(ctx), p.Image)
		return nil, storeError(op, "user", err)
	}
	return p, nil
}

// UpdateCaption changes a post's caption. Owner only.
func (s *Service) UpdateCaption(ctx context.Context, postID, actorID, caption string) (post *models.Post, err error) {
	const op = "UpdateCaption"
	ctx, span := s.start(ctx, op, attribute.String("post", postID), attribute.String("actor", actorID))
	defer func() { finish(span, err) }()

	caption = strings.TrimSpace(caption)
	post, err = s.updatePost(ctx, postID, func(p *models.Post) (bool, error) {
		if p.Owner != actorID {
			return false, newError(op, KindUnauthorized, "unauthorized", nil)
		}
		if p.Caption == caption {
			return false, nil
		}
		p.Caption = caption
		return true, nil
	})
	if err != nil {
		return nil, storeError(op, "post", err)
	}
	return post, nil
}

func (s *Service) Post(ctx context.Context, postID string) (*models.Post, error) {
	p, err := s.posts.Find(ctx, postID)
	if err != nil {
		return nil, storeError("Post", "post", err)
	}
	return p, nil
}

// Feed lists the posts of everyone actorID follows, newest first.
func (s *Service) Feed(ctx context.Context, actorID string) (posts []*models.Post, err error) {
	const op = "Feed"
	ctx, span := s.start(ctx, op, attribute.String("actor", actorID))
	defer func() { finish(span, err) }()

	u, err := s.users.Find(ctx, actorID)
	if err != nil {
		return nil, storeError(op, "user", err)
	}
	if u.Following.Len() == 0 {
		return []*models.Post{}, nil
	}
	posts, err = s.posts.FindAll(ctx, store.PostFilter{Owners: u.Following.Slice()})
	if err != nil {
		return nil, storeError(op, "post", err)
	}
	return posts, nil
}

// postsByID loads ids in list order, dropping ids whose post is gone.
func (s *Service) postsByID(ctx context.Context, ids []string) ([]*models.Post, error) {
	if len(ids) == 0 {
		return []*models.Post{}, nil
	}
	found, err := s.posts.FindAll(ctx, store.PostFilter{IDs: ids})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	byID := make(map[string]*models.Post, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	out := make([]*models.Post, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}
