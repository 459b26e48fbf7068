package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"redgraph/models"
)

// UpsertComment stores text as actorID's only comment on the post, replacing
// any earlier one.
func (s *Service) UpsertComment(ctx context.Context, postID, actorID, text string) (created bool, err error) {
	const op = "UpsertComment"
	ctx, span := s.start(ctx, op, attribute.String("post", postID), attribute.String("actor", actorID))
	defer func() { finish(span, err) }()

	text = strings.TrimSpace(text)
	if text == "" {
		return false, newError(op, KindInvalidArgument, "comment is required", nil)
	}

	_, err = s.updatePost(ctx, postID, func(p *models.Post) (bool, error) {
		i := p.CommentBy(actorID)
		if i < 0 {
			p.Comments = append(p.Comments, models.Comment{
				ID:        uuid.NewString(),
				User:      actorID,
				Text:      text,
				CreatedAt: s.now(),
			})
			created = true
			return true, nil
		}
		created = false
		keep := p.Comments[i].ID
		p.Comments[i].Text = text
		// Collapse duplicates written before the one-per-user rule held.
		p.RemoveComments(func(c models.Comment) bool {
			return c.User == actorID && c.ID != keep
		})
		return true, nil
	})
	if err != nil {
		return false, storeError(op, "post", err)
	}
	return created, nil
}

// DeleteComment removes comments from a post. The owner removes the comment
// with commentID, which is then required. Anyone else removes their own
// comment and commentID is ignored. Removing nothing is not an error.
func (s *Service) DeleteComment(ctx context.Context, postID, actorID, commentID string) (deleted int, err error) {
	const op = "DeleteComment"
	ctx, span := s.start(ctx, op, attribute.String("post", postID), attribute.String("actor", actorID))
	defer func() { finish(span, err) }()

	_, err = s.updatePost(ctx, postID, func(p *models.Post) (bool, error) {
		if p.Owner == actorID {
			if commentID == "" {
				return false, newError(op, KindInvalidArgument, "comment id is required", nil)
			}
			deleted = p.RemoveComments(func(c models.Comment) bool { return c.ID == commentID })
		} else {
			deleted = p.RemoveComments(func(c models.Comment) bool { return c.User == actorID })
		}
		return deleted > 0, nil
	})
	if err != nil {
		return 0, storeError(op, "post", err)
	}
	return deleted, nil
}
