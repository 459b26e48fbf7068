package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"redgraph/models"
)

// ToggleLike flips actorID's membership in the post's likes. Only the post is
// written.
func (s *Service) ToggleLike(ctx context.Context, postID, actorID string) (applied Applied, err error) {
	const op = "ToggleLike"
	ctx, span := s.start(ctx, op, attribute.String("post", postID), attribute.String("actor", actorID))
	defer func() { finish(span, err) }()

	_, err = s.updatePost(ctx, postID, func(p *models.Post) (bool, error) {
		if p.Likes.Remove(actorID) {
			applied = Removed
		} else {
			p.Likes.Add(actorID)
			applied = Added
		}
		return true, nil
	})
	if err != nil {
		return "", storeError(op, "post", err)
	}
	s.metrics.Toggle("like", applied)
	return applied, nil
}
