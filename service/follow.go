package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"redgraph/models"
	"redgraph/store"
)

// Applied is the direction a toggle took.
type Applied string

const (
	Added   Applied = "added"
	Removed Applied = "removed"
)

// ToggleFollow flips whether actorID follows targetID and mirrors the change
// into the target's followers.
//
// The direction is read from the actor's following set and decided again on
// every conflict retry. The target side applies that decision as an intent,
// so a repeated call after a partial failure converges. If the target write
// fails the actor write is undone and the caller gets a conflict; if the undo
// fails as well the pair is left half-linked and the caller gets a
// dependency failure.
//
// Each side is locked only for its own save. Two concurrent toggles of the
// same pair can land their target writes in the opposite order from their
// actor writes, leaving the target's followers out of step with the actor's
// following until the pair is toggled again.
func (s *Service) ToggleFollow(ctx context.Context, actorID, targetID string) (applied Applied, err error) {
	const op = "ToggleFollow"
	ctx, span := s.start(ctx, op, attribute.String("actor", actorID), attribute.String("target", targetID))
	defer func() { finish(span, err) }()

	if actorID == targetID {
		return "", newError(op, KindInvalidOperation, "you cannot follow yourself", nil)
	}
	if _, err := s.users.Find(ctx, targetID); err != nil {
		return "", storeError(op, "user", err)
	}

	_, err = s.updateUser(ctx, actorID, func(u *models.User) (bool, error) {
		if u.Following.Remove(targetID) {
			applied = Removed
		} else {
			u.Following.Add(targetID)
			applied = Added
		}
		return true, nil
	})
	if err != nil {
		return "", storeError(op, "user", err)
	}

	if err := s.mirrorFollow(ctx, targetID, actorID, applied); err != nil {
		return "", s.compensateFollow(ctx, op, actorID, targetID, applied, err)
	}

	s.metrics.Toggle("follow", applied)
	s.log.Debug("follow toggled", "actor", actorID, "target", targetID, "applied", applied)
	return applied, nil
}

// mirrorFollow makes followerID's presence in userID.followers match intent.
func (s *Service) mirrorFollow(ctx context.Context, userID, followerID string, intent Applied) error {
	_, err := s.updateUser(ctx, userID, func(u *models.User) (bool, error) {
		if intent == Added {
			return u.Followers.Add(followerID), nil
		}
		return u.Followers.Remove(followerID), nil
	})
	return err
}

func (s *Service) compensateFollow(ctx context.Context, op, actorID, targetID string, applied Applied, cause error) error {
	_, err := s.updateUser(ctx, actorID, func(u *models.User) (bool, error) {
		if applied == Added {
			return u.Following.Remove(targetID), nil
		}
		return u.Following.Add(targetID), nil
	})
	if err != nil {
		s.log.Error("follow left half-applied",
			"actor", actorID,
			"target", targetID,
			"applied", applied,
			"mirror_error", cause,
			"error", err,
		)
		return newError(op, KindDependencyFailure, "follow partially applied, repeat the request", errors.Join(cause, err))
	}

	s.log.Warn("follow mirror failed, actor side restored",
		"actor", actorID, "target", targetID, "error", cause)
	if errors.Is(cause, store.ErrNotFound) {
		return newError(op, KindNotFound, "user not found", cause)
	}
	return newError(op, KindConflict, "follow could not be applied, try again", cause)
}
