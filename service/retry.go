package service

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"redgraph/models"
	"redgraph/store"
)

// updateUser runs load, mutate, save against one user, reloading and
// reapplying mutate on every version conflict. mutate reports whether it
// changed anything; an unchanged record is not saved. Errors from mutate stop
// the loop and are returned as they are.
func (s *Service) updateUser(ctx context.Context, id string, mutate func(u *models.User) (bool, error)) (*models.User, error) {
	unlock, err := s.locker.Lock(ctx, "user:"+id)
	if err != nil {
		return nil, newError("lock", KindDependencyFailure, "could not lock user", err)
	}
	defer unlock()

	for attempt := 0; ; attempt++ {
		u, err := s.users.Find(ctx, id)
		if err != nil {
			return nil, err
		}
		changed, err := mutate(u)
		if err != nil {
			return nil, err
		}
		if !changed {
			return u, nil
		}
		u.UpdatedAt = s.now()
		err = s.users.Save(ctx, u)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return nil, err
		}
		s.metrics.Conflict("user")
		if attempt+1 >= s.opts.RetryAttempts {
			return nil, err
		}
		if err := s.backoff(ctx, attempt); err != nil {
			return nil, err
		}
	}
}

// updatePost is updateUser for posts.
func (s *Service) updatePost(ctx context.Context, id string, mutate func(p *models.Post) (bool, error)) (*models.Post, error) {
	unlock, err := s.locker.Lock(ctx, "post:"+id)
	if err != nil {
		return nil, newError("lock", KindDependencyFailure, "could not lock post", err)
	}
	defer unlock()

	for attempt := 0; ; attempt++ {
		p, err := s.posts.Find(ctx, id)
		if err != nil {
			return nil, err
		}
		changed, err := mutate(p)
		if err != nil {
			return nil, err
		}
		if !changed {
			return p, nil
		}
		p.UpdatedAt = s.now()
		err = s.posts.Save(ctx, p)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return nil, err
		}
		s.metrics.Conflict("post")
		if attempt+1 >= s.opts.RetryAttempts {
			return nil, err
		}
		if err := s.backoff(ctx, attempt); err != nil {
			return nil, err
		}
	}
}

// backoff sleeps base*2^attempt with full jitter, capped at 32x base.
func (s *Service) backoff(ctx context.Context, attempt int) error {
	d := s.opts.RetryBackoff << min(attempt, 5)
	d = time.Duration(rand.Int64N(int64(d)) + 1)

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
