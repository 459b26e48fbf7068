package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"redgraph/models"
	"redgraph/store"
)

type CascadeResult struct {
	PostsDeleted int           `json:"posts_deleted"`
	Unlinked     int           `json:"unlinked"`
	Skipped      int           `json:"skipped"`
	Failed       int           `json:"failed"`
	Failures     []TaskFailure `json:"failures,omitempty"`
	// UserDeleted is false when a task failed and the user record was kept so
	// that calling DeleteUser again can finish the job.
	UserDeleted  bool          `json:"user_deleted"`
}

type TaskFailure struct {
	Task  string `json:"task"`
	ID    string `json:"id"`
	Error string `json:"error"`
}

const (
	taskDeletePost      = "delete_post"
	taskUnlinkFollower  = "unlink_follower"
	taskUnlinkFollowing = "unlink_following"

	outcomeDone    = "done"
	outcomeSkipped = "skipped"
	outcomeFailed  = "failed"
)

type cascadeTask struct {
	kind string
	id   string
	run  func(ctx context.Context) (done bool, err error)
}

type taskOutcome struct {
	outcome string
	err     error
}

// DeleteUser removes a user together with everything that points at them:
// their posts, and their id in other users' following and followers sets.
//
// The dependents are handled first as independent tasks on a bounded pool,
// each under its own timeout. A missing dependent counts as skipped and a
// failing one is recorded without stopping the rest. The user record goes
// last and only when every task succeeded or was skipped. Otherwise it stays,
// still listing its dependents, and a repeated call retries the failed tasks.
func (s *Service) DeleteUser(ctx context.Context, userID string) (res CascadeResult, err error) {
	const op = "DeleteUser"
	ctx, span := s.start(ctx, op, attribute.String("user", userID))
	defer func() { finish(span, err) }()

	u, err := s.users.Find(ctx, userID)
	if err != nil {
		return res, storeError(op, "user", err)
	}

	tasks, err := s.cascadeTasks(ctx, u)
	if err != nil {
		return res, storeError(op, "user", err)
	}

	outcomes := s.runCascade(ctx, tasks)
	for i, o := range outcomes {
		t := tasks[i]
		s.metrics.CascadeTask(t.kind, o.outcome)
		switch o.outcome {
		case outcomeDone:
			if t.kind == taskDeletePost {
				res.PostsDeleted++
			} else {
				res.Unlinked++
			}
		case outcomeSkipped:
			res.Skipped++
		case outcomeFailed:
			res.Failed++
			res.Failures = append(res.Failures, TaskFailure{Task: t.kind, ID: t.id, Error: o.err.Error()})
			s.log.Warn("cascade task failed", "user", userID, "task", t.kind, "id", t.id, "error", o.err)
		}
	}

	if res.Failed > 0 {
		s.log.Warn("user kept after failed cascade tasks",
			"user", userID,
			"failed", res.Failed,
		)
		return res, nil
	}

	if err := s.users.Delete(ctx, userID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return res, storeError(op, "user", err)
	}
	res.UserDeleted = true

	s.log.Info("user deleted",
		"user", userID,
		"posts_deleted", res.PostsDeleted,
		"unlinked", res.Unlinked,
		"skipped", res.Skipped,
		"failed", res.Failed,
	)
	return res, nil
}

// cascadeTasks snapshots u's posts and follow sets into tasks. Posts owned by
// u but missing from u.Posts are swept in by an owner query.
func (s *Service) cascadeTasks(ctx context.Context, u *models.User) ([]cascadeTask, error) {
	owned, err := s.posts.FindAll(ctx, store.PostFilter{Owners: []string{u.ID}})
	if err != nil {
		return nil, err
	}
	postIDs := models.NewIDSet(u.Posts...)
	for _, p := range owned {
		postIDs.Add(p.ID)
	}

	var tasks []cascadeTask
	for _, id := range postIDs.Slice() {
		tasks = append(tasks, cascadeTask{kind: taskDeletePost, id: id, run: func(ctx context.Context) (bool, error) {
			return s.deleteOwnedPost(ctx, id, u.ID)
		}})
	}
	for _, id := range u.Followers.Slice() {
		tasks = append(tasks, cascadeTask{kind: taskUnlinkFollower, id: id, run: func(ctx context.Context) (bool, error) {
			return s.unlink(ctx, id, func(f *models.User) bool { return f.Following.Remove(u.ID) })
		}})
	}
	for _, id := range u.Following.Slice() {
		tasks = append(tasks, cascadeTask{kind: taskUnlinkFollowing, id: id, run: func(ctx context.Context) (bool, error) {
			return s.unlink(ctx, id, func(f *models.User) bool { return f.Followers.Remove(u.ID) })
		}})
	}
	return tasks, nil
}

func (s *Service) runCascade(ctx context.Context, tasks []cascadeTask) []taskOutcome {
	outcomes := make([]taskOutcome, len(tasks))

	var g errgroup.Group
	g.SetLimit(s.opts.CascadeWorkers)
	for i, t := range tasks {
		g.Go(func() error {
			tctx, cancel := context.WithTimeout(ctx, s.opts.TaskTimeout)
			defer cancel()

			done, err := t.run(tctx)
			switch {
			case errors.Is(err, store.ErrNotFound):
				outcomes[i] = taskOutcome{outcome: outcomeSkipped}
			case err != nil:
				outcomes[i] = taskOutcome{outcome: outcomeFailed, err: err}
			case !done:
				outcomes[i] = taskOutcome{outcome: outcomeSkipped}
			default:
				outcomes[i] = taskOutcome{outcome: outcomeDone}
			}
			return nil
		})
	}
	g.Wait()
	return outcomes
}

// deleteOwnedPost deletes a post if ownerID still owns it.
func (s *Service) deleteOwnedPost(ctx context.Context, postID, ownerID string) (bool, error) {
	p, err := s.posts.Find(ctx, postID)
	if err != nil {
		return false, err
	}
	if p.Owner != ownerID {
		return false, nil
	}
	if err := s.posts.Delete(ctx, postID); err != nil {
		return false, err
	}
	s.removeImage(ctx, p.Image)
	return true, nil
}

func (s *Service) unlink(ctx context.Context, userID string, remove func(u *models.User) bool) (bool, error) {
	removed := false
	_, err := s.updateUser(ctx, userID, func(u *models.User) (bool, error) {
		removed = remove(u)
		return removed, nil
	})
	return removed, err
}

// DeletePost deletes a post its owner asked to remove. The id leaves the
// owner's posts list before the record goes; the stored image is removed
// afterwards on a best-effort basis.
func (s *Service) DeletePost(ctx context.Context, postID, actorID string) (err error) {
	const op = "DeletePost"
	ctx, span := s.start(ctx, op, attribute.String("post", postID), attribute.String("actor", actorID))
	defer func() { finish(span, err) }()

	p, err := s.posts.Find(ctx, postID)
	if err != nil {
		return storeError(op, "post", err)
	}
	if p.Owner != actorID {
		return newError(op, KindUnauthorized, "unauthorized", nil)
	}

	_, err = s.updateUser(ctx, p.Owner, func(u *models.User) (bool, error) {
		return u.RemovePost(postID), nil
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return storeError(op, "user", err)
	}

	if err := s.posts.Delete(ctx, postID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return storeError(op, "post", err)
	}
	s.removeImage(ctx, p.Image)
	return nil
}

func (s *Service) removeImage(ctx context.Context, img models.Image) {
	if s.media == nil || img.PublicID == "" {
		return
	}
	if err := s.media.Remove(ctx, img.PublicID); err != nil {
		s.log.Warn("image removal failed", "public_id", img.PublicID, "error", err)
	}
}
