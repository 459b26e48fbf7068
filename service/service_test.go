package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"redgraph/models"
	"redgraph/store"
	"redgraph/store/badgerstore"
)

type plainHasher struct{}

func (plainHasher) Hash(p string) (string, error) { return "h:" + p, nil }

func (plainHasher) Compare(hash, p string) error {
	if hash != "h:"+p {
		return errors.New("mismatch")
	}
	return nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, m Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, m)
	return nil
}

type fakeMedia struct {
	mu        sync.Mutex
	next      int
	objects   map[string]bool
	removed   []string
	uploadErr error
}

func (m *fakeMedia) Upload(_ context.Context, u Upload) (models.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.uploadErr != nil {
		return models.Image{}, m.uploadErr
	}
	m.next++
	id := fmt.Sprintf("img-%d-%s", m.next, u.Filename)
	if m.objects == nil {
		m.objects = map[string]bool{}
	}
	m.objects[id] = true
	return models.Image{PublicID: id, URL: "http://media.test/" + id}, nil
}

func (m *fakeMedia) Remove(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, id)
	m.removed = append(m.removed, id)
	return nil
}

type countingMetrics struct {
	mu        sync.Mutex
	toggles   map[string]int
	conflicts int
	tasks     map[string]int
}

func (c *countingMetrics) Toggle(rel string, a Applied) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toggles[rel+"/"+string(a)]++
}

func (c *countingMetrics) Conflict(string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conflicts++
}

func (c *countingMetrics) CascadeTask(task, outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks[task+"/"+outcome]++
}

// faultStore wraps a real store so tests can fail chosen calls.
type faultStore struct {
	store.Store
	users *faultUsers
	posts *faultPosts
}

func (f *faultStore) Users() store.UserStore { return f.users }
func (f *faultStore) Posts() store.PostStore { return f.posts }

type faultUsers struct {
	store.UserStore
	onSave func(ctx context.Context, u *models.User) error
}

func (f *faultUsers) Save(ctx context.Context, u *models.User) error {
	if f.onSave != nil {
		if err := f.onSave(ctx, u); err != nil {
			return err
		}
	}
	return f.UserStore.Save(ctx, u)
}

type faultPosts struct {
	store.PostStore
	onDelete func(id string) error
}

func (f *faultPosts) Delete(ctx context.Context, id string) error {
	if f.onDelete != nil {
		if err := f.onDelete(id); err != nil {
			return err
		}
	}
	return f.PostStore.Delete(ctx, id)
}

type env struct {
	svc      *Service
	db       store.Store
	users    *faultUsers
	posts    *faultPosts
	notifier *recordingNotifier
	media    *fakeMedia
	metrics  *countingMetrics
}

func newEnv(t *testing.T, tweak ...func(*Options)) *env {
	t.Helper()
	db, err := badgerstore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	e := &env{
		db:       db,
		users:    &faultUsers{UserStore: db.Users()},
		posts:    &faultPosts{PostStore: db.Posts()},
		notifier: &recordingNotifier{},
		media:    &fakeMedia{},
		metrics:  &countingMetrics{toggles: map[string]int{}, tasks: map[string]int{}},
	}
	opts := Options{
		RetryAttempts:  5,
		RetryBackoff:   time.Millisecond,
		CascadeWorkers: 4,
		TaskTimeout:    time.Second,
		ResetTTL:       time.Minute,
	}
	for _, f := range tweak {
		f(&opts)
	}
	e.svc = New(Deps{
		Store:    &faultStore{Store: db, users: e.users, posts: e.posts},
		Hasher:   plainHasher{},
		Notifier: e.notifier,
		Media:    e.media,
		Metrics:  e.metrics,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, opts)
	return e
}

func (e *env) register(t *testing.T, name string) *models.User {
	t.Helper()
	u, err := e.svc.Register(context.Background(), RegisterInput{
		Name:     name,
		Email:    name + "@example.com",
		Password: "secret1",
	})
	require.NoError(t, err)
	return u
}

func (e *env) user(t *testing.T, id string) *models.User {
	t.Helper()
	u, err := e.db.Users().Find(context.Background(), id)
	require.NoError(t, err)
	return u
}

func (e *env) post(t *testing.T, id string) *models.Post {
	t.Helper()
	p, err := e.db.Posts().Find(context.Background(), id)
	require.NoError(t, err)
	return p
}

func (e *env) createPost(t *testing.T, owner, caption string) *models.Post {
	t.Helper()
	p, err := e.svc.CreatePost(context.Background(), owner, PostInput{Caption: caption})
	require.NoError(t, err)
	return p
}

func requireKind(t *testing.T, want Kind, err error) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, want, KindOf(err), "error: %v", err)
}
