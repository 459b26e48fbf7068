// Package service holds the relationship, cascade and comment engines plus
// the account and post operations built on them. It talks to the Entity Store
// only through store.Store and to everything else through the small
// collaborator interfaces below.
package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"redgraph/models"
	"redgraph/store"
)

// Locker serializes load-mutate-save cycles per record key.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type Message struct {
	To      string
	Subject string
	Body    string
}

type Notifier interface {
	Notify(ctx context.Context, m Message) error
}

type Hasher interface {
	Hash(password string) (string, error)
	// Compare returns nil when password matches hash.
	Compare(hash, password string) error
}

type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type MediaStore interface {
	Upload(ctx context.Context, u Upload) (models.Image, error)
	Remove(ctx context.Context, publicID string) error
}

// ResetTokens mints password reset tokens. Only the hash is stored.
type ResetTokens interface {
	New() (token, hash string, err error)
	Hash(token string) string
}

type Metrics interface {
	Toggle(relation string, applied Applied)
	Conflict(entity string)
	CascadeTask(task, outcome string)
}

type Options struct {
	RetryAttempts  int
	RetryBackoff   time.Duration
	CascadeWorkers int
	TaskTimeout    time.Duration
	ResetTTL       time.Duration
}

func DefaultOptions() Options {
	return Options{
		RetryAttempts:  5,
		RetryBackoff:   10 * time.Millisecond,
		CascadeWorkers: 8,
		TaskTimeout:    5 * time.Second,
		ResetTTL:       15 * time.Minute,
	}
}

// Deps are the collaborators. Store and Hasher are required; Media may be
// nil when uploads are disabled.
type Deps struct {
	Store    store.Store
	Hasher   Hasher
	Notifier Notifier
	Media    MediaStore
	Locker   Locker
	Tokens   ResetTokens
	Metrics  Metrics
	Logger   *slog.Logger
}

type Service struct {
	users    store.UserStore
	posts    store.PostStore
	hasher   Hasher
	notifier Notifier
	media    MediaStore
	locker   Locker
	tokens   ResetTokens
	metrics  Metrics
	log      *slog.Logger
	tracer   trace.Tracer
	validate *validator.Validate
	opts     Options
	now      func() time.Time
}

func New(d Deps, opts Options) *Service {
	def := DefaultOptions()
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = def.RetryAttempts
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = def.RetryBackoff
	}
	if opts.CascadeWorkers <= 0 {
		opts.CascadeWorkers = def.CascadeWorkers
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = def.TaskTimeout
	}
	if opts.ResetTTL <= 0 {
		opts.ResetTTL = def.ResetTTL
	}

	s := &Service{
		users:    d.Store.Users(),
		posts:    d.Store.Posts(),
		hasher:   d.Hasher,
		notifier: d.Notifier,
		media:    d.Media,
		locker:   d.Locker,
		tokens:   d.Tokens,
		metrics:  d.Metrics,
		log:      d.Logger,
		tracer:   otel.Tracer("redgraph/service"),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}
	if s.locker == nil {
		s.locker = nopLocker{}
	}
	if s.tokens == nil {
		s.tokens = RandomResetTokens{}
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.log = s.log.With("component", "service")
	return s
}

func (s *Service) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "service."+op, trace.WithAttributes(attrs...))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindOf(err)))
	}
	span.End()
}

type nopLocker struct{}

func (nopLocker) Lock(context.Context, string) (func(), error) { return func() {}, nil }

type nopMetrics struct{}

func (nopMetrics) Toggle(string, Applied)     {}
func (nopMetrics) Conflict(string)            {}
func (nopMetrics) CascadeTask(string, string) {}
