package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"redgraph/auth"
	"redgraph/config"
	"redgraph/handlers"
	"redgraph/lock"
	"redgraph/media"
	"redgraph/metrics"
	"redgraph/middleware"
	"redgraph/notify"
	"redgraph/service"
	"redgraph/store"
	"redgraph/store/badgerstore"
	"redgraph/store/gormstore"
	"redgraph/store/mongostore"
)

type app struct {
	router  *gin.Engine
	closers []func() error
}

func (a *app) close(log *slog.Logger) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn("close failed", "error", err)
		}
	}
}

func openStore(ctx context.Context, cfg config.StoreConfig, log *slog.Logger) (store.Store, error) {
	switch cfg.Driver {
	case "badger":
		return badgerstore.Open(badgerstore.Config{
			Path:       cfg.BadgerPath,
			InMemory:   cfg.InMemory,
			Logger:     log,
			GCInterval: 10 * time.Minute,
		})
	case "mysql", "postgres", "sqlite":
		return gormstore.Open(gormstore.Config{Driver: cfg.Driver, DSN: cfg.DSN})
	case "mongo":
		return mongostore.Open(ctx, mongostore.Config{URI: cfg.MongoURI, Database: cfg.MongoDatabase})
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

// migrate creates tables or indexes. Badger needs neither.
func migrate(ctx context.Context, s store.Store) error {
	switch s := s.(type) {
	case *gormstore.Store:
		return s.Migrate()
	case *mongostore.Store:
		return s.Migrate(ctx)
	}
	return nil
}

func newApp(ctx context.Context, cfg config.Config, log *slog.Logger, reg *prometheus.Registry) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.close(log)
		}
	}()

	db, err := openStore(ctx, cfg.Store, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.closers = append(a.closers, db.Close)
	if err := migrate(ctx, db); err != nil {
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	var locker service.Locker = lock.Nop{}
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		locker = lock.NewRedis(client, cfg.Redis.LockTTL, cfg.Redis.LockWait, log)
	}

	var mediaStore service.MediaStore
	if cfg.Media.Enabled {
		m, err := media.NewMinIO(media.Config{
			Endpoint:      cfg.Media.Endpoint,
			AccessKey:     cfg.Media.AccessKey,
			SecretKey:     cfg.Media.SecretKey,
			Bucket:        cfg.Media.Bucket,
			UseSSL:        cfg.Media.UseSSL,
			PublicBaseURL: cfg.Media.PublicBaseURL,
		})
		if err != nil {
			return nil, err
		}
		if err := m.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		mediaStore = m
	} else {
		log.Info("media disabled, image uploads will be rejected")
	}

	m := metrics.New(reg)
	svc := service.New(service.Deps{
		Store:    db,
		Hasher:   auth.BcryptHasher{},
		Notifier: notify.NewLog(log),
		Media:    mediaStore,
		Locker:   locker,
		Metrics:  m,
		Logger:   log,
	}, service.Options{
		RetryAttempts:  cfg.Engine.RetryAttempts,
		RetryBackoff:   cfg.Engine.RetryBackoff,
		CascadeWorkers: cfg.Engine.CascadeWorkers,
		TaskTimeout:    cfg.Engine.TaskTimeout,
		ResetTTL:       cfg.Engine.ResetTTL,
	})

	h := handlers.New(svc, auth.NewIssuer(cfg.Server.JWTSecret, cfg.Server.TokenTTL), handlers.Options{
		CookieName: cfg.Server.CookieName,
		PublicURL:  cfg.Server.PublicURL,
		Metrics:    m,
		Logger:     log,
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	r.Use(m.Instrument())
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))

	api := r.Group("/api/v1")
	api.Use(middleware.RateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst))
	h.Mount(api)

	a.router = r
	ok = true
	return a, nil
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// serve runs the HTTP server until ctx is cancelled, then drains it.
func serve(ctx context.Context, addr string, h http.Handler, log *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info("server stopped")
	return nil
}
