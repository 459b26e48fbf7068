// Package gormstore is the SQL store.Store backend (MySQL, Postgres, SQLite).
//
// Id lists and embedded comments are JSON columns. Save is a single
// "UPDATE ... WHERE id = ? AND version = ?"; zero affected rows means the
// record is gone or someone else saved first.
package gormstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"redgraph/store"
)

type Config struct {
	// Driver is one of mysql, postgres, sqlite.
	Driver string
	DSN    string
	// Debug logs every statement.
	Debug bool
}

type Store struct {
	db    *gorm.DB
	users *userStore
	posts *postStore
}

func Open(cfg Config) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown sql driver %q", cfg.Driver)
	}

	level := gormlogger.Warn
	if cfg.Debug {
		level = gormlogger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("connection failed: %w", err)
	}
	if cfg.Driver == "sqlite" {
		// sqlite serializes writers anyway; one connection avoids "database is locked"
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return New(db), nil
}

// New wraps an already opened connection.
func New(db *gorm.DB) *Store {
	return &Store{
		db:    db,
		users: &userStore{db: db},
		posts: &postStore{db: db},
	}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&userRow{}, &postRow{})
}

func (s *Store) Users() store.UserStore { return s.users }
func (s *Store) Posts() store.PostStore { return s.posts }

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return store.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return store.ErrDuplicate
	}
	return err
}

// missingOrConflict explains an update that touched no rows.
func missingOrConflict(ctx context.Context, db *gorm.DB, model any, id string) error {
	var n int64
	if err := db.WithContext(ctx).Model(model).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return store.ErrConflict
}
