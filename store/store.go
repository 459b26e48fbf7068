// Package store defines the Entity Store the service layer runs against.
//
// Every record carries a Version. Create stores version 1; Save succeeds only
// when the stored version still equals the record's Version and then bumps
// both. A mismatch is ErrConflict and the caller is expected to reload and
// reapply. No operation spans more than one record.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"redgraph/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrConflict  = errors.New("record modified concurrently")
	ErrDuplicate = errors.New("duplicate unique field")
)

// Store groups the per-entity stores, the same split as a Model with peers.
type Store interface {
	Users() UserStore
	Posts() PostStore
	Close() error
}

type UserStore interface {
	Find(ctx context.Context, id string) (*models.User, error)
	FindAll(ctx context.Context, f UserFilter) ([]*models.User, error)
	Create(ctx context.Context, u *models.User) error
	Save(ctx context.Context, u *models.User) error
	Delete(ctx context.Context, id string) error
}

type PostStore interface {
	Find(ctx context.Context, id string) (*models.Post, error)
	// FindAll returns matching posts newest first; equal timestamps order by id.
	FindAll(ctx context.Context, f PostFilter) ([]*models.Post, error)
	Create(ctx context.Context, p *models.Post) error
	Save(ctx context.Context, p *models.Post) error
	Delete(ctx context.Context, id string) error
}

// UserFilter fields are ANDed; empty fields do not constrain.
type UserFilter struct {
	IDs   []string
	Email string
	// ResetToken matches users holding this token hash whose expiry is after
	// ResetAfter.
	ResetToken string
	ResetAfter time.Time
}

func (f UserFilter) Match(u *models.User) bool {
	if len(f.IDs) > 0 && !contains(f.IDs, u.ID) {
		return false
	}
	if f.Email != "" && NormalizeEmail(u.Email) != NormalizeEmail(f.Email) {
		return false
	}
	if f.ResetToken != "" {
		if u.ResetToken != f.ResetToken || !u.ResetExpires.After(f.ResetAfter) {
			return false
		}
	}
	return true
}

// PostFilter fields are ANDed; empty fields do not constrain.
type PostFilter struct {
	IDs    []string
	Owners []string
}

func (f PostFilter) Match(p *models.Post) bool {
	if len(f.IDs) > 0 && !contains(f.IDs, p.ID) {
		return false
	}
	if len(f.Owners) > 0 && !contains(f.Owners, p.Owner) {
		return false
	}
	return true
}

// NormalizeEmail is the form used for uniqueness checks.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
