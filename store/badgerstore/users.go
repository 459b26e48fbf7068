package badgerstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dgraph-io/badger/v4"

	"redgraph/models"
	"redgraph/store"
)

var userPrefix = []byte("user/")

func userKey(id string) []byte     { return []byte("user/" + id) }
func emailKey(email string) []byte { return []byte("email/" + store.NormalizeEmail(email)) }

type userDoc struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Email        string       `json:"email"`
	PasswordHash string       `json:"password_hash"`
	Avatar       models.Image `json:"avatar"`
	Posts        []string     `json:"posts"`
	Following    []string     `json:"following"`
	Followers    []string     `json:"followers"`
	ResetToken   string       `json:"reset_token,omitempty"`
	ResetExpires time.Time    `json:"reset_expires,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	Version      int64        `json:"version"`
}

func marshalUser(u *models.User) userDoc {
	return userDoc{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Avatar:       u.Avatar,
		Posts:        u.Posts,
		Following:    u.Following.Slice(),
		Followers:    u.Followers.Slice(),
		ResetToken:   u.ResetToken,
		ResetExpires: u.ResetExpires,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
		Version:      u.Version,
	}
}

func unmarshalUser(d *userDoc) *models.User {
	return &models.User{
		ID:           d.ID,
		Name:         d.Name,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Avatar:       d.Avatar,
		Posts:        d.Posts,
		Following:    models.NewIDSet(d.Following...),
		Followers:    models.NewIDSet(d.Followers...),
		ResetToken:   d.ResetToken,
		ResetExpires: d.ResetExpires,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
		Version:      d.Version,
	}
}

type userStore struct {
	db *badger.DB
}

func (s *userStore) Find(ctx context.Context, id string) (*models.User, error) {
	var d userDoc
	err := view(ctx, s.db, func(txn *badger.Txn) error {
		return getJSON(txn, userKey(id), &d)
	})
	if err != nil {
		return nil, err
	}
	return unmarshalUser(&d), nil
}

func (s *userStore) FindAll(ctx context.Context, f store.UserFilter) ([]*models.User, error) {
	var out []*models.User
	err := view(ctx, s.db, func(txn *badger.Txn) error {
		if len(f.IDs) > 0 {
			for _, id := range f.IDs {
				var d userDoc
				err := getJSON(txn, userKey(id), &d)
				if err == store.ErrNotFound {
					continue
				}
				if err != nil {
					return err
				}
				if u := unmarshalUser(&d); f.Match(u) {
					out = append(out, u)
				}
			}
			return nil
		}
		return scan(txn, userPrefix, func(val []byte) error {
			var d userDoc
			if err := json.Unmarshal(val, &d); err != nil {
				return err
			}
			if u := unmarshalUser(&d); f.Match(u) {
				out = append(out, u)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *userStore) Create(ctx context.Context, u *models.User) error {
	err := update(ctx, s.db, func(txn *badger.Txn) error {
		taken, err := exists(txn, userKey(u.ID))
		if err != nil {
			return err
		}
		if taken {
			return store.ErrDuplicate
		}
		if err := claimEmail(txn, u.Email, u.ID); err != nil {
			return err
		}
		d := marshalUser(u)
		d.Version = 1
		return setJSON(txn, userKey(u.ID), d)
	})
	if err != nil {
		return err
	}
	u.Version = 1
	return nil
}

func (s *userStore) Save(ctx context.Context, u *models.User) error {
	next := u.Version + 1
	err := update(ctx, s.db, func(txn *badger.Txn) error {
		var cur userDoc
		if err := getJSON(txn, userKey(u.ID), &cur); err != nil {
			return err
		}
		if cur.Version != u.Version {
			return store.ErrConflict
		}
		if store.NormalizeEmail(cur.Email) != store.NormalizeEmail(u.Email) {
			if err := claimEmail(txn, u.Email, u.ID); err != nil {
				return err
			}
			if err := txn.Delete(emailKey(cur.Email)); err != nil {
				return err
			}
		}
		d := marshalUser(u)
		d.Version = next
		return setJSON(txn, userKey(u.ID), d)
	})
	if err != nil {
		return err
	}
	u.Version = next
	return nil
}

func (s *userStore) Delete(ctx context.Context, id string) error {
	return update(ctx, s.db, func(txn *badger.Txn) error {
		var cur userDoc
		if err := getJSON(txn, userKey(id), &cur); err != nil {
			return err
		}
		if err := txn.Delete(emailKey(cur.Email)); err != nil {
			return err
		}
		return txn.Delete(userKey(id))
	})
}

// claimEmail points the email index at id, failing if another user holds it.
func claimEmail(txn *badger.Txn, email, id string) error {
	item, err := txn.Get(emailKey(email))
	switch {
	case err == badger.ErrKeyNotFound:
	case err != nil:
		return err
	default:
		owner, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if string(owner) != id {
			return store.ErrDuplicate
		}
	}
	return txn.Set(emailKey(email), []byte(id))
}
