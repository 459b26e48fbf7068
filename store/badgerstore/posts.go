package badgerstore

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"redgraph/models"
	"redgraph/store"
)

var postPrefix = []byte("post/")

func postKey(id string) []byte { return []byte("post/" + id) }

type postDoc struct {
	ID        string           `json:"id"`
	Owner     string           `json:"owner"`
	Caption   string           `json:"caption"`
	Image     models.Image     `json:"image"`
	Likes     []string         `json:"likes"`
	Comments  []models.Comment `json:"comments"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	Version   int64            `json:"version"`
}

func marshalPost(p *models.Post) postDoc {
	return postDoc{
		ID:        p.ID,
		Owner:     p.Owner,
		Caption:   p.Caption,
		Image:     p.Image,
		Likes:     p.Likes.Slice(),
		Comments:  p.Comments,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
		Version:   p.Version,
	}
}

func unmarshalPost(d *postDoc) *models.Post {
	return &models.Post{
		ID:        d.ID,
		Owner:     d.Owner,
		Caption:   d.Caption,
		Image:     d.Image,
		Likes:     models.NewIDSet(d.Likes...),
		Comments:  d.Comments,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
		Version:   d.Version,
	}
}

type postStore struct {
	db *badger.DB
}

func (s *postStore) Find(ctx context.Context, id string) (*models.Post, error) {
	var d postDoc
	err := view(ctx, s.db, func(txn *badger.Txn) error {
		return getJSON(txn, postKey(id), &d)
	})
	if err != nil {
		return nil, err
	}
	return unmarshalPost(&d), nil
}

func (s *postStore) FindAll(ctx context.Context, f store.PostFilter) ([]*models.Post, error) {
	var out []*models.Post
	err := view(ctx, s.db, func(txn *badger.Txn) error {
		if len(f.IDs) > 0 {
			for _, id := range f.IDs {
				var d postDoc
				err := getJSON(txn, postKey(id), &d)
				if err == store.ErrNotFound {
					continue
				}
				if err != nil {
					return err
				}
				if p := unmarshalPost(&d); f.Match(p) {
					out = append(out, p)
				}
			}
			return nil
		}
		return scan(txn, postPrefix, func(val []byte) error {
			var d postDoc
			if err := json.Unmarshal(val, &d); err != nil {
				return err
			}
			if p := unmarshalPost(&d); f.Match(p) {
				out = append(out, p)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, newestFirst)
	return out, nil
}

func newestFirst(a, b *models.Post) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func (s *postStore) Create(ctx context.Context, p *models.Post) error {
	err := update(ctx, s.db, func(txn *badger.Txn) error {
		taken, err := exists(txn, postKey(p.ID))
		if err != nil {
			return err
		}
		if taken {
			return store.ErrDuplicate
		}
		d := marshalPost(p)
		d.Version = 1
		return setJSON(txn, postKey(p.ID), d)
	})
	if err != nil {
		return err
	}
	p.Version = 1
	return nil
}

func (s *postStore) Save(ctx context.Context, p *models.Post) error {
	next := p.Version + 1
	err := update(ctx, s.db, func(txn *badger.Txn) error {
		var cur postDoc
		if err := getJSON(txn, postKey(p.ID), &cur); err != nil {
			return err
		}
		if cur.Version != p.Version {
			return store.ErrConflict
		}
		d := marshalPost(p)
		d.Version = next
		return setJSON(txn, postKey(p.ID), d)
	})
	if err != nil {
		return err
	}
	p.Version = next
	return nil
}

func (s *postStore) Delete(ctx context.Context, id string) error {
	return update(ctx, s.db, func(txn *badger.Txn) error {
		ok, err := exists(txn, postKey(id))
		if err != nil {
			return err
		}
		if !ok {
			return store.ErrNotFound
		}
		return txn.Delete(postKey(id))
	})
}
