package gormstore

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"redgraph/models"
	"redgraph/store"
)

type postRow struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	Owner     string `gorm:"type:varchar(36);index;not null"`
	Caption   string `gorm:"type:text"`
	ImageID   string
	ImageURL  string
	Likes     datatypes.JSONSlice[string]
	Comments  datatypes.JSONSlice[models.Comment]
	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64 `gorm:"not null"`
}

func (postRow) TableName() string { return "posts" }

func marshalPost(p *models.Post) *postRow {
	comments := p.Comments
	if comments == nil {
		comments = []models.Comment{}
	}
	return &postRow{
		ID:        p.ID,
		Owner:     p.Owner,
		Caption:   p.Caption,
		ImageID:   p.Image.PublicID,
		ImageURL:  p.Image.URL,
		Likes:     datatypes.JSONSlice[string](p.Likes.Slice()),
		Comments:  datatypes.JSONSlice[models.Comment](comments),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
		Version:   p.Version,
	}
}

func unmarshalPost(r *postRow) *models.Post {
	return &models.Post{
		ID:        r.ID,
		Owner:     r.Owner,
		Caption:   r.Caption,
		Image:     models.Image{PublicID: r.ImageID, URL: r.ImageURL},
		Likes:     models.NewIDSet(r.Likes...),
		Comments:  []models.Comment(r.Comments),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		Version:   r.Version,
	}
}

type postStore struct {
	db *gorm.DB
}

func (s *postStore) Find(ctx context.Context, id string) (*models.Post, error) {
	var r postRow
	if err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return unmarshalPost(&r), nil
}

func (s *postStore) FindAll(ctx context.Context, f store.PostFilter) ([]*models.Post, error) {
	q := s.db.WithContext(ctx).Model(&postRow{})
	if len(f.IDs) > 0 {
		q = q.Where("id IN ?", f.IDs)
	}
	if len(f.Owners) > 0 {
		q = q.Where("owner IN ?", f.Owners)
	}
	var rows []postRow
	if err := q.Order("created_at DESC, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*models.Post, 0, len(rows))
	for i := range rows {
		out = append(out, unmarshalPost(&rows[i]))
	}
	return out, nil
}

func (s *postStore) Create(ctx context.Context, p *models.Post) error {
	r := marshalPost(p)
	r.Version = 1
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return translate(err)
	}
	p.Version = 1
	return nil
}

func (s *postStore) Save(ctx context.Context, p *models.Post) error {
	r := marshalPost(p)
	next := p.Version + 1
	res := s.db.WithContext(ctx).Model(&postRow{}).
		Where("id = ? AND version = ?", p.ID, p.Version).
		Updates(map[string]any{
			"caption":    r.Caption,
			"image_id":   r.ImageID,
			"image_url":  r.ImageURL,
			"likes":      r.Likes,
			"comments":   r.Comments,
			"updated_at": r.UpdatedAt,
			"version":    next,
		})
	if err := translate(res.Error); err != nil {
		return err
	}
	if res.RowsAffected == 0 {
		return missingOrConflict(ctx, s.db, &postRow{}, p.ID)
	}
	p.Version = next
	return nil
}

func (s *postStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&postRow{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}
