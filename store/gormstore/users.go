package gormstore

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"redgraph/models"
	"redgraph/store"
)

type userRow struct {
	ID           string `gorm:"primaryKey;type:varchar(36)"`
	Name         string `gorm:"type:varchar(100)"`
	Email        string `gorm:"type:varchar(255);not null"`
	EmailKey     string `gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	AvatarID     string
	AvatarURL    string
	Posts        datatypes.JSONSlice[string]
	Following    datatypes.JSONSlice[string]
	Followers    datatypes.JSONSlice[string]
	ResetToken   string `gorm:"type:varchar(64);index"`
	ResetExpires *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Version      int64 `gorm:"not null"`
}

func (userRow) TableName() string { return "users" }

func marshalUser(u *models.User) *userRow {
	r := &userRow{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		EmailKey:     store.NormalizeEmail(u.Email),
		PasswordHash: u.PasswordHash,
		AvatarID:     u.Avatar.PublicID,
		AvatarURL:    u.Avatar.URL,
		Posts:        datatypes.JSONSlice[string](nonNil(u.Posts)),
		Following:    datatypes.JSONSlice[string](u.Following.Slice()),
		Followers:    datatypes.JSONSlice[string](u.Followers.Slice()),
		ResetToken:   u.ResetToken,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
		Version:      u.Version,
	}
	if !u.ResetExpires.IsZero() {
		t := u.ResetExpires
		r.ResetExpires = &t
	}
	return r
}

func unmarshalUser(r *userRow) *models.User {
	u := &models.User{
		ID:           r.ID,
		Name:         r.Name,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Avatar:       models.Image{PublicID: r.AvatarID, URL: r.AvatarURL},
		Posts:        []string(r.Posts),
		Following:    models.NewIDSet(r.Following...),
		Followers:    models.NewIDSet(r.Followers...),
		ResetToken:   r.ResetToken,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		Version:      r.Version,
	}
	if r.ResetExpires != nil {
		u.ResetExpires = *r.ResetExpires
	}
	return u
}

type userStore struct {
	db *gorm.DB
}

func (s *userStore) Find(ctx context.Context, id string) (*models.User, error) {
	var r userRow
	if err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return unmarshalUser(&r), nil
}

func (s *userStore) FindAll(ctx context.Context, f store.UserFilter) ([]*models.User, error) {
	q := s.db.WithContext(ctx).Model(&userRow{})
	if len(f.IDs) > 0 {
		q = q.Where("id IN ?", f.IDs)
	}
	if f.Email != "" {
		q = q.Where("email_key = ?", store.NormalizeEmail(f.Email))
	}
	if f.ResetToken != "" {
		q = q.Where("reset_token = ? AND reset_expires > ?", f.ResetToken, f.ResetAfter)
	}
	var rows []userRow
	if err := q.Order("created_at").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*models.User, 0, len(rows))
	for i := range rows {
		out = append(out, unmarshalUser(&rows[i]))
	}
	return out, nil
}

func (s *userStore) Create(ctx context.Context, u *models.User) error {
	r := marshalUser(u)
	r.Version = 1
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return translate(err)
	}
	u.Version = 1
	return nil
}

func (s *userStore) Save(ctx context.Context, u *models.User) error {
	r := marshalUser(u)
	next := u.Version + 1
	res := s.db.WithContext(ctx).Model(&userRow{}).
		Where("id = ? AND version = ?", u.ID, u.Version).
		Updates(map[string]any{
			"name":          r.Name,
			"email":         r.Email,
			"email_key":     r.EmailKey,
			"password_hash": r.PasswordHash,
			"avatar_id":     r.AvatarID,
			"avatar_url":    r.AvatarURL,
			"posts":         r.Posts,
			"following":     r.Following,
			"followers":     r.Followers,
			"reset_token":   r.ResetToken,
			"reset_expires": r.ResetExpires,
			"updated_at":    r.UpdatedAt,
			"version":       next,
		})
	if err := translate(res.Error); err != nil {
		return err
	}
	if res.RowsAffected == 0 {
		return missingOrConflict(ctx, s.db, &userRow{}, u.ID)
	}
	u.Version = next
	return nil
}

func (s *userStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&userRow{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
