package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"redgraph/models"
	"redgraph/store"
)

type userDoc struct {
	ID           string       `bson:"_id"`
	Name         string       `bson:"name"`
	Email        string       `bson:"email"`
	EmailKey     string       `bson:"email_key"`
	PasswordHash string       `bson:"password_hash"`
	Avatar       models.Image `bson:"avatar"`
	Posts        []string     `bson:"posts"`
	Following    []string     `bson:"following"`
	Followers    []string     `bson:"followers"`
	ResetToken   string       `bson:"reset_token,omitempty"`
	ResetExpires *time.Time   `bson:"reset_expires,omitempty"`
	CreatedAt    time.Time    `bson:"created_at"`
	UpdatedAt    time.Time    `bson:"updated_at"`
	Version      int64        `bson:"version"`
}

func marshalUser(u *models.User) *userDoc {
	d := &userDoc{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		EmailKey:     store.NormalizeEmail(u.Email),
		PasswordHash: u.PasswordHash,
		Avatar:       u.Avatar,
		Posts:        u.Posts,
		Following:    u.Following.Slice(),
		Followers:    u.Followers.Slice(),
		ResetToken:   u.ResetToken,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
		Version:      u.Version,
	}
	if d.Posts == nil {
		d.Posts = []string{}
	}
	if !u.ResetExpires.IsZero() {
		t := u.ResetExpires
		d.ResetExpires = &t
	}
	return d
}

func unmarshalUser(d *userDoc) *models.User {
	u := &models.User{
		ID:           d.ID,
		Name:         d.Name,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Avatar:       d.Avatar,
		Posts:        d.Posts,
		Following:    models.NewIDSet(d.Following...),
		Followers:    models.NewIDSet(d.Followers...),
		ResetToken:   d.ResetToken,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
		Version:      d.Version,
	}
	if d.ResetExpires != nil {
		u.ResetExpires = *d.ResetExpires
	}
	return u
}

type userStore struct {
	coll *mongo.Collection
}

func (s *userStore) Find(ctx context.Context, id string) (*models.User, error) {
	var d userDoc
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		return nil, translate(err)
	}
	return unmarshalUser(&d), nil
}

func (s *userStore) FindAll(ctx context.Context, f store.UserFilter) ([]*models.User, error) {
	filter := bson.M{}
	if len(f.IDs) > 0 {
		filter["_id"] = bson.M{"$in": f.IDs}
	}
	if f.Email != "" {
		filter["email_key"] = store.NormalizeEmail(f.Email)
	}
	if f.ResetToken != "" {
		filter["reset_token"] = f.ResetToken
		filter["reset_expires"] = bson.M{"$gt": f.ResetAfter}
	}
	cur, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*models.User, 0, len(docs))
	for i := range docs {
		out = append(out, unmarshalUser(&docs[i]))
	}
	return out, nil
}

func (s *userStore) Create(ctx context.Context, u *models.User) error {
	d := marshalUser(u)
	d.Version = 1
	if _, err := s.coll.InsertOne(ctx, d); err != nil {
		return translate(err)
	}
	u.Version = 1
	return nil
}

func (s *userStore) Save(ctx context.Context, u *models.User) error {
	d := marshalUser(u)
	d.Version = u.Version + 1
	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": u.ID, "version": u.Version}, d)
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount == 0 {
		return missingOrConflict(ctx, s.coll, u.ID)
	}
	u.Version = d.Version
	return nil
}

func (s *userStore) Delete(ctx context.Context, id string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}
