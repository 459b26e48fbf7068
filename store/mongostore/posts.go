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

type commentDoc struct {
	ID        string    `bson:"_id"`
	User      string    `bson:"user"`
	Text      string    `bson:"comment"`
	CreatedAt time.Time `bson:"created_at"`
}

type postDoc struct {
	ID        string       `bson:"_id"`
	Owner     string       `bson:"owner"`
	Caption   string       `bson:"caption"`
	Image     models.Image `bson:"image"`
	Likes     []string     `bson:"likes"`
	Comments  []commentDoc `bson:"comments"`
	CreatedAt time.Time    `bson:"created_at"`
	UpdatedAt time.Time    `bson:"updated_at"`
	Version   int64        `bson:"version"`
}

func marshalPost(p *models.Post) *postDoc {
	d := &postDoc{
		ID:        p.ID,
		Owner:     p.Owner,
		Caption:   p.Caption,
		Image:     p.Image,
		Likes:     p.Likes.Slice(),
		Comments:  make([]commentDoc, 0, len(p.Comments)),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
		Version:   p.Version,
	}
	for _, c := range p.Comments {
		d.Comments = append(d.Comments, commentDoc(c))
	}
	return d
}

func unmarshalPost(d *postDoc) *models.Post {
	p := &models.Post{
		ID:        d.ID,
		Owner:     d.Owner,
		Caption:   d.Caption,
		Image:     d.Image,
		Likes:     models.NewIDSet(d.Likes...),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
		Version:   d.Version,
	}
	for _, c := range d.Comments {
		p.Comments = append(p.Comments, models.Comment(c))
	}
	return p
}

type postStore struct {
	coll *mongo.Collection
}

func (s *postStore) Find(ctx context.Context, id string) (*models.Post, error) {
	var d postDoc
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		return nil, translate(err)
	}
	return unmarshalPost(&d), nil
}

func (s *postStore) FindAll(ctx context.Context, f store.PostFilter) ([]*models.Post, error) {
	filter := bson.M{}
	if len(f.IDs) > 0 {
		filter["_id"] = bson.M{"$in": f.IDs}
	}
	if len(f.Owners) > 0 {
		filter["owner"] = bson.M{"$in": f.Owners}
	}
	cur, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []postDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*models.Post, 0, len(docs))
	for i := range docs {
		out = append(out, unmarshalPost(&docs[i]))
	}
	return out, nil
}

func (s *postStore) Create(ctx context.Context, p *models.Post) error {
	d := marshalPost(p)
	d.Version = 1
	if _, err := s.coll.InsertOne(ctx, d); err != nil {
		return translate(err)
	}
	p.Version = 1
	return nil
}

func (s *postStore) Save(ctx context.Context, p *models.Post) error {
	d := marshalPost(p)
	d.Version = p.Version + 1
	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": p.ID, "version": p.Version}, d)
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount == 0 {
		return missingOrConflict(ctx, s.coll, p.ID)
	}
	p.Version = d.Version
	return nil
}

func (s *postStore) Delete(ctx context.Context, id string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}
