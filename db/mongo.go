// db/mongo.go
package db

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/2314069/renku-app/models"
)

// ErrNotFound is returned when no document exists for an id.
var ErrNotFound = errors.New("not found")

type Store struct {
	client *mongo.Client
	renku  *mongo.Collection
}

func NewStore(uri, dbName string) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	return &Store{
		client: client,
		renku:  client.Database(dbName).Collection("renku"),
	}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// CanonicalID maps both id encodings the API accepts (24-hex ObjectID text
// and legacy raw string keys) onto one lookup key. Lock keys and store
// queries must both go through here so the two encodings can never address
// the same document differently.
func CanonicalID(id string) string {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return oid.Hex()
	}
	return id
}

// idFilter builds the _id query for either id encoding.
func idFilter(id string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.M{"_id": oid}
	}
	return bson.M{"_id": id}
}

// Insert persists a new renku, assigning an id when the caller left it zero.
func (s *Store) Insert(ctx context.Context, r *models.Renku) error {
	if r.ID.IsZero() {
		r.ID = primitive.NewObjectID()
	}
	_, err := s.renku.InsertOne(ctx, r)
	return err
}

func (s *Store) Get(ctx context.Context, id string) (*models.Renku, error) {
	var r models.Renku
	err := s.renku.FindOne(ctx, idFilter(id)).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// List returns up to limit documents, most recently updated first.
func (s *Store) List(ctx context.Context, limit int64) ([]models.Renku, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "updatedAt", Value: -1}}).
		SetLimit(limit)

	cursor, err := s.renku.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	renkus := []models.Renku{}
	if err := cursor.All(ctx, &renkus); err != nil {
		return nil, err
	}
	return renkus, nil
}

// Replace rewrites the whole stored document. There is no finer-grained
// update path; every mutation goes through here.
func (s *Store) Replace(ctx context.Context, id string, r *models.Renku) error {
	res, err := s.renku.ReplaceOne(ctx, idFilter(id), r)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.renku.DeleteOne(ctx, idFilter(id))
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
