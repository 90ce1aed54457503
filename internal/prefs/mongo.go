package prefs

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoCollection is the collection holding one document per user.
const MongoCollection = "users"

// MongoStore keeps preferences in a users collection as
// {_id: userID, categories: [...]}. Other fields of the document are left
// untouched.
type MongoStore struct {
	coll *mongo.Collection
}

// NewMongoStore creates a preference store on db.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection(MongoCollection)}
}

// ConnectMongo opens a client, verifies it with a ping and returns the named
// database.
func ConnectMongo(ctx context.Context, uri, database string) (*mongo.Client, *mongo.Database, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, client.Database(database), nil
}

type userDoc struct {
	ID         int      `bson:"_id"`
	Categories []string `bson:"categories"`
}

func (s *MongoStore) GetCategories(ctx context.Context, userID int) ([]string, error) {
	var doc userDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get preferences: %w", err)
	}
	if len(doc.Categories) == 0 {
		return nil, nil
	}
	return doc.Categories, nil
}

func (s *MongoStore) SetCategories(ctx context.Context, userID int, categories []string) error {
	if categories == nil {
		categories = []string{}
	}
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"categories": categories}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("set preferences: %w", err)
	}
	return nil
}
