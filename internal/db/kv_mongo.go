package wallet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	model "github.com/glkeru/loyalty/wallet/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoStore struct {
	mgo  *mongo.Client
	coll *mongo.Collection
}

type mongoEntry struct {
	Key   string `bson:"_id"`
	Value string `bson:"value"`
}

func NewMongoStore() (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mng := os.Getenv("WALLET_MONGO")
	if mng == "" {
		return nil, fmt.Errorf("env WALLET_MONGO is not set")
	}

	options := options.Client().ApplyURI("mongodb://" + mng)
	client, err := mongo.Connect(ctx, options)
	if err != nil {
		return nil, err
	}
	err = client.Ping(ctx, nil)
	if err != nil {
		return nil, err
	}
	db := client.Database("walletDB")
	coll := db.Collection("cards")

	return &MongoStore{client, coll}, nil
}

func (m *MongoStore) Get(ctx context.Context, key string) (value string, err error) {
	var entry mongoEntry
	err = m.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", fmt.Errorf("key %s: %w", key, model.ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return entry.Value, nil
}

func (m *MongoStore) Put(ctx context.Context, key string, value string) error {
	opts := options.Update().SetUpsert(true)
	_, err := m.coll.UpdateOne(ctx, bson.M{"_id": key}, bson.M{"$set": bson.M{"value": value}}, opts)
	return err
}

func (m *MongoStore) PutIfAbsent(ctx context.Context, key string, value string) error {
	_, err := m.coll.InsertOne(ctx, mongoEntry{key, value})
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("key %s: %w", key, model.ErrConflict)
	}
	return err
}

// CAS через фильтр по старому значению
func (m *MongoStore) CompareAndSwap(ctx context.Context, key string, oldValue string, newValue string) error {
	filter := bson.M{"_id": key, "value": oldValue}
	res, err := m.coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"value": newValue}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		// ключа нет или значение поменялось
		err = m.coll.FindOne(ctx, bson.M{"_id": key}).Err()
		if errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("key %s: %w", key, model.ErrNotFound)
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("key %s: %w", key, model.ErrConflict)
	}
	return nil
}

func (m *MongoStore) Delete(ctx context.Context, key string) error {
	_, err := m.coll.DeleteOne(ctx, bson.M{"_id": key})
	return err
}
