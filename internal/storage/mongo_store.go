package storage

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoProvider stores the blob as one document keyed by vault name.
type MongoProvider struct {
	client *mongo.Client
	coll   *mongo.Collection
	name   string
}

func NewMongoProvider(ctx context.Context, uri, dbName, collName, name string) (*MongoProvider, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is empty")
	}
	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	// Verify connection quickly
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := cli.Ping(pctx, nil); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, err
	}
	return &MongoProvider{
		client: cli,
		coll:   cli.Database(dbName).Collection(collName),
		name:   name,
	}, nil
}

func (m *MongoProvider) Fetch(ctx context.Context) ([]byte, error) {
	var doc struct {
		Data []byte `bson:"data"`
	}
	err := m.coll.FindOne(ctx, bson.M{"_id": m.name}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.Data, nil
}

func (m *MongoProvider) Upload(ctx context.Context, data []byte) error {
	now := time.Now()
	_, err := m.coll.UpdateByID(
		ctx,
		m.name,
		bson.M{
			"$set": bson.M{
				"data":      data,
				"updatedAt": now,
			},
			"$setOnInsert": bson.M{
				"createdAt": now,
			},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

func (m *MongoProvider) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
