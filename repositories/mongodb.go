package repositories

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoRepository implements the server inventory store using MongoDB
type MongoRepository struct {
	client  *mongo.Client
	db      *mongo.Database
	servers *mongo.Collection
	timeout time.Duration
}

// NewMongoRepository creates a new MongoRepository
func NewMongoRepository(uri, dbName string, timeout time.Duration) (*MongoRepository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, err
	}

	db := client.Database(dbName)

	repo := &MongoRepository{
		client:  client,
		db:      db,
		servers: db.Collection("servers"),
		timeout: timeout,
	}

	if err := repo.createIndexes(ctx); err != nil {
		return nil, err
	}

	return repo, nil
}

// createIndexes creates indexes for the servers collection
func (r *MongoRepository) createIndexes(ctx context.Context) error {
	serverIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "server_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "host", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}},
		},
	}

	_, err := r.servers.Indexes().CreateMany(ctx, serverIndexes)
	if err != nil {
		return fmt.Errorf("failed to create server indexes: %w", err)
	}

	return nil
}

// Close closes the MongoDB connection
func (r *MongoRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	return r.client.Disconnect(ctx)
}
