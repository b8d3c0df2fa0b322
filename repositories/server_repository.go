package repositories

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"vps-gateway-service/models"
)

// ErrServerNotFound is returned when a server id has no inventory record.
var ErrServerNotFound = errors.New("server not found")

// ServerStore is the read/update surface the gateway needs from the server
// inventory.
type ServerStore interface {
	FindServerByID(ctx context.Context, serverID string) (*models.ServerRecord, error)
	ListServers(ctx context.Context, limit, offset int) ([]*models.ServerRecord, error)
	UpdateServer(ctx context.Context, serverID string, update *models.ServerUpdateRequest) error
	UpdateServerMetrics(ctx context.Context, serverID string, metrics *models.ServerMetrics) error
	DeleteServer(ctx context.Context, serverID string) error
}

// FindServerByID gets a server record by its opaque id
func (r *MongoRepository) FindServerByID(ctx context.Context, serverID string) (*models.ServerRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var server models.ServerRecord
	err := r.servers.FindOne(ctx, bson.M{"server_id": serverID}).Decode(&server)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrServerNotFound
		}
		return nil, err
	}

	return &server, nil
}

// ListServers returns server records ordered by creation time
func (r *MongoRepository) ListServers(ctx context.Context, limit, offset int) ([]*models.ServerRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	findOptions := options.Find()
	findOptions.SetSort(bson.M{"created_at": -1})
	findOptions.SetLimit(int64(limit))
	findOptions.SetSkip(int64(offset))

	cursor, err := r.servers.Find(ctx, bson.M{}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var servers []*models.ServerRecord
	if err = cursor.All(ctx, &servers); err != nil {
		return nil, err
	}

	return servers, nil
}

// UpdateServer updates the mutable fields of a server record
func (r *MongoRepository) UpdateServer(ctx context.Context, serverID string, update *models.ServerUpdateRequest) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	set := bson.M{"updated_at": time.Now().UTC()}
	if update.Name != nil {
		set["name"] = *update.Name
	}
	if update.Host != nil {
		set["host"] = *update.Host
	}
	if update.Port != nil {
		set["port"] = *update.Port
	}
	if update.Username != nil {
		set["username"] = *update.Username
	}
	if update.Status != nil {
		set["status"] = *update.Status
	}

	result, err := r.servers.UpdateOne(ctx, bson.M{"server_id": serverID}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrServerNotFound
	}

	return nil
}

// UpdateServerMetrics stores the last collected metrics for a server
func (r *MongoRepository) UpdateServerMetrics(ctx context.Context, serverID string, metrics *models.ServerMetrics) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	update := bson.M{
		"$set": bson.M{
			"metrics":        metrics,
			"last_connected": time.Now().UTC(),
			"updated_at":     time.Now().UTC(),
		},
	}

	_, err := r.servers.UpdateOne(ctx, bson.M{"server_id": serverID}, update)
	return err
}

// DeleteServer removes a server record
func (r *MongoRepository) DeleteServer(ctx context.Context, serverID string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.servers.DeleteOne(ctx, bson.M{"server_id": serverID})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrServerNotFound
	}

	return nil
}
