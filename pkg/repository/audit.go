package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/example/storefront/pkg/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AuditEntry is one order lifecycle event kept in MongoDB.
type AuditEntry struct {
	ID        string    `bson:"_id,omitempty" json:"-"`
	Service   string    `bson:"service" json:"service"`
	Action    string    `bson:"action" json:"action"`
	OrderID   string    `bson:"order_id" json:"order_id"`
	Data      bson.M    `bson:"data" json:"data"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// AuditStore appends order events to a MongoDB collection.
type AuditStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	service    string
}

func NewAuditStore(ctx context.Context, cfg *config.MongoDBConfig, service string) (*AuditStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &AuditStore{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		service:    service,
	}, nil
}

func (a *AuditStore) Close(ctx context.Context) error {
	return a.client.Disconnect(ctx)
}

// Record stores action for orderID with free-form data.
func (a *AuditStore) Record(ctx context.Context, action string, orderID uint, data map[string]interface{}) error {
	entry := &AuditEntry{
		Service:   a.service,
		Action:    action,
		OrderID:   strconv.FormatUint(uint64(orderID), 10),
		Data:      bson.M(data),
		CreatedAt: time.Now(),
	}
	if _, err := a.collection.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// ForOrder returns the newest entries for orderID first.
func (a *AuditStore) ForOrder(ctx context.Context, orderID uint, limit int64) ([]*AuditEntry, error) {
	filter := bson.M{"order_id": strconv.FormatUint(uint64(orderID), 10)}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)

	cursor, err := a.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []*AuditEntry
	if err = cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
