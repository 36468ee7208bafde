package audit

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionName = "audit_events"

type mongoBackend struct {
	coll *mongo.Collection
}

// NewMongoService stores events in the audit_events collection of db.
func NewMongoService(db *mongo.Database) Service {
	return newService(&mongoBackend{coll: db.Collection(collectionName)})
}

// EnsureIndexes creates the indexes used by history lookups.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(collectionName).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "resource", Value: 1},
			{Key: "resource_id", Value: 1},
			{Key: "timestamp", Value: -1},
		},
	})
	return err
}

func (b *mongoBackend) index(ctx context.Context, event *AuditEvent) error {
	_, err := b.coll.InsertOne(ctx, event)
	return err
}

func (b *mongoBackend) search(ctx context.Context, filters map[string]interface{}, from, size int) ([]AuditEvent, error) {
	filter := bson.M{}
	for field, value := range filters {
		filter[field] = value
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetSkip(int64(from)).
		SetLimit(int64(size))

	cursor, err := b.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	events := []AuditEvent{}
	if err := cursor.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}
