package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// EnsureIndexes creates idempotent indexes on every collection.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	type idx struct {
		collection string
		model      mongo.IndexModel
	}

	indexes := []idx{
		{
			collection: collKlines,
			model: mongo.IndexModel{
				Keys: bson.D{
					{Key: "symbol", Value: 1},
					{Key: "timeframe", Value: 1},
					{Key: "openTimeMs", Value: 1},
				},
				Options: options.Index().SetUnique(true),
			},
		},
		{
			collection: collKlines,
			model: mongo.IndexModel{
				Keys: bson.D{
					{Key: "symbol", Value: 1},
					{Key: "timeframe", Value: 1},
					{Key: "confirmed", Value: 1},
				},
			},
		},
		{
			collection: collClosedPositions,
			model: mongo.IndexModel{
				Keys: bson.D{
					{Key: "symbol", Value: 1},
					{Key: "openTimeMs", Value: 1},
				},
				Options: options.Index().SetUnique(true),
			},
		},
		{
			collection: collClosedPositions,
			model: mongo.IndexModel{
				Keys: bson.D{{Key: "closeTimeMs", Value: -1}},
			},
		},
		{
			collection: collClosedPositions,
			model: mongo.IndexModel{
				Keys: bson.D{{Key: "reviewSummary", Value: 1}},
			},
		},
		{
			collection: collAIDecisions,
			model: mongo.IndexModel{
				Keys: bson.D{
					{Key: "symbol", Value: 1},
					{Key: "posId", Value: 1},
				},
			},
		},
		{
			collection: collAIDecisions,
			model: mongo.IndexModel{
				Keys: bson.D{{Key: "timestampMs", Value: -1}},
			},
		},
		{
			collection: collConversations,
			model: mongo.IndexModel{
				Keys: bson.D{{Key: "sessionId", Value: 1}},
			},
		},
		{
			collection: collOrderbookMetrics,
			model: mongo.IndexModel{
				Keys: bson.D{
					{Key: "symbol", Value: 1},
					{Key: "computedAt", Value: -1},
				},
			},
		},
	}

	for _, i := range indexes {
		if _, err := db.Collection(i.collection).Indexes().CreateOne(ctx, i.model); err != nil {
			return fmt.Errorf("store: create index on %s: %w", i.collection, err)
		}
	}
	return nil
}
