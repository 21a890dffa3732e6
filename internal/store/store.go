// Package store is the MongoDB-backed persistence layer: klines, closed
// positions, AI decisions, full LLM conversations, and order-book metrics
// snapshots. Grounded on the feed simulator's internal/persist package
// (connect-by-URI, idempotent index creation, collection-per-concern
// layout), adapted from tick/order book data to the trading agent's
// domain documents.
package store

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	collKlines          = "klines"
	collClosedPositions = "closed_positions"
	collAIDecisions     = "ai_decisions"
	collConversations   = "conversations"
	collOrderbookMetrics = "orderbook_metrics"
)

// Store wraps the MongoDB client and database for the agent's collections.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	log    zerolog.Logger
}

// New connects to MongoDB at uri (which should include the database name,
// e.g. mongodb://localhost:27017/swapagent) and returns a Store. A missing
// database path defaults to "swapagent".
func New(ctx context.Context, uri string, logger zerolog.Logger) (*Store, error) {
	clientOpts := options.Client().ApplyURI(uri).SetRegistry(buildRegistry())

	client, err := mongo.Connect(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	dbName := "swapagent"
	if u, err := url.Parse(uri); err == nil {
		if name := strings.TrimPrefix(u.Path, "/"); name != "" {
			dbName = name
		}
	}

	log := logger.With().Str("subsystem", "store").Logger()
	log.Info().Str("db", dbName).Msg("store: connected to mongodb")
	return &Store{client: client, db: client.Database(dbName), log: log}, nil
}

// Close disconnects from MongoDB.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Migrate ensures all collection indexes exist; safe to call on every boot.
func (s *Store) Migrate(ctx context.Context) error {
	return EnsureIndexes(ctx, s.db)
}
