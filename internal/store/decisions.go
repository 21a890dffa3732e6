package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/okxtrader/swapagent/internal/model"
)

// RecordDecision persists one structured AI decision, implementing
// orchestrator.DecisionRecorder.
func (s *Store) RecordDecision(ctx context.Context, d model.AIDecision) error {
	if _, err := s.db.Collection(collAIDecisions).InsertOne(ctx, d); err != nil {
		return fmt.Errorf("store: record decision: %w", err)
	}
	return nil
}

// DecisionsForPosition returns the compact reason strings for every
// decision linked to (symbol, openTimeMs), oldest first, implementing
// cache.JournalLookup / review.DecisionHistory.
func (s *Store) DecisionsForPosition(ctx context.Context, symbol string, openTimeMs int64) ([]string, error) {
	filter := bson.M{"symbol": symbol, "posId": openTimeMs}
	opts := options.Find().SetSort(bson.D{{Key: "timestampMs", Value: 1}})
	cursor, err := s.db.Collection(collAIDecisions).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("store: decisions for position: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []model.AIDecision
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("store: decode decisions for position: %w", err)
	}

	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, fmt.Sprintf("[%s] %s conf=%d reason=%s", r.Symbol, r.Action, r.Confidence, r.Reason))
	}
	return out, nil
}

// SetDecisionPosID links a previously recorded decision to the position
// that became discoverable after it, so later DecisionsForPosition /
// OpenRiskPerUnit lookups can find it.
func (s *Store) SetDecisionPosID(ctx context.Context, decisionID string, posID int64) error {
	filter := bson.M{"_id": decisionID}
	update := bson.M{"$set": bson.M{"posId": posID}}
	_, err := s.db.Collection(collAIDecisions).UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("store: set decision posId: %w", err)
	}
	return nil
}

// DecisionsOlderThan returns AI decision rows older than beforeMs, used by
// internal/archive to select rows for cold storage before deleting them
// locally, mirroring ConversationsOlderThan.
func (s *Store) DecisionsOlderThan(ctx context.Context, beforeMs int64, limit int) ([]model.AIDecision, error) {
	filter := bson.M{"timestampMs": bson.M{"$lt": beforeMs}}
	cursor, err := s.db.Collection(collAIDecisions).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("store: decisions older than: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []model.AIDecision
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("store: decode decisions: %w", err)
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// DeleteDecisions removes AI decision rows by ID after a successful
// cold-archive upload.
func (s *Store) DeleteDecisions(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	anyIDs := make([]any, len(ids))
	for i, id := range ids {
		anyIDs[i] = id
	}
	_, err := s.db.Collection(collAIDecisions).DeleteMany(ctx, bson.M{"_id": bson.M{"$in": anyIDs}})
	if err != nil {
		return fmt.Errorf("store: delete decisions: %w", err)
	}
	return nil
}
