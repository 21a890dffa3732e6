package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/okxtrader/swapagent/internal/model"
)

// RecordConversation persists one full LLM prompt/response pair, used for
// audit and for the archiver's cold-storage pass.
func (s *Store) RecordConversation(ctx context.Context, rec model.ConversationRecord) error {
	if _, err := s.db.Collection(collConversations).InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("store: record conversation: %w", err)
	}
	return nil
}

// ConversationsOlderThan returns conversation records with no corresponding
// recent activity, used by internal/archive to select rows for cold
// storage before deleting them locally.
func (s *Store) ConversationsOlderThan(ctx context.Context, beforeMs int64, limit int) ([]model.ConversationRecord, error) {
	filter := bson.M{"createdAtMs": bson.M{"$lt": beforeMs}}
	cursor, err := s.db.Collection(collConversations).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("store: conversations older than: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []model.ConversationRecord
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("store: decode conversations: %w", err)
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// DeleteConversations removes conversation rows by ID after a successful
// cold-archive upload.
func (s *Store) DeleteConversations(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	anyIDs := make([]any, len(ids))
	for i, id := range ids {
		anyIDs[i] = id
	}
	_, err := s.db.Collection(collConversations).DeleteMany(ctx, bson.M{"_id": bson.M{"$in": anyIDs}})
	if err != nil {
		return fmt.Errorf("store: delete conversations: %w", err)
	}
	return nil
}
