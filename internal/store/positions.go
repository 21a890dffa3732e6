package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/shopspring/decimal"

	"github.com/okxtrader/swapagent/internal/model"
)

// BatchUpsertClosedPositions upserts many closed-position rows keyed by
// (symbol, openTimeMs), implementing cache.ClosedPositionStore. The update
// never sets reviewSummary, so a later history refresh rewrites a row's
// trade fields but never wipes out a completed review.
func (s *Store) BatchUpsertClosedPositions(ctx context.Context, rows []model.ClosedPosition) error {
	if len(rows) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, len(rows))
	for i, row := range rows {
		filter := bson.M{"symbol": row.Symbol, "openTimeMs": row.OpenTimeMs}
		update := bson.M{"$set": bson.M{
			"symbol":      row.Symbol,
			"posSide":     row.PosSide,
			"size":        row.Size,
			"avgPx":       row.AvgPx,
			"openTimeMs":  row.OpenTimeMs,
			"closeTimeMs": row.CloseTimeMs,
			"realizedPnl": row.RealizedPnl,
			"feeTotal":    row.FeeTotal,
		}}
		models[i] = mongo.NewUpdateOneModel().SetFilter(filter).SetUpdate(update).SetUpsert(true)
	}
	_, err := s.db.Collection(collClosedPositions).BulkWrite(ctx, models)
	if err != nil {
		return fmt.Errorf("store: batch upsert closed positions: %w", err)
	}
	return nil
}

// ListClosedWithoutReview returns up to limit closed positions with an
// empty reviewSummary, newest close first.
func (s *Store) ListClosedWithoutReview(ctx context.Context, limit int) ([]model.ClosedPosition, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"reviewSummary": bson.M{"$exists": false}},
		bson.M{"reviewSummary": ""},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "closeTimeMs", Value: -1}}).SetLimit(int64(limit))

	cursor, err := s.db.Collection(collClosedPositions).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("store: list closed without review: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []model.ClosedPosition
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("store: decode closed without review: %w", err)
	}
	return rows, nil
}

// FindClosedPosition fetches one closed position by (symbol, openTimeMs),
// implementing review.Store.
func (s *Store) FindClosedPosition(ctx context.Context, symbol string, openTimeMs int64) (model.ClosedPosition, bool, error) {
	filter := bson.M{"symbol": symbol, "openTimeMs": openTimeMs}
	var row model.ClosedPosition
	err := s.db.Collection(collClosedPositions).FindOne(ctx, filter).Decode(&row)
	if err == mongo.ErrNoDocuments {
		return model.ClosedPosition{}, false, nil
	}
	if err != nil {
		return model.ClosedPosition{}, false, fmt.Errorf("store: find closed position: %w", err)
	}
	return row, true, nil
}

// SetReviewSummary writes the one-shot C10 review summary onto a closed
// position row, implementing review.Store.
func (s *Store) SetReviewSummary(ctx context.Context, symbol string, openTimeMs int64, summary string) error {
	filter := bson.M{"symbol": symbol, "openTimeMs": openTimeMs}
	update := bson.M{"$set": bson.M{"reviewSummary": summary}}
	_, err := s.db.Collection(collClosedPositions).UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("store: set review summary: %w", err)
	}
	return nil
}

// RecentClosedSince returns closed positions with closeTimeMs >= sinceMs,
// used to compute the supplemented 30-day win-rate/R-multiple stats.
func (s *Store) RecentClosedSince(ctx context.Context, sinceMs int64) ([]model.ClosedPosition, error) {
	filter := bson.M{"closeTimeMs": bson.M{"$gte": sinceMs}}
	cursor, err := s.db.Collection(collClosedPositions).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("store: recent closed since: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []model.ClosedPosition
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("store: decode recent closed: %w", err)
	}
	return rows, nil
}

// OpenRiskPerUnit resolves the stop-loss distance recorded in the most
// recent AI decision for (symbol, openTimeMs) before its position was
// opened — the per-unit risk used to compute the R-multiple stat. It
// returns ok=false when that decision carried no adjust_data stop-loss
// layer (stop_loss_rate is not consulted).
func (s *Store) OpenRiskPerUnit(ctx context.Context, symbol string, openTimeMs int64) (decimal.Decimal, bool, error) {
	filter := bson.M{"symbol": symbol, "posId": openTimeMs}
	opts := options.Find().SetSort(bson.D{{Key: "timestampMs", Value: 1}}).SetLimit(1)

	cursor, err := s.db.Collection(collAIDecisions).Find(ctx, filter, opts)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("store: open risk lookup: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []model.AIDecision
	if err := cursor.All(ctx, &rows); err != nil {
		return decimal.Zero, false, fmt.Errorf("store: decode open risk decision: %w", err)
	}
	if len(rows) == 0 || rows[0].AdjustData == nil || len(rows[0].AdjustData.StopLoss) == 0 {
		return decimal.Zero, false, nil
	}

	entry, _, err := s.findEntryPrice(ctx, symbol, openTimeMs)
	if err != nil || entry.IsZero() {
		return decimal.Zero, false, nil
	}

	sl := rows[0].AdjustData.StopLoss[0].Price
	return entry.Sub(sl).Abs(), true, nil
}

func (s *Store) findEntryPrice(ctx context.Context, symbol string, openTimeMs int64) (decimal.Decimal, bool, error) {
	row, found, err := s.FindClosedPosition(ctx, symbol, openTimeMs)
	if err != nil || !found {
		return decimal.Zero, found, err
	}
	return row.AvgPx, true, nil
}
