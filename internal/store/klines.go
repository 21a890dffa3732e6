package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/okxtrader/swapagent/internal/model"
)

// UpsertKline inserts or replaces one kline, implementing kline.Persister.
func (s *Store) UpsertKline(ctx context.Context, k model.Kline) error {
	filter := bson.M{"symbol": k.Symbol, "timeframe": k.Timeframe, "openTimeMs": k.OpenTimeMs}
	_, err := s.db.Collection(collKlines).ReplaceOne(ctx, filter, k, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("store: upsert kline: %w", err)
	}
	return nil
}

// GetKline fetches one kline by its primary key.
func (s *Store) GetKline(ctx context.Context, symbol, timeframe string, openTimeMs int64) (model.Kline, bool, error) {
	filter := bson.M{"symbol": symbol, "timeframe": timeframe, "openTimeMs": openTimeMs}
	var k model.Kline
	err := s.db.Collection(collKlines).FindOne(ctx, filter).Decode(&k)
	if err == mongo.ErrNoDocuments {
		return model.Kline{}, false, nil
	}
	if err != nil {
		return model.Kline{}, false, fmt.Errorf("store: get kline: %w", err)
	}
	return k, true, nil
}

// ListUnconfirmedBefore returns unconfirmed klines whose openTimeMs has
// already passed, candidates for the startup repair pass.
func (s *Store) ListUnconfirmedBefore(ctx context.Context, symbol, timeframe string, nowMs int64) ([]model.Kline, error) {
	filter := bson.M{
		"symbol":     symbol,
		"timeframe":  timeframe,
		"confirmed":  false,
		"openTimeMs": bson.M{"$lt": nowMs},
	}
	cursor, err := s.db.Collection(collKlines).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("store: list unconfirmed klines: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []model.Kline
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("store: decode unconfirmed klines: %w", err)
	}
	return rows, nil
}

// ListOpenTimes returns the set of persisted openTimeMs values within
// [fromMs, toMs], used by gap detection's contiguous-run comparison.
func (s *Store) ListOpenTimes(ctx context.Context, symbol, timeframe string, fromMs, toMs int64) (map[int64]bool, error) {
	filter := bson.M{
		"symbol":     symbol,
		"timeframe":  timeframe,
		"openTimeMs": bson.M{"$gte": fromMs, "$lte": toMs},
	}
	opts := options.Find().SetProjection(bson.M{"openTimeMs": 1})
	cursor, err := s.db.Collection(collKlines).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("store: list open times: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		OpenTimeMs int64 `bson:"openTimeMs"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("store: decode open times: %w", err)
	}

	out := make(map[int64]bool, len(rows))
	for _, r := range rows {
		out[r.OpenTimeMs] = true
	}
	return out, nil
}

// BatchUpsertKlines upserts many klines in one bulk write, used by the
// backfiller after paging REST candle history.
func (s *Store) BatchUpsertKlines(ctx context.Context, ks []model.Kline) error {
	if len(ks) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, len(ks))
	for i, k := range ks {
		filter := bson.M{"symbol": k.Symbol, "timeframe": k.Timeframe, "openTimeMs": k.OpenTimeMs}
		models[i] = mongo.NewReplaceOneModel().SetFilter(filter).SetReplacement(k).SetUpsert(true)
	}
	_, err := s.db.Collection(collKlines).BulkWrite(ctx, models)
	if err != nil {
		return fmt.Errorf("store: batch upsert klines: %w", err)
	}
	return nil
}

// RecentKlines returns the most recent confirmed klines, oldest first.
func (s *Store) RecentKlines(ctx context.Context, symbol, timeframe string, limit int) ([]model.Kline, error) {
	return s.queryRecentKlines(ctx, symbol, timeframe, nil, limit)
}

// RecentKlinesBefore returns up to limit confirmed klines with
// openTimeMs <= beforeMs, oldest first, used by internal/review to build
// market context ending near a position's close time.
func (s *Store) RecentKlinesBefore(ctx context.Context, symbol, timeframe string, beforeMs int64, limit int) ([]model.Kline, error) {
	return s.queryRecentKlines(ctx, symbol, timeframe, &beforeMs, limit)
}

func (s *Store) queryRecentKlines(ctx context.Context, symbol, timeframe string, beforeMs *int64, limit int) ([]model.Kline, error) {
	filter := bson.M{"symbol": symbol, "timeframe": timeframe, "confirmed": true}
	if beforeMs != nil {
		filter["openTimeMs"] = bson.M{"$lte": *beforeMs}
	}
	opts := options.Find().SetSort(bson.D{{Key: "openTimeMs", Value: -1}}).SetLimit(int64(limit))

	cursor, err := s.db.Collection(collKlines).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("store: query recent klines: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []model.Kline
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("store: decode recent klines: %w", err)
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}
