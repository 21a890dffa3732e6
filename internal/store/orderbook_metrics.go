package store

import (
	"context"
	"fmt"

	"github.com/okxtrader/swapagent/internal/orderbook"
)

// RecordBookMetrics persists one order-book metrics snapshot, implementing
// collector.MetricsSink.
func (s *Store) RecordBookMetrics(ctx context.Context, m orderbook.Metrics) error {
	if _, err := s.db.Collection(collOrderbookMetrics).InsertOne(ctx, m); err != nil {
		return fmt.Errorf("store: record book metrics: %w", err)
	}
	return nil
}
