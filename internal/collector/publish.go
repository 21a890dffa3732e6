package collector

import (
	"context"
	"time"

	"github.com/okxtrader/swapagent/internal/fastcache"
	"github.com/okxtrader/swapagent/internal/model"
	"github.com/okxtrader/swapagent/internal/orderbook"
)

func toBookSnapshot(snap orderbook.Snapshot, nowMs int64) fastcache.BookSnapshot {
	return fastcache.BookSnapshot{
		Symbol:    snap.Symbol,
		Bids:      toModelLevels(snap.Bids),
		Asks:      toModelLevels(snap.Asks),
		UpdatedMs: nowMs,
	}
}

func toModelLevels(levels []orderbook.Level) []model.OrderBookLevel {
	out := make([]model.OrderBookLevel, len(levels))
	for i, l := range levels {
		out[i] = model.OrderBookLevel{Price: l.Price, Size: l.Size}
	}
	return out
}

// publishBookLoop periodically snapshots each symbol's book, persisting the
// aggregate metrics via sink and refreshing the live snapshot in fastCache,
// so the trading agent (reading only from the store/fastCache) sees a
// current picture without touching the collector's in-memory Book directly.
func (c *Collector) publishBookLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.BookPublishEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.publishBooks(ctx)
		}
	}
}

func (c *Collector) publishBooks(ctx context.Context) {
	now := time.UnixMilli(c.cfg.NowMs())
	for sym, st := range c.symbols {
		if !st.Book.Initialized() {
			continue
		}
		snap := st.Book.Snapshot(c.cfg.BookDepth)

		if c.sink != nil {
			if err := c.sink.RecordBookMetrics(ctx, st.Book.ComputeMetrics(now)); err != nil {
				c.log.Warn().Err(err).Str("symbol", sym).Msg("collector: record book metrics failed")
			}
		}
		if c.fastCache != nil {
			if err := c.fastCache.StoreBook(ctx, toBookSnapshot(snap, c.cfg.NowMs())); err != nil {
				c.log.Warn().Err(err).Str("symbol", sym).Msg("collector: store book snapshot failed")
			}
		}
	}
}
