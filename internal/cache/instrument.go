package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/okxtrader/swapagent/internal/okx"
)

// InstrumentFetcher is the REST surface InstrumentCache depends on.
type InstrumentFetcher interface {
	GetInstrument(ctx context.Context, instID string) (okx.Instrument, error)
}

// InstrumentCache refreshes one symbol's contract metadata (minSz, lotSz,
// tickSz, contract value) on a long cadence, per the supplemented
// instrument-metadata-cache feature: this rarely changes, so a 1-hour
// refresh is enough to catch exchange-side updates without extra load.
type InstrumentCache struct {
	staleTracker

	fetcher InstrumentFetcher
	symbol  string
	log     zerolog.Logger

	mu   sync.RWMutex
	meta okx.Instrument
}

// NewInstrumentCache builds an InstrumentCache for symbol.
func NewInstrumentCache(fetcher InstrumentFetcher, symbol string, logger zerolog.Logger) *InstrumentCache {
	return &InstrumentCache{fetcher: fetcher, symbol: symbol, log: logger.With().Str("subsystem", "cache-instrument").Logger()}
}

// Run blocks, refreshing hourly until ctx is cancelled.
func (c *InstrumentCache) Run(ctx context.Context) {
	runTicker(ctx, time.Hour, c.refresh)
}

// Snapshot returns the most recently fetched instrument metadata.
func (c *InstrumentCache) Snapshot() okx.Instrument {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.meta
}

func (c *InstrumentCache) refresh(ctx context.Context) {
	c.checkStale(time.Now(), "instrument", c.log)

	meta, err := c.fetcher.GetInstrument(ctx, c.symbol)
	if err != nil {
		c.log.Warn().Err(err).Str("symbol", c.symbol).Msg("cache: instrument refresh failed")
		return
	}
	c.mu.Lock()
	c.meta = meta
	c.mu.Unlock()
	c.markRefreshed(time.Now())
}
