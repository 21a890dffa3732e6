package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/okxtrader/swapagent/internal/okx"
)

// FundingFetcher is the REST surface FundingCache depends on.
type FundingFetcher interface {
	GetFundingRate(ctx context.Context, instID string) (okx.FundingRate, error)
}

// FundingCache refreshes the public funding rate every 20s.
type FundingCache struct {
	staleTracker

	fetcher FundingFetcher
	symbols []string
	log     zerolog.Logger

	mu   sync.RWMutex
	byKey map[string]okx.FundingRate
}

func NewFundingCache(fetcher FundingFetcher, symbols []string, logger zerolog.Logger) *FundingCache {
	return &FundingCache{fetcher: fetcher, symbols: symbols, log: logger.With().Str("subsystem", "cache-funding").Logger(), byKey: make(map[string]okx.FundingRate)}
}

func (c *FundingCache) Run(ctx context.Context) {
	runTicker(ctx, 20*time.Second, c.refresh)
}

func (c *FundingCache) Snapshot(symbol string) (okx.FundingRate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.byKey[symbol]
	return v, ok
}

func (c *FundingCache) refresh(ctx context.Context) {
	c.checkStale(time.Now(), "funding", c.log)

	next := make(map[string]okx.FundingRate, len(c.symbols))
	for _, sym := range c.symbols {
		rate, err := c.fetcher.GetFundingRate(ctx, sym)
		if err != nil {
			c.log.Warn().Err(err).Str("symbol", sym).Msg("cache: funding refresh failed")
			continue
		}
		next[sym] = rate
	}

	c.mu.Lock()
	c.byKey = next
	c.mu.Unlock()
	c.markRefreshed(time.Now())
}

// MarketStatsFetcher is the REST surface MarketStatsCache depends on.
type MarketStatsFetcher interface {
	GetOpenInterest(ctx context.Context, instID string) (okx.OpenInterest, error)
	GetTakerVolume(ctx context.Context, instID, period string) ([]okx.TakerVolume, error)
}

// MarketStats is the open-interest and taker-volume snapshot for one symbol.
type MarketStats struct {
	OpenInterest okx.OpenInterest
	TakerVolume  []okx.TakerVolume
}

// MarketStatsCache refreshes open-interest and taker-volume every 30s.
type MarketStatsCache struct {
	staleTracker

	fetcher MarketStatsFetcher
	symbols []string
	log     zerolog.Logger

	mu    sync.RWMutex
	byKey map[string]MarketStats
}

func NewMarketStatsCache(fetcher MarketStatsFetcher, symbols []string, logger zerolog.Logger) *MarketStatsCache {
	return &MarketStatsCache{fetcher: fetcher, symbols: symbols, log: logger.With().Str("subsystem", "cache-marketstats").Logger(), byKey: make(map[string]MarketStats)}
}

func (c *MarketStatsCache) Run(ctx context.Context) {
	runTicker(ctx, 30*time.Second, c.refresh)
}

func (c *MarketStatsCache) Snapshot(symbol string) (MarketStats, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.byKey[symbol]
	return v, ok
}

func (c *MarketStatsCache) refresh(ctx context.Context) {
	c.checkStale(time.Now(), "marketstats", c.log)

	next := make(map[string]MarketStats, len(c.symbols))
	for _, sym := range c.symbols {
		oi, err := c.fetcher.GetOpenInterest(ctx, sym)
		if err != nil {
			c.log.Warn().Err(err).Str("symbol", sym).Msg("cache: open interest refresh failed")
			continue
		}
		vol, err := c.fetcher.GetTakerVolume(ctx, sym, "5m")
		if err != nil {
			c.log.Warn().Err(err).Str("symbol", sym).Msg("cache: taker volume refresh failed")
			continue
		}
		next[sym] = MarketStats{OpenInterest: oi, TakerVolume: vol}
	}

	c.mu.Lock()
	c.byKey = next
	c.mu.Unlock()
	c.markRefreshed(time.Now())
}
