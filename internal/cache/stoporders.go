package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/okxtrader/swapagent/internal/okx"
)

// StopOrdersFetcher is the REST surface StopOrdersCache depends on.
type StopOrdersFetcher interface {
	GetPendingOrders(ctx context.Context, instID string) ([]okx.PendingOrder, error)
	GetPendingAlgoOrders(ctx context.Context, instID string) ([]okx.PendingAlgoOrder, error)
}

// StopOrders is the TP (limit) and SL (algo) legs resting for one symbol,
// each sorted ascending by price (limits) or SL trigger price (algos);
// orders of both position sides share the same lists.
type StopOrders struct {
	TakeProfit []okx.PendingOrder
	StopLoss   []okx.PendingAlgoOrder
}

// StopOrdersCache refreshes resting TP/SL orders every 20s.
type StopOrdersCache struct {
	staleTracker

	fetcher StopOrdersFetcher
	symbols []string
	log     zerolog.Logger

	mu   sync.RWMutex
	byKey map[string]StopOrders // symbol -> orders
}

func NewStopOrdersCache(fetcher StopOrdersFetcher, symbols []string, logger zerolog.Logger) *StopOrdersCache {
	return &StopOrdersCache{
		fetcher: fetcher,
		symbols: symbols,
		log:     logger.With().Str("subsystem", "cache-stoporders").Logger(),
		byKey:   make(map[string]StopOrders),
	}
}

func (c *StopOrdersCache) Run(ctx context.Context) {
	runTicker(ctx, 20*time.Second, c.refresh)
}

func (c *StopOrdersCache) Snapshot(symbol string) StopOrders {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byKey[symbol]
}

func (c *StopOrdersCache) refresh(ctx context.Context) {
	c.checkStale(time.Now(), "stoporders", c.log)

	next := make(map[string]StopOrders, len(c.symbols))
	for _, sym := range c.symbols {
		limits, err := c.fetcher.GetPendingOrders(ctx, sym)
		if err != nil {
			c.log.Warn().Err(err).Str("symbol", sym).Msg("cache: pending orders refresh failed")
			continue
		}
		algos, err := c.fetcher.GetPendingAlgoOrders(ctx, sym)
		if err != nil {
			c.log.Warn().Err(err).Str("symbol", sym).Msg("cache: pending algo orders refresh failed")
			continue
		}
		sortOrdersByPrice(limits)
		sortAlgosByTrigger(algos)
		next[sym] = StopOrders{TakeProfit: limits, StopLoss: algos}
	}

	c.mu.Lock()
	c.byKey = next
	c.mu.Unlock()
	c.markRefreshed(time.Now())
}

func sortOrdersByPrice(rows []okx.PendingOrder) {
	sort.Slice(rows, func(i, j int) bool {
		pi, _ := decimal.NewFromString(rows[i].Px)
		pj, _ := decimal.NewFromString(rows[j].Px)
		return pi.LessThan(pj)
	})
}

func sortAlgosByTrigger(rows []okx.PendingAlgoOrder) {
	sort.Slice(rows, func(i, j int) bool {
		pi, _ := decimal.NewFromString(rows[i].SlTriggerPx)
		pj, _ := decimal.NewFromString(rows[j].SlTriggerPx)
		return pi.LessThan(pj)
	})
}
