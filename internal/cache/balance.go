package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/okxtrader/swapagent/internal/okx"
)

// BalanceFetcher is the REST surface BalanceCache depends on.
type BalanceFetcher interface {
	GetBalance(ctx context.Context) ([]okx.Balance, error)
}

// BalanceCache refreshes account balance every 30s.
type BalanceCache struct {
	staleTracker

	fetcher BalanceFetcher
	log     zerolog.Logger

	mu    sync.RWMutex
	rows  []okx.Balance
}

func NewBalanceCache(fetcher BalanceFetcher, logger zerolog.Logger) *BalanceCache {
	return &BalanceCache{fetcher: fetcher, log: logger.With().Str("subsystem", "cache-balance").Logger()}
}

func (c *BalanceCache) Run(ctx context.Context) {
	runTicker(ctx, 30*time.Second, c.refresh)
}

func (c *BalanceCache) Snapshot() []okx.Balance {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]okx.Balance, len(c.rows))
	copy(out, c.rows)
	return out
}

func (c *BalanceCache) refresh(ctx context.Context) {
	c.checkStale(time.Now(), "balance", c.log)

	rows, err := c.fetcher.GetBalance(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("cache: balance refresh failed")
		return
	}
	c.mu.Lock()
	c.rows = rows
	c.mu.Unlock()
	c.markRefreshed(time.Now())
}
