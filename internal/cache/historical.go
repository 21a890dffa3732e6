package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/okxtrader/swapagent/internal/model"
	"github.com/okxtrader/swapagent/internal/okx"
)

// HistoryFetcher is the REST surface HistoricalPositionsCache depends on.
type HistoryFetcher interface {
	GetHistoryPositions(ctx context.Context, instID string, after string, limit int) ([]okx.ClosedPositionWire, error)
}

// ClosedPositionStore is the persistence surface for closed positions;
// internal/store.Store implements it.
type ClosedPositionStore interface {
	BatchUpsertClosedPositions(ctx context.Context, rows []model.ClosedPosition) error
	ListClosedWithoutReview(ctx context.Context, limit int) ([]model.ClosedPosition, error)
	RecentClosedSince(ctx context.Context, sinceMs int64) ([]model.ClosedPosition, error)
}

// ReviewTrigger requests a post-mortem for one closed position; internal/review implements it.
type ReviewTrigger interface {
	Trigger(ctx context.Context, symbol string, posSide model.PosSide, openTimeMs int64) error
}

// RiskLookup resolves the stop-loss distance recorded at open time, used to
// compute the supplemented R-multiple stat; internal/store.Store implements it.
type RiskLookup interface {
	OpenRiskPerUnit(ctx context.Context, symbol string, openTimeMs int64) (decimal.Decimal, bool, error)
}

// Stats30Day is the supplemented total-PnL/win-rate/R-multiple summary
// added to the 30-day historical-positions row; it carries no per-day PnL.
type Stats30Day struct {
	Symbol        string
	TradeCount    int
	WinCount      int
	WinRate       decimal.Decimal
	TotalPnl      decimal.Decimal
	AvgRMultiple  decimal.Decimal
	ComputedAt    time.Time
}

// reviewTriggerBudget bounds how many missing-review rows are triggered per
// startup pass, so a large backlog doesn't flood the LLM on first boot.
const reviewTriggerBudget = 20

// HistoricalPositionsCache refreshes closed-position history every 30s,
// batch-upserts new rows, computes 30-day stats, and triggers C10 review
// generation for rows missing a summary (bounded on the first pass).
type HistoricalPositionsCache struct {
	staleTracker

	fetcher  HistoryFetcher
	store    ClosedPositionStore
	risk     RiskLookup
	review   ReviewTrigger
	symbols  []string
	log      zerolog.Logger

	mu           sync.RWMutex
	stats        map[string]Stats30Day
	firstPass    bool
	reviewsFired int
}

func NewHistoricalPositionsCache(fetcher HistoryFetcher, store ClosedPositionStore, risk RiskLookup, review ReviewTrigger, symbols []string, logger zerolog.Logger) *HistoricalPositionsCache {
	return &HistoricalPositionsCache{
		fetcher:   fetcher,
		store:     store,
		risk:      risk,
		review:    review,
		symbols:   symbols,
		log:       logger.With().Str("subsystem", "cache-historical").Logger(),
		stats:     make(map[string]Stats30Day),
		firstPass: true,
	}
}

func (c *HistoricalPositionsCache) Run(ctx context.Context) {
	runTicker(ctx, 30*time.Second, c.refresh)
}

func (c *HistoricalPositionsCache) Stats(symbol string) (Stats30Day, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.stats[symbol]
	return v, ok
}

func (c *HistoricalPositionsCache) refresh(ctx context.Context) {
	c.checkStale(time.Now(), "historical", c.log)

	for _, sym := range c.symbols {
		rows, err := c.fetcher.GetHistoryPositions(ctx, sym, "", 100)
		if err != nil {
			c.log.Warn().Err(err).Str("symbol", sym).Msg("cache: history refresh failed")
			continue
		}

		closed := make([]model.ClosedPosition, 0, len(rows))
		for _, row := range rows {
			cp, ok := parseClosedPosition(sym, row)
			if ok {
				closed = append(closed, cp)
			}
		}
		if len(closed) > 0 {
			if err := c.store.BatchUpsertClosedPositions(ctx, closed); err != nil {
				c.log.Warn().Err(err).Str("symbol", sym).Msg("cache: batch upsert closed positions failed")
			}
		}

		since := time.Now().Add(-30 * 24 * time.Hour).UnixMilli()
		recent, err := c.store.RecentClosedSince(ctx, since)
		if err == nil {
			c.mu.Lock()
			c.stats[sym] = c.computeStats(ctx, sym, recent)
			c.mu.Unlock()
		}
	}

	c.triggerMissingReviews(ctx)
	c.markRefreshed(time.Now())
}

func (c *HistoricalPositionsCache) computeStats(ctx context.Context, symbol string, rows []model.ClosedPosition) Stats30Day {
	stats := Stats30Day{Symbol: symbol, ComputedAt: time.Now()}
	var rSum decimal.Decimal
	var rCount int

	for _, row := range rows {
		if row.Symbol != symbol {
			continue
		}
		stats.TradeCount++
		stats.TotalPnl = stats.TotalPnl.Add(row.RealizedPnl)
		if row.RealizedPnl.GreaterThan(decimal.Zero) {
			stats.WinCount++
		}
		if c.risk != nil {
			if riskPerUnit, ok, err := c.risk.OpenRiskPerUnit(ctx, symbol, row.OpenTimeMs); err == nil && ok && !riskPerUnit.IsZero() {
				risk := riskPerUnit.Mul(row.Size)
				if !risk.IsZero() {
					rSum = rSum.Add(row.RealizedPnl.Div(risk))
					rCount++
				}
			}
		}
	}

	if stats.TradeCount > 0 {
		stats.WinRate = decimal.NewFromInt(int64(stats.WinCount)).Div(decimal.NewFromInt(int64(stats.TradeCount)))
	}
	if rCount > 0 {
		stats.AvgRMultiple = rSum.Div(decimal.NewFromInt(int64(rCount)))
	}
	return stats
}

func (c *HistoricalPositionsCache) triggerMissingReviews(ctx context.Context) {
	if c.review == nil {
		return
	}

	c.mu.Lock()
	firstPass := c.firstPass
	remaining := reviewTriggerBudget - c.reviewsFired
	c.mu.Unlock()
	if firstPass && remaining <= 0 {
		return
	}

	limit := remaining
	if !firstPass || limit <= 0 {
		limit = 0 // unbounded after the first startup pass
	}

	rows, err := c.store.ListClosedWithoutReview(ctx, limit)
	if err != nil {
		c.log.Warn().Err(err).Msg("cache: list closed without review failed")
		return
	}

	fired := 0
	for _, row := range rows {
		if err := c.review.Trigger(ctx, row.Symbol, row.PosSide, row.OpenTimeMs); err != nil {
			c.log.Warn().Err(err).Str("symbol", row.Symbol).Msg("cache: review trigger failed")
			continue
		}
		fired++
	}

	c.mu.Lock()
	c.reviewsFired += fired
	c.firstPass = false
	c.mu.Unlock()
}

func parseClosedPosition(symbol string, row okx.ClosedPositionWire) (model.ClosedPosition, bool) {
	openPx, err1 := decimal.NewFromString(row.OpenAvgPx)
	pnl, err2 := decimal.NewFromString(row.Pnl)
	fee, _ := decimal.NewFromString(row.Fee)
	size, _ := decimal.NewFromString(row.CloseTotalPos)
	if err1 != nil || err2 != nil {
		return model.ClosedPosition{}, false
	}
	openTimeMs, _ := strconv.ParseInt(row.CTime, 10, 64)
	closeTimeMs, _ := strconv.ParseInt(row.UTime, 10, 64)

	return model.ClosedPosition{
		Symbol:      symbol,
		PosSide:     model.PosSide(row.PosSide),
		Size:        size.Abs(),
		AvgPx:       openPx,
		OpenTimeMs:  openTimeMs,
		CloseTimeMs: closeTimeMs,
		RealizedPnl: pnl,
		FeeTotal:    fee.Abs(),
	}, true
}
