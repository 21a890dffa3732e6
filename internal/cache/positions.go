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

// PositionsFetcher is the REST surface PositionsCache depends on.
type PositionsFetcher interface {
	GetPositions(ctx context.Context, instID string) ([]okx.PositionWire, error)
}

// posKey identifies one open position for diffing snapshots across ticks.
type posKey struct {
	Symbol     string
	OpenTimeMs int64
}

// EnrichedPosition is an open position enriched with its decision history.
type EnrichedPosition struct {
	model.Position
	Decisions []string
}

// PositionsCache refreshes open positions every 20s, filters zero-size
// rows, enriches with journal decisions keyed by openTimeMs, and forwards
// a close notification for any (symbol, openTimeMs) that disappears
// between ticks.
type PositionsCache struct {
	staleTracker

	fetcher  PositionsFetcher
	journal  JournalLookup
	notifier Notifier
	symbols  []string
	log      zerolog.Logger

	mu       sync.RWMutex
	current  map[posKey]EnrichedPosition
	snapshot []EnrichedPosition
}

// NewPositionsCache builds a PositionsCache for the given symbols.
func NewPositionsCache(fetcher PositionsFetcher, journal JournalLookup, notifier Notifier, symbols []string, logger zerolog.Logger) *PositionsCache {
	return &PositionsCache{
		fetcher:  fetcher,
		journal:  journal,
		notifier: notifier,
		symbols:  symbols,
		log:      logger.With().Str("subsystem", "cache-positions").Logger(),
		current:  make(map[posKey]EnrichedPosition),
	}
}

// Run blocks, refreshing every 20s until ctx is cancelled.
func (c *PositionsCache) Run(ctx context.Context) {
	runTicker(ctx, 20*time.Second, c.refresh)
}

// Snapshot returns the most recent enriched position list.
func (c *PositionsCache) Snapshot() []EnrichedPosition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]EnrichedPosition, len(c.snapshot))
	copy(out, c.snapshot)
	return out
}

func (c *PositionsCache) refresh(ctx context.Context) {
	c.checkStale(time.Now(), "positions", c.log)

	next := make(map[posKey]EnrichedPosition)
	var flat []EnrichedPosition

	for _, sym := range c.symbols {
		rows, err := c.fetcher.GetPositions(ctx, sym)
		if err != nil {
			c.log.Warn().Err(err).Str("symbol", sym).Msg("cache: positions refresh failed")
			continue
		}
		for _, row := range rows {
			pos, ok := parsePosition(sym, row)
			if !ok || pos.Size.IsZero() {
				continue
			}
			key := posKey{Symbol: sym, OpenTimeMs: pos.OpenTimeMs}
			enriched := EnrichedPosition{Position: pos}
			if c.journal != nil {
				if decs, err := c.journal.DecisionsForPosition(ctx, sym, pos.OpenTimeMs); err == nil {
					enriched.Decisions = decs
				}
			}
			next[key] = enriched
			flat = append(flat, enriched)
		}
	}

	c.detectClosures(ctx, next)

	c.mu.Lock()
	c.current = next
	c.snapshot = flat
	c.mu.Unlock()

	c.markRefreshed(time.Now())
}

// detectClosures forwards a close notification for every key present in
// the prior snapshot and absent from next.
func (c *PositionsCache) detectClosures(ctx context.Context, next map[posKey]EnrichedPosition) {
	c.mu.RLock()
	prior := c.current
	c.mu.RUnlock()

	for key, pos := range prior {
		if _, stillOpen := next[key]; stillOpen {
			continue
		}
		if c.notifier == nil {
			continue
		}
		if err := c.notifier.NotifyPositionClosed(ctx, key.Symbol, string(pos.PosSide), key.OpenTimeMs); err != nil {
			c.log.Warn().Err(err).Str("symbol", key.Symbol).Msg("cache: close notification failed")
		}
	}
}

func parsePosition(symbol string, row okx.PositionWire) (model.Position, bool) {
	size, err := decimal.NewFromString(row.Pos)
	if err != nil {
		return model.Position{}, false
	}
	avgPx, _ := decimal.NewFromString(row.AvgPx)
	lever, _ := strconv.Atoi(row.Lever)
	openTimeMs, _ := strconv.ParseInt(row.CTime, 10, 64)

	mode := model.MarginIsolated
	if row.MgnMode == string(model.MarginCross) {
		mode = model.MarginCross
	}

	return model.Position{
		Symbol:     symbol,
		PosSide:    model.PosSide(row.PosSide),
		Size:       size.Abs(),
		AvgPx:      avgPx,
		OpenTimeMs: openTimeMs,
		Leverage:   lever,
		MarginMode: mode,
	}, true
}
