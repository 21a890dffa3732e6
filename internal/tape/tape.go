// Package tape maintains a per-symbol rolling store of recent trades and
// computes buy/sell pressure aggregates on demand, per spec C4. Grounded on
// the collector's ring-buffer-by-key pattern generalized from order IDs to
// trade IDs.
package tape

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/okxtrader/swapagent/internal/model"
)

// Windows are the pressure-aggregate window sizes ComputeAggregates
// evaluates on each call; this package runs no periodic schedule of its
// own, and nothing outside its tests calls ComputeAggregates.
var Windows = []time.Duration{60 * time.Second, 300 * time.Second, 900 * time.Second}

const retention = time.Hour

// Aggregate is the buy/sell pressure computed over one window.
type Aggregate struct {
	Symbol       string
	WindowSec    int
	BuyVolume    decimal.Decimal
	SellVolume   decimal.Decimal
	BuyCount     int
	SellCount    int
	PressureRatio decimal.Decimal // buy/sell, or a sentinel "infinite" when sell=0
	ComputedAt   time.Time
}

// PressureIsInfinite reports whether a's ratio represents sell=0 (buy>0).
func (a Aggregate) PressureIsInfinite() bool {
	return a.PressureRatio.Equal(infinitePressure)
}

var infinitePressure = decimal.NewFromInt(1 << 30)

// Tape holds recent trades for one symbol, deduplicated by tradeId, with
// one-hour retention.
type Tape struct {
	mu      sync.RWMutex
	symbol  string
	byID    map[string]model.Trade
	order   []string // tradeIds in arrival order, for eviction
	lastTs  time.Time
}

// New creates an empty Tape for symbol.
func New(symbol string) *Tape {
	return &Tape{symbol: symbol, byID: make(map[string]model.Trade)}
}

// Push records a trade, ignoring a tradeId already seen.
func (t *Tape) Push(tr model.Trade) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.byID[tr.TradeID]; exists {
		return
	}
	t.byID[tr.TradeID] = tr
	t.order = append(t.order, tr.TradeID)
	ts := time.UnixMilli(tr.TsMs)
	if ts.After(t.lastTs) {
		t.lastTs = ts
	}
	t.evict(ts)
}

// evict drops trades older than the one-hour retention window, assuming
// the caller holds mu.
func (t *Tape) evict(now time.Time) {
	cutoff := now.Add(-retention)
	i := 0
	for ; i < len(t.order); i++ {
		tr := t.byID[t.order[i]]
		if time.UnixMilli(tr.TsMs).After(cutoff) {
			break
		}
		delete(t.byID, t.order[i])
	}
	t.order = t.order[i:]
}

// Since returns all retained trades at or after cutoff, oldest first.
func (t *Tape) Since(cutoff time.Time) []model.Trade {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]model.Trade, 0, len(t.order))
	for _, id := range t.order {
		tr := t.byID[id]
		if !time.UnixMilli(tr.TsMs).Before(cutoff) {
			out = append(out, tr)
		}
	}
	return out
}

// LastUpdated returns the timestamp of the most recent trade, used by the
// collector's freshness watchdog.
func (t *Tape) LastUpdated() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastTs
}

// ComputeAggregates computes the buy/sell pressure aggregate for each
// configured window, evaluated as of now.
func (t *Tape) ComputeAggregates(now time.Time) []Aggregate {
	aggs := make([]Aggregate, 0, len(Windows))
	for _, w := range Windows {
		trades := t.Since(now.Add(-w))
		agg := Aggregate{Symbol: t.symbol, WindowSec: int(w.Seconds()), ComputedAt: now}
		for _, tr := range trades {
			switch tr.Side {
			case model.SideBuy:
				agg.BuyVolume = agg.BuyVolume.Add(tr.Size)
				agg.BuyCount++
			case model.SideSell:
				agg.SellVolume = agg.SellVolume.Add(tr.Size)
				agg.SellCount++
			}
		}
		if agg.SellVolume.IsZero() {
			if agg.BuyVolume.IsZero() {
				agg.PressureRatio = decimal.Zero
			} else {
				agg.PressureRatio = infinitePressure
			}
		} else {
			agg.PressureRatio = agg.BuyVolume.Div(agg.SellVolume)
		}
		aggs = append(aggs, agg)
	}
	return aggs
}
