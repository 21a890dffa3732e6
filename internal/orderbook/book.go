// Package orderbook maintains a per-symbol L2 order book from exchange
// snapshot/update messages, grounded on the sequencing and price-level
// bookkeeping of the feed simulator's order book but keyed by price→size
// rather than per-order, per spec C2.
package orderbook

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Level is one price/size pair. Size==0 marks a level for removal; a
// materialized Book or snapshot never contains zero-size levels.
type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Update is one incoming book message from the public "books" channel.
type Update struct {
	Symbol    string
	Action    string // "snapshot" or "update"
	Bids      []Level
	Asks      []Level
	TsMs      int64
	SeqID     int64
	PrevSeqID int64
}

// Snapshot is an immutable, reader-facing view of a book at one instant.
type Snapshot struct {
	Symbol      string
	Bids        []Level // descending by price
	Asks        []Level // ascending by price
	LastSeqID   int64
	LastUpdated time.Time
}

// Metrics is the periodic aggregate computed from a book snapshot.
type Metrics struct {
	Symbol    string
	Bid1      decimal.Decimal
	Ask1      decimal.Decimal
	SpreadPct decimal.Decimal
	DepthAt5  decimal.Decimal // sum of top-5 bid+ask sizes
	ComputedAt time.Time
}

// Book is a single symbol's order book. It is owned exclusively by the
// collector's book-processing task; all reads go through Snapshot.
type Book struct {
	mu          sync.RWMutex
	symbol      string
	bids        map[string]decimal.Decimal // price.String() -> size
	asks        map[string]decimal.Decimal
	bidPrices   []decimal.Decimal // kept sorted descending
	askPrices   []decimal.Decimal // kept sorted ascending
	initialized bool
	lastSeqID   int64
	lastUpdated time.Time
}

// New creates an empty, uninitialized book for symbol.
func New(symbol string) *Book {
	return &Book{
		symbol: symbol,
		bids:   make(map[string]decimal.Decimal),
		asks:   make(map[string]decimal.Decimal),
	}
}

// Apply processes one incoming update per the C2 sequencing contract. It
// returns true if the update was applied (as opposed to dropped/reset).
func (b *Book) Apply(u Update) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch u.Action {
	case "snapshot":
		b.bids = levelsToMap(u.Bids)
		b.asks = levelsToMap(u.Asks)
		b.bidPrices = sortedPrices(b.bids, true)
		b.askPrices = sortedPrices(b.asks, false)
		b.initialized = true
		b.lastSeqID = u.SeqID
		b.lastUpdated = time.UnixMilli(u.TsMs)
		return true

	case "update":
		if u.PrevSeqID == u.SeqID && len(u.Bids) == 0 && len(u.Asks) == 0 {
			// Heartbeat: advance seqId only.
			b.lastSeqID = u.SeqID
			b.lastUpdated = time.UnixMilli(u.TsMs)
			return true
		}

		if u.SeqID < u.PrevSeqID {
			// Sequence reset: drop state, wait for next snapshot.
			b.initialized = false
			b.bids = make(map[string]decimal.Decimal)
			b.asks = make(map[string]decimal.Decimal)
			b.bidPrices = nil
			b.askPrices = nil
			return false
		}

		if !b.initialized {
			return false
		}
		if u.PrevSeqID != b.lastSeqID {
			return false
		}

		applyLevels(b.bids, u.Bids)
		applyLevels(b.asks, u.Asks)
		b.bidPrices = sortedPrices(b.bids, true)
		b.askPrices = sortedPrices(b.asks, false)
		b.lastSeqID = u.SeqID
		b.lastUpdated = time.UnixMilli(u.TsMs)
		return true
	}
	return false
}

// Snapshot returns an immutable top-N view (0 means all levels).
func (b *Book) Snapshot(depth int) Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bids := materialize(b.bidPrices, b.bids, depth)
	asks := materialize(b.askPrices, b.asks, depth)

	return Snapshot{
		Symbol:      b.symbol,
		Bids:        bids,
		Asks:        asks,
		LastSeqID:   b.lastSeqID,
		LastUpdated: b.lastUpdated,
	}
}

// Initialized reports whether the book has received its first snapshot.
func (b *Book) Initialized() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.initialized
}

// LastUpdated returns the timestamp of the last applied message, used by
// the collector's freshness watchdog.
func (b *Book) LastUpdated() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdated
}

// ComputeMetrics derives the top-5 metrics aggregate from the current book.
// The collector computes and persists it on every book publish tick (5 s
// by default), not once a minute.
func (b *Book) ComputeMetrics(now time.Time) Metrics {
	snap := b.Snapshot(5)
	m := Metrics{Symbol: b.symbol, ComputedAt: now}
	if len(snap.Bids) > 0 {
		m.Bid1 = snap.Bids[0].Price
	}
	if len(snap.Asks) > 0 {
		m.Ask1 = snap.Asks[0].Price
	}
	if !m.Bid1.IsZero() && !m.Ask1.IsZero() {
		mid := m.Bid1.Add(m.Ask1).Div(decimal.NewFromInt(2))
		if !mid.IsZero() {
			m.SpreadPct = m.Ask1.Sub(m.Bid1).Div(mid).Mul(decimal.NewFromInt(100))
		}
	}
	depth := decimal.Zero
	for _, l := range snap.Bids {
		depth = depth.Add(l.Size)
	}
	for _, l := range snap.Asks {
		depth = depth.Add(l.Size)
	}
	m.DepthAt5 = depth
	return m
}

func levelsToMap(levels []Level) map[string]decimal.Decimal {
	m := make(map[string]decimal.Decimal, len(levels))
	for _, l := range levels {
		if l.Size.IsZero() {
			continue
		}
		m[l.Price.String()] = l.Size
	}
	return m
}

func applyLevels(m map[string]decimal.Decimal, levels []Level) {
	for _, l := range levels {
		key := l.Price.String()
		if l.Size.IsZero() {
			delete(m, key)
			continue
		}
		m[key] = l.Size
	}
}

func sortedPrices(m map[string]decimal.Decimal, descending bool) []decimal.Decimal {
	prices := make([]decimal.Decimal, 0, len(m))
	for k := range m {
		p, err := decimal.NewFromString(k)
		if err != nil {
			continue
		}
		prices = append(prices, p)
	}
	sort.Slice(prices, func(i, j int) bool {
		if descending {
			return prices[i].GreaterThan(prices[j])
		}
		return prices[i].LessThan(prices[j])
	})
	return prices
}

func materialize(prices []decimal.Decimal, sizes map[string]decimal.Decimal, depth int) []Level {
	n := len(prices)
	if depth > 0 && depth < n {
		n = depth
	}
	out := make([]Level, 0, n)
	for i := 0; i < n; i++ {
		p := prices[i]
		out = append(out, Level{Price: p, Size: sizes[p.String()]})
	}
	return out
}
