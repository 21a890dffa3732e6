package kline

import (
	"context"
	"testing"

	"github.com/okxtrader/swapagent/internal/model"
	"github.com/okxtrader/swapagent/internal/okx"
	"github.com/rs/zerolog"
)

type fakePersister struct {
	klines map[int64]model.Kline
}

func newFakePersister() *fakePersister { return &fakePersister{klines: map[int64]model.Kline{}} }

func (p *fakePersister) UpsertKline(ctx context.Context, k model.Kline) error {
	if existing, ok := p.klines[k.OpenTimeMs]; ok && existing.Confirmed {
		return nil
	}
	p.klines[k.OpenTimeMs] = k
	return nil
}

func (p *fakePersister) GetKline(ctx context.Context, symbol, timeframe string, openTimeMs int64) (model.Kline, bool, error) {
	k, ok := p.klines[openTimeMs]
	return k, ok, nil
}

func (p *fakePersister) ListUnconfirmedBefore(ctx context.Context, symbol, timeframe string, nowMs int64) ([]model.Kline, error) {
	var out []model.Kline
	for _, k := range p.klines {
		if !k.Confirmed && k.OpenTimeMs < nowMs {
			out = append(out, k)
		}
	}
	return out, nil
}

func (p *fakePersister) ListOpenTimes(ctx context.Context, symbol, timeframe string, fromMs, toMs int64) (map[int64]bool, error) {
	out := map[int64]bool{}
	for t, k := range p.klines {
		if t >= fromMs && t <= toMs {
			out[t] = true
		}
		_ = k
	}
	return out, nil
}

func (p *fakePersister) BatchUpsertKlines(ctx context.Context, ks []model.Kline) error {
	for _, k := range ks {
		p.klines[k.OpenTimeMs] = k
	}
	return nil
}

func (p *fakePersister) RecentKlines(ctx context.Context, symbol, timeframe string, limit int) ([]model.Kline, error) {
	return nil, nil
}

type fakeCandles struct {
	pages [][]okx.Candle
	calls int
}

func (f *fakeCandles) GetCandles(ctx context.Context, instID, bar string, after, before int64, limit int) ([]okx.Candle, error) {
	if f.calls >= len(f.pages) {
		return nil, nil
	}
	p := f.pages[f.calls]
	f.calls++
	return p, nil
}

func candleRow(tsMs int64) okx.Candle {
	return okx.Candle{itoa(tsMs), "100", "101", "99", "100.5", "10", "1000", "1000", "1"}
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func TestDetectGapsFindsMissingRun(t *testing.T) {
	persist := newFakePersister()
	store := New("BTC-USDT-SWAP", persist, &fakeCandles{}, zerolog.Nop())

	step := int64(60_000)
	start := int64(1_000_020_000) // a 1m bar open: 16667 * 60_000
	// Present: start, start+step; missing: start+2*step, start+3*step; present: start+4*step
	persist.klines[start] = model.Kline{OpenTimeMs: start}
	persist.klines[start+step] = model.Kline{OpenTimeMs: start + step}
	persist.klines[start+4*step] = model.Kline{OpenTimeMs: start + 4*step}

	gaps, err := store.DetectGaps(context.Background(), "1m", start, start+4*step)
	if err != nil {
		t.Fatalf("DetectGaps: %v", err)
	}
	if len(gaps) != 1 {
		t.Fatalf("expected 1 gap, got %d: %+v", len(gaps), gaps)
	}
	if gaps[0].FromMs != start+2*step || gaps[0].ToMs != start+3*step {
		t.Fatalf("unexpected gap bounds: %+v", gaps[0])
	}
}

func TestBackfillStopsOnShortPage(t *testing.T) {
	persist := newFakePersister()
	fc := &fakeCandles{pages: [][]okx.Candle{
		{candleRow(300), candleRow(200), candleRow(100)},
	}}
	store := New("BTC-USDT-SWAP", persist, fc, zerolog.Nop())

	if err := store.Backfill(context.Background(), "1m", Gap{FromMs: 100, ToMs: 300}); err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if fc.calls != 1 {
		t.Fatalf("expected single page fetch, got %d calls", fc.calls)
	}
	if len(persist.klines) != 3 {
		t.Fatalf("expected 3 bars persisted, got %d", len(persist.klines))
	}
}

func TestBackfillStopsWhenOldestStopsAdvancing(t *testing.T) {
	persist := newFakePersister()
	fc := &fakeCandles{pages: [][]okx.Candle{
		make100Rows(1000, 100),
		make100Rows(1000, 100), // same oldest again -> must stop
	}}
	store := New("BTC-USDT-SWAP", persist, fc, zerolog.Nop())

	if err := store.Backfill(context.Background(), "1m", Gap{FromMs: 0, ToMs: 100000}); err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if fc.calls != 2 {
		t.Fatalf("expected exactly 2 fetches before stopping, got %d", fc.calls)
	}
}

func make100Rows(startTs, step int64) []okx.Candle {
	rows := make([]okx.Candle, 100)
	for i := 0; i < 100; i++ {
		rows[i] = candleRow(startTs + int64(i)*step)
	}
	return rows
}
