package tape

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/okxtrader/swapagent/internal/model"
)

func trade(id string, tsMs int64, side model.Side, size float64) model.Trade {
	return model.Trade{Symbol: "X", TradeID: id, TsMs: tsMs, Price: decimal.NewFromFloat(100), Size: decimal.NewFromFloat(size), Side: side}
}

func TestPushDedupesByTradeID(t *testing.T) {
	tp := New("X")
	tp.Push(trade("1", 1000, model.SideBuy, 1))
	tp.Push(trade("1", 1000, model.SideBuy, 1))
	trades := tp.Since(time.UnixMilli(0))
	if len(trades) != 1 {
		t.Fatalf("expected dedup to leave 1 trade, got %d", len(trades))
	}
}

func TestComputeAggregatesPressureRatio(t *testing.T) {
	tp := New("X")
	now := time.UnixMilli(1_000_000)
	tp.Push(trade("1", now.Add(-10*time.Second).UnixMilli(), model.SideBuy, 4))
	tp.Push(trade("2", now.Add(-10*time.Second).UnixMilli(), model.SideSell, 2))

	aggs := tp.ComputeAggregates(now)
	if len(aggs) != len(Windows) {
		t.Fatalf("expected %d windows, got %d", len(Windows), len(aggs))
	}
	first := aggs[0]
	if !first.PressureRatio.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("expected pressure ratio 2, got %s", first.PressureRatio)
	}
}

func TestComputeAggregatesInfinitePressure(t *testing.T) {
	tp := New("X")
	now := time.UnixMilli(1_000_000)
	tp.Push(trade("1", now.Add(-10*time.Second).UnixMilli(), model.SideBuy, 4))

	aggs := tp.ComputeAggregates(now)
	if !aggs[0].PressureIsInfinite() {
		t.Fatalf("expected infinite pressure when sell volume is zero")
	}
}

func TestEvictsOlderThanRetention(t *testing.T) {
	tp := New("X")
	base := time.UnixMilli(10_000_000)
	tp.Push(trade("old", base.UnixMilli(), model.SideBuy, 1))
	tp.Push(trade("new", base.Add(2*time.Hour).UnixMilli(), model.SideBuy, 1))

	trades := tp.Since(time.UnixMilli(0))
	if len(trades) != 1 || trades[0].TradeID != "new" {
		t.Fatalf("expected old trade evicted, got %+v", trades)
	}
}
