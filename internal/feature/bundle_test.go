package feature

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/okxtrader/swapagent/internal/model"
)

func TestBuildReturnsErrStaleDataWhenKlineTooOld(t *testing.T) {
	_, err := Build(Inputs{
		Symbol:                "X",
		KlineAgeMs:            400_000,
		FreshnessThresholdSec: 300,
	})
	if !errors.Is(err, ErrStaleData) {
		t.Fatalf("expected ErrStaleData, got %v", err)
	}
}

func TestBuildSucceedsWhenFresh(t *testing.T) {
	klines := []model.Kline{
		{Close: decimal.NewFromFloat(100), High: decimal.NewFromFloat(101), Low: decimal.NewFromFloat(99)},
		{Close: decimal.NewFromFloat(102), High: decimal.NewFromFloat(103), Low: decimal.NewFromFloat(100)},
	}
	b, err := Build(Inputs{
		Symbol:                "X",
		ShortTimeframe:        "1m",
		LongTimeframe:         "1H",
		ShortKlines:           klines,
		LongKlines:            klines,
		KlineAgeMs:            1000,
		BookAgeMs:             1000,
		PressureAgeMs:         1000,
		FreshnessThresholdSec: 300,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if b.Short.Timeframe != "1m" {
		t.Fatalf("expected short timeframe label preserved")
	}
}

func TestEMAFirstValueSeedsFromFirstClose(t *testing.T) {
	closes := []decimal.Decimal{decimal.NewFromFloat(10), decimal.NewFromFloat(12)}
	ema := EMA(closes, 3)
	if !ema[0].Equal(closes[0]) {
		t.Fatalf("expected EMA[0] to equal first close, got %s", ema[0])
	}
}

func TestRSIBoundsBetweenZeroAndHundred(t *testing.T) {
	closes := make([]decimal.Decimal, 20)
	v := 100.0
	for i := range closes {
		v += 1
		closes[i] = decimal.NewFromFloat(v)
	}
	rsi := RSI(closes, 14)
	last := rsi[len(rsi)-1]
	if last.LessThan(decimal.Zero) || last.GreaterThan(decimal.NewFromInt(100)) {
		t.Fatalf("RSI out of bounds: %s", last)
	}
}

func TestTickAggregateLargeTradeRatio(t *testing.T) {
	trades := []model.Trade{
		{Price: decimal.NewFromFloat(100), Size: decimal.NewFromFloat(1), Side: model.SideBuy},
		{Price: decimal.NewFromFloat(100), Size: decimal.NewFromFloat(1), Side: model.SideBuy},
		{Price: decimal.NewFromFloat(100), Size: decimal.NewFromFloat(10), Side: model.SideSell},
	}
	agg := computeTickAggregate(trades)
	if agg.TickCount != 3 {
		t.Fatalf("expected 3 ticks, got %d", agg.TickCount)
	}
	if agg.LargeTradeRatio.IsZero() {
		t.Fatalf("expected nonzero large-trade ratio")
	}
}
