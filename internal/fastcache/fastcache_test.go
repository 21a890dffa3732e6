package fastcache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/okxtrader/swapagent/internal/model"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return &Client{rdb: rdb, tradesCap: 3, log: zerolog.Nop()}
}

func TestPushTradeCapsAndOrdersNewestFirst(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		trade := model.Trade{Symbol: "BTC-USDT-SWAP", TradeID: "t", TsMs: i, Price: decimal.NewFromInt(i), Size: decimal.NewFromInt(1), Side: model.SideBuy}
		if err := c.PushTrade(ctx, trade); err != nil {
			t.Fatalf("push trade: %v", err)
		}
	}

	trades, err := c.RecentTrades(ctx, "BTC-USDT-SWAP", 10)
	if err != nil {
		t.Fatalf("recent trades: %v", err)
	}
	if len(trades) != 3 {
		t.Fatalf("expected cap of 3 trades, got %d", len(trades))
	}
	if trades[0].TsMs != 5 {
		t.Fatalf("expected newest trade first, got tsMs=%d", trades[0].TsMs)
	}
}

func TestBookSnapshotRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	snap := BookSnapshot{
		Symbol:    "ETH-USDT-SWAP",
		Bids:      []model.OrderBookLevel{{Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(1)}},
		Asks:      []model.OrderBookLevel{{Price: decimal.NewFromInt(101), Size: decimal.NewFromInt(2)}},
		UpdatedMs: 123,
	}
	if err := c.StoreBook(ctx, snap); err != nil {
		t.Fatalf("store book: %v", err)
	}

	got, ok, err := c.LatestBook(ctx, "ETH-USDT-SWAP")
	if err != nil {
		t.Fatalf("latest book: %v", err)
	}
	if !ok {
		t.Fatalf("expected book present")
	}
	if got.UpdatedMs != 123 || !got.Bids[0].Price.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("unexpected round-trip result: %+v", got)
	}

	_, ok, err = c.LatestBook(ctx, "UNKNOWN-SWAP")
	if err != nil {
		t.Fatalf("latest book unknown: %v", err)
	}
	if ok {
		t.Fatalf("expected no book cached for unknown symbol")
	}
}

func TestKlineMarkerRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	if _, ok, err := c.LastKlineUpdate(ctx, "BTC-USDT-SWAP", "1m"); err != nil || ok {
		t.Fatalf("expected no marker initially, ok=%v err=%v", ok, err)
	}

	if err := c.MarkKlineUpdated(ctx, "BTC-USDT-SWAP", "1m", 999); err != nil {
		t.Fatalf("mark kline updated: %v", err)
	}

	v, ok, err := c.LastKlineUpdate(ctx, "BTC-USDT-SWAP", "1m")
	if err != nil || !ok {
		t.Fatalf("expected marker present, ok=%v err=%v", ok, err)
	}
	if v != 999 {
		t.Fatalf("expected 999, got %d", v)
	}
}
