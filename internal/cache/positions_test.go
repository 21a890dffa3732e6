package cache

import (
	"context"
	"testing"

	"github.com/okxtrader/swapagent/internal/okx"
	"github.com/rs/zerolog"
)

type fakePositionsFetcher struct {
	rows []okx.PositionWire
}

func (f *fakePositionsFetcher) GetPositions(ctx context.Context, instID string) ([]okx.PositionWire, error) {
	return f.rows, nil
}

type fakeNotifier struct {
	closed []string
}

func (f *fakeNotifier) NotifyPositionClosed(ctx context.Context, symbol, posSide string, openTimeMs int64) error {
	f.closed = append(f.closed, symbol)
	return nil
}

func TestPositionsCacheDetectsClosure(t *testing.T) {
	fetcher := &fakePositionsFetcher{rows: []okx.PositionWire{
		{InstID: "X", PosSide: "long", Pos: "1", AvgPx: "100", Lever: "10", MgnMode: "isolated", CTime: "1000"},
	}}
	notifier := &fakeNotifier{}
	c := NewPositionsCache(fetcher, nil, notifier, []string{"X"}, zerolog.Nop())

	c.refresh(context.Background())
	if len(c.Snapshot()) != 1 {
		t.Fatalf("expected 1 open position after first refresh")
	}

	fetcher.rows = nil
	c.refresh(context.Background())
	if len(c.Snapshot()) != 0 {
		t.Fatalf("expected 0 open positions after second refresh")
	}
	if len(notifier.closed) != 1 {
		t.Fatalf("expected 1 close notification, got %d", len(notifier.closed))
	}
}

func TestPositionsCacheFiltersZeroSize(t *testing.T) {
	fetcher := &fakePositionsFetcher{rows: []okx.PositionWire{
		{InstID: "X", PosSide: "long", Pos: "0", AvgPx: "100", CTime: "1000"},
	}}
	c := NewPositionsCache(fetcher, nil, nil, []string{"X"}, zerolog.Nop())
	c.refresh(context.Background())
	if len(c.Snapshot()) != 0 {
		t.Fatalf("expected zero-size position to be filtered out")
	}
}
