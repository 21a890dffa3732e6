package orderbook

import (
	"testing"

	"github.com/shopspring/decimal"
)

func lvl(price, size float64) Level {
	return Level{Price: decimal.NewFromFloat(price), Size: decimal.NewFromFloat(size)}
}

func TestSnapshotReplacesBook(t *testing.T) {
	b := New("BTC-USDT-SWAP")
	ok := b.Apply(Update{
		Symbol: "BTC-USDT-SWAP",
		Action: "snapshot",
		Bids:   []Level{lvl(100, 1), lvl(99, 2)},
		Asks:   []Level{lvl(101, 1), lvl(102, 2)},
		SeqID:  5,
		TsMs:   1000,
	})
	if !ok || !b.Initialized() {
		t.Fatalf("expected snapshot to initialize book")
	}
	snap := b.Snapshot(0)
	if len(snap.Bids) != 2 || !snap.Bids[0].Price.Equal(decimal.NewFromFloat(100)) {
		t.Fatalf("bids not descending: %+v", snap.Bids)
	}
	if len(snap.Asks) != 2 || !snap.Asks[0].Price.Equal(decimal.NewFromFloat(101)) {
		t.Fatalf("asks not ascending: %+v", snap.Asks)
	}
}

func TestUpdateAppliesWhenSeqMatches(t *testing.T) {
	b := New("X")
	b.Apply(Update{Action: "snapshot", Bids: []Level{lvl(100, 1)}, Asks: []Level{lvl(101, 1)}, SeqID: 5})

	ok := b.Apply(Update{Action: "update", PrevSeqID: 5, SeqID: 6, Bids: []Level{lvl(100, 0), lvl(99, 3)}})
	if !ok {
		t.Fatalf("expected update to apply")
	}
	snap := b.Snapshot(0)
	if len(snap.Bids) != 1 || !snap.Bids[0].Price.Equal(decimal.NewFromFloat(99)) {
		t.Fatalf("expected level 100 removed and 99 added, got %+v", snap.Bids)
	}
}

func TestUpdateDroppedWhenUninitialized(t *testing.T) {
	b := New("X")
	ok := b.Apply(Update{Action: "update", PrevSeqID: 1, SeqID: 2, Bids: []Level{lvl(100, 1)}})
	if ok || b.Initialized() {
		t.Fatalf("expected update to be dropped before first snapshot")
	}
}

func TestHeartbeatAdvancesSeqOnly(t *testing.T) {
	b := New("X")
	b.Apply(Update{Action: "snapshot", Bids: []Level{lvl(100, 1)}, SeqID: 5})
	ok := b.Apply(Update{Action: "update", PrevSeqID: 6, SeqID: 6})
	if !ok {
		t.Fatalf("expected heartbeat to apply")
	}
	snap := b.Snapshot(0)
	if snap.LastSeqID != 6 || len(snap.Bids) != 1 {
		t.Fatalf("heartbeat should not mutate levels, got %+v seq=%d", snap.Bids, snap.LastSeqID)
	}
}

func TestSeqResetClearsInitialized(t *testing.T) {
	b := New("X")
	b.Apply(Update{Action: "snapshot", Bids: []Level{lvl(100, 1)}, SeqID: 10})
	ok := b.Apply(Update{Action: "update", PrevSeqID: 20, SeqID: 3})
	if ok {
		t.Fatalf("expected reset update to be dropped")
	}
	if b.Initialized() {
		t.Fatalf("expected book to be un-initialized after sequence reset")
	}
}

func TestUpdateDroppedOnSeqMismatch(t *testing.T) {
	b := New("X")
	b.Apply(Update{Action: "snapshot", Bids: []Level{lvl(100, 1)}, SeqID: 5})
	ok := b.Apply(Update{Action: "update", PrevSeqID: 4, SeqID: 6, Bids: []Level{lvl(99, 1)}})
	if ok {
		t.Fatalf("expected update with mismatched prevSeqId to be dropped")
	}
	snap := b.Snapshot(0)
	if len(snap.Bids) != 1 || !snap.Bids[0].Price.Equal(decimal.NewFromFloat(100)) {
		t.Fatalf("book should be unchanged, got %+v", snap.Bids)
	}
}
