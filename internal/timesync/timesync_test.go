package timesync

import (
	"context"
	"testing"
	"time"
)

type fakeFetcher struct {
	servers []int64
	idx     int
}

func (f *fakeFetcher) ServerTimeMs(ctx context.Context) (int64, error) {
	v := f.servers[f.idx]
	f.idx++
	return v, nil
}

func TestSyncUsesMedianNotMean(t *testing.T) {
	// Three samples with offsets that differ under mean vs median:
	// local times fixed, server times chosen so offsets are 10, 10, 1000.
	// mean would be skewed by the outlier; median should not be.
	base := time.UnixMilli(1_000_000_000_000)
	calls := 0
	nowFn := func() time.Time {
		// Each Sync attempt calls nowFn twice (before, after); advance
		// nothing between before/after so latency=0.
		calls++
		return base
	}

	fetcher := &fakeFetcher{servers: []int64{
		base.UnixMilli() - 10,
		base.UnixMilli() - 10,
		base.UnixMilli() - 1000,
	}}

	s := New()
	// Sync really sleeps 500ms between attempts (twice, about 1s in all),
	// so bound the test with a timeout well above that.
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := s.Sync(ctx, fetcher, nowFn); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if s.OffsetMs() != 10 {
		t.Fatalf("expected median offset 10, got %d", s.OffsetMs())
	}
}

func TestMedianEvenCount(t *testing.T) {
	vals := []sample{{offsetMs: 1}, {offsetMs: 3}, {offsetMs: 5}, {offsetMs: 7}}
	if got := median(vals); got != 4 {
		t.Fatalf("expected 4, got %d", got)
	}
}
