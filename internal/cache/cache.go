// Package cache runs the C6 background refreshers: balance, open positions,
// stop orders, historical positions, funding rate, and open-interest/taker
// volume, each on its own cadence. Grounded on the feed simulator's
// retention-ticker-loop pattern (internal/persist/retention.go), generalized
// from a single cleanup task to several independently-scheduled readers.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/okxtrader/swapagent/internal/telemetry"
)

const staleWarnThreshold = 60 * time.Second

// staleTracker records the last successful refresh time for one cache and
// reports whether it has gone stale.
type staleTracker struct {
	mu   sync.RWMutex
	last time.Time
}

func (s *staleTracker) markRefreshed(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = now
}

func (s *staleTracker) age(now time.Time) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last.IsZero() {
		return 0
	}
	return now.Sub(s.last)
}

func (s *staleTracker) checkStale(now time.Time, name string, log zerolog.Logger) {
	age := s.age(now)
	telemetry.CacheStaleness.WithLabelValues(name).Set(age.Seconds())
	if age > staleWarnThreshold {
		log.Warn().Str("cache", name).Dur("age", age).Msg("cache: stale refresh")
	}
}

// Notifier is the close-notification sink; internal/notify.Notifier implements it.
type Notifier interface {
	NotifyPositionClosed(ctx context.Context, symbol string, posSide string, openTimeMs int64) error
}

// JournalLookup resolves every decision linked to a position, used to
// enrich the open-positions cache per spec C6.
type JournalLookup interface {
	DecisionsForPosition(ctx context.Context, symbol string, openTimeMs int64) ([]string, error)
}

func runTicker(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	fn(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
