// Package collector is the C5 supervisor: it owns the public and business
// WebSocket sessions, decodes incoming frames, dispatches them through a
// bounded worker pool to the orderbook/kline/tape stores, and runs a
// freshness watchdog that forces a restart when any symbol's data goes
// stale. Grounded on the feed simulator's supervised-session-loop and
// worker-pool patterns in cmd/feedsim/main.go, generalized from a server
// broadcasting simulated data to a client dialing the real exchange.
package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/okxtrader/swapagent/internal/fastcache"
	"github.com/okxtrader/swapagent/internal/kline"
	"github.com/okxtrader/swapagent/internal/model"
	"github.com/okxtrader/swapagent/internal/okx"
	"github.com/okxtrader/swapagent/internal/orderbook"
	"github.com/okxtrader/swapagent/internal/tape"
	"github.com/okxtrader/swapagent/internal/telemetry"
)

// Config configures one Collector instance.
type Config struct {
	Symbols          []string
	Timeframes       []string
	PublicWSURL      string
	BusinessWSURL    string
	ProxyURL         string
	DataTimeoutSec   int
	MaxRestarts      int
	WatchdogInterval time.Duration
	WorkerCount      int
	BookPublishEvery time.Duration
	BookDepth        int

	// NowMs returns corrected current time in epoch ms; defaults to the
	// uncorrected wall clock if nil (collector callers normally inject
	// internal/timesync.Syncer.NowMs).
	NowMs func() int64
}

// SymbolState is the set of live stores owned by the collector for one
// symbol; each is single-writer (the collector's workers) / concurrent-read.
type SymbolState struct {
	Book   *orderbook.Book
	Tape   *tape.Tape
	Klines *kline.Store
}

// MetricsSink receives the order-book metrics computed on each book
// publish tick for persistence; tape aggregates are not passed to it.
// internal/store.Store implements it.
type MetricsSink interface {
	RecordBookMetrics(ctx context.Context, m orderbook.Metrics) error
}

// FastCache is the hot-path bridge the collector publishes through so the
// trading agent (a separate process) can read live trades/book/kline
// freshness without touching the collector's in-memory stores directly;
// internal/fastcache.Client implements it.
type FastCache interface {
	PushTrade(ctx context.Context, t model.Trade) error
	StoreBook(ctx context.Context, snap fastcache.BookSnapshot) error
	MarkKlineUpdated(ctx context.Context, symbol, timeframe string, nowMs int64) error
}

// RestartNotifier is told when the restart counter crosses a warning
// threshold, so operators are not paged on every individual retry but are
// told when restarts are piling up; internal/notify.Notifier implements it.
type RestartNotifier interface {
	NotifyRestartThreshold(ctx context.Context, component string, restarts int) error
}

// Collector is the C5 supervisor for one exchange connection pair.
type Collector struct {
	cfg              Config
	symbols          map[string]*SymbolState
	rest             *okx.RESTClient
	sink             MetricsSink
	fastCache        FastCache
	restartNotifier  RestartNotifier
	log              zerolog.Logger
}

// New builds a Collector. persist/rest feed each symbol's kline.Store.
// fastCache may be nil, in which case the live hot-path bridge is skipped
// (useful for tests and single-process deployments where it is not needed).
func New(cfg Config, rest *okx.RESTClient, persist kline.Persister, sink MetricsSink, fastCache FastCache, logger zerolog.Logger) *Collector {
	if cfg.WatchdogInterval == 0 {
		cfg.WatchdogInterval = 30 * time.Second
	}
	if cfg.WorkerCount == 0 {
		cfg.WorkerCount = 10
	}
	if cfg.DataTimeoutSec == 0 {
		cfg.DataTimeoutSec = 120
	}
	if cfg.MaxRestarts == 0 {
		cfg.MaxRestarts = 9999
	}
	if cfg.BookPublishEvery == 0 {
		cfg.BookPublishEvery = 5 * time.Second
	}
	if cfg.BookDepth == 0 {
		cfg.BookDepth = 50
	}
	if cfg.NowMs == nil {
		cfg.NowMs = func() int64 { return time.Now().UnixMilli() }
	}

	symbols := make(map[string]*SymbolState, len(cfg.Symbols))
	for _, sym := range cfg.Symbols {
		symbols[sym] = &SymbolState{
			Book:   orderbook.New(sym),
			Tape:   tape.New(sym),
			Klines: kline.New(sym, persist, rest, logger),
		}
	}

	return &Collector{
		cfg:       cfg,
		symbols:   symbols,
		rest:      rest,
		sink:      sink,
		fastCache: fastCache,
		log:       logger.With().Str("subsystem", "collector").Logger(),
	}
}

// State returns the live stores for symbol, or nil if unknown.
func (c *Collector) State(symbol string) *SymbolState {
	return c.symbols[symbol]
}

// WithRestartNotifier attaches n, called every restartWarnEvery restarts.
func (c *Collector) WithRestartNotifier(n RestartNotifier) {
	c.restartNotifier = n
}

const restartWarnEvery = 10

// Run is the restart supervisor: it wraps runOnce in a loop, sleeping 5s
// and retrying after any exit that sets needRestart, up to MaxRestarts. It
// returns nil on a clean, non-restart exit (caller-cancelled ctx) or an
// error once the restart cap is exceeded.
func (c *Collector) Run(ctx context.Context) error {
	restarts := 0
	for {
		err := c.runOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			return nil
		}

		restarts++
		telemetry.CollectorRestarts.Inc()
		telemetry.WatchdogRestarts.WithLabelValues(restartReason(err)).Inc()
		c.log.Warn().Err(err).Int("restarts", restarts).Msg("collector: restarting")

		if c.restartNotifier != nil && restarts%restartWarnEvery == 0 {
			if nerr := c.restartNotifier.NotifyRestartThreshold(ctx, "collector", restarts); nerr != nil {
				c.log.Warn().Err(nerr).Msg("collector: restart threshold notification failed")
			}
		}

		if restarts >= c.cfg.MaxRestarts {
			return fmt.Errorf("collector: exceeded max restarts (%d): %w", c.cfg.MaxRestarts, err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(5 * time.Second):
		}
	}
}

func restartReason(err error) string {
	if err == nil {
		return "unknown"
	}
	return "stale_data_or_session_error"
}
