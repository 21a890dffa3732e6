// Command collector is the standalone C5 live-data collector: it owns the
// exchange WebSocket sessions and keeps klines, the order book, and the
// trade tape current in MongoDB and Redis for the trading agent process to
// read. Grounded on the feed simulator's cmd/feedsim/main.go entrypoint
// shape (flag-parsed config, signal-driven shutdown, supervised run loop).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okxtrader/swapagent/internal/collector"
	"github.com/okxtrader/swapagent/internal/config"
	"github.com/okxtrader/swapagent/internal/fastcache"
	"github.com/okxtrader/swapagent/internal/notify"
	"github.com/okxtrader/swapagent/internal/okx"
	"github.com/okxtrader/swapagent/internal/store"
	"github.com/okxtrader/swapagent/internal/telemetry"
	"github.com/okxtrader/swapagent/internal/timesync"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "collector:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadCollector(os.Args[1:])
	if err != nil {
		return err
	}
	if err := cfg.ValidateExchange(); err != nil {
		return err
	}

	logger, cleanupLog, err := telemetry.NewLogger("collector", true, "data/collector.log")
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer cleanupLog()
	telemetry.SetGlobal(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	proxyURL := buildProxyURL(cfg.Proxy)

	creds := okx.Credentials{
		APIKey:     cfg.Exchange.APIKey,
		APISecret:  cfg.Exchange.APISecret,
		Passphrase: cfg.Exchange.Passphrase,
		Demo:       cfg.Exchange.Demo,
	}
	rest := okx.NewRESTClient(cfg.Exchange.RESTBase, creds, proxyURL, logger)

	syncer := timesync.New()
	if err := syncer.Sync(ctx, rest, time.Now); err != nil {
		logger.Warn().Err(err).Msg("collector: initial time sync failed, continuing with zero offset")
	}

	mongoStore, err := store.New(ctx, cfg.Mongo.URI, logger)
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	defer mongoStore.Close(ctx)
	if err := mongoStore.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate mongo indexes: %w", err)
	}

	fc := fastcache.New(fastcache.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger)
	defer fc.Close()
	if err := fc.Ping(ctx); err != nil {
		logger.Warn().Err(err).Msg("collector: redis ping failed, continuing without confirmed connectivity")
	}

	if err := backfillHistory(ctx, cfg, rest, mongoStore, syncer, logger); err != nil {
		logger.Warn().Err(err).Msg("collector: startup backfill encountered errors, continuing")
	}

	col := collector.New(collector.Config{
		Symbols:        cfg.Symbols,
		Timeframes:     cfg.Timeframes,
		PublicWSURL:    cfg.Exchange.WSPublic,
		BusinessWSURL:  cfg.Exchange.WSBusiness,
		ProxyURL:       proxyURL,
		DataTimeoutSec: cfg.DataTimeoutSec,
		MaxRestarts:    cfg.MaxRestarts,
		NowMs:          syncer.NowMs,
	}, rest, mongoStore, mongoStore, fc, logger)

	if cfg.Notifier.Enabled {
		col.WithRestartNotifier(notify.New(cfg.Notifier.WebhookURL, logger))
	}

	logger.Info().Strs("symbols", cfg.Symbols).Strs("timeframes", cfg.Timeframes).Msg("collector: starting")
	return col.Run(ctx)
}

func buildProxyURL(p config.Proxy) string {
	if !p.Enabled || p.Host == "" {
		return ""
	}
	if p.User != "" {
		return fmt.Sprintf("http://%s:%s@%s:%d", p.User, p.Pass, p.Host, p.Port)
	}
	return fmt.Sprintf("http://%s:%d", p.Host, p.Port)
}
