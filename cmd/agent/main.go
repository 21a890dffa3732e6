// Command agent is the C8/C9 trading agent: it reads live market data
// published by the collector process through MongoDB and Redis, runs the
// per-tick feature/prompt/decision pipeline, and (with --auto-execute)
// dispatches the resulting decisions to the exchange. Grounded on the
// feed simulator's cmd/feedsim/main.go entrypoint shape, generalized from
// one supervised session loop to several independently-scheduled
// background caches plus a foreground analysis loop.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/okxtrader/swapagent/internal/archive"
	"github.com/okxtrader/swapagent/internal/cache"
	"github.com/okxtrader/swapagent/internal/config"
	"github.com/okxtrader/swapagent/internal/fastcache"
	"github.com/okxtrader/swapagent/internal/feature"
	"github.com/okxtrader/swapagent/internal/journal"
	"github.com/okxtrader/swapagent/internal/llm"
	"github.com/okxtrader/swapagent/internal/model"
	"github.com/okxtrader/swapagent/internal/notify"
	"github.com/okxtrader/swapagent/internal/okx"
	"github.com/okxtrader/swapagent/internal/orchestrator"
	"github.com/okxtrader/swapagent/internal/review"
	"github.com/okxtrader/swapagent/internal/store"
	"github.com/okxtrader/swapagent/internal/telemetry"
	"github.com/okxtrader/swapagent/internal/timesync"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "agent:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadAgent(os.Args[1:])
	if err != nil {
		return err
	}
	if err := cfg.ValidateExchange(); err != nil {
		return err
	}
	symbol := cfg.Trading.Symbol

	logger, cleanupLog, err := telemetry.NewLogger("agent", true, "data/agent.log")
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
		logger.Warn().Err(err).Msg("agent: initial time sync failed, continuing with zero offset")
	}

	db, err := store.New(ctx, cfg.Mongo.URI, logger)
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	defer db.Close(ctx)
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate mongo indexes: %w", err)
	}

	fc := fastcache.New(fastcache.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger)
	defer fc.Close()
	if err := fc.Ping(ctx); err != nil {
		logger.Warn().Err(err).Msg("agent: redis ping failed, continuing without confirmed connectivity")
	}

	webhookURL := cfg.Notifier.WebhookURL
	if !cfg.Notifier.Enabled {
		webhookURL = ""
	}
	notifier := notify.New(webhookURL, logger)

	jrnl, err := journal.Load("data/journal.json", logger)
	if err != nil {
		return fmt.Errorf("load journal: %w", err)
	}
	go jrnl.Run(ctx)

	if err := validateInstrument(ctx, rest, symbol); err != nil {
		return fmt.Errorf("resolve instrument metadata: %w", err)
	}

	symbols := []string{symbol}
	balanceCache := cache.NewBalanceCache(rest, logger)
	fundingCache := cache.NewFundingCache(rest, symbols, logger)
	marketStatsCache := cache.NewMarketStatsCache(rest, symbols, logger)
	positionsCache := cache.NewPositionsCache(rest, db, notifier, symbols, logger)
	stopOrdersCache := cache.NewStopOrdersCache(rest, symbols, logger)
	instrumentCache := cache.NewInstrumentCache(rest, symbol, logger)
	go instrumentCache.Run(ctx)

	llmClient := llm.New(llm.Config{
		BaseURL:       cfg.LLM.BaseURL,
		APIKey:        cfg.LLM.APIKey,
		Model:         cfg.LLM.Model,
		Timeout:       cfg.LLM.Timeout,
		ReviewTimeout: cfg.LLM.ReviewTimeout,
	}, logger)

	reviewer := review.New(llmClient, db, db, db, logger)
	historicalCache := cache.NewHistoricalPositionsCache(rest, db, db, reviewer, symbols, logger)

	go balanceCache.Run(ctx)
	go fundingCache.Run(ctx)
	go marketStatsCache.Run(ctx)
	go positionsCache.Run(ctx)
	go stopOrdersCache.Run(ctx)
	go historicalCache.Run(ctx)

	if err := reviewer.RunPass(ctx); err != nil {
		logger.Warn().Err(err).Msg("agent: startup review pass failed")
	}

	if cfg.Archive.Bucket == "" {
		logger.Info().Msg("agent: archive bucket not configured, skipping conversation cold storage")
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Archive.Region))
		if err != nil {
			logger.Warn().Err(err).Msg("agent: aws config load failed, skipping archiver")
		} else {
			arch := archive.New(archive.Config{Bucket: cfg.Archive.Bucket, Prefix: cfg.Archive.Prefix, NowMs: syncer.NowMs}, db, s3.NewFromConfig(awsCfg), logger)
			go arch.Run(ctx)
		}
	}

	executor := orchestrator.NewMarketExecutor(rest, cfg.Trading.MarginMode)
	orch := orchestrator.New(orchestrator.Config{
		MarginMode:      model.MarginMode(cfg.Trading.MarginMode),
		DefaultLeverage: cfg.Trading.DefaultLev,
		Now:             func() time.Time { return time.UnixMilli(syncer.NowMs()) },
	}, rest, executor, positionsPoller{cache: positionsCache}, db, jrnl, logger)

	seed, err := feature.LoadPromptSeed("data/prompts.json")
	if err != nil {
		return fmt.Errorf("load prompt seed: %w", err)
	}

	a := &agent{
		symbol:                symbol,
		autoExecute:           cfg.AutoExecute,
		rest:                  rest,
		fc:                    fc,
		db:                    db,
		nowMs:                 syncer.NowMs,
		balance:               balanceCache,
		positions:             positionsCache,
		stopOrders:            stopOrdersCache,
		funding:               fundingCache,
		marketStat:            marketStatsCache,
		historical:            historicalCache,
		journal:               jrnl,
		orch:                  orch,
		llmc:                  llmClient,
		seed:                  seed,
		instCache:             instrumentCache,
		notifier:              notifier,
		freshnessThresholdSec: cfg.DataFreshnessThresholdSec,
		log:                   logger.With().Str("subsystem", "agent").Logger(),
	}

	logger.Info().Str("symbol", symbol).Bool("autoExecute", cfg.AutoExecute).Msg("agent: starting")

	if cfg.Once {
		return a.runTick(ctx)
	}
	return a.runLoop(ctx, time.Duration(cfg.IntervalSec)*time.Second)
}

// runLoop ticks runTick every interval until ctx is cancelled; a tick
// error is logged and does not stop the loop, per spec's resilience
// posture (a single failed analysis cycle must not kill the agent).
func (a *agent) runLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := a.runTick(ctx); err != nil {
		a.log.Warn().Err(err).Msg("agent: analysis tick failed")
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := a.runTick(ctx); err != nil {
				a.log.Warn().Err(err).Msg("agent: analysis tick failed")
			}
		}
	}
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
