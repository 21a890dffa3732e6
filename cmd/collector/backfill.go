package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/okxtrader/swapagent/internal/config"
	"github.com/okxtrader/swapagent/internal/kline"
	"github.com/okxtrader/swapagent/internal/okx"
	"github.com/okxtrader/swapagent/internal/store"
	"github.com/okxtrader/swapagent/internal/timesync"
)

// backfillHistory runs once at startup per (symbol, timeframe): repair any
// kline left unconfirmed across a restart, then detect and fill gaps over
// each timeframe's own BackfillDays window (--history-days applies only to
// timeframe codes missing from the kline timeframe table), per spec C3's
// idempotent backfill.
func backfillHistory(ctx context.Context, cfg *config.Config, rest *okx.RESTClient, persist *store.Store, syncer *timesync.Syncer, logger zerolog.Logger) error {
	nowMs := syncer.NowMs()

	var firstErr error
	for _, symbol := range cfg.Symbols {
		st := kline.New(symbol, persist, rest, logger)
		for _, tf := range cfg.Timeframes {
			sinceMs := nowMs - int64(cfg.HistoryDays)*24*60*60*1000
			if meta, ok := kline.ByCode(tf); ok {
				sinceMs = nowMs - int64(meta.BackfillDays)*24*60*60*1000
			}

			if err := st.RepairUnconfirmed(ctx, tf, nowMs); err != nil {
				logger.Warn().Err(err).Str("symbol", symbol).Str("timeframe", tf).Msg("backfill: repair unconfirmed failed")
				if firstErr == nil {
					firstErr = err
				}
				continue
			}

			gaps, err := st.DetectGaps(ctx, tf, sinceMs, nowMs)
			if err != nil {
				logger.Warn().Err(err).Str("symbol", symbol).Str("timeframe", tf).Msg("backfill: detect gaps failed")
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			for _, gap := range gaps {
				if err := st.Backfill(ctx, tf, gap); err != nil {
					logger.Warn().Err(err).Str("symbol", symbol).Str("timeframe", tf).Msg("backfill: fill gap failed")
					if firstErr == nil {
						firstErr = err
					}
				}
			}
			logger.Info().Str("symbol", symbol).Str("timeframe", tf).Int("gaps", len(gaps)).Msg("backfill: complete")
		}
	}
	if firstErr != nil {
		return fmt.Errorf("backfill: %w", firstErr)
	}
	return nil
}
