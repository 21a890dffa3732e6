// Package kline maintains the live and historical kline (candlestick) store
// for each (symbol, timeframe): live upserts from the WebSocket feed,
// startup repair of bars left unconfirmed across a restart, and gap
// detection with REST backfill, per spec C3. Grounded on the feed
// simulator's persistence-layer shape, generalized from trade ticks to
// OHLCV bars.
package kline

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/okxtrader/swapagent/internal/model"
	"github.com/okxtrader/swapagent/internal/okx"
)

// Persister is the subset of internal/store's Mongo-backed operations the
// kline package needs; internal/store.Store implements it.
type Persister interface {
	UpsertKline(ctx context.Context, k model.Kline) error
	GetKline(ctx context.Context, symbol, timeframe string, openTimeMs int64) (model.Kline, bool, error)
	ListUnconfirmedBefore(ctx context.Context, symbol, timeframe string, nowMs int64) ([]model.Kline, error)
	ListOpenTimes(ctx context.Context, symbol, timeframe string, fromMs, toMs int64) (map[int64]bool, error)
	BatchUpsertKlines(ctx context.Context, ks []model.Kline) error
	RecentKlines(ctx context.Context, symbol, timeframe string, limit int) ([]model.Kline, error)
}

// CandleFetcher is the REST surface the backfiller calls; internal/okx's
// RESTClient implements it.
type CandleFetcher interface {
	GetCandles(ctx context.Context, instID, bar string, after, before int64, limit int) ([]okx.Candle, error)
}

// Store is the live+historical kline manager for one exchange symbol.
type Store struct {
	symbol   string
	persist  Persister
	candles  CandleFetcher
	log      zerolog.Logger

	lastUpdate map[string]time.Time // timeframe code -> last live-message time
}

// New builds a Store for symbol.
func New(symbol string, persist Persister, candles CandleFetcher, logger zerolog.Logger) *Store {
	return &Store{
		symbol:     symbol,
		persist:    persist,
		candles:    candles,
		log:        logger.With().Str("subsystem", "kline").Str("symbol", symbol).Logger(),
		lastUpdate: make(map[string]time.Time),
	}
}

// IngestLive upserts one live kline message. Unconfirmed bars are always
// overwritten; once confirmed=true, further writes for the same key are
// silently ignored (the record is frozen).
func (s *Store) IngestLive(ctx context.Context, k model.Kline) error {
	existing, found, err := s.persist.GetKline(ctx, k.Symbol, k.Timeframe, k.OpenTimeMs)
	if err != nil {
		return fmt.Errorf("kline ingest: lookup: %w", err)
	}
	if found && existing.Confirmed {
		return nil
	}

	k.LastUpdateMs = time.Now().UnixMilli()
	if err := s.persist.UpsertKline(ctx, k); err != nil {
		return fmt.Errorf("kline ingest: upsert: %w", err)
	}
	s.lastUpdate[k.Timeframe] = time.Now()
	return nil
}

// LastUpdated returns the time of the last live message for timeframe,
// used by the collector's freshness watchdog. Zero value if none yet.
func (s *Store) LastUpdated(timeframe string) time.Time {
	return s.lastUpdate[timeframe]
}

// RepairUnconfirmed loads persisted klines with confirmed=false whose
// bar-end has already passed corrected now, and overwrites each with a
// single confirmed REST candle — recovering from a restart mid-bar.
func (s *Store) RepairUnconfirmed(ctx context.Context, timeframe string, nowMs int64) error {
	tf, ok := ByCode(timeframe)
	if !ok {
		return fmt.Errorf("kline repair: unknown timeframe %s", timeframe)
	}

	stale, err := s.persist.ListUnconfirmedBefore(ctx, s.symbol, timeframe, nowMs-tf.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("kline repair: list: %w", err)
	}

	for _, k := range stale {
		rows, err := s.candles.GetCandles(ctx, s.symbol, tf.Code, 0, k.OpenTimeMs-1, 1)
		if err != nil {
			s.log.Warn().Err(err).Int64("openTimeMs", k.OpenTimeMs).Msg("kline repair: fetch failed")
			continue
		}
		fixed, ok := findCandleAt(rows, k.OpenTimeMs)
		if !ok {
			// The single historical candle we expect may come back as the
			// element immediately before the "before" cursor; fall back to
			// a direct after/before=openTime window.
			rows, err = s.candles.GetCandles(ctx, s.symbol, tf.Code, k.OpenTimeMs+1, 0, 1)
			if err != nil {
				continue
			}
			fixed, ok = findCandleAt(rows, k.OpenTimeMs)
			if !ok {
				continue
			}
		}
		bar, err := ParseCandle(s.symbol, tf.Code, fixed, true)
		if err != nil {
			s.log.Warn().Err(err).Msg("kline repair: parse failed")
			continue
		}
		if err := s.persist.UpsertKline(ctx, bar); err != nil {
			s.log.Warn().Err(err).Msg("kline repair: upsert failed")
		}
	}
	return nil
}

func findCandleAt(rows []okx.Candle, openTimeMs int64) (okx.Candle, bool) {
	for _, r := range rows {
		if parseMsField(r[0]) == openTimeMs {
			return r, true
		}
	}
	return okx.Candle{}, false
}

// ParseCandle converts a raw OKX candle row into a model.Kline.
func ParseCandle(symbol, timeframe string, c okx.Candle, confirmed bool) (model.Kline, error) {
	open, err := decimalField(c[1])
	if err != nil {
		return model.Kline{}, err
	}
	high, err := decimalField(c[2])
	if err != nil {
		return model.Kline{}, err
	}
	low, err := decimalField(c[3])
	if err != nil {
		return model.Kline{}, err
	}
	closePx, err := decimalField(c[4])
	if err != nil {
		return model.Kline{}, err
	}
	vol, err := decimalField(c[5])
	if err != nil {
		return model.Kline{}, err
	}
	return model.Kline{
		Symbol:     symbol,
		Timeframe:  timeframe,
		OpenTimeMs: parseMsField(c[0]),
		Open:       open,
		High:       high,
		Low:        low,
		Close:      closePx,
		Volume:     vol,
		Confirmed:  confirmed,
	}, nil
}

// Gap is a contiguous span of missing bar openings.
type Gap struct {
	FromMs int64 // t_lo
	ToMs   int64 // t_hi
}

// DetectGaps computes expected bar openings over [sinceMs, nowMs] for
// timeframe and returns the contiguous-run complement against what is
// already persisted.
func (s *Store) DetectGaps(ctx context.Context, timeframe string, sinceMs, nowMs int64) ([]Gap, error) {
	tf, ok := ByCode(timeframe)
	if !ok {
		return nil, fmt.Errorf("kline gaps: unknown timeframe %s", timeframe)
	}
	step := tf.Duration.Milliseconds()
	start := AlignedOpen(sinceMs, tf.Duration)
	end := AlignedOpen(nowMs, tf.Duration)

	present, err := s.persist.ListOpenTimes(ctx, s.symbol, timeframe, start, end)
	if err != nil {
		return nil, fmt.Errorf("kline gaps: list: %w", err)
	}

	var gaps []Gap
	var runStart int64 = -1
	for t := start; t <= end; t += step {
		if present[t] {
			if runStart >= 0 {
				gaps = append(gaps, Gap{FromMs: runStart, ToMs: t - step})
				runStart = -1
			}
			continue
		}
		if runStart < 0 {
			runStart = t
		}
	}
	if runStart >= 0 {
		gaps = append(gaps, Gap{FromMs: runStart, ToMs: end})
	}
	return gaps, nil
}

// Backfill pages REST history backwards through gap in 100-bar pages,
// using after=t_hi / before=t_lo-1, stopping when a page returns fewer
// than 100 rows or the oldest timestamp in the page stops advancing.
func (s *Store) Backfill(ctx context.Context, timeframe string, gap Gap) error {
	tf, ok := ByCode(timeframe)
	if !ok {
		return fmt.Errorf("kline backfill: unknown timeframe %s", timeframe)
	}

	after := gap.ToMs
	before := gap.FromMs - 1
	var prevOldest int64 = -1

	for {
		rows, err := s.candles.GetCandles(ctx, s.symbol, tf.Code, after, before, 100)
		if err != nil {
			return fmt.Errorf("kline backfill: fetch: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}

		bars := make([]model.Kline, 0, len(rows))
		oldest := int64(1<<63 - 1)
		for _, r := range rows {
			bar, err := ParseCandle(s.symbol, tf.Code, r, r[8] == "1")
			if err != nil {
				continue
			}
			bars = append(bars, bar)
			if bar.OpenTimeMs < oldest {
				oldest = bar.OpenTimeMs
			}
		}
		if len(bars) > 0 {
			if err := s.persist.BatchUpsertKlines(ctx, bars); err != nil {
				return fmt.Errorf("kline backfill: upsert page: %w", err)
			}
		}

		if len(rows) < 100 || oldest == prevOldest {
			return nil
		}
		prevOldest = oldest
		after = oldest
	}
}

func decimalField(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

func parseMsField(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}
