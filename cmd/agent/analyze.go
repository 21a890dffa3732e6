package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/okxtrader/swapagent/internal/cache"
	"github.com/okxtrader/swapagent/internal/fastcache"
	"github.com/okxtrader/swapagent/internal/feature"
	"github.com/okxtrader/swapagent/internal/journal"
	"github.com/okxtrader/swapagent/internal/llm"
	"github.com/okxtrader/swapagent/internal/model"
	"github.com/okxtrader/swapagent/internal/notify"
	"github.com/okxtrader/swapagent/internal/okx"
	"github.com/okxtrader/swapagent/internal/orchestrator"
	"github.com/okxtrader/swapagent/internal/orderbook"
	"github.com/okxtrader/swapagent/internal/store"
)

const (
	shortTimeframe    = "5m"
	longTimeframe     = "15m"
	klineLookback     = 200
	recentTradeWindow = 60 * time.Second
	recentTradeLimit  = 200
)

// agent holds everything one analysis tick touches: the live data bridge,
// the C6 background caches, the decision engine, and the order
// orchestrator. One agent trades exactly one symbol, per the CLI surface.
type agent struct {
	symbol      string
	autoExecute bool

	rest  *okx.RESTClient
	fc    *fastcache.Client
	db    *store.Store
	nowMs func() int64

	balance    *cache.BalanceCache
	positions  *cache.PositionsCache
	stopOrders *cache.StopOrdersCache
	funding    *cache.FundingCache
	marketStat *cache.MarketStatsCache
	historical *cache.HistoricalPositionsCache

	journal   *journal.Journal
	orch      *orchestrator.Orchestrator
	llmc      *llm.Client
	seed      feature.PromptSeed
	instCache *cache.InstrumentCache
	notifier  *notify.Notifier

	freshnessThresholdSec int

	log zerolog.Logger
}

// runTick executes one full C7/C8/C9 analysis cycle: gather inputs,
// build the feature bundle, call the LLM, and dispatch the resulting
// decision (live, if autoExecute is set).
func (a *agent) runTick(ctx context.Context) error {
	now := a.nowMs()

	in, err := a.gatherInputs(ctx, now)
	if err != nil {
		return fmt.Errorf("agent: gather inputs: %w", err)
	}

	bundle, err := feature.Build(in)
	if err != nil {
		if errors.Is(err, feature.ErrStaleData) {
			a.log.Warn().Err(err).Str("symbol", a.symbol).Msg("agent: stale data, forcing hold")
			return a.dispatchHold(ctx, err.Error())
		}
		return fmt.Errorf("agent: build features: %w", err)
	}

	system, user := feature.BuildPrompt(a.seed, bundle)
	inst := instrumentInfoFromMeta(a.instCache.Snapshot())

	var dispatched bool
	var dispatchErr error
	onEarly := func(d llm.Decision) {
		if !a.autoExecute {
			return
		}
		dispatched = true
		dispatchErr = a.orch.Dispatch(ctx, a.symbol, inst, d)
	}

	result, err := a.llmc.Stream(ctx, system, user, onEarly)
	if err != nil {
		return fmt.Errorf("agent: llm stream: %w", err)
	}

	decision := finalDecision(result)
	if decision != nil && a.autoExecute && !dispatched {
		dispatchErr = a.orch.Dispatch(ctx, a.symbol, inst, *decision)
		dispatched = true
	}
	if dispatchErr != nil {
		a.log.Warn().Err(dispatchErr).Str("symbol", a.symbol).Msg("agent: decision dispatch failed")
	}

	a.recordConversation(ctx, result, system, user, dispatched, now)
	return nil
}

// finalDecision prefers the full, post-stream parse over the early probe,
// since the full parse carries the complete reason/risk_warning text.
func finalDecision(result llm.StreamResult) *llm.Decision {
	if result.FullParsed != nil {
		return result.FullParsed
	}
	return result.Early
}

func (a *agent) recordConversation(ctx context.Context, result llm.StreamResult, system, user string, executed bool, now int64) {
	analysis := ""
	if d := finalDecision(result); d != nil {
		analysis = d.Signal + ": " + d.Reason
	} else if result.ParseErr != nil {
		analysis = "parse error: " + result.ParseErr.Error()
	}

	rec := model.ConversationRecord{
		ID:          uuid.NewString(),
		SessionID:   result.SessionID,
		Symbol:      a.symbol,
		Prompt:      system + "\n\n" + user,
		Response:    result.Full,
		Analysis:    analysis,
		Executed:    executed,
		CreatedAtMs: now,
	}
	if err := a.db.RecordConversation(ctx, rec); err != nil {
		a.log.Warn().Err(err).Msg("agent: record conversation failed")
	}
}

// dispatchHold short-circuits the LLM call entirely when the freshness
// gate trips: there is nothing useful to reason about over stale data.
func (a *agent) dispatchHold(ctx context.Context, reason string) error {
	if !a.autoExecute {
		return nil
	}
	d := llm.Decision{Signal: string(model.ActionHold), Reason: reason}
	return a.orch.Dispatch(ctx, a.symbol, instrumentInfoFromMeta(a.instCache.Snapshot()), d)
}

func (a *agent) gatherInputs(ctx context.Context, nowMs int64) (feature.Inputs, error) {
	shortKlines, err := a.db.RecentKlines(ctx, a.symbol, shortTimeframe, klineLookback)
	if err != nil {
		return feature.Inputs{}, fmt.Errorf("recent %s klines: %w", shortTimeframe, err)
	}
	longKlines, err := a.db.RecentKlines(ctx, a.symbol, longTimeframe, klineLookback)
	if err != nil {
		return feature.Inputs{}, fmt.Errorf("recent %s klines: %w", longTimeframe, err)
	}

	book, bookAgeMs := a.latestBook(ctx, nowMs)
	trades, pressureAgeMs := a.recentTrades(ctx, nowMs)

	lastKlineMs, ok, err := a.fc.LastKlineUpdate(ctx, a.symbol, shortTimeframe)
	if err != nil {
		a.log.Warn().Err(err).Msg("agent: kline freshness marker lookup failed")
	}
	klineAgeMs := int64(0)
	if ok {
		klineAgeMs = nowMs - lastKlineMs
	}

	bal := a.balance.Snapshot()
	pos := a.positions.Snapshot()
	stops := a.stopOrders.Snapshot(a.symbol)
	fund, _ := a.funding.Snapshot(a.symbol)
	stats, _ := a.marketStat.Snapshot(a.symbol)
	hist, _ := a.historical.Stats(a.symbol)

	return feature.Inputs{
		Symbol:         a.symbol,
		ShortTimeframe: shortTimeframe,
		LongTimeframe:  longTimeframe,
		ShortKlines:    shortKlines,
		LongKlines:     longKlines,

		Book:          book,
		BookAgeMs:     bookAgeMs,
		RecentTrades:  trades,
		PressureAgeMs: pressureAgeMs,

		Balance:     bal,
		Positions:   pos,
		StopOrders:  stops,
		Funding:     fund,
		MarketStats: stats,
		HistStats:   hist,
		Journal:     a.journalLines(),

		KlineAgeMs:            klineAgeMs,
		FreshnessThresholdSec: a.freshnessThresholdSec,
	}, nil
}

func (a *agent) latestBook(ctx context.Context, nowMs int64) (orderbook.Snapshot, int64) {
	snap, ok, err := a.fc.LatestBook(ctx, a.symbol)
	if err != nil {
		a.log.Warn().Err(err).Msg("agent: latest book lookup failed")
	}
	if !ok {
		return orderbook.Snapshot{Symbol: a.symbol}, nowMs
	}
	return orderbook.Snapshot{
		Symbol: snap.Symbol,
		Bids:   toOrderbookLevels(snap.Bids),
		Asks:   toOrderbookLevels(snap.Asks),
	}, nowMs - snap.UpdatedMs
}

func toOrderbookLevels(levels []model.OrderBookLevel) []orderbook.Level {
	out := make([]orderbook.Level, len(levels))
	for i, l := range levels {
		out[i] = orderbook.Level{Price: l.Price, Size: l.Size}
	}
	return out
}

func (a *agent) recentTrades(ctx context.Context, nowMs int64) ([]model.Trade, int64) {
	trades, err := a.fc.RecentTrades(ctx, a.symbol, recentTradeLimit)
	if err != nil {
		a.log.Warn().Err(err).Msg("agent: recent trades lookup failed")
		return nil, nowMs
	}
	cutoff := nowMs - recentTradeWindow.Milliseconds()
	out := make([]model.Trade, 0, len(trades))
	for _, t := range trades {
		if t.TsMs >= cutoff {
			out = append(out, t)
		}
	}
	age := nowMs
	if len(trades) > 0 {
		age = nowMs - trades[0].TsMs
	}
	return out, age
}

func (a *agent) journalLines() []string {
	entries := a.journal.Entries()
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.TimestampStr + ": " + e.Content
	}
	return out
}

// validateInstrument fails fast at startup if symbol has no instrument
// metadata (bad config), before any background loop starts.
func validateInstrument(ctx context.Context, rest *okx.RESTClient, symbol string) error {
	_, err := rest.GetInstrument(ctx, symbol)
	if err != nil {
		return fmt.Errorf("resolve instrument: %w", err)
	}
	return nil
}

// instrumentInfoFromMeta converts OKX instrument metadata into the sizing
// clamp the orchestrator needs, per the supplemented lot-size handling
// feature. A zero-value meta (cache not yet populated) yields a zero
// InstrumentInfo, which open.go's clamp treats as "no clamp applied".
func instrumentInfoFromMeta(meta okx.Instrument) orchestrator.InstrumentInfo {
	minSz, _ := decimal.NewFromString(meta.MinSz)
	lotSz, _ := decimal.NewFromString(meta.LotSz)
	tickSz, _ := decimal.NewFromString(meta.TickSz)
	return orchestrator.InstrumentInfo{MinSz: minSz, LotSz: lotSz, TickSz: tickSz}
}

// positionsPoller adapts cache.PositionsCache's enriched snapshot down to
// the plain model.Position slice orchestrator.PositionsPoller needs.
type positionsPoller struct {
	cache *cache.PositionsCache
}

func (p positionsPoller) Snapshot() []model.Position {
	enriched := p.cache.Snapshot()
	out := make([]model.Position, len(enriched))
	for i, e := range enriched {
		out[i] = e.Position
	}
	return out
}
