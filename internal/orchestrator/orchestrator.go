package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/okxtrader/swapagent/internal/llm"
	"github.com/okxtrader/swapagent/internal/model"
)

// PositionsPoller gives the orchestrator a way to wait for a newly opened
// position to become discoverable, per spec open question 1. Callers
// (cmd/agent) adapt the positions cache's enriched snapshot down to the
// plain model.Position this package needs.
type PositionsPoller interface {
	Snapshot() []model.Position
}

// DecisionRecorder persists one structured decision for audit/review, and
// links it to the position that became discoverable after it so C10's
// review generator can later find it by (symbol, openTimeMs).
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, d model.AIDecision) error
	SetDecisionPosID(ctx context.Context, decisionID string, posID int64) error
}

// JournalAppender appends a compacted decision summary to the rolling
// decision history (C11).
type JournalAppender interface {
	Append(content string, now time.Time)
}

// Config configures the orchestrator's trading parameters.
type Config struct {
	MarginMode      model.MarginMode
	DefaultLeverage int
	PollAttempts    int
	PollInterval    time.Duration
	Now             func() time.Time
}

// Orchestrator dispatches each LLM decision to the exchange (C9).
type Orchestrator struct {
	cfg       Config
	trade     TradeAPI
	executor  Executor
	positions PositionsPoller
	decisions DecisionRecorder
	journal   JournalAppender
	log       zerolog.Logger
}

// New builds an Orchestrator, applying default leverage/poll parameters
// when left zero.
func New(cfg Config, trade TradeAPI, executor Executor, positions PositionsPoller, decisions DecisionRecorder, jrnl JournalAppender, logger zerolog.Logger) *Orchestrator {
	if cfg.DefaultLeverage <= 0 {
		cfg.DefaultLeverage = 10
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MarginMode == "" {
		cfg.MarginMode = model.MarginIsolated
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Orchestrator{
		cfg:       cfg,
		trade:     trade,
		executor:  executor,
		positions: positions,
		decisions: decisions,
		journal:   jrnl,
		log:       logger.With().Str("subsystem", "orchestrator").Logger(),
	}
}

// errSkipped marks a decision that was validated-out rather than failed;
// callers log it at a lower severity than a transport/order-API error.
var errSkipped = errors.New("orchestrator: decision skipped")

// Dispatch routes decision for symbol by its Signal, per spec 4.9's
// OPEN_LONG/OPEN_SHORT/ADJUST_STOP/CLOSE_LONG/CLOSE_SHORT/HOLD cases.
// It always records the decision and journals a compact summary before
// (or regardless of) acting on it, so the audit trail survives order
// failures.
func (o *Orchestrator) Dispatch(ctx context.Context, symbol string, inst InstrumentInfo, d llm.Decision) error {
	now := o.cfg.Now()

	decisionID := o.recordAndJournal(ctx, symbol, d, now)

	switch model.Action(d.Signal) {
	case model.ActionOpenLong:
		return o.openPosition(ctx, symbol, inst, model.PosLong, d, decisionID)
	case model.ActionOpenShort:
		return o.openPosition(ctx, symbol, inst, model.PosShort, d, decisionID)
	case model.ActionAdjustStop:
		return o.adjustStop(ctx, symbol, d)
	case model.ActionCloseLong:
		return o.closePosition(ctx, symbol, model.PosLong)
	case model.ActionCloseShort:
		return o.closePosition(ctx, symbol, model.PosShort)
	case model.ActionHold:
		return nil
	default:
		o.log.Warn().Str("symbol", symbol).Str("signal", d.Signal).Msg("orchestrator: unrecognized signal, treated as hold")
		return nil
	}
}

// recordAndJournal persists the decision and appends a journal summary,
// returning the decision's ID so openPosition can later link it to the
// position it produced via SetDecisionPosID.
func (o *Orchestrator) recordAndJournal(ctx context.Context, symbol string, d llm.Decision, now time.Time) string {
	var posSide model.PosSide
	switch model.Action(d.Signal) {
	case model.ActionOpenLong, model.ActionCloseLong:
		posSide = model.PosLong
	case model.ActionOpenShort, model.ActionCloseShort:
		posSide = model.PosShort
	}

	rec := model.AIDecision{
		ID:          fmt.Sprintf("%s-%d", symbol, now.UnixNano()),
		TimestampMs: now.UnixMilli(),
		Symbol:      symbol,
		PosSide:     posSide,
		Action:      model.Action(d.Signal),
		Confidence:  d.ConfidenceOrZero(),
		AdjustData:  d.AdjustData,
		HoldingTime: d.HoldingTime,
		Reason:      d.Reason,
	}
	if d.Size.Set {
		rec.Size = d.Size.Value
	} else {
		rec.Size = decimal.Zero
	}

	if o.decisions != nil {
		if err := o.decisions.RecordDecision(ctx, rec); err != nil {
			o.log.Warn().Err(err).Str("symbol", symbol).Msg("orchestrator: record decision failed")
		}
	}
	if o.journal != nil {
		summary := fmt.Sprintf("[%s] %s conf=%d reason=%s", symbol, d.Signal, d.ConfidenceOrZero(), d.Reason)
		if d.RiskWarning != "" {
			summary += " risk=" + d.RiskWarning
		}
		o.journal.Append(summary, now)
	}
	return rec.ID
}

// InstrumentInfo carries the sizing metadata needed to clamp order size
// to the instrument's minimum lot, per spec's minSz invariant.
type InstrumentInfo struct {
	MinSz  decimal.Decimal
	LotSz  decimal.Decimal
	TickSz decimal.Decimal
}

// findOpenPosition polls the positions snapshot up to PollAttempts times,
// sleeping PollInterval between tries, looking for a position with the
// given symbol/posSide that was not already present before dispatch.
func (o *Orchestrator) findOpenPosition(ctx context.Context, symbol string, posSide model.PosSide, before map[int64]bool) (model.Position, bool) {
	for attempt := 0; attempt < o.cfg.PollAttempts; attempt++ {
		for _, p := range o.positions.Snapshot() {
			if p.Symbol == symbol && p.PosSide == posSide && !before[p.OpenTimeMs] {
				return p, true
			}
		}
		select {
		case <-ctx.Done():
			return model.Position{}, false
		case <-time.After(o.cfg.PollInterval):
		}
	}
	return model.Position{}, false
}

func (o *Orchestrator) existingOpenTimes(symbol string, posSide model.PosSide) map[int64]bool {
	out := make(map[int64]bool)
	for _, p := range o.positions.Snapshot() {
		if p.Symbol == symbol && p.PosSide == posSide {
			out[p.OpenTimeMs] = true
		}
	}
	return out
}

func (o *Orchestrator) closingSide(posSide model.PosSide) string {
	if posSide == model.PosLong {
		return "sell"
	}
	return "buy"
}
