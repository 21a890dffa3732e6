// Package review is the C10 post-trade review generator: for each closed
// position that has a non-empty decision journal and lacks a stored
// summary, it builds a compact markdown prompt (trade facts, decision
// timeline, recent confirmed klines) and asks the LLM for a one-shot
// retrospective. Grounded on internal/feature's prompt-building pattern
// (section-by-section markdown render), adapted from a live trading
// prompt to a closed-trade post-mortem.
package review

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/okxtrader/swapagent/internal/model"
)

// Completer is the non-streaming LLM call the review generator uses;
// *llm.Client implements it.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// DecisionHistory resolves the decision journal entries recorded while a
// position was open, keyed by (symbol, openTimeMs).
type DecisionHistory interface {
	DecisionsForPosition(ctx context.Context, symbol string, openTimeMs int64) ([]string, error)
}

// KlineReader supplies the recent confirmed klines used as market context.
type KlineReader interface {
	RecentKlinesBefore(ctx context.Context, symbol, timeframe string, beforeMs int64, limit int) ([]model.Kline, error)
}

// Store persists the finished review and finds candidate rows.
type Store interface {
	ListClosedWithoutReview(ctx context.Context, limit int) ([]model.ClosedPosition, error)
	FindClosedPosition(ctx context.Context, symbol string, openTimeMs int64) (model.ClosedPosition, bool, error)
	SetReviewSummary(ctx context.Context, symbol string, openTimeMs int64, summary string) error
}

const (
	contextTimeframe = "5m"
	contextKlines    = 15
	batchLimit       = 20
)

var systemPrompt = "You are a trading performance reviewer. Given a closed perpetual-swap trade, the decisions made while it was open, and recent market context, write a short, candid retrospective: what went right or wrong, and one concrete lesson. Respond in plain text, no markdown fences."

// Generator runs the review pass.
type Generator struct {
	llm      Completer
	journal  DecisionHistory
	klines   KlineReader
	store    Store
	timeout  time.Duration
	log      zerolog.Logger
}

// New builds a Generator.
func New(llmClient Completer, journal DecisionHistory, klines KlineReader, store Store, logger zerolog.Logger) *Generator {
	return &Generator{
		llm:     llmClient,
		journal: journal,
		klines:  klines,
		store:   store,
		timeout: 60 * time.Second,
		log:     logger.With().Str("subsystem", "review").Logger(),
	}
}

// RunPass reviews up to batchLimit closed positions lacking a summary.
// Positions whose decision journal is empty are skipped — there is
// nothing to retrospect on.
func (g *Generator) RunPass(ctx context.Context) error {
	rows, err := g.store.ListClosedWithoutReview(ctx, batchLimit)
	if err != nil {
		return fmt.Errorf("review: list candidates: %w", err)
	}
	for _, row := range rows {
		if err := g.Trigger(ctx, row.Symbol, row.PosSide, row.OpenTimeMs); err != nil {
			g.log.Warn().Err(err).Str("symbol", row.Symbol).Msg("review: generation failed")
		}
	}
	return nil
}

// Trigger generates and persists a review for one closed position. It
// makes no LLM call when the position has no linked decisions, is not in
// the store, or already carries a summary, so a repeat invocation for a
// reviewed position is a no-op; otherwise it makes exactly one LLM call.
// There is no lock: two concurrent invocations for the same unreviewed
// position can both call the LLM.
func (g *Generator) Trigger(ctx context.Context, symbol string, posSide model.PosSide, openTimeMs int64) error {
	decisions, err := g.journal.DecisionsForPosition(ctx, symbol, openTimeMs)
	if err != nil {
		return fmt.Errorf("review: load decisions: %w", err)
	}
	if len(decisions) == 0 {
		return nil
	}

	pos, found, err := g.store.FindClosedPosition(ctx, symbol, openTimeMs)
	if err != nil {
		return fmt.Errorf("review: load closed position: %w", err)
	}
	if !found || pos.ReviewSummary != "" {
		return nil
	}

	klines, err := g.klines.RecentKlinesBefore(ctx, symbol, contextTimeframe, pos.CloseTimeMs, contextKlines)
	if err != nil {
		g.log.Warn().Err(err).Str("symbol", symbol).Msg("review: kline context unavailable, continuing without it")
	}

	prompt := buildPrompt(pos, decisions, klines)

	reviewCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	summary, err := g.llm.Complete(reviewCtx, systemPrompt, prompt)
	if err != nil {
		return fmt.Errorf("review: llm call: %w", err)
	}

	return g.store.SetReviewSummary(ctx, symbol, openTimeMs, strings.TrimSpace(summary))
}

func buildPrompt(pos model.ClosedPosition, decisions []string, klines []model.Kline) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Trade\n\n")
	fmt.Fprintf(&b, "| symbol | side | size | entry | pnl | fee |\n|---|---|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n\n",
		pos.Symbol, pos.PosSide, pos.Size.String(), pos.AvgPx.String(), pos.RealizedPnl.String(), pos.FeeTotal.String())

	fmt.Fprintf(&b, "## Decision timeline\n\n")
	for _, d := range decisions {
		fmt.Fprintf(&b, "- %s\n", d)
	}
	b.WriteString("\n")

	if len(klines) > 0 {
		fmt.Fprintf(&b, "## Market context (%s, last %d bars ending near close)\n\n", contextTimeframe, contextKlines)
		fmt.Fprintf(&b, "| open | high | low | close |\n|---|---|---|---|\n")
		for _, k := range klines {
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", k.Open.String(), k.High.String(), k.Low.String(), k.Close.String())
		}
	}

	return b.String()
}
