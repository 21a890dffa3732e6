package orchestrator

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/okxtrader/swapagent/internal/llm"
	"github.com/okxtrader/swapagent/internal/model"
)

// openPosition runs the OPEN_LONG/OPEN_SHORT sequence: validate size and
// TP/SL layer sums, set leverage, place the opening order via Executor,
// poll for the position to become discoverable, then apply layered TP/SL.
func (o *Orchestrator) openPosition(ctx context.Context, symbol string, inst InstrumentInfo, posSide model.PosSide, d llm.Decision, decisionID string) error {
	if !d.Size.Set || d.Size.Value.LessThanOrEqual(decimal.Zero) {
		o.log.Warn().Str("symbol", symbol).Msg("orchestrator: open signal missing positive size, skipped")
		return errSkipped
	}
	size := clampToLotSize(d.Size.Value, inst)
	if !inst.MinSz.IsZero() && size.LessThan(inst.MinSz) {
		o.log.Warn().Str("symbol", symbol).Str("size", size.String()).Str("minSz", inst.MinSz.String()).Msg("orchestrator: size below instrument minimum, clamped up")
		size = inst.MinSz
	}

	adjust, err := fillMissingSizes(d.AdjustData, size)
	if err != nil {
		o.log.Warn().Err(err).Str("symbol", symbol).Msg("orchestrator: adjust_data invalid, open signal skipped")
		return errSkipped
	}

	if err := o.trade.SetLeverage(ctx, symbol, o.cfg.DefaultLeverage, string(o.cfg.MarginMode), string(posSide)); err != nil {
		return fmt.Errorf("orchestrator: set leverage: %w", err)
	}

	before := o.existingOpenTimes(symbol, posSide)

	res, err := o.executor.Open(ctx, OpenRequest{Symbol: symbol, PosSide: posSide, Size: size})
	if err != nil {
		return fmt.Errorf("orchestrator: open %s %s: %w", symbol, posSide, err)
	}
	if !res.Success {
		o.log.Warn().Str("symbol", symbol).Str("posSide", string(posSide)).Msg("orchestrator: executor reported failure opening position")
		return errSkipped
	}

	pos, found := o.findOpenPosition(ctx, symbol, posSide, before)
	if !found {
		o.log.Warn().Str("symbol", symbol).Str("posSide", string(posSide)).Msg("orchestrator: opened position not discoverable within poll budget")
		return nil
	}
	if o.decisions != nil && decisionID != "" {
		if err := o.decisions.SetDecisionPosID(ctx, decisionID, pos.OpenTimeMs); err != nil {
			o.log.Warn().Err(err).Str("symbol", symbol).Msg("orchestrator: link decision to position failed")
		}
	}

	if adjust == nil {
		return nil
	}
	return o.applyLayeredTPSL(ctx, symbol, posSide, *adjust)
}

// clampToLotSize rounds size down to the nearest multiple of inst.LotSz
// when LotSz is known and positive.
func clampToLotSize(size decimal.Decimal, inst InstrumentInfo) decimal.Decimal {
	if inst.LotSz.IsZero() {
		return size
	}
	units := size.Div(inst.LotSz).Floor()
	return units.Mul(inst.LotSz)
}
