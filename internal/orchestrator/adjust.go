package orchestrator

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/okxtrader/swapagent/internal/llm"
	"github.com/okxtrader/swapagent/internal/model"
)

// adjustStop handles ADJUST_STOP: either a full re-layering of TP/SL (when
// adjust_data carries new layers) or a single new_stop_loss_price /
// new_take_profit_price move (when adjust_type names one leg). Both paths
// reuse applyLayeredTPSL's cancel-then-replace sequencing so a partial
// adjust never leaves stale orders resting alongside new ones.
func (o *Orchestrator) adjustStop(ctx context.Context, symbol string, d llm.Decision) error {
	posSide, pos, found := o.anyOpenPosition(symbol)
	if !found {
		o.log.Warn().Str("symbol", symbol).Msg("orchestrator: adjust_stop with no open position, skipped")
		return errSkipped
	}

	if d.AdjustData != nil {
		adjust, err := fillMissingSizes(d.AdjustData, pos.Size)
		if err != nil {
			return fmt.Errorf("orchestrator: adjust_data invalid: %w", err)
		}
		return o.applyLayeredTPSL(ctx, symbol, posSide, *adjust)
	}

	var layer model.TPSLLayer
	var price decimal.Decimal
	switch d.AdjustType {
	case "stop_loss":
		if !d.NewStopLossPrice.Set {
			return errSkipped
		}
		price = d.NewStopLossPrice.Value
		layer = model.TPSLLayer{Size: pos.Size, Price: price}
		return o.applyLayeredTPSL(ctx, symbol, posSide, model.AdjustData{StopLoss: []model.TPSLLayer{layer}})
	case "take_profit":
		if !d.NewTakeProfitPrice.Set {
			return errSkipped
		}
		price = d.NewTakeProfitPrice.Value
		layer = model.TPSLLayer{Size: pos.Size, Price: price}
		return o.applyLayeredTPSL(ctx, symbol, posSide, model.AdjustData{TakeProfit: []model.TPSLLayer{layer}})
	default:
		o.log.Warn().Str("symbol", symbol).Str("adjustType", d.AdjustType).Msg("orchestrator: adjust_stop with unrecognized adjust_type, skipped")
		return errSkipped
	}
}

func (o *Orchestrator) anyOpenPosition(symbol string) (model.PosSide, model.Position, bool) {
	for _, p := range o.positions.Snapshot() {
		if p.Symbol == symbol {
			return p.PosSide, p, true
		}
	}
	return "", model.Position{}, false
}
