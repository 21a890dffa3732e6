package orchestrator

import (
	"context"
	"fmt"

	"github.com/okxtrader/swapagent/internal/model"
	"github.com/okxtrader/swapagent/internal/okx"
)

// closePosition handles CLOSE_LONG/CLOSE_SHORT: cancels any resting
// TP/SL orders for posSide, then places a reduce-only market order for
// the full position size. It relies on the positions cache's own
// close-detection (diffing snapshots) to fire the downstream close
// notification once the exchange reflects the fill.
func (o *Orchestrator) closePosition(ctx context.Context, symbol string, posSide model.PosSide) error {
	_, pos, found := o.findAnyPosition(symbol, posSide)
	if !found {
		o.log.Warn().Str("symbol", symbol).Str("posSide", string(posSide)).Msg("orchestrator: close signal with no matching open position, skipped")
		return errSkipped
	}

	if err := o.cancelLimitOrders(ctx, symbol, posSide); err != nil {
		o.log.Warn().Err(err).Str("symbol", symbol).Msg("orchestrator: cancel resting take-profit orders before close failed")
	}
	if err := o.cancelAlgoOrders(ctx, symbol, posSide); err != nil {
		o.log.Warn().Err(err).Str("symbol", symbol).Msg("orchestrator: cancel resting stop-loss orders before close failed")
	}

	side := o.closingSide(posSide)
	_, err := o.trade.PlaceOrder(ctx, okx.OrderRequest{
		InstID:     symbol,
		TdMode:     string(o.cfg.MarginMode),
		Side:       side,
		PosSide:    string(posSide),
		OrdType:    "market",
		Sz:         pos.Size.String(),
		ReduceOnly: true,
	})
	if err != nil {
		return fmt.Errorf("orchestrator: close %s %s: %w", symbol, posSide, err)
	}
	return nil
}

func (o *Orchestrator) findAnyPosition(symbol string, posSide model.PosSide) (model.PosSide, model.Position, bool) {
	for _, p := range o.positions.Snapshot() {
		if p.Symbol == symbol && p.PosSide == posSide {
			return posSide, p, true
		}
	}
	return "", model.Position{}, false
}
