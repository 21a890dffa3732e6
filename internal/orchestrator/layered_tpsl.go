package orchestrator

import (
	"context"
	"sync"

	"github.com/okxtrader/swapagent/internal/model"
	"github.com/okxtrader/swapagent/internal/okx"
)

// applyLayeredTPSL runs the spec 4.9 sequence per leg: cancel the resting
// orders of a leg (step 1) before placing its replacement layers (steps
// 2/3), so a single-leg adjust never disturbs the untouched leg. The TP
// leg and SL leg run concurrently with each other since they touch
// disjoint order books (reduce-only limits vs conditional algos). Each
// layer is applied at most once; a per-layer failure is logged and does
// not roll back any other layer or leg.
func (o *Orchestrator) applyLayeredTPSL(ctx context.Context, symbol string, posSide model.PosSide, adjust model.AdjustData) error {
	var wg sync.WaitGroup

	if len(adjust.TakeProfit) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := o.cancelLimitOrders(ctx, symbol, posSide); err != nil {
				o.log.Warn().Err(err).Str("symbol", symbol).Msg("orchestrator: cancel resting take-profit orders failed")
			}
			o.placeTakeProfitLayers(ctx, symbol, posSide, adjust.TakeProfit)
		}()
	}
	if len(adjust.StopLoss) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := o.cancelAlgoOrders(ctx, symbol, posSide); err != nil {
				o.log.Warn().Err(err).Str("symbol", symbol).Msg("orchestrator: cancel resting stop-loss orders failed")
			}
			o.placeStopLossLayers(ctx, symbol, posSide, adjust.StopLoss)
		}()
	}
	wg.Wait()
	return nil
}

func (o *Orchestrator) cancelLimitOrders(ctx context.Context, symbol string, posSide model.PosSide) error {
	orders, err := o.trade.GetPendingOrders(ctx, symbol)
	if err != nil {
		return err
	}
	for _, ord := range orders {
		if ord.PosSide != string(posSide) {
			continue
		}
		if err := o.trade.CancelOrder(ctx, symbol, ord.OrdID); err != nil {
			o.log.Warn().Err(err).Str("symbol", symbol).Str("ordId", ord.OrdID).Msg("orchestrator: cancel resting limit order failed")
		}
	}
	return nil
}

func (o *Orchestrator) cancelAlgoOrders(ctx context.Context, symbol string, posSide model.PosSide) error {
	algos, err := o.trade.GetPendingAlgoOrders(ctx, symbol)
	if err != nil {
		return err
	}
	for _, algo := range algos {
		if algo.PosSide != string(posSide) {
			continue
		}
		if err := o.trade.CancelAlgoOrder(ctx, symbol, algo.AlgoID); err != nil {
			o.log.Warn().Err(err).Str("symbol", symbol).Str("algoId", algo.AlgoID).Msg("orchestrator: cancel resting algo order failed")
		}
	}
	return nil
}

func (o *Orchestrator) placeTakeProfitLayers(ctx context.Context, symbol string, posSide model.PosSide, layers []model.TPSLLayer) {
	side := o.closingSide(posSide)
	for _, layer := range layers {
		_, err := o.trade.PlaceOrder(ctx, okx.OrderRequest{
			InstID:     symbol,
			TdMode:     string(o.cfg.MarginMode),
			Side:       side,
			PosSide:    string(posSide),
			OrdType:    "limit",
			Sz:         layer.Size.String(),
			Px:         layer.Price.String(),
			ReduceOnly: true,
		})
		if err != nil {
			o.log.Warn().Err(err).Str("symbol", symbol).Str("price", layer.Price.String()).Msg("orchestrator: place take-profit layer failed")
		}
	}
}

func (o *Orchestrator) placeStopLossLayers(ctx context.Context, symbol string, posSide model.PosSide, layers []model.TPSLLayer) {
	side := o.closingSide(posSide)
	for _, layer := range layers {
		_, err := o.trade.PlaceAlgoOrder(ctx, okx.AlgoOrderRequest{
			InstID:      symbol,
			TdMode:      string(o.cfg.MarginMode),
			Side:        side,
			PosSide:     string(posSide),
			Sz:          layer.Size.String(),
			SlTriggerPx: layer.Price.String(),
			SlOrdPx:     "-1",
		})
		if err != nil {
			o.log.Warn().Err(err).Str("symbol", symbol).Str("price", layer.Price.String()).Msg("orchestrator: place stop-loss layer failed")
		}
	}
}
