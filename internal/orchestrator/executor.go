// Package orchestrator is the C9 order orchestrator: it dispatches each
// decision by signal, validates and fills sizing, and applies layered
// TP/SL with a cancel-then-replace policy. Grounded on the feed
// simulator's dependency-injected task wiring in cmd/feedsim/main.go,
// adapted from spawning simulation workers to issuing exchange orders.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/okxtrader/swapagent/internal/model"
	"github.com/okxtrader/swapagent/internal/okx"
)

// OpenRequest is the input to Executor.Open.
type OpenRequest struct {
	Symbol  string
	PosSide model.PosSide
	Size    decimal.Decimal
}

// OpenResult is the outcome of Executor.Open; on Success, the resulting
// position must become discoverable via the positions cache shortly after.
type OpenResult struct {
	Success bool
	OrderID string
}

// Executor opens a position via an external pricing/execution strategy
// (market order, smart/iceberg pricing, etc). Per the spec's open
// question 2, its internal strategy is out of scope here; this package
// only depends on the (inputs, success, discoverable-position) contract.
type Executor interface {
	Open(ctx context.Context, req OpenRequest) (OpenResult, error)
}

// TradeAPI is the REST surface the orchestrator needs beyond opening.
type TradeAPI interface {
	SetLeverage(ctx context.Context, instID string, leverage int, marginMode, posSide string) error
	GetInstrument(ctx context.Context, instID string) (okx.Instrument, error)
	PlaceOrder(ctx context.Context, req okx.OrderRequest) (okx.OrderResult, error)
	CancelOrder(ctx context.Context, instID, ordID string) error
	PlaceAlgoOrder(ctx context.Context, req okx.AlgoOrderRequest) (okx.AlgoOrderResult, error)
	CancelAlgoOrder(ctx context.Context, instID, algoID string) error
	GetPendingOrders(ctx context.Context, instID string) ([]okx.PendingOrder, error)
	GetPendingAlgoOrders(ctx context.Context, instID string) ([]okx.PendingAlgoOrder, error)
}

// MarketExecutor is the default Executor: a plain market order through
// TradeAPI.PlaceOrder. It is deliberately simple — the "smart" pricing
// strategy the spec defers to is a separate, swappable implementation of
// the same interface.
type MarketExecutor struct {
	api    TradeAPI
	tdMode string
}

// NewMarketExecutor builds a MarketExecutor using tdMode (isolated/cross).
func NewMarketExecutor(api TradeAPI, tdMode string) *MarketExecutor {
	return &MarketExecutor{api: api, tdMode: tdMode}
}

func (e *MarketExecutor) Open(ctx context.Context, req OpenRequest) (OpenResult, error) {
	side := "buy"
	if req.PosSide == model.PosShort {
		side = "sell"
	}
	res, err := e.api.PlaceOrder(ctx, okx.OrderRequest{
		InstID:  req.Symbol,
		TdMode:  e.tdMode,
		Side:    side,
		PosSide: string(req.PosSide),
		OrdType: "market",
		Sz:      req.Size.String(),
	})
	if err != nil {
		return OpenResult{}, fmt.Errorf("market executor: %w", err)
	}
	return OpenResult{Success: true, OrderID: res.OrdID}, nil
}
