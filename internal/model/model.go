// Package model holds the shared domain types for the trading agent:
// klines, trades, order book levels, positions, AI decisions and the
// records that tie them together.
package model

import (
	"github.com/shopspring/decimal"
)

// Side is a trade or order side.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// PosSide is a position direction.
type PosSide string

const (
	PosLong  PosSide = "long"
	PosShort PosSide = "short"
)

// MarginMode selects isolated or cross margin.
type MarginMode string

const (
	MarginIsolated MarginMode = "isolated"
	MarginCross    MarginMode = "cross"
)

// Kline is one OHLCV bar for a (symbol, timeframe, openTimeMs) key.
type Kline struct {
	Symbol       string          `bson:"symbol" json:"symbol"`
	Timeframe    string          `bson:"timeframe" json:"timeframe"`
	OpenTimeMs   int64           `bson:"openTimeMs" json:"openTimeMs"`
	Open         decimal.Decimal `bson:"open" json:"open"`
	High         decimal.Decimal `bson:"high" json:"high"`
	Low          decimal.Decimal `bson:"low" json:"low"`
	Close        decimal.Decimal `bson:"close" json:"close"`
	Volume       decimal.Decimal `bson:"volume" json:"volume"`
	Confirmed    bool            `bson:"confirmed" json:"confirmed"`
	LastUpdateMs int64           `bson:"lastUpdateMs" json:"lastUpdateMs"`
}

// Key identifies a kline uniquely within its store.
func (k Kline) Key() KlineKey {
	return KlineKey{Symbol: k.Symbol, Timeframe: k.Timeframe, OpenTimeMs: k.OpenTimeMs}
}

// KlineKey is the (symbol, timeframe, openTimeMs) primary key.
type KlineKey struct {
	Symbol     string
	Timeframe  string
	OpenTimeMs int64
}

// Trade is a single executed trade on the exchange tape.
type Trade struct {
	Symbol  string          `bson:"symbol" json:"symbol"`
	TradeID string          `bson:"tradeId" json:"tradeId"`
	TsMs    int64           `bson:"tsMs" json:"tsMs"`
	Price   decimal.Decimal `bson:"price" json:"price"`
	Size    decimal.Decimal `bson:"size" json:"size"`
	Side    Side            `bson:"side" json:"side"`
}

// OrderBookLevel is one (price, size) pair from a books channel message.
// Size == 0 means "remove this price level".
type OrderBookLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Position is a currently open perpetual-swap position.
type Position struct {
	Symbol     string          `bson:"symbol" json:"symbol"`
	PosSide    PosSide         `bson:"posSide" json:"posSide"`
	Size       decimal.Decimal `bson:"size" json:"size"`
	AvgPx      decimal.Decimal `bson:"avgPx" json:"avgPx"`
	OpenTimeMs int64           `bson:"openTimeMs" json:"openTimeMs"`
	Leverage   int             `bson:"leverage" json:"leverage"`
	MarginMode MarginMode      `bson:"marginMode" json:"marginMode"`
}

// Action is the signal emitted by the LLM decision engine.
type Action string

const (
	ActionOpenLong    Action = "OPEN_LONG"
	ActionOpenShort   Action = "OPEN_SHORT"
	ActionAdjustStop  Action = "ADJUST_STOP"
	ActionCloseLong   Action = "CLOSE_LONG"
	ActionCloseShort  Action = "CLOSE_SHORT"
	ActionHold        Action = "HOLD"
)

// TPSLLayer is one layer of a take-profit or stop-loss plan.
type TPSLLayer struct {
	Size  decimal.Decimal `json:"size" bson:"size"`
	Price decimal.Decimal `json:"price" bson:"price"`
}

// AdjustData is the layered TP/SL plan attached to an open or adjust decision.
type AdjustData struct {
	TakeProfit []TPSLLayer `json:"take_profit" bson:"takeProfit"`
	StopLoss   []TPSLLayer `json:"stop_loss" bson:"stopLoss"`
}

// AIDecision is one LLM call's structured output, linked to a position once
// that position is discoverable in the positions cache.
type AIDecision struct {
	ID           string          `bson:"_id" json:"id"`
	TimestampMs  int64           `bson:"timestampMs" json:"timestampMs"`
	Symbol       string          `bson:"symbol" json:"symbol"`
	PosSide      PosSide         `bson:"posSide" json:"posSide"`
	Action       Action          `bson:"action" json:"action"`
	PosID        *int64          `bson:"posId,omitempty" json:"posId,omitempty"`
	Confidence   int             `bson:"confidence" json:"confidence"`
	Size         decimal.Decimal `bson:"size" json:"size"`
	AdjustData   *AdjustData     `bson:"adjustData,omitempty" json:"adjustData,omitempty"`
	HoldingTime  string          `bson:"holdingTime,omitempty" json:"holdingTime,omitempty"`
	Reason       string          `bson:"reason,omitempty" json:"reason,omitempty"`
}

// ConversationRecord is one LLM call's full prompt/response pair.
type ConversationRecord struct {
	ID          string `bson:"_id" json:"id"`
	SessionID   string `bson:"sessionId" json:"sessionId"`
	Symbol      string `bson:"symbol" json:"symbol"`
	Prompt      string `bson:"prompt" json:"prompt"`
	Response    string `bson:"response" json:"response"`
	Analysis    string `bson:"analysis" json:"analysis"`
	Executed    bool   `bson:"executed" json:"executed"`
	CreatedAtMs int64  `bson:"createdAtMs" json:"createdAtMs"`
}

// ClosedPosition mirrors Position plus close-time fields and an optional
// one-shot review summary.
type ClosedPosition struct {
	Symbol        string          `bson:"symbol" json:"symbol"`
	PosSide       PosSide         `bson:"posSide" json:"posSide"`
	Size          decimal.Decimal `bson:"size" json:"size"`
	AvgPx         decimal.Decimal `bson:"avgPx" json:"avgPx"`
	OpenTimeMs    int64           `bson:"openTimeMs" json:"openTimeMs"`
	CloseTimeMs   int64           `bson:"closeTimeMs" json:"closeTimeMs"`
	RealizedPnl   decimal.Decimal `bson:"realizedPnl" json:"realizedPnl"`
	FeeTotal      decimal.Decimal `bson:"feeTotal" json:"feeTotal"`
	ReviewSummary string          `bson:"reviewSummary,omitempty" json:"reviewSummary,omitempty"`
}

// SumValidationEpsilon is the tolerance used when comparing layer-size sums
// to a position's total size (spec invariant: within 1e-3).
var SumValidationEpsilon = decimal.NewFromFloat(0.001)

// ValidateSums checks that TP sizes sum to total and SL sizes sum to total,
// within SumValidationEpsilon, and that every size/price is strictly positive.
func (a AdjustData) ValidateSums(total decimal.Decimal) error {
	if err := validateLayers(a.TakeProfit, total, "take_profit"); err != nil {
		return err
	}
	if err := validateLayers(a.StopLoss, total, "stop_loss"); err != nil {
		return err
	}
	return nil
}

func validateLayers(layers []TPSLLayer, total decimal.Decimal, name string) error {
	sum := decimal.Zero
	for _, l := range layers {
		if l.Size.LessThanOrEqual(decimal.Zero) || l.Price.LessThanOrEqual(decimal.Zero) {
			return &ValidationError{Field: name, Reason: "size and price must be strictly positive"}
		}
		sum = sum.Add(l.Size)
	}
	diff := sum.Sub(total).Abs()
	if diff.GreaterThan(SumValidationEpsilon) {
		return &ValidationError{Field: name, Reason: "layer sizes do not sum to position size"}
	}
	return nil
}

// ValidationError reports a decision-data validation failure; these are
// logged and the offending signal is skipped, per spec error-handling policy.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Field + ": " + e.Reason
}
