package okx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

// Instrument is the subset of OKX instrument metadata the agent needs to
// size and price orders correctly (contract value, min size, tick size).
type Instrument struct {
	InstID    string `json:"instId"`
	CtVal     string `json:"ctVal"`
	CtValCcy  string `json:"ctValCcy"`
	MinSz     string `json:"minSz"`
	LotSz     string `json:"lotSz"`
	TickSz    string `json:"tickSz"`
	SettleCcy string `json:"settleCcy"`
}

// GetInstrument fetches SWAP instrument metadata for instID.
func (c *RESTClient) GetInstrument(ctx context.Context, instID string) (Instrument, error) {
	q := url.Values{"instType": {"SWAP"}, "instId": {instID}}
	var rows []Instrument
	if err := c.get(ctx, "/api/v5/public/instruments", q, &rows); err != nil {
		return Instrument{}, err
	}
	if len(rows) == 0 {
		return Instrument{}, fmt.Errorf("okx: no instrument metadata for %s", instID)
	}
	return rows[0], nil
}

// SetLeverage sets leverage for instID/marginMode/posSide before opening a
// position, per the supplemented pre-trade setup step.
func (c *RESTClient) SetLeverage(ctx context.Context, instID string, leverage int, marginMode, posSide string) error {
	body, _ := json.Marshal(map[string]string{
		"instId":  instID,
		"lever":   strconv.Itoa(leverage),
		"mgnMode": marginMode,
		"posSide": posSide,
	})
	return c.doSigned(ctx, "POST", "/api/v5/account/set-leverage", nil, body, nil)
}

// Candle is a raw OKX candlestick row: [ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm].
type Candle [9]string

// GetCandles fetches confirmed+unconfirmed candles for bar, optionally
// paging with after (older-than) or before (newer-than) timestamps in ms,
// per spec's backfill paging direction.
func (c *RESTClient) GetCandles(ctx context.Context, instID, bar string, after, before int64, limit int) ([]Candle, error) {
	q := url.Values{"instId": {instID}, "bar": {bar}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if after > 0 {
		q.Set("after", strconv.FormatInt(after, 10))
	}
	if before > 0 {
		q.Set("before", strconv.FormatInt(before, 10))
	}
	var rows []Candle
	if err := c.get(ctx, "/api/v5/market/candles", q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// FundingRate is the current funding rate for a perpetual swap.
type FundingRate struct {
	InstID      string `json:"instId"`
	FundingRate string `json:"fundingRate"`
	FundingTime string `json:"fundingTime"`
}

func (c *RESTClient) GetFundingRate(ctx context.Context, instID string) (FundingRate, error) {
	q := url.Values{"instId": {instID}}
	var rows []FundingRate
	if err := c.get(ctx, "/api/v5/public/funding-rate", q, &rows); err != nil {
		return FundingRate{}, err
	}
	if len(rows) == 0 {
		return FundingRate{}, fmt.Errorf("okx: no funding rate for %s", instID)
	}
	return rows[0], nil
}

// OpenInterest is instrument-level open interest in contracts and currency.
type OpenInterest struct {
	InstID  string `json:"instId"`
	OI      string `json:"oi"`
	OICcy   string `json:"oiCcy"`
	Ts      string `json:"ts"`
}

func (c *RESTClient) GetOpenInterest(ctx context.Context, instID string) (OpenInterest, error) {
	q := url.Values{"instType": {"SWAP"}, "instId": {instID}}
	var rows []OpenInterest
	if err := c.get(ctx, "/api/v5/public/open-interest", q, &rows); err != nil {
		return OpenInterest{}, err
	}
	if len(rows) == 0 {
		return OpenInterest{}, fmt.Errorf("okx: no open interest for %s", instID)
	}
	return rows[0], nil
}

// TakerVolume is the periodic taker buy/sell volume ratio for contracts.
type TakerVolume struct {
	Ts        string `json:"ts"`
	SellVol   string `json:"sellVol"`
	BuyVol    string `json:"buyVol"`
}

func (c *RESTClient) GetTakerVolume(ctx context.Context, instID, period string) ([]TakerVolume, error) {
	ccy := instID
	q := url.Values{"ccy": {ccy}, "instType": {"SWAP"}, "period": {period}}
	var rows []TakerVolume
	if err := c.get(ctx, "/api/v5/rubik/stat/taker-volume-contract", q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Balance is account equity for a settlement currency.
type Balance struct {
	Ccy     string `json:"ccy"`
	Eq      string `json:"eq"`
	AvailEq string `json:"availEq"`
}

type balanceDetail struct {
	Details []Balance `json:"details"`
}

func (c *RESTClient) GetBalance(ctx context.Context) ([]Balance, error) {
	var rows []balanceDetail
	if err := c.doSigned(ctx, "GET", "/api/v5/account/balance", nil, nil, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].Details, nil
}

// PositionWire is an open-position row as returned by the exchange.
type PositionWire struct {
	InstID    string `json:"instId"`
	PosSide   string `json:"posSide"`
	Pos       string `json:"pos"`
	AvgPx     string `json:"avgPx"`
	Lever     string `json:"lever"`
	MgnMode   string `json:"mgnMode"`
	UplRatio  string `json:"uplRatio"`
	Upl       string `json:"upl"`
	CTime     string `json:"cTime"`
}

func (c *RESTClient) GetPositions(ctx context.Context, instID string) ([]PositionWire, error) {
	q := url.Values{"instType": {"SWAP"}}
	if instID != "" {
		q.Set("instId", instID)
	}
	var rows []PositionWire
	if err := c.doSigned(ctx, "GET", "/api/v5/account/positions", q, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ClosedPositionWire is a closed-position history row.
type ClosedPositionWire struct {
	InstID        string `json:"instId"`
	PosSide       string `json:"posSide"`
	OpenAvgPx     string `json:"openAvgPx"`
	CloseAvgPx    string `json:"closeAvgPx"`
	CloseTotalPos string `json:"closeTotalPos"`
	Pnl           string `json:"pnl"`
	CTime         string `json:"cTime"`
	UTime         string `json:"uTime"`
	Fee           string `json:"fee"`
}

func (c *RESTClient) GetHistoryPositions(ctx context.Context, instID string, after string, limit int) ([]ClosedPositionWire, error) {
	q := url.Values{"instType": {"SWAP"}}
	if instID != "" {
		q.Set("instId", instID)
	}
	if after != "" {
		q.Set("after", after)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var rows []ClosedPositionWire
	if err := c.doSigned(ctx, "GET", "/api/v5/account/positions-history", q, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// OrderRequest places a regular (non-algo) order.
type OrderRequest struct {
	InstID     string
	TdMode     string
	Side       string
	PosSide    string
	OrdType    string
	Sz         string
	Px         string
	ReduceOnly bool
}

// OrderResult is the exchange's acknowledgement of a placed order.
type OrderResult struct {
	OrdID   string `json:"ordId"`
	ClOrdID string `json:"clOrdId"`
	SCode   string `json:"sCode"`
	SMsg    string `json:"sMsg"`
}

func (c *RESTClient) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	payload := map[string]any{
		"instId":  req.InstID,
		"tdMode":  req.TdMode,
		"side":    req.Side,
		"posSide": req.PosSide,
		"ordType": req.OrdType,
		"sz":      req.Sz,
	}
	if req.Px != "" {
		payload["px"] = req.Px
	}
	if req.ReduceOnly {
		payload["reduceOnly"] = true
	}
	body, _ := json.Marshal(payload)
	var rows []OrderResult
	if err := c.doSigned(ctx, "POST", "/api/v5/trade/order", nil, body, &rows); err != nil {
		return OrderResult{}, err
	}
	if len(rows) == 0 {
		return OrderResult{}, fmt.Errorf("okx: empty place-order response")
	}
	if rows[0].SCode != "" && rows[0].SCode != "0" {
		return rows[0], fmt.Errorf("okx: order rejected sCode=%s sMsg=%s", rows[0].SCode, rows[0].SMsg)
	}
	return rows[0], nil
}

// CancelOrder cancels a regular order by exchange order ID.
func (c *RESTClient) CancelOrder(ctx context.Context, instID, ordID string) error {
	body, _ := json.Marshal(map[string]string{"instId": instID, "ordId": ordID})
	return c.doSigned(ctx, "POST", "/api/v5/trade/cancel-order", nil, body, nil)
}

// PendingOrder is a resting regular order.
type PendingOrder struct {
	InstID   string `json:"instId"`
	OrdID    string `json:"ordId"`
	Side     string `json:"side"`
	PosSide  string `json:"posSide"`
	OrdType  string `json:"ordType"`
	Sz       string `json:"sz"`
	Px       string `json:"px"`
	State    string `json:"state"`
}

func (c *RESTClient) GetPendingOrders(ctx context.Context, instID string) ([]PendingOrder, error) {
	q := url.Values{"instType": {"SWAP"}}
	if instID != "" {
		q.Set("instId", instID)
	}
	var rows []PendingOrder
	if err := c.doSigned(ctx, "GET", "/api/v5/trade/orders-pending", q, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// AlgoOrderRequest places a take-profit/stop-loss algo order.
type AlgoOrderRequest struct {
	InstID      string
	TdMode      string
	Side        string
	PosSide     string
	Sz          string
	TpTriggerPx string
	TpOrdPx     string
	SlTriggerPx string
	SlOrdPx     string
}

type AlgoOrderResult struct {
	AlgoID string `json:"algoId"`
	SCode  string `json:"sCode"`
	SMsg   string `json:"sMsg"`
}

func (c *RESTClient) PlaceAlgoOrder(ctx context.Context, req AlgoOrderRequest) (AlgoOrderResult, error) {
	payload := map[string]string{
		"instId":  req.InstID,
		"tdMode":  req.TdMode,
		"side":    req.Side,
		"posSide": req.PosSide,
		"ordType": "conditional",
		"sz":      req.Sz,
	}
	if req.TpTriggerPx != "" {
		payload["tpTriggerPx"] = req.TpTriggerPx
		payload["tpOrdPx"] = req.TpOrdPx
	}
	if req.SlTriggerPx != "" {
		payload["slTriggerPx"] = req.SlTriggerPx
		payload["slOrdPx"] = req.SlOrdPx
	}
	body, _ := json.Marshal(payload)
	var rows []AlgoOrderResult
	if err := c.doSigned(ctx, "POST", "/api/v5/trade/order-algo", nil, body, &rows); err != nil {
		return AlgoOrderResult{}, err
	}
	if len(rows) == 0 {
		return AlgoOrderResult{}, fmt.Errorf("okx: empty algo-order response")
	}
	if rows[0].SCode != "" && rows[0].SCode != "0" {
		return rows[0], fmt.Errorf("okx: algo order rejected sCode=%s sMsg=%s", rows[0].SCode, rows[0].SMsg)
	}
	return rows[0], nil
}

// PendingAlgoOrder is a resting TP/SL algo order.
type PendingAlgoOrder struct {
	InstID      string `json:"instId"`
	AlgoID      string `json:"algoId"`
	PosSide     string `json:"posSide"`
	Sz          string `json:"sz"`
	TpTriggerPx string `json:"tpTriggerPx"`
	SlTriggerPx string `json:"slTriggerPx"`
	State       string `json:"state"`
}

func (c *RESTClient) GetPendingAlgoOrders(ctx context.Context, instID string) ([]PendingAlgoOrder, error) {
	q := url.Values{"ordType": {"conditional"}}
	if instID != "" {
		q.Set("instId", instID)
	}
	var rows []PendingAlgoOrder
	if err := c.doSigned(ctx, "GET", "/api/v5/trade/orders-algo-pending", q, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// CancelAlgoOrder cancels a resting TP/SL algo order.
func (c *RESTClient) CancelAlgoOrder(ctx context.Context, instID, algoID string) error {
	body, _ := json.Marshal([]map[string]string{{"instId": instID, "algoId": algoID}})
	return c.doSigned(ctx, "POST", "/api/v5/trade/cancel-algos", nil, body, nil)
}
