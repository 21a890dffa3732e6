package collector

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/okxtrader/swapagent/internal/kline"
	"github.com/okxtrader/swapagent/internal/model"
	"github.com/okxtrader/swapagent/internal/okx"
	"github.com/okxtrader/swapagent/internal/orderbook"
)

type msgKind int

const (
	kindBook msgKind = iota
	kindTrade
	kindCandle
)

// decodedMessage is one routed, parsed push message awaiting processing by
// a worker. Exactly one of the payload fields is populated, per kind.
type decodedMessage struct {
	kind   msgKind
	symbol string

	book      orderbook.Update
	trade     model.Trade
	candle    okx.Candle
	timeframe string
}

type wireBookData struct {
	Asks      [][]string `json:"asks"`
	Bids      [][]string `json:"bids"`
	Ts        string     `json:"ts"`
	SeqID     int64      `json:"seqId"`
	PrevSeqID int64      `json:"prevSeqId"`
}

type wireTrade struct {
	InstID  string `json:"instId"`
	TradeID string `json:"tradeId"`
	Px      string `json:"px"`
	Sz      string `json:"sz"`
	Side    string `json:"side"`
	Ts      string `json:"ts"`
}

// decode routes one session's envelope into at most one decodedMessage,
// built from the envelope's first data row, returning false if the
// envelope carried nothing actionable (an ack, an empty data push, or a
// malformed row, which is dropped without logging).
func decode(session string, env okx.WSEnvelope) (decodedMessage, bool) {
	if env.Event != "" || len(env.Data) == 0 {
		return decodedMessage{}, false
	}

	channel := env.Arg.Channel
	symbol := env.Arg.InstID

	switch {
	case channel == "books":
		var rows []wireBookData
		if err := json.Unmarshal(env.Data, &rows); err != nil || len(rows) == 0 {
			return decodedMessage{}, false
		}
		row := rows[0]
		upd := orderbook.Update{
			Symbol:    symbol,
			Action:    env.Action,
			Bids:      toLevels(row.Bids),
			Asks:      toLevels(row.Asks),
			TsMs:      parseInt(row.Ts),
			SeqID:     row.SeqID,
			PrevSeqID: row.PrevSeqID,
		}
		return decodedMessage{kind: kindBook, symbol: symbol, book: upd}, true

	case channel == "trades-all":
		var rows []wireTrade
		if err := json.Unmarshal(env.Data, &rows); err != nil || len(rows) == 0 {
			return decodedMessage{}, false
		}
		row := rows[0]
		px, err1 := decimal.NewFromString(row.Px)
		sz, err2 := decimal.NewFromString(row.Sz)
		if err1 != nil || err2 != nil {
			return decodedMessage{}, false
		}
		tr := model.Trade{
			Symbol:  symbol,
			TradeID: row.TradeID,
			TsMs:    parseInt(row.Ts),
			Price:   px,
			Size:    sz,
			Side:    model.Side(row.Side),
		}
		return decodedMessage{kind: kindTrade, symbol: symbol, trade: tr}, true

	case strings.HasPrefix(channel, "candle"):
		var rows []okx.Candle
		if err := json.Unmarshal(env.Data, &rows); err != nil || len(rows) == 0 {
			return decodedMessage{}, false
		}
		tf := strings.TrimPrefix(channel, "candle")
		return decodedMessage{kind: kindCandle, symbol: symbol, candle: rows[0], timeframe: tf}, true
	}

	return decodedMessage{}, false
}

func toLevels(rows [][]string) []orderbook.Level {
	out := make([]orderbook.Level, 0, len(rows))
	for _, r := range rows {
		if len(r) < 2 {
			continue
		}
		price, err1 := decimal.NewFromString(r[0])
		size, err2 := decimal.NewFromString(r[1])
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, orderbook.Level{Price: price, Size: size})
	}
	return out
}

func parseInt(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}

// runWorkerPool consumes decoded messages from in and routes each to the
// owning symbol's book/tape/kline store, across WorkerCount goroutines.
func (c *Collector) runWorkerPool(ctx context.Context, in <-chan decodedMessage) {
	workers := c.cfg.WorkerCount
	done := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for msg := range in {
				c.process(ctx, msg)
			}
		}()
	}
	for i := 0; i < workers; i++ {
		<-done
	}
}

func (c *Collector) process(ctx context.Context, msg decodedMessage) {
	st, ok := c.symbols[msg.symbol]
	if !ok {
		return
	}

	switch msg.kind {
	case kindBook:
		st.Book.Apply(msg.book)

	case kindTrade:
		st.Tape.Push(msg.trade)
		if c.fastCache != nil {
			if err := c.fastCache.PushTrade(ctx, msg.trade); err != nil {
				c.log.Warn().Err(err).Str("symbol", msg.symbol).Msg("collector: push trade to fast cache failed")
			}
		}

	case kindCandle:
		confirmed := len(msg.candle) > 8 && msg.candle[8] == "1"
		k, err := kline.ParseCandle(msg.symbol, msg.timeframe, msg.candle, confirmed)
		if err != nil {
			c.log.Warn().Err(err).Msg("collector: malformed candle")
			return
		}
		if err := st.Klines.IngestLive(ctx, k); err != nil {
			c.log.Warn().Err(err).Str("symbol", msg.symbol).Msg("collector: kline ingest failed")
			return
		}
		if c.fastCache != nil {
			if err := c.fastCache.MarkKlineUpdated(ctx, msg.symbol, msg.timeframe, c.cfg.NowMs()); err != nil {
				c.log.Warn().Err(err).Str("symbol", msg.symbol).Msg("collector: mark kline updated failed")
			}
		}
	}
}
