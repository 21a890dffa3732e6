package collector

import (
	"encoding/json"
	"testing"

	"github.com/okxtrader/swapagent/internal/okx"
)

func TestDecodeBooksChannel(t *testing.T) {
	data := json.RawMessage(`[{"asks":[["101","2"]],"bids":[["100","1"]],"ts":"1700000000000","seqId":5,"prevSeqId":4}]`)
	env := okx.WSEnvelope{Arg: okx.WSArg{Channel: "books", InstID: "BTC-USDT-SWAP"}, Action: "update", Data: data}

	msg, ok := decode("public", env)
	if !ok {
		t.Fatalf("expected decode to succeed")
	}
	if msg.kind != kindBook || msg.symbol != "BTC-USDT-SWAP" {
		t.Fatalf("unexpected decoded message: %+v", msg)
	}
	if len(msg.book.Bids) != 1 || len(msg.book.Asks) != 1 {
		t.Fatalf("expected one bid and one ask level, got %+v", msg.book)
	}
	if msg.book.SeqID != 5 || msg.book.PrevSeqID != 4 {
		t.Fatalf("unexpected seq ids: %+v", msg.book)
	}
}

func TestDecodeTradesChannel(t *testing.T) {
	data := json.RawMessage(`[{"instId":"BTC-USDT-SWAP","tradeId":"t1","px":"100.5","sz":"2","side":"buy","ts":"1700000000000"}]`)
	env := okx.WSEnvelope{Arg: okx.WSArg{Channel: "trades-all", InstID: "BTC-USDT-SWAP"}, Data: data}

	msg, ok := decode("business", env)
	if !ok {
		t.Fatalf("expected decode to succeed")
	}
	if msg.kind != kindTrade || msg.trade.TradeID != "t1" {
		t.Fatalf("unexpected decoded trade: %+v", msg.trade)
	}
}

func TestDecodeCandleChannel(t *testing.T) {
	data := json.RawMessage(`[["1700000000000","100","101","99","100.5","10","1000","1000","0"]]`)
	env := okx.WSEnvelope{Arg: okx.WSArg{Channel: "candle1m", InstID: "BTC-USDT-SWAP"}, Data: data}

	msg, ok := decode("business", env)
	if !ok {
		t.Fatalf("expected decode to succeed")
	}
	if msg.kind != kindCandle || msg.timeframe != "1m" {
		t.Fatalf("unexpected decoded candle: %+v", msg)
	}
}

func TestDecodeIgnoresEventAcks(t *testing.T) {
	env := okx.WSEnvelope{Event: "subscribe", Arg: okx.WSArg{Channel: "books"}}
	if _, ok := decode("public", env); ok {
		t.Fatalf("expected subscribe ack to be ignored")
	}
}
