package feature

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/okxtrader/swapagent/internal/cache"
	"github.com/okxtrader/swapagent/internal/model"
	"github.com/okxtrader/swapagent/internal/okx"
	"github.com/okxtrader/swapagent/internal/orderbook"
)

// ErrStaleData is returned by Build when the freshness gate trips; the
// caller must respond with a HOLD decision carrying this error's message.
var ErrStaleData = errors.New("数据滞后 / data lag")

// TimeframeIndicators is one timeframe's technical snapshot.
type TimeframeIndicators struct {
	Timeframe string
	EMA20     decimal.Decimal
	RSI7      decimal.Decimal
	RSI14     decimal.Decimal
	MACDHist  decimal.Decimal
	ATR3      decimal.Decimal
	Klines    []model.Kline
}

// TickAggregate is the 60-second live trade aggregate.
type TickAggregate struct {
	VWAP            decimal.Decimal
	BuyVolume       decimal.Decimal
	SellVolume      decimal.Decimal
	PriceHigh       decimal.Decimal
	PriceLow        decimal.Decimal
	TickCount       int
	LargeTradeRatio decimal.Decimal // fraction of trades sized > 2x the mean
}

// Bundle is the complete feature set handed to the prompt builder.
type Bundle struct {
	Symbol      string
	Short       TimeframeIndicators
	Long        TimeframeIndicators
	VolumeRatio decimal.Decimal
	Book        orderbook.Snapshot
	Tick        TickAggregate
	Balance     []okx.Balance
	Positions   []cache.EnrichedPosition
	StopOrders  cache.StopOrders
	Funding     okx.FundingRate
	MarketStats cache.MarketStats
	HistStats   cache.Stats30Day
	Journal     []string
}

// Inputs is everything the caller (the trading agent's per-tick loop)
// gathers from C2/C3/C4/C6 before calling Build.
type Inputs struct {
	Symbol         string
	ShortTimeframe string
	LongTimeframe  string
	ShortKlines    []model.Kline // confirmed, chronological, oldest first
	LongKlines     []model.Kline

	Book          orderbook.Snapshot
	BookAgeMs     int64
	RecentTrades  []model.Trade // last 60s of tape
	PressureAgeMs int64

	Balance     []okx.Balance
	Positions   []cache.EnrichedPosition
	StopOrders  cache.StopOrders
	Funding     okx.FundingRate
	MarketStats cache.MarketStats
	HistStats   cache.Stats30Day
	Journal     []string

	KlineAgeMs            int64
	FreshnessThresholdSec int
}

// Build synthesizes a Bundle from Inputs, applying the C7 freshness gate
// before doing any indicator math.
func Build(in Inputs) (Bundle, error) {
	threshold := int64(in.FreshnessThresholdSec) * 1000
	if threshold <= 0 {
		threshold = 300_000
	}
	if in.KlineAgeMs > threshold || in.BookAgeMs > threshold || in.PressureAgeMs > threshold {
		return Bundle{}, fmt.Errorf("%w: kline=%dms book=%dms pressure=%dms threshold=%dms",
			ErrStaleData, in.KlineAgeMs, in.BookAgeMs, in.PressureAgeMs, threshold)
	}

	b := Bundle{
		Symbol:      in.Symbol,
		Short:       computeIndicators(in.ShortTimeframe, in.ShortKlines),
		Long:        computeIndicators(in.LongTimeframe, in.LongKlines),
		Book:        in.Book,
		Tick:        computeTickAggregate(in.RecentTrades),
		Balance:     in.Balance,
		Positions:   in.Positions,
		StopOrders:  in.StopOrders,
		Funding:     in.Funding,
		MarketStats: in.MarketStats,
		HistStats:   in.HistStats,
		Journal:     in.Journal,
	}
	b.VolumeRatio = volumeRatio(in.ShortKlines, in.LongKlines)
	return b, nil
}

func computeIndicators(timeframe string, klines []model.Kline) TimeframeIndicators {
	closes := make([]decimal.Decimal, len(klines))
	highs := make([]decimal.Decimal, len(klines))
	lows := make([]decimal.Decimal, len(klines))
	for i, k := range klines {
		closes[i] = k.Close
		highs[i] = k.High
		lows[i] = k.Low
	}

	return TimeframeIndicators{
		Timeframe: timeframe,
		EMA20:     last(EMA(closes, 20)),
		RSI7:      last(RSI(closes, 7)),
		RSI14:     last(RSI(closes, 14)),
		MACDHist:  last(MACDHistogram(closes)),
		ATR3:      ATR(highs, lows, closes, 3),
		Klines:    klines,
	}
}

func volumeRatio(short, long []model.Kline) decimal.Decimal {
	shortVol := sumVolume(short)
	longVol := sumVolume(long)
	if longVol.IsZero() {
		return decimal.Zero
	}
	return shortVol.Div(longVol)
}

func sumVolume(klines []model.Kline) decimal.Decimal {
	sum := decimal.Zero
	for _, k := range klines {
		sum = sum.Add(k.Volume)
	}
	return sum
}

func computeTickAggregate(trades []model.Trade) TickAggregate {
	agg := TickAggregate{}
	if len(trades) == 0 {
		return agg
	}

	var notional, volume decimal.Decimal
	meanSize := decimal.Zero
	for _, tr := range trades {
		notional = notional.Add(tr.Price.Mul(tr.Size))
		volume = volume.Add(tr.Size)
		meanSize = meanSize.Add(tr.Size)

		switch tr.Side {
		case model.SideBuy:
			agg.BuyVolume = agg.BuyVolume.Add(tr.Size)
		case model.SideSell:
			agg.SellVolume = agg.SellVolume.Add(tr.Size)
		}

		if agg.PriceHigh.IsZero() || tr.Price.GreaterThan(agg.PriceHigh) {
			agg.PriceHigh = tr.Price
		}
		if agg.PriceLow.IsZero() || tr.Price.LessThan(agg.PriceLow) {
			agg.PriceLow = tr.Price
		}
	}
	agg.TickCount = len(trades)
	if !volume.IsZero() {
		agg.VWAP = notional.Div(volume)
	}

	meanSize = meanSize.Div(decimal.NewFromInt(int64(len(trades))))
	largeThreshold := meanSize.Mul(decimal.NewFromInt(2))
	large := 0
	for _, tr := range trades {
		if tr.Size.GreaterThan(largeThreshold) {
			large++
		}
	}
	agg.LargeTradeRatio = decimal.NewFromInt(int64(large)).Div(decimal.NewFromInt(int64(len(trades))))

	return agg
}
