// Package feature synthesizes the per-tick feature bundle fed to the
// decision engine: dual-timeframe technical indicators, an order book
// slice, 60-second tick aggregates, and a freshness gate, per spec C7.
package feature

import "github.com/shopspring/decimal"

// EMA computes the exponential moving average series for closes, with
// smoothing period n. The series is seeded with the first close and has
// the same length as closes.
func EMA(closes []decimal.Decimal, n int) []decimal.Decimal {
	out := make([]decimal.Decimal, len(closes))
	if len(closes) == 0 || n <= 0 {
		return out
	}
	k := decimal.NewFromInt(2).Div(decimal.NewFromInt(int64(n + 1)))
	out[0] = closes[0]
	for i := 1; i < len(closes); i++ {
		out[i] = closes[i].Sub(out[i-1]).Mul(k).Add(out[i-1])
	}
	return out
}

// RSI computes the relative strength index over period n using Wilder's
// smoothing, returning one value per input bar (the first n bars are 50,
// a neutral placeholder, since there is no prior average to smooth from).
func RSI(closes []decimal.Decimal, n int) []decimal.Decimal {
	out := make([]decimal.Decimal, len(closes))
	neutral := decimal.NewFromInt(50)
	for i := range out {
		out[i] = neutral
	}
	if len(closes) <= n {
		return out
	}

	var avgGain, avgLoss decimal.Decimal
	for i := 1; i <= n; i++ {
		delta := closes[i].Sub(closes[i-1])
		if delta.GreaterThan(decimal.Zero) {
			avgGain = avgGain.Add(delta)
		} else {
			avgLoss = avgLoss.Add(delta.Abs())
		}
	}
	avgGain = avgGain.Div(decimal.NewFromInt(int64(n)))
	avgLoss = avgLoss.Div(decimal.NewFromInt(int64(n)))
	out[n] = rsiFromAvgs(avgGain, avgLoss)

	for i := n + 1; i < len(closes); i++ {
		delta := closes[i].Sub(closes[i-1])
		gain, loss := decimal.Zero, decimal.Zero
		if delta.GreaterThan(decimal.Zero) {
			gain = delta
		} else {
			loss = delta.Abs()
		}
		nd := decimal.NewFromInt(int64(n))
		avgGain = avgGain.Mul(nd.Sub(decimal.NewFromInt(1))).Add(gain).Div(nd)
		avgLoss = avgLoss.Mul(nd.Sub(decimal.NewFromInt(1))).Add(loss).Div(nd)
		out[i] = rsiFromAvgs(avgGain, avgLoss)
	}
	return out
}

func rsiFromAvgs(avgGain, avgLoss decimal.Decimal) decimal.Decimal {
	if avgLoss.IsZero() {
		return decimal.NewFromInt(100)
	}
	rs := avgGain.Div(avgLoss)
	hundred := decimal.NewFromInt(100)
	return hundred.Sub(hundred.Div(decimal.NewFromInt(1).Add(rs)))
}

// MACDHistogram computes the MACD histogram (MACD line minus its signal
// line) using the standard 12/26/9 periods.
func MACDHistogram(closes []decimal.Decimal) []decimal.Decimal {
	fast := EMA(closes, 12)
	slow := EMA(closes, 26)
	macd := make([]decimal.Decimal, len(closes))
	for i := range closes {
		macd[i] = fast[i].Sub(slow[i])
	}
	signal := EMA(macd, 9)
	hist := make([]decimal.Decimal, len(closes))
	for i := range closes {
		hist[i] = macd[i].Sub(signal[i])
	}
	return hist
}

// ATR computes the average true range over period n from high/low/close
// series, using a simple moving average of true range (not Wilder's).
func ATR(high, low, close []decimal.Decimal, n int) decimal.Decimal {
	if len(high) < 2 {
		return decimal.Zero
	}
	start := len(high) - n
	if start < 1 {
		start = 1
	}
	sum := decimal.Zero
	count := 0
	for i := start; i < len(high); i++ {
		tr := trueRange(high[i], low[i], close[i-1])
		sum = sum.Add(tr)
		count++
	}
	if count == 0 {
		return decimal.Zero
	}
	return sum.Div(decimal.NewFromInt(int64(count)))
}

func trueRange(high, low, prevClose decimal.Decimal) decimal.Decimal {
	hl := high.Sub(low).Abs()
	hc := high.Sub(prevClose).Abs()
	lc := low.Sub(prevClose).Abs()
	max := hl
	if hc.GreaterThan(max) {
		max = hc
	}
	if lc.GreaterThan(max) {
		max = lc
	}
	return max
}

// last returns the final element of a decimal series, or zero if empty.
func last(series []decimal.Decimal) decimal.Decimal {
	if len(series) == 0 {
		return decimal.Zero
	}
	return series[len(series)-1]
}
