package kline

import "time"

// Timeframe describes one supported bar size: its wire code (used both in
// the WebSocket channel name and the candles REST bar param), its duration,
// and how many days of history the gap-detector backfills by default.
type Timeframe struct {
	Code         string
	Duration     time.Duration
	BackfillDays int
}

// Supported timeframes and their default backfill windows, per spec C3.
var Supported = []Timeframe{
	{Code: "1m", Duration: time.Minute, BackfillDays: 3},
	{Code: "5m", Duration: 5 * time.Minute, BackfillDays: 7},
	{Code: "15m", Duration: 15 * time.Minute, BackfillDays: 15},
	{Code: "30m", Duration: 30 * time.Minute, BackfillDays: 30},
	{Code: "1H", Duration: time.Hour, BackfillDays: 30},
	{Code: "4H", Duration: 4 * time.Hour, BackfillDays: 30},
	{Code: "1D", Duration: 24 * time.Hour, BackfillDays: 30},
}

// ByCode looks up a Timeframe by its wire code.
func ByCode(code string) (Timeframe, bool) {
	for _, tf := range Supported {
		if tf.Code == code {
			return tf, true
		}
	}
	return Timeframe{}, false
}

// AlignedOpen returns the bar-open time at or before tsMs for a duration-ms
// spacing, i.e. floor(tsMs / durationMs) * durationMs.
func AlignedOpen(tsMs int64, d time.Duration) int64 {
	step := d.Milliseconds()
	if step <= 0 {
		return tsMs
	}
	return (tsMs / step) * step
}
