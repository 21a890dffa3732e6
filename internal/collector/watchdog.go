package collector

import (
	"context"
	"time"
)

// watchdog checks, every cfg.WatchdogInterval, the age of the most recent
// update for each symbol's book, tape, and each timeframe's klines. If any
// age exceeds DataTimeoutSec, it invokes restart once and returns.
func (c *Collector) watchdog(ctx context.Context, restart func()) {
	ticker := time.NewTicker(c.cfg.WatchdogInterval)
	defer ticker.Stop()

	timeout := time.Duration(c.cfg.DataTimeoutSec) * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if reason, stale := c.checkStaleness(timeout); stale {
				c.log.Warn().Str("reason", reason).Msg("collector: watchdog triggering restart")
				restart()
				return
			}
		}
	}
}

func (c *Collector) checkStaleness(timeout time.Duration) (string, bool) {
	now := time.UnixMilli(c.cfg.NowMs())

	for sym, st := range c.symbols {
		if age := now.Sub(st.Book.LastUpdated()); st.Book.Initialized() && age > timeout {
			return sym + ":book", true
		}
		if age := now.Sub(st.Tape.LastUpdated()); !st.Tape.LastUpdated().IsZero() && age > timeout {
			return sym + ":tape", true
		}
		for _, tf := range c.cfg.Timeframes {
			last := st.Klines.LastUpdated(tf)
			if last.IsZero() {
				continue
			}
			if age := now.Sub(last); age > timeout {
				return sym + ":kline:" + tf, true
			}
		}
	}
	return "", false
}
