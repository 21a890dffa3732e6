package feature

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

//go:embed prompts_default.json
var embeddedPromptSeed []byte

// PromptSeed is the operator-editable prompt scaffolding loaded from
// data/prompts.json (per the supplemented prompt-seed-file feature); if
// the file is missing, the embedded default is used instead.
type PromptSeed struct {
	SystemPrompt    string `json:"system_prompt"`
	RiskNotes       string `json:"risk_notes"`
	ClosingReminder string `json:"closing_reminder"`
}

// LoadPromptSeed reads path, falling back to the embedded default seed
// when the file does not exist.
func LoadPromptSeed(path string) (PromptSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			data = embeddedPromptSeed
		} else {
			return PromptSeed{}, fmt.Errorf("feature: read prompt seed: %w", err)
		}
	}
	var seed PromptSeed
	if err := json.Unmarshal(data, &seed); err != nil {
		return PromptSeed{}, fmt.Errorf("feature: parse prompt seed: %w", err)
	}
	return seed, nil
}

// BuildPrompt renders the (system, user) prompt pair for one analysis tick.
func BuildPrompt(seed PromptSeed, b Bundle) (system string, user string) {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Symbol: %s\n\n", b.Symbol)

	fmt.Fprintf(&sb, "## %s indicators\nEMA20=%s RSI7=%s RSI14=%s MACD_hist=%s ATR3=%s\n\n",
		b.Short.Timeframe, b.Short.EMA20, b.Short.RSI7, b.Short.RSI14, b.Short.MACDHist, b.Short.ATR3)
	fmt.Fprintf(&sb, "## %s indicators\nEMA20=%s RSI7=%s RSI14=%s MACD_hist=%s ATR3=%s\n\n",
		b.Long.Timeframe, b.Long.EMA20, b.Long.RSI7, b.Long.RSI14, b.Long.MACDHist, b.Long.ATR3)
	fmt.Fprintf(&sb, "Volume ratio (short/long): %s\n\n", b.VolumeRatio)

	fmt.Fprintf(&sb, "## Order book\n")
	if len(b.Book.Bids) > 0 && len(b.Book.Asks) > 0 {
		fmt.Fprintf(&sb, "bid1=%s ask1=%s\n", b.Book.Bids[0].Price, b.Book.Asks[0].Price)
	}
	fmt.Fprintf(&sb, "depth(top-%d bids/asks) included\n", len(b.Book.Bids))
	for _, l := range b.Book.Bids {
		fmt.Fprintf(&sb, "bid %s x %s\n", l.Price, l.Size)
	}
	for _, l := range b.Book.Asks {
		fmt.Fprintf(&sb, "ask %s x %s\n", l.Price, l.Size)
	}
	fmt.Fprintf(&sb, "\n")

	fmt.Fprintf(&sb, "## 60s tick aggregate\nVWAP=%s buyVol=%s sellVol=%s range=[%s,%s] ticks=%d largeTradeRatio=%s\n\n",
		b.Tick.VWAP, b.Tick.BuyVolume, b.Tick.SellVolume, b.Tick.PriceLow, b.Tick.PriceHigh, b.Tick.TickCount, b.Tick.LargeTradeRatio)

	fmt.Fprintf(&sb, "## Account\n")
	for _, bal := range b.Balance {
		fmt.Fprintf(&sb, "balance %s: eq=%s availEq=%s\n", bal.Ccy, bal.Eq, bal.AvailEq)
	}
	fmt.Fprintf(&sb, "\n## Open positions\n")
	for _, p := range b.Positions {
		fmt.Fprintf(&sb, "%s %s size=%s avgPx=%s openTimeMs=%d decisions=%d\n",
			p.Symbol, p.PosSide, p.Size, p.AvgPx, p.OpenTimeMs, len(p.Decisions))
	}

	fmt.Fprintf(&sb, "\n## Funding / market stats\nfundingRate=%s oi=%s\n\n", b.Funding.FundingRate, b.MarketStats.OpenInterest.OI)

	fmt.Fprintf(&sb, "## 30-day stats\ntrades=%d winRate=%s avgR=%s totalPnl=%s\n\n",
		b.HistStats.TradeCount, b.HistStats.WinRate, b.HistStats.AvgRMultiple, b.HistStats.TotalPnl)

	if len(b.Journal) > 0 {
		fmt.Fprintf(&sb, "## Recent decision journal\n")
		for _, entry := range b.Journal {
			fmt.Fprintf(&sb, "- %s\n", entry)
		}
	}

	fmt.Fprintf(&sb, "\n%s\n%s\n", seed.RiskNotes, seed.ClosingReminder)

	return seed.SystemPrompt, sb.String()
}
