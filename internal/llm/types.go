// Package llm is the streaming decision engine (C8): it sends the prompt
// pair to the configured chat-completion provider, runs the early-decision
// probe on every streamed chunk, and falls back to a full-JSON parse once
// the stream ends. Grounded on the corpus's LLM-analyzer JSON-extraction
// pattern (code-fence stripping, narrow regex fallback), adapted from a
// single-shot call to an incremental streaming reader.
package llm

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/okxtrader/swapagent/internal/model"
)

// FlexDecimal unmarshals a JSON number or numeric string into a
// decimal.Decimal; LLM providers are inconsistent about quoting numbers.
type FlexDecimal struct {
	Value decimal.Decimal
	Set   bool
}

func (f *FlexDecimal) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		f.Set = false
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return err
	}
	f.Value = d
	f.Set = true
	return nil
}

// Decision is the LLM's structured trading signal, covering both the
// open-position fields (size, adjust_data) and the adjust-only fields
// (adjust_type, new_stop_loss_price, new_take_profit_price).
type Decision struct {
	Signal             string           `json:"signal"`
	Confidence          *int            `json:"confidence"`
	Size                FlexDecimal     `json:"size"`
	StopLossRate        FlexDecimal     `json:"stop_loss_rate"`
	TakeProfitRate      FlexDecimal     `json:"take_profit_rate"`
	HoldingTime         string          `json:"holding_time"`
	AdjustType          string          `json:"adjust_type"`
	NewStopLossPrice    FlexDecimal     `json:"new_stop_loss_price"`
	NewTakeProfitPrice  FlexDecimal     `json:"new_take_profit_price"`
	AdjustData          *model.AdjustData `json:"adjust_data"`
	Reason              string          `json:"reason"`
	RiskWarning         string          `json:"risk_warning"`

	// Early is true when this Decision was produced by the early-decision
	// probe rather than a full parse; Reason is not yet populated then.
	Early bool
}

// HasRequiredEarlyFields reports whether signal+confidence are present,
// the minimum needed to deliver an early decision to the orchestrator.
func (d Decision) HasRequiredEarlyFields() bool {
	return d.Signal != "" && d.Confidence != nil
}

// ConfidenceOrZero returns the confidence value, or 0 if unset.
func (d Decision) ConfidenceOrZero() int {
	if d.Confidence == nil {
		return 0
	}
	return *d.Confidence
}
