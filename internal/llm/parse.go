package llm

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// codeFenceRe strips a leading/trailing ```json ... ``` fence, grounded on
// the corpus's LLM-response-cleanup regex.
var codeFenceRe = regexp.MustCompile(`(?s)^\s*` + "```" + `(?:json)?\s*\n?(.*?)\n?` + "```" + `\s*$`)

// StripCodeFence removes a surrounding markdown code fence, if present.
func StripCodeFence(s string) string {
	if m := codeFenceRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// narrowFieldRe extracts one scalar field's raw JSON value: "key": <value>
// up to the next comma or closing brace, used only as a fallback when a
// strict parse of the closed JSON prefix fails.
func narrowFieldRe(key string) *regexp.Regexp {
	return regexp.MustCompile(`"` + key + `"\s*:\s*("(?:[^"\\]|\\.)*"|[-0-9.eE]+|true|false|null)`)
}

var narrowFields = []string{
	"signal", "confidence", "size", "stop_loss_rate", "take_profit_rate",
	"holding_time", "adjust_type", "new_stop_loss_price", "new_take_profit_price",
}

// earlyProbe scans buf for the `"reason"` key token. If found, it takes the
// JSON object prefix before that key, closes it, and attempts a strict
// parse; on strict-parse failure it falls back to narrow per-field regex
// extraction. It returns ok=false if "reason" has not yet appeared.
func earlyProbe(buf string) (Decision, bool) {
	idx := strings.Index(buf, `"reason"`)
	if idx < 0 {
		return Decision{}, false
	}

	prefix := strings.TrimRight(buf[:idx], " \t\n\r,")
	candidate := prefix + "}"

	var d Decision
	if err := json.Unmarshal([]byte(candidate), &d); err == nil {
		d.Early = true
		return d, true
	}

	return regexFallback(buf[:idx]), true
}

func regexFallback(buf string) Decision {
	d := Decision{Early: true}
	values := make(map[string]string, len(narrowFields))
	for _, key := range narrowFields {
		if m := narrowFieldRe(key).FindStringSubmatch(buf); m != nil {
			values[key] = strings.Trim(m[1], `"`)
		}
	}

	d.Signal = values["signal"]
	if v, ok := values["confidence"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			d.Confidence = &n
		}
	}
	if v, ok := values["size"]; ok {
		_ = d.Size.UnmarshalJSON([]byte(v))
	}
	if v, ok := values["stop_loss_rate"]; ok {
		_ = d.StopLossRate.UnmarshalJSON([]byte(v))
	}
	if v, ok := values["take_profit_rate"]; ok {
		_ = d.TakeProfitRate.UnmarshalJSON([]byte(v))
	}
	d.HoldingTime = values["holding_time"]
	d.AdjustType = values["adjust_type"]
	if v, ok := values["new_stop_loss_price"]; ok {
		_ = d.NewStopLossPrice.UnmarshalJSON([]byte(v))
	}
	if v, ok := values["new_take_profit_price"]; ok {
		_ = d.NewTakeProfitPrice.UnmarshalJSON([]byte(v))
	}
	return d
}

// ParseFull parses the complete streamed response after code-fence
// stripping. If parsing fails and an early decision was already delivered,
// callers should proceed with that early decision instead (reason marked
// unavailable); ParseFull itself just reports the error.
func ParseFull(raw string) (Decision, error) {
	cleaned := StripCodeFence(raw)
	var d Decision
	if err := json.Unmarshal([]byte(cleaned), &d); err != nil {
		return Decision{}, err
	}
	return d, nil
}
