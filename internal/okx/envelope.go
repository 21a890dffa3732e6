package okx

import (
	"encoding/json"
	"strconv"
)

// envelope is OKX's common REST response wrapper: {"code":"0","msg":"","data":[...]}.
type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (e *envelope) unmarshalData(out any) error {
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, out)
}

// parseMs parses an OKX millisecond-epoch string field, returning 0 on
// malformed input rather than erroring, since these are advisory timestamps.
func parseMs(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
