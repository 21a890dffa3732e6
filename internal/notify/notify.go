// Package notify posts trade-lifecycle alerts to a chat webhook (Feishu/Lark
// style "post" message cards). Grounded on the Polymarket trader's
// internal/notify package (an enable-when-configured HTTP notifier with one
// Send primitive and typed Notify* helpers on top), rebuilt on resty to match
// this repo's REST client rather than bare net/http, and restricted to
// open/adjust/close/restart events rather than every fill.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Notifier posts webhook messages. Disabled (a silent no-op) when no
// webhook URL is configured.
type Notifier struct {
	http    *resty.Client
	webhook string
	enabled bool
	log     zerolog.Logger
}

// New builds a Notifier against webhookURL. An empty URL yields a disabled
// notifier whose Send calls always succeed silently.
func New(webhookURL string, logger zerolog.Logger) *Notifier {
	return &Notifier{
		http:    resty.New().SetTimeout(10 * time.Second),
		webhook: webhookURL,
		enabled: webhookURL != "",
		log:     logger.With().Str("subsystem", "notify").Logger(),
	}
}

// Enabled reports whether this notifier will actually post anything.
func (n *Notifier) Enabled() bool { return n.enabled }

type postContent struct {
	Post struct {
		ZhCN struct {
			Title   string     `json:"title"`
			Content [][]segment `json:"content"`
		} `json:"zh_cn"`
	} `json:"post"`
}

type segment struct {
	Tag  string `json:"tag"`
	Text string `json:"text"`
}

// Send posts title/body as a single-line text card to the configured
// webhook. A no-op when the notifier is disabled.
func (n *Notifier) Send(ctx context.Context, title, body string) error {
	if !n.enabled {
		return nil
	}

	payload := postContent{}
	payload.Post.ZhCN.Title = title
	payload.Post.ZhCN.Content = [][]segment{{{Tag: "text", Text: body}}}

	resp, err := n.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]any{
			"msg_type": "post",
			"content":  payload,
		}).
		Post(n.webhook)
	if err != nil {
		return fmt.Errorf("notify: send: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("notify: webhook %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// NotifyOpen announces a new position.
func (n *Notifier) NotifyOpen(ctx context.Context, symbol, posSide, size, price string) error {
	body := fmt.Sprintf("symbol=%s side=%s size=%s entry=%s", symbol, posSide, size, price)
	return n.Send(ctx, "Position opened", body)
}

// NotifyAdjust announces a TP/SL adjustment on an existing position.
func (n *Notifier) NotifyAdjust(ctx context.Context, symbol, posSide, reason string) error {
	body := fmt.Sprintf("symbol=%s side=%s reason=%s", symbol, posSide, reason)
	return n.Send(ctx, "Position adjusted", body)
}

// NotifyClose announces a closed position.
func (n *Notifier) NotifyClose(ctx context.Context, symbol, posSide, pnl string) error {
	body := fmt.Sprintf("symbol=%s side=%s pnl=%s", symbol, posSide, pnl)
	return n.Send(ctx, "Position closed", body)
}

// NotifyPositionClosed satisfies internal/cache.Notifier: it is invoked when
// the positions cache detects a tracked position has disappeared from the
// exchange's open-positions list (closed by TP/SL fill or otherwise), since
// that detection happens without the orchestrator's own close-side PnL.
func (n *Notifier) NotifyPositionClosed(ctx context.Context, symbol, posSide string, openTimeMs int64) error {
	body := fmt.Sprintf("symbol=%s side=%s openTimeMs=%d", symbol, posSide, openTimeMs)
	return n.Send(ctx, "Position closed", body)
}

// NotifyRestartThreshold warns that the collector's restart counter has
// crossed a warning threshold, so operators are told restarts are piling
// up without being paged on every individual retry.
func (n *Notifier) NotifyRestartThreshold(ctx context.Context, component string, restarts int) error {
	body := fmt.Sprintf("component=%s restarts=%d", component, restarts)
	return n.Send(ctx, "Restart threshold crossed", body)
}
