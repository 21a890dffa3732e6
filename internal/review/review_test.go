package review

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/okxtrader/swapagent/internal/model"
)

type fakeCompleter struct {
	calls int
	reply string
}

func (f *fakeCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.calls++
	return f.reply, nil
}

type fakeDecisionHistory struct {
	decisions []string
}

func (f *fakeDecisionHistory) DecisionsForPosition(ctx context.Context, symbol string, openTimeMs int64) ([]string, error) {
	return f.decisions, nil
}

type fakeKlineReader struct{}

func (fakeKlineReader) RecentKlinesBefore(ctx context.Context, symbol, timeframe string, beforeMs int64, limit int) ([]model.Kline, error) {
	return nil, nil
}

type fakeStore struct {
	rows     []model.ClosedPosition
	setCalls int
}

func (f *fakeStore) ListClosedWithoutReview(ctx context.Context, limit int) ([]model.ClosedPosition, error) {
	var out []model.ClosedPosition
	for _, r := range f.rows {
		if r.ReviewSummary == "" {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) FindClosedPosition(ctx context.Context, symbol string, openTimeMs int64) (model.ClosedPosition, bool, error) {
	for _, r := range f.rows {
		if r.Symbol == symbol && r.OpenTimeMs == openTimeMs {
			return r, true, nil
		}
	}
	return model.ClosedPosition{}, false, nil
}

func (f *fakeStore) SetReviewSummary(ctx context.Context, symbol string, openTimeMs int64, summary string) error {
	f.setCalls++
	for i := range f.rows {
		if f.rows[i].Symbol == symbol && f.rows[i].OpenTimeMs == openTimeMs {
			f.rows[i].ReviewSummary = summary
		}
	}
	return nil
}

func TestTriggerSkipsWhenJournalEmpty(t *testing.T) {
	completer := &fakeCompleter{reply: "lesson learned"}
	store := &fakeStore{rows: []model.ClosedPosition{{Symbol: "BTC-USDT-SWAP", OpenTimeMs: 1}}}
	gen := New(completer, &fakeDecisionHistory{}, fakeKlineReader{}, store, zerolog.Nop())

	if err := gen.Trigger(context.Background(), "BTC-USDT-SWAP", model.PosLong, 1); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if completer.calls != 0 {
		t.Fatalf("expected no LLM call for empty journal")
	}
}

func TestTriggerGeneratesAndPersistsSummary(t *testing.T) {
	completer := &fakeCompleter{reply: "entered too early, exit was disciplined"}
	store := &fakeStore{rows: []model.ClosedPosition{{
		Symbol: "BTC-USDT-SWAP", OpenTimeMs: 1, AvgPx: decimal.NewFromInt(100),
		Size: decimal.NewFromInt(1), RealizedPnl: decimal.NewFromInt(5),
	}}}
	gen := New(completer, &fakeDecisionHistory{decisions: []string{"[BTC] OPEN_LONG conf=70 reason=breakout"}}, fakeKlineReader{}, store, zerolog.Nop())

	if err := gen.Trigger(context.Background(), "BTC-USDT-SWAP", model.PosLong, 1); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if completer.calls != 1 {
		t.Fatalf("expected one LLM call, got %d", completer.calls)
	}
	if store.rows[0].ReviewSummary != completer.reply {
		t.Fatalf("expected summary to be persisted, got %q", store.rows[0].ReviewSummary)
	}
}

func TestTriggerSkipsWhenAlreadyReviewed(t *testing.T) {
	completer := &fakeCompleter{reply: "ignored"}
	store := &fakeStore{rows: []model.ClosedPosition{{
		Symbol: "BTC-USDT-SWAP", OpenTimeMs: 1, ReviewSummary: "already done",
	}}}
	gen := New(completer, &fakeDecisionHistory{decisions: []string{"entry"}}, fakeKlineReader{}, store, zerolog.Nop())

	if err := gen.Trigger(context.Background(), "BTC-USDT-SWAP", model.PosLong, 1); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if completer.calls != 0 {
		t.Fatalf("expected no second LLM call when review already present")
	}
}
