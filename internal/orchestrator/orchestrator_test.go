package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/okxtrader/swapagent/internal/llm"
	"github.com/okxtrader/swapagent/internal/model"
	"github.com/okxtrader/swapagent/internal/okx"
)

type fakeTradeAPI struct {
	leverageSet   bool
	placed        []okx.OrderRequest
	algosPlaced   []okx.AlgoOrderRequest
	cancelledOrd  []string
	cancelledAlgo []string
	pendingOrders []okx.PendingOrder
	pendingAlgos  []okx.PendingAlgoOrder
}

func (f *fakeTradeAPI) SetLeverage(ctx context.Context, instID string, leverage int, marginMode, posSide string) error {
	f.leverageSet = true
	return nil
}

func (f *fakeTradeAPI) GetInstrument(ctx context.Context, instID string) (okx.Instrument, error) {
	return okx.Instrument{InstID: instID, MinSz: "1", LotSz: "1"}, nil
}

func (f *fakeTradeAPI) PlaceOrder(ctx context.Context, req okx.OrderRequest) (okx.OrderResult, error) {
	f.placed = append(f.placed, req)
	return okx.OrderResult{OrdID: "ord-1"}, nil
}

func (f *fakeTradeAPI) CancelOrder(ctx context.Context, instID, ordID string) error {
	f.cancelledOrd = append(f.cancelledOrd, ordID)
	return nil
}

func (f *fakeTradeAPI) PlaceAlgoOrder(ctx context.Context, req okx.AlgoOrderRequest) (okx.AlgoOrderResult, error) {
	f.algosPlaced = append(f.algosPlaced, req)
	return okx.AlgoOrderResult{AlgoID: "algo-1"}, nil
}

func (f *fakeTradeAPI) CancelAlgoOrder(ctx context.Context, instID, algoID string) error {
	f.cancelledAlgo = append(f.cancelledAlgo, algoID)
	return nil
}

func (f *fakeTradeAPI) GetPendingOrders(ctx context.Context, instID string) ([]okx.PendingOrder, error) {
	return f.pendingOrders, nil
}

func (f *fakeTradeAPI) GetPendingAlgoOrders(ctx context.Context, instID string) ([]okx.PendingAlgoOrder, error) {
	return f.pendingAlgos, nil
}

type fakeExecutor struct {
	opened []OpenRequest
	// onOpen simulates the exchange reflecting the new position, e.g. by
	// mutating a fakePositions' rows, the way a real fill would become
	// visible on the next positions-cache refresh.
	onOpen func(req OpenRequest)
}

func (f *fakeExecutor) Open(ctx context.Context, req OpenRequest) (OpenResult, error) {
	f.opened = append(f.opened, req)
	if f.onOpen != nil {
		f.onOpen(req)
	}
	return OpenResult{Success: true, OrderID: "exec-1"}, nil
}

type fakePositions struct {
	rows []model.Position
}

func (f *fakePositions) Snapshot() []model.Position { return f.rows }

type fakeRecorder struct {
	recorded []model.AIDecision
	linked   map[string]int64
}

func (f *fakeRecorder) RecordDecision(ctx context.Context, d model.AIDecision) error {
	f.recorded = append(f.recorded, d)
	return nil
}

func (f *fakeRecorder) SetDecisionPosID(ctx context.Context, decisionID string, posID int64) error {
	if f.linked == nil {
		f.linked = make(map[string]int64)
	}
	f.linked[decisionID] = posID
	return nil
}

type fakeJournal struct {
	entries []string
}

func (f *fakeJournal) Append(content string, now time.Time) {
	f.entries = append(f.entries, content)
}

func newTestOrchestrator(trade TradeAPI, exec Executor, positions PositionsPoller) *Orchestrator {
	rec := &fakeRecorder{}
	jrnl := &fakeJournal{}
	return New(Config{PollAttempts: 1, PollInterval: time.Millisecond}, trade, exec, positions, rec, jrnl, zerolog.Nop())
}

func TestDispatchOpenLongPlacesLayeredTPSL(t *testing.T) {
	trade := &fakeTradeAPI{}
	positions := &fakePositions{}
	exec := &fakeExecutor{onOpen: func(req OpenRequest) {
		positions.rows = []model.Position{{Symbol: req.Symbol, PosSide: req.PosSide, Size: req.Size, OpenTimeMs: 1}}
	}}
	o := newTestOrchestrator(trade, exec, positions)

	conf := 80
	d := llm.Decision{
		Signal:     string(model.ActionOpenLong),
		Confidence: &conf,
		Size:       llm.FlexDecimal{Value: decimal.NewFromInt(10), Set: true},
		AdjustData: &model.AdjustData{
			TakeProfit: []model.TPSLLayer{{Size: decimal.NewFromInt(10), Price: decimal.NewFromInt(110)}},
			StopLoss:   []model.TPSLLayer{{Size: decimal.NewFromInt(10), Price: decimal.NewFromInt(90)}},
		},
	}

	inst := InstrumentInfo{MinSz: decimal.NewFromInt(1), LotSz: decimal.NewFromInt(1)}
	if err := o.Dispatch(context.Background(), "BTC-USDT-SWAP", inst, d); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if len(exec.opened) != 1 {
		t.Fatalf("expected executor to open once, got %d", len(exec.opened))
	}
	if !trade.leverageSet {
		t.Fatalf("expected leverage to be set before opening")
	}
	if len(trade.placed) != 1 || trade.placed[0].OrdType != "limit" || !trade.placed[0].ReduceOnly {
		t.Fatalf("expected one reduce-only limit TP order, got %+v", trade.placed)
	}
	if len(trade.algosPlaced) != 1 || trade.algosPlaced[0].SlTriggerPx != "90" {
		t.Fatalf("expected one SL algo order at 90, got %+v", trade.algosPlaced)
	}
}

func TestDispatchOpenSkipsWithoutPositiveSize(t *testing.T) {
	trade := &fakeTradeAPI{}
	exec := &fakeExecutor{}
	positions := &fakePositions{}
	o := newTestOrchestrator(trade, exec, positions)

	conf := 50
	d := llm.Decision{Signal: string(model.ActionOpenLong), Confidence: &conf}
	err := o.Dispatch(context.Background(), "BTC-USDT-SWAP", InstrumentInfo{}, d)
	if err == nil {
		t.Fatalf("expected skip error for missing size")
	}
	if len(exec.opened) != 0 {
		t.Fatalf("expected no order to be opened")
	}
}

func TestDispatchHoldDoesNothing(t *testing.T) {
	trade := &fakeTradeAPI{}
	exec := &fakeExecutor{}
	positions := &fakePositions{}
	o := newTestOrchestrator(trade, exec, positions)

	conf := 30
	d := llm.Decision{Signal: string(model.ActionHold), Confidence: &conf, Reason: "no setup"}
	if err := o.Dispatch(context.Background(), "BTC-USDT-SWAP", InstrumentInfo{}, d); err != nil {
		t.Fatalf("Dispatch hold: %v", err)
	}
	if len(exec.opened) != 0 || len(trade.placed) != 0 {
		t.Fatalf("expected hold to place no orders")
	}
}

func TestDispatchCloseLongPlacesReduceOnlyMarketOrder(t *testing.T) {
	trade := &fakeTradeAPI{}
	exec := &fakeExecutor{}
	positions := &fakePositions{rows: []model.Position{{Symbol: "BTC-USDT-SWAP", PosSide: model.PosLong, Size: decimal.NewFromInt(5)}}}
	o := newTestOrchestrator(trade, exec, positions)

	conf := 60
	d := llm.Decision{Signal: string(model.ActionCloseLong), Confidence: &conf}
	if err := o.Dispatch(context.Background(), "BTC-USDT-SWAP", InstrumentInfo{}, d); err != nil {
		t.Fatalf("Dispatch close: %v", err)
	}
	if len(trade.placed) != 1 || trade.placed[0].Side != "sell" || !trade.placed[0].ReduceOnly {
		t.Fatalf("expected one reduce-only sell market order, got %+v", trade.placed)
	}
}

func TestFillMissingSizesDistributesRemainder(t *testing.T) {
	adjust := &model.AdjustData{
		TakeProfit: []model.TPSLLayer{
			{Size: decimal.Zero, Price: decimal.NewFromInt(110)},
			{Size: decimal.Zero, Price: decimal.NewFromInt(120)},
		},
		StopLoss: []model.TPSLLayer{
			{Size: decimal.NewFromInt(10), Price: decimal.NewFromInt(90)},
		},
	}
	filled, err := fillMissingSizes(adjust, decimal.NewFromInt(10))
	if err != nil {
		t.Fatalf("fillMissingSizes: %v", err)
	}
	sum := filled.TakeProfit[0].Size.Add(filled.TakeProfit[1].Size)
	if !sum.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected layer sizes to sum to 10, got %s", sum.String())
	}
}

func TestClampToLotSizeRoundsDown(t *testing.T) {
	inst := InstrumentInfo{LotSz: decimal.NewFromFloat(0.1)}
	got := clampToLotSize(decimal.NewFromFloat(1.27), inst)
	if !got.Equal(decimal.NewFromFloat(1.2)) {
		t.Fatalf("expected 1.2, got %s", got.String())
	}
}

func TestOpenPositionClampsSizeUpToMinSz(t *testing.T) {
	trade := &fakeTradeAPI{}
	positions := &fakePositions{}
	var opened []OpenRequest
	exec := &fakeExecutor{onOpen: func(req OpenRequest) {
		opened = append(opened, req)
		positions.rows = []model.Position{{Symbol: req.Symbol, PosSide: req.PosSide, Size: req.Size, OpenTimeMs: 1}}
	}}
	o := newTestOrchestrator(trade, exec, positions)

	d := llm.Decision{
		Signal: string(model.ActionOpenLong),
		Size:   llm.FlexDecimal{Value: decimal.NewFromFloat(0.002), Set: true},
	}
	inst := InstrumentInfo{MinSz: decimal.NewFromFloat(0.01), LotSz: decimal.NewFromFloat(0.01)}

	if err := o.Dispatch(context.Background(), "BTC-USDT-SWAP", inst, d); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(opened) != 1 {
		t.Fatalf("expected one open request, got %d", len(opened))
	}
	if !opened[0].Size.Equal(inst.MinSz) {
		t.Fatalf("expected size clamped up to minSz %s, got %s", inst.MinSz.String(), opened[0].Size.String())
	}
}

func TestOpenPositionLinksDecisionToPosition(t *testing.T) {
	trade := &fakeTradeAPI{}
	positions := &fakePositions{}
	exec := &fakeExecutor{onOpen: func(req OpenRequest) {
		positions.rows = []model.Position{{Symbol: req.Symbol, PosSide: req.PosSide, Size: req.Size, OpenTimeMs: 42}}
	}}
	rec := &fakeRecorder{}
	jrnl := &fakeJournal{}
	o := New(Config{PollAttempts: 1, PollInterval: time.Millisecond}, trade, exec, positions, rec, jrnl, zerolog.Nop())

	d := llm.Decision{
		Signal: string(model.ActionOpenLong),
		Size:   llm.FlexDecimal{Value: decimal.NewFromInt(1), Set: true},
	}
	inst := InstrumentInfo{MinSz: decimal.NewFromInt(1), LotSz: decimal.NewFromInt(1)}

	if err := o.Dispatch(context.Background(), "BTC-USDT-SWAP", inst, d); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(rec.recorded) != 1 {
		t.Fatalf("expected one recorded decision, got %d", len(rec.recorded))
	}
	posID, ok := rec.linked[rec.recorded[0].ID]
	if !ok {
		t.Fatalf("expected decision %s to be linked to a position", rec.recorded[0].ID)
	}
	if posID != 42 {
		t.Fatalf("expected linked posID 42, got %d", posID)
	}
}
