package router

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"sigrelay/internal/classifier"
	"sigrelay/internal/config"
	"sigrelay/internal/gateway"
	"sigrelay/internal/hub"
	"sigrelay/internal/model"
	"sigrelay/internal/source"
	"sigrelay/internal/source/scripted"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type factRecorder struct {
	mu         sync.Mutex
	broadcasts []hub.Fact
	direct     map[string][]hub.Fact
	live       []string
}

func newFactRecorder() *factRecorder {
	return &factRecorder{direct: make(map[string][]hub.Fact)}
}

func (f *factRecorder) Broadcast(fact hub.Fact) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, fact)
}

func (f *factRecorder) SendTo(clientID string, fact hub.Fact) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.direct[clientID] = append(f.direct[clientID], fact)
}

func (f *factRecorder) SetLive(clientID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.live = append(f.live, clientID)
}

func (f *factRecorder) broadcastTypes() []hub.FactType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]hub.FactType, len(f.broadcasts))
	for i, fact := range f.broadcasts {
		out[i] = fact.Type
	}
	return out
}

func (f *factRecorder) countBroadcast(typ hub.FactType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, fact := range f.broadcasts {
		if fact.Type == typ {
			n++
		}
	}
	return n
}

func (f *factRecorder) lastBroadcast(typ hub.FactType) (hub.Fact, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.broadcasts) - 1; i >= 0; i-- {
		if f.broadcasts[i].Type == typ {
			return f.broadcasts[i], true
		}
	}
	return hub.Fact{}, false
}

func (f *factRecorder) directTypes(clientID string) []hub.FactType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]hub.FactType, 0, len(f.direct[clientID]))
	for _, fact := range f.direct[clientID] {
		out = append(out, fact.Type)
	}
	return out
}

type fakeSettingsStore struct {
	mu      sync.Mutex
	current model.Settings
	saves   int
}

func (f *fakeSettingsStore) Load() (model.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, nil
}

func (f *fakeSettingsStore) Save(s model.Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = s
	f.saves++
	return nil
}

func (f *fakeSettingsStore) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

type mockClassifier struct {
	mock.Mock
}

func (m *mockClassifier) Classify(ctx context.Context, text string) (*classifier.Result, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*classifier.Result), args.Error(1)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Name() string { return "mock" }

func (m *mockGateway) AccountSnapshot(ctx context.Context) (model.AccountSnapshot, error) {
	args := m.Called(ctx)
	return args.Get(0).(model.AccountSnapshot), args.Error(1)
}

func (m *mockGateway) Positions(ctx context.Context) ([]model.Position, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Position), args.Error(1)
}

func (m *mockGateway) Quotes(ctx context.Context) ([]model.MarketQuote, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.MarketQuote), args.Error(1)
}

func (m *mockGateway) TradeHistory(ctx context.Context, lookback time.Duration) ([]model.HistoricalTrade, error) {
	args := m.Called(ctx, lookback)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.HistoricalTrade), args.Error(1)
}

func (m *mockGateway) PlaceOrder(ctx context.Context, req gateway.OrderRequest) (gateway.OrderResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(gateway.OrderResult), args.Error(1)
}

func (m *mockGateway) ClosePosition(ctx context.Context, id string) (gateway.OrderResult, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(gateway.OrderResult), args.Error(1)
}

func (m *mockGateway) ModifyPosition(ctx context.Context, id string, stop, target *float64) (gateway.OrderResult, error) {
	args := m.Called(ctx, id, stop, target)
	return args.Get(0).(gateway.OrderResult), args.Error(1)
}

type fakeSweep struct {
	mu      sync.Mutex
	resumes int
	pauses  int
}

func (f *fakeSweep) Resume() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumes++
}

func (f *fakeSweep) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pauses++
}

func (f *fakeSweep) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resumes, f.pauses
}

type harness struct {
	router     *Router
	src        *scripted.Source
	classifier *mockClassifier
	gateway    *mockGateway
	settings   *fakeSettingsStore
	observers  *factRecorder
	sweep      *fakeSweep
}

func newHarness(t *testing.T, settings model.Settings) *harness {
	t.Helper()
	h := &harness{
		src:        scripted.New(),
		classifier: new(mockClassifier),
		gateway:    new(mockGateway),
		settings:   &fakeSettingsStore{current: settings},
		observers:  newFactRecorder(),
		sweep:      &fakeSweep{},
	}
	r, err := New(Deps{
		Source:     h.src,
		Classifier: h.classifier,
		Gateway:    h.gateway,
		Settings:   h.settings,
		Observers:  h.observers,
		Sweeps:     []SweepControl{h.sweep},
		Trading:    config.TradingConfig{VolumeStep: 0.01, VolumeMin: 0.01, VolumeMax: 100},
	})
	require.NoError(t, err)
	h.router = r

	// Post-trade refreshes run opportunistically off-loop.
	h.gateway.On("AccountSnapshot", mock.Anything).Return(model.AccountSnapshot{}, nil).Maybe()
	h.gateway.On("Positions", mock.Anything).Return([]model.Position{}, nil).Maybe()

	r.Start()
	t.Cleanup(r.Stop)
	return h
}

func (h *harness) sendSync(t *testing.T, typ EventType, payload any) error {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return h.router.SendSync(ctx, EventEnvelope{
		ID:        newEventID("test"),
		Type:      typ,
		Payload:   data,
		CreatedAt: time.Now(),
	})
}

func (h *harness) deliver(t *testing.T, msg model.Message) {
	t.Helper()
	require.NoError(t, h.sendSync(t, EvtSourceEvent, source.Event{
		Type:    source.EventMessage,
		Message: &msg,
	}))
}

func (h *harness) command(t *testing.T, clientID string, typ hub.CommandType, payload any) {
	t.Helper()
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		data = raw
	}
	require.NoError(t, h.sendSync(t, EvtObserverCommand, ObserverCommandPayload{
		ClientID: clientID,
		Command:  hub.Command{Type: typ, Data: data},
	}))
}

func realtimeMessage(id string) model.Message {
	return model.Message{
		ChannelID:         "-1001234567890",
		ProviderMessageID: id,
		Text:              "GOLD BUY NOW @ 2031, SL 2025, TP 2040",
		Timestamp:         time.Now(),
		IsRealtime:        true,
	}
}

var selectedSettings = model.Settings{
	SelectedChannelIDs: []string{"1234567890"},
	DefaultOrderSize:   0.02,
}

func TestIntakeBroadcastsBeforeVerdict(t *testing.T) {
	h := newHarness(t, selectedSettings)
	block := make(chan struct{})
	h.classifier.On("Classify", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { <-block }).
		Return(&classifier.Result{IsSignal: false, Confidence: 0.1, Rationale: "recap"}, nil).Once()

	h.deliver(t, realtimeMessage("1"))

	// The raw message is public while classification is still running.
	fact, ok := h.observers.lastBroadcast(hub.FactNewMessage)
	require.True(t, ok)
	msg := fact.Data.(*model.Message)
	assert.Equal(t, model.VerdictAnalyzing, msg.Verdict)

	close(block)
	assert.Eventually(t, func() bool {
		return h.observers.countBroadcast(hub.FactMessageUpdated) == 1
	}, 2*time.Second, 10*time.Millisecond)

	fact, _ = h.observers.lastBroadcast(hub.FactMessageUpdated)
	assert.Equal(t, model.VerdictNoSignal, fact.Data.(*model.Message).Verdict)
}

func TestIntakeSkipsHistorical(t *testing.T) {
	h := newHarness(t, selectedSettings)

	msg := realtimeMessage("2")
	msg.IsRealtime = false
	h.deliver(t, msg)

	// Raw announcement first, then the terminal verdict as an update.
	assert.Equal(t, 1, h.observers.countBroadcast(hub.FactNewMessage))
	fact, ok := h.observers.lastBroadcast(hub.FactMessageUpdated)
	require.True(t, ok)
	assert.Equal(t, model.VerdictSkipped, fact.Data.(*model.Message).Verdict)
	h.classifier.AssertNotCalled(t, "Classify", mock.Anything, mock.Anything)
}

func TestIntakeIgnoresUnselectedChannel(t *testing.T) {
	h := newHarness(t, selectedSettings)

	msg := realtimeMessage("3")
	msg.ChannelID = "-1009999999999"
	h.deliver(t, msg)

	assert.Zero(t, h.observers.countBroadcast(hub.FactNewMessage))
	h.classifier.AssertNotCalled(t, "Classify", mock.Anything, mock.Anything)
}

func TestIntakeDedupsRedelivery(t *testing.T) {
	h := newHarness(t, selectedSettings)
	h.classifier.On("Classify", mock.Anything, mock.Anything).
		Return(&classifier.Result{IsSignal: false, Confidence: 0.2}, nil).Once()

	h.deliver(t, realtimeMessage("4"))
	h.deliver(t, realtimeMessage("4"))

	// Classification runs off-loop; wait for its verdict to land before
	// counting calls.
	assert.Eventually(t, func() bool {
		return h.observers.countBroadcast(hub.FactMessageUpdated) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, h.observers.countBroadcast(hub.FactNewMessage))
	h.classifier.AssertNumberOfCalls(t, "Classify", 1)
}

func TestChannelIdentityFormsMatchSelection(t *testing.T) {
	h := newHarness(t, selectedSettings)
	h.classifier.On("Classify", mock.Anything, mock.Anything).
		Return(&classifier.Result{IsSignal: false, Confidence: 0.2}, nil)

	msg := realtimeMessage("5")
	msg.ChannelID = "1234567890"
	h.deliver(t, msg)

	assert.Equal(t, 1, h.observers.countBroadcast(hub.FactNewMessage))
}

func autoTradeSettings() model.Settings {
	s := selectedSettings
	s.AutoTradeEnabled = true
	return s
}

func signalResult(confidence float64) *classifier.Result {
	entry, stop := 2031.5, 2025.0
	return &classifier.Result{
		IsSignal:   true,
		Confidence: confidence,
		Symbol:     "XAUUSD",
		Direction:  "buy",
		Entry:      &entry,
		Stop:       &stop,
		Targets:    []float64{2040, 2055},
		Rationale:  "levels stated",
		Model:      "test-model",
	}
}

func TestAutoTradeAtThreshold(t *testing.T) {
	h := newHarness(t, autoTradeSettings())
	h.classifier.On("Classify", mock.Anything, mock.Anything).Return(signalResult(0.70), nil).Once()
	h.gateway.On("PlaceOrder", mock.Anything, mock.MatchedBy(func(req gateway.OrderRequest) bool {
		return req.Symbol == "XAUUSD" && req.Direction == model.DirectionBuy && req.Volume == 0.02
	})).Return(gateway.OrderResult{Success: true, OrderID: "7001", Message: "filled"}, nil).Once()

	h.deliver(t, realtimeMessage("10"))

	assert.Eventually(t, func() bool {
		fact, ok := h.observers.lastBroadcast(hub.FactSignalUpdated)
		if !ok {
			return false
		}
		return fact.Data.(*model.Signal).Status == model.SignalExecuted
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, h.observers.countBroadcast(hub.FactSignalDetected))
	assert.Equal(t, 1, h.observers.countBroadcast(hub.FactAutoTradeExecuted))
	assert.Equal(t, 1, h.observers.countBroadcast(hub.FactTradeResult))
	h.gateway.AssertExpectations(t)
}

func TestNoAutoTradeBelowThreshold(t *testing.T) {
	h := newHarness(t, autoTradeSettings())
	h.classifier.On("Classify", mock.Anything, mock.Anything).Return(signalResult(0.69), nil).Once()

	h.deliver(t, realtimeMessage("11"))

	assert.Eventually(t, func() bool {
		return h.observers.countBroadcast(hub.FactSignalDetected) == 1
	}, 2*time.Second, 10*time.Millisecond)

	fact, _ := h.observers.lastBroadcast(hub.FactSignalDetected)
	assert.Equal(t, model.SignalPending, fact.Data.(*model.Signal).Status)
	h.gateway.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)
}

func TestNoAutoTradeWhenDisabled(t *testing.T) {
	h := newHarness(t, selectedSettings)
	h.classifier.On("Classify", mock.Anything, mock.Anything).Return(signalResult(0.99), nil).Once()

	h.deliver(t, realtimeMessage("12"))

	assert.Eventually(t, func() bool {
		return h.observers.countBroadcast(hub.FactSignalDetected) == 1
	}, 2*time.Second, 10*time.Millisecond)
	h.gateway.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)
}

func TestClassifierFailureBecomesErrorVerdict(t *testing.T) {
	h := newHarness(t, selectedSettings)
	h.classifier.On("Classify", mock.Anything, mock.Anything).
		Return(nil, assert.AnError).Once()

	h.deliver(t, realtimeMessage("13"))

	assert.Eventually(t, func() bool {
		fact, ok := h.observers.lastBroadcast(hub.FactMessageUpdated)
		if !ok {
			return false
		}
		msg := fact.Data.(*model.Message)
		return msg.Verdict == model.VerdictError && msg.VerdictDetail == "analysis error"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, h.observers.countBroadcast(hub.FactError))
}

// detectSignal drives one message through classification and returns the
// resulting pending signal.
func detectSignal(t *testing.T, h *harness, msgID string) *model.Signal {
	t.Helper()
	h.classifier.On("Classify", mock.Anything, mock.Anything).Return(signalResult(0.5), nil).Once()
	h.deliver(t, realtimeMessage(msgID))
	var sig *model.Signal
	require.Eventually(t, func() bool {
		fact, ok := h.observers.lastBroadcast(hub.FactSignalDetected)
		if !ok {
			return false
		}
		sig = fact.Data.(*model.Signal)
		return true
	}, 2*time.Second, 10*time.Millisecond)
	return sig
}

func TestExecuteSignalCommand(t *testing.T) {
	h := newHarness(t, selectedSettings)
	sig := detectSignal(t, h, "20")
	h.gateway.On("PlaceOrder", mock.Anything, mock.Anything).
		Return(gateway.OrderResult{Success: true, OrderID: "7002"}, nil).Once()

	h.command(t, "client-1", hub.CmdExecuteSignal, hub.SignalRefPayload{SignalID: sig.ID})

	assert.Eventually(t, func() bool {
		fact, ok := h.observers.lastBroadcast(hub.FactSignalUpdated)
		return ok && fact.Data.(*model.Signal).Status == model.SignalExecuted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestExecuteSignalWithOverrides(t *testing.T) {
	h := newHarness(t, selectedSettings)
	sig := detectSignal(t, h, "25")
	volume, stop := 0.05, 2010.0
	h.gateway.On("PlaceOrder", mock.Anything, mock.MatchedBy(func(req gateway.OrderRequest) bool {
		return req.Volume == 0.05 && req.Stop != nil && *req.Stop == 2010.0
	})).Return(gateway.OrderResult{Success: true, OrderID: "7005"}, nil).Once()

	h.command(t, "client-1", hub.CmdExecuteSignal, hub.ExecuteSignalPayload{
		SignalID: sig.ID,
		Volume:   &volume,
		Stop:     &stop,
	})

	assert.Eventually(t, func() bool {
		fact, ok := h.observers.lastBroadcast(hub.FactSignalUpdated)
		return ok && fact.Data.(*model.Signal).Status == model.SignalExecuted
	}, 2*time.Second, 10*time.Millisecond)
	h.gateway.AssertExpectations(t)
}

func TestExecuteUnknownSignalRejected(t *testing.T) {
	h := newHarness(t, selectedSettings)

	h.command(t, "client-1", hub.CmdExecuteSignal, hub.SignalRefPayload{SignalID: "nope"})

	assert.Equal(t, 1, h.observers.countBroadcast(hub.FactError))
	h.gateway.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)
}

func TestDismissSignal(t *testing.T) {
	h := newHarness(t, selectedSettings)
	sig := detectSignal(t, h, "21")

	h.command(t, "client-1", hub.CmdDismissSignal, hub.SignalRefPayload{SignalID: sig.ID})

	fact, ok := h.observers.lastBroadcast(hub.FactSignalUpdated)
	require.True(t, ok)
	assert.Equal(t, model.SignalDismissed, fact.Data.(*model.Signal).Status)

	t.Run("second dismiss reports settled status", func(t *testing.T) {
		h.command(t, "client-1", hub.CmdDismissSignal, hub.SignalRefPayload{SignalID: sig.ID})
		assert.Equal(t, []hub.FactType{hub.FactSignalUpdated}, h.observers.directTypes("client-1"))
	})
}

func TestLateOrderResultKeepsFirstOutcome(t *testing.T) {
	h := newHarness(t, selectedSettings)
	sig := detectSignal(t, h, "22")

	h.command(t, "client-1", hub.CmdDismissSignal, hub.SignalRefPayload{SignalID: sig.ID})

	// An in-flight order that lands after the dismissal must not win.
	require.NoError(t, h.sendSync(t, EvtOrderResult, OrderResultPayload{
		Action:   OrderActionOpen,
		SignalID: sig.ID,
		Result:   gateway.OrderResult{Success: true, OrderID: "7003"},
	}))

	got, ok := h.router.signals.Get(sig.ID)
	require.True(t, ok)
	assert.Equal(t, model.SignalDismissed, got.Status)
}

func TestFailedOrderMarksSignalFailed(t *testing.T) {
	h := newHarness(t, selectedSettings)
	sig := detectSignal(t, h, "23")

	require.NoError(t, h.sendSync(t, EvtOrderResult, OrderResultPayload{
		Action:   OrderActionOpen,
		SignalID: sig.ID,
		Result:   gateway.OrderResult{Success: false, Message: "not enough margin"},
	}))

	got, _ := h.router.signals.Get(sig.ID)
	assert.Equal(t, model.SignalFailed, got.Status)
	assert.Equal(t, "not enough margin", got.FailureReason)

	// Every observer sees the failure, not just the one who asked.
	assert.Equal(t, 1, h.observers.countBroadcast(hub.FactSignalUpdated))
	assert.Equal(t, 1, h.observers.countBroadcast(hub.FactTradeResult))
	assert.Equal(t, 1, h.observers.countBroadcast(hub.FactError))
	assert.Zero(t, h.observers.countBroadcast(hub.FactAutoTradeExecuted))
}

func TestFailedAutoTradeBroadcastsError(t *testing.T) {
	h := newHarness(t, autoTradeSettings())
	h.classifier.On("Classify", mock.Anything, mock.Anything).Return(signalResult(0.85), nil).Once()
	h.gateway.On("PlaceOrder", mock.Anything, mock.Anything).
		Return(gateway.OrderResult{Success: false, Message: "insufficient margin"}, nil).Once()

	h.deliver(t, realtimeMessage("24"))

	assert.Eventually(t, func() bool {
		fact, ok := h.observers.lastBroadcast(hub.FactSignalUpdated)
		if !ok {
			return false
		}
		return fact.Data.(*model.Signal).Status == model.SignalFailed
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, h.observers.countBroadcast(hub.FactError))
	assert.Equal(t, 1, h.observers.countBroadcast(hub.FactTradeResult))
	assert.Zero(t, h.observers.countBroadcast(hub.FactAutoTradeExecuted))
}

func TestSetAutoTradePersists(t *testing.T) {
	h := newHarness(t, selectedSettings)

	h.command(t, "client-1", hub.CmdSetAutoTrade, hub.SetAutoTradePayload{Enabled: true})

	assert.Equal(t, 1, h.settings.saveCount())
	current, _ := h.settings.Load()
	assert.True(t, current.AutoTradeEnabled)
	assert.Equal(t, 1, h.observers.countBroadcast(hub.FactAutoTradeUpdated))
	assert.Equal(t, 1, h.observers.countBroadcast(hub.FactSettings))
}

func TestSetDefaultSizeValidation(t *testing.T) {
	h := newHarness(t, selectedSettings)

	h.command(t, "client-1", hub.CmdSetDefaultSize, hub.SetDefaultSizePayload{Size: -0.5})

	assert.Equal(t, 1, h.observers.countBroadcast(hub.FactError))
	assert.Zero(t, h.settings.saveCount())

	h.command(t, "client-1", hub.CmdSetDefaultSize, hub.SetDefaultSizePayload{Size: 0.05})
	current, _ := h.settings.Load()
	assert.Equal(t, 0.05, current.DefaultOrderSize)
}

func TestSelectChannelsPersistsAndReplaysBacklog(t *testing.T) {
	h := newHarness(t, selectedSettings)
	require.NoError(t, h.src.Connect(context.Background()))
	h.src.SetBacklog("-1001234567890", []model.Message{
		{ChannelID: "-1001234567890", ProviderMessageID: "90", Text: "yesterday's call", Timestamp: time.Now().Add(-24 * time.Hour)},
	})

	h.command(t, "client-1", hub.CmdSelectChannels, hub.SelectChannelsPayload{ChannelIDs: []string{"-1001234567890"}})

	assert.Equal(t, 1, h.observers.countBroadcast(hub.FactChannelSaved))
	current, _ := h.settings.Load()
	assert.Equal(t, []string{"-1001234567890"}, current.SelectedChannelIDs)

	// Backlog arrives through intake as historical traffic and is never
	// classified.
	assert.Eventually(t, func() bool {
		fact, ok := h.observers.lastBroadcast(hub.FactMessageUpdated)
		if !ok {
			return false
		}
		return fact.Data.(*model.Message).Verdict == model.VerdictSkipped
	}, 2*time.Second, 10*time.Millisecond)
	h.classifier.AssertNotCalled(t, "Classify", mock.Anything, mock.Anything)
}

func TestManualOrderValidation(t *testing.T) {
	h := newHarness(t, selectedSettings)

	h.command(t, "client-1", hub.CmdPlaceOrder, hub.PlaceOrderPayload{Symbol: "", Direction: "buy", Volume: 0.1})
	h.command(t, "client-1", hub.CmdPlaceOrder, hub.PlaceOrderPayload{Symbol: "XAUUSD", Direction: "sideways", Volume: 0.1})
	h.command(t, "client-1", hub.CmdPlaceOrder, hub.PlaceOrderPayload{Symbol: "XAUUSD", Direction: "buy", Volume: 0})

	assert.Equal(t, 3, h.observers.countBroadcast(hub.FactError))
	h.gateway.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)
}

func TestManualOrderDispatch(t *testing.T) {
	h := newHarness(t, selectedSettings)
	h.gateway.On("PlaceOrder", mock.Anything, mock.MatchedBy(func(req gateway.OrderRequest) bool {
		return req.Symbol == "XAUUSD" && req.Direction == model.DirectionSell
	})).Return(gateway.OrderResult{Success: true, OrderID: "7010"}, nil).Once()

	h.command(t, "client-1", hub.CmdPlaceOrder, hub.PlaceOrderPayload{Symbol: "xau/usd", Direction: "short", Volume: 0.1})

	assert.Eventually(t, func() bool {
		return h.observers.countBroadcast(hub.FactTradeResult) == 1
	}, 2*time.Second, 10*time.Millisecond)
	h.gateway.AssertExpectations(t)
}

func TestClosePositionBroadcastsFact(t *testing.T) {
	h := newHarness(t, selectedSettings)
	h.gateway.On("ClosePosition", mock.Anything, "42").
		Return(gateway.OrderResult{Success: true, OrderID: "7011"}, nil).Once()

	h.command(t, "client-1", hub.CmdClosePosition, hub.PositionRefPayload{PositionID: "42"})

	assert.Eventually(t, func() bool {
		return h.observers.countBroadcast(hub.FactPositionClosed) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestModifyPositionRequiresLevels(t *testing.T) {
	h := newHarness(t, selectedSettings)

	h.command(t, "client-1", hub.CmdModifyPosition, hub.ModifyPositionPayload{PositionID: "42"})

	assert.Equal(t, 1, h.observers.countBroadcast(hub.FactError))
	h.gateway.AssertNotCalled(t, "ModifyPosition", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestObserverLifecycleGatesSweeps(t *testing.T) {
	h := newHarness(t, selectedSettings)

	require.NoError(t, h.sendSync(t, EvtObserverJoined, ObserverPayload{ClientID: "client-1"}))
	resumes, pauses := h.sweep.counts()
	assert.Equal(t, 1, resumes)
	assert.Zero(t, pauses)

	require.NoError(t, h.sendSync(t, EvtObserverJoined, ObserverPayload{ClientID: "client-2"}))
	resumes, _ = h.sweep.counts()
	assert.Equal(t, 1, resumes, "second observer must not resume again")

	require.NoError(t, h.sendSync(t, EvtObserverLeft, ObserverPayload{ClientID: "client-1"}))
	_, pauses = h.sweep.counts()
	assert.Zero(t, pauses)

	require.NoError(t, h.sendSync(t, EvtObserverLeft, ObserverPayload{ClientID: "client-2"}))
	_, pauses = h.sweep.counts()
	assert.Equal(t, 1, pauses, "last observer leaving pauses sweeps")
}

func TestObserverJoinReplaysFullState(t *testing.T) {
	h := newHarness(t, selectedSettings)
	sig := detectSignal(t, h, "30")
	require.NoError(t, h.sendSync(t, EvtAccountSnapshot, AccountPayload{
		Snapshot: model.AccountSnapshot{Balance: 10000, Equity: 10100},
	}))

	require.NoError(t, h.sendSync(t, EvtObserverJoined, ObserverPayload{ClientID: "late-comer"}))

	types := h.observers.directTypes("late-comer")
	assert.Contains(t, types, hub.FactSettings)
	assert.Contains(t, types, hub.FactSourceStatus)
	assert.Contains(t, types, hub.FactAccount)
	assert.Contains(t, types, hub.FactNewMessage)
	assert.Contains(t, types, hub.FactSignalDetected)
	assert.Equal(t, []string{"late-comer"}, h.observers.live)

	got, ok := h.router.signals.Get(sig.ID)
	require.True(t, ok)
	assert.Equal(t, model.SignalPending, got.Status)
}

func TestSweepResultsUpdateStateAndBroadcast(t *testing.T) {
	h := newHarness(t, selectedSettings)

	require.NoError(t, h.sendSync(t, EvtQuotes, QuotesPayload{
		Quotes: []model.MarketQuote{{Symbol: "XAUUSD", Bid: 2031.2, Ask: 2031.6}},
	}))
	require.NoError(t, h.sendSync(t, EvtTradeHistory, TradeHistoryPayload{
		Trades: []model.HistoricalTrade{{ID: "t1", Symbol: "XAUUSD", Profit: 55}},
	}))

	assert.Equal(t, 1, h.observers.countBroadcast(hub.FactQuotes))
	assert.Equal(t, 1, h.observers.countBroadcast(hub.FactTradeHistory))

	require.NoError(t, h.sendSync(t, EvtObserverJoined, ObserverPayload{ClientID: "viewer"}))
	types := h.observers.directTypes("viewer")
	assert.Contains(t, types, hub.FactQuotes)
	assert.Contains(t, types, hub.FactTradeHistory)
}

func TestSourceStatusBroadcasts(t *testing.T) {
	h := newHarness(t, selectedSettings)

	require.NoError(t, h.sendSync(t, EvtSourceEvent, source.Event{Type: source.EventStatus, Status: source.StatusConnected}))
	require.NoError(t, h.sendSync(t, EvtSourceEvent, source.Event{Type: source.EventStatus, Status: source.StatusDisconnected}))

	assert.Equal(t, 2, h.observers.countBroadcast(hub.FactSourceStatus))
	assert.Equal(t, 1, h.observers.countBroadcast(hub.FactSourceDisconnected))
}

func TestAuthEventsBroadcast(t *testing.T) {
	h := newHarness(t, selectedSettings)

	require.NoError(t, h.sendSync(t, EvtSourceEvent, source.Event{Type: source.EventStatus, Status: source.StatusNeedsAuth}))
	require.NoError(t, h.sendSync(t, EvtSourceEvent, source.Event{Type: source.EventAuthStep, AuthStep: source.AuthStepCode}))
	require.NoError(t, h.sendSync(t, EvtSourceEvent, source.Event{Type: source.EventAuthError, AuthError: "invalid code"}))

	assert.Equal(t, 1, h.observers.countBroadcast(hub.FactAuthRequired))
	assert.Equal(t, 1, h.observers.countBroadcast(hub.FactAuthError))
	// The failed step is announced once and re-emitted after the error so
	// the observer can retry it.
	assert.Equal(t, 2, h.observers.countBroadcast(hub.FactAuthStep))
}
