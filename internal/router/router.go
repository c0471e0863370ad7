// Package router is the coordination core of the service. A single
// event loop owns all mutable state; sources, classifier calls, gateway
// calls and observer commands all enter as events and every state
// change leaves as a broadcast fact.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"sigrelay/internal/classifier"
	"sigrelay/internal/config"
	"sigrelay/internal/gateway"
	"sigrelay/internal/hub"
	"sigrelay/internal/logger"
	"sigrelay/internal/model"
	"sigrelay/internal/source"
	"sigrelay/internal/store"
)

const (
	// autoTradeConfidenceFloor is the minimum classifier confidence,
	// inclusive, at which an enabled auto-trade policy fires.
	autoTradeConfidenceFloor = 0.70

	gatewayCallTimeout  = 30 * time.Second
	classifyCallTimeout = 90 * time.Second

	// messageLogCapacity bounds the message history replayed to newly
	// connected observers.
	messageLogCapacity = 500
)

// Observers is the outbound surface of the websocket hub.
type Observers interface {
	Broadcast(hub.Fact)
	SendTo(clientID string, f hub.Fact)
	SetLive(clientID string)
}

// SettingsStore persists the operator settings record.
type SettingsStore interface {
	Load() (model.Settings, error)
	Save(model.Settings) error
}

// SweepControl gates a periodic task on observer presence.
type SweepControl interface {
	Resume()
	Pause()
}

// viewState is everything replayed to an observer on connect. Owned by
// the loop goroutine.
type viewState struct {
	sourceStatus source.Status
	authStep     source.AuthStep
	channels     []model.Channel
	settings     model.Settings

	messages []*model.Message
	byKey    map[string]*model.Message

	account   *model.AccountSnapshot
	positions []model.Position
	quotes    []model.MarketQuote
	history   []model.HistoricalTrade
}

func newViewState(settings model.Settings) *viewState {
	return &viewState{
		sourceStatus: source.StatusDisconnected,
		settings:     settings,
		byKey:        make(map[string]*model.Message),
	}
}

func (v *viewState) appendMessage(m *model.Message) {
	if len(v.messages) >= messageLogCapacity {
		drop := v.messages[0]
		delete(v.byKey, drop.Key())
		v.messages = v.messages[1:]
	}
	v.messages = append(v.messages, m)
	v.byKey[m.Key()] = m
}

// Router is the event-loop actor.
type Router struct {
	src        source.Source
	classifier classifier.Classifier
	gateway    gateway.Gateway
	settings   SettingsStore
	observers  Observers
	sweeps     []SweepControl
	trading    config.TradingConfig

	msgCh  chan EventEnvelope
	stopCh chan struct{}
	wg     sync.WaitGroup

	state    *viewState
	signals  *store.SignalBook
	recent   *recencySet
	watchers int
}

type Deps struct {
	Source     source.Source
	Classifier classifier.Classifier
	Gateway    gateway.Gateway
	Settings   SettingsStore
	Observers  Observers
	Sweeps     []SweepControl
	Trading    config.TradingConfig
}

func New(deps Deps) (*Router, error) {
	if deps.Source == nil || deps.Classifier == nil || deps.Gateway == nil {
		return nil, fmt.Errorf("router requires source, classifier and gateway")
	}
	if deps.Settings == nil || deps.Observers == nil {
		return nil, fmt.Errorf("router requires settings store and observers")
	}
	settings, err := deps.Settings.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return &Router{
		src:        deps.Source,
		classifier: deps.Classifier,
		gateway:    deps.Gateway,
		settings:   deps.Settings,
		observers:  deps.Observers,
		sweeps:     deps.Sweeps,
		trading:    deps.Trading,
		msgCh:      make(chan EventEnvelope, 100),
		stopCh:     make(chan struct{}),
		state:      newViewState(settings),
		signals:    store.NewSignalBook(),
		recent:     newRecencySet(),
	}, nil
}

func (r *Router) Start() {
	r.wg.Add(1)
	go r.runLoop()
	r.wg.Add(1)
	go r.pumpSource()
}

func (r *Router) Stop() {
	close(r.stopCh)
	r.wg.Wait()
}

func (r *Router) Send(evt EventEnvelope) error {
	select {
	case r.msgCh <- evt:
		return nil
	case <-r.stopCh:
		return fmt.Errorf("router is stopped")
	}
}

// SendSync queues the event and waits for the loop to finish handling it.
func (r *Router) SendSync(ctx context.Context, evt EventEnvelope) error {
	if evt.ReplyCh == nil {
		evt.ReplyCh = make(chan error, 1)
	}
	if err := r.Send(evt); err != nil {
		return err
	}
	select {
	case err := <-evt.ReplyCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-r.stopCh:
		return fmt.Errorf("router stopped during sync call")
	}
}

// pumpSource forwards the source's event stream into the loop.
func (r *Router) pumpSource() {
	defer r.wg.Done()
	events := r.src.Events()
	for {
		select {
		case evt := <-events:
			r.post(EvtSourceEvent, evt)
		case <-r.stopCh:
			return
		}
	}
}

func (r *Router) runLoop() {
	defer r.wg.Done()
	logger.Infof("Router started")
	for {
		select {
		case evt := <-r.msgCh:
			r.handleEvent(evt)
		case <-r.stopCh:
			logger.Infof("Router stopping")
			return
		}
	}
}

func (r *Router) handleEvent(evt EventEnvelope) {
	var err error
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			logger.Errorf("Router panic handling event %s: %v", evt.Type, rec)
			debug.PrintStack()
			err = fmt.Errorf("panic: %v", rec)
		}
		if evt.ReplyCh != nil {
			evt.ReplyCh <- err
			close(evt.ReplyCh)
		}
		if dur := time.Since(start); dur > 100*time.Millisecond {
			logger.Warnf("Slow event %s took %v", evt.Type, dur)
		}
	}()

	switch evt.Type {
	case EvtSourceEvent:
		err = r.handleSourceEvent(evt.Payload)
	case EvtClassifierDone:
		err = r.handleClassifierDone(evt.Payload)
	case EvtOrderResult:
		err = r.handleOrderResult(evt.Payload)
	case EvtChannelsListed:
		err = r.handleChannelsListed(evt.Payload)
	case EvtAccountSnapshot:
		err = r.handleAccountSnapshot(evt.Payload)
	case EvtPositions:
		err = r.handlePositions(evt.Payload)
	case EvtQuotes:
		err = r.handleQuotes(evt.Payload)
	case EvtTradeHistory:
		err = r.handleTradeHistory(evt.Payload)
	case EvtAsyncError:
		err = r.handleAsyncError(evt.Payload)
	case EvtObserverJoined:
		err = r.handleObserverJoined(evt.Payload)
	case EvtObserverLeft:
		err = r.handleObserverLeft(evt.Payload)
	case EvtObserverCommand:
		err = r.handleObserverCommand(evt.Payload)
	default:
		logger.Warnf("No handler for event type: %s", evt.Type)
	}

	if err != nil {
		logger.Errorf("Router failed to handle %s: %v", evt.Type, err)
	}
}

// Hub wiring. These run on hub goroutines and only queue events.

func (r *Router) ObserverJoined(clientID string) {
	r.post(EvtObserverJoined, ObserverPayload{ClientID: clientID})
}

func (r *Router) ObserverLeft(clientID string) {
	r.post(EvtObserverLeft, ObserverPayload{ClientID: clientID})
}

func (r *Router) ObserverCommand(clientID string, cmd hub.Command) {
	r.post(EvtObserverCommand, ObserverCommandPayload{ClientID: clientID, Command: cmd})
}

func (r *Router) handleAsyncError(payload []byte) error {
	var p AsyncErrorPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("unmarshal async error: %w", err)
	}
	fact := hub.Fact{Type: hub.FactError, Data: hub.ErrorPayload{Scope: p.Scope, Message: p.Message}}
	if p.ClientID != "" {
		r.observers.SendTo(p.ClientID, fact)
		return nil
	}
	r.observers.Broadcast(fact)
	return nil
}

func (r *Router) handleObserverJoined(payload []byte) error {
	var p ObserverPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("unmarshal observer join: %w", err)
	}
	r.watchers++
	if r.watchers == 1 {
		for _, s := range r.sweeps {
			s.Resume()
		}
	}
	r.replayState(p.ClientID)
	r.observers.SetLive(p.ClientID)
	return nil
}

func (r *Router) handleObserverLeft(payload []byte) error {
	var p ObserverPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("unmarshal observer leave: %w", err)
	}
	if r.watchers > 0 {
		r.watchers--
	}
	if r.watchers == 0 {
		for _, s := range r.sweeps {
			s.Pause()
		}
	}
	return nil
}

// replayState sends the complete current state to one observer so it
// needs no request/response protocol to catch up.
func (r *Router) replayState(clientID string) {
	send := func(f hub.Fact) { r.observers.SendTo(clientID, f) }

	send(hub.Fact{Type: hub.FactSettings, Data: r.state.settings})
	send(hub.Fact{Type: hub.FactSourceStatus, Data: statusPayload{Status: r.state.sourceStatus}})
	if r.state.sourceStatus == source.StatusNeedsAuth {
		send(hub.Fact{Type: hub.FactAuthRequired, Data: authStepPayload{Step: r.state.authStep}})
	}
	if len(r.state.channels) > 0 {
		send(hub.Fact{Type: hub.FactChannels, Data: r.state.channels})
	}
	if r.state.account != nil {
		send(hub.Fact{Type: hub.FactAccount, Data: *r.state.account})
	}
	if r.state.positions != nil {
		send(hub.Fact{Type: hub.FactPositions, Data: r.state.positions})
	}
	if r.state.quotes != nil {
		send(hub.Fact{Type: hub.FactQuotes, Data: r.state.quotes})
	}
	if r.state.history != nil {
		send(hub.Fact{Type: hub.FactTradeHistory, Data: r.state.history})
	}
	for _, m := range r.state.messages {
		send(hub.Fact{Type: hub.FactNewMessage, Data: m})
	}
	for _, sig := range r.signals.All() {
		send(hub.Fact{Type: hub.FactSignalDetected, Data: sig})
	}
}

type statusPayload struct {
	Status source.Status `json:"status"`
}

type authStepPayload struct {
	Step source.AuthStep `json:"step"`
}
