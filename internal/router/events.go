package router

import (
	"encoding/json"
	"fmt"
	"time"

	"sigrelay/internal/gateway"
	"sigrelay/internal/hub"
	"sigrelay/internal/logger"
	"sigrelay/internal/model"
)

type EventType string

const (
	EvtSourceEvent     EventType = "source_event"
	EvtClassifierDone  EventType = "classifier_done"
	EvtOrderResult     EventType = "order_result"
	EvtChannelsListed  EventType = "channels_listed"
	EvtAccountSnapshot EventType = "account_snapshot"
	EvtPositions       EventType = "positions"
	EvtQuotes          EventType = "quotes"
	EvtTradeHistory    EventType = "trade_history"
	EvtAsyncError      EventType = "async_error"
	EvtObserverJoined  EventType = "observer_joined"
	EvtObserverLeft    EventType = "observer_left"
	EvtObserverCommand EventType = "observer_command"
)

// EventEnvelope is one unit of work for the router loop. Payload holds
// the JSON-encoded payload struct for the Type. ReplyCh, when set, is
// answered with the handling error and closed.
type EventEnvelope struct {
	ID        string
	Type      EventType
	Payload   json.RawMessage
	CreatedAt time.Time
	ReplyCh   chan error
}

type OrderAction string

const (
	OrderActionOpen   OrderAction = "open"
	OrderActionClose  OrderAction = "close"
	OrderActionModify OrderAction = "modify"
)

// ClassifierDonePayload reports the outcome of one classification call.
type ClassifierDonePayload struct {
	MessageKey string           `json:"messageKey"`
	Result     *classifierBrief `json:"result,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// classifierBrief mirrors classifier.Result for loop transport.
type classifierBrief struct {
	IsSignal   bool      `json:"isSignal"`
	Confidence float64   `json:"confidence"`
	Symbol     string    `json:"symbol,omitempty"`
	Direction  string    `json:"direction,omitempty"`
	Entry      *float64  `json:"entry,omitempty"`
	Stop       *float64  `json:"stop,omitempty"`
	Targets    []float64 `json:"targets,omitempty"`
	Rationale  string    `json:"rationale,omitempty"`
	Model      string    `json:"model,omitempty"`
}

// OrderResultPayload reports the outcome of one gateway call dispatched
// off-loop. ClientID names the observer that issued the command, empty
// for auto trades.
type OrderResultPayload struct {
	Action     OrderAction         `json:"action"`
	SignalID   string              `json:"signalId,omitempty"`
	PositionID string              `json:"positionId,omitempty"`
	ClientID   string              `json:"clientId,omitempty"`
	Symbol     string              `json:"symbol,omitempty"`
	Result     gateway.OrderResult `json:"result"`
	Error      string              `json:"error,omitempty"`
}

type ChannelsListedPayload struct {
	Channels []model.Channel `json:"channels"`
}

type AccountPayload struct {
	Snapshot model.AccountSnapshot `json:"snapshot"`
}

type PositionsPayload struct {
	Positions []model.Position `json:"positions"`
}

type QuotesPayload struct {
	Quotes []model.MarketQuote `json:"quotes"`
}

type TradeHistoryPayload struct {
	Trades []model.HistoricalTrade `json:"trades"`
}

// AsyncErrorPayload surfaces a failure from off-loop work. With a
// ClientID the error goes only to that observer, otherwise it is
// broadcast.
type AsyncErrorPayload struct {
	ClientID string `json:"clientId,omitempty"`
	Scope    string `json:"scope"`
	Message  string `json:"message"`
}

type ObserverPayload struct {
	ClientID string `json:"clientId"`
}

type ObserverCommandPayload struct {
	ClientID string      `json:"clientId"`
	Command  hub.Command `json:"command"`
}

func newEventID(prefix string) string {
	if prefix == "" {
		prefix = "evt"
	}
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

// post marshals the payload and queues it on the loop. Marshal failures
// are programming errors and only logged.
func (r *Router) post(typ EventType, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Errorf("encode %s payload: %v", typ, err)
		return
	}
	if err := r.Send(EventEnvelope{
		ID:        newEventID(string(typ)),
		Type:      typ,
		Payload:   data,
		CreatedAt: time.Now(),
	}); err != nil {
		// Stop raced the post; the loop is gone and the event is moot.
		return
	}
}
