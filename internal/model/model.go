// Package model defines the domain records shared across the service:
// inbound chat messages, derived trading signals, channels, and the
// read-only projections relayed from the execution gateway.
package model

import (
	"strings"
	"time"
)

// Verdict is the terminal classification state attached to a message.
type Verdict string

const (
	VerdictAnalyzing   Verdict = "analyzing"
	VerdictValidSignal Verdict = "valid_signal"
	VerdictNoSignal    Verdict = "no_signal"
	VerdictSkipped     Verdict = "skipped"
	VerdictError       Verdict = "error"
)

// Direction is the polar side of a signal or order.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// ParseDirection normalizes free-form side text into a Direction.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "long":
		return DirectionBuy, true
	case "sell", "short":
		return DirectionSell, true
	default:
		return "", false
	}
}

// Message is one inbound chat message. Identity is (ChannelID,
// ProviderMessageID), unique within a channel. The Verdict fields are
// attached after classification; everything else is immutable.
type Message struct {
	ChannelID         string    `json:"channelId"`
	ProviderMessageID string    `json:"messageId"`
	Text              string    `json:"text"`
	Sender            string    `json:"sender,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
	IsRealtime        bool      `json:"isRealtime"`

	Verdict       Verdict `json:"verdict,omitempty"`
	VerdictDetail string  `json:"verdictDetail,omitempty"`
	ModelLabel    string  `json:"modelLabel,omitempty"`
}

// Key returns the composite dedup key for the message.
func (m Message) Key() string {
	return m.ChannelID + ":" + m.ProviderMessageID
}

// SignalStatus is the lifecycle state of a signal. Transitions are monotone:
// pending may move to exactly one terminal state and never back.
type SignalStatus string

const (
	SignalPending   SignalStatus = "pending"
	SignalExecuted  SignalStatus = "executed"
	SignalDismissed SignalStatus = "dismissed"
	SignalFailed    SignalStatus = "failed"
)

// Terminal reports whether the status permits no further transitions.
func (s SignalStatus) Terminal() bool {
	return s == SignalExecuted || s == SignalDismissed || s == SignalFailed
}

// Signal is a structured trading proposal derived from a message.
type Signal struct {
	ID            string       `json:"id"`
	ChannelID     string       `json:"channelId"`
	MessageID     string       `json:"messageId"`
	Symbol        string       `json:"symbol"`
	Direction     Direction    `json:"direction"`
	Entry         *float64     `json:"entry,omitempty"`
	Stop          *float64     `json:"stop,omitempty"`
	Targets       []float64    `json:"targets,omitempty"`
	Confidence    float64      `json:"confidence"`
	CreatedAt     time.Time    `json:"createdAt"`
	Status        SignalStatus `json:"status"`
	FailureReason string       `json:"failureReason,omitempty"`
	Rationale     string       `json:"rationale,omitempty"`
	RawText       string       `json:"rawText"`
}

// FirstTarget returns the first take-profit level, if any.
func (s *Signal) FirstTarget() *float64 {
	if s == nil || len(s.Targets) == 0 {
		return nil
	}
	t := s.Targets[0]
	return &t
}

// Channel is read-only reference data sourced from the message provider.
type Channel struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Handle       string `json:"handle,omitempty"`
	Participants int    `json:"participants,omitempty"`
	Private      bool   `json:"private"`
}

// AccountSnapshot is a point-in-time read of the trading account.
type AccountSnapshot struct {
	Balance    float64   `json:"balance"`
	Equity     float64   `json:"equity"`
	Margin     float64   `json:"margin"`
	FreeMargin float64   `json:"freeMargin"`
	Currency   string    `json:"currency,omitempty"`
	At         time.Time `json:"at"`
}

// Position is one open position as reported by the gateway.
type Position struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Direction    Direction `json:"direction"`
	Volume       float64   `json:"volume"`
	OpenPrice    float64   `json:"openPrice"`
	CurrentPrice float64   `json:"currentPrice"`
	Stop         float64   `json:"stop,omitempty"`
	Target       float64   `json:"target,omitempty"`
	Profit       float64   `json:"profit"`
	OpenedAt     time.Time `json:"openedAt"`
}

// MarketQuote is the current bid/ask for one symbol.
type MarketQuote struct {
	Symbol string    `json:"symbol"`
	Bid    float64   `json:"bid"`
	Ask    float64   `json:"ask"`
	At     time.Time `json:"at"`
}

// HistoricalTrade is one settled trade from the gateway's history.
type HistoricalTrade struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	Volume     float64   `json:"volume"`
	OpenPrice  float64   `json:"openPrice"`
	ClosePrice float64   `json:"closePrice"`
	Profit     float64   `json:"profit"`
	OpenedAt   time.Time `json:"openedAt"`
	ClosedAt   time.Time `json:"closedAt"`
}

// Settings is the single durable operator record.
type Settings struct {
	AutoTradeEnabled   bool     `json:"autoTradeEnabled"`
	SelectedChannelIDs []string `json:"selectedChannelIds"`
	DefaultOrderSize   float64  `json:"defaultOrderSize"`
}

// DefaultSettings returns the settings used before any operator change.
func DefaultSettings() Settings {
	return Settings{
		AutoTradeEnabled:   false,
		SelectedChannelIDs: nil,
		DefaultOrderSize:   0.01,
	}
}
