// Package hub fans router state out to websocket observers and feeds
// their commands back in. The wire protocol is a closed set of tagged
// frames in both directions; frames with an unknown tag are rejected.
package hub

import "encoding/json"

type FactType string

const (
	FactSourceStatus       FactType = "source_status"
	FactChannels           FactType = "channels"
	FactNewMessage         FactType = "new_message"
	FactMessageUpdated     FactType = "message_updated"
	FactSignalDetected     FactType = "signal_detected"
	FactSignalUpdated      FactType = "signal_updated"
	FactAccount            FactType = "account"
	FactPositions          FactType = "positions"
	FactQuotes             FactType = "quotes"
	FactTradeHistory       FactType = "trade_history"
	FactError              FactType = "error"
	FactAuthRequired       FactType = "auth_required"
	FactAuthStep           FactType = "auth_step"
	FactAuthError          FactType = "auth_error"
	FactSettings           FactType = "settings"
	FactChannelSaved       FactType = "channel_saved"
	FactAutoTradeUpdated   FactType = "auto_trade_updated"
	FactDefaultSizeUpdated FactType = "default_size_updated"
	FactSourceDisconnected FactType = "source_disconnected"
	FactAutoTradeExecuted  FactType = "auto_trade_executed"
	FactTradeResult        FactType = "trade_result"
	FactPositionClosed     FactType = "position_closed"
)

// Fact is one outbound frame. Data carries the payload for the tag and
// is omitted for payload-free facts.
type Fact struct {
	Type FactType `json:"type"`
	Data any      `json:"data,omitempty"`
}

type CommandType string

const (
	CmdConnectSource    CommandType = "connect_source"
	CmdDisconnectSource CommandType = "disconnect_source"
	CmdSubmitPhone      CommandType = "submit_phone"
	CmdSubmitCode       CommandType = "submit_code"
	CmdSubmitPassword   CommandType = "submit_password"
	CmdListChannels     CommandType = "list_channels"
	CmdSelectChannels   CommandType = "select_channels"
	CmdSetAutoTrade     CommandType = "set_auto_trade"
	CmdSetDefaultSize   CommandType = "set_default_size"
	CmdExecuteSignal    CommandType = "execute_signal"
	CmdDismissSignal    CommandType = "dismiss_signal"
	CmdPlaceOrder       CommandType = "place_order"
	CmdClosePosition    CommandType = "close_position"
	CmdModifyPosition   CommandType = "modify_position"
)

var knownCommands = map[CommandType]bool{
	CmdConnectSource:    true,
	CmdDisconnectSource: true,
	CmdSubmitPhone:      true,
	CmdSubmitCode:       true,
	CmdSubmitPassword:   true,
	CmdListChannels:     true,
	CmdSelectChannels:   true,
	CmdSetAutoTrade:     true,
	CmdSetDefaultSize:   true,
	CmdExecuteSignal:    true,
	CmdDismissSignal:    true,
	CmdPlaceOrder:       true,
	CmdClosePosition:    true,
	CmdModifyPosition:   true,
}

// Command is one inbound frame.
type Command struct {
	Type CommandType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Inbound payloads, one per command that carries data.

type SubmitValuePayload struct {
	Value string `json:"value"`
}

type SelectChannelsPayload struct {
	ChannelIDs []string `json:"channel_ids"`
}

type SetAutoTradePayload struct {
	Enabled bool `json:"enabled"`
}

type SetDefaultSizePayload struct {
	Size float64 `json:"size"`
}

type SignalRefPayload struct {
	SignalID string `json:"signal_id"`
}

// ExecuteSignalPayload executes a pending signal, optionally overriding
// the volume and exit levels derived from the signal itself.
type ExecuteSignalPayload struct {
	SignalID string   `json:"signal_id"`
	Volume   *float64 `json:"volume,omitempty"`
	Stop     *float64 `json:"stop,omitempty"`
	Target   *float64 `json:"target,omitempty"`
}

type PlaceOrderPayload struct {
	Symbol    string   `json:"symbol"`
	Direction string   `json:"direction"`
	Volume    float64  `json:"volume"`
	Stop      *float64 `json:"stop,omitempty"`
	Target    *float64 `json:"target,omitempty"`
}

type PositionRefPayload struct {
	PositionID string `json:"position_id"`
}

type ModifyPositionPayload struct {
	PositionID string   `json:"position_id"`
	Stop       *float64 `json:"stop,omitempty"`
	Target     *float64 `json:"target,omitempty"`
}

// ErrorPayload is the data of an error fact.
type ErrorPayload struct {
	Scope   string `json:"scope"`
	Message string `json:"message"`
}
