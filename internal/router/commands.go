package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"sigrelay/internal/gateway"
	"sigrelay/internal/hub"
	"sigrelay/internal/logger"
	"sigrelay/internal/model"
	"sigrelay/internal/pkg/symbol"
	"sigrelay/internal/pkg/trading"
	"sigrelay/internal/source"
)

func (r *Router) handleObserverCommand(payload []byte) error {
	var p ObserverCommandPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("unmarshal observer command: %w", err)
	}
	cmd := p.Command

	switch cmd.Type {
	case hub.CmdConnectSource:
		return r.cmdConnectSource(p.ClientID)
	case hub.CmdDisconnectSource:
		return r.cmdDisconnectSource(p.ClientID)
	case hub.CmdSubmitPhone, hub.CmdSubmitCode, hub.CmdSubmitPassword:
		return r.cmdSubmitCredential(p.ClientID, cmd)
	case hub.CmdListChannels:
		return r.cmdListChannels(p.ClientID)
	case hub.CmdSelectChannels:
		return r.cmdSelectChannels(p.ClientID, cmd.Data)
	case hub.CmdSetAutoTrade:
		return r.cmdSetAutoTrade(p.ClientID, cmd.Data)
	case hub.CmdSetDefaultSize:
		return r.cmdSetDefaultSize(p.ClientID, cmd.Data)
	case hub.CmdExecuteSignal:
		return r.cmdExecuteSignal(p.ClientID, cmd.Data)
	case hub.CmdDismissSignal:
		return r.cmdDismissSignal(p.ClientID, cmd.Data)
	case hub.CmdPlaceOrder:
		return r.cmdPlaceOrder(p.ClientID, cmd.Data)
	case hub.CmdClosePosition:
		return r.cmdClosePosition(p.ClientID, cmd.Data)
	case hub.CmdModifyPosition:
		return r.cmdModifyPosition(p.ClientID, cmd.Data)
	default:
		return fmt.Errorf("command %q reached loop without handler", cmd.Type)
	}
}

// rejectCommand refuses a bad command with an error fact and no state
// mutation.
func (r *Router) rejectCommand(clientID, scope, msg string) error {
	logger.Warnf("rejecting %s command from %s: %s", scope, clientID, msg)
	r.observers.Broadcast(hub.Fact{
		Type: hub.FactError,
		Data: hub.ErrorPayload{Scope: scope, Message: msg},
	})
	return nil
}

func (r *Router) cmdConnectSource(clientID string) error {
	switch r.state.sourceStatus {
	case source.StatusConnected, source.StatusConnecting:
		return r.rejectCommand(clientID, "source", "source already "+string(r.state.sourceStatus))
	}
	go func() {
		if err := r.src.Connect(context.Background()); err != nil {
			r.post(EvtAsyncError, AsyncErrorPayload{ClientID: clientID, Scope: "source", Message: err.Error()})
		}
	}()
	return nil
}

func (r *Router) cmdDisconnectSource(clientID string) error {
	if err := r.src.Disconnect(); err != nil {
		return r.rejectCommand(clientID, "source", err.Error())
	}
	return nil
}

func (r *Router) cmdSubmitCredential(clientID string, cmd hub.Command) error {
	var p hub.SubmitValuePayload
	if err := json.Unmarshal(cmd.Data, &p); err != nil {
		return r.rejectCommand(clientID, "auth", "malformed payload: "+err.Error())
	}
	if strings.TrimSpace(p.Value) == "" {
		return r.rejectCommand(clientID, "auth", "value must not be empty")
	}
	submit := r.src.SubmitPhone
	switch cmd.Type {
	case hub.CmdSubmitCode:
		submit = r.src.SubmitCode
	case hub.CmdSubmitPassword:
		submit = r.src.SubmitPassword
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), gatewayCallTimeout)
		defer cancel()
		if err := submit(ctx, p.Value); err != nil {
			r.post(EvtAsyncError, AsyncErrorPayload{ClientID: clientID, Scope: "auth", Message: err.Error()})
		}
	}()
	return nil
}

func (r *Router) cmdListChannels(clientID string) error {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), gatewayCallTimeout)
		defer cancel()
		channels, err := r.src.ListChannels(ctx)
		if err != nil {
			r.post(EvtAsyncError, AsyncErrorPayload{ClientID: clientID, Scope: "source", Message: err.Error()})
			return
		}
		r.post(EvtChannelsListed, ChannelsListedPayload{Channels: channels})
	}()
	return nil
}

func (r *Router) handleChannelsListed(payload []byte) error {
	var p ChannelsListedPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("unmarshal channel list: %w", err)
	}
	r.state.channels = p.Channels
	r.observers.Broadcast(hub.Fact{Type: hub.FactChannels, Data: p.Channels})
	return nil
}

// cmdSelectChannels applies the new selection immediately, persists it,
// then asks the source for backlog. Backlog re-enters through the
// normal intake pipeline as historical traffic.
func (r *Router) cmdSelectChannels(clientID string, data json.RawMessage) error {
	var p hub.SelectChannelsPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return r.rejectCommand(clientID, "channels", "malformed payload: "+err.Error())
	}
	for _, id := range p.ChannelIDs {
		if strings.TrimSpace(id) == "" {
			return r.rejectCommand(clientID, "channels", "channel ids must not be empty")
		}
	}

	r.state.settings.SelectedChannelIDs = p.ChannelIDs
	r.persistSettings(clientID)
	r.observers.Broadcast(hub.Fact{Type: hub.FactChannelSaved, Data: hub.SelectChannelsPayload{ChannelIDs: p.ChannelIDs}})
	r.observers.Broadcast(hub.Fact{Type: hub.FactSettings, Data: r.state.settings})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), gatewayCallTimeout)
		defer cancel()
		backlog, err := r.src.SelectChannels(ctx, p.ChannelIDs)
		if err != nil {
			r.post(EvtAsyncError, AsyncErrorPayload{ClientID: clientID, Scope: "channels", Message: err.Error()})
			return
		}
		for i := range backlog {
			msg := backlog[i]
			msg.IsRealtime = false
			r.post(EvtSourceEvent, source.Event{Type: source.EventMessage, Message: &msg})
		}
	}()
	return nil
}

func (r *Router) cmdSetAutoTrade(clientID string, data json.RawMessage) error {
	var p hub.SetAutoTradePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return r.rejectCommand(clientID, "settings", "malformed payload: "+err.Error())
	}
	r.state.settings.AutoTradeEnabled = p.Enabled
	r.persistSettings(clientID)
	r.observers.Broadcast(hub.Fact{Type: hub.FactAutoTradeUpdated, Data: hub.SetAutoTradePayload{Enabled: p.Enabled}})
	r.observers.Broadcast(hub.Fact{Type: hub.FactSettings, Data: r.state.settings})
	return nil
}

func (r *Router) cmdSetDefaultSize(clientID string, data json.RawMessage) error {
	var p hub.SetDefaultSizePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return r.rejectCommand(clientID, "settings", "malformed payload: "+err.Error())
	}
	if p.Size <= 0 {
		return r.rejectCommand(clientID, "settings", "order size must be positive")
	}
	r.state.settings.DefaultOrderSize = p.Size
	r.persistSettings(clientID)
	r.observers.Broadcast(hub.Fact{Type: hub.FactDefaultSizeUpdated, Data: hub.SetDefaultSizePayload{Size: p.Size}})
	r.observers.Broadcast(hub.Fact{Type: hub.FactSettings, Data: r.state.settings})
	return nil
}

// persistSettings saves the current settings record. A storage failure
// leaves the in-memory settings active and surfaces as an error fact.
func (r *Router) persistSettings(clientID string) {
	if err := r.settings.Save(r.state.settings); err != nil {
		logger.Errorf("persist settings for %s: %v", clientID, err)
		r.observers.Broadcast(hub.Fact{
			Type: hub.FactError,
			Data: hub.ErrorPayload{Scope: "settings", Message: "persist failed: " + err.Error()},
		})
	}
}

func (r *Router) cmdExecuteSignal(clientID string, data json.RawMessage) error {
	var p hub.ExecuteSignalPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return r.rejectCommand(clientID, "signal", "malformed payload: "+err.Error())
	}
	if p.Volume != nil && *p.Volume <= 0 {
		return r.rejectCommand(clientID, "signal", "volume must be positive")
	}
	sig, ok := r.signals.Get(p.SignalID)
	if !ok {
		return r.rejectCommand(clientID, "signal", "unknown signal "+p.SignalID)
	}
	if sig.Status.Terminal() {
		// Settled already, for example by a racing auto-trade. Report the
		// settled status back instead of an error.
		r.observers.SendTo(clientID, hub.Fact{Type: hub.FactSignalUpdated, Data: sig})
		return nil
	}
	r.dispatchSignalOrder(sig, clientID, orderOverrides{
		Volume: p.Volume,
		Stop:   p.Stop,
		Target: p.Target,
	})
	return nil
}

func (r *Router) cmdDismissSignal(clientID string, data json.RawMessage) error {
	var p hub.SignalRefPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return r.rejectCommand(clientID, "signal", "malformed payload: "+err.Error())
	}
	sig, ok := r.signals.Get(p.SignalID)
	if !ok {
		return r.rejectCommand(clientID, "signal", "unknown signal "+p.SignalID)
	}
	if sig.Status.Terminal() {
		r.observers.SendTo(clientID, hub.Fact{Type: hub.FactSignalUpdated, Data: sig})
		return nil
	}
	sig.Status = model.SignalDismissed
	r.observers.Broadcast(hub.Fact{Type: hub.FactSignalUpdated, Data: sig})
	return nil
}

func (r *Router) cmdPlaceOrder(clientID string, data json.RawMessage) error {
	var p hub.PlaceOrderPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return r.rejectCommand(clientID, "order", "malformed payload: "+err.Error())
	}
	sym := symbol.Normalize(p.Symbol)
	if sym == "" {
		return r.rejectCommand(clientID, "order", "symbol is required")
	}
	direction, ok := model.ParseDirection(p.Direction)
	if !ok {
		return r.rejectCommand(clientID, "order", fmt.Sprintf("unusable direction %q", p.Direction))
	}
	if p.Volume <= 0 {
		return r.rejectCommand(clientID, "order", "volume must be positive")
	}
	r.dispatchManualOrder(gateway.OrderRequest{
		Symbol:    sym,
		Direction: direction,
		Volume:    trading.NormalizeVolume(p.Volume, r.trading.VolumeStep, r.trading.VolumeMin, r.trading.VolumeMax),
		Stop:      p.Stop,
		Target:    p.Target,
		Comment:   "manual",
	}, clientID)
	return nil
}

func (r *Router) cmdClosePosition(clientID string, data json.RawMessage) error {
	var p hub.PositionRefPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return r.rejectCommand(clientID, "position", "malformed payload: "+err.Error())
	}
	if strings.TrimSpace(p.PositionID) == "" {
		return r.rejectCommand(clientID, "position", "position id is required")
	}
	r.dispatchClose(p.PositionID, clientID)
	return nil
}

func (r *Router) cmdModifyPosition(clientID string, data json.RawMessage) error {
	var p hub.ModifyPositionPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return r.rejectCommand(clientID, "position", "malformed payload: "+err.Error())
	}
	if strings.TrimSpace(p.PositionID) == "" {
		return r.rejectCommand(clientID, "position", "position id is required")
	}
	if p.Stop == nil && p.Target == nil {
		return r.rejectCommand(clientID, "position", "nothing to modify")
	}
	r.dispatchModify(p.PositionID, p.Stop, p.Target, clientID)
	return nil
}
