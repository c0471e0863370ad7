package router

import (
	"context"
	"encoding/json"
	"fmt"

	"sigrelay/internal/gateway"
	"sigrelay/internal/hub"
	"sigrelay/internal/logger"
	"sigrelay/internal/model"
	"sigrelay/internal/pkg/trading"
)

// orderVolume applies the account's lot constraints to the configured
// default size.
func (r *Router) orderVolume() float64 {
	return trading.NormalizeVolume(
		r.state.settings.DefaultOrderSize,
		r.trading.VolumeStep,
		r.trading.VolumeMin,
		r.trading.VolumeMax,
	)
}

// orderOverrides carries the optional per-execution adjustments an
// observer may attach to an execute command.
type orderOverrides struct {
	Volume *float64
	Stop   *float64
	Target *float64
}

// dispatchSignalOrder submits the signal's order off-loop. clientID is
// empty for auto trades, which never carry overrides.
func (r *Router) dispatchSignalOrder(sig *model.Signal, clientID string, o orderOverrides) {
	volume := r.orderVolume()
	if o.Volume != nil {
		volume = trading.NormalizeVolume(*o.Volume, r.trading.VolumeStep, r.trading.VolumeMin, r.trading.VolumeMax)
	}
	stop := sig.Stop
	if o.Stop != nil {
		stop = o.Stop
	}
	target := sig.FirstTarget()
	if o.Target != nil {
		target = o.Target
	}
	req := gateway.OrderRequest{
		Symbol:    sig.Symbol,
		Direction: sig.Direction,
		Volume:    volume,
		Stop:      stop,
		Target:    target,
		Comment:   "signal:" + sig.ID,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), gatewayCallTimeout)
		defer cancel()

		out := OrderResultPayload{
			Action:   OrderActionOpen,
			SignalID: sig.ID,
			ClientID: clientID,
			Symbol:   req.Symbol,
		}
		res, err := r.gateway.PlaceOrder(ctx, req)
		if err != nil {
			out.Error = err.Error()
		} else {
			out.Result = res
		}
		r.post(EvtOrderResult, out)
	}()
}

func (r *Router) dispatchManualOrder(req gateway.OrderRequest, clientID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), gatewayCallTimeout)
		defer cancel()

		out := OrderResultPayload{
			Action:   OrderActionOpen,
			ClientID: clientID,
			Symbol:   req.Symbol,
		}
		res, err := r.gateway.PlaceOrder(ctx, req)
		if err != nil {
			out.Error = err.Error()
		} else {
			out.Result = res
		}
		r.post(EvtOrderResult, out)
	}()
}

func (r *Router) dispatchClose(positionID, clientID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), gatewayCallTimeout)
		defer cancel()

		out := OrderResultPayload{
			Action:     OrderActionClose,
			PositionID: positionID,
			ClientID:   clientID,
		}
		res, err := r.gateway.ClosePosition(ctx, positionID)
		if err != nil {
			out.Error = err.Error()
		} else {
			out.Result = res
		}
		r.post(EvtOrderResult, out)
	}()
}

func (r *Router) dispatchModify(positionID string, stop, target *float64, clientID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), gatewayCallTimeout)
		defer cancel()

		out := OrderResultPayload{
			Action:     OrderActionModify,
			PositionID: positionID,
			ClientID:   clientID,
		}
		res, err := r.gateway.ModifyPosition(ctx, positionID, stop, target)
		if err != nil {
			out.Error = err.Error()
		} else {
			out.Result = res
		}
		r.post(EvtOrderResult, out)
	}()
}

func (r *Router) handleOrderResult(payload []byte) error {
	var p OrderResultPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("unmarshal order result: %w", err)
	}

	succeeded := p.Error == "" && p.Result.Success

	switch p.Action {
	case OrderActionOpen:
		if p.SignalID != "" {
			settled := r.settleSignal(p.SignalID, succeeded, failureText(p))
			if settled && succeeded && p.ClientID == "" {
				r.observers.Broadcast(hub.Fact{Type: hub.FactAutoTradeExecuted, Data: p})
			}
		}
		r.observers.Broadcast(hub.Fact{Type: hub.FactTradeResult, Data: p})
	case OrderActionClose:
		if succeeded {
			r.observers.Broadcast(hub.Fact{Type: hub.FactPositionClosed, Data: p})
		} else {
			r.observers.Broadcast(hub.Fact{Type: hub.FactTradeResult, Data: p})
		}
	case OrderActionModify:
		r.observers.Broadcast(hub.Fact{Type: hub.FactTradeResult, Data: p})
	default:
		return fmt.Errorf("order result with unknown action %q", p.Action)
	}

	if !succeeded {
		r.observers.Broadcast(hub.Fact{
			Type: hub.FactError,
			Data: hub.ErrorPayload{Scope: "gateway", Message: failureText(p)},
		})
	}
	if succeeded {
		r.refreshGatewayState()
	}
	return nil
}

// settleSignal moves a pending signal to its terminal state and reports
// whether the transition applied. A signal that already settled, for
// example dismissed while the order was in flight, keeps its first
// outcome.
func (r *Router) settleSignal(signalID string, succeeded bool, reason string) bool {
	sig, ok := r.signals.Get(signalID)
	if !ok {
		logger.Warnf("order result for unknown signal %s", signalID)
		return false
	}
	if sig.Status.Terminal() {
		logger.Infof("signal %s already %s, order outcome ignored", sig.ID, sig.Status)
		return false
	}
	if succeeded {
		sig.Status = model.SignalExecuted
	} else {
		sig.Status = model.SignalFailed
		sig.FailureReason = reason
	}
	r.observers.Broadcast(hub.Fact{Type: hub.FactSignalUpdated, Data: sig})
	return true
}

func failureText(p OrderResultPayload) string {
	if p.Error != "" {
		return p.Error
	}
	if !p.Result.Success {
		if p.Result.Message != "" {
			return p.Result.Message
		}
		return "order rejected"
	}
	return ""
}

// refreshGatewayState re-reads account and positions after a trade so
// observers see the effect without waiting for the next sweep.
func (r *Router) refreshGatewayState() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), gatewayCallTimeout)
		defer cancel()

		if snap, err := r.gateway.AccountSnapshot(ctx); err == nil {
			r.post(EvtAccountSnapshot, AccountPayload{Snapshot: snap})
		} else {
			logger.Warnf("post-trade account refresh failed: %v", err)
		}
		if positions, err := r.gateway.Positions(ctx); err == nil {
			r.post(EvtPositions, PositionsPayload{Positions: positions})
		} else {
			logger.Warnf("post-trade position refresh failed: %v", err)
		}
	}()
}
