package router

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sigrelay/internal/hub"
	"sigrelay/internal/logger"
	"sigrelay/internal/model"
)

// FastSweep polls account, positions and quotes. It runs as a scheduler
// task off-loop and reports through events; partial failures surface as
// error facts without blocking the rest of the sweep.
func (r *Router) FastSweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, gatewayCallTimeout)
	defer cancel()

	if snap, err := r.gateway.AccountSnapshot(ctx); err == nil {
		r.post(EvtAccountSnapshot, AccountPayload{Snapshot: snap})
	} else {
		r.sweepError("account", err)
	}
	if positions, err := r.gateway.Positions(ctx); err == nil {
		r.post(EvtPositions, PositionsPayload{Positions: positions})
	} else {
		r.sweepError("positions", err)
	}
	if quotes, err := r.gateway.Quotes(ctx); err == nil {
		r.post(EvtQuotes, QuotesPayload{Quotes: quotes})
	} else {
		r.sweepError("quotes", err)
	}
}

// SlowSweep polls trade history over the configured lookback window.
func (r *Router) SlowSweep(ctx context.Context, lookback time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, gatewayCallTimeout)
	defer cancel()

	trades, err := r.gateway.TradeHistory(ctx, lookback)
	if err != nil {
		r.sweepError("history", err)
		return
	}
	r.post(EvtTradeHistory, TradeHistoryPayload{Trades: trades})
}

func (r *Router) sweepError(scope string, err error) {
	logger.Warnf("gateway sweep %s failed: %v", scope, err)
	r.post(EvtAsyncError, AsyncErrorPayload{Scope: "gateway:" + scope, Message: err.Error()})
}

func (r *Router) handleAccountSnapshot(payload []byte) error {
	var p AccountPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("unmarshal account snapshot: %w", err)
	}
	r.state.account = &p.Snapshot
	r.observers.Broadcast(hub.Fact{Type: hub.FactAccount, Data: p.Snapshot})
	return nil
}

func (r *Router) handlePositions(payload []byte) error {
	var p PositionsPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("unmarshal positions: %w", err)
	}
	if p.Positions == nil {
		p.Positions = []model.Position{}
	}
	r.state.positions = p.Positions
	r.observers.Broadcast(hub.Fact{Type: hub.FactPositions, Data: p.Positions})
	return nil
}

func (r *Router) handleQuotes(payload []byte) error {
	var p QuotesPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("unmarshal quotes: %w", err)
	}
	if p.Quotes == nil {
		p.Quotes = []model.MarketQuote{}
	}
	r.state.quotes = p.Quotes
	r.observers.Broadcast(hub.Fact{Type: hub.FactQuotes, Data: p.Quotes})
	return nil
}

func (r *Router) handleTradeHistory(payload []byte) error {
	var p TradeHistoryPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("unmarshal trade history: %w", err)
	}
	if p.Trades == nil {
		p.Trades = []model.HistoricalTrade{}
	}
	r.state.history = p.Trades
	r.observers.Broadcast(hub.Fact{Type: hub.FactTradeHistory, Data: p.Trades})
	return nil
}
