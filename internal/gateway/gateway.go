// Package gateway defines the execution-gateway capability consumed by the
// router: account, position, quote and history snapshots plus order
// management against one trading account.
package gateway

import (
	"context"
	"time"

	"sigrelay/internal/model"
)

// OrderRequest describes one order to place.
type OrderRequest struct {
	Symbol    string
	Direction model.Direction
	Volume    float64
	Stop      *float64
	Target    *float64
	Comment   string
}

// OrderResult is the gateway's answer to an order-management call. A failed
// call still returns a result when the gateway produced a structured
// rejection (success=false with a message).
type OrderResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	OrderID string `json:"orderId,omitempty"`
}

// Gateway is the execution capability. All snapshot reads are point-in-time
// projections; the router relays them without interpretation.
type Gateway interface {
	Name() string
	AccountSnapshot(ctx context.Context) (model.AccountSnapshot, error)
	Positions(ctx context.Context) ([]model.Position, error)
	Quotes(ctx context.Context) ([]model.MarketQuote, error)
	TradeHistory(ctx context.Context, lookback time.Duration) ([]model.HistoricalTrade, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	ClosePosition(ctx context.Context, id string) (OrderResult, error)
	ModifyPosition(ctx context.Context, id string, stop, target *float64) (OrderResult, error)
}
