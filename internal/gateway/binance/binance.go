// Package binance implements the execution gateway on binance USD-M
// futures. Position identity is the symbol: the account runs one-way
// position mode, so at most one position exists per symbol.
package binance

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"sigrelay/internal/config"
	"sigrelay/internal/gateway"
	"sigrelay/internal/logger"
	"sigrelay/internal/model"
	"sigrelay/internal/pkg/convert"
	symbolpkg "sigrelay/internal/pkg/symbol"

	"github.com/adshao/go-binance/v2/futures"
)

type Gateway struct {
	client  *futures.Client
	symbols []string
}

// New constructs the futures gateway. symbols bounds quote and history
// sweeps; order calls accept any symbol.
func New(cfg config.BinanceConfig, symbols []string) *Gateway {
	if cfg.Testnet {
		futures.UseTestnet = true
	}
	return &Gateway{
		client:  futures.NewClient(cfg.APIKey, cfg.APISecret),
		symbols: symbolpkg.NormalizeList(symbols),
	}
}

func (g *Gateway) Name() string { return "binance" }

func (g *Gateway) AccountSnapshot(ctx context.Context) (model.AccountSnapshot, error) {
	acct, err := g.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return model.AccountSnapshot{}, fmt.Errorf("binance account: %w", err)
	}
	balance := convert.ToFloat64(acct.TotalWalletBalance)
	equity := convert.ToFloat64(acct.TotalMarginBalance)
	free := convert.ToFloat64(acct.AvailableBalance)
	return model.AccountSnapshot{
		Balance:    balance,
		Equity:     equity,
		Margin:     equity - free,
		FreeMargin: free,
		Currency:   "USDT",
		At:         time.Now(),
	}, nil
}

func (g *Gateway) Positions(ctx context.Context) ([]model.Position, error) {
	risks, err := g.client.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance positions: %w", err)
	}
	var out []model.Position
	for _, r := range risks {
		amt := convert.ToFloat64(r.PositionAmt)
		if amt == 0 {
			continue
		}
		dir := model.DirectionBuy
		if amt < 0 {
			dir = model.DirectionSell
			amt = -amt
		}
		out = append(out, model.Position{
			ID:           r.Symbol,
			Symbol:       r.Symbol,
			Direction:    dir,
			Volume:       amt,
			OpenPrice:    convert.ToFloat64(r.EntryPrice),
			CurrentPrice: convert.ToFloat64(r.MarkPrice),
			Profit:       convert.ToFloat64(r.UnRealizedProfit),
		})
	}
	return out, nil
}

func (g *Gateway) Quotes(ctx context.Context) ([]model.MarketQuote, error) {
	tickers, err := g.client.NewListBookTickersService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance quotes: %w", err)
	}
	want := make(map[string]bool, len(g.symbols))
	for _, s := range g.symbols {
		want[s] = true
	}
	now := time.Now()
	var out []model.MarketQuote
	for _, t := range tickers {
		if len(want) > 0 && !want[t.Symbol] {
			continue
		}
		out = append(out, model.MarketQuote{
			Symbol: t.Symbol,
			Bid:    convert.ToFloat64(t.BidPrice),
			Ask:    convert.ToFloat64(t.AskPrice),
			At:     now,
		})
	}
	return out, nil
}

func (g *Gateway) TradeHistory(ctx context.Context, lookback time.Duration) ([]model.HistoricalTrade, error) {
	start := time.Now().Add(-lookback).UnixMilli()
	var out []model.HistoricalTrade
	for _, sym := range g.symbols {
		trades, err := g.client.NewListAccountTradeService().Symbol(sym).StartTime(start).Do(ctx)
		if err != nil {
			logger.Warnf("binance history %s: %v", sym, err)
			continue
		}
		for _, t := range trades {
			dir := model.DirectionSell
			if t.Buyer {
				dir = model.DirectionBuy
			}
			closedAt := time.UnixMilli(t.Time)
			out = append(out, model.HistoricalTrade{
				ID:         strconv.FormatInt(t.ID, 10),
				Symbol:     t.Symbol,
				Direction:  dir,
				Volume:     convert.ToFloat64(t.Quantity),
				ClosePrice: convert.ToFloat64(t.Price),
				Profit:     convert.ToFloat64(t.RealizedPnl),
				OpenedAt:   closedAt,
				ClosedAt:   closedAt,
			})
		}
	}
	return out, nil
}

func (g *Gateway) PlaceOrder(ctx context.Context, req gateway.OrderRequest) (gateway.OrderResult, error) {
	sym := symbolpkg.Normalize(req.Symbol)
	side := futures.SideTypeBuy
	if req.Direction == model.DirectionSell {
		side = futures.SideTypeSell
	}
	res, err := g.client.NewCreateOrderService().
		Symbol(sym).
		Side(side).
		Type(futures.OrderTypeMarket).
		Quantity(formatQty(req.Volume)).
		Do(ctx)
	if err != nil {
		// Structured exchange rejections become a failed result rather
		// than a transport error.
		return gateway.OrderResult{Success: false, Message: err.Error()}, nil
	}
	if req.Stop != nil {
		g.placeExitOrder(ctx, sym, opposite(side), futures.OrderTypeStopMarket, *req.Stop)
	}
	if req.Target != nil {
		g.placeExitOrder(ctx, sym, opposite(side), futures.OrderTypeTakeProfitMarket, *req.Target)
	}
	return gateway.OrderResult{
		Success: true,
		Message: "order filled",
		OrderID: strconv.FormatInt(res.OrderID, 10),
	}, nil
}

func (g *Gateway) placeExitOrder(ctx context.Context, sym string, side futures.SideType, typ futures.OrderType, price float64) {
	_, err := g.client.NewCreateOrderService().
		Symbol(sym).
		Side(side).
		Type(typ).
		StopPrice(formatQty(price)).
		ClosePosition(true).
		Do(ctx)
	if err != nil {
		logger.Warnf("binance exit order %s %s @%v failed: %v", sym, typ, price, err)
	}
}

func (g *Gateway) ClosePosition(ctx context.Context, id string) (gateway.OrderResult, error) {
	sym := symbolpkg.Normalize(id)
	risks, err := g.client.NewGetPositionRiskService().Symbol(sym).Do(ctx)
	if err != nil {
		return gateway.OrderResult{}, fmt.Errorf("binance position lookup: %w", err)
	}
	var amt float64
	for _, r := range risks {
		if strings.EqualFold(r.Symbol, sym) {
			amt = convert.ToFloat64(r.PositionAmt)
			break
		}
	}
	if amt == 0 {
		return gateway.OrderResult{Success: false, Message: "position not found"}, nil
	}
	side := futures.SideTypeSell
	if amt < 0 {
		side = futures.SideTypeBuy
		amt = -amt
	}
	res, err := g.client.NewCreateOrderService().
		Symbol(sym).
		Side(side).
		Type(futures.OrderTypeMarket).
		Quantity(formatQty(amt)).
		ReduceOnly(true).
		Do(ctx)
	if err != nil {
		return gateway.OrderResult{Success: false, Message: err.Error()}, nil
	}
	if err := g.client.NewCancelAllOpenOrdersService().Symbol(sym).Do(ctx); err != nil {
		logger.Warnf("binance cancel open orders %s: %v", sym, err)
	}
	return gateway.OrderResult{
		Success: true,
		Message: "position closed",
		OrderID: strconv.FormatInt(res.OrderID, 10),
	}, nil
}

func (g *Gateway) ModifyPosition(ctx context.Context, id string, stop, target *float64) (gateway.OrderResult, error) {
	sym := symbolpkg.Normalize(id)
	risks, err := g.client.NewGetPositionRiskService().Symbol(sym).Do(ctx)
	if err != nil {
		return gateway.OrderResult{}, fmt.Errorf("binance position lookup: %w", err)
	}
	var amt float64
	for _, r := range risks {
		if strings.EqualFold(r.Symbol, sym) {
			amt = convert.ToFloat64(r.PositionAmt)
			break
		}
	}
	if amt == 0 {
		return gateway.OrderResult{Success: false, Message: "position not found"}, nil
	}
	// Exit orders are replaced wholesale: cancel what exists, re-arm what
	// was requested.
	if err := g.client.NewCancelAllOpenOrdersService().Symbol(sym).Do(ctx); err != nil {
		return gateway.OrderResult{Success: false, Message: err.Error()}, nil
	}
	exitSide := futures.SideTypeSell
	if amt < 0 {
		exitSide = futures.SideTypeBuy
	}
	if stop != nil {
		g.placeExitOrder(ctx, sym, exitSide, futures.OrderTypeStopMarket, *stop)
	}
	if target != nil {
		g.placeExitOrder(ctx, sym, exitSide, futures.OrderTypeTakeProfitMarket, *target)
	}
	return gateway.OrderResult{Success: true, Message: "position updated"}, nil
}

func opposite(side futures.SideType) futures.SideType {
	if side == futures.SideTypeBuy {
		return futures.SideTypeSell
	}
	return futures.SideTypeBuy
}

func formatQty(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
