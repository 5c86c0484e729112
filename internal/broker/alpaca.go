package broker

import (
	"context"
	"fmt"

	alpacaapi "github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"github.com/daanheslenfeld/etf-test-sub001/internal/domain"
)

// Compile-time interface check.
var _ Broker = (*AlpacaBroker)(nil)

// AlpacaBroker executes orders directly against the Alpaca brokerage API.
// Unlike the gateway, Alpaca has no confirmation-hold flow: every accepted
// order submits immediately, so PlaceOrder never reports
// ConfirmationRequired.
type AlpacaBroker struct {
	trading *alpacaapi.Client
	md      *marketdata.Client
}

// NewAlpacaBroker creates an AlpacaBroker with the given credentials and API
// endpoints. Empty URLs fall back to the SDK defaults.
func NewAlpacaBroker(apiKey, apiSecret, baseURL, dataURL string) *AlpacaBroker {
	return &AlpacaBroker{
		trading: alpacaapi.NewClient(alpacaapi.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   baseURL,
		}),
		md: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   dataURL,
		}),
	}
}

// Name returns "alpaca".
func (b *AlpacaBroker) Name() string {
	return "alpaca"
}

// PlaceOrder submits a day order to Alpaca, forwarding the draft's
// idempotency key as the client order id.
func (b *AlpacaBroker) PlaceOrder(_ context.Context, order domain.DraftOrder, _ bool) (PlaceOutcome, error) {
	qty := decimal.NewFromInt(order.Quantity)
	req := alpacaapi.PlaceOrderRequest{
		Symbol:        order.Symbol,
		Qty:           &qty,
		Side:          alpacaSide(order.Side),
		Type:          alpacaType(order.Type),
		TimeInForce:   alpacaapi.Day,
		ClientOrderID: order.IdempotencyKey,
	}
	switch order.Type {
	case domain.OrderTypeLimit:
		lp := order.LimitPrice
		req.LimitPrice = &lp
	case domain.OrderTypeStop:
		sp := order.StopPrice
		req.StopPrice = &sp
	case domain.OrderTypeStopLimit:
		lp, sp := order.LimitPrice, order.StopPrice
		req.LimitPrice = &lp
		req.StopPrice = &sp
	}

	placed, err := b.trading.PlaceOrder(req)
	if err != nil {
		return PlaceOutcome{}, fmt.Errorf("alpaca place order %s: %w", order.Symbol, err)
	}
	return PlaceOutcome{
		OrderID:   placed.ID,
		Status:    string(placed.Status),
		Submitted: true,
	}, nil
}

// CancelOrder cancels an open Alpaca order.
func (b *AlpacaBroker) CancelOrder(_ context.Context, orderID string) error {
	return b.trading.CancelOrder(orderID)
}

// Positions returns the current Alpaca holdings.
func (b *AlpacaBroker) Positions(_ context.Context) ([]domain.Position, error) {
	raw, err := b.trading.GetPositions()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Position, 0, len(raw))
	for _, p := range raw {
		pos := domain.Position{
			Symbol:   p.Symbol,
			Quantity: p.Qty.IntPart(),
			AvgCost:  p.AvgEntryPrice,
		}
		if p.CurrentPrice != nil {
			pos.LastPrice = *p.CurrentPrice
		}
		if p.MarketValue != nil {
			pos.MarketValue = *p.MarketValue
		}
		if p.UnrealizedPL != nil {
			pos.UnrealizedPnL = *p.UnrealizedPL
		}
		if p.UnrealizedPLPC != nil {
			pos.UnrealizedPnLPercent = p.UnrealizedPLPC.Mul(decimal.NewFromInt(100))
		}
		out = append(out, pos)
	}
	return out, nil
}

// Account returns the Alpaca account financial snapshot.
func (b *AlpacaBroker) Account(_ context.Context) (domain.AccountSummary, error) {
	acct, err := b.trading.GetAccount()
	if err != nil {
		return domain.AccountSummary{}, err
	}
	return domain.AccountSummary{
		CashBalance:    acct.Cash,
		AvailableFunds: acct.Cash,
		PortfolioValue: acct.PortfolioValue,
		TotalValue:     acct.Equity,
		BuyingPower:    acct.BuyingPower,
	}, nil
}

// Orders returns recent Alpaca orders in all states.
func (b *AlpacaBroker) Orders(_ context.Context) ([]domain.OrderRecord, error) {
	raw, err := b.trading.GetOrders(alpacaapi.GetOrdersRequest{
		Status: "all",
		Limit:  200,
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.OrderRecord, 0, len(raw))
	for _, o := range raw {
		rec := domain.OrderRecord{
			OrderID:     o.ID,
			Symbol:      o.Symbol,
			Side:        domainSide(o.Side),
			FilledQty:   o.FilledQty.IntPart(),
			Status:      string(o.Status),
			SubmittedAt: o.SubmittedAt,
		}
		if o.Qty != nil {
			rec.Quantity = o.Qty.IntPart()
		}
		if o.FilledAvgPrice != nil {
			rec.AvgPrice = *o.FilledAvgPrice
		}
		out = append(out, rec)
	}
	return out, nil
}

// Quotes returns the latest snapshot quotes for the given symbols.
func (b *AlpacaBroker) Quotes(_ context.Context, symbols []string) (map[string]domain.MarketDataEntry, error) {
	if len(symbols) == 0 {
		return map[string]domain.MarketDataEntry{}, nil
	}
	snaps, err := b.md.GetSnapshots(symbols, marketdata.GetSnapshotRequest{})
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.MarketDataEntry, len(snaps))
	for sym, snap := range snaps {
		if snap == nil {
			continue
		}
		entry := domain.MarketDataEntry{Symbol: sym}
		if q := snap.LatestQuote; q != nil {
			entry.Bid = decimal.NewFromFloat(q.BidPrice)
			entry.Ask = decimal.NewFromFloat(q.AskPrice)
			entry.BidSize = int64(q.BidSize)
			entry.AskSize = int64(q.AskSize)
			entry.Timestamp = q.Timestamp
		}
		if t := snap.LatestTrade; t != nil {
			entry.Last = decimal.NewFromFloat(t.Price)
			if entry.Timestamp.IsZero() {
				entry.Timestamp = t.Timestamp
			}
		}
		out[sym] = entry.WithDerived()
	}
	return out, nil
}

func alpacaSide(side domain.OrderSide) alpacaapi.Side {
	if side == domain.OrderSideSell {
		return alpacaapi.Sell
	}
	return alpacaapi.Buy
}

func domainSide(side alpacaapi.Side) domain.OrderSide {
	if side == alpacaapi.Sell {
		return domain.OrderSideSell
	}
	return domain.OrderSideBuy
}

func alpacaType(typ domain.OrderType) alpacaapi.OrderType {
	switch typ {
	case domain.OrderTypeLimit:
		return alpacaapi.Limit
	case domain.OrderTypeStop:
		return alpacaapi.Stop
	case domain.OrderTypeStopLimit:
		return alpacaapi.StopLimit
	default:
		return alpacaapi.Market
	}
}
