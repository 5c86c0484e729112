package broker

import (
	"context"

	"github.com/daanheslenfeld/etf-test-sub001/internal/domain"
	"github.com/daanheslenfeld/etf-test-sub001/internal/gateway"
)

// Compile-time interface check.
var _ Broker = (*GatewayBroker)(nil)

// GatewayBroker executes orders through the brokerage gateway against the
// customer's virtual account.
type GatewayBroker struct {
	client *gateway.Client
}

// NewGatewayBroker wraps a gateway client as a Broker.
func NewGatewayBroker(client *gateway.Client) *GatewayBroker {
	return &GatewayBroker{client: client}
}

// Name returns "gateway".
func (b *GatewayBroker) Name() string {
	return "gateway"
}

// PlaceOrder submits the draft to the gateway order endpoint, mapping the
// in-band CONFIRMATION_REQUIRED and SAFETY_LIMIT_EXCEEDED responses to the
// structured outcome.
func (b *GatewayBroker) PlaceOrder(ctx context.Context, order domain.DraftOrder, confirmed bool) (PlaceOutcome, error) {
	accountID, err := b.client.ResolveVirtualAccount(ctx)
	if err != nil {
		return PlaceOutcome{}, err
	}

	resp, err := b.client.PlaceOrder(ctx, accountID, gateway.PlaceOrderRequest{
		Symbol:        order.Symbol,
		ConID:         order.ConID,
		Side:          string(order.Side),
		Quantity:      order.Quantity,
		OrderType:     string(order.Type),
		LimitPrice:    order.LimitPrice,
		StopPrice:     order.StopPrice,
		ClientOrderID: order.IdempotencyKey,
	}, confirmed)
	if err != nil {
		return PlaceOutcome{}, err
	}

	return PlaceOutcome{
		OrderID:              resp.OrderID,
		Status:               resp.Status,
		Submitted:            resp.Success,
		ConfirmationRequired: resp.ConfirmationRequired(),
		Blocked:              resp.Blocked(),
		Warnings:             resp.Warnings,
		Message:              resp.Message,
	}, nil
}

// CancelOrder withdraws a held order intention.
func (b *GatewayBroker) CancelOrder(ctx context.Context, orderID string) error {
	return b.client.CancelIntention(ctx, orderID)
}

// Positions returns the virtual account holdings.
func (b *GatewayBroker) Positions(ctx context.Context) ([]domain.Position, error) {
	accountID, err := b.client.ResolveVirtualAccount(ctx)
	if err != nil {
		return nil, err
	}
	return b.client.Positions(ctx, accountID)
}

// Account returns the virtual account financial snapshot.
func (b *GatewayBroker) Account(ctx context.Context) (domain.AccountSummary, error) {
	accountID, err := b.client.ResolveVirtualAccount(ctx)
	if err != nil {
		return domain.AccountSummary{}, err
	}
	return b.client.AccountSummary(ctx, accountID)
}

// Orders returns the virtual account order history.
func (b *GatewayBroker) Orders(ctx context.Context) ([]domain.OrderRecord, error) {
	accountID, err := b.client.ResolveVirtualAccount(ctx)
	if err != nil {
		return nil, err
	}
	return b.client.Orders(ctx, accountID)
}

// Quotes returns the latest gateway market data for the given symbols.
func (b *GatewayBroker) Quotes(ctx context.Context, symbols []string) (map[string]domain.MarketDataEntry, error) {
	return b.client.MarketData(ctx, symbols)
}
