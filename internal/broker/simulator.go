package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/daanheslenfeld/etf-test-sub001/internal/domain"
)

// Compile-time interface check.
var _ Broker = (*SimulatorBroker)(nil)

// SimulatorBroker is an in-memory backend that fills every market order
// immediately at the scripted price. It serves local development without a
// gateway and provides a scriptable target for execution tests.
type SimulatorBroker struct {
	mu        sync.Mutex
	cash      decimal.Decimal
	positions map[string]*domain.Position
	orders    []domain.OrderRecord
	prices    map[string]decimal.Decimal
	nextID    int

	// Script hooks for tests. When set, they run before the default fill
	// logic and can force an outcome or an error.
	PlaceHook func(order domain.DraftOrder, confirmed bool) (*PlaceOutcome, error)
}

// NewSimulatorBroker creates a simulator with the given starting cash.
func NewSimulatorBroker(startingCash decimal.Decimal) *SimulatorBroker {
	return &SimulatorBroker{
		cash:      startingCash,
		positions: make(map[string]*domain.Position),
		prices:    make(map[string]decimal.Decimal),
	}
}

// Name returns "simulator".
func (b *SimulatorBroker) Name() string {
	return "simulator"
}

// SetPrice scripts the fill and quote price for a symbol.
func (b *SimulatorBroker) SetPrice(symbol string, price decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prices[symbol] = price
}

// PlaceOrder fills the order at the scripted price, adjusting cash and
// positions. Orders for symbols without a scripted price are rejected.
func (b *SimulatorBroker) PlaceOrder(_ context.Context, order domain.DraftOrder, confirmed bool) (PlaceOutcome, error) {
	if b.PlaceHook != nil {
		if out, err := b.PlaceHook(order, confirmed); out != nil || err != nil {
			if err != nil {
				return PlaceOutcome{}, err
			}
			return *out, nil
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	price, ok := b.prices[order.Symbol]
	if !ok {
		return PlaceOutcome{
			Submitted: false,
			Blocked:   false,
			Message:   fmt.Sprintf("no market for %s", order.Symbol),
		}, nil
	}

	qty := decimal.NewFromInt(order.Quantity)
	cost := price.Mul(qty)

	pos := b.positions[order.Symbol]
	if pos == nil {
		pos = &domain.Position{Symbol: order.Symbol, ConID: order.ConID}
		b.positions[order.Symbol] = pos
	}

	switch order.Side {
	case domain.OrderSideBuy:
		b.cash = b.cash.Sub(cost)
		pos.Quantity += order.Quantity
		pos.AvgCost = price
	case domain.OrderSideSell:
		b.cash = b.cash.Add(cost)
		pos.Quantity -= order.Quantity
		if pos.Quantity <= 0 {
			delete(b.positions, order.Symbol)
		}
	}

	b.nextID++
	orderID := fmt.Sprintf("sim-%d", b.nextID)
	b.orders = append(b.orders, domain.OrderRecord{
		OrderID:     orderID,
		Symbol:      order.Symbol,
		Side:        order.Side,
		Quantity:    order.Quantity,
		FilledQty:   order.Quantity,
		Status:      "Filled",
		AvgPrice:    price,
		SubmittedAt: time.Now().UTC(),
	})

	return PlaceOutcome{
		OrderID:   orderID,
		Status:    "Filled",
		Submitted: true,
	}, nil
}

// CancelOrder is a no-op: simulated orders fill instantly.
func (b *SimulatorBroker) CancelOrder(_ context.Context, _ string) error {
	return nil
}

// Positions returns the simulated holdings valued at the scripted prices.
func (b *SimulatorBroker) Positions(_ context.Context) ([]domain.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]domain.Position, 0, len(b.positions))
	for _, p := range b.positions {
		pos := *p
		if price, ok := b.prices[p.Symbol]; ok {
			pos.LastPrice = price
			pos.MarketValue = price.Mul(decimal.NewFromInt(p.Quantity))
			pos.UnrealizedPnL = pos.MarketValue.Sub(p.AvgCost.Mul(decimal.NewFromInt(p.Quantity)))
		}
		out = append(out, pos)
	}
	return out, nil
}

// Account returns the simulated financial snapshot.
func (b *SimulatorBroker) Account(ctx context.Context) (domain.AccountSummary, error) {
	positions, _ := b.Positions(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()

	portfolio := decimal.Zero
	for _, p := range positions {
		portfolio = portfolio.Add(p.MarketValue)
	}
	return domain.AccountSummary{
		CashBalance:    b.cash,
		AvailableFunds: b.cash,
		PortfolioValue: portfolio,
		TotalValue:     b.cash.Add(portfolio),
		BuyingPower:    b.cash,
	}, nil
}

// Orders returns the simulated fill history, newest last.
func (b *SimulatorBroker) Orders(_ context.Context) ([]domain.OrderRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]domain.OrderRecord, len(b.orders))
	copy(out, b.orders)
	return out, nil
}

// Quotes returns flat quotes at the scripted prices.
func (b *SimulatorBroker) Quotes(_ context.Context, symbols []string) (map[string]domain.MarketDataEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]domain.MarketDataEntry, len(symbols))
	for _, sym := range symbols {
		price, ok := b.prices[sym]
		if !ok {
			continue
		}
		out[sym] = domain.MarketDataEntry{
			Symbol:    sym,
			Bid:       price,
			Ask:       price,
			Last:      price,
			MidPrice:  price,
			Timestamp: time.Now().UTC(),
		}
	}
	return out, nil
}
