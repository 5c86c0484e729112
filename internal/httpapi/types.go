package httpapi

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/daanheslenfeld/etf-test-sub001/internal/domain"
)

// AddOrderRequest is the payload for staging one draft order.
type AddOrderRequest struct {
	Symbol     string          `json:"symbol"`
	ConID      int64           `json:"conid"`
	Side       string          `json:"side"`
	Quantity   int64           `json:"quantity"`
	OrderType  string          `json:"order_type"`
	LimitPrice decimal.Decimal `json:"limit_price"`
	StopPrice  decimal.Decimal `json:"stop_price"`
}

// toDraft builds a validated draft order from the request. Market is the
// default order type.
func (r AddOrderRequest) toDraft() (domain.DraftOrder, error) {
	typ := domain.OrderType(r.OrderType)
	if r.OrderType == "" {
		typ = domain.OrderTypeMarket
	}
	order, err := domain.NewDraftOrder(r.Symbol, r.ConID, domain.OrderSide(r.Side), r.Quantity, typ)
	if err != nil {
		return domain.DraftOrder{}, err
	}
	if typ == domain.OrderTypeLimit || typ == domain.OrderTypeStopLimit {
		if !r.LimitPrice.IsPositive() {
			return domain.DraftOrder{}, fmt.Errorf("limit price required for %s orders", typ)
		}
		order.LimitPrice = r.LimitPrice
	}
	if typ == domain.OrderTypeStop || typ == domain.OrderTypeStopLimit {
		if !r.StopPrice.IsPositive() {
			return domain.DraftOrder{}, fmt.Errorf("stop price required for %s orders", typ)
		}
		order.StopPrice = r.StopPrice
	}
	return order, nil
}

// AddBulkRequest stages several drafts at once under one bulk id.
type AddBulkRequest struct {
	Orders []AddOrderRequest `json:"orders"`
}

// UpdateOrderRequest patches a staged draft; absent fields stay unchanged.
type UpdateOrderRequest struct {
	Quantity   *int64           `json:"quantity"`
	OrderType  *string          `json:"order_type"`
	LimitPrice *decimal.Decimal `json:"limit_price"`
	StopPrice  *decimal.Decimal `json:"stop_price"`
}

// AddOrderResponse reports the staged draft's id.
type AddOrderResponse struct {
	ID string `json:"id"`
}

// AddBulkResponse reports the shared bulk id and the staged draft ids.
type AddBulkResponse struct {
	BulkID string   `json:"bulk_id"`
	IDs    []string `json:"ids"`
}

// ClearResponse reports how many drafts were removed.
type ClearResponse struct {
	Removed int `json:"removed"`
}

// ExecuteResponse returns the per-order results of an execution pass.
type ExecuteResponse struct {
	Results []domain.ExecutionResult `json:"results"`

	// Halted is true when the pass stopped on a confirmation-required
	// response; the basket is preserved and /api/execute/confirm resumes it.
	Halted bool `json:"halted"`
}

// DaysResponse lists the dates with journaled executions.
type DaysResponse struct {
	Days []string `json:"days"`
}
