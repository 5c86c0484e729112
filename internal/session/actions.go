package session

import (
	"github.com/daanheslenfeld/etf-test-sub001/internal/domain"
	"github.com/daanheslenfeld/etf-test-sub001/internal/gateway"
)

// Action is one state transition. Each variant mutates exactly the fields it
// owns; dispatch applies it to a copy of the current snapshot and publishes
// the result.
type Action interface {
	apply(s *Snapshot)
}

type setConnection struct {
	status domain.ConnectionStatus
}

func (a setConnection) apply(s *Snapshot) { s.Connection = a.status }

type setAccount struct {
	data Dataset[domain.AccountSummary]
}

func (a setAccount) apply(s *Snapshot) { s.Account = a.data }

type setPositions struct {
	data Dataset[[]domain.Position]
}

func (a setPositions) apply(s *Snapshot) { s.Positions = a.data }

type setOrders struct {
	data Dataset[[]domain.OrderRecord]
}

func (a setOrders) apply(s *Snapshot) { s.Orders = a.data }

type setMarketData struct {
	data Dataset[map[string]domain.MarketDataEntry]
}

func (a setMarketData) apply(s *Snapshot) { s.MarketData = a.data }

type setTradability struct {
	data Dataset[map[string]bool]
}

func (a setTradability) apply(s *Snapshot) { s.Tradability = a.data }

type setLimits struct {
	limits domain.SafetyLimits
}

func (a setLimits) apply(s *Snapshot) { s.Limits = a.limits }

type setAccess struct {
	access *gateway.AccessInfo
}

func (a setAccess) apply(s *Snapshot) { s.Access = a.access }

type setBasket struct {
	orders []domain.DraftOrder
}

func (a setBasket) apply(s *Snapshot) { s.Basket = a.orders }

type setResults struct {
	results []domain.ExecutionResult
}

func (a setResults) apply(s *Snapshot) { s.Results = a.results }

// updateResult mutates one execution result in place, matched by draft id.
type updateResult struct {
	result domain.ExecutionResult
}

func (a updateResult) apply(s *Snapshot) {
	results := make([]domain.ExecutionResult, len(s.Results))
	copy(results, s.Results)
	for i := range results {
		if results[i].ID == a.result.ID {
			results[i] = a.result
			break
		}
	}
	s.Results = results
}

type setExecuting struct {
	executing bool
}

func (a setExecuting) apply(s *Snapshot) { s.Executing = a.executing }

type setHold struct {
	hold *ConfirmationHold
}

func (a setHold) apply(s *Snapshot) { s.Hold = a.hold }
