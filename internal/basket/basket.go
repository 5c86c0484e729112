// Package basket holds the staging area for draft orders. Orders accumulate
// here, fully editable, and nothing is transmitted until an execution pass is
// explicitly started.
package basket

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/daanheslenfeld/etf-test-sub001/internal/domain"
)

// Manager is a concurrency-safe ordered collection of draft orders.
// Insertion order is preserved; execution later walks the basket in this
// order.
type Manager struct {
	mu     sync.Mutex
	orders []domain.DraftOrder
}

// NewManager creates an empty basket.
func NewManager() *Manager {
	return &Manager{}
}

// Add appends one draft order to the basket and returns its id.
func (m *Manager) Add(order domain.DraftOrder) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = append(m.orders, order)
	return order.ID
}

// AddAll appends a group of draft orders atomically, stamping them all with a
// shared bulk id so downstream consumers can correlate the group. Returns the
// bulk id.
func (m *Manager) AddAll(orders []domain.DraftOrder) string {
	bulkID := uuid.NewString()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, order := range orders {
		order.BulkID = bulkID
		m.orders = append(m.orders, order)
	}
	return bulkID
}

// Remove deletes the draft with the given id, reporting whether it existed.
// Removing an unknown id is a no-op.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, order := range m.orders {
		if order.ID == id {
			m.orders = append(m.orders[:i], m.orders[i+1:]...)
			return true
		}
	}
	return false
}

// Update applies a patch to the draft with the given id, leaving nil patch
// fields unchanged. The draft keeps its id, idempotency key, and position in
// the basket.
func (m *Manager) Update(id string, patch domain.OrderPatch) (domain.DraftOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.orders {
		if m.orders[i].ID != id {
			continue
		}
		if patch.Quantity != nil {
			if *patch.Quantity < 1 {
				return domain.DraftOrder{}, fmt.Errorf("basket: quantity must be at least 1, got %d", *patch.Quantity)
			}
			m.orders[i].Quantity = *patch.Quantity
		}
		if patch.Type != nil {
			m.orders[i].Type = *patch.Type
		}
		if patch.LimitPrice != nil {
			m.orders[i].LimitPrice = *patch.LimitPrice
		}
		if patch.StopPrice != nil {
			m.orders[i].StopPrice = *patch.StopPrice
		}
		return m.orders[i], nil
	}
	return domain.DraftOrder{}, fmt.Errorf("basket: no order with id %s", id)
}

// Clear removes all drafts and returns how many were removed.
func (m *Manager) Clear() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.orders)
	m.orders = nil
	return n
}

// Orders returns a copy of the basket contents in insertion order.
func (m *Manager) Orders() []domain.DraftOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.DraftOrder, len(m.orders))
	copy(out, m.orders)
	return out
}

// Get returns the draft with the given id.
func (m *Manager) Get(id string) (domain.DraftOrder, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, order := range m.orders {
		if order.ID == id {
			return order, true
		}
	}
	return domain.DraftOrder{}, false
}

// Len returns the number of drafts in the basket.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}
