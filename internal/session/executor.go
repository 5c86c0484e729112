package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/daanheslenfeld/etf-test-sub001/internal/domain"
	"github.com/daanheslenfeld/etf-test-sub001/internal/metrics"
)

var (
	// ErrEmptyBasket is returned when an execution pass is requested with
	// nothing staged. No remote call is made in that case.
	ErrEmptyBasket = errors.New("session: basket is empty")

	// ErrExecutionInProgress is returned when a pass is already running.
	ErrExecutionInProgress = errors.New("session: execution already in progress")

	// ErrNoHold is returned by Confirm and CancelHold when no execution pass
	// is halted.
	ErrNoHold = errors.New("session: no confirmation pending")

	// ErrHoldPending is returned by ExecuteBasket while a halted pass awaits
	// confirmation. The hold must be confirmed or cancelled first; starting a
	// fresh pass would orphan the held intention at the gateway.
	ErrHoldPending = errors.New("session: confirmation hold pending")
)

// ExecuteBasket runs one sequential execution pass over the staged basket.
//
// Orders are placed strictly one at a time in insertion order, with a pacing
// delay between placements and a per-order timeout. A safety-blocked or
// remotely rejected order is recorded and the pass continues; a
// confirmation-required response halts the pass immediately, leaving the held
// order and everything after it in the basket; a transport failure or timeout
// aborts the pass, marking every not-yet-placed order rejected. Only a pass
// that runs to completion clears the basket.
func (s *Session) ExecuteBasket(ctx context.Context, confirmed bool) ([]domain.ExecutionResult, error) {
	orders := s.basket.Orders()
	if len(orders) == 0 {
		return nil, ErrEmptyBasket
	}

	s.mu.Lock()
	if s.executing {
		s.mu.Unlock()
		return nil, ErrExecutionInProgress
	}
	if s.state.Hold != nil {
		s.mu.Unlock()
		return nil, ErrHoldPending
	}
	s.executing = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.executing = false
		s.mu.Unlock()
	}()

	results := make([]domain.ExecutionResult, len(orders))
	for i, order := range orders {
		results[i] = domain.ExecutionResult{
			ID:       order.ID,
			Symbol:   order.Symbol,
			Side:     order.Side,
			Quantity: order.Quantity,
			Status:   domain.ExecutionPending,
		}
	}

	s.dispatch(setExecuting{executing: true})
	s.dispatch(setResults{results: results})
	defer s.dispatch(setExecuting{executing: false})

	var (
		hold    *ConfirmationHold
		aborted bool
	)
	for i, order := range orders {
		if i > 0 {
			select {
			case <-ctx.Done():
				// Cancellation aborts like a transport failure: the rest of
				// the pass is rejected and the basket survives.
				for j := i; j < len(orders); j++ {
					results[j].Status = domain.ExecutionRejected
					results[j].Message = "execution cancelled"
					s.dispatch(updateResult{result: results[j]})
				}
				aborted = true
			case <-time.After(s.pace):
			}
			if aborted {
				break
			}
		}

		octx, cancel := context.WithTimeout(ctx, s.orderTimeout)
		outcome, err := s.broker.PlaceOrder(octx, order, confirmed)
		cancel()

		switch {
		case err != nil:
			results[i].Status = domain.ExecutionRejected
			results[i].Message = placeErrorMessage(err)
			metrics.IncOrderPlaced(string(order.Side), "rejected")
			s.log.Warn("order placement failed, aborting pass",
				"symbol", order.Symbol, "side", order.Side, "error", err)
			aborted = true

		case outcome.ConfirmationRequired:
			results[i].Status = domain.ExecutionConfirmationRequired
			results[i].Message = outcome.Message
			results[i].OrderID = outcome.OrderID
			results[i].Warnings = outcome.Warnings
			hold = &ConfirmationHold{
				DraftID:  order.ID,
				OrderID:  outcome.OrderID,
				Message:  outcome.Message,
				Warnings: outcome.Warnings,
			}
			metrics.IncOrderPlaced(string(order.Side), "confirmation_required")
			s.log.Info("execution halted for confirmation",
				"symbol", order.Symbol, "quantity", order.Quantity)

		case outcome.Blocked:
			results[i].Status = domain.ExecutionBlocked
			results[i].Message = outcome.Message
			results[i].Warnings = outcome.Warnings
			metrics.IncOrderPlaced(string(order.Side), "blocked")
			s.log.Warn("order blocked by safety limit",
				"symbol", order.Symbol, "message", outcome.Message)

		case outcome.Submitted:
			results[i].OrderID = outcome.OrderID
			results[i].Warnings = outcome.Warnings
			if strings.EqualFold(outcome.Status, "filled") {
				results[i].Status = domain.ExecutionFilled
				results[i].FilledQty = order.Quantity
			} else {
				results[i].Status = domain.ExecutionSubmitted
			}
			metrics.IncOrderPlaced(string(order.Side), "submitted")
			if order.Side == domain.OrderSideBuy && s.notifier != nil {
				s.notifyBuy(results[i])
			}

		default:
			results[i].Status = domain.ExecutionRejected
			results[i].Message = outcome.Message
			metrics.IncOrderPlaced(string(order.Side), "rejected")
		}

		s.dispatch(updateResult{result: results[i]})

		if aborted {
			// Everything not yet placed is rejected along with the failed
			// order; the basket survives for a manual retry.
			for j := i + 1; j < len(orders); j++ {
				results[j].Status = domain.ExecutionRejected
				results[j].Message = "not attempted, pass aborted"
				s.dispatch(updateResult{result: results[j]})
			}
			break
		}
		if hold != nil {
			break
		}
	}

	if s.journal != nil {
		if err := s.journal.Record(ctx, s.userID, results, orders, time.Now().UTC()); err != nil {
			s.log.Warn("recording execution journal failed", "error", err)
		}
	}

	if hold != nil {
		s.dispatch(setHold{hold: hold})
		metrics.IncExecutionPass("halted")
		return results, nil
	}
	if aborted {
		metrics.IncExecutionPass("aborted")
		return results, nil
	}

	// The pass ran to completion: the basket is spent.
	s.basket.Clear()
	s.dispatch(setBasket{orders: nil})
	metrics.IncExecutionPass("completed")

	s.scheduleSettleRefresh()
	return results, nil
}

// Confirm re-runs the execution pass with the confirmed flag after a halt.
// The held draft is still first in the basket and keeps its idempotency key,
// so the backend treats the confirmed placement as the same order.
func (s *Session) Confirm(ctx context.Context) ([]domain.ExecutionResult, error) {
	s.mu.Lock()
	hold := s.state.Hold
	s.mu.Unlock()
	if hold == nil {
		return nil, ErrNoHold
	}
	s.dispatch(setHold{hold: nil})
	return s.ExecuteBasket(ctx, true)
}

// CancelHold withdraws the held order intention and releases the halt. The
// basket is left untouched for editing or re-execution.
func (s *Session) CancelHold(ctx context.Context) error {
	s.mu.Lock()
	hold := s.state.Hold
	s.mu.Unlock()
	if hold == nil {
		return ErrNoHold
	}

	if hold.OrderID != "" {
		if err := s.broker.CancelOrder(ctx, hold.OrderID); err != nil {
			return fmt.Errorf("cancelling held order: %w", err)
		}
	}

	s.mu.Lock()
	var held domain.ExecutionResult
	for _, r := range s.state.Results {
		if r.ID == hold.DraftID {
			held = r
			break
		}
	}
	s.mu.Unlock()
	held.Status = domain.ExecutionRejected
	held.Message = "confirmation declined"

	s.dispatch(setHold{hold: nil})
	s.dispatch(updateResult{result: held})
	return nil
}

// CancelOrder withdraws a submitted order by its backend id.
func (s *Session) CancelOrder(ctx context.Context, orderID string) error {
	return s.broker.CancelOrder(ctx, orderID)
}

// scheduleSettleRefresh refreshes all datasets after a short settle delay,
// giving the backend time to reflect the fills before the next snapshot.
func (s *Session) scheduleSettleRefresh() {
	ctx := s.runCtx
	if ctx == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.settleDelay):
		}
		s.refreshAll(ctx)
	}()
}

// notifyBuy fires the buy notification without blocking the pass.
func (s *Session) notifyBuy(result domain.ExecutionResult) {
	ctx := s.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.notifier.BuyExecuted(ctx, s.email, result)
	}()
}

func placeErrorMessage(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "order timed out"
	}
	return err.Error()
}
