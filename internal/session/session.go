package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/daanheslenfeld/etf-test-sub001/internal/basket"
	"github.com/daanheslenfeld/etf-test-sub001/internal/broker"
	"github.com/daanheslenfeld/etf-test-sub001/internal/cache"
	"github.com/daanheslenfeld/etf-test-sub001/internal/domain"
	"github.com/daanheslenfeld/etf-test-sub001/internal/gateway"
	"github.com/daanheslenfeld/etf-test-sub001/internal/journal"
	"github.com/daanheslenfeld/etf-test-sub001/internal/metrics"
	"github.com/daanheslenfeld/etf-test-sub001/internal/notify"
	"github.com/daanheslenfeld/etf-test-sub001/internal/safety"
	"github.com/daanheslenfeld/etf-test-sub001/internal/util"
)

// StatusClient provides the gateway-side reads that have no broker
// equivalent: connectivity, server-managed safety limits, the tradability
// map, the instrument universe, and the trading access gate. Nil when the
// backend is not the gateway.
type StatusClient interface {
	Health(ctx context.Context) (domain.ConnectionStatus, error)
	SafetyLimits(ctx context.Context) (domain.SafetyLimits, error)
	Tradability(ctx context.Context) (map[string]bool, error)
	ETFs(ctx context.Context) ([]gateway.ETF, error)
	Access(ctx context.Context) (gateway.AccessInfo, error)
}

// ErrGatewayOnly is returned for reads that only the gateway backend serves.
var ErrGatewayOnly = errors.New("session: not available for this broker")

// Options configures a Session.
type Options struct {
	Broker   broker.Broker
	Status   StatusClient // optional
	Basket   *basket.Manager
	Cache    *cache.Store
	Journal  *journal.Journal  // optional
	Notifier *notify.Notifier  // optional
	Log      *slog.Logger

	UserID string
	Email  string

	PollInterval   time.Duration
	OrderTimeout   time.Duration
	InterOrderPace time.Duration
	SettleDelay    time.Duration
}

// Session owns the trading state for one user. It polls the backend on a
// fixed cadence, degrades to cached snapshots on fetch failures, and runs
// basket execution passes.
type Session struct {
	broker   broker.Broker
	status   StatusClient
	basket   *basket.Manager
	store    *cache.Store
	journal  *journal.Journal
	notifier *notify.Notifier
	log      *slog.Logger

	userID string
	email  string

	pollInterval time.Duration
	orderTimeout time.Duration
	pace         time.Duration
	settleDelay  time.Duration

	mu        sync.Mutex
	state     Snapshot
	subs      map[chan Snapshot]struct{}
	gen       map[string]uint64
	executing bool

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Session. Zero durations fall back to the standard cadence.
func New(opts Options) *Session {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.OrderTimeout <= 0 {
		opts.OrderTimeout = 15 * time.Second
	}
	if opts.InterOrderPace <= 0 {
		opts.InterOrderPace = 300 * time.Millisecond
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = 1500 * time.Millisecond
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &Session{
		broker:       opts.Broker,
		status:       opts.Status,
		basket:       opts.Basket,
		store:        opts.Cache,
		journal:      opts.Journal,
		notifier:     opts.Notifier,
		log:          opts.Log,
		userID:       opts.UserID,
		email:        opts.Email,
		pollInterval: opts.PollInterval,
		orderTimeout: opts.OrderTimeout,
		pace:         opts.InterOrderPace,
		settleDelay:  opts.SettleDelay,
		state:        newSnapshot(),
		subs:         make(map[chan Snapshot]struct{}),
		gen:          make(map[string]uint64),
	}
}

// Start runs the one-time cache migration, performs the first health check,
// and begins polling. The session stops when Stop is called or ctx is
// cancelled.
func (s *Session) Start(ctx context.Context) error {
	s.runCtx, s.cancel = context.WithCancel(ctx)

	if s.store != nil {
		ran, err := s.store.CleanupLegacy(s.runCtx)
		if err != nil {
			s.log.Warn("legacy cache cleanup failed", "error", err)
		} else if ran {
			s.log.Info("removed legacy cache entries")
		}
	}

	// The first health check retries: the gateway may still be starting up.
	if s.status != nil {
		err := util.Retry(s.runCtx, 3, time.Second, func() error {
			status, herr := s.status.Health(s.runCtx)
			if herr != nil {
				return herr
			}
			s.dispatch(setConnection{status: status})
			return nil
		})
		if err != nil {
			s.log.Warn("gateway unreachable at startup, continuing with cached data", "error", err)
		}

		// Trading access gate: surfaced in the snapshot so the frontend can
		// disable order entry before the first placement is even attempted.
		if access, aerr := s.status.Access(s.runCtx); aerr != nil {
			s.log.Warn("trading access check failed", "error", aerr)
		} else {
			s.dispatch(setAccess{access: &access})
			if !access.Allowed {
				s.log.Warn("trading access disabled for this customer", "reason", access.Reason)
			}
		}
	}

	s.startPolling(s.runCtx)
	return nil
}

// ETFs returns the tradable instrument universe. Gateway backend only.
func (s *Session) ETFs(ctx context.Context) ([]gateway.ETF, error) {
	if s.status == nil {
		return nil, ErrGatewayOnly
	}
	return s.status.ETFs(ctx)
}

// Stop cancels polling and waits for in-flight work to finish.
func (s *Session) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// State returns the current snapshot.
func (s *Session) State() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers a snapshot listener. The returned cancel func must be
// called to release it. Slow listeners drop intermediate snapshots rather
// than blocking dispatch.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)

	s.mu.Lock()
	s.subs[ch] = struct{}{}
	ch <- s.state
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// dispatch applies one action to a copy of the state and publishes the new
// snapshot to all subscribers.
func (s *Session) dispatch(a Action) {
	s.mu.Lock()
	next := s.state
	a.apply(&next)
	next.UpdatedAt = time.Now().UTC()
	s.state = next

	metrics.SetBasketSize(len(next.Basket))
	metrics.SetGatewayConnected(next.Connection.Connected)
	totalValue, _ := next.Account.Data.TotalValue.Float64()
	metrics.SetAccountValue(totalValue)

	for ch := range s.subs {
		select {
		case ch <- next:
		default:
		}
	}
	s.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Basket operations
// ---------------------------------------------------------------------------

// AddOrder stages one draft order and returns its id.
func (s *Session) AddOrder(order domain.DraftOrder) string {
	id := s.basket.Add(order)
	s.dispatch(setBasket{orders: s.basket.Orders()})
	return id
}

// AddOrders stages a group of drafts under a shared bulk id.
func (s *Session) AddOrders(orders []domain.DraftOrder) string {
	bulkID := s.basket.AddAll(orders)
	s.dispatch(setBasket{orders: s.basket.Orders()})
	return bulkID
}

// RemoveOrder drops one draft from the basket. A no-op for unknown ids; the
// return value reports whether anything was removed.
func (s *Session) RemoveOrder(id string) bool {
	if !s.basket.Remove(id) {
		return false
	}
	s.dispatch(setBasket{orders: s.basket.Orders()})
	return true
}

// UpdateOrder patches one staged draft.
func (s *Session) UpdateOrder(id string, patch domain.OrderPatch) (domain.DraftOrder, error) {
	order, err := s.basket.Update(id, patch)
	if err != nil {
		return domain.DraftOrder{}, err
	}
	s.dispatch(setBasket{orders: s.basket.Orders()})
	return order, nil
}

// ClearBasket removes all staged drafts.
func (s *Session) ClearBasket() int {
	n := s.basket.Clear()
	s.dispatch(setBasket{orders: nil})
	return n
}

// ClearResults discards the results of the last execution pass.
func (s *Session) ClearResults() {
	s.dispatch(setResults{results: nil})
}

// Validate runs the pre-trade checks for one draft against the current
// snapshot.
func (s *Session) Validate(order domain.DraftOrder) safety.ValidationResult {
	state := s.State()
	if order.Side == domain.OrderSideSell {
		return safety.ValidateSell(order, state.Positions.Data)
	}
	price := safety.EstimatePrice(state.MarketData.Data[order.Symbol])
	if order.Type == domain.OrderTypeLimit && order.LimitPrice.IsPositive() {
		price = order.LimitPrice
	}
	if !price.IsPositive() {
		// No quote yet for this symbol. Affordability is re-checked by the
		// backend at execution time, so don't block staging.
		return safety.ValidationResult{Valid: true, Message: "no quote available, affordability not checked"}
	}
	return safety.ValidateBuy(order, price, state.Account.Data)
}

// PreviewBasket predicts whether executing the current basket will trigger a
// confirmation hold.
func (s *Session) PreviewBasket() safety.Preview {
	state := s.State()
	return safety.PreviewBasket(s.basket.Orders(), state.Limits)
}
