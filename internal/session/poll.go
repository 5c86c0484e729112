package session

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/daanheslenfeld/etf-test-sub001/internal/cache"
	"github.com/daanheslenfeld/etf-test-sub001/internal/domain"
	"github.com/daanheslenfeld/etf-test-sub001/internal/metrics"
)

// startPolling refreshes all datasets immediately and then on every tick.
// Each dataset is fetched by its own goroutine so one slow endpoint cannot
// delay the others.
func (s *Session) startPolling(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.refreshAll(ctx)

		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.refreshAll(ctx)
			}
		}
	}()
}

// refreshAll launches one fetch per dataset.
func (s *Session) refreshAll(ctx context.Context) {
	fetches := []func(context.Context){
		s.pollHealth,
		s.pollAccount,
		s.pollPositions,
		s.pollOrders,
		s.pollMarketData,
		s.pollTradability,
		s.pollLimits,
	}
	for _, fetch := range fetches {
		fetch := fetch
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			fetch(ctx)
		}()
	}
}

// beginFetch bumps the dataset's generation counter and returns the new
// value. A fetch may only publish if its generation is still current when the
// response arrives; anything older was superseded by a newer fetch and is
// discarded.
func (s *Session) beginFetch(dataset string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen[dataset]++
	return s.gen[dataset]
}

func (s *Session) fetchCurrent(dataset string, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen[dataset] == gen
}

// cachePut stores a fresh snapshot, logging but not propagating failures: a
// broken cache must not break live data flow.
func (s *Session) cachePut(ctx context.Context, dataset string, payload any) {
	if s.store == nil {
		return
	}
	if err := s.store.Put(ctx, s.userID, dataset, payload); err != nil {
		s.log.Warn("caching snapshot failed", "dataset", dataset, "error", err)
	}
}

func (s *Session) pollHealth(ctx context.Context) {
	if s.status == nil {
		return
	}
	gen := s.beginFetch("health")
	status, err := s.status.Health(ctx)
	if !s.fetchCurrent("health", gen) {
		return
	}
	if err != nil {
		s.log.Debug("health check failed", "error", err)
		s.dispatch(setConnection{status: domain.ConnectionStatus{
			Connected: false,
			Account:   s.State().Connection.Account,
			Mode:      s.State().Connection.Mode,
		}})
		return
	}
	s.dispatch(setConnection{status: status})
}

func (s *Session) pollAccount(ctx context.Context) {
	gen := s.beginFetch(cache.DatasetSummary)
	summary, err := s.broker.Account(ctx)
	if !s.fetchCurrent(cache.DatasetSummary, gen) {
		return
	}
	if err == nil {
		metrics.IncPollCycle(cache.DatasetSummary, "ok")
		s.cachePut(ctx, cache.DatasetSummary, summary)
		s.dispatch(setAccount{data: Dataset[domain.AccountSummary]{
			Data:      summary,
			FetchedAt: time.Now().UTC(),
		}})
		return
	}
	s.log.Debug("account fetch failed", "error", err)

	var cached domain.AccountSummary
	ts, cerr := s.cacheGet(ctx, cache.DatasetSummary, &cached)
	if cerr != nil {
		metrics.IncPollCycle(cache.DatasetSummary, "error")
		// No fallback either: an explicit error state, not silence.
		s.dispatch(setAccount{data: Dataset[domain.AccountSummary]{Err: err.Error()}})
		return
	}
	metrics.IncPollCycle(cache.DatasetSummary, "stale_fallback")
	s.dispatch(setAccount{data: Dataset[domain.AccountSummary]{
		Data:      cached,
		Stale:     true,
		FetchedAt: ts,
	}})
}

func (s *Session) pollPositions(ctx context.Context) {
	gen := s.beginFetch(cache.DatasetPositions)
	positions, err := s.broker.Positions(ctx)
	if !s.fetchCurrent(cache.DatasetPositions, gen) {
		return
	}
	if err == nil {
		metrics.IncPollCycle(cache.DatasetPositions, "ok")
		s.cachePut(ctx, cache.DatasetPositions, positions)
		// Wholesale replacement: the fetched list is the new truth, never
		// merged with what was displayed before.
		s.dispatch(setPositions{data: Dataset[[]domain.Position]{
			Data:      positions,
			FetchedAt: time.Now().UTC(),
		}})
		return
	}
	s.log.Debug("positions fetch failed", "error", err)

	var cached []domain.Position
	ts, cerr := s.cacheGet(ctx, cache.DatasetPositions, &cached)
	if cerr != nil {
		metrics.IncPollCycle(cache.DatasetPositions, "error")
		s.dispatch(setPositions{data: Dataset[[]domain.Position]{Err: err.Error()}})
		return
	}
	metrics.IncPollCycle(cache.DatasetPositions, "stale_fallback")
	for i := range cached {
		cached[i].PriceStale = true
	}
	s.dispatch(setPositions{data: Dataset[[]domain.Position]{
		Data:      cached,
		Stale:     true,
		FetchedAt: ts,
	}})
}

func (s *Session) pollOrders(ctx context.Context) {
	gen := s.beginFetch(cache.DatasetOrders)
	orders, err := s.broker.Orders(ctx)
	if !s.fetchCurrent(cache.DatasetOrders, gen) {
		return
	}
	if err == nil {
		metrics.IncPollCycle(cache.DatasetOrders, "ok")
		s.cachePut(ctx, cache.DatasetOrders, orders)
		s.dispatch(setOrders{data: Dataset[[]domain.OrderRecord]{
			Data:      orders,
			FetchedAt: time.Now().UTC(),
		}})
		s.correlateResults(orders)
		return
	}
	s.log.Debug("orders fetch failed", "error", err)

	var cached []domain.OrderRecord
	ts, cerr := s.cacheGet(ctx, cache.DatasetOrders, &cached)
	if cerr != nil {
		metrics.IncPollCycle(cache.DatasetOrders, "error")
		s.dispatch(setOrders{data: Dataset[[]domain.OrderRecord]{Err: err.Error()}})
		return
	}
	metrics.IncPollCycle(cache.DatasetOrders, "stale_fallback")
	s.dispatch(setOrders{data: Dataset[[]domain.OrderRecord]{
		Data:      cached,
		Stale:     true,
		FetchedAt: ts,
	}})
}

func (s *Session) pollMarketData(ctx context.Context) {
	symbols := s.watchedSymbols()
	if len(symbols) == 0 {
		return
	}

	gen := s.beginFetch(cache.DatasetMarketData)
	quotes, err := s.broker.Quotes(ctx, symbols)
	if !s.fetchCurrent(cache.DatasetMarketData, gen) {
		return
	}
	if err == nil {
		metrics.IncPollCycle(cache.DatasetMarketData, "ok")
		s.cachePut(ctx, cache.DatasetMarketData, quotes)
		s.dispatch(setMarketData{data: Dataset[map[string]domain.MarketDataEntry]{
			Data:      quotes,
			FetchedAt: time.Now().UTC(),
		}})
		return
	}
	s.log.Debug("market data fetch failed", "error", err)

	var cached map[string]domain.MarketDataEntry
	ts, cerr := s.cacheGet(ctx, cache.DatasetMarketData, &cached)
	if cerr != nil {
		metrics.IncPollCycle(cache.DatasetMarketData, "error")
		s.dispatch(setMarketData{data: Dataset[map[string]domain.MarketDataEntry]{Err: err.Error()}})
		return
	}
	metrics.IncPollCycle(cache.DatasetMarketData, "stale_fallback")
	for sym, entry := range cached {
		entry.Delayed = true
		cached[sym] = entry
	}
	s.dispatch(setMarketData{data: Dataset[map[string]domain.MarketDataEntry]{
		Data:      cached,
		Stale:     true,
		FetchedAt: ts,
	}})
}

func (s *Session) pollTradability(ctx context.Context) {
	if s.status == nil {
		return
	}
	gen := s.beginFetch(cache.DatasetTradability)
	tradability, err := s.status.Tradability(ctx)
	if !s.fetchCurrent(cache.DatasetTradability, gen) {
		return
	}
	if err == nil {
		metrics.IncPollCycle(cache.DatasetTradability, "ok")
		s.cachePut(ctx, cache.DatasetTradability, tradability)
		s.dispatch(setTradability{data: Dataset[map[string]bool]{
			Data:      tradability,
			FetchedAt: time.Now().UTC(),
		}})
		return
	}
	s.log.Debug("tradability fetch failed", "error", err)

	var cached map[string]bool
	ts, cerr := s.cacheGet(ctx, cache.DatasetTradability, &cached)
	if cerr != nil {
		metrics.IncPollCycle(cache.DatasetTradability, "error")
		s.dispatch(setTradability{data: Dataset[map[string]bool]{Err: err.Error()}})
		return
	}
	metrics.IncPollCycle(cache.DatasetTradability, "stale_fallback")
	s.dispatch(setTradability{data: Dataset[map[string]bool]{
		Data:      cached,
		Stale:     true,
		FetchedAt: ts,
	}})
}

// pollLimits refreshes the server-managed safety limits. No cache fallback:
// on failure the previously held limits stay in effect.
func (s *Session) pollLimits(ctx context.Context) {
	if s.status == nil {
		return
	}
	gen := s.beginFetch("limits")
	limits, err := s.status.SafetyLimits(ctx)
	if !s.fetchCurrent("limits", gen) {
		return
	}
	if err != nil {
		s.log.Debug("safety limits fetch failed", "error", err)
		return
	}
	s.dispatch(setLimits{limits: limits})
}

// correlateResults enriches submitted execution results with the fill state
// of the freshly polled order history, matched by remote order id. Submitted
// orders become filled or partially filled as the remote reports progress;
// terminal and unmatched results are left alone.
func (s *Session) correlateResults(records []domain.OrderRecord) {
	byID := make(map[string]domain.OrderRecord, len(records))
	for _, r := range records {
		byID[r.OrderID] = r
	}

	for _, res := range s.State().Results {
		if res.OrderID == "" {
			continue
		}
		if res.Status != domain.ExecutionSubmitted && res.Status != domain.ExecutionPartiallyFilled {
			continue
		}
		rec, ok := byID[res.OrderID]
		if !ok {
			continue
		}
		switch {
		case strings.EqualFold(rec.Status, "filled"):
			res.Status = domain.ExecutionFilled
			res.FilledQty = rec.FilledQty
			if res.FilledQty == 0 {
				res.FilledQty = res.Quantity
			}
		case rec.FilledQty > 0 && rec.FilledQty > res.FilledQty:
			res.Status = domain.ExecutionPartiallyFilled
			res.FilledQty = rec.FilledQty
		default:
			continue
		}
		s.dispatch(updateResult{result: res})
	}
}

func (s *Session) cacheGet(ctx context.Context, dataset string, out any) (time.Time, error) {
	if s.store == nil {
		return time.Time{}, cache.ErrNoSnapshot
	}
	return s.store.Get(ctx, s.userID, dataset, out)
}

// watchedSymbols returns the union of position and basket symbols, sorted
// for a deterministic request.
func (s *Session) watchedSymbols() []string {
	seen := map[string]bool{}
	for _, p := range s.State().Positions.Data {
		seen[p.Symbol] = true
	}
	for _, o := range s.basket.Orders() {
		seen[o.Symbol] = true
	}
	symbols := make([]string, 0, len(seen))
	for sym := range seen {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols
}
