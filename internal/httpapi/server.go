// Package httpapi serves the dashboard REST API and the websocket state
// stream. All trading state lives in the session; handlers translate HTTP
// requests into session operations and snapshots into JSON.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/daanheslenfeld/etf-test-sub001/internal/domain"
	"github.com/daanheslenfeld/etf-test-sub001/internal/gateway"
	"github.com/daanheslenfeld/etf-test-sub001/internal/journal"
	"github.com/daanheslenfeld/etf-test-sub001/internal/session"
)

// Server serves the dashboard HTTP API for one trading session.
type Server struct {
	session *session.Session
	journal *journal.Journal // nil disables the executions endpoints
	userID  string
	log     *slog.Logger
}

// NewServer creates the API server.
func NewServer(sess *session.Session, jnl *journal.Journal, userID string, log *slog.Logger) *Server {
	return &Server{
		session: sess,
		journal: jnl,
		userID:  userID,
		log:     log,
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/state", s.handleState)

	mux.HandleFunc("GET /api/basket", s.handleGetBasket)
	mux.HandleFunc("POST /api/basket", s.handleAddOrder)
	mux.HandleFunc("POST /api/basket/bulk", s.handleAddBulk)
	mux.HandleFunc("PATCH /api/basket/{id}", s.handleUpdateOrder)
	mux.HandleFunc("DELETE /api/basket/{id}", s.handleRemoveOrder)
	mux.HandleFunc("DELETE /api/basket", s.handleClearBasket)
	mux.HandleFunc("GET /api/basket/preview", s.handlePreview)

	mux.HandleFunc("POST /api/execute", s.handleExecute)
	mux.HandleFunc("POST /api/execute/confirm", s.handleConfirm)
	mux.HandleFunc("POST /api/execute/cancel", s.handleCancelHold)

	mux.HandleFunc("GET /api/results", s.handleResults)
	mux.HandleFunc("DELETE /api/results", s.handleClearResults)

	mux.HandleFunc("DELETE /api/orders/{id}", s.handleCancelOrder)

	mux.HandleFunc("GET /api/executions", s.handleExecutionDays)
	mux.HandleFunc("GET /api/executions/{date}", s.handleExecutions)

	mux.HandleFunc("GET /api/etfs", s.handleETFs)

	mux.HandleFunc("GET /ws", s.handleWS)
	mux.Handle("GET /metrics", promhttp.Handler())
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// ---------------------------------------------------------------------------
// State
// ---------------------------------------------------------------------------

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.session.State())
}

// ---------------------------------------------------------------------------
// Basket
// ---------------------------------------------------------------------------

func (s *Server) handleGetBasket(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.session.State().Basket)
}

func (s *Server) handleAddOrder(w http.ResponseWriter, r *http.Request) {
	var req AddOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	order, err := req.toDraft()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if res := s.session.Validate(order); !res.Valid {
		writeJSONStatus(w, http.StatusUnprocessableEntity, res)
		return
	}

	id := s.session.AddOrder(order)
	writeJSONStatus(w, http.StatusCreated, AddOrderResponse{ID: id})
}

func (s *Server) handleAddBulk(w http.ResponseWriter, r *http.Request) {
	var req AddBulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Orders) == 0 {
		writeError(w, http.StatusBadRequest, "orders required")
		return
	}

	drafts := make([]domain.DraftOrder, 0, len(req.Orders))
	for _, o := range req.Orders {
		order, err := o.toDraft()
		if err != nil {
			writeError(w, http.StatusBadRequest, "order "+o.Symbol+": "+err.Error())
			return
		}
		if res := s.session.Validate(order); !res.Valid {
			writeJSONStatus(w, http.StatusUnprocessableEntity, res)
			return
		}
		drafts = append(drafts, order)
	}

	bulkID := s.session.AddOrders(drafts)
	ids := make([]string, len(drafts))
	for i, d := range drafts {
		ids[i] = d.ID
	}
	writeJSONStatus(w, http.StatusCreated, AddBulkResponse{BulkID: bulkID, IDs: ids})
}

func (s *Server) handleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	var req UpdateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	patch := domain.OrderPatch{
		Quantity:   req.Quantity,
		LimitPrice: req.LimitPrice,
		StopPrice:  req.StopPrice,
	}
	if req.OrderType != nil {
		typ := domain.OrderType(*req.OrderType)
		patch.Type = &typ
	}

	order, err := s.session.UpdateOrder(r.PathValue("id"), patch)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, order)
}

// handleRemoveOrder deletes one basket draft. Removing an id that is no
// longer in the basket succeeds too, so a repeated delete is harmless.
func (s *Server) handleRemoveOrder(w http.ResponseWriter, r *http.Request) {
	s.session.RemoveOrder(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearBasket(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, ClearResponse{Removed: s.session.ClearBasket()})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.session.PreviewBasket())
}

// ---------------------------------------------------------------------------
// Execution
// ---------------------------------------------------------------------------

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	confirmed := r.URL.Query().Get("confirmed") == "true"
	results, err := s.session.ExecuteBasket(r.Context(), confirmed)
	s.writeExecuteOutcome(w, results, err)
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	results, err := s.session.Confirm(r.Context())
	s.writeExecuteOutcome(w, results, err)
}

func (s *Server) writeExecuteOutcome(w http.ResponseWriter, results []domain.ExecutionResult, err error) {
	switch {
	case errors.Is(err, session.ErrEmptyBasket):
		writeError(w, http.StatusBadRequest, "basket is empty")
	case errors.Is(err, session.ErrExecutionInProgress):
		writeError(w, http.StatusConflict, "execution already in progress")
	case errors.Is(err, session.ErrHoldPending):
		writeError(w, http.StatusConflict, "confirmation pending, confirm or cancel it first")
	case errors.Is(err, session.ErrNoHold):
		writeError(w, http.StatusConflict, "no confirmation pending")
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, ExecuteResponse{
			Results: results,
			Halted:  s.session.State().Hold != nil,
		})
	}
}

func (s *Server) handleCancelHold(w http.ResponseWriter, r *http.Request) {
	err := s.session.CancelHold(r.Context())
	if errors.Is(err, session.ErrNoHold) {
		writeError(w, http.StatusConflict, "no confirmation pending")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	results := s.session.State().Results
	if results == nil {
		results = []domain.ExecutionResult{}
	}
	writeJSON(w, results)
}

func (s *Server) handleClearResults(w http.ResponseWriter, r *http.Request) {
	s.session.ClearResults()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	if err := s.session.CancelOrder(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleETFs serves the tradable instrument universe. Gateway-backed
// sessions only; other brokers have no catalog to serve.
func (s *Server) handleETFs(w http.ResponseWriter, r *http.Request) {
	etfs, err := s.session.ETFs(r.Context())
	if errors.Is(err, session.ErrGatewayOnly) {
		writeError(w, http.StatusNotFound, "etf catalog not available for this broker")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if etfs == nil {
		etfs = []gateway.ETF{}
	}
	writeJSON(w, etfs)
}

// ---------------------------------------------------------------------------
// Execution journal
// ---------------------------------------------------------------------------

func (s *Server) handleExecutionDays(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusNotFound, "journal not configured")
		return
	}
	days, err := s.journal.Days(r.Context(), s.userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list journal days")
		return
	}
	if days == nil {
		days = []string{}
	}
	writeJSON(w, DaysResponse{Days: days})
}

func (s *Server) handleExecutions(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusNotFound, "journal not configured")
		return
	}
	day, err := time.Parse("2006-01-02", r.PathValue("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	records, err := s.journal.Read(r.Context(), s.userID, day)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read journal")
		return
	}
	if records == nil {
		records = []journal.ExecutionRecord{}
	}
	writeJSON(w, records)
}

// writeJSONStatus writes a JSON body with an explicit status code.
func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
