// Package api serves the node's HTTP surface: request submission, read-only
// book views, a websocket event feed, health and metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/meshbook/pkg/book"
	"github.com/uhyunpark/meshbook/pkg/pipeline"
	"github.com/uhyunpark/meshbook/pkg/rpc"
)

// BookViews are the read-only queries the pipeline serves between batches.
type BookViews interface {
	Snapshot(ctx context.Context) ([]book.Order, error)
	Depth(ctx context.Context) (pipeline.Depth, error)
	Order(ctx context.Context, id string) (book.Order, error)
}

type RequestHandler interface {
	Handle(ctx context.Context, req rpc.Request) (rpc.Reply, error)
}

type Config struct {
	PeerID   string
	Views    BookViews
	Requests RequestHandler
	Hub      *Hub
	Metrics  http.Handler  // served on /metrics when set
	Peers    func() int    // connected peer count for /health, optional
	Timeout  time.Duration // per-request view timeout
	Logger   *zap.SugaredLogger
}

// Server handles REST API and WebSocket connections
type Server struct {
	cfg    Config
	router *mux.Router
	hub    *Hub
	log    *zap.SugaredLogger
}

func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.Hub == nil {
		cfg.Hub = NewHub(cfg.Logger)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	s := &Server{
		cfg:    cfg,
		router: mux.NewRouter(),
		hub:    cfg.Hub,
		log:    cfg.Logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Request submission (ADD_ORDER / DELETE_ORDER)
	api.HandleFunc("/requests", s.handleRequest).Methods("POST")
	api.HandleFunc("/orders/{id}", s.handleDeleteOrder).Methods("DELETE")

	// Book views
	api.HandleFunc("/orderbook", s.handleGetOrderbook).Methods("GET")
	api.HandleFunc("/orders", s.handleGetOrders).Methods("GET")
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	if s.cfg.Metrics != nil {
		s.router.Handle("/metrics", s.cfg.Metrics).Methods("GET")
	}
}

// Handler returns the routed handler wrapped in CORS.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Infow("api_listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	var req rpc.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	s.submit(w, r, req)
}

func (s *Server) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	s.submit(w, r, rpc.Request{Type: rpc.DeleteOrder, OrderID: mux.Vars(r)["id"]})
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, req rpc.Request) {
	reply, err := s.cfg.Requests.Handle(r.Context(), req)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(reply)
}

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Timeout)
	defer cancel()

	depth, err := s.cfg.Views.Depth(ctx)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, OrderbookSnapshot{
		PeerID:    s.cfg.PeerID,
		Bids:      levels(depth.Bids),
		Asks:      levels(depth.Asks),
		Timestamp: time.Now().UnixMilli(),
	})
}

// handleGetOrders supports ?side=buy|sell and ?peer=<id> filters.
func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	side := book.Side(r.URL.Query().Get("side"))
	if side != "" && !side.Valid() {
		respondError(w, http.StatusBadRequest, "invalid side", string(side))
		return
	}
	peer := r.URL.Query().Get("peer")

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Timeout)
	defer cancel()
	all, err := s.cfg.Views.Snapshot(ctx)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	orders := make([]book.Order, 0, len(all))
	for _, o := range all {
		if (side == "" || o.Side == side) && (peer == "" || o.PeerID == peer) {
			orders = append(orders, o)
		}
	}
	respondJSON(w, OrdersResponse{Count: len(orders), Orders: orders})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Timeout)
	defer cancel()

	o, err := s.cfg.Views.Order(ctx, mux.Vars(r)["id"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, o)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", PeerID: s.cfg.PeerID}
	if s.cfg.Peers != nil {
		resp.Peers = s.cfg.Peers()
	}
	respondJSON(w, resp)
}

// ==============================
// Helper Functions
// ==============================

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}

func (s *Server) respondErr(w http.ResponseWriter, err error) {
	switch {
	case book.IsValidation(err):
		respondError(w, http.StatusBadRequest, "invalid request", err.Error())
	case errors.Is(err, book.ErrNotFound):
		respondError(w, http.StatusNotFound, "order not found", err.Error())
	case errors.Is(err, pipeline.ErrClosed):
		respondError(w, http.StatusServiceUnavailable, "node shutting down", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "book busy", err.Error())
	default:
		s.log.Warnw("api_request_failed", "err", err)
		respondError(w, http.StatusInternalServerError, "internal error", err.Error())
	}
}
