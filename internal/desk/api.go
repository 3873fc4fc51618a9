package desk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"trading-desk-go/internal/config"
	"trading-desk-go/internal/ledger"
	"trading-desk-go/internal/market"
)

// UserHeader carries the username of the caller. Authentication happens upstream.
const UserHeader = "X-User"

const (
	wsWriteWait  = 5 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsBuffer     = 4
)

// APIServer provides an HTTP interface for the trading desk.
type APIServer struct {
	server   *http.Server
	engine   *Engine
	logger   *zap.Logger
	origins  []string
	upgrader websocket.Upgrader
}

// NewAPIServer creates a new APIServer listening on cfg.Port.
func NewAPIServer(engine *Engine, cfg config.Server, logger *zap.Logger) *APIServer {
	s := &APIServer{
		engine:  engine,
		logger:  logger.Named("api-server"),
		origins: cfg.AllowedOrigins,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routes of the API.
func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /status", s.statusHandler)
	mux.HandleFunc("GET /api/prices", s.pricesHandler)
	mux.HandleFunc("GET /api/positions", s.positionsHandler)
	mux.HandleFunc("POST /api/positions", s.openHandler)
	mux.HandleFunc("DELETE /api/positions/{id}", s.closeHandler)
	mux.HandleFunc("DELETE /api/session", s.endSessionHandler)
	mux.HandleFunc("GET /ws/prices", s.streamHandler)
	return mux
}

// Start runs the HTTP server in a new goroutine.
func (s *APIServer) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *APIServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}

// checkOrigin accepts requests without an Origin header, same-host origins
// and the configured allow list.
func (s *APIServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.origins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	s.logger.Warn("Rejected websocket origin", zap.String("origin", origin))
	return false
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *APIServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to write response", zap.Error(err))
	}
}

// writeError maps ledger conditions to client errors; anything else is a 500.
func (s *APIServer) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNoUser):
		status = http.StatusUnauthorized
	case errors.Is(err, ledger.ErrInvalidStake), errors.Is(err, ledger.ErrInvalidInstrument):
		status = http.StatusBadRequest
	case errors.Is(err, ledger.ErrInsufficientFunds), errors.Is(err, ledger.ErrSessionEnded):
		status = http.StatusConflict
	case errors.Is(err, ledger.ErrPositionNotFound):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.Error(err))
		s.writeJSON(w, status, errorResponse{Error: "internal error"})
		return
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *APIServer) session(r *http.Request) (*ledger.Ledger, error) {
	return s.engine.Session(r.Context(), r.Header.Get(UserHeader))
}

func (s *APIServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (s *APIServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := struct {
		UUID        string `json:"uuid"`
		Name        string `json:"name"`
		StartTime   string `json:"start_time"`
		Uptime      string `json:"uptime"`
		Ticks       uint64 `json:"ticks"`
		Sessions    int    `json:"sessions"`
		Subscribers int    `json:"subscribers"`
	}{
		UUID:        s.engine.UUID,
		Name:        s.engine.Name,
		StartTime:   s.engine.StartTime.Format(time.RFC3339),
		Uptime:      time.Since(s.engine.StartTime).String(),
		Ticks:       s.engine.Market().Ticks(),
		Sessions:    s.engine.SessionCount(),
		Subscribers: s.engine.Broadcaster().Len(),
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *APIServer) pricesHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, struct {
		Quotes []market.Quote `json:"quotes"`
	}{Quotes: s.engine.Market().Prices()})
}

// positionsResponse is the trading-desk view of one user.
type positionsResponse struct {
	Balance   decimal.Decimal       `json:"balance"`
	Positions []ledger.PositionView `json:"positions"`
}

func (s *APIServer) positionsHandler(w http.ResponseWriter, r *http.Request) {
	l, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	views, err := l.Snapshot()
	if err != nil {
		s.writeError(w, err)
		return
	}
	bal, err := l.Balance(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, positionsResponse{Balance: bal, Positions: views})
}

type openRequest struct {
	Symbol string `json:"symbol"`
	Stake  int64  `json:"stake"`
}

func (s *APIServer) openHandler(w http.ResponseWriter, r *http.Request) {
	l, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req openRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	pos, err := l.Open(r.Context(), req.Symbol, req.Stake)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, pos)
}

func (s *APIServer) closeHandler(w http.ResponseWriter, r *http.Request) {
	l, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "position id must be an integer"})
		return
	}

	settlement, err := l.Close(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, settlement)
}

func (s *APIServer) endSessionHandler(w http.ResponseWriter, r *http.Request) {
	user := r.Header.Get(UserHeader)
	if user == "" {
		s.writeError(w, ErrNoUser)
		return
	}
	settled, err := s.engine.EndSession(r.Context(), user)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if settled == nil {
		settled = []ledger.Settlement{}
	}
	s.writeJSON(w, http.StatusOK, struct {
		Settled []ledger.Settlement `json:"settled"`
	}{Settled: settled})
}

// streamHandler pushes a snapshot after every tick until the client goes away.
func (s *APIServer) streamHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	updates, unsubscribe := s.engine.Broadcaster().Subscribe(wsBuffer)
	defer unsubscribe()

	// The read loop only exists to notice the client closing the stream.
	gone := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	initial := Snapshot{Tick: s.engine.Market().Ticks(), Time: time.Now(), Quotes: s.engine.Market().Prices()}
	if err := s.writeFrame(conn, initial); err != nil {
		return
	}

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := s.writeFrame(conn, snap); err != nil {
				s.logger.Debug("Price stream closed", zap.Error(err))
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *APIServer) writeFrame(conn *websocket.Conn, snap Snapshot) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(snap)
}
