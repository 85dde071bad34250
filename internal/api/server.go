// Package api provides the HTTP and websocket surface of the market.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token when an admin key is configured.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/talgya/mini-market/internal/agents"
	"github.com/talgya/mini-market/internal/economy"
	"github.com/talgya/mini-market/internal/engine"
	"github.com/talgya/mini-market/internal/hub"
	"github.com/talgya/mini-market/internal/persistence"
	"github.com/talgya/mini-market/internal/protocol"
)

// Defaults for shops created through POST /shops.
const (
	DefaultShopBalance  = 1000.0
	DefaultShopQuantity = 50
)

const maxBodyBytes = 64 << 10

// Store is the persistence the API reads and writes.
type Store interface {
	ListAgents(ctx context.Context) ([]*agents.Agent, error)
	ListShops(ctx context.Context) ([]*economy.Shop, error)
	GetShop(ctx context.Context, id string) (*economy.Shop, error)
	CreateShop(ctx context.Context, shop *economy.Shop) error
}

// Server serves the market over HTTP.
type Server struct {
	Eng         *engine.Engine
	Store       Store
	Addr        string
	AdminKey    string   // Bearer token for POST endpoints. Empty = POST open.
	CORSOrigins []string // "*" allows any origin

	// ShopLimiter throttles POST /shops per client. Nil disables it.
	ShopLimiter *RateLimiter

	httpServer *http.Server
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Observers are read-only; any origin may watch.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler returns the full routing tree with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/shops", s.handleShops)
	mux.HandleFunc("/shops/", s.handleShopDetail)
	mux.HandleFunc("/agents", s.handleAgents)
	mux.HandleFunc("/agents/", s.handleAgentDetail)
	mux.HandleFunc("/simulation/status", s.handleStatus)
	mux.HandleFunc("/simulation/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("/simulation/pause", s.adminOnly(s.handlePause))
	mux.HandleFunc("/simulation/resume", s.adminOnly(s.handleResume))
	mux.HandleFunc("/realtime", s.handleRealtime)

	return corsMiddleware(s.CORSOrigins, mux)
}

// Start begins serving in a goroutine.
func (s *Server) Start() {
	s.httpServer = &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", s.Addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Shutdown stops accepting requests and waits for in-flight ones.
// Hijacked websocket connections are not tracked by net/http and are
// closed by their own read loops.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// corsMiddleware adds CORS headers for allowed frontend origins.
func corsMiddleware(origins []string, next http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (allowAll || allowed[origin]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(token), []byte(s.AdminKey)) == 1
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through (for endpoints that support both GET and POST).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && s.AdminKey != "" && !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, map[string]any{
		"status": "ok",
		"tick":   s.Eng.CurrentTick(),
	})
}

func (s *Server) handleShops(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		shops, err := s.Store.ListShops(r.Context())
		if err != nil {
			slog.Error("list shops failed", "error", err)
			http.Error(w, "failed to list shops", http.StatusInternalServerError)
			return
		}
		if shops == nil {
			shops = []*economy.Shop{}
		}
		writeJSON(w, shops)
	case http.MethodPost:
		create := s.adminOnly(s.createShop)
		if s.ShopLimiter != nil {
			create = RateLimitMiddleware(s.ShopLimiter, create)
		}
		create(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) createShop(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}
	req, err := protocol.DecodeCreateShop(raw)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid shop: %v", err), http.StatusBadRequest)
		return
	}

	// A zero balance means "not given", as the web client sends it.
	balance := DefaultShopBalance
	if req.Balance != nil && *req.Balance > 0 {
		balance = *req.Balance
	}
	shop := &economy.Shop{
		ID:      uuid.NewString(),
		Name:    req.Name,
		Type:    req.Type,
		X:       req.Position.X,
		Y:       req.Position.Y,
		Balance: balance,
		Inventory: []economy.Item{
			{ItemID: economy.GoodBread, Quantity: DefaultShopQuantity, Price: economy.BasePrice},
		},
	}

	if err := s.Store.CreateShop(r.Context(), shop); err != nil {
		slog.Error("create shop failed", "error", err)
		http.Error(w, "failed to create shop", http.StatusInternalServerError)
		return
	}

	// The engine owns shop from here on.
	created := shop.Clone()
	if err := s.Eng.AddShop(shop); err != nil {
		slog.Warn("shop persisted but not announced", "shop", shop.ID, "error", err)
	}
	slog.Info("shop created", "shop", created.ID, "name", created.Name, "x", created.X, "y", created.Y)

	writeJSONStatus(w, http.StatusCreated, created)
}

// handleShopDetail returns the live state of one shop, falling back to
// the stored record for shops the engine has not loaded.
func (s *Server) handleShopDetail(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/shops/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	if shop, ok := s.Eng.Sim.Shop(id); ok {
		writeJSON(w, shop)
		return
	}

	shop, err := s.Store.GetShop(r.Context(), id)
	if errors.Is(err, persistence.ErrNotFound) {
		http.Error(w, "shop not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("get shop failed", "shop", id, "error", err)
		http.Error(w, "failed to get shop", http.StatusInternalServerError)
		return
	}
	writeJSON(w, shop)
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	list, err := s.Store.ListAgents(r.Context())
	if err != nil {
		slog.Error("list agents failed", "error", err)
		http.Error(w, "failed to list agents", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*agents.Agent{}
	}
	writeJSON(w, list)
}

// handleAgentDetail returns the live state of one agent.
func (s *Server) handleAgentDetail(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/agents/")
	a, ok := s.Eng.Sim.Agent(id)
	if !ok {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}
	writeJSON(w, a)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	state := s.Eng.Sim.InitialState()
	up := s.Eng.Uptime()
	now := time.Now()

	writeJSON(w, map[string]any{
		"tick":      s.Eng.CurrentTick(),
		"speed":     s.Eng.Speed(),
		"period_ms": s.Eng.Period().Milliseconds(),
		"running":   s.Eng.Running(),
		"paused":    s.Eng.Paused(),
		"uptime":    strings.TrimSpace(humanize.RelTime(now.Add(-up), now, "", "")),
		"agents":    len(state.Agents),
		"shops":     len(state.Shops),
		"clients":   s.Eng.Sim.Clients(),
		"stats":     s.Eng.Sim.Stats(),
	})
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		req, err := protocol.DecodeSpeed(raw)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid speed: %v", err), http.StatusBadRequest)
			return
		}
		if err := s.Eng.SetSpeed(req.Speed); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, map[string]any{
		"speed":     s.Eng.Speed(),
		"period_ms": s.Eng.Period().Milliseconds(),
	})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.Eng.Pause()
	writeJSON(w, map[string]any{"paused": true, "tick": s.Eng.CurrentTick()})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.Eng.Resume()
	writeJSON(w, map[string]any{"paused": false, "tick": s.Eng.CurrentTick()})
}

// handleRealtime upgrades to a websocket and streams world state until
// the client goes away.
func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		slog.Debug("websocket upgrade failed", "error", err)
		return
	}

	conn := hub.NewWSConn(ws, hub.DefaultQueueSize)
	if err := s.Eng.AddClient(conn); err != nil {
		slog.Warn("initial state not delivered", "remote", r.RemoteAddr, "error", err)
	}
	defer s.Eng.RemoveClient(conn)

	conn.ReadLoop()
}

func writeJSON(w http.ResponseWriter, data any) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}
