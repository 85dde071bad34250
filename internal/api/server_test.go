package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/mini-market/internal/agents"
	"github.com/talgya/mini-market/internal/economy"
	"github.com/talgya/mini-market/internal/engine"
	"github.com/talgya/mini-market/internal/persistence"
)

func newTestServer(t *testing.T) (*Server, *persistence.DB) {
	t.Helper()
	db, err := persistence.Open(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	sim := engine.NewSimulation(engine.DefaultConfig(), nil, nil)
	return &Server{
		Eng:         engine.NewEngine(sim, db, 0),
		Store:       db,
		CORSOrigins: []string{"http://localhost:5173"},
	}, db
}

func do(t *testing.T, h http.Handler, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestRoot(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if body["status"] != "ok" || body["tick"] != float64(0) {
		t.Errorf("body = %v", body)
	}

	if rec := do(t, h, http.MethodGet, "/nope", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown path status = %d", rec.Code)
	}
}

func TestCreateShop(t *testing.T) {
	s, db := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/shops", `{"name":"Bakery","position":{"x":120,"y":80}}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	shop := decode[economy.Shop](t, rec)
	if shop.ID == "" || shop.Name != "Bakery" || shop.Type != "general" {
		t.Errorf("shop = %+v", shop)
	}
	if shop.Balance != DefaultShopBalance || shop.X != 120 || shop.Y != 80 {
		t.Errorf("shop = %+v", shop)
	}
	if len(shop.Inventory) != 1 || shop.Inventory[0].Quantity != 50 || shop.Inventory[0].Price != 50 {
		t.Errorf("inventory = %+v", shop.Inventory)
	}

	stored, err := db.GetShop(context.Background(), shop.ID)
	if err != nil {
		t.Fatalf("shop not persisted: %v", err)
	}
	if stored.Name != "Bakery" {
		t.Errorf("stored = %+v", stored)
	}
	if _, ok := s.Eng.Sim.Shop(shop.ID); !ok {
		t.Error("shop not inserted into the live registry")
	}

	list := decode[[]economy.Shop](t, do(t, h, http.MethodGet, "/shops", "", nil))
	if len(list) != 1 || list[0].ID != shop.ID {
		t.Errorf("GET /shops = %+v", list)
	}

	detail := do(t, h, http.MethodGet, "/shops/"+shop.ID, "", nil)
	if detail.Code != http.StatusOK {
		t.Errorf("GET /shops/{id} status = %d", detail.Code)
	}
}

func TestCreateShopBalance(t *testing.T) {
	tests := []struct {
		name string
		body string
		want float64
	}{
		{"absent", `{"name":"Kiosk","position":{"x":1,"y":2}}`, DefaultShopBalance},
		{"zero falls back", `{"name":"Kiosk","position":{"x":1,"y":2},"balance":0}`, DefaultShopBalance},
		{"explicit", `{"name":"Kiosk","type":"kiosk","position":{"x":1,"y":2},"balance":250}`, 250},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t)
			rec := do(t, s.Handler(), http.MethodPost, "/shops", tt.body, nil)
			if rec.Code != http.StatusCreated {
				t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
			}
			if shop := decode[economy.Shop](t, rec); shop.Balance != tt.want {
				t.Errorf("balance = %v, want %v", shop.Balance, tt.want)
			}
		})
	}
}

func TestCreateShopRejectsInvalid(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	bodies := []string{
		`not json`,
		`{"name":"","position":{"x":1,"y":2}}`,
		`{"name":"No position"}`,
		`{"name":"Broke","position":{"x":1,"y":2},"balance":-5}`,
	}
	for _, body := range bodies {
		if rec := do(t, h, http.MethodPost, "/shops", body, nil); rec.Code != http.StatusBadRequest {
			t.Errorf("POST %s: status = %d, want 400", body, rec.Code)
		}
	}
	if n := len(decode[[]economy.Shop](t, do(t, h, http.MethodGet, "/shops", "", nil))); n != 0 {
		t.Errorf("invalid requests persisted %d shops", n)
	}
}

func TestAdminKey(t *testing.T) {
	s, _ := newTestServer(t)
	s.AdminKey = "secret"
	h := s.Handler()
	body := `{"name":"Bakery","position":{"x":1,"y":1}}`

	if rec := do(t, h, http.MethodPost, "/shops", body, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/shops", body, map[string]string{"Authorization": "Bearer wrong"}); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/shops", body, map[string]string{"Authorization": "Bearer secret"}); rec.Code != http.StatusCreated {
		t.Errorf("good token: status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/simulation/speed", "", nil); rec.Code != http.StatusOK {
		t.Errorf("GET stays public: status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/simulation/pause", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("pause without token: status = %d", rec.Code)
	}
}

func TestCreateShopRateLimited(t *testing.T) {
	s, _ := newTestServer(t)
	s.ShopLimiter = NewRateLimiter(1, time.Hour)
	h := s.Handler()
	body := `{"name":"Bakery","position":{"x":1,"y":1}}`

	if rec := do(t, h, http.MethodPost, "/shops", body, nil); rec.Code != http.StatusCreated {
		t.Fatalf("first: status = %d", rec.Code)
	}
	rec := do(t, h, http.MethodPost, "/shops", body, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second: status = %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	// Reads are never limited.
	if rec := do(t, h, http.MethodGet, "/shops", "", nil); rec.Code != http.StatusOK {
		t.Errorf("GET /shops status = %d", rec.Code)
	}
}

func TestSpeed(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	got := decode[map[string]float64](t, do(t, h, http.MethodGet, "/simulation/speed", "", nil))
	if got["speed"] != 1 || got["period_ms"] != 500 {
		t.Errorf("initial = %v", got)
	}

	rec := do(t, h, http.MethodPost, "/simulation/speed", `{"speed":4}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	got = decode[map[string]float64](t, rec)
	if got["speed"] != 4 || got["period_ms"] != 125 {
		t.Errorf("after set = %v", got)
	}

	for _, body := range []string{`{"speed":0}`, `{"speed":-2}`, `{}`, `{"speed":"fast"}`} {
		if rec := do(t, h, http.MethodPost, "/simulation/speed", body, nil); rec.Code != http.StatusBadRequest {
			t.Errorf("POST %s: status = %d, want 400", body, rec.Code)
		}
	}
	if s.Eng.Speed() != 4 {
		t.Errorf("rejected requests changed speed to %v", s.Eng.Speed())
	}
}

func TestPauseResumeAndStatus(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	if rec := do(t, h, http.MethodGet, "/simulation/pause", "", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET pause status = %d", rec.Code)
	}
	do(t, h, http.MethodPost, "/simulation/pause", "", nil)
	status := decode[map[string]any](t, do(t, h, http.MethodGet, "/simulation/status", "", nil))
	if status["paused"] != true || status["running"] != false {
		t.Errorf("status = %v", status)
	}
	if _, ok := status["stats"].(map[string]any); !ok {
		t.Errorf("status missing stats: %v", status)
	}

	do(t, h, http.MethodPost, "/simulation/resume", "", nil)
	status = decode[map[string]any](t, do(t, h, http.MethodGet, "/simulation/status", "", nil))
	if status["paused"] != false {
		t.Errorf("status after resume = %v", status)
	}
}

func TestAgents(t *testing.T) {
	s, db := newTestServer(t)
	ctx := context.Background()
	a := &agents.Agent{ID: "a1", Role: agents.RoleWorker, State: agents.StateIdle, Wallet: 100}
	if err := db.SaveAgents(ctx, []*agents.Agent{a}); err != nil {
		t.Fatal(err)
	}
	h := s.Handler()

	list := decode[[]agents.Agent](t, do(t, h, http.MethodGet, "/agents", "", nil))
	if len(list) != 1 || list[0].ID != "a1" {
		t.Errorf("GET /agents = %+v", list)
	}

	if rec := do(t, h, http.MethodGet, "/agents/a1", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("agent not loaded yet: status = %d", rec.Code)
	}
	if err := s.Eng.Start(ctx); err != nil {
		t.Fatal(err)
	}
	s.Eng.Stop()
	s.Eng.Wait()
	if rec := do(t, h, http.MethodGet, "/agents/a1", "", nil); rec.Code != http.StatusOK {
		t.Errorf("loaded agent: status = %d", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, http.MethodOptions, "/shops", "", map[string]string{"Origin": "http://localhost:5173"})
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("allow origin = %q", got)
	}

	rec = do(t, h, http.MethodGet, "/", "", map[string]string{"Origin": "http://evil.test"})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unlisted origin allowed: %q", got)
	}
}

func TestRealtime(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/realtime"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))

	read := func() map[string]any {
		t.Helper()
		var m map[string]any
		if err := ws.ReadJSON(&m); err != nil {
			t.Fatal(err)
		}
		return m
	}

	if m := read(); m["type"] != "initial_state" {
		t.Fatalf("first message = %v", m)
	}
	waitClients(t, s, 1)

	rec := do(t, s.Handler(), http.MethodPost, "/shops", `{"name":"Bakery","position":{"x":5,"y":5}}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}
	if m := read(); m["type"] != "shop_added" {
		t.Fatalf("second message = %v", m)
	}

	if err := s.Eng.Sim.Step(1); err != nil {
		t.Fatal(err)
	}
	m := read()
	if m["type"] != "tick" || m["tick"] != float64(1) {
		t.Fatalf("third message = %v", m)
	}
	if shops := m["shops"].([]any); len(shops) != 1 {
		t.Errorf("tick shops = %v", shops)
	}

	ws.Close()
	waitClients(t, s, 0)
}

func waitClients(t *testing.T, s *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.Eng.Sim.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", s.Eng.Sim.Clients(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
