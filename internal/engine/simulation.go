// Simulation ties together the shop economy, the agents, and the
// broadcast hub, and runs them each tick.
package engine

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/talgya/mini-market/internal/agents"
	"github.com/talgya/mini-market/internal/economy"
	"github.com/talgya/mini-market/internal/hub"
	"github.com/talgya/mini-market/internal/protocol"
	"github.com/talgya/mini-market/internal/world"
)

// Config holds simulation parameters.
type Config struct {
	Seed   int64
	Bounds world.Bounds
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return Config{Seed: 12345, Bounds: world.DefaultBounds()}
}

// Simulation holds the complete world state. All access to the agent
// and shop registries goes through its mutex.
type Simulation struct {
	mu         sync.Mutex
	agents     []*agents.Agent // Iteration order is load order
	agentIndex map[string]*agents.Agent
	shops      *economy.Registry
	rng        *rand.Rand // One stream per run, never reseeded
	bounds     world.Bounds
	lastTick   uint64
	stats      Stats

	hub      *hub.Hub
	observer Observer
}

// Stats tracks running totals.
type Stats struct {
	Ticks            uint64        `json:"ticks"`
	FailedTicks      uint64        `json:"failed_ticks"`
	Purchases        uint64        `json:"purchases"`
	FailedPurchases  uint64        `json:"failed_purchases"`
	Restocks         uint64        `json:"restocks"`
	SkippedRestocks  uint64        `json:"skipped_restocks"`
	LastTickDuration time.Duration `json:"last_tick_duration_ns"`
}

// NewSimulation creates an empty simulation. h and obs may be nil.
func NewSimulation(cfg Config, h *hub.Hub, obs Observer) *Simulation {
	if h == nil {
		h = hub.New()
	}
	if obs == nil {
		obs = Observers{}
	}
	if cfg.Bounds.Width <= 0 || cfg.Bounds.Height <= 0 {
		cfg.Bounds = world.DefaultBounds()
	}
	return &Simulation{
		agentIndex: make(map[string]*agents.Agent),
		shops:      economy.NewRegistry(nil),
		rng:        rand.New(rand.NewSource(cfg.Seed)),
		bounds:     cfg.Bounds,
		hub:        h,
		observer:   obs,
	}
}

// Load replaces the registries with a snapshot. Records are normalized
// and duplicate agent IDs after the first are dropped.
func (s *Simulation) Load(ag []*agents.Agent, shops []*economy.Shop) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.agents = s.agents[:0]
	s.agentIndex = make(map[string]*agents.Agent, len(ag))
	for _, a := range ag {
		if a == nil {
			continue
		}
		if _, dup := s.agentIndex[a.ID]; dup {
			continue
		}
		a.Normalize()
		s.agents = append(s.agents, a)
		s.agentIndex[a.ID] = a
	}
	s.shops = economy.NewRegistry(shops)
}

// Step runs one tick: economy, then every agent in order, then the
// broadcast. Observers are notified after the world lock is released.
func (s *Simulation) Step(tick uint64) error {
	start := time.Now()

	res, err := s.compute(tick)

	for _, r := range res.restocks {
		s.observer.Restock(r)
	}
	for _, p := range res.purchases {
		s.observer.Purchase(p)
	}

	res.summary.Duration = time.Since(start)
	s.mu.Lock()
	s.stats.LastTickDuration = res.summary.Duration
	s.mu.Unlock()

	s.observer.TickCompleted(res.summary)
	return err
}

type stepResult struct {
	restocks  []RestockEvent
	purchases []PurchaseEvent
	summary   TickSummary
}

func (s *Simulation) compute(tick uint64) (stepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res stepResult
	s.lastTick = tick
	s.stats.Ticks++

	// 1. Shops restock and reprice before anyone shops.
	for _, r := range s.shops.Update() {
		if r.OK {
			s.stats.Restocks++
		} else {
			s.stats.SkippedRestocks++
		}
		res.restocks = append(res.restocks, RestockEvent{Tick: tick, Restock: r})
	}

	// 2. Agents act against this tick's prices.
	w := &agents.World{Tick: tick, Shops: s.shops, Rand: s.rng, Bounds: s.bounds}
	views := make([]agents.View, 0, len(s.agents))
	for _, a := range s.agents {
		out := a.Update(w)
		if p := out.Purchase; p != nil {
			if p.OK {
				s.stats.Purchases++
			} else {
				s.stats.FailedPurchases++
			}
			res.purchases = append(res.purchases, PurchaseEvent{Tick: tick, AgentID: a.ID, Purchase: *p})
		}
		views = append(views, a.View())
	}

	// 3. Broadcast under the lock so a client registering concurrently
	// never sees ticks out of order with its initial state.
	delivered, err := s.hub.Publish(protocol.NewTick(tick, views, s.shops.Snapshot()))
	if err != nil {
		err = fmt.Errorf("broadcast tick %d: %w", tick, err)
	}

	res.summary = TickSummary{
		Tick:      tick,
		Agents:    len(s.agents),
		Shops:     s.shops.Len(),
		Purchases: len(res.purchases),
		Restocks:  len(res.restocks),
		Delivered: delivered,
	}
	return res, err
}

// AddShop inserts shop and broadcasts shop_added.
func (s *Simulation) AddShop(shop *economy.Shop) error {
	if shop == nil || shop.ID == "" {
		return fmt.Errorf("add shop: missing id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.shops.Add(shop)
	if _, err := s.hub.Publish(protocol.NewShopAdded(shop.Clone())); err != nil {
		return fmt.Errorf("broadcast shop_added: %w", err)
	}
	return nil
}

// AddClient registers c with the hub and sends it the initial state.
func (s *Simulation) AddClient(c hub.Conn) error {
	s.mu.Lock()
	err := s.hub.Register(c, s.initialStateLocked())
	s.mu.Unlock()

	s.observer.ClientRegistered(s.hub.Len())
	return err
}

// RemoveClient unregisters c. Safe to call more than once.
func (s *Simulation) RemoveClient(c hub.Conn) {
	if s.hub.Unregister(c) {
		s.observer.ClientUnregistered(s.hub.Len())
	}
}

// Clients returns the number of registered connections.
func (s *Simulation) Clients() int {
	return s.hub.Len()
}

// InitialState returns the full world snapshot sent to new observers.
func (s *Simulation) InitialState() protocol.InitialState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialStateLocked()
}

func (s *Simulation) initialStateLocked() protocol.InitialState {
	ag := make([]agents.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		ag = append(ag, a.Clone())
	}
	return protocol.NewInitialState(s.lastTick, ag, s.shops.Snapshot())
}

// Agent returns a copy of one agent.
func (s *Simulation) Agent(id string) (agents.Agent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agentIndex[id]
	if !ok {
		return agents.Agent{}, false
	}
	return a.Clone(), true
}

// Shop returns a copy of one shop.
func (s *Simulation) Shop(id string) (economy.Shop, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shops.Get(id)
	if !ok {
		return economy.Shop{}, false
	}
	return sh.Clone(), true
}

// Stats returns a copy of the running totals.
func (s *Simulation) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Simulation) recordFailure() {
	s.mu.Lock()
	s.stats.FailedTicks++
	s.mu.Unlock()
}
