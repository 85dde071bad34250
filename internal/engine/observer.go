package engine

import (
	"log/slog"
	"time"

	"github.com/talgya/mini-market/internal/agents"
	"github.com/talgya/mini-market/internal/economy"
)

// Observer receives simulation events. Calls come from the tick loop or
// from connection handlers and must not block.
type Observer interface {
	TickCompleted(TickSummary)
	Purchase(PurchaseEvent)
	Restock(RestockEvent)
	ClientRegistered(clients int)
	ClientUnregistered(clients int)
}

// TickSummary describes one completed tick.
type TickSummary struct {
	Tick      uint64        `json:"tick"`
	Agents    int           `json:"agents"`
	Shops     int           `json:"shops"`
	Purchases int           `json:"purchases"` // Attempts, successful or not
	Restocks  int           `json:"restocks"`  // Attempts, successful or not
	Delivered int           `json:"delivered"` // Connections handed the tick message
	Duration  time.Duration `json:"duration_ns"`
}

// PurchaseEvent is one purchase attempt.
type PurchaseEvent struct {
	Tick    uint64 `json:"tick"`
	AgentID string `json:"agent_id"`
	agents.Purchase
}

// RestockEvent is one restock attempt.
type RestockEvent struct {
	Tick uint64 `json:"tick"`
	economy.Restock
}

// Observers fans every event out to each member in order.
type Observers []Observer

func (o Observers) TickCompleted(s TickSummary) {
	for _, ob := range o {
		ob.TickCompleted(s)
	}
}

func (o Observers) Purchase(e PurchaseEvent) {
	for _, ob := range o {
		ob.Purchase(e)
	}
}

func (o Observers) Restock(e RestockEvent) {
	for _, ob := range o {
		ob.Restock(e)
	}
}

func (o Observers) ClientRegistered(n int) {
	for _, ob := range o {
		ob.ClientRegistered(n)
	}
}

func (o Observers) ClientUnregistered(n int) {
	for _, ob := range o {
		ob.ClientUnregistered(n)
	}
}

// LogObserver writes events to slog. Per-tick and per-purchase lines are
// debug level; a summary is logged at info every ReportEvery ticks.
type LogObserver struct {
	ReportEvery uint64
}

func (l LogObserver) TickCompleted(s TickSummary) {
	slog.Debug("tick", "tick", s.Tick, "purchases", s.Purchases, "restocks", s.Restocks, "duration", s.Duration)
	if l.ReportEvery > 0 && s.Tick%l.ReportEvery == 0 {
		slog.Info("tick report",
			"tick", s.Tick,
			"agents", s.Agents,
			"shops", s.Shops,
			"clients", s.Delivered,
			"duration", s.Duration,
		)
	}
}

func (LogObserver) Purchase(e PurchaseEvent) {
	if e.OK {
		slog.Debug("agent bought bread", "tick", e.Tick, "agent", e.AgentID, "shop", e.ShopID, "price", e.Price)
		return
	}
	slog.Debug("agent failed to buy", "tick", e.Tick, "agent", e.AgentID, "shop", e.ShopID, "price", e.Price)
}

func (LogObserver) Restock(e RestockEvent) {
	if e.OK {
		slog.Info("shop restocked", "tick", e.Tick, "shop", e.ShopID, "quantity", e.Quantity, "balance", e.Balance)
		return
	}
	slog.Debug("shop cannot afford restock", "tick", e.Tick, "shop", e.ShopID, "cost", e.Cost, "balance", e.Balance)
}

func (LogObserver) ClientRegistered(n int) {
	slog.Info("client connected", "clients", n)
}

func (LogObserver) ClientUnregistered(n int) {
	slog.Info("client disconnected", "clients", n)
}
