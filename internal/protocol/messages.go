// Package protocol defines the JSON messages sent to observers and the
// request bodies accepted by the REST layer.
package protocol

import (
	"github.com/talgya/mini-market/internal/agents"
	"github.com/talgya/mini-market/internal/economy"
)

// Message types.
const (
	TypeInitialState = "initial_state"
	TypeTick         = "tick"
	TypeShopAdded    = "shop_added"
)

// InitialState is sent once to each new subscriber.
type InitialState struct {
	Type   string         `json:"type"`
	Tick   uint64         `json:"tick"`
	Agents []agents.Agent `json:"agents"`
	Shops  []economy.Shop `json:"shops"`
}

// NewInitialState builds an initial_state message.
func NewInitialState(tick uint64, ag []agents.Agent, shops []economy.Shop) InitialState {
	return InitialState{Type: TypeInitialState, Tick: tick, Agents: nonNil(ag), Shops: nonNil(shops)}
}

// Tick is broadcast after every simulation tick.
type Tick struct {
	Type   string         `json:"type"`
	Tick   uint64         `json:"tick"`
	Agents []agents.View  `json:"agents"`
	Shops  []economy.Shop `json:"shops"`
}

// NewTick builds a tick message.
func NewTick(tick uint64, views []agents.View, shops []economy.Shop) Tick {
	return Tick{Type: TypeTick, Tick: tick, Agents: nonNil(views), Shops: nonNil(shops)}
}

// ShopAdded announces a shop inserted outside the tick cadence.
type ShopAdded struct {
	Type string       `json:"type"`
	Shop economy.Shop `json:"shop"`
}

// NewShopAdded builds a shop_added message.
func NewShopAdded(shop economy.Shop) ShopAdded {
	return ShopAdded{Type: TypeShopAdded, Shop: shop}
}

// Position is a point on the plane.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// CreateShopRequest is the body of POST /shops.
type CreateShopRequest struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Position Position `json:"position"`
	Balance  *float64 `json:"balance,omitempty"`
}

// SpeedRequest is the body of POST /simulation/speed.
type SpeedRequest struct {
	Speed float64 `json:"speed"`
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
