// Agent behavior state machine.
// Every tick each agent's needs drift, then its current state runs once.
// Transitions are edge-triggered on thresholds so a fixed seed and a
// fixed agent order always reproduce the same run.
package agents

import (
	"github.com/talgya/mini-market/internal/economy"
	"github.com/talgya/mini-market/internal/world"
)

// Movement and behavior parameters.
const (
	MoveSpeed      = 2.0  // Units per tick
	ArrivalRadius  = 5.0  // Closer than this counts as arrived
	SightRadius    = 50.0 // Wandering agents notice shops closer than this
	WanderRetarget = 20   // Wander target is redrawn every N ticks

	MealRelief   = 30.0 // Hunger removed by one bread
	Wage         = 5.0  // Earned per tick of work
	WorkFatigue  = 2.0  // Extra fatigue per tick of work
	RestRecovery = 5.0  // Fatigue recovered per tick of rest
	ExhaustedAt  = 90.0 // Working agents rest above this fatigue
	RestedAt     = 20.0 // Resting agents go idle below this fatigue
)

// Rand is the random source the machine draws from. *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
}

// World is the context an agent acts in for one tick.
type World struct {
	Tick   uint64
	Shops  *economy.Registry
	Rand   Rand
	Bounds world.Bounds
}

// Outcome describes one agent update.
type Outcome struct {
	From     State
	To       State
	Purchase *Purchase // Set when a purchase was attempted
}

// Purchase is the result of a buy attempt at a resolved shop.
type Purchase struct {
	ShopID string  `json:"shop_id"`
	Price  float64 `json:"price"` // Price at the moment of the attempt
	OK     bool    `json:"ok"`
}

// Update advances the agent by one tick.
func (a *Agent) Update(w *World) Outcome {
	out := Outcome{From: a.State}

	a.Needs.Decay()

	switch a.State {
	case StateIdle:
		a.State = StateWandering
	case StateWandering:
		a.wander(w)
	case StateSearching:
		a.search(w)
	case StateTraveling:
		a.travel()
	case StateBuying:
		out.Purchase = a.buy(w)
	case StateWorking:
		a.work()
	case StateResting:
		a.rest()
	default:
		a.State = StateIdle
	}

	out.To = a.State
	return out
}

// wander drifts toward a random point and breaks off toward the first
// shop that comes into sight.
func (a *Agent) wander(w *World) {
	if _, _, ok := a.Target(); !ok || w.Tick%WanderRetarget == 0 {
		a.SetTarget(w.Bounds.RandomPoint(w.Rand))
	}

	tx, ty, _ := a.Target()
	if world.Distance(a.X, a.Y, tx, ty) > ArrivalRadius {
		a.stepToward(tx, ty)
	}

	for _, shop := range w.Shops.All() {
		if world.Distance(a.X, a.Y, shop.X, shop.Y) < SightRadius {
			a.TargetShopID = shop.ID
			a.SetTarget(shop.X, shop.Y)
			a.State = StateTraveling
			return
		}
	}
}

// search heads for the nearest shop.
func (a *Agent) search(w *World) {
	var nearest *economy.Shop
	best := 0.0
	for _, shop := range w.Shops.All() {
		d := world.Distance(a.X, a.Y, shop.X, shop.Y)
		if nearest == nil || d < best {
			nearest, best = shop, d
		}
	}

	if nearest == nil {
		a.State = StateIdle
		return
	}
	a.TargetShopID = nearest.ID
	a.SetTarget(nearest.X, nearest.Y)
	a.State = StateTraveling
}

// travel moves toward the target and snaps onto it on arrival.
func (a *Agent) travel() {
	tx, ty, ok := a.Target()
	if !ok {
		a.State = StateIdle
		return
	}

	if world.Distance(a.X, a.Y, tx, ty) < ArrivalRadius {
		a.X, a.Y = tx, ty
		if a.TargetShopID != "" {
			a.State = StateBuying
		} else {
			a.State = StateIdle
		}
		return
	}
	a.stepToward(tx, ty)
}

// buy attempts to purchase one bread at the target shop. The shop
// reference is always cleared afterwards.
func (a *Agent) buy(w *World) *Purchase {
	defer func() {
		a.TargetShopID = ""
		a.State = StateIdle
	}()

	if a.TargetShopID == "" {
		return nil
	}
	shop, ok := w.Shops.Get(a.TargetShopID)
	if !ok {
		return nil
	}

	price, sold := shop.Sell(a.Wallet)
	if sold {
		a.Wallet -= price
		a.Needs.AddHunger(-MealRelief)
	}
	return &Purchase{ShopID: shop.ID, Price: price, OK: sold}
}

func (a *Agent) work() {
	a.Wallet += Wage
	a.Needs.AddFatigue(WorkFatigue)
	if a.Needs.Fatigue > ExhaustedAt {
		a.State = StateResting
	}
}

func (a *Agent) rest() {
	a.Needs.AddFatigue(-RestRecovery)
	if a.Needs.Fatigue < RestedAt {
		a.State = StateIdle
	}
}

// stepToward moves MoveSpeed units along the direction to (tx, ty).
func (a *Agent) stepToward(tx, ty float64) {
	dx, dy := tx-a.X, ty-a.Y
	dist := world.Distance(a.X, a.Y, tx, ty)
	if dist == 0 {
		return
	}
	a.X += dx / dist * MoveSpeed
	a.Y += dy / dist * MoveSpeed
}
