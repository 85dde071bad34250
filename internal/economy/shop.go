// Package economy provides the shop supply/demand model for the single
// traded good. Shops restock from a wholesaler when stock runs low and
// move their price by scarcity once per tick.
package economy

import "math"

// GoodBread is the only good shops carry.
const GoodBread = "bread"

// Pricing and restock parameters.
const (
	BasePrice = 50.0  // Price the market relaxes toward
	MinPrice  = 10.0  // Price floor
	MaxPrice  = 100.0 // Price ceiling

	ScarcityLevel = 20 // Below this quantity the price rises
	GlutLevel     = 80 // Above this quantity the price falls
	PriceStep     = 1.0
	RelaxStep     = 0.5

	RestockThreshold = 10   // Restock when quantity drops below this
	RestockAmount    = 50   // Units bought per restock
	WholesaleCost    = 20.0 // Per-unit wholesale cost
)

// Item is one inventory line. Shops track exactly one, for GoodBread.
type Item struct {
	ItemID   string  `json:"itemId"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// Shop is a stationary seller with a balance and a bread inventory.
type Shop struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Balance   float64 `json:"balance"`
	Inventory []Item  `json:"inventory"`
}

// Restock reports a restock attempt.
type Restock struct {
	ShopID   string  `json:"shop_id"`
	OK       bool    `json:"ok"`
	Quantity int     `json:"quantity"` // Quantity after the attempt
	Cost     float64 `json:"cost"`
	Balance  float64 `json:"balance"` // Balance after the attempt
}

// Bread returns the shop's bread line, repairing the inventory first so
// the result is never nil.
func (s *Shop) Bread() *Item {
	s.Repair()
	for i := range s.Inventory {
		if s.Inventory[i].ItemID == GoodBread {
			return &s.Inventory[i]
		}
	}
	// Unreachable: Repair guarantees a bread line.
	return nil
}

// Repair normalizes the inventory. A missing bread line is added at
// quantity 0 and BasePrice. On an existing line a negative quantity is
// clamped to 0 and the price to [MinPrice, MaxPrice]; a price that is not
// a number resets to BasePrice. Each field is fixed on its own so valid
// stock survives a bad price. Returns true if anything changed.
func (s *Shop) Repair() bool {
	for i := range s.Inventory {
		it := &s.Inventory[i]
		if it.ItemID != GoodBread {
			continue
		}
		changed := false
		if it.Quantity < 0 {
			it.Quantity = 0
			changed = true
		}
		switch {
		case math.IsNaN(it.Price):
			it.Price = BasePrice
			changed = true
		case it.Price < MinPrice:
			it.Price = MinPrice
			changed = true
		case it.Price > MaxPrice:
			it.Price = MaxPrice
			changed = true
		}
		return changed
	}
	s.Inventory = append(s.Inventory, Item{ItemID: GoodBread, Quantity: 0, Price: BasePrice})
	return true
}

// Restock buys RestockAmount units at WholesaleCost when stock is below
// RestockThreshold and the balance covers the full cost. Partial restocks
// never happen. due is false when stock was not low enough to restock.
func (s *Shop) Restock() (r Restock, due bool) {
	bread := s.Bread()
	if bread.Quantity >= RestockThreshold {
		return Restock{}, false
	}

	cost := RestockAmount * WholesaleCost
	r = Restock{ShopID: s.ID, Cost: cost}
	if s.Balance >= cost {
		bread.Quantity += RestockAmount
		s.Balance -= cost
		r.OK = true
	}
	r.Quantity = bread.Quantity
	r.Balance = s.Balance
	return r, true
}

// Reprice moves the bread price one step according to current stock.
func (s *Shop) Reprice() {
	bread := s.Bread()
	switch {
	case bread.Quantity < ScarcityLevel:
		bread.Price = math.Min(MaxPrice, bread.Price+PriceStep)
	case bread.Quantity > GlutLevel:
		bread.Price = math.Max(MinPrice, bread.Price-PriceStep)
	default:
		if bread.Price > BasePrice {
			bread.Price -= RelaxStep
		}
		if bread.Price < BasePrice {
			bread.Price += RelaxStep
		}
	}
}

// Sell sells one unit to a buyer holding budget. It succeeds only when
// the shop has stock and budget covers the current price; on success the
// quantity drops by one and the balance is credited with the price.
// The caller must debit exactly the returned price from the buyer.
func (s *Shop) Sell(budget float64) (price float64, ok bool) {
	bread := s.Bread()
	price = bread.Price
	if bread.Quantity <= 0 || budget < price {
		return price, false
	}
	bread.Quantity--
	s.Balance += price
	return price, true
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *Shop) Clone() Shop {
	c := *s
	c.Inventory = append([]Item(nil), s.Inventory...)
	return c
}
