package economy

// Registry holds shops in insertion order with an ID index.
// Iteration order is stable, which keeps proximity scans deterministic.
// Not safe for concurrent use; the simulation serializes access.
type Registry struct {
	order []*Shop
	index map[string]*Shop
}

// NewRegistry creates a registry holding shops in the given order.
func NewRegistry(shops []*Shop) *Registry {
	r := &Registry{index: make(map[string]*Shop, len(shops))}
	for _, s := range shops {
		r.Add(s)
	}
	return r
}

// Add inserts a shop. A shop with an existing ID replaces the old entry
// in place, keeping its position in the iteration order.
func (r *Registry) Add(s *Shop) {
	if s == nil {
		return
	}
	s.Repair()
	if old, ok := r.index[s.ID]; ok {
		for i := range r.order {
			if r.order[i] == old {
				r.order[i] = s
				break
			}
		}
	} else {
		r.order = append(r.order, s)
	}
	r.index[s.ID] = s
}

// Get looks up a shop by ID.
func (r *Registry) Get(id string) (*Shop, bool) {
	s, ok := r.index[id]
	return s, ok
}

// Len returns the number of shops.
func (r *Registry) Len() int {
	return len(r.order)
}

// All returns the shops in iteration order. The slice is shared; callers
// must not modify it.
func (r *Registry) All() []*Shop {
	return r.order
}

// Snapshot returns deep copies of all shops in iteration order.
func (r *Registry) Snapshot() []Shop {
	out := make([]Shop, 0, len(r.order))
	for _, s := range r.order {
		out = append(out, s.Clone())
	}
	return out
}

// Update runs one economy step over every shop: repair, restock, then
// reprice. It returns the restock attempts that were due this tick.
func (r *Registry) Update() []Restock {
	var restocks []Restock
	for _, s := range r.order {
		s.Repair()
		if res, due := s.Restock(); due {
			restocks = append(restocks, res)
		}
		s.Reprice()
	}
	return restocks
}
