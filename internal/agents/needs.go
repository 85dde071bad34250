package agents

// Need bounds.
const (
	NeedMin = 0.0
	NeedMax = 100.0
)

// Needs tracks hunger and fatigue. Both range from 0 (satisfied) to 100.
type Needs struct {
	Hunger  float64 `json:"hunger"`
	Fatigue float64 `json:"fatigue"`
}

// Per-tick drift applied to every agent regardless of state.
const (
	HungerRate  = 0.5
	FatigueRate = 0.3
)

// AddHunger shifts hunger by delta and clamps it.
func (n *Needs) AddHunger(delta float64) {
	n.Hunger = clampNeed(n.Hunger + delta)
}

// AddFatigue shifts fatigue by delta and clamps it.
func (n *Needs) AddFatigue(delta float64) {
	n.Fatigue = clampNeed(n.Fatigue + delta)
}

// Decay applies one tick of need growth.
func (n *Needs) Decay() {
	n.AddHunger(HungerRate)
	n.AddFatigue(FatigueRate)
}

func (n *Needs) clamp() {
	n.Hunger = clampNeed(n.Hunger)
	n.Fatigue = clampNeed(n.Fatigue)
}

func clampNeed(v float64) float64 {
	if v != v { // NaN
		return NeedMin
	}
	if v < NeedMin {
		return NeedMin
	}
	if v > NeedMax {
		return NeedMax
	}
	return v
}
