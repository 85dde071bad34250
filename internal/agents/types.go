// Package agents provides the agent data model and the per-tick behavior
// state machine.
package agents

// State is an agent's behavioral mode.
type State string

const (
	StateIdle      State = "IDLE"
	StateWandering State = "WANDERING"
	StateSearching State = "SEARCHING"
	StateTraveling State = "TRAVELING"
	StateBuying    State = "BUYING"
	StateWorking   State = "WORKING"
	StateResting   State = "RESTING"
)

// States lists every declared state.
var States = []State{
	StateIdle, StateWandering, StateSearching, StateTraveling,
	StateBuying, StateWorking, StateResting,
}

// Valid reports whether s is a declared state.
func (s State) Valid() bool {
	for _, v := range States {
		if s == v {
			return true
		}
	}
	return false
}

// ParseState converts a stored value to a State. Unknown values map to
// StateIdle so a bad record re-enters the machine at its reset state.
func ParseState(v string) State {
	s := State(v)
	if !s.Valid() {
		return StateIdle
	}
	return s
}

// Role is an agent's economic role.
type Role string

const (
	RoleWorker   Role = "worker"
	RoleConsumer Role = "consumer"
)

// ParseRole converts a stored value to a Role, defaulting to consumer.
func ParseRole(v string) Role {
	if Role(v) == RoleWorker {
		return RoleWorker
	}
	return RoleConsumer
}

// Agent is a mobile buyer on the plane.
type Agent struct {
	ID     string  `json:"id"`
	Role   Role    `json:"role"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	State  State   `json:"state"`
	Wallet float64 `json:"wallet"`
	Needs  Needs   `json:"needs"`

	// Movement target. Both are set or both are nil.
	TargetX      *float64 `json:"targetX,omitempty"`
	TargetY      *float64 `json:"targetY,omitempty"`
	TargetShopID string   `json:"targetShopId,omitempty"`
}

// View is the per-tick broadcast shape of an agent.
type View struct {
	ID    string  `json:"id"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	State State   `json:"state"`
}

// View returns the agent's broadcast shape.
func (a *Agent) View() View {
	return View{ID: a.ID, X: a.X, Y: a.Y, State: a.State}
}

// Target returns the movement target, if any.
func (a *Agent) Target() (x, y float64, ok bool) {
	if a.TargetX == nil || a.TargetY == nil {
		return 0, 0, false
	}
	return *a.TargetX, *a.TargetY, true
}

// SetTarget sets the movement target.
func (a *Agent) SetTarget(x, y float64) {
	a.TargetX = &x
	a.TargetY = &y
}

// ClearTarget removes the movement target and target shop.
func (a *Agent) ClearTarget() {
	a.TargetX = nil
	a.TargetY = nil
	a.TargetShopID = ""
}

// Clone returns a deep copy.
func (a *Agent) Clone() Agent {
	c := *a
	if x, y, ok := a.Target(); ok {
		c.SetTarget(x, y)
	}
	return c
}

// Normalize repairs a loaded record so it satisfies the agent invariants.
func (a *Agent) Normalize() {
	a.State = ParseState(string(a.State))
	a.Role = ParseRole(string(a.Role))
	if a.Wallet < 0 {
		a.Wallet = 0
	}
	a.Needs.clamp()
	if (a.TargetX == nil) != (a.TargetY == nil) {
		a.TargetX, a.TargetY = nil, nil
	}
}
