package agents

import (
	"encoding/json"
	"math"
	"testing"
)

func TestParseState(t *testing.T) {
	for _, s := range States {
		if got := ParseState(string(s)); got != s {
			t.Errorf("ParseState(%q) = %q", s, got)
		}
	}
	if got := ParseState("DANCING"); got != StateIdle {
		t.Errorf("unknown state parsed to %q, want IDLE", got)
	}
}

func TestNormalize(t *testing.T) {
	x := 5.0
	a := &Agent{
		Role:    "admin",
		State:   "nope",
		Wallet:  -3,
		Needs:   Needs{Hunger: 140, Fatigue: math.NaN()},
		TargetX: &x,
	}
	a.Normalize()

	if a.State != StateIdle || a.Role != RoleConsumer || a.Wallet != 0 {
		t.Errorf("normalized agent = %+v", a)
	}
	if a.Needs.Hunger != 100 || a.Needs.Fatigue != 0 {
		t.Errorf("needs = %+v", a.Needs)
	}
	if _, _, ok := a.Target(); ok || a.TargetX != nil {
		t.Error("half-set target should be cleared")
	}
}

func TestAgentJSONShape(t *testing.T) {
	a := &Agent{ID: "a1", Role: RoleWorker, X: 1, Y: 2, State: StateTraveling, Wallet: 100, TargetShopID: "s1"}
	a.SetTarget(3, 4)

	raw, err := json.Marshal(a)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"id", "role", "x", "y", "state", "wallet", "needs", "targetX", "targetY", "targetShopId"} {
		if _, ok := m[key]; !ok {
			t.Errorf("missing key %q in %s", key, raw)
		}
	}
}

func TestCloneDetachesTarget(t *testing.T) {
	a := &Agent{ID: "a"}
	a.SetTarget(1, 2)
	c := a.Clone()
	*c.TargetX = 99
	if x, _, _ := a.Target(); x != 1 {
		t.Error("clone shares target pointer")
	}
}
