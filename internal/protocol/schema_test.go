package protocol

import (
	"encoding/json"
	"testing"

	"github.com/talgya/mini-market/internal/agents"
	"github.com/talgya/mini-market/internal/economy"
)

func sampleShop() economy.Shop {
	return economy.Shop{
		ID: "s1", Name: "Shop 1", Type: "general", X: 10, Y: 20, Balance: 1000,
		Inventory: []economy.Item{{ItemID: economy.GoodBread, Quantity: 50, Price: 50}},
	}
}

func mustValidate(t *testing.T, schema string, v any) {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := Validate(schema, raw); err != nil {
		t.Fatalf("%s: %v\n%s", schema, err, raw)
	}
}

func TestMessagesMatchSchemas(t *testing.T) {
	a := agents.Agent{ID: "a1", Role: agents.RoleWorker, X: 1, Y: 2, State: agents.StateIdle, Wallet: 100}
	a.SetTarget(5, 6)

	mustValidate(t, SchemaInitialState, NewInitialState(0, []agents.Agent{a}, []economy.Shop{sampleShop()}))
	mustValidate(t, SchemaInitialState, NewInitialState(3, nil, nil))
	mustValidate(t, SchemaTick, NewTick(1, []agents.View{a.View()}, []economy.Shop{sampleShop()}))
	mustValidate(t, SchemaShopAdded, NewShopAdded(sampleShop()))
}

func TestEmptyListsEncodeAsArrays(t *testing.T) {
	raw, err := json.Marshal(NewTick(1, nil, nil))
	if err != nil {
		t.Fatal(err)
	}
	if want := `{"type":"tick","tick":1,"agents":[],"shops":[]}`; string(raw) != want {
		t.Errorf("got %s, want %s", raw, want)
	}
}

func TestTickRejectsFullAgent(t *testing.T) {
	a := agents.Agent{ID: "a1", Role: agents.RoleWorker, State: agents.StateIdle}
	msg := map[string]any{"type": "tick", "tick": 1, "agents": []agents.Agent{a}, "shops": []any{}}
	raw, _ := json.Marshal(msg)
	if err := Validate(SchemaTick, raw); err == nil {
		t.Fatal("tick agents must only carry id, x, y, state")
	}
}

func TestDecodeCreateShop(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
		want    CreateShopRequest
	}{
		{
			name: "full",
			body: `{"name":"Sharma Bhojanalay","type":"restaurant","position":{"x":400,"y":300},"balance":5000}`,
			want: CreateShopRequest{Name: "Sharma Bhojanalay", Type: "restaurant", Position: Position{400, 300}},
		},
		{
			name: "default type",
			body: `{"name":"Corner","position":{"x":1,"y":2}}`,
			want: CreateShopRequest{Name: "Corner", Type: "general", Position: Position{1, 2}},
		},
		{name: "missing name", body: `{"position":{"x":1,"y":2}}`, wantErr: true},
		{name: "empty name", body: `{"name":"","position":{"x":1,"y":2}}`, wantErr: true},
		{name: "missing position", body: `{"name":"x"}`, wantErr: true},
		{name: "string coordinate", body: `{"name":"x","position":{"x":"1","y":2}}`, wantErr: true},
		{name: "negative balance", body: `{"name":"x","position":{"x":1,"y":2},"balance":-1}`, wantErr: true},
		{name: "not json", body: `{name`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeCreateShop([]byte(tt.body))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got.Name != tt.want.Name || got.Type != tt.want.Type || got.Position != tt.want.Position {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeSpeed(t *testing.T) {
	if req, err := DecodeSpeed([]byte(`{"speed":2.5}`)); err != nil || req.Speed != 2.5 {
		t.Fatalf("DecodeSpeed = (%+v, %v)", req, err)
	}
	for _, body := range []string{`{"speed":0}`, `{"speed":-1}`, `{}`, `{"speed":"fast"}`} {
		if _, err := DecodeSpeed([]byte(body)); err == nil {
			t.Errorf("%s: expected error", body)
		}
	}
}

func TestValidateUnknownSchema(t *testing.T) {
	if err := Validate("nope.json", []byte(`{}`)); err == nil {
		t.Fatal("expected error")
	}
}
