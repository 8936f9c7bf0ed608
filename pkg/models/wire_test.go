package models_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/gravitas-games/economy/pkg/models"
)

func compileSchema(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	p := filepath.Join("..", "..", "schemas", name)
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return s
}

func validateAgainst(t *testing.T, s *jsonschema.Schema, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := s.Validate(doc); err != nil {
		t.Fatalf("validate %s: %v", b, err)
	}
}

func TestWireShapesMatchSchemas(t *testing.T) {
	stack := models.ItemStack{ID: "rune_scimitar", Quantity: 1, Properties: map[string]any{"charges": 3}}
	validateAgainst(t, compileSchema(t, "item_stack.schema.json"), stack)

	floorItem := models.FloorItem{
		ID:        "f-1",
		Item:      models.NewNoted("bronze_sword", 4),
		X:         10,
		Y:         -3,
		SpawnTime: 1700000000000,
		DroppedBy: "p1",
	}
	validateAgainst(t, compileSchema(t, "floor_item.schema.json"), floorItem)

	stock := models.ShopStock{
		"apple": {Quantity: 5, MaxQuantity: 10, RestockRate: 1},
		"coins": {Quantity: 1000},
		"bones": {Quantity: 3, MaxQuantity: 5, IsPlayerSold: true, LastSoldTime: 1700000000000},
	}
	validateAgainst(t, compileSchema(t, "shop_stock.schema.json"), stock)
}

func TestItemStackCustomPropertiesAreFlattened(t *testing.T) {
	in := []byte(`{"id":"staff","quantity":1,"charges":12,"inscription":"zap"}`)
	var s models.ItemStack
	if err := json.Unmarshal(in, &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s.ID != "staff" || s.Quantity != 1 || s.Noted {
		t.Fatalf("unexpected fixed fields: %+v", s)
	}
	if s.Properties["charges"] != float64(12) || s.Properties["inscription"] != "zap" {
		t.Fatalf("custom properties lost: %+v", s.Properties)
	}

	out, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var flat map[string]any
	if err := json.Unmarshal(out, &flat); err != nil {
		t.Fatalf("unmarshal flat: %v", err)
	}
	if _, nested := flat["Properties"]; nested {
		t.Fatalf("properties should be flattened, got %s", out)
	}
	if flat["charges"] != float64(12) {
		t.Fatalf("expected charges at top level, got %s", out)
	}
}

func TestItemStackRejectsMissingID(t *testing.T) {
	var s models.ItemStack
	if err := json.Unmarshal([]byte(`{"quantity":2}`), &s); err == nil {
		t.Fatalf("expected error for stack without id")
	}
}

func TestSameIdentity(t *testing.T) {
	a := models.NewNoted("logs", 3)
	b := models.NewNoted("logs", 9)
	if !a.SameIdentity(b) {
		t.Fatalf("noted stacks of the same base should merge")
	}
	if a.SameIdentity(models.NewStack("logs", 3)) {
		t.Fatalf("noted and plain stacks must not merge")
	}
}

func TestManhattan(t *testing.T) {
	p := models.Position{X: 1, Y: 1}
	if d := p.Manhattan(models.Position{X: -1, Y: 2}); d != 3 {
		t.Fatalf("expected 3, got %d", d)
	}
}
