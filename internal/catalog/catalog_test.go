package catalog

import "testing"

const sampleCatalog = `
items:
  - id: coins
    stackable: true
    value: 1
  - id: bronze_sword
    name: Bronze Sword
    value: 26
    equipmentSlot: weapon
    useAction: wield
  - id: bread
    value: 12
    useAction: eat
  - id: knife
    value: 6
  - id: logs
    stackable: false
    value: 4
  - id: shortbow_u
    value: 23
combinations:
  - first: knife
    second: logs
    result: shortbow_u
    consumeFirst: false
    consumeSecond: true
    message: You carefully cut the logs into a bow.
`

func TestParseCatalog(t *testing.T) {
	reg, combos, err := Parse([]byte(sampleCatalog))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if reg.Len() != 6 {
		t.Fatalf("expected 6 items, got %d", reg.Len())
	}
	sword, ok := reg.Definition("bronze_sword")
	if !ok {
		t.Fatalf("bronze_sword missing")
	}
	if sword.Use != UseWield || !sword.Use.Equips() || sword.DisplayName() != "Bronze Sword" {
		t.Fatalf("unexpected sword definition: %+v", sword)
	}
	if bread, _ := reg.Definition("bread"); !bread.Use.Consumes() {
		t.Fatalf("bread should be consumed on use")
	}
	if _, ok := combos.Lookup("knife", "logs"); !ok {
		t.Fatalf("knife+logs rule missing")
	}
}

func TestCombinationLookupSwapsConsumeFlags(t *testing.T) {
	_, combos, err := Parse([]byte(sampleCatalog))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	r, ok := combos.Lookup("logs", "knife")
	if !ok {
		t.Fatalf("reversed lookup should match")
	}
	if r.First != "logs" || r.Second != "knife" {
		t.Fatalf("expected reordered pair, got %s+%s", r.First, r.Second)
	}
	if !r.ConsumeFirst || r.ConsumeSecond {
		t.Fatalf("consume flags not swapped: first=%v second=%v", r.ConsumeFirst, r.ConsumeSecond)
	}
	if r.Result == nil || r.Result.ID != "shortbow_u" || r.Result.Quantity != 1 {
		t.Fatalf("unexpected result: %+v", r.Result)
	}
}

func TestParseRejectsUnknownUseAction(t *testing.T) {
	_, _, err := Parse([]byte("items:\n  - id: rock\n    useAction: juggle\n"))
	if err == nil {
		t.Fatalf("expected unknown use action error")
	}
}

func TestParseRejectsDanglingCombination(t *testing.T) {
	_, _, err := Parse([]byte("items:\n  - id: a\ncombinations:\n  - first: a\n    second: ghost\n"))
	if err == nil {
		t.Fatalf("expected error for unknown combination item")
	}
}

func TestRegistryNumericIDs(t *testing.T) {
	reg := NewRegistry(
		ItemDefinition{ID: "a", NumericID: 10},
		ItemDefinition{ID: "b"},
	)
	b, _ := reg.Definition("b")
	if b.NumericID != 11 {
		t.Fatalf("expected auto id 11, got %d", b.NumericID)
	}
	if err := reg.Register(ItemDefinition{ID: "c", NumericID: 10}); err == nil {
		t.Fatalf("expected collision error")
	}
	if d, ok := reg.ByNumericID(10); !ok || d.ID != "a" {
		t.Fatalf("numeric lookup failed: %+v", d)
	}
	exported := reg.Export()
	if len(exported) != 2 || exported[0].ID != "a" {
		t.Fatalf("unexpected export order: %+v", exported)
	}
}
