// Package shop implements per-shop stock state, dynamic pricing, the
// scheduled restock/destock/expiry lifecycle and buy/sell transactions.
package shop

import (
	"fmt"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/gravitas-games/economy/pkg/models"
)

// Type is a shop archetype.
type Type string

const (
	// General shops buy any item.
	General Type = "general"
	// Specialty shops buy only the items they list.
	Specialty Type = "specialty"
	// ZeroStock shops list items like specialty shops but start empty.
	ZeroStock Type = "zero_stock"
	// Unlimited shops never run out, price flat and buy back only listed
	// items.
	Unlimited Type = "unlimited"
)

// Default pricing inputs used when a definition omits a value or gives a
// non-finite one.
const (
	DefaultBuyMultiplier   = 1.0
	DefaultSellMultiplier  = 0.6
	DefaultPriceChangeRate = 0.0
	DefaultCurrency        = "coins"
)

// Definition is the static description of a shop as loaded from YAML.
type Definition struct {
	ID              string           `yaml:"id"`
	Name            string           `yaml:"name,omitempty"`
	Type            Type             `yaml:"type"`
	Currency        string           `yaml:"currency,omitempty"`
	Funds           int              `yaml:"funds,omitempty"`
	BuyMultiplier   *float64         `yaml:"buyMultiplier,omitempty"`
	SellMultiplier  *float64         `yaml:"sellMultiplier,omitempty"`
	PriceChangeRate *float64         `yaml:"priceChangeRate,omitempty"`
	Accepts         []string         `yaml:"accepts,omitempty"`
	Stock           models.ShopStock `yaml:"stock"`
}

// Pricing holds the validated numeric inputs of the price formulas.
type Pricing struct {
	Buy  float64
	Sell float64
	Rate float64
}

// File is the layout of a shop definitions file.
type File struct {
	Shops []Definition `yaml:"shops"`
}

// Load reads shop definitions from a YAML file.
func Load(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read shops: %w", err)
	}
	return Parse(data)
}

// Parse decodes shop definitions and checks ids and archetypes.
func Parse(data []byte) ([]Definition, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse shops: %w", err)
	}
	seen := make(map[string]bool, len(f.Shops))
	for i := range f.Shops {
		d := &f.Shops[i]
		if d.ID == "" {
			return nil, fmt.Errorf("shop %d: missing id", i)
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("shop %s: duplicate id", d.ID)
		}
		seen[d.ID] = true
		if !d.Type.Valid() {
			return nil, fmt.Errorf("shop %s: unknown type %q", d.ID, d.Type)
		}
	}
	return f.Shops, nil
}

// Valid reports whether t is a known archetype.
func (t Type) Valid() bool {
	switch t {
	case General, Specialty, ZeroStock, Unlimited:
		return true
	}
	return false
}

// Metered reports whether the archetype tracks finite stock.
func (t Type) Metered() bool { return t != Unlimited }

// CurrencyID returns the item id the shop trades in.
func (d Definition) CurrencyID() string {
	if d.Currency == "" {
		return DefaultCurrency
	}
	return d.Currency
}

// Pricing validates the multipliers. Invalid values are replaced by the
// defaults and described in the returned problems.
func (d Definition) Pricing() (Pricing, []string) {
	var problems []string
	pick := func(name string, v *float64, def float64) float64 {
		if v == nil {
			return def
		}
		if math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0 {
			problems = append(problems, fmt.Sprintf("%s %v is invalid, using %v", name, *v, def))
			return def
		}
		return *v
	}
	p := Pricing{
		Buy:  pick("buyMultiplier", d.BuyMultiplier, DefaultBuyMultiplier),
		Sell: pick("sellMultiplier", d.SellMultiplier, DefaultSellMultiplier),
		Rate: pick("priceChangeRate", d.PriceChangeRate, DefaultPriceChangeRate),
	}
	return p, problems
}

// Items returns the listed item ids in a stable order.
func (d Definition) Items() []string {
	out := make([]string, 0, len(d.Stock))
	for id := range d.Stock {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
