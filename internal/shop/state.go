package shop

import (
	"github.com/gravitas-games/economy/pkg/models"
)

// State is the live copy of one shop. Stock holds every traded line plus the
// currency counter under the currency id. Defaults mirrors the definition's
// starting stock and is only pruned, never grown.
type State struct {
	Definition Definition
	Pricing    Pricing
	Stock      models.ShopStock
	Defaults   models.ShopStock
}

func newState(def Definition, pricing Pricing) *State {
	def.Stock = def.Stock.Clone()
	def.Accepts = append([]string(nil), def.Accepts...)
	s := &State{
		Definition: def,
		Pricing:    pricing,
		Stock:      make(models.ShopStock, len(def.Stock)+1),
		Defaults:   def.Stock.Clone(),
	}
	for id, entry := range def.Stock {
		if def.Type == ZeroStock {
			entry.Quantity = 0
		}
		if entry.Quantity < 0 {
			entry.Quantity = 0
		}
		s.Stock[id] = entry
	}
	if def.Type.Metered() {
		s.Stock[def.CurrencyID()] = models.StockEntry{Quantity: max(def.Funds, 0)}
	}
	return s
}

// Currency returns the shop's currency counter.
func (s *State) Currency() int {
	return s.Stock[s.Definition.CurrencyID()].Quantity
}

// Accepts reports whether the shop buys itemID from players. Acceptance
// follows the static definition, so a line pruned by decay is still bought.
func (s *State) Accepts(itemID string) bool {
	if itemID == s.Definition.CurrencyID() {
		return false
	}
	switch s.Definition.Type {
	case General:
		return true
	case Unlimited:
		_, ok := s.Definition.Stock[itemID]
		return ok
	default:
		if _, ok := s.Definition.Stock[itemID]; ok {
			return true
		}
		for _, id := range s.Definition.Accepts {
			if id == itemID {
				return true
			}
		}
		return false
	}
}

// Sells reports whether the shop offers itemID for purchase at all.
func (s *State) Sells(itemID string) bool {
	if itemID == s.Definition.CurrencyID() {
		return false
	}
	if s.Definition.Type == Unlimited {
		_, ok := s.Definition.Stock[itemID]
		return ok
	}
	_, ok := s.Stock[itemID]
	return ok
}

// defaultMax is the cap of the item's starting-stock line, or 0.
func (s *State) defaultMax(itemID string) (int, bool) {
	d, ok := s.Defaults[itemID]
	if !ok {
		return 0, false
	}
	return d.MaxQuantity, true
}

func (s *State) clone() *State {
	out := *s
	out.Stock = s.Stock.Clone()
	out.Defaults = s.Defaults.Clone()
	return &out
}
