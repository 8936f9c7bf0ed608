package shop

import "math"

// minSellMultiplier is the floor of the per-unit sell multiplier.
const minSellMultiplier = 0.1

// buyUnits prices each of qty units bought from the shop. Unit i is priced
// against the stock deficit left after i units have already gone.
func (s *State) buyUnits(itemID string, base, qty int) []int {
	units := make([]int, qty)
	p := s.Pricing
	if !s.Definition.Type.Metered() {
		unit := int(math.Floor(float64(base) * p.Buy))
		for i := range units {
			units[i] = unit
		}
		return units
	}
	stock := s.Stock[itemID].Quantity
	defaultMax, _ := s.defaultMax(itemID)
	for i := range units {
		deficit := max(0, defaultMax-(stock-i))
		units[i] = int(math.Floor(float64(base) * (p.Buy + float64(deficit)*p.Rate)))
	}
	return units
}

// sellUnits prices each of qty units sold to the shop. Unit i is priced
// against the surplus after i units have already been taken in.
func (s *State) sellUnits(itemID string, base, qty int) []int {
	units := make([]int, qty)
	p := s.Pricing
	if !s.Definition.Type.Metered() {
		unit := int(math.Floor(float64(base) * p.Sell))
		for i := range units {
			units[i] = unit
		}
		return units
	}
	stock := s.Stock[itemID].Quantity
	defaultMax, hasDefault := s.defaultMax(itemID)
	relative := hasDefault && (s.Definition.Type == Specialty || s.Definition.Type == ZeroStock)
	for i := range units {
		diff := stock + i
		if relative {
			diff -= defaultMax
		}
		mul := math.Max(minSellMultiplier, p.Sell-float64(diff)*p.Rate)
		units[i] = int(math.Floor(float64(base) * mul))
	}
	return units
}

func total(units []int) int {
	sum := 0
	for _, u := range units {
		sum += u
	}
	return max(sum, 1)
}
