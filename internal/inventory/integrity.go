package inventory

// EnsureIntegrity splits any non-stackable, non-noted stack holding more than
// one unit into single units in empty slots. When the inventory runs out of
// empty slots the remaining excess is folded back into the original stack
// rather than discarded. It returns the number of stacks corrected.
func (inv *Inventory) EnsureIntegrity() int {
	fixed := 0
	for i, st := range inv.slots {
		if st == nil || st.Quantity <= 1 {
			continue
		}
		stackable, err := inv.Stackable(*st)
		if err != nil || stackable {
			continue
		}
		excess := st.Quantity - 1
		st.Quantity = 1
		moved := 0
		for excess > 0 {
			j := inv.firstEmpty()
			if j < 0 {
				break
			}
			unit := st.WithQuantity(1)
			inv.slots[j] = &unit
			excess--
			moved++
		}
		if excess > 0 {
			st.Quantity += excess
		}
		fixed++
		inv.logger.Warn("inventory integrity: split non-stackable stack",
			"inventory", inv.ID,
			"slot", i,
			"item", st.ID,
			"moved", moved,
			"retained", st.Quantity,
		)
	}
	return fixed
}
