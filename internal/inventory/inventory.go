package inventory

import (
	"errors"
	"fmt"
	"sort"

	"github.com/gravitas-games/economy/pkg/models"
)

// AddStack inserts qty units of itemID, noted or not.
func (inv *Inventory) AddStack(itemID string, qty int, noted bool) error {
	if noted {
		return inv.Add(models.NewNoted(itemID, qty))
	}
	return inv.Add(models.NewStack(itemID, qty))
}

// Grant adds a kit of plain stacks in item id order. Items that do not fit
// or are unknown are skipped; their errors are joined into the result.
func (inv *Inventory) Grant(kit map[string]int) error {
	ids := make([]string, 0, len(kit))
	for id := range kit {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var errs []error
	for _, id := range ids {
		if err := inv.AddStack(id, kit[id], false); err != nil {
			errs = append(errs, fmt.Errorf("grant %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Add inserts a stack following the stacking rules:
//   - non-stackable, non-noted: one single-unit stack per unit, each in its
//     own empty slot; capacity is checked before anything is placed
//   - noted: merge into a noted stack with the same id and base item
//   - stackable: merge into an unnoted stack with the same id
//
// Otherwise the stack occupies the first empty slot.
func (inv *Inventory) Add(s models.ItemStack) error {
	if s.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	stackable, err := inv.Stackable(s)
	if err != nil {
		return err
	}
	if !stackable {
		free := inv.FreeSlots()
		if free < s.Quantity {
			return fmt.Errorf("%w: need %d free slots, have %d", ErrNoSpace, s.Quantity, free)
		}
		for i := 0; i < s.Quantity; i++ {
			unit := s.WithQuantity(1)
			inv.slots[inv.firstEmpty()] = &unit
		}
		return nil
	}
	if idx := inv.mergeTarget(s); idx >= 0 {
		inv.slots[idx].Quantity += s.Quantity
		return nil
	}
	idx := inv.firstEmpty()
	if idx < 0 {
		return ErrNoSpace
	}
	st := s.Clone()
	inv.slots[idx] = &st
	return nil
}

// CanAdd reports whether Add(s) would succeed, without mutating.
func (inv *Inventory) CanAdd(s models.ItemStack) bool {
	if s.Quantity <= 0 {
		return false
	}
	stackable, err := inv.Stackable(s)
	if err != nil {
		return false
	}
	if !stackable {
		return inv.FreeSlots() >= s.Quantity
	}
	return inv.mergeTarget(s) >= 0 || inv.firstEmpty() >= 0
}

// RemoveUnit takes one unit out of a slot. Stackable and noted stacks lose
// one unit; any other stack is cleared entirely.
func (inv *Inventory) RemoveUnit(slot int) (models.ItemStack, error) {
	st, err := inv.occupied(slot)
	if err != nil {
		return models.ItemStack{}, err
	}
	stackable, err := inv.Stackable(*st)
	if err != nil {
		return models.ItemStack{}, err
	}
	if !stackable {
		inv.slots[slot] = nil
		return *st, nil
	}
	removed := st.WithQuantity(1)
	st.Quantity--
	if st.Quantity <= 0 {
		inv.slots[slot] = nil
	}
	return removed, nil
}

// Remove takes qty units out of a single slot.
func (inv *Inventory) Remove(slot, qty int) (models.ItemStack, error) {
	if qty <= 0 {
		return models.ItemStack{}, ErrInvalidQuantity
	}
	st, err := inv.occupied(slot)
	if err != nil {
		return models.ItemStack{}, err
	}
	if qty > st.Quantity {
		return models.ItemStack{}, fmt.Errorf("%w: slot %d holds %d, need %d", ErrInsufficient, slot, st.Quantity, qty)
	}
	removed := st.WithQuantity(qty)
	st.Quantity -= qty
	if st.Quantity == 0 {
		inv.slots[slot] = nil
	}
	return removed, nil
}

// RemoveMatching removes qty units with the identity of proto, starting at
// preferSlot (if >= 0) and then scanning the rest of the inventory. Nothing
// is removed unless all qty units are available.
func (inv *Inventory) RemoveMatching(proto models.ItemStack, qty, preferSlot int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	have := inv.countIdentity(proto)
	if have < qty {
		return fmt.Errorf("%w: have %d %s, need %d", ErrInsufficient, have, proto.ID, qty)
	}
	order := make([]int, 0, len(inv.slots))
	if preferSlot >= 0 && preferSlot < len(inv.slots) {
		order = append(order, preferSlot)
	}
	for i := range inv.slots {
		if i != preferSlot {
			order = append(order, i)
		}
	}
	remaining := qty
	for _, i := range order {
		st := inv.slots[i]
		if remaining == 0 {
			break
		}
		if st == nil || !st.SameIdentity(proto) {
			continue
		}
		take := min(st.Quantity, remaining)
		st.Quantity -= take
		remaining -= take
		if st.Quantity == 0 {
			inv.slots[i] = nil
		}
	}
	return nil
}

// RemoveItem removes qty plain (or noted) units of itemID from anywhere in
// the inventory.
func (inv *Inventory) RemoveItem(itemID string, qty int, noted bool) error {
	proto := models.NewStack(itemID, 0)
	if noted {
		proto = models.NewNoted(itemID, 0)
	}
	return inv.RemoveMatching(proto, qty, -1)
}

// Swap exchanges two slots. Same-item stacks are never merged by a swap.
func (inv *Inventory) Swap(a, b int) error {
	if !inv.validSlot(a) || !inv.validSlot(b) {
		return ErrInvalidSlot
	}
	inv.slots[a], inv.slots[b] = inv.slots[b], inv.slots[a]
	return nil
}

// Count returns the number of units of itemID, plain or noted.
func (inv *Inventory) Count(itemID string, noted bool) int {
	proto := models.NewStack(itemID, 0)
	if noted {
		proto = models.NewNoted(itemID, 0)
	}
	return inv.countIdentity(proto)
}

// FreeSlots returns the number of empty slots.
func (inv *Inventory) FreeSlots() int {
	n := 0
	for _, st := range inv.slots {
		if st == nil {
			n++
		}
	}
	return n
}

// Len returns the slot count.
func (inv *Inventory) Len() int { return len(inv.slots) }

// Slot returns a copy of the stack at i.
func (inv *Inventory) Slot(i int) (models.ItemStack, bool) {
	if !inv.validSlot(i) || inv.slots[i] == nil {
		return models.ItemStack{}, false
	}
	return inv.slots[i].Clone(), true
}

// Slots returns a deep copy of all slots; empty slots are nil.
func (inv *Inventory) Slots() []*models.ItemStack {
	return cloneSlots(inv.slots)
}

// Replace swaps in a full slot array from the authority. Missing trailing
// slots are empty; extra slots are dropped with a warning.
func (inv *Inventory) Replace(slots []*models.ItemStack) {
	next := make([]*models.ItemStack, len(inv.slots))
	for i, st := range slots {
		if i >= len(next) {
			if st != nil {
				inv.logger.Warn("inventory replace dropped overflow slot", "inventory", inv.ID, "slot", i, "item", st.ID)
			}
			continue
		}
		if st != nil && st.Quantity > 0 {
			c := st.Clone()
			next[i] = &c
		}
	}
	inv.slots = next
	inv.EnsureIntegrity()
}

// Atomic runs fn against a scratch copy of the inventory and commits the
// copy only if fn returns nil.
func (inv *Inventory) Atomic(fn func(tx *Inventory) error) error {
	tx := inv.clone()
	if err := fn(tx); err != nil {
		return err
	}
	inv.slots = tx.slots
	inv.equipment = tx.equipment
	return nil
}

func (inv *Inventory) clone() *Inventory {
	out := *inv
	out.slots = cloneSlots(inv.slots)
	out.equipment = make(map[string]models.ItemStack, len(inv.equipment))
	for k, v := range inv.equipment {
		out.equipment[k] = v.Clone()
	}
	return &out
}

func cloneSlots(in []*models.ItemStack) []*models.ItemStack {
	out := make([]*models.ItemStack, len(in))
	for i, st := range in {
		if st != nil {
			c := st.Clone()
			out[i] = &c
		}
	}
	return out
}

func (inv *Inventory) countIdentity(proto models.ItemStack) int {
	n := 0
	for _, st := range inv.slots {
		if st != nil && st.SameIdentity(proto) {
			n += st.Quantity
		}
	}
	return n
}

func (inv *Inventory) mergeTarget(s models.ItemStack) int {
	for i, st := range inv.slots {
		if st != nil && st.SameIdentity(s) {
			return i
		}
	}
	return -1
}

func (inv *Inventory) firstEmpty() int {
	for i, st := range inv.slots {
		if st == nil {
			return i
		}
	}
	return -1
}

func (inv *Inventory) validSlot(i int) bool {
	return i >= 0 && i < len(inv.slots)
}

func (inv *Inventory) occupied(slot int) (*models.ItemStack, error) {
	if !inv.validSlot(slot) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSlot, slot)
	}
	st := inv.slots[slot]
	if st == nil {
		return nil, fmt.Errorf("%w: %d", ErrEmptySlot, slot)
	}
	return st, nil
}
