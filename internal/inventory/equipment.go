package inventory

import (
	"fmt"

	"github.com/gravitas-games/economy/pkg/models"
)

// Equip moves the stack at slot into its equipment slot. Whatever was
// equipped there goes back into the vacated inventory slot.
func (inv *Inventory) Equip(slot int) (models.ItemStack, error) {
	st, err := inv.occupied(slot)
	if err != nil {
		return models.ItemStack{}, err
	}
	if st.Noted {
		return models.ItemStack{}, fmt.Errorf("%w: noted items cannot be equipped", ErrNotEquippable)
	}
	def, ok := inv.Definition(st.ID)
	if !ok {
		return models.ItemStack{}, fmt.Errorf("%w: %s", ErrUnknownItem, st.ID)
	}
	if def.EquipmentSlot == "" {
		return models.ItemStack{}, fmt.Errorf("%w: %s", ErrNotEquippable, st.ID)
	}
	equipped := st.Clone()
	inv.slots[slot] = nil
	if prev, had := inv.equipment[def.EquipmentSlot]; had {
		p := prev.Clone()
		inv.slots[slot] = &p
	}
	inv.equipment[def.EquipmentSlot] = equipped
	return equipped, nil
}

// Unequip returns the item in an equipment slot to the inventory.
func (inv *Inventory) Unequip(equipmentSlot string) error {
	st, ok := inv.equipment[equipmentSlot]
	if !ok {
		return fmt.Errorf("%w: nothing equipped in %s", ErrEmptySlot, equipmentSlot)
	}
	if err := inv.Add(st); err != nil {
		return err
	}
	delete(inv.equipment, equipmentSlot)
	return nil
}

// Equipment returns a copy of the equipped items keyed by equipment slot.
func (inv *Inventory) Equipment() map[string]models.ItemStack {
	out := make(map[string]models.ItemStack, len(inv.equipment))
	for k, v := range inv.equipment {
		out[k] = v.Clone()
	}
	return out
}
