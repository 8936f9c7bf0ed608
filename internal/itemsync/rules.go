package itemsync

import (
	"errors"
	"fmt"

	"github.com/gravitas-games/economy/internal/catalog"
	"github.com/gravitas-games/economy/internal/floor"
	"github.com/gravitas-games/economy/internal/inventory"
	"github.com/gravitas-games/economy/internal/shop"
	"github.com/gravitas-games/economy/pkg/models"
)

// The Exec methods are the one rule engine behind every item operation.
// A disconnected session calls them directly; the authority calls them on
// the requesting player's session and confirms the outcome. Each is
// all-or-nothing.

// UseOutcome describes what using an item did.
type UseOutcome struct {
	Kind    catalog.UseKind
	Item    models.ItemStack
	Message string
}

// ExecDrop removes qty units from slot and places them on the player's tile.
func (s *Session) ExecDrop(slot, qty int) (models.FloorItem, error) {
	st, ok := s.Inventory.Slot(slot)
	if !ok {
		return models.FloorItem{}, fmt.Errorf("%w: slot %d", inventory.ErrEmptySlot, slot)
	}
	if qty <= 0 || qty > st.Quantity {
		return models.FloorItem{}, fmt.Errorf("%w: drop %d of %d", inventory.ErrInvalidQuantity, qty, st.Quantity)
	}
	removed, err := s.Inventory.Remove(slot, qty)
	if err != nil {
		return models.FloorItem{}, err
	}
	item, err := s.Floor.Create(removed, s.Position.X, s.Position.Y, s.PlayerID)
	if err != nil {
		// Put the units back exactly where they were.
		restored := s.Inventory.Slots()
		if restored[slot] == nil {
			restored[slot] = &st
		} else {
			restored[slot].Quantity += qty
		}
		s.Inventory.Replace(restored)
		return models.FloorItem{}, err
	}
	s.renderInventory()
	return item, nil
}

// ExecPickup moves a floor item into the inventory. When the item is gone
// because another player took it, the error is a ConflictError naming them.
func (s *Session) ExecPickup(floorItemID string) (models.FloorItem, error) {
	item, err := s.Floor.Pickup(floorItemID, s.Position, s.PlayerID, s.Inventory)
	if err != nil {
		if errors.Is(err, floor.ErrNotFound) {
			if actor, ok := s.Floor.TakenBy(floorItemID); ok && actor != s.PlayerID {
				return models.FloorItem{}, &ConflictError{Actor: actor, Err: err}
			}
		}
		return models.FloorItem{}, err
	}
	s.renderInventory()
	return item, nil
}

// ExecBuy buys qty units of itemID at the current price.
func (s *Session) ExecBuy(shopID, itemID string, qty int) (shop.Trade, error) {
	tr, err := s.Shops.Buy(shopID, itemID, qty, s.Inventory)
	if err != nil {
		return shop.Trade{}, err
	}
	s.renderInventory()
	return tr, nil
}

// ExecSell sells qty plain units of itemID at the current price.
func (s *Session) ExecSell(shopID, itemID string, qty int, noted bool) (shop.Trade, error) {
	item := models.NewStack(itemID, qty)
	if noted {
		item = models.NewNoted(itemID, qty)
	}
	tr, err := s.Shops.Sell(shopID, item, s.Inventory)
	if err != nil {
		return shop.Trade{}, err
	}
	s.renderInventory()
	return tr, nil
}

// ExecDeposit banks up to qty units of the item at slot.
func (s *Session) ExecDeposit(slot, qty, tab int) (int, error) {
	moved, err := s.Bank.Deposit(s.Inventory, slot, qty, tab)
	if err != nil {
		return 0, err
	}
	s.renderInventory()
	s.renderBank()
	return moved, nil
}

// ExecWithdraw takes up to qty units out of a bank slot.
func (s *Session) ExecWithdraw(storage, slot, qty int, asNote bool) (int, error) {
	moved, err := s.Bank.Withdraw(s.Inventory, storage, slot, qty, asNote)
	if err != nil {
		return 0, err
	}
	s.renderInventory()
	s.renderBank()
	return moved, nil
}

// ExecSwap exchanges two inventory slots.
func (s *Session) ExecSwap(a, b int) error {
	if err := s.Inventory.Swap(a, b); err != nil {
		return err
	}
	s.presenter.RenderSlot(ContainerInventory, a, slotPtr(s.Inventory, a))
	s.presenter.RenderSlot(ContainerInventory, b, slotPtr(s.Inventory, b))
	return nil
}

// ExecCombine uses the item at first on the item at second.
func (s *Session) ExecCombine(first, second int) (catalog.CombinationRule, error) {
	if first == second {
		return catalog.CombinationRule{}, ErrSameSlot
	}
	a, ok := s.Inventory.Slot(first)
	if !ok {
		return catalog.CombinationRule{}, fmt.Errorf("%w: slot %d", inventory.ErrEmptySlot, first)
	}
	b, ok := s.Inventory.Slot(second)
	if !ok {
		return catalog.CombinationRule{}, fmt.Errorf("%w: slot %d", inventory.ErrEmptySlot, second)
	}
	if a.Noted || b.Noted {
		return catalog.CombinationRule{}, ErrNotedUse
	}
	rule, ok := s.combos.Lookup(a.ID, b.ID)
	if !ok {
		return catalog.CombinationRule{}, ErrNoCombination
	}
	err := s.Inventory.Atomic(func(tx *inventory.Inventory) error {
		if rule.ConsumeFirst {
			if _, err := tx.RemoveUnit(first); err != nil {
				return err
			}
		}
		if rule.ConsumeSecond {
			if _, err := tx.RemoveUnit(second); err != nil {
				return err
			}
		}
		if rule.Result != nil {
			return tx.Add(rule.Result.Clone())
		}
		return nil
	})
	if err != nil {
		return catalog.CombinationRule{}, err
	}
	s.renderInventory()
	return rule, nil
}

// ExecUse applies the item's use action: eating and drinking consume one
// unit, wielding and wearing equip it. Other actions act on the world and
// leave the inventory alone.
func (s *Session) ExecUse(slot int) (UseOutcome, error) {
	st, ok := s.Inventory.Slot(slot)
	if !ok {
		return UseOutcome{}, fmt.Errorf("%w: slot %d", inventory.ErrEmptySlot, slot)
	}
	if st.Noted {
		return UseOutcome{}, ErrNotedUse
	}
	def, ok := s.Inventory.Definition(st.ID)
	if !ok {
		return UseOutcome{}, fmt.Errorf("%w: %s", inventory.ErrUnknownItem, st.ID)
	}
	out := UseOutcome{Kind: def.Use, Item: st.WithQuantity(1)}
	switch {
	case def.Use.Consumes():
		if _, err := s.Inventory.RemoveUnit(slot); err != nil {
			return UseOutcome{}, err
		}
	case def.Use.Equips():
		if _, err := s.Inventory.Equip(slot); err != nil {
			return UseOutcome{}, err
		}
	case def.Use == catalog.UseNone:
		return UseOutcome{}, ErrCannotUse
	}
	out.Message = fmt.Sprintf("You %s the %s.", def.Use.Verb(), def.DisplayName())
	s.presenter.RenderSlot(ContainerInventory, slot, slotPtr(s.Inventory, slot))
	return out, nil
}

func slotPtr(inv *inventory.Inventory, i int) *models.ItemStack {
	st, ok := inv.Slot(i)
	if !ok {
		return nil
	}
	return &st
}
