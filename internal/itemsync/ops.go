package itemsync

import (
	"fmt"

	"github.com/gravitas-games/economy/internal/inventory"
	"github.com/gravitas-games/economy/internal/network"
	"github.com/gravitas-games/economy/internal/shop"
)

// Drop drops qty units from slot; qty <= 0 prompts for an amount.
func (s *Session) Drop(slot, qty int) (Result, error) {
	const op = "drop"
	st, ok := s.Inventory.Slot(slot)
	if !ok {
		return Applied, s.fail(op, fmt.Errorf("%w: slot %d", inventory.ErrEmptySlot, slot))
	}
	qty, err := s.quantity(qty, st.Quantity)
	if err != nil {
		return Applied, s.fail(op, err)
	}
	if s.Connected() {
		return s.request(op, network.MsgTypeDropRequest, func(id string) any {
			return network.DropRequest{RequestID: id, Slot: slot, Quantity: qty}
		})
	}
	item, err := s.ExecDrop(slot, qty)
	if err != nil {
		return Applied, s.fail(op, err)
	}
	s.notify(fmt.Sprintf("Dropped %s.", item.Item.WithQuantity(qty)))
	return Applied, nil
}

// Pickup picks up a floor item.
func (s *Session) Pickup(floorItemID string) (Result, error) {
	const op = "pickup"
	if floorItemID == "" {
		return Applied, s.fail(op, ErrInvalidArgs)
	}
	if s.Connected() {
		return s.request(op, network.MsgTypePickupRequest, func(id string) any {
			return network.PickupRequest{RequestID: id, FloorItemID: floorItemID}
		})
	}
	item, err := s.ExecPickup(floorItemID)
	if err != nil {
		return Applied, s.fail(op, err)
	}
	s.notify(fmt.Sprintf("Picked up %s.", item.Item))
	return Applied, nil
}

// Buy buys qty units of itemID; qty <= 0 prompts, bounded by the shop's
// stock.
func (s *Session) Buy(shopID, itemID string, qty int) (Result, error) {
	const op = "buy"
	st, ok := s.Shops.Shop(shopID)
	if !ok {
		return Applied, s.fail(op, fmt.Errorf("%w: %s", shop.ErrUnknownShop, shopID))
	}
	limit := st.Stock[itemID].Quantity
	if !st.Definition.Type.Metered() {
		limit = inventory.Size
	}
	qty, err := s.quantity(qty, limit)
	if err != nil {
		return Applied, s.fail(op, err)
	}
	if s.Connected() {
		return s.request(op, network.MsgTypeBuyRequest, func(id string) any {
			return network.BuyRequest{RequestID: id, ShopID: shopID, ItemID: itemID, Quantity: qty}
		})
	}
	tr, err := s.ExecBuy(shopID, itemID, qty)
	if err != nil {
		return Applied, s.fail(op, err)
	}
	s.notify(fmt.Sprintf("Bought %dx %s for %d %s.", tr.Quantity, tr.ItemID, tr.Price, tr.Currency))
	return Applied, nil
}

// Sell sells qty units of the item at slot; qty <= 0 prompts.
func (s *Session) Sell(shopID string, slot, qty int) (Result, error) {
	const op = "sell"
	st, ok := s.Inventory.Slot(slot)
	if !ok {
		return Applied, s.fail(op, fmt.Errorf("%w: slot %d", inventory.ErrEmptySlot, slot))
	}
	if st.Noted {
		return Applied, s.fail(op, shop.ErrNotedItem)
	}
	qty, err := s.quantity(qty, s.Inventory.Count(st.ID, false))
	if err != nil {
		return Applied, s.fail(op, err)
	}
	if s.Connected() {
		return s.request(op, network.MsgTypeSellRequest, func(id string) any {
			return network.SellRequest{RequestID: id, ShopID: shopID, ItemID: st.ID, Quantity: qty}
		})
	}
	tr, err := s.ExecSell(shopID, st.ID, qty, false)
	if err != nil {
		return Applied, s.fail(op, err)
	}
	s.notify(fmt.Sprintf("Sold %dx %s for %d %s.", tr.Quantity, tr.ItemID, tr.Price, tr.Currency))
	return Applied, nil
}

// Deposit banks qty units of the item at slot into tab (or wherever the
// bank already holds it); qty <= 0 prompts.
func (s *Session) Deposit(slot, qty, tab int) (Result, error) {
	const op = "deposit"
	st, ok := s.Inventory.Slot(slot)
	if !ok {
		return Applied, s.fail(op, fmt.Errorf("%w: slot %d", inventory.ErrEmptySlot, slot))
	}
	qty, err := s.quantity(qty, s.Inventory.Count(st.ID, st.Noted))
	if err != nil {
		return Applied, s.fail(op, err)
	}
	if s.Connected() {
		return s.request(op, network.MsgTypeDepositRequest, func(id string) any {
			return network.DepositRequest{RequestID: id, Slot: slot, Quantity: qty, Tab: tab}
		})
	}
	moved, err := s.ExecDeposit(slot, qty, tab)
	if err != nil {
		return Applied, s.fail(op, err)
	}
	s.notify(fmt.Sprintf("Deposited %dx %s.", moved, st.Base()))
	return Applied, nil
}

// Withdraw takes qty units out of a bank slot, optionally as a note; qty
// <= 0 prompts.
func (s *Session) Withdraw(storage, slot, qty int, asNote bool) (Result, error) {
	const op = "withdraw"
	st, ok := s.Bank.Slot(storage, slot)
	if !ok {
		return Applied, s.fail(op, fmt.Errorf("%w: bank %d/%d", inventory.ErrEmptySlot, storage, slot))
	}
	qty, err := s.quantity(qty, st.Quantity)
	if err != nil {
		return Applied, s.fail(op, err)
	}
	if s.Connected() {
		return s.request(op, network.MsgTypeWithdrawRequest, func(id string) any {
			return network.WithdrawRequest{RequestID: id, Storage: storage, Slot: slot, Quantity: qty, AsNote: asNote}
		})
	}
	moved, err := s.ExecWithdraw(storage, slot, qty, asNote)
	if err != nil {
		return Applied, s.fail(op, err)
	}
	s.notify(fmt.Sprintf("Withdrew %dx %s.", moved, st.ID))
	return Applied, nil
}

// Swap rearranges two slots locally and mirrors the change to the
// authority when connected.
func (s *Session) Swap(a, b int) error {
	if err := s.ExecSwap(a, b); err != nil {
		return s.fail("swap", err)
	}
	s.mirror(network.MsgTypeSwap, network.SwapPayload{A: a, B: b})
	return nil
}

// Combine uses the item at first on the item at second.
func (s *Session) Combine(first, second int) error {
	rule, err := s.ExecCombine(first, second)
	if err != nil {
		return s.fail("combine", err)
	}
	if rule.Message != "" {
		s.notify(rule.Message)
	}
	s.mirror(network.MsgTypeCombine, network.CombinePayload{First: first, Second: second})
	return nil
}

// Use uses the item at slot.
func (s *Session) Use(slot int) error {
	out, err := s.ExecUse(slot)
	if err != nil {
		return s.fail("use", err)
	}
	s.notify(out.Message)
	s.mirror(network.MsgTypeUse, network.UsePayload{Slot: slot})
	return nil
}

// mirror forwards a local-only change so the authority's copy keeps the
// same slot layout. A lost mirror is repaired by the next resync.
func (s *Session) mirror(msgType string, payload any) {
	if !s.Connected() {
		return
	}
	if err := s.authority.Send(msgType, payload); err != nil {
		s.logger.Warn("mirror not sent", "type", msgType, "error", err)
	}
}
