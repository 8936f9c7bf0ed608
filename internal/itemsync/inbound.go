package itemsync

import (
	"errors"
	"fmt"
	"time"

	"github.com/gravitas-games/economy/internal/inventory"
	"github.com/gravitas-games/economy/internal/network"
	"github.com/gravitas-games/economy/internal/shop"
	"github.com/gravitas-games/economy/pkg/models"
)

// errUnknownRequest marks a confirmation for a request this session never
// sent or already resolved.
var errUnknownRequest = errors.New("unknown request id")

// ApplyConfirmedDrop applies a drop the authority accepted.
func (s *Session) ApplyConfirmedDrop(p network.DropConfirmed) error {
	return s.confirm("drop", p.RequestID, func() error {
		st, ok := s.Inventory.Slot(p.Slot)
		if ok && st.SameIdentity(p.Item.Item) && st.Quantity >= p.Quantity {
			if _, err := s.Inventory.Remove(p.Slot, p.Quantity); err != nil {
				return err
			}
		} else if err := s.Inventory.RemoveMatching(p.Item.Item, p.Quantity, p.Slot); err != nil {
			return err
		}
		s.Floor.Upsert(p.Item)
		s.renderInventory()
		s.notify(fmt.Sprintf("Dropped %s.", p.Item.Item.WithQuantity(p.Quantity)))
		return nil
	})
}

// ApplyConfirmedPickup applies a pickup the authority accepted.
func (s *Session) ApplyConfirmedPickup(p network.PickupConfirmed) error {
	return s.confirm("pickup", p.RequestID, func() error {
		if err := s.Inventory.Add(p.Item.Item); err != nil {
			return err
		}
		s.Floor.Remove(p.Item.ID)
		s.renderInventory()
		s.notify(fmt.Sprintf("Picked up %s.", p.Item.Item))
		return nil
	})
}

// ApplyConfirmedBuy applies a purchase at the authority's price.
func (s *Session) ApplyConfirmedBuy(p network.TradeConfirmed) error {
	return s.confirm("buy", p.RequestID, func() error {
		tr := shop.Trade{Side: shop.SideBuy, ShopID: p.ShopID, ItemID: p.ItemID, Quantity: p.Quantity, Price: p.Price}
		if err := s.Shops.Commit(tr, s.Inventory); err != nil {
			return err
		}
		s.renderInventory()
		s.notify(fmt.Sprintf("Bought %dx %s for %d.", p.Quantity, p.ItemID, p.Price))
		return nil
	})
}

// ApplyConfirmedSell applies a sale at the authority's price.
func (s *Session) ApplyConfirmedSell(p network.TradeConfirmed) error {
	return s.confirm("sell", p.RequestID, func() error {
		tr := shop.Trade{Side: shop.SideSell, ShopID: p.ShopID, ItemID: p.ItemID, Quantity: p.Quantity, Price: p.Price, SoldAt: p.SoldAt}
		if err := s.Shops.Commit(tr, s.Inventory); err != nil {
			return err
		}
		s.renderInventory()
		s.notify(fmt.Sprintf("Sold %dx %s for %d.", p.Quantity, p.ItemID, p.Price))
		return nil
	})
}

// ApplyConfirmedDeposit applies a deposit of the confirmed amount.
func (s *Session) ApplyConfirmedDeposit(p network.DepositConfirmed) error {
	return s.confirm("deposit", p.RequestID, func() error {
		st, ok := s.Inventory.Slot(p.Slot)
		if !ok {
			return fmt.Errorf("%w: slot %d", inventory.ErrEmptySlot, p.Slot)
		}
		if have := s.Inventory.Count(st.ID, st.Noted); have < p.Moved {
			return fmt.Errorf("%w: have %d, authority moved %d", inventory.ErrInsufficient, have, p.Moved)
		}
		moved, err := s.Bank.Deposit(s.Inventory, p.Slot, p.Moved, p.Tab)
		if err != nil {
			return err
		}
		if moved != p.Moved {
			return fmt.Errorf("deposited %d, authority moved %d", moved, p.Moved)
		}
		s.renderInventory()
		s.renderBank()
		s.notify(fmt.Sprintf("Deposited %d items.", moved))
		return nil
	})
}

// ApplyConfirmedWithdraw applies a withdrawal of the confirmed amount.
func (s *Session) ApplyConfirmedWithdraw(p network.WithdrawConfirmed) error {
	return s.confirm("withdraw", p.RequestID, func() error {
		st, ok := s.Bank.Slot(p.Storage, p.Slot)
		if !ok || st.Quantity < p.Moved {
			return fmt.Errorf("%w: bank %d/%d cannot cover %d", inventory.ErrInsufficient, p.Storage, p.Slot, p.Moved)
		}
		moved, err := s.Bank.Withdraw(s.Inventory, p.Storage, p.Slot, p.Moved, p.AsNote)
		if err != nil {
			return err
		}
		if moved != p.Moved {
			return fmt.Errorf("withdrew %d, authority moved %d", moved, p.Moved)
		}
		s.renderInventory()
		s.renderBank()
		s.notify(fmt.Sprintf("Withdrew %d items.", moved))
		return nil
	})
}

// ApplyDenied reports a refused request. Nothing is applied; the returned
// error is the DenialError shown to the player.
func (s *Session) ApplyDenied(p network.Denied) error {
	s.resolve(p.RequestID)
	err := &DenialError{Op: p.Op, Code: p.Code, Reason: p.Reason, Actor: p.Actor}
	s.logger.Info("request denied", "op", p.Op, "request_id", p.RequestID, "code", p.Code, "actor", p.Actor)
	s.presenter.Notify(err.Error(), SeverityWarning)
	return err
}

// confirm resolves a request and runs apply. A confirmation the local
// cache cannot apply means it has drifted from the authority, so the
// session asks for full state instead of guessing.
func (s *Session) confirm(op, requestID string, apply func() error) error {
	if !s.resolve(requestID) {
		s.logger.Warn("confirmation ignored", "op", op, "request_id", requestID)
		return fmt.Errorf("%s %s: %w", op, requestID, errUnknownRequest)
	}
	if err := apply(); err != nil {
		s.logger.Warn("confirmation could not be applied, resyncing", "op", op, "request_id", requestID, "error", err)
		s.RequestResync()
		return fmt.Errorf("apply confirmed %s: %w", op, err)
	}
	return nil
}

// RequestResync asks the authority for full state.
func (s *Session) RequestResync() {
	if !s.Connected() {
		return
	}
	if err := s.authority.Send(network.MsgTypeResync, struct{}{}); err != nil {
		s.logger.Warn("resync request not sent", "error", err)
	}
}

// ReplaceInventory swaps in the authority's inventory wholesale.
func (s *Session) ReplaceInventory(slots []*models.ItemStack, equipment map[string]models.ItemStack) {
	s.Inventory.Restore(inventory.Snapshot{Slots: slots, Equipment: equipment})
	s.renderInventory()
}

// ReplaceBank swaps in the authority's bank wholesale.
func (s *Session) ReplaceBank(b inventory.BankSnapshot) {
	s.Bank.Replace(b)
	s.renderBank()
}

// ReplaceShopState swaps in every shop's stock wholesale.
func (s *Session) ReplaceShopState(all map[string]models.ShopStock) {
	s.Shops.Replace(all)
}

// ReplaceFloorItems swaps in every floor item wholesale.
func (s *Session) ReplaceFloorItems(all []models.FloorItem) {
	s.Floor.Replace(all)
}

// UpsertFloorItem creates or updates a floor item by id.
func (s *Session) UpsertFloorItem(item models.FloorItem) {
	s.Floor.Upsert(item)
}

// RemoveFloorItem drops a floor item from the local registry.
func (s *Session) RemoveFloorItem(id string) {
	s.Floor.Remove(id)
}

// Tick runs the local lifecycle. While connected the authority owns shop
// stock and floor expiry, so only the integrity pass runs and the restock
// clock follows along.
func (s *Session) Tick(now time.Time) {
	if n := s.Inventory.EnsureIntegrity(); n > 0 {
		s.renderInventory()
	}
	if s.Connected() {
		s.Shops.Anchor(now)
		return
	}
	s.Shops.Tick(now)
	if expired := s.Floor.Expire(now); len(expired) > 0 {
		s.logger.Debug("floor items expired", "count", len(expired))
	}
}

// Handle dispatches one message from the authority.
func (s *Session) Handle(env network.Envelope) error {
	switch env.Type {
	case network.MsgTypeDropConfirmed:
		var p network.DropConfirmed
		if err := env.Into(&p); err != nil {
			return err
		}
		return s.ApplyConfirmedDrop(p)
	case network.MsgTypePickupConfirmed:
		var p network.PickupConfirmed
		if err := env.Into(&p); err != nil {
			return err
		}
		return s.ApplyConfirmedPickup(p)
	case network.MsgTypeBuyConfirmed:
		var p network.TradeConfirmed
		if err := env.Into(&p); err != nil {
			return err
		}
		return s.ApplyConfirmedBuy(p)
	case network.MsgTypeSellConfirmed:
		var p network.TradeConfirmed
		if err := env.Into(&p); err != nil {
			return err
		}
		return s.ApplyConfirmedSell(p)
	case network.MsgTypeDepositConfirmed:
		var p network.DepositConfirmed
		if err := env.Into(&p); err != nil {
			return err
		}
		return s.ApplyConfirmedDeposit(p)
	case network.MsgTypeWithdrawConfirmed:
		var p network.WithdrawConfirmed
		if err := env.Into(&p); err != nil {
			return err
		}
		return s.ApplyConfirmedWithdraw(p)
	case network.MsgTypeDenied:
		var p network.Denied
		if err := env.Into(&p); err != nil {
			return err
		}
		return s.ApplyDenied(p)
	case network.MsgTypeInventoryState:
		var p network.InventoryState
		if err := env.Into(&p); err != nil {
			return err
		}
		s.ReplaceInventory(p.Slots, p.Equipment)
	case network.MsgTypeBankState:
		var p network.BankState
		if err := env.Into(&p); err != nil {
			return err
		}
		s.ReplaceBank(p.Bank)
	case network.MsgTypeShopState:
		var p network.ShopState
		if err := env.Into(&p); err != nil {
			return err
		}
		s.ReplaceShopState(p.Shops)
	case network.MsgTypeShopUpdate:
		var p network.ShopUpdate
		if err := env.Into(&p); err != nil {
			return err
		}
		if err := s.Shops.ReplaceShop(p.ShopID, p.Stock); err != nil {
			s.logger.Warn("shop update ignored", "shop", p.ShopID, "error", err)
		}
	case network.MsgTypeFloorState:
		var p network.FloorState
		if err := env.Into(&p); err != nil {
			return err
		}
		s.ReplaceFloorItems(p.Items)
	case network.MsgTypeFloorUpsert:
		var p network.FloorUpsert
		if err := env.Into(&p); err != nil {
			return err
		}
		s.UpsertFloorItem(p.Item)
	case network.MsgTypeFloorRemoved:
		var p network.FloorRemoved
		if err := env.Into(&p); err != nil {
			return err
		}
		s.RemoveFloorItem(p.ID)
	case network.MsgTypeWelcome, network.MsgTypePong, network.MsgTypePlayerJoined, network.MsgTypePlayerLeft:
		s.logger.Debug("server message", "type", env.Type)
	case network.MsgTypeError:
		var p network.ErrorPayload
		if err := env.Into(&p); err != nil {
			return err
		}
		s.presenter.Notify(p.Message, SeverityError)
	default:
		s.logger.Warn("unknown server message", "type", env.Type)
	}
	return nil
}
