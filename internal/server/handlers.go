package server

import (
	"context"
	"errors"

	"github.com/gravitas-games/economy/internal/floor"
	"github.com/gravitas-games/economy/internal/inventory"
	"github.com/gravitas-games/economy/internal/itemsync"
	"github.com/gravitas-games/economy/internal/ledger"
	"github.com/gravitas-games/economy/internal/network"
	"github.com/gravitas-games/economy/internal/shop"
	"github.com/gravitas-games/economy/pkg/models"
)

// handle routes one client message on the world goroutine.
func (w *World) handle(ctx context.Context, wp *worldPlayer, env network.Envelope) {
	switch env.Type {
	case network.MsgTypePing:
		wp.out.Send(network.MsgTypePong, map[string]int64{"timestamp": w.now().Unix()})
	case network.MsgTypeMove:
		var p network.MovePayload
		if w.decode(wp, env, &p) {
			wp.session.Move(p.X, p.Y)
			wp.info.Position = wp.session.Position
		}
	case network.MsgTypeResync:
		w.sendState(wp)
	case network.MsgTypeDropRequest:
		var r network.DropRequest
		if w.decode(wp, env, &r) {
			w.handleDrop(ctx, wp, r)
		}
	case network.MsgTypePickupRequest:
		var r network.PickupRequest
		if w.decode(wp, env, &r) {
			w.handlePickup(ctx, wp, r)
		}
	case network.MsgTypeBuyRequest:
		var r network.BuyRequest
		if w.decode(wp, env, &r) {
			w.handleBuy(ctx, wp, r)
		}
	case network.MsgTypeSellRequest:
		var r network.SellRequest
		if w.decode(wp, env, &r) {
			w.handleSell(ctx, wp, r)
		}
	case network.MsgTypeDepositRequest:
		var r network.DepositRequest
		if w.decode(wp, env, &r) {
			w.handleDeposit(ctx, wp, r)
		}
	case network.MsgTypeWithdrawRequest:
		var r network.WithdrawRequest
		if w.decode(wp, env, &r) {
			w.handleWithdraw(ctx, wp, r)
		}
	case network.MsgTypeSwap:
		var p network.SwapPayload
		if w.decode(wp, env, &p) {
			w.mirrored(wp, "swap", wp.session.ExecSwap(p.A, p.B))
		}
	case network.MsgTypeCombine:
		var p network.CombinePayload
		if w.decode(wp, env, &p) {
			_, err := wp.session.ExecCombine(p.First, p.Second)
			w.mirrored(wp, "combine", err)
		}
	case network.MsgTypeUse:
		var p network.UsePayload
		if w.decode(wp, env, &p) {
			_, err := wp.session.ExecUse(p.Slot)
			w.mirrored(wp, "use", err)
		}
	default:
		w.logger.Warn("unknown message type", "type", env.Type, "player", wp.info.ID)
		wp.out.Send(network.MsgTypeError, network.ErrorPayload{Code: network.CodeUnknownType, Message: "Unknown message type"})
	}
}

func (w *World) decode(wp *worldPlayer, env network.Envelope, v any) bool {
	if err := env.Into(v); err != nil {
		w.logger.Debug("bad payload", "type", env.Type, "player", wp.info.ID, "error", err)
		wp.out.Send(network.MsgTypeError, network.ErrorPayload{Code: network.CodeInvalid, Message: err.Error()})
		return false
	}
	return true
}

func (w *World) handleDrop(ctx context.Context, wp *worldPlayer, r network.DropRequest) {
	item, err := wp.session.ExecDrop(r.Slot, r.Quantity)
	if err != nil {
		w.deny(wp, r.RequestID, "drop", err)
		return
	}
	wp.out.Send(network.MsgTypeDropConfirmed, network.DropConfirmed{RequestID: r.RequestID, Slot: r.Slot, Quantity: r.Quantity, Item: item})
	w.broadcastExcept(wp.info.ID, network.MsgTypeFloorUpsert, network.FloorUpsert{Item: item})
	w.record(ctx, ledger.Entry{Player: wp.info.ID, Op: "drop", RequestID: r.RequestID, ItemID: item.Item.ID, Quantity: r.Quantity, Ref: item.ID})
}

func (w *World) handlePickup(ctx context.Context, wp *worldPlayer, r network.PickupRequest) {
	item, err := wp.session.ExecPickup(r.FloorItemID)
	if err != nil {
		w.deny(wp, r.RequestID, "pickup", err)
		return
	}
	wp.out.Send(network.MsgTypePickupConfirmed, network.PickupConfirmed{RequestID: r.RequestID, Item: item})
	w.broadcastExcept(wp.info.ID, network.MsgTypeFloorRemoved, network.FloorRemoved{ID: item.ID})
	w.record(ctx, ledger.Entry{Player: wp.info.ID, Op: "pickup", RequestID: r.RequestID, ItemID: item.Item.ID, Quantity: item.Item.Quantity, Ref: item.ID})
}

func (w *World) handleBuy(ctx context.Context, wp *worldPlayer, r network.BuyRequest) {
	tr, err := wp.session.ExecBuy(r.ShopID, r.ItemID, r.Quantity)
	if err != nil {
		w.deny(wp, r.RequestID, "buy", err)
		return
	}
	w.confirmTrade(ctx, wp, network.MsgTypeBuyConfirmed, r.RequestID, tr)
}

func (w *World) handleSell(ctx context.Context, wp *worldPlayer, r network.SellRequest) {
	tr, err := wp.session.ExecSell(r.ShopID, r.ItemID, r.Quantity, false)
	if err != nil {
		w.deny(wp, r.RequestID, "sell", err)
		return
	}
	w.confirmTrade(ctx, wp, network.MsgTypeSellConfirmed, r.RequestID, tr)
}

// confirmTrade answers the trader and pushes the shop's new stock to
// everyone else; the trader's own copy moves when it applies the
// confirmation.
func (w *World) confirmTrade(ctx context.Context, wp *worldPlayer, msgType, requestID string, tr shop.Trade) {
	wp.out.Send(msgType, network.TradeConfirmed{RequestID: requestID, ShopID: tr.ShopID, ItemID: tr.ItemID, Quantity: tr.Quantity, Price: tr.Price, SoldAt: tr.SoldAt})
	w.broadcastExcept(wp.info.ID, network.MsgTypeShopUpdate, network.ShopUpdate{ShopID: tr.ShopID, Stock: w.shops.Snapshot()[tr.ShopID]})
	w.record(ctx, ledger.Entry{Player: wp.info.ID, Op: string(tr.Side), RequestID: requestID, ItemID: tr.ItemID, Quantity: tr.Quantity, Price: tr.Price, Ref: tr.ShopID})
}

func (w *World) handleDeposit(ctx context.Context, wp *worldPlayer, r network.DepositRequest) {
	st, _ := wp.session.Inventory.Slot(r.Slot)
	moved, err := wp.session.ExecDeposit(r.Slot, r.Quantity, r.Tab)
	if err != nil {
		w.deny(wp, r.RequestID, "deposit", err)
		return
	}
	wp.out.Send(network.MsgTypeDepositConfirmed, network.DepositConfirmed{RequestID: r.RequestID, Slot: r.Slot, Quantity: r.Quantity, Tab: r.Tab, Moved: moved})
	w.record(ctx, ledger.Entry{Player: wp.info.ID, Op: "deposit", RequestID: r.RequestID, ItemID: st.Base(), Quantity: moved, Ref: "bank"})
}

func (w *World) handleWithdraw(ctx context.Context, wp *worldPlayer, r network.WithdrawRequest) {
	st, _ := wp.session.Bank.Slot(r.Storage, r.Slot)
	moved, err := wp.session.ExecWithdraw(r.Storage, r.Slot, r.Quantity, r.AsNote)
	if err != nil {
		w.deny(wp, r.RequestID, "withdraw", err)
		return
	}
	wp.out.Send(network.MsgTypeWithdrawConfirmed, network.WithdrawConfirmed{RequestID: r.RequestID, Storage: r.Storage, Slot: r.Slot, Quantity: r.Quantity, AsNote: r.AsNote, Moved: moved})
	w.record(ctx, ledger.Entry{Player: wp.info.ID, Op: "withdraw", RequestID: r.RequestID, ItemID: st.ID, Quantity: moved, Ref: "bank"})
}

// mirrored handles a change the client already applied locally. When the
// authority cannot reproduce it the client is resynced.
func (w *World) mirrored(wp *worldPlayer, op string, err error) {
	if err == nil {
		return
	}
	w.logger.Warn("mirrored change diverged, resyncing", "op", op, "player", wp.info.ID, "error", err)
	wp.out.Send(network.MsgTypeInventoryState, network.InventoryState{
		Slots:     wp.session.Inventory.Slots(),
		Equipment: wp.session.Inventory.Equipment(),
	})
}

func (w *World) deny(wp *worldPlayer, requestID, op string, err error) {
	d := network.Denied{RequestID: requestID, Op: op, Code: denialCode(err), Reason: err.Error()}
	var conflict *itemsync.ConflictError
	if errors.As(err, &conflict) {
		d.Actor = conflict.Actor
	}
	w.logger.Debug("request denied", "op", op, "player", wp.info.ID, "code", d.Code, "error", err)
	wp.out.Send(network.MsgTypeDenied, d)
}

// denialCode classifies an operation error for the wire.
func denialCode(err error) string {
	var conflict *itemsync.ConflictError
	switch {
	case errors.As(err, &conflict):
		return network.CodeTaken
	case errors.Is(err, floor.ErrOutOfRange):
		return network.CodeOutOfRange
	case errors.Is(err, inventory.ErrNoSpace), errors.Is(err, inventory.ErrBankFull):
		return network.CodeNoSpace
	case errors.Is(err, shop.ErrInsufficientFunds):
		return network.CodeInsufficientFunds
	case errors.Is(err, shop.ErrInsufficientStock):
		return network.CodeInsufficientStock
	case errors.Is(err, shop.ErrInsufficientItems), errors.Is(err, inventory.ErrInsufficient):
		return network.CodeInsufficientItems
	case errors.Is(err, shop.ErrNotAccepted):
		return network.CodeNotAccepted
	case errors.Is(err, shop.ErrNotedItem):
		return network.CodeNotedItem
	case errors.Is(err, models.ErrNotFound):
		return network.CodeNotFound
	default:
		return network.CodeInvalid
	}
}
