package shop

import (
	"errors"
	"fmt"

	"github.com/gravitas-games/economy/internal/inventory"
	"github.com/gravitas-games/economy/pkg/models"
)

// Side is the direction of a trade from the player's point of view.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Trade is a validated, priced transaction that has not been applied yet.
type Trade struct {
	Side     Side   `json:"side"`
	ShopID   string `json:"shopId"`
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
	Price    int    `json:"price"`
	Currency string `json:"currency"`
	// Units is the per-unit price breakdown; Price is their sum floored at 1.
	Units []int `json:"units,omitempty"`
	// SoldAt stamps a sale's stock line in unix milliseconds. Zero means
	// the committing engine's clock.
	SoldAt int64 `json:"soldAt,omitempty"`
}

var errDryRun = errors.New("dry run")

// QuoteBuy validates a purchase of qty units of itemID against the shop's
// stock, the buyer's currency and the buyer's free space. Nothing is
// mutated.
func (e *Engine) QuoteBuy(shopID, itemID string, qty int, inv *inventory.Inventory) (Trade, error) {
	st, base, err := e.priced(shopID, itemID, qty)
	if err != nil {
		return Trade{}, err
	}
	if !st.Sells(itemID) {
		return Trade{}, fmt.Errorf("%w: %s at %s", ErrNotSold, itemID, shopID)
	}
	if err := st.checkStock(itemID, qty); err != nil {
		return Trade{}, err
	}
	units := st.buyUnits(itemID, base, qty)
	tr := Trade{
		Side:     SideBuy,
		ShopID:   shopID,
		ItemID:   itemID,
		Quantity: qty,
		Price:    total(units),
		Currency: st.Definition.CurrencyID(),
		Units:    units,
	}
	if err := dryRun(inv, e.inventoryChange(tr)); err != nil {
		return Trade{}, err
	}
	return tr, nil
}

// QuoteSell validates selling item.Quantity units of item to the shop.
// Noted stacks are refused, as is anything the archetype does not buy.
func (e *Engine) QuoteSell(shopID string, item models.ItemStack, inv *inventory.Inventory) (Trade, error) {
	if item.Noted {
		return Trade{}, ErrNotedItem
	}
	st, base, err := e.priced(shopID, item.ID, item.Quantity)
	if err != nil {
		return Trade{}, err
	}
	if !st.Accepts(item.ID) {
		return Trade{}, fmt.Errorf("%w: %s at %s", ErrNotAccepted, item.ID, shopID)
	}
	// Units are only priced once the seller is known to hold them.
	if have := inv.Count(item.ID, false); have < item.Quantity {
		return Trade{}, fmt.Errorf("%w: have %d, need %d", ErrInsufficientItems, have, item.Quantity)
	}
	units := st.sellUnits(item.ID, base, item.Quantity)
	tr := Trade{
		Side:     SideSell,
		ShopID:   shopID,
		ItemID:   item.ID,
		Quantity: item.Quantity,
		Price:    total(units),
		Currency: st.Definition.CurrencyID(),
		Units:    units,
		SoldAt:   e.now().UnixMilli(),
	}
	if err := dryRun(inv, e.inventoryChange(tr)); err != nil {
		return Trade{}, err
	}
	return tr, nil
}

// Commit applies a trade to the buyer's inventory and the shop. The
// inventory change is atomic and the shop is only touched once it has
// succeeded. The trade's price is charged as given, so a price decided by
// the authority is honoured.
func (e *Engine) Commit(tr Trade, inv *inventory.Inventory) error {
	st, ok := e.shops[tr.ShopID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownShop, tr.ShopID)
	}
	if tr.Quantity <= 0 || tr.Price < 0 {
		return ErrInvalidQuantity
	}
	if tr.Currency == "" {
		tr.Currency = st.Definition.CurrencyID()
	}
	switch tr.Side {
	case SideBuy:
		if err := st.checkStock(tr.ItemID, tr.Quantity); err != nil {
			return err
		}
	case SideSell:
		if !st.Accepts(tr.ItemID) {
			return fmt.Errorf("%w: %s at %s", ErrNotAccepted, tr.ItemID, tr.ShopID)
		}
	default:
		return fmt.Errorf("%w: unknown trade side %q", models.ErrValidation, tr.Side)
	}
	if err := inv.Atomic(e.inventoryChange(tr)); err != nil {
		return err
	}
	if tr.Side == SideBuy {
		e.applyBuy(st, tr)
	} else {
		e.applySell(st, tr)
	}
	e.logger.Debug("shop trade committed",
		"shop", tr.ShopID, "side", tr.Side, "item", tr.ItemID, "qty", tr.Quantity, "price", tr.Price)
	return nil
}

// Buy quotes and commits a purchase.
func (e *Engine) Buy(shopID, itemID string, qty int, inv *inventory.Inventory) (Trade, error) {
	tr, err := e.QuoteBuy(shopID, itemID, qty, inv)
	if err != nil {
		return Trade{}, err
	}
	return tr, e.Commit(tr, inv)
}

// Sell quotes and commits a sale.
func (e *Engine) Sell(shopID string, item models.ItemStack, inv *inventory.Inventory) (Trade, error) {
	tr, err := e.QuoteSell(shopID, item, inv)
	if err != nil {
		return Trade{}, err
	}
	return tr, e.Commit(tr, inv)
}

// inventoryChange is the buyer-side half of a trade. Items bought are added
// through the single-unit path for non-stackables.
func (e *Engine) inventoryChange(tr Trade) func(tx *inventory.Inventory) error {
	return func(tx *inventory.Inventory) error {
		switch tr.Side {
		case SideBuy:
			if have := tx.Count(tr.Currency, false); have < tr.Price {
				return fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, have, tr.Price)
			}
			if err := tx.RemoveItem(tr.Currency, tr.Price, false); err != nil {
				return err
			}
			return tx.AddStack(tr.ItemID, tr.Quantity, false)
		default:
			if have := tx.Count(tr.ItemID, false); have < tr.Quantity {
				return fmt.Errorf("%w: have %d, need %d", ErrInsufficientItems, have, tr.Quantity)
			}
			if err := tx.RemoveItem(tr.ItemID, tr.Quantity, false); err != nil {
				return err
			}
			return tx.AddStack(tr.Currency, tr.Price, false)
		}
	}
}

func dryRun(inv *inventory.Inventory, fn func(tx *inventory.Inventory) error) error {
	err := inv.Atomic(func(tx *inventory.Inventory) error {
		if err := fn(tx); err != nil {
			return err
		}
		return errDryRun
	})
	if errors.Is(err, errDryRun) {
		return nil
	}
	return err
}

func (s *State) checkStock(itemID string, qty int) error {
	if !s.Definition.Type.Metered() {
		return nil
	}
	entry, ok := s.Stock[itemID]
	if !ok || entry.Quantity < qty {
		return fmt.Errorf("%w: %s has %d, need %d", ErrInsufficientStock, itemID, entry.Quantity, qty)
	}
	return nil
}

func (e *Engine) applyBuy(st *State, tr Trade) {
	if !st.Definition.Type.Metered() {
		return
	}
	currency := st.Stock[tr.Currency]
	currency.Quantity += tr.Price
	st.Stock[tr.Currency] = currency

	entry := st.Stock[tr.ItemID]
	entry.Quantity -= tr.Quantity
	if entry.IsPlayerSold && entry.Quantity <= 0 {
		st.removeLine(tr.ItemID)
		return
	}
	st.Stock[tr.ItemID] = entry
}

// applySell takes the sold units into stock. A line the shop did not carry
// is created with a small cap so one large sale cannot distort prices for
// long.
func (e *Engine) applySell(st *State, tr Trade) {
	if !st.Definition.Type.Metered() {
		return
	}
	// A shop out of funds still pays in full; its counter bottoms out at 0.
	currency := st.Stock[tr.Currency]
	currency.Quantity = max(0, currency.Quantity-tr.Price)
	st.Stock[tr.Currency] = currency

	now := tr.SoldAt
	if now == 0 {
		now = e.now().UnixMilli()
	}
	entry, ok := st.Stock[tr.ItemID]
	if !ok {
		st.Stock[tr.ItemID] = models.StockEntry{
			Quantity:     tr.Quantity,
			MaxQuantity:  max(e.baseCeiling, tr.Quantity+2),
			IsPlayerSold: true,
			LastSoldTime: now,
		}
		return
	}
	entry.Quantity += tr.Quantity
	entry.LastSoldTime = now
	if mirror, ok := st.Defaults[tr.ItemID]; !ok || mirror.RestockRate == 0 {
		entry.IsPlayerSold = true
		entry.LastCleanupTime = 0
	}
	st.Stock[tr.ItemID] = entry
}
